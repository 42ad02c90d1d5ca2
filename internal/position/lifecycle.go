// Package position drives an open trade across bars until exit:
// trailing-stop ratchet, hold counting, timeout and session-end exits.
// Active and calibration positions run the identical machine; the
// runner dispatches on Kind for the side effects (capital and metrics
// versus EV-only).
package position

import (
	"orb-strategy-lab/internal/domain"
	"orb-strategy-lab/internal/fill"
)

// ExitEvent reports a closed position.
type ExitEvent struct {
	TimeMs int64
	Price  float64
	Reason string
	PTP    *float64 // set for probabilistic same-bar resolutions
}

// Open creates a position from an open fill.
func Open(kind domain.PositionKind, bar domain.Bar, spec domain.OrderSpec, fillPx, qty float64, key domain.EVBucketKey, session domain.Session, evLCB float64) *domain.PositionState {
	pip := bar.PipSize()
	return &domain.PositionState{
		Kind:        kind,
		Side:        spec.Side,
		EntryTimeMs: bar.TimestampMs,
		EntryPx:     fillPx,
		TPPx:        fillPx + spec.Side.Sign()*spec.TPPips*pip,
		SLPx:        fillPx - spec.Side.Sign()*spec.SLPips*pip,
		TrailPips:   spec.TrailPips,
		EVKey:       key.Resolve(),
		Qty:         qty,
		Session:     session,
		EVLCB:       evLCB,
	}
}

// Ratchet moves the stop in the favorable direction only. BUY stops
// never decrease, SELL stops never increase.
func Ratchet(pos *domain.PositionState, stopPx float64) {
	if pos.Side == domain.SideBuy {
		if stopPx > pos.SLPx {
			pos.SLPx = stopPx
		}
		return
	}
	if stopPx < pos.SLPx {
		pos.SLPx = stopPx
	}
}

// Tick advances the position by one bar. Timeout and session-change
// exits settle at the bar open, before any intrabar path is considered;
// otherwise the bar is re-tested under the engine's collision policy
// and a surviving position ratchets its trailing stop and counts the
// hold.
func Tick(pos *domain.PositionState, bar domain.Bar, engine fill.Engine, maxHoldBars int, newSession bool) *ExitEvent {
	if newSession {
		return &ExitEvent{TimeMs: bar.TimestampMs, Price: bar.Open, Reason: domain.ReasonSessionEnd}
	}
	if pos.Hold >= maxHoldBars {
		return &ExitEvent{TimeMs: bar.TimestampMs, Price: bar.Open, Reason: domain.ReasonTimeout}
	}

	res := engine.ResolveOpen(bar, pos)
	if res.Kind == domain.FillExit {
		return &ExitEvent{TimeMs: bar.TimestampMs, Price: res.Price, Reason: res.Reason, PTP: res.PTP}
	}

	if res.TrailStopPx != nil {
		Ratchet(pos, *res.TrailStopPx)
	}
	pos.Hold++
	return nil
}
