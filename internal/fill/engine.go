// Package fill simulates intrabar order fills and exits on OHLC bars.
//
// Two engines share the entry/stop/trailing logic and differ only in
// their default same-bar policy and in whether the probabilistic
// tie-break probability is surfaced to the caller:
//
//   - Conservative: defaults to SL_FIRST, never surfaces p_tp.
//   - Bridge: defaults to PROBABILISTIC, returns p_tp for soft-label
//     EV updates.
//
// Both are pure: no state, no errors for "not filled".
package fill

import (
	"math"

	"orb-strategy-lab/internal/domain"
)

// epsPips floors pip distances so degenerate geometry never divides by zero.
const epsPips = 1e-9

// Engine simulates one order against one bar and re-tests open
// positions on later bars under the same collision policy.
type Engine interface {
	// Simulate returns exactly one FillResult variant per call.
	Simulate(bar domain.Bar, spec domain.OrderSpec) domain.FillResult

	// ResolveOpen re-tests a carried position against a new bar.
	// It returns an exit result (Kind FillExit) or Kind FillOpen with
	// TrailStopPx set when the trailing stop ratcheted this bar.
	ResolveOpen(bar domain.Bar, pos *domain.PositionState) domain.FillResult

	// DefaultPolicy is applied when the order spec leaves the
	// same-bar policy empty.
	DefaultPolicy() domain.SameBarPolicy
}

type params struct {
	policy     domain.SameBarPolicy
	lambda     float64 // weight of the drift term in p_tp
	driftScale float64
	surfacePTP bool
}

// Conservative resolves same-bar collisions pessimistically (SL_FIRST
// unless configured otherwise) and never reports a probability.
type Conservative struct {
	p params
}

// NewConservative creates the conservative engine. Empty policy means
// SL_FIRST.
func NewConservative(policy domain.SameBarPolicy, lambda, driftScale float64) *Conservative {
	if policy == "" {
		policy = domain.PolicySLFirst
	}
	return &Conservative{p: params{policy: policy, lambda: lambda, driftScale: driftScale}}
}

// Bridge resolves same-bar collisions with a Brownian-bridge style
// probability and surfaces it for soft-label EV updates.
type Bridge struct {
	p params
}

// NewBridge creates the bridge engine. Empty policy means PROBABILISTIC.
func NewBridge(policy domain.SameBarPolicy, lambda, driftScale float64) *Bridge {
	if policy == "" {
		policy = domain.PolicyProbabilistic
	}
	return &Bridge{p: params{policy: policy, lambda: lambda, driftScale: driftScale, surfacePTP: true}}
}

// DefaultPolicy implements Engine.
func (e *Conservative) DefaultPolicy() domain.SameBarPolicy { return e.p.policy }

// DefaultPolicy implements Engine.
func (e *Bridge) DefaultPolicy() domain.SameBarPolicy { return e.p.policy }

// Simulate implements Engine.
func (e *Conservative) Simulate(bar domain.Bar, spec domain.OrderSpec) domain.FillResult {
	return simulate(bar, spec, e.p)
}

// Simulate implements Engine.
func (e *Bridge) Simulate(bar domain.Bar, spec domain.OrderSpec) domain.FillResult {
	return simulate(bar, spec, e.p)
}

// ResolveOpen implements Engine.
func (e *Conservative) ResolveOpen(bar domain.Bar, pos *domain.PositionState) domain.FillResult {
	return resolveOpen(bar, pos, e.p)
}

// ResolveOpen implements Engine.
func (e *Bridge) ResolveOpen(bar domain.Bar, pos *domain.PositionState) domain.FillResult {
	return resolveOpen(bar, pos, e.p)
}

func simulate(bar domain.Bar, spec domain.OrderSpec, p params) domain.FillResult {
	pip := bar.PipSize()
	policy := spec.SameBarPolicy
	if policy == "" {
		policy = p.policy
	}

	// Fill check: BUY stops in above the entry level, SELL below.
	switch spec.Side {
	case domain.SideBuy:
		if bar.High < spec.Entry {
			return domain.FillResult{Kind: domain.FillNone}
		}
	case domain.SideSell:
		if bar.Low > spec.Entry {
			return domain.FillResult{Kind: domain.FillNone}
		}
	default:
		return domain.FillResult{Kind: domain.FillNone}
	}

	// Worst-case fill, capped by the slip cap and clamped into the bar.
	fillPx := spec.Entry + spec.Side.Sign()*spec.SlipCapPip*pip
	fillPx = clamp(fillPx, bar.Low, bar.High)

	tpPx := fillPx + spec.Side.Sign()*spec.TPPips*pip
	slPx := fillPx - spec.Side.Sign()*spec.SLPips*pip

	out := resolveBar(bar, spec.Side, fillPx, fillPx, tpPx, slPx, spec.TrailPips, policy, p)
	out.EntryPx = fillPx
	if out.Kind == domain.FillOpen {
		out.Price = fillPx
	}
	return out
}

func resolveOpen(bar domain.Bar, pos *domain.PositionState, p params) domain.FillResult {
	// Carried positions keep their ratcheted stop. Trailing activation
	// stays anchored at the entry price; probabilistic distances are
	// measured from the bar open.
	return resolveBar(bar, pos.Side, pos.EntryPx, bar.Open, pos.TPPx, pos.SLPx, pos.TrailPips, p.policy, p)
}

// resolveBar applies trailing, reachability and collision policy for
// one bar. trailRefPx anchors trailing activation (the entry price);
// distRefPx anchors probabilistic distances (the fill price on the
// entry bar, the open on carried bars).
func resolveBar(bar domain.Bar, side domain.Side, trailRefPx, distRefPx, tpPx, slPx, trailPips float64, policy domain.SameBarPolicy, p params) domain.FillResult {
	pip := bar.PipSize()

	stopPx := slPx
	stopReason := domain.ReasonSL
	trailArmed := false

	if trailPips > 0 {
		// Once price has moved trail_pips in favor, the candidate stop
		// ratchets toward the extreme of this bar.
		var candidate float64
		if side == domain.SideBuy {
			if bar.High >= trailRefPx+trailPips*pip {
				candidate = bar.High - trailPips*pip
				if candidate > stopPx {
					stopPx = candidate
					stopReason = domain.ReasonTrail
					trailArmed = true
				}
			}
		} else {
			if bar.Low <= trailRefPx-trailPips*pip {
				candidate = bar.Low + trailPips*pip
				if candidate < stopPx {
					stopPx = candidate
					stopReason = domain.ReasonTrail
					trailArmed = true
				}
			}
		}
	}

	var tpHit, stopHit bool
	if side == domain.SideBuy {
		tpHit = bar.High >= tpPx
		stopHit = bar.Low <= stopPx
	} else {
		tpHit = bar.Low <= tpPx
		stopHit = bar.High >= stopPx
	}

	switch {
	case tpHit && stopHit:
		return resolveCollision(bar, side, distRefPx, tpPx, stopPx, stopReason, policy, p)
	case tpHit:
		return domain.FillResult{Kind: domain.FillExit, Price: tpPx, Reason: domain.ReasonTP}
	case stopHit:
		return domain.FillResult{Kind: domain.FillExit, Price: stopPx, Reason: stopReason}
	}

	out := domain.FillResult{Kind: domain.FillOpen}
	if trailArmed {
		// Unrealized trailing stop, carried forward by the caller.
		s := stopPx
		out.TrailStopPx = &s
	}
	return out
}

// resolveCollision breaks the tie when both TP and stop are reachable
// within the same bar.
func resolveCollision(bar domain.Bar, side domain.Side, refPx, tpPx, stopPx float64, stopReason string, policy domain.SameBarPolicy, p params) domain.FillResult {
	switch policy {
	case domain.PolicyTPFirst:
		return domain.FillResult{Kind: domain.FillExit, Price: tpPx, Reason: domain.ReasonTP}
	case domain.PolicyProbabilistic:
		// Trailing collisions are resolved as a full stop (p_tp = 0):
		// partial profit locked in before the stop fired is ignored.
		// Deliberately conservative; kept as designed.
		if stopReason == domain.ReasonTrail {
			out := domain.FillResult{Kind: domain.FillExit, Price: stopPx, Reason: stopReason}
			if p.surfacePTP {
				zero := 0.0
				out.PTP = &zero
			}
			return out
		}
		return probabilisticExit(bar, side, refPx, tpPx, stopPx, stopReason, p)
	default: // SL_FIRST
		return domain.FillResult{Kind: domain.FillExit, Price: stopPx, Reason: stopReason}
	}
}

// probabilisticExit blends distance odds with intrabar drift:
//
//	p_tp = clamp(0.001, 0.999,
//	    (1-λ)·d_sl/(d_tp+d_sl) + λ·0.5·(1+tanh(scale·drift)))
//
// where distances are in pips and drift is the side-normalized body of
// the bar. The exit price is the p_tp-convex combination of TP and stop.
func probabilisticExit(bar domain.Bar, side domain.Side, refPx, tpPx, stopPx float64, stopReason string, p params) domain.FillResult {
	pip := bar.PipSize()

	dTP := math.Abs(tpPx-refPx) / pip
	dSL := math.Abs(refPx-stopPx) / pip
	if dTP+dSL < epsPips {
		dTP, dSL = 1, 1
	}
	distTerm := dSL / (dTP + dSL)

	barRange := bar.Range()
	drift := 0.0
	if barRange > epsPips*pip {
		drift = side.Sign() * (bar.Close - bar.Open) / barRange
	}
	driftTerm := 0.5 * (1 + math.Tanh(p.driftScale*drift))

	pTP := (1-p.lambda)*distTerm + p.lambda*driftTerm
	pTP = clamp(pTP, 0.001, 0.999)

	out := domain.FillResult{
		Kind:  domain.FillExit,
		Price: pTP*tpPx + (1-pTP)*stopPx,
	}
	if pTP >= 0.5 {
		out.Reason = domain.ReasonTP
	} else {
		out.Reason = stopReason
	}
	if p.surfacePTP {
		v := pTP
		out.PTP = &v
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Compile-time interface checks.
var (
	_ Engine = (*Conservative)(nil)
	_ Engine = (*Bridge)(nil)
)
