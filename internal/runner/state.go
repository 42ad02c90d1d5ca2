package runner

import (
	"orb-strategy-lab/internal/domain"
	"orb-strategy-lab/internal/state"
)

// ExportState snapshots the full mutable state of the run. Resuming a
// fresh runner from the snapshot and feeding it the remaining bars
// produces the same trades and metrics as an unbroken run.
func (r *Runner) ExportState() *state.Snapshot {
	snap := &state.Snapshot{
		Meta: state.Meta{
			Symbol:            r.cfg.Symbol,
			ConfigFingerprint: r.fingerprint,
			LastTimestamp:     r.lastBarMs,
		},
		EVGlobal:  *r.pool.Global(),
		EVBuckets: r.pool.ExportBuckets(),
		Slip:      r.slipEst.Export(),
		RVThresh:  append([]float64(nil), r.features.RVThresholds()...),
		Runtime: state.Runtime{
			WarmupLeft:    r.warmup.Left,
			DayCount:      r.dayCount,
			CurrentDay:    r.currentDay,
			Calibrating:   r.calibrating,
			TradedSession: r.tradedSession,
			Feature:       r.features.Export(),
			TLower:        *r.tlower,
			Metrics:       r.metrics.Clone(),
		},
	}
	if r.pos != nil {
		p := *r.pos
		snap.Position = &p
	}
	for _, pos := range r.calibPos {
		p := *pos
		snap.CalibrationPositions = append(snap.CalibrationPositions, &p)
	}
	return snap
}

// LoadState restores a runner from a snapshot. The snapshot must have
// been taken under the same symbol and config fingerprint; a mismatch
// returns a *state.LoadError and leaves the runner untouched.
func (r *Runner) LoadState(snap *state.Snapshot) error {
	if snap == nil {
		return &state.LoadError{Reason: "nil snapshot"}
	}
	if snap.Meta.Symbol != r.cfg.Symbol {
		return &state.LoadError{Reason: "symbol mismatch"}
	}
	if snap.Meta.ConfigFingerprint != r.fingerprint {
		return &state.LoadError{Reason: "config fingerprint mismatch"}
	}

	*r.pool.Global() = snap.EVGlobal
	r.pool.RestoreBuckets(snap.EVBuckets)
	r.slipEst.Restore(snap.Slip)
	*r.tlower = snap.Runtime.TLower

	r.features.Restore(snap.Runtime.Feature)
	r.warmup.Left = snap.Runtime.WarmupLeft
	r.dayCount = snap.Runtime.DayCount
	r.currentDay = snap.Runtime.CurrentDay
	r.calibrating = snap.Runtime.Calibrating
	r.tradedSession = snap.Runtime.TradedSession
	r.lastBarMs = snap.Meta.LastTimestamp

	if snap.Runtime.Metrics != nil {
		r.metrics = snap.Runtime.Metrics.Clone()
	} else {
		r.metrics = domain.NewRunMetrics()
	}

	r.pos = nil
	if snap.Position != nil {
		p := *snap.Position
		r.pos = &p
	}
	r.calibPos = nil
	for _, pos := range snap.CalibrationPositions {
		p := *pos
		r.calibPos = append(r.calibPos, &p)
	}
	return nil
}
