package domain

// PositionKind distinguishes capital-bearing positions from calibration
// shadows that only feed the EV estimators.
type PositionKind string

// Position kinds.
const (
	PositionActive      PositionKind = "active"
	PositionCalibration PositionKind = "calibration"
)

// PositionState tracks one open trade across bars. Created on an open
// fill, mutated each bar, destroyed on exit. Persisted only inside a
// full runner snapshot.
type PositionState struct {
	Kind        PositionKind `json:"kind"`
	Side        Side         `json:"side"`
	EntryTimeMs int64        `json:"entry_time_ms"`
	EntryPx     float64      `json:"entry_px"`
	TPPx        float64      `json:"tp_px"`
	SLPx        float64      `json:"sl_px"`
	TrailPips   float64      `json:"trail_pips"`
	Hold        int          `json:"hold"`
	EVKey       EVBucketKey  `json:"ev_key"`
	Qty         float64      `json:"qty"`
	Session     Session      `json:"session"` // session at entry
	EVLCB       float64      `json:"ev_lcb"`  // gate estimate at admission

	// Entry-time quote context, kept for learned-slippage accounting.
	EntrySpreadPips float64 `json:"entry_spread_pips"`
}
