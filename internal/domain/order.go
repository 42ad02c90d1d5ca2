package domain

// Side of a trade.
type Side string

// Side constants.
const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// SameBarPolicy resolves a bar where both take-profit and stop are reachable.
type SameBarPolicy string

// Same-bar collision policies.
const (
	PolicySLFirst       SameBarPolicy = "SL_FIRST"
	PolicyTPFirst       SameBarPolicy = "TP_FIRST"
	PolicyProbabilistic SameBarPolicy = "PROBABILISTIC"
)

// OrderSpec describes one candidate OCO order handed to the fill engine.
// All distances are in pips. SameBarPolicy empty means "engine default".
type OrderSpec struct {
	Side          Side
	Entry         float64
	TPPips        float64
	SLPips        float64
	TrailPips     float64 // 0 disables trailing
	SlipCapPip    float64
	SameBarPolicy SameBarPolicy
}

// Exit reasons reported by the fill engine and position machine.
const (
	ReasonTP         = "tp"
	ReasonSL         = "sl"
	ReasonTrail      = "trail"
	ReasonTimeout    = "timeout"
	ReasonSessionEnd = "session_end"
)

// FillKind tags the FillResult variant.
type FillKind int

// FillResult variants. Exactly one per Simulate call.
const (
	FillNone FillKind = iota // entry level never touched
	FillExit                 // filled and exited within the same bar
	FillOpen                 // filled, position carried to later bars
)

// FillResult is the outcome of simulating one order against one bar.
//
//   - FillNone: no other field is meaningful.
//   - FillExit: Price and Reason are set; EntryPx is the fill the exit
//     was measured from (zero on carried-position re-tests, where the
//     caller knows its own entry); PTP is set only when the exit was
//     resolved probabilistically by an engine that surfaces it.
//   - FillOpen: Price and EntryPx are the entry fill; TrailStopPx
//     carries an unrealized trailing stop forward when trailing has
//     activated.
type FillResult struct {
	Kind        FillKind
	Price       float64
	EntryPx     float64
	Reason      string
	PTP         *float64
	TrailStopPx *float64
}
