// Package gate runs a candidate signal through the sequential admission
// filter: EntryGate → EVGate → SizingGate, short-circuiting on the
// first failure. Rejections are structured outcomes, never errors.
package gate

import (
	"math"

	"orb-strategy-lab/internal/domain"
	"orb-strategy-lab/internal/ev"
	"orb-strategy-lab/internal/feature"
	"orb-strategy-lab/internal/slip"
)

// State of a candidate signal inside the pipeline.
type State string

// Pipeline states. A signal either reaches Admitted or stops at
// Rejected with a reason code.
const (
	StateProposed    State = "proposed"
	StateEntryPassed State = "entry_passed"
	StateEVPassed    State = "ev_passed"
	StateSized       State = "sized"
	StateAdmitted    State = "admitted"
	StateRejected    State = "rejected"
)

// Rejection reason codes.
const (
	ReasonStrategyGate = "strategy_gate"
	ReasonRouterGate   = "router_gate"
	ReasonEVReject     = "ev_reject"
	ReasonSlipCap      = "slip_cap"
	ReasonZeroQty      = "zero_qty"
)

// Warmup is the process-wide budget of trades allowed to bypass the EV
// threshold. It lives on the runner and is passed into every gate call
// explicitly; the counter is monotonically non-increasing and floored
// at zero.
type Warmup struct {
	Left int `json:"left"`
}

// Consume takes one unit from the budget if any remains.
func (w *Warmup) Consume() bool {
	if w.Left <= 0 {
		return false
	}
	w.Left--
	return true
}

// Decision is the pipeline outcome for one candidate signal.
type Decision struct {
	State    State
	Reason   string // set when State == StateRejected
	Qty      float64
	EVLCB    float64
	Bypassed bool // admitted on the warmup budget
}

// StrategyGateFunc is the strategy-specific entry rule evaluated before
// the generic router checks.
type StrategyGateFunc func(ctx *feature.Context, spec domain.OrderSpec) bool

// Pipeline evaluates candidate signals against one config, EV pool and
// slippage estimator. It holds no per-signal state: multiple intents in
// one bar re-run EVGate/SizingGate per intent, so a warmup unit spent
// on the first intent is visible to the second.
type Pipeline struct {
	cfg          domain.RunnerConfig
	pool         *ev.Pooled
	slipEst      *slip.Estimator
	strategyGate StrategyGateFunc
}

// NewPipeline creates the admission pipeline.
func NewPipeline(cfg domain.RunnerConfig, pool *ev.Pooled, slipEst *slip.Estimator, strategyGate StrategyGateFunc) *Pipeline {
	return &Pipeline{cfg: cfg, pool: pool, slipEst: slipEst, strategyGate: strategyGate}
}

// Input carries the per-bar facts the router checks need beyond the
// feature context.
type Input struct {
	SpreadPips  float64
	LatencyOK   bool // false when the bar arrived after a data gap
	Calibrating bool
}

// Evaluate runs the full pipeline for one candidate signal.
func (p *Pipeline) Evaluate(ctx *feature.Context, spec domain.OrderSpec, in Input, warmup *Warmup) Decision {
	// EntryGate: strategy rule first, then generic router checks.
	if p.strategyGate != nil && !p.strategyGate(ctx, spec) {
		return Decision{State: StateRejected, Reason: ReasonStrategyGate}
	}
	if !p.routerOK(ctx, in) {
		return Decision{State: StateRejected, Reason: ReasonRouterGate}
	}

	d := p.evGate(ctx, spec, in, warmup)
	if d.State == StateRejected {
		return d
	}

	return p.sizingGate(ctx, spec, in, d)
}

func (p *Pipeline) routerOK(ctx *feature.Context, in Input) bool {
	if !p.cfg.SessionAllowed(ctx.Session) {
		return false
	}
	if !in.LatencyOK {
		return false
	}
	// The widest (unbounded) spread band never trades.
	if n := len(p.cfg.SpreadBands); n > 1 && ctx.SpreadBand == p.cfg.SpreadBands[n-1].Name {
		return false
	}
	return true
}

// evGate resolves the bucket key and compares the pooled EV lower bound
// against the configured threshold. While calibrating the bound is
// treated as +inf and always passes; below-threshold signals may spend
// one warmup unit instead of being rejected.
func (p *Pipeline) evGate(ctx *feature.Context, spec domain.OrderSpec, in Input, warmup *Warmup) Decision {
	threshold := p.cfg.ThresholdLCBPip
	if p.cfg.EVMode == domain.EVModeOff {
		threshold = math.Inf(-1)
	}

	evLCB := math.Inf(1)
	if !in.Calibrating {
		evLCB = p.pool.EVLCBOCO(ctx.BucketKey(), spec.TPPips, spec.SLPips, p.cfg.CostPips)
	}

	if evLCB < threshold {
		if warmup.Consume() {
			return Decision{State: StateEVPassed, EVLCB: evLCB, Bypassed: true}
		}
		return Decision{State: StateRejected, Reason: ReasonEVReject, EVLCB: evLCB}
	}
	return Decision{State: StateEVPassed, EVLCB: evLCB}
}

// sizingGate checks the slip cap, then sizes with fractional Kelly.
// Warmup-bypassed and calibrating signals take the floor size instead
// of a Kelly estimate built on counts they were admitted to bootstrap.
func (p *Pipeline) sizingGate(ctx *feature.Context, spec domain.OrderSpec, in Input, d Decision) Decision {
	expectedSlip := p.slipEst.Expected(ctx.SpreadBand, in.SpreadPips)
	if expectedSlip > spec.SlipCapPip {
		return Decision{State: StateRejected, Reason: ReasonSlipCap, EVLCB: d.EVLCB, Bypassed: d.Bypassed}
	}

	if d.Bypassed || in.Calibrating {
		d.Qty = p.cfg.SizeFloorMult * p.cfg.BaseUnit
		d.State = StateAdmitted
		return d
	}

	if spec.SLPips <= 0 {
		return Decision{State: StateRejected, Reason: ReasonZeroQty, EVLCB: d.EVLCB}
	}
	b := spec.TPPips / spec.SLPips
	plcb := p.pool.PLCB(ctx.BucketKey())
	f := plcb - (1-plcb)/b
	if f < 0 {
		f = 0
	}

	qty := p.cfg.KellyFraction * f * p.cfg.BaseUnit
	cap := p.cfg.HardCapQty
	if p.cfg.PipValue > 0 && spec.SLPips > 0 {
		if riskCap := p.cfg.RiskBudget / (p.cfg.PipValue * spec.SLPips); riskCap < cap {
			cap = riskCap
		}
	}
	if qty > cap {
		qty = cap
	}
	if qty <= 0 {
		return Decision{State: StateRejected, Reason: ReasonZeroQty, EVLCB: d.EVLCB}
	}

	d.Qty = qty
	d.State = StateAdmitted
	return d
}
