// Package runner drives the simulation loop: features, signal
// proposal, gating, fills, position lifecycle and estimator updates,
// one bar at a time. The loop is single-threaded and deterministic;
// its entire mutable state exports to a snapshot so a split run
// reproduces an unbroken one exactly.
package runner

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"orb-strategy-lab/internal/domain"
	"orb-strategy-lab/internal/ev"
	"orb-strategy-lab/internal/feature"
	"orb-strategy-lab/internal/fill"
	"orb-strategy-lab/internal/gate"
	"orb-strategy-lab/internal/idhash"
	"orb-strategy-lab/internal/position"
	"orb-strategy-lab/internal/slip"
)

// Options configures a Runner.
type Options struct {
	Config domain.RunnerConfig

	// OnTrade, when set, receives every closed active trade as it
	// finalizes. Calibration shadows never reach it.
	OnTrade func(domain.TradeRecord)
}

// Runner owns one backtest run over a bar stream.
type Runner struct {
	cfg         domain.RunnerConfig
	fingerprint string
	tfMs        int64

	features *feature.Pipeline
	pool     *ev.Pooled
	slipEst  *slip.Estimator
	gates    *gate.Pipeline
	live     fill.Engine
	bridge   fill.Engine
	tlower   *ev.TLower
	metrics  *domain.RunMetrics
	warmup   gate.Warmup

	dayCount      int
	currentDay    string
	calibrating   bool
	tradedSession bool
	lastBarMs     int64

	pos      *domain.PositionState
	calibPos []*domain.PositionState

	trades  []domain.TradeRecord
	onTrade func(domain.TradeRecord)
}

// New creates a runner from a validated config. The config fingerprint
// is computed here once; snapshots carry it so resumes against a
// different config fail loudly.
func New(opts Options) (*Runner, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tf, err := time.ParseDuration(cfg.TF)
	if err != nil {
		return nil, fmt.Errorf("runner: bad tf %q: %w", cfg.TF, err)
	}

	canonical, err := json.Marshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("runner: fingerprint config: %w", err)
	}

	pool := ev.NewPooled(ev.PooledOptions{
		PriorAlpha: cfg.PriorAlpha,
		PriorBeta:  cfg.PriorBeta,
		Decay:      cfg.EVDecay,
		Conf:       cfg.EVConf,
	})
	slipEst := slip.NewEstimator(cfg.SlipBasePip, cfg.SlipEWMAAlpha)

	r := &Runner{
		cfg:         cfg,
		fingerprint: idhash.ComputeConfigFingerprint(canonical),
		tfMs:        tf.Milliseconds(),
		features:    feature.NewPipeline(cfg),
		pool:        pool,
		slipEst:     slipEst,
		live:        liveEngine(cfg),
		bridge:      fill.NewBridge(cfg.SameBarPolicyBridge, cfg.FillBridgeLambda, cfg.FillDriftScale),
		tlower:      ev.NewTLower(cfg.TLowerAlpha, cfg.EVConf),
		metrics:     domain.NewRunMetrics(),
		trades:      []domain.TradeRecord{},
		warmup:      gate.Warmup{Left: cfg.WarmupTrades},
		calibrating: cfg.CalibrateDays > 0,
		onTrade:     opts.OnTrade,
	}
	r.gates = gate.NewPipeline(cfg, pool, slipEst, r.strategyGate)
	return r, nil
}

func liveEngine(cfg domain.RunnerConfig) fill.Engine {
	if cfg.FillEngine == domain.FillEngineBridge {
		return fill.NewBridge(cfg.SameBarPolicyBridge, cfg.FillBridgeLambda, cfg.FillDriftScale)
	}
	return fill.NewConservative(cfg.SameBarPolicyConservative, cfg.FillBridgeLambda, cfg.FillDriftScale)
}

// strategyGate is the opening-range-breakout entry rule: indicators
// warm, opening range complete, and the range wide enough relative to
// ATR to mean anything.
func (r *Runner) strategyGate(ctx *feature.Context, _ domain.OrderSpec) bool {
	if !ctx.Ready || !ctx.ORReady {
		return false
	}
	if ctx.ATRPips <= 0 {
		return false
	}
	return ctx.ORWidthPips/ctx.ATRPips >= r.cfg.MinORATRRatio
}

// Run folds a bar slice through Step and returns the accumulated
// metrics. Callers that stream bars use Step directly.
func (r *Runner) Run(bars []domain.Bar) *domain.RunMetrics {
	for _, b := range bars {
		r.Step(b)
	}
	return r.metrics
}

// Step advances the run by one bar.
func (r *Runner) Step(bar domain.Bar) {
	if err := bar.ValidateBasic(); err != nil {
		r.metrics.Debug.BadBars++
		return
	}

	// 1. Day roll and calibration phase.
	day := bar.Day()
	if day != r.currentDay {
		r.currentDay = day
		r.dayCount++
		if r.calibrating && r.dayCount > r.cfg.CalibrateDays {
			r.calibrating = false
			r.features.FreezeRVThresholds()
		}
	}

	// 2. Gap detection: a missing bar in the stream marks the next one
	// latency-suspect for entry purposes.
	latencyOK := r.lastBarMs == 0 || bar.TimestampMs-r.lastBarMs <= r.tfMs

	// 3. Features.
	ctx := r.features.Update(bar)
	if ctx.NewSession {
		r.tradedSession = false
	}

	// 4. Advance open positions before considering a new entry.
	r.tickActive(bar, ctx.NewSession)
	r.tickCalibration(bar, ctx.NewSession)

	// 5. Propose and admit at most one new entry per bar.
	r.tryEnter(bar, &ctx, latencyOK)

	r.lastBarMs = bar.TimestampMs
}

func (r *Runner) tickActive(bar domain.Bar, newSession bool) {
	if r.pos == nil {
		return
	}
	exit := position.Tick(r.pos, bar, r.live, r.cfg.MaxHoldBars, newSession)
	if exit == nil {
		return
	}
	r.finalizeActive(bar, r.pos, exit)
	r.pos = nil
}

func (r *Runner) tickCalibration(bar domain.Bar, newSession bool) {
	if len(r.calibPos) == 0 {
		return
	}
	kept := r.calibPos[:0]
	for _, pos := range r.calibPos {
		exit := position.Tick(pos, bar, r.bridge, r.cfg.MaxHoldBars, newSession)
		if exit == nil {
			kept = append(kept, pos)
			continue
		}
		r.finalizeShadow(bar, pos, exit.Price, exit.Reason, exit.PTP)
	}
	r.calibPos = kept
}

// tryEnter proposes an opening-range breakout and runs it through the
// admission pipeline. One trade per session, no pyramiding.
func (r *Runner) tryEnter(bar domain.Bar, ctx *feature.Context, latencyOK bool) {
	if r.pos != nil || r.tradedSession {
		return
	}

	spec, ok := r.propose(bar, ctx)
	if !ok {
		r.metrics.Debug.NoBreakout++
		return
	}

	d := r.gates.Evaluate(ctx, spec, gate.Input{
		SpreadPips:  bar.SpreadPips(),
		LatencyOK:   latencyOK,
		Calibrating: r.calibrating,
	}, &r.warmup)

	if d.State == gate.StateRejected {
		switch d.Reason {
		case gate.ReasonEVReject:
			r.metrics.Debug.EVReject++
		case gate.ReasonZeroQty:
			r.metrics.Debug.ZeroQty++
		default:
			r.metrics.Debug.GateBlock++
		}
		return
	}
	if d.Bypassed {
		r.metrics.Debug.EVBypass++
	}

	kind := domain.PositionActive
	engine := r.live
	if r.calibrating {
		// Calibration shadows always run the bridge engine so soft
		// labels bootstrap the buckets.
		kind = domain.PositionCalibration
		engine = r.bridge
	}

	res := engine.Simulate(bar, spec)
	if res.Kind == domain.FillNone {
		return
	}
	r.tradedSession = true

	// Realized entry slippage is known at fill time.
	pip := bar.PipSize()
	entrySlip := spec.Side.Sign() * (res.EntryPx - spec.Entry) / pip
	r.slipEst.Observe(ctx.SpreadBand, entrySlip)

	key := ctx.BucketKey()

	if res.Kind == domain.FillExit {
		// Filled and resolved within the entry bar.
		pos := position.Open(kind, bar, spec, res.EntryPx, d.Qty, key, ctx.Session, d.EVLCB)
		pos.EntrySpreadPips = bar.SpreadPips()
		if kind == domain.PositionCalibration {
			r.finalizeShadow(bar, pos, res.Price, res.Reason, res.PTP)
			return
		}
		r.finalizeActive(bar, pos, &position.ExitEvent{
			TimeMs: bar.TimestampMs,
			Price:  res.Price,
			Reason: res.Reason,
			PTP:    res.PTP,
		})
		return
	}

	pos := position.Open(kind, bar, spec, res.EntryPx, d.Qty, key, ctx.Session, d.EVLCB)
	pos.EntrySpreadPips = bar.SpreadPips()
	if res.TrailStopPx != nil {
		position.Ratchet(pos, *res.TrailStopPx)
	}
	if kind == domain.PositionCalibration {
		r.calibPos = append(r.calibPos, pos)
		return
	}
	r.pos = pos
}

// propose detects a breakout touch of the opening range on this bar.
// When both edges are touched, the edge closer to the open wins the
// tie: the path most likely reached it first.
func (r *Runner) propose(bar domain.Bar, ctx *feature.Context) (domain.OrderSpec, bool) {
	if !ctx.ORReady {
		return domain.OrderSpec{}, false
	}

	buyTouch := bar.High >= ctx.ORHigh
	sellTouch := bar.Low <= ctx.ORLow

	var side domain.Side
	var entry float64
	switch {
	case buyTouch && sellTouch:
		if math.Abs(ctx.ORHigh-bar.Open) <= math.Abs(bar.Open-ctx.ORLow) {
			side, entry = domain.SideBuy, ctx.ORHigh
		} else {
			side, entry = domain.SideSell, ctx.ORLow
		}
	case buyTouch:
		side, entry = domain.SideBuy, ctx.ORHigh
	case sellTouch:
		side, entry = domain.SideSell, ctx.ORLow
	default:
		return domain.OrderSpec{}, false
	}

	return domain.OrderSpec{
		Side:       side,
		Entry:      entry,
		TPPips:     r.cfg.TPPips,
		SLPips:     r.cfg.SLPips,
		TrailPips:  r.cfg.TrailPips,
		SlipCapPip: r.cfg.SlipCapPip,
	}, true
}

// finalizeActive closes a capital-bearing position: net pips, EV and
// outcome-tracker updates, metrics, and the trade record.
func (r *Runner) finalizeActive(bar domain.Bar, pos *domain.PositionState, exit *position.ExitEvent) {
	pip := bar.PipSize()
	rawPips := pos.Side.Sign() * (exit.Price - pos.EntryPx) / pip
	netPips := rawPips - r.cfg.CostPips - r.slipEst.Expected(pos.EVKey.SpreadBand, pos.EntrySpreadPips)

	r.updateEV(pos.EVKey, exit.Reason, rawPips, exit.PTP)
	r.tlower.Observe(netPips)
	r.metrics.RecordTrade(bar.Day(), netPips)

	rec := domain.TradeRecord{
		TradeID:     idhash.ComputeTradeID(r.cfg.Symbol, string(pos.Side), pos.EntryTimeMs, pos.EVKey.String()),
		Symbol:      r.cfg.Symbol,
		Side:        pos.Side,
		EntryTimeMs: pos.EntryTimeMs,
		EntryPx:     pos.EntryPx,
		ExitTimeMs:  exit.TimeMs,
		ExitPx:      exit.Price,
		ExitReason:  exit.Reason,
		Qty:         pos.Qty,
		PnlPips:     netPips,
		BucketKey:   pos.EVKey.String(),
		EVLCB:       pos.EVLCB,
		Session:     pos.Session,
		SpreadBand:  pos.EVKey.SpreadBand,
		RVBand:      pos.EVKey.RVBand,
		PTP:         exit.PTP,
	}
	r.trades = append(r.trades, rec)
	if r.onTrade != nil {
		r.onTrade(rec)
	}
}

// finalizeShadow closes a calibration position. Shadows feed the EV
// estimators and nothing else.
func (r *Runner) finalizeShadow(bar domain.Bar, pos *domain.PositionState, exitPx float64, reason string, pTP *float64) {
	pip := bar.PipSize()
	rawPips := pos.Side.Sign() * (exitPx - pos.EntryPx) / pip
	r.updateEV(pos.EVKey, reason, rawPips, pTP)
}

// updateEV applies the outcome label: soft when a probabilistic
// collision surfaced p_tp, hard otherwise. Time-based exits count as
// wins only when the raw move was favorable.
func (r *Runner) updateEV(key domain.EVBucketKey, reason string, rawPips float64, pTP *float64) {
	if pTP != nil {
		r.pool.UpdateWeighted(key, *pTP)
		return
	}
	hit := false
	switch reason {
	case domain.ReasonTP:
		hit = true
	case domain.ReasonTrail, domain.ReasonTimeout, domain.ReasonSessionEnd:
		hit = rawPips > 0
	}
	r.pool.Update(key, hit)
}

// Trades returns the closed active trades, in close order. Never nil:
// a run that closed nothing still encodes as an empty stream, so a
// resumed tail compares byte for byte against an unbroken run's tail.
func (r *Runner) Trades() []domain.TradeRecord {
	if r.trades == nil {
		return []domain.TradeRecord{}
	}
	return r.trades
}

// Metrics returns the live metrics accumulator.
func (r *Runner) Metrics() *domain.RunMetrics { return r.metrics }

// TLowerBound returns the advisory lower bound on net pips per trade.
func (r *Runner) TLowerBound() float64 { return r.tlower.Lower() }

// ConfigFingerprint returns the fingerprint snapshots are stamped with.
func (r *Runner) ConfigFingerprint() string { return r.fingerprint }
