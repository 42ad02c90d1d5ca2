// Package feature computes per-bar context for gating and bucketing:
// trading session, spread band, realized-volatility band, opening
// range, ATR and ADX.
package feature

import (
	"math"
	"sort"

	"orb-strategy-lab/internal/domain"
)

// Context is the per-bar feature snapshot handed to the gates and the
// EV bucketing. Ready is false until the rolling indicators have seen
// enough bars.
type Context struct {
	Session     domain.Session
	NewSession  bool
	SpreadBand  string
	RVBand      string
	RV          float64
	ATRPips     float64
	ADX         float64
	ORHigh      float64
	ORLow       float64
	ORWidthPips float64
	ORReady     bool
	Ready       bool
}

// BucketKey assembles the EV bucket key for this context.
func (c *Context) BucketKey() domain.EVBucketKey {
	return domain.EVBucketKey{
		Session:    c.Session,
		SpreadBand: c.SpreadBand,
		RVBand:     c.RVBand,
	}.Resolve()
}

// RV band names, resolved against frozen quantile thresholds.
const (
	RVBandLow  = "low"
	RVBandMid  = "mid"
	RVBandHigh = "high"
)

// Pipeline computes features incrementally, one bar at a time. All
// rolling state is exportable so a resumed run reproduces band
// assignment exactly.
type Pipeline struct {
	cfg domain.RunnerConfig
	st  State
}

// State is the full rolling state of the pipeline, snapshotted verbatim
// into runner exports.
type State struct {
	BarCount  int     `json:"bar_count"`
	PrevClose float64 `json:"prev_close"`

	Session domain.Session `json:"session"`

	// Opening range.
	ORHigh  float64 `json:"or_high"`
	ORLow   float64 `json:"or_low"`
	ORCount int     `json:"or_count"`

	// Wilder ATR.
	ATR      float64 `json:"atr"`
	ATRSum   float64 `json:"atr_sum"`
	ATRCount int     `json:"atr_count"`

	// Wilder ADX.
	SmoothTR  float64 `json:"smooth_tr"`
	SmoothPDM float64 `json:"smooth_pdm"`
	SmoothNDM float64 `json:"smooth_ndm"`
	ADX       float64 `json:"adx"`
	DXSum     float64 `json:"dx_sum"`
	DXCount   int     `json:"dx_count"`
	PrevHigh  float64 `json:"prev_high"`
	PrevLow   float64 `json:"prev_low"`

	// Realized volatility: rolling log returns plus the calibration
	// sample pool the quantile thresholds are cut from.
	Returns   []float64 `json:"returns"`
	RVSamples []float64 `json:"rv_samples,omitempty"`
	RVThresh  []float64 `json:"rv_thresh,omitempty"`
}

// NewPipeline creates a pipeline for one run.
func NewPipeline(cfg domain.RunnerConfig) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Export returns a copy of the rolling state.
func (p *Pipeline) Export() State {
	st := p.st
	st.Returns = append([]float64(nil), p.st.Returns...)
	st.RVSamples = append([]float64(nil), p.st.RVSamples...)
	st.RVThresh = append([]float64(nil), p.st.RVThresh...)
	return st
}

// Restore replaces the rolling state from a snapshot.
func (p *Pipeline) Restore(st State) {
	p.st = st
}

// RVThresholds returns the frozen quantile cuts, nil while calibrating.
func (p *Pipeline) RVThresholds() []float64 {
	return p.st.RVThresh
}

// SessionOf maps a UTC hour to the trading session.
func SessionOf(bar domain.Bar) domain.Session {
	h := bar.Time().Hour()
	switch {
	case h >= 7 && h < 13:
		return domain.SessionLondon
	case h >= 13 && h < 22:
		return domain.SessionNY
	default:
		return domain.SessionTokyo
	}
}

// Update folds one bar in and returns its context.
func (p *Pipeline) Update(bar domain.Bar) Context {
	st := &p.st
	pip := bar.PipSize()

	session := SessionOf(bar)
	newSession := st.BarCount > 0 && session != st.Session
	if st.BarCount == 0 || newSession {
		st.ORHigh = bar.High
		st.ORLow = bar.Low
		st.ORCount = 1
	} else if st.ORCount < p.cfg.ORBars {
		st.ORHigh = math.Max(st.ORHigh, bar.High)
		st.ORLow = math.Min(st.ORLow, bar.Low)
		st.ORCount++
	}
	st.Session = session

	p.updateATR(bar)
	p.updateADX(bar)
	rv := p.updateRV(bar)

	st.PrevClose = bar.Close
	st.PrevHigh = bar.High
	st.PrevLow = bar.Low
	st.BarCount++

	ctx := Context{
		Session:     session,
		NewSession:  newSession,
		SpreadBand:  p.cfg.SpreadBandFor(bar.SpreadPips()),
		RV:          rv,
		RVBand:      p.rvBand(rv),
		ATRPips:     st.ATR / pip,
		ADX:         st.ADX,
		ORHigh:      st.ORHigh,
		ORLow:       st.ORLow,
		ORWidthPips: (st.ORHigh - st.ORLow) / pip,
		ORReady:     st.ORCount >= p.cfg.ORBars,
		Ready:       st.ATRCount >= p.cfg.ATRPeriod && len(st.Returns) >= p.cfg.RVWindow,
	}
	return ctx
}

func (p *Pipeline) updateATR(bar domain.Bar) {
	st := &p.st
	if st.BarCount == 0 {
		return // TR needs a previous close
	}
	tr := math.Max(bar.Range(), math.Max(
		math.Abs(bar.High-st.PrevClose),
		math.Abs(bar.Low-st.PrevClose)))

	n := float64(p.cfg.ATRPeriod)
	st.ATRCount++
	if st.ATRCount <= p.cfg.ATRPeriod {
		st.ATRSum += tr
		st.ATR = st.ATRSum / float64(st.ATRCount)
		return
	}
	st.ATR = (st.ATR*(n-1) + tr) / n
}

func (p *Pipeline) updateADX(bar domain.Bar) {
	st := &p.st
	if st.BarCount == 0 {
		return
	}

	up := bar.High - st.PrevHigh
	down := st.PrevLow - bar.Low
	pdm, ndm := 0.0, 0.0
	if up > down && up > 0 {
		pdm = up
	}
	if down > up && down > 0 {
		ndm = down
	}
	tr := math.Max(bar.Range(), math.Max(
		math.Abs(bar.High-st.PrevClose),
		math.Abs(bar.Low-st.PrevClose)))

	n := float64(p.cfg.ADXPeriod)
	// Wilder smoothing of TR and directional movement.
	st.SmoothTR = st.SmoothTR - st.SmoothTR/n + tr
	st.SmoothPDM = st.SmoothPDM - st.SmoothPDM/n + pdm
	st.SmoothNDM = st.SmoothNDM - st.SmoothNDM/n + ndm

	if st.SmoothTR <= 0 {
		return
	}
	pdi := 100 * st.SmoothPDM / st.SmoothTR
	ndi := 100 * st.SmoothNDM / st.SmoothTR
	sum := pdi + ndi
	if sum <= 0 {
		return
	}
	dx := 100 * math.Abs(pdi-ndi) / sum

	st.DXCount++
	if st.DXCount <= p.cfg.ADXPeriod {
		st.DXSum += dx
		st.ADX = st.DXSum / float64(st.DXCount)
		return
	}
	st.ADX = (st.ADX*(n-1) + dx) / n
}

// updateRV maintains the rolling log-return window and returns the
// current realized volatility (sample stddev of log returns).
func (p *Pipeline) updateRV(bar domain.Bar) float64 {
	st := &p.st
	if st.BarCount == 0 || st.PrevClose <= 0 {
		return 0
	}
	r := math.Log(bar.Close / st.PrevClose)
	st.Returns = append(st.Returns, r)
	if len(st.Returns) > p.cfg.RVWindow {
		st.Returns = st.Returns[1:]
	}
	if len(st.Returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, v := range st.Returns {
		mean += v
	}
	mean /= float64(len(st.Returns))
	sumSq := 0.0
	for _, v := range st.Returns {
		d := v - mean
		sumSq += d * d
	}
	rv := math.Sqrt(sumSq / float64(len(st.Returns)-1))

	if st.RVThresh == nil && len(st.Returns) >= p.cfg.RVWindow {
		st.RVSamples = append(st.RVSamples, rv)
	}
	return rv
}

// FreezeRVThresholds cuts the quantile thresholds from the collected
// samples and stops collecting. Called once when calibration ends; a
// no-op when thresholds are already frozen or no samples exist.
func (p *Pipeline) FreezeRVThresholds() {
	st := &p.st
	if st.RVThresh != nil || len(st.RVSamples) == 0 {
		return
	}
	sorted := append([]float64(nil), st.RVSamples...)
	sort.Float64s(sorted)

	cuts := make([]float64, 0, len(p.cfg.RVBandCuts))
	for _, q := range p.cfg.RVBandCuts {
		cuts = append(cuts, quantile(sorted, q))
	}
	st.RVThresh = cuts
	st.RVSamples = nil
}

// rvBand resolves the RV band, defaulting to mid until thresholds are
// frozen.
func (p *Pipeline) rvBand(rv float64) string {
	th := p.st.RVThresh
	if len(th) < 2 {
		return domain.DefaultRVBand
	}
	switch {
	case rv <= th[0]:
		return RVBandLow
	case rv <= th[1]:
		return RVBandMid
	default:
		return RVBandHigh
	}
}

// quantile returns the linearly-interpolated q-quantile of sorted.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	idx := q * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
