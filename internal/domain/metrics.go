package domain

// DebugCounters track why candidate signals never became trades.
type DebugCounters struct {
	GateBlock  int64 `json:"gate_block"`
	EVReject   int64 `json:"ev_reject"`
	EVBypass   int64 `json:"ev_bypass"`
	ZeroQty    int64 `json:"zero_qty"`
	NoBreakout int64 `json:"no_breakout"`
	BadBars    int64 `json:"bad_bars"`
}

// DailyRollup accumulates per-UTC-day trade results.
type DailyRollup struct {
	Date   string  `json:"date"`
	Trades int     `json:"trades"`
	Wins   int     `json:"wins"`
	Pips   float64 `json:"pips"`
}

// RunMetrics is the aggregate output of a run. Maps marshal with sorted
// keys, so two runs that processed the same bars produce byte-identical
// JSON.
type RunMetrics struct {
	Trades    int                     `json:"trades"`
	Wins      int                     `json:"wins"`
	TotalPips float64                 `json:"total_pips"`
	Daily     map[string]*DailyRollup `json:"daily"`
	Debug     DebugCounters           `json:"debug"`
}

// NewRunMetrics creates an empty metrics accumulator.
func NewRunMetrics() *RunMetrics {
	return &RunMetrics{Daily: make(map[string]*DailyRollup)}
}

// Clone deep-copies the metrics, so a snapshot is isolated from the
// accumulator that keeps running.
func (m *RunMetrics) Clone() *RunMetrics {
	out := &RunMetrics{
		Trades:    m.Trades,
		Wins:      m.Wins,
		TotalPips: m.TotalPips,
		Debug:     m.Debug,
		Daily:     make(map[string]*DailyRollup, len(m.Daily)),
	}
	for k, v := range m.Daily {
		d := *v
		out.Daily[k] = &d
	}
	return out
}

// RunAggregate is the computed statistics block of a finished run,
// derived from its trade records.
type RunAggregate struct {
	Symbol string `json:"symbol"`

	// Counts.
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`

	// Pnl distribution in pips.
	PnlTotal  float64 `json:"pnl_total"`
	PnlMean   float64 `json:"pnl_mean"`
	PnlMedian float64 `json:"pnl_median"`
	PnlP10    float64 `json:"pnl_p10"`
	PnlP25    float64 `json:"pnl_p25"`
	PnlP75    float64 `json:"pnl_p75"`
	PnlP90    float64 `json:"pnl_p90"`
	PnlMin    float64 `json:"pnl_min"`
	PnlMax    float64 `json:"pnl_max"`
	PnlStddev float64 `json:"pnl_stddev"`

	// Order-dependent risk figures.
	MaxDrawdownPips      float64 `json:"max_drawdown_pips"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`

	// Breakdowns.
	ByExitReason map[string]int `json:"by_exit_reason"`
	ByBucket     map[string]int `json:"by_bucket"`
	Daily        []DailyRollup  `json:"daily"`
}

// RecordTrade folds one closed trade into the totals and its day bucket.
func (m *RunMetrics) RecordTrade(day string, pnlPips float64) {
	m.Trades++
	if pnlPips > 0 {
		m.Wins++
	}
	m.TotalPips += pnlPips

	d, ok := m.Daily[day]
	if !ok {
		d = &DailyRollup{Date: day}
		m.Daily[day] = d
	}
	d.Trades++
	if pnlPips > 0 {
		d.Wins++
	}
	d.Pips += pnlPips
}
