package domain

// TradeRecord is one closed trade with the context it was admitted
// under. Records form the per-trade output stream of a run and are the
// input to aggregate metrics and reports.
type TradeRecord struct {
	TradeID     string  `json:"trade_id"`
	Symbol      string  `json:"symbol"`
	Side        Side    `json:"side"`
	EntryTimeMs int64   `json:"entry_time_ms"`
	EntryPx     float64 `json:"entry_px"`
	ExitTimeMs  int64   `json:"exit_time_ms"`
	ExitPx      float64 `json:"exit_px"`
	ExitReason  string  `json:"exit_reason"`
	Qty         float64 `json:"qty"`
	PnlPips     float64 `json:"pnl_pips"` // net of cost and learned slippage

	// Context snapshot at admission.
	BucketKey  string   `json:"bucket_key"` // "SESSION:SPREAD:RV"
	EVLCB      float64  `json:"ev_lcb"`
	Session    Session  `json:"session"`
	SpreadBand string   `json:"spread_band"`
	RVBand     string   `json:"rv_band"`
	PTP        *float64 `json:"p_tp,omitempty"` // probabilistic same-bar exits only
}
