package reporting

import (
	"fmt"
	"strings"

	"orb-strategy-lab/internal/domain"
)

// RenderTradesCSV renders trade records as a CSV string.
func RenderTradesCSV(trades []*domain.TradeRecord) string {
	var sb strings.Builder

	// Header
	sb.WriteString("trade_id,symbol,side,entry_time_ms,entry_px,exit_time_ms,exit_px,exit_reason,")
	sb.WriteString("qty,pnl_pips,bucket_key,ev_lcb,session,spread_band,rv_band,p_tp\n")

	// Rows
	for _, t := range trades {
		pTP := ""
		if t.PTP != nil {
			pTP = fmt.Sprintf("%.6f", *t.PTP)
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%d,%.5f,%d,%.5f,%s,%.2f,%.4f,%s,%.4f,%s,%s,%s,%s\n",
			t.TradeID,
			t.Symbol,
			t.Side,
			t.EntryTimeMs,
			t.EntryPx,
			t.ExitTimeMs,
			t.ExitPx,
			t.ExitReason,
			t.Qty,
			t.PnlPips,
			t.BucketKey,
			t.EVLCB,
			t.Session,
			t.SpreadBand,
			t.RVBand,
			pTP,
		))
	}

	return sb.String()
}

// RenderDailyCSV renders the daily rollups as a CSV string.
func RenderDailyCSV(daily []domain.DailyRollup) string {
	var sb strings.Builder

	sb.WriteString("date,trades,wins,pips\n")
	for _, d := range daily {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%.4f\n", d.Date, d.Trades, d.Wins, d.Pips))
	}

	return sb.String()
}
