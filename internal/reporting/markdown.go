package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RenderMarkdown renders a report as a Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	a := r.Aggregate

	// Header
	sb.WriteString("# Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Symbol: %s\n\n", a.Symbol))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", a.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Wins | %d |\n", a.Wins))
	sb.WriteString(fmt.Sprintf("| Losses | %d |\n", a.Losses))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.4f |\n", a.WinRate))
	sb.WriteString(fmt.Sprintf("| Total Pips | %.4f |\n", a.PnlTotal))
	sb.WriteString(fmt.Sprintf("| T-Lower (pips/trade) | %.4f |\n", r.TLowerPips))
	sb.WriteString("\n")

	// Distribution
	sb.WriteString("## Pnl Distribution (pips)\n\n")
	sb.WriteString("| Mean | Median | P10 | P25 | P75 | P90 | Min | Max | Stddev |\n")
	sb.WriteString("|------|--------|-----|-----|-----|-----|-----|-----|--------|\n")
	sb.WriteString(fmt.Sprintf("| %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f |\n\n",
		a.PnlMean, a.PnlMedian, a.PnlP10, a.PnlP25, a.PnlP75, a.PnlP90, a.PnlMin, a.PnlMax, a.PnlStddev))

	// Risk
	sb.WriteString("## Risk\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Max Drawdown (pips) | %.4f |\n", a.MaxDrawdownPips))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", a.MaxConsecutiveLosses))
	sb.WriteString("\n")

	// Exit reasons
	sb.WriteString("## Exit Reasons\n\n")
	if len(a.ByExitReason) > 0 {
		sb.WriteString("| Reason | Trades |\n")
		sb.WriteString("|--------|--------|\n")
		for _, reason := range sortedKeys(a.ByExitReason) {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", reason, a.ByExitReason[reason]))
		}
	} else {
		sb.WriteString("No closed trades.\n")
	}
	sb.WriteString("\n")

	// Buckets
	sb.WriteString("## Buckets\n\n")
	if len(a.ByBucket) > 0 {
		sb.WriteString("| Bucket | Trades |\n")
		sb.WriteString("|--------|--------|\n")
		for _, bucket := range sortedKeys(a.ByBucket) {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", bucket, a.ByBucket[bucket]))
		}
	} else {
		sb.WriteString("No bucket data available.\n")
	}
	sb.WriteString("\n")

	// Daily
	sb.WriteString("## Daily\n\n")
	if len(a.Daily) > 0 {
		sb.WriteString("| Date | Trades | Wins | Pips |\n")
		sb.WriteString("|------|--------|------|------|\n")
		for _, d := range a.Daily {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.4f |\n", d.Date, d.Trades, d.Wins, d.Pips))
		}
	} else {
		sb.WriteString("No daily data available.\n")
	}
	sb.WriteString("\n")

	// Debug counters
	sb.WriteString("## Signal Funnel\n\n")
	sb.WriteString("| Counter | Value |\n")
	sb.WriteString("|---------|-------|\n")
	sb.WriteString(fmt.Sprintf("| No Breakout | %d |\n", r.Debug.NoBreakout))
	sb.WriteString(fmt.Sprintf("| Gate Block | %d |\n", r.Debug.GateBlock))
	sb.WriteString(fmt.Sprintf("| EV Reject | %d |\n", r.Debug.EVReject))
	sb.WriteString(fmt.Sprintf("| EV Bypass (warmup) | %d |\n", r.Debug.EVBypass))
	sb.WriteString(fmt.Sprintf("| Zero Qty | %d |\n", r.Debug.ZeroQty))
	sb.WriteString(fmt.Sprintf("| Bad Bars | %d |\n", r.Debug.BadBars))
	sb.WriteString("\n")

	return sb.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
