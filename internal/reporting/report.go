// Package reporting renders run results as CSV and Markdown.
package reporting

import (
	"time"

	"orb-strategy-lab/internal/domain"
)

// Report is the full renderable output of one run.
type Report struct {
	GeneratedAt time.Time

	Aggregate *domain.RunAggregate
	Debug     domain.DebugCounters

	// TLowerPips is the advisory lower bound on net pips per trade.
	TLowerPips float64
}

// NewReport assembles a report from run outputs.
func NewReport(agg *domain.RunAggregate, debug domain.DebugCounters, tLowerPips float64) *Report {
	return &Report{
		GeneratedAt: time.Now().UTC(),
		Aggregate:   agg,
		Debug:       debug,
		TLowerPips:  tLowerPips,
	}
}
