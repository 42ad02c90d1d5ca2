// Package metrics computes aggregate statistics for a finished run
// from its trade records.
package metrics

import (
	"math"
	"sort"
	"time"

	"orb-strategy-lab/internal/domain"
)

// ComputeRunAggregate calculates all run statistics from a slice of
// trades. Trades are sorted by EntryTimeMs ASC, TradeID ASC before
// computing order-dependent figures (MaxDrawdownPips,
// MaxConsecutiveLosses), so the result is deterministic regardless of
// input order.
func ComputeRunAggregate(symbol string, trades []*domain.TradeRecord) *domain.RunAggregate {
	n := len(trades)
	if n == 0 {
		return &domain.RunAggregate{
			Symbol:       symbol,
			ByExitReason: map[string]int{},
			ByBucket:     map[string]int{},
		}
	}

	sorted := make([]*domain.TradeRecord, n)
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].EntryTimeMs != sorted[j].EntryTimeMs {
			return sorted[i].EntryTimeMs < sorted[j].EntryTimeMs
		}
		return sorted[i].TradeID < sorted[j].TradeID
	})

	pnls := make([]float64, n)
	wins := 0
	byReason := make(map[string]int)
	byBucket := make(map[string]int)
	for i, t := range sorted {
		pnls[i] = t.PnlPips
		if t.PnlPips > 0 {
			wins++
		}
		byReason[t.ExitReason]++
		byBucket[t.BucketKey]++
	}

	sortedPnls := make([]float64, n)
	copy(sortedPnls, pnls)
	sort.Float64s(sortedPnls)

	mean := computeMean(pnls)

	return &domain.RunAggregate{
		Symbol: symbol,

		TotalTrades: n,
		Wins:        wins,
		Losses:      n - wins,
		WinRate:     float64(wins) / float64(n),

		PnlTotal:  mean * float64(n),
		PnlMean:   mean,
		PnlMedian: computePercentile(sortedPnls, 0.50),
		PnlP10:    computePercentile(sortedPnls, 0.10),
		PnlP25:    computePercentile(sortedPnls, 0.25),
		PnlP75:    computePercentile(sortedPnls, 0.75),
		PnlP90:    computePercentile(sortedPnls, 0.90),
		PnlMin:    sortedPnls[0],
		PnlMax:    sortedPnls[n-1],
		PnlStddev: computeStddev(pnls, mean),

		MaxDrawdownPips:      computeMaxDrawdown(pnls),
		MaxConsecutiveLosses: computeMaxConsecutiveLosses(pnls),

		ByExitReason: byReason,
		ByBucket:     byBucket,
		Daily:        computeDaily(sorted),
	}
}

// computeDaily rolls trades up by UTC exit day, sorted by date.
func computeDaily(trades []*domain.TradeRecord) []domain.DailyRollup {
	byDay := make(map[string]*domain.DailyRollup)
	for _, t := range trades {
		day := time.UnixMilli(t.ExitTimeMs).UTC().Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &domain.DailyRollup{Date: day}
			byDay[day] = d
		}
		d.Trades++
		if t.PnlPips > 0 {
			d.Wins++
		}
		d.Pips += t.PnlPips
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	out := make([]domain.DailyRollup, 0, len(days))
	for _, day := range days {
		out = append(out, *byDay[day])
	}
	return out
}

// computeMean calculates arithmetic mean.
func computeMean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(xs []float64, mean float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		diff := x - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation. sorted must be
// pre-sorted ASC; p is the percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown calculates worst peak-to-trough on cumulative
// pnl. Pnls must be in chronological order.
func computeMaxDrawdown(pnls []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, p := range pnls {
		cumulative += p
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds the longest streak of pnl <= 0.
// Pnls must be in chronological order.
func computeMaxConsecutiveLosses(pnls []float64) int {
	maxStreak := 0
	currentStreak := 0

	for _, p := range pnls {
		if p <= 0 {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
