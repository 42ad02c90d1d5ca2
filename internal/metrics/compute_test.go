package metrics

import (
	"math"
	"testing"
	"time"

	"orb-strategy-lab/internal/domain"
)

func trade(i int, pnl float64, reason, bucket string) *domain.TradeRecord {
	entry := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
	return &domain.TradeRecord{
		TradeID:     string(rune('a' + i)),
		Symbol:      "USDJPY",
		Side:        domain.SideBuy,
		EntryTimeMs: entry.UnixMilli(),
		ExitTimeMs:  entry.Add(30 * time.Minute).UnixMilli(),
		PnlPips:     pnl,
		ExitReason:  reason,
		BucketKey:   bucket,
	}
}

func TestComputeRunAggregate_Empty(t *testing.T) {
	agg := ComputeRunAggregate("USDJPY", nil)
	if agg.TotalTrades != 0 || agg.WinRate != 0 {
		t.Errorf("empty input should give zeroed counts: %+v", agg)
	}
	if agg.ByExitReason == nil || agg.ByBucket == nil {
		t.Error("breakdown maps should be allocated, not nil")
	}
}

func TestComputeRunAggregate_Counts(t *testing.T) {
	trades := []*domain.TradeRecord{
		trade(0, 10, "tp", "LDN:narrow:mid"),
		trade(1, -8, "sl", "LDN:narrow:mid"),
		trade(2, 4, "trail", "NY:normal:high"),
		trade(3, -2, "timeout", "NY:normal:high"),
	}
	agg := ComputeRunAggregate("USDJPY", trades)

	if agg.TotalTrades != 4 || agg.Wins != 2 || agg.Losses != 2 {
		t.Errorf("counts wrong: %+v", agg)
	}
	if agg.WinRate != 0.5 {
		t.Errorf("win rate = %v, want 0.5", agg.WinRate)
	}
	if math.Abs(agg.PnlTotal-4) > 1e-9 || math.Abs(agg.PnlMean-1) > 1e-9 {
		t.Errorf("totals wrong: total=%v mean=%v", agg.PnlTotal, agg.PnlMean)
	}
	if agg.PnlMin != -8 || agg.PnlMax != 10 {
		t.Errorf("extremes wrong: min=%v max=%v", agg.PnlMin, agg.PnlMax)
	}
	if agg.ByExitReason["tp"] != 1 || agg.ByExitReason["sl"] != 1 {
		t.Errorf("reason breakdown wrong: %v", agg.ByExitReason)
	}
	if agg.ByBucket["LDN:narrow:mid"] != 2 {
		t.Errorf("bucket breakdown wrong: %v", agg.ByBucket)
	}
}

func TestComputeRunAggregate_Percentiles(t *testing.T) {
	// Pnls 1..5: the quartiles interpolate exactly onto the samples.
	trades := make([]*domain.TradeRecord, 5)
	for i := range trades {
		trades[i] = trade(i, float64(i+1), "tp", "LDN:narrow:mid")
	}
	agg := ComputeRunAggregate("USDJPY", trades)

	cases := []struct {
		name string
		got  float64
		want float64
	}{
		{"median", agg.PnlMedian, 3},
		{"p25", agg.PnlP25, 2},
		{"p75", agg.PnlP75, 4},
		{"p10", agg.PnlP10, 1.4},
		{"p90", agg.PnlP90, 4.6},
	}
	for _, c := range cases {
		if math.Abs(c.got-c.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestComputeRunAggregate_Stddev(t *testing.T) {
	trades := []*domain.TradeRecord{
		trade(0, 2, "tp", "k"),
		trade(1, 4, "tp", "k"),
		trade(2, 6, "tp", "k"),
	}
	agg := ComputeRunAggregate("USDJPY", trades)
	if math.Abs(agg.PnlStddev-2) > 1e-9 {
		t.Errorf("stddev = %v, want 2 (sample)", agg.PnlStddev)
	}
}

func TestComputeRunAggregate_Drawdown(t *testing.T) {
	// Cumulative: 10, 2, 12, 3, 7. Peak 12, trough 3.
	pnls := []float64{10, -8, 10, -9, 4}
	trades := make([]*domain.TradeRecord, len(pnls))
	for i, p := range pnls {
		trades[i] = trade(i, p, "tp", "k")
	}
	agg := ComputeRunAggregate("USDJPY", trades)

	if math.Abs(agg.MaxDrawdownPips-9) > 1e-9 {
		t.Errorf("max drawdown = %v, want 9", agg.MaxDrawdownPips)
	}
}

func TestComputeRunAggregate_ConsecutiveLosses(t *testing.T) {
	pnls := []float64{-1, -1, 5, -1, 0, -2, 3}
	trades := make([]*domain.TradeRecord, len(pnls))
	for i, p := range pnls {
		trades[i] = trade(i, p, "sl", "k")
	}
	agg := ComputeRunAggregate("USDJPY", trades)

	// Zero counts as a loss for streak purposes: -1, 0, -2 is a run of 3.
	if agg.MaxConsecutiveLosses != 3 {
		t.Errorf("max consecutive losses = %d, want 3", agg.MaxConsecutiveLosses)
	}
}

func TestComputeRunAggregate_OrderIndependent(t *testing.T) {
	trades := []*domain.TradeRecord{
		trade(0, 10, "tp", "k"),
		trade(1, -8, "sl", "k"),
		trade(2, 3, "tp", "k"),
	}
	shuffled := []*domain.TradeRecord{trades[2], trades[0], trades[1]}

	a := ComputeRunAggregate("USDJPY", trades)
	b := ComputeRunAggregate("USDJPY", shuffled)

	if a.MaxDrawdownPips != b.MaxDrawdownPips || a.MaxConsecutiveLosses != b.MaxConsecutiveLosses {
		t.Errorf("order-dependent figures differ under shuffle: %+v vs %+v", a, b)
	}
}

func TestComputeRunAggregate_DailyRollup(t *testing.T) {
	t1 := trade(0, 5, "tp", "k")  // exits 2024-03-04
	t2 := trade(1, -3, "sl", "k") // exits 2024-03-04
	t3 := trade(30, 2, "tp", "k") // 30h later: exits 2024-03-05
	agg := ComputeRunAggregate("USDJPY", []*domain.TradeRecord{t3, t1, t2})

	if len(agg.Daily) != 2 {
		t.Fatalf("expected 2 daily rows, got %d", len(agg.Daily))
	}
	if agg.Daily[0].Date != "2024-03-04" || agg.Daily[1].Date != "2024-03-05" {
		t.Errorf("days not sorted: %+v", agg.Daily)
	}
	d := agg.Daily[0]
	if d.Trades != 2 || d.Wins != 1 || math.Abs(d.Pips-2) > 1e-9 {
		t.Errorf("first day rollup wrong: %+v", d)
	}
}
