package fill

import (
	"math"
	"testing"

	"orb-strategy-lab/internal/domain"
)

func bar(o, h, l, c float64) domain.Bar {
	return domain.Bar{TimestampMs: 1700000000000, Symbol: "USDJPY", TF: "5m", Open: o, High: h, Low: l, Close: c}
}

func buySpec(entry, tp, sl, trail, cap float64) domain.OrderSpec {
	return domain.OrderSpec{Side: domain.SideBuy, Entry: entry, TPPips: tp, SLPips: sl, TrailPips: trail, SlipCapPip: cap}
}

func TestSimulate_NoFillWhenEntryNeverTouched(t *testing.T) {
	e := NewConservative("", 0.3, 2.0)

	// BUY stop above the bar high
	res := e.Simulate(bar(150.00, 150.02, 149.95, 150.01), buySpec(150.05, 12, 8, 0, 1))
	if res.Kind != domain.FillNone {
		t.Fatalf("expected FillNone, got %v", res.Kind)
	}

	// SELL stop below the bar low
	sell := domain.OrderSpec{Side: domain.SideSell, Entry: 149.90, TPPips: 12, SLPips: 8, SlipCapPip: 1}
	res = e.Simulate(bar(150.00, 150.02, 149.95, 150.01), sell)
	if res.Kind != domain.FillNone {
		t.Fatalf("expected FillNone, got %v", res.Kind)
	}
}

func TestSimulate_WorstCaseFillClampedIntoBar(t *testing.T) {
	e := NewConservative("", 0.3, 2.0)

	// Slip cap of 3 pips but the bar high is only 1 pip above entry:
	// the fill clamps to the high.
	res := e.Simulate(bar(150.00, 150.01, 149.99, 150.00), buySpec(150.00, 100, 100, 0, 3))
	if res.Kind != domain.FillOpen {
		t.Fatalf("expected FillOpen, got %v", res.Kind)
	}
	if math.Abs(res.EntryPx-150.01) > 1e-9 {
		t.Errorf("expected fill clamped to 150.01, got %v", res.EntryPx)
	}
}

func TestSimulate_TPAndSLMeasuredFromFill(t *testing.T) {
	e := NewConservative("", 0.3, 2.0)

	// Fill at 150.03 (entry + 3 pip cap). TP 5 pips from fill = 150.08.
	res := e.Simulate(bar(150.00, 150.10, 149.99, 150.09), buySpec(150.00, 5, 50, 0, 3))
	if res.Kind != domain.FillExit {
		t.Fatalf("expected FillExit, got %v", res.Kind)
	}
	if res.Reason != domain.ReasonTP {
		t.Errorf("expected tp exit, got %q", res.Reason)
	}
	if math.Abs(res.Price-150.08) > 1e-9 {
		t.Errorf("expected exit at 150.08, got %v", res.Price)
	}
}

// Walkthrough: BUY stop at 150.00 with a 3 pip slip cap fills at 150.03;
// the 8 pip stop sits at 149.95 and the bar reaches it without touching
// the take-profit.
func TestSimulate_SlipCapStopScenario(t *testing.T) {
	e := NewConservative(domain.PolicySLFirst, 0.3, 2.0)

	res := e.Simulate(bar(150.00, 150.05, 149.90, 149.93), buySpec(150.00, 12, 8, 0, 3))
	if res.Kind != domain.FillExit {
		t.Fatalf("expected FillExit, got %v", res.Kind)
	}
	if res.Reason != domain.ReasonSL {
		t.Errorf("expected sl exit, got %q", res.Reason)
	}
	if math.Abs(res.Price-149.95) > 1e-9 {
		t.Errorf("expected exit at 149.95, got %v", res.Price)
	}
	if math.Abs(res.EntryPx-150.03) > 1e-9 {
		t.Errorf("expected fill at 150.03, got %v", res.EntryPx)
	}
}

// Walkthrough: BUY filled at 132.42 with a 10 pip trail. A later bar
// runs to 132.78, ratcheting the stop to 132.68, and falls back through
// it on the same bar. SL_FIRST resolves the collision at the stop.
func TestResolveOpen_TrailingStopScenario(t *testing.T) {
	e := NewConservative(domain.PolicySLFirst, 0.3, 2.0)

	res := e.Simulate(bar(132.40, 132.45, 132.35, 132.44), buySpec(132.42, 20, 15, 10, 0))
	if res.Kind != domain.FillOpen {
		t.Fatalf("expected FillOpen on entry bar, got %v", res.Kind)
	}

	pos := &domain.PositionState{
		Side:      domain.SideBuy,
		EntryPx:   res.EntryPx,
		TPPx:      132.62,
		SLPx:      132.27,
		TrailPips: 10,
	}

	out := e.ResolveOpen(bar(132.50, 132.78, 132.60, 132.65), pos)
	if out.Kind != domain.FillExit {
		t.Fatalf("expected FillExit, got %v", out.Kind)
	}
	if out.Reason != domain.ReasonTrail {
		t.Errorf("expected trail exit, got %q", out.Reason)
	}
	if math.Abs(out.Price-132.68) > 1e-9 {
		t.Errorf("expected exit at 132.68, got %v", out.Price)
	}
}

func TestResolveOpen_TrailRatchetCarriedForward(t *testing.T) {
	e := NewConservative("", 0.3, 2.0)

	pos := &domain.PositionState{
		Side:      domain.SideBuy,
		EntryPx:   150.00,
		TPPx:      150.50,
		SLPx:      149.90,
		TrailPips: 10,
	}

	// High 150.20 arms the trail: candidate stop 150.10, bar never
	// falls back to it.
	out := e.ResolveOpen(bar(150.05, 150.20, 150.12, 150.18), pos)
	if out.Kind != domain.FillOpen {
		t.Fatalf("expected FillOpen, got %v", out.Kind)
	}
	if out.TrailStopPx == nil {
		t.Fatal("expected a ratcheted trail stop")
	}
	if math.Abs(*out.TrailStopPx-150.10) > 1e-9 {
		t.Errorf("expected trail stop 150.10, got %v", *out.TrailStopPx)
	}
}

func TestCollision_TPFirstPolicy(t *testing.T) {
	e := NewConservative(domain.PolicyTPFirst, 0.3, 2.0)

	// Both 5 pip TP and 5 pip stop reachable within the bar.
	res := e.Simulate(bar(150.00, 150.10, 149.90, 150.00), buySpec(150.00, 5, 5, 0, 0))
	if res.Kind != domain.FillExit {
		t.Fatalf("expected FillExit, got %v", res.Kind)
	}
	if res.Reason != domain.ReasonTP {
		t.Errorf("expected tp under TP_FIRST, got %q", res.Reason)
	}
}

func TestCollision_SLFirstPolicy(t *testing.T) {
	e := NewConservative(domain.PolicySLFirst, 0.3, 2.0)

	res := e.Simulate(bar(150.00, 150.10, 149.90, 150.00), buySpec(150.00, 5, 5, 0, 0))
	if res.Kind != domain.FillExit {
		t.Fatalf("expected FillExit, got %v", res.Kind)
	}
	if res.Reason != domain.ReasonSL {
		t.Errorf("expected sl under SL_FIRST, got %q", res.Reason)
	}
}

func TestCollision_ProbabilisticBridgeSurfacesPTP(t *testing.T) {
	e := NewBridge("", 0.3, 2.0)

	res := e.Simulate(bar(150.00, 150.10, 149.90, 150.00), buySpec(150.00, 5, 5, 0, 0))
	if res.Kind != domain.FillExit {
		t.Fatalf("expected FillExit, got %v", res.Kind)
	}
	if res.PTP == nil {
		t.Fatal("expected p_tp to be surfaced")
	}
	if *res.PTP < 0.001 || *res.PTP > 0.999 {
		t.Errorf("p_tp %v outside [0.001, 0.999]", *res.PTP)
	}

	// Exit price is the convex combination of TP and stop, so it lies
	// between them.
	tpPx, slPx := 150.05, 149.95
	if res.Price < slPx || res.Price > tpPx {
		t.Errorf("exit price %v outside [%v, %v]", res.Price, slPx, tpPx)
	}
}

func TestCollision_ConservativeNeverSurfacesPTP(t *testing.T) {
	e := NewConservative(domain.PolicyProbabilistic, 0.3, 2.0)

	res := e.Simulate(bar(150.00, 150.10, 149.90, 150.00), buySpec(150.00, 5, 5, 0, 0))
	if res.Kind != domain.FillExit {
		t.Fatalf("expected FillExit, got %v", res.Kind)
	}
	if res.PTP != nil {
		t.Error("conservative engine must not surface p_tp")
	}
}

func TestCollision_ProbabilisticTrailResolvesAsStop(t *testing.T) {
	e := NewBridge(domain.PolicyProbabilistic, 0.3, 2.0)

	pos := &domain.PositionState{
		Side:      domain.SideBuy,
		EntryPx:   150.00,
		TPPx:      150.12,
		SLPx:      149.90,
		TrailPips: 5,
	}

	// High 150.15 hits TP and ratchets the stop to 150.10; low 150.05
	// reaches the ratcheted stop. Trail collisions are a full stop.
	out := e.ResolveOpen(bar(150.08, 150.15, 150.05, 150.06), pos)
	if out.Kind != domain.FillExit {
		t.Fatalf("expected FillExit, got %v", out.Kind)
	}
	if out.Reason != domain.ReasonTrail {
		t.Errorf("expected trail exit, got %q", out.Reason)
	}
	if math.Abs(out.Price-150.10) > 1e-9 {
		t.Errorf("expected exit at the ratcheted stop 150.10, got %v", out.Price)
	}
	if out.PTP == nil || *out.PTP != 0 {
		t.Errorf("expected p_tp 0 for a trail collision, got %v", out.PTP)
	}
}

func TestProbabilistic_DriftShiftsPTP(t *testing.T) {
	e := NewBridge("", 0.5, 2.0)
	spec := buySpec(150.00, 5, 5, 0, 0)

	// Same geometry, opposite bar bodies.
	up := e.Simulate(bar(149.92, 150.10, 149.90, 150.09), spec)
	down := e.Simulate(bar(150.08, 150.10, 149.90, 149.91), spec)

	if up.PTP == nil || down.PTP == nil {
		t.Fatal("expected p_tp on both")
	}
	if *up.PTP <= *down.PTP {
		t.Errorf("favorable drift should raise p_tp: up=%v down=%v", *up.PTP, *down.PTP)
	}
}

func TestSimulate_SellSideSymmetry(t *testing.T) {
	e := NewConservative("", 0.3, 2.0)

	spec := domain.OrderSpec{Side: domain.SideSell, Entry: 150.00, TPPips: 5, SLPips: 50, SlipCapPip: 2}

	// SELL fills at entry - cap = 149.98; TP 5 pips below fill = 149.93.
	res := e.Simulate(bar(150.02, 150.03, 149.90, 149.92), spec)
	if res.Kind != domain.FillExit {
		t.Fatalf("expected FillExit, got %v", res.Kind)
	}
	if res.Reason != domain.ReasonTP {
		t.Errorf("expected tp exit, got %q", res.Reason)
	}
	if math.Abs(res.Price-149.93) > 1e-9 {
		t.Errorf("expected exit at 149.93, got %v", res.Price)
	}
}
