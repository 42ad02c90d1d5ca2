package runner

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"orb-strategy-lab/internal/domain"
	"orb-strategy-lab/internal/feature"
	"orb-strategy-lab/internal/state"
)

// fastConfig trades quickly on synthetic data: tiny indicator windows,
// a generous warmup budget so admissions do not depend on learned EV,
// and no minimum range/ATR ratio.
func fastConfig() domain.RunnerConfig {
	cfg := domain.DefaultRunnerConfig("USDJPY", "5m")
	cfg.ORBars = 2
	cfg.ATRPeriod = 3
	cfg.ADXPeriod = 3
	cfg.RVWindow = 3
	cfg.WarmupTrades = 1000
	cfg.MinORATRRatio = 0
	cfg.MaxHoldBars = 6
	return cfg
}

// genBars produces a deterministic 5m random walk. The same seed always
// yields the same stream, so both halves of a split run see identical
// data.
func genBars(seed int64, n int) []domain.Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]domain.Bar, 0, n)
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	px := 150.0
	for i := 0; i < n; i++ {
		o := px
		drift := (rng.Float64() - 0.5) * 0.12
		c := o + drift
		h := math.Max(o, c) + rng.Float64()*0.06
		l := math.Min(o, c) - rng.Float64()*0.06
		px = c
		bars = append(bars, domain.Bar{
			TimestampMs: start.Add(time.Duration(i) * 5 * time.Minute).UnixMilli(),
			Symbol:      "USDJPY",
			TF:          "5m",
			Open:        o, High: h, Low: l, Close: c,
			Spread: 0.005,
		})
	}
	return bars
}

func mustRunner(t *testing.T, cfg domain.RunnerConfig) *Runner {
	t.Helper()
	r, err := New(Options{Config: cfg})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r
}

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestRun_ProducesTrades(t *testing.T) {
	r := mustRunner(t, fastConfig())
	bars := genBars(7, 800)

	m := r.Run(bars)
	if m.Trades == 0 {
		t.Fatal("synthetic stream produced no trades; the loop is not entering")
	}
	if len(r.Trades()) != m.Trades {
		t.Errorf("trade records (%d) and metrics count (%d) disagree", len(r.Trades()), m.Trades)
	}
	for _, tr := range r.Trades() {
		if tr.TradeID == "" || tr.ExitReason == "" {
			t.Fatalf("incomplete trade record: %+v", tr)
		}
		if tr.ExitTimeMs < tr.EntryTimeMs {
			t.Fatalf("exit before entry: %+v", tr)
		}
	}
}

// Splitting a run at an arbitrary bar, snapshotting through the JSON
// codec, and resuming a fresh runner must reproduce the unbroken run
// byte for byte.
func TestSplitRun_MatchesUnbrokenRun(t *testing.T) {
	cfg := fastConfig()
	bars := genBars(7, 800)

	full := mustRunner(t, cfg)
	full.Run(bars)

	for _, split := range []int{1, 97, 400, 555, len(bars) - 1} {
		head := mustRunner(t, cfg)
		head.Run(bars[:split])

		data, err := state.Encode(head.ExportState())
		if err != nil {
			t.Fatalf("split %d: encode: %v", split, err)
		}
		snap, err := state.Decode(data)
		if err != nil {
			t.Fatalf("split %d: decode: %v", split, err)
		}

		resumed := mustRunner(t, cfg)
		if err := resumed.LoadState(snap); err != nil {
			t.Fatalf("split %d: load: %v", split, err)
		}
		resumed.Run(bars[split:])

		if got, want := marshal(t, resumed.Metrics()), marshal(t, full.Metrics()); string(got) != string(want) {
			t.Errorf("split %d: metrics diverge\n got %s\nwant %s", split, got, want)
		}

		headTrades := len(head.Trades())
		tail := full.Trades()[headTrades:]
		if got, want := marshal(t, resumed.Trades()), marshal(t, tail); string(got) != string(want) {
			t.Errorf("split %d: trades diverge\n got %s\nwant %s", split, got, want)
		}
	}
}

// A split landing mid-position must carry the open position across the
// snapshot boundary.
func TestSplitRun_MidPosition(t *testing.T) {
	cfg := fastConfig()
	bars := genBars(7, 800)

	full := mustRunner(t, cfg)
	full.Run(bars)

	// Walk the stream until a snapshot carries an open position.
	probe := mustRunner(t, cfg)
	split := -1
	for i, b := range bars {
		probe.Step(b)
		if probe.ExportState().Position != nil {
			split = i + 1
			break
		}
	}
	if split < 0 || split >= len(bars) {
		t.Skip("stream never held a position at a bar boundary")
	}

	head := mustRunner(t, cfg)
	head.Run(bars[:split])
	snap := head.ExportState()
	if snap.Position == nil {
		t.Fatal("expected an open position in the snapshot")
	}

	resumed := mustRunner(t, cfg)
	if err := resumed.LoadState(snap); err != nil {
		t.Fatalf("load: %v", err)
	}
	resumed.Run(bars[split:])

	if got, want := marshal(t, resumed.Metrics()), marshal(t, full.Metrics()); string(got) != string(want) {
		t.Errorf("metrics diverge after a mid-position split\n got %s\nwant %s", got, want)
	}
}

func TestStep_OneTradePerSession(t *testing.T) {
	bars := genBars(11, 800)
	r := mustRunner(t, fastConfig())
	r.Run(bars)

	// Rebuild the session instance index of every bar: it increments at
	// each session boundary, so Tokyo before and after a London/NY block
	// counts as two instances even on the same UTC day.
	instanceOf := make(map[int64]int, len(bars))
	instance := 0
	prev := feature.SessionOf(bars[0])
	for _, b := range bars {
		if s := feature.SessionOf(b); s != prev {
			instance++
			prev = s
		}
		instanceOf[b.TimestampMs] = instance
	}

	perInstance := map[int]int{}
	for _, tr := range r.Trades() {
		perInstance[instanceOf[tr.EntryTimeMs]]++
	}
	for k, n := range perInstance {
		if n > 1 {
			t.Errorf("session instance %d carried %d trades, want at most 1", k, n)
		}
	}
}

func TestStep_MalformedBarsCountedAndSkipped(t *testing.T) {
	r := mustRunner(t, fastConfig())

	r.Step(domain.Bar{TimestampMs: 0, Open: 150, High: 150, Low: 150, Close: 150})
	r.Step(domain.Bar{TimestampMs: 1700000000000, Open: 150, High: 149, Low: 150, Close: 150})

	if r.Metrics().Debug.BadBars != 2 {
		t.Errorf("bad bars = %d, want 2", r.Metrics().Debug.BadBars)
	}
}

func TestLoadState_RejectsMismatches(t *testing.T) {
	cfg := fastConfig()
	r := mustRunner(t, cfg)
	r.Run(genBars(7, 100))
	snap := r.ExportState()

	var le *state.LoadError

	other := mustRunner(t, cfg)
	bad := *snap
	bad.Meta.Symbol = "EURUSD"
	if err := other.LoadState(&bad); !errors.As(err, &le) || le.Reason != "symbol mismatch" {
		t.Errorf("expected symbol mismatch, got %v", err)
	}

	cfg2 := cfg
	cfg2.TPPips = 99
	different := mustRunner(t, cfg2)
	if err := different.LoadState(snap); !errors.As(err, &le) || le.Reason != "config fingerprint mismatch" {
		t.Errorf("expected fingerprint mismatch, got %v", err)
	}

	if err := other.LoadState(nil); !errors.As(err, &le) || le.Reason != "nil snapshot" {
		t.Errorf("expected nil snapshot error, got %v", err)
	}
}

func TestNew_DistinctConfigsDistinctFingerprints(t *testing.T) {
	a := mustRunner(t, fastConfig())

	cfg := fastConfig()
	cfg.SLPips = 9
	b := mustRunner(t, cfg)

	if a.ConfigFingerprint() == b.ConfigFingerprint() {
		t.Error("different configs must not share a fingerprint")
	}
	if a.ConfigFingerprint() != mustRunner(t, fastConfig()).ConfigFingerprint() {
		t.Error("identical configs must share a fingerprint")
	}
}

func TestCalibration_ShadowsFeedEVOnly(t *testing.T) {
	cfg := fastConfig()
	cfg.CalibrateDays = 2 // the 800-bar stream spans ~3 days
	r := mustRunner(t, cfg)
	bars := genBars(7, 800)
	r.Run(bars)

	// Shadows closed during calibration leave no trade records, but
	// their outcomes land in the global EV counts.
	for _, tr := range r.Trades() {
		day := time.UnixMilli(tr.EntryTimeMs).UTC().Format("2006-01-02")
		if day < "2024-03-06" {
			t.Errorf("trade recorded during calibration on %s", day)
		}
	}
	if r.ExportState().EVGlobal.Alpha+r.ExportState().EVGlobal.Beta == 0 {
		t.Error("calibration produced no EV evidence")
	}
}
