package state

import (
	"bytes"
	"errors"
	"testing"

	"orb-strategy-lab/internal/domain"
	"orb-strategy-lab/internal/ev"
)

func validSnapshot() *Snapshot {
	return &Snapshot{
		Meta: Meta{Symbol: "USDJPY", ConfigFingerprint: "abc123", LastTimestamp: 1700000000000},
		EVBuckets: map[string]ev.BucketCounts{
			"LDN:narrow:mid": {Alpha: 3, Beta: 1},
		},
		Runtime: Runtime{WarmupLeft: 2, DayCount: 4, CurrentDay: "2024-03-04", Metrics: domain.NewRunMetrics()},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	s := validSnapshot()

	data, err := Encode(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Meta != s.Meta {
		t.Errorf("meta differs: %+v vs %+v", got.Meta, s.Meta)
	}
	if got.Runtime.WarmupLeft != 2 || got.Runtime.DayCount != 4 {
		t.Errorf("runtime differs: %+v", got.Runtime)
	}
	if got.EVBuckets["LDN:narrow:mid"].Alpha != 3 {
		t.Errorf("bucket counts differ: %+v", got.EVBuckets)
	}
}

func TestEncode_Deterministic(t *testing.T) {
	a, err := Encode(validSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(validSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("identical snapshots should encode to identical bytes")
	}
}

func TestDecode_Failures(t *testing.T) {
	corrupt := func(mutate func(*Snapshot)) []byte {
		s := validSnapshot()
		mutate(s)
		data, err := Encode(s)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	cases := []struct {
		name   string
		data   []byte
		reason string
	}{
		{"empty", nil, "empty snapshot"},
		{"malformed", []byte("{not json"), "malformed json"},
		{"missing symbol", corrupt(func(s *Snapshot) { s.Meta.Symbol = "" }), "missing meta.symbol"},
		{"negative timestamp", corrupt(func(s *Snapshot) { s.Meta.LastTimestamp = -1 }), "negative meta.last_timestamp"},
		{"negative warmup", corrupt(func(s *Snapshot) { s.Runtime.WarmupLeft = -1 }), "negative runtime.warmup_left"},
		{"bad bucket key", corrupt(func(s *Snapshot) {
			s.EVBuckets["not-a-key"] = ev.BucketCounts{}
		}), "bad bucket key"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Decode(c.data)
			if err == nil {
				t.Fatal("expected an error")
			}
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("expected *LoadError, got %T", err)
			}
			if le.Reason != c.reason {
				t.Errorf("reason = %q, want %q", le.Reason, c.reason)
			}
		})
	}
}

func TestLoadError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &LoadError{Reason: "malformed json", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("LoadError should unwrap to the inner error")
	}
	if err.Error() == "" {
		t.Error("error string should not be empty")
	}
}
