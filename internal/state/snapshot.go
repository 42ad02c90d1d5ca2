// Package state defines the persisted runner snapshot and its JSON
// codec. Decoding returns a typed LoadError to the caller; the caller
// decides whether to fall back to defaults. The codec itself never
// swallows a failure.
package state

import (
	"encoding/json"
	"fmt"

	"orb-strategy-lab/internal/domain"
	"orb-strategy-lab/internal/ev"
	"orb-strategy-lab/internal/feature"
	"orb-strategy-lab/internal/slip"
)

// LoadError wraps a snapshot decode/validation failure.
type LoadError struct {
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load state: %s: %v", e.Reason, e.Err)
	}
	return "load state: " + e.Reason
}

func (e *LoadError) Unwrap() error { return e.Err }

// Meta identifies what a snapshot belongs to.
type Meta struct {
	Symbol            string `json:"symbol"`
	ConfigFingerprint string `json:"config_fingerprint"`
	LastTimestamp     int64  `json:"last_timestamp"`
}

// Runtime is the loop-position part of the snapshot: everything beyond
// the estimators that the runner needs to continue a split bar stream
// with byte-identical results.
type Runtime struct {
	WarmupLeft    int                `json:"warmup_left"`
	DayCount      int                `json:"day_count"`
	CurrentDay    string             `json:"current_day"`
	Calibrating   bool               `json:"calibrating"`
	TradedSession bool               `json:"traded_session"`
	Feature       feature.State      `json:"feature"`
	TLower        ev.TLower          `json:"t_lower"`
	Metrics       *domain.RunMetrics `json:"metrics"`
}

// Snapshot is the full exported state of a runner.
type Snapshot struct {
	Meta                 Meta                       `json:"meta"`
	EVGlobal             ev.BetaBinomial            `json:"ev_global"`
	EVBuckets            map[string]ev.BucketCounts `json:"ev_buckets"`
	Slip                 slip.State                 `json:"slip"`
	RVThresh             []float64                  `json:"rv_thresh,omitempty"`
	Runtime              Runtime                    `json:"runtime"`
	Position             *domain.PositionState      `json:"position,omitempty"`
	CalibrationPositions []*domain.PositionState    `json:"calibration_positions,omitempty"`
}

// Encode serializes a snapshot to JSON. Map keys marshal sorted, so the
// encoding is deterministic for identical state.
func Encode(s *Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// Decode parses and validates a snapshot. All failures surface as
// *LoadError; the caller owns any default-fallback policy.
func Decode(data []byte) (*Snapshot, error) {
	if len(data) == 0 {
		return nil, &LoadError{Reason: "empty snapshot"}
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &LoadError{Reason: "malformed json", Err: err}
	}
	if s.Meta.Symbol == "" {
		return nil, &LoadError{Reason: "missing meta.symbol"}
	}
	if s.Meta.LastTimestamp < 0 {
		return nil, &LoadError{Reason: "negative meta.last_timestamp"}
	}
	if s.Runtime.WarmupLeft < 0 {
		return nil, &LoadError{Reason: "negative runtime.warmup_left"}
	}
	for k := range s.EVBuckets {
		if _, err := domain.ParseBucketKey(k); err != nil {
			return nil, &LoadError{Reason: "bad bucket key", Err: err}
		}
	}
	return &s, nil
}
