package domain

import (
	"fmt"
	"strings"
)

// Session identifies the trading session a bar falls into (UTC hours).
type Session string

// Session constants.
const (
	SessionTokyo  Session = "TOK"
	SessionLondon Session = "LDN"
	SessionNY     Session = "NY"
)

// Bucket key defaults, applied when a component cannot be resolved.
const (
	DefaultSpreadBand = "normal"
	DefaultRVBand     = "mid"
)

// DefaultSession is used when the session cannot be resolved.
const DefaultSession = SessionLondon

// EVBucketKey segments win-rate statistics by (session, spread band,
// realized-volatility band). A key is always fully resolved: empty
// components are replaced with defaults before any estimator lookup.
type EVBucketKey struct {
	Session    Session `json:"session"`
	SpreadBand string  `json:"spread_band"`
	RVBand     string  `json:"rv_band"`
}

// Resolve returns the key with empty components replaced by defaults.
func (k EVBucketKey) Resolve() EVBucketKey {
	if k.Session == "" {
		k.Session = DefaultSession
	}
	if k.SpreadBand == "" {
		k.SpreadBand = DefaultSpreadBand
	}
	if k.RVBand == "" {
		k.RVBand = DefaultRVBand
	}
	return k
}

// String renders the key as "SESSION:SPREAD:RV", the form used in
// persisted snapshots and trade records.
func (k EVBucketKey) String() string {
	k = k.Resolve()
	return string(k.Session) + ":" + k.SpreadBand + ":" + k.RVBand
}

// ParseBucketKey parses the "SESSION:SPREAD:RV" form.
func ParseBucketKey(s string) (EVBucketKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return EVBucketKey{}, fmt.Errorf("bucket key %q: want SESSION:SPREAD:RV", s)
	}
	return EVBucketKey{
		Session:    Session(parts[0]),
		SpreadBand: parts[1],
		RVBand:     parts[2],
	}.Resolve(), nil
}
