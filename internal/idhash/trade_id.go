// Package idhash derives deterministic identifiers so replayed runs
// reproduce the exact same trade records.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(symbol|side|entry_time_ms|bucket_key)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(symbol, side string, entryTimeMs int64, bucketKey string) string {
	data := fmt.Sprintf("%s|%s|%d|%s", symbol, side, entryTimeMs, bucketKey)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeConfigFingerprint hashes a canonical config encoding. Snapshots
// carry the fingerprint so a resume against a different config is
// detected instead of silently replayed.
func ComputeConfigFingerprint(canonical []byte) string {
	hash := sha256.Sum256(canonical)
	return hex.EncodeToString(hash[:])
}
