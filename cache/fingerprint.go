package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives a stable cache key from an ordered list of parts. The
// caller is responsible for ordering parts so that two logically identical
// calls always produce the same parts in the same order — typically
// (cache key or node id, model, serialized input), with the node/cache-key
// identity included first per the engine's chosen fingerprint scope (see
// DESIGN.md's Open Question decision on cache fingerprint scope).
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0}) // separator to avoid "ab"+"c" colliding with "a"+"bc"
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FingerprintJoin is a convenience for building a human-readable debug label
// alongside the opaque hash, e.g. for log fields.
func FingerprintJoin(parts ...string) string {
	return strings.Join(parts, "|")
}
