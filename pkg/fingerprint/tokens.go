// Package fingerprint reduces parsed code units to deterministic,
// name-invariant token sequences and fixed-width SimHash fingerprints.
// Extraction and hashing are pure and stateless: both are safe to run in
// parallel across units with no shared mutable state.
package fingerprint

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// TokenSequence is an ordered list of structural feature tokens derived
// purely from the shape of a syntax tree. Sequences are ephemeral and
// recomputable; ContentHash gives a stable cache key.
type TokenSequence struct {
	Tokens []string
}

// Empty reports whether the sequence has no tokens.
func (s TokenSequence) Empty() bool {
	return len(s.Tokens) == 0
}

// Len returns the token count.
func (s TokenSequence) Len() int {
	return len(s.Tokens)
}

// Weights accumulates repeated tokens into per-token weights.
func (s TokenSequence) Weights() map[string]int {
	weights := make(map[string]int, len(s.Tokens))
	for _, t := range s.Tokens {
		weights[t]++
	}
	return weights
}

// ContentHash returns a BLAKE3 hash of the sequence, usable as a cache
// key: identical sequences always hash identically.
func (s TokenSequence) ContentHash() string {
	h := blake3.New()
	for _, t := range s.Tokens {
		h.Write([]byte(t))
		h.Write([]byte{0x1f})
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
