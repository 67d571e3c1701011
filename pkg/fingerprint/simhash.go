package fingerprint

import (
	"math/bits"

	"github.com/cespare/xxhash/v2"

	"github.com/mimiclab/mimic/pkg/models"
)

// DefaultWidth is the standard fingerprint width in bits.
const DefaultWidth = 64

// Calculator turns token sequences into fixed-width SimHash fingerprints.
// Similar sequences land at small Hamming distances; a calculator only
// ever emits fingerprints of its configured width, so every fingerprint
// it produces is comparable with every other.
type Calculator struct {
	width int
}

// NewCalculator validates the width and returns a calculator. Width must
// be a positive multiple of 8 no larger than 64.
func NewCalculator(width int) (*Calculator, error) {
	if width <= 0 || width > 64 || width%8 != 0 {
		return nil, &models.ConfigurationError{
			Field:  "fingerprint.width",
			Reason: "must be a positive multiple of 8, at most 64",
		}
	}
	return &Calculator{width: width}, nil
}

// Width returns the fingerprint width in bits.
func (c *Calculator) Width() int {
	return c.width
}

// Fingerprint computes the SimHash of a token sequence for a unit.
// Identical sequences always produce identical fingerprints.
func (c *Calculator) Fingerprint(unitID string, seq TokenSequence) models.Fingerprint {
	return models.Fingerprint{
		UnitID: unitID,
		Bits:   c.Sum(seq),
		Width:  c.width,
	}
}

// Sum computes the raw SimHash value. Each distinct token is hashed once
// with xxhash64 and its weight is added to the accumulator of every bit
// position the hash sets, subtracted from the rest. A bit in the result
// is set iff its accumulator is strictly positive, so the empty sequence
// maps to zero.
func (c *Calculator) Sum(seq TokenSequence) uint64 {
	var acc [64]int

	for token, weight := range seq.Weights() {
		h := xxhash.Sum64String(token)
		for bit := 0; bit < c.width; bit++ {
			if h&(1<<uint(bit)) != 0 {
				acc[bit] += weight
			} else {
				acc[bit] -= weight
			}
		}
	}

	var out uint64
	for bit := 0; bit < c.width; bit++ {
		if acc[bit] > 0 {
			out |= 1 << uint(bit)
		}
	}
	return out
}

// HammingDistance counts differing bit positions between two raw values.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similarity converts a Hamming distance into a [0,1] score for the
// given width.
func Similarity(width, distance int) float64 {
	if width <= 0 {
		return 0
	}
	s := 1 - float64(distance)/float64(width)
	if s < 0 {
		return 0
	}
	return s
}
