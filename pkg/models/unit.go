// Package models defines the core data types shared across mimic:
// code units, fingerprints, duplicate pairs, groups, and error types.
package models

import "github.com/google/uuid"

// UnitKind classifies a code unit.
type UnitKind string

const (
	UnitFunction UnitKind = "function"
	UnitClass    UnitKind = "class"
	UnitModule   UnitKind = "module"
)

// String returns the string representation.
func (k UnitKind) String() string {
	return string(k)
}

// CodeUnit is a named, independently analyzable source fragment.
// Units are created at scan time and never mutated afterwards.
type CodeUnit struct {
	ID            string   `json:"id"`
	Kind          UnitKind `json:"kind"`
	Name          string   `json:"name"`
	QualifiedName string   `json:"qualified_name"`
	File          string   `json:"file"`
	StartLine     uint32   `json:"start_line"`
	EndLine       uint32   `json:"end_line"`
	Language      string   `json:"language"`
	Source        string   `json:"source"`
}

// NewUnitID returns a fresh unique unit identifier.
func NewUnitID() string {
	return uuid.NewString()
}

// Lines returns the number of source lines the unit spans.
func (u CodeUnit) Lines() int {
	if u.EndLine < u.StartLine {
		return 0
	}
	return int(u.EndLine-u.StartLine) + 1
}

// Location renders the unit position as file:start-end.
func (u CodeUnit) Location() string {
	if u.File == "" {
		return u.QualifiedName
	}
	return u.File
}

// Fingerprint is a fixed-width binary signature of a unit's structure.
// Hamming distance between fingerprints of equal width approximates
// structural dissimilarity.
type Fingerprint struct {
	UnitID string `json:"unit_id"`
	Bits   uint64 `json:"bits"`
	Width  int    `json:"width"`
}

// Distance returns the Hamming distance to another fingerprint.
// Comparing fingerprints of different widths is a configuration error.
func (f Fingerprint) Distance(other Fingerprint) (int, error) {
	if f.Width != other.Width {
		return 0, &ConfigurationError{
			Field:  "fingerprint.width",
			Reason: "cannot compare fingerprints of different widths",
		}
	}
	return hammingDistance(f.Bits, other.Bits), nil
}

// Similarity maps a Hamming distance to a score in [0,1], monotonically
// decreasing in distance.
func (f Fingerprint) Similarity(distance int) float64 {
	if f.Width == 0 {
		return 0
	}
	s := 1.0 - float64(distance)/float64(f.Width)
	if s < 0 {
		return 0
	}
	return s
}

// PersistedUnit pairs a unit with its fingerprint, the record shape the
// persisted store saves and replays.
type PersistedUnit struct {
	Unit        CodeUnit    `json:"unit"`
	Fingerprint Fingerprint `json:"fingerprint"`
}

func hammingDistance(a, b uint64) int {
	x := a ^ b
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}
