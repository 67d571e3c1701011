package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeUnitLines(t *testing.T) {
	assert.Equal(t, 1, CodeUnit{StartLine: 5, EndLine: 5}.Lines())
	assert.Equal(t, 10, CodeUnit{StartLine: 1, EndLine: 10}.Lines())
	assert.Equal(t, 0, CodeUnit{StartLine: 10, EndLine: 5}.Lines())
}

func TestNewUnitIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewUnitID()
		require.NotEmpty(t, id)
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestFingerprintDistance(t *testing.T) {
	a := Fingerprint{UnitID: "a", Bits: 0b1010, Width: 64}
	b := Fingerprint{UnitID: "b", Bits: 0b0110, Width: 64}

	d, err := a.Distance(b)
	require.NoError(t, err)
	assert.Equal(t, 2, d)

	d, err = a.Distance(a)
	require.NoError(t, err)
	assert.Equal(t, 0, d)
}

func TestFingerprintDistanceWidthMismatch(t *testing.T) {
	a := Fingerprint{Bits: 1, Width: 64}
	b := Fingerprint{Bits: 1, Width: 32}

	_, err := a.Distance(b)
	require.Error(t, err)

	var confErr *ConfigurationError
	assert.True(t, errors.As(err, &confErr))
}

func TestFingerprintDistanceAllBits(t *testing.T) {
	a := Fingerprint{Bits: 0, Width: 64}
	b := Fingerprint{Bits: ^uint64(0), Width: 64}

	d, err := a.Distance(b)
	require.NoError(t, err)
	assert.Equal(t, 64, d)
}

func TestFingerprintSimilarity(t *testing.T) {
	fp := Fingerprint{Width: 64}

	assert.InDelta(t, 1.0, fp.Similarity(0), 1e-9)
	assert.InDelta(t, 0.5, fp.Similarity(32), 1e-9)
	assert.InDelta(t, 0.0, fp.Similarity(64), 1e-9)
	assert.Equal(t, 0.0, fp.Similarity(100))

	// Monotonically decreasing in distance.
	prev := 2.0
	for d := 0; d <= 64; d++ {
		s := fp.Similarity(d)
		assert.Less(t, s, prev)
		prev = s
	}

	assert.Equal(t, 0.0, Fingerprint{Width: 0}.Similarity(0))
}

func TestDuplicateGroupSize(t *testing.T) {
	g := DuplicateGroup{Members: []CodeUnit{{ID: "a"}, {ID: "b"}}}
	assert.Equal(t, 2, g.Size())
	assert.Equal(t, 0, DuplicateGroup{}.Size())
}

func TestParseErrorMessage(t *testing.T) {
	inner := errors.New("syntax error")

	withUnit := &ParseError{File: "a.py", Unit: "add", Err: inner}
	assert.Contains(t, withUnit.Error(), "a.py")
	assert.Contains(t, withUnit.Error(), "add")
	assert.True(t, errors.Is(withUnit, inner))

	fileOnly := &ParseError{File: "a.py", Err: inner}
	assert.Contains(t, fileOnly.Error(), "a.py")
	assert.NotContains(t, fileOnly.Error(), "()")
}

func TestConfidenceBandString(t *testing.T) {
	assert.Equal(t, "near-identical", BandNearIdentical.String())
	assert.Equal(t, "strong", BandStrong.String())
	assert.Equal(t, "weak", BandWeak.String())
}

func TestUnitKindString(t *testing.T) {
	assert.Equal(t, "function", UnitFunction.String())
	assert.Equal(t, "class", UnitClass.String())
	assert.Equal(t, "module", UnitModule.String())
}
