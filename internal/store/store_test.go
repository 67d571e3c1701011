package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimiclab/mimic/pkg/models"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "fingerprints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleUnit(id string) (models.CodeUnit, models.Fingerprint) {
	unit := models.CodeUnit{
		ID:            id,
		Kind:          models.UnitFunction,
		Name:          "handler",
		QualifiedName: "Server.handler",
		File:          "server.py",
		StartLine:     10,
		EndLine:       25,
		Language:      "python",
		Source:        "def handler(self, req):\n    return req\n",
	}
	fp := models.Fingerprint{UnitID: id, Bits: 0xdeadbeefcafe0000, Width: 64}
	return unit, fp
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	unit, fp := sampleUnit("u1")
	require.NoError(t, s.Save(ctx, unit, fp))

	records, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, unit, records[0].Unit)
	assert.Equal(t, fp, records[0].Fingerprint)
}

func TestHighBitFingerprintRoundTrip(t *testing.T) {
	// The top bit set exercises the uint64 <-> int64 cast.
	s := openTemp(t)
	ctx := context.Background()

	unit, fp := sampleUnit("u1")
	fp.Bits = 0xffffffffffffffff
	require.NoError(t, s.Save(ctx, unit, fp))

	records, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(0xffffffffffffffff), records[0].Fingerprint.Bits)
}

func TestLoadAllPreservesInsertionOrder(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		unit, fp := sampleUnit(fmt.Sprintf("u%02d", i))
		fp.Bits = uint64(i)
		require.NoError(t, s.Save(ctx, unit, fp))
	}

	records, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 20)
	for i, rec := range records {
		assert.Equal(t, fmt.Sprintf("u%02d", i), rec.Unit.ID)
	}
}

func TestSaveUpsertsExistingUnit(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	unit, fp := sampleUnit("u1")
	require.NoError(t, s.Save(ctx, unit, fp))

	fp.Bits = 42
	require.NoError(t, s.Save(ctx, unit, fp))

	records, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(42), records[0].Fingerprint.Bits)
}

func TestDelete(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	unit, fp := sampleUnit("u1")
	require.NoError(t, s.Save(ctx, unit, fp))
	require.NoError(t, s.Delete(ctx, "u1"))
	require.NoError(t, s.Delete(ctx, "missing"))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".mimic", "nested", "fingerprints.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
