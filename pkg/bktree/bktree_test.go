package bktree

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimiclab/mimic/pkg/models"
)

func fp(id string, bits uint64) models.Fingerprint {
	return models.Fingerprint{UnitID: id, Bits: bits, Width: 64}
}

func TestNewRejectsBadWidth(t *testing.T) {
	for _, width := range []int{0, -1, 65} {
		_, err := New(width)
		require.Error(t, err, "width %d", width)
	}
}

func TestInsertRejectsWidthMismatch(t *testing.T) {
	tree, err := New(64)
	require.NoError(t, err)

	err = tree.Insert(models.Fingerprint{UnitID: "u1", Bits: 1, Width: 32})
	require.Error(t, err)

	var cfgErr *models.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestQueryEmptyTree(t *testing.T) {
	tree, err := New(64)
	require.NoError(t, err)

	assert.Nil(t, tree.Query(0xabc, 10))
	assert.Equal(t, 0, tree.Len())
}

func TestQueryRadiusZeroExactOnly(t *testing.T) {
	tree, err := New(64)
	require.NoError(t, err)

	require.NoError(t, tree.Insert(fp("exact", 0xff00)))
	require.NoError(t, tree.Insert(fp("near", 0xff01)))
	require.NoError(t, tree.Insert(fp("far", 0x00ff)))

	matches := tree.Query(0xff00, 0)
	require.Len(t, matches, 1)
	assert.Equal(t, "exact", matches[0].UnitID)
	assert.Equal(t, 0, matches[0].Distance)
}

func TestQueryNegativeRadius(t *testing.T) {
	tree, err := New(64)
	require.NoError(t, err)
	require.NoError(t, tree.Insert(fp("u1", 42)))

	assert.Nil(t, tree.Query(42, -1))
}

func TestQuerySortedByDistanceThenID(t *testing.T) {
	tree, err := New(64)
	require.NoError(t, err)

	require.NoError(t, tree.Insert(fp("b", 0b0111))) // distance 3 from 0
	require.NoError(t, tree.Insert(fp("a", 0b0011))) // distance 2
	require.NoError(t, tree.Insert(fp("d", 0b0101))) // distance 2
	require.NoError(t, tree.Insert(fp("c", 0b0001))) // distance 1

	matches := tree.Query(0, 3)
	require.Len(t, matches, 4)
	assert.Equal(t, []Match{
		{UnitID: "c", Distance: 1},
		{UnitID: "a", Distance: 2},
		{UnitID: "d", Distance: 2},
		{UnitID: "b", Distance: 3},
	}, matches)
}

// The load-bearing property: the tree must agree exactly with a linear
// scan for every query, including matches sitting on the radius boundary.
func TestQueryMatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	tree, err := New(64)
	require.NoError(t, err)

	stored := make(map[string]uint64, 1000)
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("unit-%04d", i)
		bits := rng.Uint64()
		stored[id] = bits
		require.NoError(t, tree.Insert(fp(id, bits)))
	}

	for trial := 0; trial < 50; trial++ {
		query := rng.Uint64()
		radius := rng.Intn(20)

		want := make(map[string]int)
		for id, bits := range stored {
			if d := hamming(bits, query); d <= radius {
				want[id] = d
			}
		}

		got := tree.Query(query, radius)
		require.Len(t, got, len(want), "radius %d", radius)
		for _, m := range got {
			d, ok := want[m.UnitID]
			require.True(t, ok, "unexpected match %s", m.UnitID)
			assert.Equal(t, d, m.Distance)
		}
	}
}

func TestEveryFingerprintFindsItselfAtRadiusZero(t *testing.T) {
	rng := rand.New(rand.NewSource(19))

	tree, err := New(64)
	require.NoError(t, err)

	bits := make(map[string]uint64, 1000)
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("unit-%04d", i)
		bits[id] = rng.Uint64()
		require.NoError(t, tree.Insert(fp(id, bits[id])))
	}

	for id, b := range bits {
		matches := tree.Query(b, 0)
		found := false
		for _, m := range matches {
			if m.UnitID == id {
				found = true
			}
		}
		require.True(t, found, "unit %s not found at radius 0", id)
	}
}

func TestInsertReplacesExistingUnit(t *testing.T) {
	tree, err := New(64)
	require.NoError(t, err)

	require.NoError(t, tree.Insert(fp("u1", 0x0f)))
	require.NoError(t, tree.Insert(fp("u1", 0xf0)))

	assert.Equal(t, 1, tree.Len())
	assert.Empty(t, tree.Query(0x0f, 0))

	matches := tree.Query(0xf0, 0)
	require.Len(t, matches, 1)
	assert.Equal(t, "u1", matches[0].UnitID)
}

func TestRemoveKeepsSubtreeReachable(t *testing.T) {
	tree, err := New(64)
	require.NoError(t, err)

	// u2 and u3 route through u1's subtree; removing u1 must not hide them.
	require.NoError(t, tree.Insert(fp("root", 0)))
	require.NoError(t, tree.Insert(fp("u1", 0b0011)))
	require.NoError(t, tree.Insert(fp("u2", 0b0111)))
	require.NoError(t, tree.Insert(fp("u3", 0b0110)))

	assert.True(t, tree.Remove("u1"))
	assert.False(t, tree.Remove("u1"))
	assert.Equal(t, 3, tree.Len())

	matches := tree.Query(0b0111, 1)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.UnitID)
	}
	assert.Contains(t, ids, "u2")
	assert.Contains(t, ids, "u3")
	assert.NotContains(t, ids, "u1")
}

func TestRebuildCompactsTombstones(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	tree, err := New(64)
	require.NoError(t, err)

	bits := make(map[string]uint64)
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("unit-%03d", i)
		bits[id] = rng.Uint64()
		require.NoError(t, tree.Insert(fp(id, bits[id])))
	}
	for i := 0; i < 200; i += 2 {
		id := fmt.Sprintf("unit-%03d", i)
		tree.Remove(id)
		delete(bits, id)
	}

	tree.Rebuild()

	stats := tree.Stats()
	assert.Equal(t, 100, stats.Size)
	assert.Equal(t, 0, stats.Tombstones)
	require.NoError(t, tree.Verify())

	for id, b := range bits {
		matches := tree.Query(b, 0)
		found := false
		for _, m := range matches {
			if m.UnitID == id {
				found = true
			}
		}
		assert.True(t, found, "unit %s lost in rebuild", id)
	}
}

func TestVerifyCleanTree(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	tree, err := New(64)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, tree.Insert(fp(fmt.Sprintf("u%d", i), rng.Uint64())))
	}

	require.NoError(t, tree.Verify())
}

func TestVerifyDetectsCorruption(t *testing.T) {
	tree, err := New(64)
	require.NoError(t, err)

	require.NoError(t, tree.Insert(fp("root", 0)))
	require.NoError(t, tree.Insert(fp("child", 0b0011)))

	// Corrupt a stored fingerprint behind the tree's back.
	tree.nodes[1].fp.Bits = 0b1111

	err = tree.Verify()
	require.Error(t, err)

	var corrupt *models.IndexCorruptionError
	assert.ErrorAs(t, err, &corrupt)
}

func TestConcurrentQueriesDuringInsert(t *testing.T) {
	rng := rand.New(rand.NewSource(5))

	tree, err := New(64)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, tree.Insert(fp(fmt.Sprintf("seed-%d", i), rng.Uint64())))
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			local := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				tree.Query(local.Uint64(), 8)
			}
		}(int64(w))
	}
	for i := 0; i < 100; i++ {
		require.NoError(t, tree.Insert(fp(fmt.Sprintf("new-%d", i), rng.Uint64())))
	}
	wg.Wait()

	assert.Equal(t, 200, tree.Len())
}

func TestStats(t *testing.T) {
	tree, err := New(64)
	require.NoError(t, err)

	assert.Equal(t, Stats{}, tree.Stats())

	require.NoError(t, tree.Insert(fp("a", 0)))
	require.NoError(t, tree.Insert(fp("b", 1)))
	require.NoError(t, tree.Insert(fp("c", 3)))

	stats := tree.Stats()
	assert.Equal(t, 3, stats.Size)
	assert.GreaterOrEqual(t, stats.Depth, 2)
	assert.GreaterOrEqual(t, stats.RootChildren, 1)
}
