package grouping

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimiclab/mimic/pkg/models"
)

func unit(id, source string) models.CodeUnit {
	return models.CodeUnit{ID: id, Name: id, Kind: models.UnitFunction, Source: source}
}

func pairOf(a, b models.CodeUnit) models.DuplicatePair {
	return models.DuplicatePair{UnitA: a, UnitB: b, Distance: 2, Similarity: 0.9}
}

func defaultOpts() Options {
	return Options{MaxGroupSize: 10, MaxDepth: 3, MaxRetries: 2}
}

// staticSupplier always proposes the same pattern.
type staticSupplier struct {
	pattern Pattern
	calls   int
}

func (s *staticSupplier) Propose(_ context.Context, _ []models.CodeUnit) (Pattern, error) {
	s.calls++
	return s.pattern, nil
}

// failingSupplier always errors.
type failingSupplier struct {
	calls int
}

func (s *failingSupplier) Propose(_ context.Context, _ []models.CodeUnit) (Pattern, error) {
	s.calls++
	return Pattern{}, errors.New("no pattern available")
}

func TestGroupConnectedComponents(t *testing.T) {
	a, b, c := unit("a", ""), unit("b", ""), unit("c", "")
	d, e := unit("d", ""), unit("e", "")
	lone := unit("f", "")

	units := []models.CodeUnit{a, b, c, d, e, lone}
	pairs := []models.DuplicatePair{
		pairOf(a, b),
		pairOf(b, c),
		pairOf(d, e),
	}

	groups, err := Group(context.Background(), units, pairs, defaultOpts())
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, 3, groups[0].Size())
	assert.Equal(t, 2, groups[1].Size())
	assert.Equal(t, uint64(1), groups[0].ID)
	assert.Equal(t, uint64(2), groups[1].ID)

	// Singletons never form groups.
	for _, g := range groups {
		for _, m := range g.Members {
			assert.NotEqual(t, "f", m.ID)
		}
	}
}

func TestGroupDeterministicUnderEdgeOrder(t *testing.T) {
	var units []models.CodeUnit
	for i := 0; i < 20; i++ {
		units = append(units, unit(fmt.Sprintf("u%02d", i), ""))
	}
	var pairs []models.DuplicatePair
	for i := 0; i < 19; i += 2 {
		pairs = append(pairs, pairOf(units[i], units[i+1]))
	}
	pairs = append(pairs, pairOf(units[1], units[2]), pairOf(units[5], units[8]))

	baseline, err := Group(context.Background(), units, pairs, defaultOpts())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		shuffled := make([]models.DuplicatePair, len(pairs))
		copy(shuffled, pairs)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := Group(context.Background(), units, shuffled, defaultOpts())
		require.NoError(t, err)
		require.Len(t, got, len(baseline))
		for i := range baseline {
			assert.Equal(t, memberIDs(baseline[i]), memberIDs(got[i]))
		}
	}
}

func TestGroupSplitsOversized(t *testing.T) {
	var units []models.CodeUnit
	var pairs []models.DuplicatePair
	for i := 0; i < 12; i++ {
		src := "def handler(): pass"
		if i < 6 {
			src = "def test_handler(): pass"
		}
		units = append(units, unit(fmt.Sprintf("u%02d", i), src))
	}
	for i := 1; i < 12; i++ {
		pairs = append(pairs, pairOf(units[0], units[i]))
	}

	supplier := &staticSupplier{pattern: Pattern{Label: "test code", Regex: `test_`}}
	opts := defaultOpts()
	opts.Supplier = supplier

	groups, err := Group(context.Background(), units, pairs, opts)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, 1, supplier.calls)
	for _, g := range groups {
		assert.Equal(t, 6, g.Size())
		assert.Equal(t, 1, g.Depth)
		assert.Equal(t, `test_`, g.Pattern)
	}
}

func TestGroupLargeGroupNeverValidSupplier(t *testing.T) {
	// 50 fully connected units, max size 10, supplier that never helps:
	// the run must terminate promptly and return the group unsplit.
	var units []models.CodeUnit
	for i := 0; i < 50; i++ {
		units = append(units, unit(fmt.Sprintf("u%02d", i), "def f(): pass"))
	}
	var pairs []models.DuplicatePair
	for i := 0; i < 50; i++ {
		for j := i + 1; j < 50; j++ {
			pairs = append(pairs, pairOf(units[i], units[j]))
		}
	}

	supplier := &failingSupplier{}
	opts := defaultOpts()
	opts.Supplier = supplier

	groups, err := Group(context.Background(), units, pairs, opts)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	assert.Equal(t, 50, groups[0].Size())
	assert.Equal(t, 0, groups[0].Depth)
	assert.LessOrEqual(t, supplier.calls, opts.MaxDepth*opts.MaxRetries)
}

func TestGroupNonDiscriminatingPatternCountsAsFailure(t *testing.T) {
	// Pattern matches every member, so one side is always empty.
	var units []models.CodeUnit
	var pairs []models.DuplicatePair
	for i := 0; i < 12; i++ {
		units = append(units, unit(fmt.Sprintf("u%02d", i), "def f(): pass"))
	}
	for i := 1; i < 12; i++ {
		pairs = append(pairs, pairOf(units[0], units[i]))
	}

	supplier := &staticSupplier{pattern: Pattern{Label: "everything", Regex: `def`}}
	opts := defaultOpts()
	opts.Supplier = supplier

	groups, err := Group(context.Background(), units, pairs, opts)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	assert.Equal(t, 12, groups[0].Size())
	assert.Equal(t, opts.MaxRetries, supplier.calls)
}

func TestGroupBadRegexCountsAsFailure(t *testing.T) {
	var units []models.CodeUnit
	var pairs []models.DuplicatePair
	for i := 0; i < 12; i++ {
		units = append(units, unit(fmt.Sprintf("u%02d", i), "def f(): pass"))
	}
	for i := 1; i < 12; i++ {
		pairs = append(pairs, pairOf(units[0], units[i]))
	}

	supplier := &staticSupplier{pattern: Pattern{Label: "broken", Regex: `def (`}}
	opts := defaultOpts()
	opts.Supplier = supplier

	groups, err := Group(context.Background(), units, pairs, opts)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 12, groups[0].Size())
}

func TestGroupDepthBudget(t *testing.T) {
	// Supplier splits off exactly one member each time; with MaxDepth 2
	// the recursion must stop after two levels even though groups remain
	// oversized.
	var units []models.CodeUnit
	var pairs []models.DuplicatePair
	for i := 0; i < 20; i++ {
		units = append(units, unit(fmt.Sprintf("u%02d", i), fmt.Sprintf("def f%02d(): pass", i)))
	}
	for i := 1; i < 20; i++ {
		pairs = append(pairs, pairOf(units[0], units[i]))
	}

	next := 0
	supplier := supplierFunc(func(_ context.Context, _ []models.CodeUnit) (Pattern, error) {
		p := Pattern{Label: "one", Regex: fmt.Sprintf(`f%02d`, next)}
		next++
		return p, nil
	})
	opts := Options{MaxGroupSize: 5, MaxDepth: 2, MaxRetries: 2, Supplier: supplier}

	groups, err := Group(context.Background(), units, pairs, opts)
	require.NoError(t, err)

	total := 0
	for _, g := range groups {
		total += g.Size()
		assert.LessOrEqual(t, g.Depth, 2)
	}
	assert.Equal(t, 20, total)
}

func TestGroupRejectsBadOptions(t *testing.T) {
	_, err := Group(context.Background(), nil, nil, Options{MaxGroupSize: 1})
	require.Error(t, err)

	var cfgErr *models.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestGroupAverageSimilarity(t *testing.T) {
	a, b, c := unit("a", ""), unit("b", ""), unit("c", "")
	pairs := []models.DuplicatePair{
		{UnitA: a, UnitB: b, Similarity: 1.0},
		{UnitA: b, UnitB: c, Similarity: 0.8},
	}

	groups, err := Group(context.Background(), []models.CodeUnit{a, b, c}, pairs, defaultOpts())
	require.NoError(t, err)
	require.Len(t, groups, 1)

	assert.InDelta(t, 0.9, groups[0].AverageSimilarity, 1e-9)
}

func memberIDs(g models.DuplicateGroup) []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

type supplierFunc func(ctx context.Context, sample []models.CodeUnit) (Pattern, error)

func (f supplierFunc) Propose(ctx context.Context, sample []models.CodeUnit) (Pattern, error) {
	return f(ctx, sample)
}
