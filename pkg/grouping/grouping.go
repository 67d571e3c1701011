// Package grouping builds duplicate groups from detected pairs: connected
// components over the similarity graph, with oversized components split
// by an externally supplied pattern under a strict recursion budget.
package grouping

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/mimiclab/mimic/pkg/models"
)

// Pattern is a proposed dividing line for an oversized group: members
// whose source matches the expression go one way, the rest the other.
type Pattern struct {
	Label string
	Regex string
}

// PatternSupplier proposes a split pattern from a sample of group
// members. Implementations may be LLM-backed; errors and non-compiling
// patterns are treated as a failed attempt, never a grouping failure.
type PatternSupplier interface {
	Propose(ctx context.Context, sample []models.CodeUnit) (Pattern, error)
}

// Options bounds group size and the splitting recursion.
type Options struct {
	MaxGroupSize int
	MaxDepth     int
	MaxRetries   int
	Supplier     PatternSupplier

	// SampleSize caps how many members are shown to the supplier.
	SampleSize int
}

const defaultSampleSize = 5

// Group computes duplicate groups for one detection run. Pairs whose
// units are not in the unit set are skipped. Output is deterministic for
// a given unit and pair set, regardless of pair order: members sort by
// unit ID and groups by their first member.
func Group(ctx context.Context, units []models.CodeUnit, pairs []models.DuplicatePair, opts Options) ([]models.DuplicateGroup, error) {
	if opts.MaxGroupSize < 2 {
		return nil, &models.ConfigurationError{
			Field:  "grouping.max_group_size",
			Reason: "must be at least 2",
		}
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = defaultSampleSize
	}

	// Dense ordinals in unit-ID order make the bitmaps and the output
	// independent of input ordering.
	ordered := make([]models.CodeUnit, len(units))
	copy(ordered, units)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	ordinal := make(map[string]uint32, len(ordered))
	for i, u := range ordered {
		ordinal[u.ID] = uint32(i)
	}

	uf := newUnionFind(len(ordered))
	for _, p := range pairs {
		a, okA := ordinal[p.UnitA.ID]
		b, okB := ordinal[p.UnitB.ID]
		if okA && okB {
			uf.union(a, b)
		}
	}

	// Collect components of size >= 2 as bitmaps.
	components := make(map[uint32]*roaring.Bitmap)
	for i := range ordered {
		root := uf.find(uint32(i))
		bm, ok := components[root]
		if !ok {
			bm = roaring.New()
			components[root] = bm
		}
		bm.Add(uint32(i))
	}

	roots := make([]uint32, 0, len(components))
	for root, bm := range components {
		if bm.GetCardinality() >= 2 {
			roots = append(roots, root)
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		return components[roots[i]].Minimum() < components[roots[j]].Minimum()
	})

	splitter := &splitter{
		units:   ordered,
		pairs:   pairs,
		ordinal: ordinal,
		opts:    opts,
	}

	var groups []models.DuplicateGroup
	for _, root := range roots {
		split, err := splitter.run(ctx, components[root])
		if err != nil {
			return nil, err
		}
		groups = append(groups, split...)
	}

	for i := range groups {
		groups[i].ID = uint64(i + 1)
	}
	return groups, nil
}

type splitter struct {
	units   []models.CodeUnit
	pairs   []models.DuplicatePair
	ordinal map[string]uint32
	opts    Options
}

type workItem struct {
	members *roaring.Bitmap
	depth   int
	label   string
	pattern string
}

// run splits one component with an iterative work queue. Depth is
// checked before any supplier call, so a chain of effective splits makes
// at most MaxDepth levels and each level spends at most MaxRetries
// supplier calls. An exhausted budget emits the group as-is.
func (s *splitter) run(ctx context.Context, component *roaring.Bitmap) ([]models.DuplicateGroup, error) {
	var out []models.DuplicateGroup
	queue := []workItem{{members: component}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		size := int(item.members.GetCardinality())
		if size <= s.opts.MaxGroupSize || s.opts.Supplier == nil || item.depth >= s.opts.MaxDepth {
			out = append(out, s.emit(item))
			continue
		}

		matched, unmatched, pat, ok := s.trySplit(ctx, item.members)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, s.emit(item))
			continue
		}

		queue = append(queue,
			workItem{members: matched, depth: item.depth + 1, label: pat.Label, pattern: pat.Regex},
			workItem{members: unmatched, depth: item.depth + 1, label: negateLabel(pat.Label), pattern: pat.Regex},
		)
	}

	return out, nil
}

// trySplit asks the supplier for a pattern up to MaxRetries times and
// bisects the members. A split counts only when both sides are
// non-empty; an empty side means the pattern did not discriminate.
func (s *splitter) trySplit(ctx context.Context, members *roaring.Bitmap) (*roaring.Bitmap, *roaring.Bitmap, Pattern, bool) {
	sample := s.sample(members)

	for attempt := 0; attempt < s.opts.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, nil, Pattern{}, false
		}

		pat, err := s.opts.Supplier.Propose(ctx, sample)
		if err != nil {
			continue
		}
		re, err := regexp.Compile(pat.Regex)
		if err != nil {
			continue
		}

		matched := roaring.New()
		unmatched := roaring.New()
		it := members.Iterator()
		for it.HasNext() {
			ord := it.Next()
			if re.MatchString(s.units[ord].Source) {
				matched.Add(ord)
			} else {
				unmatched.Add(ord)
			}
		}

		if matched.IsEmpty() || unmatched.IsEmpty() {
			continue
		}
		return matched, unmatched, pat, true
	}

	return nil, nil, Pattern{}, false
}

func (s *splitter) sample(members *roaring.Bitmap) []models.CodeUnit {
	n := s.opts.SampleSize
	sample := make([]models.CodeUnit, 0, n)
	it := members.Iterator()
	for it.HasNext() && len(sample) < n {
		sample = append(sample, s.units[it.Next()])
	}
	return sample
}

func (s *splitter) emit(item workItem) models.DuplicateGroup {
	g := models.DuplicateGroup{
		Label:   item.label,
		Pattern: item.pattern,
		Depth:   item.depth,
	}
	it := item.members.Iterator()
	for it.HasNext() {
		g.Members = append(g.Members, s.units[it.Next()])
	}
	g.AverageSimilarity = s.internalSimilarity(item.members)
	return g
}

// internalSimilarity averages the similarity of pairs with both ends in
// the member set.
func (s *splitter) internalSimilarity(members *roaring.Bitmap) float64 {
	sum := 0.0
	n := 0
	for _, p := range s.pairs {
		a, okA := s.ordinal[p.UnitA.ID]
		b, okB := s.ordinal[p.UnitB.ID]
		if okA && okB && members.Contains(a) && members.Contains(b) {
			sum += p.Similarity
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func negateLabel(label string) string {
	if label == "" {
		return ""
	}
	return fmt.Sprintf("not %s", label)
}

// unionFind with path compression and union by size.
type unionFind struct {
	parent []uint32
	size   []uint32
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]uint32, n),
		size:   make([]uint32, n),
	}
	for i := range uf.parent {
		uf.parent[i] = uint32(i)
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b uint32) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	// Tie-break by root index keeps the forest shape edge-order independent
	// enough for stable components; output ordering is resorted anyway.
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}
