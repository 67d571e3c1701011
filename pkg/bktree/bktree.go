// Package bktree implements a Burkhard-Keller tree over fingerprints
// under Hamming distance. The tree answers radius queries in sublinear
// time by pruning subtrees with the triangle inequality: a child at edge
// distance c from a node at distance d0 to the query can only hold
// matches when |c - d0| <= radius.
//
// Nodes live in an append-only arena. Removal tombstones a node in
// place, keeping it as a routing waypoint so every surviving subtree
// stays reachable; Rebuild compacts tombstones away.
package bktree

import (
	"fmt"
	"math/bits"
	"sort"
	"sync"

	"github.com/mimiclab/mimic/pkg/models"
)

// Match is one query hit: a stored unit within the query radius.
type Match struct {
	UnitID   string
	Distance int
}

// Stats describes the shape of the tree.
type Stats struct {
	Size         int `json:"size"`
	Tombstones   int `json:"tombstones"`
	Depth        int `json:"depth"`
	RootChildren int `json:"root_children"`
}

type node struct {
	fp       models.Fingerprint
	removed  bool
	children map[int]int32
}

// Tree is a BK-tree safe for concurrent use: queries take a read lock,
// mutations a write lock. All stored fingerprints share one width.
type Tree struct {
	mu     sync.RWMutex
	width  int
	nodes  []node
	byUnit map[string]int32
	live   int
}

// New creates an empty tree for fingerprints of the given width.
func New(width int) (*Tree, error) {
	if width <= 0 || width > 64 {
		return nil, &models.ConfigurationError{
			Field:  "bktree.width",
			Reason: "must be between 1 and 64",
		}
	}
	return &Tree{
		width:  width,
		byUnit: make(map[string]int32),
	}, nil
}

// Width returns the fingerprint width the tree accepts.
func (t *Tree) Width() int {
	return t.width
}

// Len returns the number of live fingerprints.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Insert adds a fingerprint. Inserting an ID that is already present
// replaces its fingerprint: the old node is tombstoned and the new one
// descends from the root like any other insert.
func (t *Tree) Insert(fp models.Fingerprint) error {
	if fp.Width != t.width {
		return &models.ConfigurationError{
			Field:  "fingerprint.width",
			Reason: fmt.Sprintf("tree holds %d-bit fingerprints, got %d", t.width, fp.Width),
		}
	}
	if fp.UnitID == "" {
		return &models.ConfigurationError{
			Field:  "fingerprint.unit_id",
			Reason: "must not be empty",
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if idx, ok := t.byUnit[fp.UnitID]; ok {
		t.nodes[idx].removed = true
		t.nodes[idx].fp.UnitID = ""
		t.live--
		delete(t.byUnit, fp.UnitID)
	}

	if len(t.nodes) == 0 {
		t.nodes = append(t.nodes, node{fp: fp})
		t.byUnit[fp.UnitID] = 0
		t.live++
		return nil
	}

	cur := int32(0)
	for {
		d := hamming(t.nodes[cur].fp.Bits, fp.Bits)
		if d == 0 && t.nodes[cur].removed && t.nodes[cur].fp.UnitID == "" {
			// Revive a scrubbed tombstone at the exact same point.
			t.nodes[cur].fp = fp
			t.nodes[cur].removed = false
			t.byUnit[fp.UnitID] = cur
			t.live++
			return nil
		}
		child, ok := t.nodes[cur].children[d]
		if !ok {
			idx := int32(len(t.nodes))
			t.nodes = append(t.nodes, node{fp: fp})
			if t.nodes[cur].children == nil {
				t.nodes[cur].children = make(map[int]int32)
			}
			t.nodes[cur].children[d] = idx
			t.byUnit[fp.UnitID] = idx
			t.live++
			return nil
		}
		cur = child
	}
}

// Query returns every live fingerprint within radius of bits, sorted by
// distance then unit ID. A negative radius matches nothing.
func (t *Tree) Query(bits uint64, radius int) []Match {
	if radius < 0 {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.nodes) == 0 {
		return nil
	}

	var matches []Match
	stack := []int32{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[idx]
		d := hamming(n.fp.Bits, bits)
		if d <= radius && !n.removed {
			matches = append(matches, Match{UnitID: n.fp.UnitID, Distance: d})
		}

		// The inclusive bound matters: a child at exactly |d - c| == radius
		// can still hold a match at the radius boundary.
		for c, child := range n.children {
			if abs(d-c) <= radius {
				stack = append(stack, child)
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].UnitID < matches[j].UnitID
	})
	return matches
}

// Remove tombstones a unit's fingerprint. The node keeps routing its
// subtree but stops appearing in query results. Returns false when the
// unit is not present.
func (t *Tree) Remove(unitID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, ok := t.byUnit[unitID]
	if !ok {
		return false
	}
	t.nodes[idx].removed = true
	t.nodes[idx].fp.UnitID = ""
	delete(t.byUnit, unitID)
	t.live--
	return true
}

// Rebuild compacts the tree, re-inserting every live fingerprint into a
// fresh arena and dropping tombstones. Worth calling after bulk removal;
// a tombstone-heavy tree still answers correctly, just slower.
func (t *Tree) Rebuild() {
	t.mu.Lock()
	defer t.mu.Unlock()

	liveFPs := make([]models.Fingerprint, 0, t.live)
	for _, n := range t.nodes {
		if !n.removed {
			liveFPs = append(liveFPs, n.fp)
		}
	}

	t.nodes = t.nodes[:0]
	t.byUnit = make(map[string]int32, len(liveFPs))
	t.live = 0

	for _, fp := range liveFPs {
		if len(t.nodes) == 0 {
			t.nodes = append(t.nodes, node{fp: fp})
			t.byUnit[fp.UnitID] = 0
			t.live++
			continue
		}
		cur := int32(0)
		for {
			d := hamming(t.nodes[cur].fp.Bits, fp.Bits)
			child, ok := t.nodes[cur].children[d]
			if !ok {
				idx := int32(len(t.nodes))
				t.nodes = append(t.nodes, node{fp: fp})
				if t.nodes[cur].children == nil {
					t.nodes[cur].children = make(map[int]int32)
				}
				t.nodes[cur].children[d] = idx
				t.byUnit[fp.UnitID] = idx
				t.live++
				break
			}
			cur = child
		}
	}
}

// Stats reports tree shape for diagnostics.
func (t *Tree) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Stats{
		Size:       t.live,
		Tombstones: len(t.nodes) - t.live,
	}
	if len(t.nodes) > 0 {
		s.RootChildren = len(t.nodes[0].children)
		s.Depth = t.depth(0)
	}
	return s
}

func (t *Tree) depth(idx int32) int {
	max := 0
	for _, child := range t.nodes[idx].children {
		if d := t.depth(child); d > max {
			max = d
		}
	}
	return max + 1
}

// Verify walks every edge and checks that the stored edge distance
// matches the actual Hamming distance between child and parent. A
// mismatch means the structural invariant the pruning relies on is
// broken, and queries could silently miss matches.
func (t *Tree) Verify() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := range t.nodes {
		for c, child := range t.nodes[i].children {
			actual := hamming(t.nodes[i].fp.Bits, t.nodes[child].fp.Bits)
			if actual != c {
				return &models.IndexCorruptionError{
					Detail: fmt.Sprintf("edge labeled %d but actual distance is %d", c, actual),
				}
			}
		}
	}
	return nil
}

func hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
