package detector

import (
	"context"

	"github.com/mimiclab/mimic/pkg/grouping"
	"github.com/mimiclab/mimic/pkg/models"
	"github.com/mimiclab/mimic/pkg/stats"
)

// Analysis is the corpus-wide view of one detection run: every
// above-threshold pair, the groups they form, and summary statistics in
// both raw and filtered variants.
type Analysis struct {
	RawPairs []models.DuplicatePair  `json:"raw_pairs"`
	Pairs    []models.DuplicatePair  `json:"pairs"`
	Groups   []models.DuplicateGroup `json:"groups"`
	Report   stats.Report            `json:"report"`
}

// Analyze computes duplicate pairs across every registered unit, groups
// them, and summarizes. Groups are built from the filtered pairs; the
// raw view is kept alongside for statistics.
func (d *Detector) Analyze(ctx context.Context) (*Analysis, error) {
	units := d.Units()

	d.mu.RLock()
	fps := make(map[string]models.Fingerprint, len(d.fps))
	for id, fp := range d.fps {
		fps[id] = fp
	}
	d.mu.RUnlock()

	// Query per unit; keep each unordered pair once (smaller ID first).
	seen := make(map[[2]string]struct{})
	var raw []models.DuplicatePair
	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fp, ok := fps[unit.ID]
		if !ok {
			continue
		}
		for _, p := range d.pairsFor(unit, fp, d.detection.DefaultRadius) {
			key := [2]string{p.UnitA.ID, p.UnitB.ID}
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			raw = append(raw, p)
		}
	}
	sortPairs(raw)

	filtered := d.applyFilter(raw)

	groupOpts := grouping.Options{
		MaxGroupSize: d.grouping.MaxGroupSize,
		MaxDepth:     d.grouping.MaxDepth,
		MaxRetries:   d.grouping.MaxRetries,
		Supplier:     d.supplier,
	}
	groups, err := grouping.Group(ctx, units, filtered, groupOpts)
	if err != nil {
		return nil, err
	}
	rawGroups, err := grouping.Group(ctx, units, raw, grouping.Options{
		MaxGroupSize: d.grouping.MaxGroupSize,
		MaxDepth:     d.grouping.MaxDepth,
		MaxRetries:   d.grouping.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	return &Analysis{
		RawPairs: raw,
		Pairs:    filtered,
		Groups:   groups,
		Report: stats.Report{
			Raw:      stats.Summarize(len(units), raw, rawGroups),
			Filtered: stats.Summarize(len(units), filtered, groups),
		},
	}, nil
}
