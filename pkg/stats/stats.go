// Package stats computes corpus-level duplicate statistics from detected
// pairs and groups.
package stats

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/mimiclab/mimic/pkg/models"
)

// Summary aggregates one detection run.
type Summary struct {
	TotalUnits       int                    `json:"total_units"`
	PairCount        int                    `json:"pair_count"`
	GroupCount       int                    `json:"group_count"`
	BandCounts       map[string]int         `json:"band_counts"`
	MeanSimilarity   float64                `json:"mean_similarity"`
	P50Similarity    float64                `json:"p50_similarity"`
	P95Similarity    float64                `json:"p95_similarity"`
	DuplicationRatio float64                `json:"duplication_ratio"`
	LargestGroup     int                    `json:"largest_group"`
	Hotspots         []Hotspot              `json:"hotspots,omitempty"`
	Groups           []models.DuplicateGroup `json:"groups,omitempty"`
}

// Hotspot is a file ranked by how many duplicate pairs touch it.
type Hotspot struct {
	File  string `json:"file"`
	Pairs int    `json:"pairs"`
}

// Report carries both views of the same run: every detected pair, and
// the set that survived the trivial-pattern filter. Filtering happens
// after scoring, so the raw view is always available.
type Report struct {
	Raw      Summary `json:"raw"`
	Filtered Summary `json:"filtered"`
}

// Summarize computes a summary over pairs and groups. totalUnits is the
// number of units scanned, used for the duplication ratio.
func Summarize(totalUnits int, pairs []models.DuplicatePair, groups []models.DuplicateGroup) Summary {
	s := Summary{
		TotalUnits: totalUnits,
		PairCount:  len(pairs),
		GroupCount: len(groups),
		BandCounts: map[string]int{
			models.BandNearIdentical.String(): 0,
			models.BandStrong.String():        0,
			models.BandWeak.String():          0,
		},
		Groups: groups,
	}

	if len(pairs) > 0 {
		sims := make([]float64, len(pairs))
		for i, p := range pairs {
			sims[i] = p.Similarity
			s.BandCounts[p.Confidence.String()]++
		}
		// Quantile requires sorted input.
		sort.Float64s(sims)
		s.MeanSimilarity = stat.Mean(sims, nil)
		s.P50Similarity = stat.Quantile(0.5, stat.Empirical, sims, nil)
		s.P95Similarity = stat.Quantile(0.95, stat.Empirical, sims, nil)
	}

	duplicated := make(map[string]struct{})
	for _, g := range groups {
		if g.Size() > s.LargestGroup {
			s.LargestGroup = g.Size()
		}
		for _, m := range g.Members {
			duplicated[m.ID] = struct{}{}
		}
	}
	if totalUnits > 0 {
		s.DuplicationRatio = float64(len(duplicated)) / float64(totalUnits)
	}

	s.Hotspots = hotspots(pairs, 10)
	return s
}

// hotspots ranks files by duplicate-pair involvement, top n.
func hotspots(pairs []models.DuplicatePair, n int) []Hotspot {
	counts := make(map[string]int)
	for _, p := range pairs {
		counts[p.UnitA.File]++
		if p.UnitB.File != p.UnitA.File {
			counts[p.UnitB.File]++
		}
	}

	out := make([]Hotspot, 0, len(counts))
	for file, c := range counts {
		out = append(out, Hotspot{File: file, Pairs: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pairs != out[j].Pairs {
			return out[i].Pairs > out[j].Pairs
		}
		return out[i].File < out[j].File
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
