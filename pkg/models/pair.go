package models

// ConfidenceBand buckets a duplicate pair by how close the fingerprints are.
type ConfidenceBand string

const (
	BandNearIdentical ConfidenceBand = "near-identical"
	BandStrong        ConfidenceBand = "strong"
	BandWeak          ConfidenceBand = "weak"
)

// String returns the string representation.
func (b ConfidenceBand) String() string {
	return string(b)
}

// Judgment is an optional semantic opinion about a pair, produced by an
// external judge. Absence of a judgment means the structural score stands.
type Judgment struct {
	Similarity float64 `json:"similarity"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// DuplicatePair is a detected near-duplicate relationship between two units.
type DuplicatePair struct {
	UnitA      CodeUnit       `json:"unit_a"`
	UnitB      CodeUnit       `json:"unit_b"`
	Distance   int            `json:"distance"`
	Similarity float64        `json:"similarity"`
	Confidence ConfidenceBand `json:"confidence"`
	Semantic   *Judgment      `json:"semantic,omitempty"`
}

// DuplicateGroup is a maximal set of units transitively connected by
// above-threshold similarity edges. Groups are recomputed per detection
// run and are read-only outputs.
type DuplicateGroup struct {
	ID                uint64     `json:"id"`
	Members           []CodeUnit `json:"members"`
	Label             string     `json:"label,omitempty"`
	Pattern           string     `json:"pattern,omitempty"`
	Depth             int        `json:"depth"`
	AverageSimilarity float64    `json:"average_similarity"`
}

// Size returns the number of member units.
func (g DuplicateGroup) Size() int {
	return len(g.Members)
}

// Registration is the result of registering one unit with the detector.
type Registration struct {
	Unit        CodeUnit        `json:"unit"`
	Fingerprint Fingerprint     `json:"fingerprint"`
	Duplicates  []DuplicatePair `json:"duplicates,omitempty"`
}

// UnitFailure records one unit (or file) that could not be processed
// during a batch scan. A failure never aborts the batch.
type UnitFailure struct {
	File   string `json:"file"`
	Unit   string `json:"unit,omitempty"`
	Reason string `json:"reason"`
}

// ScanResult enumerates both successes and per-unit failures of a batch
// scan over a corpus.
type ScanResult struct {
	Registered []Registration `json:"registered"`
	Failures   []UnitFailure  `json:"failures,omitempty"`
	FilesSeen  int            `json:"files_seen"`
}
