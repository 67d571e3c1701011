// Package detector orchestrates the duplicate-detection pipeline:
// parsing, fingerprinting, index maintenance, similarity search,
// grouping, and the optional collaborators (persisted store, semantic
// judge, trivial-pattern filter).
package detector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/mimiclab/mimic/internal/fileproc"
	"github.com/mimiclab/mimic/pkg/bktree"
	"github.com/mimiclab/mimic/pkg/config"
	"github.com/mimiclab/mimic/pkg/fingerprint"
	"github.com/mimiclab/mimic/pkg/grouping"
	"github.com/mimiclab/mimic/pkg/models"
	"github.com/mimiclab/mimic/pkg/parser"
)

// Store persists unit fingerprints across runs. LoadAll returns records
// in their original save order so replay rebuilds an equivalent index.
type Store interface {
	Save(ctx context.Context, unit models.CodeUnit, fp models.Fingerprint) error
	LoadAll(ctx context.Context) ([]models.PersistedUnit, error)
}

// Judge renders an optional semantic opinion on a candidate pair.
// Any error means no opinion; the structural score stands.
type Judge interface {
	Evaluate(ctx context.Context, a, b models.CodeUnit) (models.Judgment, error)
}

// Filter excludes trivial units and pairs from reported results. It runs
// strictly after similarity computation, so raw results stay derivable.
type Filter interface {
	ExcludeUnit(u models.CodeUnit) bool
	ExcludePair(a, b models.CodeUnit) bool
}

// Detector is the detection engine. Safe for concurrent use: the index
// serializes writers internally and the unit map is guarded here.
type Detector struct {
	detection config.DetectionConfig
	grouping  config.GroupingConfig

	calc      *fingerprint.Calculator
	extractor *fingerprint.Extractor
	tree      *bktree.Tree

	mu    sync.RWMutex
	units map[string]models.CodeUnit
	fps   map[string]models.Fingerprint

	store    Store
	judge    Judge
	filter   Filter
	supplier grouping.PatternSupplier

	judgeTimeout    time.Duration
	judgeConcurrent int

	onProgress fileproc.ProgressFunc
}

// Option configures a Detector.
type Option func(*Detector)

// WithDetection overrides the detection settings.
func WithDetection(cfg config.DetectionConfig) Option {
	return func(d *Detector) { d.detection = cfg }
}

// WithGrouping overrides the grouping budgets.
func WithGrouping(cfg config.GroupingConfig) Option {
	return func(d *Detector) { d.grouping = cfg }
}

// WithStore attaches a persisted store.
func WithStore(s Store) Option {
	return func(d *Detector) { d.store = s }
}

// WithJudge attaches a semantic judge.
func WithJudge(j Judge, timeout time.Duration, concurrent int) Option {
	return func(d *Detector) {
		d.judge = j
		d.judgeTimeout = timeout
		d.judgeConcurrent = concurrent
	}
}

// WithFilter attaches a result filter.
func WithFilter(f Filter) Option {
	return func(d *Detector) { d.filter = f }
}

// WithPatternSupplier attaches a split-pattern supplier for grouping.
func WithPatternSupplier(s grouping.PatternSupplier) Option {
	return func(d *Detector) { d.supplier = s }
}

// WithProgress attaches a per-file progress callback for batch scans.
func WithProgress(fn fileproc.ProgressFunc) Option {
	return func(d *Detector) { d.onProgress = fn }
}

// New builds a detector, validating the configuration up front.
func New(opts ...Option) (*Detector, error) {
	defaults := config.DefaultConfig()
	d := &Detector{
		detection:       defaults.Detection,
		grouping:        defaults.Grouping,
		units:           make(map[string]models.CodeUnit),
		fps:             make(map[string]models.Fingerprint),
		judgeTimeout:    time.Duration(defaults.Judge.TimeoutSeconds) * time.Second,
		judgeConcurrent: defaults.Judge.MaxConcurrent,
	}
	for _, opt := range opts {
		opt(d)
	}

	cfg := config.DefaultConfig()
	cfg.Detection = d.detection
	cfg.Grouping = d.grouping
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	calc, err := fingerprint.NewCalculator(d.detection.Width)
	if err != nil {
		return nil, err
	}
	tree, err := bktree.New(d.detection.Width)
	if err != nil {
		return nil, err
	}

	d.calc = calc
	d.extractor = fingerprint.NewExtractor()
	d.tree = tree
	return d, nil
}

// Restore replays the persisted store into the index in save order.
// Called once after construction when a store is attached.
func (d *Detector) Restore(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	records, err := d.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	for _, rec := range records {
		if err := d.tree.Insert(rec.Fingerprint); err != nil {
			return err
		}
		d.mu.Lock()
		d.units[rec.Unit.ID] = rec.Unit
		d.fps[rec.Unit.ID] = rec.Fingerprint
		d.mu.Unlock()
	}
	return nil
}

// RegisterUnit fingerprints a unit, reports duplicates already present,
// and adds the unit to the index and store. The duplicate query runs
// before the insert, so a unit never matches itself.
func (d *Detector) RegisterUnit(ctx context.Context, unit models.CodeUnit) (*models.Registration, error) {
	seq, err := d.tokenize(unit)
	if err != nil {
		return nil, err
	}
	return d.register(ctx, unit, seq)
}

func (d *Detector) register(ctx context.Context, unit models.CodeUnit, seq fingerprint.TokenSequence) (*models.Registration, error) {
	if unit.ID == "" {
		unit.ID = models.NewUnitID()
	}

	fp := d.calc.Fingerprint(unit.ID, seq)
	duplicates := d.pairsFor(unit, fp, d.detection.DefaultRadius)

	if d.store != nil {
		if err := d.store.Save(ctx, unit, fp); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
	}
	if err := d.tree.Insert(fp); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.units[unit.ID] = unit
	d.fps[unit.ID] = fp
	d.mu.Unlock()

	return &models.Registration{
		Unit:        unit,
		Fingerprint: fp,
		Duplicates:  d.applyFilter(duplicates),
	}, nil
}

// FindSimilar fingerprints a unit without registering it and returns
// duplicates within radius, filtered, sorted by distance then unit ID.
func (d *Detector) FindSimilar(_ context.Context, unit models.CodeUnit, radius int) ([]models.DuplicatePair, error) {
	if radius < 0 || radius > d.detection.Width {
		return nil, &models.ConfigurationError{
			Field:  "radius",
			Reason: fmt.Sprintf("must be between 0 and width (%d)", d.detection.Width),
		}
	}
	seq, err := d.tokenize(unit)
	if err != nil {
		return nil, err
	}
	fp := d.calc.Fingerprint(unit.ID, seq)
	return d.applyFilter(d.pairsFor(unit, fp, radius)), nil
}

// AdaptiveResult reports the outcome of an adaptive radius search.
type AdaptiveResult struct {
	Pairs    []models.DuplicatePair `json:"pairs"`
	Radius   int                    `json:"radius"`
	BandMet  bool                   `json:"band_met"`
	Attempts int                    `json:"attempts"`
}

// FindSimilarAdaptive binary-searches the radius for a result count
// inside the configured band. When the attempt budget runs out it keeps
// the smallest radius whose result count reached the band's lower
// bound, or the last attempt if none did, and reports BandMet false.
func (d *Detector) FindSimilarAdaptive(_ context.Context, unit models.CodeUnit) (*AdaptiveResult, error) {
	seq, err := d.tokenize(unit)
	if err != nil {
		return nil, err
	}
	fp := d.calc.Fingerprint(unit.ID, seq)

	minResults := d.detection.AdaptiveMinResults
	maxResults := d.detection.AdaptiveMaxResults

	lo, hi := 0, d.detection.Width
	res := &AdaptiveResult{Radius: -1}
	var best []models.DuplicatePair
	bestRadius := -1

	var last []models.DuplicatePair
	lastRadius := 0

	for res.Attempts < d.detection.AdaptiveMaxAttempts && lo <= hi {
		mid := (lo + hi) / 2
		pairs := d.pairsFor(unit, fp, mid)
		res.Attempts++
		last, lastRadius = pairs, mid

		n := len(pairs)
		switch {
		case n >= minResults && n <= maxResults:
			res.Pairs = d.applyFilter(pairs)
			res.Radius = mid
			res.BandMet = true
			return res, nil
		case n < minResults:
			lo = mid + 1
		default:
			// Enough results, maybe too many: remember the smallest such
			// radius and keep shrinking.
			if bestRadius == -1 || mid < bestRadius {
				best, bestRadius = pairs, mid
			}
			hi = mid - 1
		}
	}

	if bestRadius != -1 {
		res.Pairs = d.applyFilter(best)
		res.Radius = bestRadius
	} else {
		res.Pairs = d.applyFilter(last)
		res.Radius = lastRadius
	}
	return res, nil
}

// Exhaustive compares a unit pairwise against an explicit candidate set,
// bypassing the index. Intended for verifying index results.
func (d *Detector) Exhaustive(_ context.Context, unit models.CodeUnit, candidates []models.CodeUnit, radius int) ([]models.DuplicatePair, error) {
	seq, err := d.tokenize(unit)
	if err != nil {
		return nil, err
	}
	fp := d.calc.Fingerprint(unit.ID, seq)

	var pairs []models.DuplicatePair
	for _, cand := range candidates {
		candSeq, err := d.tokenize(cand)
		if err != nil {
			return nil, err
		}
		candFP := d.calc.Fingerprint(cand.ID, candSeq)
		dist, err := fp.Distance(candFP)
		if err != nil {
			return nil, err
		}
		if dist <= radius {
			pairs = append(pairs, d.pair(unit, cand, dist))
		}
	}
	sortPairs(pairs)
	return d.applyFilter(pairs), nil
}

// Units returns a snapshot of every registered unit.
func (d *Detector) Units() []models.CodeUnit {
	d.mu.RLock()
	defer d.mu.RUnlock()
	units := make([]models.CodeUnit, 0, len(d.units))
	for _, u := range d.units {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units
}

// IndexStats exposes the shape of the underlying index.
func (d *Detector) IndexStats() bktree.Stats {
	return d.tree.Stats()
}

// Verify checks the index's structural invariant.
func (d *Detector) Verify() error {
	return d.tree.Verify()
}

// Close releases detector state. The detector is unusable afterwards.
func (d *Detector) Close() {
	d.mu.Lock()
	d.units = nil
	d.fps = nil
	d.mu.Unlock()
}

// tokenize parses a unit's source and extracts its token sequence.
// Parsers are created per call because they are not shareable.
func (d *Detector) tokenize(unit models.CodeUnit) (fingerprint.TokenSequence, error) {
	lang := parser.Language(unit.Language)
	if lang == "" || lang == parser.LangUnknown {
		lang = parser.DetectLanguage(unit.File)
	}
	if lang == parser.LangUnknown {
		return fingerprint.TokenSequence{}, &models.ParseError{
			File: unit.File,
			Unit: unit.QualifiedName,
			Err:  fmt.Errorf("unknown language"),
		}
	}

	p := parser.New()
	defer p.Close()

	res, err := p.Parse([]byte(unit.Source), lang, unit.File)
	if err != nil {
		return fingerprint.TokenSequence{}, &models.ParseError{File: unit.File, Unit: unit.QualifiedName, Err: err}
	}

	// The snippet parses as a small module; prefer the first unit whose
	// kind matches, falling back to the module root.
	units := parser.ExtractUnits(res)
	target := units[0]
	for _, u := range units[1:] {
		if u.Kind == unit.Kind {
			target = u
			break
		}
	}
	return d.extractor.Extract(target, res)
}

// pairsFor queries the index and assembles scored pairs, excluding the
// unit itself.
func (d *Detector) pairsFor(unit models.CodeUnit, fp models.Fingerprint, radius int) []models.DuplicatePair {
	matches := d.tree.Query(fp.Bits, radius)

	d.mu.RLock()
	defer d.mu.RUnlock()

	var pairs []models.DuplicatePair
	for _, m := range matches {
		if m.UnitID == unit.ID {
			continue
		}
		other, ok := d.units[m.UnitID]
		if !ok {
			continue
		}
		pairs = append(pairs, d.pair(unit, other, m.Distance))
	}
	return pairs
}

func (d *Detector) pair(a, b models.CodeUnit, distance int) models.DuplicatePair {
	sim := fingerprint.Similarity(d.detection.Width, distance)
	return models.DuplicatePair{
		UnitA:      a,
		UnitB:      b,
		Distance:   distance,
		Similarity: sim,
		Confidence: d.classify(distance),
	}
}

// classify maps a distance to a confidence band via the configured cut
// points.
func (d *Detector) classify(distance int) models.ConfidenceBand {
	switch {
	case distance <= d.detection.NearIdenticalMax:
		return models.BandNearIdentical
	case distance <= d.detection.StrongMax:
		return models.BandStrong
	default:
		return models.BandWeak
	}
}

// applyFilter drops filtered units and pairs. Scores are already
// computed; the filter only hides, never rescores.
func (d *Detector) applyFilter(pairs []models.DuplicatePair) []models.DuplicatePair {
	if d.filter == nil {
		return pairs
	}
	out := pairs[:0:0]
	for _, p := range pairs {
		if d.filter.ExcludeUnit(p.UnitA) || d.filter.ExcludeUnit(p.UnitB) {
			continue
		}
		if d.filter.ExcludePair(p.UnitA, p.UnitB) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// JudgePairs attaches semantic judgments to pairs with bounded
// concurrency and a per-call timeout. A judge failure leaves the pair's
// structural score standing, with no semantic opinion.
func (d *Detector) JudgePairs(ctx context.Context, pairs []models.DuplicatePair) []models.DuplicatePair {
	if d.judge == nil || len(pairs) == 0 {
		return pairs
	}

	out := make([]models.DuplicatePair, len(pairs))
	copy(out, pairs)

	concurrent := d.judgeConcurrent
	if concurrent <= 0 {
		concurrent = 1
	}

	p := pool.New().WithMaxGoroutines(concurrent)
	for i := range out {
		p.Go(func() {
			callCtx := ctx
			if d.judgeTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, d.judgeTimeout)
				defer cancel()
			}
			judgment, err := d.judge.Evaluate(callCtx, out[i].UnitA, out[i].UnitB)
			if err != nil {
				return
			}
			out[i].Semantic = &judgment
		})
	}
	p.Wait()
	return out
}

func sortPairs(pairs []models.DuplicatePair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Distance != pairs[j].Distance {
			return pairs[i].Distance < pairs[j].Distance
		}
		return pairs[i].UnitB.ID < pairs[j].UnitB.ID
	})
}
