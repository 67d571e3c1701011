package detector

import (
	"context"

	"github.com/mimiclab/mimic/internal/fileproc"
	"github.com/mimiclab/mimic/pkg/fingerprint"
	"github.com/mimiclab/mimic/pkg/models"
	"github.com/mimiclab/mimic/pkg/parser"
)

// fileUnits is the per-file output of the parallel parse stage.
type fileUnits struct {
	path     string
	units    []models.CodeUnit
	seqs     []fingerprint.TokenSequence
	failures []models.UnitFailure
}

// Scan parses files in parallel, extracts their units, and registers
// every extractable unit. A file or unit that fails is recorded in the
// result and never aborts the batch.
func (d *Detector) Scan(ctx context.Context, files []string) (*models.ScanResult, error) {
	result := &models.ScanResult{FilesSeen: len(files)}

	// Parse and tokenize in parallel; registration below is sequential
	// because index insertion serializes anyway.
	parsed, procErrs := fileproc.MapFiles(ctx, files, d.detection.Workers,
		func(p *parser.Parser, path string) (fileUnits, error) {
			return d.processFile(p, path)
		}, d.onProgress)

	if procErrs != nil {
		for _, pe := range procErrs.Errors {
			result.Failures = append(result.Failures, models.UnitFailure{
				File:   pe.Path,
				Reason: pe.Err.Error(),
			})
		}
	}

	for _, fu := range parsed {
		result.Failures = append(result.Failures, fu.failures...)
		for i, unit := range fu.units {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			reg, err := d.register(ctx, unit, fu.seqs[i])
			if err != nil {
				// Store failures are fatal: continuing would silently
				// diverge the index from the persisted state.
				return result, err
			}
			result.Registered = append(result.Registered, *reg)
		}
	}

	return result, nil
}

// processFile parses one file and tokenizes its units. Unit-level
// failures are collected; only a file-level parse failure is returned
// as an error.
func (d *Detector) processFile(p *parser.Parser, path string) (fileUnits, error) {
	res, err := p.ParseFile(path)
	if err != nil {
		return fileUnits{}, err
	}

	out := fileUnits{path: path}
	for _, pu := range parser.ExtractUnits(res) {
		seq, err := d.extractor.Extract(pu, res)
		if err != nil {
			out.failures = append(out.failures, models.UnitFailure{
				File:   path,
				Unit:   pu.QualifiedName,
				Reason: err.Error(),
			})
			continue
		}
		out.units = append(out.units, models.CodeUnit{
			ID:            models.NewUnitID(),
			Kind:          pu.Kind,
			Name:          pu.Name,
			QualifiedName: pu.QualifiedName,
			File:          path,
			StartLine:     pu.StartLine,
			EndLine:       pu.EndLine,
			Language:      string(res.Language),
			Source:        parser.NodeText(pu.Node, res.Source),
		})
		out.seqs = append(out.seqs, seq)
	}
	return out, nil
}
