package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mimiclab/mimic/internal/output"
	"github.com/mimiclab/mimic/pkg/models"
	"github.com/mimiclab/mimic/pkg/parser"
)

func checkCmd() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Check a file or snippet against the index without registering it",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "radius",
				Aliases: []string{"r"},
				Value:   -1,
				Usage:   "Hamming radius 0-64; negative means adaptive search",
			},
			&cli.BoolFlag{
				Name:  "judge",
				Usage: "Ask the semantic judge about each candidate pair (requires judge config)",
			},
		},
		Action: runCheck,
	}
}

func runCheck(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("check requires exactly one file argument")
	}
	path := c.Args().First()

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	lang := parser.DetectLanguage(path)
	if lang == parser.LangUnknown {
		return fmt.Errorf("unsupported language for file: %s", path)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	det, cleanup, err := buildDetector(c.Context, c, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer det.Close()

	probe := models.CodeUnit{
		ID:            models.NewUnitID(),
		Kind:          models.UnitModule,
		Name:          path,
		QualifiedName: path,
		File:          path,
		Language:      string(lang),
		Source:        string(source),
	}

	var pairs []models.DuplicatePair
	radius := c.Int("radius")
	adaptive := radius < 0
	if adaptive {
		res, err := det.FindSimilarAdaptive(c.Context, probe)
		if err != nil {
			return err
		}
		pairs = res.Pairs
		radius = res.Radius
	} else {
		pairs, err = det.FindSimilar(c.Context, probe, radius)
		if err != nil {
			return err
		}
	}

	if c.Bool("judge") {
		pairs = det.JudgePairs(c.Context, pairs)
	}

	formatter, err := output.NewFormatter(output.ParseFormat(cfg.Output.Format), c.String("output"), cfg.Output.Color)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if formatter.Format() != output.FormatText {
		return formatter.Output(struct {
			Radius int                    `json:"radius" toon:"radius"`
			Pairs  []models.DuplicatePair `json:"pairs" toon:"pairs"`
		}{radius, pairs})
	}

	if len(pairs) == 0 {
		formatter.Success("No similar units within radius %d", radius)
		return nil
	}

	var rows [][]string
	for _, p := range pairs {
		row := []string{
			p.UnitB.QualifiedName,
			fmt.Sprintf("%s:%d-%d", p.UnitB.File, p.UnitB.StartLine, p.UnitB.EndLine),
			fmt.Sprintf("%d", p.Distance),
			fmt.Sprintf("%.0f%%", p.Similarity*100),
			output.BandColor(p.Confidence.String(), p.Confidence.String()),
		}
		if p.Semantic != nil {
			row = append(row, fmt.Sprintf("%.0f%% (%s)", p.Semantic.Similarity*100, p.Semantic.Reasoning))
		}
		rows = append(rows, row)
	}

	headers := []string{"Unit", "Location", "Distance", "Similarity", "Confidence"}
	if c.Bool("judge") {
		headers = append(headers, "Judge")
	}

	table := output.NewTable(
		fmt.Sprintf("Similar units (radius %d)", radius),
		headers,
		rows,
		pairs,
	)
	return formatter.Output(table)
}
