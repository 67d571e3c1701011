package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/mimiclab/mimic/internal/output"
	"github.com/mimiclab/mimic/internal/progress"
	"github.com/mimiclab/mimic/pkg/detector"
	"github.com/mimiclab/mimic/pkg/scanner"
)

func scanCmd() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Scan paths, register every code unit, and report duplicates",
		ArgsUsage: "[path...]",
		Action:    runScan,
	}
}

func runScan(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	sc := scanner.New(cfg)
	var files []string
	for _, path := range getPaths(c) {
		if ok, scanErr := sc.ScanFile(path); scanErr == nil && ok {
			files = append(files, path)
			continue
		}
		found, scanErr := sc.ScanDir(path)
		if scanErr != nil {
			return scanErr
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		color.Yellow("No source files found")
		return nil
	}

	tracker := progress.NewTracker("Scanning...", len(files))
	det, cleanup, err := buildDetector(c.Context, c, cfg, detector.WithProgress(tracker.Tick))
	if err != nil {
		tracker.FinishError(err)
		return err
	}
	defer cleanup()
	defer det.Close()

	result, err := det.Scan(c.Context, files)
	tracker.FinishSuccess()
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	formatter, err := output.NewFormatter(output.ParseFormat(cfg.Output.Format), c.String("output"), cfg.Output.Color)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if formatter.Format() != output.FormatText {
		return formatter.Output(result)
	}

	duplicateCount := 0
	var rows [][]string
	for _, reg := range result.Registered {
		for _, dup := range reg.Duplicates {
			duplicateCount++
			rows = append(rows, []string{
				fmt.Sprintf("%s:%d-%d", reg.Unit.File, reg.Unit.StartLine, reg.Unit.EndLine),
				fmt.Sprintf("%s:%d-%d", dup.UnitB.File, dup.UnitB.StartLine, dup.UnitB.EndLine),
				fmt.Sprintf("%d", dup.Distance),
				fmt.Sprintf("%.0f%%", dup.Similarity*100),
				output.BandColor(dup.Confidence.String(), dup.Confidence.String()),
			})
		}
	}

	formatter.Info("Registered %d units from %d files", len(result.Registered), result.FilesSeen)
	if len(result.Failures) > 0 {
		formatter.Warning("%d units could not be analyzed", len(result.Failures))
	}

	if duplicateCount == 0 {
		formatter.Success("No duplicates found")
		return nil
	}

	table := output.NewTable(
		fmt.Sprintf("Duplicates (%d)", duplicateCount),
		[]string{"Unit", "Duplicate Of", "Distance", "Similarity", "Confidence"},
		rows,
		result,
	)
	return formatter.Output(table)
}
