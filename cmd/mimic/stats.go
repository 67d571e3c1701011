package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mimiclab/mimic/internal/output"
)

func statsCmd() *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Summarize corpus duplication statistics",
		Action: runStats,
	}
}

func runStats(c *cli.Context) error {
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

	analysis, err := det.Analyze(c.Context)
	if err != nil {
		return err
	}

	summary := analysis.Report.Filtered
	if c.Bool("raw") {
		summary = analysis.Report.Raw
	}

	formatter, err := output.NewFormatter(output.ParseFormat(cfg.Output.Format), c.String("output"), cfg.Output.Color)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if formatter.Format() != output.FormatText {
		return formatter.Output(summary)
	}

	rows := [][]string{
		{"Units", fmt.Sprintf("%d", summary.TotalUnits)},
		{"Duplicate pairs", fmt.Sprintf("%d", summary.PairCount)},
		{"Groups", fmt.Sprintf("%d", summary.GroupCount)},
		{"Largest group", fmt.Sprintf("%d", summary.LargestGroup)},
		{"Duplication ratio", fmt.Sprintf("%.1f%%", summary.DuplicationRatio*100)},
		{"Mean similarity", fmt.Sprintf("%.2f", summary.MeanSimilarity)},
		{"P50 similarity", fmt.Sprintf("%.2f", summary.P50Similarity)},
		{"P95 similarity", fmt.Sprintf("%.2f", summary.P95Similarity)},
	}
	for band, count := range summary.BandCounts {
		rows = append(rows, []string{
			output.BandColor(band, band+" pairs"),
			fmt.Sprintf("%d", count),
		})
	}

	table := output.NewTable("Corpus statistics", []string{"Metric", "Value"}, rows, summary)
	if err := formatter.Output(table); err != nil {
		return err
	}

	if len(summary.Hotspots) > 0 {
		var hotRows [][]string
		for _, h := range summary.Hotspots {
			hotRows = append(hotRows, []string{h.File, fmt.Sprintf("%d", h.Pairs)})
		}
		hotTable := output.NewTable("Hotspots", []string{"File", "Pairs"}, hotRows, summary.Hotspots)
		return formatter.Output(hotTable)
	}
	return nil
}
