package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/mimiclab/mimic/internal/output"
	"github.com/mimiclab/mimic/pkg/models"
)

func groupsCmd() *cli.Command {
	return &cli.Command{
		Name:   "groups",
		Usage:  "Compute duplicate groups across all registered units",
		Action: runGroups,
	}
}

func runGroups(c *cli.Context) error {
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

	formatter, err := output.NewFormatter(output.ParseFormat(cfg.Output.Format), c.String("output"), cfg.Output.Color)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if formatter.Format() != output.FormatText {
		return formatter.Output(struct {
			Groups []models.DuplicateGroup `json:"groups" toon:"groups"`
		}{analysis.Groups})
	}

	if len(analysis.Groups) == 0 {
		color.Green("No duplicate groups")
		return nil
	}

	var sections []output.Section
	for _, g := range analysis.Groups {
		title := fmt.Sprintf("Group %d (%d members, %.0f%% similar)", g.ID, g.Size(), g.AverageSimilarity*100)
		if g.Label != "" {
			title += " - " + g.Label
		}

		var lines []string
		for _, m := range g.Members {
			lines = append(lines, fmt.Sprintf("  %-40s %s:%d-%d", m.QualifiedName, m.File, m.StartLine, m.EndLine))
		}
		sections = append(sections, output.Section{
			Title:   title,
			Content: strings.Join(lines, "\n"),
		})
	}

	root := &output.Section{
		Title:    fmt.Sprintf("Duplicate groups (%d)", len(analysis.Groups)),
		Sections: sections,
		Data:     analysis.Groups,
	}
	return formatter.Output(root)
}
