package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/mimiclab/mimic/internal/filter"
	"github.com/mimiclab/mimic/internal/judge"
	"github.com/mimiclab/mimic/internal/store"
	"github.com/mimiclab/mimic/pkg/config"
	"github.com/mimiclab/mimic/pkg/detector"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

func main() {
	app := &cli.App{
		Name:    "mimic",
		Usage:   "Structural code fingerprinting and near-duplicate detection",
		Version: version,
		Description: `Mimic fingerprints functions, classes, and modules with structural
SimHash signatures and finds near-duplicates across a corpus, so that
generated code can be checked against what already exists.

Supports: Go, Rust, Python, TypeScript, JavaScript, Java, C, C++, C#, Ruby, PHP, Bash`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"MIMIC_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, markdown, toon",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to file",
			},
			&cli.BoolFlag{
				Name:  "no-store",
				Usage: "Run without the persisted fingerprint store",
			},
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Include trivial units normally hidden by the result filter",
			},
		},
		Commands: []*cli.Command{
			scanCmd(),
			checkCmd(),
			groupsCmd(),
			statsCmd(),
			mcpCmd(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// loadConfig loads the configured or discovered config file.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrDefault()
	}

	if format := c.String("format"); format != "" {
		cfg.Output.Format = format
	}
	if c.Bool("no-store") {
		cfg.Store.Enabled = false
	}
	return cfg, nil
}

// buildDetector wires a detector from config: store, filter, and the
// optional judge and pattern supplier. The returned cleanup closes
// whatever was opened.
func buildDetector(ctx context.Context, c *cli.Context, cfg *config.Config, opts ...detector.Option) (*detector.Detector, func(), error) {
	cleanup := func() {}

	opts = append(opts,
		detector.WithDetection(cfg.Detection),
		detector.WithGrouping(cfg.Grouping),
	)

	if !c.Bool("raw") {
		opts = append(opts, detector.WithFilter(filter.New()))
	}

	if cfg.Store.Enabled {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open store: %w", err)
		}
		cleanup = func() { st.Close() }
		opts = append(opts, detector.WithStore(st))
	}

	if cfg.Judge.Enabled {
		client, err := judge.NewClient(cfg.Judge)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		opts = append(opts,
			detector.WithJudge(client, time.Duration(cfg.Judge.TimeoutSeconds)*time.Second, cfg.Judge.MaxConcurrent),
			detector.WithPatternSupplier(client),
		)
	}

	det, err := detector.New(opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := det.Restore(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return det, cleanup, nil
}

// getPaths returns positional args, defaulting to the current directory.
func getPaths(c *cli.Context) []string {
	if c.Args().Len() > 0 {
		return c.Args().Slice()
	}
	return []string{"."}
}
