// Package config loads and validates mimic configuration. Validation is
// fail-fast: a bad value is a construction-time error, never a runtime
// surprise.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/mimiclab/mimic/pkg/models"
)

// Config holds all configuration options for mimic.
type Config struct {
	// Fingerprinting and similarity search
	Detection DetectionConfig `koanf:"detection"`

	// Duplicate grouping and bounded splitting
	Grouping GroupingConfig `koanf:"grouping"`

	// Optional LLM semantic judge
	Judge JudgeConfig `koanf:"judge"`

	// Fingerprint persistence
	Store StoreConfig `koanf:"store"`

	// File exclusion patterns
	Exclude ExcludeConfig `koanf:"exclude"`

	// Output settings
	Output OutputConfig `koanf:"output"`
}

// DetectionConfig controls fingerprinting and the similarity search.
type DetectionConfig struct {
	Width         int `koanf:"width"`          // fingerprint width in bits
	DefaultRadius int `koanf:"default_radius"` // Hamming radius for plain queries
	Workers       int `koanf:"workers"`        // parallel scan workers, 0 = NumCPU

	// Adaptive radius search
	AdaptiveMinResults  int `koanf:"adaptive_min_results"`
	AdaptiveMaxResults  int `koanf:"adaptive_max_results"`
	AdaptiveMaxAttempts int `koanf:"adaptive_max_attempts"`

	// Confidence band cut points, as Hamming distances
	NearIdenticalMax int `koanf:"near_identical_max"`
	StrongMax        int `koanf:"strong_max"`
}

// GroupingConfig bounds the group-splitting recursion.
type GroupingConfig struct {
	MaxGroupSize int `koanf:"max_group_size"`
	MaxDepth     int `koanf:"max_depth"`
	MaxRetries   int `koanf:"max_retries"`
}

// JudgeConfig configures the optional semantic judge. Disabled by
// default; when enabled it speaks to any OpenAI-compatible endpoint,
// including a local Ollama server.
type JudgeConfig struct {
	Enabled        bool   `koanf:"enabled"`
	BaseURL        string `koanf:"base_url"`
	Model          string `koanf:"model"`
	APIKeyEnv      string `koanf:"api_key_env"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
	MaxConcurrent  int    `koanf:"max_concurrent"`
}

// StoreConfig configures fingerprint persistence.
type StoreConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// ExcludeConfig defines file exclusion patterns.
type ExcludeConfig struct {
	Patterns   []string `koanf:"patterns"`
	Extensions []string `koanf:"extensions"`
	Dirs       []string `koanf:"dirs"`
	Gitignore  bool     `koanf:"gitignore"`
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format"` // text, json, markdown, toon
	Color   bool   `koanf:"color"`
	Verbose bool   `koanf:"verbose"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Detection: DetectionConfig{
			Width:               64,
			DefaultRadius:       10,
			Workers:             0,
			AdaptiveMinResults:  3,
			AdaptiveMaxResults:  20,
			AdaptiveMaxAttempts: 7,
			NearIdenticalMax:    3,
			StrongMax:           10,
		},
		Grouping: GroupingConfig{
			MaxGroupSize: 10,
			MaxDepth:     3,
			MaxRetries:   2,
		},
		Judge: JudgeConfig{
			Enabled:        false,
			BaseURL:        "",
			Model:          "gpt-4o-mini",
			APIKeyEnv:      "OPENAI_API_KEY",
			TimeoutSeconds: 30,
			MaxConcurrent:  4,
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    ".mimic/fingerprints.db",
		},
		Exclude: ExcludeConfig{
			Patterns: []string{
				"*_test.go",
				"*_test.ts",
				"*.min.js",
				"*.min.css",
			},
			Extensions: []string{
				".lock",
				".sum",
			},
			Dirs: []string{
				"vendor",
				"node_modules",
				".git",
				".mimic",
				"dist",
				"build",
				"__pycache__",
			},
			Gitignore: true,
		},
		Output: OutputConfig{
			Format:  "text",
			Color:   true,
			Verbose: false,
		},
	}
}

// Load loads configuration from a file and validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault tries standard locations or returns defaults.
func LoadOrDefault() *Config {
	configNames := []string{
		"mimic.toml",
		"mimic.yaml",
		"mimic.yml",
		"mimic.json",
		".mimic.toml",
		".mimic.yaml",
		".mimic.yml",
		".mimic.json",
	}
	searchDirs := []string{".", ".mimic"}

	for _, dir := range searchDirs {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				cfg, err := Load(path)
				if err == nil {
					return cfg
				}
			}
		}
	}

	return DefaultConfig()
}

// Validate checks every setting and returns the first violation as a
// ConfigurationError.
func (c *Config) Validate() error {
	d := c.Detection
	if d.Width <= 0 || d.Width > 64 || d.Width%8 != 0 {
		return &models.ConfigurationError{
			Field:  "detection.width",
			Reason: "must be a positive multiple of 8, at most 64",
		}
	}
	if d.DefaultRadius < 0 || d.DefaultRadius > d.Width {
		return &models.ConfigurationError{
			Field:  "detection.default_radius",
			Reason: fmt.Sprintf("must be between 0 and width (%d)", d.Width),
		}
	}
	if d.Workers < 0 {
		return &models.ConfigurationError{
			Field:  "detection.workers",
			Reason: "must not be negative",
		}
	}
	if d.AdaptiveMinResults < 1 || d.AdaptiveMaxResults < d.AdaptiveMinResults {
		return &models.ConfigurationError{
			Field:  "detection.adaptive_max_results",
			Reason: "result band must satisfy 1 <= min <= max",
		}
	}
	if d.AdaptiveMaxAttempts < 1 {
		return &models.ConfigurationError{
			Field:  "detection.adaptive_max_attempts",
			Reason: "must be at least 1",
		}
	}
	if d.NearIdenticalMax < 0 || d.StrongMax <= d.NearIdenticalMax || d.StrongMax > d.Width {
		return &models.ConfigurationError{
			Field:  "detection.strong_max",
			Reason: "band cut points must satisfy 0 <= near_identical_max < strong_max <= width",
		}
	}

	g := c.Grouping
	if g.MaxGroupSize < 2 {
		return &models.ConfigurationError{
			Field:  "grouping.max_group_size",
			Reason: "must be at least 2",
		}
	}
	if g.MaxDepth < 1 || g.MaxRetries < 1 {
		return &models.ConfigurationError{
			Field:  "grouping.max_depth",
			Reason: "split budgets must be at least 1",
		}
	}

	j := c.Judge
	if j.Enabled {
		if j.Model == "" {
			return &models.ConfigurationError{
				Field:  "judge.model",
				Reason: "must be set when the judge is enabled",
			}
		}
		if j.TimeoutSeconds < 1 || j.MaxConcurrent < 1 {
			return &models.ConfigurationError{
				Field:  "judge.timeout_seconds",
				Reason: "timeout and concurrency must be at least 1",
			}
		}
	}

	if c.Store.Enabled && c.Store.Path == "" {
		return &models.ConfigurationError{
			Field:  "store.path",
			Reason: "must be set when the store is enabled",
		}
	}

	switch c.Output.Format {
	case "text", "json", "markdown", "toon":
	default:
		return &models.ConfigurationError{
			Field:  "output.format",
			Reason: "must be one of text, json, markdown, toon",
		}
	}

	return nil
}

// ShouldExclude checks if a path should be excluded from analysis.
func (c *Config) ShouldExclude(path string) bool {
	for _, dir := range c.Exclude.Dirs {
		if strings.Contains(path, string(filepath.Separator)+dir+string(filepath.Separator)) ||
			strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}

	ext := filepath.Ext(path)
	for _, excludeExt := range c.Exclude.Extensions {
		if ext == excludeExt {
			return true
		}
	}

	base := filepath.Base(path)
	for _, pattern := range c.Exclude.Patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}

	return false
}
