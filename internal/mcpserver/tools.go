package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	toon "github.com/toon-format/toon-go"

	"github.com/mimiclab/mimic/pkg/models"
	"github.com/mimiclab/mimic/pkg/scanner"
)

// RegisterInput describes a fragment to register.
type RegisterInput struct {
	Source   string `json:"source" jsonschema:"Source code of the unit to register."`
	Language string `json:"language,omitempty" jsonschema:"Language hint (go, python, typescript, ...). Inferred from file when empty."`
	Name     string `json:"name,omitempty" jsonschema:"Unit name for reporting."`
	File     string `json:"file,omitempty" jsonschema:"Origin file path, used for language detection and reporting."`
	Kind     string `json:"kind,omitempty" jsonschema:"Unit kind: function (default), class, or module."`
}

// CheckInput describes a similarity probe.
type CheckInput struct {
	Source   string `json:"source" jsonschema:"Source code to check against the index."`
	Language string `json:"language,omitempty" jsonschema:"Language hint. Inferred from file when empty."`
	File     string `json:"file,omitempty" jsonschema:"Origin file path."`
	Radius   *int   `json:"radius,omitempty" jsonschema:"Hamming radius 0-64. Omit for adaptive search."`
}

// ScanInput describes a batch scan.
type ScanInput struct {
	Paths []string `json:"paths,omitempty" jsonschema:"Directories or files to scan. Defaults to current directory."`
}

// GroupsInput has no options yet; groups always cover the whole index.
type GroupsInput struct{}

// StatsInput selects the raw or filtered view.
type StatsInput struct {
	Raw bool `json:"raw,omitempty" jsonschema:"Report unfiltered statistics including trivial units."`
}

func toolResult(data any) (*mcp.CallToolResult, any, error) {
	text, err := toon.Marshal(data, toon.WithIndent(2))
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(text)},
		},
	}, nil, nil
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}, nil, nil
}

func (s *Server) unitFromInput(source, language, name, file, kind string) models.CodeUnit {
	k := models.UnitKind(kind)
	switch k {
	case models.UnitFunction, models.UnitClass, models.UnitModule:
	default:
		k = models.UnitFunction
	}
	if name == "" {
		name = "fragment"
	}
	return models.CodeUnit{
		ID:            models.NewUnitID(),
		Kind:          k,
		Name:          name,
		QualifiedName: name,
		File:          file,
		Language:      language,
		Source:        source,
	}
}

func (s *Server) handleRegisterUnit(ctx context.Context, req *mcp.CallToolRequest, input RegisterInput) (*mcp.CallToolResult, any, error) {
	if input.Source == "" {
		return toolError("source is required")
	}

	unit := s.unitFromInput(input.Source, input.Language, input.Name, input.File, input.Kind)
	reg, err := s.detector.RegisterUnit(ctx, unit)
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(reg)
}

func (s *Server) handleCheckSimilarity(ctx context.Context, req *mcp.CallToolRequest, input CheckInput) (*mcp.CallToolResult, any, error) {
	if input.Source == "" {
		return toolError("source is required")
	}

	unit := s.unitFromInput(input.Source, input.Language, "probe", input.File, "function")

	if input.Radius != nil {
		pairs, err := s.detector.FindSimilar(ctx, unit, *input.Radius)
		if err != nil {
			return toolError(err.Error())
		}
		out := struct {
			Radius int                    `json:"radius" toon:"radius"`
			Pairs  []models.DuplicatePair `json:"pairs" toon:"pairs"`
		}{*input.Radius, pairs}
		return toolResult(out)
	}

	res, err := s.detector.FindSimilarAdaptive(ctx, unit)
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(res)
}

func (s *Server) handleScanPaths(ctx context.Context, req *mcp.CallToolRequest, input ScanInput) (*mcp.CallToolResult, any, error) {
	paths := input.Paths
	if len(paths) == 0 {
		paths = []string{"."}
	}

	sc := scanner.New(s.config)
	var files []string
	for _, p := range paths {
		if ok, err := sc.ScanFile(p); err == nil && ok {
			files = append(files, p)
			continue
		}
		found, err := sc.ScanDir(p)
		if err != nil {
			return toolError(err.Error())
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return toolError("no source files found")
	}

	result, err := s.detector.Scan(ctx, files)
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(result)
}

func (s *Server) handleGetGroups(ctx context.Context, req *mcp.CallToolRequest, input GroupsInput) (*mcp.CallToolResult, any, error) {
	analysis, err := s.detector.Analyze(ctx)
	if err != nil {
		return toolError(err.Error())
	}
	out := struct {
		Groups []models.DuplicateGroup `json:"groups" toon:"groups"`
	}{analysis.Groups}
	return toolResult(out)
}

func (s *Server) handleGetStats(ctx context.Context, req *mcp.CallToolRequest, input StatsInput) (*mcp.CallToolResult, any, error) {
	analysis, err := s.detector.Analyze(ctx)
	if err != nil {
		return toolError(err.Error())
	}
	if input.Raw {
		return toolResult(analysis.Report.Raw)
	}
	return toolResult(analysis.Report.Filtered)
}
