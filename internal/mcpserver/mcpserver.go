// Package mcpserver exposes the detection engine over MCP stdio so
// code-generation agents can check candidate implementations against
// the corpus before emitting them.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mimiclab/mimic/pkg/config"
	"github.com/mimiclab/mimic/pkg/detector"
)

// Server wraps the MCP server around one long-lived detector, so units
// registered in one tool call are visible to the next.
type Server struct {
	server   *mcp.Server
	detector *detector.Detector
	config   *config.Config
}

// NewServer creates an MCP server with all mimic tools registered.
func NewServer(version string, det *detector.Detector, cfg *config.Config) *Server {
	if version == "" {
		version = "dev"
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "mimic",
			Version: version,
		},
		nil,
	)

	s := &Server{server: server, detector: det, config: cfg}
	s.registerTools()
	return s
}

// Run starts the MCP server over stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// registerTools adds the mimic tools to the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "register_unit",
		Description: "Register a code fragment in the duplicate index and report " +
			"near-duplicates already present. Use after emitting new code.",
	}, s.handleRegisterUnit)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "check_similarity",
		Description: "Check a code fragment against the index without registering it. " +
			"Returns structurally similar units within the given Hamming radius, " +
			"or an adaptively chosen radius when none is given.",
	}, s.handleCheckSimilarity)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "scan_paths",
		Description: "Scan directories or files, register every extractable code unit, " +
			"and report duplicates found during registration.",
	}, s.handleScanPaths)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "get_groups",
		Description: "Compute duplicate groups across all registered units: connected " +
			"components of near-duplicate pairs, large groups split where possible.",
	}, s.handleGetGroups)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "get_stats",
		Description: "Summarize the corpus: pair and group counts, per-band counts, " +
			"similarity percentiles, duplication ratio, and per-file hotspots.",
	}, s.handleGetStats)
}
