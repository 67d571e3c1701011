package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mimiclab/mimic/internal/mcpserver"
)

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Start MCP (Model Context Protocol) server for LLM tool integration",
		Description: `Starts an MCP server over stdio transport that exposes the duplicate
detector as tools that LLMs can invoke. This lets AI assistants check
code they are about to generate against what already exists in the
corpus before writing it.

To use with Claude Desktop, add to your config:
  {
    "mcpServers": {
      "mimic": {
        "command": "mimic",
        "args": ["mcp"]
      }
    }
  }

Available tools:
  - register_unit      Fingerprint a snippet and add it to the index
  - check_similarity   Find near-duplicates of a snippet without registering it
  - scan_paths         Scan files or directories and register every unit
  - get_groups         Compute duplicate groups across registered units
  - get_stats          Summarize corpus duplication statistics`,
		Action: runMCPCmd,
	}
}

func runMCPCmd(c *cli.Context) error {
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

	server := mcpserver.NewServer(version, det, cfg)
	return server.Run(c.Context)
}
