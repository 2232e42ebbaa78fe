package cmd

import (
	"github.com/spf13/cobra"
	mcpserver "github.com/wesm/contractlens/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run MCP server for AI assistant integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This lets an MCP client query the contract snapshot using tools like
search_contracts, aggregate_contracts, related_entities, filter_options,
time_ranges, global_totals and estimate_export.

Add to the client config:
  {
    "mcpServers": {
      "contractlens": {
        "command": "contractlens",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openQueryEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer engine.Close()

		return mcpserver.Serve(cmd.Context(), engine, mcpserver.Options{
			Limits: pageLimits(),
			Widths: exportWidths(),
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
