package cmd

import (
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/agentic-research/pagetree/internal/server"
)

// Version is reported to MCP clients.
var Version = "dev"

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve read-only page tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		srv := server.New(cfg, a.model, a.resolver, slog.Default())
		return mcpserver.ServeStdio(srv.MCP(Version))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
