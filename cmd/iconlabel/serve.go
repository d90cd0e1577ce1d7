package main

import (
	"github.com/spf13/cobra"

	"github.com/ironsheep/icon-autolabel/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdin/stdout",
	Long: `Start the MCP (Model Context Protocol) server.

The reference index is built once at startup; the server then answers
JSON-RPC requests on stdin and writes responses to stdout until stdin
closes or the process is interrupted. Logs go to stderr.

Configure it in your MCP client, for example:
  {"command": "iconlabel", "args": ["serve", "--icons", "/path/to/icons"]}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		deps, err := buildLabeler(ctx, cfg)
		if err != nil {
			return err
		}
		defer deps.close()

		logger.Debug("iconlabel MCP server starting", "version", Version, "build_time", BuildTime, "commit", GitCommit)
		srv := server.New(server.Deps{
			Labeler:  deps.labeler,
			Embedder: deps.embedder,
			Taxonomy: deps.taxonomy,
			Logger:   logger,
			Version:  Version,
		})
		return srv.Run(ctx)
	},
}
