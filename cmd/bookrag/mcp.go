package main

import (
	"book-rag/internal/mcpserver"

	"github.com/spf13/cobra"
)

func mcpCMD(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the book tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			// stdout carries the protocol; logs go to stderr
			logger.Info("mcp server starting on stdio", "collection", cfg.Vector.Collection)
			server := mcpserver.New(version, &mcpserver.Tools{
				Chat:       a.service,
				Index:      a.index,
				Collection: cfg.Vector.Collection,
				Logger:     logger,
			})
			return mcpserver.Serve(cmd.Context(), server)
		},
	}
}
