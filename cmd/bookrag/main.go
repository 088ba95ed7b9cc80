package main

import (
	"fmt"
	"log/slog"
	"os"

	"book-rag/internal/config"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	var cfgPath string
	var root = &cobra.Command{
		Use:           "bookrag",
		Short:         "Question answering over a book",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.yaml or ./config.yaml)")

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, nil, err
		}
		logger := cfg.Log.NewLogger()
		slog.SetDefault(logger)
		return cfg, logger, nil
	}

	root.AddCommand(
		serveCMD(load),
		indexCMD(load),
		countCMD(load),
		askCMD(load),
		migrateCMD(load),
		mcpCMD(load),
	)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type loadFunc func() (*config.Config, *slog.Logger, error)
