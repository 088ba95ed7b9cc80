package main

import (
	"context"
	"os/signal"
	"syscall"

	"book-rag/internal/server"

	"github.com/spf13/cobra"
)

func serveCMD(load loadFunc) *cobra.Command {
	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.index.EnsureCollection(ctx); err != nil {
				logger.Warn("failed to prepare collection, continuing", "error", err)
			}

			opts := server.Options{
				APIKey:         cfg.Server.APIKey,
				CORSOrigins:    cfg.Server.CORSOrigins,
				BodyLimit:      cfg.Server.BodyLimit,
				RateLimit:      cfg.Server.RateLimit,
				EmbedRateLimit: cfg.Server.EmbedRateLimit,
				Collection:     cfg.Vector.Collection,
				SourceRoot:     cfg.Book.Dir,
				Checks:         a.checks,
				ReadTimeout:    cfg.Server.ReadTimeout,
				WriteTimeout:   cfg.Server.WriteTimeout,
				Logger:         logger,
			}
			if cfg.Metrics.Enabled {
				opts.MetricsPath = cfg.Metrics.Path
				opts.Gatherer = a.registry
			}
			if cfg.Server.APIKey == "" {
				logger.Warn("server.api_key not set, the API is open")
			}
			srv := server.New(a.service, a.indexer, opts)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(cfg.Server.Address) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http shutdown failed", "error", err)
			}
			a.indexer.Wait()
			return nil
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")

	return serve
}
