package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"book-rag/internal/rag"

	"github.com/spf13/cobra"
)

func indexCMD(load loadFunc) *cobra.Command {
	var dir string
	var reset, watch bool

	var index = &cobra.Command{
		Use:   "index",
		Short: "Chunk, embed and store the book",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Book.Dir
			}
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				return fmt.Errorf("source directory does not exist: %s", dir)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			logger.Info("indexing book",
				"dir", dir,
				"format", cfg.Book.Format,
				"embedding_model", cfg.Embedding.Model,
				"collection", cfg.Vector.Collection)

			if reset {
				if err := a.indexer.Reset(ctx); err != nil {
					return fmt.Errorf("failed to reset collection: %w", err)
				}
				logger.Info("collection reset")
			}

			startTime := time.Now()
			stats, err := a.indexer.Run(ctx, dir, "")
			if err != nil {
				return fmt.Errorf("indexing failed: %w", err)
			}

			logger.Info("completed processing", "duration", time.Since(startTime).Round(time.Millisecond))
			printChunkStatistics(logger, stats)

			if watch {
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return a.indexer.Watch(ctx, dir, rag.DefaultWatchDebounce)
			}
			return nil
		},
	}
	index.Flags().StringVar(&dir, "dir", "", "directory holding the book sources (default book.dir)")
	index.Flags().BoolVar(&reset, "reset", false, "drop the collection before indexing")
	index.Flags().BoolVar(&watch, "watch", false, "keep running and re-index when sources change")

	return index
}

func countCMD(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored chunks",
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

			n, err := a.indexer.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", cfg.Vector.Collection, n)
			return nil
		},
	}
}

// printChunkStatistics logs a summary of an indexing run
func printChunkStatistics(logger *slog.Logger, stats rag.IndexStats) {
	avgLength := 0.0
	if stats.Chunks > 0 {
		avgLength = float64(stats.TotalChars) / float64(stats.Chunks)
	}

	logger.Info("chunk statistics",
		"files", stats.Files,
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"failed_batches", stats.FailedBatches,
		"avg_chunk_chars", fmt.Sprintf("%.1f", avgLength),
		"sections", len(stats.Sections))

	// Show the largest sections first
	sections := make([]string, 0, len(stats.Sections))
	for s := range stats.Sections {
		sections = append(sections, s)
	}
	sort.Slice(sections, func(i, j int) bool {
		ci, cj := stats.Sections[sections[i]], stats.Sections[sections[j]]
		if ci != cj {
			return ci > cj
		}
		return sections[i] < sections[j]
	})
	for i, s := range sections {
		if i == 10 {
			logger.Info("more sections not shown", "count", len(sections)-i)
			break
		}
		name := s
		if name == "" {
			name = "Undefined"
		}
		logger.Info("section", "name", name, "chunks", stats.Sections[s])
	}
}
