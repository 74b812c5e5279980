package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newIndexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Build or refresh the embedding cache for the document file",
		Long:  "Embeds every new or changed document into the local cache. Unchanged documents are skipped by version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			stats, err := app.engine.UpdateEmbeddings(ctx, app.docs)
			if err != nil {
				return fmt.Errorf("index documents: %w", err)
			}

			fmt.Printf("Indexed %d documents (%d chunks) in %s\n",
				stats.DocumentsEmbedded, stats.ChunksEmbedded, stats.Duration.Round(timeRounding))
			fmt.Printf("Skipped %d unchanged, %d failed\n", stats.DocumentsSkipped, stats.DocumentsFailed)
			for _, msg := range stats.ErrorMessages {
				fmt.Fprintln(os.Stderr, "  failed:", msg)
			}
			return nil
		},
	}
}
