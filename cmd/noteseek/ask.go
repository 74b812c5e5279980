package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noteseek/noteseek/internal/llm"
	"github.com/noteseek/noteseek/internal/rag"
	"github.com/noteseek/noteseek/pkg/types"
)

func newAskCommand() *cobra.Command {
	var flagStream bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from your notes",
		Long:  "Retrieves the most relevant notes semantically and asks the configured LLM to answer from them. Sources are shown even when the LLM is unavailable.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if !rag.IsQuestion(query) {
				fmt.Fprintln(os.Stderr, "Hint: this doesn't look like a question; try 'noteseek search' for plain retrieval.")
			}

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			provider := app.newProvider()
			if provider != nil {
				defer provider.Destroy()
				if err := provider.Initialize(ctx); err != nil {
					if errors.Is(err, llm.ErrProviderUnavailable) {
						fmt.Fprintln(os.Stderr, "AI unavailable:", err)
						provider = nil
					} else {
						return err
					}
				}
			}

			answerer, err := rag.New(app.searcher, provider, rag.WithLogger(app.logger))
			if err != nil {
				return err
			}

			if flagStream && provider != nil {
				return askStreaming(ctx, answerer, query)
			}

			answer, err := answerer.Ask(ctx, query)
			if err != nil {
				return err
			}

			fmt.Println(answer.Text)
			printSources(answer.Sources)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&flagStream, "stream", "s", false, "stream the answer as it is generated")

	return cmd
}

func askStreaming(ctx context.Context, answerer *rag.Answerer, query string) error {
	sources, chunks, err := answerer.AskStream(ctx, query)
	if err != nil {
		return err
	}

	if chunks == nil {
		fmt.Println("No answer available.")
		printSources(sources)
		return nil
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			fmt.Fprintln(os.Stderr, "\nstream interrupted:", chunk.Err)
			break
		}
		fmt.Print(chunk.Text)
	}
	fmt.Println()
	printSources(sources)
	return nil
}

func printSources(sources []*types.SearchResult) {
	if len(sources) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for _, src := range sources {
		fmt.Printf("  - %s [score %.3f]\n", src.Document.Title, src.Score)
	}
}
