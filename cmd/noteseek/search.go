package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noteseek/noteseek/internal/searcher"
)

const timeRounding = time.Millisecond

func newSearchCommand() *cobra.Command {
	var (
		flagMode  string
		flagLimit int
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search notes lexically, semantically, or both",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.close()

			resp, err := app.searcher.Search(cmd.Context(), searcher.SearchRequest{
				Query: strings.Join(args, " "),
				Mode:  searcher.SearchMode(flagMode),
				Limit: flagLimit,
			})
			if err != nil {
				return err
			}

			if len(resp.Results) == 0 {
				fmt.Println("No matches.")
				return nil
			}

			fmt.Printf("%d results (%s, %s)\n\n", resp.TotalResults, resp.SearchMode, resp.Duration.Round(timeRounding))
			for i, r := range resp.Results {
				fmt.Printf("%2d. %s  [%s, score %.3f]\n", i+1, r.Document.Title, r.Kind, r.Score)
				if r.MatchedChunk != nil {
					fmt.Printf("    %s\n", snippet(r.MatchedChunk.Text, 120))
				} else {
					fmt.Printf("    %s\n", snippet(r.Document.Content, 120))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flagMode, "mode", "m", string(searcher.SearchModeHybrid), "search mode: hybrid, lexical, or semantic")
	cmd.Flags().IntVarP(&flagLimit, "limit", "n", searcher.DefaultLimit, "maximum number of results")

	return cmd
}

// snippet truncates text to one display line
func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
