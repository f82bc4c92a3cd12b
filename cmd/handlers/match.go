package handlers

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMatchCmd creates the ad-hoc similarity probe command
func NewMatchCmd() *cobra.Command {
	var (
		threshold float64
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "match <text>",
		Short: "Probe the source corpus with arbitrary text",
		Long: `Embed the given text and walk the threshold ladder against the
source corpus without persisting anything. Useful for tuning thresholds and
sanity-checking new sources.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			embedding, err := eng.embedder.GenerateEmbedding(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to embed query: %w", err)
			}

			opts := eng.matchOptions()
			if threshold > 0 {
				opts.InitialThreshold = threshold
			}
			if limit > 0 {
				opts.MaxResults = limit
			}

			summary, err := eng.matcher.Probe(cmd.Context(), embedding, opts)
			if err != nil {
				return err
			}

			if summary.NoMatches {
				fmt.Println("No sources matched at any threshold.")
				return nil
			}

			fmt.Printf("%d match(es) at threshold %.2f:\n", summary.Count, summary.ThresholdUsed)
			for _, match := range summary.Matches {
				fmt.Printf("  %.3f  [%-7s]  %-30s  %s\n",
					match.Similarity, match.Source.Type, match.Source.Name, match.Source.URL)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "initial similarity threshold (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max results per rung (default from config)")
	return cmd
}
