package handlers

import (
	"clarity/internal/core"
	"clarity/internal/sources"
	"fmt"

	"github.com/spf13/cobra"
)

// NewSourceCmd creates the source management command group
func NewSourceCmd() *cobra.Command {
	sourceCmd := &cobra.Command{
		Use:   "source",
		Short: "Manage the content source corpus",
	}

	sourceCmd.AddCommand(newSourceAddCmd())
	sourceCmd.AddCommand(newSourceListCmd())
	sourceCmd.AddCommand(newSourceSeedCmd())
	sourceCmd.AddCommand(newSourceVerifyCmd())

	return sourceCmd
}

func newSourceAddCmd() *cobra.Command {
	var (
		name        string
		description string
		sourceType  string
		verify      bool
	)

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a content source",
		Long: `Register a content source and embed it for topic matching.

With --verify, feed types must parse as RSS/Atom and web pages must respond;
missing name and description are filled from what the URL serves.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			source, err := eng.sources.AddSource(cmd.Context(), sources.AddSourceInput{
				Name:        name,
				URL:         args[0],
				Description: description,
				Type:        core.SourceType(sourceType),
				Verify:      verify,
			})
			if err != nil {
				return err
			}

			embedded := "embedded"
			if len(source.Embedding) == 0 {
				embedded = "pending embedding"
			}
			fmt.Printf("Registered %s source %q (%s) [%s]\n", source.Type, source.Name, source.ID, embedded)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (autofilled with --verify)")
	cmd.Flags().StringVar(&description, "description", "", "free-text description")
	cmd.Flags().StringVar(&sourceType, "type", "rss", "source type: rss, youtube, podcast, or web")
	cmd.Flags().BoolVar(&verify, "verify", false, "fetch the URL before registering")

	return cmd
}

func newSourceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			list, err := eng.sources.ListSources(cmd.Context())
			if err != nil {
				return err
			}

			if len(list) == 0 {
				fmt.Println("No sources registered.")
				return nil
			}
			for _, source := range list {
				embedded := "embedded"
				if len(source.Embedding) == 0 {
					embedded = "pending embedding"
				}
				fmt.Printf("%s  [%-7s]  %-30s  %s  [%s]\n", source.ID, source.Type, source.Name, source.URL, embedded)
			}
			return nil
		},
	}
}

func newSourceSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <csv-file>",
		Short: "Bulk-register sources from a CSV file",
		Long: `Seed the source corpus from a CSV of (name, url, description) rows.
Already-registered URLs are skipped, so re-running a seed file is safe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			report, err := eng.sources.SeedFromCSV(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d record(s): %d added, %d skipped, %d failed\n",
				report.Total, report.Added, report.Skipped, report.Failed)
			return nil
		},
	}
}

func newSourceVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify that registered sources still resolve",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			list, err := eng.sources.ListSources(cmd.Context())
			if err != nil {
				return err
			}

			failures := 0
			for _, source := range list {
				if err := eng.sources.Verify(cmd.Context(), &source); err != nil {
					failures++
					fmt.Printf("FAIL  %s  %v\n", source.URL, err)
					continue
				}
				fmt.Printf("ok    %s\n", source.URL)
			}

			if failures > 0 {
				return fmt.Errorf("%d of %d source(s) failed verification", failures, len(list))
			}
			return nil
		},
	}
}
