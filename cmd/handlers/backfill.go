package handlers

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewBackfillCmd creates the embedding backfill command
func NewBackfillCmd() *cobra.Command {
	var telegramID int64

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed topics stored without a vector",
		Long: `Backfill embeddings for topics that were stored while the embedding
provider was unavailable. Items run independently with bounded concurrency;
failures are reported and can be retried by running backfill again.

Backfill attaches vectors only. Re-add a topic to run matching.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			userID := ""
			if telegramID != 0 {
				user, err := eng.db.Users().GetByTelegramID(cmd.Context(), telegramID)
				if err != nil {
					return fmt.Errorf("failed to resolve telegram id %d: %w", telegramID, err)
				}
				userID = user.ID
			}

			report, err := eng.topics.BackfillEmbeddings(cmd.Context(), userID)
			if err != nil {
				return err
			}

			fmt.Printf("Backfilled %d topic(s): %d succeeded, %d failed\n",
				report.Total, report.Succeeded, report.Failed)
			for _, id := range report.FailedTopicIDs {
				fmt.Printf("  failed: %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&telegramID, "telegram-id", 0, "limit to one user's topics (0 = all users)")
	return cmd
}
