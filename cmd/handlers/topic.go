package handlers

import (
	"clarity/internal/topics"
	"fmt"

	"github.com/spf13/cobra"
)

// NewTopicCmd creates the topic management command group
func NewTopicCmd() *cobra.Command {
	var telegramID int64

	topicCmd := &cobra.Command{
		Use:   "topic",
		Short: "Manage tracked topics",
		Long: `Add, remove, and list tracked topics for a user, identified by
Telegram ID. Matching against the source corpus runs when a topic is added.`,
	}
	topicCmd.PersistentFlags().Int64Var(&telegramID, "telegram-id", 0, "Telegram user ID the topics belong to")
	_ = topicCmd.MarkPersistentFlagRequired("telegram-id")

	topicCmd.AddCommand(newTopicAddCmd(&telegramID))
	topicCmd.AddCommand(newTopicRemoveCmd(&telegramID))
	topicCmd.AddCommand(newTopicListCmd(&telegramID))
	topicCmd.AddCommand(newTopicSourcesCmd(&telegramID))

	return topicCmd
}

func newTopicAddCmd(telegramID *int64) *cobra.Command {
	return &cobra.Command{
		Use:   "add <text>",
		Short: "Track a new topic and match it to sources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			result, err := eng.topics.AddTopic(cmd.Context(), topics.Identity{TelegramID: *telegramID}, args[0])
			if err != nil {
				return err
			}

			if !result.IsNew {
				fmt.Printf("Already tracking %q (topic %s)\n", result.Topic.Text, result.Topic.ID)
				return nil
			}

			fmt.Printf("Tracking %q (topic %s)\n", result.Topic.Text, result.Topic.ID)
			switch {
			case result.Match == nil:
				fmt.Println("Embedding unavailable; run `clarity backfill` once the provider recovers.")
			case result.Match.NoMatches:
				fmt.Println("No sources matched at any threshold.")
			default:
				fmt.Printf("Matched %d source(s) at threshold %.2f:\n", result.Match.Count, result.Match.ThresholdUsed)
				for _, match := range result.Match.Matches {
					fmt.Printf("  %.3f  %s  %s\n", match.Similarity, match.Source.Name, match.Source.URL)
				}
			}
			return nil
		},
	}
}

func newTopicRemoveCmd(telegramID *int64) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <text>",
		Short: "Stop tracking a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.topics.RemoveTopic(cmd.Context(), topics.Identity{TelegramID: *telegramID}, args[0]); err != nil {
				return err
			}
			fmt.Printf("Stopped tracking %q\n", topics.Normalize(args[0]))
			return nil
		},
	}
}

func newTopicSourcesCmd(telegramID *int64) *cobra.Command {
	return &cobra.Command{
		Use:   "sources <text>",
		Short: "List the sources associated with a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			matches, err := eng.topics.GetTopicSourcesByText(cmd.Context(), topics.Identity{TelegramID: *telegramID}, args[0])
			if err != nil {
				return err
			}

			if len(matches) == 0 {
				fmt.Println("No sources associated with this topic.")
				return nil
			}
			for _, match := range matches {
				fmt.Printf("  %.3f  [%-7s]  %-30s  %s\n",
					match.Similarity, match.Source.Type, match.Source.Name, match.Source.URL)
			}
			return nil
		},
	}
}

func newTopicListCmd(telegramID *int64) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked topics with their source counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			list, err := eng.topics.ListTopics(cmd.Context(), topics.Identity{TelegramID: *telegramID})
			if err != nil {
				return err
			}

			if len(list) == 0 {
				fmt.Println("No topics tracked.")
				return nil
			}
			for _, tw := range list {
				embedded := "embedded"
				if !tw.Topic.HasEmbedding() {
					embedded = "pending embedding"
				}
				fmt.Printf("%s  %-30s  %d source(s)  [%s]\n", tw.Topic.ID, tw.Topic.Text, tw.SourceCount, embedded)
			}
			return nil
		},
	}
}
