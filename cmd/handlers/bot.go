package handlers

import (
	"clarity/internal/bot"
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewBotCmd creates the command that runs the Telegram bot
func NewBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot",
		Long: `Start the Telegram bot and poll for updates until interrupted.

Requires telegram.bot_token (or the BOT_TOKEN environment variable).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			token := eng.cfg.Telegram.BotToken
			if token == "" {
				return fmt.Errorf("telegram bot token is not configured (set BOT_TOKEN)")
			}

			b, err := bot.New(token, eng.topics, eng.sources)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
