// Package bot is the Telegram front end. It translates commands into engine
// calls and engine results into messages; no matching or storage logic here.
package bot

import (
	"clarity/internal/core"
	"clarity/internal/logger"
	"clarity/internal/sources"
	"clarity/internal/topics"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const welcomeText = `Hi! I track topics you care about and match them to content sources.

Commands:
/add_topic <text> - track a topic
/remove_topic <text> - stop tracking a topic
/topics - list your topics
/add_source <type> <url> [name] - register a content source
/sources - list registered sources
/brief - daily brief (coming soon)`

// Bot runs the Telegram update loop
type Bot struct {
	api     *tgbotapi.BotAPI
	topics  *topics.Manager
	sources *sources.Manager
	log     *slog.Logger
}

// New creates a bot for the given token
func New(token string, topicManager *topics.Manager, sourceManager *sources.Manager) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram client: %w", err)
	}
	return &Bot{
		api:     api,
		topics:  topicManager,
		sources: sourceManager,
		log:     logger.Get(),
	}, nil
}

// Run polls for updates until the context is cancelled
func (b *Bot) Run(ctx context.Context) error {
	b.log.Info("Bot started", "username", b.api.Self.UserName)

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	identity := topics.Identity{
		TelegramID: msg.From.ID,
		Username:   msg.From.UserName,
		FirstName:  msg.From.FirstName,
	}
	args := strings.TrimSpace(msg.CommandArguments())

	var reply string
	switch msg.Command() {
	case "start":
		reply = welcomeText
	case "topics":
		reply = b.listTopics(ctx, identity)
	case "add_topic":
		reply = b.addTopic(ctx, identity, args)
	case "remove_topic":
		reply = b.removeTopic(ctx, identity, args)
	case "sources":
		reply = b.listSources(ctx)
	case "add_source":
		reply = b.addSource(ctx, args)
	case "brief":
		reply = "Daily briefs are coming soon. Your topics are already being matched to sources."
	default:
		reply = "Unknown command. Try /start for the list."
	}

	if _, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		b.log.Error("Failed to send reply", "chat_id", msg.Chat.ID, "error", err)
	}
}

func (b *Bot) addTopic(ctx context.Context, identity topics.Identity, args string) string {
	if args == "" {
		return "Usage: /add_topic <text>"
	}

	result, err := b.topics.AddTopic(ctx, identity, args)
	if err != nil {
		b.log.Error("add_topic failed", "error", err)
		if result != nil {
			// Topic committed, matching failed
			return fmt.Sprintf("Now tracking %q, but matching it to sources failed. Remove and re-add it to retry.", result.Topic.Text)
		}
		return "Sorry, something went wrong adding that topic."
	}
	return FormatAddResult(result)
}

func (b *Bot) removeTopic(ctx context.Context, identity topics.Identity, args string) string {
	if args == "" {
		return "Usage: /remove_topic <text>"
	}

	if err := b.topics.RemoveTopic(ctx, identity, args); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Sprintf("You are not tracking %q.", topics.Normalize(args))
		}
		b.log.Error("remove_topic failed", "error", err)
		return "Sorry, something went wrong removing that topic."
	}
	return fmt.Sprintf("Stopped tracking %q.", topics.Normalize(args))
}

func (b *Bot) listTopics(ctx context.Context, identity topics.Identity) string {
	list, err := b.topics.ListTopics(ctx, identity)
	if err != nil {
		b.log.Error("topics failed", "error", err)
		return "Sorry, something went wrong listing your topics."
	}
	return FormatTopics(list)
}

func (b *Bot) listSources(ctx context.Context) string {
	list, err := b.sources.ListSources(ctx)
	if err != nil {
		b.log.Error("sources failed", "error", err)
		return "Sorry, something went wrong listing sources."
	}
	return FormatSources(list)
}

func (b *Bot) addSource(ctx context.Context, args string) string {
	input, err := ParseAddSourceArgs(args)
	if err != nil {
		return err.Error()
	}

	source, err := b.sources.AddSource(ctx, input)
	if err != nil {
		if errors.Is(err, core.ErrAlreadyExists) {
			return "That source is already registered."
		}
		b.log.Error("add_source failed", "error", err)
		return fmt.Sprintf("Could not register that source: %v", err)
	}
	return fmt.Sprintf("Registered %s source %q.", source.Type, source.Name)
}
