package bot

import (
	"clarity/internal/core"
	"clarity/internal/sources"
	"fmt"
	"strings"
)

// ParseAddSourceArgs parses "/add_source <type> <url> [name...]" arguments.
// Sources added through chat are verified so bad URLs are caught up front.
func ParseAddSourceArgs(args string) (sources.AddSourceInput, error) {
	usage := fmt.Errorf("Usage: /add_source <rss|youtube|podcast|web> <url> [name]")

	fields := strings.Fields(args)
	if len(fields) < 2 {
		return sources.AddSourceInput{}, usage
	}

	sourceType := core.SourceType(strings.ToLower(fields[0]))
	if !core.ValidSourceType(sourceType) {
		return sources.AddSourceInput{}, fmt.Errorf("unknown source type %q; use rss, youtube, podcast, or web", fields[0])
	}

	return sources.AddSourceInput{
		Type:   sourceType,
		URL:    fields[1],
		Name:   strings.Join(fields[2:], " "),
		Verify: true,
	}, nil
}

// FormatAddResult renders an add-topic outcome for chat
func FormatAddResult(result *core.AddTopicResult) string {
	if !result.IsNew {
		return fmt.Sprintf("You are already tracking %q.", result.Topic.Text)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Now tracking %q.\n", result.Topic.Text)

	switch {
	case result.Match == nil:
		sb.WriteString("Source matching is pending; it will run once embeddings catch up.")
	case result.Match.NoMatches:
		sb.WriteString("No matching sources yet. I'll keep it in mind as new sources arrive.")
	default:
		fmt.Fprintf(&sb, "Matched %d source(s) at similarity >= %.2f:\n", result.Match.Count, result.Match.ThresholdUsed)
		for _, match := range result.Match.Matches {
			fmt.Fprintf(&sb, "- %s (%.2f)\n", match.Source.Name, match.Similarity)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatTopics renders a topic listing for chat
func FormatTopics(list []core.TopicWithStats) string {
	if len(list) == 0 {
		return "You are not tracking any topics yet. Add one with /add_topic <text>."
	}

	var sb strings.Builder
	sb.WriteString("Your topics:\n")
	for _, tw := range list {
		fmt.Fprintf(&sb, "- %s: %d source(s)\n", tw.Topic.Text, tw.SourceCount)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatSources renders the source catalog for chat
func FormatSources(list []core.ContentSource) string {
	if len(list) == 0 {
		return "No sources registered yet. Add one with /add_source."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d registered source(s):\n", len(list))
	for _, source := range list {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", source.Type, source.Name, source.URL)
	}
	return strings.TrimRight(sb.String(), "\n")
}
