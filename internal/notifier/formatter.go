package notifier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aleister1102/deploywatch/internal/detector"
)

// Embed colors
const (
	UpdateEmbedColor = 0x5CB85C
	ErrorEmbedColor  = 0xD9534F
)

const maxListedSources = 15

// FormatUpdateMessage builds the payload announcing a new deployment.
func FormatUpdateMessage(update detector.Update, baseURL, username string, roleIDs []string) DiscordMessagePayload {
	detectedAt := update.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now()
	}

	embed := NewDiscordEmbedBuilder().
		WithTitle("🚀 New deployment detected").
		WithDescription(fmt.Sprintf("The script set served by %s changed.", baseURL)).
		WithURL(baseURL).
		WithColor(UpdateEmbedColor).
		WithTimestamp(detectedAt).
		AddField("Entry points", formatEntryPoints(update.Current, update.Previous), false).
		AddField(fmt.Sprintf("Added (%d)", len(update.Added)), formatReferences(update.Added), false).
		AddField(fmt.Sprintf("Removed (%d)", len(update.Removed)), formatReferences(update.Removed), false).
		AddField("Scripts", fmt.Sprintf("%d → %d", len(update.Previous), len(update.Current)), true).
		WithFooter("deploywatch", "").
		Build()

	b := NewDiscordMessagePayloadBuilder().
		WithUsername(username).
		AddEmbed(embed)
	if len(roleIDs) > 0 {
		b.WithContent(buildMentions(roleIDs)).WithRoleMentions(roleIDs)
	}
	return b.Build()
}

// FormatErrorMessage builds the payload reporting a failed round or reload.
func FormatErrorMessage(err error, baseURL, username string, at time.Time) DiscordMessagePayload {
	embed := NewDiscordEmbedBuilder().
		WithTitle("⚠️ Deployment check failed").
		WithURL(baseURL).
		WithColor(ErrorEmbedColor).
		WithTimestamp(at).
		AddField("Target", baseURL, true).
		AddField("Error", "```\n"+truncateString(compressErrorMessage(err.Error()), maxFieldValueLength-8)+"\n```", false).
		WithFooter("deploywatch", "").
		Build()

	return NewDiscordMessagePayloadBuilder().
		WithUsername(username).
		AddEmbed(embed).
		Build()
}

func formatReferences(refs []detector.Reference) string {
	if len(refs) == 0 {
		return "-"
	}
	var b strings.Builder
	for i, r := range refs {
		if i == maxListedSources {
			fmt.Fprintf(&b, "…and %d more", len(refs)-maxListedSources)
			break
		}
		fmt.Fprintf(&b, "`%s` (%s)\n", r.Source, r.EntryPoint)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func formatEntryPoints(sets ...[]detector.Reference) string {
	seen := map[string]bool{}
	for _, refs := range sets {
		for _, r := range refs {
			seen[r.EntryPoint] = true
		}
	}
	entries := make([]string, 0, len(seen))
	for e := range seen {
		entries = append(entries, e)
	}
	sort.Strings(entries)
	return strings.Join(entries, ", ")
}

// buildMentions creates mention strings for Discord role IDs
func buildMentions(roleIDs []string) string {
	mentions := make([]string, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		mentions = append(mentions, fmt.Sprintf("<@&%s>", roleID))
	}
	return strings.Join(mentions, " ")
}

// truncateString truncates a string to maxLength bytes with an ellipsis, on a rune boundary.
func truncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	cut := maxLength - 3
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// compressErrorMessage keeps the first few non-empty lines of an error.
func compressErrorMessage(msg string) string {
	var lines []string
	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == 8 {
			break
		}
	}
	return strings.Join(lines, "\n")
}
