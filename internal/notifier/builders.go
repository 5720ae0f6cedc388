package notifier

import (
	"fmt"
	"time"

	"github.com/aleister1102/deploywatch/internal/common"
)

// DiscordEmbedBuilder helps in constructing DiscordEmbed objects.
type DiscordEmbedBuilder struct {
	embed DiscordEmbed
}

// NewDiscordEmbedBuilder creates a new Discord embed builder
func NewDiscordEmbedBuilder() *DiscordEmbedBuilder {
	return &DiscordEmbedBuilder{}
}

// WithTitle sets the embed title
func (b *DiscordEmbedBuilder) WithTitle(title string) *DiscordEmbedBuilder {
	b.embed.Title = truncateString(title, maxTitleLength)
	return b
}

// WithDescription sets the embed description
func (b *DiscordEmbedBuilder) WithDescription(description string) *DiscordEmbedBuilder {
	b.embed.Description = truncateString(description, maxDescriptionLength)
	return b
}

// WithURL sets the embed link
func (b *DiscordEmbedBuilder) WithURL(url string) *DiscordEmbedBuilder {
	b.embed.URL = url
	return b
}

// WithTimestamp sets the embed timestamp
func (b *DiscordEmbedBuilder) WithTimestamp(timestamp time.Time) *DiscordEmbedBuilder {
	b.embed.Timestamp = timestamp.UTC().Format(time.RFC3339)
	return b
}

// WithColor sets the embed color
func (b *DiscordEmbedBuilder) WithColor(color int) *DiscordEmbedBuilder {
	b.embed.Color = color
	return b
}

// WithFooter sets the embed footer
func (b *DiscordEmbedBuilder) WithFooter(text, iconURL string) *DiscordEmbedBuilder {
	b.embed.Footer = &DiscordEmbedFooter{Text: truncateString(text, maxFooterLength), IconURL: iconURL}
	return b
}

// AddField adds a field to the embed. Empty values are shown as a dash.
func (b *DiscordEmbedBuilder) AddField(name, value string, inline bool) *DiscordEmbedBuilder {
	if len(b.embed.Fields) >= maxFields {
		return b
	}
	if value == "" {
		value = "-"
	}
	b.embed.Fields = append(b.embed.Fields, DiscordEmbedField{
		Name:   truncateString(name, maxFieldNameLength),
		Value:  truncateString(value, maxFieldValueLength),
		Inline: inline,
	})
	return b
}

// Build returns the embed.
func (b *DiscordEmbedBuilder) Build() DiscordEmbed {
	return b.embed
}

// ValidateEmbed checks the Discord limits.
func ValidateEmbed(embed DiscordEmbed) error {
	if len(embed.Title) > maxTitleLength {
		return common.NewValidationError("title", embed.Title, "title cannot exceed 256 characters")
	}
	if len(embed.Description) > maxDescriptionLength {
		return common.NewValidationError("description", embed.Description, "description cannot exceed 4096 characters")
	}
	if len(embed.Fields) > maxFields {
		return common.NewValidationError("fields", len(embed.Fields), "cannot have more than 25 fields")
	}
	for i, field := range embed.Fields {
		if field.Name == "" || len(field.Name) > maxFieldNameLength {
			return common.NewValidationError("field_name", field.Name, fmt.Sprintf("field %d name must be 1-256 characters", i))
		}
		if field.Value == "" || len(field.Value) > maxFieldValueLength {
			return common.NewValidationError("field_value", field.Value, fmt.Sprintf("field %d value must be 1-1024 characters", i))
		}
	}
	if embed.Footer != nil && len(embed.Footer.Text) > maxFooterLength {
		return common.NewValidationError("footer_text", embed.Footer.Text, "footer text cannot exceed 2048 characters")
	}
	return nil
}

// DiscordMessagePayloadBuilder helps in constructing DiscordMessagePayload objects.
type DiscordMessagePayloadBuilder struct {
	payload DiscordMessagePayload
}

// NewDiscordMessagePayloadBuilder creates a new instance of DiscordMessagePayloadBuilder.
func NewDiscordMessagePayloadBuilder() *DiscordMessagePayloadBuilder {
	return &DiscordMessagePayloadBuilder{}
}

// WithContent sets the message text
func (b *DiscordMessagePayloadBuilder) WithContent(content string) *DiscordMessagePayloadBuilder {
	b.payload.Content = content
	return b
}

// WithUsername overrides the webhook username
func (b *DiscordMessagePayloadBuilder) WithUsername(username string) *DiscordMessagePayloadBuilder {
	b.payload.Username = username
	return b
}

// AddEmbed appends an embed
func (b *DiscordMessagePayloadBuilder) AddEmbed(embed DiscordEmbed) *DiscordMessagePayloadBuilder {
	b.payload.Embeds = append(b.payload.Embeds, embed)
	return b
}

// WithRoleMentions restricts pings to the given roles.
func (b *DiscordMessagePayloadBuilder) WithRoleMentions(roleIDs []string) *DiscordMessagePayloadBuilder {
	b.payload.AllowedMentions = &AllowedMentions{Parse: []string{}, Roles: roleIDs}
	return b
}

// Build returns the payload.
func (b *DiscordMessagePayloadBuilder) Build() DiscordMessagePayload {
	return b.payload
}
