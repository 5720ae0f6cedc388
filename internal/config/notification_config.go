package config

// NotificationConfig defines configuration for Discord notifications
type NotificationConfig struct {
	DiscordWebhookURL string   `json:"discord_webhook_url,omitempty" yaml:"discord_webhook_url,omitempty" validate:"omitempty,url"`
	MentionRoleIDs    []string `json:"mention_role_ids,omitempty" yaml:"mention_role_ids,omitempty"`
	NotifyOnUpdate    bool     `json:"notify_on_update" yaml:"notify_on_update"`
	NotifyOnError     bool     `json:"notify_on_error" yaml:"notify_on_error"`
	Username          string   `json:"username,omitempty" yaml:"username,omitempty"`
}

// NewDefaultNotificationConfig creates default notification configuration
func NewDefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		MentionRoleIDs: []string{},
		NotifyOnUpdate: true,
		NotifyOnError:  false,
		Username:       "deploywatch",
	}
}

// Enabled reports whether a webhook is configured.
func (c NotificationConfig) Enabled() bool {
	return c.DiscordWebhookURL != ""
}
