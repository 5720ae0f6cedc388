package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aleister1102/deploywatch/internal/common"
	"github.com/aleister1102/deploywatch/internal/config"
	"github.com/aleister1102/deploywatch/internal/detector"
	"github.com/aleister1102/deploywatch/internal/httpclient"
	"github.com/rs/zerolog"
)

// DiscordNotifier posts deployment and error reports to a Discord webhook.
type DiscordNotifier struct {
	cfg        config.NotificationConfig
	baseURL    string
	httpClient *httpclient.HTTPClient
	logger     zerolog.Logger
}

// NewDiscordNotifier creates a notifier. A nil client gets a default one.
func NewDiscordNotifier(cfg config.NotificationConfig, baseURL string, httpClient *httpclient.HTTPClient, logger zerolog.Logger) (*DiscordNotifier, error) {
	moduleLogger := logger.With().Str("component", "DiscordNotifier").Logger()
	if httpClient == nil {
		var err error
		httpClient, err = httpclient.NewHTTPClientBuilder(moduleLogger).
			WithTimeout(20 * time.Second).
			WithRetry(httpclient.DefaultRetryHandlerConfig()).
			Build()
		if err != nil {
			return nil, common.WrapError(err, "failed to create webhook client")
		}
	}
	return &DiscordNotifier{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     moduleLogger,
	}, nil
}

// NotifyUpdate announces a detected deployment when update notifications are on.
func (dn *DiscordNotifier) NotifyUpdate(ctx context.Context, update detector.Update) error {
	if !dn.cfg.NotifyOnUpdate {
		return nil
	}
	payload := FormatUpdateMessage(update, dn.baseURL, dn.cfg.Username, dn.cfg.MentionRoleIDs)
	return dn.SendNotification(ctx, payload)
}

// NotifyError reports a failure when error notifications are on.
func (dn *DiscordNotifier) NotifyError(ctx context.Context, err error) error {
	if !dn.cfg.NotifyOnError || err == nil {
		return nil
	}
	payload := FormatErrorMessage(err, dn.baseURL, dn.cfg.Username, time.Now())
	return dn.SendNotification(ctx, payload)
}

// SendNotification posts a payload to the configured webhook.
func (dn *DiscordNotifier) SendNotification(ctx context.Context, payload DiscordMessagePayload) error {
	if !dn.cfg.Enabled() {
		dn.logger.Debug().Msg("Discord webhook URL is not configured, skipping notification")
		return nil
	}
	for _, embed := range payload.Embeds {
		if err := ValidateEmbed(embed); err != nil {
			return common.WrapError(err, "invalid discord embed")
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return common.WrapError(err, "failed to marshal discord payload")
	}

	if _, err := dn.httpClient.PostJSON(ctx, dn.cfg.DiscordWebhookURL, body); err != nil {
		dn.logger.Error().Err(err).Msg("Failed to send Discord notification")
		return common.WrapError(err, "failed to send discord notification")
	}

	dn.logger.Info().Int("embeds", len(payload.Embeds)).Msg("Discord notification sent")
	return nil
}
