package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/CytrexSGR/newsbrief/internal/domain"
	"github.com/CytrexSGR/newsbrief/internal/logger"
)

// DefaultWebPublishChannel receives briefings from web channels that do not
// configure their own Pub/Sub channel name.
const DefaultWebPublishChannel = "newsbrief:briefings"

type webChannelConfig struct {
	PublishChannel string `json:"publish_channel"`
}

// WebTransport publishes briefings on Redis Pub/Sub for web frontends that
// subscribe for live updates.
type WebTransport struct {
	client *redis.Client
	logger logger.Logger
}

// NewWebTransport creates a Pub/Sub transport over an existing Redis client.
func NewWebTransport(client *redis.Client, log logger.Logger) *WebTransport {
	return &WebTransport{client: client, logger: log}
}

// Deliver publishes the briefing on the channel's configured Pub/Sub channel.
// Redis errors are transient: the broker may come back.
func (t *WebTransport) Deliver(ctx context.Context, d Delivery) (*Result, error) {
	target := DefaultWebPublishChannel
	if len(d.Channel.Config) > 0 {
		var cfg webChannelConfig
		if err := json.Unmarshal(d.Channel.Config, &cfg); err != nil {
			return nil, fmt.Errorf("%w: invalid web channel config: %v", domain.ErrValidation, err)
		}
		if cfg.PublishChannel != "" {
			target = cfg.PublishChannel
		}
	}

	payload, err := json.Marshal(map[string]any{
		"content_id":    d.Content.ID,
		"channel_id":    d.Channel.ID,
		"title":         d.Content.Title,
		"body":          d.Content.Body,
		"output_format": d.Content.OutputFormat,
		"generated_at":  d.Content.GeneratedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal web message: %w", err)
	}

	res, err := t.client.Publish(ctx, target, payload).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: publish to %s: %v", domain.ErrDependencyUnavailable, target, err)
	}

	t.logger.Debug("published briefing",
		logger.String("channel", target),
		logger.String("content_id", d.Content.ID.String()),
		logger.Int64("subscribers", res))

	subscribers := int(res)
	return &Result{RecipientCount: &subscribers}, nil
}
