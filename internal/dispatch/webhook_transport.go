package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/CytrexSGR/newsbrief/internal/domain"
	"github.com/CytrexSGR/newsbrief/internal/logger"
)

// DefaultWebhookTimeout bounds one webhook POST unless configured otherwise.
const DefaultWebhookTimeout = 10 * time.Second

type webhookChannelConfig struct {
	URL        string `json:"url"`
	AuthHeader string `json:"auth_header"`
	AuthToken  string `json:"auth_token"`
}

// WebhookTransport POSTs briefings as JSON to a per-channel webhook URL.
type WebhookTransport struct {
	httpClient *http.Client
	logger     logger.Logger
}

// NewWebhookTransport creates a webhook transport with the given request
// timeout. A zero timeout falls back to DefaultWebhookTimeout.
func NewWebhookTransport(timeout time.Duration, log logger.Logger) *WebhookTransport {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookTransport{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// Deliver POSTs the briefing to the channel's webhook endpoint. Network
// failures, timeouts, 429 and 5xx responses are transient; any other non-2xx
// response is a permanent rejection of the payload.
func (t *WebhookTransport) Deliver(ctx context.Context, d Delivery) (*Result, error) {
	cfg, err := parseWebhookConfig(d.Channel.Config)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"content_id":    d.Content.ID,
		"template_id":   d.Content.TemplateID,
		"title":         d.Content.Title,
		"body":          d.Content.Body,
		"output_format": d.Content.OutputFormat,
		"word_count":    d.Content.WordCount,
		"generated_at":  d.Content.GeneratedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid webhook request: %v", domain.ErrValidation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.AuthToken != "" {
		header := cfg.AuthHeader
		if header == "" {
			header = "Authorization"
		}
		req.Header.Set(header, cfg.AuthToken)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: webhook request failed: %v", domain.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		t.logger.Debug("webhook delivered",
			logger.String("url", cfg.URL),
			logger.String("content_id", d.Content.ID.String()),
			logger.Int("status", resp.StatusCode))
		return &Result{}, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: webhook returned %d", domain.ErrDependencyUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("webhook rejected delivery with status %d", resp.StatusCode)
	}
}

func parseWebhookConfig(raw json.RawMessage) (*webhookChannelConfig, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: api channel has no config", domain.ErrValidation)
	}
	var cfg webhookChannelConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: invalid api channel config: %v", domain.ErrValidation, err)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: api channel config is missing url", domain.ErrValidation)
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("%w: invalid webhook url %q", domain.ErrValidation, cfg.URL)
	}
	return &cfg, nil
}
