package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/CytrexSGR/newsbrief/internal/database"
	"github.com/CytrexSGR/newsbrief/internal/domain"
	"github.com/CytrexSGR/newsbrief/internal/logger"
	"github.com/CytrexSGR/newsbrief/internal/metrics"
)

// Engine fans one content item out to its channels by creating pending
// delivery logs. Actual delivery happens asynchronously in the Worker.
type Engine struct {
	content    *database.ContentRepository
	channels   *database.ChannelRepository
	deliveries *database.DeliveryRepository
	maxRetries int
	metrics    *metrics.Metrics
	logger     logger.Logger
}

// NewEngine creates a dispatch engine.
func NewEngine(
	content *database.ContentRepository,
	channels *database.ChannelRepository,
	deliveries *database.DeliveryRepository,
	maxRetries int,
	m *metrics.Metrics,
	log logger.Logger,
) *Engine {
	if maxRetries <= 0 {
		maxRetries = domain.DefaultDeliveryMaxRetries
	}
	return &Engine{
		content:    content,
		channels:   channels,
		deliveries: deliveries,
		maxRetries: maxRetries,
		metrics:    m,
		logger:     log,
	}
}

// Dispatch resolves the target channels for a content item and creates one
// pending delivery per channel. An explicit channelIDs list restricts the
// fan-out to the active channels of the content's template that appear in
// it; ids that are missing, inactive or belong to another template are
// dropped. An empty resolution yields ErrNoActiveChannels and creates
// nothing.
func (e *Engine) Dispatch(ctx context.Context, contentID uuid.UUID, channelIDs []uuid.UUID) ([]domain.DispatchSummary, error) {
	content, err := e.content.GetByID(ctx, contentID)
	if err != nil {
		e.countOutcome(err)
		return nil, err
	}
	if content.Status == domain.ContentStatusFailed {
		err = fmt.Errorf("%w: failed content cannot be dispatched", domain.ErrValidation)
		e.countOutcome(err)
		return nil, err
	}

	channels, err := e.resolveChannels(ctx, content, channelIDs)
	if err != nil {
		e.countOutcome(err)
		return nil, err
	}

	logs, err := e.deliveries.CreateBatch(ctx, contentID, channels, e.maxRetries)
	if err != nil {
		e.countOutcome(err)
		return nil, err
	}

	byChannel := make(map[uuid.UUID]*domain.Channel, len(channels))
	for i := range channels {
		byChannel[channels[i].ID] = &channels[i]
	}

	summaries := make([]domain.DispatchSummary, 0, len(logs))
	for _, log := range logs {
		channel := byChannel[log.ChannelID]
		summaries = append(summaries, domain.DispatchSummary{
			ChannelID:   channel.ID,
			ChannelName: channel.Name,
			ChannelType: channel.Type,
			DeliveryID:  log.ID,
			Status:      log.Status,
		})
	}

	e.metrics.DispatchesTotal.WithLabelValues("created").Inc()
	e.logger.Info("dispatched content",
		logger.String("content_id", contentID.String()),
		logger.Int("channels", len(summaries)))
	return summaries, nil
}

func (e *Engine) resolveChannels(ctx context.Context, content *domain.GeneratedContent, channelIDs []uuid.UUID) ([]domain.Channel, error) {
	if len(channelIDs) == 0 {
		channels, err := e.channels.ListByTemplate(ctx, content.TemplateID, true)
		if err != nil {
			return nil, err
		}
		if len(channels) == 0 {
			return nil, fmt.Errorf("%w: template %s has no active channels",
				domain.ErrNoActiveChannels, content.TemplateID)
		}
		return channels, nil
	}

	candidates, err := e.channels.GetActiveByIDs(ctx, channelIDs)
	if err != nil {
		return nil, err
	}
	channels := candidates[:0]
	for _, channel := range candidates {
		if channel.TemplateID != content.TemplateID {
			e.logger.Warn("skipping channel from another template",
				logger.String("channel_id", channel.ID.String()),
				logger.String("template_id", content.TemplateID.String()))
			continue
		}
		channels = append(channels, channel)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: none of the requested channels are active for template %s",
			domain.ErrNoActiveChannels, content.TemplateID)
	}
	return channels, nil
}

func (e *Engine) countOutcome(err error) {
	switch {
	case errors.Is(err, domain.ErrNoActiveChannels):
		e.metrics.DispatchesTotal.WithLabelValues("no_channels").Inc()
	case errors.Is(err, domain.ErrConflict):
		e.metrics.DispatchesTotal.WithLabelValues("conflict").Inc()
	default:
		e.metrics.DispatchesTotal.WithLabelValues("error").Inc()
	}
}
