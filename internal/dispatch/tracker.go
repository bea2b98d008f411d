package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/CytrexSGR/newsbrief/internal/database"
	"github.com/CytrexSGR/newsbrief/internal/metrics"
)

// Tracker records engagement events against sent, tracked deliveries.
type Tracker struct {
	deliveries *database.DeliveryRepository
	metrics    *metrics.Metrics
}

// NewTracker creates a tracking recorder.
func NewTracker(deliveries *database.DeliveryRepository, m *metrics.Metrics) *Tracker {
	return &Tracker{deliveries: deliveries, metrics: m}
}

// RecordOpen increments the open counter of a sent, tracked delivery.
func (t *Tracker) RecordOpen(ctx context.Context, id uuid.UUID) error {
	if err := t.deliveries.RecordOpen(ctx, id); err != nil {
		return err
	}
	t.metrics.TrackingEventsTotal.WithLabelValues("open").Inc()
	return nil
}

// RecordClick increments the click counter of a sent, tracked delivery.
func (t *Tracker) RecordClick(ctx context.Context, id uuid.UUID) error {
	if err := t.deliveries.RecordClick(ctx, id); err != nil {
		return err
	}
	t.metrics.TrackingEventsTotal.WithLabelValues("click").Inc()
	return nil
}
