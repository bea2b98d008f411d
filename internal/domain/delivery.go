package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the state of one delivery attempt record.
//
//	pending -> sent            (terminal)
//	pending -> failed          (terminal, non-transient or budget exhausted)
//	pending -> retry           (transient failure, budget left)
//	retry   -> sent | failed | retry
type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
	DeliveryStatusRetry   DeliveryStatus = "retry"
)

// ParseDeliveryStatus validates a raw delivery status value at the boundary.
func ParseDeliveryStatus(raw string) (DeliveryStatus, error) {
	switch s := DeliveryStatus(raw); s {
	case DeliveryStatusPending, DeliveryStatusSent, DeliveryStatusFailed, DeliveryStatusRetry:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unrecognized delivery status %q", ErrValidation, raw)
	}
}

// IsTerminal reports whether the status admits no further transitions.
// Tracking counters may still mutate after sent; the status may not.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusSent || s == DeliveryStatusFailed
}

// DefaultDeliveryMaxRetries is the retry budget for deliveries unless
// configured otherwise.
const DefaultDeliveryMaxRetries = 3

// DeliveryLog records the delivery of one content item to one channel. At
// most one non-terminal log exists per (content, channel) pair.
type DeliveryLog struct {
	ID              uuid.UUID      `db:"id"               json:"id"`
	ContentID       uuid.UUID      `db:"content_id"       json:"content_id"`
	ChannelID       uuid.UUID      `db:"channel_id"       json:"channel_id"`
	Status          DeliveryStatus `db:"status"           json:"status"`
	RetryCount      int            `db:"retry_count"      json:"retry_count"`
	MaxRetries      int            `db:"max_retries"      json:"max_retries"`
	RecipientCount  *int           `db:"recipient_count"  json:"recipient_count,omitempty"`
	ErrorMessage    *string        `db:"error_message"    json:"error_message,omitempty"`
	TrackingEnabled bool           `db:"tracking_enabled" json:"tracking_enabled"`
	OpenCount       int            `db:"open_count"       json:"open_count"`
	ClickCount      int            `db:"click_count"      json:"click_count"`
	CreatedAt       time.Time      `db:"created_at"       json:"created_at"`
	SentAt          *time.Time     `db:"sent_at"          json:"sent_at,omitempty"`
	NextRetryAt     *time.Time     `db:"next_retry_at"    json:"next_retry_at,omitempty"`
	UpdatedAt       time.Time      `db:"updated_at"       json:"updated_at"`
}

// ShouldRetry reports whether the delivery still has retry budget.
func (d *DeliveryLog) ShouldRetry() bool {
	return d.RetryCount < d.MaxRetries
}

// DispatchSummary is the per-channel result returned from a fan-out.
type DispatchSummary struct {
	ChannelID   uuid.UUID      `json:"channel_id"`
	ChannelName string         `json:"channel_name"`
	ChannelType ChannelType    `json:"channel_type"`
	DeliveryID  uuid.UUID      `json:"delivery_id"`
	Status      DeliveryStatus `json:"status"`
}
