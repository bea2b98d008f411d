package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChannelType identifies the delivery mechanism of a channel.
type ChannelType string

const (
	ChannelTypeEmail ChannelType = "email"
	ChannelTypeWeb   ChannelType = "web"
	ChannelTypeRSS   ChannelType = "rss"
	ChannelTypeAPI   ChannelType = "api"
)

// ParseChannelType validates a raw channel type value at the boundary.
func ParseChannelType(raw string) (ChannelType, error) {
	switch t := ChannelType(raw); t {
	case ChannelTypeEmail, ChannelTypeWeb, ChannelTypeRSS, ChannelTypeAPI:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unrecognized channel type %q", ErrValidation, raw)
	}
}

// SupportsTracking reports whether open/click counters are meaningful for
// this channel type.
func (t ChannelType) SupportsTracking() bool {
	return t == ChannelTypeEmail || t == ChannelTypeWeb
}

// Channel is a configured delivery target bound to a template.
// (template_id, channel_type, name) is unique.
type Channel struct {
	ID         uuid.UUID       `db:"id"           json:"id"`
	TemplateID uuid.UUID       `db:"template_id"  json:"template_id"`
	Type       ChannelType     `db:"channel_type" json:"channel_type"`
	Name       string          `db:"name"         json:"name"`
	Config     json.RawMessage `db:"config"       json:"config"`
	IsActive   bool            `db:"is_active"    json:"is_active"`
	CreatedAt  time.Time       `db:"created_at"   json:"created_at"`
	LastUsedAt *time.Time      `db:"last_used_at" json:"last_used_at,omitempty"`
}

// ChannelCreateRequest is the payload for creating a channel.
type ChannelCreateRequest struct {
	TemplateID uuid.UUID       `binding:"required"               json:"template_id"`
	Type       string          `binding:"required"               json:"channel_type"`
	Name       string          `binding:"required,min=1,max=200" json:"name"`
	Config     json.RawMessage `json:"config"`
	IsActive   *bool           `json:"is_active"`
}

// ChannelUpdateRequest is the payload for updating a channel.
type ChannelUpdateRequest struct {
	Name     *string         `binding:"omitempty,min=1,max=200" json:"name"`
	Config   json.RawMessage `json:"config"`
	IsActive *bool           `json:"is_active"`
}

// Validate rejects empty update requests.
func (r *ChannelUpdateRequest) Validate() error {
	if r.Name == nil && r.Config == nil && r.IsActive == nil {
		return ErrNoFieldsToUpdate
	}
	return nil
}
