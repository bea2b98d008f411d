package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/CytrexSGR/newsbrief/internal/domain"
)

// channelSelectList is the column list for SELECT/RETURNING on channels
const channelSelectList = `id, template_id, channel_type, name, config, is_active,
			created_at, last_used_at`

// ChannelRepository manages delivery channels in PostgreSQL
type ChannelRepository struct {
	db *sqlx.DB
}

// NewChannelRepository creates a new repository instance
func NewChannelRepository(db *sqlx.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// Create creates a new channel
func (r *ChannelRepository) Create(ctx context.Context, req *domain.ChannelCreateRequest) (*domain.Channel, error) {
	channelType, err := domain.ParseChannelType(req.Type)
	if err != nil {
		return nil, err
	}

	channel := &domain.Channel{
		ID:         uuid.New(),
		TemplateID: req.TemplateID,
		Type:       channelType,
		Name:       req.Name,
		Config:     req.Config,
		IsActive:   true, // Default to true
		CreatedAt:  time.Now().UTC(),
	}
	if req.IsActive != nil {
		channel.IsActive = *req.IsActive
	}
	if channel.Config == nil {
		channel.Config = []byte("{}")
	}

	query := `
		INSERT INTO channels (id, template_id, channel_type, name, config, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + channelSelectList

	err = r.db.QueryRowxContext(
		ctx, query,
		channel.ID, channel.TemplateID, channel.Type, channel.Name,
		[]byte(channel.Config), channel.IsActive, channel.CreatedAt,
	).StructScan(channel)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: channel %s/%q already exists for template",
				domain.ErrConflict, channel.Type, channel.Name)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: template %s", domain.ErrNotFound, req.TemplateID)
		}
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	return channel, nil
}

// GetByID retrieves a channel by ID
func (r *ChannelRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	channel := &domain.Channel{}
	query := `SELECT ` + channelSelectList + ` FROM channels WHERE id = $1`

	err := r.db.GetContext(ctx, channel, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return channel, nil
}

// ListByTemplate retrieves the channels of one template, optionally only
// active ones
func (r *ChannelRepository) ListByTemplate(ctx context.Context, templateID uuid.UUID, activeOnly bool) ([]domain.Channel, error) {
	query := `SELECT ` + channelSelectList + ` FROM channels WHERE template_id = $1`
	if activeOnly {
		query += ` AND is_active = true`
	}
	query += ` ORDER BY channel_type ASC, name ASC`

	channels := []domain.Channel{}
	if err := r.db.SelectContext(ctx, &channels, query, templateID); err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

// GetActiveByIDs retrieves the active subset of the given channels
func (r *ChannelRepository) GetActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Channel, error) {
	query, args, err := sqlx.In(
		`SELECT `+channelSelectList+` FROM channels WHERE id IN (?) AND is_active = true ORDER BY name ASC`,
		ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build channel query: %w", err)
	}
	query = r.db.Rebind(query)

	channels := []domain.Channel{}
	if err := r.db.SelectContext(ctx, &channels, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get channels: %w", err)
	}
	return channels, nil
}

// Update applies the non-nil fields of req
func (r *ChannelRepository) Update(ctx context.Context, id uuid.UUID, req *domain.ChannelUpdateRequest) (*domain.Channel, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Config != nil {
		updates["config"] = []byte(req.Config)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	// channels carries no updated_at column; build the statement directly.
	query := `UPDATE channels SET `
	args := make([]any, 0, len(updates)+1)
	argPos := 1
	for _, column := range []string{"name", "config", "is_active"} {
		value, ok := updates[column]
		if !ok {
			continue
		}
		if argPos > 1 {
			query += ", "
		}
		query += fmt.Sprintf("%s = $%d", column, argPos)
		args = append(args, value)
		argPos++
	}
	query += fmt.Sprintf(" WHERE id = $%d RETURNING ", argPos) + channelSelectList
	args = append(args, id)

	channel := &domain.Channel{}
	err := r.db.QueryRowxContext(ctx, query, args...).StructScan(channel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: channel name already exists for template", domain.ErrConflict)
		}
		return nil, fmt.Errorf("failed to update channel: %w", err)
	}
	return channel, nil
}

// Delete deletes a channel
func (r *ChannelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
