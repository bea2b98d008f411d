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

// deliverySelectList is the column list for SELECT/RETURNING on delivery_logs
const deliverySelectList = `id, content_id, channel_id, status, retry_count, max_retries,
			recipient_count, error_message, tracking_enabled, open_count,
			click_count, created_at, sent_at, next_retry_at, updated_at`

// DeliveryRepository manages per-channel delivery state in PostgreSQL.
// A partial unique index on (content_id, channel_id) over non-terminal
// statuses backs the one-in-flight-delivery invariant.
type DeliveryRepository struct {
	db *sqlx.DB
}

// NewDeliveryRepository creates a new repository instance
func NewDeliveryRepository(db *sqlx.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// DeliveryFilter narrows List results. Nil fields are ignored.
type DeliveryFilter struct {
	ContentID *uuid.UUID
	ChannelID *uuid.UUID
	Status    *domain.DeliveryStatus
	Limit     int
}

// CreateBatch inserts one pending delivery log per channel and stamps each
// channel's last_used_at, all inside one transaction. A duplicate in-flight
// delivery for any channel aborts the whole batch with ErrConflict.
func (r *DeliveryRepository) CreateBatch(ctx context.Context, contentID uuid.UUID,
	channels []domain.Channel, maxRetries int) ([]domain.DeliveryLog, error) {

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dispatch transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	insert := `
		INSERT INTO delivery_logs (id, content_id, channel_id, status, retry_count,
			max_retries, tracking_enabled, open_count, click_count, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', 0, $4, $5, 0, 0, NOW(), NOW())
		RETURNING ` + deliverySelectList

	touch := `UPDATE channels SET last_used_at = NOW() WHERE id = $1`

	logs := make([]domain.DeliveryLog, 0, len(channels))
	for _, channel := range channels {
		var log domain.DeliveryLog
		err = tx.QueryRowxContext(
			ctx, insert,
			uuid.New(), contentID, channel.ID, maxRetries,
			channel.Type.SupportsTracking(),
		).StructScan(&log)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: delivery already in flight for channel %q",
					domain.ErrConflict, channel.Name)
			}
			return nil, fmt.Errorf("create delivery log for channel %q: %w", channel.Name, err)
		}

		if _, err = tx.ExecContext(ctx, touch, channel.ID); err != nil {
			return nil, fmt.Errorf("touch channel %q: %w", channel.Name, err)
		}
		logs = append(logs, log)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dispatch transaction: %w", err)
	}
	return logs, nil
}

// FetchDue returns deliveries ready for an attempt: pending ones plus
// retries whose backoff has elapsed. Uses FOR UPDATE SKIP LOCKED for
// concurrent worker safety; the conditional transitions below keep
// correctness if two pollers still overlap.
func (r *DeliveryRepository) FetchDue(ctx context.Context, limit int) ([]domain.DeliveryLog, error) {
	query := `
		UPDATE delivery_logs
		SET updated_at = NOW()
		WHERE id IN (
			SELECT id FROM delivery_logs
			WHERE status = 'pending'
			   OR (status = 'retry' AND (next_retry_at IS NULL OR next_retry_at <= NOW()))
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + deliverySelectList

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due deliveries: %w", err)
	}
	defer rows.Close()

	logs := []domain.DeliveryLog{}
	for rows.Next() {
		var log domain.DeliveryLog
		if scanErr := rows.StructScan(&log); scanErr != nil {
			return nil, fmt.Errorf("scan delivery log: %w", scanErr)
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// MarkSent finalizes a delivery as sent. Conditional on a non-terminal
// status so a late worker cannot revive a finished delivery.
func (r *DeliveryRepository) MarkSent(ctx context.Context, id uuid.UUID, recipientCount *int) error {
	query := `
		UPDATE delivery_logs
		SET status = 'sent',
		    recipient_count = $2,
		    error_message = NULL,
		    sent_at = NOW(),
		    next_retry_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'retry')`

	return r.execExpectOneRow(ctx, "mark sent", query, id, recipientCount)
}

// MarkFailed records a failed attempt. Transient failures with retry budget
// left go to retry with exponential backoff (1min, 2min, 4min, ...);
// everything else is terminally failed. One statement, so the retry
// decision and the counter bump cannot diverge.
func (r *DeliveryRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMsg string, transient bool) error {
	query := `
		UPDATE delivery_logs
		SET retry_count = retry_count + 1,
		    error_message = $2,
		    status = CASE WHEN $3 AND retry_count + 1 < max_retries THEN 'retry' ELSE 'failed' END,
		    next_retry_at = CASE WHEN $3 AND retry_count + 1 < max_retries
		        THEN NOW() + (INTERVAL '1 minute' * POWER(2, retry_count))
		        ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'retry')`

	return r.execExpectOneRow(ctx, "mark failed", query, id, errorMsg, transient)
}

// RecordOpen increments the open counter of a sent, tracked delivery.
// Counters move after sent; the status never does.
func (r *DeliveryRepository) RecordOpen(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE delivery_logs
		SET open_count = open_count + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'sent' AND tracking_enabled = true`

	return r.trackingUpdate(ctx, "record open", query, id)
}

// RecordClick increments the click counter of a sent, tracked delivery
func (r *DeliveryRepository) RecordClick(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE delivery_logs
		SET click_count = click_count + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'sent' AND tracking_enabled = true`

	return r.trackingUpdate(ctx, "record click", query, id)
}

// GetByID retrieves a delivery log by ID
func (r *DeliveryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeliveryLog, error) {
	log := &domain.DeliveryLog{}
	query := `SELECT ` + deliverySelectList + ` FROM delivery_logs WHERE id = $1`

	err := r.db.GetContext(ctx, log, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get delivery log: %w", err)
	}
	return log, nil
}

// List retrieves delivery logs, newest first
func (r *DeliveryRepository) List(ctx context.Context, filter DeliveryFilter) ([]domain.DeliveryLog, error) {
	query := `SELECT ` + deliverySelectList + ` FROM delivery_logs`
	args := []any{}
	conditions := []string{}

	if filter.ContentID != nil {
		args = append(args, *filter.ContentID)
		conditions = append(conditions, fmt.Sprintf("content_id = $%d", len(args)))
	}
	if filter.ChannelID != nil {
		args = append(args, *filter.ChannelID)
		conditions = append(conditions, fmt.Sprintf("channel_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	logs := []domain.DeliveryLog{}
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list delivery logs: %w", err)
	}
	return logs, nil
}

// CleanupTerminal removes old terminal delivery logs
func (r *DeliveryRepository) CleanupTerminal(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM delivery_logs
		WHERE status IN ('sent', 'failed')
		  AND updated_at < NOW() - $1::interval`

	result, err := r.db.ExecContext(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("cleanup delivery logs: %w", err)
	}
	return result.RowsAffected()
}

// trackingUpdate distinguishes a missing record from one that is not
// eligible for tracking updates.
func (r *DeliveryRepository) trackingUpdate(ctx context.Context, op, query string, id uuid.UUID) error {
	err := r.execExpectOneRow(ctx, op, query, id)
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return getErr
	}
	return fmt.Errorf("%w: delivery %s is not a sent, tracked delivery", domain.ErrConflict, id)
}

func (r *DeliveryRepository) execExpectOneRow(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
