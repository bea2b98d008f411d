package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/CytrexSGR/newsbrief/internal/domain"
)

// contentSelectList is the column list for SELECT/RETURNING on generated_content
const contentSelectList = `id, template_id, title, body, output_format, source_article_ids,
			article_count, word_count, cost_usd, generation_seconds, model_used,
			status, error_message, generated_at, published_at`

// ContentRepository manages generated briefing content in PostgreSQL.
// Content fields are immutable after insert; only status transitions and
// the published_at stamp are updatable.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository creates a new repository instance
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// ContentFilter narrows List results. Nil fields are ignored.
type ContentFilter struct {
	TemplateID *uuid.UUID
	Status     *domain.ContentStatus
	Limit      int
}

// Create inserts a new content record in status generated
func (r *ContentRepository) Create(ctx context.Context, content *domain.GeneratedContent) (*domain.GeneratedContent, error) {
	if err := content.Validate(); err != nil {
		return nil, err
	}

	if content.ID == uuid.Nil {
		content.ID = uuid.New()
	}
	if content.Status == "" {
		content.Status = domain.ContentStatusGenerated
	}
	if content.GeneratedAt.IsZero() {
		content.GeneratedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO generated_content (id, template_id, title, body, output_format,
			source_article_ids, article_count, word_count, cost_usd,
			generation_seconds, model_used, status, error_message, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + contentSelectList

	row := r.db.QueryRowContext(
		ctx, query,
		content.ID, content.TemplateID, content.Title, content.Body, content.OutputFormat,
		pq.Int64Array(content.SourceArticleIDs), content.ArticleCount, content.WordCount,
		content.CostUSD, content.GenerationSeconds, content.ModelUsed, content.Status,
		content.ErrorMessage, content.GeneratedAt,
	)
	stored, err := scanContent(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: template %s", domain.ErrNotFound, content.TemplateID)
		}
		return nil, fmt.Errorf("failed to create content: %w", err)
	}
	return stored, nil
}

// GetByID retrieves a content record by ID
func (r *ContentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.GeneratedContent, error) {
	query := `SELECT ` + contentSelectList + ` FROM generated_content WHERE id = $1`

	content, err := scanContent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	return content, nil
}

// List retrieves content records, newest first
func (r *ContentRepository) List(ctx context.Context, filter ContentFilter) ([]domain.GeneratedContent, error) {
	query := `SELECT ` + contentSelectList + ` FROM generated_content`
	args := []any{}
	argPos := 1

	if filter.TemplateID != nil {
		query += fmt.Sprintf(" WHERE template_id = $%d", argPos)
		args = append(args, *filter.TemplateID)
		argPos++
	}
	if filter.Status != nil {
		if argPos == 1 {
			query += " WHERE"
		} else {
			query += " AND"
		}
		query += fmt.Sprintf(" status = $%d", argPos)
		args = append(args, *filter.Status)
		argPos++
	}
	query += " ORDER BY generated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}
	defer rows.Close()

	items := []domain.GeneratedContent{}
	for rows.Next() {
		content, scanErr := scanContent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan content: %w", scanErr)
		}
		items = append(items, *content)
	}
	return items, rows.Err()
}

// TransitionStatus moves a content record from one status to another as a
// single compare-and-set. published_at is stamped on the transition to
// published. Returns ErrConflict when the record exists but is no longer in
// the expected status.
func (r *ContentRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.ContentStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: illegal content transition %s -> %s", domain.ErrValidation, from, to)
	}

	query := `
		UPDATE generated_content
		SET status = $3,
		    published_at = CASE WHEN $3 = 'published' THEN NOW() ELSE published_at END
		WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to transition content status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Distinguish a missing record from a concurrent status change.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: content %s is no longer %s", domain.ErrConflict, id, from)
	}
	return nil
}

// HasRecentContent reports whether the template produced non-failed content
// inside the given window. Used by the enqueue skip policy.
func (r *ContentRepository) HasRecentContent(ctx context.Context, templateID uuid.UUID, window time.Duration) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM generated_content
			WHERE template_id = $1
			  AND status <> 'failed'
			  AND generated_at > NOW() - $2::interval
		)`

	if err := r.db.QueryRowContext(ctx, query, templateID, window.String()).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check recent content: %w", err)
	}
	return exists, nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(row rowScanner) (*domain.GeneratedContent, error) {
	var c domain.GeneratedContent
	var sourceIDs pq.Int64Array

	err := row.Scan(
		&c.ID, &c.TemplateID, &c.Title, &c.Body, &c.OutputFormat, &sourceIDs,
		&c.ArticleCount, &c.WordCount, &c.CostUSD, &c.GenerationSeconds, &c.ModelUsed,
		&c.Status, &c.ErrorMessage, &c.GeneratedAt, &c.PublishedAt,
	)
	if err != nil {
		return nil, err
	}
	c.SourceArticleIDs = sourceIDs
	return &c, nil
}
