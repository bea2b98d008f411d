package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ContentStatus is the lifecycle state of a generated briefing.
type ContentStatus string

const (
	ContentStatusGenerated ContentStatus = "generated"
	ContentStatusPublished ContentStatus = "published"
	ContentStatusArchived  ContentStatus = "archived"
	ContentStatusFailed    ContentStatus = "failed"
)

// contentTransitions is the closed transition table for content status.
// Content fields themselves never mutate after creation.
var contentTransitions = map[ContentStatus][]ContentStatus{
	ContentStatusGenerated: {ContentStatusPublished, ContentStatusArchived, ContentStatusFailed},
	ContentStatusPublished: {ContentStatusArchived},
}

// ParseContentStatus validates a raw content status value at the boundary.
func ParseContentStatus(raw string) (ContentStatus, error) {
	switch s := ContentStatus(raw); s {
	case ContentStatusGenerated, ContentStatusPublished, ContentStatusArchived, ContentStatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unrecognized content status %q", ErrValidation, raw)
	}
}

// CanTransition reports whether from -> to is a legal content status change.
func (s ContentStatus) CanTransition(to ContentStatus) bool {
	for _, next := range contentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// GeneratedContent is the immutable artifact produced by one successful
// generation job over a chosen article set. Only the status (and the
// published_at stamp) may change after insert.
type GeneratedContent struct {
	ID                uuid.UUID     `db:"id"                 json:"id"`
	TemplateID        uuid.UUID     `db:"template_id"        json:"template_id"`
	Title             string        `db:"title"              json:"title"`
	Body              string        `db:"body"               json:"body"`
	OutputFormat      OutputFormat  `db:"output_format"      json:"output_format"`
	SourceArticleIDs  []int64       `db:"-"                  json:"source_article_ids"`
	ArticleCount      int           `db:"article_count"      json:"article_count"`
	WordCount         int           `db:"word_count"         json:"word_count"`
	CostUSD           float64       `db:"cost_usd"           json:"cost_usd"`
	GenerationSeconds float64       `db:"generation_seconds" json:"generation_seconds"`
	ModelUsed         string        `db:"model_used"         json:"model_used"`
	Status            ContentStatus `db:"status"             json:"status"`
	ErrorMessage      *string       `db:"error_message"      json:"error_message,omitempty"`
	GeneratedAt       time.Time     `db:"generated_at"       json:"generated_at"`
	PublishedAt       *time.Time    `db:"published_at"       json:"published_at,omitempty"`
}

// Validate checks the construction invariants: provenance must be non-empty
// and consistent with the article count.
func (c *GeneratedContent) Validate() error {
	if len(c.SourceArticleIDs) == 0 {
		return fmt.Errorf("%w: source_article_ids must be non-empty", ErrValidation)
	}
	if c.ArticleCount != len(c.SourceArticleIDs) {
		return fmt.Errorf("%w: article_count %d does not match %d source articles",
			ErrValidation, c.ArticleCount, len(c.SourceArticleIDs))
	}
	return nil
}
