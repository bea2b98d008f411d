// Package corpus provides read-only access to the article corpus that
// selection criteria are evaluated against.
package corpus

import (
	"context"
	"time"
)

// Article is the corpus view of one ingested article. The analysis scores are
// derived fields and may be absent.
type Article struct {
	ID               int64      `db:"id"`
	Title            string     `db:"title"`
	PublishedAt      *time.Time `db:"published_at"`
	FeedID           int64      `db:"feed_id"`
	ImpactOverall    *float64   `db:"impact_overall"`
	SentimentOverall *float64   `db:"sentiment_overall"`
}

// Filter is the predicate pushed down to the corpus backend. Zero values
// mean "no constraint"; the evaluator re-applies every predicate in memory,
// so a backend is free to ignore any of these and over-fetch.
type Filter struct {
	PublishedSince    *time.Time
	Keywords          []string
	ExcludeKeywords   []string
	MinImpactScore    *float64
	MinSentimentScore *float64
	FeedIDs           []int64
	Limit             int
}

// Reader is the corpus access contract consumed by the selection evaluator.
type Reader interface {
	// Search returns articles matching the filter, ordered by impact score
	// descending with nulls last, then publish time descending. A Reader
	// that cannot be reached returns an error wrapping
	// domain.ErrDependencyUnavailable.
	Search(ctx context.Context, f Filter) ([]Article, error)
}
