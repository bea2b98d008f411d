package corpus

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/CytrexSGR/newsbrief/internal/domain"
)

// PostgresReader reads the article corpus from the articles table, with the
// derived analysis scores joined in as nullable columns.
type PostgresReader struct {
	db *sqlx.DB
}

// NewPostgresReader wires a sqlx.DB implementation.
func NewPostgresReader(db *sqlx.DB) *PostgresReader {
	return &PostgresReader{db: db}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Search builds the corpus query as an AND of the present filters. Each
// filter contributes one independent predicate; absent filters contribute
// nothing.
func (r *PostgresReader) Search(ctx context.Context, f Filter) ([]Article, error) {
	q := psql.Select(
		"a.id", "a.title", "a.published_at", "a.feed_id",
		"n.impact_overall", "n.sentiment_overall",
	).
		From("articles a").
		LeftJoin("article_analysis n ON n.article_id = a.id")

	if f.PublishedSince != nil {
		q = q.Where(sq.GtOrEq{"a.published_at": *f.PublishedSince})
	}

	// Keywords OR-match on title; at least one must hit.
	if len(f.Keywords) > 0 {
		or := make(sq.Or, 0, len(f.Keywords))
		for _, kw := range f.Keywords {
			or = append(or, sq.ILike{"a.title": "%" + kw + "%"})
		}
		q = q.Where(or)
	}

	// Exclusions AND-NOT-match; none may hit.
	for _, kw := range f.ExcludeKeywords {
		q = q.Where(sq.NotILike{"a.title": "%" + kw + "%"})
	}

	// Score bounds only apply to articles carrying the analysis field;
	// articles without it are excluded once the filter is present.
	if f.MinImpactScore != nil {
		q = q.Where(sq.GtOrEq{"n.impact_overall": *f.MinImpactScore})
	}
	if f.MinSentimentScore != nil {
		q = q.Where(sq.GtOrEq{"n.sentiment_overall": *f.MinSentimentScore})
	}

	if len(f.FeedIDs) > 0 {
		q = q.Where(sq.Expr("a.feed_id = ANY(?)", pq.Int64Array(f.FeedIDs)))
	}

	q = q.OrderBy("n.impact_overall DESC NULLS LAST", "a.published_at DESC")

	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build corpus query: %w", err)
	}

	articles := []Article{}
	if err := r.db.SelectContext(ctx, &articles, query, args...); err != nil {
		return nil, fmt.Errorf("%w: corpus query: %v", domain.ErrDependencyUnavailable, err)
	}

	return articles, nil
}
