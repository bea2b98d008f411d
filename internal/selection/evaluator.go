// Package selection evaluates template selection criteria into a
// deterministic, ordered article set.
package selection

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/CytrexSGR/newsbrief/internal/corpus"
	"github.com/CytrexSGR/newsbrief/internal/domain"
)

// predicate is one independent filter over a corpus article. Predicates for
// present criteria fields are collected and combined as an AND.
type predicate func(corpus.Article) bool

// Evaluator turns selection criteria into an ordered article-id sequence.
// Evaluation is read-only and side-effect free.
type Evaluator struct {
	reader corpus.Reader
	now    func() time.Time
}

// NewEvaluator creates an evaluator over the given corpus reader.
func NewEvaluator(reader corpus.Reader) *Evaluator {
	return &Evaluator{reader: reader, now: func() time.Time { return time.Now().UTC() }}
}

// Evaluate returns the articles matching the criteria, ordered by impact
// score descending (nulls last) then publish time descending, truncated to
// the criteria's article cap. An empty result is valid, not an error.
func (e *Evaluator) Evaluate(ctx context.Context, c *domain.SelectionCriteria) ([]corpus.Article, error) {
	filter := e.buildFilter(c)

	articles, err := e.reader.Search(ctx, filter)
	if err != nil {
		return nil, err
	}

	// Re-apply every predicate in memory so ordering and truncation hold
	// regardless of how much the backend pushed down.
	preds := buildPredicates(c, e.now())
	matched := make([]corpus.Article, 0, len(articles))
	for _, a := range articles {
		if matchesAll(a, preds) {
			matched = append(matched, a)
		}
	}

	sortArticles(matched)

	if limit := c.Limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// EvaluateIDs is Evaluate reduced to the ordered article-id sequence.
func (e *Evaluator) EvaluateIDs(ctx context.Context, c *domain.SelectionCriteria) ([]int64, error) {
	articles, err := e.Evaluate(ctx, c)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	return ids, nil
}

func (e *Evaluator) buildFilter(c *domain.SelectionCriteria) corpus.Filter {
	f := corpus.Filter{
		Keywords:          c.Keywords,
		ExcludeKeywords:   c.ExcludeKeywords,
		MinImpactScore:    c.MinImpactScore,
		MinSentimentScore: c.MinSentimentScore,
		FeedIDs:           c.FeedIDs,
		Limit:             c.Limit(),
	}
	if c.TimeframeHours != nil {
		cutoff := e.now().Add(-time.Duration(*c.TimeframeHours) * time.Hour)
		f.PublishedSince = &cutoff
	}
	return f
}

func buildPredicates(c *domain.SelectionCriteria, now time.Time) []predicate {
	var preds []predicate

	if c.TimeframeHours != nil {
		cutoff := now.Add(-time.Duration(*c.TimeframeHours) * time.Hour)
		preds = append(preds, func(a corpus.Article) bool {
			return a.PublishedAt != nil && !a.PublishedAt.Before(cutoff)
		})
	}

	if len(c.Keywords) > 0 {
		keywords := lowerAll(c.Keywords)
		preds = append(preds, func(a corpus.Article) bool {
			title := strings.ToLower(a.Title)
			for _, kw := range keywords {
				if strings.Contains(title, kw) {
					return true
				}
			}
			return false
		})
	}

	if len(c.ExcludeKeywords) > 0 {
		excluded := lowerAll(c.ExcludeKeywords)
		preds = append(preds, func(a corpus.Article) bool {
			title := strings.ToLower(a.Title)
			for _, kw := range excluded {
				if strings.Contains(title, kw) {
					return false
				}
			}
			return true
		})
	}

	// Score bounds are inclusive and only satisfiable by articles carrying
	// the derived field.
	if c.MinImpactScore != nil {
		min := *c.MinImpactScore
		preds = append(preds, func(a corpus.Article) bool {
			return a.ImpactOverall != nil && *a.ImpactOverall >= min
		})
	}

	if c.MinSentimentScore != nil {
		min := *c.MinSentimentScore
		preds = append(preds, func(a corpus.Article) bool {
			return a.SentimentOverall != nil && *a.SentimentOverall >= min
		})
	}

	if len(c.FeedIDs) > 0 {
		feeds := make(map[int64]struct{}, len(c.FeedIDs))
		for _, id := range c.FeedIDs {
			feeds[id] = struct{}{}
		}
		preds = append(preds, func(a corpus.Article) bool {
			_, ok := feeds[a.FeedID]
			return ok
		})
	}

	return preds
}

func matchesAll(a corpus.Article, preds []predicate) bool {
	for _, p := range preds {
		if !p(a) {
			return false
		}
	}
	return true
}

// sortArticles orders by impact score descending with nulls last, ties
// broken by publish time descending (nil publish times last).
func sortArticles(articles []corpus.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		ai, aj := articles[i], articles[j]

		switch {
		case ai.ImpactOverall != nil && aj.ImpactOverall == nil:
			return true
		case ai.ImpactOverall == nil && aj.ImpactOverall != nil:
			return false
		case ai.ImpactOverall != nil && aj.ImpactOverall != nil && *ai.ImpactOverall != *aj.ImpactOverall:
			return *ai.ImpactOverall > *aj.ImpactOverall
		}

		switch {
		case ai.PublishedAt != nil && aj.PublishedAt == nil:
			return true
		case ai.PublishedAt == nil || aj.PublishedAt == nil:
			return false
		}
		return ai.PublishedAt.After(*aj.PublishedAt)
	})
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
