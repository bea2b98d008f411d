package domain

// SelectionCriteria narrows the article corpus for one template. Every field
// is optional; absent filters do not constrain the result. Stored as JSONB on
// the template row.
type SelectionCriteria struct {
	Keywords         []string  `json:"keywords,omitempty"`
	ExcludeKeywords  []string  `json:"exclude_keywords,omitempty"`
	TimeframeHours   *int      `json:"timeframe_hours,omitempty"`
	MinImpactScore   *float64  `json:"min_impact_score,omitempty"`
	MinSentimentScore *float64 `json:"min_sentiment_score,omitempty"`
	FeedIDs          []int64   `json:"feed_ids,omitempty"`
	CategoryNames    []string  `json:"category_names,omitempty"`
	SourceNames      []string  `json:"source_names,omitempty"`
	MaxArticles      *int      `json:"max_articles,omitempty"`
}

// DefaultMaxArticles is used when criteria do not set max_articles.
const DefaultMaxArticles = 50

// Limit returns the effective article cap for these criteria.
func (c *SelectionCriteria) Limit() int {
	if c.MaxArticles != nil && *c.MaxArticles > 0 {
		return *c.MaxArticles
	}
	return DefaultMaxArticles
}

// IsEmpty reports whether no filter at all is present.
func (c *SelectionCriteria) IsEmpty() bool {
	return len(c.Keywords) == 0 &&
		len(c.ExcludeKeywords) == 0 &&
		c.TimeframeHours == nil &&
		c.MinImpactScore == nil &&
		c.MinSentimentScore == nil &&
		len(c.FeedIDs) == 0 &&
		len(c.CategoryNames) == 0 &&
		len(c.SourceNames) == 0 &&
		c.MaxArticles == nil
}
