package journal

import (
	"fmt"
	"time"

	"trading-journal/internal/filter"
)

// Impact levels assigned to news items.
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"
)

// NewsItem is a market news article as delivered by a news provider.
type NewsItem struct {
	ID          string
	Title       string
	Description string
	Source      string
	Category    string
	Impact      string
	Sentiment   string
	Symbols     []string
	Tags        []string
	// Score is the provider's relevance score, 0-100.
	Score       float64
	URL         string
	PublishedAt time.Time
	FetchedAt   time.Time
}

func (n NewsItem) Key() string { return n.ID }

func (n NewsItem) Field(name string) (filter.Value, bool) {
	switch name {
	case "title":
		return filter.String(n.Title), true
	case "description":
		return optionalString(n.Description)
	case "source":
		return optionalString(n.Source)
	case "category":
		return optionalString(n.Category)
	case "impact":
		return optionalString(n.Impact)
	case "sentiment":
		return optionalString(n.Sentiment)
	case "symbols":
		return filter.Set(n.Symbols...), true
	case "tags":
		return filter.Set(n.Tags...), true
	case "score":
		return filter.Number(n.Score), true
	case "publishedAt":
		return filter.Time(n.PublishedAt), true
	}
	return filter.Value{}, false
}

func (n NewsItem) Searchable() []string { return []string{n.Title, n.Description} }

// Summary renders the headline with its impact and score.
func (n NewsItem) Summary() string {
	return fmt.Sprintf("[%s %.0f] %s", n.Impact, n.Score, n.Title)
}

// NewsSchema orders news by relevance, most recent first on ties.
var NewsSchema = filter.Schema{
	Name: filter.ScopeNews,
	Fields: map[string]filter.Kind{
		"title":       filter.KindString,
		"description": filter.KindString,
		"source":      filter.KindString,
		"category":    filter.KindString,
		"impact":      filter.KindString,
		"sentiment":   filter.KindString,
		"symbols":     filter.KindSet,
		"tags":        filter.KindSet,
		"score":       filter.KindNumber,
		"publishedAt": filter.KindTime,
	},
	DefaultSort: filter.SortSpec{Key: "score", Direction: filter.Desc},
	Recency:     "publishedAt",
}
