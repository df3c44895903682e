// Package scrapers monitors regulator publication feeds for updates
// relevant to tokenized real-world-asset offerings, classifies them
// against relevance and breaking-change lexicons, and hands them to the
// scheduler for Oracle dispatch.
package scrapers

import (
	"context"
	"time"
)

// FeedKind identifies how a scraper obtains its source material.
type FeedKind string

const (
	FeedKindFeed   FeedKind = "feed"
	FeedKindAPI    FeedKind = "api"
	FeedKindScrape FeedKind = "scrape"
)

// maxUpdatesPerFetch bounds how many entries a single fetch extracts,
// regardless of how many the upstream source returns.
const maxUpdatesPerFetch = 20

// RegulatoryUpdate is a single normalized publication from a regulator
// feed, classified against the relevance and breaking-change lexicons.
type RegulatoryUpdate struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Summary          string    `json:"summary"`
	URL              string    `json:"url"`
	PublishedAt      time.Time `json:"published_date"`
	Category         string    `json:"category"`
	KeywordsMatched  []string  `json:"keywords_matched"`
	IsBreakingChange bool      `json:"is_breaking_change"`
	Jurisdiction     string    `json:"jurisdiction"`
	Source           string    `json:"source"`
}

// Scraper fetches and classifies regulatory updates from a single
// regulator's publication feed.
type Scraper interface {
	Name() string
	Jurisdiction() string
	BaseURL() string
	FeedKind() FeedKind
	UpdateFrequency() time.Duration

	// FetchUpdates returns updates published within sinceHours, normalized
	// and classified. Transient fetch errors are returned but must not
	// panic — the scheduler tolerates per-source failures.
	FetchUpdates(ctx context.Context, sinceHours int) ([]RegulatoryUpdate, error)
}

// breakingChangeKeywords is common across all scrapers. A match sets
// IsBreakingChange regardless of which relevance keyword, if any, also
// matched.
var breakingChangeKeywords = []string{
	"amendment",
	"repeal",
	"new rule",
	"effective immediately",
	"threshold change",
	"definition change",
	"final rule",
	"supersedes",
	"revised",
	"consultation paper",
}

func isBreakingChange(title, summary string) bool {
	text := normalize(title + " " + summary)
	for _, kw := range breakingChangeKeywords {
		if contains(text, kw) {
			return true
		}
	}
	return false
}

func matchKeywords(title, summary string, lexicon []string) []string {
	text := normalize(title + " " + summary)
	var matched []string
	for _, kw := range lexicon {
		if contains(text, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}
