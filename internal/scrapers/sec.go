package scrapers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// secFeeds mirrors the SEC EDGAR Atom/RSS feeds monitored for rule and
// no-action-letter publications relevant to tokenized offerings.
var secFeeds = map[string]string{
	"rules":     "https://www.sec.gov/cgi-bin/browse-edgar?action=getcurrent&type=RULE&owner=include&count=40&output=atom",
	"no_action": "https://www.sec.gov/cgi-bin/browse-edgar?action=getcurrent&type=NO-ACT&owner=include&count=40&output=atom",
	"releases":  "https://www.sec.gov/news/pressreleases.rss",
}

// secRelevantKeywords is SEC's domain lexicon for Regulation D / Rule 506
// / Rule 144 style exemptions applicable to tokenized RWA offerings.
var secRelevantKeywords = []string{
	"regulation d",
	"reg d",
	"accredited investor",
	"qualified purchaser",
	"private placement",
	"rule 506",
	"rule 144",
	"holding period",
	"securities offering",
	"digital asset",
	"tokenized",
	"blockchain",
	"exempt offering",
}

// atomFeed is the minimal Atom structure needed to extract entries from
// SEC's feeds.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID      string    `xml:"id"`
	Title   string    `xml:"title"`
	Summary string    `xml:"summary"`
	Updated string    `xml:"updated"`
	Links   []atomLink `xml:"link"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
}

func (e atomEntry) link() string {
	if len(e.Links) > 0 {
		return e.Links[0].Href
	}
	return ""
}

// SECScraper monitors SEC EDGAR's rule, no-action-letter, and press
// release feeds.
type SECScraper struct {
	client  *http.Client
	dataDir string
	log     zerolog.Logger
}

// NewSECScraper creates a SEC EDGAR scraper rooted at dataDir.
func NewSECScraper(dataDir string, log zerolog.Logger) *SECScraper {
	return &SECScraper{
		client:  &http.Client{Timeout: 30 * time.Second},
		dataDir: dataDir,
		log:     log.With().Str("scraper", "sec").Logger(),
	}
}

func (s *SECScraper) Name() string                    { return "sec_edgar" }
func (s *SECScraper) Jurisdiction() string             { return "US" }
func (s *SECScraper) BaseURL() string                  { return "https://www.sec.gov" }
func (s *SECScraper) FeedKind() FeedKind               { return FeedKindFeed }
func (s *SECScraper) UpdateFrequency() time.Duration   { return 24 * time.Hour }

// FetchUpdates fetches, classifies, and cutoff-filters updates across all
// SEC feeds, writes the audit trail, and returns the relevant updates.
func (s *SECScraper) FetchUpdates(ctx context.Context, sinceHours int) ([]RegulatoryUpdate, error) {
	cutoff := time.Now().Add(-time.Duration(sinceHours) * time.Hour)

	var updates []RegulatoryUpdate
	var failed int
	var lastErr error
	for category, feedURL := range secFeeds {
		if len(updates) >= maxUpdatesPerFetch {
			break
		}
		entries, err := s.fetchAndParse(ctx, feedURL)
		if err != nil {
			s.log.Error().Err(err).Str("category", category).Msg("Failed to fetch SEC feed")
			failed++
			lastErr = err
			continue
		}

		for _, entry := range entries {
			matched := matchKeywords(entry.Title, entry.Summary, secRelevantKeywords)
			if len(matched) == 0 {
				continue
			}

			published, err := time.Parse(time.RFC3339, entry.Updated)
			if err != nil {
				published = time.Now()
			}
			if published.Before(cutoff) {
				continue
			}

			updates = append(updates, RegulatoryUpdate{
				ID:               contentHashID(entry.ID),
				Title:            entry.Title,
				Summary:          entry.Summary,
				URL:              entry.link(),
				PublishedAt:      published,
				Category:         category,
				KeywordsMatched:  matched,
				IsBreakingChange: isBreakingChange(entry.Title, entry.Summary),
				Jurisdiction:     s.Jurisdiction(),
				Source:           s.Name(),
			})

			if len(updates) >= maxUpdatesPerFetch {
				break
			}
		}
	}

	if err := writeAuditTrail(s.dataDir, "sec", updates); err != nil {
		s.log.Error().Err(err).Msg("Failed to write SEC audit trail")
	}

	if failed > 0 {
		return updates, fmt.Errorf("%d of %d SEC feeds failed: %w", failed, len(secFeeds), lastErr)
	}
	return updates, nil
}

func (s *SECScraper) fetchAndParse(ctx context.Context, feedURL string) ([]atomEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "RWA-Compliance-Oracle contact@compliance-oracle.example")
	req.Header.Set("Accept", "application/atom+xml, application/xml, text/xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse Atom feed: %w", err)
	}

	return feed.Entries, nil
}

// contentHashID derives a stable short id for a raw feed entry id, using
// sha256 rather than the original implementation's md5.
func contentHashID(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:12]
}
