package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// masCircularsURL is MAS's circulars JSON API. The reimplementation
// trades the original's brittle HTML scraping for this structured feed —
// MAS publishes circular metadata as JSON, so there is no reason to
// parse markup for it.
const masCircularsURL = "https://www.mas.gov.sg/api/v1/circulars"

// masRelevantKeywords is MAS's domain lexicon for Securities and Futures
// Act / accredited-investor / digital-payment-token provisions.
var masRelevantKeywords = []string{
	"securities and futures act",
	"sfa",
	"accredited investor",
	"capital markets",
	"cms license",
	"digital payment token",
	"dpt",
	"collective investment scheme",
	"exempt fund manager",
	"private placement",
	"section 275",
	"section 4a",
}

type masCircularsResponse struct {
	Circulars []masCircular `json:"circulars"`
}

type masCircular struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
	DocType     string `json:"document_type"`
}

// MASScraper monitors MAS's circulars API for Singapore digital-asset and
// securities regulation updates.
type MASScraper struct {
	client  *http.Client
	dataDir string
	log     zerolog.Logger
}

// NewMASScraper creates a MAS circulars scraper rooted at dataDir.
func NewMASScraper(dataDir string, log zerolog.Logger) *MASScraper {
	return &MASScraper{
		client:  &http.Client{Timeout: 30 * time.Second},
		dataDir: dataDir,
		log:     log.With().Str("scraper", "mas").Logger(),
	}
}

func (s *MASScraper) Name() string                  { return "mas_circulars" }
func (s *MASScraper) Jurisdiction() string           { return "SG" }
func (s *MASScraper) BaseURL() string                { return "https://www.mas.gov.sg" }
func (s *MASScraper) FeedKind() FeedKind             { return FeedKindAPI }
func (s *MASScraper) UpdateFrequency() time.Duration { return 48 * time.Hour }

// FetchUpdates fetches, classifies, and cutoff-filters updates from the
// MAS circulars API, writes the audit trail, and returns relevant updates.
func (s *MASScraper) FetchUpdates(ctx context.Context, sinceHours int) ([]RegulatoryUpdate, error) {
	cutoff := time.Now().Add(-time.Duration(sinceHours) * time.Hour)

	circulars, err := s.fetchCirculars(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to fetch MAS circulars")
		return nil, err
	}

	var updates []RegulatoryUpdate
	for _, c := range circulars {
		matched := matchKeywords(c.Title, c.Summary, masRelevantKeywords)
		if len(matched) == 0 {
			continue
		}

		published, err := time.Parse(time.RFC3339, c.PublishedAt)
		if err != nil {
			published = time.Now()
		}
		if published.Before(cutoff) {
			continue
		}

		updates = append(updates, RegulatoryUpdate{
			ID:               contentHashID(c.ID),
			Title:            c.Title,
			Summary:          c.Summary,
			URL:              c.URL,
			PublishedAt:      published,
			Category:         c.DocType,
			KeywordsMatched:  matched,
			IsBreakingChange: isBreakingChange(c.Title, c.Summary),
			Jurisdiction:     s.Jurisdiction(),
			Source:           s.Name(),
		})

		if len(updates) >= maxUpdatesPerFetch {
			break
		}
	}

	if err := writeAuditTrail(s.dataDir, "mas", updates); err != nil {
		s.log.Error().Err(err).Msg("Failed to write MAS audit trail")
	}

	return updates, nil
}

func (s *MASScraper) fetchCirculars(ctx context.Context) ([]masCircular, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, masCircularsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch circulars: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("circulars API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read circulars response: %w", err)
	}

	var parsed masCircularsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse circulars response: %w", err)
	}

	return parsed.Circulars, nil
}
