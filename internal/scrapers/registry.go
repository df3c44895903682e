package scrapers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Registry holds the enabled scrapers, keyed by Name.
type Registry struct {
	scrapers map[string]Scraper
	log      zerolog.Logger
}

// RegistryConfig controls which scrapers are enabled and their cutoff
// windows.
type RegistryConfig struct {
	DataDir          string
	SECEnabled       bool
	SECSinceHours    int
	MASEnabled       bool
	MASSinceHours    int
}

// NewRegistry builds a Registry from config, wiring only enabled
// scrapers.
func NewRegistry(cfg RegistryConfig, log zerolog.Logger) *Registry {
	r := &Registry{
		scrapers: make(map[string]Scraper),
		log:      log.With().Str("component", "scraper_registry").Logger(),
	}

	if cfg.SECEnabled {
		s := NewSECScraper(cfg.DataDir, log)
		r.scrapers[s.Name()] = s
	}
	if cfg.MASEnabled {
		s := NewMASScraper(cfg.DataDir, log)
		r.scrapers[s.Name()] = s
	}

	return r
}

// All returns every enabled scraper.
func (r *Registry) All() []Scraper {
	out := make([]Scraper, 0, len(r.scrapers))
	for _, s := range r.scrapers {
		out = append(out, s)
	}
	return out
}

// Get returns a single scraper by name.
func (r *Registry) Get(name string) (Scraper, error) {
	s, ok := r.scrapers[name]
	if !ok {
		return nil, fmt.Errorf("scraper %q not registered", name)
	}
	return s, nil
}

// SinceHoursFor returns the configured cutoff window for a scraper name.
func SinceHoursFor(cfg RegistryConfig, name string) int {
	switch name {
	case "sec_edgar":
		return cfg.SECSinceHours
	case "mas_circulars":
		return cfg.MASSinceHours
	default:
		return 24
	}
}

// FetchAll runs every enabled scraper and collects results, tolerating
// per-scraper failures: a scraper error is recorded but does not prevent
// the others from running.
func (r *Registry) FetchAll(ctx context.Context, cfg RegistryConfig) map[string]ScraperResult {
	results := make(map[string]ScraperResult, len(r.scrapers))

	for name, s := range r.scrapers {
		sinceHours := SinceHoursFor(cfg, name)
		updates, err := s.FetchUpdates(ctx, sinceHours)
		result := ScraperResult{Updates: updates}
		if err != nil {
			result.Error = err.Error()
			r.log.Error().Err(err).Str("scraper", name).Msg("Scraper fetch failed")
		}
		results[name] = result
	}

	return results
}

// ScraperResult is one scraper's contribution to a scheduler tick.
type ScraperResult struct {
	Updates []RegulatoryUpdate `json:"updates"`
	Error   string             `json:"error,omitempty"`
}
