package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/compliance-oracle/internal/oracle"
	"github.com/aristath/compliance-oracle/internal/scrapers"
)

// scraperJurisdiction maps a scraper's Name() to the jurisdiction code
// the Oracle should process its updates under.
var scraperJurisdiction = map[string]string{
	"sec_edgar":     "US",
	"mas_circulars": "SG",
}

// runLog is the per-tick summary persisted to
// data/regulatory_updates/daily_runs/<run_id>.json.
type runLog struct {
	RunID          string         `json:"run_id"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	SourceCounts   map[string]int `json:"source_counts"`
	BreakingCounts map[string]int `json:"breaking_counts"`
	ProposalIDs    []string       `json:"proposal_ids"`
	Errors         []string       `json:"errors,omitempty"`
}

// scraperSource is the subset of scrapers.Registry the job depends on,
// broken out as an interface so tests can substitute a fake source
// rather than hit live regulator feeds over the network.
type scraperSource interface {
	FetchAll(ctx context.Context, cfg scrapers.RegistryConfig) map[string]scrapers.ScraperResult
}

// DailyUpdateJob runs every enabled scraper, routes breaking updates
// through the Regulatory Oracle, and records a run-log. It tolerates
// partial failures: a scraper or Oracle error is captured in the run-log
// rather than aborting the tick.
type DailyUpdateJob struct {
	registry scraperSource
	config   scrapers.RegistryConfig
	oracle   *oracle.Oracle
	dataDir  string
	log      zerolog.Logger

	mu      sync.Mutex // prevents overlapping runs
	running bool
}

// NewDailyUpdateJob creates the scheduler.Job that drives the daily
// regulatory scan.
func NewDailyUpdateJob(registry scraperSource, config scrapers.RegistryConfig, orc *oracle.Oracle, dataDir string, log zerolog.Logger) *DailyUpdateJob {
	return &DailyUpdateJob{
		registry: registry,
		config:   config,
		oracle:   orc,
		dataDir:  dataDir,
		log:      log.With().Str("job", "daily_update").Logger(),
	}
}

// Name identifies this job to the Scheduler.
func (j *DailyUpdateJob) Name() string { return "daily_update" }

// Run executes one orchestrator tick.
func (j *DailyUpdateJob) Run() error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return fmt.Errorf("daily_update is already running, skipping this tick")
	}
	j.running = true
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	log := runLog{
		RunID:          generateRunID(),
		StartedAt:      time.Now().UTC(),
		SourceCounts:   map[string]int{},
		BreakingCounts: map[string]int{},
		ProposalIDs:    []string{},
	}

	results := j.registry.FetchAll(ctx, j.config)

	for source, result := range results {
		log.SourceCounts[source] = len(result.Updates)
		if result.Error != "" {
			log.Errors = append(log.Errors, fmt.Sprintf("%s: %s", source, result.Error))
		}

		jurisdiction, ok := scraperJurisdiction[source]
		if !ok {
			jurisdiction = "UNKNOWN"
		}

		for _, update := range result.Updates {
			if !update.IsBreakingChange {
				continue
			}
			log.BreakingCounts[source]++

			updateText := update.Title + "\n\n" + update.Summary
			processResult, err := j.oracle.ProcessUpdate(ctx, updateText, jurisdiction, oracle.SourceUpdate{
				ID:          update.ID,
				Source:      source,
				Title:       update.Title,
				URL:         update.URL,
				PublishedAt: update.PublishedAt,
			})
			if err != nil {
				log.Errors = append(log.Errors, fmt.Sprintf("oracle: %s (%s): %v", update.ID, source, err))
				j.log.Error().Err(err).Str("update_id", update.ID).Str("source", source).Msg("Oracle failed to process update")
				continue
			}
			if processResult.Accepted {
				log.ProposalIDs = append(log.ProposalIDs, processResult.ChangeID)
			}
		}
	}

	log.FinishedAt = time.Now().UTC()

	if err := j.writeRunLog(log); err != nil {
		j.log.Error().Err(err).Msg("Failed to write daily run log")
	}

	j.log.Info().
		Str("run_id", log.RunID).
		Int("proposals", len(log.ProposalIDs)).
		Int("errors", len(log.Errors)).
		Msg("Daily update tick completed")

	return nil
}

func (j *DailyUpdateJob) writeRunLog(log runLog) error {
	dir := filepath.Join(j.dataDir, "regulatory_updates", "daily_runs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create daily_runs directory: %w", err)
	}

	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run log: %w", err)
	}

	path := filepath.Join(dir, log.RunID+".json")
	return os.WriteFile(path, data, 0644)
}

func generateRunID() string {
	return "run_" + time.Now().UTC().Format("20060102_150405") + "_" + uuid.New().String()[:8]
}
