package scrapers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// auditRecord is the append-only per-fetch document written alongside a
// scraper's raw updates, for compliance audit trail purposes.
type auditRecord struct {
	FetchedAt time.Time          `json:"fetched_at"`
	Count     int                `json:"count"`
	Updates   []RegulatoryUpdate `json:"updates"`
}

// writeAuditTrail persists updates to a timestamped JSON file under
// dataDir/regulatory_updates/<source>/. A zero-length slice is a no-op —
// there is nothing worth auditing about an empty fetch.
func writeAuditTrail(dataDir, source string, updates []RegulatoryUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	dir := filepath.Join(dataDir, "regulatory_updates", source)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create audit directory for %s: %w", source, err)
	}

	record := auditRecord{
		FetchedAt: time.Now().UTC(),
		Count:     len(updates),
		Updates:   updates,
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal audit record for %s: %w", source, err)
	}

	filename := fmt.Sprintf("%s_updates_%s.json", source, time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(dir, filename)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write audit trail for %s: %w", source, err)
	}

	return nil
}
