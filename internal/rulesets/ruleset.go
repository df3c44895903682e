// Package rulesets implements the Jurisdiction Ruleset Store: versioned,
// per-jurisdiction structured rules that are the source of truth for all
// downstream compliance decisions.
package rulesets

import (
	"encoding/json"
	"time"
)

// ChangelogCap bounds the number of changelog entries retained per ruleset.
const ChangelogCap = 20

// ChangelogEntry records a single applied patch.
type ChangelogEntry struct {
	ChangeID  string      `json:"change_id"`
	Field     string      `json:"field"`
	OldValue  interface{} `json:"old_value"`
	NewValue  interface{} `json:"new_value"`
	Summary   string      `json:"summary"`
	Source    string      `json:"source"`
	Timestamp time.Time   `json:"timestamp"`
	// Drift is set when the observed value at apply time disagreed with
	// the provenance's recorded old_value. The patch still applied.
	Drift bool `json:"drift,omitempty"`
}

// Ruleset is the nested, schema-free document for one jurisdiction.
type Ruleset struct {
	Jurisdiction string           `json:"jurisdiction"`
	Version      string           `json:"version"`
	LastUpdated  time.Time        `json:"last_updated"`
	Changelog    []ChangelogEntry `json:"changelog"`

	// LastOracleUpdate records the id of the most recent PendingChange
	// applied to this ruleset, per spec.md's round-trip law.
	LastOracleUpdate string `json:"last_oracle_update,omitempty"`

	// Fields holds the arbitrary regulatory-field tree, addressable by
	// dot-path. It is marshaled/unmarshaled alongside the fixed attributes
	// above via custom MarshalJSON/UnmarshalJSON.
	Fields map[string]interface{} `json:"-"`

	// dayCounter and day are not read or written; the within-day NNN
	// component is derived from Version when the next version is computed.
	dayCounter int
	day        string
}

// reservedKeys are the fixed top-level attributes that are not part of the
// free-form regulatory field tree.
var reservedKeys = map[string]bool{
	"jurisdiction":       true,
	"version":            true,
	"last_updated":       true,
	"changelog":          true,
	"last_oracle_update": true,
}

// MarshalJSON flattens Fields into the top-level document alongside the
// fixed attributes, matching the schema-free documents the original
// scrapers and Oracle operate on.
func (r *Ruleset) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{}
	for k, v := range r.Fields {
		out[k] = v
	}
	out["jurisdiction"] = r.Jurisdiction
	out["version"] = r.Version
	out["last_updated"] = r.LastUpdated
	out["changelog"] = r.Changelog
	if r.LastOracleUpdate != "" {
		out["last_oracle_update"] = r.LastOracleUpdate
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the fixed attributes out of the document, leaving
// everything else in Fields.
func (r *Ruleset) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type fixed struct {
		Jurisdiction     string           `json:"jurisdiction"`
		Version          string           `json:"version"`
		LastUpdated      time.Time        `json:"last_updated"`
		Changelog        []ChangelogEntry `json:"changelog"`
		LastOracleUpdate string           `json:"last_oracle_update"`
	}
	var f fixed
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	r.Jurisdiction = f.Jurisdiction
	r.Version = f.Version
	r.LastUpdated = f.LastUpdated
	r.Changelog = f.Changelog
	r.LastOracleUpdate = f.LastOracleUpdate

	r.Fields = make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if reservedKeys[k] {
			continue
		}
		r.Fields[k] = v
	}

	return nil
}

// Empty returns a new, versionless ruleset for the given jurisdiction —
// returned by Get on a missing/unreadable file so callers degrade
// gracefully rather than erroring.
func Empty(jurisdiction string) *Ruleset {
	return &Ruleset{
		Jurisdiction: jurisdiction,
		Version:      "",
		LastUpdated:  time.Time{},
		Changelog:    nil,
		Fields:       map[string]interface{}{},
	}
}

// clone deep-copies a ruleset via a JSON round trip so readers holding a
// snapshot are never affected by a concurrent ApplyPatch.
func (r *Ruleset) clone() *Ruleset {
	data, err := json.Marshal(r)
	if err != nil {
		return Empty(r.Jurisdiction)
	}
	out := &Ruleset{}
	if err := json.Unmarshal(data, out); err != nil {
		return Empty(r.Jurisdiction)
	}
	return out
}
