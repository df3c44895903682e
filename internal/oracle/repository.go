package oracle

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/compliance-oracle/internal/database"
)

// Repository persists PendingChange records in SQLite.
type Repository struct {
	db *database.DB
}

// NewRepository wraps an already-migrated pending_changes database.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Save upserts a PendingChange by id.
func (r *Repository) Save(pc *PendingChange) error {
	proposalJSON, err := json.Marshal(pc.Proposal)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal: %w", err)
	}
	sourceJSON, err := json.Marshal(pc.SourceUpdate)
	if err != nil {
		return fmt.Errorf("failed to marshal source update: %w", err)
	}

	var simulationJSON sql.NullString
	if pc.ImpactSimulation != nil {
		data, err := json.Marshal(pc.ImpactSimulation)
		if err != nil {
			return fmt.Errorf("failed to marshal simulation: %w", err)
		}
		simulationJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err = r.db.Conn().Exec(`
		INSERT INTO pending_changes
			(id, jurisdiction, status, created_at, reviewed_by, reviewed_at, review_notes, applied_at, proposal_json, source_update_json, simulation_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			jurisdiction=excluded.jurisdiction,
			status=excluded.status,
			reviewed_by=excluded.reviewed_by,
			reviewed_at=excluded.reviewed_at,
			review_notes=excluded.review_notes,
			applied_at=excluded.applied_at,
			proposal_json=excluded.proposal_json,
			source_update_json=excluded.source_update_json,
			simulation_json=excluded.simulation_json
	`,
		pc.ID, pc.Jurisdiction, string(pc.Status), pc.CreatedAt.UTC().Format(time.RFC3339Nano),
		pc.ReviewedBy, nullableTimeString(pc.ReviewedAt), pc.ReviewNotes,
		nullableTimeString(pc.AppliedAt), string(proposalJSON), string(sourceJSON), simulationJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save pending change %s: %w", pc.ID, err)
	}
	return nil
}

// Get loads a single PendingChange by id.
func (r *Repository) Get(id string) (*PendingChange, error) {
	row := r.db.Conn().QueryRow(`
		SELECT id, jurisdiction, status, created_at, reviewed_by, reviewed_at, review_notes, applied_at, proposal_json, source_update_json, simulation_json
		FROM pending_changes WHERE id = ?
	`, id)

	pc, err := scanPendingChange(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("pending change %s not found", id)
		}
		return nil, err
	}
	return pc, nil
}

// List returns pending-review changes, newest first, optionally filtered
// by jurisdiction. An empty jurisdiction returns all pending changes
// across every jurisdiction.
func (r *Repository) List(jurisdiction string) ([]PendingChange, error) {
	var rows *sql.Rows
	var err error

	if jurisdiction == "" {
		rows, err = r.db.Conn().Query(`
			SELECT id, jurisdiction, status, created_at, reviewed_by, reviewed_at, review_notes, applied_at, proposal_json, source_update_json, simulation_json
			FROM pending_changes WHERE status = ? ORDER BY created_at DESC
		`, string(StatusPendingReview))
	} else {
		rows, err = r.db.Conn().Query(`
			SELECT id, jurisdiction, status, created_at, reviewed_by, reviewed_at, review_notes, applied_at, proposal_json, source_update_json, simulation_json
			FROM pending_changes WHERE status = ? AND jurisdiction = ? ORDER BY created_at DESC
		`, string(StatusPendingReview), jurisdiction)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list pending changes: %w", err)
	}
	defer rows.Close()

	var out []PendingChange
	for rows.Next() {
		pc, err := scanPendingChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pc)
	}
	return out, rows.Err()
}

// scanner abstracts over *sql.Row and *sql.Rows for scanPendingChange.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPendingChange(s scanner) (*PendingChange, error) {
	var (
		id, jurisdiction, status, createdAt string
		reviewedBy, reviewedAt, reviewNotes sql.NullString
		appliedAt                           sql.NullString
		proposalJSON, sourceJSON            string
		simulationJSON                      sql.NullString
	)

	if err := s.Scan(&id, &jurisdiction, &status, &createdAt, &reviewedBy, &reviewedAt, &reviewNotes, &appliedAt, &proposalJSON, &sourceJSON, &simulationJSON); err != nil {
		return nil, err
	}

	pc := &PendingChange{
		ID:           id,
		Jurisdiction: jurisdiction,
		Status:       Status(status),
		ReviewedBy:   reviewedBy.String,
		ReviewNotes:  reviewNotes.String,
	}

	pc.CreatedAt = parseTime(createdAt)
	if reviewedAt.Valid {
		pc.ReviewedAt = parseTime(reviewedAt.String)
	}
	if appliedAt.Valid {
		pc.AppliedAt = parseTime(appliedAt.String)
	}

	if err := json.Unmarshal([]byte(proposalJSON), &pc.Proposal); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proposal for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(sourceJSON), &pc.SourceUpdate); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source update for %s: %w", id, err)
	}
	if simulationJSON.Valid && simulationJSON.String != "" {
		if err := json.Unmarshal([]byte(simulationJSON.String), &pc.ImpactSimulation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal simulation for %s: %w", id, err)
		}
	}

	return pc, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableTimeString(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}
