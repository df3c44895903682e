// Package oracle implements the Regulatory Oracle: the decision core
// that turns a scraped regulatory update into a reviewable, simulated,
// and (once approved) applied ruleset patch.
package oracle

import (
	"time"

	"github.com/aristath/compliance-oracle/internal/reasoner"
	"github.com/aristath/compliance-oracle/internal/simulator"
)

// Status is the lifecycle state of a PendingChange. Transitions are
// monotonic: pending_review -> {approved, rejected}; approved ->
// applied. There is no re-open.
type Status string

const (
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusApplied       Status = "applied"
	StatusExpired       Status = "expired"
)

// terminal reports whether a status accepts no further transitions.
func (s Status) terminal() bool {
	return s == StatusRejected || s == StatusApplied || s == StatusExpired
}

// SourceUpdate is the scraped regulatory update a PendingChange was
// generated from, kept for audit/provenance purposes.
type SourceUpdate struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// PendingChange is a single proposed ruleset patch awaiting (or past)
// legal review.
type PendingChange struct {
	ID           string                     `json:"id"`
	CreatedAt    time.Time                  `json:"created_at"`
	Jurisdiction string                     `json:"jurisdiction"`
	Status       Status                     `json:"status"`
	Proposal     reasoner.ChangeProposal    `json:"proposal"`
	SourceUpdate SourceUpdate               `json:"source_update"`

	ReviewedBy   string    `json:"reviewed_by,omitempty"`
	ReviewedAt   time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes  string    `json:"review_notes,omitempty"`
	AppliedAt    time.Time `json:"applied_at,omitempty"`

	ImpactSimulation *simulator.SimulationResult `json:"impact_simulation,omitempty"`
	SimulationError  string                      `json:"simulation_error,omitempty"`
}

// ProcessResult is what ProcessUpdate reports back to the scheduler/caller.
type ProcessResult struct {
	Accepted    bool   `json:"accepted"`
	Reason      string `json:"reason"` // "accepted", "not_relevant", "low_confidence"
	ChangeID    string `json:"change_id,omitempty"`
}

// ApproveResult reports the outcome of approving a PendingChange.
type ApproveResult struct {
	ChangeID   string `json:"change_id"`
	Status     Status `json:"status"`
	NewVersion string `json:"new_version,omitempty"`
}
