package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/compliance-oracle/internal/events"
	"github.com/aristath/compliance-oracle/internal/reasoner"
	"github.com/aristath/compliance-oracle/internal/rulesets"
	"github.com/aristath/compliance-oracle/internal/simulator"
)

// reasonNotRelevant / reasonLowConfidence / reasonAccepted are the
// ProcessResult.Reason values the admission policy can produce.
const (
	reasonNotRelevant   = "not_relevant"
	reasonLowConfidence = "low_confidence"
	reasonAccepted      = "accepted"
)

// Oracle is the Regulatory Oracle decision core: it turns a scraped
// update into a PendingChange (subject to an admission policy), runs
// impact simulations, and applies approved changes to the Ruleset Store.
type Oracle struct {
	store         *rulesets.Store
	gateway       *reasoner.Gateway
	simulator     *simulator.Simulator
	repo          *Repository
	events        *events.Manager
	minConfidence float64
	log           zerolog.Logger
}

// Config holds the Oracle's dependencies.
type Config struct {
	Store         *rulesets.Store
	Gateway       *reasoner.Gateway
	Simulator     *simulator.Simulator
	Repo          *Repository
	Events        *events.Manager
	MinConfidence float64 // admission threshold, default 0.75 per spec
}

// New creates an Oracle.
func New(cfg Config, log zerolog.Logger) *Oracle {
	minConfidence := cfg.MinConfidence
	if minConfidence == 0 {
		minConfidence = 0.75
	}
	return &Oracle{
		store:         cfg.Store,
		gateway:       cfg.Gateway,
		simulator:     cfg.Simulator,
		repo:          cfg.Repo,
		events:        cfg.Events,
		minConfidence: minConfidence,
		log:           log.With().Str("component", "regulatory_oracle").Logger(),
	}
}

// generateChangeID derives a content-hash id for a proposed patch from the
// target file, field path, new value and a second-resolution timestamp.
// Identical inputs give the same id; re-processing the same update at a
// later second gives a new id.
func generateChangeID(targetFile, fieldPath string, newValue interface{}, timestamp time.Time) string {
	raw := fmt.Sprintf("%s|%s|%v|%s", targetFile, fieldPath, newValue, timestamp.UTC().Format(time.RFC3339))
	sum := sha256.Sum256([]byte(raw))
	return "chg_" + hex.EncodeToString(sum[:])[:12]
}

// ProcessUpdate runs a scraped regulatory update through the Reasoner
// Gateway, applies the admission policy (not-relevant -> discard,
// below-confidence -> defer, otherwise -> accept), and — on acceptance —
// runs an impact simulation inline and then persists the PendingChange
// with its result. A simulation failure is attached to the PendingChange
// but never invalidates the proposal itself.
func (o *Oracle) ProcessUpdate(ctx context.Context, updateText, jurisdiction string, source SourceUpdate) (*ProcessResult, error) {
	rulesContext, err := o.store.Context([]string{jurisdiction})
	if err != nil {
		return nil, fmt.Errorf("failed to build rules context for %s: %w", jurisdiction, err)
	}

	proposal, err := o.gateway.AnalyzeRegulatoryImpact(ctx, updateText, rulesContext, jurisdiction)
	if err != nil {
		return nil, fmt.Errorf("reasoner gateway failed: %w", err)
	}

	if !proposal.IsRelevant {
		return &ProcessResult{Accepted: false, Reason: reasonNotRelevant}, nil
	}
	if proposal.Confidence < o.minConfidence {
		o.log.Info().
			Str("jurisdiction", jurisdiction).
			Float64("confidence", proposal.Confidence).
			Float64("min_confidence", o.minConfidence).
			Msg("Proposal deferred: below confidence threshold")
		return &ProcessResult{Accepted: false, Reason: reasonLowConfidence}, nil
	}

	changeID := generateChangeID(jurisdiction, proposal.FieldPath, proposal.NewValue, time.Now().UTC())

	pc := &PendingChange{
		ID:           changeID,
		CreatedAt:    time.Now().UTC(),
		Jurisdiction: jurisdiction,
		Status:       StatusPendingReview,
		Proposal:     *proposal,
		SourceUpdate: source,
	}

	if o.simulator != nil {
		simProposal := simulator.Proposal{
			ID:                      changeID,
			Jurisdiction:            jurisdiction,
			FieldPath:               proposal.FieldPath,
			OldValue:                proposal.OldValue,
			NewValue:                proposal.NewValue,
			RequiresImmediateAction: proposal.RequiresImmediateAction,
		}
		result, simErr := o.simulator.Simulate(ctx, simProposal, true)
		if simErr != nil {
			o.log.Warn().Err(simErr).Str("change_id", changeID).Msg("Impact simulation failed, proposal still admitted")
			pc.SimulationError = simErr.Error()
		} else {
			pc.ImpactSimulation = result
		}
	}

	if err := o.repo.Save(pc); err != nil {
		return nil, fmt.Errorf("failed to persist pending change: %w", err)
	}

	if o.events != nil {
		o.events.Emit(events.ProposalCreated, "oracle", map[string]interface{}{
			"change_id":    changeID,
			"jurisdiction": jurisdiction,
			"field":        proposal.FieldPath,
			"confidence":   proposal.Confidence,
		})
	}

	return &ProcessResult{Accepted: true, Reason: reasonAccepted, ChangeID: changeID}, nil
}

// RunSimulation re-runs the Impact Simulator for a pending change,
// replacing its attached simulation result.
func (o *Oracle) RunSimulation(ctx context.Context, changeID string, useMockData bool) (*simulator.SimulationResult, error) {
	pc, err := o.repo.Get(changeID)
	if err != nil {
		return nil, err
	}

	simProposal := simulator.Proposal{
		ID:                      pc.ID,
		Jurisdiction:            pc.Jurisdiction,
		FieldPath:               pc.Proposal.FieldPath,
		OldValue:                pc.Proposal.OldValue,
		NewValue:                pc.Proposal.NewValue,
		RequiresImmediateAction: pc.Proposal.RequiresImmediateAction,
	}
	result, err := o.simulator.Simulate(ctx, simProposal, useMockData)
	if err != nil {
		return nil, fmt.Errorf("simulation failed for %s: %w", changeID, err)
	}

	pc.ImpactSimulation = result
	pc.SimulationError = ""
	if err := o.repo.Save(pc); err != nil {
		return nil, fmt.Errorf("failed to persist simulation result: %w", err)
	}

	if o.events != nil {
		o.events.Emit(events.SimulationCompleted, "oracle", map[string]interface{}{
			"change_id": changeID,
			"severity":  string(result.Severity),
		})
	}

	return result, nil
}

// Approve transitions a pending change to approved, and — if
// applyImmediately is set — applies it to the Ruleset Store in the same
// call, transitioning it to applied. Only a change in pending_review may
// be approved.
func (o *Oracle) Approve(ctx context.Context, changeID, reviewer, notes string, applyImmediately bool) (*ApproveResult, error) {
	pc, err := o.repo.Get(changeID)
	if err != nil {
		return nil, err
	}
	if pc.Status != StatusPendingReview {
		return nil, fmt.Errorf("pending change %s is %s, not pending_review", changeID, pc.Status)
	}

	pc.Status = StatusApproved
	pc.ReviewedBy = reviewer
	pc.ReviewedAt = time.Now().UTC()
	pc.ReviewNotes = notes

	result := &ApproveResult{ChangeID: changeID, Status: pc.Status}

	if applyImmediately {
		newVersion, err := o.applyToStore(pc)
		if err != nil {
			// The change stays approved-but-unapplied; the caller can
			// retry applying it later.
			if saveErr := o.repo.Save(pc); saveErr != nil {
				o.log.Error().Err(saveErr).Str("change_id", changeID).Msg("Failed to persist approval after apply failure")
			}
			return nil, fmt.Errorf("failed to apply change %s: %w", changeID, err)
		}
		pc.Status = StatusApplied
		pc.AppliedAt = time.Now().UTC()
		result.Status = pc.Status
		result.NewVersion = newVersion
	}

	if err := o.repo.Save(pc); err != nil {
		return nil, fmt.Errorf("failed to persist approval: %w", err)
	}

	eventType := events.ProposalApproved
	if pc.Status == StatusApplied {
		eventType = events.ProposalApplied
	}
	if o.events != nil {
		o.events.Emit(eventType, "oracle", map[string]interface{}{
			"change_id":    changeID,
			"jurisdiction": pc.Jurisdiction,
			"reviewer":     reviewer,
		})
	}

	return result, nil
}

func (o *Oracle) applyToStore(pc *PendingChange) (string, error) {
	prov := rulesets.Provenance{
		ChangeID: pc.ID,
		Source:   "oracle",
		OldValue: pc.Proposal.OldValue,
		Summary:  pc.Proposal.Summary,
	}
	return o.store.ApplyPatch(pc.Jurisdiction, pc.Proposal.FieldPath, pc.Proposal.NewValue, prov)
}

// Reject transitions a pending change to rejected. Only a change in
// pending_review may be rejected; rejection is terminal.
func (o *Oracle) Reject(changeID, reviewer, reason string) error {
	pc, err := o.repo.Get(changeID)
	if err != nil {
		return err
	}
	if pc.Status != StatusPendingReview {
		return fmt.Errorf("pending change %s is %s, not pending_review", changeID, pc.Status)
	}

	pc.Status = StatusRejected
	pc.ReviewedBy = reviewer
	pc.ReviewedAt = time.Now().UTC()
	pc.ReviewNotes = reason

	if err := o.repo.Save(pc); err != nil {
		return fmt.Errorf("failed to persist rejection: %w", err)
	}

	if o.events != nil {
		o.events.Emit(events.ProposalRejected, "oracle", map[string]interface{}{
			"change_id":    changeID,
			"jurisdiction": pc.Jurisdiction,
			"reviewer":     reviewer,
			"reason":       reason,
		})
	}

	return nil
}

// Get returns a single pending change.
func (o *Oracle) Get(changeID string) (*PendingChange, error) {
	return o.repo.Get(changeID)
}

// List returns pending-review changes, optionally filtered by jurisdiction.
func (o *Oracle) List(jurisdiction string) ([]PendingChange, error) {
	return o.repo.List(jurisdiction)
}

// History returns the changelog for a jurisdiction's ruleset, newest
// entries last (as stored), capped at limit.
func (o *Oracle) History(jurisdiction string, limit int) ([]rulesets.ChangelogEntry, error) {
	rs, err := o.store.Get(jurisdiction)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(rs.Changelog) {
		return rs.Changelog, nil
	}
	return rs.Changelog[len(rs.Changelog)-limit:], nil
}
