package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/compliance-oracle/internal/database"
	"github.com/aristath/compliance-oracle/internal/events"
	"github.com/aristath/compliance-oracle/internal/reasoner"
	"github.com/aristath/compliance-oracle/internal/rulesets"
	"github.com/aristath/compliance-oracle/internal/simulator"
)

func completionPayload(content string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return body
}

func newTestOracle(t *testing.T, gatewayContent string) *Oracle {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionPayload(gatewayContent))
	}))
	t.Cleanup(srv.Close)

	gateway := reasoner.New(reasoner.Config{BaseURL: srv.URL, APIKey: "test", Model: "test-model"}, zerolog.Nop())

	dataDir := t.TempDir()
	store := rulesets.New(dataDir, nil, events.NewManager(zerolog.Nop()), zerolog.Nop())

	dbPath := filepath.Join(t.TempDir(), "pending_changes.db")
	db, err := database.New(database.Config{Path: dbPath, Profile: database.ProfileStandard, Name: "pending_changes"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	repo := NewRepository(db)

	sim := simulator.New(nil, zerolog.Nop())

	return New(Config{
		Store:         store,
		Gateway:       gateway,
		Simulator:     sim,
		Repo:          repo,
		Events:        events.NewManager(zerolog.Nop()),
		MinConfidence: 0.75,
	}, zerolog.Nop())
}

func TestProcessUpdate_NotRelevantIsDiscarded(t *testing.T) {
	o := newTestOracle(t, `{"is_relevant": false, "confidence": 0.9}`)

	result, err := o.ProcessUpdate(context.Background(), "some update text", "US", SourceUpdate{ID: "src_1", Source: "sec_edgar"})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, reasonNotRelevant, result.Reason)
}

func TestProcessUpdate_BelowConfidenceIsDeferred(t *testing.T) {
	o := newTestOracle(t, `{"is_relevant": true, "confidence": 0.5, "field_path": "exemptions.accredited_investor.income_threshold", "new_value": 250000}`)

	result, err := o.ProcessUpdate(context.Background(), "some update text", "US", SourceUpdate{ID: "src_1", Source: "sec_edgar"})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, reasonLowConfidence, result.Reason)
}

func TestProcessUpdate_AcceptedPersistsPendingChangeWithSimulation(t *testing.T) {
	o := newTestOracle(t, `{"is_relevant": true, "confidence": 0.9, "field_path": "exemptions.accredited_investor.income_threshold", "old_value": 200000, "new_value": 250000}`)

	result, err := o.ProcessUpdate(context.Background(), "some update text", "US", SourceUpdate{ID: "src_1", Source: "sec_edgar"})
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.NotEmpty(t, result.ChangeID)

	pc, err := o.Get(result.ChangeID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingReview, pc.Status)
	assert.NotNil(t, pc.ImpactSimulation)
}

func TestApproveThenReject_OnlyValidFromPendingReview(t *testing.T) {
	o := newTestOracle(t, `{"is_relevant": true, "confidence": 0.9, "field_path": "exemptions.accredited_investor.income_threshold", "old_value": 200000, "new_value": 250000}`)

	result, err := o.ProcessUpdate(context.Background(), "some update text", "US", SourceUpdate{ID: "src_1", Source: "sec_edgar"})
	require.NoError(t, err)

	approveResult, err := o.Approve(context.Background(), result.ChangeID, "legal@example.com", "looks fine", false)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approveResult.Status)

	err = o.Reject(result.ChangeID, "legal@example.com", "changed my mind")
	assert.Error(t, err, "rejecting an already-approved change must fail")
}

func TestApprove_ApplyImmediatelyPatchesRulesetAndTransitionsToApplied(t *testing.T) {
	o := newTestOracle(t, `{"is_relevant": true, "confidence": 0.9, "field_path": "exemptions.accredited_investor.income_threshold", "old_value": 200000, "new_value": 250000}`)

	result, err := o.ProcessUpdate(context.Background(), "some update text", "US", SourceUpdate{ID: "src_1", Source: "sec_edgar"})
	require.NoError(t, err)

	approveResult, err := o.Approve(context.Background(), result.ChangeID, "legal@example.com", "approved and applied", true)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, approveResult.Status)
	assert.NotEmpty(t, approveResult.NewVersion)

	pc, err := o.Get(result.ChangeID)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, pc.Status)

	history, err := o.History("US", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, result.ChangeID, history[0].ChangeID)
}

func TestReject_TransitionsToRejectedTerminally(t *testing.T) {
	o := newTestOracle(t, `{"is_relevant": true, "confidence": 0.9, "field_path": "exemptions.accredited_investor.income_threshold", "old_value": 200000, "new_value": 250000}`)

	result, err := o.ProcessUpdate(context.Background(), "some update text", "US", SourceUpdate{ID: "src_1", Source: "sec_edgar"})
	require.NoError(t, err)

	require.NoError(t, o.Reject(result.ChangeID, "legal@example.com", "not actionable"))

	pc, err := o.Get(result.ChangeID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, pc.Status)

	_, err = o.Approve(context.Background(), result.ChangeID, "legal@example.com", "", false)
	assert.Error(t, err, "approving a rejected change must fail")
}

func TestGenerateChangeID_IsStableForSameInputs(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	a := generateChangeID("US", "exemptions.cap", 250000.0, now)
	b := generateChangeID("US", "exemptions.cap", 250000.0, now)
	assert.Equal(t, a, b)
	assert.Len(t, a, len("chg_")+12)
}
