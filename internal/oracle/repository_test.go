package oracle

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/compliance-oracle/internal/database"
	"github.com/aristath/compliance-oracle/internal/reasoner"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "pending_changes.db")
	db, err := database.New(database.Config{Path: dbPath, Profile: database.ProfileStandard, Name: "pending_changes"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db)
}

func samplePendingChange(id string) *PendingChange {
	return &PendingChange{
		ID:           id,
		CreatedAt:    time.Now().UTC(),
		Jurisdiction: "US",
		Status:       StatusPendingReview,
		Proposal: reasoner.ChangeProposal{
			IsRelevant: true,
			Confidence: 0.9,
			FieldPath:  "exemptions.accredited_investor.income_threshold",
			NewValue:   250000.0,
		},
		SourceUpdate: SourceUpdate{ID: "src_1", Source: "sec_edgar", Title: "Reg D update"},
	}
}

func TestRepository_SaveAndGet_RoundTrips(t *testing.T) {
	repo := newTestRepository(t)
	pc := samplePendingChange("chg_abc123")

	require.NoError(t, repo.Save(pc))

	loaded, err := repo.Get("chg_abc123")
	require.NoError(t, err)
	assert.Equal(t, pc.Jurisdiction, loaded.Jurisdiction)
	assert.Equal(t, pc.Status, loaded.Status)
	assert.Equal(t, pc.Proposal.FieldPath, loaded.Proposal.FieldPath)
	assert.Equal(t, pc.SourceUpdate.Source, loaded.SourceUpdate.Source)
}

func TestRepository_Save_UpsertsById(t *testing.T) {
	repo := newTestRepository(t)
	pc := samplePendingChange("chg_abc123")
	require.NoError(t, repo.Save(pc))

	pc.Status = StatusApproved
	pc.ReviewedBy = "legal@example.com"
	require.NoError(t, repo.Save(pc))

	loaded, err := repo.Get("chg_abc123")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, loaded.Status)
	assert.Equal(t, "legal@example.com", loaded.ReviewedBy)
}

func TestRepository_List_OnlyReturnsPendingReview(t *testing.T) {
	repo := newTestRepository(t)

	pending := samplePendingChange("chg_pending")
	require.NoError(t, repo.Save(pending))

	approved := samplePendingChange("chg_approved")
	approved.Status = StatusApproved
	require.NoError(t, repo.Save(approved))

	list, err := repo.List("")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "chg_pending", list[0].ID)
}

func TestRepository_List_FiltersByJurisdiction(t *testing.T) {
	repo := newTestRepository(t)

	us := samplePendingChange("chg_us")
	us.Jurisdiction = "US"
	require.NoError(t, repo.Save(us))

	sg := samplePendingChange("chg_sg")
	sg.Jurisdiction = "SG"
	require.NoError(t, repo.Save(sg))

	list, err := repo.List("SG")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "chg_sg", list[0].ID)
}

func TestRepository_Get_UnknownIDReturnsError(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.Get("chg_does_not_exist")
	assert.Error(t, err)
}
