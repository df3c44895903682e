package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/compliance-oracle/internal/reasoner"
)

func TestHandleClassifyJurisdiction_ReturnsResult(t *testing.T) {
	classification, _ := json.Marshal(reasoner.JurisdictionResult{
		Jurisdiction:           "US",
		EntityType:             "individual",
		InvestorClassification: "accredited",
		Confidence:             0.92,
	})
	s, _, _, _ := newTestServer(t, string(classification))

	body, _ := json.Marshal(classifyJurisdictionRequest{DocumentText: "investor subscription agreement", DocumentType: "subscription_agreement"})
	req := httptest.NewRequest(http.MethodPost, "/api/classify-jurisdiction", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleClassifyJurisdiction(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var result reasoner.JurisdictionResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, "US", result.Jurisdiction)
	assert.False(t, result.RequiresManualReview)
}

func TestHandleClassifyJurisdiction_FlagsLowConfidence(t *testing.T) {
	classification, _ := json.Marshal(reasoner.JurisdictionResult{
		Jurisdiction: "US",
		Confidence:   0.40,
	})
	s, _, _, _ := newTestServer(t, string(classification))

	body, _ := json.Marshal(classifyJurisdictionRequest{DocumentText: "ambiguous document"})
	req := httptest.NewRequest(http.MethodPost, "/api/classify-jurisdiction", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleClassifyJurisdiction(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var result reasoner.JurisdictionResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.True(t, result.RequiresManualReview)
}

func TestHandleClassifyJurisdiction_RejectsMissingDocumentText(t *testing.T) {
	s, _, _, _ := newTestServer(t, "{}")

	body, _ := json.Marshal(classifyJurisdictionRequest{DocumentType: "prospectus"})
	req := httptest.NewRequest(http.MethodPost, "/api/classify-jurisdiction", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleClassifyJurisdiction(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleResolveConflicts_UsesStoreContextAndVersion(t *testing.T) {
	conflictResult, _ := json.Marshal(reasoner.ConflictResult{
		HasConflicts: true,
		Confidence:   0.8,
	})
	s, store, _, dataDir := newTestServer(t, string(conflictResult))
	writeJurisdictionFixture(t, dataDir, "US", nil)
	writeJurisdictionFixture(t, dataDir, "SG", nil)

	body, _ := json.Marshal(resolveConflictsRequest{
		Jurisdictions: []string{"US", "SG"},
		AssetType:     "real_estate_token",
		InvestorTypes: []string{"retail", "accredited"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/resolve-conflicts", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleResolveConflicts(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var result reasoner.ConflictResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.True(t, result.HasConflicts)

	assert.NotEqual(t, "unknown", store.Version([]string{"US", "SG"}))
}

func TestHandleResolveConflicts_RejectsMissingJurisdictions(t *testing.T) {
	s, _, _, _ := newTestServer(t, "{}")

	body, _ := json.Marshal(resolveConflictsRequest{AssetType: "real_estate_token"})
	req := httptest.NewRequest(http.MethodPost, "/api/resolve-conflicts", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleResolveConflicts(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
