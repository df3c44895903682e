package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleValidateTokenCompliance_FlagsBelowMinimum(t *testing.T) {
	s, _, _, dataDir := newTestServer(t, "{}")
	writeJurisdictionFixture(t, dataDir, "US", map[string]interface{}{
		"exemptions": map[string]interface{}{
			"accredited_investor": map[string]interface{}{
				"min_net_worth": 1000000.0,
			},
		},
	})

	body, _ := json.Marshal(validateTokenComplianceRequest{
		Jurisdiction: "US",
		ProposedRules: []proposedRule{
			{FieldPath: "exemptions.accredited_investor.min_net_worth", Value: 500000.0},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/validate-token-compliance", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleValidateTokenCompliance(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp validateTokenComplianceResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Compliant)
	require.Len(t, resp.Violations, 1)
	assert.Equal(t, "exemptions.accredited_investor.min_net_worth", resp.Violations[0].FieldPath)
	require.Len(t, resp.Suggestions, 1)
}

func TestHandleValidateTokenCompliance_CompliantWhenMeetsFloor(t *testing.T) {
	s, _, _, dataDir := newTestServer(t, "{}")
	writeJurisdictionFixture(t, dataDir, "US", map[string]interface{}{
		"exemptions": map[string]interface{}{
			"accredited_investor": map[string]interface{}{
				"min_net_worth": 1000000.0,
			},
		},
	})

	body, _ := json.Marshal(validateTokenComplianceRequest{
		Jurisdiction: "US",
		ProposedRules: []proposedRule{
			{FieldPath: "exemptions.accredited_investor.min_net_worth", Value: 1500000.0},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/validate-token-compliance", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleValidateTokenCompliance(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp validateTokenComplianceResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Compliant)
	assert.Empty(t, resp.Violations)
}

func TestHandleValidateTokenCompliance_UnmodeledFieldDoesNotFail(t *testing.T) {
	s, _, _, dataDir := newTestServer(t, "{}")
	writeJurisdictionFixture(t, dataDir, "US", nil)

	body, _ := json.Marshal(validateTokenComplianceRequest{
		Jurisdiction: "US",
		ProposedRules: []proposedRule{
			{FieldPath: "exemptions.nonexistent.field", Value: 42},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/validate-token-compliance", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleValidateTokenCompliance(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp validateTokenComplianceResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Compliant)
	assert.Contains(t, resp.UnmodeledFields, "exemptions.nonexistent.field")
}

func TestHandleValidateTokenCompliance_RejectsEmptyRules(t *testing.T) {
	s, _, _, _ := newTestServer(t, "{}")

	body, _ := json.Marshal(validateTokenComplianceRequest{Jurisdiction: "US"})
	req := httptest.NewRequest(http.MethodPost, "/api/validate-token-compliance", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleValidateTokenCompliance(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
