package reasoner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Config{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Model:      "test-model",
		MaxRetries: 2,
	}, zerolog.Nop())
}

func completionPayload(content string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return body
}

func TestAnalyzeRegulatoryImpact_ParsesStructuredProposal(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionPayload(`{"is_relevant": true, "confidence": 0.9, "field_path": "exemptions.cap", "new_value": 5000000}`))
	})

	proposal, err := g.AnalyzeRegulatoryImpact(context.Background(), "update text", "{}", "US")
	require.NoError(t, err)
	assert.True(t, proposal.IsRelevant)
	assert.Equal(t, 0.9, proposal.Confidence)
	assert.Equal(t, "US", proposal.Jurisdiction)
}

func TestAnalyzeRegulatoryImpact_StripsCodeFence(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionPayload("```json\n{\"is_relevant\": false, \"confidence\": 0.1}\n```"))
	})

	proposal, err := g.AnalyzeRegulatoryImpact(context.Background(), "update text", "{}", "US")
	require.NoError(t, err)
	assert.False(t, proposal.IsRelevant)
}

func TestAnalyzeRegulatoryImpact_NonJSONYieldsZeroConfidence(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionPayload("this is not json at all"))
	})

	proposal, err := g.AnalyzeRegulatoryImpact(context.Background(), "update text", "{}", "US")
	require.NoError(t, err)
	assert.False(t, proposal.IsRelevant)
	assert.Equal(t, 0.0, proposal.Confidence)
	assert.Contains(t, proposal.Reasoning, "parse error")
}

func TestComplete_RetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(completionPayload("ok"))
	})

	text, err := g.Complete(context.Background(), "prompt", 10, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, attempts)
}

func TestComplete_DoesNotRetryOn400(t *testing.T) {
	attempts := 0
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := g.Complete(context.Background(), "prompt", 10, 0, nil)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestClassifyJurisdiction_FallsBackOnTransportError(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	result, err := g.ClassifyJurisdiction(context.Background(), "doc text", "passport")
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN", result.Jurisdiction)
	assert.Equal(t, "retail", result.InvestorClassification)
	assert.True(t, result.RequiresManualReview)
	assert.Equal(t, 0.3, result.Confidence)
}

func TestResolveConflicts_FallbackReturnsStrictestRuleset(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	result, err := g.ResolveConflicts(context.Background(), []string{"US", "SG"}, []string{"retail"}, "real_estate", "{}", "2026.01.01.001")
	require.NoError(t, err)
	assert.True(t, result.Fallback)
	assert.True(t, result.HasConflicts)
	assert.Equal(t, true, result.CombinedRequirements["accredited_only"])
}

func TestClassifyConflictType_MapsKnownCategories(t *testing.T) {
	assert.Equal(t, ConflictAccreditation, classifyConflictType("Accreditation mismatch"))
	assert.Equal(t, ConflictLockup, classifyConflictType("holding period conflict"))
	assert.Equal(t, ConflictInvestorLimit, classifyConflictType("investor cap exceeded"))
	assert.Equal(t, ConflictJurisdiction, classifyConflictType("something else entirely"))
}

func TestStripCodeFence_HandlesPlainAndFenced(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
}
