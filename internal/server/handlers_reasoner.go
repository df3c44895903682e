package server

import (
	"encoding/json"
	"net/http"
)

type classifyJurisdictionRequest struct {
	DocumentText string `json:"document_text"`
	DocumentType string `json:"document_type"`
}

// handleClassifyJurisdiction handles POST /api/classify-jurisdiction.
func (s *Server) handleClassifyJurisdiction(w http.ResponseWriter, r *http.Request) {
	var req classifyJurisdictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocumentText == "" {
		s.writeError(w, http.StatusBadRequest, "document_text is required")
		return
	}

	if s.gateway == nil {
		s.writeError(w, http.StatusServiceUnavailable, "reasoner unavailable")
		return
	}

	result, err := s.gateway.ClassifyJurisdiction(r.Context(), req.DocumentText, req.DocumentType)
	if err != nil {
		s.log.Error().Err(err).Msg("classify-jurisdiction failed")
		s.writeError(w, http.StatusInternalServerError, "classification failed")
		return
	}

	result.RequiresManualReview = result.RequiresManualReview || result.Confidence < s.uiFlagThreshold
	s.writeJSON(w, http.StatusOK, result)
}

type resolveConflictsRequest struct {
	Jurisdictions     []string `json:"jurisdictions"`
	AssetType         string   `json:"asset_type"`
	InvestorTypes     []string `json:"investor_types"`
	RegulatoryContext string   `json:"regulatory_context,omitempty"`
}

// handleResolveConflicts handles POST /api/resolve-conflicts.
func (s *Server) handleResolveConflicts(w http.ResponseWriter, r *http.Request) {
	var req resolveConflictsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Jurisdictions) == 0 {
		s.writeError(w, http.StatusBadRequest, "jurisdictions is required")
		return
	}

	if s.gateway == nil || s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "reasoner unavailable")
		return
	}

	rulesetVersion := s.store.Version(req.Jurisdictions)

	regulatoryContext := req.RegulatoryContext
	if regulatoryContext == "" {
		ctx, err := s.store.Context(req.Jurisdictions)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to build rules context for conflict resolution")
		} else {
			regulatoryContext = ctx
		}
	}

	result, err := s.gateway.ResolveConflicts(r.Context(), req.Jurisdictions, req.InvestorTypes, req.AssetType, regulatoryContext, rulesetVersion)
	if err != nil {
		s.log.Error().Err(err).Msg("resolve-conflicts failed")
		s.writeError(w, http.StatusInternalServerError, "conflict resolution failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}
