package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/compliance-oracle/internal/oracle"
)

type analyzeRequest struct {
	UpdateText   string              `json:"update_text"`
	Jurisdiction string              `json:"jurisdiction"`
	Source       oracle.SourceUpdate `json:"source"`
}

// handleOracleAnalyze handles POST /api/oracle/analyze: runs a scraped
// or manually-submitted regulatory update through the admission policy.
func (s *Server) handleOracleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UpdateText == "" || req.Jurisdiction == "" {
		s.writeError(w, http.StatusBadRequest, "update_text and jurisdiction are required")
		return
	}
	if s.orc == nil {
		s.writeError(w, http.StatusServiceUnavailable, "oracle unavailable")
		return
	}

	result, err := s.orc.ProcessUpdate(r.Context(), req.UpdateText, req.Jurisdiction, req.Source)
	if err != nil {
		s.log.Error().Err(err).Str("jurisdiction", req.Jurisdiction).Msg("oracle analyze failed")
		s.writeError(w, http.StatusInternalServerError, "failed to process update")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleOraclePendingList handles GET /api/oracle/pending.
func (s *Server) handleOraclePendingList(w http.ResponseWriter, r *http.Request) {
	jurisdiction := r.URL.Query().Get("jurisdiction")

	changes, err := s.orc.List(jurisdiction)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list pending changes")
		s.writeError(w, http.StatusInternalServerError, "failed to list pending changes")
		return
	}

	s.writeJSON(w, http.StatusOK, changes)
}

// handleOraclePendingGet handles GET /api/oracle/pending/{id}.
func (s *Server) handleOraclePendingGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	pc, err := s.orc.Get(id)
	if err != nil {
		s.writeOracleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, pc)
}

type approveRequest struct {
	Reviewer         string `json:"reviewer"`
	Notes            string `json:"notes,omitempty"`
	ApplyImmediately bool   `json:"apply_immediately"`
}

// handleOraclePendingApprove handles POST /api/oracle/pending/{id}/approve.
func (s *Server) handleOraclePendingApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reviewer == "" {
		s.writeError(w, http.StatusBadRequest, "reviewer is required")
		return
	}

	result, err := s.orc.Approve(r.Context(), id, req.Reviewer, req.Notes, req.ApplyImmediately)
	if err != nil {
		s.writeOracleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

type rejectRequest struct {
	Reviewer string `json:"reviewer"`
	Reason   string `json:"reason"`
}

// handleOraclePendingReject handles POST /api/oracle/pending/{id}/reject.
func (s *Server) handleOraclePendingReject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reviewer == "" || req.Reason == "" {
		s.writeError(w, http.StatusBadRequest, "reviewer and reason are required")
		return
	}

	if err := s.orc.Reject(id, req.Reviewer, req.Reason); err != nil {
		s.writeOracleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"change_id": id, "status": string(oracle.StatusRejected)})
}

type simulateRequest struct {
	UseMockData bool `json:"use_mock_data"`
}

// handleOraclePendingSimulate handles POST /api/oracle/pending/{id}/simulate.
func (s *Server) handleOraclePendingSimulate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req simulateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := s.orc.RunSimulation(r.Context(), id, req.UseMockData)
	if err != nil {
		s.writeOracleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleOraclePendingImpact handles GET /api/oracle/pending/{id}/impact.
func (s *Server) handleOraclePendingImpact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	pc, err := s.orc.Get(id)
	if err != nil {
		s.writeOracleError(w, err)
		return
	}
	if pc.ImpactSimulation == nil {
		s.writeError(w, http.StatusNotFound, "no impact simulation available for this change")
		return
	}

	s.writeJSON(w, http.StatusOK, pc.ImpactSimulation)
}

// handleOraclePendingCasualties handles GET
// /api/oracle/pending/{id}/casualties?limit=&offset=, a paginated view
// over the cached simulation's casualty list.
func (s *Server) handleOraclePendingCasualties(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	pc, err := s.orc.Get(id)
	if err != nil {
		s.writeOracleError(w, err)
		return
	}
	if pc.ImpactSimulation == nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"total": 0, "casualties": []string{}})
		return
	}

	casualties := pc.ImpactSimulation.Casualties
	total := len(casualties)

	offset := parseQueryInt(r, "offset", 0)
	limit := parseQueryInt(r, "limit", total)

	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":      total,
		"casualties": casualties[offset:end],
	})
}

// handleOracleHistory handles GET /api/oracle/history/{jurisdiction}?limit=.
func (s *Server) handleOracleHistory(w http.ResponseWriter, r *http.Request) {
	jurisdiction := chi.URLParam(r, "jurisdiction")
	limit := parseQueryInt(r, "limit", 0)

	entries, err := s.orc.History(jurisdiction, limit)
	if err != nil {
		s.writeOracleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, entries)
}

// writeOracleError maps oracle/rulesets errors to HTTP status codes.
// "not found" lookups are 404s; terminal-state transition errors (e.g.
// approving an already-rejected change) are caller mistakes, 400s;
// anything else is an internal failure.
func (s *Server) writeOracleError(w http.ResponseWriter, err error) {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "not found"):
		s.writeError(w, http.StatusNotFound, errStr)
	case strings.Contains(errStr, "not pending_review"):
		s.writeError(w, http.StatusBadRequest, errStr)
	default:
		s.log.Error().Err(err).Msg("oracle request failed")
		s.writeError(w, http.StatusInternalServerError, errStr)
	}
}

func parseQueryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
