package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// proposedRule is a single field the token issuer wants to set for their
// offering, e.g. {"field_path": "exemptions.reg_d.min_net_worth",
// "value": 750000}.
type proposedRule struct {
	FieldPath string      `json:"field_path"`
	Value     interface{} `json:"value"`
}

type validateTokenComplianceRequest struct {
	Jurisdiction  string         `json:"jurisdiction"`
	AssetType     string         `json:"asset_type,omitempty"`
	ProposedRules []proposedRule `json:"proposed_rules"`
}

// ruleViolation is a proposed rule that falls short of what the
// jurisdiction's current ruleset requires.
type ruleViolation struct {
	FieldPath       string      `json:"field_path"`
	ProposedValue   interface{} `json:"proposed_value"`
	RequiredValue   interface{} `json:"required_value"`
	Reason          string      `json:"reason"`
}

type ruleSuggestion struct {
	FieldPath  string `json:"field_path"`
	Suggestion string `json:"suggestion"`
}

type validateTokenComplianceResponse struct {
	Jurisdiction    string           `json:"jurisdiction"`
	RulesetVersion  string           `json:"ruleset_version"`
	Compliant       bool             `json:"compliant"`
	Violations      []ruleViolation  `json:"violations"`
	Suggestions     []ruleSuggestion `json:"suggestions"`
	UnmodeledFields []string         `json:"unmodeled_fields,omitempty"`
}

// minimumFragments are field-path fragments whose ruleset value is a
// floor: a proposed rule violates it by proposing less than what's
// required. maximumFragments are ceilings: violated by proposing more.
var minimumFragments = []string{"min_", "_minimum"}
var maximumFragments = []string{"max_", "_maximum", "_cap"}

// handleValidateTokenCompliance handles POST
// /api/validate-token-compliance: it checks a set of proposed token
// offering rules against the jurisdiction's current ruleset and reports
// which proposed values fall short of the regulatory floor or exceed the
// regulatory ceiling.
func (s *Server) handleValidateTokenCompliance(w http.ResponseWriter, r *http.Request) {
	var req validateTokenComplianceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Jurisdiction == "" {
		s.writeError(w, http.StatusBadRequest, "jurisdiction is required")
		return
	}
	if len(req.ProposedRules) == 0 {
		s.writeError(w, http.StatusBadRequest, "proposed_rules is required")
		return
	}
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "ruleset store unavailable")
		return
	}

	rs, err := s.store.Get(req.Jurisdiction)
	if err != nil {
		s.log.Error().Err(err).Str("jurisdiction", req.Jurisdiction).Msg("failed to load ruleset for compliance validation")
		s.writeError(w, http.StatusInternalServerError, "failed to load ruleset")
		return
	}

	resp := validateTokenComplianceResponse{
		Jurisdiction:   req.Jurisdiction,
		RulesetVersion: rs.Version,
		Violations:     []ruleViolation{},
		Suggestions:    []ruleSuggestion{},
	}

	for _, proposed := range req.ProposedRules {
		required, found := rs.ReadPath(proposed.FieldPath)
		if !found {
			resp.UnmodeledFields = append(resp.UnmodeledFields, proposed.FieldPath)
			continue
		}

		violation, ok := checkRuleBound(proposed.FieldPath, proposed.Value, required)
		if !ok {
			continue
		}
		resp.Violations = append(resp.Violations, violation)
		bound := "match"
		if strings.Contains(violation.Reason, "minimum") {
			bound = "at least"
		} else if strings.Contains(violation.Reason, "maximum") {
			bound = "at most"
		}
		resp.Suggestions = append(resp.Suggestions, ruleSuggestion{
			FieldPath:  proposed.FieldPath,
			Suggestion: fmt.Sprintf("set %s to %s the jurisdiction's required value of %v", proposed.FieldPath, bound, required),
		})
	}

	resp.Compliant = len(resp.Violations) == 0
	s.writeJSON(w, http.StatusOK, resp)
}

// checkRuleBound compares a proposed value against the ruleset's
// required value. When both are numeric, only a field path recognized as
// a minimum floor or maximum ceiling can produce a violation; a numeric
// value on any other path is never reported. When either value is
// non-numeric, a violation is reported when the values differ outright.
func checkRuleBound(fieldPath string, proposed, required interface{}) (ruleViolation, bool) {
	lower := strings.ToLower(fieldPath)

	proposedNum, proposedIsNum := toFloat(proposed)
	requiredNum, requiredIsNum := toFloat(required)

	if proposedIsNum && requiredIsNum {
		switch {
		case containsAny(lower, minimumFragments) && proposedNum < requiredNum:
			return ruleViolation{fieldPath, proposed, required, "proposed value is below the jurisdiction's required minimum"}, true
		case containsAny(lower, maximumFragments) && proposedNum > requiredNum:
			return ruleViolation{fieldPath, proposed, required, "proposed value exceeds the jurisdiction's required maximum"}, true
		}
		return ruleViolation{}, false
	}

	if fmt.Sprintf("%v", proposed) != fmt.Sprintf("%v", required) {
		return ruleViolation{fieldPath, proposed, required, "proposed value does not match the jurisdiction's required value"}, true
	}
	return ruleViolation{}, false
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
