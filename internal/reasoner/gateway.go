package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Temperatures. The Oracle path fixes determinism at 0.0; classification
// and conflict-resolution style calls use a slightly warmer 0.1.
const (
	TemperatureOracle         = 0.0
	TemperatureClassification = 0.1
)

// Gateway talks to the configured LLM completion endpoint. It is the only
// place in the system that knows the prompt shapes for regulatory impact
// analysis, jurisdiction classification, and conflict resolution.
type Gateway struct {
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	client     *http.Client
	log        zerolog.Logger
}

// Config configures a Gateway.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// New creates a Reasoner Gateway client.
func New(cfg Config, log zerolog.Logger) *Gateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &Gateway{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{Timeout: cfg.Timeout},
		log:        log.With().Str("client", "reasoner").Logger(),
	}
}

// completionRequest mirrors the chat-completions payload shape.
type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Stop        []string  `json:"stop,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Complete sends a single completion request, retrying with exponential
// backoff on 429/5xx, and returns the model's raw response text.
func (g *Gateway) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64, stop []string) (string, error) {
	payload := completionRequest{
		Model:       g.model,
		Messages:    []message{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stop:        stop,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal reasoner request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		text, retryable, err := g.attemptComplete(ctx, body)
		if err == nil {
			return text, nil
		}

		lastErr = err
		if !retryable {
			return "", err
		}

		g.log.Warn().Err(err).Int("attempt", attempt+1).Msg("Reasoner request failed, retrying")

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	return "", fmt.Errorf("reasoner request failed after %d attempts: %w", g.maxRetries, lastErr)
}

func (g *Gateway) attemptComplete(ctx context.Context, body []byte) (text string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to build reasoner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("reasoner transport error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("failed to read reasoner response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("reasoner returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("reasoner returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed completionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", false, fmt.Errorf("failed to parse reasoner response envelope: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("reasoner response contained no choices")
	}

	return parsed.Choices[0].Message.Content, false, nil
}

// AnalyzeRegulatoryImpact asks the reasoner whether a regulatory update is
// relevant to the given jurisdiction's current ruleset and, if so, for a
// structured ChangeProposal. A non-JSON or schema-malformed response
// yields a zero-confidence, not-relevant proposal rather than an error —
// the Oracle's admission policy discards it cleanly.
func (g *Gateway) AnalyzeRegulatoryImpact(ctx context.Context, updateText, currentRulesContext, jurisdiction string) (*ChangeProposal, error) {
	prompt := buildImpactPrompt(updateText, currentRulesContext, jurisdiction)

	text, err := g.Complete(ctx, prompt, 768, TemperatureOracle, nil)
	if err != nil {
		return nil, err
	}

	var proposal ChangeProposal
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &proposal); err != nil {
		g.log.Error().Err(err).Str("response", text).Msg("Failed to parse reasoner impact-analysis response")
		return &ChangeProposal{
			IsRelevant:   false,
			Confidence:   0,
			Jurisdiction: jurisdiction,
			Reasoning:    fmt.Sprintf("parse error: %v", err),
			SourceText:   truncate(updateText, 2000),
		}, nil
	}

	if proposal.Jurisdiction == "" {
		proposal.Jurisdiction = jurisdiction
	}
	if proposal.SourceText == "" {
		proposal.SourceText = truncate(updateText, 2000)
	}

	return &proposal, nil
}

// ClassifyJurisdiction determines an investor's jurisdiction and
// classification from a submitted document.
func (g *Gateway) ClassifyJurisdiction(ctx context.Context, documentText, documentType string) (*JurisdictionResult, error) {
	prompt := buildClassificationPrompt(documentText, documentType)

	text, err := g.Complete(ctx, prompt, 256, TemperatureClassification, nil)
	if err != nil {
		return fallbackJurisdiction(fmt.Sprintf("transport error: %v", err)), nil
	}

	var result JurisdictionResult
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &result); err != nil {
		g.log.Error().Err(err).Str("response", text).Msg("Failed to parse jurisdiction-classification response")
		return fallbackJurisdiction(fmt.Sprintf("parse error: %v", err)), nil
	}

	return &result, nil
}

func fallbackJurisdiction(reason string) *JurisdictionResult {
	return &JurisdictionResult{
		Jurisdiction:           "UNKNOWN",
		EntityType:             "individual",
		InvestorClassification: "retail",
		ApplicableRegulations:  nil,
		Confidence:             0.3,
		Reasoning:              reason,
		RequiresManualReview:   true,
	}
}

// ResolveConflicts detects and resolves regulatory conflicts across the
// given jurisdictions for a proposed offering.
func (g *Gateway) ResolveConflicts(ctx context.Context, jurisdictions, investorTypes []string, assetType, regulatoryContext, rulesetVersion string) (*ConflictResult, error) {
	prompt := buildConflictPrompt(jurisdictions, investorTypes, assetType, regulatoryContext)

	text, err := g.Complete(ctx, prompt, 1024, TemperatureClassification, nil)
	if err != nil {
		return fallbackConflictResult(rulesetVersion), nil
	}

	var raw struct {
		HasConflicts bool `json:"has_conflicts"`
		Conflicts    []struct {
			Type          string   `json:"type"`
			Jurisdictions []string `json:"jurisdictions"`
			Description   string   `json:"description"`
			RuleA         string   `json:"rule_a"`
			RuleB         string   `json:"rule_b"`
		} `json:"conflicts"`
		Resolutions []struct {
			ConflictType         string `json:"conflict_type"`
			Strategy             string `json:"strategy"`
			ResolvedRequirement  string `json:"resolved_requirement"`
			Rationale            string `json:"rationale"`
		} `json:"resolutions"`
		CombinedRequirements map[string]interface{} `json:"combined_requirements"`
		Confidence           float64                `json:"confidence"`
	}

	if err := json.Unmarshal([]byte(stripCodeFence(text)), &raw); err != nil {
		g.log.Error().Err(err).Str("response", text).Msg("Failed to parse conflict-resolution response")
		return fallbackConflictResult(rulesetVersion), nil
	}

	result := &ConflictResult{
		HasConflicts:         raw.HasConflicts,
		CombinedRequirements: raw.CombinedRequirements,
		Confidence:           raw.Confidence,
		RulesetVersion:       rulesetVersion,
	}
	for _, c := range raw.Conflicts {
		result.Conflicts = append(result.Conflicts, Conflict{
			ConflictType:  classifyConflictType(c.Type),
			Jurisdictions: c.Jurisdictions,
			Description:   c.Description,
			RuleA:         c.RuleA,
			RuleB:         c.RuleB,
		})
	}
	for _, r := range raw.Resolutions {
		result.Resolutions = append(result.Resolutions, Resolution{
			ConflictType:        classifyConflictType(r.ConflictType),
			Strategy:            r.Strategy,
			ResolvedRequirement: r.ResolvedRequirement,
			Rationale:           r.Rationale,
		})
	}

	return result, nil
}

// fallbackConflictResult is the conservative combined ruleset returned
// when the reasoner is unavailable or its response fails to parse.
func fallbackConflictResult(rulesetVersion string) *ConflictResult {
	return &ConflictResult{
		HasConflicts: true,
		CombinedRequirements: map[string]interface{}{
			"accredited_only":        true,
			"max_investors":          99,
			"lockup_days":            365,
			"requires_manual_review": true,
		},
		Confidence:     0,
		RulesetVersion: rulesetVersion,
		Fallback:       true,
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
