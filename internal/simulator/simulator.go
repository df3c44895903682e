package simulator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Severity bucket thresholds, expressed as the max of impacted-investor
// percentage and assets-at-risk percentage.
const (
	severityLowThreshold      = 0.0
	severityMediumThreshold   = 1.0
	severityHighThreshold     = 5.0
	severityCriticalThreshold = 15.0
)

// Grandfathering recommendation thresholds.
const (
	grandfatherFullImpactedPct = 15.0
	grandfatherFullAssetsPct   = 20.0
	grandfatherTimeImpactedPct = 5.0
	grandfatherTimeAssetsPct   = 10.0
	grandfatherTxImpactedPct   = 1.0
)

// Compliance timeline tiers, in days, keyed by casualty count ceilings.
const (
	timelineTierSmall  = 30
	timelineTierMedium = 60
	timelineTierLarge  = 90
	timelineTierHuge   = 180
)

// Simulator runs "what if" impact analyses ("God Mode") for proposed
// regulatory changes against the investor base.
type Simulator struct {
	investors *InvestorClient
	log       zerolog.Logger
}

// New creates a Simulator backed by the given investor service client.
func New(investors *InvestorClient, log zerolog.Logger) *Simulator {
	return &Simulator{
		investors: investors,
		log:       log.With().Str("component", "impact_simulator").Logger(),
	}
}

// Simulate runs a proposal against a snapshot of the investor base —
// live data when useMockData is false and the investor service is
// reachable, otherwise a deterministic synthetic population — and
// reports who would be knocked out of compliance.
func (s *Simulator) Simulate(ctx context.Context, proposal Proposal, useMockData bool) (*SimulationResult, error) {
	oldThreshold, oldOK := toFloat(proposal.OldValue)
	newThreshold, newOK := toFloat(proposal.NewValue)

	var investors []Investor
	var totalPlatformAssets float64
	var degraded bool
	if useMockData || s.investors == nil {
		investors = generateMockInvestors(oldThreshold, newThreshold)
		totalPlatformAssets = defaultPlatformAssetsUSD
	} else {
		investors, totalPlatformAssets, degraded = s.investors.FetchSnapshot(ctx, proposal.Jurisdiction, oldThreshold, newThreshold)
	}

	result := &SimulationResult{
		SimulationID:           generateSimulationID(proposal),
		ProposalID:             proposal.ID,
		SimulatedAt:            time.Now().UTC(),
		RuleChangeSummary:      summarize(proposal),
		TotalInvestorsChecked:  len(investors),
		TotalPlatformAssetsUSD: totalPlatformAssets,
		ImpactByJurisdiction:   map[string]int{},
		Casualties:             []Casualty{},
		TokensImpacted:         []TokenImpact{},
		Warnings:               []string{},
	}

	if degraded {
		result.Warnings = append(result.Warnings, "live investor service was unreachable; this simulation ran against mock data and may not reflect the real investor base")
	}

	check, ruleDesc, modeled := lookupRule(proposal.FieldPath)
	countCheck := isCountCheck(proposal.FieldPath)

	if !modeled && !countCheck {
		result.Severity = SeverityNone
		result.RecommendedGrandfathering = GrandfatheringNone
		result.GrandfatheringRationale = "field path is not modeled by the impact simulator"
		result.Warnings = append(result.Warnings, fmt.Sprintf("rule path %q is not modeled; no impact could be assessed", proposal.FieldPath))
		return result, nil
	}

	if countCheck {
		s.runCountCheck(investors, proposal.FieldPath, newThreshold, result)
	} else if oldOK && newOK {
		s.runThresholdCheck(investors, check, proposal.FieldPath, newThreshold, result)
	} else {
		result.Warnings = append(result.Warnings, fmt.Sprintf("rule %q matched but thresholds were not numeric; no impact could be assessed", ruleDesc))
		result.RequiresManualReview = true
	}

	s.finalize(proposal, result, degraded)
	return result, nil
}

// runThresholdCheck applies a per-investor rule check and accumulates
// casualties, token impact, and jurisdictional impact.
func (s *Simulator) runThresholdCheck(investors []Investor, check ruleCheck, fieldPath string, newThreshold float64, result *SimulationResult) {
	tokenImpact := map[string]*TokenImpact{}

	for _, inv := range investors {
		res := check(inv, newThreshold)
		if !res.isCasualty {
			continue
		}

		tokenIDs := make([]string, 0, len(inv.Tokens))
		for _, t := range inv.Tokens {
			tokenIDs = append(tokenIDs, t.TokenID)
			ti, ok := tokenImpact[t.TokenID]
			if !ok {
				ti = &TokenImpact{TokenID: t.TokenID, TokenSymbol: t.Symbol}
				tokenImpact[t.TokenID] = ti
			}
			ti.InvestorsAffected++
			ti.ValueAtRiskUSD += t.ValueUSD
		}

		casualty := Casualty{
			InvestorID:         inv.ID,
			WalletAddress:      inv.WalletAddress,
			Jurisdiction:       inv.Jurisdiction,
			Classification:     inv.Classification,
			FailureReason:      res.reason,
			FailedRulePath:     fieldPath,
			CurrentValue:       res.currentValue,
			NewThreshold:       newThreshold,
			TotalHoldingsUSD:   inv.TotalHoldingsUSD,
			TokensHeld:         tokenIDs,
			CanBeGrandfathered: true,
			RemediationPath:    remediationFor(res.reason),
		}
		result.Casualties = append(result.Casualties, casualty)
		result.ImpactByJurisdiction[inv.Jurisdiction]++
		result.TotalAssetsAtRiskUSD += inv.TotalHoldingsUSD
	}

	for _, ti := range tokenImpact {
		result.TokensImpacted = append(result.TokensImpacted, *ti)
	}
}

// runCountCheck handles population-cap rules (e.g. max_non_accredited_investors),
// which are violated once the whole population crosses the cap rather
// than by any single investor's attributes.
func (s *Simulator) runCountCheck(investors []Investor, fieldPath string, newCap float64, result *SimulationResult) {
	nonAccredited := 0
	for _, inv := range investors {
		if inv.Classification == "non_accredited" {
			nonAccredited++
		}
	}

	if float64(nonAccredited) <= newCap {
		return
	}

	excess := nonAccredited - int(newCap)
	count := 0
	for _, inv := range investors {
		if count >= excess {
			break
		}
		if inv.Classification != "non_accredited" {
			continue
		}
		tokenIDs := make([]string, 0, len(inv.Tokens))
		for _, t := range inv.Tokens {
			tokenIDs = append(tokenIDs, t.TokenID)
		}
		result.Casualties = append(result.Casualties, Casualty{
			InvestorID:         inv.ID,
			WalletAddress:      inv.WalletAddress,
			Jurisdiction:       inv.Jurisdiction,
			Classification:     inv.Classification,
			FailureReason:      fmt.Sprintf("population exceeds new non-accredited investor cap of %d", int(newCap)),
			FailedRulePath:     fieldPath,
			CurrentValue:       nonAccredited,
			NewThreshold:       newCap,
			TotalHoldingsUSD:   inv.TotalHoldingsUSD,
			TokensHeld:         tokenIDs,
			CanBeGrandfathered: false,
			RemediationPath:    "requires divestment or reclassification to stay under the new investor cap",
		})
		result.ImpactByJurisdiction[inv.Jurisdiction]++
		result.TotalAssetsAtRiskUSD += inv.TotalHoldingsUSD
		count++
	}
}

// finalize computes the derived fields (percentages, severity,
// grandfathering, timeline, warnings) once casualties are known.
func (s *Simulator) finalize(proposal Proposal, result *SimulationResult, degraded bool) {
	result.ImpactedCount = len(result.Casualties)

	if result.TotalInvestorsChecked > 0 {
		result.ImpactPercentage = 100 * float64(result.ImpactedCount) / float64(result.TotalInvestorsChecked)
	}
	if result.TotalPlatformAssetsUSD > 0 {
		result.AssetsAtRiskPercentage = 100 * result.TotalAssetsAtRiskUSD / result.TotalPlatformAssetsUSD
	}

	result.Severity = severityFor(result.ImpactPercentage, result.AssetsAtRiskPercentage)
	result.RecommendedGrandfathering, result.GrandfatheringRationale = grandfatheringFor(result.ImpactPercentage, result.AssetsAtRiskPercentage, result.ImpactedCount)
	result.EstimatedComplianceTimelineDays = complianceTimelineFor(proposal, result.ImpactedCount)
	result.Warnings = append(result.Warnings, warningsFor(proposal, result)...)
	result.RequiresManualReview = result.RequiresManualReview ||
		result.Severity == SeverityHigh || result.Severity == SeverityCritical ||
		proposal.RequiresImmediateAction || degraded
}

func severityFor(impactedPct, assetsPct float64) Severity {
	worst := impactedPct
	if assetsPct > worst {
		worst = assetsPct
	}
	switch {
	case worst >= severityCriticalThreshold:
		return SeverityCritical
	case worst >= severityHighThreshold:
		return SeverityHigh
	case worst >= severityMediumThreshold:
		return SeverityMedium
	case worst > severityLowThreshold:
		return SeverityLow
	default:
		return SeverityNone
	}
}

func grandfatheringFor(impactedPct, assetsPct float64, impactedCount int) (GrandfatheringStrategy, string) {
	switch {
	case impactedCount == 0:
		return GrandfatheringNone, "no investors impacted, no grandfathering required"
	case impactedPct > grandfatherFullImpactedPct || assetsPct > grandfatherFullAssetsPct:
		return GrandfatheringFull, "impact is large enough that existing investors should be fully grandfathered under the prior rule"
	case impactedPct > grandfatherTimeImpactedPct || assetsPct > grandfatherTimeAssetsPct:
		return GrandfatheringTimeLimited, "moderate impact warrants a time-limited grace period to come into compliance"
	case impactedPct > grandfatherTxImpactedPct:
		return GrandfatheringTransactionBased, "limited impact can be managed by grandfathering existing positions while restricting new transactions"
	default:
		return GrandfatheringHoldingsFrozen, "minimal impact; affected holdings can simply be frozen pending remediation"
	}
}

func complianceTimelineFor(proposal Proposal, impactedCount int) int {
	if strings.Contains(strings.ToLower(proposal.FieldPath), "holding_period") {
		if days, ok := toFloat(proposal.NewValue); ok {
			return int(days)
		}
	}
	switch {
	case impactedCount < 10:
		return timelineTierSmall
	case impactedCount < 50:
		return timelineTierMedium
	case impactedCount < 200:
		return timelineTierLarge
	default:
		return timelineTierHuge
	}
}

func warningsFor(proposal Proposal, result *SimulationResult) []string {
	var warnings []string

	if result.Severity == SeverityHigh || result.Severity == SeverityCritical {
		warnings = append(warnings, fmt.Sprintf("severity is %s: this change would impact %.1f%% of investors and %.1f%% of platform assets", result.Severity, result.ImpactPercentage, result.AssetsAtRiskPercentage))
	}

	for _, c := range result.Casualties {
		if c.TotalHoldingsUSD > 1_000_000 {
			warnings = append(warnings, fmt.Sprintf("investor %s holds over $1M at risk ($%.0f)", c.InvestorID, c.TotalHoldingsUSD))
		}
	}

	for jurisdiction, count := range result.ImpactByJurisdiction {
		if result.ImpactedCount == 0 {
			continue
		}
		share := 100 * float64(count) / float64(result.ImpactedCount)
		if share > 50 && count >= 10 {
			warnings = append(warnings, fmt.Sprintf("impact is concentrated in %s (%.0f%% of all casualties)", jurisdiction, share))
		}
	}

	if proposal.RequiresImmediateAction {
		warnings = append(warnings, "proposal is flagged as requiring immediate action")
	}

	return warnings
}

func remediationFor(reason string) string {
	switch {
	case strings.Contains(reason, "income"):
		return "investor may requalify via net worth or joint income, or be reclassified as non-accredited"
	case strings.Contains(reason, "net worth"):
		return "investor may requalify via income threshold, or be reclassified as non-accredited"
	case strings.Contains(reason, "investments value"):
		return "investor may be reclassified from qualified purchaser to accredited investor, subject to stricter limits"
	case strings.Contains(reason, "holding period"):
		return "investor must hold existing positions for the extended period before further transfers"
	default:
		return ""
	}
}

func summarize(proposal Proposal) string {
	return fmt.Sprintf("%s: %v -> %v", proposal.FieldPath, proposal.OldValue, proposal.NewValue)
}

func generateSimulationID(proposal Proposal) string {
	sum := sha256.Sum256([]byte(proposal.ID + proposal.FieldPath + fmt.Sprint(proposal.NewValue)))
	return "sim_" + hex.EncodeToString(sum[:])[:12]
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
