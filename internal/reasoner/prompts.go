package reasoner

import (
	"fmt"
	"strings"
)

// buildImpactPrompt embeds the expected ChangeProposal schema in the
// prompt so the model's JSON response can be parsed directly.
func buildImpactPrompt(updateText, currentRulesContext, jurisdiction string) string {
	return fmt.Sprintf(`You are a regulatory compliance analyst for a tokenized real-world-asset
platform. Analyze the following regulatory update for jurisdiction %s and
determine whether it requires a change to the platform's compliance
ruleset.

Current ruleset context:
%s

Regulatory update:
%s

Respond with ONLY a JSON object matching this schema, no other text:
{
  "is_relevant": bool,
  "confidence": float between 0 and 1,
  "summary": string,
  "jurisdiction": string,
  "field_path": "dot.notation.path",
  "old_value": current value or null,
  "new_value": proposed new value,
  "reasoning": string,
  "effective_date": "YYYY-MM-DD" or null,
  "requires_immediate_action": bool,
  "source_text": truncated excerpt of the update
}

If the update does not require a ruleset change, set is_relevant to false.`,
		jurisdiction, currentRulesContext, updateText)
}

// buildClassificationPrompt asks the model to classify an investor's
// jurisdiction and entity type from a submitted document.
func buildClassificationPrompt(documentText, documentType string) string {
	return fmt.Sprintf(`Classify the following %s document for jurisdiction and investor
type. Respond with ONLY a JSON object:
{
  "jurisdiction": string,
  "entity_type": "individual" or "entity",
  "investor_classification": "retail" | "accredited" | "qualified_purchaser" | "professional",
  "applicable_regulations": [string],
  "confidence": float between 0 and 1,
  "reasoning": string
}

Document:
%s`, documentType, documentText)
}

// buildConflictPrompt asks the model to detect and resolve regulatory
// conflicts across the given jurisdictions for a proposed offering.
func buildConflictPrompt(jurisdictions, investorTypes []string, assetType, regulatoryContext string) string {
	issuer := "US"
	if len(jurisdictions) > 0 {
		issuer = jurisdictions[0]
	}

	return fmt.Sprintf(`Analyze regulatory conflicts for a tokenized %s offering.

Issuer jurisdiction: %s
Investor jurisdictions: %s
Investor types: %s

Regulatory rules context:
%s

Respond with ONLY a JSON object:
{
  "has_conflicts": bool,
  "conflicts": [{"type": string, "jurisdictions": [string], "description": string, "rule_a": string, "rule_b": string}],
  "resolutions": [{"conflict_type": string, "strategy": "apply_strictest" | "jurisdiction_specific" | "investor_election" | "legal_opinion_required", "resolved_requirement": string, "rationale": string}],
  "combined_requirements": object,
  "confidence": float between 0 and 1
}`,
		assetType, issuer, strings.Join(jurisdictions, ", "), strings.Join(investorTypes, ", "), regulatoryContext)
}
