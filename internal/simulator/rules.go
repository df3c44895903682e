package simulator

import "strings"

// checkResult is the outcome of probing a single investor against a
// proposed threshold.
type checkResult struct {
	isCasualty   bool
	reason       string
	currentValue interface{}
}

// ruleCheck probes one investor against a field-path's new threshold. It
// returns a zero checkResult (not a casualty) when the investor is outside
// the subset the rule governs or still meets the new threshold. Count-check
// rules and unmodeled paths have no ruleCheck (see isCountCheck and
// lookupRule).
type ruleCheck func(inv Investor, newThreshold float64) checkResult

// ruleImpactTable maps field-path fragments to the investor attribute
// they govern and the subset of investors the rule applies to. Unknown
// paths fall through to an unmodeled-rule result — never fatal, per
// spec.
var ruleImpactTable = []struct {
	fragment    string
	description string
	check       ruleCheck
}{
	{
		fragment:    "joint_income",
		description: "Joint income threshold for accreditation",
		check: func(inv Investor, newThreshold float64) checkResult {
			if inv.Classification != "accredited" || inv.Compliance.AccreditationType != "income" {
				return checkResult{}
			}
			income := inv.Compliance.ReportedJointIncome
			if income < newThreshold {
				return checkResult{true, "joint income below new threshold", income}
			}
			return checkResult{}
		},
	},
	{
		fragment:    "income",
		description: "Individual income threshold for accreditation",
		check: func(inv Investor, newThreshold float64) checkResult {
			if inv.Classification != "accredited" || inv.Compliance.AccreditationType != "income" {
				return checkResult{}
			}
			income := inv.Compliance.ReportedIncome
			if income < newThreshold {
				return checkResult{true, "income below new threshold", income}
			}
			return checkResult{}
		},
	},
	{
		fragment:    "net_worth",
		description: "Net worth threshold for accreditation",
		check: func(inv Investor, newThreshold float64) checkResult {
			if inv.Classification != "accredited" || inv.Compliance.AccreditationType != "net_worth" {
				return checkResult{}
			}
			netWorth := inv.Compliance.NetWorth
			if netWorth < newThreshold {
				return checkResult{true, "net worth below new threshold", netWorth}
			}
			return checkResult{}
		},
	},
	{
		fragment:    "qualified_purchaser",
		description: "Investment threshold for qualified purchaser status",
		check: func(inv Investor, newThreshold float64) checkResult {
			if inv.Classification != "qualified_purchaser" {
				return checkResult{}
			}
			value := inv.Compliance.InvestmentsValue
			if value < newThreshold {
				return checkResult{true, "investments value below new threshold", value}
			}
			return checkResult{}
		},
	},
	{
		fragment:    "holding_period",
		description: "Holding period for restricted securities",
		check: func(inv Investor, newThreshold float64) checkResult {
			if !inv.Compliance.HasRestrictedSecurities {
				return checkResult{}
			}
			days := float64(inv.Compliance.HoldingPeriodDays)
			if days < newThreshold {
				return checkResult{true, "holding period below new requirement", inv.Compliance.HoldingPeriodDays}
			}
			return checkResult{}
		},
	},
}

// isCountCheck reports whether a field path governs a population cap
// (e.g. max_non_accredited_investors) rather than a per-investor
// threshold — these are checked once against the whole population in
// run(), not per-investor.
func isCountCheck(fieldPath string) bool {
	return strings.Contains(strings.ToLower(fieldPath), "max_non_accredited_investors") ||
		strings.Contains(strings.ToLower(fieldPath), "max_investors")
}

// lookupRule finds the first rule whose fragment matches the field path,
// case-insensitively. Returns ok=false for unmodeled paths.
func lookupRule(fieldPath string) (ruleCheck, string, bool) {
	lower := strings.ToLower(fieldPath)
	for _, r := range ruleImpactTable {
		if strings.Contains(lower, r.fragment) {
			return r.check, r.description, true
		}
	}
	return nil, "", false
}
