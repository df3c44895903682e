package simulator

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// mockPopulationSize matches the original implementation's "150 mock
// investors" fixture.
const mockPopulationSize = 150

// mockJurisdictions is sampled uniformly to distribute investors across
// jurisdictions, weighted toward US as in the original fixture.
var mockJurisdictions = []string{"US", "US", "US", "SG", "EU"}

// generateMockInvestors synthesizes a population stratified around the
// proposal's old and new thresholds: a band safely above the new
// threshold, a "danger zone" band between old and new, a band clustered
// at the old threshold, and a non-accredited band. Generation is
// deterministic (a fixed RNG seed) so simulations are reproducible.
func generateMockInvestors(oldThreshold, newThreshold float64) []Investor {
	if oldThreshold == 0 {
		oldThreshold = 200000
	}
	if newThreshold == 0 {
		newThreshold = 250000
	}

	src := rand.NewSource(42)
	jurisdictionPick := distuv.Uniform{Min: 0, Max: float64(len(mockJurisdictions)), Src: src}
	holdingsDist := distuv.Uniform{Min: 10000, Max: 500000, Src: src}

	bands := []struct {
		count int
		dist  distuv.Uniform
	}{
		{40, distuv.Uniform{Min: newThreshold * 1.2, Max: newThreshold * 3, Src: src}},
		{30, distuv.Uniform{Min: oldThreshold, Max: newThreshold, Src: src}},
		{40, distuv.Uniform{Min: oldThreshold * 0.95, Max: oldThreshold * 1.1, Src: src}},
		{40, distuv.Uniform{Min: 50000, Max: oldThreshold * 0.9, Src: src}},
	}

	investors := make([]Investor, 0, mockPopulationSize)
	idx := 0
	for _, band := range bands {
		for i := 0; i < band.count; i++ {
			income := band.dist.Rand()
			jurisdiction := mockJurisdictions[int(jurisdictionPick.Rand())%len(mockJurisdictions)]

			classification := "non_accredited"
			accreditationType := ""
			if income >= oldThreshold {
				classification = "accredited"
				accreditationType = "income"
			}

			holdings := holdingsDist.Rand()

			investors = append(investors, Investor{
				ID:             fmt.Sprintf("inv_%04d", idx),
				FullName:       fmt.Sprintf("Investor %d", idx),
				WalletAddress:  fmt.Sprintf("0x%040x", idx),
				Jurisdiction:   jurisdiction,
				Classification: classification,
				InvestorType:   "individual",
				Compliance: Compliance{
					AccreditationType: accreditationType,
					ReportedIncome:    income,
					NetWorth:          income * 5,
				},
				TotalHoldingsUSD: holdings,
				Tokens: []TokenHolding{
					{TokenID: fmt.Sprintf("tkn_%d", idx%5+1), Symbol: fmt.Sprintf("RWA%d", idx%5+1), ValueUSD: holdings},
				},
			})
			idx++
		}
	}

	return investors
}
