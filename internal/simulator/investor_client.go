package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// defaultPlatformAssetsUSD is the fallback platform AUM figure used when
// live data is unavailable, mirroring the original's mock fixture.
const defaultPlatformAssetsUSD = 50_000_000.0

// investorServiceResponse mirrors the platform's investor API envelope.
type investorServiceResponse struct {
	Investors []liveInvestor `json:"investors"`
}

type liveInvestor struct {
	ID             string  `json:"id"`
	FullName       string  `json:"fullName"`
	WalletAddress  string  `json:"walletAddress"`
	Jurisdiction   string  `json:"jurisdiction"`
	Classification string  `json:"classification"`
	InvestorType   string  `json:"investorType"`
	Compliance     struct {
		AccreditationType       string  `json:"accreditationType"`
		ReportedIncome          float64 `json:"reportedIncome"`
		ReportedJointIncome     float64 `json:"reportedJointIncome"`
		NetWorth                float64 `json:"netWorth"`
		InvestmentsValue        float64 `json:"investmentsValue"`
		HoldingPeriodDays       int     `json:"holdingPeriodDays"`
		HasRestrictedSecurities bool    `json:"hasRestrictedSecurities"`
	} `json:"compliance"`
	Holdings struct {
		TotalValueUSD float64 `json:"totalValueUsd"`
		Tokens        []struct {
			TokenID  string  `json:"tokenId"`
			Symbol   string  `json:"symbol"`
			ValueUSD float64 `json:"valueUsd"`
		} `json:"tokens"`
	} `json:"holdings"`
}

// InvestorClient fetches investor snapshots from the platform's investor
// service for live simulations, falling back to mock investors when the
// investor fetch fails.
type InvestorClient struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewInvestorClient creates a client against the investor service at
// baseURL. An empty baseURL is valid — FetchSnapshot always falls back
// to mock data in that case.
func NewInvestorClient(baseURL string, log zerolog.Logger) *InvestorClient {
	return &InvestorClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("client", "investor_service").Logger(),
	}
}

// FetchSnapshot queries live investor data for the given jurisdiction.
// With an empty baseURL, or when the investor fetch fails (logged as a
// warning), it returns a resilience fallback of mock investors and the
// default platform AUM. When only the AUM fetch fails, the live investors
// are kept and the default AUM is used. The returned bool reports
// whether the snapshot is degraded (mock investors substituted for live
// ones) so the caller can flag the resulting simulation.
func (c *InvestorClient) FetchSnapshot(ctx context.Context, jurisdiction string, oldThreshold, newThreshold float64) ([]Investor, float64, bool) {
	if c.baseURL == "" {
		return generateMockInvestors(oldThreshold, newThreshold), defaultPlatformAssetsUSD, true
	}

	investors, err := c.fetchInvestors(ctx, jurisdiction)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to fetch live investor snapshot, falling back to mock data")
		return generateMockInvestors(oldThreshold, newThreshold), defaultPlatformAssetsUSD, true
	}

	assets, err := c.fetchTotalPlatformAssets(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to fetch platform AUM, using default")
		assets = defaultPlatformAssetsUSD
	}

	return investors, assets, false
}

func (c *InvestorClient) fetchInvestors(ctx context.Context, jurisdiction string) ([]Investor, error) {
	q := url.Values{}
	if jurisdiction != "" {
		q.Set("jurisdiction", jurisdiction)
	}
	q.Set("include_compliance", "true")
	q.Set("include_holdings", "true")

	reqURL := c.baseURL + "/investors?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch investors: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("investor service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read investor response: %w", err)
	}

	var parsed investorServiceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse investor response: %w", err)
	}

	return toInvestors(parsed.Investors), nil
}

func (c *InvestorClient) fetchTotalPlatformAssets(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/analytics/aum", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch AUM: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("analytics service returned status %d", resp.StatusCode)
	}

	var parsed struct {
		TotalAUMUSD float64 `json:"total_aum_usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to parse AUM response: %w", err)
	}

	return parsed.TotalAUMUSD, nil
}

func toInvestors(raw []liveInvestor) []Investor {
	out := make([]Investor, 0, len(raw))
	for _, r := range raw {
		tokens := make([]TokenHolding, 0, len(r.Holdings.Tokens))
		for _, t := range r.Holdings.Tokens {
			tokens = append(tokens, TokenHolding{TokenID: t.TokenID, Symbol: t.Symbol, ValueUSD: t.ValueUSD})
		}
		out = append(out, Investor{
			ID:             r.ID,
			FullName:       r.FullName,
			WalletAddress:  r.WalletAddress,
			Jurisdiction:   r.Jurisdiction,
			Classification: r.Classification,
			InvestorType:   r.InvestorType,
			Compliance: Compliance{
				AccreditationType:       r.Compliance.AccreditationType,
				ReportedIncome:          r.Compliance.ReportedIncome,
				ReportedJointIncome:     r.Compliance.ReportedJointIncome,
				NetWorth:                r.Compliance.NetWorth,
				InvestmentsValue:        r.Compliance.InvestmentsValue,
				HoldingPeriodDays:       r.Compliance.HoldingPeriodDays,
				HasRestrictedSecurities: r.Compliance.HasRestrictedSecurities,
			},
			TotalHoldingsUSD: r.Holdings.TotalValueUSD,
			Tokens:           tokens,
		})
	}
	return out
}
