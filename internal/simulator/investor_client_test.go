package simulator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestFetchSnapshot_EmptyBaseURLFallsBackDegraded(t *testing.T) {
	c := NewInvestorClient("", zerolog.Nop())

	investors, assets, degraded := c.FetchSnapshot(context.Background(), "US", 200000, 250000)

	assert.True(t, degraded)
	assert.Equal(t, mockPopulationSize, len(investors))
	assert.Equal(t, defaultPlatformAssetsUSD, assets)
}

func TestFetchSnapshot_UnreachableServiceFallsBackDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewInvestorClient(srv.URL, zerolog.Nop())

	investors, assets, degraded := c.FetchSnapshot(context.Background(), "US", 200000, 250000)

	assert.True(t, degraded)
	assert.Equal(t, mockPopulationSize, len(investors))
	assert.Equal(t, defaultPlatformAssetsUSD, assets)
}

func TestFetchSnapshot_HealthyServiceIsNotDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/investors":
			w.Write([]byte(`{"investors":[]}`))
		case "/analytics/aum":
			w.Write([]byte(`{"total_aum_usd":1000}`))
		}
	}))
	defer srv.Close()

	c := NewInvestorClient(srv.URL, zerolog.Nop())

	investors, assets, degraded := c.FetchSnapshot(context.Background(), "US", 200000, 250000)

	assert.False(t, degraded)
	assert.Empty(t, investors)
	assert.Equal(t, 1000.0, assets)
}
