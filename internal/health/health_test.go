package health

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeVersionLookup struct {
	versions map[string]string
}

func (f *fakeVersionLookup) Version(jurisdictions []string) string {
	if len(jurisdictions) == 0 {
		return ""
	}
	return f.versions[jurisdictions[0]]
}

func TestChecker_Check_ReportsReasonerAndRulesLoaded(t *testing.T) {
	store := &fakeVersionLookup{versions: map[string]string{"US": "2026.07.30.001", "SG": "2026.07.29.003"}}
	checker := New(store, []string{"US", "SG"}, ReasonerStatus{Enabled: true, Model: "gpt-4o"}, zerolog.Nop())

	report := checker.Check()

	assert.Equal(t, "ok", report.Status)
	assert.True(t, report.Reasoner.Enabled)
	assert.Equal(t, "gpt-4o", report.Reasoner.Model)
	assert.Len(t, report.RulesLoaded, 2)
	assert.Contains(t, report.RulesLoaded, JurisdictionVersion{Jurisdiction: "US", Version: "2026.07.30.001"})
	assert.Contains(t, report.RulesLoaded, JurisdictionVersion{Jurisdiction: "SG", Version: "2026.07.29.003"})
	assert.GreaterOrEqual(t, report.Resources.UptimeSeconds, int64(0))
}

func TestChecker_Check_ReasonerDisabledWhenNoAPIKey(t *testing.T) {
	store := &fakeVersionLookup{versions: map[string]string{}}
	checker := New(store, nil, ReasonerStatus{Enabled: false}, zerolog.Nop())

	report := checker.Check()
	assert.False(t, report.Reasoner.Enabled)
	assert.Empty(t, report.RulesLoaded)
}
