// Package health aggregates process liveness and resource data for the
// GET /health endpoint: CPU/memory/uptime via gopsutil, the reasoner
// feature-flag state, and the ruleset version currently loaded per
// jurisdiction.
package health

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ReasonerStatus is the Reasoner feature flag reported by GET /health.
// Enabled is set when a Reasoner API key is configured; reachability is
// not probed. The HTTP handlers do not consult this flag, so the review
// endpoints do not answer 503 when it is off.
type ReasonerStatus struct {
	Enabled bool   `json:"enabled"`
	Model   string `json:"model,omitempty"`
}

// JurisdictionVersion reports the currently loaded ruleset version for
// a single jurisdiction.
type JurisdictionVersion struct {
	Jurisdiction string `json:"jurisdiction"`
	Version      string `json:"version"`
}

// ResourceStats holds the process-level resource snapshot.
type ResourceStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

// Report is the full payload returned by GET /health.
type Report struct {
	Status        string                 `json:"status"`
	Resources     ResourceStats          `json:"resources"`
	Reasoner      ReasonerStatus         `json:"reasoner"`
	RulesLoaded   []JurisdictionVersion  `json:"rules_loaded"`
}

// VersionLookup resolves the currently loaded ruleset version for a
// jurisdiction. *rulesets.Store satisfies this.
type VersionLookup interface {
	Version(jurisdictions []string) string
}

// Checker builds health reports.
type Checker struct {
	startedAt     time.Time
	store         VersionLookup
	jurisdictions []string
	reasoner      ReasonerStatus
	log           zerolog.Logger
}

// New creates a health Checker. jurisdictions lists every jurisdiction
// this deployment serves rulesets for, so each gets its own entry in
// rules_loaded.
func New(store VersionLookup, jurisdictions []string, reasoner ReasonerStatus, log zerolog.Logger) *Checker {
	return &Checker{
		startedAt:     time.Now(),
		store:         store,
		jurisdictions: jurisdictions,
		reasoner:      reasoner,
		log:           log.With().Str("component", "health").Logger(),
	}
}

// Check returns the current health report. CPU sampling blocks for
// 100ms, matching the teacher's short-interval tradeoff for responsive
// status endpoints.
func (c *Checker) Check() Report {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to sample CPU percent")
		cpuPercent = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memPercent := 0.0
	if memStat, err := mem.VirtualMemory(); err != nil {
		c.log.Warn().Err(err).Msg("failed to sample memory stats")
	} else {
		memPercent = memStat.UsedPercent
	}

	rulesLoaded := make([]JurisdictionVersion, 0, len(c.jurisdictions))
	for _, j := range c.jurisdictions {
		rulesLoaded = append(rulesLoaded, JurisdictionVersion{
			Jurisdiction: j,
			Version:      c.store.Version([]string{j}),
		})
	}

	return Report{
		Status: "ok",
		Resources: ResourceStats{
			CPUPercent:    cpuAvg,
			MemoryPercent: memPercent,
			UptimeSeconds: int64(time.Since(c.startedAt).Seconds()),
		},
		Reasoner:    c.reasoner,
		RulesLoaded: rulesLoaded,
	}
}
