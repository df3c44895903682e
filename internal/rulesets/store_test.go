package rulesets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/compliance-oracle/internal/events"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(dir, map[string]string{"GB": "EU"}, events.NewManager(zerolog.Nop()), zerolog.Nop())
}

func TestGet_MissingFileReturnsEmptyRuleset(t *testing.T) {
	s := newTestStore(t)

	rs, err := s.Get("US")
	require.NoError(t, err)
	assert.Equal(t, "US", rs.Jurisdiction)
	assert.Empty(t, rs.Version)
	assert.Empty(t, rs.Changelog)
}

func TestGet_ResolvesAlias(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ApplyPatch("EU", "exemptions.retail_cap", 100000, Provenance{
		ChangeID: "chg_seed", Source: "test",
	})
	require.NoError(t, err)

	rs, err := s.Get("GB")
	require.NoError(t, err)
	assert.Equal(t, "EU", rs.Jurisdiction)
	v, ok := rs.ReadPath("exemptions.retail_cap")
	require.True(t, ok)
	assert.EqualValues(t, 100000, v)
}

func TestApplyPatch_VersionStrictlyIncreases(t *testing.T) {
	s := newTestStore(t)

	v1, err := s.ApplyPatch("US", "exemptions.cap", 1, Provenance{ChangeID: "chg_1", Source: "oracle"})
	require.NoError(t, err)

	v2, err := s.ApplyPatch("US", "exemptions.cap", 2, Provenance{ChangeID: "chg_2", Source: "oracle", OldValue: 1})
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
	assert.Greater(t, v2, v1)
}

func TestApplyPatch_CreatesIntermediateNodes(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ApplyPatch("US", "transfer_restrictions.lockup.days", 90, Provenance{
		ChangeID: "chg_1", Source: "oracle",
	})
	require.NoError(t, err)

	rs, err := s.Get("US")
	require.NoError(t, err)
	v, ok := rs.ReadPath("transfer_restrictions.lockup.days")
	require.True(t, ok)
	assert.EqualValues(t, 90, v)
}

func TestApplyPatch_AppendsChangelogEntry(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ApplyPatch("US", "exemptions.cap", 1, Provenance{
		ChangeID: "chg_1", Source: "oracle", Summary: "raised cap",
	})
	require.NoError(t, err)

	rs, err := s.Get("US")
	require.NoError(t, err)
	require.Len(t, rs.Changelog, 1)
	assert.Equal(t, "chg_1", rs.Changelog[0].ChangeID)
	assert.Equal(t, "exemptions.cap", rs.Changelog[0].Field)
	assert.False(t, rs.Changelog[0].Drift)
}

func TestApplyPatch_ChangelogCapsAtTwenty(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < ChangelogCap+5; i++ {
		_, err := s.ApplyPatch("US", "exemptions.cap", i, Provenance{
			ChangeID: "chg", Source: "oracle",
		})
		require.NoError(t, err)
	}

	rs, err := s.Get("US")
	require.NoError(t, err)
	assert.Len(t, rs.Changelog, ChangelogCap)
}

func TestApplyPatch_DriftDoesNotAbort(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ApplyPatch("US", "exemptions.cap", 1, Provenance{ChangeID: "chg_1", Source: "oracle"})
	require.NoError(t, err)

	// Provenance claims old_value was 99, but it's actually 1 — a drift.
	_, err = s.ApplyPatch("US", "exemptions.cap", 2, Provenance{
		ChangeID: "chg_2", Source: "oracle", OldValue: 99,
	})
	require.NoError(t, err)

	rs, err := s.Get("US")
	require.NoError(t, err)
	require.Len(t, rs.Changelog, 2)
	assert.True(t, rs.Changelog[1].Drift)
}

func TestApplyPatch_PersistsAtomically(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ApplyPatch("US", "exemptions.cap", 1, Provenance{ChangeID: "chg_1", Source: "oracle"})
	require.NoError(t, err)

	path := filepath.Join(s.dataDir, "US.json")
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestApplyPatch_InvalidatesCache(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Get("US")
	require.NoError(t, err)
	assert.Empty(t, first.Version)

	_, err = s.ApplyPatch("US", "exemptions.cap", 1, Provenance{ChangeID: "chg_1", Source: "oracle"})
	require.NoError(t, err)

	second, err := s.Get("US")
	require.NoError(t, err)
	assert.NotEmpty(t, second.Version)
}

func TestApplyPatch_EmitsRulesChangedEvent(t *testing.T) {
	dir := t.TempDir()
	evts := events.NewManager(zerolog.Nop())
	ch := evts.Subscribe()
	defer evts.Unsubscribe(ch)

	s := New(dir, nil, evts, zerolog.Nop())

	v, err := s.ApplyPatch("US", "exemptions.cap", 1, Provenance{ChangeID: "chg_1", Source: "oracle"})
	require.NoError(t, err)

	evt := <-ch
	assert.Equal(t, events.RulesChanged, evt.Type)
	assert.Equal(t, "US", evt.Data["jurisdiction"])
	assert.Equal(t, v, evt.Data["new_version"])
}

func TestVersion_ConcatenatesDeterministically(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ApplyPatch("US", "exemptions.cap", 1, Provenance{ChangeID: "chg_1", Source: "oracle"})
	require.NoError(t, err)
	_, err = s.ApplyPatch("EU", "exemptions.cap", 1, Provenance{ChangeID: "chg_2", Source: "oracle"})
	require.NoError(t, err)

	v := s.Version([]string{"US", "EU"})
	assert.Contains(t, v, "US:")
	assert.Contains(t, v, "EU:")
	assert.True(t, v == "US:"+mustVersion(t, s, "US")+"|EU:"+mustVersion(t, s, "EU"))
}

func TestVersion_UnknownWhenNoneAvailable(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, "unknown", s.Version([]string{"US"}))
}

func TestContext_SelectsOnlyConfiguredSubtrees(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ApplyPatch("US", "exemptions.cap", 1, Provenance{ChangeID: "chg_1", Source: "oracle"})
	require.NoError(t, err)
	_, err = s.ApplyPatch("US", "unrelated_section.value", "should not appear", Provenance{
		ChangeID: "chg_2", Source: "oracle",
	})
	require.NoError(t, err)

	digest, err := s.Context([]string{"US"})
	require.NoError(t, err)
	assert.Contains(t, digest, "exemptions")
	assert.NotContains(t, digest, "should not appear")
}

func TestContext_CachesDigestUntilVersionChanges(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ApplyPatch("US", "exemptions.cap", 1, Provenance{ChangeID: "chg_1", Source: "oracle"})
	require.NoError(t, err)

	first, err := s.Context([]string{"US"})
	require.NoError(t, err)

	cacheKey := "US@" + s.Version([]string{"US"})
	s.contextMu.Lock()
	_, cached := s.contextCache[cacheKey]
	s.contextMu.Unlock()
	assert.True(t, cached)

	second, err := s.Context([]string{"US"})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = s.ApplyPatch("US", "exemptions.cap", 2, Provenance{ChangeID: "chg_2", Source: "oracle"})
	require.NoError(t, err)

	third, err := s.Context([]string{"US"})
	require.NoError(t, err)
	assert.NotEqual(t, "US@"+s.Version([]string{"US"}), cacheKey)
	assert.Contains(t, third, "exemptions")
}

func mustVersion(t *testing.T, s *Store, jurisdiction string) string {
	t.Helper()
	rs, err := s.Get(jurisdiction)
	require.NoError(t, err)
	return rs.Version
}
