package rulesets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/compliance-oracle/internal/events"
)

// Provenance describes the origin of a patch being applied, used to detect
// drift between the proposal's recorded old_value and what's on disk.
type Provenance struct {
	ChangeID string
	Source   string // e.g. "oracle", scraper name
	OldValue interface{}
	Summary  string
}

// Store loads, caches, and atomically patches per-jurisdiction rulesets.
type Store struct {
	dataDir string
	aliases map[string]string
	events  *events.Manager
	log     zerolog.Logger

	mu       sync.RWMutex
	cache    map[string]*Ruleset
	jurMutex map[string]*sync.Mutex // serializes ApplyPatch per jurisdiction

	contextMu    sync.Mutex
	contextCache map[string][]byte // msgpack-encoded digests, keyed by Context's cacheKey
}

// New creates a Store rooted at dataDir/jurisdictions.
func New(dataDir string, aliases map[string]string, evts *events.Manager, log zerolog.Logger) *Store {
	if aliases == nil {
		aliases = map[string]string{}
	}
	return &Store{
		dataDir:      filepath.Join(dataDir, "jurisdictions"),
		aliases:      aliases,
		events:       evts,
		log:          log.With().Str("component", "ruleset_store").Logger(),
		cache:        make(map[string]*Ruleset),
		jurMutex:     make(map[string]*sync.Mutex),
		contextCache: make(map[string][]byte),
	}
}

func (s *Store) resolve(jurisdiction string) string {
	code := strings.ToUpper(jurisdiction)
	if alias, ok := s.aliases[code]; ok {
		return alias
	}
	return code
}

func (s *Store) filePath(jurisdiction string) string {
	return filepath.Join(s.dataDir, jurisdiction+".json")
}

func (s *Store) mutexFor(jurisdiction string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.jurMutex[jurisdiction]
	if !ok {
		m = &sync.Mutex{}
		s.jurMutex[jurisdiction] = m
	}
	return m
}

// Get returns a cached copy of a jurisdiction's ruleset, loading it from
// disk on a cache miss. Unknown jurisdictions with a configured alias
// resolve transparently. A missing file yields an empty ruleset with a
// warning logged; malformed JSON is a fatal configuration error.
func (s *Store) Get(jurisdiction string) (*Ruleset, error) {
	code := s.resolve(jurisdiction)

	s.mu.RLock()
	if rs, ok := s.cache[code]; ok {
		s.mu.RUnlock()
		return rs.clone(), nil
	}
	s.mu.RUnlock()

	rs, err := s.load(code)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[code] = rs
	s.mu.Unlock()

	return rs.clone(), nil
}

func (s *Store) load(code string) (*Ruleset, error) {
	path := s.filePath(code)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.log.Warn().Str("jurisdiction", code).Str("path", path).Msg("Ruleset file missing, using empty ruleset")
		return Empty(code), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset %s: %w", code, err)
	}

	rs := &Ruleset{}
	if err := json.Unmarshal(data, rs); err != nil {
		return nil, fmt.Errorf("malformed ruleset file %s: %w", path, err)
	}
	rs.Jurisdiction = code

	return rs, nil
}

// Version returns a deterministic "A:verA|B:verB" concatenation of the
// requested jurisdictions' versions, in input order. Returns "unknown" if
// none are available.
func (s *Store) Version(jurisdictions []string) string {
	parts := make([]string, 0, len(jurisdictions))
	for _, j := range jurisdictions {
		rs, err := s.Get(j)
		if err != nil || rs.Version == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%s", strings.ToUpper(j), rs.Version))
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}

// contextByteBudget caps the size of the Context digest passed to the
// Reasoner Gateway's prompt.
const contextByteBudget = 4096

// contextSubtrees are the top-level field-path prefixes included in a
// Context digest: exemptions, investor-definitions, and transfer
// restrictions, per spec.md §4.1.
var contextSubtrees = []string{"exemptions", "investor_definitions", "transfer_restrictions"}

// Context builds a digest of the exemptions, investor-definition, and
// transfer-restriction subtrees for the given jurisdictions, truncated to
// a byte budget, for use in Reasoner prompts. The digest is cached in
// msgpack form keyed by jurisdiction-set and ruleset version, so repeated
// Oracle calls against the same unchanged rulesets within a tick skip
// rebuilding and re-marshaling it.
func (s *Store) Context(jurisdictions []string) (string, error) {
	cacheKey := strings.Join(jurisdictions, ",") + "@" + s.Version(jurisdictions)

	s.contextMu.Lock()
	cached, ok := s.contextCache[cacheKey]
	s.contextMu.Unlock()

	if ok {
		var digest map[string]interface{}
		if err := msgpack.Unmarshal(cached, &digest); err == nil {
			return encodeContextDigest(digest)
		}
	}

	digest := map[string]interface{}{}

	for _, j := range jurisdictions {
		rs, err := s.Get(j)
		if err != nil {
			return "", err
		}

		sub := map[string]interface{}{}
		for _, key := range contextSubtrees {
			if v, ok := rs.Fields[key]; ok {
				sub[key] = v
			}
		}
		digest[strings.ToUpper(j)] = sub
	}

	if packed, err := msgpack.Marshal(digest); err == nil {
		s.contextMu.Lock()
		s.contextCache[cacheKey] = packed
		s.contextMu.Unlock()
	}

	return encodeContextDigest(digest)
}

// encodeContextDigest serializes a context digest to JSON, truncated to
// contextByteBudget, for the Reasoner Gateway's prompt.
func encodeContextDigest(digest map[string]interface{}) (string, error) {
	data, err := json.Marshal(digest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal context digest: %w", err)
	}

	if len(data) > contextByteBudget {
		data = data[:contextByteBudget]
	}

	return string(data), nil
}

// nextVersion assigns the next calendar-dotted version string. Within the
// same calendar day, the counter increments; on a new day it resets to 1.
func nextVersion(current string) string {
	today := time.Now().UTC().Format("2006.01.02")

	counter := 1
	if strings.HasPrefix(current, today+".") {
		suffix := strings.TrimPrefix(current, today+".")
		if n, err := strconv.Atoi(suffix); err == nil {
			counter = n + 1
		}
	}

	return fmt.Sprintf("%s.%03d", today, counter)
}

// ApplyPatch applies a single field-path patch to a jurisdiction's
// ruleset: it records drift if the provenance's old_value disagrees with
// the observed value (non-fatal — the patch still applies), writes the
// new value (creating intermediate nodes as needed), bumps the version,
// appends a changelog entry capped at ChangelogCap, persists atomically,
// invalidates the cache, and emits a RulesChanged event.
//
// Mutating calls are serialized per jurisdiction; calls across
// jurisdictions may run concurrently.
func (s *Store) ApplyPatch(jurisdiction, path string, newValue interface{}, prov Provenance) (string, error) {
	code := s.resolve(jurisdiction)
	mu := s.mutexFor(code)
	mu.Lock()
	defer mu.Unlock()

	rs, err := s.load(code)
	if err != nil {
		return "", err
	}

	observed, _ := rs.ReadPath(path)
	drift := !valuesEqual(observed, prov.OldValue)
	if drift {
		s.log.Warn().
			Str("jurisdiction", code).
			Str("field", path).
			Interface("observed", observed).
			Interface("expected", prov.OldValue).
			Msg("Patch applied despite drift from recorded old_value")
	}

	writePath(rs.Fields, path, newValue)

	rs.LastUpdated = time.Now().UTC()
	rs.Version = nextVersion(rs.Version)
	rs.LastOracleUpdate = prov.ChangeID

	entry := ChangelogEntry{
		ChangeID:  prov.ChangeID,
		Field:     path,
		OldValue:  observed,
		NewValue:  newValue,
		Summary:   prov.Summary,
		Source:    prov.Source,
		Timestamp: rs.LastUpdated,
		Drift:     drift,
	}
	rs.Changelog = append(rs.Changelog, entry)
	if len(rs.Changelog) > ChangelogCap {
		rs.Changelog = rs.Changelog[len(rs.Changelog)-ChangelogCap:]
	}

	if err := s.persist(code, rs); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.cache[code] = rs
	s.mu.Unlock()

	if s.events != nil {
		s.events.Emit(events.RulesChanged, "rulesets", map[string]interface{}{
			"jurisdiction": code,
			"new_version":  rs.Version,
			"field":        path,
			"change_id":    prov.ChangeID,
		})
	}

	return rs.Version, nil
}

// persist writes the ruleset to a temp file and renames it into place so
// concurrent readers never observe a partially written document.
func (s *Store) persist(code string, rs *Ruleset) error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create jurisdictions directory: %w", err)
	}

	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ruleset %s: %w", code, err)
	}

	final := s.filePath(code)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write ruleset temp file %s: %w", code, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to commit ruleset file %s: %w", code, err)
	}

	return nil
}

// valuesEqual compares two JSON-decoded values for equality, tolerating
// the numeric-type differences that a JSON round trip can introduce
// (e.g. int vs float64).
func valuesEqual(a, b interface{}) bool {
	af, aIsNum := toFloat(a)
	bf, bIsNum := toFloat(b)
	if aIsNum && bIsNum {
		return af == bf
	}

	aj, err1 := json.Marshal(a)
	bj, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(aj) == string(bj)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
