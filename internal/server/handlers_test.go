package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/compliance-oracle/internal/database"
	"github.com/aristath/compliance-oracle/internal/events"
	"github.com/aristath/compliance-oracle/internal/oracle"
	"github.com/aristath/compliance-oracle/internal/reasoner"
	"github.com/aristath/compliance-oracle/internal/rulesets"
	"github.com/aristath/compliance-oracle/internal/simulator"
)

func completionPayload(content string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return body
}

// newTestServer builds a Server wired against a fake reasoner endpoint
// that always returns gatewayContent and a real Oracle backed by a
// temp-dir ruleset store and temp-file database. It seeds no ruleset;
// writeJurisdictionFixture writes one under the returned dataDir.
func newTestServer(t *testing.T, gatewayContent string) (*Server, *rulesets.Store, *oracle.Oracle, string) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionPayload(gatewayContent))
	}))
	t.Cleanup(srv.Close)

	gateway := reasoner.New(reasoner.Config{BaseURL: srv.URL, APIKey: "test", Model: "test-model"}, zerolog.Nop())

	dataDir := t.TempDir()
	evts := events.NewManager(zerolog.Nop())
	store := rulesets.New(dataDir, nil, evts, zerolog.Nop())

	dbPath := filepath.Join(t.TempDir(), "pending_changes.db")
	db, err := database.New(database.Config{Path: dbPath, Profile: database.ProfileStandard, Name: "pending_changes"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	repo := oracle.NewRepository(db)

	sim := simulator.New(nil, zerolog.Nop())

	orc := oracle.New(oracle.Config{
		Store:         store,
		Gateway:       gateway,
		Simulator:     sim,
		Repo:          repo,
		Events:        evts,
		MinConfidence: 0.75,
	}, zerolog.Nop())

	s := &Server{
		log:             zerolog.Nop(),
		store:           store,
		gateway:         gateway,
		orc:             orc,
		uiFlagThreshold: 0.70,
	}

	return s, store, orc, dataDir
}

func writeJurisdictionFixture(t *testing.T, dataDir, jurisdiction string, fields map[string]interface{}) {
	t.Helper()

	dir := filepath.Join(dataDir, "jurisdictions")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	doc := map[string]interface{}{"jurisdiction": jurisdiction, "version": "2026.01.01.001"}
	for k, v := range fields {
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, jurisdiction+".json"), data, 0o644))
}
