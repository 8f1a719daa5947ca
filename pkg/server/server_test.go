package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerwave/layerwave/pkg/config"
	"github.com/layerwave/layerwave/pkg/engine"
	"github.com/layerwave/layerwave/pkg/policy"
	"github.com/layerwave/layerwave/pkg/stores"
	"github.com/layerwave/layerwave/pkg/telemetry"
)

const testCatalog = `
target: 2.0.0
recipes:
  - type: recipe
    recipe: upgrade-1.1
    from: ["1.0.0"]
    to: 1.1.0
    manualChanges:
      layers: [base]
  - type: recipe
    recipe: upgrade-1.2
    from: ["1.1.0"]
    to: 1.2.0
buckets:
  - id: one
    fromVersion: 1.0.x
    toVersion: 1.2.x
`

const planBody = `{"layers": [
	{"name": "prod-base", "version": "1.0.0"},
	{"name": "prod-roles", "version": "1.0.0"}
]}`

// =============================================================================
// Test Helpers
// =============================================================================

func newTestTelemetry(t *testing.T) *telemetry.Telemetry {
	t.Helper()
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "fatal"
	tel, err := telemetry.NewTelemetry(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	return tel
}

func newTestServer(t *testing.T, cfg Config, opts ...Option) *Server {
	t.Helper()
	parser := config.NewParser()
	srv := New(cfg, parser, newTestTelemetry(t), opts...)

	cat, err := parser.ParseCatalog([]byte(testCatalog), config.FormatYAML, "catalog.yaml")
	require.NoError(t, err)
	srv.SetCatalog(cat)
	return srv
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

// =============================================================================
// Health
// =============================================================================

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Config{})

	rec := doRequest(t, srv.Routes(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReady(t *testing.T) {
	srv := New(Config{}, config.NewParser(), newTestTelemetry(t))
	h := srv.Routes()

	rec := doRequest(t, h, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/plan", planBody)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NOT_READY", decodeError(t, rec).Code)

	cat, err := config.NewParser().ParseCatalog([]byte(testCatalog), config.FormatYAML, "catalog.yaml")
	require.NoError(t, err)
	srv.SetCatalog(cat)

	rec = doRequest(t, h, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var ready ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, uint64(1), ready.Revision)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Config{})
	h := srv.Routes()

	doRequest(t, h, http.MethodPost, "/api/v1/plan", planBody)
	rec := doRequest(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "layerwave_plans_computed_total")
	assert.Contains(t, rec.Body.String(), `route="/api/v1/plan"`)
}

// =============================================================================
// Plan
// =============================================================================

func TestPlan_ReturnsWaves(t *testing.T) {
	srv := newTestServer(t, Config{})

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/v1/plan", planBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var waves []engine.WaveDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &waves))
	require.Len(t, waves, 2)

	first := waves[0]
	assert.Equal(t, 1, first.WaveNumber)
	assert.Equal(t, "1.1.0", first.NextVersion)
	assert.Equal(t, "2.0.0", first.ToVersion)
	require.Len(t, first.Layers, 2)
	require.NotNil(t, first.Layers[0].Recipe)
	assert.Equal(t, "upgrade-1.1", *first.Layers[0].Recipe)

	byName := map[string]engine.ActionDocument{}
	for _, l := range first.Layers {
		byName[l.Name] = l
	}
	assert.True(t, byName["prod-base"].RequiresManual)
	assert.False(t, byName["prod-roles"].RequiresManual)

	assert.Equal(t, 2, waves[1].WaveNumber)
	assert.Equal(t, "1.2.0", waves[1].NextVersion)
}

func TestPlan_EmptyLayers(t *testing.T) {
	srv := newTestServer(t, Config{})

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/v1/plan", `{"layers": []}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestPlan_Cache(t *testing.T) {
	srv := newTestServer(t, Config{})
	h := srv.Routes()

	first := doRequest(t, h, http.MethodPost, "/api/v1/plan", planBody)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, 1, srv.plans.ItemCount())

	second := doRequest(t, h, http.MethodPost, "/api/v1/plan", planBody)
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, srv.plans.ItemCount())

	// A new catalog revision invalidates cached plans.
	cat, _ := srv.Catalog()
	srv.SetCatalog(cat)
	assert.Equal(t, 0, srv.plans.ItemCount())
}

func TestPlan_TargetResolution(t *testing.T) {
	srv := newTestServer(t, Config{})

	body := `{"target": "1.1.0", "layers": [{"name": "prod-base", "version": "1.0.0"}]}`
	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/v1/plan", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var waves []engine.WaveDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &waves))
	require.NotEmpty(t, waves)
	for _, w := range waves {
		assert.Equal(t, "1.1.0", w.ToVersion)
	}
}

func TestPlan_InputErrors(t *testing.T) {
	srv := newTestServer(t, Config{})
	h := srv.Routes()

	tests := []struct {
		name      string
		body      string
		wantField string
		wantLayer string
	}{
		{name: "malformed json", body: `{"layers": [`},
		{name: "bad version", body: `{"layers": [{"name": "a", "version": "1.x"}]}`, wantField: "layers[0].version"},
		{name: "missing name", body: `{"layers": [{"version": "1.0.0"}]}`, wantField: "layers[0].name"},
		{name: "duplicate layer", body: `{"layers": [{"name": "a", "version": "1.0.0"}, {"name": "a", "version": "1.0.0"}]}`, wantLayer: "a"},
		{name: "bad target", body: `{"target": "two", "layers": []}`, wantField: "target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/api/v1/plan", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			body := decodeError(t, rec)
			assert.Equal(t, engine.ErrCodeInputFormat, body.Code)
			assert.NotEmpty(t, body.Message)
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, body.Field)
			}
			if tt.wantLayer != "" {
				assert.Equal(t, tt.wantLayer, body.Layer)
			}
		})
	}
}

func TestPlan_BodyTooLarge(t *testing.T) {
	srv := newTestServer(t, Config{MaxBodyBytes: 16})

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/v1/plan", planBody)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPlan_BodyReadError(t *testing.T) {
	srv := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plan", iotest.ErrReader(errors.New("connection reset")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, engine.ErrCodeInputFormat, body.Code)
	assert.Equal(t, "failed to read request body", body.Message)
}

const singleWavePolicy = `package test.single

import rego.v1

deny contains "plans must fit in one wave" if {
	count(input.plan.waves) > 1
}
`

func TestPlan_PolicyReloadInvalidatesCache(t *testing.T) {
	eng, err := policy.NewEngine(zerolog.Nop())
	require.NoError(t, err)

	srv := newTestServer(t, Config{EnforcePolicies: true}, WithPolicies(eng))
	h := srv.Routes()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/plan", planBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, srv.plans.ItemCount())

	require.NoError(t, eng.ReplacePolicies(context.Background(), []policy.Policy{{
		Name:     "single-wave",
		Severity: policy.SeverityError,
		Enabled:  true,
		Rego:     singleWavePolicy,
	}}))

	// The cached allow verdict belongs to the previous policy set.
	rec = doRequest(t, h, http.MethodPost, "/api/v1/plan", planBody)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, engine.ErrCodePolicyDenied, decodeError(t, rec).Code)

	require.NoError(t, eng.DisablePolicy("single-wave"))
	rec = doRequest(t, h, http.MethodPost, "/api/v1/plan", planBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestFlushPlans(t *testing.T) {
	srv := newTestServer(t, Config{})
	h := srv.Routes()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/plan", planBody)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, srv.plans.ItemCount())

	srv.FlushPlans()
	assert.Equal(t, 0, srv.plans.ItemCount())
}

func TestPlan_EnforcedPolicy(t *testing.T) {
	eng, err := policy.NewEngine(zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, eng.ReplacePolicies(context.Background(), []policy.Policy{{
		Name:     "single-wave",
		Severity: policy.SeverityError,
		Enabled:  true,
		Rego:     singleWavePolicy,
	}}))

	srv := newTestServer(t, Config{EnforcePolicies: true}, WithPolicies(eng))

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/v1/plan", planBody)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, engine.ErrCodePolicyDenied, decodeError(t, rec).Code)

	// Denied plans are not cached.
	assert.Equal(t, 0, srv.plans.ItemCount())
}

// =============================================================================
// Reports
// =============================================================================

func TestReports(t *testing.T) {
	archive, err := stores.Open(context.Background(), stores.Config{Path: ":memory:"})
	require.NoError(t, err)
	defer archive.Close()

	report := &stores.PlanReport{
		ID:        "report-1",
		Target:    "2.0.0",
		PlanID:    "plan-1",
		Ceiling:   "1.2.999",
		WaveCount: 2,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, archive.SaveReport(context.Background(), report, false))

	srv := newTestServer(t, Config{}, WithArchive(archive))
	h := srv.Routes()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/reports?target=2.0.0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []ReportSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "report-1", summaries[0].ID)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/reports/report-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/reports/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, engine.ErrCodeNotFound, decodeError(t, rec).Code)
}

func TestReports_Disabled(t *testing.T) {
	srv := newTestServer(t, Config{})

	rec := doRequest(t, srv.Routes(), http.MethodGet, "/api/v1/reports", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Catalog reload
// =============================================================================

func TestWatchCatalog_SwapsCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))

	srv := newTestServer(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := srv.WatchCatalog(ctx, path, 20*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = watcher.Stop() }()

	updated := testCatalog + `  - id: two
    fromVersion: 2.0.x
    toVersion: 2.1.x
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	assert.Eventually(t, func() bool {
		cat, _ := srv.Catalog()
		return cat.Buckets.Len() == 2
	}, 5*time.Second, 20*time.Millisecond)

	// A broken catalog keeps the last good one.
	require.NoError(t, os.WriteFile(path, []byte("recipes: ["), 0o600))
	time.Sleep(200 * time.Millisecond)
	cat, _ := srv.Catalog()
	assert.Equal(t, 2, cat.Buckets.Len())
}
