package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerwave/layerwave/pkg/engine"
	"github.com/layerwave/layerwave/pkg/stores"
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

const testLayers = `
layers:
  - name: prod-base
    version: 1.0.0
  - name: prod-roles
    version: 1.0.0
`

// =============================================================================
// Test Helpers
// =============================================================================

// clearEnv isolates a test from LAYERWAVE_* variables and global flags.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LAYERWAVE_CATALOG",
		"LAYERWAVE_TARGET",
		"LAYERWAVE_SERVER_ADDR",
		"LAYERWAVE_SERVER_CACHE_TTL",
		"LAYERWAVE_DATABASE_PATH",
		"LAYERWAVE_LOG_LEVEL",
		"LAYERWAVE_METRICS_ENABLED",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	configPath, verbose = "", false
	t.Cleanup(func() { configPath, verbose = "", false })
}

// setupWorkspace writes the fixtures and points the archive at a temp dir.
func setupWorkspace(t *testing.T) (catalogPath, layersPath string) {
	t.Helper()
	clearEnv(t)

	dir := t.TempDir()
	catalogPath = filepath.Join(dir, "catalog.yaml")
	layersPath = filepath.Join(dir, "layers.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalog), 0o644))
	require.NoError(t, os.WriteFile(layersPath, []byte(testLayers), 0o644))

	t.Setenv("LAYERWAVE_LOG_LEVEL", "fatal")
	t.Setenv("LAYERWAVE_DATABASE_PATH", filepath.Join(dir, "data", "reports.db"))
	return catalogPath, layersPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand("test", "none", "today")
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// =============================================================================
// Settings
// =============================================================================

func TestLoadSettings_Defaults(t *testing.T) {
	clearEnv(t)

	s, err := LoadSettings("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", s.Server.Addr)
	assert.Equal(t, 10*time.Minute, s.Server.CacheTTL)
	assert.Equal(t, 10*time.Second, s.Server.ShutdownTimeout)
	assert.True(t, s.Server.Watch)
	assert.False(t, s.Server.EnforcePolicies)
	assert.Equal(t, "./data/layerwave.db", s.Database.Path)
	assert.Equal(t, "info", s.Log.Level)
	assert.True(t, s.Metrics.Enabled)
	assert.False(t, s.Tracing.Enabled)
	assert.Empty(t, s.Catalog)
}

func TestLoadSettings_File(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "layerwave.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
catalog: /etc/layerwave/catalog.cue
target: 3.0.0
policies: [/etc/layerwave/policies]
server:
  addr: ":9090"
  cache_ttl: 1m
log:
  level: debug
  format: json
`), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/layerwave/catalog.cue", s.Catalog)
	assert.Equal(t, "3.0.0", s.Target)
	assert.Equal(t, []string{"/etc/layerwave/policies"}, s.Policies)
	assert.Equal(t, ":9090", s.Server.Addr)
	assert.Equal(t, time.Minute, s.Server.CacheTTL)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, "json", s.Log.Format)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30*time.Second, s.Server.WriteTimeout)
}

func TestLoadSettings_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("LAYERWAVE_SERVER_ADDR", ":7070")
	t.Setenv("LAYERWAVE_DATABASE_PATH", "/tmp/x.db")
	t.Setenv("LAYERWAVE_METRICS_ENABLED", "false")

	s, err := LoadSettings("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", s.Server.Addr)
	assert.Equal(t, "/tmp/x.db", s.Database.Path)
	assert.False(t, s.Metrics.Enabled)
}

func TestLoadSettings_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read settings file")
}

func TestTelemetryConfig(t *testing.T) {
	clearEnv(t)

	s, err := LoadSettings("")
	require.NoError(t, err)
	s.Log.Level = "warn"

	cfg := s.TelemetryConfig("1.2.3")
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.NoError(t, cfg.Validate())
}

// =============================================================================
// Exit Codes
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"input format", engine.NewInputFormatError("bad", nil), 2},
		{"validation", engine.NewValidationError("bad plan", nil), 2},
		{"wrapped input", errors.Join(errors.New("ctx"), engine.NewInputFormatError("bad", nil)), 2},
		{"policy denied", engine.NewPolicyError("denied"), 3},
		{"other", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

// =============================================================================
// Plan
// =============================================================================

func TestRunPlan_JSON(t *testing.T) {
	catalogPath, layersPath := setupWorkspace(t)

	var stdout, stderr bytes.Buffer
	err := runPlan(context.Background(), &stdout, &stderr, planOptions{
		catalog: catalogPath,
		layers:  layersPath,
		format:  FormatJSON,
	})
	require.NoError(t, err)

	var waves []engine.WaveDocument
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &waves))
	require.Len(t, waves, 2)

	assert.Equal(t, 1, waves[0].WaveNumber)
	assert.Equal(t, "1.1.0", waves[0].NextVersion)
	assert.Len(t, waves[0].Layers, 2)
	assert.Equal(t, "1.2.0", waves[1].NextVersion)

	// No blocking findings on a clean plan.
	assert.NotContains(t, stderr.String(), "[ERROR]")
}

func TestRunPlan_Table(t *testing.T) {
	catalogPath, layersPath := setupWorkspace(t)

	var stdout bytes.Buffer
	err := runPlan(context.Background(), &stdout, &bytes.Buffer{}, planOptions{
		catalog: catalogPath,
		layers:  layersPath,
		format:  FormatTable,
	})
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "Wave 1:")
	assert.Contains(t, out, "Wave 2:")
	assert.Contains(t, out, "prod-base")
	assert.Contains(t, out, "upgrade-1.2")
}

func TestRunPlan_TargetOverride(t *testing.T) {
	catalogPath, layersPath := setupWorkspace(t)

	var stdout bytes.Buffer
	err := runPlan(context.Background(), &stdout, &bytes.Buffer{}, planOptions{
		catalog: catalogPath,
		layers:  layersPath,
		target:  "1.1.0",
		format:  FormatJSON,
	})
	require.NoError(t, err)

	var waves []engine.WaveDocument
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &waves))
	require.NotEmpty(t, waves)
	for _, w := range waves {
		assert.Equal(t, "1.1.0", w.ToVersion)
	}
}

func TestRunPlan_OutFile(t *testing.T) {
	catalogPath, layersPath := setupWorkspace(t)
	out := filepath.Join(t.TempDir(), "plan.json")

	var stdout bytes.Buffer
	err := runPlan(context.Background(), &stdout, &bytes.Buffer{}, planOptions{
		catalog: catalogPath,
		layers:  layersPath,
		format:  FormatJSON,
		out:     out,
	})
	require.NoError(t, err)
	assert.Empty(t, stdout.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"waveNumber": 1`)
}

func TestRunPlan_InputErrors(t *testing.T) {
	catalogPath, layersPath := setupWorkspace(t)

	tests := []struct {
		name  string
		opts  planOptions
		field string
	}{
		{
			name:  "unknown format",
			opts:  planOptions{catalog: catalogPath, layers: layersPath, format: "xml"},
			field: "format",
		},
		{
			name:  "replace without save",
			opts:  planOptions{catalog: catalogPath, layers: layersPath, format: FormatJSON, replace: true},
			field: "replace",
		},
		{
			name:  "no catalog",
			opts:  planOptions{layers: layersPath, format: FormatJSON},
			field: "catalog",
		},
		{
			name:  "bad target",
			opts:  planOptions{catalog: catalogPath, layers: layersPath, format: FormatJSON, target: "two"},
			field: "target",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runPlan(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, tt.opts)
			require.Error(t, err)
			assert.True(t, engine.IsInput(err), "got %v", err)
			assert.Equal(t, 2, ExitCode(err))

			if tt.field != "" {
				var ee *engine.EngineError
				require.ErrorAs(t, err, &ee)
				assert.Equal(t, tt.field, ee.Field)
			}
		})
	}
}

func TestRunPlan_Enforce(t *testing.T) {
	catalogPath, layersPath := setupWorkspace(t)

	policyPath := filepath.Join(t.TempDir(), "single-wave.rego")
	require.NoError(t, os.WriteFile(policyPath, []byte(`# Plans must fit in one wave.
# severity: error
package test.single

import rego.v1

deny contains "plans must fit in one wave" if {
	count(input.plan.waves) > 1
}
`), 0o644))

	opts := planOptions{
		catalog:  catalogPath,
		layers:   layersPath,
		format:   FormatJSON,
		policies: []string{policyPath},
	}

	// Findings alone do not fail the command.
	var stderr bytes.Buffer
	require.NoError(t, runPlan(context.Background(), &bytes.Buffer{}, &stderr, opts))
	assert.Contains(t, stderr.String(), "[ERROR] single-wave")

	opts.enforce = true
	var stdout bytes.Buffer
	err := runPlan(context.Background(), &stdout, &bytes.Buffer{}, opts)
	require.Error(t, err)
	assert.True(t, engine.IsPolicyDenied(err))
	assert.Equal(t, 3, ExitCode(err))
	assert.Empty(t, stdout.String())
}

// =============================================================================
// Archive
// =============================================================================

func TestPlanSaveAndHistory(t *testing.T) {
	catalogPath, layersPath := setupWorkspace(t)

	opts := planOptions{catalog: catalogPath, layers: layersPath, format: FormatJSON, save: true}
	require.NoError(t, runPlan(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, opts))
	require.NoError(t, runPlan(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, opts))

	out, err := execute(t, "history", "--json")
	require.NoError(t, err)

	var reports []*stores.PlanReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 2)
	assert.Equal(t, "2.0.0", reports[0].Target)
	assert.Equal(t, 2, reports[0].WaveCount)
	assert.Equal(t, 1, reports[0].ManualCount)

	// Replace keeps one report per target.
	opts.replace = true
	require.NoError(t, runPlan(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, opts))

	out, err = execute(t, "history", "--json", "--target", "2.0.0")
	require.NoError(t, err)
	reports = nil
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)

	out, err = execute(t, "history", "--id", reports[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, reports[0].ID)
	assert.Contains(t, out, `"waves"`)

	out, err = execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, reports[0].ID)
}

func TestHistory_Empty(t *testing.T) {
	setupWorkspace(t)

	out, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No archived reports.")

	out, err = execute(t, "history", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestHistory_UnknownID(t *testing.T) {
	setupWorkspace(t)

	_, err := execute(t, "history", "--id", "missing")
	require.Error(t, err)
	assert.True(t, engine.IsNotFound(err))
}

// =============================================================================
// Validate and Version
// =============================================================================

func TestValidate(t *testing.T) {
	catalogPath, layersPath := setupWorkspace(t)

	out, err := execute(t, "validate", "--catalog", catalogPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 recipe(s), 1 bucket(s)")
	assert.NotContains(t, out, "consistent")

	out, err = execute(t, "validate", "--catalog", catalogPath, "--layers", layersPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 layer(s), plan of 2 wave(s) is consistent")
}

func TestValidate_BrokenCatalog(t *testing.T) {
	setupWorkspace(t)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
recipes:
  - type: recipe
    from: ["1.0.0"]
    to: 1.1.0
`), 0o644))

	_, err := execute(t, "validate", "--catalog", path)
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
}

func TestVersion(t *testing.T) {
	clearEnv(t)

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "layerwave test")
	assert.Contains(t, out, "commit: none")
}
