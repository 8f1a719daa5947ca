package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const fanoutRego = `# Keep waves small in staging.
# severity: error
package staging.fanout

import rego.v1

deny contains "wave too large" if {
	some wave in input.plan.waves
	count(wave.layers) > 2
}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromPaths_RegoFile(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "small-waves.rego")
	writeFile(t, path, fanoutRego)

	policies, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("Expected 1 policy, got %d", len(policies))
	}

	p := policies[0]
	if p.Name != "small-waves" {
		t.Errorf("Expected name 'small-waves', got '%s'", p.Name)
	}
	if p.Severity != SeverityError {
		t.Errorf("Expected severity from directive, got %s", p.Severity)
	}
	if p.Description != "Keep waves small in staging." {
		t.Errorf("Unexpected description %q", p.Description)
	}
	if p.Source != path || !p.Enabled {
		t.Errorf("Unexpected source/enabled: %s %v", p.Source, p.Enabled)
	}
}

func TestLoadFromPaths_JSONFile(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "p.json")
	writeFile(t, path, `{"name": "json-policy", "enabled": true, "rego": "package j\n"}`)

	policies, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policies[0].Name != "json-policy" || policies[0].Severity != SeverityWarning {
		t.Errorf("Unexpected policy %+v", policies[0])
	}
}

func TestLoadFromPaths_DirectoryRecursive(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.rego"), "package a\n")
	writeFile(t, filepath.Join(dir, "nested", "b.rego"), "package b\n")
	writeFile(t, filepath.Join(dir, "README.md"), "not a policy")
	writeFile(t, filepath.Join(dir, "broken.json"), "{")

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies (broken JSON skipped), got %d", len(policies))
	}
}

func TestLoadFromPaths_Errors(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	if _, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing.rego")}); err == nil {
		t.Error("Expected error for missing path")
	}

	unsupported := filepath.Join(dir, "policy.txt")
	writeFile(t, unsupported, "package x")
	if _, err := loader.LoadFromPaths(context.Background(), []string{unsupported}); err == nil {
		t.Error("Expected error for unsupported file type")
	}

	noName := filepath.Join(dir, "noname.json")
	writeFile(t, noName, `{"rego": "package x"}`)
	if _, err := loader.LoadFromPaths(context.Background(), []string{noName}); err == nil {
		t.Error("Expected error for JSON policy without name")
	}
}

func TestEngine_LoadPolicies(t *testing.T) {
	eng := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "small-waves.rego")
	writeFile(t, path, fanoutRego)

	if err := eng.LoadPolicies(context.Background(), []string{path}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}
	if _, err := eng.GetPolicy("small-waves"); err != nil {
		t.Errorf("Expected loaded policy to be registered: %v", err)
	}
}

func TestLoader_Watch(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	loader.delay = 20 * time.Millisecond

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.rego"), "package a\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 4)
	err := loader.Watch(ctx, []string{dir}, func(p []Policy) error {
		reloaded <- p
		return nil
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer func() { _ = loader.StopWatching() }()

	writeFile(t, filepath.Join(dir, "b.rego"), "package b\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case p := <-reloaded:
			if len(p) == 2 {
				return
			}
		case <-deadline:
			t.Fatal("Timed out waiting for policy reload")
		}
	}
}
