package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const regoContent = `# Heap must stay below the board limit.
# Applies to every board.
# tags: memory, boards
package cfgtree.policies.heap

import rego.v1

deny contains "too big" if {
	input.values["hal.heap"] > 65536
}`

func writePolicy(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestLoader_LoadFile_Rego(t *testing.T) {
	policyFile := filepath.Join(t.TempDir(), "heap-limit.rego")
	writePolicy(t, policyFile, regoContent)

	policy, err := NewLoader(zerolog.Nop()).LoadFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Name != "heap-limit" {
		t.Errorf("Expected name 'heap-limit', got '%s'", policy.Name)
	}
	if policy.Description != "Heap must stay below the board limit. Applies to every board." {
		t.Errorf("Description = %q", policy.Description)
	}
	if want := []string{"memory", "boards"}; !reflect.DeepEqual(policy.Tags, want) {
		t.Errorf("Tags = %v, want %v", policy.Tags, want)
	}
	if policy.Severity != SeverityError || !policy.Enabled {
		t.Errorf("unexpected defaults: %+v", policy)
	}
	if policy.Source != policyFile {
		t.Errorf("Source = %q", policy.Source)
	}
}

func TestLoader_LoadFile_RegoDirectives(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		severity Severity
		enabled  bool
		wantErr  string
	}{
		{name: "warning", header: "# severity: warning\n", severity: SeverityWarning, enabled: true},
		{name: "disabled", header: "# disabled\n", severity: SeverityError, enabled: false},
		{name: "unknown severity", header: "# severity: fatal\n", wantErr: "unknown severity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "p.rego")
			writePolicy(t, path, tt.header+"package p\n")

			p, err := NewLoader(zerolog.Nop()).LoadFile(path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			if p.Severity != tt.severity || p.Enabled != tt.enabled {
				t.Errorf("policy = %+v", p)
			}
		})
	}
}

func TestLoader_LoadFile_JSON(t *testing.T) {
	policyFile := filepath.Join(t.TempDir(), "named.json")

	data, err := json.Marshal(Policy{Rego: regoContent, Severity: SeverityWarning, Enabled: true})
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	writePolicy(t, policyFile, string(data))

	loaded, err := NewLoader(zerolog.Nop()).LoadFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if loaded.Name != "named" || loaded.Severity != SeverityWarning {
		t.Errorf("loaded = %+v", loaded)
	}

	writePolicy(t, policyFile, `{"name": "empty"}`)
	if _, err := NewLoader(zerolog.Nop()).LoadFile(policyFile); err == nil {
		t.Error("expected error for policy without rego")
	}
}

func TestLoader_Load_Directory(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	dir := t.TempDir()

	writePolicy(t, filepath.Join(dir, "b.rego"), regoContent)
	writePolicy(t, filepath.Join(dir, "nested", "a.rego"), regoContent)
	writePolicy(t, filepath.Join(dir, "README.md"), "not a policy")

	policies, err := loader.Load(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	var names []string
	for _, p := range policies {
		names = append(names, p.Name)
	}
	if want := []string{"b", "a"}; !reflect.DeepEqual(names, want) {
		t.Errorf("names = %v, want %v", names, want)
	}

	if _, err := loader.Load(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected error for missing path")
	}

	writePolicy(t, filepath.Join(dir, "broken.json"), "{")
	if _, err := loader.Load(context.Background(), []string{dir}); err == nil {
		t.Error("expected error for broken policy file")
	}
}

func TestLoader_Load_Rereads(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	policyFile := filepath.Join(t.TempDir(), "p.rego")
	writePolicy(t, policyFile, regoContent)

	if _, err := loader.Load(context.Background(), []string{policyFile}); err != nil {
		t.Fatal(err)
	}
	writePolicy(t, policyFile, "package changed")
	second, err := loader.Load(context.Background(), []string{policyFile})
	if err != nil {
		t.Fatal(err)
	}
	if second[0].Rego != "package changed" {
		t.Error("expected the edited file to be reread")
	}
}

func TestEngine_LoadPolicies(t *testing.T) {
	eng := newTestEngine(t)
	dir := t.TempDir()
	writePolicy(t, filepath.Join(dir, "heap-limit.rego"), regoContent)

	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}
	p, err := eng.GetPolicy("heap-limit")
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if p.Source == "" {
		t.Error("expected Source to be set")
	}
}
