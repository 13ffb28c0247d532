package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/verity-labs/verity-go/internal/domain"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	doc, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Version != DefaultVersion {
		t.Fatalf("version=%q, want %q", doc.Version, DefaultVersion)
	}
	if doc.Warnings.MaxPerScenario != 25 {
		t.Fatalf("max_per_scenario=%d, want 25", doc.Warnings.MaxPerScenario)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	doc, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestParseDocument(t *testing.T) {
	input := []byte(`
schema: verity.policy.v1
version: "2025.1"
dataset:
  min_pages: 10
  min_tokens: 5000
warnings:
  max_total: 60
  max_per_scenario: 12
  fallback_heavy_count: 3
  max_fallback_ratio: 0.4
  category_scenario_ceilings:
    insufficient_data: 2
    fallback_estimate: 1
`)
	doc, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Version != "2025.1" {
		t.Fatalf("version=%q", doc.Version)
	}
	if doc.Dataset.MinTokens != 5000 {
		t.Fatalf("min_tokens=%d", doc.Dataset.MinTokens)
	}
	if doc.Warnings.CategoryScenarioCeilings[domain.WarningFallbackEstimate] != 1 {
		t.Fatalf("ceilings=%v", doc.Warnings.CategoryScenarioCeilings)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"wrong schema", "schema: other.v1\nversion: x\n"},
		{"missing version", "schema: verity.policy.v1\n"},
		{
			"bad ratio",
			"schema: verity.policy.v1\nversion: x\nwarnings:\n  fallback_heavy_count: 1\n  max_fallback_ratio: 1.5\n",
		},
		{
			"unknown category",
			"schema: verity.policy.v1\nversion: x\nwarnings:\n  fallback_heavy_count: 1\n  max_fallback_ratio: 0.5\n  category_scenario_ceilings:\n    bogus: 1\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.input)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := "schema: verity.policy.v1\nversion: \"release-2\"\nwarnings:\n  fallback_heavy_count: 5\n  max_fallback_ratio: 0.5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Version != "release-2" {
		t.Fatalf("version=%q", doc.Version)
	}
}
