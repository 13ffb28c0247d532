// Package policy loads the dataset and warning ceiling policy document
// consumed by the sweep orchestrator. A missing document falls back to the
// built-in defaults; a present but invalid document is an error.
package policy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/verity-labs/verity-go/internal/domain"
)

const SpecSchemaV1 = "verity.policy.v1"

// DefaultVersion identifies the built-in policy used when no document is
// supplied. It participates in the checkpoint signature like any other
// policy version.
const DefaultVersion = "builtin-1"

type Document struct {
	Schema   string        `json:"schema" yaml:"schema"`
	Version  string        `json:"version" yaml:"version"`
	Dataset  DatasetPolicy `json:"dataset" yaml:"dataset"`
	Warnings WarningPolicy `json:"warnings" yaml:"warnings"`
}

// DatasetPolicy is the floor a dataset profile must clear before any
// scenario runs.
type DatasetPolicy struct {
	MinPages  int64 `json:"min_pages" yaml:"min_pages"`
	MinTokens int64 `json:"min_tokens" yaml:"min_tokens"`
}

// WarningPolicy bounds diagnostic warning volume for the whole sweep and
// per scenario.
type WarningPolicy struct {
	MaxTotal                 int            `json:"max_total" yaml:"max_total"`
	MaxPerScenario           int            `json:"max_per_scenario" yaml:"max_per_scenario"`
	FallbackHeavyCount       int            `json:"fallback_heavy_count" yaml:"fallback_heavy_count"`
	MaxFallbackRatio         float64        `json:"max_fallback_ratio" yaml:"max_fallback_ratio"`
	CategoryScenarioCeilings map[string]int `json:"category_scenario_ceilings" yaml:"category_scenario_ceilings"`
}

// Defaults returns the hardcoded policy used when no document is present.
func Defaults() Document {
	return Document{
		Schema:  SpecSchemaV1,
		Version: DefaultVersion,
		Dataset: DatasetPolicy{
			MinPages:  1,
			MinTokens: 1,
		},
		Warnings: WarningPolicy{
			MaxTotal:           120,
			MaxPerScenario:     25,
			FallbackHeavyCount: 5,
			MaxFallbackRatio:   0.5,
			CategoryScenarioCeilings: map[string]int{
				domain.WarningInsufficientData: 5,
				domain.WarningSparseData:       8,
				domain.WarningNaNSanitized:     6,
				domain.WarningFallbackEstimate: 4,
			},
		},
	}
}

// Load reads a policy document from disk. An absent path yields Defaults().
func Load(path string) (Document, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Defaults(), nil
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil
		}
		return Document{}, fmt.Errorf("read policy document: %w", err)
	}
	return Parse(payload)
}

func Parse(input []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(input, &doc); err != nil {
		return Document{}, fmt.Errorf("decode policy document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (d Document) Validate() error {
	if strings.TrimSpace(d.Schema) != SpecSchemaV1 {
		return fmt.Errorf("policy.schema must be %q", SpecSchemaV1)
	}
	if strings.TrimSpace(d.Version) == "" {
		return errors.New("policy.version is required")
	}
	if d.Dataset.MinPages < 0 {
		return errors.New("policy.dataset.min_pages must be >= 0")
	}
	if d.Dataset.MinTokens < 0 {
		return errors.New("policy.dataset.min_tokens must be >= 0")
	}
	if d.Warnings.MaxTotal < 0 {
		return errors.New("policy.warnings.max_total must be >= 0")
	}
	if d.Warnings.MaxPerScenario < 0 {
		return errors.New("policy.warnings.max_per_scenario must be >= 0")
	}
	if d.Warnings.FallbackHeavyCount < 1 {
		return errors.New("policy.warnings.fallback_heavy_count must be >= 1")
	}
	if d.Warnings.MaxFallbackRatio <= 0 || d.Warnings.MaxFallbackRatio > 1 {
		return errors.New("policy.warnings.max_fallback_ratio must be in (0, 1]")
	}
	for category, ceiling := range d.Warnings.CategoryScenarioCeilings {
		switch category {
		case domain.WarningInsufficientData, domain.WarningSparseData,
			domain.WarningNaNSanitized, domain.WarningFallbackEstimate:
		default:
			return fmt.Errorf("policy.warnings.category_scenario_ceilings key unsupported: %q", category)
		}
		if ceiling < 0 {
			return fmt.Errorf("policy.warnings.category_scenario_ceilings[%s] must be >= 0", category)
		}
	}
	return nil
}
