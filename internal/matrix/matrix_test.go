package matrix

import (
	"reflect"
	"testing"

	"github.com/verity-labs/verity-go/internal/domain"
)

func baseConfig() domain.ScenarioConfig {
	return domain.ScenarioConfig{
		ScoreThreshold:   0.55,
		SensitivityScale: 1.0,
		Weights: map[string]float64{
			"frequency":  0.5,
			"dispersion": 0.3,
			"coverage":   0.2,
		},
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	first := IDs(Build(baseConfig()))
	second := IDs(Build(baseConfig()))
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical ordering, got %v vs %v", first, second)
	}
}

func TestBuildMatrixSize(t *testing.T) {
	// 1 baseline + 9 thresholds + 2 sensitivity scales + 3 weight dims.
	specs := Build(baseConfig())
	if len(specs) != 15 {
		t.Fatalf("len=%d, want 15", len(specs))
	}
}

func TestBuildFamiliesAndOrder(t *testing.T) {
	specs := Build(baseConfig())
	want := []string{
		"baseline",
		"threshold_0.40", "threshold_0.45", "threshold_0.50", "threshold_0.55",
		"threshold_0.60", "threshold_0.65", "threshold_0.70", "threshold_0.75",
		"threshold_0.80",
		"sensitivity_0.5x", "sensitivity_2.0x",
		"weight_coverage", "weight_dispersion", "weight_frequency",
	}
	if got := IDs(specs); !reflect.DeepEqual(got, want) {
		t.Fatalf("ids=%v, want %v", got, want)
	}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			t.Fatalf("spec %s invalid: %v", spec.ID, err)
		}
	}
}

func TestBuildWeightCardinalityTracksInput(t *testing.T) {
	base := baseConfig()
	base.Weights = map[string]float64{"frequency": 1.0}
	specs := Build(base)
	if len(specs) != 13 {
		t.Fatalf("len=%d, want 13 for one weight dimension", len(specs))
	}
}

func TestBuildDoesNotMutateBase(t *testing.T) {
	base := baseConfig()
	Build(base)
	if base.Weights["frequency"] != 0.5 {
		t.Fatalf("base config mutated: %v", base.Weights)
	}
	if base.ScoreThreshold != 0.55 {
		t.Fatalf("base threshold mutated: %v", base.ScoreThreshold)
	}
}

func TestBuildPerturbations(t *testing.T) {
	specs := Build(baseConfig())
	byID := make(map[string]domain.ScenarioSpec, len(specs))
	for _, spec := range specs {
		byID[spec.ID] = spec
	}

	if got := byID["threshold_0.40"].Config.ScoreThreshold; got != 0.40 {
		t.Fatalf("threshold_0.40 config threshold=%v", got)
	}
	if got := byID["sensitivity_0.5x"].Config.SensitivityScale; got != 0.5 {
		t.Fatalf("sensitivity_0.5x scale=%v", got)
	}
	if got := byID["weight_frequency"].Config.Weights["frequency"]; got != 1.0 {
		t.Fatalf("weight_frequency weight=%v", got)
	}
	if got := byID["weight_frequency"].Config.Weights["coverage"]; got != 0.2 {
		t.Fatalf("weight_frequency untouched weight=%v", got)
	}
}

func TestBuildReducedAllowList(t *testing.T) {
	specs := BuildReduced(baseConfig())
	want := []string{"baseline", "threshold_0.60", "sensitivity_2.0x"}
	if got := IDs(specs); !reflect.DeepEqual(got, want) {
		t.Fatalf("reduced ids=%v, want %v", got, want)
	}
}
