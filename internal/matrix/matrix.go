// Package matrix enumerates the scenario perturbation matrix for one sweep.
// Build is pure: identical input yields an identical ordered list, which is
// what makes checkpoint signatures and resume comparisons trustworthy.
package matrix

import (
	"fmt"
	"math"

	"github.com/verity-labs/verity-go/internal/domain"
)

const (
	thresholdSweepStart = 0.40
	thresholdSweepEnd   = 0.80
	thresholdSweepStep  = 0.05
)

var sensitivityFactors = []float64{0.5, 2.0}

// reducedAllowList names the scenarios a reduced (quick) sweep keeps.
var reducedAllowList = map[string]struct{}{
	"baseline":         {},
	"threshold_0.60":   {},
	"sensitivity_2.0x": {},
}

// Build enumerates the full scenario matrix: one baseline, the inclusive
// threshold sweep, two sensitivity scales, and one weight permutation per
// weight dimension present in the base configuration.
func Build(base domain.ScenarioConfig) []domain.ScenarioSpec {
	specs := make([]domain.ScenarioSpec, 0, 12+len(base.Weights))

	specs = append(specs, domain.ScenarioSpec{
		ID:     "baseline",
		Family: domain.FamilyBaseline,
		Config: base.Clone(),
	})

	steps := int(math.Round((thresholdSweepEnd-thresholdSweepStart)/thresholdSweepStep)) + 1
	for i := 0; i < steps; i++ {
		threshold := thresholdSweepStart + thresholdSweepStep*float64(i)
		cfg := base.Clone()
		cfg.ScoreThreshold = threshold
		specs = append(specs, domain.ScenarioSpec{
			ID:     fmt.Sprintf("threshold_%.2f", threshold),
			Family: domain.FamilyThresholdSweep,
			Config: cfg,
		})
	}

	for _, factor := range sensitivityFactors {
		cfg := base.Clone()
		cfg.SensitivityScale = base.SensitivityScale * factor
		specs = append(specs, domain.ScenarioSpec{
			ID:     fmt.Sprintf("sensitivity_%.1fx", factor),
			Family: domain.FamilySensitivityScale,
			Config: cfg,
		})
	}

	for _, key := range base.WeightKeys() {
		cfg := base.Clone()
		cfg.Weights[key] = base.Weights[key] * 2
		specs = append(specs, domain.ScenarioSpec{
			ID:     "weight_" + key,
			Family: domain.FamilyWeightPermutation,
			Config: cfg,
		})
	}

	return specs
}

// BuildReduced filters the full matrix to the reduced allow-list. If no id
// matches (scenario names drifted), the full list is returned instead of a
// silently empty sweep.
func BuildReduced(base domain.ScenarioConfig) []domain.ScenarioSpec {
	full := Build(base)
	reduced := make([]domain.ScenarioSpec, 0, len(reducedAllowList))
	for _, spec := range full {
		if _, ok := reducedAllowList[spec.ID]; ok {
			reduced = append(reduced, spec)
		}
	}
	if len(reduced) == 0 {
		return full
	}
	return reduced
}

// IDs extracts the ordered scenario-id list used in checkpoint signatures.
func IDs(specs []domain.ScenarioSpec) []string {
	out := make([]string, 0, len(specs))
	for _, spec := range specs {
		out = append(out, spec.ID)
	}
	return out
}
