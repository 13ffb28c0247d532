package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Scenario families produced by the matrix builder.
const (
	FamilyBaseline          = "baseline"
	FamilyThresholdSweep    = "threshold_sweep"
	FamilySensitivityScale  = "sensitivity_scale"
	FamilyWeightPermutation = "weight_permutation"
)

// Warning categories assigned by the scenario executor.
const (
	WarningInsufficientData = "insufficient_data"
	WarningSparseData       = "sparse_data"
	WarningNaNSanitized     = "nan_sanitized"
	WarningFallbackEstimate = "fallback_estimate"
	WarningOther            = "other"
)

// Quality flags derived from a scenario run.
const (
	FlagFallbackHeavy          = "fallback_heavy"
	FlagFallbackRatioExceeded  = "fallback_ratio_exceeded"
	FlagWarningDensityExceeded = "warning_density_exceeded"
	FlagAllModelsFalsified     = "all_models_falsified"
)

// ScenarioConfig is one perturbation of the base evaluation configuration.
// The executor passes it to the evaluation collaborator verbatim.
type ScenarioConfig struct {
	ScoreThreshold   float64            `json:"score_threshold"`
	SensitivityScale float64            `json:"sensitivity_scale"`
	Weights          map[string]float64 `json:"weights"`
}

func (c ScenarioConfig) Clone() ScenarioConfig {
	out := c
	if c.Weights != nil {
		out.Weights = make(map[string]float64, len(c.Weights))
		for k, v := range c.Weights {
			out.Weights[k] = v
		}
	}
	return out
}

// WeightKeys returns the weight dimension names in sorted order.
func (c ScenarioConfig) WeightKeys() []string {
	keys := make([]string, 0, len(c.Weights))
	for k := range c.Weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ScenarioSpec identifies one parameterized execution of the evaluation
// battery. Specs are immutable once built.
type ScenarioSpec struct {
	ID     string         `json:"id"`
	Family string         `json:"family"`
	Config ScenarioConfig `json:"config"`
}

func (s ScenarioSpec) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("scenario id is required")
	}
	switch s.Family {
	case FamilyBaseline, FamilyThresholdSweep, FamilySensitivityScale, FamilyWeightPermutation:
	default:
		return fmt.Errorf("scenario family unsupported: %q", s.Family)
	}
	return nil
}

// ScenarioMetrics is the metric block the evaluation collaborator reports
// for one scenario.
type ScenarioMetrics struct {
	TopModel         string   `json:"top_model"`
	TopScore         float64  `json:"top_score"`
	SurvivingModels  []string `json:"surviving_models"`
	FalsifiedModels  []string `json:"falsified_models"`
	AnomalyConfirmed bool     `json:"anomaly_confirmed"`
	AnomalyStable    bool     `json:"anomaly_stable"`
}

// WarningSummary aggregates the diagnostic warnings captured during one
// scenario run.
type WarningSummary struct {
	TotalWarnings int            `json:"total_warnings"`
	PerCategory   map[string]int `json:"per_category"`
	FallbackRatio float64        `json:"fallback_ratio"`
}

// ScenarioResult is the outcome of one scenario. Valid holds exactly when
// QualityFlags is empty.
type ScenarioResult struct {
	ID           string          `json:"id"`
	Family       string          `json:"family"`
	Metrics      ScenarioMetrics `json:"metrics"`
	Warnings     WarningSummary  `json:"warnings"`
	QualityFlags []string        `json:"quality_flags"`
	Valid        bool            `json:"valid"`
}

// NormalizeFlags dedupes and sorts flags and recomputes Valid.
func (r *ScenarioResult) NormalizeFlags() {
	if r == nil {
		return
	}
	seen := make(map[string]struct{}, len(r.QualityFlags))
	out := make([]string, 0, len(r.QualityFlags))
	for _, flag := range r.QualityFlags {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}
		if _, ok := seen[flag]; ok {
			continue
		}
		seen[flag] = struct{}{}
		out = append(out, flag)
	}
	sort.Strings(out)
	r.QualityFlags = out
	r.Valid = len(out) == 0
}
