// Package robustness aggregates per-scenario results into the statistical
// robustness verdict for one sweep.
package robustness

import (
	"fmt"

	"github.com/verity-labs/verity-go/internal/domain"
	"github.com/verity-labs/verity-go/internal/platform/env"
	"github.com/verity-labs/verity-go/internal/policy"
)

// Config holds the verdict thresholds.
type Config struct {
	MinValidRate         float64
	MinTopModelMatchRate float64
	MinAnomalyMatchRate  float64
}

func DefaultConfig() Config {
	return Config{
		MinValidRate:         0.80,
		MinTopModelMatchRate: 0.90,
		MinAnomalyMatchRate:  0.90,
	}
}

// ConfigFromEnv reads threshold overrides, falling back to the defaults.
func ConfigFromEnv() (Config, error) {
	defaults := DefaultConfig()
	minValid, err := env.Float("VERITY_MIN_VALID_RATE", defaults.MinValidRate)
	if err != nil {
		return Config{}, err
	}
	minTop, err := env.Float("VERITY_MIN_TOP_MODEL_MATCH_RATE", defaults.MinTopModelMatchRate)
	if err != nil {
		return Config{}, err
	}
	minAnomaly, err := env.Float("VERITY_MIN_ANOMALY_MATCH_RATE", defaults.MinAnomalyMatchRate)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		MinValidRate:         minValid,
		MinTopModelMatchRate: minTop,
		MinAnomalyMatchRate:  minAnomaly,
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	for _, rate := range []struct {
		name  string
		value float64
	}{
		{"VERITY_MIN_VALID_RATE", c.MinValidRate},
		{"VERITY_MIN_TOP_MODEL_MATCH_RATE", c.MinTopModelMatchRate},
		{"VERITY_MIN_ANOMALY_MATCH_RATE", c.MinAnomalyMatchRate},
	} {
		if rate.value <= 0 || rate.value > 1 {
			return fmt.Errorf("%s must be in (0, 1]", rate.name)
		}
	}
	return nil
}

// Evaluate computes the robustness verdict over all scenario results in
// declared order. INCONCLUSIVE short-circuits when no legitimate comparison
// baseline exists; a FAIL there would overstate confidence.
func Evaluate(results []domain.ScenarioResult, warningPolicy policy.WarningPolicy, cfg Config) domain.RobustnessVerdict {
	verdict := domain.RobustnessVerdict{
		WarningPolicyPass: true,
	}
	caveats := newCaveatSet()

	var valid []domain.ScenarioResult
	anySurvivors := false
	for _, result := range results {
		if result.Valid {
			valid = append(valid, result)
		}
		if len(result.Metrics.SurvivingModels) > 0 {
			anySurvivors = true
		}
	}
	if len(results) > 0 {
		verdict.ValidRate = float64(len(valid)) / float64(len(results))
	}

	if len(valid) == 0 || !anySurvivors {
		verdict.Decision = domain.DecisionInconclusive
		caveats.add("no valid comparison baseline exists; verdict is inconclusive rather than failed")
		verdict.WarningPolicyPass = evaluateWarningPolicy(results, warningPolicy, caveats)
		verdict.Caveats = caveats.list()
		return verdict
	}

	reference := valid[0]
	verdict.BaselineScenario = reference.ID
	if reference.Family != domain.FamilyBaseline {
		caveats.add(fmt.Sprintf("baseline scenario was invalid; match rates anchored to %q instead", reference.ID))
	}

	topMatches := 0
	anomalyMatches := 0
	for _, result := range valid {
		if result.Metrics.TopModel == reference.Metrics.TopModel {
			topMatches++
		}
		if result.Metrics.AnomalyConfirmed == reference.Metrics.AnomalyConfirmed {
			anomalyMatches++
		}
	}
	verdict.TopModelMatchRate = float64(topMatches) / float64(len(valid))
	verdict.AnomalyMatchRate = float64(anomalyMatches) / float64(len(valid))

	verdict.WarningPolicyPass = evaluateWarningPolicy(results, warningPolicy, caveats)

	totalWarnings := 0
	for _, result := range results {
		totalWarnings += result.Warnings.TotalWarnings
	}
	if totalWarnings > 0 {
		caveats.add(fmt.Sprintf("%d diagnostic warnings recorded across the sweep", totalWarnings))
	}

	verdict.Robust = verdict.ValidRate >= cfg.MinValidRate &&
		verdict.TopModelMatchRate >= cfg.MinTopModelMatchRate &&
		verdict.AnomalyMatchRate >= cfg.MinAnomalyMatchRate &&
		verdict.WarningPolicyPass
	if verdict.Robust {
		verdict.Decision = domain.DecisionPass
	} else {
		verdict.Decision = domain.DecisionFail
	}
	verdict.Caveats = caveats.list()
	return verdict
}

// evaluateWarningPolicy checks the sweep-wide warning ceilings independently
// of the match rates. Every breach appends one caveat; the pass flag drops
// on any breach.
func evaluateWarningPolicy(results []domain.ScenarioResult, warningPolicy policy.WarningPolicy, caveats *caveatSet) bool {
	pass := true

	totalWarnings := 0
	for _, result := range results {
		totalWarnings += result.Warnings.TotalWarnings
	}
	if warningPolicy.MaxTotal > 0 && totalWarnings > warningPolicy.MaxTotal {
		pass = false
		caveats.add(fmt.Sprintf("total warnings %d exceed ceiling %d", totalWarnings, warningPolicy.MaxTotal))
	}

	if warningPolicy.MaxPerScenario > 0 {
		for _, result := range results {
			if result.Warnings.TotalWarnings > warningPolicy.MaxPerScenario {
				pass = false
				caveats.add(fmt.Sprintf("scenario %s warnings %d exceed per-scenario ceiling %d",
					result.ID, result.Warnings.TotalWarnings, warningPolicy.MaxPerScenario))
			}
		}
	}

	for _, category := range []string{
		domain.WarningInsufficientData,
		domain.WarningSparseData,
		domain.WarningNaNSanitized,
		domain.WarningFallbackEstimate,
	} {
		ceiling, ok := warningPolicy.CategoryScenarioCeilings[category]
		if !ok {
			continue
		}
		affected := 0
		for _, result := range results {
			if result.Warnings.PerCategory[category] > 0 {
				affected++
			}
		}
		if affected > ceiling {
			pass = false
			caveats.add(fmt.Sprintf("%d scenarios report %s warnings, ceiling is %d", affected, category, ceiling))
		}
	}

	return pass
}

// caveatSet keeps caveats in first-seen order without duplicates. Caveats
// are advisory annotations, never merged away.
type caveatSet struct {
	seen  map[string]struct{}
	items []string
}

func newCaveatSet() *caveatSet {
	return &caveatSet{seen: make(map[string]struct{})}
}

func (c *caveatSet) add(caveat string) {
	if _, ok := c.seen[caveat]; ok {
		return
	}
	c.seen[caveat] = struct{}{}
	c.items = append(c.items, caveat)
}

func (c *caveatSet) list() []string {
	if len(c.items) == 0 {
		return nil
	}
	return c.items
}
