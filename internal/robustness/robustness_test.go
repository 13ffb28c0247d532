package robustness

import (
	"strings"
	"testing"

	"github.com/verity-labs/verity-go/internal/domain"
	"github.com/verity-labs/verity-go/internal/policy"
)

func validResult(id, family, topModel string, anomaly bool) domain.ScenarioResult {
	result := domain.ScenarioResult{
		ID:     id,
		Family: family,
		Metrics: domain.ScenarioMetrics{
			TopModel:         topModel,
			TopScore:         0.9,
			SurvivingModels:  []string{topModel},
			AnomalyConfirmed: anomaly,
		},
	}
	result.NormalizeFlags()
	return result
}

func invalidResult(id string) domain.ScenarioResult {
	result := validResult(id, domain.FamilyThresholdSweep, "zipf", true)
	result.QualityFlags = []string{domain.FlagWarningDensityExceeded}
	result.NormalizeFlags()
	return result
}

func agreeingResults(n int) []domain.ScenarioResult {
	results := make([]domain.ScenarioResult, 0, n)
	for i := 0; i < n; i++ {
		family := domain.FamilyThresholdSweep
		id := "threshold"
		if i == 0 {
			family = domain.FamilyBaseline
			id = "baseline"
		} else {
			id = "threshold_" + string(rune('a'+i))
		}
		results = append(results, validResult(id, family, "zipf", true))
	}
	return results
}

func testPolicy() policy.WarningPolicy {
	return policy.Defaults().Warnings
}

func TestEvaluatePass(t *testing.T) {
	verdict := Evaluate(agreeingResults(10), testPolicy(), DefaultConfig())
	if verdict.Decision != domain.DecisionPass || !verdict.Robust {
		t.Fatalf("verdict=%+v", verdict)
	}
	if verdict.ValidRate != 1.0 || verdict.TopModelMatchRate != 1.0 || verdict.AnomalyMatchRate != 1.0 {
		t.Fatalf("rates=%+v", verdict)
	}
	if verdict.BaselineScenario != "baseline" {
		t.Fatalf("baseline=%q", verdict.BaselineScenario)
	}
	if len(verdict.Caveats) != 0 {
		t.Fatalf("caveats=%v", verdict.Caveats)
	}
}

func TestEvaluateFailOnTopModelDisagreement(t *testing.T) {
	results := agreeingResults(10)
	// Two of ten valid results disagree with the baseline top model.
	results[3].Metrics.TopModel = "heaps"
	results[7].Metrics.TopModel = "heaps"

	verdict := Evaluate(results, testPolicy(), DefaultConfig())
	if verdict.Decision != domain.DecisionFail {
		t.Fatalf("decision=%s, want FAIL", verdict.Decision)
	}
	if verdict.TopModelMatchRate != 0.8 {
		t.Fatalf("top_model_match_rate=%v", verdict.TopModelMatchRate)
	}
}

func TestEvaluateFailOnLowValidRate(t *testing.T) {
	results := agreeingResults(6)
	for i := 0; i < 4; i++ {
		results = append(results, invalidResult("flagged_"+string(rune('a'+i))))
	}

	verdict := Evaluate(results, testPolicy(), DefaultConfig())
	if verdict.ValidRate != 0.6 {
		t.Fatalf("valid_rate=%v", verdict.ValidRate)
	}
	if verdict.Decision != domain.DecisionFail {
		t.Fatalf("decision=%s, want FAIL", verdict.Decision)
	}
}

func TestEvaluateInconclusiveWhenNoValidResults(t *testing.T) {
	results := []domain.ScenarioResult{invalidResult("a"), invalidResult("b")}
	verdict := Evaluate(results, testPolicy(), DefaultConfig())
	if verdict.Decision != domain.DecisionInconclusive {
		t.Fatalf("decision=%s, want INCONCLUSIVE", verdict.Decision)
	}
}

func TestEvaluateNoFalseFailOnZeroSurvivors(t *testing.T) {
	// Every scenario reports zero surviving models: there is no comparison
	// baseline, so the decision must be INCONCLUSIVE, never FAIL.
	results := make([]domain.ScenarioResult, 0, 5)
	for i := 0; i < 5; i++ {
		result := domain.ScenarioResult{
			ID:     "scenario_" + string(rune('a'+i)),
			Family: domain.FamilyThresholdSweep,
			Metrics: domain.ScenarioMetrics{
				FalsifiedModels: []string{"zipf", "heaps"},
			},
			QualityFlags: []string{domain.FlagAllModelsFalsified},
		}
		result.NormalizeFlags()
		results = append(results, result)
	}
	verdict := Evaluate(results, testPolicy(), DefaultConfig())
	if verdict.Decision != domain.DecisionInconclusive {
		t.Fatalf("decision=%s, want INCONCLUSIVE", verdict.Decision)
	}
}

func TestEvaluateBaselineShiftCaveat(t *testing.T) {
	results := agreeingResults(10)
	results[0].QualityFlags = []string{domain.FlagWarningDensityExceeded}
	results[0].NormalizeFlags()

	verdict := Evaluate(results, testPolicy(), DefaultConfig())
	if verdict.BaselineScenario == "baseline" {
		t.Fatalf("reference should have shifted, got %q", verdict.BaselineScenario)
	}
	found := false
	for _, caveat := range verdict.Caveats {
		if strings.Contains(caveat, "anchored to") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected baseline shift caveat, got %v", verdict.Caveats)
	}
}

func TestEvaluateWarningPolicyBreachFailsIndependently(t *testing.T) {
	results := agreeingResults(10)
	// Perfect agreement, but one scenario blows the per-scenario ceiling.
	results[2].Warnings = domain.WarningSummary{
		TotalWarnings: 30,
		PerCategory:   map[string]int{domain.WarningSparseData: 30},
	}

	verdict := Evaluate(results, testPolicy(), DefaultConfig())
	if verdict.WarningPolicyPass {
		t.Fatalf("warning policy should fail")
	}
	if verdict.Decision != domain.DecisionFail {
		t.Fatalf("decision=%s, want FAIL", verdict.Decision)
	}
	if verdict.TopModelMatchRate != 1.0 {
		t.Fatalf("match rates must be unaffected: %+v", verdict)
	}
}

func TestEvaluateCategoryCeilingBreach(t *testing.T) {
	results := agreeingResults(10)
	warningPolicy := testPolicy()
	warningPolicy.CategoryScenarioCeilings[domain.WarningFallbackEstimate] = 2
	for i := 0; i < 3; i++ {
		results[i].Warnings = domain.WarningSummary{
			TotalWarnings: 1,
			PerCategory:   map[string]int{domain.WarningFallbackEstimate: 1},
		}
	}

	verdict := Evaluate(results, warningPolicy, DefaultConfig())
	if verdict.WarningPolicyPass {
		t.Fatalf("category ceiling breach must fail the warning policy")
	}
	found := false
	for _, caveat := range verdict.Caveats {
		if strings.Contains(caveat, domain.WarningFallbackEstimate) {
			found = true
		}
	}
	if !found {
		t.Fatalf("caveats=%v", verdict.Caveats)
	}
}

func TestEvaluatePassCarriesAdvisoryCaveats(t *testing.T) {
	results := agreeingResults(10)
	results[4].Warnings = domain.WarningSummary{
		TotalWarnings: 2,
		PerCategory:   map[string]int{domain.WarningSparseData: 2},
	}

	verdict := Evaluate(results, testPolicy(), DefaultConfig())
	if verdict.Decision != domain.DecisionPass {
		t.Fatalf("decision=%s, want PASS", verdict.Decision)
	}
	if len(verdict.Caveats) == 0 {
		t.Fatalf("expected advisory caveat for nonzero warnings")
	}
}

func TestEvaluateCaveatsDeduplicated(t *testing.T) {
	results := agreeingResults(4)
	warningPolicy := testPolicy()
	warningPolicy.MaxPerScenario = 1
	for i := range results {
		results[i].Warnings = domain.WarningSummary{
			TotalWarnings: 5,
			PerCategory:   map[string]int{domain.WarningSparseData: 5},
		}
	}

	verdict := Evaluate(results, warningPolicy, DefaultConfig())
	seen := make(map[string]int)
	for _, caveat := range verdict.Caveats {
		seen[caveat]++
		if seen[caveat] > 1 {
			t.Fatalf("duplicate caveat: %q", caveat)
		}
	}
}

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("VERITY_MIN_VALID_RATE", "0.75")
	t.Setenv("VERITY_MIN_TOP_MODEL_MATCH_RATE", "0.95")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.MinValidRate != 0.75 || cfg.MinTopModelMatchRate != 0.95 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.MinAnomalyMatchRate != 0.90 {
		t.Fatalf("anomaly rate = %v, want default", cfg.MinAnomalyMatchRate)
	}
}

func TestConfigFromEnvRejectsOutOfRange(t *testing.T) {
	t.Setenv("VERITY_MIN_VALID_RATE", "1.5")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("expected range error")
	}
}
