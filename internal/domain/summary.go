package domain

import "time"

const RunSummarySchemaV1 = "verity.run_summary.v1"

// Robustness decisions.
const (
	DecisionPass         = "PASS"
	DecisionFail         = "FAIL"
	DecisionInconclusive = "INCONCLUSIVE"
)

// RobustnessVerdict is the aggregated statistical verdict over all scenario
// results of one sweep.
type RobustnessVerdict struct {
	Decision          string   `json:"decision"`
	Robust            bool     `json:"robust"`
	ValidRate         float64  `json:"valid_rate"`
	TopModelMatchRate float64  `json:"top_model_match_rate"`
	AnomalyMatchRate  float64  `json:"anomaly_match_rate"`
	BaselineScenario  string   `json:"baseline_scenario,omitempty"`
	WarningPolicyPass bool     `json:"warning_policy_pass"`
	Caveats           []string `json:"caveats,omitempty"`
}

// RunSummary is the terminal artifact of one sweep run.
type RunSummary struct {
	Schema                   string            `json:"schema"`
	RunID                    string            `json:"run_id"`
	Mode                     Mode              `json:"mode"`
	DatasetID                string            `json:"dataset_id"`
	PolicyVersion            string            `json:"policy_version"`
	StartedAt                time.Time         `json:"started_at"`
	FinishedAt               time.Time         `json:"finished_at"`
	ResumedFromCheckpoint    bool              `json:"resumed_from_checkpoint"`
	MaxScenariosOverride     int               `json:"max_scenarios_override,omitempty"`
	ScenarioCountExpected    int               `json:"scenario_count_expected"`
	ScenarioCountExecuted    int               `json:"scenario_count_executed"`
	DatasetPolicyPass        bool              `json:"dataset_policy_pass"`
	Verdict                  RobustnessVerdict `json:"verdict"`
	Results                  []ScenarioResult  `json:"results"`
	ReleaseReadinessFailures []string          `json:"release_readiness_failures"`
	ReleaseEvidenceReady     bool              `json:"release_evidence_ready"`
}
