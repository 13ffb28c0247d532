package release

import "github.com/verity-labs/verity-go/internal/domain"

// Failure tokens collected by the readiness gate, in evaluation order.
const (
	FailureModeNotRelease      = "execution_mode_not_release"
	FailureMaxScenariosPresent = "max_scenarios_override_present"
	FailureIncompleteExecution = "incomplete_scenario_execution"
	FailureQualityGate         = "quality_gate_failed"
	FailureNotConclusive       = "robustness_not_conclusive"
	FailureDatasetPolicy       = "dataset_policy_failed"
	FailureWarningPolicy       = "warning_policy_failed"
)

// GateInput is the already-computed state the gate decides over. The gate
// is pure and re-runnable for audit without re-executing any scenario.
type GateInput struct {
	Mode                  domain.Mode
	MaxScenariosOverride  int
	ScenarioCountExpected int
	ScenarioCountExecuted int
	MinValidRate          float64
	DatasetPolicyPass     bool
	Verdict               domain.RobustnessVerdict
}

// EvaluateGate collects release-readiness failure tokens. Release evidence
// is ready exactly when the returned slice is empty.
func EvaluateGate(in GateInput) []string {
	var failures []string

	if in.Mode != domain.ModeRelease {
		failures = append(failures, FailureModeNotRelease)
	}
	if in.MaxScenariosOverride > 0 {
		failures = append(failures, FailureMaxScenariosPresent)
	}
	if in.ScenarioCountExecuted != in.ScenarioCountExpected {
		failures = append(failures, FailureIncompleteExecution)
	}
	if in.Verdict.ValidRate < in.MinValidRate {
		failures = append(failures, FailureQualityGate)
	}
	if in.Verdict.Decision != domain.DecisionPass {
		failures = append(failures, FailureNotConclusive)
	}
	if !in.DatasetPolicyPass {
		failures = append(failures, FailureDatasetPolicy)
	}
	if !in.Verdict.WarningPolicyPass {
		failures = append(failures, FailureWarningPolicy)
	}

	return failures
}
