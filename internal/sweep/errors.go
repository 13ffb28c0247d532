package sweep

import "fmt"

// ConfigurationError reports an invalid mode/flag combination. It fails the
// run before any scenario is dispatched.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

// DatasetError reports a missing or empty dataset. It is fatal to a normal
// run; preflight converts it to a BLOCKED artifact instead of a crash.
type DatasetError struct {
	DatasetID string
	Err       error
}

func (e *DatasetError) Error() string {
	return fmt.Sprintf("dataset %s: %v", e.DatasetID, e.Err)
}

func (e *DatasetError) Unwrap() error { return e.Err }

// ScenarioExecutionError wraps an error propagated from the evaluation
// collaborator. It is recorded into the checkpoint and release run status
// before being re-raised; execution is never auto-retried.
type ScenarioExecutionError struct {
	ScenarioID string
	Err        error
}

func (e *ScenarioExecutionError) Error() string {
	return fmt.Sprintf("scenario %s: %v", e.ScenarioID, e.Err)
}

func (e *ScenarioExecutionError) Unwrap() error { return e.Err }
