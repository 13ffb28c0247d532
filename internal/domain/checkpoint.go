package domain

import (
	"errors"
	"strings"
	"time"
)

const CheckpointSchemaV1 = "verity.checkpoint.v1"

// Checkpoint statuses.
const (
	CheckpointInProgress = "IN_PROGRESS"
	CheckpointCompleted  = "COMPLETED"
	CheckpointFailed     = "FAILED"
)

// CheckpointSignature is the compound key gating checkpoint reuse. Any field
// change invalidates every stored row.
type CheckpointSignature struct {
	DatasetID     string   `json:"dataset_id"`
	Mode          Mode     `json:"mode"`
	ScenarioIDs   []string `json:"scenario_ids"`
	PolicyVersion string   `json:"policy_version"`
}

func (s CheckpointSignature) Validate() error {
	if strings.TrimSpace(s.DatasetID) == "" {
		return errors.New("dataset id is required")
	}
	if strings.TrimSpace(string(s.Mode)) == "" {
		return errors.New("mode is required")
	}
	if len(s.ScenarioIDs) == 0 {
		return errors.New("scenario ids are required")
	}
	return nil
}

// Equal reports field-for-field equality, including scenario-id order.
func (s CheckpointSignature) Equal(other CheckpointSignature) bool {
	if s.DatasetID != other.DatasetID || s.Mode != other.Mode || s.PolicyVersion != other.PolicyVersion {
		return false
	}
	if len(s.ScenarioIDs) != len(other.ScenarioIDs) {
		return false
	}
	for i := range s.ScenarioIDs {
		if s.ScenarioIDs[i] != other.ScenarioIDs[i] {
			return false
		}
	}
	return true
}

// CompletedScenario is one finished row inside a checkpoint.
type CompletedScenario struct {
	ID     string         `json:"id"`
	Index  int            `json:"index"`
	Result ScenarioResult `json:"result"`
}

// CheckpointState is the full resumable state of a sweep. It is rewritten
// atomically after every scenario.
type CheckpointState struct {
	Schema               string              `json:"schema"`
	Signature            CheckpointSignature `json:"signature"`
	Status               string              `json:"status"`
	ScenarioTotal        int                 `json:"scenario_total"`
	CompletedCount       int                 `json:"completed_count"`
	CompletedScenarioIDs []string            `json:"completed_scenario_ids"`
	CompletedScenarios   []CompletedScenario `json:"completed_scenarios"`
	FailureNote          string              `json:"failure_note,omitempty"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// HasCompleted reports whether the scenario id already has a stored row.
func (c CheckpointState) HasCompleted(scenarioID string) bool {
	for _, id := range c.CompletedScenarioIDs {
		if id == scenarioID {
			return true
		}
	}
	return false
}

// ResultFor returns the stored result for a scenario id, if present.
func (c CheckpointState) ResultFor(scenarioID string) (ScenarioResult, bool) {
	for _, row := range c.CompletedScenarios {
		if row.ID == scenarioID {
			return row.Result, true
		}
	}
	return ScenarioResult{}, false
}
