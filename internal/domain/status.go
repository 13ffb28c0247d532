package domain

import (
	"sort"
	"strings"
	"time"
)

const ReleaseRunStatusSchemaV1 = "verity.release_run_status.v1"

// Release run statuses. STARTED moves to RUNNING on the first dispatch and
// RUNNING is re-entered on every dispatch, resume, and completion event.
const (
	RunStatusStarted   = "STARTED"
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// Reason codes attached to release run status snapshots.
const (
	ReasonRunStarted         = "run_started"
	ReasonResumedFromCheckpt = "resumed_from_checkpoint"
	ReasonScenarioDispatched = "scenario_dispatched"
	ReasonScenarioCompleted  = "scenario_completed"
	ReasonAllScenariosDone   = "all_scenarios_done"
	ReasonScenarioFailed     = "scenario_failed"
	ReasonEvidenceExported   = "evidence_exported"
	ReasonEvidenceExportFail = "evidence_export_failed"
)

// ReleaseRunStatus is the coarse machine-readable signal written only in
// release mode. Every write is a complete snapshot, never a delta.
type ReleaseRunStatus struct {
	Schema             string    `json:"schema"`
	RunID              string    `json:"run_id"`
	RunStartedAt       time.Time `json:"run_started_at"`
	Status             string    `json:"status"`
	ReasonCodes        []string  `json:"reason_codes"`
	Stage              string    `json:"stage"`
	ScenarioTotal      int       `json:"scenario_total"`
	CompletedScenarios int       `json:"completed_scenarios"`
	LastScenarioID     string    `json:"last_scenario_id,omitempty"`
	ElapsedSec         float64   `json:"elapsed_sec"`
	EtaSec             *float64  `json:"eta_sec,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// MergeReasons adds codes to the snapshot's reason set, keeping it sorted
// and duplicate free.
func (s *ReleaseRunStatus) MergeReasons(codes ...string) {
	if s == nil {
		return
	}
	seen := make(map[string]struct{}, len(s.ReasonCodes)+len(codes))
	out := make([]string, 0, len(s.ReasonCodes)+len(codes))
	for _, set := range [][]string{s.ReasonCodes, codes} {
		for _, code := range set {
			code = strings.TrimSpace(code)
			if code == "" {
				continue
			}
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			out = append(out, code)
		}
	}
	sort.Strings(out)
	s.ReasonCodes = out
}
