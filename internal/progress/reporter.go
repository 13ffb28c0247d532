// Package progress keeps an always-current liveness snapshot on disk plus
// the scoped heartbeat worker used during the silent evaluation sub-step.
package progress

import (
	"errors"
	"log/slog"
	"time"

	"github.com/verity-labs/verity-go/internal/platform/atomicfile"
)

const SnapshotSchemaV1 = "verity.progress.v1"

// FileName is the canonical progress document inside the artifact dir.
const FileName = "progress.json"

// Stage labels recorded in progress snapshots.
const (
	StagePreflight         = "preflight"
	StageScenarioDispatch  = "scenario_dispatch"
	StageFullBattery       = "full_battery"
	StageScenarioCompleted = "scenario_completed"
	StageSweepCompleted    = "sweep_completed"
	StageSweepFailed       = "sweep_failed"
)

// Snapshot is one atomic progress document. Timing is recomputed on every
// write; ETA is omitted until at least one scenario has completed.
type Snapshot struct {
	Schema             string    `json:"schema"`
	RunID              string    `json:"run_id"`
	Stage              string    `json:"stage"`
	ScenarioID         string    `json:"scenario_id,omitempty"`
	ScenarioIndex      int       `json:"scenario_index"`
	ScenarioTotal      int       `json:"scenario_total"`
	CompletedScenarios int       `json:"completed_scenarios"`
	HeartbeatCount     int       `json:"heartbeat_count,omitempty"`
	ElapsedSec         float64   `json:"elapsed_sec"`
	EtaSec             *float64  `json:"eta_sec,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Reporter writes progress snapshots for one sweep run. Single writer only.
type Reporter struct {
	writer    *atomicfile.Writer
	logger    *slog.Logger
	runID     string
	runStart  time.Time
	total     int
	completed int
	now       func() time.Time
}

func NewReporter(writer *atomicfile.Writer, logger *slog.Logger, runID string, runStart time.Time, scenarioTotal int) (*Reporter, error) {
	if writer == nil {
		return nil, errors.New("artifact writer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		writer:   writer,
		logger:   logger,
		runID:    runID,
		runStart: runStart,
		total:    scenarioTotal,
		now:      time.Now,
	}, nil
}

// SetCompleted seeds the completed count, used when resuming from a
// checkpoint so the first ETA is not wildly optimistic.
func (r *Reporter) SetCompleted(n int) {
	if r == nil || n < 0 {
		return
	}
	r.completed = n
}

// ScenarioDone bumps the completed count after a scenario finishes.
func (r *Reporter) ScenarioDone() {
	if r == nil {
		return
	}
	r.completed++
}

// Report writes one snapshot. Failures are logged, never fatal: losing a
// progress write must not kill an hours-long run.
func (r *Reporter) Report(stage, scenarioID string, scenarioIndex, heartbeatCount int) {
	if r == nil {
		return
	}
	now := r.now().UTC()
	elapsed := now.Sub(r.runStart).Seconds()

	snapshot := Snapshot{
		Schema:             SnapshotSchemaV1,
		RunID:              r.runID,
		Stage:              stage,
		ScenarioID:         scenarioID,
		ScenarioIndex:      scenarioIndex,
		ScenarioTotal:      r.total,
		CompletedScenarios: r.completed,
		HeartbeatCount:     heartbeatCount,
		ElapsedSec:         elapsed,
		UpdatedAt:          now,
	}
	if r.completed > 0 && r.total > r.completed {
		eta := elapsed / float64(r.completed) * float64(r.total-r.completed)
		snapshot.EtaSec = &eta
	}

	if _, err := r.writer.WriteJSON(FileName, snapshot); err != nil {
		r.logger.Warn("progress snapshot write failed", "stage", stage, "error", err)
	}
}
