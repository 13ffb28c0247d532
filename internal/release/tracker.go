// Package release carries the coarse release-run signal and the
// release-readiness gate consumed by downstream automation.
package release

import (
	"errors"
	"log/slog"
	"time"

	"github.com/verity-labs/verity-go/internal/domain"
	"github.com/verity-labs/verity-go/internal/platform/atomicfile"
)

// FileName is the release-run-status document inside the artifact dir.
// Iterative and smoke runs never write it; a missing file is itself a
// signal and must be treated differently from a stale one.
const FileName = "release_run_status.json"

// Tracker writes complete ReleaseRunStatus snapshots in strict release mode
// and is inert otherwise.
type Tracker struct {
	writer        *atomicfile.Writer
	logger        *slog.Logger
	runID         string
	runStart      time.Time
	scenarioTotal int
	enabled       bool
	now           func() time.Time
}

func NewTracker(writer *atomicfile.Writer, logger *slog.Logger, runID string, runStart time.Time, scenarioTotal int, enabled bool) (*Tracker, error) {
	if enabled && writer == nil {
		return nil, errors.New("artifact writer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		writer:        writer,
		logger:        logger,
		runID:         runID,
		runStart:      runStart,
		scenarioTotal: scenarioTotal,
		enabled:       enabled,
		now:           time.Now,
	}, nil
}

// Started records the STARTED state before any scenario dispatch.
func (t *Tracker) Started(reasons ...string) {
	t.write(domain.RunStatusStarted, "run_started", "", 0, reasons)
}

// Running records RUNNING; it is re-entered at every dispatch, resume, and
// completion event within a scenario.
func (t *Tracker) Running(stage, lastScenarioID string, completed int, reasons ...string) {
	t.write(domain.RunStatusRunning, stage, lastScenarioID, completed, reasons)
}

// Completed records the terminal COMPLETED state.
func (t *Tracker) Completed(completed int, reasons ...string) {
	t.write(domain.RunStatusCompleted, "sweep_completed", "", completed, reasons)
}

// Failed records the terminal FAILED state. The orchestrator calls this
// before re-raising a scenario execution error.
func (t *Tracker) Failed(lastScenarioID string, completed int, reasons ...string) {
	t.write(domain.RunStatusFailed, "sweep_failed", lastScenarioID, completed, reasons)
}

func (t *Tracker) write(status, stage, lastScenarioID string, completed int, reasons []string) {
	if t == nil || !t.enabled {
		return
	}
	now := t.now().UTC()
	elapsed := now.Sub(t.runStart).Seconds()

	snapshot := domain.ReleaseRunStatus{
		Schema:             domain.ReleaseRunStatusSchemaV1,
		RunID:              t.runID,
		RunStartedAt:       t.runStart.UTC(),
		Status:             status,
		Stage:              stage,
		ScenarioTotal:      t.scenarioTotal,
		CompletedScenarios: completed,
		LastScenarioID:     lastScenarioID,
		ElapsedSec:         elapsed,
		UpdatedAt:          now,
	}
	snapshot.MergeReasons(reasons...)
	if completed > 0 && t.scenarioTotal > completed {
		eta := elapsed / float64(completed) * float64(t.scenarioTotal-completed)
		snapshot.EtaSec = &eta
	}

	if _, err := t.writer.WriteJSON(FileName, snapshot); err != nil {
		t.logger.Error("release run status write failed", "status", status, "error", err)
	}
}
