package release

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/verity-labs/verity-go/internal/domain"
	"github.com/verity-labs/verity-go/internal/platform/atomicfile"
)

func passingGateInput() GateInput {
	return GateInput{
		Mode:                  domain.ModeRelease,
		ScenarioCountExpected: 15,
		ScenarioCountExecuted: 15,
		MinValidRate:          0.80,
		DatasetPolicyPass:     true,
		Verdict: domain.RobustnessVerdict{
			Decision:          domain.DecisionPass,
			Robust:            true,
			ValidRate:         1.0,
			WarningPolicyPass: true,
		},
	}
}

func TestGatePassesCleanReleaseRun(t *testing.T) {
	failures := EvaluateGate(passingGateInput())
	if len(failures) != 0 {
		t.Fatalf("failures=%v, want none", failures)
	}
}

func TestGateFailureTokens(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GateInput)
		want   string
	}{
		{"iterative mode", func(in *GateInput) { in.Mode = domain.ModeIterative }, FailureModeNotRelease},
		{"scenario cap", func(in *GateInput) { in.MaxScenariosOverride = 3 }, FailureMaxScenariosPresent},
		{"short execution", func(in *GateInput) { in.ScenarioCountExecuted = 14 }, FailureIncompleteExecution},
		{"low valid rate", func(in *GateInput) { in.Verdict.ValidRate = 0.5 }, FailureQualityGate},
		{"inconclusive", func(in *GateInput) { in.Verdict.Decision = domain.DecisionInconclusive }, FailureNotConclusive},
		{"dataset policy", func(in *GateInput) { in.DatasetPolicyPass = false }, FailureDatasetPolicy},
		{"warning policy", func(in *GateInput) { in.Verdict.WarningPolicyPass = false }, FailureWarningPolicy},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := passingGateInput()
			tc.mutate(&in)
			failures := EvaluateGate(in)
			found := false
			for _, token := range failures {
				if token == tc.want {
					found = true
				}
			}
			if !found {
				t.Fatalf("failures=%v, want %s", failures, tc.want)
			}
		})
	}
}

func TestGateIncompleteExecutionIndependentOfRobustness(t *testing.T) {
	in := passingGateInput()
	in.ScenarioCountExecuted = 10
	failures := EvaluateGate(in)
	if !reflect.DeepEqual(failures, []string{FailureIncompleteExecution}) {
		t.Fatalf("failures=%v", failures)
	}
}

func newTestTracker(t *testing.T, dir string, enabled bool) *Tracker {
	t.Helper()
	writer, err := atomicfile.NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	tracker, err := NewTracker(writer, slog.New(slog.NewTextHandler(io.Discard, nil)), "run-1", time.Now().Add(-30*time.Second), 15, enabled)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tracker
}

func readStatus(t *testing.T, dir string) domain.ReleaseRunStatus {
	t.Helper()
	var status domain.ReleaseRunStatus
	if err := atomicfile.ReadJSON(filepath.Join(dir, FileName), &status); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return status
}

func TestTrackerDisabledWritesNothing(t *testing.T) {
	dir := t.TempDir()
	tracker := newTestTracker(t, dir, false)
	tracker.Started(domain.ReasonRunStarted)
	tracker.Running("scenario_dispatch", "baseline", 0, domain.ReasonScenarioDispatched)
	tracker.Completed(15, domain.ReasonAllScenariosDone)

	if _, err := os.Stat(filepath.Join(dir, FileName)); !os.IsNotExist(err) {
		t.Fatalf("status file must not exist outside release mode")
	}
}

func TestTrackerStateProgression(t *testing.T) {
	dir := t.TempDir()
	tracker := newTestTracker(t, dir, true)

	tracker.Started(domain.ReasonRunStarted)
	if got := readStatus(t, dir); got.Status != domain.RunStatusStarted {
		t.Fatalf("status=%s, want STARTED", got.Status)
	}

	tracker.Running("scenario_dispatch", "baseline", 0,
		domain.ReasonResumedFromCheckpt, domain.ReasonScenarioDispatched)
	got := readStatus(t, dir)
	if got.Status != domain.RunStatusRunning {
		t.Fatalf("status=%s, want RUNNING", got.Status)
	}
	want := []string{domain.ReasonResumedFromCheckpt, domain.ReasonScenarioDispatched}
	if !reflect.DeepEqual(got.ReasonCodes, want) {
		t.Fatalf("reasons=%v, want %v", got.ReasonCodes, want)
	}
	if got.EtaSec != nil {
		t.Fatalf("eta should be omitted with zero completed")
	}

	tracker.Running("scenario_completed", "threshold_0.40", 5, domain.ReasonScenarioCompleted)
	got = readStatus(t, dir)
	if got.CompletedScenarios != 5 || got.EtaSec == nil {
		t.Fatalf("snapshot=%+v", got)
	}

	tracker.Failed("threshold_0.45", 5, domain.ReasonScenarioFailed)
	got = readStatus(t, dir)
	if got.Status != domain.RunStatusFailed || got.LastScenarioID != "threshold_0.45" {
		t.Fatalf("snapshot=%+v", got)
	}
}

func TestTrackerReasonSetDeduplicates(t *testing.T) {
	dir := t.TempDir()
	tracker := newTestTracker(t, dir, true)
	tracker.Running("scenario_dispatch", "baseline", 0,
		domain.ReasonScenarioDispatched, domain.ReasonScenarioDispatched, "")
	got := readStatus(t, dir)
	if !reflect.DeepEqual(got.ReasonCodes, []string{domain.ReasonScenarioDispatched}) {
		t.Fatalf("reasons=%v", got.ReasonCodes)
	}
}
