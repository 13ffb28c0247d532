package progress

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/verity-labs/verity-go/internal/platform/atomicfile"
)

func newTestReporter(t *testing.T, dir string, total int) *Reporter {
	t.Helper()
	writer, err := atomicfile.NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	reporter, err := NewReporter(writer, slog.New(slog.NewTextHandler(io.Discard, nil)), "run-1", time.Now().Add(-time.Minute), total)
	if err != nil {
		t.Fatalf("NewReporter: %v", err)
	}
	return reporter
}

func readSnapshot(t *testing.T, dir string) Snapshot {
	t.Helper()
	var snapshot Snapshot
	if err := atomicfile.ReadJSON(filepath.Join(dir, FileName), &snapshot); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return snapshot
}

func TestReportOmitsEtaBeforeFirstCompletion(t *testing.T) {
	dir := t.TempDir()
	reporter := newTestReporter(t, dir, 10)

	reporter.Report(StageScenarioDispatch, "baseline", 0, 0)

	snapshot := readSnapshot(t, dir)
	if snapshot.Schema != SnapshotSchemaV1 {
		t.Fatalf("schema=%q", snapshot.Schema)
	}
	if snapshot.EtaSec != nil {
		t.Fatalf("eta should be omitted with zero completed, got %v", *snapshot.EtaSec)
	}
	if snapshot.ElapsedSec <= 0 {
		t.Fatalf("elapsed=%v, want > 0", snapshot.ElapsedSec)
	}
}

func TestReportComputesEta(t *testing.T) {
	dir := t.TempDir()
	reporter := newTestReporter(t, dir, 10)
	reporter.SetCompleted(5)

	reporter.Report(StageScenarioCompleted, "threshold_0.60", 5, 0)

	snapshot := readSnapshot(t, dir)
	if snapshot.EtaSec == nil {
		t.Fatalf("eta missing")
	}
	// elapsed/5 * 5 remaining == elapsed.
	diff := *snapshot.EtaSec - snapshot.ElapsedSec
	if diff < -0.5 || diff > 0.5 {
		t.Fatalf("eta=%v elapsed=%v", *snapshot.EtaSec, snapshot.ElapsedSec)
	}
	if snapshot.CompletedScenarios != 5 {
		t.Fatalf("completed=%d", snapshot.CompletedScenarios)
	}
}

func TestReportCarriesHeartbeatCount(t *testing.T) {
	dir := t.TempDir()
	reporter := newTestReporter(t, dir, 3)

	reporter.Report(StageFullBattery, "baseline", 0, 4)

	snapshot := readSnapshot(t, dir)
	if snapshot.Stage != StageFullBattery || snapshot.HeartbeatCount != 4 {
		t.Fatalf("snapshot=%+v", snapshot)
	}
}
