// Package sweep orchestrates one robustness sweep run: preflight, matrix
// construction, checkpoint resume, sequential scenario execution, verdict
// aggregation, and the release readiness gate.
package sweep

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verity-labs/verity-go/internal/checkpoint"
	"github.com/verity-labs/verity-go/internal/dataset"
	"github.com/verity-labs/verity-go/internal/domain"
	"github.com/verity-labs/verity-go/internal/evidence"
	"github.com/verity-labs/verity-go/internal/executor"
	"github.com/verity-labs/verity-go/internal/matrix"
	"github.com/verity-labs/verity-go/internal/platform/atomicfile"
	"github.com/verity-labs/verity-go/internal/policy"
	"github.com/verity-labs/verity-go/internal/progress"
	"github.com/verity-labs/verity-go/internal/release"
	"github.com/verity-labs/verity-go/internal/robustness"
)

// SummaryBase is the run-summary artifact base name; the atomic writer
// keeps a timestamped snapshot next to the latest pointer.
const SummaryBase = "run_summary"

// DefaultBaseConfig is the scenario configuration the matrix perturbs when
// the caller supplies none.
func DefaultBaseConfig() domain.ScenarioConfig {
	return domain.ScenarioConfig{
		ScoreThreshold:   0.60,
		SensitivityScale: 1.0,
		Weights: map[string]float64{
			"frequency": 0.5,
			"coverage":  0.3,
			"novelty":   0.2,
		},
	}
}

// Options selects one sweep run.
type Options struct {
	Mode         domain.Mode
	DatasetID    string
	OutDir       string
	BaseConfig   domain.ScenarioConfig
	MaxScenarios int
	Quick        bool
	NoResume     bool
}

// normalized validates flag combinations and applies the quick shortcut.
// Violations fail fast as *ConfigurationError before any scenario runs.
func (o Options) normalized() (Options, error) {
	if strings.TrimSpace(o.DatasetID) == "" {
		return o, &ConfigurationError{Reason: "dataset id is required"}
	}
	if strings.TrimSpace(o.OutDir) == "" {
		return o, &ConfigurationError{Reason: "artifact directory is required"}
	}
	if o.MaxScenarios < 0 {
		return o, &ConfigurationError{Reason: "max scenarios must be >= 0"}
	}
	if o.Mode == "" {
		o.Mode = domain.ModeIterative
	}
	if _, err := domain.ParseMode(string(o.Mode)); err != nil {
		return o, &ConfigurationError{Reason: err.Error()}
	}
	if o.Mode == domain.ModeRelease {
		if o.Quick {
			return o, &ConfigurationError{Reason: "quick cannot be combined with release mode"}
		}
		if o.MaxScenarios > 0 {
			return o, &ConfigurationError{Reason: "release mode does not accept a scenario cap"}
		}
	}
	if o.Quick {
		o.Mode = domain.ModeSmoke
	}
	if o.BaseConfig.SensitivityScale == 0 && len(o.BaseConfig.Weights) == 0 {
		o.BaseConfig = DefaultBaseConfig()
	}
	return o, nil
}

// Config wires a Runner's collaborators.
type Config struct {
	Logger    *slog.Logger
	Datasets  dataset.Source
	Evaluator executor.Evaluator
	Policy    policy.Document
	// Exporter is optional; nil disables release evidence export.
	Exporter        *evidence.Exporter
	HeartbeatPeriod time.Duration
	JoinTimeout     time.Duration
	Robustness      robustness.Config
}

// Runner executes sweep runs. It exclusively owns all mutable run state;
// every persisted document has exactly one writer.
type Runner struct {
	logger          *slog.Logger
	datasets        dataset.Source
	evaluator       executor.Evaluator
	policy          policy.Document
	exporter        *evidence.Exporter
	heartbeatPeriod time.Duration
	joinTimeout     time.Duration
	robustness      robustness.Config
	now             func() time.Time
	newRunID        func() string
}

func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Datasets == nil {
		return nil, errors.New("dataset source is required")
	}
	if cfg.Evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Policy.Version) == "" {
		cfg.Policy = policy.Defaults()
	}
	if cfg.Robustness.MinValidRate == 0 {
		cfg.Robustness = robustness.DefaultConfig()
	}
	return &Runner{
		logger:          cfg.Logger,
		datasets:        cfg.Datasets,
		evaluator:       cfg.Evaluator,
		policy:          cfg.Policy,
		exporter:        cfg.Exporter,
		heartbeatPeriod: cfg.HeartbeatPeriod,
		joinTimeout:     cfg.JoinTimeout,
		robustness:      cfg.Robustness,
		now:             time.Now,
		newRunID:        uuid.NewString,
	}, nil
}

// Run executes one sweep end to end and returns the written run summary.
// Scenario results are either freshly computed or reused verbatim from a
// validated checkpoint row, never merged.
func (r *Runner) Run(ctx context.Context, opts Options) (domain.RunSummary, error) {
	if r == nil {
		return domain.RunSummary{}, errors.New("runner not initialized")
	}
	opts, err := opts.normalized()
	if err != nil {
		return domain.RunSummary{}, err
	}

	writer, err := atomicfile.NewWriter(opts.OutDir)
	if err != nil {
		return domain.RunSummary{}, err
	}

	runID := r.newRunID()
	runStart := r.now().UTC()
	logger := r.logger.With("run_id", runID, "mode", string(opts.Mode), "dataset", opts.DatasetID)
	logger.Info("sweep run starting")

	report, profile, err := r.preflightCheck(ctx, writer, opts.DatasetID)
	if err != nil {
		return domain.RunSummary{}, err
	}
	datasetPolicyPass := report.DatasetPolicyPass()

	var specs []domain.ScenarioSpec
	if opts.Quick {
		specs = matrix.BuildReduced(opts.BaseConfig)
	} else {
		specs = matrix.Build(opts.BaseConfig)
	}
	expected := len(specs)
	if opts.MaxScenarios > 0 && opts.MaxScenarios < len(specs) {
		logger.Warn("scenario cap active", "cap", opts.MaxScenarios, "matrix", expected)
		specs = specs[:opts.MaxScenarios]
	}

	signature := domain.CheckpointSignature{
		DatasetID:     opts.DatasetID,
		Mode:          opts.Mode,
		ScenarioIDs:   matrix.IDs(specs),
		PolicyVersion: r.policy.Version,
	}

	ckpt, err := checkpoint.NewStore(writer, logger)
	if err != nil {
		return domain.RunSummary{}, err
	}
	var resumed *domain.CheckpointState
	if opts.NoResume {
		logger.Info("checkpoint resume disabled, cold start")
	} else {
		state, outcome, loadErr := ckpt.Load(signature)
		if loadErr != nil {
			return domain.RunSummary{}, loadErr
		}
		if outcome == checkpoint.LoadResumable {
			resumed = state
		}
	}
	if err := ckpt.Begin(signature, len(specs), resumed); err != nil {
		return domain.RunSummary{}, err
	}
	resumedRun := resumed != nil

	reporter, err := progress.NewReporter(writer, logger, runID, runStart, len(specs))
	if err != nil {
		return domain.RunSummary{}, err
	}
	tracker, err := release.NewTracker(writer, logger, runID, runStart, len(specs), opts.Mode == domain.ModeRelease)
	if err != nil {
		return domain.RunSummary{}, err
	}

	startReasons := []string{domain.ReasonRunStarted}
	if resumedRun {
		startReasons = append(startReasons, domain.ReasonResumedFromCheckpt)
	}
	tracker.Started(startReasons...)
	reporter.Report(progress.StagePreflight, "", 0, 0)

	exec, err := executor.New(r.evaluator, logger, r.heartbeatPeriod, r.joinTimeout)
	if err != nil {
		return domain.RunSummary{}, err
	}
	thresholds := executor.ThresholdsFromPolicy(r.policy.Warnings)

	prior := ckpt.State()
	completed := 0
	for _, spec := range specs {
		if prior.HasCompleted(spec.ID) {
			completed++
		}
	}
	reporter.SetCompleted(completed)

	results := make([]domain.ScenarioResult, 0, len(specs))
	for idx, spec := range specs {
		if reused, ok := prior.ResultFor(spec.ID); ok {
			results = append(results, reused)
			tracker.Running("scenario_reused", spec.ID, completed, domain.ReasonResumedFromCheckpt)
			logger.Info("scenario reused from checkpoint", "scenario", spec.ID, "index", idx)
			continue
		}

		reporter.Report(progress.StageScenarioDispatch, spec.ID, idx, 0)
		dispatchReasons := []string{domain.ReasonScenarioDispatched}
		if resumedRun {
			dispatchReasons = append(dispatchReasons, domain.ReasonResumedFromCheckpt)
		}
		tracker.Running("scenario_dispatched", spec.ID, completed, dispatchReasons...)

		result, execErr := exec.Execute(ctx, spec, profile, thresholds, r.emitFunc(reporter, logger, idx))
		if execErr != nil {
			wrapped := &ScenarioExecutionError{ScenarioID: spec.ID, Err: execErr}
			if mErr := ckpt.MarkFailed(wrapped); mErr != nil {
				logger.Error("checkpoint failure record failed", "error", mErr)
			}
			tracker.Failed(spec.ID, completed, domain.ReasonScenarioFailed)
			reporter.Report(progress.StageSweepFailed, spec.ID, idx, 0)
			logger.Error("scenario execution failed", "scenario", spec.ID, "error", execErr)
			return domain.RunSummary{}, wrapped
		}

		if err := ckpt.Record(spec.ID, idx, result); err != nil {
			return domain.RunSummary{}, err
		}
		results = append(results, result)
		completed++
		reporter.ScenarioDone()
		reporter.Report(progress.StageScenarioCompleted, spec.ID, idx, 0)
		tracker.Running("scenario_completed", spec.ID, completed, domain.ReasonScenarioCompleted)
	}

	if err := ckpt.Complete(); err != nil {
		return domain.RunSummary{}, err
	}

	verdict := robustness.Evaluate(results, r.policy.Warnings, r.robustness)
	failures := release.EvaluateGate(release.GateInput{
		Mode:                  opts.Mode,
		MaxScenariosOverride:  opts.MaxScenarios,
		ScenarioCountExpected: expected,
		ScenarioCountExecuted: len(results),
		MinValidRate:          r.robustness.MinValidRate,
		DatasetPolicyPass:     datasetPolicyPass,
		Verdict:               verdict,
	})
	if failures == nil {
		failures = []string{}
	}

	summary := domain.RunSummary{
		Schema:                   domain.RunSummarySchemaV1,
		RunID:                    runID,
		Mode:                     opts.Mode,
		DatasetID:                opts.DatasetID,
		PolicyVersion:            r.policy.Version,
		StartedAt:                runStart,
		FinishedAt:               r.now().UTC(),
		ResumedFromCheckpoint:    resumedRun,
		MaxScenariosOverride:     opts.MaxScenarios,
		ScenarioCountExpected:    expected,
		ScenarioCountExecuted:    len(results),
		DatasetPolicyPass:        datasetPolicyPass,
		Verdict:                  verdict,
		Results:                  results,
		ReleaseReadinessFailures: failures,
		ReleaseEvidenceReady:     len(failures) == 0,
	}
	snap, err := writer.WriteSnapshot(SummaryBase, summary)
	if err != nil {
		tracker.Failed("", completed, domain.ReasonAllScenariosDone)
		return domain.RunSummary{}, fmt.Errorf("write run summary: %w", err)
	}

	completionReasons := []string{domain.ReasonAllScenariosDone}
	if resumedRun {
		completionReasons = append(completionReasons, domain.ReasonResumedFromCheckpt)
	}
	reporter.Report(progress.StageSweepCompleted, "", len(specs)-1, 0)
	tracker.Completed(completed, completionReasons...)

	if opts.Mode == domain.ModeRelease && r.exporter != nil {
		key, expErr := r.exporter.Export(ctx, summary, collectDigests(writer.Dir(), snap))
		if expErr != nil {
			logger.Error("evidence export failed", "error", expErr)
			tracker.Completed(completed, append(completionReasons, domain.ReasonEvidenceExportFail)...)
		} else {
			logger.Info("evidence exported", "object_key", key)
			tracker.Completed(completed, append(completionReasons, domain.ReasonEvidenceExported)...)
		}
	}

	logger.Info("sweep run finished",
		"decision", verdict.Decision,
		"valid_rate", verdict.ValidRate,
		"evidence_ready", summary.ReleaseEvidenceReady)
	return summary, nil
}

// emitFunc maps executor progress events onto snapshot writes. During the
// battery step the heartbeat worker is the only progress writer.
func (r *Runner) emitFunc(reporter *progress.Reporter, logger *slog.Logger, idx int) progress.Callback {
	return func(ev progress.Event) {
		switch ev.Kind {
		case progress.EventModelStarted:
			logger.Debug("model scoring started", "scenario", ev.ScenarioID, "model", ev.Model)
		case progress.EventModelCompleted:
			logger.Debug("model scoring completed", "scenario", ev.ScenarioID, "model", ev.Model)
		case progress.EventFullBatteryHeartbeat:
			logger.Info("full battery heartbeat", "scenario", ev.ScenarioID, "beat", ev.HeartbeatCount)
			reporter.Report(progress.StageFullBattery, ev.ScenarioID, idx, ev.HeartbeatCount)
		}
	}
}

// collectDigests hashes the on-disk artifacts that belong in the evidence
// bundle. Missing files are skipped rather than failing the export.
func collectDigests(dir string, snap atomicfile.SnapshotResult) []evidence.ArtifactDigest {
	digests := []evidence.ArtifactDigest{
		evidence.DigestOf(SummaryBase+".json", snap.Latest),
	}
	for _, name := range []string{
		PreflightFileName,
		checkpoint.FileName,
		release.FileName,
	} {
		payload, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		sum := sha256.Sum256(payload)
		digests = append(digests, evidence.ArtifactDigest{
			Name:      name,
			SHA256:    hex.EncodeToString(sum[:]),
			SizeBytes: int64(len(payload)),
		})
	}
	return digests
}
