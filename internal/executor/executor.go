// Package executor runs one scenario against the evaluation collaborator
// and derives quality flags from the diagnostic warnings it emits.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/verity-labs/verity-go/internal/dataset"
	"github.com/verity-labs/verity-go/internal/domain"
	"github.com/verity-labs/verity-go/internal/policy"
	"github.com/verity-labs/verity-go/internal/progress"
)

// ModelScore is one candidate model's fit against the dataset.
type ModelScore struct {
	Model string  `json:"model"`
	Score float64 `json:"score"`
}

// BatteryOutcome is the result of the cross-model falsification battery,
// the single long sub-step with no internal progress points.
type BatteryOutcome struct {
	SurvivingModels  []string `json:"surviving_models"`
	FalsifiedModels  []string `json:"falsified_models"`
	AnomalyConfirmed bool     `json:"anomaly_confirmed"`
	AnomalyStable    bool     `json:"anomaly_stable"`
}

// Evaluator is the long-running external evaluation collaborator. Returned
// warning slices carry raw diagnostic messages; the executor classifies
// them. Any error propagates uncaught.
type Evaluator interface {
	CandidateModels() []string
	ScoreModel(ctx context.Context, model string, cfg domain.ScenarioConfig, profile dataset.Profile) (ModelScore, []string, error)
	RunBattery(ctx context.Context, cfg domain.ScenarioConfig, profile dataset.Profile) (BatteryOutcome, []string, error)
}

// Thresholds are the warning-policy values the executor derives quality
// flags from.
type Thresholds struct {
	FallbackHeavyCount     int
	MaxFallbackRatio       float64
	MaxWarningsPerScenario int
}

// ThresholdsFromPolicy extracts the per-scenario thresholds from a warning
// policy.
func ThresholdsFromPolicy(p policy.WarningPolicy) Thresholds {
	return Thresholds{
		FallbackHeavyCount:     p.FallbackHeavyCount,
		MaxFallbackRatio:       p.MaxFallbackRatio,
		MaxWarningsPerScenario: p.MaxPerScenario,
	}
}

// Executor runs scenarios strictly one at a time.
type Executor struct {
	evaluator       Evaluator
	logger          *slog.Logger
	heartbeatPeriod time.Duration
	joinTimeout     time.Duration
}

func New(evaluator Evaluator, logger *slog.Logger, heartbeatPeriod, joinTimeout time.Duration) (*Executor, error) {
	if evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if heartbeatPeriod <= 0 {
		heartbeatPeriod = progress.DefaultHeartbeatPeriod
	}
	if joinTimeout <= 0 {
		joinTimeout = progress.DefaultJoinTimeout
	}
	return &Executor{
		evaluator:       evaluator,
		logger:          logger,
		heartbeatPeriod: heartbeatPeriod,
		joinTimeout:     joinTimeout,
	}, nil
}

// Execute runs one scenario. Warnings from the collaborator degrade the
// result instead of aborting it; a collaborator error propagates to the
// caller, which records it before re-raising.
func (e *Executor) Execute(ctx context.Context, spec domain.ScenarioSpec, profile dataset.Profile, thresholds Thresholds, emit progress.Callback) (domain.ScenarioResult, error) {
	if e == nil || e.evaluator == nil {
		return domain.ScenarioResult{}, errors.New("executor not initialized")
	}
	if err := spec.Validate(); err != nil {
		return domain.ScenarioResult{}, err
	}
	if emit == nil {
		emit = func(progress.Event) {}
	}

	emit(progress.Event{Kind: progress.EventScenarioStarted, ScenarioID: spec.ID})

	var rawWarnings []string
	var topModel string
	var topScore float64
	scored := false

	for _, model := range e.evaluator.CandidateModels() {
		emit(progress.Event{Kind: progress.EventModelStarted, ScenarioID: spec.ID, Model: model})
		score, warnings, err := e.evaluator.ScoreModel(ctx, model, spec.Config, profile)
		if err != nil {
			return domain.ScenarioResult{}, fmt.Errorf("score model %s: %w", model, err)
		}
		rawWarnings = append(rawWarnings, warnings...)
		if !scored || score.Score > topScore {
			topModel = score.Model
			topScore = score.Score
			scored = true
		}
		emit(progress.Event{Kind: progress.EventModelCompleted, ScenarioID: spec.ID, Model: model})
	}

	outcome, batteryWarnings, err := e.runBatteryWithHeartbeat(ctx, spec, profile, emit)
	if err != nil {
		return domain.ScenarioResult{}, err
	}
	rawWarnings = append(rawWarnings, batteryWarnings...)

	result := domain.ScenarioResult{
		ID:     spec.ID,
		Family: spec.Family,
		Metrics: domain.ScenarioMetrics{
			TopModel:         topModel,
			TopScore:         topScore,
			SurvivingModels:  outcome.SurvivingModels,
			FalsifiedModels:  outcome.FalsifiedModels,
			AnomalyConfirmed: outcome.AnomalyConfirmed,
			AnomalyStable:    outcome.AnomalyStable,
		},
		Warnings: summarizeWarnings(rawWarnings),
	}
	result.QualityFlags = deriveQualityFlags(result, thresholds)
	result.NormalizeFlags()

	emit(progress.Event{Kind: progress.EventScenarioCompleted, ScenarioID: spec.ID})
	return result, nil
}

// runBatteryWithHeartbeat wraps the silent battery step with the scoped
// heartbeat worker. The worker is stopped and joined on every exit path.
func (e *Executor) runBatteryWithHeartbeat(ctx context.Context, spec domain.ScenarioSpec, profile dataset.Profile, emit progress.Callback) (BatteryOutcome, []string, error) {
	hb := progress.StartHeartbeat(e.heartbeatPeriod, func(count int) {
		emit(progress.Event{
			Kind:           progress.EventFullBatteryHeartbeat,
			ScenarioID:     spec.ID,
			HeartbeatCount: count,
		})
	})
	defer func() {
		if _, joined := hb.Stop(e.joinTimeout); !joined {
			e.logger.Warn("heartbeat worker did not join within timeout", "scenario", spec.ID)
		}
	}()

	return e.evaluator.RunBattery(ctx, spec.Config, profile)
}

func summarizeWarnings(raw []string) domain.WarningSummary {
	perCategory := make(map[string]int)
	for _, message := range raw {
		perCategory[classifyWarning(message)]++
	}
	summary := domain.WarningSummary{
		TotalWarnings: len(raw),
		PerCategory:   perCategory,
	}
	if summary.TotalWarnings > 0 {
		summary.FallbackRatio = float64(perCategory[domain.WarningFallbackEstimate]) / float64(summary.TotalWarnings)
	}
	return summary
}

func classifyWarning(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "insufficient"):
		return domain.WarningInsufficientData
	case strings.Contains(lower, "sparse"):
		return domain.WarningSparseData
	case strings.Contains(lower, "nan"):
		return domain.WarningNaNSanitized
	case strings.Contains(lower, "fallback"):
		return domain.WarningFallbackEstimate
	default:
		return domain.WarningOther
	}
}

// deriveQualityFlags evaluates each rule independently; any subset may
// apply.
func deriveQualityFlags(result domain.ScenarioResult, thresholds Thresholds) []string {
	var flags []string
	fallbackCount := result.Warnings.PerCategory[domain.WarningFallbackEstimate]

	if thresholds.FallbackHeavyCount > 0 && fallbackCount >= thresholds.FallbackHeavyCount {
		flags = append(flags, domain.FlagFallbackHeavy)
	}
	if result.Warnings.TotalWarnings > 0 && result.Warnings.FallbackRatio > thresholds.MaxFallbackRatio {
		flags = append(flags, domain.FlagFallbackRatioExceeded)
	}
	if thresholds.MaxWarningsPerScenario > 0 && result.Warnings.TotalWarnings > thresholds.MaxWarningsPerScenario {
		flags = append(flags, domain.FlagWarningDensityExceeded)
	}
	if len(result.Metrics.SurvivingModels) == 0 {
		flags = append(flags, domain.FlagAllModelsFalsified)
	}
	return flags
}
