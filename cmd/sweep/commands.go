package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/verity-labs/verity-go/internal/dataset"
	"github.com/verity-labs/verity-go/internal/domain"
	"github.com/verity-labs/verity-go/internal/evidence"
	"github.com/verity-labs/verity-go/internal/executor"
	"github.com/verity-labs/verity-go/internal/platform/env"
	"github.com/verity-labs/verity-go/internal/platform/objectstore"
	"github.com/verity-labs/verity-go/internal/platform/postgres"
	"github.com/verity-labs/verity-go/internal/policy"
	"github.com/verity-labs/verity-go/internal/robustness"
	storageobject "github.com/verity-labs/verity-go/internal/storage/objectstore"
	"github.com/verity-labs/verity-go/internal/sweep"
)

type runFlags struct {
	mode         string
	dataset      string
	outDir       string
	maxScenarios int
	quick        bool
	noResume     bool
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "sweep",
		Short:         "Robustness sweep orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(logger))
	root.AddCommand(newPreflightCmd(logger))
	root.AddCommand(newEvidenceCmd(logger))
	return root
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a robustness sweep and write the run summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := domain.ParseMode(flags.mode)
			if err != nil {
				return &sweep.ConfigurationError{Reason: err.Error()}
			}

			runner, cleanup, err := buildRunner(cmd.Context(), logger, mode == domain.ModeRelease)
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := runner.Run(cmd.Context(), sweep.Options{
				Mode:         mode,
				DatasetID:    flags.dataset,
				OutDir:       flags.outDir,
				MaxScenarios: flags.maxScenarios,
				Quick:        flags.quick,
				NoResume:     flags.noResume,
			})
			if err != nil {
				return err
			}
			logger.Info("run summary written",
				"run_id", summary.RunID,
				"decision", summary.Verdict.Decision,
				"evidence_ready", summary.ReleaseEvidenceReady)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.mode, "mode", string(domain.ModeIterative), "execution mode: release, smoke, or iterative")
	cmd.Flags().StringVar(&flags.dataset, "dataset", env.String("VERITY_DATASET_ID", ""), "dataset id to sweep")
	cmd.Flags().StringVar(&flags.outDir, "out", env.String("VERITY_ARTIFACT_DIR", "artifacts"), "artifact directory")
	cmd.Flags().IntVar(&flags.maxScenarios, "max-scenarios", 0, "cap on scenarios executed (0 = no cap; rejected in release mode)")
	cmd.Flags().BoolVar(&flags.quick, "quick", false, "smoke mode with the reduced scenario matrix")
	cmd.Flags().BoolVar(&flags.noResume, "no-resume", false, "ignore any existing checkpoint")
	return cmd
}

func newPreflightCmd(logger *slog.Logger) *cobra.Command {
	var datasetID, outDir string
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Validate dataset and policy preconditions without executing scenarios",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, cleanup, err := buildRunner(cmd.Context(), logger, false)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := runner.Preflight(cmd.Context(), datasetID, outDir)
			if err != nil {
				return err
			}
			logger.Info("preflight finished", "status", report.Status, "reasons", report.Reasons)
			if report.Status != sweep.PreflightReady {
				return fmt.Errorf("preflight blocked: %v", report.Reasons)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&datasetID, "dataset", env.String("VERITY_DATASET_ID", ""), "dataset id to validate")
	cmd.Flags().StringVar(&outDir, "out", env.String("VERITY_ARTIFACT_DIR", "artifacts"), "artifact directory")
	return cmd
}

func newEvidenceCmd(logger *slog.Logger) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "evidence",
		Short: "Fetch the exported evidence bundle for a release run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if runID == "" {
				return &sweep.ConfigurationError{Reason: "--run-id is required"}
			}
			exporter, err := buildExporter(cmd.Context())
			if err != nil {
				return err
			}
			bundle, err := exporter.Fetch(cmd.Context(), runID)
			if err != nil {
				return err
			}
			logger.Info("evidence bundle fetched",
				"run_id", bundle.RunID,
				"decision", bundle.Summary.Verdict.Decision,
				"evidence_ready", bundle.Summary.ReleaseEvidenceReady)
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(bundle)
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id whose evidence bundle to fetch")
	return cmd
}

// buildRunner wires the production collaborators: Postgres dataset
// registry, HTTP evaluator, YAML policy, and, for release runs, the MinIO
// evidence exporter.
func buildRunner(ctx context.Context, logger *slog.Logger, withExporter bool) (*sweep.Runner, func(), error) {
	cleanup := func() {}

	pol, err := policy.Load(env.String("VERITY_POLICY_FILE", ""))
	if err != nil {
		return nil, cleanup, &sweep.ConfigurationError{Reason: err.Error()}
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, cleanup, &sweep.ConfigurationError{Reason: err.Error()}
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		return nil, cleanup, fmt.Errorf("database unavailable: %w", err)
	}
	cleanup = func() { _ = db.Close() }
	profiles, err := dataset.NewPostgresSource(db)
	if err != nil {
		return nil, cleanup, err
	}

	evalCfg, err := executor.EvaluatorConfigFromEnv()
	if err != nil {
		return nil, cleanup, &sweep.ConfigurationError{Reason: err.Error()}
	}
	evaluator, err := executor.NewHTTPEvaluator(ctx, evalCfg)
	if err != nil {
		return nil, cleanup, fmt.Errorf("evaluator unavailable: %w", err)
	}

	var exporter *evidence.Exporter
	if withExporter {
		exporter, err = buildExporter(ctx)
		if err != nil {
			return nil, cleanup, err
		}
	}

	heartbeat, err := env.Duration("VERITY_HEARTBEAT_PERIOD", 30*time.Second)
	if err != nil {
		return nil, cleanup, &sweep.ConfigurationError{Reason: err.Error()}
	}
	join, err := env.Duration("VERITY_HEARTBEAT_JOIN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, cleanup, &sweep.ConfigurationError{Reason: err.Error()}
	}
	verdictCfg, err := robustness.ConfigFromEnv()
	if err != nil {
		return nil, cleanup, &sweep.ConfigurationError{Reason: err.Error()}
	}

	runner, err := sweep.NewRunner(sweep.Config{
		Logger:          logger,
		Datasets:        profiles,
		Evaluator:       evaluator,
		Policy:          pol,
		Exporter:        exporter,
		HeartbeatPeriod: heartbeat,
		JoinTimeout:     join,
		Robustness:      verdictCfg,
	})
	if err != nil {
		return nil, cleanup, err
	}
	return runner, cleanup, nil
}

func buildExporter(ctx context.Context) (*evidence.Exporter, error) {
	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return nil, &sweep.ConfigurationError{Reason: err.Error()}
	}
	client, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("object store client init failed: %w", err)
	}

	ensureCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := objectstore.EnsureBucket(ensureCtx, client, storeCfg); err != nil {
		return nil, fmt.Errorf("object store unavailable: %w", err)
	}

	store, err := storageobject.NewMinioStoreWithClient(client)
	if err != nil {
		return nil, err
	}
	exporter, err := evidence.NewExporter(store, storeCfg.BucketEvidence)
	if err != nil {
		return nil, err
	}
	return exporter, nil
}
