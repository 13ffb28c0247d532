package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/verity-labs/verity-go/internal/dataset"
	"github.com/verity-labs/verity-go/internal/platform/atomicfile"
)

const PreflightSchemaV1 = "verity.preflight.v1"

// PreflightFileName is the standalone preflight artifact inside the
// artifact dir.
const PreflightFileName = "preflight.json"

// Preflight statuses.
const (
	PreflightReady   = "READY"
	PreflightBlocked = "BLOCKED"
)

// Preflight reason tokens. The first three block a run outright; the floor
// tokens only fail the dataset policy inside the release readiness gate.
const (
	PreflightDatasetNotFound = "dataset_not_found"
	PreflightDatasetEmpty    = "dataset_empty"
	PreflightPolicyInvalid   = "policy_invalid"
	PreflightBelowMinPages   = "dataset_below_min_pages"
	PreflightBelowMinTokens  = "dataset_below_min_tokens"
)

// PreflightReport is the standalone preflight artifact: every precondition
// failure is diagnosable from disk, not just from a log stream.
type PreflightReport struct {
	Schema        string    `json:"schema"`
	DatasetID     string    `json:"dataset_id"`
	PolicyVersion string    `json:"policy_version"`
	Status        string    `json:"status"`
	Reasons       []string  `json:"reasons"`
	PageCount     int64     `json:"page_count,omitempty"`
	TokenCount    int64     `json:"token_count,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// DatasetPolicyPass reports whether the dataset cleared the policy floor.
// Blocking reasons are counted separately; a blocked dataset never reaches
// the gate at all.
func (r PreflightReport) DatasetPolicyPass() bool {
	for _, reason := range r.Reasons {
		if reason == PreflightBelowMinPages || reason == PreflightBelowMinTokens {
			return false
		}
	}
	return true
}

// Preflight validates dataset and policy preconditions, writes the
// standalone preflight artifact, and executes no scenario. A dataset
// failure comes back as a *DatasetError alongside the BLOCKED report.
func (r *Runner) Preflight(ctx context.Context, datasetID, outDir string) (PreflightReport, error) {
	if r == nil {
		return PreflightReport{}, errors.New("runner not initialized")
	}
	writer, err := atomicfile.NewWriter(outDir)
	if err != nil {
		return PreflightReport{}, err
	}
	report, _, err := r.preflightCheck(ctx, writer, datasetID)
	return report, err
}

// preflightCheck resolves the dataset profile, applies the policy floor,
// and writes the preflight artifact. The returned error, when non-nil, is
// the fatal condition the caller must surface after the artifact landed.
func (r *Runner) preflightCheck(ctx context.Context, writer *atomicfile.Writer, datasetID string) (PreflightReport, dataset.Profile, error) {
	report := PreflightReport{
		Schema:        PreflightSchemaV1,
		DatasetID:     datasetID,
		PolicyVersion: r.policy.Version,
		CheckedAt:     r.now().UTC(),
	}
	var profile dataset.Profile
	var fatal error

	if err := r.policy.Validate(); err != nil {
		report.Reasons = append(report.Reasons, PreflightPolicyInvalid)
		fatal = &ConfigurationError{Reason: fmt.Sprintf("policy document invalid: %v", err)}
	}

	resolved, err := r.datasets.Profile(ctx, datasetID)
	switch {
	case errors.Is(err, dataset.ErrNotFound):
		report.Reasons = append(report.Reasons, PreflightDatasetNotFound)
		if fatal == nil {
			fatal = &DatasetError{DatasetID: datasetID, Err: err}
		}
	case errors.Is(err, dataset.ErrEmptyDataset):
		report.Reasons = append(report.Reasons, PreflightDatasetEmpty)
		if fatal == nil {
			fatal = &DatasetError{DatasetID: datasetID, Err: err}
		}
	case err != nil:
		if fatal == nil {
			fatal = &DatasetError{DatasetID: datasetID, Err: err}
		}
	default:
		if vErr := resolved.Validate(); vErr != nil {
			report.Reasons = append(report.Reasons, PreflightDatasetEmpty)
			if fatal == nil {
				fatal = &DatasetError{DatasetID: datasetID, Err: vErr}
			}
			break
		}
		profile = resolved
		report.PageCount = resolved.PageCount
		report.TokenCount = resolved.TokenCount
		if resolved.PageCount < r.policy.Dataset.MinPages {
			report.Reasons = append(report.Reasons, PreflightBelowMinPages)
		}
		if resolved.TokenCount < r.policy.Dataset.MinTokens {
			report.Reasons = append(report.Reasons, PreflightBelowMinTokens)
		}
	}

	if len(report.Reasons) == 0 {
		report.Status = PreflightReady
		report.Reasons = []string{}
	} else {
		report.Status = PreflightBlocked
	}

	if _, wErr := writer.WriteJSON(PreflightFileName, report); wErr != nil {
		if fatal == nil {
			fatal = fmt.Errorf("write preflight artifact: %w", wErr)
		} else {
			r.logger.Error("preflight artifact write failed", "error", wErr)
		}
	}

	r.logger.Info("preflight evaluated",
		"dataset", datasetID,
		"status", report.Status,
		"reasons", report.Reasons)
	return report, profile, fatal
}
