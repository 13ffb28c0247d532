// Package evidence assembles the release evidence bundle for a completed
// release run and exports it to object storage.
package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verity-labs/verity-go/internal/domain"
	"github.com/verity-labs/verity-go/internal/platform/atomicfile"
	"github.com/verity-labs/verity-go/internal/storage/objectstore"
)

const BundleSchemaV1 = "verity.evidence_bundle.v1"

// ArtifactDigest records the integrity digest of one on-disk artifact at
// export time.
type ArtifactDigest struct {
	Name      string `json:"name"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
}

// DigestOf converts an atomic write result into a bundle digest entry.
func DigestOf(name string, result atomicfile.WriteResult) ArtifactDigest {
	return ArtifactDigest{
		Name:      name,
		SHA256:    result.SHA256,
		SizeBytes: result.SizeBytes,
	}
}

// Bundle is the exported release evidence document.
type Bundle struct {
	Schema        string            `json:"schema"`
	BundleID      string            `json:"bundle_id"`
	RunID         string            `json:"run_id"`
	DatasetID     string            `json:"dataset_id"`
	PolicyVersion string            `json:"policy_version"`
	CreatedAt     time.Time         `json:"created_at"`
	Artifacts     []ArtifactDigest  `json:"artifacts"`
	Summary       domain.RunSummary `json:"summary"`
}

// Exporter uploads evidence bundles. It is only invoked after a COMPLETED
// release run; export failure never retracts the completed run itself.
type Exporter struct {
	store  objectstore.Store
	bucket string
	now    func() time.Time
}

func NewExporter(store objectstore.Store, bucket string) (*Exporter, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &Exporter{store: store, bucket: bucket, now: time.Now}, nil
}

// Export assembles and uploads the bundle, returning its object key.
func (e *Exporter) Export(ctx context.Context, summary domain.RunSummary, artifacts []ArtifactDigest) (string, error) {
	if e == nil || e.store == nil {
		return "", errors.New("exporter not initialized")
	}
	if strings.TrimSpace(summary.RunID) == "" {
		return "", errors.New("run id is required")
	}

	bundle := Bundle{
		Schema:        BundleSchemaV1,
		BundleID:      uuid.NewString(),
		RunID:         summary.RunID,
		DatasetID:     summary.DatasetID,
		PolicyVersion: summary.PolicyVersion,
		CreatedAt:     e.now().UTC(),
		Artifacts:     artifacts,
		Summary:       summary,
	}
	payload, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal evidence bundle: %w", err)
	}

	objectKey := objectKeyFor(summary.RunID)
	if err := e.store.Put(ctx, e.bucket, objectKey, bytes.NewReader(payload), int64(len(payload)), "application/json"); err != nil {
		return "", fmt.Errorf("upload evidence bundle: %w", err)
	}

	// Read back the object metadata so a truncated upload is caught here,
	// not by the first auditor who downloads the bundle.
	info, err := e.store.Stat(ctx, e.bucket, objectKey)
	if err != nil {
		return "", fmt.Errorf("verify evidence bundle: %w", err)
	}
	if info.Size != int64(len(payload)) {
		return "", fmt.Errorf("verify evidence bundle: stored %d bytes, wrote %d", info.Size, len(payload))
	}
	return objectKey, nil
}

// Fetch retrieves a previously exported bundle for audit.
func (e *Exporter) Fetch(ctx context.Context, runID string) (Bundle, error) {
	if e == nil || e.store == nil {
		return Bundle{}, errors.New("exporter not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return Bundle{}, errors.New("run id is required")
	}

	body, _, err := e.store.Get(ctx, e.bucket, objectKeyFor(runID))
	if err != nil {
		return Bundle{}, fmt.Errorf("fetch evidence bundle: %w", err)
	}
	defer func() { _ = body.Close() }()

	var bundle Bundle
	if err := json.NewDecoder(body).Decode(&bundle); err != nil {
		return Bundle{}, fmt.Errorf("decode evidence bundle: %w", err)
	}
	if bundle.Schema != BundleSchemaV1 {
		return Bundle{}, fmt.Errorf("evidence bundle schema unsupported: %q", bundle.Schema)
	}
	return bundle, nil
}

func objectKeyFor(runID string) string {
	return fmt.Sprintf("runs/%s/evidence.json", runID)
}
