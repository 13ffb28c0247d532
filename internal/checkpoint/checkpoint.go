// Package checkpoint persists per-scenario completion state so an
// interrupted sweep resumes instead of re-running finished work.
package checkpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/verity-labs/verity-go/internal/domain"
	"github.com/verity-labs/verity-go/internal/platform/atomicfile"
)

// FileName is the canonical checkpoint document inside the artifact dir.
const FileName = "checkpoint.json"

// LoadOutcome distinguishes why a stored checkpoint was or was not reused.
type LoadOutcome string

const (
	LoadNoCheckpoint      LoadOutcome = "no_checkpoint"
	LoadSignatureMismatch LoadOutcome = "signature_mismatch"
	LoadCorrupt           LoadOutcome = "corrupt"
	LoadResumable         LoadOutcome = "resumable"
)

// Store owns the checkpoint document for one sweep run. It is not safe for
// concurrent use; the orchestrator is the only writer.
type Store struct {
	writer *atomicfile.Writer
	logger *slog.Logger
	now    func() time.Time
	state  domain.CheckpointState
	begun  bool
}

func NewStore(writer *atomicfile.Writer, logger *slog.Logger) (*Store, error) {
	if writer == nil {
		return nil, errors.New("artifact writer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{writer: writer, logger: logger, now: time.Now}, nil
}

// Load returns the stored checkpoint state only when its signature equals
// the requested one field-for-field. Every other condition (no file, corrupt
// file, signature drift) reads as a cold start with a distinct outcome.
func (s *Store) Load(signature domain.CheckpointSignature) (*domain.CheckpointState, LoadOutcome, error) {
	if s == nil || s.writer == nil {
		return nil, LoadNoCheckpoint, errors.New("store not initialized")
	}
	path := filepath.Join(s.writer.Dir(), FileName)

	var stored domain.CheckpointState
	if err := atomicfile.ReadJSON(path, &stored); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("no checkpoint present, cold start")
			return nil, LoadNoCheckpoint, nil
		}
		if errors.Is(err, atomicfile.ErrDecode) {
			s.logger.Warn("checkpoint unreadable, discarding", "error", err)
			return nil, LoadCorrupt, nil
		}
		return nil, LoadNoCheckpoint, fmt.Errorf("read checkpoint: %w", err)
	}

	if stored.Schema != domain.CheckpointSchemaV1 {
		s.logger.Warn("checkpoint schema drift, discarding", "schema", stored.Schema)
		return nil, LoadCorrupt, nil
	}
	if !stored.Signature.Equal(signature) {
		s.logger.Warn("checkpoint signature mismatch, discarding prior progress",
			"stored_dataset", stored.Signature.DatasetID,
			"stored_mode", stored.Signature.Mode,
			"stored_policy", stored.Signature.PolicyVersion)
		return nil, LoadSignatureMismatch, nil
	}

	s.logger.Info("checkpoint resumable",
		"completed", stored.CompletedCount,
		"total", stored.ScenarioTotal,
		"status", stored.Status)
	return &stored, LoadResumable, nil
}

// Begin installs the working state for this run: either a freshly
// initialized IN_PROGRESS state or a validated resumed one.
func (s *Store) Begin(signature domain.CheckpointSignature, scenarioTotal int, resumed *domain.CheckpointState) error {
	if s == nil {
		return errors.New("store not initialized")
	}
	if err := signature.Validate(); err != nil {
		return err
	}
	if resumed != nil {
		s.state = *resumed
		// A FAILED note from a prior invocation does not block resumption.
		s.state.Status = domain.CheckpointInProgress
		s.state.FailureNote = ""
	} else {
		s.state = domain.CheckpointState{
			Schema:        domain.CheckpointSchemaV1,
			Signature:     signature,
			Status:        domain.CheckpointInProgress,
			ScenarioTotal: scenarioTotal,
		}
	}
	s.begun = true
	return s.persist()
}

// Record stores one completed scenario, replacing any prior row with the
// same id, then rewrites the full state atomically. Re-recording an
// identical row is a no-op for readers.
func (s *Store) Record(scenarioID string, index int, result domain.ScenarioResult) error {
	if s == nil || !s.begun {
		return errors.New("checkpoint not begun")
	}
	replaced := false
	for i, row := range s.state.CompletedScenarios {
		if row.ID == scenarioID {
			s.state.CompletedScenarios[i] = domain.CompletedScenario{ID: scenarioID, Index: index, Result: result}
			replaced = true
			break
		}
	}
	if !replaced {
		s.state.CompletedScenarios = append(s.state.CompletedScenarios, domain.CompletedScenario{
			ID:     scenarioID,
			Index:  index,
			Result: result,
		})
	}
	sort.Slice(s.state.CompletedScenarios, func(i, j int) bool {
		return s.state.CompletedScenarios[i].Index < s.state.CompletedScenarios[j].Index
	})

	ids := make([]string, 0, len(s.state.CompletedScenarios))
	for _, row := range s.state.CompletedScenarios {
		ids = append(ids, row.ID)
	}
	s.state.CompletedScenarioIDs = ids
	s.state.CompletedCount = len(ids)
	if s.state.CompletedCount >= s.state.ScenarioTotal {
		s.state.Status = domain.CheckpointCompleted
	} else {
		s.state.Status = domain.CheckpointInProgress
	}
	return s.persist()
}

// Complete finalizes the checkpoint once every scenario is accounted for.
// A resumed run that reuses every stored row never calls Record, so the
// terminal transition must be explicit or the state is stuck IN_PROGRESS.
func (s *Store) Complete() error {
	if s == nil || !s.begun {
		return errors.New("checkpoint not begun")
	}
	if s.state.CompletedCount < s.state.ScenarioTotal {
		return fmt.Errorf("checkpoint incomplete: %d of %d scenarios", s.state.CompletedCount, s.state.ScenarioTotal)
	}
	if s.state.Status == domain.CheckpointCompleted {
		return nil
	}
	s.state.Status = domain.CheckpointCompleted
	return s.persist()
}

// MarkFailed stores a terminal-looking failure note. A later invocation with
// the same signature still resumes from the last completed scenario.
func (s *Store) MarkFailed(runErr error) error {
	if s == nil || !s.begun {
		return errors.New("checkpoint not begun")
	}
	s.state.Status = domain.CheckpointFailed
	if runErr != nil {
		s.state.FailureNote = runErr.Error()
	}
	return s.persist()
}

// State returns a copy of the current working state.
func (s *Store) State() domain.CheckpointState {
	if s == nil {
		return domain.CheckpointState{}
	}
	return s.state
}

func (s *Store) persist() error {
	s.state.UpdatedAt = s.now().UTC()
	if _, err := s.writer.WriteJSON(FileName, s.state); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}
	return nil
}
