// Package atomicfile persists JSON documents with temp-file + rename
// semantics so a reader only ever observes a fully written version.
package atomicfile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrDecode marks a document that was read but could not be unmarshaled.
var ErrDecode = errors.New("decode artifact")

// WriteResult describes one persisted document.
type WriteResult struct {
	Path      string
	SHA256    string
	SizeBytes int64
}

// SnapshotResult describes a timestamped snapshot plus its latest pointer.
type SnapshotResult struct {
	Snapshot WriteResult
	Latest   WriteResult
}

// Writer persists documents under a single directory. Exactly one writer
// owns a document at a time; no locking is needed.
type Writer struct {
	dir string
	now func() time.Time
}

func NewWriter(dir string) (*Writer, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("artifact directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &Writer{dir: dir, now: time.Now}, nil
}

// Dir returns the artifact directory.
func (w *Writer) Dir() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// WriteJSON atomically replaces dir/name with the marshaled document.
func (w *Writer) WriteJSON(name string, doc any) (WriteResult, error) {
	if w == nil {
		return WriteResult{}, errors.New("writer not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) {
		return WriteResult{}, fmt.Errorf("artifact name invalid: %q", name)
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return WriteResult{}, fmt.Errorf("marshal %s: %w", name, err)
	}
	payload = append(payload, '\n')

	target := filepath.Join(w.dir, name)
	if err := writeAtomic(target, payload); err != nil {
		return WriteResult{}, err
	}
	sum := sha256.Sum256(payload)
	return WriteResult{
		Path:      target,
		SHA256:    hex.EncodeToString(sum[:]),
		SizeBytes: int64(len(payload)),
	}, nil
}

// WriteSnapshot writes a timestamped snapshot next to the canonical latest
// document. The latest pointer is replaced last so it never trails a
// missing snapshot.
func (w *Writer) WriteSnapshot(base string, doc any) (SnapshotResult, error) {
	if w == nil {
		return SnapshotResult{}, errors.New("writer not initialized")
	}
	base = strings.TrimSpace(strings.TrimSuffix(base, ".json"))
	if base == "" || base != filepath.Base(base) {
		return SnapshotResult{}, fmt.Errorf("snapshot base invalid: %q", base)
	}
	stamp := w.now().UTC().Format("20060102T150405.000000000")
	stamp = strings.ReplaceAll(stamp, ".", "")
	snapshot, err := w.WriteJSON(fmt.Sprintf("%s-%s.json", base, stamp), doc)
	if err != nil {
		return SnapshotResult{}, err
	}
	latest, err := w.WriteJSON(base+".json", doc)
	if err != nil {
		return SnapshotResult{}, err
	}
	return SnapshotResult{Snapshot: snapshot, Latest: latest}, nil
}

// ReadJSON loads a document previously written by a Writer.
func ReadJSON(path string, out any) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, filepath.Base(path), err)
	}
	return nil
}

func writeAtomic(target string, payload []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// Best effort: the temp file only survives a failed write.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(target), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(target), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(target), err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", filepath.Base(target), err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(target), err)
	}
	return nil
}
