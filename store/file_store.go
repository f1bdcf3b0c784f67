package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/taskbridgehq/taskbridge/models"
	"github.com/taskbridgehq/taskbridge/types"
)

const (
	checksumSuffix = ".checksum"
	lockSuffix     = ".lock"
)

// FileStore keeps the whole collection in a single JSON document and uses
// read-modify-write for every mutation. A legacy path is accepted read-only
// when the primary document does not exist yet.
type FileStore struct {
	path       string
	legacyPath string
	flk        *flock.Flock
	logger     *slog.Logger
}

// NewFileStore creates a store for the given document path. legacyPath may
// be empty.
func NewFileStore(path, legacyPath string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:       path,
		legacyPath: legacyPath,
		flk:        flock.New(path + lockSuffix),
		logger:     logger,
	}
}

func (s *FileStore) Name() string { return "local" }

// Ping verifies the document directory exists and is writable.
func (s *FileStore) Ping(_ context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.WrapError(types.KindConfiguration, err, "task directory is not writable")
	}
	return nil
}

// lock creates the document directory if needed and takes the file lock.
// The lock file lives beside the document, so the directory must exist
// before the lock file can be created.
func (s *FileStore) lock() (unlock func(), err error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create task directory: %w", err)
	}
	if err := s.flk.Lock(); err != nil {
		return nil, fmt.Errorf("could not lock task file: %w", err)
	}
	return func() { _ = s.flk.Unlock() }, nil
}

// Load reads the full task collection under the file lock.
func (s *FileStore) Load(_ context.Context) ([]models.Task, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.loadInternal()
}

// Save replaces the full task collection under the file lock.
func (s *FileStore) Save(_ context.Context, tasks []models.Task) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()
	return s.saveInternal(tasks)
}

// Upsert replaces or appends a single top-level task, keeping document
// order stable.
func (s *FileStore) Upsert(_ context.Context, task models.Task) (models.Task, error) {
	unlock, err := s.lock()
	if err != nil {
		return models.Task{}, err
	}
	defer unlock()

	tasks, err := s.loadInternal()
	if err != nil {
		return models.Task{}, err
	}

	replaced := false
	for i := range tasks {
		if tasks[i].ID == task.ID {
			tasks[i] = task
			replaced = true
			break
		}
	}
	if !replaced {
		tasks = append(tasks, task)
	}

	if err := s.saveInternal(tasks); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// Delete removes a single top-level task.
func (s *FileStore) Delete(_ context.Context, task models.Task) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	tasks, err := s.loadInternal()
	if err != nil {
		return err
	}

	kept := tasks[:0]
	found := false
	for _, t := range tasks {
		if t.ID == task.ID {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	if !found {
		return types.NewError(types.KindNotFound, fmt.Sprintf("task %d not found", task.ID))
	}
	return s.saveInternal(kept)
}

// loadInternal reads the document, verifying the checksum sidecar when
// present. If the primary path is missing the legacy path is tried
// read-only before reporting an empty collection.
func (s *FileStore) loadInternal() ([]models.Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read task file %s: %w", s.path, err)
		}
		if s.legacyPath != "" {
			if legacy, legacyErr := os.ReadFile(s.legacyPath); legacyErr == nil {
				s.logger.Debug("primary task file missing, reading legacy path", "path", s.legacyPath)
				return decodeTaskDocument(legacy, s.legacyPath)
			}
		}
		return []models.Task{}, nil
	}

	checksumPath := s.path + checksumSuffix
	if expected, err := os.ReadFile(checksumPath); err == nil {
		want := strings.TrimSpace(string(expected))
		if got := checksum(data); got != want {
			return nil, fmt.Errorf("checksum mismatch for %s: expected %s, got %s - file is corrupt or tampered", s.path, want, got)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading checksum file %s: %w", checksumPath, err)
	}

	if len(data) == 0 {
		return []models.Task{}, nil
	}
	return decodeTaskDocument(data, s.path)
}

// saveInternal writes the document and its checksum via temp files and
// atomic renames.
func (s *FileStore) saveInternal(tasks []models.Task) error {
	doc := models.TaskList{Tasks: tasks}
	if doc.Tasks == nil {
		doc.Tasks = []models.Task{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}

	tmpPath := s.path + ".tmp"
	checksumPath := s.path + checksumSuffix
	tmpChecksumPath := checksumPath + ".tmp"
	defer func() { _ = os.Remove(tmpPath) }()
	defer func() { _ = os.Remove(tmpChecksumPath) }()

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary task file: %w", err)
	}
	if err := os.WriteFile(tmpChecksumPath, []byte(checksum(data)), 0o644); err != nil {
		return fmt.Errorf("failed to write temporary checksum file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace task file %s: %w", s.path, err)
	}
	if err := os.Rename(tmpChecksumPath, checksumPath); err != nil {
		return fmt.Errorf("task file %s updated but checksum update failed: %w", s.path, err)
	}
	return nil
}

func decodeTaskDocument(data []byte, path string) ([]models.Task, error) {
	var doc models.TaskList
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task file %s: %w", path, err)
	}
	if doc.Tasks == nil {
		doc.Tasks = []models.Task{}
	}
	return doc.Tasks, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
