// Package store defines the storage backend contract and its two
// implementations: the local JSON file store and the remote board adapter.
package store

import (
	"context"

	"github.com/taskbridgehq/taskbridge/models"
)

// Backend is the capability set every persistence backend implements.
// Record-level writes always address a top-level task: subtask mutations
// roll up to an upsert of their parent.
type Backend interface {
	// Name identifies the backend in logs and status output.
	Name() string

	// Ping verifies the backend is reachable without mutating state.
	Ping(ctx context.Context) error

	// Load reads the full task collection.
	Load(ctx context.Context) ([]models.Task, error)

	// Save replaces the full task collection, preserving input order.
	Save(ctx context.Context, tasks []models.Task) error

	// Upsert writes a single top-level task record, returning the stored
	// form (the remote backend fills in the vendor record ID).
	Upsert(ctx context.Context, task models.Task) (models.Task, error)

	// Delete removes a single top-level task record. The full task is
	// passed so the remote backend can address the vendor record.
	Delete(ctx context.Context, task models.Task) error
}

// Compile-time interface checks.
var (
	_ Backend = (*FileStore)(nil)
	_ Backend = (*RemoteStore)(nil)
)
