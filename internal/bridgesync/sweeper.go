// Package bridgesync pushes locally mutated records to the remote backend
// after the fact: a sweeper that reconciles unsynced records on demand, and
// a file watcher that triggers it when the task document changes.
package bridgesync

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskbridgehq/taskbridge/models"
	"github.com/taskbridgehq/taskbridge/store"
)

// Result summarizes one reconcile pass.
type Result struct {
	Examined int `json:"examined"`
	Pushed   int `json:"pushed"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Sweeper pushes records whose sync status is pending or error to the
// remote backend and records the outcome in the local document.
type Sweeper struct {
	local  store.Backend
	remote store.Backend
	logger *slog.Logger
}

// NewSweeper wires a sweeper over the two backends.
func NewSweeper(local, remote store.Backend, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{local: local, remote: remote, logger: logger}
}

// Reconcile loads the local collection, pushes every unsynced record in
// document order and writes the per-record outcomes back. One failing record
// does not stop the pass; the first error is only reported through the
// result counts and per-record sync metadata.
func (s *Sweeper) Reconcile(ctx context.Context) (Result, error) {
	tasks, err := s.local.Load(ctx)
	if err != nil {
		return Result{}, err
	}

	var res Result
	res.Examined = len(tasks)
	changed := false

	for i := range tasks {
		switch tasks[i].Sync.SyncStatus {
		case models.SyncPending, models.SyncError:
		default:
			res.Skipped++
			continue
		}

		updated, err := s.remote.Upsert(ctx, tasks[i])
		if err != nil {
			s.logger.Warn("sync push failed", "task", tasks[i].ID, "error", err)
			tasks[i].Sync.MarkError(err)
			res.Failed++
			changed = true
			if ctx.Err() != nil {
				break
			}
			continue
		}
		tasks[i] = updated
		tasks[i].Sync.MarkSynced("", time.Now().UTC())
		res.Pushed++
		changed = true
	}

	if changed {
		if err := s.local.Save(ctx, tasks); err != nil {
			return res, err
		}
	}
	return res, nil
}
