package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/taskbridgehq/taskbridge/internal/remote"
	"github.com/taskbridgehq/taskbridge/models"
	"github.com/taskbridgehq/taskbridge/types"
)

// RemoteStore adapts the remote board to the Backend contract. It holds no
// task state of its own; every call is one or two remote operations.
type RemoteStore struct {
	client *remote.Client
	tf     *remote.Transformer
	logger *slog.Logger
}

// NewRemoteStore wires a client and transformer into a backend.
func NewRemoteStore(client *remote.Client, tf *remote.Transformer, logger *slog.Logger) *RemoteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteStore{client: client, tf: tf, logger: logger}
}

func (s *RemoteStore) Name() string { return "remote" }

// Ping fetches the board schema; it proves auth, reachability and board
// identity without mutating anything.
func (s *RemoteStore) Ping(ctx context.Context) error {
	_, err := s.client.Request(ctx, remote.OpGetSchema, nil)
	return err
}

// Load lists all board records and converts them back into tasks, sorted by
// task ID for a stable collection order.
func (s *RemoteStore) Load(ctx context.Context) ([]models.Task, error) {
	env, err := s.client.Request(ctx, remote.OpListRecords, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Records []remote.Record `json:"records"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, types.WrapError(types.KindTransientNetwork, err, "malformed list-records response")
	}

	tasks := make([]models.Task, 0, len(payload.Records))
	for _, rec := range payload.Records {
		task, err := s.tf.FromRecord(rec)
		if err != nil {
			// One malformed record must not hide the rest of the board.
			s.logger.Warn("skipping malformed remote record", "recordId", rec.ID, "error", err)
			continue
		}
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// Save upserts every record in stable input order.
func (s *RemoteStore) Save(ctx context.Context, tasks []models.Task) error {
	for _, task := range tasks {
		if _, err := s.Upsert(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// Upsert creates or updates the record for a top-level task. Updates are
// followed by a group move so the record's group keeps tracking the task
// status.
func (s *RemoteStore) Upsert(ctx context.Context, task models.Task) (models.Task, error) {
	rec := s.tf.ToRecord(task)

	if rec.ID == "" {
		env, err := s.client.Request(ctx, remote.OpCreateRecord, map[string]any{"record": rec})
		if err != nil {
			return models.Task{}, err
		}
		var created struct {
			RecordID string `json:"recordId"`
		}
		if err := json.Unmarshal(env.Data, &created); err != nil || created.RecordID == "" {
			return models.Task{}, types.NewError(types.KindTransientNetwork, "create-record response carried no record id")
		}
		task.Sync.RemoteItemID = created.RecordID
		return task, nil
	}

	if _, err := s.client.Request(ctx, remote.OpUpdateRecord, map[string]any{
		"recordId": rec.ID,
		"record":   rec,
	}); err != nil {
		return models.Task{}, err
	}
	if _, err := s.client.Request(ctx, remote.OpMoveRecordToGroup, map[string]any{
		"recordId": rec.ID,
		"groupId":  rec.GroupID,
	}); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// Delete removes the record for a top-level task. A task that never synced
// has nothing to delete remotely.
func (s *RemoteStore) Delete(ctx context.Context, task models.Task) error {
	if task.Sync.RemoteItemID == "" {
		return nil
	}
	_, err := s.client.Request(ctx, remote.OpDeleteRecord, map[string]any{
		"recordId": task.Sync.RemoteItemID,
	})
	if types.IsKind(err, types.KindNotFound) {
		// Already gone remotely; deletion is idempotent.
		return nil
	}
	return err
}
