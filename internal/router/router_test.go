package router

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskbridgehq/taskbridge/internal/config"
	"github.com/taskbridgehq/taskbridge/internal/project"
	"github.com/taskbridgehq/taskbridge/models"
	"github.com/taskbridgehq/taskbridge/types"
)

// fakeBackend is an in-memory Backend with scriptable failures.
type fakeBackend struct {
	mu    sync.Mutex
	name  string
	tasks []models.Task

	failLoad   error
	failUpsert error
	failDelete error
	failSave   error

	saves   int
	upserts int
	deletes int
}

func (f *fakeBackend) Name() string               { return f.name }
func (f *fakeBackend) Ping(context.Context) error { return nil }

func (f *fakeBackend) Load(context.Context) ([]models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLoad != nil {
		return nil, f.failLoad
	}
	return models.CloneTasks(f.tasks), nil
}

func (f *fakeBackend) Save(_ context.Context, tasks []models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.failSave != nil {
		return f.failSave
	}
	f.tasks = models.CloneTasks(tasks)
	return nil
}

func (f *fakeBackend) Upsert(_ context.Context, task models.Task) (models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.failUpsert != nil {
		return models.Task{}, f.failUpsert
	}
	if f.name == "remote" && task.Sync.RemoteItemID == "" {
		task.Sync.RemoteItemID = fmt.Sprintf("rec-%d", task.ID)
	}
	for i := range f.tasks {
		if f.tasks[i].ID == task.ID {
			f.tasks[i] = task.Clone()
			return task, nil
		}
	}
	f.tasks = append(f.tasks, task.Clone())
	return task, nil
}

func (f *fakeBackend) Delete(_ context.Context, task models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.failDelete != nil {
		return f.failDelete
	}
	kept := f.tasks[:0:0]
	for _, t := range f.tasks {
		if t.ID != task.ID {
			kept = append(kept, t)
		}
	}
	f.tasks = kept
	return nil
}

func (f *fakeBackend) snapshot() []models.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.CloneTasks(f.tasks)
}

func testConfig(mode config.Mode) *config.Config {
	cfg := config.Default()
	cfg.PersistenceMode = mode
	if mode != config.ModeLocal {
		cfg.Remote.Enabled = true
		cfg.Remote.BaseURL = "http://remote.test"
		cfg.Remote.BoardID = "board-1"
	}
	return &cfg
}

func newTestRouter(t *testing.T, mode config.Mode, local, remote *fakeBackend) (*Router, *[]Event) {
	t.Helper()
	opts := Options{
		Root:   "/proj",
		Fs:     afero.NewMemMapFs(),
		Config: testConfig(mode),
		Local:  local,
	}
	if remote != nil {
		opts.Remote = remote
	}
	r := New(opts)

	var events []Event
	r.Subscribe(func(ev Event) { events = append(events, ev) })
	return r, &events
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestInitializeMigratesAndIsIdempotent(t *testing.T) {
	local := &fakeBackend{name: "local"}
	fsys := afero.NewMemMapFs()
	r := New(Options{Root: "/proj", Fs: fsys, Config: testConfig(config.ModeLocal), Local: local})

	status, err := r.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.ModeLocal, status.Mode)
	assert.Equal(t, project.StateConfiguredLocal, status.State)

	// The migration wrote a usable config file.
	exists, err := afero.Exists(fsys, config.Path("/proj"))
	require.NoError(t, err)
	assert.True(t, exists)

	again, err := r.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.Mode, again.Mode)
	assert.Equal(t, status.State, again.State)
}

func TestLocalModeLifecycle(t *testing.T) {
	local := &fakeBackend{name: "local"}
	r, events := newTestRouter(t, config.ModeLocal, local, nil)
	ctx := context.Background()

	created, err := r.CreateTask(ctx, models.Task{Title: "first"})
	require.NoError(t, err)
	assert.Equal(t, 1, created.ID, "IDs are assigned from the collection")
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, models.SyncPending, created.Sync.SyncStatus)

	second, err := r.CreateTask(ctx, models.Task{Title: "second"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.ID)

	tasks, err := r.GetTasks(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	done := models.StatusDone
	view, err := r.UpdateTask(ctx, models.NewTaskID(1), models.TaskPatch{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, view.Status)

	found, err := r.DeleteTask(ctx, models.NewTaskID(2))
	require.NoError(t, err)
	assert.True(t, found)

	found, err = r.DeleteTask(ctx, models.NewTaskID(2))
	require.NoError(t, err)
	assert.False(t, found, "deleting a missing task is not an error")

	assert.Equal(t, []EventType{
		EventTaskCreated,
		EventTaskCreated,
		EventTaskUpdated,
		EventTaskStatusChanged,
		EventTaskDeleted,
	}, eventTypes(*events))
	assert.Len(t, local.snapshot(), 1)
}

func TestGetTaskDottedLookup(t *testing.T) {
	parent := models.NewTask(1, "parent")
	parent.Subtasks = []models.Subtask{{ID: 2, Title: "child", Status: models.StatusPending}}
	local := &fakeBackend{name: "local", tasks: []models.Task{parent}}
	r, _ := newTestRouter(t, config.ModeLocal, local, nil)
	ctx := context.Background()

	view, err := r.GetTask(ctx, models.MustParseTaskID("1.2"))
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, "1.2", view.ID.String())
	assert.Equal(t, "child", view.Title)

	view, err = r.GetTask(ctx, models.MustParseTaskID("1.9"))
	require.NoError(t, err)
	assert.Nil(t, view, "a missing subtask is null, not an error")

	view, err = r.GetTask(ctx, models.NewTaskID(9))
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestCreateRejectsBrokenDependencies(t *testing.T) {
	local := &fakeBackend{name: "local"}
	r, events := newTestRouter(t, config.ModeLocal, local, nil)
	ctx := context.Background()

	_, err := r.CreateTask(ctx, models.Task{
		Title:        "depends on nothing that exists",
		Dependencies: []models.DepRef{models.Dep(models.NewTaskID(9))},
	})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindValidation))
	assert.Empty(t, local.snapshot(), "nothing persists when validation fails")
	assert.Empty(t, *events)
}

func TestUpdateRejectsNewCycle(t *testing.T) {
	seed := []models.Task{models.NewTask(1, "a"), models.NewTask(2, "b")}
	seed[1].Dependencies = []models.DepRef{models.Dep(models.NewTaskID(1))}
	local := &fakeBackend{name: "local", tasks: seed}
	r, _ := newTestRouter(t, config.ModeLocal, local, nil)

	deps := []models.DepRef{models.Dep(models.NewTaskID(2))}
	_, err := r.UpdateTask(context.Background(), models.NewTaskID(1), models.TaskPatch{Dependencies: &deps})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindValidation))
	assert.Empty(t, local.snapshot()[0].Dependencies, "the cycle never lands in storage")
}

func TestRemoteModeFallsBackOnWriteFailure(t *testing.T) {
	local := &fakeBackend{name: "local"}
	remote := &fakeBackend{name: "remote", failUpsert: types.NewError(types.KindTransientNetwork, "service down")}
	r, events := newTestRouter(t, config.ModeRemote, local, remote)
	ctx := context.Background()

	created, err := r.CreateTask(ctx, models.Task{Title: "survives the outage"})
	require.NoError(t, err, "callers never see backend identity on success")
	assert.Equal(t, 1, created.ID)

	// The write landed locally with its failure recorded per record.
	stored := local.snapshot()
	require.Len(t, stored, 1)
	assert.Equal(t, models.SyncError, stored[0].Sync.SyncStatus)
	assert.Contains(t, stored[0].Sync.SyncError, "service down")

	assert.True(t, r.GetStatus().FallbackActive)
	assert.Contains(t, eventTypes(*events), EventFallbackActivated)
}

func TestRemoteModeValidationIsNeverAbsorbed(t *testing.T) {
	seed := []models.Task{models.NewTask(1, "a"), models.NewTask(2, "b")}
	seed[1].Dependencies = []models.DepRef{models.Dep(models.NewTaskID(1))}
	local := &fakeBackend{name: "local"}
	remote := &fakeBackend{name: "remote", tasks: seed}
	r, _ := newTestRouter(t, config.ModeRemote, local, remote)

	deps := []models.DepRef{models.Dep(models.NewTaskID(2))}
	_, err := r.UpdateTask(context.Background(), models.NewTaskID(1), models.TaskPatch{Dependencies: &deps})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindValidation))
	assert.Zero(t, local.saves, "validation failures must not be masked by a local fallback write")
}

func TestHybridDualWrite(t *testing.T) {
	local := &fakeBackend{name: "local"}
	remote := &fakeBackend{name: "remote"}
	r, _ := newTestRouter(t, config.ModeHybrid, local, remote)
	ctx := context.Background()

	created, err := r.CreateTask(ctx, models.Task{Title: "everywhere at once"})
	require.NoError(t, err)
	assert.Equal(t, models.SyncSynced, created.Sync.SyncStatus)
	assert.Equal(t, "rec-1", created.Sync.RemoteItemID)
	assert.NotNil(t, created.Sync.LastSyncedAt)

	require.Len(t, remote.snapshot(), 1)
	stored := local.snapshot()
	require.Len(t, stored, 1)
	assert.Equal(t, models.SyncSynced, stored[0].Sync.SyncStatus)
	assert.Equal(t, "rec-1", stored[0].Sync.RemoteItemID)
}

func TestHybridSurvivesRemoteFailure(t *testing.T) {
	local := &fakeBackend{name: "local"}
	remote := &fakeBackend{name: "remote", failUpsert: types.NewError(types.KindTransientNetwork, "flaky")}
	r, _ := newTestRouter(t, config.ModeHybrid, local, remote)

	created, err := r.CreateTask(context.Background(), models.Task{Title: "half a write is a write"})
	require.NoError(t, err, "hybrid succeeds when at least one backend does")
	assert.Equal(t, models.SyncError, created.Sync.SyncStatus)

	stored := local.snapshot()
	require.Len(t, stored, 1)
	assert.Equal(t, models.SyncError, stored[0].Sync.SyncStatus)
	assert.Contains(t, stored[0].Sync.SyncError, "flaky")
}

func TestHybridFailsWhenAllBackendsFail(t *testing.T) {
	local := &fakeBackend{name: "local", failSave: fmt.Errorf("disk full")}
	remote := &fakeBackend{name: "remote", failUpsert: types.NewError(types.KindTransientNetwork, "down")}
	r, _ := newTestRouter(t, config.ModeHybrid, local, remote)

	_, err := r.CreateTask(context.Background(), models.Task{Title: "nowhere to go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all backends")
}

func TestHybridReadPrefersRemote(t *testing.T) {
	local := &fakeBackend{name: "local", tasks: []models.Task{models.NewTask(1, "stale local copy")}}
	remote := &fakeBackend{name: "remote", tasks: []models.Task{models.NewTask(1, "fresh remote copy")}}
	r, _ := newTestRouter(t, config.ModeHybrid, local, remote)

	tasks, err := r.GetTasks(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "fresh remote copy", tasks[0].Title)
}

func TestReadFallsBackWhenRemoteUnreachable(t *testing.T) {
	local := &fakeBackend{name: "local", tasks: []models.Task{models.NewTask(1, "local wins by default")}}
	remote := &fakeBackend{name: "remote", failLoad: types.NewError(types.KindTransientNetwork, "down")}
	r, events := newTestRouter(t, config.ModeRemote, local, remote)

	tasks, err := r.GetTasks(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "local wins by default", tasks[0].Title)
	assert.Contains(t, eventTypes(*events), EventFallbackActivated)
}

func TestDeleteSeversReferences(t *testing.T) {
	seed := []models.Task{models.NewTask(1, "target"), models.NewTask(2, "dependent")}
	seed[1].Dependencies = []models.DepRef{models.Dep(models.NewTaskID(1))}
	local := &fakeBackend{name: "local", tasks: seed}
	r, _ := newTestRouter(t, config.ModeLocal, local, nil)

	found, err := r.DeleteTask(context.Background(), models.NewTaskID(1))
	require.NoError(t, err)
	assert.True(t, found)

	stored := local.snapshot()
	require.Len(t, stored, 1)
	assert.Equal(t, 2, stored[0].ID)
	assert.Empty(t, stored[0].Dependencies, "references to the deleted task are removed")
	assert.Equal(t, models.SyncPending, stored[0].Sync.SyncStatus)
}

func TestSubtaskUpdateAndDelete(t *testing.T) {
	parent := models.NewTask(1, "parent")
	parent.Subtasks = []models.Subtask{
		{ID: 1, Title: "one", Status: models.StatusPending},
		{ID: 2, Title: "two", Status: models.StatusPending},
	}
	local := &fakeBackend{name: "local", tasks: []models.Task{parent}}
	r, events := newTestRouter(t, config.ModeLocal, local, nil)
	ctx := context.Background()

	done := models.StatusDone
	view, err := r.UpdateTask(ctx, models.MustParseTaskID("1.2"), models.TaskPatch{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, "1.2", view.ID.String())
	assert.Equal(t, models.StatusDone, view.Status)

	// The parent record carries the change and is marked for sync.
	stored := local.snapshot()
	assert.Equal(t, models.SyncPending, stored[0].Sync.SyncStatus)
	assert.Equal(t, models.StatusDone, stored[0].Subtasks[1].Status)

	found, err := r.DeleteTask(ctx, models.MustParseTaskID("1.2"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, local.snapshot()[0].Subtasks, 1)
	assert.Contains(t, eventTypes(*events), EventSubtaskDeleted)
}

func TestSaveTasksReplacesCollection(t *testing.T) {
	local := &fakeBackend{name: "local", tasks: []models.Task{models.NewTask(1, "old")}}
	r, events := newTestRouter(t, config.ModeLocal, local, nil)

	replacement := []models.Task{models.NewTask(1, "new"), models.NewTask(2, "also new")}
	require.NoError(t, r.SaveTasks(context.Background(), replacement))

	stored := local.snapshot()
	require.Len(t, stored, 2)
	assert.Equal(t, "new", stored[0].Title)
	assert.Contains(t, eventTypes(*events), EventTasksSaved)

	// A replacement that introduces a cycle is rejected wholesale.
	bad := []models.Task{models.NewTask(1, "a"), models.NewTask(2, "b")}
	bad[0].Dependencies = []models.DepRef{models.Dep(models.NewTaskID(2))}
	bad[1].Dependencies = []models.DepRef{models.Dep(models.NewTaskID(1))}
	err := r.SaveTasks(context.Background(), bad)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindValidation))
}

func TestTestModeProbes(t *testing.T) {
	local := &fakeBackend{name: "local"}
	r, _ := newTestRouter(t, config.ModeLocal, local, nil)
	ctx := context.Background()

	require.NoError(t, r.TestMode(ctx, config.ModeLocal))

	err := r.TestMode(ctx, config.ModeRemote)
	require.Error(t, err, "remote probe needs a configured remote backend")
	assert.True(t, types.IsKind(err, types.KindConfiguration))

	err = r.TestMode(ctx, "sideways")
	assert.True(t, types.IsKind(err, types.KindConfiguration))
}
