// Package router dispatches task operations across the configured
// persistence backends. It is the only layer callers talk to: mode
// selection, remote fallback, hybrid dual-writes and dependency-graph
// gating all happen here, behind one backend-agnostic surface.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/taskbridgehq/taskbridge/internal/config"
	"github.com/taskbridgehq/taskbridge/internal/project"
	"github.com/taskbridgehq/taskbridge/internal/remote"
	"github.com/taskbridgehq/taskbridge/models"
	"github.com/taskbridgehq/taskbridge/store"
	"github.com/taskbridgehq/taskbridge/types"
)

// Status is the router's externally visible condition.
type Status struct {
	Mode           config.Mode          `json:"mode"`
	State          project.State        `json:"state"`
	FallbackActive bool                 `json:"fallbackActive"`
	RemoteReady    bool                 `json:"remoteReady"`
	AutoSync       bool                 `json:"autoSync"`
	Limiter        *remote.LimiterStats `json:"limiter,omitempty"`
}

// Options configures a router. Only Root is required; everything else has a
// production default and exists as a seam for tests.
type Options struct {
	Root       string
	Fs         afero.Fs       // filesystem for classification and migration
	Config     *config.Config // pre-loaded configuration; nil loads from Root
	Logger     *slog.Logger
	HTTPClient remote.Doer   // transport override for the remote client
	Local      store.Backend // backend overrides
	Remote     store.Backend
}

// Router routes task reads and writes to the backends selected by the
// persistence mode. All dependencies are injected through Options; there are
// no package-level singletons.
type Router struct {
	root       string
	fsys       afero.Fs
	logger     *slog.Logger
	httpClient remote.Doer
	cfgIn      *config.Config
	localIn    store.Backend
	remoteIn   store.Backend

	// opMu serializes read-modify-write mutations; mu guards everything else.
	opMu sync.Mutex
	mu   sync.Mutex

	observers      []Observer
	initialized    bool
	cfg            *config.Config
	state          project.State
	local          store.Backend
	remote         store.Backend
	client         *remote.Client
	fallbackActive bool
	remoteReady    bool
}

// New builds an uninitialized router. Initialize must run before any task
// operation; the CRUD surface calls it lazily.
func New(opts Options) *Router {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{
		root:       opts.Root,
		fsys:       opts.Fs,
		logger:     opts.Logger,
		httpClient: opts.HTTPClient,
		cfgIn:      opts.Config,
		localIn:    opts.Local,
		remoteIn:   opts.Remote,
	}
}

// Initialize classifies the project, migrates it when required, loads
// configuration and wires the backends for the configured mode. It is
// idempotent; repeated calls return the current status.
func (r *Router) Initialize(ctx context.Context) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return r.statusLocked(), nil
	}

	state, err := project.Classify(r.fsys, r.root)
	if err != nil {
		return Status{}, err
	}
	if !state.Configured() {
		res, err := project.Migrate(r.fsys, r.root, project.MigrateOptions{Backup: state == project.StateLegacy})
		if err != nil {
			return Status{}, types.WrapError(types.KindConfiguration, err, "project migration failed")
		}
		r.logger.Info("project migrated", "from", string(state), "changes", len(res.Changes))
		state, err = project.Classify(r.fsys, r.root)
		if err != nil {
			return Status{}, err
		}
	}
	r.state = state

	cfg := r.cfgIn
	if cfg == nil {
		cfg, err = config.Load(r.root)
		if err != nil {
			return Status{}, err
		}
	}
	r.cfg = cfg

	if r.localIn != nil {
		r.local = r.localIn
	} else {
		r.local = store.NewFileStore(config.TasksPath(r.root, cfg), config.LegacyTasksPath(r.root, cfg), r.logger)
	}

	if cfg.PersistenceMode != config.ModeLocal {
		if err := r.wireRemoteLocked(cfg); err != nil {
			return Status{}, err
		}
		if err := r.remote.Ping(ctx); err != nil {
			r.logger.Warn("remote backend unreachable at startup", "error", err)
		} else {
			r.remoteReady = true
		}
	}

	r.initialized = true
	return r.statusLocked(), nil
}

// wireRemoteLocked builds the remote backend for remote and hybrid modes. A
// structurally incomplete remote section is a Configuration error; a merely
// missing credential degrades to runtime fallback instead of blocking
// startup.
func (r *Router) wireRemoteLocked(cfg *config.Config) error {
	if r.remoteIn != nil {
		r.remote = r.remoteIn
		return nil
	}
	if !cfg.Remote.Enabled {
		return types.NewError(types.KindConfiguration,
			fmt.Sprintf("persistence mode %q requires remote.enabled", cfg.PersistenceMode))
	}

	cred, err := config.ResolveCredential(r.root, cfg.Remote.CredentialRef)
	if err != nil {
		r.logger.Warn("remote credential unavailable", "error", err)
		cred = ""
	}

	limiter := remote.NewLimiter(remote.LimiterConfig{
		MaxInFlight:       cfg.Remote.MaxConcurrent,
		MaxCostPerWindow:  cfg.Remote.MaxCostPerWindow,
		Window:            time.Duration(cfg.Remote.CostWindowSeconds) * time.Second,
		MaxRequestsPerDay: cfg.Remote.MaxRequestsPerDay,
	})
	client, err := remote.NewClient(remote.Config{
		BaseURL:       cfg.Remote.BaseURL,
		BoardID:       cfg.Remote.BoardID,
		Credential:    cred,
		RetryAttempts: cfg.Remote.RetryAttempts,
		Timeout:       cfg.Remote.Timeout(),
		BaseDelay:     cfg.Remote.BaseDelay(),
	}, limiter, r.httpClient, r.logger)
	if err != nil {
		return err
	}
	tf, err := remote.NewTransformer(cfg.Remote.ColumnMapping)
	if err != nil {
		return err
	}
	r.client = client
	r.remote = store.NewRemoteStore(client, tf, r.logger)
	return nil
}

// GetStatus reports the current mode, project state and fallback condition.
func (r *Router) GetStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Router) statusLocked() Status {
	st := Status{State: r.state, FallbackActive: r.fallbackActive, RemoteReady: r.remoteReady}
	if r.cfg != nil {
		st.Mode = r.cfg.PersistenceMode
		st.AutoSync = r.cfg.AutoSync
	}
	if r.client != nil {
		stats := r.client.Stats()
		st.Limiter = &stats
	}
	return st
}

// Config returns the loaded configuration after Initialize.
func (r *Router) Config() *config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Backends exposes the wired backends, for the sync sweeper and probes. The
// remote backend is nil in local mode.
func (r *Router) Backends() (local, rem store.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local, r.remote
}

// TestMode probes connectivity for a prospective mode without mutating any
// task data.
func (r *Router) TestMode(ctx context.Context, mode config.Mode) error {
	if err := r.ensureInit(ctx); err != nil {
		return err
	}
	local, rem := r.Backends()

	switch mode {
	case config.ModeLocal:
		return local.Ping(ctx)
	case config.ModeRemote, config.ModeHybrid:
		if rem == nil {
			return types.NewError(types.KindConfiguration,
				fmt.Sprintf("mode %q needs a configured remote backend; current mode is local", mode))
		}
		if mode == config.ModeHybrid {
			if err := local.Ping(ctx); err != nil {
				return err
			}
		}
		return rem.Ping(ctx)
	default:
		return types.NewError(types.KindConfiguration, fmt.Sprintf("unknown persistence mode %q", mode))
	}
}

func (r *Router) ensureInit(ctx context.Context) error {
	_, err := r.Initialize(ctx)
	return err
}

func (r *Router) backends() (config.Mode, store.Backend, store.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.PersistenceMode, r.local, r.remote
}

// noteFallback flags the remote backend as unavailable and emits the
// activation event on the first transition.
func (r *Router) noteFallback(op string, err error) {
	r.mu.Lock()
	first := !r.fallbackActive
	r.fallbackActive = true
	r.remoteReady = false
	r.mu.Unlock()

	r.logger.Warn("remote backend failed, falling back to local", "operation", op, "error", err)
	if first {
		r.emit(EventFallbackActivated, models.TaskID{}, nil)
	}
}

// loadCollection reads the full collection from the mode-preferred backend.
// In remote and hybrid modes the remote copy wins; on remote failure the
// read falls back to the local document.
func (r *Router) loadCollection(ctx context.Context) ([]models.Task, error) {
	mode, local, rem := r.backends()
	if mode == config.ModeLocal || rem == nil {
		return local.Load(ctx)
	}

	tasks, err := rem.Load(ctx)
	if err == nil {
		return tasks, nil
	}
	if types.IsKind(err, types.KindValidation) {
		return nil, err
	}
	r.noteFallback("load", err)
	return local.Load(ctx)
}

// GetTasks returns the collection, optionally filtered.
func (r *Router) GetTasks(ctx context.Context, q Query) ([]models.Task, error) {
	if err := r.ensureInit(ctx); err != nil {
		return nil, err
	}
	tasks, err := r.loadCollection(ctx)
	if err != nil {
		return nil, err
	}
	return filterTasks(tasks, q), nil
}

// GetTask looks up a task or subtask by dotted ID. A missing task is not an
// error; the view is nil.
func (r *Router) GetTask(ctx context.Context, id models.TaskID) (*TaskView, error) {
	if err := r.ensureInit(ctx); err != nil {
		return nil, err
	}
	tasks, err := r.loadCollection(ctx)
	if err != nil {
		return nil, err
	}

	t := findTask(tasks, id.Parent)
	if t == nil {
		return nil, nil
	}
	if !id.IsSub() {
		v := newTaskView(*t)
		return &v, nil
	}
	st := t.Subtask(id.Child)
	if st == nil {
		return nil, nil
	}
	v := newSubtaskView(id, *st)
	return &v, nil
}

// CreateTask adds a top-level task. A zero ID is assigned the next free ID;
// dependencies are gated through graph validation before anything persists.
func (r *Router) CreateTask(ctx context.Context, draft models.Task) (models.Task, error) {
	if err := r.ensureInit(ctx); err != nil {
		return models.Task{}, err
	}
	r.opMu.Lock()
	defer r.opMu.Unlock()

	tasks, err := r.loadCollection(ctx)
	if err != nil {
		return models.Task{}, err
	}
	current := models.CloneTasks(tasks)

	task := draft.Clone()
	if task.ID == 0 {
		task.ID = nextID(tasks)
	} else if findTask(tasks, task.ID) != nil {
		return models.Task{}, types.NewError(types.KindValidation, fmt.Sprintf("task %d already exists", task.ID))
	}
	now := time.Now().UTC()
	if task.Status == "" {
		task.Status = models.StatusPending
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	task.CreatedAt = now
	task.UpdatedAt = now
	task.Sync.MarkPending()
	if err := models.ValidateStruct(task); err != nil {
		return models.Task{}, types.WrapError(types.KindValidation, err, "invalid task")
	}

	tasks = append(tasks, task)
	if err := rejectNewIssues(current, tasks); err != nil {
		return models.Task{}, err
	}

	idx := len(tasks) - 1
	if err := r.persistRecords(ctx, tasks, []int{idx}); err != nil {
		return models.Task{}, err
	}
	stored := tasks[idx]
	r.emit(EventTaskCreated, stored.TaskID(), &stored)
	return stored, nil
}

// UpdateTask applies a partial update to a task or subtask. Dependency
// changes are gated through graph validation; validation failures are never
// absorbed by backend fallback.
func (r *Router) UpdateTask(ctx context.Context, id models.TaskID, patch models.TaskPatch) (*TaskView, error) {
	if err := r.ensureInit(ctx); err != nil {
		return nil, err
	}
	r.opMu.Lock()
	defer r.opMu.Unlock()

	tasks, err := r.loadCollection(ctx)
	if err != nil {
		return nil, err
	}
	current := models.CloneTasks(tasks)

	parent := findTask(tasks, id.Parent)
	if parent == nil {
		return nil, types.NewError(types.KindNotFound, fmt.Sprintf("task %s not found", id))
	}

	var statusChanged bool
	if id.IsSub() {
		st := parent.Subtask(id.Child)
		if st == nil {
			return nil, types.NewError(types.KindNotFound, fmt.Sprintf("subtask %s not found", id))
		}
		statusChanged = patch.ApplySubtask(st)
		st.Sync.MarkPending()
	} else {
		statusChanged = patch.Apply(parent)
	}
	parent.UpdatedAt = time.Now().UTC()
	parent.Sync.MarkPending()

	if err := models.ValidateStruct(*parent); err != nil {
		return nil, types.WrapError(types.KindValidation, err, "invalid update")
	}
	if patch.TouchesDependencies() {
		if err := rejectNewIssues(current, tasks); err != nil {
			return nil, err
		}
	}

	idx := indexOf(tasks, id.Parent)
	if err := r.persistRecords(ctx, tasks, []int{idx}); err != nil {
		return nil, err
	}

	stored := tasks[idx]
	r.emit(EventTaskUpdated, id, &stored)
	if statusChanged {
		r.emit(EventTaskStatusChanged, id, &stored)
	}
	if id.IsSub() {
		v := newSubtaskView(id, *stored.Subtask(id.Child))
		return &v, nil
	}
	v := newTaskView(stored)
	return &v, nil
}

// DeleteTask removes a task or subtask and severs any references to it from
// the rest of the collection. Deleting something that does not exist reports
// false without error.
func (r *Router) DeleteTask(ctx context.Context, id models.TaskID) (bool, error) {
	if err := r.ensureInit(ctx); err != nil {
		return false, err
	}
	r.opMu.Lock()
	defer r.opMu.Unlock()

	tasks, err := r.loadCollection(ctx)
	if err != nil {
		return false, err
	}

	parent := findTask(tasks, id.Parent)
	if parent == nil {
		return false, nil
	}

	if id.IsSub() {
		kept := parent.Subtasks[:0:0]
		found := false
		for _, st := range parent.Subtasks {
			if st.ID == id.Child {
				found = true
				continue
			}
			kept = append(kept, st)
		}
		if !found {
			return false, nil
		}
		parent.Subtasks = kept
		parent.UpdatedAt = time.Now().UTC()
		parent.Sync.MarkPending()

		dirty := stripDanglingRefs(tasks, id)
		dirty = mergeIndex(dirty, indexOf(tasks, id.Parent))
		markPending(tasks, dirty)
		if err := r.persistRecords(ctx, tasks, dirty); err != nil {
			return false, err
		}
		r.emit(EventSubtaskDeleted, id, nil)
		return true, nil
	}

	remaining, victim, found := removeTask(tasks, id.Parent)
	if !found {
		return false, nil
	}
	dirty := stripDanglingRefs(remaining, id)
	markPending(remaining, dirty)
	if err := r.deleteRecord(ctx, remaining, victim, dirty); err != nil {
		return false, err
	}
	r.emit(EventTaskDeleted, id, nil)
	return true, nil
}

// SaveTasks replaces the whole collection in one call. The incoming
// collection is gated through graph validation against the stored one.
func (r *Router) SaveTasks(ctx context.Context, tasks []models.Task) error {
	if err := r.ensureInit(ctx); err != nil {
		return err
	}
	r.opMu.Lock()
	defer r.opMu.Unlock()

	current, err := r.loadCollection(ctx)
	if err != nil {
		return err
	}
	incoming := models.CloneTasks(tasks)
	if err := rejectNewIssues(current, incoming); err != nil {
		return err
	}

	idxs := make([]int, len(incoming))
	for i := range incoming {
		incoming[i].Sync.MarkPending()
		idxs[i] = i
	}
	if err := r.persistRecords(ctx, incoming, idxs); err != nil {
		return err
	}
	r.emit(EventTasksSaved, models.TaskID{}, nil)
	return nil
}

// persistRecords writes a mutated collection out according to the mode. In
// local mode the document is replaced wholesale. In remote mode the listed
// records are upserted and a remote failure falls back to a local write. In
// hybrid mode both backends are written and the call succeeds if either
// does, with the per-record outcome kept in each task's sync metadata.
// Sync metadata and assigned remote IDs are written back into tasks.
func (r *Router) persistRecords(ctx context.Context, tasks []models.Task, idxs []int) error {
	mode, local, rem := r.backends()
	now := time.Now().UTC()

	switch mode {
	case config.ModeRemote:
		remoteErr := errNoRemote()
		if rem != nil {
			remoteErr = nil
			for _, i := range idxs {
				updated, err := rem.Upsert(ctx, tasks[i])
				if err != nil {
					if types.IsKind(err, types.KindValidation) {
						return err
					}
					remoteErr = err
					break
				}
				tasks[i] = updated
				tasks[i].Sync.MarkSynced("", now)
			}
		}
		if remoteErr == nil {
			return nil
		}
		r.noteFallback("write", remoteErr)
		for _, i := range idxs {
			if tasks[i].Sync.SyncStatus != models.SyncSynced {
				tasks[i].Sync.MarkError(remoteErr)
			}
		}
		if err := local.Save(ctx, tasks); err != nil {
			return types.WrapError(types.KindOf(remoteErr), remoteErr,
				"remote write failed and local fallback also failed: "+err.Error())
		}
		return nil

	case config.ModeHybrid:
		var firstErr error
		synced := 0
		for _, i := range idxs {
			if rem == nil {
				tasks[i].Sync.MarkError(errNoRemote())
				firstErr = errNoRemote()
				continue
			}
			updated, err := rem.Upsert(ctx, tasks[i])
			if err != nil {
				r.logger.Warn("hybrid remote write failed", "task", tasks[i].ID, "error", err)
				tasks[i].Sync.MarkError(err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			tasks[i] = updated
			tasks[i].Sync.MarkSynced("", now)
			synced++
		}
		localErr := local.Save(ctx, tasks)
		if localErr == nil {
			return nil
		}
		if firstErr == nil && synced == len(idxs) {
			r.logger.Warn("hybrid local write failed after successful remote write", "error", localErr)
			return nil
		}
		return types.WrapError(types.KindOf(localErr), localErr, "all backends failed to persist the change")

	default:
		return local.Save(ctx, tasks)
	}
}

// deleteRecord removes a top-level record per mode and then persists the
// remaining collection, including any tasks whose dependency lists were
// cleaned up.
func (r *Router) deleteRecord(ctx context.Context, remaining []models.Task, victim models.Task, dirty []int) error {
	mode, local, rem := r.backends()

	if mode != config.ModeLocal {
		if rem == nil {
			if mode == config.ModeRemote {
				r.noteFallback("delete", errNoRemote())
				return local.Save(ctx, remaining)
			}
		} else if err := rem.Delete(ctx, victim); err != nil {
			if types.IsKind(err, types.KindValidation) {
				return err
			}
			if mode == config.ModeRemote {
				r.noteFallback("delete", err)
				return local.Save(ctx, remaining)
			}
			r.logger.Warn("hybrid remote delete failed", "task", victim.ID, "error", err)
		}
	}

	if mode == config.ModeLocal {
		return local.Save(ctx, remaining)
	}
	return r.persistRecords(ctx, remaining, dirty)
}

func errNoRemote() error {
	return types.NewError(types.KindConfiguration, "remote backend is not configured")
}

func markPending(tasks []models.Task, idxs []int) {
	for _, i := range idxs {
		tasks[i].Sync.MarkPending()
	}
}

func mergeIndex(idxs []int, idx int) []int {
	for _, i := range idxs {
		if i == idx {
			return idxs
		}
	}
	out := append(idxs, idx)
	for i := len(out) - 1; i > 0 && out[i] < out[i-1]; i-- {
		out[i], out[i-1] = out[i-1], out[i]
	}
	return out
}
