// Package models defines the task records shared by every backend.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// TaskStatus represents the possible statuses of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in-progress"
	StatusDone       TaskStatus = "done"
	StatusDeferred   TaskStatus = "deferred"
	StatusCancelled  TaskStatus = "cancelled"
	StatusReview     TaskStatus = "review"
	StatusBlocked    TaskStatus = "blocked"
)

// TaskPriority represents the priority levels of a task.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// SyncStatus tracks whether a record's remote copy is up to date.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// SyncMeta is the per-record remote sync bookkeeping. Any local mutation
// resets SyncStatus to pending and clears the previous outcome.
type SyncMeta struct {
	RemoteItemID string     `json:"remoteItemId,omitempty"`
	SyncStatus   SyncStatus `json:"syncStatus,omitempty" validate:"omitempty,oneof=pending synced error"`
	SyncError    string     `json:"syncError,omitempty"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
}

// MarkPending invalidates any prior sync outcome after a local mutation.
func (m *SyncMeta) MarkPending() {
	m.SyncStatus = SyncPending
	m.SyncError = ""
}

// MarkSynced records a confirmed remote write.
func (m *SyncMeta) MarkSynced(remoteID string, at time.Time) {
	if remoteID != "" {
		m.RemoteItemID = remoteID
	}
	m.SyncStatus = SyncSynced
	m.SyncError = ""
	m.LastSyncedAt = &at
}

// MarkError records a failed remote write.
func (m *SyncMeta) MarkError(err error) {
	m.SyncStatus = SyncError
	if err != nil {
		m.SyncError = err.Error()
	}
}

// Subtask is a task scoped under exactly one parent. Its canonical identity
// outside the parent is the dotted "parent.child" ID.
type Subtask struct {
	ID           int          `json:"id" validate:"required,min=1"`
	Title        string       `json:"title" validate:"required"`
	Description  string       `json:"description,omitempty"`
	Status       TaskStatus   `json:"status" validate:"required,oneof=pending in-progress done deferred cancelled review blocked"`
	Priority     TaskPriority `json:"priority,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Dependencies []DepRef     `json:"dependencies,omitempty"`
	Details      string       `json:"details,omitempty"`
	TestStrategy string       `json:"testStrategy,omitempty"`
	Sync         SyncMeta     `json:"sync,omitempty"`
}

// Task represents a unit of work. A task is mutable for its whole life until
// explicitly deleted; the core imposes no done-state edit lock.
type Task struct {
	ID           int          `json:"id" validate:"required,min=1"`
	Title        string       `json:"title" validate:"required"`
	Description  string       `json:"description,omitempty"`
	Status       TaskStatus   `json:"status" validate:"required,oneof=pending in-progress done deferred cancelled review blocked"`
	Priority     TaskPriority `json:"priority" validate:"required,oneof=low medium high critical"`
	Dependencies []DepRef     `json:"dependencies,omitempty"`
	Details      string       `json:"details,omitempty"`
	TestStrategy string       `json:"testStrategy,omitempty"`
	Subtasks     []Subtask    `json:"subtasks,omitempty" validate:"dive"`
	Sync         SyncMeta     `json:"sync,omitempty"`
	CreatedAt    time.Time    `json:"createdAt,omitempty"`
	UpdatedAt    time.Time    `json:"updatedAt,omitempty"`
}

// TaskID returns the task's identifier in tagged form.
func (t Task) TaskID() TaskID { return NewTaskID(t.ID) }

// Subtask returns a pointer to the subtask with the given local ID, or nil.
func (t *Task) Subtask(child int) *Subtask {
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == child {
			return &t.Subtasks[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	out := t
	out.Dependencies = append([]DepRef(nil), t.Dependencies...)
	out.Subtasks = make([]Subtask, len(t.Subtasks))
	for i, st := range t.Subtasks {
		stc := st
		stc.Dependencies = append([]DepRef(nil), st.Dependencies...)
		out.Subtasks[i] = stc
	}
	return out
}

// CloneTasks deep-copies a whole collection.
func CloneTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title        *string       `json:"title,omitempty"`
	Description  *string       `json:"description,omitempty"`
	Status       *TaskStatus   `json:"status,omitempty"`
	Priority     *TaskPriority `json:"priority,omitempty"`
	Dependencies *[]DepRef     `json:"dependencies,omitempty"`
	Details      *string       `json:"details,omitempty"`
	TestStrategy *string       `json:"testStrategy,omitempty"`
}

// TouchesDependencies reports whether applying the patch changes the
// dependency edge set.
func (p TaskPatch) TouchesDependencies() bool { return p.Dependencies != nil }

// Apply writes the patch onto a task in place and reports whether the
// status changed.
func (p TaskPatch) Apply(t *Task) (statusChanged bool) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil && *p.Status != t.Status {
		t.Status = *p.Status
		statusChanged = true
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Dependencies != nil {
		t.Dependencies = append([]DepRef(nil), (*p.Dependencies)...)
	}
	if p.Details != nil {
		t.Details = *p.Details
	}
	if p.TestStrategy != nil {
		t.TestStrategy = *p.TestStrategy
	}
	return statusChanged
}

// ApplySubtask writes the patch onto a subtask in place.
func (p TaskPatch) ApplySubtask(st *Subtask) (statusChanged bool) {
	if p.Title != nil {
		st.Title = *p.Title
	}
	if p.Description != nil {
		st.Description = *p.Description
	}
	if p.Status != nil && *p.Status != st.Status {
		st.Status = *p.Status
		statusChanged = true
	}
	if p.Priority != nil {
		st.Priority = *p.Priority
	}
	if p.Dependencies != nil {
		st.Dependencies = append([]DepRef(nil), (*p.Dependencies)...)
	}
	if p.Details != nil {
		st.Details = *p.Details
	}
	if p.TestStrategy != nil {
		st.TestStrategy = *p.TestStrategy
	}
	return statusChanged
}

// TaskList is the on-disk document shape: a single JSON object holding the
// whole collection.
type TaskList struct {
	Tasks []Task `json:"tasks" validate:"dive"`
}

// global validator instance
var validate = validator.New()

// ValidateStruct performs validation on any struct that has validation tags.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var msgs []string
	for _, e := range err.(validator.ValidationErrors) {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed rule '%s' (value: '%v')", e.StructNamespace(), e.Tag(), e.Value()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// NewTask creates a task with defaulted status, priority and timestamps.
func NewTask(id int, title string) Task {
	now := time.Now().UTC()
	return Task{
		ID:        id,
		Title:     title,
		Status:    StatusPending,
		Priority:  PriorityMedium,
		Sync:      SyncMeta{SyncStatus: SyncPending},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
