package router

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskbridgehq/taskbridge/models"
)

// EventType names a lifecycle notification.
type EventType string

const (
	EventTaskCreated       EventType = "task.created"
	EventTaskUpdated       EventType = "task.updated"
	EventTaskStatusChanged EventType = "task.status-changed"
	EventTaskDeleted       EventType = "task.deleted"
	EventSubtaskDeleted    EventType = "subtask.deleted"
	EventTasksSaved        EventType = "tasks.saved"
	EventFallbackActivated EventType = "fallback.activated"
)

// Event is a typed lifecycle payload fanned out to registered observers.
type Event struct {
	ID     string        `json:"id"`
	Type   EventType     `json:"type"`
	TaskID models.TaskID `json:"taskId,omitempty"`
	Task   *models.Task  `json:"task,omitempty"`
	At     time.Time     `json:"at"`
}

// Observer receives lifecycle events. Observers run synchronously on the
// mutating goroutine and must not call back into the router.
type Observer func(Event)

// Subscribe registers an observer for all subsequent events.
func (r *Router) Subscribe(obs Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, obs)
}

// emit fans an event out to the observer list. Caller must not hold r.mu.
func (r *Router) emit(t EventType, id models.TaskID, task *models.Task) {
	r.mu.Lock()
	observers := append([]Observer(nil), r.observers...)
	r.mu.Unlock()

	ev := Event{
		ID:     uuid.NewString(),
		Type:   t,
		TaskID: id,
		Task:   task,
		At:     time.Now().UTC(),
	}
	for _, obs := range observers {
		obs(ev)
	}
}
