package router

import (
	"sort"
	"strings"

	"github.com/taskbridgehq/taskbridge/internal/depgraph"
	"github.com/taskbridgehq/taskbridge/models"
	"github.com/taskbridgehq/taskbridge/types"
)

// TaskView is the read shape returned by lookups. It carries the dotted ID
// so subtasks are addressable the same way as top-level tasks.
type TaskView struct {
	ID           models.TaskID       `json:"id"`
	Title        string              `json:"title"`
	Description  string              `json:"description,omitempty"`
	Status       models.TaskStatus   `json:"status"`
	Priority     models.TaskPriority `json:"priority,omitempty"`
	Dependencies []models.DepRef     `json:"dependencies,omitempty"`
	Details      string              `json:"details,omitempty"`
	TestStrategy string              `json:"testStrategy,omitempty"`
	Subtasks     []models.Subtask    `json:"subtasks,omitempty"`
	Sync         models.SyncMeta     `json:"sync,omitempty"`
}

func newTaskView(t models.Task) TaskView {
	return TaskView{
		ID:           t.TaskID(),
		Title:        t.Title,
		Description:  t.Description,
		Status:       t.Status,
		Priority:     t.Priority,
		Dependencies: t.Dependencies,
		Details:      t.Details,
		TestStrategy: t.TestStrategy,
		Subtasks:     t.Subtasks,
		Sync:         t.Sync,
	}
}

func newSubtaskView(id models.TaskID, st models.Subtask) TaskView {
	return TaskView{
		ID:           id,
		Title:        st.Title,
		Description:  st.Description,
		Status:       st.Status,
		Priority:     st.Priority,
		Dependencies: st.Dependencies,
		Details:      st.Details,
		TestStrategy: st.TestStrategy,
		Sync:         st.Sync,
	}
}

// Query filters a collection read. Zero fields match everything.
type Query struct {
	Status   models.TaskStatus
	Priority models.TaskPriority
}

func filterTasks(tasks []models.Task, q Query) []models.Task {
	if q.Status == "" && q.Priority == "" {
		return tasks
	}
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		if q.Priority != "" && t.Priority != q.Priority {
			continue
		}
		out = append(out, t)
	}
	return out
}

// nextID returns the smallest unused top-level ID above the current maximum.
func nextID(tasks []models.Task) int {
	max := 0
	for _, t := range tasks {
		if t.ID > max {
			max = t.ID
		}
	}
	return max + 1
}

func findTask(tasks []models.Task, id int) *models.Task {
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i]
		}
	}
	return nil
}

func indexOf(tasks []models.Task, id int) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// removeTask drops a top-level task, keeping collection order stable.
func removeTask(tasks []models.Task, id int) (remaining []models.Task, victim models.Task, found bool) {
	remaining = make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID == id {
			victim = t
			found = true
			continue
		}
		remaining = append(remaining, t)
	}
	return remaining, victim, found
}

// stripDanglingRefs removes dependency references to a deleted node from the
// whole collection and returns the indexes of the top-level tasks it
// touched. Deleting a top-level task also severs references to its subtasks.
func stripDanglingRefs(tasks []models.Task, deleted models.TaskID) []int {
	match := func(owner models.TaskID, d models.DepRef) bool {
		target := d.Resolve(owner)
		if deleted.IsSub() {
			return target == deleted
		}
		return target.Parent == deleted.Parent
	}

	touched := map[int]bool{}
	for i := range tasks {
		t := &tasks[i]
		if kept, changed := dropRefs(t.TaskID(), t.Dependencies, match); changed {
			t.Dependencies = kept
			touched[i] = true
		}
		for j := range t.Subtasks {
			st := &t.Subtasks[j]
			owner := models.NewSubtaskID(t.ID, st.ID)
			if kept, changed := dropRefs(owner, st.Dependencies, match); changed {
				st.Dependencies = kept
				touched[i] = true
			}
		}
	}

	out := make([]int, 0, len(touched))
	for i := range touched {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func dropRefs(owner models.TaskID, deps []models.DepRef, match func(models.TaskID, models.DepRef) bool) ([]models.DepRef, bool) {
	changed := false
	var kept []models.DepRef
	for _, d := range deps {
		if match(owner, d) {
			changed = true
			continue
		}
		kept = append(kept, d)
	}
	if !changed {
		return deps, false
	}
	return kept, true
}

// rejectNewIssues validates the prospective collection and fails the write
// if it introduces graph problems that the current collection does not
// already have. Pre-existing damage never blocks unrelated edits; the repair
// command exists for that.
func rejectNewIssues(current, prospective []models.Task) error {
	rep := depgraph.Validate(prospective)
	if rep.Valid {
		return nil
	}
	known := map[string]bool{}
	for _, iss := range depgraph.Validate(current).Issues {
		known[iss.Message] = true
	}
	var msgs []string
	for _, iss := range rep.Issues {
		if !known[iss.Message] {
			msgs = append(msgs, iss.Message)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return types.NewError(types.KindValidation, "dependency validation failed: "+strings.Join(msgs, "; "))
}
