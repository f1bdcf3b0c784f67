package remote

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/taskbridgehq/taskbridge/models"
	"github.com/taskbridgehq/taskbridge/types"
)

// Record is one item on the remote board: its vendor-assigned ID, the group
// it sits in, and a column-ID -> value map.
type Record struct {
	ID      string         `json:"id,omitempty"`
	GroupID string         `json:"groupId,omitempty"`
	Columns map[string]any `json:"columns"`
}

// requiredMappings are the task fields the transformer cannot work without.
var requiredMappings = []string{"id", "title", "status"}

// Transformer maps tasks to and from the remote column representation. It
// is pure and stateless; missing mapping entries surface at construction,
// not per call.
type Transformer struct {
	mapping map[string]string
}

// NewTransformer validates the column mapping up front.
func NewTransformer(mapping map[string]string) (*Transformer, error) {
	for _, field := range requiredMappings {
		if mapping[field] == "" {
			return nil, types.NewError(types.KindConfiguration,
				fmt.Sprintf("columnMapping is missing an entry for %q", field))
		}
	}
	return &Transformer{mapping: mapping}, nil
}

// ToRecord converts a task into its column representation. The record's
// group mirrors the task status so group moves follow status changes.
func (t *Transformer) ToRecord(task models.Task) Record {
	cols := make(map[string]any, len(t.mapping))
	t.put(cols, "id", strconv.Itoa(task.ID))
	t.put(cols, "title", task.Title)
	t.put(cols, "description", task.Description)
	t.put(cols, "status", string(task.Status))
	t.put(cols, "priority", string(task.Priority))
	t.put(cols, "dependencies", joinDeps(task.Dependencies))
	t.put(cols, "details", task.Details)
	t.put(cols, "testStrategy", task.TestStrategy)
	if len(task.Subtasks) > 0 {
		if data, err := json.Marshal(task.Subtasks); err == nil {
			t.put(cols, "subtasks", string(data))
		}
	}
	return Record{
		ID:      task.Sync.RemoteItemID,
		GroupID: string(task.Status),
		Columns: cols,
	}
}

// FromRecord converts a remote record back into a task. Unknown columns are
// ignored; the vendor record ID lands in the task's sync metadata.
func (t *Transformer) FromRecord(rec Record) (models.Task, error) {
	var task models.Task

	idStr := t.str(rec, "id")
	id, err := strconv.Atoi(strings.TrimSpace(idStr))
	if err != nil || id <= 0 {
		return models.Task{}, types.NewError(types.KindValidation,
			fmt.Sprintf("remote record %s carries an invalid task id %q", rec.ID, idStr))
	}
	task.ID = id
	task.Title = t.str(rec, "title")
	task.Description = t.str(rec, "description")
	task.Status = models.TaskStatus(t.str(rec, "status"))
	if task.Status == "" {
		task.Status = models.StatusPending
	}
	task.Priority = models.TaskPriority(t.str(rec, "priority"))
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	task.Details = t.str(rec, "details")
	task.TestStrategy = t.str(rec, "testStrategy")

	deps, err := splitDeps(t.str(rec, "dependencies"))
	if err != nil {
		return models.Task{}, err
	}
	task.Dependencies = deps

	if raw := t.str(rec, "subtasks"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &task.Subtasks); err != nil {
			return models.Task{}, types.WrapError(types.KindValidation, err,
				fmt.Sprintf("remote record %s carries malformed subtasks", rec.ID))
		}
	}

	task.Sync.RemoteItemID = rec.ID
	return task, nil
}

// put writes a value under the mapped column ID, skipping unmapped fields
// and empty values.
func (t *Transformer) put(cols map[string]any, field string, value string) {
	col := t.mapping[field]
	if col == "" || value == "" {
		return
	}
	cols[col] = value
}

// str reads the mapped column as a string, tolerating unmapped and absent
// columns.
func (t *Transformer) str(rec Record, field string) string {
	col := t.mapping[field]
	if col == "" {
		return ""
	}
	v, ok := rec.Columns[col]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return s
}

func joinDeps(deps []models.DepRef) string {
	if len(deps) == 0 {
		return ""
	}
	parts := make([]string, len(deps))
	for i, d := range deps {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",")
}

func splitDeps(s string) ([]models.DepRef, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var deps []models.DepRef
	for _, part := range strings.Split(s, ",") {
		id, err := models.ParseTaskID(part)
		if err != nil {
			return nil, types.WrapError(types.KindValidation, err, "malformed dependency list column")
		}
		deps = append(deps, models.Dep(id))
	}
	return deps, nil
}
