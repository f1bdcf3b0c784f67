package depgraph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskbridgehq/taskbridge/models"
)

func task(id int, title string, deps ...models.DepRef) models.Task {
	t := models.NewTask(id, title)
	t.Dependencies = deps
	return t
}

func dep(s string) models.DepRef { return models.Dep(models.MustParseTaskID(s)) }

func TestValidateCleanGraph(t *testing.T) {
	tasks := []models.Task{
		task(1, "a"),
		task(2, "b", dep("1")),
		task(3, "c", dep("1"), dep("2")),
	}
	rep := Validate(tasks)
	assert.True(t, rep.Valid)
	assert.Empty(t, rep.Issues)
}

func TestValidateMissingReference(t *testing.T) {
	tasks := []models.Task{
		task(1, "a", dep("5.2")),
	}
	rep := Validate(tasks)
	require.False(t, rep.Valid)
	require.Len(t, rep.Issues, 1)
	iss := rep.Issues[0]
	assert.Equal(t, IssueMissing, iss.Kind)
	assert.Equal(t, models.NewTaskID(1), iss.Node)
	assert.Equal(t, models.NewSubtaskID(5, 2), iss.Dep)
	assert.Contains(t, iss.Message, "5.2")
}

func TestValidateSelfDependency(t *testing.T) {
	tasks := []models.Task{
		task(2, "b", dep("2")),
	}
	rep := Validate(tasks)
	require.False(t, rep.Valid)
	require.Len(t, rep.Issues, 1)
	assert.Equal(t, IssueSelf, rep.Issues[0].Kind)
}

func TestValidateTwoTaskCycle(t *testing.T) {
	tasks := []models.Task{
		task(1, "a", dep("2")),
		task(2, "b", dep("1")),
	}
	rep := Validate(tasks)
	require.False(t, rep.Valid)
	require.Len(t, rep.Issues, 1)
	iss := rep.Issues[0]
	assert.Equal(t, IssueCircular, iss.Kind)
	assert.Equal(t, []models.TaskID{models.NewTaskID(1), models.NewTaskID(2)}, iss.Cycle)
	assert.Contains(t, iss.Message, "1 -> 2 -> 1")
}

func TestValidateBareSiblingShorthand(t *testing.T) {
	// Subtask 4.2 depends on bare 1, which means sibling 4.1, not task 1.
	parent := models.NewTask(4, "parent")
	parent.Subtasks = []models.Subtask{
		{ID: 1, Title: "first", Status: models.StatusPending},
		{ID: 2, Title: "second", Status: models.StatusPending, Dependencies: []models.DepRef{models.BareDep(1)}},
	}
	rep := Validate([]models.Task{parent})
	assert.True(t, rep.Valid, "bare sibling reference must resolve inside the parent")

	// The same bare reference dangles once the sibling is gone.
	parent.Subtasks = parent.Subtasks[1:]
	rep = Validate([]models.Task{parent})
	require.False(t, rep.Valid)
	assert.Equal(t, IssueMissing, rep.Issues[0].Kind)
}

func TestValidateDoesNotMutateInput(t *testing.T) {
	tasks := []models.Task{
		task(1, "a", dep("1"), dep("9")),
	}
	_ = Validate(tasks)
	assert.Len(t, tasks[0].Dependencies, 2)
}

func TestRepairDropsMissingAndSelf(t *testing.T) {
	tasks := []models.Task{
		task(1, "a", dep("9"), dep("1"), dep("2")),
		task(2, "b"),
	}
	repaired := Repair(tasks)
	rep := Validate(repaired)
	require.True(t, rep.Valid)
	require.Len(t, repaired[0].Dependencies, 1)
	assert.Equal(t, models.NewTaskID(2), repaired[0].Dependencies[0].ID)

	// Input untouched.
	assert.Len(t, tasks[0].Dependencies, 3)
}

func TestRepairBreaksCycles(t *testing.T) {
	tasks := []models.Task{
		task(1, "a", dep("2")),
		task(2, "b", dep("3")),
		task(3, "c", dep("1")),
	}
	repaired := Repair(tasks)
	rep := Validate(repaired)
	assert.True(t, rep.Valid)

	// Only the back edge is removed; the rest of the chain survives.
	edges := 0
	for _, tk := range repaired {
		edges += len(tk.Dependencies)
	}
	assert.Equal(t, 2, edges)
}

func TestRepairDeduplicates(t *testing.T) {
	tasks := []models.Task{
		task(1, "a", dep("2"), dep("2")),
		task(2, "b"),
	}
	repaired := Repair(tasks)
	assert.Len(t, repaired[0].Dependencies, 1)
}

func TestRepairFreesOneSubtask(t *testing.T) {
	parent := models.NewTask(1, "parent")
	parent.Subtasks = []models.Subtask{
		{ID: 1, Title: "s1", Status: models.StatusPending, Dependencies: []models.DepRef{models.BareDep(2)}},
		{ID: 2, Title: "s2", Status: models.StatusPending, Dependencies: []models.DepRef{models.BareDep(1)}},
	}
	repaired := Repair([]models.Task{parent})

	free := 0
	for _, st := range repaired[0].Subtasks {
		if len(st.Dependencies) == 0 {
			free++
		}
	}
	assert.GreaterOrEqual(t, free, 1, "a parent with subtasks must keep a dependency-free subtask")
	assert.True(t, Validate(repaired).Valid)
}

func TestRepairIsIdempotent(t *testing.T) {
	tasks := []models.Task{
		task(1, "a", dep("2"), dep("9"), dep("1")),
		task(2, "b", dep("1")),
		task(3, "c", dep("3")),
	}
	once := Repair(tasks)
	twice := Repair(once)

	// Compare the wire form so empty and absent dependency lists are the
	// same thing.
	onceJSON, err := json.Marshal(models.TaskList{Tasks: once})
	require.NoError(t, err)
	twiceJSON, err := json.Marshal(models.TaskList{Tasks: twice})
	require.NoError(t, err)
	assert.JSONEq(t, string(onceJSON), string(twiceJSON))
	assert.True(t, Validate(once).Valid)
}
