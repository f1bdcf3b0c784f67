package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskbridgehq/taskbridge/internal/config"
	"github.com/taskbridgehq/taskbridge/models"
	"github.com/taskbridgehq/taskbridge/types"
)

func newTestTransformer(t *testing.T) *Transformer {
	t.Helper()
	tf, err := NewTransformer(config.DefaultColumnMapping())
	require.NoError(t, err)
	return tf
}

func TestNewTransformerRequiresCoreMappings(t *testing.T) {
	_, err := NewTransformer(map[string]string{"title": "name"})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindConfiguration))
}

func TestToRecordMirrorsStatusIntoGroup(t *testing.T) {
	tf := newTestTransformer(t)

	task := models.NewTask(7, "ship it")
	task.Status = models.StatusInProgress
	task.Sync.RemoteItemID = "rec-42"

	rec := tf.ToRecord(task)
	assert.Equal(t, "rec-42", rec.ID)
	assert.Equal(t, "in-progress", rec.GroupID)
	assert.Equal(t, "7", rec.Columns["external_id"])
	assert.Equal(t, "ship it", rec.Columns["name"])
}

func TestRecordRoundTrip(t *testing.T) {
	tf := newTestTransformer(t)

	task := models.NewTask(3, "round trip")
	task.Description = "desc"
	task.Priority = models.PriorityHigh
	task.Dependencies = []models.DepRef{
		models.Dep(models.NewTaskID(1)),
		models.Dep(models.NewSubtaskID(2, 1)),
	}
	task.Subtasks = []models.Subtask{
		{ID: 1, Title: "first", Status: models.StatusPending},
		{ID: 2, Title: "second", Status: models.StatusDone,
			Dependencies: []models.DepRef{models.BareDep(1), models.Dep(models.NewTaskID(1))}},
	}
	task.Sync.RemoteItemID = "rec-3"

	back, err := tf.FromRecord(tf.ToRecord(task))
	require.NoError(t, err)

	assert.Equal(t, task.ID, back.ID)
	assert.Equal(t, task.Title, back.Title)
	assert.Equal(t, task.Description, back.Description)
	assert.Equal(t, task.Status, back.Status)
	assert.Equal(t, task.Priority, back.Priority)
	assert.Equal(t, "rec-3", back.Sync.RemoteItemID)
	require.Len(t, back.Dependencies, 2)
	assert.Equal(t, "1", back.Dependencies[0].String())
	assert.Equal(t, "2.1", back.Dependencies[1].String())
	require.Len(t, back.Subtasks, 2)
	assert.Equal(t, "second", back.Subtasks[1].Title)
	require.Len(t, back.Subtasks[1].Dependencies, 2)
	assert.True(t, back.Subtasks[1].Dependencies[0].Bare, "bare sibling shorthand survives the round trip")
	owner := models.NewSubtaskID(3, 2)
	assert.Equal(t, models.NewSubtaskID(3, 1), back.Subtasks[1].Dependencies[0].Resolve(owner))
	assert.Equal(t, models.NewTaskID(1), back.Subtasks[1].Dependencies[1].Resolve(owner),
		"a subtask's qualified dependency on a top-level task keeps its target")
}

func TestFromRecordDefaultsAndValidation(t *testing.T) {
	tf := newTestTransformer(t)

	// Minimal record: defaults fill status and priority.
	back, err := tf.FromRecord(Record{
		ID:      "rec-9",
		Columns: map[string]any{"external_id": "9", "name": "minimal"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, back.Status)
	assert.Equal(t, models.PriorityMedium, back.Priority)

	// A record without a usable task ID is rejected, not guessed at.
	_, err = tf.FromRecord(Record{
		ID:      "rec-bad",
		Columns: map[string]any{"external_id": "not-a-number", "name": "broken"},
	})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindValidation))

	// A malformed dependency column is a validation error too.
	_, err = tf.FromRecord(Record{
		ID:      "rec-bad-deps",
		Columns: map[string]any{"external_id": "4", "name": "broken", "text_dependencies": "1,zap"},
	})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindValidation))
}
