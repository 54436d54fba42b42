package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Makepad-fr/tada/internal/model"
)

func TestReadModifyWriteWriter_LeavesSnapshotAlone(t *testing.T) {
	store := newFakeStore()
	store.todos["t1"] = model.Todo{ID: "t1"}
	w := NewReadModifyWriteWriter(store)

	steps := make([]model.Step, 1, 4)
	steps[0] = model.Step{ID: "s1", Title: "a"}
	snap := model.Todo{ID: "t1", Steps: steps}

	require.NoError(t, w.AddStep(context.Background(), snap, model.Step{ID: "s2", Title: "b"}))
	require.NoError(t, w.ToggleStep(context.Background(), snap, "s1"))

	assert.Len(t, snap.Steps, 1)
	assert.False(t, snap.Steps[0].Completed)
	assert.Equal(t, []model.Step{{ID: "s1", Title: "a", Completed: true}}, store.todo("t1").Steps)
}

func TestReadModifyWriteWriter_ToggleTodoWritesOnlyCompleted(t *testing.T) {
	store := newFakeStore()
	store.todos["t1"] = model.Todo{ID: "t1", Completed: true}
	w := NewReadModifyWriteWriter(store)

	require.NoError(t, w.ToggleTodo(context.Background(), model.Todo{ID: "t1", Completed: true}))

	require.NotNil(t, store.lastUpdate.Completed)
	assert.False(t, *store.lastUpdate.Completed)
	assert.Nil(t, store.lastUpdate.Steps)
}

// A Writer can be swapped in through Options.
type recordingWriter struct {
	Writer
	toggled []string
}

func (w *recordingWriter) ToggleTodo(ctx context.Context, snapshot model.Todo) error {
	w.toggled = append(w.toggled, snapshot.ID)
	return nil
}

func TestOptions_CustomWriter(t *testing.T) {
	store := newFakeStore()
	store.identity = ada
	store.todos["t1"] = model.Todo{ID: "t1", Title: "milk", CreatedAt: store.clock}
	w := &recordingWriter{}
	c := New(context.Background(), Backend{Identity: store, Documents: store}, Options{Writer: w})

	Drive(c, c.Init())
	Drive(c, c.ToggleTodo("t1"))

	assert.Equal(t, []string{"t1"}, w.toggled)
	assert.False(t, store.todo("t1").Completed)
}
