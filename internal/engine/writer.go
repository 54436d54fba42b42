package engine

import (
	"context"

	"github.com/Makepad-fr/tada/internal/model"
)

// Writer applies a field change to a todo given the snapshot the caller
// read it from. The snapshot is all it knows about the current document.
type Writer interface {
	ToggleTodo(ctx context.Context, snapshot model.Todo) error
	AddStep(ctx context.Context, snapshot model.Todo, step model.Step) error
	ToggleStep(ctx context.Context, snapshot model.Todo, stepID string) error
}

// rmwWriter recomputes the field from the snapshot and replaces it whole.
// There is no concurrency token: two writes computed from the same
// snapshot overwrite each other.
type rmwWriter struct {
	docs Documents
}

// NewReadModifyWriteWriter is the default Writer.
func NewReadModifyWriteWriter(docs Documents) Writer {
	return &rmwWriter{docs: docs}
}

func (w *rmwWriter) ToggleTodo(ctx context.Context, snapshot model.Todo) error {
	completed := !snapshot.Completed
	return w.docs.UpdateTodo(ctx, snapshot.ID, model.TodoPatch{Completed: &completed})
}

func (w *rmwWriter) AddStep(ctx context.Context, snapshot model.Todo, step model.Step) error {
	steps := make([]model.Step, 0, len(snapshot.Steps)+1)
	steps = append(steps, snapshot.Steps...)
	steps = append(steps, step)
	return w.docs.UpdateTodo(ctx, snapshot.ID, model.TodoPatch{Steps: &steps})
}

func (w *rmwWriter) ToggleStep(ctx context.Context, snapshot model.Todo, stepID string) error {
	steps := make([]model.Step, len(snapshot.Steps))
	for i, s := range snapshot.Steps {
		if s.ID == stepID {
			s.Completed = !s.Completed
		}
		steps[i] = s
	}
	return w.docs.UpdateTodo(ctx, snapshot.ID, model.TodoPatch{Steps: &steps})
}
