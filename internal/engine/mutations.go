package engine

import (
	"context"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/Makepad-fr/tada/internal/model"
)

// Operation names, as logged and kept in Notice.Op.
const (
	OpAddTodo    = "add todo"
	OpToggleTodo = "toggle todo"
	OpAddStep    = "add step"
	OpToggleStep = "toggle step"
	OpDeleteStep = "delete step"
	OpDeleteTodo = "delete todo"
)

var (
	newTodoID = func() string { return ulid.Make().String() }
	newStepID = uuid.NewString
)

// Mutations never touch the mirror. They issue one remote write; the push
// event it causes brings the change back through a reload.

// mutate wraps a remote write into a command tagged with the current epoch.
func (c *Controller) mutate(op, todoID string, write func(ctx context.Context) error) tea.Cmd {
	epoch := c.epoch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(c.ctx, c.opt.Timeout)
		defer cancel()
		return mutationMsg{epoch: epoch, op: op, todoID: todoID, err: write(ctx)}
	}
}

// snapshot reads a todo from the mirror for a read-modify-write.
func (c *Controller) snapshot(op, todoID string) (model.Todo, bool) {
	if !c.gate.Authenticated() {
		slog.Warn("not signed in", "op", op)
		return model.Todo{}, false
	}
	todo, ok := c.mirror.find(todoID)
	if !ok {
		slog.Warn("todo not in mirror", "op", op, "todo", todoID)
		return model.Todo{}, false
	}
	return todo, true
}

// AddTodo creates a todo with no steps.
func (c *Controller) AddTodo(title string) tea.Cmd {
	title = strings.TrimSpace(title)
	if !c.gate.Authenticated() {
		slog.Warn("not signed in", "op", OpAddTodo)
		return nil
	}
	if title == "" {
		slog.Warn("empty title", "op", OpAddTodo)
		return nil
	}
	id := newTodoID()
	return c.mutate(OpAddTodo, id, func(ctx context.Context) error {
		return c.backend.Documents.CreateTodo(ctx, id, model.NewTodo{Title: title, Steps: []model.Step{}})
	})
}

// ToggleTodo flips completed as seen in the mirror.
func (c *Controller) ToggleTodo(todoID string) tea.Cmd {
	todo, ok := c.snapshot(OpToggleTodo, todoID)
	if !ok {
		return nil
	}
	return c.mutate(OpToggleTodo, todoID, func(ctx context.Context) error {
		return c.writer.ToggleTodo(ctx, todo)
	})
}

// AddStep appends a step to the mirror's copy of the steps list and writes
// the whole list back.
func (c *Controller) AddStep(todoID, title string) tea.Cmd {
	title = strings.TrimSpace(title)
	todo, ok := c.snapshot(OpAddStep, todoID)
	if !ok {
		return nil
	}
	if title == "" {
		slog.Warn("empty title", "op", OpAddStep)
		return nil
	}
	step := model.Step{ID: newStepID(), Title: title}
	return c.mutate(OpAddStep, todoID, func(ctx context.Context) error {
		return c.writer.AddStep(ctx, todo, step)
	})
}

// ToggleStep flips one step's completed flag and writes the whole list
// back, order preserved.
func (c *Controller) ToggleStep(todoID, stepID string) tea.Cmd {
	todo, ok := c.snapshot(OpToggleStep, todoID)
	if !ok {
		return nil
	}
	return c.mutate(OpToggleStep, todoID, func(ctx context.Context) error {
		return c.writer.ToggleStep(ctx, todo, stepID)
	})
}

// DeleteStep deletes the step's document in the steps collection. The
// parent's embedded steps list is left as it is.
func (c *Controller) DeleteStep(todoID, stepID string) tea.Cmd {
	if !c.gate.Authenticated() {
		slog.Warn("not signed in", "op", OpDeleteStep)
		return nil
	}
	return c.mutate(OpDeleteStep, todoID, func(ctx context.Context) error {
		return c.backend.Documents.DeleteStep(ctx, stepID)
	})
}

// DeleteTodo deletes the todo document. It stays in the mirror until the
// next reload.
func (c *Controller) DeleteTodo(todoID string) tea.Cmd {
	if !c.gate.Authenticated() {
		slog.Warn("not signed in", "op", OpDeleteTodo)
		return nil
	}
	return c.mutate(OpDeleteTodo, todoID, func(ctx context.Context) error {
		return c.backend.Documents.DeleteTodo(ctx, todoID)
	})
}
