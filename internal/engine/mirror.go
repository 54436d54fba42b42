package engine

import (
	"github.com/Makepad-fr/tada/internal/model"
)

// Mirror is the last successfully reloaded todo list. It is only ever
// replaced whole.
type Mirror struct {
	todos  []model.Todo
	loaded bool
}

// Todos is the current list, newest first. Callers must not modify it.
func (m *Mirror) Todos() []model.Todo { return m.todos }

// Loaded reports whether a reload has completed since the last reset.
func (m *Mirror) Loaded() bool { return m.loaded }

func (m *Mirror) find(id string) (model.Todo, bool) {
	return model.FindTodo(m.todos, id)
}

// replace installs a reload result. Overlapping reloads are not ordered:
// whichever finishes last wins.
func (m *Mirror) replace(todos []model.Todo) {
	if todos == nil {
		todos = []model.Todo{}
	}
	model.SortNewestFirst(todos)
	m.todos = todos
	m.loaded = true
}

func (m *Mirror) reset() {
	m.todos = []model.Todo{}
	m.loaded = false
}
