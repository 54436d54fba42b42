package model

import (
	"encoding/json"
	"time"
)

// SchemaVersion is the field set this client reads and writes.
// Bump it together with the struct tags below.
const SchemaVersion = 1

// Todo is one checklist item as stored in the todos collection.
type Todo struct {
	ID        string    `json:"$id" validate:"required"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	Steps     []Step    `json:"steps" validate:"dive"`
	CreatedAt time.Time `json:"$createdAt" validate:"required"`
	UpdatedAt time.Time `json:"$updatedAt"`
}

// Step is a sub-item embedded in a Todo's steps list.
type Step struct {
	ID        string `json:"id" validate:"required"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// UnmarshalJSON accepts both "id" and the older "$id" key for the step id.
func (s *Step) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID        string `json:"id"`
		LegacyID  string `json:"$id"`
		Title     string `json:"title"`
		Completed bool   `json:"completed"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	s.ID = raw.ID
	if s.ID == "" {
		s.ID = raw.LegacyID
	}
	s.Title = raw.Title
	s.Completed = raw.Completed
	return nil
}

// NewTodo is the data payload for a freshly created todo.
type NewTodo struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Steps     []Step `json:"steps"`
}

// TodoPatch replaces individual fields of a todo. Nil fields are left out
// of the update.
type TodoPatch struct {
	Completed *bool   `json:"completed,omitempty"`
	Steps     *[]Step `json:"steps,omitempty"`
}

// Identity is the signed-in account as reported by the identity provider.
type Identity struct {
	ID    string `json:"$id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// FindTodo returns the todo with the given id, or false.
func FindTodo(todos []Todo, id string) (Todo, bool) {
	for _, t := range todos {
		if t.ID == id {
			return t, true
		}
	}
	return Todo{}, false
}

// Stats counts completed and pending todos.
func Stats(todos []Todo) (done, pending int) {
	for _, t := range todos {
		if t.Completed {
			done++
		} else {
			pending++
		}
	}
	return
}
