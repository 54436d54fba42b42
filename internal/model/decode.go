package model

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeTodo decodes and validates a single document. A missing or null
// steps list is coerced to an empty one.
func DecodeTodo(raw json.RawMessage) (Todo, error) {
	var t Todo
	if err := json.Unmarshal(raw, &t); err != nil {
		return Todo{}, fmt.Errorf("decode todo: %w", err)
	}
	if t.Steps == nil {
		t.Steps = []Step{}
	}
	if err := validate.Struct(t); err != nil {
		return Todo{}, fmt.Errorf("invalid todo %q: %w", t.ID, err)
	}
	return t, nil
}

// DecodeTodos decodes a document list, dropping documents that do not match
// the schema.
func DecodeTodos(docs []json.RawMessage) []Todo {
	out := make([]Todo, 0, len(docs))
	for _, raw := range docs {
		t, err := DecodeTodo(raw)
		if err != nil {
			slog.Warn("dropping document", "schema", SchemaVersion, "error", err)
			continue
		}
		out = append(out, t)
	}
	return out
}

// SortNewestFirst orders todos by creation time, most recent first.
// Equal timestamps keep their relative order.
func SortNewestFirst(todos []Todo) {
	sort.SliceStable(todos, func(i, j int) bool {
		return todos[i].CreatedAt.After(todos[j].CreatedAt)
	})
}
