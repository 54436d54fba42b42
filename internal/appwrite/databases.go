package appwrite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/Makepad-fr/tada/internal/model"
)

type documentList struct {
	Total     int               `json:"total"`
	Documents []json.RawMessage `json:"documents"`
}

type query struct {
	Method    string `json:"method"`
	Attribute string `json:"attribute,omitempty"`
	Values    []any  `json:"values,omitempty"`
}

func (q query) String() string {
	b, _ := json.Marshal(q)
	return string(b)
}

func (c *Client) documentsPath(collectionID string) string {
	return "/databases/" + url.PathEscape(c.cfg.DatabaseID) +
		"/collections/" + url.PathEscape(collectionID) + "/documents"
}

func (c *Client) documentPath(collectionID, documentID string) string {
	return c.documentsPath(collectionID) + "/" + url.PathEscape(documentID)
}

// ListTodos reads the whole todos collection, newest first. Documents that
// do not decode are dropped.
func (c *Client) ListTodos(ctx context.Context) ([]model.Todo, error) {
	q := url.Values{}
	q.Add("queries[]", query{Method: "orderDesc", Attribute: "$createdAt"}.String())

	var list documentList
	if _, err := c.do(ctx, http.MethodGet, c.documentsPath(c.cfg.TodosCollectionID), q, nil, &list); err != nil {
		return nil, remoteFailure("list todos", err)
	}
	todos := model.DecodeTodos(list.Documents)
	model.SortNewestFirst(todos)
	return todos, nil
}

// CreateTodo creates a todo document with the given id.
func (c *Client) CreateTodo(ctx context.Context, id string, data model.NewTodo) error {
	if data.Steps == nil {
		data.Steps = []model.Step{}
	}
	args := map[string]any{"documentId": id, "data": data}
	_, err := c.do(ctx, http.MethodPost, c.documentsPath(c.cfg.TodosCollectionID), nil, args, nil)
	return remoteFailure("create todo", err)
}

// UpdateTodo replaces the fields set in patch.
func (c *Client) UpdateTodo(ctx context.Context, id string, patch model.TodoPatch) error {
	args := map[string]any{"data": patch}
	_, err := c.do(ctx, http.MethodPatch, c.documentPath(c.cfg.TodosCollectionID, id), nil, args, nil)
	return remoteFailure("update todo", err)
}

// DeleteTodo deletes a todo document.
func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.documentPath(c.cfg.TodosCollectionID, id), nil, nil, nil)
	return remoteFailure("delete todo", err)
}

// DeleteStep deletes a document from the steps collection. The parent
// todo's embedded steps list is not touched.
func (c *Client) DeleteStep(ctx context.Context, stepID string) error {
	_, err := c.do(ctx, http.MethodDelete, c.documentPath(c.cfg.StepsCollectionID, stepID), nil, nil, nil)
	return remoteFailure("delete step", err)
}
