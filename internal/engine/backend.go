// Package engine keeps the local todo list in step with the remote store.
//
// All state lives in a Controller and changes only inside Update, which
// bubbletea (or Drive) calls from a single goroutine. Remote calls are
// tea.Cmds run elsewhere; their results come back as messages.
package engine

import (
	"context"

	"github.com/Makepad-fr/tada/internal/appwrite"
	"github.com/Makepad-fr/tada/internal/model"
)

// IdentityProvider checks and ends sessions.
type IdentityProvider interface {
	GetAccount(ctx context.Context) (*model.Identity, error)
	OAuth2TokenURL(provider, success, failure string) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Documents is the todos and steps collections.
type Documents interface {
	ListTodos(ctx context.Context) ([]model.Todo, error)
	CreateTodo(ctx context.Context, id string, data model.NewTodo) error
	UpdateTodo(ctx context.Context, id string, patch model.TodoPatch) error
	DeleteTodo(ctx context.Context, id string) error
	DeleteStep(ctx context.Context, stepID string) error
}

// EventStream is an open push channel.
type EventStream interface {
	Events() <-chan appwrite.Event
	Close() error
}

// Notifier opens push channels.
type Notifier interface {
	Open(ctx context.Context, channels []string) (EventStream, error)
}

// Backend bundles the remote collaborators.
type Backend struct {
	Identity  IdentityProvider
	Documents Documents
	Notifier  Notifier
}

type realtimeNotifier struct {
	client *appwrite.Client
}

func (n realtimeNotifier) Open(ctx context.Context, channels []string) (EventStream, error) {
	s, err := n.client.Subscribe(ctx, channels)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewBackend wires every collaborator to one appwrite client.
func NewBackend(c *appwrite.Client) Backend {
	return Backend{
		Identity:  c,
		Documents: c,
		Notifier:  realtimeNotifier{client: c},
	}
}
