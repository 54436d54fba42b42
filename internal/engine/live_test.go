package engine

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Makepad-fr/tada/internal/appwrite"
	"github.com/Makepad-fr/tada/internal/appwrite/apptest"
	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/model"
)

// loop is a minimal event loop: commands run on their own goroutines and
// their messages are applied one at a time on the test goroutine.
type loop struct {
	t    *testing.T
	c    *Controller
	msgs chan tea.Msg
}

func (l *loop) start(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	go func() {
		msg := cmd()
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, c := range batch {
				l.start(c)
			}
			return
		}
		if msg != nil {
			l.msgs <- msg
		}
	}()
}

// until applies messages until cond holds.
func (l *loop) until(what string, cond func() bool) {
	l.t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case msg := <-l.msgs:
			l.start(l.c.Update(msg))
		case <-deadline:
			l.t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func TestLive_RemoteChangesReachTheMirror(t *testing.T) {
	srv := apptest.New(t)
	secret := srv.AddUser(model.Identity{ID: "u1", Name: "Ada"})
	cfg := srv.Config()
	client := appwrite.New(cfg, &auth.TokenInfo{Token: secret})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(ctx, NewBackend(client), Options{Channels: cfg.Channels(), Timeout: 5 * time.Second, Live: true})
	l := &loop{t: t, c: c, msgs: make(chan tea.Msg, 16)}
	defer c.Close()

	l.start(c.Init())
	l.until("subscription", func() bool { return c.Subscribed() && c.Loaded() })
	assert.Empty(t, c.Todos())

	// a write from another client
	id := srv.Seed(apptest.TodosCollectionID, map[string]any{"title": "from elsewhere", "completed": false, "steps": []any{}})
	srv.Publish(apptest.TodosCollectionID, id, "create")
	l.until("remote todo", func() bool { return len(c.Todos()) == 1 })

	// our own write comes back through the same channel
	l.start(c.ToggleTodo(id))
	l.until("toggle", func() bool {
		todo, ok := c.Todo(id)
		return ok && todo.Completed
	})

	l.start(c.AddTodo("local"))
	l.until("local todo", func() bool { return len(c.Todos()) == 2 })
	assert.Equal(t, "local", c.Todos()[0].Title)

	l.start(c.Terminate())
	assert.Empty(t, c.Todos())
	require.Eventually(t, func() bool { return srv.Subscribers() == 0 }, 5*time.Second, 10*time.Millisecond)
}
