package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/Makepad-fr/tada/internal/appwrite"
	"github.com/Makepad-fr/tada/internal/model"
)

var errInjected = errors.New("injected failure")

// fakeStore is an in-memory IdentityProvider, Documents and Notifier.
type fakeStore struct {
	mu         sync.Mutex
	identity   *model.Identity
	clock      time.Time
	todos      map[string]model.Todo
	steps      map[string]bool
	fail       map[string]error
	openErr    error
	streams    []*fakeStream
	listCalls  int
	logouts    int
	lastUpdate model.TodoPatch
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clock: time.Date(2024, 9, 5, 10, 0, 0, 0, time.UTC),
		todos: map[string]model.Todo{},
		steps: map[string]bool{},
		fail:  map[string]error{},
	}
}

func (f *fakeStore) failNext(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = errInjected
}

// takeFailure must be called with mu held.
func (f *fakeStore) takeFailure(op string) error {
	err := f.fail[op]
	delete(f.fail, op)
	return err
}

func (f *fakeStore) setIdentity(id *model.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity = id
}

func (f *fakeStore) GetAccount(ctx context.Context) (*model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("account"); err != nil {
		return nil, err
	}
	if f.identity == nil {
		return nil, &appwrite.AuthFailure{Op: "get account", Err: errors.New("401")}
	}
	id := *f.identity
	return &id, nil
}

func (f *fakeStore) OAuth2TokenURL(provider, success, failure string) (string, error) {
	if provider == "" {
		return "", errors.New("no provider")
	}
	return "https://idp.example/" + provider + "?success=" + success, nil
}

func (f *fakeStore) DeleteSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("logout"); err != nil {
		return err
	}
	f.logouts++
	f.identity = nil
	return nil
}

func (f *fakeStore) ListTodos(ctx context.Context) ([]model.Todo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if err := f.takeFailure("list"); err != nil {
		return nil, err
	}
	out := make([]model.Todo, 0, len(f.todos))
	for _, t := range f.todos {
		t.Steps = append([]model.Step{}, t.Steps...)
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) CreateTodo(ctx context.Context, id string, data model.NewTodo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("create"); err != nil {
		return err
	}
	f.clock = f.clock.Add(time.Second)
	f.todos[id] = model.Todo{
		ID:        id,
		Title:     data.Title,
		Completed: data.Completed,
		Steps:     append([]model.Step{}, data.Steps...),
		CreatedAt: f.clock,
		UpdatedAt: f.clock,
	}
	return nil
}

func (f *fakeStore) UpdateTodo(ctx context.Context, id string, patch model.TodoPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("update"); err != nil {
		return err
	}
	t, ok := f.todos[id]
	if !ok {
		return errors.New("404 document_not_found")
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}
	if patch.Steps != nil {
		t.Steps = append([]model.Step{}, (*patch.Steps)...)
		for _, s := range t.Steps {
			f.steps[s.ID] = true
		}
	}
	f.todos[id] = t
	f.lastUpdate = patch
	return nil
}

func (f *fakeStore) DeleteTodo(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("delete"); err != nil {
		return err
	}
	if _, ok := f.todos[id]; !ok {
		return errors.New("404 document_not_found")
	}
	delete(f.todos, id)
	return nil
}

func (f *fakeStore) DeleteStep(ctx context.Context, stepID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure("delete step"); err != nil {
		return err
	}
	if !f.steps[stepID] {
		return errors.New("404 document_not_found")
	}
	delete(f.steps, stepID)
	return nil
}

func (f *fakeStore) Open(ctx context.Context, channels []string) (EventStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := &fakeStream{events: make(chan appwrite.Event, 8)}
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeStore) todo(id string) model.Todo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.todos[id]
}

type fakeStream struct {
	events chan appwrite.Event
	once   sync.Once
	mu     sync.Mutex
	closes int
}

func (s *fakeStream) Events() <-chan appwrite.Event { return s.events }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.once.Do(func() { close(s.events) })
	return nil
}

func (s *fakeStream) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes > 0
}

// harness drives a controller by hand. Push events are delivered
// explicitly instead of through a blocking reader.
type harness struct {
	t     *testing.T
	store *fakeStore
	c     *Controller
	sub   *Subscription
}

var (
	ada = &model.Identity{ID: "u1", Name: "Ada"}

	docEvent = appwrite.Event{Events: []string{
		"databases.db.collections.todos.documents.x.update",
		"databases.*.collections.*.documents.*",
	}}
)

func newHarness(t *testing.T, live bool) *harness {
	t.Helper()
	store := newFakeStore()
	h := &harness{t: t, store: store}
	h.c = New(context.Background(), Backend{Identity: store, Documents: store, Notifier: store}, Options{
		Channels: []string{"databases.db.collections.todos.documents", "databases.db.collections.steps.documents"},
		Timeout:  time.Second,
		Live:     live,
	})
	h.c.listen = func(s *Subscription) tea.Cmd {
		h.sub = s
		return nil
	}
	return h
}

func (h *harness) settle(cmd tea.Cmd) { Drive(h.c, cmd) }

// run executes cmd (and any batch it expands to) without applying results.
func (h *harness) run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	switch msg := cmd().(type) {
	case nil:
		return nil
	case tea.BatchMsg:
		var out []tea.Msg
		for _, c := range msg {
			out = append(out, h.run(c)...)
		}
		return out
	default:
		return []tea.Msg{msg}
	}
}

func (h *harness) apply(msgs ...tea.Msg) {
	for _, m := range msgs {
		h.settle(h.c.Update(m))
	}
}

func (h *harness) push(ev appwrite.Event) {
	h.t.Helper()
	require.NotNil(h.t, h.sub, "no subscription")
	h.settle(h.c.Update(changeMsg{subID: h.sub.id, event: ev}))
}

func (h *harness) signIn() {
	h.t.Helper()
	h.store.setIdentity(ada)
	h.settle(h.c.Init())
	require.True(h.t, h.c.Authenticated())
}

// addTodo creates a todo and lets its change event reload the mirror.
func (h *harness) addTodo(title string) model.Todo {
	h.t.Helper()
	before := len(h.c.Todos())
	h.settle(h.c.AddTodo(title))
	h.push(docEvent)
	require.Len(h.t, h.c.Todos(), before+1)
	for _, t := range h.c.Todos() {
		if t.Title == title {
			return t
		}
	}
	h.t.Fatalf("todo %q not found", title)
	return model.Todo{}
}

func eventOf(names ...string) appwrite.Event {
	return appwrite.Event{Events: names}
}
