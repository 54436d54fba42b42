package appwrite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Makepad-fr/tada/internal/appwrite/apptest"
	"github.com/Makepad-fr/tada/internal/model"
)

func nextEvent(t *testing.T, s *Stream) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}
	return Event{}
}

func TestSubscribe_DeliversDocumentEvents(t *testing.T) {
	srv, c := newSignedIn(t)
	ctx := context.Background()

	s, err := c.Subscribe(ctx, c.Config().Channels())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, c.CreateTodo(ctx, "t1", model.NewTodo{Title: "x"}))
	ev := nextEvent(t, s)
	assert.True(t, ev.Matches(DocumentWildcard))
	assert.Contains(t, ev.Events, "databases.db.collections.todos.documents.t1.create")

	srv.Publish(apptest.StepsCollectionID, "s1", "delete")
	ev = nextEvent(t, s)
	assert.Contains(t, ev.Events, "databases.db.collections.steps.documents.s1.delete")
}

func TestSubscribe_CloseIsIdempotent(t *testing.T) {
	srv, c := newSignedIn(t)
	s, err := c.Subscribe(context.Background(), c.Config().Channels())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, ok := <-s.Events()
	assert.False(t, ok, "events closed after Close")
	assert.NoError(t, s.Err())

	assert.Eventually(t, func() bool { return srv.Subscribers() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestSubscribe_ServerDropEndsStream(t *testing.T) {
	srv, c := newSignedIn(t)
	s, err := c.Subscribe(context.Background(), c.Config().Channels())
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool { return srv.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)
	srv.DropSubscribers()

	select {
	case _, ok := <-s.Events():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end")
	}
	assert.Error(t, s.Err())
}

func TestSubscribe_RejectedSession(t *testing.T) {
	srv := apptest.New(t)
	c := New(srv.Config(), nil)
	c.SetToken("stale-session")

	_, err := c.Subscribe(context.Background(), c.Config().Channels())
	var remoteErr *RemoteOpFailure
	assert.ErrorAs(t, err, &remoteErr)
}

func TestSubscribe_NoChannels(t *testing.T) {
	_, c := newSignedIn(t)
	_, err := c.Subscribe(context.Background(), nil)
	assert.Error(t, err)
}

func TestRealtimeURL(t *testing.T) {
	_, c := newSignedIn(t)
	u, err := c.realtimeURL([]string{"a", "b"})
	require.NoError(t, err)
	assert.Contains(t, u, "ws://")
	assert.Contains(t, u, "/v1/realtime?")
	assert.Contains(t, u, "channels%5B%5D=a&channels%5B%5D=b")
	assert.Contains(t, u, "project="+apptest.Project)
}
