package engine

import (
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Subscription is one open push channel. Dispose is idempotent.
type Subscription struct {
	id     uint64
	stream EventStream
	once   sync.Once
}

// ID identifies the subscription within its controller.
func (s *Subscription) ID() uint64 { return s.id }

// Dispose closes the channel. Calling it again, or on a nil subscription,
// does nothing.
func (s *Subscription) Dispose() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if err := s.stream.Close(); err != nil {
			slog.Warn("closing subscription", "id", s.id, "error", err)
		}
	})
}

// waitForEvent reads one event. The controller issues it again after each
// delivery, which makes it the single consumer of the stream.
func waitForEvent(s *Subscription) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-s.stream.Events()
		if !ok {
			return streamClosedMsg{subID: s.id}
		}
		return changeMsg{subID: s.id, event: ev}
	}
}

// slot holds at most one subscription. A new open always disposes the
// previous one first.
type slot struct {
	active  *Subscription
	pending uint64
	lastID  uint64
}

// reserve disposes whatever is open and returns the id the next stream
// must carry to be attached.
func (sl *slot) reserve() uint64 {
	sl.dispose()
	sl.lastID++
	sl.pending = sl.lastID
	return sl.pending
}

// attach installs stream if id is the reserved one. Otherwise the stream
// arrived late and is closed.
func (sl *slot) attach(id uint64, stream EventStream) (*Subscription, bool) {
	if id == 0 || id != sl.pending {
		_ = stream.Close()
		return nil, false
	}
	sl.active.Dispose()
	sl.active = &Subscription{id: id, stream: stream}
	sl.pending = 0
	return sl.active, true
}

func (sl *slot) dispose() {
	sl.active.Dispose()
	sl.active = nil
	sl.pending = 0
}

func (sl *slot) current(id uint64) bool {
	return sl.active != nil && sl.active.id == id
}
