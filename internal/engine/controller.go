package engine

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Makepad-fr/tada/internal/appwrite"
	"github.com/Makepad-fr/tada/internal/model"
)

const defaultTimeout = 15 * time.Second

// Options tune a Controller.
type Options struct {
	// Channels are the push channels to open once signed in.
	Channels []string
	// Timeout bounds each remote call.
	Timeout time.Duration
	// Live opens the push channel. One-shot commands leave it off.
	Live bool
	// Writer overrides the read-modify-write strategy.
	Writer Writer
}

// Notice is the last remote failure, kept for display. Nothing retries it.
type Notice struct {
	Op  string
	Err error
	At  time.Time
}

// Controller owns the application state: identity, subscription slot,
// mirror and the failure notice. It is not safe for concurrent use; call
// it from the event loop only.
type Controller struct {
	ctx     context.Context
	opt     Options
	backend Backend
	writer  Writer

	gate   Gate
	mirror Mirror
	slot   slot
	epoch  uint64
	notice *Notice

	// listen starts consuming a subscription; replaced in tests.
	listen func(*Subscription) tea.Cmd
}

// New builds a signed-out controller. ctx bounds every remote call and the
// lifetime of push channels.
func New(ctx context.Context, backend Backend, opt Options) *Controller {
	if opt.Timeout <= 0 {
		opt.Timeout = defaultTimeout
	}
	w := opt.Writer
	if w == nil {
		w = NewReadModifyWriteWriter(backend.Documents)
	}
	c := &Controller{
		ctx:     ctx,
		opt:     opt,
		backend: backend,
		writer:  w,
		gate:    Gate{provider: backend.Identity},
		listen:  waitForEvent,
	}
	c.mirror.reset()
	return c
}

// ---------------------------------------------------
// Read side
// ---------------------------------------------------

func (c *Controller) Identity() *model.Identity { return c.gate.Identity() }
func (c *Controller) Authenticated() bool       { return c.gate.Authenticated() }
func (c *Controller) Todos() []model.Todo       { return c.mirror.Todos() }
func (c *Controller) Loaded() bool              { return c.mirror.Loaded() }
func (c *Controller) Subscribed() bool          { return c.slot.active != nil }
func (c *Controller) Notice() *Notice           { return c.notice }

// Todo looks a todo up in the mirror.
func (c *Controller) Todo(id string) (model.Todo, bool) { return c.mirror.find(id) }

// ---------------------------------------------------
// Transitions
// ---------------------------------------------------

// Init establishes the session.
func (c *Controller) Init() tea.Cmd { return c.Establish() }

// Establish re-checks the session with the identity provider.
func (c *Controller) Establish() tea.Cmd {
	epoch := c.epoch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(c.ctx, c.opt.Timeout)
		defer cancel()
		return establishedMsg{epoch: epoch, identity: c.gate.check(ctx)}
	}
}

// Login starts the provider's redirect flow; see Gate.Login.
func (c *Controller) Login(provider, returnURL string, open func(string) error) {
	c.gate.Login(provider, returnURL, open)
}

// Terminate signs out. Local state is cleared right away, before the
// remote session is deleted, so nothing still in flight can repopulate it.
func (c *Controller) Terminate() tea.Cmd {
	if !c.gate.Authenticated() {
		return nil
	}
	c.signOut()
	epoch := c.epoch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(c.ctx, c.opt.Timeout)
		defer cancel()
		return terminatedMsg{epoch: epoch, err: c.backend.Identity.DeleteSession(ctx, "current")}
	}
}

// Reload re-reads the whole todos collection.
func (c *Controller) Reload() tea.Cmd {
	if !c.gate.Authenticated() {
		return nil
	}
	epoch := c.epoch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(c.ctx, c.opt.Timeout)
		defer cancel()
		todos, err := c.backend.Documents.ListTodos(ctx)
		return reloadedMsg{epoch: epoch, todos: todos, err: err}
	}
}

func (c *Controller) subscribe() tea.Cmd {
	if !c.opt.Live || c.backend.Notifier == nil {
		return nil
	}
	epoch := c.epoch
	id := c.slot.reserve()
	channels := c.opt.Channels
	return func() tea.Msg {
		stream, err := c.backend.Notifier.Open(c.ctx, channels)
		return subscribedMsg{epoch: epoch, id: id, stream: stream, err: err}
	}
}

// Close disposes the push channel. The controller keeps its state.
func (c *Controller) Close() {
	c.slot.dispose()
}

// signOut drops the identity, the subscription and the mirror, and starts a
// new epoch.
func (c *Controller) signOut() {
	c.epoch++
	c.slot.dispose()
	c.mirror.reset()
	c.gate.clear()
}

// Update applies one message and returns follow-up work.
func (c *Controller) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case establishedMsg:
		return c.onEstablished(msg)
	case terminatedMsg:
		if msg.err != nil && msg.epoch == c.epoch {
			c.fail("logout", msg.err)
		}
		return nil
	case subscribedMsg:
		return c.onSubscribed(msg)
	case changeMsg:
		return c.onChange(msg)
	case streamClosedMsg:
		if c.slot.current(msg.subID) {
			slog.Warn("push channel closed", "subscription", msg.subID)
			c.slot.dispose()
		}
		return nil
	case reloadedMsg:
		return c.onReloaded(msg)
	case mutationMsg:
		return c.onMutation(msg)
	}
	return nil
}

func (c *Controller) onEstablished(msg establishedMsg) tea.Cmd {
	if msg.epoch != c.epoch {
		slog.Debug("dropping stale session check", "epoch", msg.epoch)
		return nil
	}
	if msg.identity == nil {
		// a rejected check changes nothing; only Terminate signs out
		return nil
	}

	current := c.gate.Identity()
	if current != nil && current.ID == msg.identity.ID {
		c.gate.set(msg.identity)
		cmds := []tea.Cmd{c.Reload()}
		if c.slot.active == nil && c.slot.pending == 0 {
			cmds = append(cmds, c.subscribe())
		}
		return tea.Batch(cmds...)
	}

	// new epoch even from signed out, so a late logout result
	// cannot reach this session
	c.signOut()
	c.gate.set(msg.identity)
	slog.Info("signed in", "user", msg.identity.ID)
	return tea.Batch(c.subscribe(), c.Reload())
}

func (c *Controller) onSubscribed(msg subscribedMsg) tea.Cmd {
	if msg.err != nil {
		if msg.epoch == c.epoch && msg.id == c.slot.pending {
			c.slot.pending = 0
			c.fail("subscribe", msg.err)
		}
		return nil
	}
	if msg.epoch != c.epoch {
		_ = msg.stream.Close()
		return nil
	}
	sub, ok := c.slot.attach(msg.id, msg.stream)
	if !ok {
		return nil
	}
	slog.Debug("push channel open", "subscription", sub.id, "channels", c.opt.Channels)
	return c.listen(sub)
}

func (c *Controller) onChange(msg changeMsg) tea.Cmd {
	if !c.slot.current(msg.subID) {
		return nil
	}
	slog.Debug("change event", "events", msg.event.Events)
	next := c.listen(c.slot.active)
	if !msg.event.Matches(appwrite.DocumentWildcard) {
		return next
	}
	return tea.Batch(c.Reload(), next)
}

func (c *Controller) onReloaded(msg reloadedMsg) tea.Cmd {
	if msg.epoch != c.epoch {
		slog.Debug("dropping stale reload", "epoch", msg.epoch)
		return nil
	}
	if msg.err != nil {
		c.fail("fetch todos", msg.err)
		return nil
	}
	c.mirror.replace(msg.todos)
	c.notice = nil
	return nil
}

func (c *Controller) onMutation(msg mutationMsg) tea.Cmd {
	if msg.epoch != c.epoch {
		return nil
	}
	if msg.err != nil {
		c.fail(msg.op, msg.err)
		return nil
	}
	slog.Debug("mutation done", "op", msg.op, "todo", msg.todoID)
	c.notice = nil
	return nil
}

// fail logs a swallowed remote failure and keeps it as the notice.
func (c *Controller) fail(op string, err error) {
	slog.Error("failed to "+op, "error", err)
	c.notice = &Notice{Op: op, Err: err, At: time.Now()}
}
