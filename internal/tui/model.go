// Package tui is the interactive list: a Bubble Tea program whose model
// wraps an engine.Controller. Key presses become controller transitions;
// every other message is handed to the controller.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Makepad-fr/tada/internal/engine"
	"github.com/Makepad-fr/tada/internal/model"
)

// row is one line of the list: a todo, or one of its steps.
type row struct {
	todoID string
	stepID string
	text   string
	done   bool
}

func (r row) isStep() bool { return r.stepID != "" }

// Implement list.Item interface
func (r row) Title() string       { return r.text }
func (r row) Description() string { return "" }
func (r row) FilterValue() string { return r.text }

// Custom delegate to control how rows render (single line)
type rowDelegate struct{}

func (d rowDelegate) Height() int                               { return 1 }
func (d rowDelegate) Spacing() int                              { return 0 }
func (d rowDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d rowDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	r, _ := item.(row)
	text := r.text
	if r.done {
		text = doneStyle.Render(text)
	}
	depth := 0
	if r.isStep() {
		depth = 1
	}
	prefix := "  "
	if index == m.Index() {
		prefix = selectedStyle.Render("> ")
	}
	fmt.Fprintln(w, prefix+indent(depth)+checkbox(r.done)+" "+text)
}

type inputMode int

const (
	browsing inputMode = iota
	addingTodo
	addingStep
)

var (
	toggleBind  = key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle"))
	addBind     = key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add"))
	stepBind    = key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "add step"))
	deleteBind  = key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete"))
	refreshBind = key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh"))
	logoutBind  = key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "logout"))
)

// Model is the Bubble Tea model.
type Model struct {
	ctrl *engine.Controller
	list list.Model

	mode     inputMode
	parent   string // todo a new step goes to
	ti       textinput.Model
	inputErr string

	width, height int
}

// New builds the model around ctrl. Init establishes the session.
func New(ctrl *engine.Controller) Model {
	l := list.New(nil, rowDelegate{}, 0, 0)
	l.SetShowHelp(true)
	l.SetShowPagination(true)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle
	l.Styles.HelpStyle = helpStyle
	l.Styles.PaginationStyle = helpStyle
	l.FilterInput.Prompt = "/ "
	l.SetStatusBarItemName("row", "rows")
	extra := func() []key.Binding {
		return []key.Binding{toggleBind, addBind, stepBind, deleteBind, refreshBind, logoutBind}
	}
	l.AdditionalShortHelpKeys = extra
	l.AdditionalFullHelpKeys = extra

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 200

	m := Model{ctrl: ctrl, list: l, ti: ti, width: 80, height: 24}
	m.list.SetSize(m.width-4, m.height-5)
	m.refresh()
	return m
}

// Run starts the program on the alternate screen and disposes the push
// channel when it exits.
func Run(ctx context.Context, ctrl *engine.Controller) error {
	defer ctrl.Close()
	_, err := tea.NewProgram(New(ctrl), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m Model) Init() tea.Cmd { return m.ctrl.Init() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(m.width-4, m.height-5)
		return m, nil
	case tea.KeyMsg:
		if m.mode != browsing {
			return m.updateInput(msg)
		}
		return m.updateBrowse(msg)
	}
	cmd := m.ctrl.Update(msg)
	refresh := m.refresh()
	var lcmd tea.Cmd
	m.list, lcmd = m.list.Update(msg)
	return m, tea.Batch(cmd, refresh, lcmd)
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		title := strings.TrimSpace(m.ti.Value())
		if title == "" {
			m.inputErr = "Title cannot be empty"
			return m, nil
		}
		var cmd tea.Cmd
		if m.mode == addingStep {
			cmd = m.ctrl.AddStep(m.parent, title)
		} else {
			cmd = m.ctrl.AddTodo(title)
		}
		m.closeInput()
		return m, cmd
	case "esc":
		m.closeInput()
		return m, nil
	}
	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(msg)
	return m, cmd
}

func (m *Model) openInput(mode inputMode, placeholder string) {
	m.mode = mode
	m.inputErr = ""
	m.ti.SetValue("")
	m.ti.Placeholder = placeholder
	m.ti.Focus()
}

func (m *Model) closeInput() {
	m.mode = browsing
	m.parent = ""
	m.inputErr = ""
	m.ti.SetValue("")
	m.ti.Blur()
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		return m, m.ctrl.Establish()
	case "L":
		cmd := m.ctrl.Terminate()
		return m, tea.Batch(cmd, m.refresh())
	case "a":
		if m.ctrl.Authenticated() {
			m.openInput(addingTodo, "New todo...")
		}
		return m, nil
	}

	r, ok := m.selected()
	switch msg.String() {
	case " ":
		if !ok {
			return m, nil
		}
		if r.isStep() {
			return m, m.ctrl.ToggleStep(r.todoID, r.stepID)
		}
		return m, m.ctrl.ToggleTodo(r.todoID)
	case "s":
		if ok {
			m.openInput(addingStep, "New step...")
			m.parent = r.todoID
		}
		return m, nil
	case "d":
		if !ok {
			return m, nil
		}
		if r.isStep() {
			return m, m.ctrl.DeleteStep(r.todoID, r.stepID)
		}
		return m, m.ctrl.DeleteTodo(r.todoID)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) selected() (row, bool) {
	r, ok := m.list.SelectedItem().(row)
	return r, ok
}

// refresh rebuilds the rows from the mirror, keeping the cursor on the
// same todo or step when it still exists.
func (m *Model) refresh() tea.Cmd {
	prev, hadPrev := m.selected()
	todos := m.ctrl.Todos()
	rs := rows(todos)
	items := make([]list.Item, len(rs))
	for i, r := range rs {
		items[i] = r
	}
	cmd := m.list.SetItems(items)
	if hadPrev {
		for i, r := range rs {
			if r.todoID == prev.todoID && r.stepID == prev.stepID {
				m.list.Select(i)
				break
			}
		}
	}

	done, pending := model.Stats(todos)
	email := ""
	if id := m.ctrl.Identity(); id != nil {
		email = id.Email
		if email == "" {
			email = id.Name
		}
	}
	m.list.Title = header(email, done, pending)
	return cmd
}

func rows(todos []model.Todo) []row {
	out := make([]row, 0, len(todos))
	for _, t := range todos {
		out = append(out, row{todoID: t.ID, text: t.Title, done: t.Completed})
		for _, s := range t.Steps {
			out = append(out, row{todoID: t.ID, stepID: s.ID, text: s.Title, done: s.Completed})
		}
	}
	return out
}

func (m Model) View() string {
	listHeight := m.height - 5
	if m.mode != browsing {
		listHeight -= 3
	}
	m.list.SetSize(m.width-4, listHeight)

	content := m.list.View()
	if m.mode != browsing {
		title := "Add todo"
		if m.mode == addingStep {
			title = "Add step"
		}
		if m.inputErr != "" {
			title += ": " + errorStyle.Render(m.inputErr)
		}
		content += "\n" + panelString(title+"\n"+m.ti.View())
	}
	content += "\n" + m.status()
	return panelString(content)
}

// status is the bottom line: the last failure, or who is signed in.
func (m Model) status() string {
	if n := m.ctrl.Notice(); n != nil {
		return errorStyle.Render("✖ failed to " + n.Op + ": " + n.Err.Error())
	}
	if !m.ctrl.Authenticated() {
		return mutedStyle.Render("not signed in; run `tada auth login` then press r")
	}
	if !m.ctrl.Loaded() {
		return mutedStyle.Render("loading...")
	}
	return ""
}
