package engine

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Drive runs cmd and everything it leads to on the calling goroutine until
// no work is left. It is the event loop for one-shot commands, so the
// controller must not be live: a push channel would never run dry.
func Drive(c *Controller, cmd tea.Cmd) {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			queue = append(queue, c.Update(msg))
		}
	}
}
