package cli

import (
	"fmt"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/ui"
)

// -------------- rendering helpers --------------

func listLines(todos []model.Todo, group bool) []string {
	th := ui.Current()
	d, p := model.Stats(todos)
	header := fmt.Sprintf("%s  %s %d  %s %d  %s %d",
		ui.C(th.Heading, "Todos"),
		ui.C(th.Done, th.Tally.Done), d,
		ui.C(th.Open, th.Tally.Open), p,
		ui.C(th.Section, "Total"), len(todos),
	)

	var lines []string
	lines = append(lines, header)
	lines = append(lines, ui.C(th.Muted, ui.ProgressBar(d, d+p, 28)))
	lines = append(lines, "")

	if group {
		lines = append(lines, groupLines(todos)...)
	} else {
		lines = append(lines, flatLines(todos, indexes(len(todos)))...)
	}
	lines = append(lines, "")
	lines = append(lines, ui.C(th.Muted, "Tip: add with `tada add \"Buy milk\"`"))
	return lines
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

// flatLines renders todos with their steps. idx holds the 1-based index
// `tada done` accepts for each todo.
func flatLines(todos []model.Todo, idx []int) []string {
	th := ui.Current()
	if len(todos) == 0 {
		return []string{ui.C(th.Muted, "no todos")}
	}
	out := make([]string, 0, len(todos))
	for i, t := range todos {
		b, color := th.State(th.Todo, t.Completed)
		out = append(out, fmt.Sprintf("%s %s %s",
			ui.Dim(fmt.Sprintf("%2d.", idx[i])), ui.C(color, b), truncate(t.Title, 80)))
		for j, s := range t.Steps {
			sb, scolor := th.State(th.Step, s.Completed)
			out = append(out, fmt.Sprintf("      %s %s %s",
				ui.Dim(fmt.Sprintf("%d.", j+1)), ui.C(scolor, sb), truncate(s.Title, 72)))
		}
	}
	return out
}

func groupLines(todos []model.Todo) []string {
	var pend, done []model.Todo
	var pendIdx, doneIdx []int
	for i, t := range todos {
		if t.Completed {
			done = append(done, t)
			doneIdx = append(doneIdx, i+1)
		} else {
			pend = append(pend, t)
			pendIdx = append(pendIdx, i+1)
		}
	}
	th := ui.Current()
	var lines []string
	lines = append(lines, ui.C(th.Section, "Pending"))
	if len(pend) == 0 {
		lines = append(lines, ui.C(th.Muted, "(none)"))
	} else {
		lines = append(lines, flatLines(pend, pendIdx)...)
	}
	lines = append(lines, "")
	lines = append(lines, ui.C(th.Section, "Done"))
	if len(done) == 0 {
		lines = append(lines, ui.C(th.Muted, "(none)"))
	} else {
		lines = append(lines, flatLines(done, doneIdx)...)
	}
	return lines
}
