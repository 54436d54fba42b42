package ui

import "strings"

// Marks are the open and done symbols of one kind of checklist entry.
type Marks struct {
	Open, Done string
}

// Pick returns the symbol for done.
func (m Marks) Pick(done bool) string {
	if done {
		return m.Done
	}
	return m.Open
}

// Frame is the border Panel draws with.
type Frame struct {
	TL, TR, BL, BR, H, V string
}

// Theme is how the checklist looks on a plain terminal: colours for the
// header and entry states, marks for todos, steps and the tally, and the
// panel frame.
type Theme struct {
	Heading, Section, Muted string
	Open, Done, Failed      string

	Todo, Step, Tally Marks
	Frame             Frame
}

// State returns the mark and colour of an entry.
func (t Theme) State(m Marks, done bool) (string, string) {
	if done {
		return m.Done, t.Done
	}
	return m.Open, t.Muted
}

var current Theme

func init() { SetTheme("classic") }

// SetTheme switches the palette. Unknown names fall back to classic.
func SetTheme(name string) {
	switch strings.ToLower(name) {
	case "neon":
		current = Theme{
			Heading: "\033[95m", Section: "\033[96m", Muted: fgGray,
			Open: "\033[93m", Done: fgGreen, Failed: fgRed,
			Todo:  Marks{Open: "◻", Done: "◼"},
			Step:  Marks{Open: "◦", Done: "▪"},
			Tally: Marks{Open: "•", Done: "✔"},
			Frame: Frame{TL: "╭", TR: "╮", BL: "╰", BR: "╯", H: "─", V: "│"},
		}
	case "mono":
		disableColor = true
		current = Theme{
			Todo:  Marks{Open: "[ ]", Done: "[x]"},
			Step:  Marks{Open: "( )", Done: "(x)"},
			Tally: Marks{Open: "-", Done: "x"},
			Frame: Frame{TL: "+", TR: "+", BL: "+", BR: "+", H: "-", V: "|"},
		}
	default:
		current = Theme{
			Heading: bold, Section: fgBlue, Muted: fgGray,
			Open: fgYellow, Done: fgGreen, Failed: fgRed,
			Todo:  Marks{Open: "☐", Done: "☑"},
			Step:  Marks{Open: "○", Done: "●"},
			Tally: Marks{Open: "•", Done: "✔"},
			Frame: Frame{TL: "┌", TR: "┐", BL: "└", BR: "┘", H: "─", V: "│"},
		}
	}
}

func Current() Theme { return current }
