package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "░░░░░░░░░░   0%", ProgressBar(0, 0, 10))
	assert.Equal(t, "█████░░░░░  50%", ProgressBar(1, 2, 10))
	assert.Equal(t, "█████ 100%", ProgressBar(3, 3, 1), "width is clamped")
}

func TestPanel_PadsToWidestLine(t *testing.T) {
	SetTheme("mono")
	defer func() {
		SetColorForcing(false, false)
		SetTheme("classic")
	}()

	var buf bytes.Buffer
	Panel(&buf, []string{"ab", "☐ wide", ""})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "+--------+", lines[0])
	assert.Equal(t, "| ab     |", lines[1])
	assert.Equal(t, "| ☐ wide |", lines[2])
	assert.Equal(t, "|        |", lines[3])
}

func TestC_PlainWhenNotForced(t *testing.T) {
	SetColorForcing(false, true)
	assert.Equal(t, "x", C(fgRed, "x"))

	SetColorForcing(true, false)
	defer SetColorForcing(false, false)
	assert.Equal(t, fgRed+"x"+reset, C(fgRed, "x"))
	assert.Equal(t, "x", C("", "x"))
}

func TestOKFail(t *testing.T) {
	SetColorForcing(false, true)
	defer SetColorForcing(false, false)

	var buf bytes.Buffer
	OK(&buf, "added")
	Fail(&buf, "nope")
	assert.Equal(t, "✔ added\n✖ nope\n", buf.String())
}

func TestSetTheme_UnknownIsClassic(t *testing.T) {
	SetTheme("nope")
	assert.Equal(t, "☑", Current().Todo.Done)
	SetTheme("neon")
	assert.Equal(t, "◼", Current().Todo.Done)
	SetTheme("classic")
}

func TestTheme_State(t *testing.T) {
	SetTheme("classic")
	th := Current()

	mark, color := th.State(th.Step, true)
	assert.Equal(t, "●", mark)
	assert.Equal(t, fgGreen, color)

	mark, color = th.State(th.Todo, false)
	assert.Equal(t, "☐", mark)
	assert.Equal(t, fgGray, color)

	assert.Equal(t, "✔", th.Tally.Pick(true))
}
