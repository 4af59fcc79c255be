package ui

import (
	stderrors "errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/monitor"
	"github.com/oxyio/netmon/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testTick(rx float64) monitor.Tick {
	return monitor.Tick{
		DeviceID: "sw1",
		At:       at,
		Duration: 1200 * time.Millisecond,
		Results: []monitor.Result{
			{Category: stats.CPU, Samples: []stats.Sample{sample(stats.CPU, "cpu", "user", 42.5)}},
			{Category: stats.Memory, Err: errors.New(errors.ErrParse, "Could not parse memory output", "")},
			{Category: stats.Disk, Samples: []stats.Sample{sample(stats.Disk, "/", "used", 1000)}},
			{Category: stats.DiskIO, Baseline: true},
			{Category: stats.NetworkIO,
				Samples:    []stats.Sample{sample(stats.NetworkIO, "eth0", "receive_bytes", rx)},
				PublishErr: stderrors.New("redis: connection refused")},
		},
	}
}

func send(t *testing.T, w Watch, msg tea.Msg) (Watch, tea.Cmd) {
	t.Helper()
	next, cmd := w.Update(msg)
	model, ok := next.(Watch)
	require.True(t, ok)
	return model, cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestWatch_InitReadsTicks(t *testing.T) {
	ticks := make(chan monitor.Tick, 1)
	w := NewWatch("sw1", ticks)

	ticks <- testTick(500)
	msg := w.Init()()
	_, ok := msg.(tickMsg)
	assert.True(t, ok)

	close(ticks)
	assert.Equal(t, closedMsg{}, w.Init()())
}

func TestWatch_RecordsTicks(t *testing.T) {
	w := NewWatch("sw1", make(chan monitor.Tick))
	assert.Contains(t, w.View(), "Waiting for the first reading")

	w, _ = send(t, w, tea.WindowSizeMsg{Width: 120, Height: 40})
	w, cmd := send(t, w, tickMsg(testTick(500)))
	require.NotNil(t, cmd, "keeps listening for ticks")
	w, _ = send(t, w, tickMsg(testTick(-1000)))

	assert.Equal(t, 2, w.Ticks())
	assert.Equal(t, stats.CPU, w.Selected())

	view := w.View()
	assert.Contains(t, view, "netmon watch | sw1 | 2 ticks")
	assert.Contains(t, view, "took 1.2s")
	assert.Contains(t, view, "42.5%")
	assert.Contains(t, view, "2 memory "+SymbolFail, "failed categories are flagged on their tab")

	rx := Series{stats.NetworkIO, "eth0", "receive_bytes"}
	assert.Equal(t, []float64{500, -1000}, w.History().Last(rx, 10))
}

func TestWatch_CategoryViews(t *testing.T) {
	w := NewWatch("sw1", make(chan monitor.Tick))
	w, _ = send(t, w, tea.WindowSizeMsg{Width: 120, Height: 40})
	w, _ = send(t, w, tickMsg(testTick(-1000)))

	w, _ = send(t, w, key("2"))
	assert.Equal(t, stats.Memory, w.Selected())
	assert.Contains(t, w.View(), "Could not parse memory output")

	w, _ = send(t, w, key("tab"))
	assert.Equal(t, stats.Disk, w.Selected())
	assert.Contains(t, w.View(), "1.0 MB")

	w, _ = send(t, w, key("tab"))
	assert.Equal(t, stats.DiskIO, w.Selected())
	assert.Contains(t, w.View(), "Collecting a baseline")

	w, _ = send(t, w, key("tab"))
	view := w.View()
	assert.Contains(t, view, "-1.0 kB")
	assert.Contains(t, view, "publish: redis: connection refused")

	w, _ = send(t, w, key("tab"))
	assert.Equal(t, stats.CPU, w.Selected(), "wraps around")

	w, _ = send(t, w, key("shift+tab"))
	assert.Equal(t, stats.NetworkIO, w.Selected())
}

func TestWatch_HelpAndQuit(t *testing.T) {
	w := NewWatch("sw1", make(chan monitor.Tick))

	w, _ = send(t, w, key("?"))
	assert.Contains(t, w.View(), "toggle this help")
	w, _ = send(t, w, tea.KeyMsg{Type: tea.KeyEsc})
	assert.NotContains(t, w.View(), "toggle this help")

	w, cmd := send(t, w, key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, w.View())

	_, cmd = send(t, NewWatch("sw1", nil), key("ctrl+c"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestWatch_ClearAndClose(t *testing.T) {
	w := NewWatch("sw1", make(chan monitor.Tick))
	w, _ = send(t, w, tickMsg(testTick(500)))

	w, _ = send(t, w, key("c"))
	assert.Empty(t, w.History().Series(stats.NetworkIO))

	w, cmd := send(t, w, closedMsg{})
	assert.Nil(t, cmd)
	assert.True(t, w.Closed())
	assert.Contains(t, w.View(), "monitor stopped")
}
