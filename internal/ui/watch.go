package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/monitor"
	"github.com/oxyio/netmon/internal/stats"
)

// Key bindings.
const (
	KeyQuit    = "q"
	KeyQuitAlt = "ctrl+c"
	KeyNext    = "tab"
	KeyNextAlt = "right"
	KeyPrev    = "shift+tab"
	KeyPrevAlt = "left"
	KeyHelp    = "?"
	KeyClose   = "esc"
	KeyClear   = "c"
)

const (
	sparkWidth = 24
	// header, tabs, spacing and footer
	chromeLines = 6
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(ColorInfo).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	errorStyle  = lipgloss.NewStyle().Foreground(ColorError)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarning)
	tabStyle    = lipgloss.NewStyle().Foreground(ColorMuted).Padding(0, 1)
	activeTab   = lipgloss.NewStyle().Foreground(ColorPrimary).Background(ColorSecondary).Bold(true).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(ColorPrimary)
	footerStyle = lipgloss.NewStyle().Foreground(ColorMuted)
)

// tickMsg carries one monitor tick into the program.
type tickMsg monitor.Tick

// closedMsg reports that the tick channel was closed.
type closedMsg struct{}

// Watch is the Bubble Tea model of `netmon watch`: one device, one tab per
// category, a sparkline per stat.
type Watch struct {
	deviceID string
	ticks    <-chan monitor.Tick
	history  *History

	last     monitor.Tick
	count    int
	selected int
	closed   bool
	showHelp bool
	quitting bool

	width, height int
	viewport      viewport.Model
	ready         bool
}

// NewWatch creates the model. It reads ticks until the channel closes.
func NewWatch(deviceID string, ticks <-chan monitor.Tick) Watch {
	return Watch{
		deviceID: deviceID,
		ticks:    ticks,
		history:  NewHistory(DefaultHistorySize),
	}
}

func waitForTick(ticks <-chan monitor.Tick) tea.Cmd {
	return func() tea.Msg {
		t, ok := <-ticks
		if !ok {
			return closedMsg{}
		}
		return tickMsg(t)
	}
}

// Init implements tea.Model.
func (w Watch) Init() tea.Cmd {
	return waitForTick(w.ticks)
}

// Update implements tea.Model.
func (w Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if handled, cmd := w.handleKey(msg.String()); handled {
			w.refresh()
			return w, cmd
		}
	case tea.WindowSizeMsg:
		w.width, w.height = msg.Width, msg.Height
		height := max(1, msg.Height-chromeLines)
		if !w.ready {
			w.viewport = viewport.New(msg.Width, height)
			w.ready = true
		} else {
			w.viewport.Width, w.viewport.Height = msg.Width, height
		}
		w.refresh()
		return w, nil
	case tickMsg:
		t := monitor.Tick(msg)
		w.last = t
		w.count++
		for _, r := range t.Results {
			w.history.Push(r.Samples)
		}
		w.refresh()
		return w, waitForTick(w.ticks)
	case closedMsg:
		w.closed = true
		return w, nil
	}

	var cmd tea.Cmd
	w.viewport, cmd = w.viewport.Update(msg)
	return w, cmd
}

// handleKey applies a key press and reports whether it was consumed.
func (w *Watch) handleKey(key string) (bool, tea.Cmd) {
	if key == KeyHelp {
		w.showHelp = !w.showHelp
		return true, nil
	}
	if w.showHelp && key == KeyClose {
		w.showHelp = false
		return true, nil
	}

	categories := stats.Categories()
	switch key {
	case KeyQuit, KeyQuitAlt:
		w.quitting = true
		return true, tea.Quit
	case KeyNext, KeyNextAlt:
		w.selected = (w.selected + 1) % len(categories)
		return true, nil
	case KeyPrev, KeyPrevAlt:
		w.selected = (w.selected - 1 + len(categories)) % len(categories)
		return true, nil
	case KeyClear:
		w.history.Clear()
		return true, nil
	}

	if len(key) == 1 && key[0] >= '1' && int(key[0]-'1') < len(categories) {
		w.selected = int(key[0] - '1')
		return true, nil
	}
	return false, nil
}

// Selected returns the category on screen.
func (w Watch) Selected() stats.Category {
	return stats.Categories()[w.selected]
}

// Ticks returns how many ticks were received.
func (w Watch) Ticks() int { return w.count }

// Closed reports whether the tick channel was closed.
func (w Watch) Closed() bool { return w.closed }

// History returns the recorded series.
func (w Watch) History() *History { return w.history }

func (w *Watch) refresh() {
	if w.ready {
		w.viewport.SetContent(w.renderBody())
	}
}

// View implements tea.Model.
func (w Watch) View() string {
	if w.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(w.renderHeader())
	b.WriteString("\n")
	b.WriteString(w.renderTabs())
	b.WriteString("\n\n")
	if w.showHelp {
		b.WriteString(renderHelp())
	} else if w.ready {
		b.WriteString(w.viewport.View())
	} else {
		b.WriteString(w.renderBody())
	}
	b.WriteString("\n\n")
	b.WriteString(w.renderFooter())
	return b.String()
}

func (w Watch) renderHeader() string {
	title := titleStyle.Render("netmon watch")
	info := fmt.Sprintf(" | %s | %d ticks", w.deviceID, w.count)
	if w.count > 0 {
		info += fmt.Sprintf(" | at %s | took %s",
			w.last.At.Local().Format("15:04:05"), formatElapsed(w.last.Duration))
	}
	return title + mutedStyle.Render(info)
}

func (w Watch) renderTabs() string {
	tabs := make([]string, 0, len(stats.Categories()))
	for i, c := range stats.Categories() {
		label := fmt.Sprintf("%d %s", i+1, c)
		if r, ok := w.last.Result(c); ok && r.Err != nil {
			label += " " + SymbolFail
		}
		if i == w.selected {
			tabs = append(tabs, activeTab.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (w Watch) renderBody() string {
	category := w.Selected()
	if w.count == 0 {
		return mutedStyle.Render("Waiting for the first reading...")
	}

	r, ok := w.last.Result(category)
	if !ok {
		return mutedStyle.Render("No reading for " + string(category))
	}
	if r.Err != nil {
		return errorStyle.Render(SymbolFail + " " + errors.Reason(r.Err))
	}
	if r.Baseline {
		return warnStyle.Render(SymbolProgress + " Collecting a baseline, deltas start with the next tick")
	}
	if len(r.Samples) == 0 {
		return mutedStyle.Render("Nothing reported")
	}

	var b strings.Builder
	for _, s := range r.Samples {
		series := SeriesOf(s)
		spark := RenderSparkline(w.history.Last(series, sparkWidth), sparkWidth, colorFor(category))
		fmt.Fprintf(&b, "%s %s %s  %s\n",
			labelStyle.Render(padRight(s.Key, 16)),
			mutedStyle.Render(padRight(s.Detail, 20)),
			padLeft(FormatValue(s), 12),
			spark)
	}
	if r.PublishErr != nil {
		b.WriteString(warnStyle.Render("publish: "+errors.Reason(r.PublishErr)) + "\n")
	}
	if r.IndexErr != nil {
		b.WriteString(warnStyle.Render("index: "+errors.Reason(r.IndexErr)) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (w Watch) renderFooter() string {
	text := "tab/←→ switch  1-5 jump  ↑↓ scroll  c clear  ? help  q quit"
	if w.closed {
		text = "monitor stopped  |  " + text
	}
	return footerStyle.Render(text)
}

func renderHelp() string {
	rows := [][2]string{
		{"tab, →", "next category"},
		{"shift+tab, ←", "previous category"},
		{"1-5", "jump to a category"},
		{"↑ ↓ pgup pgdn", "scroll"},
		{"c", "clear sparkline history"},
		{"?", "toggle this help"},
		{"q, ctrl+c", "quit"},
	}
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(labelStyle.Render(padRight(r[0], 16)) + mutedStyle.Render(r[1]) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func padRight(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func padLeft(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}
