package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// SpinnerState is where a spinner is in its life.
type SpinnerState int

const (
	SpinnerPending SpinnerState = iota
	SpinnerInProgress
	SpinnerSuccess
	SpinnerFailed
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Spinner animates one line on a terminal while a step runs, then replaces
// it with a final status line carrying the elapsed time.
type Spinner struct {
	mu       sync.Mutex
	out      io.Writer
	label    string
	state    SpinnerState
	frame    int
	started  time.Time
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	lastLen  int
}

// NewSpinner creates a spinner writing to out.
func NewSpinner(out io.Writer, label string) *Spinner {
	return &Spinner{out: out, label: label, interval: 80 * time.Millisecond}
}

// Start begins animating. Calling it twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.state == SpinnerInProgress {
		s.mu.Unlock()
		return
	}
	s.state = SpinnerInProgress
	s.started = time.Now()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.renderLocked()
	s.mu.Unlock()

	go s.animate()
}

// SetLabel replaces the label shown next to the animation.
func (s *Spinner) SetLabel(label string) {
	s.mu.Lock()
	s.label = label
	s.mu.Unlock()
}

// Success finishes with a check mark.
func (s *Spinner) Success(msg string) { s.finish(SpinnerSuccess, msg) }

// Fail finishes with a cross.
func (s *Spinner) Fail(msg string) { s.finish(SpinnerFailed, msg) }

// State returns the current state.
func (s *Spinner) State() SpinnerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Spinner) animate() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.frame = (s.frame + 1) % len(spinnerFrames)
			s.renderLocked()
			s.mu.Unlock()
		}
	}
}

func (s *Spinner) finish(state SpinnerState, msg string) {
	s.mu.Lock()
	running := s.state == SpinnerInProgress
	if running {
		close(s.stop)
	}
	s.mu.Unlock()
	if running {
		<-s.done
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
	if msg != "" {
		s.label = msg
	}

	symbol, color := SymbolSuccess, ColorSuccess
	if state == SpinnerFailed {
		symbol, color = SymbolFail, ColorError
	}
	elapsed := time.Duration(0)
	if !s.started.IsZero() {
		elapsed = time.Since(s.started)
	}

	s.clearLocked()
	fmt.Fprintf(s.out, "%s %s %s\n",
		lipgloss.NewStyle().Foreground(color).Render(symbol),
		s.label,
		lipgloss.NewStyle().Foreground(ColorMuted).Render(formatElapsed(elapsed)))
}

func (s *Spinner) renderLocked() {
	s.clearLocked()
	line := fmt.Sprintf("%s %s...",
		lipgloss.NewStyle().Foreground(ColorInfo).Render(spinnerFrames[s.frame]), s.label)
	fmt.Fprint(s.out, line)
	s.lastLen = lipgloss.Width(line)
}

func (s *Spinner) clearLocked() {
	if s.lastLen > 0 {
		fmt.Fprint(s.out, "\r"+strings.Repeat(" ", s.lastLen)+"\r")
		s.lastLen = 0
	}
}

// formatElapsed prints 0.05s, 0.3s, 12.4s.
func formatElapsed(d time.Duration) string {
	secs := d.Seconds()
	if secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	}
	return fmt.Sprintf("%.1fs", secs)
}
