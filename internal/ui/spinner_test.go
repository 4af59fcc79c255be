package ui

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner_Success(t *testing.T) {
	var out syncBuffer
	s := NewSpinner(&out, "Connecting to sw1")
	s.interval = time.Millisecond

	s.Start()
	s.Start()
	assert.Equal(t, SpinnerInProgress, s.State())
	time.Sleep(10 * time.Millisecond)
	s.Success("Key installed on sw1")

	assert.Equal(t, SpinnerSuccess, s.State())
	text := out.String()
	assert.Contains(t, text, "Connecting to sw1...")
	assert.True(t, strings.HasSuffix(text, "s\n"))
	assert.Contains(t, text, SymbolSuccess+" Key installed on sw1 ")
}

func TestSpinner_FailKeepsLabel(t *testing.T) {
	var out syncBuffer
	s := NewSpinner(&out, "Connecting to sw1")
	s.Start()
	s.Fail("")

	assert.Equal(t, SpinnerFailed, s.State())
	assert.Contains(t, out.String(), SymbolFail+" Connecting to sw1 ")
}

func TestSpinner_FinishWithoutStart(t *testing.T) {
	var out syncBuffer
	s := NewSpinner(&out, "Generating key")
	s.Success("")
	assert.Contains(t, out.String(), SymbolSuccess+" Generating key 0.00s")
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0.05s", formatElapsed(50*time.Millisecond))
	assert.Equal(t, "1.2s", formatElapsed(1230*time.Millisecond))
}
