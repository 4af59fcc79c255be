package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodes(t *testing.T) {
	codes := []string{
		ErrConfig,
		ErrNotConnected,
		ErrConnection,
		ErrCommand,
		ErrFile,
		ErrParse,
		ErrStore,
		ErrSink,
	}

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.NotEmpty(t, code, "error code should not be empty")
		assert.False(t, seen[code], "error code %q should be unique", code)
		seen[code] = true
	}
}

func TestNew(t *testing.T) {
	err := New(ErrConfig, "Invalid ssh.timeout", "Use a duration like 10s")

	assert.Equal(t, ErrConfig, err.Code)
	assert.Equal(t, "Invalid ssh.timeout", err.Message)
	assert.Equal(t, "Use a duration like 10s", err.Suggestion)
	assert.Nil(t, err.Cause)
}

func TestError_Format(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:22: i/o timeout")
	err := WrapWithCode(cause, ErrConnection, "Can't reach 'web1'", "Check the host is up")

	out := err.Error()
	lines := strings.Split(out, "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "✗ Can't reach 'web1'", lines[0])
	assert.Contains(t, out, "i/o timeout")
	assert.Contains(t, out, "Check the host is up")
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := WrapWithCode(cause, ErrFile, "Write failed", "")

	assert.True(t, errors.Is(err, cause))
}

func TestWrap_DefaultsToConnection(t *testing.T) {
	err := Wrap(errors.New("boom"), "Handshake failed")
	assert.Equal(t, ErrConnection, err.Code)
}

func TestNotConnected(t *testing.T) {
	err := NotConnected("execute")
	assert.True(t, IsCode(err, ErrNotConnected))
	assert.Contains(t, err.Message, "execute")
}

func TestIsCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{"nil error", nil, ErrConfig, false},
		{"plain error", errors.New("x"), ErrConfig, false},
		{"matching code", New(ErrParse, "bad", ""), ErrParse, true},
		{"different code", New(ErrParse, "bad", ""), ErrSink, false},
		{"wrapped with fmt", fmt.Errorf("outer: %w", New(ErrStore, "x", "")), ErrStore, true},
		{"command error", &CommandError{Status: 1}, ErrCommand, true},
		{"wrapped command error", WrapWithCode(&CommandError{Status: 2}, ErrCommand, "x", ""), ErrCommand, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCode(tt.err, tt.code))
		})
	}
}

func TestCommandError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *CommandError
		want string
	}{
		{
			name: "stderr preferred",
			err:  &CommandError{Status: 1, Stderr: []string{"permission denied"}, Stdout: []string{"ignored"}},
			want: "command exited with status 1: permission denied",
		},
		{
			name: "falls back to stdout",
			err:  &CommandError{Status: 2, Stdout: []string{"usage: df"}},
			want: "command exited with status 2: usage: df",
		},
		{
			name: "no output",
			err:  &CommandError{Status: 127},
			want: "command exited with status 127",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAsCommandError(t *testing.T) {
	wrapped := fmt.Errorf("fetch cpu: %w", &CommandError{Status: 3})

	cmdErr, ok := AsCommandError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 3, cmdErr.Status)

	_, ok = AsCommandError(errors.New("nope"))
	assert.False(t, ok)
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", Reason(nil))
	assert.Equal(t, "plain", Reason(errors.New("plain\nsecond line")))

	err := WrapWithCode(errors.New("auth failed"), ErrConnection, "Could not connect", "Check the password")
	assert.Equal(t, "Could not connect: auth failed", Reason(err))

	assert.Equal(t, "Bad thing", Reason(New(ErrConfig, "Bad thing", "fix it")))
}
