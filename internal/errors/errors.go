package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig       = "CONFIG"
	ErrNotConnected = "NOT_CONNECTED"
	ErrConnection   = "CONNECTION"
	ErrCommand      = "COMMAND"
	ErrFile         = "FILE"
	ErrParse        = "PARSE"
	ErrStore        = "STORE"
	ErrSink         = "SINK"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// Rendered as:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrConnection code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrConnection,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// NotConnected is returned when a session operation runs before Connect.
func NotConnected(op string) *Error {
	return &Error{
		Code:       ErrNotConnected,
		Message:    fmt.Sprintf("Can't %s: session is not connected", op),
		Suggestion: "Call Connect before using the session.",
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Reason returns a single-line human readable description, without the
// decorations Error() adds. Used for task results and log lines.
func (e *Error) Reason() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, firstLine(e.Cause.Error()))
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// CommandError is returned when a remote command exits with a positive status.
// Many programs report failures on stdout, so both streams are kept.
type CommandError struct {
	Command string
	Status  int
	Stderr  []string
	Stdout  []string
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	detail := strings.TrimSpace(strings.Join(e.Stderr, "\n"))
	if detail == "" {
		detail = strings.TrimSpace(strings.Join(e.Stdout, "\n"))
	}
	if detail == "" {
		return fmt.Sprintf("command exited with status %d", e.Status)
	}
	return fmt.Sprintf("command exited with status %d: %s", e.Status, detail)
}

// Code reports ErrCommand so IsCode works for command failures too.
func (e *CommandError) Code() string {
	return ErrCommand
}

// IsCode checks if an error is a structured Error or CommandError with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && code == ErrCommand {
		return true
	}
	var nmErr *Error
	if errors.As(err, &nmErr) {
		return nmErr.Code == code
	}
	return false
}

// AsCommandError extracts a CommandError from the chain.
func AsCommandError(err error) (*CommandError, bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr, true
	}
	return nil, false
}

// Reason returns the one-line description of any error.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var nmErr *Error
	if errors.As(err, &nmErr) {
		return nmErr.Reason()
	}
	return firstLine(err.Error())
}

func firstLine(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "✗"))
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
