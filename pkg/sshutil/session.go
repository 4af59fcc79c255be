package sshutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/oxyio/netmon/internal/errors"
)

// Session owns one authenticated channel to one device and, once Put is
// used, one file-transfer sub-channel. Connect and Close must not race.
// Execute may run concurrently once connected since every call opens its
// own SSH channel.
type Session struct {
	Endpoint Endpoint
	Dial     DialFunc

	mu     sync.Mutex
	client SSHClient
	files  FileTransfer
}

// NewSession creates a disconnected session for the endpoint.
func NewSession(ep Endpoint, dial DialFunc) *Session {
	return &Session{Endpoint: ep, Dial: dial}
}

// Connect opens the channel. A non-empty password wins over the
// endpoint's key. Connecting an already connected session is a no-op.
func (s *Session) Connect(ctx context.Context, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}
	if s.Dial == nil {
		return errors.New(errors.ErrConnection,
			fmt.Sprintf("No dialer configured for '%s'", s.Endpoint.Host),
			"Construct the session with NewSession.")
	}

	client, err := s.Dial(ctx, s.Endpoint, password)
	if err != nil {
		if errors.IsCode(err, errors.ErrConnection) {
			return err
		}
		return errors.WrapWithCode(err, errors.ErrConnection,
			fmt.Sprintf("Could not connect to '%s'", s.Endpoint.Host),
			"Check the device's host, port and credentials.")
	}
	s.client = client
	return nil
}

// Connected reports whether Connect succeeded and Close hasn't run.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

func (s *Session) current() SSHClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Execute runs cmd through a shell, elevated with sudo when asked, and
// returns its stdout lines. Exit status 0 and the missing-status sentinel
// both count as success.
func (s *Session) Execute(cmd string, sudo bool) ([]string, error) {
	client := s.current()
	if client == nil {
		return nil, errors.NotConnected("execute")
	}

	stdout, stderr, status, err := client.Exec(WrapCommand(cmd, sudo))
	if err != nil {
		if errors.IsCode(err, errors.ErrConnection) {
			return nil, err
		}
		return nil, errors.WrapWithCode(err, errors.ErrConnection,
			fmt.Sprintf("Channel to '%s' failed", s.Endpoint.Host),
			"Open a fresh session.")
	}

	out := splitLines(stdout)
	if status > 0 {
		return nil, &errors.CommandError{
			Command: cmd,
			Status:  status,
			Stderr:  splitLines(stderr),
			Stdout:  out,
		}
	}
	return out, nil
}

// ExecuteMulti runs commands in order without sudo and stops at the first failure.
func (s *Session) ExecuteMulti(cmds ...string) ([][]string, error) {
	outputs := make([][]string, 0, len(cmds))
	for _, cmd := range cmds {
		out, err := s.Execute(cmd, false)
		if err != nil {
			return outputs, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// Put writes data to remotePath. The file-transfer channel is opened on
// first use and kept for the session's lifetime.
func (s *Session) Put(data []byte, remotePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return errors.NotConnected("put")
	}

	if s.files == nil {
		files, err := s.client.NewFileTransfer()
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrFile,
				fmt.Sprintf("Couldn't open a file transfer channel to '%s'", s.Endpoint.Host),
				"Check that the SFTP subsystem is enabled in the device's sshd.")
		}
		s.files = files
	}

	if err := s.files.WriteFile(remotePath, data); err != nil {
		return errors.WrapWithCode(err, errors.ErrFile,
			fmt.Sprintf("Couldn't write %s on '%s'", remotePath, s.Endpoint.Host),
			"Check the remote path exists and is writable by the device user.")
	}
	return nil
}

// Close releases the file-transfer and SSH channels. Safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.files != nil {
		firstErr = s.files.Close()
		s.files = nil
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.client = nil
	}
	return firstErr
}

// WrapCommand wraps cmd in bash -c, and sudo -S when elevated.
func WrapCommand(cmd string, sudo bool) string {
	wrapped := "bash -c " + ShellQuote(cmd)
	if sudo {
		return "sudo -S " + wrapped
	}
	return wrapped
}

// ShellQuote single-quotes s for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// splitLines splits output into lines, dropping the trailing newline.
func splitLines(b []byte) []string {
	s := strings.TrimRight(string(b), "\n")
	if s == "" {
		return []string{}
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
