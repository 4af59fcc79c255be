package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"

	"github.com/oxyio/netmon/internal/errors"
	"golang.org/x/crypto/ssh"
)

// ExitStatusMissing is reported when the server closes the channel without
// sending an exit status.
const ExitStatusMissing = -1

// Exec runs a command on the remote host and returns the output.
// Returns stdout, stderr, exit code, and any error.
// A non-nil error means the channel failed and the connection should be dropped.
func (c *Client) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	session, err := c.NewSession()
	if err != nil {
		return nil, nil, ExitStatusMissing, errors.WrapWithCode(err, errors.ErrConnection,
			fmt.Sprintf("Failed to open a channel to '%s'", c.Host),
			"Connection may have been closed. The task will reconnect on restart.")
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	exitCode = 0
	err = session.Run(cmd)
	if err != nil {
		var exitErr *ssh.ExitError
		var missingErr *ssh.ExitMissingError
		switch {
		case stderrors.As(err, &exitErr):
			exitCode = exitErr.ExitStatus()
		case stderrors.As(err, &missingErr):
			exitCode = ExitStatusMissing
		default:
			return nil, nil, ExitStatusMissing, errors.WrapWithCode(err, errors.ErrConnection,
				fmt.Sprintf("Lost the channel to '%s' while running a command", c.Host),
				"Connection may have been closed. The task will reconnect on restart.")
		}
	}

	return stdoutBuf.Bytes(), stderrBuf.Bytes(), exitCode, nil
}
