package sshutil

import "context"

// SSHClient defines the interface for SSH command execution.
// Both the real Client and mock implementations satisfy this interface.
//
// This interface enables testing of SSH-dependent code without requiring
// actual SSH connections. The mock implementation provides a virtual
// filesystem that responds realistically to common shell commands.
type SSHClient interface {
	// Exec runs a command and returns stdout, stderr, and exit code.
	// Exit code is -1 if the server reported no exit status.
	// A non-nil error means the channel itself failed.
	Exec(cmd string) (stdout, stderr []byte, exitCode int, err error)

	// NewFileTransfer opens a file-transfer sub-channel on the connection.
	NewFileTransfer() (FileTransfer, error)

	// Close closes the SSH connection.
	Close() error

	// GetHost returns the original host/alias used to connect.
	GetHost() string

	// GetAddress returns the resolved host:port address.
	GetAddress() string
}

// FileTransfer writes files on the remote host.
type FileTransfer interface {
	WriteFile(path string, data []byte) error
	Close() error
}

// DialFunc opens a connection to an endpoint.
type DialFunc func(ctx context.Context, ep Endpoint, password string) (SSHClient, error)

// Executor is the part of a Session used by bootstrap and monitor code.
type Executor interface {
	Connect(ctx context.Context, password string) error
	Execute(cmd string, sudo bool) ([]string, error)
	ExecuteMulti(cmds ...string) ([][]string, error)
	Put(data []byte, remotePath string) error
	Close() error
}

// NewDialFunc returns a DialFunc backed by Dial with the given options.
func NewDialFunc(opts Options) DialFunc {
	return func(ctx context.Context, ep Endpoint, password string) (SSHClient, error) {
		client, err := Dial(ctx, ep, password, opts)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}
