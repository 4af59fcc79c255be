package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/logger"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// Host key policies.
const (
	// HostKeyAccept trusts any host key. Matches how fleets are usually bootstrapped.
	HostKeyAccept = "accept"
	// HostKeyKnownHosts requires the host key to already be in known_hosts.
	HostKeyKnownHosts = "known_hosts"
	// HostKeyTOFU records unknown host keys in known_hosts and rejects mismatches.
	HostKeyTOFU = "tofu"
)

// Endpoint describes how to reach one remote host.
type Endpoint struct {
	Host string
	Port int
	User string

	// KeyPath is the private key used when no password is supplied.
	KeyPath string
	// KeyPassphrase decrypts KeyPath when it is encrypted.
	KeyPassphrase string
}

// Options holds connection settings shared by all endpoints.
type Options struct {
	Timeout       time.Duration
	HostKeyPolicy string
	KnownHosts    string

	// SSHConfigPath overrides ~/.ssh/config for alias resolution. Empty uses the default.
	SSHConfigPath string
	// UseAgent adds SSH agent keys as a fallback auth method.
	UseAgent bool
}

// Client wraps an SSH connection with additional metadata.
type Client struct {
	*ssh.Client
	Host    string // The original host/alias used to connect
	Address string // The resolved address (host:port)
}

// Dial establishes an SSH connection to the endpoint. A non-empty password
// takes precedence over the endpoint's key. Connection settings missing
// from the endpoint are resolved from ~/.ssh/config when the host is an alias.
func Dial(ctx context.Context, ep Endpoint, password string, opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	settings := resolveSSHSettings(ep, opts.SSHConfigPath)

	config, err := buildSSHConfig(settings, password, opts)
	if err != nil {
		var nmErr *errors.Error
		if stderrors.As(err, &nmErr) {
			return nil, err
		}
		return nil, errors.WrapWithCode(err, errors.ErrConnection,
			fmt.Sprintf("Couldn't set up SSH for '%s'", ep.Host),
			"Check the configured key and password.")
	}

	address := settings.address()
	dialer := net.Dialer{Timeout: opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConnection,
			fmt.Sprintf("Can't reach '%s' at %s", ep.Host, address),
			suggestionForDialError(err))
	}

	// Bound the handshake by the same timeout, then clear the deadline.
	_ = conn.SetDeadline(time.Now().Add(opts.Timeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()

		var hostKeyErr *HostKeyMismatchError
		if stderrors.As(err, &hostKeyErr) {
			return nil, errors.New(errors.ErrConnection,
				hostKeyErr.Error(),
				hostKeyErr.Suggestion())
		}

		return nil, errors.WrapWithCode(err, errors.ErrConnection,
			fmt.Sprintf("SSH handshake with '%s' didn't go through", ep.Host),
			suggestionForHandshakeError(err, settings.encryptedKeys))
	}
	_ = conn.SetDeadline(time.Time{})

	return &Client{
		Client:  ssh.NewClient(sshConn, chans, reqs),
		Host:    ep.Host,
		Address: address,
	}, nil
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// GetHost returns the original host/alias used to connect.
func (c *Client) GetHost() string {
	return c.Host
}

// GetAddress returns the resolved host:port address.
func (c *Client) GetAddress() string {
	return c.Address
}

// NewFileTransfer opens an SFTP sub-channel on this connection.
func (c *Client) NewFileTransfer() (FileTransfer, error) {
	client, err := sftp.NewClient(c.Client)
	if err != nil {
		return nil, err
	}
	return &sftpTransfer{client: client}, nil
}

// sftpTransfer adapts an *sftp.Client to FileTransfer.
type sftpTransfer struct {
	client *sftp.Client
}

func (t *sftpTransfer) WriteFile(path string, data []byte) error {
	f, err := t.client.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (t *sftpTransfer) Close() error {
	return t.client.Close()
}

// sshSettings is an endpoint after alias resolution.
type sshSettings struct {
	hostname      string
	port          int
	user          string
	identityFile  string
	passphrase    string
	encryptedKeys []string
}

func (s *sshSettings) address() string {
	return net.JoinHostPort(s.hostname, strconv.Itoa(s.port))
}

// resolveSSHSettings fills the gaps in ep from the OpenSSH config. Fields
// set on the device always win.
func resolveSSHSettings(ep Endpoint, configPath string) *sshSettings {
	s := &sshSettings{
		hostname:     ep.Host,
		port:         ep.Port,
		user:         ep.User,
		identityFile: expandPath(ep.KeyPath),
		passphrase:   ep.KeyPassphrase,
	}
	if configPath == "" {
		configPath = filepath.Join(homeDir(), ".ssh", "config")
	}

	if alias, ok, err := LookupHost(configPath, ep.Host); err == nil && ok {
		logger.Default().Debug("[ssh] %s resolved from %s", alias, configPath)
		if alias.HostName != "" {
			s.hostname = alias.HostName
		}
		if s.port <= 0 {
			s.port = alias.Port
		}
		if s.user == "" {
			s.user = alias.User
		}
		if s.identityFile == "" {
			s.identityFile = alias.IdentityFile
		}
	}

	if s.port <= 0 {
		s.port = 22
	}
	if s.user == "" {
		s.user = currentUser()
	}
	return s
}

// passwordAuth answers both password and keyboard-interactive prompts,
// which is what most switch firmwares ask for.
func passwordAuth(password string) []ssh.AuthMethod {
	return []ssh.AuthMethod{
		ssh.Password(password),
		ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = password
			}
			return answers, nil
		}),
	}
}

// keyAuth collects the service key plus, optionally, the agent's keys. An
// encrypted key without a passphrase is noted in s.encryptedKeys.
func keyAuth(s *sshSettings, useAgent bool) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if s.identityFile != "" {
		m, err := keyFileAuth(s.identityFile, s.passphrase)
		var encErr *EncryptedKeyError
		switch {
		case stderrors.As(err, &encErr):
			s.encryptedKeys = append(s.encryptedKeys, s.identityFile)
		case err != nil:
			return nil, errors.WrapWithCode(err, errors.ErrConnection,
				fmt.Sprintf("Can't load SSH key %s", s.identityFile),
				"Check ssh.key_private points at a readable private key.")
		default:
			methods = append(methods, m)
		}
	}
	if useAgent {
		if m := sshAgentAuth(); m != nil {
			methods = append(methods, m)
		}
	}
	return methods, nil
}

// buildSSHConfig picks password auth when a password is given and key
// auth otherwise.
func buildSSHConfig(s *sshSettings, password string, opts Options) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod
	if password != "" {
		methods = passwordAuth(password)
	} else {
		var err error
		if methods, err = keyAuth(s, opts.UseAgent); err != nil {
			return nil, err
		}
	}

	if len(methods) == 0 {
		if len(s.encryptedKeys) > 0 {
			return nil, errors.New(errors.ErrConnection,
				"SSH key is encrypted: "+strings.Join(s.encryptedKeys, ", "),
				"Set ssh.key_password to the key's passphrase.")
		}
		return nil, errors.New(errors.ErrConnection,
			"Nothing to authenticate with",
			"Supply a password for first contact or configure ssh.key_private.")
	}

	hostKeyCallback, err := hostKeyCallbackFor(opts)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            s.user,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.Timeout,
	}, nil
}

// hostKeyCallbackFor maps a policy name to a callback.
func hostKeyCallbackFor(opts Options) (ssh.HostKeyCallback, error) {
	switch opts.HostKeyPolicy {
	case "", HostKeyAccept:
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // trust-on-first-use is the configured policy
	case HostKeyKnownHosts, HostKeyTOFU:
		kh, err := openKnownHosts(expandPath(opts.KnownHosts), opts.HostKeyPolicy == HostKeyTOFU)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConnection,
				"Failed to open known_hosts",
				"Check ssh.known_hosts points at a writable file.")
		}
		return kh.check, nil
	default:
		return nil, errors.New(errors.ErrConnection,
			fmt.Sprintf("Unknown host key policy %q", opts.HostKeyPolicy),
			"Use accept, known_hosts or tofu.")
	}
}

// agentConn holds the reusable SSH agent connection.
var (
	agentConn     net.Conn
	agentClient   agent.ExtendedAgent
	agentConnOnce sync.Once
)

// sshAgentAuth returns an auth method using the SSH agent if available.
// The agent connection is reused across multiple SSH connections.
// Returns nil if the agent has no keys loaded.
func sshAgentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}

	agentConnOnce.Do(func() {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return
		}
		agentConn = conn
		agentClient = agent.NewClient(conn)
	})

	if agentClient == nil {
		return nil
	}

	// An empty agent causes auth failures when placed before other methods.
	signers, err := agentClient.Signers()
	if err != nil || len(signers) == 0 {
		return nil
	}

	return ssh.PublicKeysCallback(agentClient.Signers)
}

// CloseAgent closes the SSH agent connection if one is open.
func CloseAgent() {
	if agentConn != nil {
		agentConn.Close()
	}
}

// keyFileAuth returns an auth method using a private key file.
// Returns EncryptedKeyError if the key requires a passphrase that wasn't given.
func keyFileAuth(keyPath, passphrase string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if stderrors.As(err, &missing) ||
			strings.Contains(err.Error(), "passphrase") ||
			isEncryptedPEM(key) {
			return nil, &EncryptedKeyError{Path: keyPath}
		}
		return nil, err
	}

	return ssh.PublicKeys(signer), nil
}

// Helper functions

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func suggestionForDialError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") {
		return "Is SSH running on that box? Check the device's port."
	}
	if strings.Contains(errStr, "no such host") {
		return "The hostname doesn't resolve. Check the device's host."
	}
	if strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "network is unreachable") {
		return "Can't route to the host. Check your network connection."
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "i/o timeout") {
		return "Connection timed out. Host might be offline or blocked by a firewall."
	}
	return "Make sure the host is reachable: ping <host>"
}

func suggestionForHandshakeError(err error, encryptedKeys []string) string {
	errStr := err.Error()
	if strings.Contains(errStr, "unable to authenticate") || strings.Contains(errStr, "no supported methods") {
		if len(encryptedKeys) > 0 {
			return "The key is encrypted. Set ssh.key_password."
		}
		return "Auth failed. Check the password, or that the device has netmon's key installed."
	}
	if strings.Contains(errStr, "host key") {
		return "Host key issue. Check ssh.host_key_policy and known_hosts."
	}
	return "Something went wrong during SSH setup. Try: ssh <host>"
}

// EncryptedKeyError is returned when an SSH key requires a passphrase.
type EncryptedKeyError struct {
	Path string
}

func (e *EncryptedKeyError) Error() string {
	return fmt.Sprintf("SSH key at %s is encrypted (passphrase protected)", e.Path)
}

// isEncryptedPEM checks if PEM data contains encryption markers.
func isEncryptedPEM(data []byte) bool {
	return bytes.Contains(data, []byte("ENCRYPTED")) ||
		bytes.Contains(data, []byte("Proc-Type: 4,ENCRYPTED"))
}
