package sshutil

import (
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyMismatchError means a device presented a key that differs from the
// one on file. Reinstalled devices trip this.
type HostKeyMismatchError struct {
	Hostname     string
	ReceivedType string
	KnownHosts   string
	Want         []knownhosts.KnownKey
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key for %s changed: device sent a %s key", e.Hostname, e.ReceivedType)
}

// Suggestion tells the operator how to drop the stale entry.
func (e *HostKeyMismatchError) Suggestion() string {
	host := e.Hostname
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	onFile := make([]string, 0, len(e.Want))
	for _, k := range e.Want {
		onFile = append(onFile, k.Key.Type())
	}
	if len(onFile) == 0 {
		onFile = append(onFile, "unknown")
	}

	return fmt.Sprintf("On file: %s, received: %s.\n"+
		"  If the device was replaced or reinstalled, forget it with:\n"+
		"    ssh-keygen -f %s -R %s",
		strings.Join(onFile, ", "), e.ReceivedType, e.KnownHosts, host)
}

// UnknownHostError is returned under the known_hosts policy for devices
// whose key was never recorded.
type UnknownHostError struct {
	Hostname   string
	KnownHosts string
}

func (e *UnknownHostError) Error() string {
	return fmt.Sprintf("no host key for %s in %s", e.Hostname, e.KnownHosts)
}

// knownHostsFile verifies device keys against an OpenSSH known_hosts file.
// With learn set, first-seen keys are recorded.
type knownHostsFile struct {
	path  string
	learn bool
}

// Appends from concurrent bootstraps share one file.
var knownHostsMu sync.Mutex

func openKnownHosts(path string, learn bool) (*knownHostsFile, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, nil, 0600); err != nil {
			return nil, fmt.Errorf("create known_hosts: %w", err)
		}
	}
	return &knownHostsFile{path: path, learn: learn}, nil
}

// check is an ssh.HostKeyCallback. The file is parsed on every call so keys
// learned by other sessions are visible.
func (k *knownHostsFile) check(hostname string, remote net.Addr, key ssh.PublicKey) error {
	verify, err := knownhosts.New(k.path)
	if err != nil {
		return err
	}

	var keyErr *knownhosts.KeyError
	err = verify(hostname, remote, key)
	switch {
	case err == nil:
		return nil
	case !stderrors.As(err, &keyErr):
		return err
	case len(keyErr.Want) > 0:
		return &HostKeyMismatchError{
			Hostname:     hostname,
			ReceivedType: key.Type(),
			KnownHosts:   k.path,
			Want:         keyErr.Want,
		}
	case !k.learn:
		return &UnknownHostError{Hostname: hostname, KnownHosts: k.path}
	}
	return k.add(hostname, key)
}

// add appends one known_hosts line for hostname.
func (k *knownHostsFile) add(hostname string, key ssh.PublicKey) error {
	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()

	f, err := os.OpenFile(k.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("open known_hosts: %w", err)
	}
	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key) + "\n"
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("record host key: %w", err)
	}
	return f.Close()
}
