package sshutil

import (
	"crypto/ed25519"
	"crypto/rand"
	stderrors "errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func newHostKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return key
}

var loopback = &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 22}

func TestHostKeyCallback_TOFU(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ssh", "known_hosts")
	kh, err := openKnownHosts(path, true)
	require.NoError(t, err)
	cb := kh.check

	key := newHostKey(t)

	// First contact records the key.
	require.NoError(t, cb("127.0.0.1:22", loopback, key))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(content), "\n"))

	// Second contact verifies without appending.
	require.NoError(t, cb("127.0.0.1:22", loopback, key))
	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(content), "\n"))

	// A different key for the same host is rejected.
	err = cb("127.0.0.1:22", loopback, newHostKey(t))
	var mismatch *HostKeyMismatchError
	require.True(t, stderrors.As(err, &mismatch))
	assert.Equal(t, "ssh-ed25519", mismatch.ReceivedType)
	assert.Contains(t, mismatch.Suggestion(), "ssh-keygen -f")
	assert.Contains(t, mismatch.Suggestion(), "-R 127.0.0.1")
}

func TestHostKeyCallback_Strict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts")
	kh, err := openKnownHosts(path, false)
	require.NoError(t, err)
	cb := kh.check

	key := newHostKey(t)
	err = cb("127.0.0.1:22", loopback, key)
	var unknown *UnknownHostError
	require.True(t, stderrors.As(err, &unknown))
	assert.Contains(t, unknown.Error(), "127.0.0.1")

	// Once the key is on file the strict policy accepts it.
	require.NoError(t, kh.add("127.0.0.1:22", key))
	assert.NoError(t, cb("127.0.0.1:22", loopback, key))
}
