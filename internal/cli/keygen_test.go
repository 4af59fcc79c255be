package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oxyio/netmon/internal/bootstrap"
	"github.com/oxyio/netmon/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeygen(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SSH.KeyPrivate = filepath.Join(t.TempDir(), "keys", "netmon_ed25519")
	cfg.SSH.KeyPublic = cfg.SSH.KeyPrivate + ".pub"

	var out bytes.Buffer
	require.NoError(t, keygen(cfg, &out, "ops@netmon"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Wrote "+cfg.SSH.KeyPrivate)
	assert.True(t, strings.HasPrefix(lines[1], "ssh-ed25519 "))
	assert.True(t, strings.HasSuffix(lines[1], " ops@netmon"))

	pub, err := bootstrap.ReadPublicKey(cfg.SSH.KeyPublic)
	require.NoError(t, err)
	assert.Equal(t, lines[1], pub)

	info, err := os.Stat(cfg.SSH.KeyPrivate)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	err = keygen(cfg, &out, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Key already exists")
}

func TestKeygen_PublicPathMismatch(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.SSH.KeyPrivate = filepath.Join(dir, "id")
	cfg.SSH.KeyPublic = filepath.Join(dir, "other.pub")

	var out bytes.Buffer
	require.NoError(t, keygen(cfg, &out, ""))
	assert.Contains(t, out.String(), "Note: ssh.key_public is "+cfg.SSH.KeyPublic)
}
