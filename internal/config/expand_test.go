package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/.ssh/id_ed25519", filepath.Join(home, ".ssh/id_ed25519")},
		{"/abs/path", "/abs/path"},
		{"relative/path", "relative/path"},
		{"~other/path", "~other/path"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandTilde(tt.in))
		})
	}
}

func TestResolveRelative(t *testing.T) {
	assert.Equal(t, "", resolveRelative("/etc/netmon", ""))
	assert.Equal(t, "/data/x.db", resolveRelative("/etc/netmon", "/data/x.db"))
	assert.Equal(t, "/etc/netmon/x.db", resolveRelative("/etc/netmon", "x.db"))
	assert.Equal(t, "x.db", resolveRelative("", "x.db"))
}

func TestExpandPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	cfg := DefaultConfig()
	cfg.SSH.KeyPrivate = "~/.netmon/id_ed25519"
	cfg.SSH.ConfigFile = "~/.ssh/config"
	cfg.Store.Path = "devices.db"
	cfg.Index.Path = "~/stats.db"
	cfg.Log.File = ""

	expandPaths(cfg, "/etc/netmon")

	assert.Equal(t, filepath.Join(home, ".netmon/id_ed25519"), cfg.SSH.KeyPrivate)
	assert.Equal(t, filepath.Join(home, ".ssh/config"), cfg.SSH.ConfigFile)
	assert.Equal(t, "/etc/netmon/devices.db", cfg.Store.Path)
	assert.Equal(t, filepath.Join(home, "stats.db"), cfg.Index.Path)
	assert.Equal(t, "", cfg.Log.File)
}
