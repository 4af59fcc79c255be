package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oxyio/netmon/internal/db"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"file": func(t *testing.T) Store {
			return NewFileStore(filepath.Join(t.TempDir(), "conf", "devices.yaml"))
		},
		"sql": func(t *testing.T) Store {
			gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "netmon.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close(gdb) })
			store, err := NewSQLStore(gdb)
			require.NoError(t, err)
			return store
		},
	}
}

func TestStores(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)

			list, err := store.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)

			_, err = store.Load(ctx, "missing")
			require.Error(t, err)
			assert.True(t, IsNotFound(err))
			assert.True(t, errors.IsCode(err, errors.ErrStore))

			b := validDevice()
			b.ID = "b"
			a := validDevice()
			a.ID = "a"
			a.Sudo = true
			a.Location = "rack 1"
			require.NoError(t, store.Save(ctx, b))
			require.NoError(t, store.Save(ctx, a))

			got, err := store.Load(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, a, got)
			assert.Nil(t, got.Connected)

			// Update in place, including the tri-state flag.
			a.SetConnected(true)
			a.StatInterval = 30
			require.NoError(t, store.Save(ctx, a))

			got, err = store.Load(ctx, "a")
			require.NoError(t, err)
			assert.True(t, got.Verified())
			assert.Equal(t, 30, got.StatInterval)

			a.SetConnected(false)
			require.NoError(t, store.Save(ctx, a))
			got, err = store.Load(ctx, "a")
			require.NoError(t, err)
			require.NotNil(t, got.Connected)
			assert.False(t, *got.Connected)

			list, err = store.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "a", list[0].ID)
			assert.Equal(t, "b", list[1].ID)

			// Invalid devices are rejected.
			bad := validDevice()
			bad.Port = 0
			assert.Error(t, store.Save(ctx, bad))
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(validDevice())

	got, err := store.Load(ctx, "sw1")
	require.NoError(t, err)
	got.Host = "changed"

	again, err := store.Load(ctx, "sw1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", again.Host)
}

func TestFileStore_ReadsHandEditedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
devices:
  - id: core
    host: core.lan
    port: 22
    user: root
    sudo: false
    stat_interval: 5
    status: Active
    connected: true
`), 0600))

	store := NewFileStore(path)
	d, err := store.Load(context.Background(), "core")
	require.NoError(t, err)
	assert.Equal(t, "core.lan", d.Host)
	assert.Equal(t, 5, d.StatInterval)
	assert.True(t, d.Verified())
}

func TestFileStore_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices: [oops"), 0600))

	_, err := NewFileStore(path).List(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrStore))
}
