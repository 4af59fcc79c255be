package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/oxyio/netmon/internal/device"
	"github.com/oxyio/netmon/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEdit(t *testing.T) {
	base := newDevice("sw1", boolPtr(true), device.StatusActive)

	tests := []struct {
		name          string
		edit          func(d *device.Device)
		want          Change
		wantConnected bool
	}{
		{"nothing", func(d *device.Device) {}, Change{}, true},
		{"location only", func(d *device.Device) { d.Location = "rack 2" }, Change{}, true},
		{"interval", func(d *device.Device) { d.StatInterval = 30 }, Change{Reload: true}, true},
		{"sudo", func(d *device.Device) { d.Sudo = true }, Change{Reload: true}, true},
		{"host", func(d *device.Device) { d.Host = "10.0.0.2" }, Change{Reconnect: true}, false},
		{"port and interval", func(d *device.Device) { d.Port = 2222; d.StatInterval = 5 }, Change{Reconnect: true}, false},
		{"suspend", func(d *device.Device) { d.Status = device.StatusSuspended }, Change{Status: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := base.Clone()
			tt.edit(next)

			assert.Equal(t, tt.want, ApplyEdit(base, next))
			assert.Equal(t, tt.wantConnected, next.Verified())
			if !tt.wantConnected {
				assert.Nil(t, next.Connected)
			}
		})
	}

	assert.Equal(t, Change{Reconnect: true}, ApplyEdit(nil, base.Clone()))
}

func TestReconcile_Decisions(t *testing.T) {
	tests := []struct {
		name        string
		device      *device.Device
		want        Decision
		wantMonitor bool
		wantConnect bool
	}{
		{"active and verified", newDevice("a", boolPtr(true), device.StatusActive), EnsureMonitor, true, false},
		{"active and unknown", newDevice("b", nil, device.StatusActive), StartConnect, false, true},
		{"active and failed", newDevice("c", boolPtr(false), device.StatusActive), StartConnect, false, true},
		{"suspended and verified", newDevice("d", boolPtr(true), device.StatusSuspended), StopMonitor, false, false},
		{"suspended and unknown", newDevice("e", nil, device.StatusSuspended), StartConnect, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.device)
			e.failing.Store(true)
			r := NewReconciler(e.factory)

			decision, err := r.Reconcile(context.Background(), tt.device, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, decision)

			_, hasMonitor := e.sup.State(MonitorTaskID(tt.device.ID))
			_, hasConnect := e.sup.State(ConnectTaskID(tt.device.ID))
			assert.Equal(t, tt.wantMonitor, hasMonitor)
			assert.Equal(t, tt.wantConnect, hasConnect)
		})
	}
}

func TestReconcile_RestartsFailedMonitor(t *testing.T) {
	d := newDevice("sw1", boolPtr(true), device.StatusActive)
	e := newEnv(t, d)
	e.failing.Store(true)
	r := NewReconciler(e.factory)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, d, "")
	require.NoError(t, err)
	waitState(t, e.sup, MonitorTaskID("sw1"), supervisor.Failed)

	e.failing.Store(false)
	decision, err := r.Reconcile(ctx, d, "")
	require.NoError(t, err)
	assert.Equal(t, EnsureMonitor, decision)
	waitState(t, e.sup, MonitorTaskID("sw1"), supervisor.Running)

	// A running monitor is left alone.
	require.Eventually(t, func() bool { return e.dialer.Dials() == 1 }, 3*time.Second, 5*time.Millisecond)
	_, err = r.Reconcile(ctx, d, "")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, e.dialer.Dials())
}

func TestReconcile_StopsMonitorBeforeConnect(t *testing.T) {
	d := newDevice("sw1", boolPtr(true), device.StatusActive)
	e := newEnv(t, d)
	r := NewReconciler(e.factory)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, d, "")
	require.NoError(t, err)
	waitState(t, e.sup, MonitorTaskID("sw1"), supervisor.Running)

	edited := d.Clone()
	edited.Host = "10.0.0.99"
	e.failing.Store(true)
	decision, err := r.Edit(ctx, edited, "new-pw")
	require.NoError(t, err)
	assert.Equal(t, StartConnect, decision)

	st, _ := e.sup.State(MonitorTaskID("sw1"))
	assert.Equal(t, supervisor.Stopped, st)
	waitState(t, e.sup, ConnectTaskID("sw1"), supervisor.Failed)

	saved, err := e.store.Load(ctx, "sw1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.99", saved.Host)
	require.NotNil(t, saved.Connected, "the failed bootstrap recorded its outcome")
	assert.False(t, *saved.Connected)
}

func TestEdit_ReloadsMonitor(t *testing.T) {
	d := newDevice("sw1", boolPtr(true), device.StatusActive)
	e := newEnv(t, d)
	r := NewReconciler(e.factory)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, d, "")
	require.NoError(t, err)
	waitState(t, e.sup, MonitorTaskID("sw1"), supervisor.Running)

	edited := d.Clone()
	edited.StatInterval = 60
	decision, err := r.Edit(ctx, edited, "")
	require.NoError(t, err)
	assert.Equal(t, ReloadMonitor, decision)
	require.Eventually(t, func() bool { return e.dialer.Dials() == 2 }, 3*time.Second, 5*time.Millisecond,
		"the restarted monitor reconnects")
}

func TestSync(t *testing.T) {
	verified := newDevice("a", boolPtr(true), device.StatusActive)
	fresh := newDevice("b", nil, device.StatusActive)
	e := newEnv(t, verified, fresh)
	e.failing.Store(true)
	r := NewReconciler(e.factory)
	ctx := context.Background()

	decisions, err := r.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]Decision{"a": EnsureMonitor, "b": StartConnect}, decisions)
	waitState(t, e.sup, ConnectTaskID("b"), supervisor.Failed)

	// The failed bootstrap flipped b's flag; that alone is not an edit.
	decisions, err = r.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, NoChange, decisions["b"])
	assert.Equal(t, NoChange, decisions["a"])

	// Editing b's host clears the flag and bootstraps again.
	b, err := e.store.Load(ctx, "b")
	require.NoError(t, err)
	b.Host = "10.9.9.9"
	require.NoError(t, e.store.Save(ctx, b))

	decisions, err = r.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, StartConnect, decisions["b"])

	// Devices that vanish from the store are stopped.
	e.factory.Store = device.NewMemoryStore(verified)
	decisions, err = r.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopMonitor, decisions["b"])
	_, hasA := decisions["a"]
	assert.True(t, hasA)
}
