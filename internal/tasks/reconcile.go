package tasks

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/oxyio/netmon/internal/device"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/supervisor"
)

// Decision is what Reconcile did for a device.
type Decision string

const (
	// EnsureMonitor restarted a failed monitor or started a missing one.
	EnsureMonitor Decision = "ensure_monitor"
	// StartConnect stopped the monitor and started device_connect.
	StartConnect Decision = "connect"
	// StopMonitor stopped the monitor of a verified, suspended device.
	StopMonitor Decision = "stop"
	// ReloadMonitor restarted a running monitor with new settings.
	ReloadMonitor Decision = "reload"
	// NoChange means nothing relevant changed.
	NoChange Decision = "none"
)

// Change classifies an edit of a device.
type Change struct {
	// Reconnect is set when connection settings changed and the device must
	// be bootstrapped again.
	Reconnect bool
	// Reload is set when only polling settings changed.
	Reload bool
	// Status is set when the device was suspended or resumed.
	Status bool
}

// ApplyEdit compares prev with next and clears next's connection state when
// the connection settings changed. prev may be nil for a new device.
func ApplyEdit(prev, next *device.Device) Change {
	if prev == nil {
		return Change{Reconnect: true}
	}
	var c Change
	if prev.ConnectionChanged(next) {
		next.Connected = nil
		c.Reconnect = true
	} else if prev.StatInterval != next.StatInterval || prev.Sudo != next.Sudo {
		c.Reload = true
	}
	c.Status = prev.Status != next.Status
	return c
}

// Reconciler decides which tasks a device needs after it is added or
// edited, and keeps the supervisor in step with the store.
type Reconciler struct {
	factory *Factory

	mu    sync.Mutex
	known map[string]*device.Device
}

// NewReconciler creates a Reconciler for the factory's store and supervisor.
func NewReconciler(f *Factory) *Reconciler {
	return &Reconciler{factory: f, known: make(map[string]*device.Device)}
}

// Reconcile makes sure d has the right task: a verified active device gets
// its monitor (restarted if it failed); any other device has its monitor
// stopped and, unless it is verified, is bootstrapped with password.
func (r *Reconciler) Reconcile(ctx context.Context, d *device.Device, password string) (Decision, error) {
	f := r.factory
	sup := f.Supervisor
	monitorID := MonitorTaskID(d.ID)

	r.remember(d)

	if d.Active() && d.Verified() {
		_, err := sup.RestartIfState(monitorID, f.Monitor(d.ID), supervisor.Failed)
		return EnsureMonitor, err
	}

	sup.Stop(monitorID)
	if d.Verified() {
		return StopMonitor, nil
	}

	err := sup.Start(ConnectTaskID(d.ID), f.Connect(d.ID, password))
	if stderrors.Is(err, supervisor.ErrRunning) {
		err = nil
	}
	return StartConnect, err
}

// Edit saves next after applying edit semantics against the stored copy,
// then reconciles it.
func (r *Reconciler) Edit(ctx context.Context, next *device.Device, password string) (Decision, error) {
	store := r.factory.Store
	prev, err := store.Load(ctx, next.ID)
	if err != nil && !device.IsNotFound(err) {
		return NoChange, err
	}
	if err != nil {
		prev = nil
	}

	change := ApplyEdit(prev, next)
	if err := store.Save(ctx, next); err != nil {
		return NoChange, err
	}
	return r.apply(ctx, next, change, password)
}

func (r *Reconciler) apply(ctx context.Context, d *device.Device, c Change, password string) (Decision, error) {
	switch {
	case c.Reconnect, c.Status:
		return r.Reconcile(ctx, d, password)
	case c.Reload:
		r.remember(d)
		if !d.Active() || !d.Verified() {
			return NoChange, nil
		}
		return ReloadMonitor, r.factory.Supervisor.Restart(MonitorTaskID(d.ID), r.factory.Monitor(d.ID))
	}
	r.remember(d)
	return NoChange, nil
}

// Sync reloads every device from the store. New devices are reconciled;
// changed devices get the same treatment as an edit; devices that vanished
// have their tasks stopped. A change of the connection flag alone is the
// result of a bootstrap and is ignored.
func (r *Reconciler) Sync(ctx context.Context) (map[string]Decision, error) {
	f := r.factory
	devices, err := f.Store.List(ctx)
	if err != nil {
		return nil, err
	}

	decisions := make(map[string]Decision, len(devices))
	seen := make(map[string]bool, len(devices))
	var errs []error

	for _, d := range devices {
		seen[d.ID] = true
		prev := r.previous(d.ID)

		var decision Decision
		if prev == nil {
			decision, err = r.Reconcile(ctx, d, "")
		} else {
			change := ApplyEdit(prev, d)
			if change.Reconnect {
				if saveErr := f.Store.Save(ctx, d); saveErr != nil {
					errs = append(errs, saveErr)
					continue
				}
			}
			decision, err = r.apply(ctx, d, change, "")
		}
		if err != nil {
			f.logger().Warn("[reconcile] [%s] %s", d.ID, errors.Reason(err))
			errs = append(errs, err)
		}
		decisions[d.ID] = decision
	}

	for _, id := range r.forget(seen) {
		f.Supervisor.Stop(MonitorTaskID(id))
		f.Supervisor.Stop(ConnectTaskID(id))
		decisions[id] = StopMonitor
	}
	return decisions, stderrors.Join(errs...)
}

func (r *Reconciler) remember(d *device.Device) {
	r.mu.Lock()
	r.known[d.ID] = d.Clone()
	r.mu.Unlock()
}

func (r *Reconciler) previous(id string) *device.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.known[id]; ok {
		return d.Clone()
	}
	return nil
}

// forget drops devices not in seen and returns their ids.
func (r *Reconciler) forget(seen map[string]bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var gone []string
	for id := range r.known {
		if !seen[id] {
			gone = append(gone, id)
			delete(r.known, id)
		}
	}
	return gone
}
