// Package tasks binds the bootstrap procedure and the monitor loop to the
// supervisor as the device_connect and device_monitor tasks.
package tasks

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/oxyio/netmon/internal/bootstrap"
	"github.com/oxyio/netmon/internal/device"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/logger"
	"github.com/oxyio/netmon/internal/monitor"
	"github.com/oxyio/netmon/internal/sink"
	"github.com/oxyio/netmon/internal/supervisor"
	"github.com/oxyio/netmon/pkg/sshutil"
)

// Task names.
const (
	ConnectName = "device_connect"
	MonitorName = "device_monitor"
)

// MonitorTaskID is the stable supervisor id of a device's monitor.
func MonitorTaskID(deviceID string) string {
	return "monitor-device-" + deviceID
}

// ConnectTaskID is the supervisor id of a device's bootstrap.
func ConnectTaskID(deviceID string) string {
	return "connect-device-" + deviceID
}

// Keys are the service's SSH key files.
type Keys struct {
	Private    string
	Public     string
	Passphrase string
}

// Factory creates tasks sharing one set of collaborators.
type Factory struct {
	Store      device.Store
	Supervisor *supervisor.Supervisor
	Dial       sshutil.DialFunc
	Keys       Keys
	Sink       sink.Sink
	Log        logger.Logger

	// Observer, when set, receives every monitor tick.
	Observer func(monitor.Tick)
}

func (f *Factory) logger() logger.Logger {
	if f.Log == nil {
		return logger.Noop()
	}
	return f.Log
}

// Connect returns a device_connect task.
func (f *Factory) Connect(deviceID, password string) *Connect {
	return &Connect{DeviceID: deviceID, Password: password, factory: f}
}

// Monitor returns a device_monitor task.
func (f *Factory) Monitor(deviceID string) *Monitor {
	return &Monitor{DeviceID: deviceID, factory: f}
}

// StartMonitor starts the monitor of an active device under its stable id.
// A monitor that is already running is left alone.
func (f *Factory) StartMonitor(_ context.Context, d *device.Device) error {
	if f.Supervisor == nil || !d.Active() {
		return nil
	}
	err := f.Supervisor.Start(MonitorTaskID(d.ID), f.Monitor(d.ID))
	if stderrors.Is(err, supervisor.ErrRunning) {
		return nil
	}
	return err
}

// Connect bootstraps one device and, on success, starts its monitor.
type Connect struct {
	DeviceID string
	Password string

	factory *Factory
}

// Name implements supervisor.Task.
func (c *Connect) Name() string { return ConnectName }

// Run implements supervisor.Task. The error carries the bootstrap's reason.
func (c *Connect) Run(ctx context.Context) error {
	_, err := c.Bootstrap(ctx)
	return err
}

// Bootstrap runs the procedure and returns its full result.
func (c *Connect) Bootstrap(ctx context.Context) (bootstrap.Result, error) {
	f := c.factory
	d, err := f.Store.Load(ctx, c.DeviceID)
	if err != nil {
		return bootstrap.Result{DeviceID: c.DeviceID, State: bootstrap.Failed, Reason: errors.Reason(err), Err: err}, err
	}

	b := bootstrap.New(bootstrap.Options{
		PublicKeyPath:  f.Keys.Public,
		PrivateKeyPath: f.Keys.Private,
		KeyPassphrase:  f.Keys.Passphrase,
		Dial:           f.Dial,
		Store:          f.Store,
		Starter:        bootstrap.StarterFunc(f.StartMonitor),
		Log:            f.logger(),
	})

	res := b.Run(ctx, d, c.Password)
	if res.State == bootstrap.Failed || res.Err != nil {
		return res, failure(res)
	}
	return res, nil
}

// failure turns a failed result into a task error whose message is the
// result's reason.
func failure(res bootstrap.Result) error {
	code := errors.ErrConnection
	suggestion := ""
	var nmErr *errors.Error
	switch {
	case stderrors.As(res.Err, &nmErr):
		code = nmErr.Code
		suggestion = nmErr.Suggestion
	case errors.IsCode(res.Err, errors.ErrCommand):
		code = errors.ErrCommand
	}
	return errors.New(code, res.Reason, suggestion)
}

// Monitor runs the polling loop of one device.
type Monitor struct {
	DeviceID string

	factory *Factory
}

// Name implements supervisor.Task.
func (m *Monitor) Name() string { return MonitorName }

// Restartable lets the supervisor restart a monitor after a lost connection.
func (m *Monitor) Restartable() bool { return true }

// Run implements supervisor.Task. The device is reloaded on every run so a
// restart picks up edited settings. Suspended devices return immediately;
// unverified ones fail permanently.
func (m *Monitor) Run(ctx context.Context) error {
	f := m.factory
	d, err := f.Store.Load(ctx, m.DeviceID)
	if err != nil {
		return err
	}
	if !d.Active() {
		f.logger().Info("[monitor] [%s] Device is suspended, not polling", d.ID)
		return nil
	}
	if !d.Verified() {
		// Only a bootstrap can fix this, so the supervisor must not retry.
		return supervisor.Permanent(errors.New(errors.ErrConnection,
			fmt.Sprintf("Device '%s' hasn't been verified", d.ID),
			fmt.Sprintf("Run: netmon connect %s", d.ID)))
	}

	loop := monitor.New(d, monitor.Options{
		Dial:           f.Dial,
		PrivateKeyPath: f.Keys.Private,
		KeyPassphrase:  f.Keys.Passphrase,
		Sink:           f.Sink,
		Log:            f.logger(),
		Observer:       f.Observer,
	})
	return loop.Run(ctx)
}
