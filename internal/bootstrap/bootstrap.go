// Package bootstrap verifies first contact with a device and installs the
// service's public key so later sessions can use key authentication.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/oxyio/netmon/internal/device"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/logger"
	"github.com/oxyio/netmon/pkg/sshutil"
)

// State is a step of the bootstrap procedure.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	KeyInstalled State = "key_installed"
	Verified     State = "verified"
	Failed       State = "failed"
)

// Starter starts the monitor of a verified device.
type Starter interface {
	StartMonitor(ctx context.Context, d *device.Device) error
}

// StarterFunc adapts a function to Starter.
type StarterFunc func(ctx context.Context, d *device.Device) error

// StartMonitor calls f.
func (f StarterFunc) StartMonitor(ctx context.Context, d *device.Device) error {
	return f(ctx, d)
}

// Options configures a Bootstrapper.
type Options struct {
	// PublicKeyPath is installed into the device's authorized_keys.
	PublicKeyPath string
	// PrivateKeyPath and KeyPassphrase authenticate when no password is given.
	PrivateKeyPath string
	KeyPassphrase  string

	Dial    sshutil.DialFunc
	Store   device.Store
	Starter Starter
	Log     logger.Logger
}

// Result is the outcome of one bootstrap.
type Result struct {
	DeviceID string
	State    State
	// Reason is a one-line human readable summary.
	Reason string
	// Err is set when State is Failed.
	Err error
}

// Bootstrapper runs the bootstrap procedure.
type Bootstrapper struct {
	opts Options
	log  logger.Logger
}

// New creates a Bootstrapper.
func New(opts Options) *Bootstrapper {
	log := opts.Log
	if log == nil {
		log = logger.Noop()
	}
	return &Bootstrapper{opts: opts, log: logger.WithPrefix(log, "[bootstrap]")}
}

// InstallKeyCommands returns the commands that add pubKey to
// ~/.ssh/authorized_keys unless it is already there, and fix permissions.
func InstallKeyCommands(pubKey string) []string {
	quoted := sshutil.ShellQuote(pubKey)
	return []string{
		"mkdir -p ~/.ssh",
		"touch ~/.ssh/authorized_keys",
		fmt.Sprintf("grep -qxF %s ~/.ssh/authorized_keys || echo %s >> ~/.ssh/authorized_keys", quoted, quoted),
		"chmod 700 ~/.ssh",
		"chmod 600 ~/.ssh/authorized_keys",
	}
}

// Run bootstraps the device. A non-empty password authenticates the first
// connection, falling back to the device's own password and then the
// service key. The outcome is recorded as the stored device's Connected
// flag on every path except a missing local public key; nothing else in
// the stored record is written. When the connection settings are edited
// while a bootstrap runs, its outcome is discarded and the procedure
// starts over with the stored settings.
func (b *Bootstrapper) Run(ctx context.Context, d *device.Device, password string) Result {
	for {
		res, edited := b.attempt(ctx, d, password)
		if edited == nil {
			return res
		}
		b.log.Info("[%s] Connection settings changed while bootstrapping, starting over", d.ID)
		d = edited
	}
}

// attempt runs the procedure once. edited is non-nil when the stored device
// no longer matches the settings d was bootstrapped with.
func (b *Bootstrapper) attempt(ctx context.Context, d *device.Device, password string) (res Result, edited *device.Device) {
	log := logger.WithPrefix(b.log, fmt.Sprintf("[%s]", d.ID))
	if password == "" {
		password = d.Password
	}

	session := sshutil.NewSession(d.Endpoint(b.opts.PrivateKeyPath, b.opts.KeyPassphrase), b.opts.Dial)
	defer session.Close()

	log.Debug("Connecting to %s", d)
	if err := session.Connect(ctx, password); err != nil {
		return b.fail(ctx, log, d, true, "Could not connect", err)
	}

	pubKey, err := ReadPublicKey(b.opts.PublicKeyPath)
	if err != nil {
		return b.fail(ctx, log, d, false, "Could not read public key", err)
	}

	if _, err := session.ExecuteMulti(InstallKeyCommands(pubKey)...); err != nil {
		return b.fail(ctx, log, d, true, "Error adding key", err)
	}
	log.Debug("Public key present in authorized_keys")

	current, stale, err := b.record(ctx, d, true)
	switch {
	case err != nil:
		return Result{DeviceID: d.ID, State: KeyInstalled, Reason: errors.Reason(err), Err: err}, nil
	case stale:
		return Result{}, current
	}
	log.Info("Device verified")

	if !current.Active() {
		log.Info("Device is suspended, not starting its monitor")
		return Result{DeviceID: d.ID, State: Verified, Reason: "Verified"}, nil
	}
	if b.opts.Starter != nil {
		if err := b.opts.Starter.StartMonitor(ctx, current); err != nil {
			log.Warn("Couldn't start monitor: %s", errors.Reason(err))
			return Result{DeviceID: d.ID, State: Verified,
				Reason: "Verified, but the monitor didn't start: " + errors.Reason(err)}, nil
		}
	}
	return Result{DeviceID: d.ID, State: Verified, Reason: "Verified"}, nil
}

func (b *Bootstrapper) fail(ctx context.Context, log logger.Logger, d *device.Device, record bool, prefix string, err error) (Result, *device.Device) {
	reason := fmt.Sprintf("%s: %s", prefix, errors.Reason(err))
	log.Error("%s", reason)

	if record {
		current, stale, saveErr := b.record(ctx, d, false)
		switch {
		case saveErr != nil:
			log.Error("Couldn't save connection state: %s", errors.Reason(saveErr))
		case stale:
			return Result{}, current
		}
	}
	return Result{DeviceID: d.ID, State: Failed, Reason: reason, Err: err}, nil
}

// record sets Connected on the stored copy of d and saves it. stale is true,
// and nothing is written, when the stored connection settings differ from
// d's. Without a store only d is updated.
func (b *Bootstrapper) record(ctx context.Context, d *device.Device, ok bool) (current *device.Device, stale bool, err error) {
	d.SetConnected(ok)
	if b.opts.Store == nil {
		return d, false, nil
	}

	current, err = b.opts.Store.Load(ctx, d.ID)
	if err != nil {
		return nil, false, err
	}
	if current.ConnectionChanged(d) {
		return current, true, nil
	}
	current.SetConnected(ok)
	return current, false, b.opts.Store.Save(ctx, current)
}
