// Package device defines the monitored device endpoint and the stores that
// persist device configuration.
package device

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/pkg/sshutil"
)

// Status enables or disables stat collection for a device.
type Status string

const (
	StatusActive    Status = "Active"
	StatusSuspended Status = "Suspended"
)

// DefaultStatInterval is the polling interval in seconds for new devices.
const DefaultStatInterval = 10

// Device is one monitored host.
type Device struct {
	ID string `yaml:"id" gorm:"primaryKey;size:64"`

	Host string `yaml:"host" gorm:"size:128;not null"`
	Port int    `yaml:"port" gorm:"not null"`
	User string `yaml:"user" gorm:"size:64;not null"`
	Sudo bool   `yaml:"sudo" gorm:"not null"`

	// Exactly one of Password and KeyPath may be set. With neither, the
	// service key from config is used.
	Password string `yaml:"password,omitempty" gorm:"size:256"`
	KeyPath  string `yaml:"key_path,omitempty" gorm:"size:256"`

	StatInterval int    `yaml:"stat_interval" gorm:"not null;default:10"`
	Status       Status `yaml:"status" gorm:"size:16;not null;default:Active"`
	Location     string `yaml:"location,omitempty" gorm:"size:64"`

	// Connected is nil until the first bootstrap, then records whether the
	// last one succeeded.
	Connected *bool `yaml:"connected,omitempty"`
}

// New returns an active device with a fresh id and default settings.
func New(host, user string) *Device {
	return &Device{
		ID:           uuid.NewString(),
		Host:         host,
		Port:         22,
		User:         user,
		StatInterval: DefaultStatInterval,
		Status:       StatusActive,
	}
}

// Validate checks the connection and polling settings.
func (d *Device) Validate() error {
	invalid := func(msg, suggestion string) error {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Device '%s': %s", d.ID, msg), suggestion)
	}

	switch {
	case d.ID == "":
		return errors.New(errors.ErrConfig, "Device has no id", "Give every device a unique id.")
	case d.Host == "":
		return invalid("host is empty", "Set the device's host name or address.")
	case d.Port < 1 || d.Port > 65535:
		return invalid(fmt.Sprintf("port %d is out of range", d.Port), "Use a port between 1 and 65535, usually 22.")
	case d.User == "":
		return invalid("user is empty", "Set the SSH user for the device.")
	case d.Password != "" && d.KeyPath != "":
		return invalid("both password and key_path are set", "Keep only one of them.")
	case d.StatInterval <= 0:
		return invalid(fmt.Sprintf("stat_interval must be positive, got %d", d.StatInterval), "Use the polling interval in seconds, e.g. 10.")
	case d.Status != StatusActive && d.Status != StatusSuspended:
		return invalid(fmt.Sprintf("unknown status %q", d.Status), "Use Active or Suspended.")
	}
	return nil
}

// Active reports whether stats should be collected.
func (d *Device) Active() bool {
	return d.Status == StatusActive
}

// Verified reports whether the last bootstrap succeeded.
func (d *Device) Verified() bool {
	return d.Connected != nil && *d.Connected
}

// SetConnected records the bootstrap outcome.
func (d *Device) SetConnected(ok bool) {
	d.Connected = &ok
}

// ConnectionState renders the tri-state flag for display.
func (d *Device) ConnectionState() string {
	switch {
	case d.Connected == nil:
		return "unknown"
	case *d.Connected:
		return "connected"
	default:
		return "failed"
	}
}

// Interval returns the polling interval.
func (d *Device) Interval() time.Duration {
	return time.Duration(d.StatInterval) * time.Second
}

// Endpoint builds the SSH endpoint. defaultKey is used when the device has
// no key of its own.
func (d *Device) Endpoint(defaultKey, passphrase string) sshutil.Endpoint {
	key := d.KeyPath
	if key == "" {
		key = defaultKey
	}
	return sshutil.Endpoint{
		Host:          d.Host,
		Port:          d.Port,
		User:          d.User,
		KeyPath:       key,
		KeyPassphrase: passphrase,
	}
}

// ConnectionChanged reports whether b differs from d in a way that needs a
// new bootstrap.
func (d *Device) ConnectionChanged(b *Device) bool {
	return d.Host != b.Host ||
		d.Port != b.Port ||
		d.User != b.User ||
		d.Password != b.Password ||
		d.KeyPath != b.KeyPath
}

// Clone returns a copy that shares nothing with d.
func (d *Device) Clone() *Device {
	c := *d
	if d.Connected != nil {
		v := *d.Connected
		c.Connected = &v
	}
	return &c
}

// String returns a short description used in logs.
func (d *Device) String() string {
	return fmt.Sprintf("%s (%s@%s:%d)", d.ID, d.User, d.Host, d.Port)
}
