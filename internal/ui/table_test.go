package ui

import (
	"testing"

	"github.com/oxyio/netmon/internal/device"
	"github.com/oxyio/netmon/internal/supervisor"
	"github.com/stretchr/testify/assert"
)

func TestConnectionLabel(t *testing.T) {
	yes, no := true, false
	d := device.New("10.0.0.1", "admin")

	assert.Contains(t, ConnectionLabel(d), "unknown")
	d.Connected = &yes
	assert.Contains(t, ConnectionLabel(d), "verified")
	d.Connected = &no
	assert.Contains(t, ConnectionLabel(d), "failed")
}

func TestRenderDeviceTable(t *testing.T) {
	assert.Equal(t, "No devices configured", RenderDeviceTable(nil))

	d := device.New("10.0.0.1", "admin")
	d.ID = "sw1"
	d.Sudo = true
	out := RenderDeviceTable([]*device.Device{d})

	assert.Contains(t, out, "ENDPOINT")
	assert.Contains(t, out, "sw1")
	assert.Contains(t, out, "admin@10.0.0.1:22")
	assert.Contains(t, out, "Active")
	assert.Contains(t, out, "10s")
	assert.Contains(t, out, "yes")
}

func TestRenderTaskTable(t *testing.T) {
	assert.Equal(t, "No tasks", RenderTaskTable(nil))

	out := RenderTaskTable([]supervisor.Info{
		{ID: "monitor-device-sw1", Name: "device_monitor", State: supervisor.Failed, LastError: "Lost connection\nEOF", Restarts: 2},
	})
	assert.Contains(t, out, "monitor-device-sw1")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "Lost connection EOF")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
