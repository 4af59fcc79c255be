package cli

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/monitor"
	"github.com/oxyio/netmon/internal/stats"
	sshtest "github.com/oxyio/netmon/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTick(t *testing.T) {
	at := time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)
	tick := monitor.Tick{
		DeviceID: "sw1",
		At:       at,
		Duration: 1234567 * time.Microsecond,
		Results: []monitor.Result{
			{Category: stats.CPU, Samples: []stats.Sample{{Category: stats.CPU, Key: "cpu", Detail: "usage", Value: 12.5, Time: at}}},
			{Category: stats.Disk, Err: stderrors.New("df: not found")},
			{Category: stats.DiskIO, Baseline: true},
		},
	}

	var out bytes.Buffer
	printTick(&out, testDevice("sw1", nil), tick)

	s := out.String()
	assert.Contains(t, s, "14:05:09 sw1 took 1.235s\n")
	assert.Contains(t, s, "cpu usage")
	assert.Contains(t, s, "12.5%")
	assert.Contains(t, s, "✗ df: not found")
	assert.Contains(t, s, "disk_io  baseline")
	assert.NotContains(t, s, "network_io")
}

func TestWatchDevice_Unverified(t *testing.T) {
	a, _ := testApp(t, sshtest.NewDialer(), testDevice("sw1", nil))

	err := watchDevice(context.Background(), a, &bytes.Buffer{}, "sw1", 0, true, false)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConnection))
	assert.Contains(t, err.Error(), "netmon connect sw1")
}

func TestWatchDevice_Plain(t *testing.T) {
	dialer := sshtest.NewDialer(statClient())
	a, _ := testApp(t, dialer, testDevice("sw1", boolPtr(true)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- watchDevice(ctx, a, out, "sw1", 1, true, false) }()

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("memory"))
	}, 3*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch didn't stop")
	}

	s := out.String()
	assert.Contains(t, s, "sw1 took")
	assert.Contains(t, s, "100 KiB")
	assert.Contains(t, s, "disk_io  baseline")
	assert.Equal(t, 1, dialer.Dials())
}

func TestWatchDevice_ConnectFailure(t *testing.T) {
	dialer := sshtest.FailingDialer(stderrors.New("dial tcp: i/o timeout"))
	a, _ := testApp(t, dialer, testDevice("sw1", boolPtr(true)))

	err := watchDevice(context.Background(), a, &bytes.Buffer{}, "sw1", 0, true, false)
	require.Error(t, err)
	assert.Contains(t, errors.Reason(err), "i/o timeout")
}
