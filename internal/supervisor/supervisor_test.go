package supervisor

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oxyio/netmon/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcTask struct {
	name        string
	restartable bool
	runs        atomic.Int32
	fn          func(ctx context.Context, run int) error
}

func (f *funcTask) Name() string { return f.name }

func (f *funcTask) Run(ctx context.Context) error {
	n := int(f.runs.Add(1))
	return f.fn(ctx, n)
}

func (f *funcTask) Restartable() bool { return f.restartable }

func untilCancelled(ctx context.Context, _ int) error {
	<-ctx.Done()
	return ctx.Err()
}

func failing(msg string) func(context.Context, int) error {
	return func(context.Context, int) error { return stderrors.New(msg) }
}

func waitState(t *testing.T, s *Supervisor, id string, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, ok := s.State(id)
		return ok && st == want
	}, 2*time.Second, 5*time.Millisecond, "waiting for %s to be %s", id, want)
}

func TestStartAndStop(t *testing.T) {
	s := New(Options{})
	task := &funcTask{name: "device_monitor", fn: untilCancelled}

	require.NoError(t, s.Start("monitor-device-1", task))
	waitState(t, s, "monitor-device-1", Running)

	err := s.Start("monitor-device-1", task)
	assert.ErrorIs(t, err, ErrRunning, "one live task per id")

	s.Stop("monitor-device-1")
	st, _ := s.State("monitor-device-1")
	assert.Equal(t, Stopped, st)
	assert.Equal(t, int32(1), task.runs.Load())

	s.Stop("unknown")

	require.NoError(t, s.Start("monitor-device-1", task), "stopped ids can start again")
	waitState(t, s, "monitor-device-1", Running)
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestTaskOutcomes(t *testing.T) {
	s := New(Options{})
	ok := &funcTask{name: "device_connect", fn: func(context.Context, int) error { return nil }}
	bad := &funcTask{name: "device_connect", fn: failing("Could not connect: timeout")}

	require.NoError(t, s.Start("ok", ok))
	require.NoError(t, s.Start("bad", bad))
	s.Wait()

	st, _ := s.State("ok")
	assert.Equal(t, Success, st)

	info, found := s.Info("bad")
	require.True(t, found)
	assert.Equal(t, Failed, info.State)
	assert.Equal(t, "Could not connect: timeout", info.LastError)
	assert.Equal(t, "device_connect", info.Name)
	assert.False(t, info.Finished.IsZero())

	_, found = s.State("missing")
	assert.False(t, found)
}

func TestRestartIfState(t *testing.T) {
	s := New(Options{})
	defer s.Shutdown(context.Background())

	id := "monitor-device-7"
	bad := &funcTask{name: "device_monitor", fn: failing("EOF")}

	started, err := s.RestartIfState(id, bad, Failed)
	require.NoError(t, err)
	assert.True(t, started, "unknown id is started")
	waitState(t, s, id, Failed)

	good := &funcTask{name: "device_monitor", fn: untilCancelled}
	started, err = s.RestartIfState(id, good, Failed)
	require.NoError(t, err)
	assert.True(t, started)
	waitState(t, s, id, Running)

	started, err = s.RestartIfState(id, good, Failed)
	require.NoError(t, err)
	assert.False(t, started, "running tasks are left alone")
	assert.Equal(t, int32(1), good.runs.Load())
}

func TestRestart(t *testing.T) {
	s := New(Options{})
	defer s.Shutdown(context.Background())

	first := &funcTask{name: "device_monitor", fn: untilCancelled}
	second := &funcTask{name: "device_monitor", fn: untilCancelled}

	require.NoError(t, s.Start("m", first))
	waitState(t, s, "m", Running)
	require.NoError(t, s.Restart("m", second))
	waitState(t, s, "m", Running)

	assert.Equal(t, int32(1), first.runs.Load())
	assert.Equal(t, int32(1), second.runs.Load())
}

func TestAutomaticRestart(t *testing.T) {
	log := logger.NewBufferLogger()
	s := New(Options{
		RestartFailed:  true,
		BackoffInitial: 10 * time.Millisecond,
		BackoffMax:     50 * time.Millisecond,
		Log:            log,
	})
	defer s.Shutdown(context.Background())

	task := &funcTask{name: "device_monitor", restartable: true, fn: func(ctx context.Context, run int) error {
		if run < 3 {
			return stderrors.New("Lost connection")
		}
		return untilCancelled(ctx, run)
	}}

	require.NoError(t, s.Start("m", task))
	require.Eventually(t, func() bool { return task.runs.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	waitState(t, s, "m", Running)

	info, _ := s.Info("m")
	assert.Equal(t, 2, info.Restarts)
	assert.Equal(t, "Lost connection", info.LastError)
	assert.True(t, log.Contains("warn", "restarting in"))
}

func TestAutomaticRestartSkipsNonRestartable(t *testing.T) {
	s := New(Options{RestartFailed: true, BackoffInitial: time.Millisecond})
	task := &funcTask{name: "device_connect", fn: failing("Error adding key")}

	require.NoError(t, s.Start("c", task))
	s.Wait()

	st, _ := s.State("c")
	assert.Equal(t, Failed, st)
	assert.Equal(t, int32(1), task.runs.Load())
}

func TestAutomaticRestartSkipsPermanentFailures(t *testing.T) {
	s := New(Options{RestartFailed: true, BackoffInitial: time.Millisecond})
	task := &funcTask{name: "device_monitor", restartable: true, fn: func(context.Context, int) error {
		return Permanent(stderrors.New("Device 'sw1' hasn't been verified"))
	}}

	require.NoError(t, s.Start("m", task))
	s.Wait()

	info, _ := s.Info("m")
	assert.Equal(t, Failed, info.State)
	assert.Equal(t, "Device 'sw1' hasn't been verified", info.LastError)
	assert.Equal(t, int32(1), task.runs.Load())
	assert.Equal(t, 0, info.Restarts)
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))

	cause := stderrors.New("boom")
	err := Permanent(cause)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "boom", err.Error())
	assert.False(t, IsPermanent(cause))
}

func TestStopDuringBackoff(t *testing.T) {
	s := New(Options{RestartFailed: true, BackoffInitial: time.Hour, BackoffMax: time.Hour})
	task := &funcTask{name: "device_monitor", restartable: true, fn: failing("EOF")}

	require.NoError(t, s.Start("m", task))
	waitState(t, s, "m", Failed)

	assert.ErrorIs(t, s.Start("m", task), ErrRunning, "waiting to retry counts as live")

	s.Stop("m")
	st, _ := s.State("m")
	assert.Equal(t, Stopped, st)
	assert.Equal(t, int32(1), task.runs.Load())
}

func TestList(t *testing.T) {
	s := New(Options{})
	defer s.Shutdown(context.Background())

	require.NoError(t, s.Start("b", &funcTask{name: "device_monitor", fn: untilCancelled}))
	require.NoError(t, s.Start("a", &funcTask{name: "device_connect", fn: untilCancelled}))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestShutdown(t *testing.T) {
	s := New(Options{})
	task := &funcTask{name: "device_monitor", fn: untilCancelled}
	require.NoError(t, s.Start("m", task))
	waitState(t, s, "m", Running)

	require.NoError(t, s.Shutdown(context.Background()))
	st, _ := s.State("m")
	assert.Equal(t, Stopped, st)

	assert.ErrorIs(t, s.Start("n", task), ErrClosed)
}

func TestBackoff(t *testing.T) {
	b := NewBackoff(time.Second, 5*time.Second, 2)

	expectations := []struct {
		min, max time.Duration
	}{
		{900 * time.Millisecond, 1100 * time.Millisecond},
		{1800 * time.Millisecond, 2200 * time.Millisecond},
		{3600 * time.Millisecond, 4400 * time.Millisecond},
		{4500 * time.Millisecond, 5500 * time.Millisecond},
		{4500 * time.Millisecond, 5500 * time.Millisecond},
	}
	for i, exp := range expectations {
		d := b.Next()
		assert.GreaterOrEqual(t, d, exp.min, "iteration %d", i)
		assert.LessOrEqual(t, d, exp.max, "iteration %d", i)
	}

	b.Reset()
	d := b.Next()
	assert.GreaterOrEqual(t, d, 900*time.Millisecond)
	assert.LessOrEqual(t, d, 1100*time.Millisecond)
}

func TestRetryDelay(t *testing.T) {
	b := NewBackoff(time.Second, 8*time.Second, 2)

	// Quick failures keep growing the delay.
	for i := 0; i < 3; i++ {
		retryDelay(b, 10*time.Millisecond, 8*time.Second)
	}
	d := retryDelay(b, 10*time.Millisecond, 8*time.Second)
	assert.GreaterOrEqual(t, d, 7200*time.Millisecond)

	// A run that stayed up long enough starts over.
	d = retryDelay(b, 9*time.Second, 8*time.Second)
	assert.GreaterOrEqual(t, d, 900*time.Millisecond)
	assert.LessOrEqual(t, d, 1100*time.Millisecond)
}
