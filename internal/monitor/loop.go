// Package monitor runs the per-device polling loop: fetch the five stat
// commands concurrently, parse them, difference the cumulative counters and
// forward the samples to a sink.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oxyio/netmon/internal/device"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/logger"
	"github.com/oxyio/netmon/internal/sink"
	"github.com/oxyio/netmon/internal/stats"
	"github.com/oxyio/netmon/internal/stats/parsers"
	"github.com/oxyio/netmon/pkg/sshutil"
)

// State is the lifecycle state of a loop.
type State string

const (
	Idle       State = "idle"
	Connecting State = "connecting"
	Polling    State = "polling"
	Stopped    State = "stopped"
	Failed     State = "failed"
)

// Options configures a Loop.
type Options struct {
	Dial sshutil.DialFunc

	// PrivateKeyPath and KeyPassphrase authenticate when the device has no
	// password of its own.
	PrivateKeyPath string
	KeyPassphrase  string

	Sink sink.Sink
	Log  logger.Logger

	// Observer, when set, is called on the loop goroutine after every tick.
	Observer func(Tick)

	// Now stamps ticks. Defaults to time.Now.
	Now func() time.Time
}

// Loop polls one device until its context is cancelled or the connection
// fails.
type Loop struct {
	device *device.Device
	opts   Options
	log    logger.Logger
	engine *stats.DeltaEngine

	mu    sync.Mutex
	state State
	ticks int
	last  *Tick
}

// New creates a loop for d. The device is copied.
func New(d *device.Device, opts Options) *Loop {
	if opts.Sink == nil {
		opts.Sink = sink.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Log
	if log == nil {
		log = logger.Noop()
	}
	return &Loop{
		device: d.Clone(),
		opts:   opts,
		log:    logger.WithPrefix(log, fmt.Sprintf("[monitor] [%s]", d.ID)),
		engine: stats.NewDeltaEngine(),
		state:  Idle,
	}
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Ticks returns the number of completed ticks.
func (l *Loop) Ticks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}

// Last returns the most recent tick, if any.
func (l *Loop) Last() (Tick, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return Tick{}, false
	}
	return *l.last, true
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run connects once and polls every StatInterval seconds, starting
// immediately. It returns nil when ctx is cancelled and the connection
// error otherwise. The session is closed on return.
func (l *Loop) Run(ctx context.Context) error {
	d := l.device
	session := sshutil.NewSession(d.Endpoint(l.opts.PrivateKeyPath, l.opts.KeyPassphrase), l.opts.Dial)
	defer session.Close()

	l.setState(Connecting)
	l.log.Debug("Connecting to %s", d)
	if err := session.Connect(ctx, d.Password); err != nil {
		if ctx.Err() != nil {
			l.setState(Stopped)
			return nil
		}
		l.setState(Failed)
		l.log.Error("Could not connect to device: %s", errors.Reason(err))
		return err
	}

	l.setState(Polling)
	l.log.Info("Polling every %s", d.Interval())

	for {
		tick, err := l.Tick(ctx, session)
		if ctx.Err() != nil {
			l.setState(Stopped)
			l.log.Debug("Stopped")
			return nil
		}
		if err != nil {
			l.setState(Failed)
			l.log.Error("Lost connection: %s", errors.Reason(err))
			return err
		}

		l.mu.Lock()
		l.ticks++
		l.last = &tick
		l.mu.Unlock()
		if l.opts.Observer != nil {
			l.opts.Observer(tick)
		}

		timer := time.NewTimer(d.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			l.setState(Stopped)
			l.log.Debug("Stopped")
			return nil
		case <-timer.C:
		}
	}
}

type fetchResult struct {
	lines []string
	err   error
}

// Tick runs one polling cycle on an open session. Command and parse errors
// are recorded per category; a connection error aborts the tick.
func (l *Loop) Tick(ctx context.Context, session sshutil.Executor) (Tick, error) {
	started := time.Now()
	categories := stats.Categories()
	fetched := make([]fetchResult, len(categories))

	var wg sync.WaitGroup
	for i, category := range categories {
		wg.Add(1)
		go func(i int, cmd string) {
			defer wg.Done()
			lines, err := session.Execute(cmd, l.device.Sudo)
			fetched[i] = fetchResult{lines: lines, err: err}
		}(i, parsers.Commands[category])
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return Tick{}, ctx.Err()
	}

	tick := Tick{DeviceID: l.device.ID, At: l.opts.Now()}

	// Any channel failure ends the loop, even if other categories succeeded.
	for _, f := range fetched {
		if errors.IsCode(f.err, errors.ErrConnection) || errors.IsCode(f.err, errors.ErrNotConnected) {
			return Tick{}, f.err
		}
	}

	for i, category := range categories {
		tick.Results = append(tick.Results, l.process(ctx, category, tick.At, fetched[i]))
	}
	tick.Duration = time.Since(started)
	return tick, nil
}

func (l *Loop) process(ctx context.Context, category stats.Category, at time.Time, f fetchResult) Result {
	res := Result{Category: category}
	if f.err != nil {
		res.Err = f.err
		l.log.Warn("%s: %s", category, errors.Reason(f.err))
		return res
	}

	parse, ok := parsers.For(category)
	if !ok {
		res.Err = errors.New(errors.ErrParse, fmt.Sprintf("No parser for %s", category), "")
		return res
	}
	reading, err := parse(f.lines)
	if err != nil {
		res.Err = err
		l.log.Warn("%s: %s", category, errors.Reason(err))
		return res
	}

	var values []stats.KeyedValue
	if category.Cumulative() {
		if !l.engine.HasBaseline(category) {
			l.engine.Apply(category, reading)
			res.Baseline = true
			return res
		}
		values = l.engine.Apply(category, reading)
	} else {
		values = stats.Flatten(reading)
	}
	res.Samples = stats.Samples(category, at, values)

	if err := l.opts.Sink.Publish(ctx, l.device.ID, category, res.Samples); err != nil {
		res.PublishErr = err
		l.log.Warn("%s: publish failed: %s", category, errors.Reason(err))
	}
	if err := l.opts.Sink.Index(ctx, l.device.ID, at, category, res.Samples); err != nil {
		res.IndexErr = err
		l.log.Warn("%s: index failed: %s", category, errors.Reason(err))
	}
	return res
}
