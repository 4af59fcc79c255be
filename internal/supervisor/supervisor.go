// Package supervisor runs named long-lived tasks in goroutines, one per task
// id, and restarts failed ones with backoff.
package supervisor

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/logger"
)

// Task is a unit of work the supervisor runs.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Restartable is implemented by tasks that may be restarted automatically
// after a failure.
type Restartable interface {
	Restartable() bool
}

// State is the lifecycle state of a task.
type State string

const (
	Pending State = "pending"
	Running State = "running"
	Stopped State = "stopped"
	Success State = "success"
	Failed  State = "failed"
)

// Active reports whether a task in this state still owns its goroutine.
func (s State) Active() bool {
	return s == Pending || s == Running
}

// permanentError marks a failure a restart can't fix.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so a Restartable task that returned it is not
// restarted automatically.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return stderrors.As(err, &p)
}

// ErrRunning is returned by Start when the id already has a live task.
var ErrRunning = stderrors.New("task is already running")

// ErrClosed is returned once Shutdown has been called.
var ErrClosed = stderrors.New("supervisor is shut down")

// Info describes one task.
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	State     State     `json:"state"`
	LastError string    `json:"last_error,omitempty"`
	Restarts  int       `json:"restarts"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished,omitempty"`
}

// Options configures a Supervisor.
type Options struct {
	// RestartFailed restarts failed Restartable tasks.
	RestartFailed  bool
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	Log logger.Logger
}

type entry struct {
	id      string
	task    Task
	state   State
	err     error
	started time.Time
	ended   time.Time

	restarts int
	backoff  *Backoff
	retrying bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns a set of tasks keyed by id.
type Supervisor struct {
	opts Options
	log  logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	tasks  map[string]*entry
	closed bool
	wg     sync.WaitGroup
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 5 * time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 5 * time.Minute
	}
	log := opts.Log
	if log == nil {
		log = logger.Noop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		opts:   opts,
		log:    logger.WithPrefix(log, "[supervisor]"),
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*entry),
	}
}

// Start runs task under id. It fails with ErrRunning if a task with the
// same id is pending or running; a finished task is replaced.
func (s *Supervisor) Start(id string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(id, task)
}

func (s *Supervisor) startLocked(id string, task Task) error {
	if s.closed {
		return ErrClosed
	}
	if e, ok := s.tasks[id]; ok && (e.state.Active() || e.retrying) {
		return fmt.Errorf("%s: %w", id, ErrRunning)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	e := &entry{
		id:      id,
		task:    task,
		state:   Pending,
		started: time.Now(),
		backoff: NewBackoff(s.opts.BackoffInitial, s.opts.BackoffMax, 2),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.tasks[id] = e

	s.wg.Add(1)
	go s.run(ctx, e)
	s.log.Debug("Started %s (%s)", id, task.Name())
	return nil
}

func (s *Supervisor) run(ctx context.Context, e *entry) {
	defer s.wg.Done()
	defer close(e.done)

	for {
		s.mu.Lock()
		e.state = Running
		e.retrying = false
		s.mu.Unlock()

		began := time.Now()
		err := e.task.Run(ctx)

		s.mu.Lock()
		e.ended = time.Now()
		switch {
		case ctx.Err() != nil:
			e.state = Stopped
			s.mu.Unlock()
			return
		case err == nil:
			e.state = Success
			e.err = nil
			s.mu.Unlock()
			s.log.Debug("%s finished", e.id)
			return
		}

		e.state = Failed
		e.err = err
		if !s.shouldRestart(e, err) {
			s.mu.Unlock()
			s.log.Warn("%s failed: %s", e.id, errors.Reason(err))
			return
		}
		delay := retryDelay(e.backoff, time.Since(began), s.opts.BackoffMax)
		e.retrying = true
		s.mu.Unlock()

		s.log.Warn("%s failed, restarting in %s: %s", e.id, delay.Round(time.Second), errors.Reason(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.mu.Lock()
			e.state = Stopped
			e.retrying = false
			s.mu.Unlock()
			return
		case <-timer.C:
		}

		s.mu.Lock()
		e.restarts++
		s.mu.Unlock()
	}
}

// retryDelay is the wait before the next run. A run that stayed up for at
// least healthy starts the backoff over.
func retryDelay(b *Backoff, ran, healthy time.Duration) time.Duration {
	if ran >= healthy {
		b.Reset()
	}
	return b.Next()
}

func (s *Supervisor) shouldRestart(e *entry, err error) bool {
	if !s.opts.RestartFailed || IsPermanent(err) {
		return false
	}
	r, ok := e.task.(Restartable)
	return ok && r.Restartable()
}

// Stop cancels the task and waits for it to return. Unknown ids are ignored.
func (s *Supervisor) Stop(id string) {
	s.mu.Lock()
	e, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return
	}

	e.cancel()
	<-e.done
	s.log.Debug("Stopped %s", id)
}

// Restart stops the task with id, if any, and starts task in its place.
func (s *Supervisor) Restart(id string, task Task) error {
	s.Stop(id)
	return s.Start(id, task)
}

// RestartIfState restarts id with task when its current state is one of
// states, and starts it when id is unknown. It reports whether a task was
// started.
func (s *Supervisor) RestartIfState(id string, task Task, states ...State) (bool, error) {
	s.mu.Lock()
	e, ok := s.tasks[id]
	if !ok {
		err := s.startLocked(id, task)
		s.mu.Unlock()
		return err == nil, err
	}
	current := e.state
	s.mu.Unlock()

	for _, st := range states {
		if current == st {
			if err := s.Restart(id, task); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// State returns the state of id.
func (s *Supervisor) State(id string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return "", false
	}
	return e.state, true
}

// Info returns a snapshot of id.
func (s *Supervisor) Info(id string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return Info{}, false
	}
	return e.info(), true
}

func (e *entry) info() Info {
	info := Info{
		ID:       e.id,
		Name:     e.task.Name(),
		State:    e.state,
		Restarts: e.restarts,
		Started:  e.started,
		Finished: e.ended,
	}
	if e.err != nil {
		info.LastError = errors.Reason(e.err)
	}
	return info
}

// List returns a snapshot of all tasks sorted by id.
func (s *Supervisor) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Info, 0, len(s.tasks))
	for _, e := range s.tasks {
		out = append(out, e.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Wait blocks until every task has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Shutdown stops all tasks and waits for them, or until ctx is done.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
