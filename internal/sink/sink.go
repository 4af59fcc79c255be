// Package sink forwards the samples of each monitor tick to the pub/sub bus
// and the time-series index.
package sink

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/stats"
)

// Sink receives the samples of one category for one device.
//
// Publish pushes live samples to subscribers. Index stores them durably.
// Both are called once per category per tick; failures are reported to the
// caller but must not affect the samples of other categories.
type Sink interface {
	Publish(ctx context.Context, deviceID string, category stats.Category, samples []stats.Sample) error
	Index(ctx context.Context, deviceID string, at time.Time, category stats.Category, samples []stats.Sample) error
}

// Event is the payload published for a category.
type Event struct {
	Event string         `json:"event"`
	Data  []stats.Sample `json:"data"`
}

func newEvent(category stats.Category, samples []stats.Sample) Event {
	if samples == nil {
		samples = []stats.Sample{}
	}
	return Event{Event: string(category), Data: samples}
}

func sinkError(err error, message string) error {
	return errors.WrapWithCode(err, errors.ErrSink, message, "")
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, string, stats.Category, []stats.Sample) error { return nil }

func (Nop) Index(context.Context, string, time.Time, stats.Category, []stats.Sample) error {
	return nil
}

// Multi fans out to every sink and joins their errors.
type Multi []Sink

// Publish calls Publish on every sink.
func (m Multi) Publish(ctx context.Context, deviceID string, category stats.Category, samples []stats.Sample) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, deviceID, category, samples); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Index calls Index on every sink.
func (m Multi) Index(ctx context.Context, deviceID string, at time.Time, category stats.Category, samples []stats.Sample) error {
	var errs []error
	for _, s := range m {
		if err := s.Index(ctx, deviceID, at, category, samples); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Record is one call captured by Memory.
type Record struct {
	DeviceID string
	Category stats.Category
	At       time.Time
	Samples  []stats.Sample
}

// Memory keeps everything it receives. Subscribers get a copy of each
// published record.
type Memory struct {
	mu        sync.Mutex
	published []Record
	indexed   []Record
	subs      []chan Record

	// PublishErr and IndexErr, when set, are returned after recording.
	PublishErr error
	IndexErr   error
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish records the samples and notifies subscribers without blocking.
func (m *Memory) Publish(_ context.Context, deviceID string, category stats.Category, samples []stats.Sample) error {
	rec := Record{DeviceID: deviceID, Category: category, Samples: copySamples(samples)}
	if len(samples) > 0 {
		rec.At = samples[0].Time
	}

	m.mu.Lock()
	m.published = append(m.published, rec)
	subs := m.subs
	err := m.PublishErr
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- rec:
		default:
		}
	}
	return err
}

// Index records the samples.
func (m *Memory) Index(_ context.Context, deviceID string, at time.Time, category stats.Category, samples []stats.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexed = append(m.indexed, Record{DeviceID: deviceID, Category: category, At: at, Samples: copySamples(samples)})
	return m.IndexErr
}

// Subscribe returns a channel receiving published records. Records are
// dropped when the channel's buffer is full.
func (m *Memory) Subscribe(buffer int) <-chan Record {
	ch := make(chan Record, buffer)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Published returns a copy of the published records.
func (m *Memory) Published() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.published...)
}

// Indexed returns a copy of the indexed records.
func (m *Memory) Indexed() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.indexed...)
}

// PublishedFor returns the published records of one category.
func (m *Memory) PublishedFor(category stats.Category) []Record {
	var out []Record
	for _, r := range m.Published() {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// Reset forgets all records.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
	m.indexed = nil
}

func copySamples(samples []stats.Sample) []stats.Sample {
	return append([]stats.Sample(nil), samples...)
}

func topic(prefix, sep, deviceID string, category stats.Category) string {
	if prefix == "" {
		return fmt.Sprintf("device%s%s%s%s", sep, deviceID, sep, category)
	}
	return fmt.Sprintf("%s%sdevice%s%s%s%s", prefix, sep, sep, deviceID, sep, category)
}
