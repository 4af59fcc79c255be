package monitor

import (
	"time"

	"github.com/oxyio/netmon/internal/stats"
)

// Result is the outcome of one category within a tick.
type Result struct {
	Category stats.Category
	Samples  []stats.Sample

	// Baseline is set on the first reading of a cumulative category, which
	// only seeds the delta engine and forwards nothing.
	Baseline bool

	// Err is the command or parse failure, if any; the category was skipped.
	Err error

	// PublishErr and IndexErr are sink failures. The samples were still
	// computed.
	PublishErr error
	IndexErr   error
}

// Tick is the outcome of one polling cycle.
type Tick struct {
	DeviceID string
	// At is the capture time shared by every sample of the tick.
	At       time.Time
	Duration time.Duration
	Results  []Result
}

// Result returns the result for a category.
func (t Tick) Result(category stats.Category) (Result, bool) {
	for _, r := range t.Results {
		if r.Category == category {
			return r, true
		}
	}
	return Result{}, false
}

// Samples returns the samples of a category, nil if it failed or was a
// baseline.
func (t Tick) Samples(category stats.Category) []stats.Sample {
	r, _ := t.Result(category)
	return r.Samples
}

// Failed returns the categories that could not be fetched or parsed.
func (t Tick) Failed() []stats.Category {
	var out []stats.Category
	for _, r := range t.Results {
		if r.Err != nil {
			out = append(out, r.Category)
		}
	}
	return out
}

// SampleCount returns the number of samples forwarded.
func (t Tick) SampleCount() int {
	n := 0
	for _, r := range t.Results {
		n += len(r.Samples)
	}
	return n
}
