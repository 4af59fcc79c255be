package ui

import (
	"sort"
	"sync"

	"github.com/oxyio/netmon/internal/stats"
)

// DefaultHistorySize is the number of points kept per series.
const DefaultHistorySize = 60

// Series identifies one stat across ticks.
type Series struct {
	Category stats.Category
	Key      string
	Detail   string
}

// SeriesOf returns the series a sample belongs to.
func SeriesOf(s stats.Sample) Series {
	return Series{Category: s.Category, Key: s.Key, Detail: s.Detail}
}

// History keeps a ring buffer of recent values per series.
type History struct {
	mu     sync.RWMutex
	size   int
	series map[Series]*ringBuffer
}

type ringBuffer struct {
	data  []float64
	head  int
	count int
}

// NewHistory creates a history keeping size points per series.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size, series: make(map[Series]*ringBuffer)}
}

// Push records samples, one point per sample.
func (h *History) Push(samples []stats.Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range samples {
		key := SeriesOf(s)
		buf, ok := h.series[key]
		if !ok {
			buf = &ringBuffer{data: make([]float64, h.size)}
			h.series[key] = buf
		}
		buf.push(s.Value)
	}
}

// Last returns up to n of the newest values of a series, oldest first.
func (h *History) Last(s Series, n int) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	buf, ok := h.series[s]
	if !ok {
		return nil
	}
	return buf.last(n)
}

// Count returns how many points a series holds.
func (h *History) Count(s Series) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if buf, ok := h.series[s]; ok {
		return buf.count
	}
	return 0
}

// Series returns the known series of a category sorted by key then detail.
func (h *History) Series(category stats.Category) []Series {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []Series
	for s := range h.series {
		if s.Category == category {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Detail < out[j].Detail
	})
	return out
}

// Clear drops everything.
func (h *History) Clear() {
	h.mu.Lock()
	h.series = make(map[Series]*ringBuffer)
	h.mu.Unlock()
}

func (r *ringBuffer) push(v float64) {
	r.data[r.head] = v
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

func (r *ringBuffer) last(n int) []float64 {
	if n <= 0 || r.count == 0 {
		return nil
	}
	n = min(n, r.count)
	size := len(r.data)
	start := (r.head - n + size) % size
	out := make([]float64, n)
	for i := range out {
		out[i] = r.data[(start+i)%size]
	}
	return out
}
