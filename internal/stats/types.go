// Package stats holds the sample model shared by the parsers, the delta
// engine, the monitor loop and the sinks.
//
// A Reading is what a parser produces from one command's output:
//
//	key (cpu0, /, sda, eth0) -> detail (user, used, reads, receive_bytes) -> value
//
// A Sample is one flattened entry of a reading, tagged with its category
// and the capture time of the tick that produced it.
package stats

import (
	"sort"
	"time"
)

// Category names a group of stats fetched by one remote command.
type Category string

const (
	CPU       Category = "cpu"
	Memory    Category = "memory"
	Disk      Category = "disk"
	DiskIO    Category = "disk_io"
	NetworkIO Category = "network_io"
)

// Categories returns every category in fetch order.
func Categories() []Category {
	return []Category{CPU, Memory, Disk, DiskIO, NetworkIO}
}

// Cumulative reports whether the category's kernel counters only ever grow
// and need differencing across ticks.
func (c Category) Cumulative() bool {
	return c == DiskIO || c == NetworkIO
}

// Reading maps key -> detail -> value for one category.
type Reading map[string]map[string]float64

// Set stores a value, creating the key's detail map when needed.
func (r Reading) Set(key, detail string, value float64) {
	details, ok := r[key]
	if !ok {
		details = make(map[string]float64)
		r[key] = details
	}
	details[detail] = value
}

// Clone returns a deep copy.
func (r Reading) Clone() Reading {
	out := make(Reading, len(r))
	for key, details := range r {
		copied := make(map[string]float64, len(details))
		for detail, v := range details {
			copied[detail] = v
		}
		out[key] = copied
	}
	return out
}

// KeyedValue is one key/detail/value triple.
type KeyedValue struct {
	Key    string  `json:"key"`
	Detail string  `json:"detail"`
	Value  float64 `json:"value"`
}

// Flatten returns every value in the reading sorted by key then detail.
func Flatten(r Reading) []KeyedValue {
	var out []KeyedValue
	for key, details := range r {
		for detail, v := range details {
			out = append(out, KeyedValue{Key: key, Detail: detail, Value: v})
		}
	}
	sortValues(out)
	return out
}

func sortValues(values []KeyedValue) {
	sort.Slice(values, func(i, j int) bool {
		if values[i].Key != values[j].Key {
			return values[i].Key < values[j].Key
		}
		return values[i].Detail < values[j].Detail
	})
}

// Sample is one measured value emitted by a tick.
type Sample struct {
	Category Category  `json:"type"`
	Key      string    `json:"key"`
	Detail   string    `json:"detail"`
	Value    float64   `json:"value"`
	Time     time.Time `json:"time"`
}

// Samples tags values with their category and capture time.
func Samples(category Category, at time.Time, values []KeyedValue) []Sample {
	out := make([]Sample, 0, len(values))
	for _, v := range values {
		out = append(out, Sample{
			Category: category,
			Key:      v.Key,
			Detail:   v.Detail,
			Value:    v.Value,
			Time:     at,
		})
	}
	return out
}
