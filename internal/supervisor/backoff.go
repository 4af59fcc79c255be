package supervisor

import (
	"math/rand"
	"time"
)

// Backoff produces exponentially growing delays with ±10% jitter.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	current time.Duration
}

// NewBackoff creates a Backoff. A multiplier below 1 is treated as 2.
func NewBackoff(initial, max time.Duration, multiplier float64) *Backoff {
	if multiplier < 1 {
		multiplier = 2
	}
	if max < initial {
		max = initial
	}
	return &Backoff{Initial: initial, Max: max, Multiplier: multiplier}
}

// Next returns the next delay.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Initial
	} else {
		b.current = time.Duration(float64(b.current) * b.Multiplier)
		if b.current > b.Max {
			b.current = b.Max
		}
	}

	jitter := time.Duration(rand.Float64()*0.2*float64(b.current)) -
		time.Duration(0.1*float64(b.current))
	return b.current + jitter
}

// Reset starts over from the initial delay.
func (b *Backoff) Reset() {
	b.current = 0
}
