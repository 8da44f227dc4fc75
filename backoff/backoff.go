// Package backoff provides the delay strategies used for queue redelivery
// and lock acquire polling. Strategies are stateless and safe for
// concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before attempt n (1-indexed).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Func adapts a plain function to a Strategy.
type Func func(attempt int) time.Duration

// Delay calls f.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// Constant always waits Interval.
type Constant struct {
	Interval time.Duration
}

// Delay returns the fixed interval.
func (c Constant) Delay(int) time.Duration { return c.Interval }

// Exponential doubles Initial each attempt up to Max. Jitter in [0, 1]
// subtracts a random fraction of the computed delay.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

// Delay returns min(Initial * 2^(attempt-1), Max) less jitter.
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	if e.Jitter > 0 {
		j := math.Min(e.Jitter, 1)
		d -= d * j * rand.Float64() //nolint:gosec // jitter does not need crypto rand
	}
	return time.Duration(d)
}

// Multipliers scales Base by a per-attempt factor. Attempts past the end
// of Factors reuse the last factor.
type Multipliers struct {
	Base    time.Duration
	Factors []int
}

// DefaultRetryFactors are the redelivery multipliers used by the queues.
var DefaultRetryFactors = []int{1, 3, 5, 10}

// Delay returns Base * Factors[attempt-1].
func (m Multipliers) Delay(attempt int) time.Duration {
	if len(m.Factors) == 0 {
		return m.Base
	}
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(m.Factors) {
		i = len(m.Factors) - 1
	}
	return m.Base * time.Duration(m.Factors[i])
}

// Retry returns the redelivery strategy for a queue configured with the
// given retry delay.
func Retry(delay time.Duration) Strategy {
	return Multipliers{Base: delay, Factors: DefaultRetryFactors}
}

// Polling returns the strategy used while waiting on a busy lock: 50ms
// doubling up to max with 20% jitter.
func Polling(maxDelay time.Duration) Strategy {
	return Exponential{Initial: 50 * time.Millisecond, Max: maxDelay, Jitter: 0.2}
}
