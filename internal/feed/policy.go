package feed

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultReconnectDelay is the fixed delay between reconnect attempts.
const DefaultReconnectDelay = 3 * time.Second

// Policy decides how long to wait before reconnect attempt n (zero-based)
// and whether to attempt it at all.
type Policy interface {
	Next(attempt int) (time.Duration, bool)
}

// DefaultPolicy retries forever with a fixed 3 second delay.
func DefaultPolicy() Policy {
	return FixedPolicy{Delay: DefaultReconnectDelay}
}

// FixedPolicy waits the same Delay before every attempt.
// MaxAttempts of zero means unbounded.
type FixedPolicy struct {
	Delay       time.Duration
	MaxAttempts int
}

// Next implements Policy.
func (p FixedPolicy) Next(attempt int) (time.Duration, bool) {
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		return 0, false
	}
	if p.Delay <= 0 {
		return DefaultReconnectDelay, true
	}
	return p.Delay, true
}

// ExponentialPolicy grows the delay geometrically up to MaxDelay, with
// jitter. MaxAttempts of zero means unbounded.
type ExponentialPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
	MaxAttempts  int
}

// DefaultExponentialPolicy starts at 1s and caps at 30s.
func DefaultExponentialPolicy() ExponentialPolicy {
	return ExponentialPolicy{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Jitter:       0.2,
	}
}

// growth stops mattering long before this many doublings.
const maxBackoffSteps = 64

// Next implements Policy.
func (p ExponentialPolicy) Next(attempt int) (time.Duration, bool) {
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		return 0, false
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Second
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.Reset()

	steps := attempt
	if steps > maxBackoffSteps {
		steps = maxBackoffSteps
	}
	for i := 0; i < steps; i++ {
		b.NextBackOff()
	}

	d := b.NextBackOff()
	if d == backoff.Stop {
		return b.MaxInterval, true
	}
	return d, true
}
