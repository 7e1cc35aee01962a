package domain

import "time"

// BackoffPolicy is the requeue schedule for durable jobs: delay doubles per
// recorded attempt, capped at Max, and the job goes terminal once Attempts
// reaches MaxRetries.
type BackoffPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int
}

// Delay returns the requeue delay after the given number of prior attempts.
func (p BackoffPolicy) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := p.Initial
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// Exhausted reports whether one more failure should be terminal, i.e.
// attempts+1 would reach MaxRetries.
func (p BackoffPolicy) Exhausted(attempts int) bool {
	return attempts+1 >= p.MaxRetries
}

// Default schedules. Config may override the numbers; the shapes are fixed.
var (
	ResearchBackoff = BackoffPolicy{Initial: 10 * time.Second, Max: 180 * time.Second, MaxRetries: 2}
	PdfBackoff      = BackoffPolicy{Initial: 15 * time.Second, Max: 300 * time.Second, MaxRetries: 3}
)
