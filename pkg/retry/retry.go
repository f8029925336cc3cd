// Package retry provides exponential backoff timing and per-key attempt
// counting. The policy is mechanism-only: whether an error is worth retrying
// is decided by the classifier and consumed here through Retryable.
package retry

import (
	"sync"
	"time"
)

// Defaults match the backoff ladder 1s, 2s, 4s, 8s, 10s, 10s, ...
const (
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultMaxAttempts = 3
)

// Retryable is implemented by classified errors that know whether a retry
// may succeed.
type Retryable interface {
	Retryable() bool
}

// Policy computes backoff delays and tracks attempts per operation key.
type Policy struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int

	mu       sync.Mutex
	attempts map[string]int
}

// New creates a Policy with the given backoff parameters.
func New(baseDelay, maxDelay time.Duration, maxAttempts int) *Policy {
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Policy{
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		maxAttempts: maxAttempts,
		attempts:    make(map[string]int),
	}
}

// Default returns a Policy with the standard backoff ladder.
func Default() *Policy {
	return New(DefaultBaseDelay, DefaultMaxDelay, DefaultMaxAttempts)
}

// Delay returns the backoff delay for the given zero-based attempt:
// min(baseDelay * 2^attempt, maxDelay).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.baseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.maxDelay {
			return p.maxDelay
		}
	}
	if d > p.maxDelay {
		return p.maxDelay
	}
	return d
}

// ShouldRetry reports whether the classified error permits a retry.
func (p *Policy) ShouldRetry(err Retryable) bool {
	return err != nil && err.Retryable()
}

// NextAttempt increments and returns the attempt count for key.
// The count never exceeds MaxAttempts.
func (p *Policy) NextAttempt(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.attempts[key]
	if n < p.maxAttempts {
		n++
		p.attempts[key] = n
	}
	return n
}

// Attempts returns the current attempt count for key.
func (p *Policy) Attempts(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[key]
}

// Exhausted reports whether key has used all its attempts.
func (p *Policy) Exhausted(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[key] >= p.maxAttempts
}

// MaxAttempts returns the attempt limit.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Reset clears the attempt counter for key. Called on success or teardown.
func (p *Policy) Reset(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.attempts, key)
}

// ResetAll clears every counter. Used at session teardown.
func (p *Policy) ResetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = make(map[string]int)
}
