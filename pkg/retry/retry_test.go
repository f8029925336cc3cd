package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubRetryable bool

func (s stubRetryable) Retryable() bool { return bool(s) }

func TestDelayLadder(t *testing.T) {
	p := Default()

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond,
		10000 * time.Millisecond,
	}

	for n, expected := range want {
		assert.Equal(t, expected, p.Delay(n), "delay(%d)", n)
	}
}

func TestDelayNegativeAttempt(t *testing.T) {
	p := Default()
	assert.Equal(t, time.Second, p.Delay(-1))
}

func TestDelayLargeAttemptDoesNotOverflow(t *testing.T) {
	p := Default()
	assert.Equal(t, 10*time.Second, p.Delay(200))
}

func TestShouldRetryDefersToClassification(t *testing.T) {
	p := Default()

	assert.True(t, p.ShouldRetry(stubRetryable(true)))
	assert.False(t, p.ShouldRetry(stubRetryable(false)))
	assert.False(t, p.ShouldRetry(nil))
}

func TestAttemptCountingPerKey(t *testing.T) {
	p := New(time.Second, 10*time.Second, 3)

	assert.Equal(t, 1, p.NextAttempt("a"))
	assert.Equal(t, 2, p.NextAttempt("a"))
	assert.Equal(t, 1, p.NextAttempt("b"))
	assert.Equal(t, 2, p.Attempts("a"))
	assert.False(t, p.Exhausted("a"))

	assert.Equal(t, 3, p.NextAttempt("a"))
	assert.True(t, p.Exhausted("a"))

	// The counter never exceeds the limit.
	assert.Equal(t, 3, p.NextAttempt("a"))
	assert.Equal(t, 3, p.Attempts("a"))
}

func TestReset(t *testing.T) {
	p := New(time.Second, 10*time.Second, 3)

	p.NextAttempt("job")
	p.NextAttempt("job")
	p.Reset("job")
	assert.Equal(t, 0, p.Attempts("job"))
	assert.Equal(t, 1, p.NextAttempt("job"))

	p.NextAttempt("other")
	p.ResetAll()
	assert.Equal(t, 0, p.Attempts("job"))
	assert.Equal(t, 0, p.Attempts("other"))
}
