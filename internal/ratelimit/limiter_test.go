package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowExactlyLimitWithinWindow(t *testing.T) {
	current := time.Now()
	l := New(WithClock(func() time.Time { return current }))

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("client", 5), "request %d should pass", i+1)
	}
	assert.False(t, l.Allow("client", 5), "request limit+1 must be rejected")
}

func TestAllowRecoversAfterWindow(t *testing.T) {
	current := time.Now()
	l := New(WithClock(func() time.Time { return current }))

	for i := 0; i < 6; i++ {
		l.Allow("client", 5)
	}
	assert.False(t, l.Allow("client", 5))

	current = current.Add(Window + time.Second)
	assert.True(t, l.Allow("client", 5), "a fresh window must admit requests again")
}

func TestKeysAreIndependent(t *testing.T) {
	current := time.Now()
	l := New(WithClock(func() time.Time { return current }))

	for i := 0; i < 5; i++ {
		l.Allow("a", 5)
	}
	assert.False(t, l.Allow("a", 5))
	assert.True(t, l.Allow("b", 5))
}

func TestSweepDropsExpiredKeys(t *testing.T) {
	current := time.Now()
	l := New(WithClock(func() time.Time { return current }), WithSweepThreshold(10))

	for i := 0; i < 10; i++ {
		l.Allow(fmt.Sprintf("key-%d", i), 5)
	}
	assert.Equal(t, 10, l.Keys())

	// All previous keys expire; the next request pushes the map over the
	// threshold and triggers the amortized sweep.
	current = current.Add(Window + time.Second)
	l.Allow("fresh", 5)
	assert.Equal(t, 1, l.Keys())
}

func TestExplicitSweep(t *testing.T) {
	current := time.Now()
	l := New(WithClock(func() time.Time { return current }))

	l.Allow("gone", 5)
	current = current.Add(Window + time.Second)
	l.Sweep()
	assert.Equal(t, 0, l.Keys())
}
