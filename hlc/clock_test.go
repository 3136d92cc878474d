package hlc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frozenClock(ms int64) *Clock {
	c := NewClock()
	c.nowMilli = func() int64 { return ms }
	return c
}

func TestClock_StampMillisMonotonic(t *testing.T) {
	clock := NewClock()

	prev := clock.StampMillis()
	for i := 0; i < 1000; i++ {
		ts := clock.StampMillis()
		assert.Greater(t, ts, prev, "stamp %d not after previous", i)
		prev = ts
	}
}

func TestClock_StampMillisStrictlyIncreasing(t *testing.T) {
	clock := frozenClock(1000)

	a := clock.StampMillis()
	b := clock.StampMillis()
	c := clock.StampMillis()

	assert.Equal(t, int64(1000), a)
	assert.Equal(t, int64(1001), b)
	assert.Equal(t, int64(1002), c)
}

func TestClock_StampMillisFollowsWallClock(t *testing.T) {
	now := int64(1000)
	clock := NewClock()
	clock.nowMilli = func() int64 { return now }

	assert.Equal(t, int64(1000), clock.StampMillis())
	now = 5000
	assert.Equal(t, int64(5000), clock.StampMillis())

	// Wall clock stepping back does not move stamps back
	now = 10
	assert.Equal(t, int64(5001), clock.StampMillis())
}

func TestClock_StampMillisAfterObserved(t *testing.T) {
	clock := frozenClock(1000)

	clock.Observe(9000)
	assert.Equal(t, int64(9001), clock.StampMillis())
}

func TestClock_ObserveOlderStampIsIgnored(t *testing.T) {
	clock := frozenClock(1000)

	require.Equal(t, int64(1000), clock.StampMillis())
	clock.Observe(10)
	assert.Equal(t, int64(1001), clock.StampMillis())
}

func TestClock_ConcurrentStampsAreUnique(t *testing.T) {
	clock := frozenClock(1000)

	var mu sync.Mutex
	seen := make(map[int64]struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ts := clock.StampMillis()
				mu.Lock()
				seen[ts] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 800)
}
