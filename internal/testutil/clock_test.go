package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_StepsDeterministically(t *testing.T) {
	epoch := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	c := NewClock(epoch, time.Second)

	assert.Equal(t, epoch.Add(time.Second), c.Now())
	assert.Equal(t, epoch.Add(2*time.Second), c.Now())
	assert.Equal(t, epoch.Add(2*time.Second), c.Current())

	c.Reset()
	assert.Equal(t, epoch, c.Current())
	assert.Equal(t, epoch.Add(time.Second), c.Now())
}

func TestClock_ConcurrentReadersStrictlyIncrease(t *testing.T) {
	c := NewClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), time.Millisecond)

	var mu sync.Mutex
	seen := make(map[time.Time]bool)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			now := c.Now()
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[now], "duplicate timestamp %v", now)
			seen[now] = true
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
}

func TestClock_TwoClocksSameSequence(t *testing.T) {
	epoch := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	c1 := NewClock(epoch, time.Second)
	c2 := NewClock(epoch, time.Second)

	for i := 0; i < 10; i++ {
		assert.Equal(t, c1.Now(), c2.Now())
	}
}
