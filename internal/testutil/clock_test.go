package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepClock_Advances(t *testing.T) {
	c := NewStepClock(time.Time{}, 0)

	assert.Equal(t, Epoch, c.Peek())
	assert.Equal(t, Epoch, c.Now())
	assert.Equal(t, Epoch.Add(time.Second), c.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), c.Peek())
}

func TestStepClock_Reset(t *testing.T) {
	start := time.Date(2030, 5, 5, 0, 0, 0, 0, time.UTC)
	c := NewStepClock(start, time.Minute)
	c.Now()
	c.Now()

	c.Reset()
	assert.Equal(t, start, c.Now())
}

func TestStepClock_ConcurrentDistinct(t *testing.T) {
	c := NewStepClock(time.Time{}, time.Millisecond)
	const goroutines, calls = 20, 50

	var mu sync.Mutex
	seen := make(map[time.Time]bool)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				ts := c.Now()
				mu.Lock()
				assert.False(t, seen[ts], "duplicate time %s", ts)
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, goroutines*calls)
}

func TestSequentialIDs(t *testing.T) {
	g := NewSequentialIDs("")
	assert.Equal(t, "ex-0001", g.Generate())
	assert.Equal(t, "ex-0002", g.Generate())

	custom := NewSequentialIDs("trade")
	assert.Equal(t, "trade-0001", custom.Generate())
}
