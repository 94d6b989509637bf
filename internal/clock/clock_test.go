package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSource(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestServerClock_SetServerTime(t *testing.T) {
	tests := []struct {
		name       string
		local      int64
		server     int64
		wantOffset int64
	}{
		{name: "server ahead", local: 1000, server: 1500, wantOffset: 500},
		{name: "server behind", local: 1000, server: 400, wantOffset: -600},
		{name: "same time", local: 1000, server: 1000, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewWithSource(fixedSource(tt.local))

			offset := c.SetServerTime(tt.server)

			assert.Equal(t, tt.wantOffset, offset)
			assert.Equal(t, tt.wantOffset, c.Offset())
			assert.Equal(t, tt.server, c.Now().UnixMilli())
		})
	}
}

func TestServerClock_SetServerTime_IgnoresZero(t *testing.T) {
	c := NewWithSource(fixedSource(1000))
	c.SetOffset(250)

	assert.Equal(t, int64(250), c.SetServerTime(0))
	assert.Equal(t, int64(250), c.Offset())
}

func TestServerClock_Stamp_Monotonic(t *testing.T) {
	c := NewWithSource(fixedSource(1000))

	var previous int64
	for i := 0; i < 100; i++ {
		current := c.Stamp()
		assert.Greater(t, current, previous, "Stamp should always increase")
		previous = current
	}
	assert.Equal(t, int64(1099), previous)
}

func TestServerClock_Stamp_UsesOffset(t *testing.T) {
	c := NewWithSource(fixedSource(1000))
	c.SetOffset(5000)

	assert.Equal(t, int64(6000), c.Stamp())
}

func TestServerClock_Observe(t *testing.T) {
	c := NewWithSource(fixedSource(1000))

	c.Observe(5000)
	assert.Equal(t, int64(5001), c.Stamp())

	c.Observe(10)
	assert.Equal(t, int64(5002), c.Stamp())
}

func TestServerClock_Concurrent(t *testing.T) {
	c := New()

	const goroutines = 10
	const stamps = 100

	results := make(chan int64, goroutines*stamps)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < stamps; i++ {
				results <- c.Stamp()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for s := range results {
		require.False(t, seen[s], "duplicate stamp %d", s)
		seen[s] = true
	}
	assert.Len(t, seen, goroutines*stamps)
}
