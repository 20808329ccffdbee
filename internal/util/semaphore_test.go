package util

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreUnlimited(t *testing.T) {
	t.Parallel()
	s := NewSemaphore(0)
	for i := 0; i < 10; i++ {
		require.True(t, s.Acquire(context.Background()))
	}
	for i := 0; i < 10; i++ {
		s.Release()
	}
}

func TestSemaphoreBounded(t *testing.T) {
	t.Parallel()
	s := NewSemaphore(5)
	var inFlight, maxSeen int64
	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		go func() {
			defer wg.Done()
			s.Acquire(context.Background())
			n := atomic.AddInt64(&inFlight, 1)
			for {
				m := atomic.LoadInt64(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt64(&maxSeen, m, n) {
					break
				}
			}
			atomic.AddInt64(&inFlight, -1)
			s.Release()
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, maxSeen, int64(5))
}

func TestSemaphoreCancelled(t *testing.T) {
	t.Parallel()
	s := NewSemaphore(1)
	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()
	require.True(t, s.Acquire(context.Background()))
	require.False(t, s.Acquire(cancelledContext))
	s.Release()
}
