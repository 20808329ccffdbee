package util

import (
	"context"
	"sync"
	"time"

	"github.com/tilinna/clock"
)

// AlignedTicker delivers ticks on wall clock boundaries of interval, shifted by offset. With a 10s
// interval and a 2s offset it fires at :02, :12, :22 and so on, regardless of when it was started.
//
// The time sent on C is the boundary itself rather than the actual firing time. Ticks are dropped
// if the receiver is not keeping up.
type AlignedTicker struct {
	C <-chan time.Time

	c        chan time.Time
	stop     chan struct{}
	stopOnce sync.Once
	interval time.Duration
	offset   time.Duration
}

// NewAlignedTicker starts a ticker driven by the clock attached to ctx. The ticker stops when ctx
// is done or Stop is called.
func NewAlignedTicker(ctx context.Context, interval, offset time.Duration) *AlignedTicker {
	ch := make(chan time.Time, 1)
	at := &AlignedTicker{
		C:        ch,
		c:        ch,
		stop:     make(chan struct{}),
		interval: interval,
		offset:   offset,
	}
	go at.run(ctx)
	return at
}

// next returns the first boundary strictly after now.
func (at *AlignedTicker) next(now time.Time) time.Time {
	return now.Add(-at.offset).Truncate(at.interval).Add(at.interval + at.offset)
}

func (at *AlignedTicker) run(ctx context.Context) {
	clck := clock.FromContext(ctx)
	now := clck.Now()
	boundary := at.next(now)
	tmr := clck.NewTimer(boundary.Sub(now))
	defer tmr.Stop()

	for {
		select {
		case <-tmr.C:
			select {
			case at.c <- boundary:
			default:
			}
			now = clck.Now()
			boundary = at.next(now)
			tmr.Reset(boundary.Sub(now))
		case <-at.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop turns off the ticker. It is safe to call more than once.
func (at *AlignedTicker) Stop() {
	at.stopOnce.Do(func() {
		close(at.stop)
	})
}
