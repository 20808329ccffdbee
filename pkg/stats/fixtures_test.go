package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlassian/statsrelay"
)

type countingStatser struct {
	flushNotifier

	gauges   uint64
	counters uint64
	timers   uint64
}

func (cs *countingStatser) NotifyFlush(ctx context.Context, d time.Duration) {
	cs.flushNotifier.NotifyFlush(ctx, d)
}

func (cs *countingStatser) Gauge(name string, value float64) {
	atomic.AddUint64(&cs.gauges, 1)
}

func (cs *countingStatser) Count(name string, amount float64) {
	atomic.AddUint64(&cs.counters, 1)
}

func (cs *countingStatser) Increment(name string) {
	atomic.AddUint64(&cs.counters, 1)
}

func (cs *countingStatser) TimingMS(name string, ms float64) {
	atomic.AddUint64(&cs.timers, 1)
}

func (cs *countingStatser) TimingDuration(name string, d time.Duration) {
	atomic.AddUint64(&cs.timers, 1)
}

func (cs *countingStatser) NewTimer(name string) *Timer {
	return newTimer(cs, name)
}

func (cs *countingStatser) WithPrefix(prefix string) Statser {
	return NewPrefixedStatser(cs, prefix)
}

type capturedSample struct {
	name   string
	sample statsrelay.Sample
}

type capturingHandler struct {
	mu      sync.Mutex
	samples []capturedSample
}

func (ch *capturingHandler) HandleSample(name string, s *statsrelay.Sample) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.samples = append(ch.samples, capturedSample{name: name, sample: *s})
}
