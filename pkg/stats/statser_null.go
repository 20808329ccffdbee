package stats

import (
	"context"
	"time"
)

// NullStatser is a null implementation of Statser
type NullStatser struct {
	flushNotifier
}

// NewNullStatser creates a new NullStatser
func NewNullStatser() Statser {
	return &NullStatser{}
}

func (ns *NullStatser) NotifyFlush(ctx context.Context, d time.Duration) {
	ns.flushNotifier.NotifyFlush(ctx, d)
}

// Gauge does nothing
func (ns *NullStatser) Gauge(name string, value float64) {}

// Count does nothing
func (ns *NullStatser) Count(name string, amount float64) {}

// Increment does nothing
func (ns *NullStatser) Increment(name string) {}

// TimingMS does nothing
func (ns *NullStatser) TimingMS(name string, ms float64) {}

// TimingDuration does nothing
func (ns *NullStatser) TimingDuration(name string, d time.Duration) {}

// NewTimer returns a new timer with time set to now
func (ns *NullStatser) NewTimer(name string) *Timer {
	return newTimer(ns, name)
}

// WithPrefix returns the NullStatser itself
func (ns *NullStatser) WithPrefix(prefix string) Statser {
	return ns
}
