package stats

import (
	"context"
	"time"
)

// Statser is the interface for sending internal metrics
type Statser interface {
	NotifyFlush(ctx context.Context, d time.Duration)
	RegisterFlush() (<-chan time.Duration, func())

	Gauge(name string, value float64)
	Count(name string, amount float64)
	Increment(name string)
	TimingMS(name string, ms float64)
	TimingDuration(name string, d time.Duration)
	NewTimer(name string) *Timer
	WithPrefix(prefix string) Statser
}
