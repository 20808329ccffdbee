package stats

import (
	"context"
	"time"
)

// PrefixedStatser adds a prefix to each metric name and forwards it to a parent Statser.
type PrefixedStatser struct {
	statser Statser
	prefix  string
}

// NewPrefixedStatser creates a Statser which sends metrics as prefix.name to statser.
func NewPrefixedStatser(statser Statser, prefix string) Statser {
	return &PrefixedStatser{
		statser: statser,
		prefix:  prefix,
	}
}

func (ps *PrefixedStatser) name(name string) string {
	if ps.prefix == "" {
		return name
	}
	return ps.prefix + "." + name
}

func (ps *PrefixedStatser) NotifyFlush(ctx context.Context, d time.Duration) {
	ps.statser.NotifyFlush(ctx, d)
}

func (ps *PrefixedStatser) RegisterFlush() (<-chan time.Duration, func()) {
	return ps.statser.RegisterFlush()
}

// Gauge sends a gauge metric
func (ps *PrefixedStatser) Gauge(name string, value float64) {
	ps.statser.Gauge(ps.name(name), value)
}

// Count sends a counter metric
func (ps *PrefixedStatser) Count(name string, amount float64) {
	ps.statser.Count(ps.name(name), amount)
}

// Increment sends a counter metric with a value of 1
func (ps *PrefixedStatser) Increment(name string) {
	ps.statser.Increment(ps.name(name))
}

// TimingMS sends a timing metric from a millisecond value
func (ps *PrefixedStatser) TimingMS(name string, ms float64) {
	ps.statser.TimingMS(ps.name(name), ms)
}

// TimingDuration sends a timing metric from a time.Duration
func (ps *PrefixedStatser) TimingDuration(name string, d time.Duration) {
	ps.statser.TimingDuration(ps.name(name), d)
}

// NewTimer returns a new timer with time set to now
func (ps *PrefixedStatser) NewTimer(name string) *Timer {
	return newTimer(ps, name)
}

// WithPrefix creates a new Statser nesting prefix under the current one
func (ps *PrefixedStatser) WithPrefix(prefix string) Statser {
	return NewPrefixedStatser(ps.statser, ps.name(prefix))
}
