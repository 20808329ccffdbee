package stats

import (
	"context"
	"time"

	"github.com/atlassian/statsrelay"
)

// SampleHandler receives samples produced by the InternalStatser.
type SampleHandler interface {
	HandleSample(name string, s *statsrelay.Sample)
}

// InternalStatser is a Statser which feeds metrics back into the relay, so they are aggregated
// and distributed to the shards like any metric received from a client.
type InternalStatser struct {
	flushNotifier

	namespace string
	handler   SampleHandler
}

// NewInternalStatser creates a new Statser which sends metrics to handler, with every name
// prefixed by namespace.
func NewInternalStatser(namespace string, handler SampleHandler) *InternalStatser {
	return &InternalStatser{
		namespace: namespace,
		handler:   handler,
	}
}

func (is *InternalStatser) NotifyFlush(ctx context.Context, d time.Duration) {
	is.flushNotifier.NotifyFlush(ctx, d)
}

// Gauge sends a gauge metric
func (is *InternalStatser) Gauge(name string, value float64) {
	is.dispatch(name, &statsrelay.Sample{Type: statsrelay.GAUGE, Value: value, Rate: 1})
}

// Count sends a counter metric
func (is *InternalStatser) Count(name string, amount float64) {
	is.dispatch(name, &statsrelay.Sample{Type: statsrelay.COUNTER, Value: amount, Rate: 1})
}

// Increment sends a counter metric with a value of 1
func (is *InternalStatser) Increment(name string) {
	is.Count(name, 1)
}

// TimingMS sends a timing metric from a millisecond value
func (is *InternalStatser) TimingMS(name string, ms float64) {
	is.dispatch(name, &statsrelay.Sample{Type: statsrelay.TIMER, Value: ms, Rate: 1})
}

// TimingDuration sends a timing metric from a time.Duration
func (is *InternalStatser) TimingDuration(name string, d time.Duration) {
	is.TimingMS(name, float64(d)/float64(time.Millisecond))
}

// NewTimer returns a new timer with time set to now
func (is *InternalStatser) NewTimer(name string) *Timer {
	return newTimer(is, name)
}

// WithPrefix creates a new Statser which prefixes every metric name
func (is *InternalStatser) WithPrefix(prefix string) Statser {
	return NewPrefixedStatser(is, prefix)
}

func (is *InternalStatser) dispatch(name string, s *statsrelay.Sample) {
	if is.namespace != "" {
		name = is.namespace + "." + name
	}
	is.handler.HandleSample(name, s)
}
