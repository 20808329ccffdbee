package statsrelay

import (
	"context"
	"fmt"
	"strings"
)

// MetricType is an enumeration of all the possible types of metric.
type MetricType byte

const (
	_ = iota
	// COUNTER is statsd counter type
	COUNTER MetricType = iota
	// TIMER is statsd timer type
	TIMER
	// GAUGE is statsd gauge type
	GAUGE
	// SET is statsd set type
	SET
)

func (m MetricType) String() string {
	switch m {
	case SET:
		return "set"
	case GAUGE:
		return "gauge"
	case TIMER:
		return "timer"
	case COUNTER:
		return "counter"
	}
	return "unknown"
}

// Token returns the wire form of the type, as it appears after the value separator.
func (m MetricType) Token() string {
	switch m {
	case SET:
		return "s"
	case GAUGE:
		return "g"
	case TIMER:
		return "ms"
	}
	return "c"
}

// ParseMetricType converts a configuration name (counter, gauge, timer or set) into a MetricType.
func ParseMetricType(name string) (MetricType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "counter":
		return COUNTER, nil
	case "gauge":
		return GAUGE, nil
	case "timer":
		return TIMER, nil
	case "set":
		return SET, nil
	}
	return 0, fmt.Errorf("unknown metric type %q", name)
}

// MetricTypes is a set of metric types.
type MetricTypes uint8

// AllMetricTypes contains every metric type.
const AllMetricTypes = MetricTypes(1<<COUNTER | 1<<TIMER | 1<<GAUGE | 1<<SET)

// NewMetricTypes builds a set out of the provided types.
func NewMetricTypes(types ...MetricType) MetricTypes {
	var mt MetricTypes
	for _, t := range types {
		mt |= 1 << t
	}
	return mt
}

// Has returns true if t is part of the set.
func (mt MetricTypes) Has(t MetricType) bool {
	return mt&(1<<t) != 0
}

func (mt MetricTypes) String() string {
	var names []string
	for _, t := range []MetricType{COUNTER, GAUGE, TIMER, SET} {
		if mt.Has(t) {
			names = append(names, t.String())
		}
	}
	return strings.Join(names, ",")
}

// Runnable is a long running function intended to be launched in a goroutine.
type Runnable func(context.Context)

// Runner exposes a Runnable through an interface
type Runner interface {
	Run(context.Context)
}

// MetricsRunner is implemented by components reporting internal metrics on every flush.
type MetricsRunner interface {
	RunMetricsContext(context.Context)
}

func MaybeAppendRunnable(runnables []Runnable, maybeRunner interface{}) []Runnable {
	if r, ok := maybeRunner.(Runner); ok {
		runnables = append(runnables, r.Run)
	}
	if r, ok := maybeRunner.(MetricsRunner); ok {
		runnables = append(runnables, r.RunMetricsContext)
	}
	return runnables
}

// LineHandler accepts raw wire lines.
type LineHandler interface {
	HandleLine(line []byte)
}

// Sample is a single parsed observation for a metric key.
type Sample struct {
	Type        MetricType
	Value       float64 // value for counters, gauges and timers
	StringValue string  // member for sets
	Rate        float64 // sampling rate, 1 when not provided
	Signed      bool    // gauge value carried an explicit '+' or '-'
}

// MetricMapHandler accepts the snapshot produced by a flush.
type MetricMapHandler interface {
	DispatchMetricMap(ctx context.Context, mm *MetricMap)
}
