package statsrelay

// MetricMap is the aggregation store for a single flush interval.
// The keys of each collection are sanitized metric names.
type MetricMap struct {
	Counters Counters
	Timers   Timers
	Gauges   Gauges
	Sets     Sets
}

func NewMetricMap() *MetricMap {
	return &MetricMap{
		Counters: newCounters(),
		Timers:   newTimers(),
		Gauges:   newGauges(),
		Sets:     newSets(),
	}
}

// Receive applies a single Sample to the metric stored under name.
func (mm *MetricMap) Receive(name string, s *Sample) {
	rate := s.Rate
	if rate <= 0 {
		rate = 1
	}
	switch s.Type {
	case TIMER:
		mm.Timers.add(name, s.Value, rate)
	case GAUGE:
		mm.Gauges.apply(name, s.Value, s.Signed)
	case SET:
		value := s.StringValue
		if value == "" {
			value = "0"
		}
		mm.Sets.add(name, value)
	default:
		mm.Counters.add(name, s.Value/rate)
	}
}

// IsEmpty returns true if no metric of any type has been received.
func (mm *MetricMap) IsEmpty() bool {
	return mm.Counters.Len()+mm.Timers.Len()+mm.Gauges.Len()+mm.Sets.Len() == 0
}
