package statsrelay

// Timer holds the raw observations of a timer over one flush interval.
type Timer struct {
	Values []float64
	// Count is the effective number of observations, the sum of 1/rate of every sample.
	Count float64
}

// SampleRate returns the ratio of observed to effective samples.
func (t *Timer) SampleRate() float64 {
	if t.Count == 0 {
		return 1
	}
	return float64(len(t.Values)) / t.Count
}

// Timers stores timers keyed by metric name. Iteration follows first-seen order.
type Timers struct {
	names  []string
	values map[string]*Timer
}

func newTimers() Timers {
	return Timers{values: map[string]*Timer{}}
}

func (t *Timers) add(name string, value, rate float64) {
	timer, ok := t.values[name]
	if !ok {
		timer = &Timer{}
		t.names = append(t.names, name)
		t.values[name] = timer
	}
	timer.Values = append(timer.Values, value)
	timer.Count += 1 / rate
}

// Get returns the timer stored under name.
func (t Timers) Get(name string) (*Timer, bool) {
	v, ok := t.values[name]
	return v, ok
}

// Len returns the number of distinct timers.
func (t Timers) Len() int {
	return len(t.names)
}

// Each iterates over each timer in insertion order.
func (t Timers) Each(f func(name string, timer *Timer)) {
	for _, name := range t.names {
		f(name, t.values[name])
	}
}
