package statsrelay

// Counters stores counter totals keyed by metric name. Iteration follows first-seen order.
type Counters struct {
	names  []string
	values map[string]float64
}

func newCounters() Counters {
	return Counters{values: map[string]float64{}}
}

func (c *Counters) add(name string, delta float64) {
	if _, ok := c.values[name]; !ok {
		c.names = append(c.names, name)
	}
	c.values[name] += delta
}

// Get returns the current total for name.
func (c Counters) Get(name string) (float64, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Len returns the number of distinct counters.
func (c Counters) Len() int {
	return len(c.names)
}

// Each iterates over each counter in insertion order.
func (c Counters) Each(f func(name string, value float64)) {
	for _, name := range c.names {
		f(name, c.values[name])
	}
}
