package statsrelay

// Gauges stores the latest gauge values keyed by metric name. Iteration follows first-seen order.
type Gauges struct {
	names  []string
	values map[string]float64
}

func newGauges() Gauges {
	return Gauges{values: map[string]float64{}}
}

// apply sets the gauge, or adjusts it when the sample is signed and a value is already known.
func (g *Gauges) apply(name string, value float64, signed bool) {
	current, ok := g.values[name]
	switch {
	case !ok:
		g.names = append(g.names, name)
		g.values[name] = value
	case signed:
		g.values[name] = current + value
	default:
		g.values[name] = value
	}
}

// Get returns the current value of name.
func (g Gauges) Get(name string) (float64, bool) {
	v, ok := g.values[name]
	return v, ok
}

// Len returns the number of distinct gauges.
func (g Gauges) Len() int {
	return len(g.names)
}

// Each iterates over each gauge in insertion order.
func (g Gauges) Each(f func(name string, value float64)) {
	for _, name := range g.names {
		f(name, g.values[name])
	}
}
