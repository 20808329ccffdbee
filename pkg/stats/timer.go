package stats

import (
	"time"
)

// Timer measures the time between its creation and a call to Send.
type Timer struct {
	statser Statser
	name    string
	start   time.Time
}

func newTimer(statser Statser, name string) *Timer {
	return &Timer{
		statser: statser,
		name:    name,
		start:   time.Now(),
	}
}

// Send sends the elapsed time as a timing metric.
func (t *Timer) Send() {
	t.statser.TimingDuration(t.name, time.Since(t.start))
}

// SendGauge sends the elapsed time in milliseconds as a gauge.
func (t *Timer) SendGauge() {
	t.statser.Gauge(t.name, float64(time.Since(t.start))/float64(time.Millisecond))
}
