package stats

import (
	"sync/atomic"
)

// repeatCount is how many flushes a changed value keeps being sent for.
const repeatCount = 22

// ChangeGauge sends a gauge for a rarely changing value, such as a count of bad lines, for a number of
// flushes after it changes. Values which change constantly should be sent as counters instead.
type ChangeGauge struct {
	// Cur is the current value and is read atomically by SendIfChanged.
	Cur uint64 // atomic

	prev    uint64
	pending uint64 // number of times to re-send
}

// SendIfChanged sends Cur if it changed in the last repeatCount calls.
func (cg *ChangeGauge) SendIfChanged(statser Statser, metricName string) {
	v := atomic.LoadUint64(&cg.Cur)
	if v != cg.prev {
		cg.prev = v
		cg.pending = repeatCount
	}
	if cg.pending > 0 {
		cg.pending--
		statser.Gauge(metricName, float64(v))
	}
}
