package statsrelay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiveCounter(t *testing.T) {
	t.Parallel()
	mm := NewMetricMap()
	mm.Receive("foo.bar", &Sample{Type: COUNTER, Value: 2, Rate: 1})
	mm.Receive("smp.rte", &Sample{Type: COUNTER, Value: 2, Rate: 0.25})
	mm.Receive("foo.bar", &Sample{Type: COUNTER, Value: 3, Rate: 1})
	mm.Receive("smp.rte", &Sample{Type: COUNTER, Value: 5, Rate: 0.25})

	v, ok := mm.Counters.Get("foo.bar")
	require.True(t, ok)
	assert.EqualValues(t, 5, v)
	v, ok = mm.Counters.Get("smp.rte")
	require.True(t, ok)
	assert.EqualValues(t, 28, v)
	assert.Equal(t, 2, mm.Counters.Len())
}

func TestReceiveGauge(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		samples  []Sample
		expected float64
	}{
		{"set", []Sample{{Type: GAUGE, Value: 3}}, 3},
		{"overwrite", []Sample{{Type: GAUGE, Value: 3}, {Type: GAUGE, Value: 7}}, 7},
		{"signed without prior sets", []Sample{{Type: GAUGE, Value: -5, Signed: true}}, -5},
		{"signed adds", []Sample{{Type: GAUGE, Value: 10}, {Type: GAUGE, Value: -4, Signed: true}, {Type: GAUGE, Value: 1, Signed: true}}, 7},
		{"unsigned after signed sets", []Sample{{Type: GAUGE, Value: 10}, {Type: GAUGE, Value: 4, Signed: true}, {Type: GAUGE, Value: 2}}, 2},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			mm := NewMetricMap()
			for i := range test.samples {
				mm.Receive("g", &test.samples[i])
			}
			v, ok := mm.Gauges.Get("g")
			require.True(t, ok)
			assert.Equal(t, test.expected, v)
		})
	}
}

func TestReceiveTimer(t *testing.T) {
	t.Parallel()
	mm := NewMetricMap()
	mm.Receive("t", &Sample{Type: TIMER, Value: 10, Rate: 0.1})
	mm.Receive("t", &Sample{Type: TIMER, Value: 30, Rate: 0.1})
	mm.Receive("t", &Sample{Type: TIMER, Value: 50, Rate: 0.1})

	timer, ok := mm.Timers.Get("t")
	require.True(t, ok)
	assert.Equal(t, []float64{10, 30, 50}, timer.Values)
	assert.InDelta(t, 30, timer.Count, 1e-9)
	assert.InDelta(t, 0.1, timer.SampleRate(), 1e-9)
}

func TestReceiveSet(t *testing.T) {
	t.Parallel()
	mm := NewMetricMap()
	for _, v := range []string{"joe", "bob", "joe", "", "john"} {
		mm.Receive("uniq", &Sample{Type: SET, StringValue: v, Rate: 1})
	}
	set, ok := mm.Sets.Get("uniq")
	require.True(t, ok)
	assert.Equal(t, []string{"joe", "bob", "0", "john"}, set.Values)
}

func TestMetricMapInsertionOrder(t *testing.T) {
	t.Parallel()
	mm := NewMetricMap()
	for _, name := range []string{"c", "a", "b", "a"} {
		mm.Receive(name, &Sample{Type: COUNTER, Value: 1, Rate: 1})
	}
	var names []string
	mm.Counters.Each(func(name string, value float64) {
		names = append(names, name)
	})
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func TestMetricMapIsEmpty(t *testing.T) {
	t.Parallel()
	mm := NewMetricMap()
	assert.True(t, mm.IsEmpty())
	mm.Receive("s", &Sample{Type: SET, StringValue: "x"})
	assert.False(t, mm.IsEmpty())
}
