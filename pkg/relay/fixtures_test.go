package relay

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlassian/statsrelay"
	"github.com/atlassian/statsrelay/internal/fixtures"
	"github.com/atlassian/statsrelay/pkg/aggregation"
)

type capturingLineHandler struct {
	mu    sync.Mutex
	lines []string
}

func (clh *capturingLineHandler) HandleLine(line []byte) {
	clh.mu.Lock()
	defer clh.mu.Unlock()
	clh.lines = append(clh.lines, string(line))
}

func (clh *capturingLineHandler) Lines() []string {
	clh.mu.Lock()
	defer clh.mu.Unlock()
	return append([]string(nil), clh.lines...)
}

type capturingMapHandler struct {
	mu   sync.Mutex
	maps []*statsrelay.MetricMap
}

func (cmh *capturingMapHandler) DispatchMetricMap(ctx context.Context, mm *statsrelay.MetricMap) {
	cmh.mu.Lock()
	defer cmh.mu.Unlock()
	cmh.maps = append(cmh.maps, mm)
}

func (cmh *capturingMapHandler) MetricMaps() []*statsrelay.MetricMap {
	cmh.mu.Lock()
	defer cmh.mu.Unlock()
	return append([]*statsrelay.MetricMap(nil), cmh.maps...)
}

func newTestIngester(t *testing.T, namespace string, rules ...aggregation.RuleConfig) *Ingester {
	compiled := make([]*aggregation.Rule, 0, len(rules))
	for _, cfg := range rules {
		r, err := aggregation.NewRule(cfg)
		require.NoError(t, err)
		compiled = append(compiled, r)
	}
	logger := fixtures.NewTestLogger(t)
	return NewIngester(logger, aggregation.NewExpander(logger, compiled), namespace, true, 60)
}

// capturingSampleHandler sums counters across flushes and keeps the latest value of other types.
type capturingSampleHandler struct {
	mu      sync.Mutex
	samples map[string]statsrelay.Sample
}

func (csh *capturingSampleHandler) HandleSample(name string, s *statsrelay.Sample) {
	csh.mu.Lock()
	defer csh.mu.Unlock()
	if csh.samples == nil {
		csh.samples = map[string]statsrelay.Sample{}
	}
	if prev, ok := csh.samples[name]; ok && s.Type == statsrelay.COUNTER {
		prev.Value += s.Value
		csh.samples[name] = prev
		return
	}
	csh.samples[name] = *s
}

func (csh *capturingSampleHandler) Sample(name string) (statsrelay.Sample, bool) {
	csh.mu.Lock()
	defer csh.mu.Unlock()
	s, ok := csh.samples[name]
	return s, ok
}
