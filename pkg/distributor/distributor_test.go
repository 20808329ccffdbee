package distributor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/statsrelay"
	"github.com/atlassian/statsrelay/internal/fixtures"
	"github.com/atlassian/statsrelay/pkg/cluster/ring"
	"github.com/atlassian/statsrelay/pkg/sender"
)

type capturingSender struct {
	mu       sync.Mutex
	payloads map[string][]string
	failing  map[string]bool
}

func newCapturingSender() *capturingSender {
	return &capturingSender{
		payloads: map[string][]string{},
		failing:  map[string]bool{},
	}
}

func (cs *capturingSender) Send(ctx context.Context, shard statsrelay.Shard, payloads []string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.failing[shard.Address()] {
		return errors.New("connection refused")
	}
	cs.payloads[shard.Address()] = append(cs.payloads[shard.Address()], payloads...)
	return nil
}

func shardsAt(indexes ...int) []statsrelay.Shard {
	shards := make([]statsrelay.Shard, 0, len(indexes))
	for i, idx := range indexes {
		shards = append(shards, statsrelay.Shard{
			Hostname:  "10.0.0.1",
			Port:      3000 + i,
			Protocol:  statsrelay.UDP4,
			RingIndex: idx,
		})
	}
	return shards
}

func newTestDistributor(t *testing.T, shards []statsrelay.Shard, replication int, s ShardSender) *Distributor {
	r, err := ring.NewRing(fixtures.NewTestLogger(t), shards, 100, replication)
	require.NoError(t, err)
	return NewDistributor(fixtures.NewTestLogger(t), r, NewReconstituter(nil), DefaultBatchSize, s, 0)
}

func TestAssign(t *testing.T) {
	t.Parallel()
	d := newTestDistributor(t, shardsAt(0, 25, 50, 75), 1, newCapturingSender())

	// positions: foo 74, x 20, glork 3, web.api.count 89
	assert.Equal(t, []int{2}, d.Assign("foo:1|c"))
	assert.Equal(t, []int{0}, d.Assign("x:1|c"))
	assert.Equal(t, []int{0}, d.Assign("glork:1|ms:2|ms"))
	assert.Equal(t, []int{3}, d.Assign("web.api.count:1|c"))
	assert.Equal(t, []int{2}, d.Assign("foo"))
}

func TestAssignReplication(t *testing.T) {
	t.Parallel()
	d := newTestDistributor(t, shardsAt(0, 25, 50, 75), 2, newCapturingSender())

	assert.Equal(t, []int{2, 3}, d.Assign("foo:1|c"))
	assert.Equal(t, []int{3, 0}, d.Assign("web.api.count:1|c"))
}

func TestAssignWraps(t *testing.T) {
	t.Parallel()
	d := newTestDistributor(t, shardsAt(10, 60), 1, newCapturingSender())

	assert.Equal(t, []int{0}, d.Assign("x:1|c"))     // 20
	assert.Equal(t, []int{1}, d.Assign("glork:1|c")) // 3, below every ring index
	assert.Equal(t, []int{1}, d.Assign("foo:1|c"))   // 74
}

func TestAssignFullReplication(t *testing.T) {
	t.Parallel()
	d := newTestDistributor(t, shardsAt(10, 60, 90), 5, newCapturingSender())

	for _, line := range []string{"x:1|c", "glork:1|c", "foo:1|c"} {
		assert.Equal(t, []int{0, 1, 2}, d.Assign(line), line)
	}
}

func TestDistribute(t *testing.T) {
	t.Parallel()
	d := newTestDistributor(t, shardsAt(0, 25, 50, 75), 1, newCapturingSender())

	buckets := d.Distribute([]string{"foo:1|c", "x:1|c", "web.api.count:1|c", "glork:2|c"})
	assert.Equal(t, [][]string{
		{"x:1|c", "glork:2|c"},
		nil,
		{"foo:1|c"},
		{"web.api.count:1|c"},
	}, buckets)
}

func TestDispatchMetricMap(t *testing.T) {
	t.Parallel()
	shards := shardsAt(0, 50)
	cs := newCapturingSender()
	d := newTestDistributor(t, shards, 1, cs)

	mm := statsrelay.NewMetricMap()
	for _, name := range []string{"foo", "x", "glork"} {
		mm.Receive(name, &statsrelay.Sample{Type: statsrelay.COUNTER, Value: 1, Rate: 1})
	}
	d.DispatchMetricMap(context.Background(), mm)

	assert.Equal(t, map[string][]string{
		shards[0].Address(): {"x:1|c\nglork:1|c"},
		shards[1].Address(): {"foo:1|c"},
	}, cs.payloads)
}

func TestDispatchEmptyMetricMap(t *testing.T) {
	t.Parallel()
	cs := newCapturingSender()
	d := newTestDistributor(t, shardsAt(0, 50), 1, cs)

	d.DispatchMetricMap(context.Background(), statsrelay.NewMetricMap())
	assert.Empty(t, cs.payloads)
}

func TestDispatchFailureIsIsolated(t *testing.T) {
	t.Parallel()
	shards := shardsAt(0, 50)
	cs := newCapturingSender()
	cs.failing[shards[1].Address()] = true
	d := newTestDistributor(t, shards, 1, cs)

	mm := statsrelay.NewMetricMap()
	for _, name := range []string{"foo", "x"} {
		mm.Receive(name, &statsrelay.Sample{Type: statsrelay.COUNTER, Value: 1, Rate: 1})
	}
	d.DispatchMetricMap(context.Background(), mm)

	assert.Equal(t, map[string][]string{
		shards[0].Address(): {"x:1|c"},
	}, cs.payloads)
}

func TestDispatchToSockets(t *testing.T) {
	t.Parallel()
	udp := fixtures.NewCapturingShard(t, statsrelay.UDP4, 0)
	tcp := fixtures.NewCapturingShard(t, statsrelay.TCP4, 50)

	logger := fixtures.NewTestLogger(t)
	r, err := ring.NewRing(logger, []statsrelay.Shard{udp.Shard, tcp.Shard}, 100, 1)
	require.NoError(t, err)
	s := sender.NewSender(logger, time.Second, time.Second)
	d := NewDistributor(logger, r, NewReconstituter(nil), 12, s, 1)

	mm := statsrelay.NewMetricMap()
	for _, name := range []string{"foo", "x", "glork"} {
		mm.Receive(name, &statsrelay.Sample{Type: statsrelay.COUNTER, Value: 1, Rate: 1})
	}
	mm.Receive("foo", &statsrelay.Sample{Type: statsrelay.GAUGE, Value: 2, Rate: 1})
	d.DispatchMetricMap(context.Background(), mm)

	assert.Equal(t, []string{"x:1|c", "glork:1|c"}, udp.Wait(t, 2, 5*time.Second))
	assert.Equal(t, []string{"foo:2|g\nfoo:1|c"}, tcp.Wait(t, 1, 5*time.Second))
}

func TestNewDistributorFromViper(t *testing.T) {
	t.Parallel()
	logger := fixtures.NewTestLogger(t)
	r, err := ring.NewRing(logger, shardsAt(0), 10, 1)
	require.NoError(t, err)

	v := viper.New()
	v.Set(ParamBlacklist, []string{`^internal\.`})
	d, err := NewDistributorFromViper(logger, v, r, newCapturingSender())
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, d.batchSize)
	assert.True(t, d.reconstituter.blacklist.MatchAny("internal.foo"))

	v = viper.New()
	v.Set(ParamBatchSize, 0)
	_, err = NewDistributorFromViper(logger, v, r, newCapturingSender())
	require.Error(t, err)

	v = viper.New()
	v.Set(ParamBlacklist, []string{"("})
	_, err = NewDistributorFromViper(logger, v, r, newCapturingSender())
	require.Error(t, err)
}
