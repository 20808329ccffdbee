package distributor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/statsrelay"
	"github.com/atlassian/statsrelay/internal/util"
	"github.com/atlassian/statsrelay/pkg/cluster/ring"
	"github.com/atlassian/statsrelay/pkg/stats"
)

const (
	// DefaultBatchSize is the default maximum size of a payload in bytes.
	DefaultBatchSize = 1024
	// DefaultMaxConcurrentSends is the default limit of shards sent to in parallel, 0 is unlimited.
	DefaultMaxConcurrentSends = 0

	// ParamBatchSize is the name of parameter with the maximum payload size.
	ParamBatchSize = "batch-size"
	// ParamBlacklist is the name of parameter with the regular expressions of keys never sent.
	ParamBlacklist = "blacklist"
	// ParamMaxConcurrentSends is the name of parameter with the limit of shards sent to in parallel.
	ParamMaxConcurrentSends = "max-concurrent-sends"
)

// ShardSender delivers payloads to a single shard.
type ShardSender interface {
	Send(ctx context.Context, shard statsrelay.Shard, payloads []string) error
}

// Distributor routes each flushed line to its shards and sends them.
type Distributor struct {
	logger        logrus.FieldLogger
	ring          *ring.Ring
	shards        []statsrelay.Shard
	reconstituter *Reconstituter
	batchSize     int
	sender        ShardSender
	sem           util.Semaphore

	linesDistributed uint64 // atomic
	failedShards     uint64 // atomic
}

// NewDistributor creates a Distributor. batchSize must be positive.
func NewDistributor(logger logrus.FieldLogger, r *ring.Ring, reconstituter *Reconstituter, batchSize int, sender ShardSender, maxConcurrentSends int) *Distributor {
	return &Distributor{
		logger:        logger,
		ring:          r,
		shards:        r.Shards(),
		reconstituter: reconstituter,
		batchSize:     batchSize,
		sender:        sender,
		sem:           util.NewSemaphore(maxConcurrentSends),
	}
}

// NewDistributorFromViper creates a Distributor from configuration.
func NewDistributorFromViper(logger logrus.FieldLogger, v *viper.Viper, r *ring.Ring, sender ShardSender) (*Distributor, error) {
	v.SetDefault(ParamBatchSize, DefaultBatchSize)
	v.SetDefault(ParamMaxConcurrentSends, DefaultMaxConcurrentSends)

	batchSize := v.GetInt(ParamBatchSize)
	if batchSize < 1 {
		return nil, fmt.Errorf("%s must be positive", ParamBatchSize)
	}
	blacklist, err := statsrelay.NewStringMatchList(v.GetStringSlice(ParamBlacklist))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %v", ParamBlacklist, err)
	}
	return NewDistributor(logger, r, NewReconstituter(blacklist), batchSize, sender, v.GetInt(ParamMaxConcurrentSends)), nil
}

// Assign returns the indexes, in ring order, of the shards line is sent to. The key is the text
// before the first ':'.
func (d *Distributor) Assign(line string) []int {
	key := line
	if i := strings.IndexByte(line, ':'); i >= 0 {
		key = line[:i]
	}
	return d.ring.Placements(key)
}

// Distribute buckets lines per shard, in ring order. Every bucket keeps the order of lines.
func (d *Distributor) Distribute(lines []string) [][]string {
	buckets := make([][]string, len(d.shards))
	for _, line := range lines {
		for _, idx := range d.Assign(line) {
			buckets[idx] = append(buckets[idx], line)
		}
	}
	return buckets
}

// DispatchMetricMap renders, routes and sends a flushed MetricMap. It returns once every shard
// send has finished. Failures are logged and isolated to the failing shard.
func (d *Distributor) DispatchMetricMap(ctx context.Context, mm *statsrelay.MetricMap) {
	lines := d.reconstituter.Reconstitute(mm)
	atomic.AddUint64(&d.linesDistributed, uint64(len(lines)))
	buckets := d.Distribute(lines)

	var wg sync.WaitGroup
	for idx, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		if !d.sem.Acquire(ctx) {
			break
		}
		wg.Add(1)
		go func(shard statsrelay.Shard, bucket []string) {
			defer wg.Done()
			defer d.sem.Release()
			d.send(ctx, shard, bucket)
		}(d.shards[idx], bucket)
	}
	wg.Wait()
}

func (d *Distributor) send(ctx context.Context, shard statsrelay.Shard, lines []string) {
	payloads := Pack(lines, d.batchSize)
	if err := d.sender.Send(ctx, shard, payloads); err != nil {
		atomic.AddUint64(&d.failedShards, 1)
		d.logger.WithFields(logrus.Fields{
			"shard":    shard.Address(),
			"protocol": shard.Protocol,
			"lines":    len(lines),
			"payloads": len(payloads),
		}).WithError(err).Warn("Failed to send to shard")
	}
}

// Ring returns the ring used for placement.
func (d *Distributor) Ring() *ring.Ring {
	return d.ring
}

// RunMetricsContext reports distribution counters on every flush.
func (d *Distributor) RunMetricsContext(ctx context.Context) {
	statser := stats.FromContext(ctx).WithPrefix("distributor")
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			statser.Count("lines", float64(atomic.SwapUint64(&d.linesDistributed, 0)))
			statser.Count("failed_shards", float64(atomic.SwapUint64(&d.failedShards, 0)))
		}
	}
}
