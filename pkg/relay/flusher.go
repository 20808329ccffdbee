package relay

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/atlassian/statsrelay"
	"github.com/atlassian/statsrelay/internal/util"
	"github.com/atlassian/statsrelay/pkg/healthcheck"
	"github.com/atlassian/statsrelay/pkg/stats"
)

// MetricSwapper hands over the MetricMap of the current interval and starts a new one.
type MetricSwapper interface {
	Swap() *statsrelay.MetricMap
}

// MetricFlusher periodically takes the MetricMap from a MetricSwapper and dispatches it.
type MetricFlusher struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	lastFlush int64 // Last time a flush completed. Unix timestamp in nsec.

	logger        logrus.FieldLogger
	flushInterval time.Duration // How often to flush metrics
	flushOffset   time.Duration // Offset for when to flush if alignment is enabled
	flushAligned  bool          // Indicate if flush is aligned to the interval or not
	swapper       MetricSwapper
	handler       statsrelay.MetricMapHandler
}

// NewMetricFlusher creates a new MetricFlusher with provided configuration.
func NewMetricFlusher(logger logrus.FieldLogger, flushInterval, flushOffset time.Duration, aligned bool, swapper MetricSwapper, handler statsrelay.MetricMapHandler) *MetricFlusher {
	return &MetricFlusher{
		logger:        logger,
		flushInterval: flushInterval,
		flushOffset:   flushOffset,
		flushAligned:  aligned,
		swapper:       swapper,
		handler:       handler,
	}
}

func (f *MetricFlusher) makeTicker(ctx context.Context) (<-chan time.Time, func()) {
	if f.flushAligned {
		flushTicker := util.NewAlignedTicker(ctx, f.flushInterval, f.flushOffset)
		return flushTicker.C, flushTicker.Stop
	}
	flushTicker := clock.FromContext(ctx).NewTicker(f.flushInterval)
	return flushTicker.C, flushTicker.Stop
}

// Run runs the MetricFlusher until ctx is done, then flushes one last time so that the metrics
// received since the last tick are not lost.
func (f *MetricFlusher) Run(ctx context.Context) {
	atomic.StoreInt64(&f.lastFlush, time.Now().UnixNano())

	ch, stop := f.makeTicker(ctx)
	defer stop()

	lastFlush := clock.FromContext(ctx).Now()
	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), f.flushInterval)
			f.flush(stats.NewContext(finalCtx, stats.FromContext(ctx)))
			cancel()
			return
		case thisFlush := <-ch:
			stats.FromContext(ctx).NotifyFlush(ctx, thisFlush.Sub(lastFlush))
			f.flush(ctx)
			lastFlush = thisFlush
		}
	}
}

func (f *MetricFlusher) flush(ctx context.Context) {
	statser := stats.FromContext(ctx)
	timer := statser.NewTimer("flusher.total_time")
	mm := f.swapper.Swap()
	f.handler.DispatchMetricMap(ctx, mm)
	timer.SendGauge()
	atomic.StoreInt64(&f.lastFlush, time.Now().UnixNano())
}

// HealthChecks reports unhealthy when no flush completed in the last three intervals.
func (f *MetricFlusher) HealthChecks() []healthcheck.HealthcheckFunc {
	return []healthcheck.HealthcheckFunc{f.flushCheck}
}

func (f *MetricFlusher) flushCheck() (string, healthcheck.HealthyStatus) {
	since := time.Since(time.Unix(0, atomic.LoadInt64(&f.lastFlush)))
	if since > 3*f.flushInterval {
		return fmt.Sprintf("no flush for %v", since), healthcheck.Unhealthy
	}
	return fmt.Sprintf("last flush %v ago", since), healthcheck.Healthy
}
