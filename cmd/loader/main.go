package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

func main() {
	opts := parseArgs(os.Args[1:])

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pendingWorkers := make(chan struct{}, opts.Workers)
	metricGenerators := make([]*metricGenerator, 0, opts.Workers)
	for i := uint(0); i < opts.Workers; i++ {
		generator := newMetricGenerator(rand.New(rand.NewSource(rand.Int63())), opts.SampleRate)
		generator.counters = metricData{
			nameFormat:      fmt.Sprintf("%scounter%s", opts.MetricPrefix, opts.MetricSuffix),
			count:           opts.Counts.Counter / uint64(opts.Workers),
			nameCardinality: opts.NameCard.Counter,
			valueLimit:      opts.ValueRange.Counter,
		}
		generator.gauges = metricData{
			nameFormat:      fmt.Sprintf("%sgauge%s", opts.MetricPrefix, opts.MetricSuffix),
			count:           opts.Counts.Gauge / uint64(opts.Workers),
			nameCardinality: opts.NameCard.Gauge,
			valueLimit:      opts.ValueRange.Gauge,
		}
		generator.sets = metricData{
			nameFormat:      fmt.Sprintf("%sset%s", opts.MetricPrefix, opts.MetricSuffix),
			count:           opts.Counts.Set / uint64(opts.Workers),
			nameCardinality: opts.NameCard.Set,
			valueLimit:      opts.ValueRange.Set,
		}
		generator.timers = metricData{
			nameFormat:      fmt.Sprintf("%stimer%s", opts.MetricPrefix, opts.MetricSuffix),
			count:           opts.Counts.Timer / uint64(opts.Workers),
			nameCardinality: opts.NameCard.Timer,
			valueLimit:      opts.ValueRange.Timer,
		}
		metricGenerators = append(metricGenerators, generator)
		go sendMetricsWorker(
			ctx,
			opts.Network,
			opts.Target,
			opts.DatagramSize,
			rate.NewLimiter(rate.Limit(float64(opts.Rate)/float64(opts.Workers)), 1),
			generator,
			pendingWorkers,
		)
	}

	runningWorkers := opts.Workers
	statusTicker := time.NewTicker(1 * time.Second)
	defer statusTicker.Stop()
	for runningWorkers > 0 {
		select {
		case <-pendingWorkers:
			runningWorkers--
		case <-statusTicker.C:
			counters := uint64(0)
			gauges := uint64(0)
			sets := uint64(0)
			timers := uint64(0)
			for _, mg := range metricGenerators {
				counters += atomic.LoadUint64(&mg.counters.count)
				gauges += atomic.LoadUint64(&mg.gauges.count)
				sets += atomic.LoadUint64(&mg.sets.count)
				timers += atomic.LoadUint64(&mg.timers.count)
			}
			fmt.Printf("%d counters, %d gauges, %d sets, %d timers remaining\n", counters, gauges, sets, timers)
		}
	}
}

func sendMetricsWorker(
	ctx context.Context,
	network string,
	address string,
	bufSize uint,
	limiter *rate.Limiter,
	generator *metricGenerator,
	chDone chan<- struct{},
) {
	defer func() {
		chDone <- struct{}{}
	}()
	s, err := net.DialTimeout(network, address, 1*time.Second)
	if err != nil {
		panic(err)
	}
	defer s.Close()

	b := &bytes.Buffer{}
	sb := &strings.Builder{}
	for generator.next(sb) {
		if uint(b.Len()+sb.Len()) > bufSize {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if _, err := s.Write(b.Bytes()); err != nil {
				fmt.Printf("Pausing for 1 second, error sending packet: %v\n", err)
				time.Sleep(1 * time.Second)
			}
			b.Reset()
		}
		b.WriteString(sb.String())
		sb.Reset()
	}

	if b.Len() > 0 {
		if _, err := s.Write(b.Bytes()); err != nil {
			panic(err)
		}
	}
}
