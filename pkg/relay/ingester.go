package relay

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/atlassian/statsrelay"
	"github.com/atlassian/statsrelay/internal/lexer"
	"github.com/atlassian/statsrelay/pkg/aggregation"
	"github.com/atlassian/statsrelay/pkg/stats"
)

// Ingester parses lines into the MetricMap of the current flush interval. It is safe for
// concurrent use: all the mutations of a line are applied under one lock, so a line is never split
// across two flushes.
type Ingester struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	lastLine      int64 // When the last line was received. Unix timestamp in nsec.
	linesReceived uint64
	badLines      uint64

	logger         logrus.FieldLogger
	expander       *aggregation.Expander
	namespace      string
	dumpMessages   bool
	badLineLimiter *rate.Limiter // nil when bad lines are not logged
	lexers         sync.Pool

	mu sync.Mutex
	mm *statsrelay.MetricMap
}

// NewIngester creates an Ingester. Up to badLinesPerMinute bad lines are logged at debug level.
func NewIngester(logger logrus.FieldLogger, expander *aggregation.Expander, namespace string, dumpMessages bool, badLinesPerMinute float64) *Ingester {
	var limiter *rate.Limiter
	if badLinesPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(badLinesPerMinute/60.0), 1)
	}
	return &Ingester{
		logger:         logger,
		expander:       expander,
		namespace:      namespace,
		dumpMessages:   dumpMessages,
		badLineLimiter: limiter,
		lexers: sync.Pool{
			New: func() interface{} {
				return &lexer.Lexer{}
			},
		},
		mm: statsrelay.NewMetricMap(),
	}
}

// HandleLine parses a single line and applies it, along with the keys derived from it, to the
// current MetricMap. The line may be modified.
func (i *Ingester) HandleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	atomic.AddUint64(&i.linesReceived, 1)
	atomic.StoreInt64(&i.lastLine, time.Now().UnixNano())

	var raw string
	if i.dumpMessages || i.badLineLimiter != nil {
		raw = string(line) // the lexer sanitizes in place
		if i.dumpMessages {
			i.logger.WithField("line", raw).Debug("Received line")
		}
	}

	lex := i.lexers.Get().(*lexer.Lexer)
	defer i.lexers.Put(lex)

	parsed, err := lex.Run(line, i.namespace)
	if err != nil {
		i.badLine(raw, err)
		return
	}
	for _, groupErr := range parsed.Errors {
		i.badLine(raw, groupErr)
	}
	if len(parsed.Samples) == 0 {
		return
	}

	// The rules only depend on the key and the type, so each type is expanded once per line.
	var derived [statsrelay.SET + 1][]string
	var expanded [statsrelay.SET + 1]bool
	for _, s := range parsed.Samples {
		if !expanded[s.Type] {
			derived[s.Type] = i.expander.Expand(parsed.Key, s.Type)
			expanded[s.Type] = true
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	for idx := range parsed.Samples {
		s := &parsed.Samples[idx]
		i.mm.Receive(parsed.Key, s)
		for _, key := range derived[s.Type] {
			i.mm.Receive(key, s)
		}
	}
}

// HandleSample applies a single already parsed sample, along with the keys derived from it.
func (i *Ingester) HandleSample(name string, s *statsrelay.Sample) {
	name = lexer.SanitizeKey(name)
	if name == "" {
		return
	}
	derived := i.expander.Expand(name, s.Type)

	i.mu.Lock()
	defer i.mu.Unlock()
	i.mm.Receive(name, s)
	for _, key := range derived {
		i.mm.Receive(key, s)
	}
}

func (i *Ingester) badLine(line string, err error) {
	atomic.AddUint64(&i.badLines, 1)
	if i.badLineLimiter != nil && i.badLineLimiter.Allow() {
		i.logger.WithFields(logrus.Fields{
			"line":  line,
			"error": err,
		}).Debug("Error parsing line")
	}
}

// Swap installs a fresh MetricMap and returns the previous one, which is no longer modified.
func (i *Ingester) Swap() *statsrelay.MetricMap {
	fresh := statsrelay.NewMetricMap()

	i.mu.Lock()
	defer i.mu.Unlock()
	mm := i.mm
	i.mm = fresh
	return mm
}

// RunMetricsContext reports ingestion counters on every flush.
func (i *Ingester) RunMetricsContext(ctx context.Context) {
	statser := stats.FromContext(ctx).WithPrefix("ingester")
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			statser.Count("lines_received", float64(atomic.SwapUint64(&i.linesReceived, 0)))
			statser.Count("bad_lines_seen", float64(atomic.SwapUint64(&i.badLines, 0)))
			if last := atomic.LoadInt64(&i.lastLine); last != 0 {
				statser.Gauge("last_message_seen", float64(time.Unix(0, last).Unix()))
			}
		}
	}
}
