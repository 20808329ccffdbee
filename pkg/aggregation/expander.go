package aggregation

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/atlassian/statsrelay"
	"github.com/atlassian/statsrelay/internal/lexer"
	"github.com/atlassian/statsrelay/pkg/stats"
)

// MaxDepth is how many levels of recursive rules are followed for a single key.
const MaxDepth = 20

// Expander derives additional keys from a metric key using an ordered list of rules. It never
// mutates its rules and is safe for concurrent use.
type Expander struct {
	logger     logrus.FieldLogger
	rules      []*Rule
	logLimiter *rate.Limiter

	recursive     uint64 // atomic
	depthExceeded uint64 // atomic
}

// NewExpander creates an Expander. Anomalies are logged at most once per second.
func NewExpander(logger logrus.FieldLogger, rules []*Rule) *Expander {
	return &Expander{
		logger:     logger,
		rules:      rules,
		logLimiter: rate.NewLimiter(rate.Limit(1), 1),
	}
}

// Rules returns the rules of the Expander.
func (e *Expander) Rules() []*Rule {
	return e.rules
}

// Expand returns the keys derived from key for a metric of type mt, in the order they were
// produced. The original key is never part of the result and no key is returned twice.
func (e *Expander) Expand(key string, mt statsrelay.MetricType) []string {
	if len(e.rules) == 0 {
		return nil
	}
	seen := map[string]struct{}{key: {}}
	return e.expand(key, mt, 0, seen, nil)
}

func (e *Expander) expand(key string, mt statsrelay.MetricType, depth int, seen map[string]struct{}, out []string) []string {
	for _, rule := range e.rules {
		if !rule.Types.Has(mt) {
			continue
		}
		submatches := rule.Match.FindStringSubmatch(key)
		if submatches == nil {
			continue
		}
		for _, tpl := range rule.Generate {
			derived := lexer.SanitizeKey(tpl.Expand(submatches))
			if derived == "" {
				continue
			}
			if _, ok := seen[derived]; ok {
				atomic.AddUint64(&e.recursive, 1)
				e.logAnomaly("Recursive aggregation detected", key, derived, rule, depth)
				continue
			}
			seen[derived] = struct{}{}
			out = append(out, derived)
			if !rule.Recursive {
				continue
			}
			if depth+1 > MaxDepth {
				atomic.AddUint64(&e.depthExceeded, 1)
				e.logAnomaly("Aggregation depth exceeded", key, derived, rule, depth)
				continue
			}
			out = e.expand(derived, mt, depth+1, seen, out)
		}
		if rule.Last {
			break
		}
	}
	return out
}

func (e *Expander) logAnomaly(msg, key, derived string, rule *Rule, depth int) {
	if !e.logLimiter.Allow() {
		return
	}
	e.logger.WithFields(logrus.Fields{
		"key":     key,
		"derived": derived,
		"rule":    rule.Match.String(),
		"depth":   depth,
	}).Warn(msg)
}

// RunMetricsContext reports anomaly counts on every flush.
func (e *Expander) RunMetricsContext(ctx context.Context) {
	statser := stats.FromContext(ctx).WithPrefix("aggregation")
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			statser.Count("recursive", float64(atomic.SwapUint64(&e.recursive, 0)))
			statser.Count("depth_exceeded", float64(atomic.SwapUint64(&e.depthExceeded, 0)))
		}
	}
}
