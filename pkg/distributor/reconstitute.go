package distributor

import (
	"strconv"
	"strings"

	"github.com/atlassian/statsrelay"
)

// Reconstituter turns a flushed MetricMap back into wire lines.
type Reconstituter struct {
	blacklist statsrelay.StringMatchList
}

// NewReconstituter creates a Reconstituter skipping every key matched by blacklist.
func NewReconstituter(blacklist statsrelay.StringMatchList) *Reconstituter {
	return &Reconstituter{blacklist: blacklist}
}

// Reconstitute renders mm as wire lines: gauges, then counters, then timers, then sets. Metrics
// of each type keep their insertion order.
func (r *Reconstituter) Reconstitute(mm *statsrelay.MetricMap) []string {
	lines := make([]string, 0, mm.Gauges.Len()+mm.Counters.Len()+mm.Timers.Len()+mm.Sets.Len())
	var sb strings.Builder

	mm.Gauges.Each(func(name string, value float64) {
		if r.blacklist.MatchAny(name) {
			return
		}
		lines = append(lines, name+":"+FormatValue(value)+"|g")
	})
	mm.Counters.Each(func(name string, value float64) {
		if r.blacklist.MatchAny(name) {
			return
		}
		lines = append(lines, name+":"+FormatValue(value)+"|c")
	})
	mm.Timers.Each(func(name string, timer *statsrelay.Timer) {
		if r.blacklist.MatchAny(name) {
			return
		}
		suffix := "|ms"
		if rate := timer.SampleRate(); rate < 1 {
			suffix += "|@" + FormatSampleRate(rate)
		}
		sb.Reset()
		sb.WriteString(name)
		for _, v := range timer.Values {
			sb.WriteByte(':')
			sb.WriteString(FormatValue(v))
			sb.WriteString(suffix)
		}
		lines = append(lines, sb.String())
	})
	mm.Sets.Each(func(name string, set *statsrelay.Set) {
		if r.blacklist.MatchAny(name) {
			return
		}
		sb.Reset()
		sb.WriteString(name)
		for _, v := range set.Values {
			sb.WriteByte(':')
			sb.WriteString(v)
			sb.WriteString("|s")
		}
		lines = append(lines, sb.String())
	})
	return lines
}

// FormatValue renders a value with the shortest representation that round trips.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatSampleRate renders rate with at most 3 decimals and no trailing zeros.
func FormatSampleRate(rate float64) string {
	s := strconv.FormatFloat(rate, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return "0"
	}
	return s
}
