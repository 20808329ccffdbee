package aggregation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/atlassian/statsrelay"
)

// ParamAggregation is the configuration key holding the list of rules.
const ParamAggregation = "aggregation"

// RuleConfig is the configuration form of a Rule.
type RuleConfig struct {
	Match     string   `mapstructure:"match" json:"match"`
	Types     []string `mapstructure:"types" json:"types"`
	Recursive bool     `mapstructure:"recursive" json:"recursive"`
	Last      bool     `mapstructure:"last" json:"last"`
	Generate  []string `mapstructure:"generate" json:"generate"`
}

// Rule derives new metric keys from keys matching a regular expression.
type Rule struct {
	Match     *regexp.Regexp
	Types     statsrelay.MetricTypes
	Recursive bool
	Last      bool
	Generate  []Template
}

// NewRule validates and compiles cfg. An empty type list, or "*", applies the rule to every type.
func NewRule(cfg RuleConfig) (*Rule, error) {
	re, err := regexp.Compile(cfg.Match)
	if err != nil {
		return nil, fmt.Errorf("invalid match %q: %v", cfg.Match, err)
	}
	if len(cfg.Generate) == 0 {
		return nil, fmt.Errorf("rule %q does not generate anything", cfg.Match)
	}
	types := statsrelay.AllMetricTypes
	if len(cfg.Types) > 0 && !(len(cfg.Types) == 1 && cfg.Types[0] == "*") {
		types = 0
		for _, name := range cfg.Types {
			mt, err := statsrelay.ParseMetricType(name)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %v", cfg.Match, err)
			}
			types |= statsrelay.NewMetricTypes(mt)
		}
	}
	templates := make([]Template, 0, len(cfg.Generate))
	for _, g := range cfg.Generate {
		templates = append(templates, NewTemplate(g, re.NumSubexp()))
	}
	return &Rule{
		Match:     re,
		Types:     types,
		Recursive: cfg.Recursive,
		Last:      cfg.Last,
		Generate:  templates,
	}, nil
}

// Config returns the configuration form of r.
func (r *Rule) Config() RuleConfig {
	generate := make([]string, 0, len(r.Generate))
	for _, t := range r.Generate {
		generate = append(generate, t.String())
	}
	return RuleConfig{
		Match:     r.Match.String(),
		Types:     strings.Split(r.Types.String(), ","),
		Recursive: r.Recursive,
		Last:      r.Last,
		Generate:  generate,
	}
}

// NewRulesFromViper reads the rule list under ParamAggregation. Rules keep their configured order.
func NewRulesFromViper(v *viper.Viper) ([]*Rule, error) {
	var configs []RuleConfig
	if err := v.UnmarshalKey(ParamAggregation, &configs); err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", ParamAggregation, err)
	}
	rules := make([]*Rule, 0, len(configs))
	for i, cfg := range configs {
		rule, err := NewRule(cfg)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %v", ParamAggregation, i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Template is a key pattern where (n) refers to capture group n of the rule's match.
type Template struct {
	raw   string
	parts []templatePart
}

type templatePart struct {
	literal string
	group   int // -1 for literal parts
}

var backreference = regexp.MustCompile(`\((\d+)\)`)

// NewTemplate parses s. References to groups above numGroups are kept literally.
func NewTemplate(s string, numGroups int) Template {
	t := Template{raw: s}
	last := 0
	for _, loc := range backreference.FindAllStringSubmatchIndex(s, -1) {
		n, err := strconv.Atoi(s[loc[2]:loc[3]])
		if err != nil || n > numGroups {
			continue
		}
		if loc[0] > last {
			t.parts = append(t.parts, templatePart{literal: s[last:loc[0]], group: -1})
		}
		t.parts = append(t.parts, templatePart{group: n})
		last = loc[1]
	}
	if last < len(s) {
		t.parts = append(t.parts, templatePart{literal: s[last:], group: -1})
	}
	return t
}

// Expand renders the template against the submatches of a successful match.
func (t Template) Expand(submatches []string) string {
	var sb strings.Builder
	for _, p := range t.parts {
		if p.group < 0 {
			sb.WriteString(p.literal)
		} else if p.group < len(submatches) {
			sb.WriteString(submatches[p.group])
		}
	}
	return sb.String()
}

func (t Template) String() string {
	return t.raw
}
