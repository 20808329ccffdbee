package statsrelay

import (
	"fmt"
	"regexp"
	"strings"
)

// StringMatch matches metric names against a regular expression. A leading '!' inverts the match.
type StringMatch struct {
	expr        string
	invertMatch bool
	regex       *regexp.Regexp
}

type StringMatchList []StringMatch

func NewStringMatch(s string) (StringMatch, error) {
	invert := false
	if strings.HasPrefix(s, "!") {
		invert = true
		s = s[1:]
	}
	compiledRegex, err := regexp.Compile(s)
	if err != nil {
		return StringMatch{}, fmt.Errorf("invalid match expression %q: %v", s, err)
	}
	return StringMatch{
		expr:        s,
		invertMatch: invert,
		regex:       compiledRegex,
	}, nil
}

// NewStringMatchList compiles every expression, failing on the first invalid one.
func NewStringMatchList(exprs []string) (StringMatchList, error) {
	sml := make(StringMatchList, 0, len(exprs))
	for _, expr := range exprs {
		sm, err := NewStringMatch(expr)
		if err != nil {
			return nil, err
		}
		sml = append(sml, sm)
	}
	return sml, nil
}

// Match indicates if the provided string matches the criteria for this StringMatch
func (sm StringMatch) Match(s string) bool {
	return sm.regex.MatchString(s) != sm.invertMatch
}

func (sm StringMatch) String() string {
	if sm.invertMatch {
		return "!" + sm.expr
	}
	return sm.expr
}

// MatchAny indicates if s matches anything in the list, returns false if the list is empty
func (sml StringMatchList) MatchAny(s string) bool {
	for _, sm := range sml {
		if sm.Match(s) {
			return true
		}
	}
	return false
}
