package lexer

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/atlassian/statsrelay"
)

// Line is the result of lexing a single wire line.
type Line struct {
	Key     string
	Samples []statsrelay.Sample
	// Errors has one entry per field group that was skipped.
	Errors []error
}

// Lexer parses `key:value|type[|@rate][:value|type[|@rate]...]` lines. A Lexer is not safe for
// concurrent use, and the Line it returns is only valid until the next call to Run.
type Lexer struct {
	// any field added must be considered in Lexer.reset
	input     []byte
	len       uint32
	start     uint32
	pos       uint32
	namespace string
	value     []byte
	sample    statsrelay.Sample
	line      Line
	err       error
}

// assumes we don't have \x00 bytes in input.
const eof byte = 0

var (
	errEmptyKey          = errors.New("key zero len")
	errMissingType       = errors.New("missing type")
	errEmptyType         = errors.New("empty type")
	errInvalidValue      = errors.New("invalid value")
	errInvalidSampleRate = errors.New("invalid sample rate")
)

// GroupError describes a field group that was skipped.
type GroupError struct {
	Group string
	Err   error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("%q: %v", e.Group, e.Err)
}

func (e *GroupError) Unwrap() error {
	return e.Err
}

var bareIncrement = statsrelay.Sample{Type: statsrelay.COUNTER, Value: 1, Rate: 1}

func (l *Lexer) next() byte {
	if l.pos >= l.len {
		return eof
	}
	b := l.input[l.pos]
	l.pos++
	return b
}

func (l *Lexer) reset() {
	l.start = 0
	l.pos = 0
	l.value = nil
	l.sample = statsrelay.Sample{}
	l.line.Key = ""
	l.line.Samples = l.line.Samples[:0]
	l.line.Errors = l.line.Errors[:0]
	l.err = nil
}

// Run lexes input, which is modified in place while the key is sanitized. An error is returned
// only if the entire line has to be dropped. Skipped groups are reported in Line.Errors.
func (l *Lexer) Run(input []byte, namespace string) (*Line, error) {
	l.reset()
	l.input = input
	l.namespace = namespace
	l.len = uint32(len(l.input))

	for state := lexKey; state != nil; {
		state = state(l)
	}
	if l.err != nil {
		return nil, l.err
	}
	return &l.line, nil
}

type stateFn func(*Lexer) stateFn

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '\v', '\f':
		return true
	}
	return false
}

func isKeyChar(b byte) bool {
	return ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9') || b == '.' || b == '-' || b == '_'
}

// lexKey sanitizes the key in place up to the first ':'. A run of whitespace becomes a single '_',
// '/' becomes '-' and anything else outside [A-Za-z0-9._-] is dropped.
func lexKey(l *Lexer) stateFn {
	w := uint32(0)
	inSpace := false
	for {
		b := l.next()
		switch {
		case b == ':' || b == eof:
			if w == 0 {
				l.err = errEmptyKey
				return nil
			}
			l.line.Key = string(l.input[:w])
			if l.namespace != "" {
				l.line.Key = l.namespace + "." + l.line.Key
			}
			if b == eof {
				l.line.Samples = append(l.line.Samples, bareIncrement)
				return nil
			}
			return lexGroup
		case isSpace(b):
			if !inSpace {
				l.input[w] = '_'
				w++
				inSpace = true
			}
			continue
		case b == '/':
			l.input[w] = '-'
			w++
		case isKeyChar(b):
			l.input[w] = b
			w++
		}
		inSpace = false
	}
}

// lexGroup starts a new value|type[|@rate] group.
func lexGroup(l *Lexer) stateFn {
	l.sample = statsrelay.Sample{Rate: 1}
	l.value = nil
	l.start = l.pos
	return lexValue
}

// lexValue lexes until the separator between value and type.
func lexValue(l *Lexer) stateFn {
	for {
		switch b := l.next(); b {
		case '|':
			l.value = l.input[l.start : l.pos-1]
			l.start = l.pos
			return lexType
		case ':':
			l.pos--
			return l.skipGroup(errMissingType)
		case eof:
			return l.skipGroup(errMissingType)
		}
	}
}

// lexType lexes the type token. Unknown tokens are treated as counters.
func lexType(l *Lexer) stateFn {
	for {
		switch b := l.next(); b {
		case '|', ':', eof:
			if b != eof {
				l.pos--
			}
			token := l.input[l.start:l.pos]
			switch string(token) {
			case "":
				return l.skipGroup(errEmptyType)
			case "g":
				l.sample.Type = statsrelay.GAUGE
			case "ms":
				l.sample.Type = statsrelay.TIMER
			case "s":
				l.sample.Type = statsrelay.SET
			default:
				l.sample.Type = statsrelay.COUNTER
			}
			return lexTypeEnd
		}
	}
}

// lexTypeEnd checks for the optional sample rate field.
func lexTypeEnd(l *Lexer) stateFn {
	switch b := l.next(); b {
	case '|':
		l.start = l.pos
		return lexSampleRate
	case ':':
		l.pos--
	}
	return lexGroupEnd
}

// lexSampleRate expects '@' followed by a positive float, up to the next '|', ':' or eof.
func lexSampleRate(l *Lexer) stateFn {
	switch b := l.next(); b {
	case '@':
	case ':':
		l.pos--
		return l.skipGroup(errInvalidSampleRate)
	default:
		return l.skipGroup(errInvalidSampleRate)
	}
	start := l.pos
	l.seekGroupField()
	v, err := strconv.ParseFloat(string(l.input[start:l.pos]), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return l.skipGroup(errInvalidSampleRate)
	}
	l.sample.Rate = v
	return lexGroupEnd
}

// lexGroupEnd ignores any remaining fields of the group, records the sample and moves on.
func lexGroupEnd(l *Lexer) stateFn {
	l.seekGroupEnd()
	if err := l.setValue(); err != nil {
		l.line.Errors = append(l.line.Errors, &GroupError{Group: string(l.group()), Err: err})
	} else {
		l.line.Samples = append(l.line.Samples, l.sample)
	}
	return l.nextGroup()
}

func (l *Lexer) setValue() error {
	if l.sample.Type == statsrelay.SET {
		l.sample.StringValue = string(l.value)
		return nil
	}
	if len(l.value) == 0 {
		if l.sample.Type == statsrelay.COUNTER {
			l.sample.Value = 1
			return nil
		}
		return errInvalidValue
	}
	v, err := strconv.ParseFloat(string(l.value), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return errInvalidValue
	}
	l.sample.Value = v
	l.sample.Signed = l.value[0] == '+' || l.value[0] == '-'
	return nil
}

// skipGroup records err against the current group and discards the rest of it.
func (l *Lexer) skipGroup(err error) stateFn {
	l.seekGroupEnd()
	l.line.Errors = append(l.line.Errors, &GroupError{Group: string(l.group()), Err: err})
	return l.nextGroup()
}

// group returns the text of the group ending at the current position.
func (l *Lexer) group() []byte {
	start := l.pos
	for start > 0 && l.input[start-1] != ':' {
		start--
	}
	return l.input[start:l.pos]
}

// seekGroupField moves to the next '|' or ':' without consuming it.
func (l *Lexer) seekGroupField() {
	for l.pos < l.len {
		if b := l.input[l.pos]; b == '|' || b == ':' {
			return
		}
		l.pos++
	}
}

// seekGroupEnd moves to the next ':' without consuming it.
func (l *Lexer) seekGroupEnd() {
	p := bytes.IndexByte(l.input[l.pos:], ':')
	switch p {
	case -1:
		l.pos = l.len
	default:
		l.pos += uint32(p)
	}
}

func (l *Lexer) nextGroup() stateFn {
	if l.next() == ':' {
		return lexGroup
	}
	return nil
}
