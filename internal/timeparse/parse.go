package timeparse

import (
	"fmt"
	"time"
)

// ParseError reports that no date expression was found in the input.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("timeparse: no date expression in %q", e.Input)
}

// Parser resolves phrases into instants in a single fixed zone.
type Parser struct {
	loc     *time.Location
	grammar *Grammar
}

func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{loc: loc, grammar: NewGrammar()}
}

func (p *Parser) Location() *time.Location { return p.loc }

// Parse resolves raw against ref and returns the instant in the parser's zone.
//
// Components the text did not state are filled from ref: a date-only phrase keeps ref's
// time of day, an hour without minutes lands on :00, and an hour:minute without seconds
// lands on :00 seconds. Readings without an explicit offset keep their wall clock in the
// fixed zone; readings with one keep their instant. The result may still be at or before
// ref ("9am" asked at 9:30); callers decide how to repair that.
func (p *Parser) Parse(raw string, ref time.Time) (time.Time, error) {
	text := Normalize(raw)
	refL := ref.In(p.loc)
	m, ok := p.grammar.Find(text, refL)
	if !ok {
		return time.Time{}, &ParseError{Input: raw}
	}
	return p.resolve(m, refL), nil
}

func (p *Parser) resolve(m Match, ref time.Time) time.Time {
	c := m.Components
	h, mi, s := c.Get(Hour), c.Get(Minute), c.Get(Second)
	switch {
	case !c.IsCertain(Hour):
		h, mi, s = ref.Clock()
	case !c.IsCertain(Minute):
		mi, s = 0, 0
	case !c.IsCertain(Second):
		s = 0
	}
	y, mo, d := c.Get(Year), time.Month(c.Get(Month)), c.Get(Day)

	var t time.Time
	if off, ok := c.Offset(); ok {
		t = time.Date(y, mo, d, h, mi, s, 0, time.FixedZone("", off)).In(p.loc)
	} else {
		t = time.Date(y, mo, d, h, mi, s, 0, p.loc)
	}
	if m.step != (forwardStep{}) && !t.After(ref) {
		t = t.AddDate(m.step.years, 0, m.step.days)
	}
	return t
}
