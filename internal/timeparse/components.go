package timeparse

import "time"

// Component identifies one field of a calendar reading.
type Component int

const (
	Year Component = iota
	Month
	Day
	Hour
	Minute
	Second

	numComponents
)

func (c Component) String() string {
	switch c {
	case Year:
		return "year"
	case Month:
		return "month"
	case Day:
		return "day"
	case Hour:
		return "hour"
	case Minute:
		return "minute"
	case Second:
		return "second"
	default:
		return "unknown"
	}
}

// Components is a partially known wall-clock reading.
//
// Every component always has a value; IsCertain reports whether the value came from the
// input text (Assign) or was filled in from context (Imply).
type Components struct {
	values  [numComponents]int
	certain [numComponents]bool

	offset    int
	hasOffset bool
}

// impliedFrom returns components whose date is implied from ref and whose time is noon.
func impliedFrom(ref time.Time) Components {
	var c Components
	c.Imply(Year, ref.Year())
	c.Imply(Month, int(ref.Month()))
	c.Imply(Day, ref.Day())
	c.Imply(Hour, 12)
	c.Imply(Minute, 0)
	c.Imply(Second, 0)
	return c
}

func (c *Components) Get(k Component) int { return c.values[k] }

func (c *Components) IsCertain(k Component) bool { return c.certain[k] }

// Assign sets k and marks it certain.
func (c *Components) Assign(k Component, v int) {
	c.values[k] = v
	c.certain[k] = true
}

// Imply sets k unless it is already certain.
func (c *Components) Imply(k Component, v int) {
	if c.certain[k] {
		return
	}
	c.values[k] = v
}

func (c *Components) assignDate(t time.Time) {
	c.Assign(Year, t.Year())
	c.Assign(Month, int(t.Month()))
	c.Assign(Day, t.Day())
}

func (c *Components) assignClock(t time.Time) {
	c.Assign(Hour, t.Hour())
	c.Assign(Minute, t.Minute())
	c.Assign(Second, t.Second())
}

func (c *Components) implyClock(t time.Time) {
	c.Imply(Hour, t.Hour())
	c.Imply(Minute, t.Minute())
	c.Imply(Second, t.Second())
}

// SetOffset records an explicit UTC offset in seconds east of UTC.
func (c *Components) SetOffset(seconds int) {
	c.offset = seconds
	c.hasOffset = true
}

// Offset returns the explicit UTC offset, if the expression carried one.
func (c *Components) Offset() (int, bool) { return c.offset, c.hasOffset }

func validDate(y, m, d int) bool {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return t.Year() == y && int(t.Month()) == m && t.Day() == d
}
