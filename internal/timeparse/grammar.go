package timeparse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

type matchKind int

const (
	kindDate    matchKind = iota + 1 // calendar date, clock implied
	kindTime                         // clock, date implied from the reference
	kindInstant                      // fully resolved (relative phrases, "now")
)

type dayPart int

const (
	partNone dayPart = iota
	partMorning
	partAfternoon
	partEvening
	partNight
)

// forwardStep is applied once when an ambiguous date resolves to the past.
type forwardStep struct {
	years int
	days  int
}

type match struct {
	start, end int
	kind       matchKind
	c          Components
	part       dayPart
	meridiem   bool
	step       forwardStep
}

// Match is the grammar's reading of the first time expression found in a text.
type Match struct {
	Index      int
	Text       string
	Components Components

	step forwardStep
}

type rule func(text string, ref time.Time) []match

// Grammar finds English date/time expressions. The zero value is not usable; use NewGrammar.
type Grammar struct {
	rules []rule
}

func NewGrammar() *Grammar {
	return &Grammar{rules: []rule{
		matchRelative,
		matchCasual,
		matchWeekday,
		matchISODate,
		matchSlashDate,
		matchMonthName,
		matchClock,
	}}
}

var mergeGap = regexp.MustCompile(`^\s*(?:,|at|on|@|t|of)?\s*$`)

// Find returns the earliest expression in text, resolved against ref. An adjacent date and
// clock ("tomorrow at 10am", "10am tomorrow") are merged into one reading.
func (g *Grammar) Find(text string, ref time.Time) (Match, bool) {
	lower := strings.ToLower(text)
	var all []match
	for _, r := range g.rules {
		all = append(all, r(lower, ref)...)
	}
	if len(all) == 0 {
		return Match{}, false
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].start != all[j].start {
			return all[i].start < all[j].start
		}
		return all[i].end-all[i].start > all[j].end-all[j].start
	})

	kept := make([]match, 0, len(all))
	lastEnd := -1
	for _, m := range all {
		if m.start < lastEnd {
			continue
		}
		kept = append(kept, m)
		lastEnd = m.end
	}

	first := kept[0]
	if len(kept) > 1 {
		if merged, ok := merge(first, kept[1], lower); ok {
			first = merged
		}
	}
	return Match{
		Index:      first.start,
		Text:       lower[first.start:first.end],
		Components: first.c,
		step:       first.step,
	}, true
}

func merge(a, b match, text string) (match, bool) {
	if !mergeGap.MatchString(text[a.end:b.start]) {
		return a, false
	}
	var date, clock match
	switch {
	case a.kind == kindDate && b.kind == kindTime:
		date, clock = a, b
	case a.kind == kindTime && b.kind == kindDate:
		date, clock = b, a
	default:
		return a, false
	}

	out := date
	out.start, out.end = a.start, b.end

	h := clock.c.Get(Hour)
	// "tonight at 8" means 20:00.
	if !clock.meridiem && h < 12 && date.part >= partAfternoon {
		h += 12
	}
	out.c.Assign(Hour, h)
	for _, k := range []Component{Minute, Second} {
		if clock.c.IsCertain(k) {
			out.c.Assign(k, clock.c.Get(k))
		} else {
			out.c.Imply(k, 0)
		}
	}
	if off, ok := clock.c.Offset(); ok {
		out.c.SetOffset(off)
	}
	return out, true
}

// ---- relative: "in 10 mins", "after 1 hour 30 minutes", "2 days from now" ----

// Digits may touch their unit ("10m"), word amounts may not, so "and" never reads as
// "an" + "d".
const (
	amountPattern = `(?:\d+(?:\.\d+)?\s*|\b(?:an?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|fifteen|twenty|thirty|forty|fifty|sixty|ninety|(?:a\s+)?few|(?:a\s+)?couple(?:\s+of)?)\s+)`
	unitPattern   = `(?:seconds?|secs?|minutes?|mins?|hours?|hrs?|days?|weeks?|wks?|months?|mos?|years?|yrs?|[smhdwy])`
	piecePattern  = amountPattern + unitPattern + `\b`
	chainPattern  = piecePattern + `(?:\s*(?:,|and)?\s*` + piecePattern + `)*`
)

var (
	relPiece = regexp.MustCompile(`(` + amountPattern + `)(` + unitPattern + `)\b`)
	relLead  = regexp.MustCompile(`\b(?:in|after|within)\s+(` + chainPattern + `)`)
	relTrail = regexp.MustCompile(`\b(` + chainPattern + `)\s*(?:from\s+now|later|hence)\b`)
	relHalf  = regexp.MustCompile(`\b(?:in|after|within)\s+(?:half\s+an?\s+hour|an?\s+half\s+hour)\b`)
)

var wordAmounts = map[string]float64{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	"fifteen": 15, "twenty": 20, "thirty": 30, "forty": 40, "fifty": 50, "sixty": 60,
	"ninety": 90, "few": 3, "couple": 2,
}

func parseAmount(s string) (float64, bool) {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimPrefix(s, "a ")
	s = strings.TrimSuffix(s, " of")
	if v, ok := wordAmounts[s]; ok {
		return v, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// unitOf maps a unit token to one of s, m (minute), h, d, w, M (month), y.
func unitOf(u string) byte {
	switch {
	case strings.HasPrefix(u, "mo"):
		return 'M'
	case u == "m" || strings.HasPrefix(u, "min"):
		return 'm'
	default:
		return u[0]
	}
}

func matchRelative(text string, ref time.Time) []match {
	var out []match
	for _, re := range []*regexp.Regexp{relLead, relTrail} {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			t, clock, ok := applyPieces(text[loc[2]:loc[3]], ref)
			if !ok {
				continue
			}
			out = append(out, instantMatch(loc[0], loc[1], t, clock))
		}
	}
	for _, loc := range relHalf.FindAllStringIndex(text, -1) {
		out = append(out, instantMatch(loc[0], loc[1], ref.Add(30*time.Minute), true))
	}
	return out
}

func applyPieces(body string, ref time.Time) (time.Time, bool, bool) {
	var (
		years, months, days int
		dur                 time.Duration
		clock               bool
	)
	pieces := relPiece.FindAllStringSubmatch(body, -1)
	if len(pieces) == 0 {
		return time.Time{}, false, false
	}
	for _, p := range pieces {
		n, ok := parseAmount(p[1])
		if !ok {
			return time.Time{}, false, false
		}
		whole := n == float64(int(n))
		switch unitOf(p[2]) {
		case 's':
			dur += time.Duration(n * float64(time.Second))
			clock = true
		case 'm':
			dur += time.Duration(n * float64(time.Minute))
			clock = true
		case 'h':
			dur += time.Duration(n * float64(time.Hour))
			clock = true
		case 'd':
			if whole {
				days += int(n)
			} else {
				dur += time.Duration(n * 24 * float64(time.Hour))
				clock = true
			}
		case 'w':
			if whole {
				days += 7 * int(n)
			} else {
				dur += time.Duration(n * 7 * 24 * float64(time.Hour))
				clock = true
			}
		case 'M':
			months += int(n)
		case 'y':
			years += int(n)
		}
	}
	return ref.AddDate(years, months, days).Add(dur), clock, true
}

// instantMatch builds a reading whose offset is certain. Phrases without a sub-day unit
// leave the clock implied.
func instantMatch(start, end int, t time.Time, clock bool) match {
	c := impliedFrom(t)
	c.assignDate(t)
	if clock {
		c.assignClock(t)
	} else {
		c.implyClock(t)
	}
	_, off := t.Zone()
	c.SetOffset(off)
	return match{start: start, end: end, kind: kindInstant, c: c}
}

// ---- casual: now, today, tomorrow, tonight, "this evening" ----

var casualRe = regexp.MustCompile(`\b(now|today|tonight|tomorrow|tomorow|tmrw|tmr|yesterday)\b(?:\s+(morning|afternoon|evening|night)\b)?|\bthis\s+(morning|afternoon|evening|night)\b`)

var partHours = map[dayPart]int{
	partMorning:   9,
	partAfternoon: 15,
	partEvening:   19,
	partNight:     21,
}

func parsePart(s string) dayPart {
	switch s {
	case "morning":
		return partMorning
	case "afternoon":
		return partAfternoon
	case "evening":
		return partEvening
	case "night":
		return partNight
	default:
		return partNone
	}
}

func matchCasual(text string, ref time.Time) []match {
	var out []match
	for _, sm := range casualRe.FindAllStringSubmatchIndex(text, -1) {
		word := group(text, sm, 1)
		part := parsePart(group(text, sm, 2))
		if word == "" {
			part = parsePart(group(text, sm, 3))
		}
		day := ref
		switch word {
		case "now":
			out = append(out, instantMatch(sm[0], sm[1], ref, true))
			continue
		case "tonight":
			part = partNight
		case "tomorrow", "tomorow", "tmrw", "tmr":
			day = ref.AddDate(0, 0, 1)
		case "yesterday":
			day = ref.AddDate(0, 0, -1)
		}
		c := impliedFrom(ref)
		c.assignDate(day)
		if h, ok := partHours[part]; ok {
			c.Imply(Hour, h)
		}
		out = append(out, match{start: sm[0], end: sm[1], kind: kindDate, c: c, part: part})
	}
	return out
}

// ---- weekday: "monday", "on fri", "next tuesday" ----

var weekdayRe = regexp.MustCompile(`\b(?:(on|this|next|last|coming)\s+)?(monday|mon|tuesday|tues|tue|wednesday|wed|thursday|thurs|thur|thu|friday|fri|saturday|sat|sunday|sun)\b`)

var weekdayPrefix = map[string]time.Weekday{
	"su": time.Sunday, "mo": time.Monday, "tu": time.Tuesday, "we": time.Wednesday,
	"th": time.Thursday, "fr": time.Friday, "sa": time.Saturday,
}

func matchWeekday(text string, ref time.Time) []match {
	var out []match
	for _, sm := range weekdayRe.FindAllStringSubmatchIndex(text, -1) {
		modifier := group(text, sm, 1)
		target := weekdayPrefix[group(text, sm, 2)[:2]]
		diff := (int(target) - int(ref.Weekday()) + 7) % 7
		step := forwardStep{days: 7}
		switch modifier {
		case "next":
			if diff == 0 {
				diff = 7
			}
		case "last":
			diff -= 7
			step = forwardStep{}
		}
		c := impliedFrom(ref)
		c.assignDate(ref.AddDate(0, 0, diff))
		out = append(out, match{start: sm[0], end: sm[1], kind: kindDate, c: c, step: step})
	}
	return out
}

// ---- numeric dates: 2026-03-01, 3/1, 3/1/2026 ----

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?\b`)
)

func matchISODate(text string, ref time.Time) []match {
	var out []match
	for _, sm := range isoDateRe.FindAllStringSubmatchIndex(text, -1) {
		y, m, d := atoi(group(text, sm, 1)), atoi(group(text, sm, 2)), atoi(group(text, sm, 3))
		if mt, ok := dateMatch(sm, ref, y, m, d, true); ok {
			out = append(out, mt)
		}
	}
	return out
}

func matchSlashDate(text string, ref time.Time) []match {
	var out []match
	for _, sm := range slashDateRe.FindAllStringSubmatchIndex(text, -1) {
		m, d := atoi(group(text, sm, 1)), atoi(group(text, sm, 2))
		ys := group(text, sm, 3)
		y, certain := ref.Year(), ys != ""
		if certain {
			y = atoi(ys)
			if len(ys) == 2 {
				y += 2000
			}
		}
		if mt, ok := dateMatch(sm, ref, y, m, d, certain); ok {
			out = append(out, mt)
		}
	}
	return out
}

// ---- month names: "5 jan", "the 1st of march 2027", "march 3", "dec 24, 2026" ----

const monthPattern = `(january|jan|february|feb|march|mar|april|apr|may|june|jun|july|jul|august|aug|september|sept|sep|october|oct|november|nov|december|dec)`

var (
	dayMonthRe = regexp.MustCompile(`\b(?:on\s+)?(?:the\s+)?(\d{1,2})(?:\s*(?:st|nd|rd|th))?(?:\s+of)?\s+` + monthPattern + `\b(?:,?\s*(\d{4})\b)?`)
	monthDayRe = regexp.MustCompile(`\b(?:on\s+)?` + monthPattern + `\.?\s+(?:the\s+)?(\d{1,2})(?:\s*(?:st|nd|rd|th))?\b(?:,?\s*(\d{4})\b)?`)
)

var monthPrefix = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

func matchMonthName(text string, ref time.Time) []match {
	var out []match
	add := func(sm []int, dayIdx, monthIdx, yearIdx int) {
		d := atoi(group(text, sm, dayIdx))
		m := monthPrefix[group(text, sm, monthIdx)[:3]]
		ys := group(text, sm, yearIdx)
		y := ref.Year()
		if ys != "" {
			y = atoi(ys)
		}
		if mt, ok := dateMatch(sm, ref, y, m, d, ys != ""); ok {
			out = append(out, mt)
		}
	}
	for _, sm := range dayMonthRe.FindAllStringSubmatchIndex(text, -1) {
		add(sm, 1, 2, 3)
	}
	for _, sm := range monthDayRe.FindAllStringSubmatchIndex(text, -1) {
		add(sm, 2, 1, 3)
	}
	return out
}

func dateMatch(sm []int, ref time.Time, y, m, d int, yearCertain bool) (match, bool) {
	if !validDate(y, m, d) {
		return match{}, false
	}
	c := impliedFrom(ref)
	c.Assign(Month, m)
	c.Assign(Day, d)
	mt := match{start: sm[0], end: sm[1], kind: kindDate}
	if yearCertain {
		c.Assign(Year, y)
	} else {
		c.Imply(Year, y)
		mt.step = forwardStep{years: 1}
	}
	mt.c = c
	return mt, true
}

// ---- clock: "at 10", "10am", "10:30 pm", "22:00:15", "9am utc+7", "14:00+02:00" ----

var (
	clockRe      = regexp.MustCompile(`(?:(?P<at>\bat|@)\s*)?\b(?P<h>\d{1,2})(?:[:.](?P<m>\d{2})(?:[:.](?P<s>\d{2}))?)?(?:\s*(?P<mer>am\b|pm\b|a\.m\.?|p\.m\.?)|\b)(?:\s*\b(?P<tzn>utc|gmt)\b(?:\s*(?P<tzs>[+-])(?P<tzh>\d{1,2})(?::?(?P<tzm>\d{2}))?)?|\s*\b(?P<z>z)\b|(?P<ns>[+-])(?P<nh>\d{2}):?(?P<nm>\d{2})\b)?`)
	namedClockRe = regexp.MustCompile(`(?:(?:\bat|@)\s*)?\b(noon|midday|midnight)\b`)
)

func matchClock(text string, ref time.Time) []match {
	var out []match
	g := func(sm []int, name string) string { return group(text, sm, clockRe.SubexpIndex(name)) }

	for _, sm := range clockRe.FindAllStringSubmatchIndex(text, -1) {
		hs, ms, ss, mer := g(sm, "h"), g(sm, "m"), g(sm, "s"), g(sm, "mer")
		// A bare number is not a time.
		if ms == "" && mer == "" && g(sm, "at") == "" {
			continue
		}
		h := atoi(hs)
		if mer != "" {
			if h < 1 || h > 12 {
				continue
			}
			pm := mer[0] == 'p'
			switch {
			case h == 12 && !pm:
				h = 0
			case h < 12 && pm:
				h += 12
			}
		} else if h > 23 {
			continue
		}
		c := impliedFrom(ref)
		c.Assign(Hour, h)
		if ms != "" {
			if atoi(ms) > 59 {
				continue
			}
			c.Assign(Minute, atoi(ms))
		}
		if ss != "" {
			if atoi(ss) > 59 {
				continue
			}
			c.Assign(Second, atoi(ss))
		}

		switch {
		case g(sm, "tzn") != "":
			off := 0
			if sign := g(sm, "tzs"); sign != "" {
				off = offsetSeconds(sign, g(sm, "tzh"), g(sm, "tzm"))
			}
			c.SetOffset(off)
		case g(sm, "z") != "":
			c.SetOffset(0)
		case g(sm, "ns") != "":
			c.SetOffset(offsetSeconds(g(sm, "ns"), g(sm, "nh"), g(sm, "nm")))
		}
		out = append(out, match{start: sm[0], end: sm[1], kind: kindTime, c: c, meridiem: mer != ""})
	}

	for _, sm := range namedClockRe.FindAllStringSubmatchIndex(text, -1) {
		c := impliedFrom(ref)
		if group(text, sm, 1) == "midnight" {
			c.Assign(Hour, 0)
		} else {
			c.Assign(Hour, 12)
		}
		out = append(out, match{start: sm[0], end: sm[1], kind: kindTime, c: c, meridiem: true})
	}
	return out
}

func offsetSeconds(sign, hh, mm string) int {
	off := atoi(hh)*3600 + atoi(mm)*60
	if sign == "-" {
		off = -off
	}
	return off
}

func group(text string, sm []int, i int) string {
	if i < 0 || 2*i+1 >= len(sm) || sm[2*i] < 0 {
		return ""
	}
	return text[sm[2*i]:sm[2*i+1]]
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
