package timeparse

import (
	"regexp"
	"strings"
	"unicode"
)

var spaceRun = regexp.MustCompile(`\s+`)

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

// Longer phrases first so "tomorrow night" wins over a bare "night" style match.
var colloquial = []rewrite{
	{regexp.MustCompile(`(?i)\btomorrow\s+morning\b`), "tomorrow at 9am"},
	{regexp.MustCompile(`(?i)\btomorrow\s+afternoon\b`), "tomorrow at 3pm"},
	{regexp.MustCompile(`(?i)\btomorrow\s+evening\b`), "tomorrow at 7pm"},
	{regexp.MustCompile(`(?i)\btomorrow\s+night\b`), "tomorrow at 9pm"},
	{regexp.MustCompile(`(?i)\bthis\s+morning\b`), "today at 9am"},
	{regexp.MustCompile(`(?i)\bthis\s+afternoon\b`), "today at 3pm"},
	{regexp.MustCompile(`(?i)\bthis\s+evening\b`), "today at 7pm"},
	{regexp.MustCompile(`(?i)\bthis\s+night\b`), "today at 9pm"},
	{regexp.MustCompile(`(?i)\btonight\b`), "today at 9pm"},
	{regexp.MustCompile(`(?i)\bnoon\b`), "12pm"},
	{regexp.MustCompile(`(?i)\bmidnight\b`), "12am"},
}

// explicitTimeAhead matches a clock time at the start of the remaining text:
// "at 8", "@ 8", "8 pm", "8:30".
var explicitTimeAhead = regexp.MustCompile(`(?i)^\s*(?:(?:at|@)\s*\d{1,2}\b|\d{1,2}\s*(?:[:.]\d{2}|am\b|pm\b|a\.m|p\.m))`)

// Normalize prepares raw user text for the grammar.
func Normalize(raw string) string {
	s := strings.TrimSpace(spaceRun.ReplaceAllString(raw, " "))
	s = splitLetterDigit(s)
	for _, rw := range colloquial {
		s = rewriteUnlessTimed(s, rw)
	}
	return s
}

// splitLetterDigit inserts a space wherever a letter run touches a digit run.
func splitLetterDigit(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	var prev rune
	for i, r := range s {
		if i > 0 {
			if (unicode.IsLetter(prev) && unicode.IsDigit(r)) || (unicode.IsDigit(prev) && unicode.IsLetter(r)) {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// rewriteUnlessTimed replaces each occurrence of rw unless it is directly followed by an
// explicit clock time, so "tonight at 8pm" keeps its own time.
func rewriteUnlessTimed(s string, rw rewrite) string {
	locs := rw.re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		if explicitTimeAhead.MatchString(s[loc[1]:]) {
			continue
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString(rw.repl)
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}
