package router

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// newReqID returns a 12-char random id used to correlate request log lines.
func newReqID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}

// lexer splits a command line into words. Backslash escapes the next character, and
// quotes group words only when they open a token, so "mom's" stays one literal word.
type lexer struct {
	out   []string
	cur   strings.Builder
	open  bool
	quote rune
}

func (l *lexer) emit() {
	if !l.open {
		return
	}
	l.out = append(l.out, l.cur.String())
	l.cur.Reset()
	l.open = false
}

func (l *lexer) write(r rune) {
	l.cur.WriteRune(r)
	l.open = true
}

// tokenizeCommandLine splits `a "b c" --k=v` into [a, b c, --k=v].
func tokenizeCommandLine(s string) []string {
	var l lexer
	escaped := false
	for _, r := range strings.TrimSpace(s) {
		switch {
		case escaped:
			l.write(r)
			escaped = false
		case r == '\\':
			escaped, l.open = true, true
		case l.quote != 0:
			if r == l.quote {
				l.quote = 0
			} else {
				l.write(r)
			}
		case (r == '"' || r == '\'') && l.cur.Len() == 0:
			l.quote, l.open = r, true
		case unicode.IsSpace(r):
			l.emit()
		default:
			l.write(r)
		}
	}
	l.emit()
	return l.out
}

// parseFlags separates positionals from --k=v, --k v, --bool, -k v and -abc flags.
// A lone "-" or a negative number ("-5") stays positional.
func parseFlags(args []string) (pos []string, flags map[string]string, bools map[string]bool) {
	flags = map[string]string{}
	bools = map[string]bool{}
	for i := 0; i < len(args); i++ {
		name, long, ok := flagName(args[i])
		if !ok {
			pos = append(pos, args[i])
			continue
		}
		if k, v, found := strings.Cut(name, "="); found {
			flags[k] = v
			continue
		}
		if !long && len(name) > 1 {
			for _, c := range name {
				bools[string(c)] = true
			}
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			flags[name] = args[i+1]
			i++
			continue
		}
		bools[name] = true
	}
	return pos, flags, bools
}

func flagName(a string) (name string, long, ok bool) {
	if rest, found := strings.CutPrefix(a, "--"); found && rest != "" {
		return rest, true, true
	}
	rest, found := strings.CutPrefix(a, "-")
	if !found || rest == "" || isNumber(rest) {
		return "", false, false
	}
	return rest, false, true
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
