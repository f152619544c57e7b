package router

import (
	"reflect"
	"testing"
)

func TestTokenizeCommandLine(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a b", []string{"a", "b"}},
		{`a "b c" --k=v`, []string{"a", "b c", "--k=v"}},
		{`call mom's phone`, []string{"call", "mom's", "phone"}},
		{`'single quoted'`, []string{"single quoted"}},
		{`esc\ aped`, []string{"esc aped"}},
		{`""`, []string{""}},
	}
	for _, c := range cases {
		got := tokenizeCommandLine(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("tokenize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	pos, flags, bools := parseFlags([]string{"in", "10", "mins", "--every=daily", "--title", "tea", "-v", "-5", "-ab"})
	if !reflect.DeepEqual(pos, []string{"in", "10", "mins", "-5"}) {
		t.Fatalf("pos=%q", pos)
	}
	if flags["every"] != "daily" || flags["title"] != "tea" {
		t.Fatalf("flags=%v", flags)
	}
	if !bools["v"] || !bools["a"] || !bools["b"] {
		t.Fatalf("bools=%v", bools)
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	cases := []struct{ in, want string }{
		{"remind", "remind"},
		{"Snooze-All", "snooze_all"},
		{"a  b", "a_b"},
		{"9lives", "cmd_9lives"},
		{"__x__", "x"},
		{"über!", "ber"},
	}
	for _, c := range cases {
		if got := sanitizeTelegramCommand(c.in); got != c.want {
			t.Errorf("sanitize(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestNewReqIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := newReqID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
