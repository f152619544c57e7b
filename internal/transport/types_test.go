package transport

import "testing"

func TestChatTargetRoundTrip(t *testing.T) {
	cases := []ChatTarget{{ChatID: 42}, {ChatID: -100123, ThreadID: 7}}
	for _, c := range cases {
		got, err := ParseChatTarget(c.String())
		if err != nil || got != c {
			t.Fatalf("%+v -> %q -> %+v, %v", c, c.String(), got, err)
		}
	}
	for _, bad := range []string{"", "abc", "1:x"} {
		if _, err := ParseChatTarget(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
