package adapter

import (
	"strings"
	"testing"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	got := splitTelegramText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
	if got := splitTelegramText("", 10, ""); len(got) != 1 {
		t.Fatalf("empty text must yield one chunk")
	}
}

func TestSplitPrefersNewlines(t *testing.T) {
	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(text, 10, "")
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitAvoidsCuttingHTMLTags(t *testing.T) {
	text := strings.Repeat("x", 8) + "<b>bold</b>"
	got := splitTelegramText(text, 10, "HTML")
	if got[0] != strings.Repeat("x", 8) {
		t.Fatalf("first chunk %q", got[0])
	}
	if strings.Join(got, "") != text {
		t.Fatalf("lost text: %q", got)
	}
}

func TestKeyboardFromButtons(t *testing.T) {
	rm := keyboard([][]kit.Button{{{Text: "30m", Data: "rem:snooze:a:30m"}, {Text: "2h", Data: "rem:snooze:a:2h"}}, {{Text: "Cancel", Data: "rem:cancel:a"}}})
	if len(rm.InlineKeyboard) != 2 || len(rm.InlineKeyboard[0]) != 2 || rm.InlineKeyboard[1][0].Data != "rem:cancel:a" {
		t.Fatalf("keyboard: %+v", rm.InlineKeyboard)
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty token")
	}
	if _, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop()); err != nil {
		t.Fatalf("offline bot: %v", err)
	}
}
