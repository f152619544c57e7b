package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/timeparse"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

var testNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

// frozenClock never fires timers; the bot tests only look at stored state.
type frozenClock struct{}

type noopHandle struct{}

func (noopHandle) Stop() bool { return true }

func (frozenClock) Now() time.Time { return testNow }

func (frozenClock) AfterFunc(time.Duration, func()) reminder.Handle { return noopHandle{} }

type nopSink struct{}

func (nopSink) Deliver(context.Context, string, string, []reminder.Action) error { return nil }

type sent struct {
	To   kit.ChatTarget
	Text string
	Opt  *kit.SendOptions
}

type edit struct {
	Ref  kit.MessageRef
	Text string
	Opt  *kit.SendOptions
}

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []sent
	edits []edit
	fail  error
}

func (a *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }

func (a *fakeAdapter) Stop(context.Context) error { return nil }

func (a *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail != nil {
		return kit.MessageRef{}, a.fail
	}
	a.sent = append(a.sent, sent{To: to, Text: text, Opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(a.sent)}, nil
}

func (a *fakeAdapter) EditText(_ context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.edits = append(a.edits, edit{Ref: ref, Text: text, Opt: opt})
	return nil
}

func (a *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func (a *fakeAdapter) last(t *testing.T) sent {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	return a.sent[len(a.sent)-1]
}

func newTestBot(t *testing.T) (*Bot, *reminder.Service, *fakeAdapter) {
	t.Helper()
	svc := reminder.New(storage.NewMemory(), nopSink{}, reminder.Options{
		Clock:       frozenClock{},
		Parser:      timeparse.New(time.UTC),
		MaxPerOwner: 3,
	})
	t.Cleanup(func() { _ = svc.Stop(context.Background()) })
	b := New(svc, logx.Nop())
	b.now = func() time.Time { return testNow }
	return b, svc, &fakeAdapter{}
}

func command(ad *fakeAdapter, from int64, argText string, args ...string) *router.Request {
	return &router.Request{
		Update:  kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 100, FromID: from}},
		Chat:    kit.ChatTarget{ChatID: 100},
		FromID:  from,
		ArgText: argText,
		Args:    args,
		Adapter: ad,
	}
}

func callback(ad *fakeAdapter, from int64, payload string) *router.Request {
	return &router.Request{
		Update:  kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb", FromID: from, ChatID: 100, MessageID: 7}},
		Chat:    kit.ChatTarget{ChatID: 100},
		FromID:  from,
		Payload: payload,
		Adapter: ad,
	}
}

func TestParseRemind(t *testing.T) {
	cases := []struct {
		in   string
		want remindArgs
	}{
		{"tomorrow at 9am | stand-up", remindArgs{When: "tomorrow at 9am", Title: "stand-up"}},
		{"in 20 minutes | tea --every=hourly", remindArgs{When: "in 20 minutes", Title: "tea", Every: "hourly"}},
		{"--every daily 8am | pills", remindArgs{When: "8am", Title: "pills", Every: "daily"}},
		{`friday 18:30 --title="bob's party"`, remindArgs{When: "friday 18:30", Title: "bob's party"}},
		{"in 1 hour", remindArgs{When: "in 1 hour"}},
		{"noon | a | b", remindArgs{When: "noon", Title: "a | b"}},
	}
	for _, tc := range cases {
		if got := parseRemind(tc.in); got != tc.want {
			t.Fatalf("parseRemind(%q)=%+v want %+v", tc.in, got, tc.want)
		}
	}
}

func TestDurations(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"30m", 30 * time.Minute},
		{"2h", 2 * time.Hour},
		{"1d", 24 * time.Hour},
		{"1d12h", 36 * time.Hour},
		{"1h30m", 90 * time.Minute},
		{"45", 45 * time.Minute},
	}
	for _, tc := range cases {
		got, err := parseDur(tc.in)
		if err != nil || got != tc.want {
			t.Fatalf("parseDur(%q)=%v,%v want %v", tc.in, got, err, tc.want)
		}
	}
	if _, err := parseDur("soon"); err == nil {
		t.Fatalf("expected error")
	}
	for d, want := range map[time.Duration]string{
		30 * time.Minute: "30m", 2 * time.Hour: "2h", 24 * time.Hour: "1d", 90 * time.Minute: "90m",
	} {
		if got := formatDur(d); got != want {
			t.Fatalf("formatDur(%v)=%q want %q", d, got, want)
		}
	}
}

func TestRelative(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{20 * time.Second, "now"},
		{20 * time.Minute, "in 20m"},
		{2*time.Hour + 5*time.Minute, "in 2h 5m"},
		{26*time.Hour + 5*time.Minute, "in 1d 2h"},
	}
	for _, tc := range cases {
		if got := relative(testNow, testNow.Add(tc.d)); got != tc.want {
			t.Fatalf("relative(%v)=%q want %q", tc.d, got, tc.want)
		}
	}
}

func TestRemindCreatesReminder(t *testing.T) {
	b, svc, ad := newTestBot(t)
	ctx := context.Background()

	if err := b.handleRemind(ctx, command(ad, 42, "in 2 hours | stretch --every=daily")); err != nil {
		t.Fatalf("remind: %v", err)
	}
	list, err := svc.List(ctx, "42")
	if err != nil || len(list) != 1 {
		t.Fatalf("list=%v err=%v", list, err)
	}
	r := list[0]
	if r.Title != "stretch" || r.Recurrence != reminder.Daily || r.Destination != "100" {
		t.Fatalf("record=%+v", r)
	}
	if !r.FireAt.Equal(testNow.Add(2 * time.Hour)) {
		t.Fatalf("fire_at=%v", r.FireAt)
	}
	out := ad.last(t)
	if !strings.Contains(out.Text, shortID(r.ID)) || out.Opt == nil || len(out.Opt.Buttons) != 1 {
		t.Fatalf("reply=%+v", out)
	}
	if out.Opt.Buttons[0][0].Data != "rem:cancel:"+r.ID {
		t.Fatalf("button data=%q", out.Opt.Buttons[0][0].Data)
	}
}

func TestRemindUserErrors(t *testing.T) {
	b, _, ad := newTestBot(t)
	ctx := context.Background()

	cases := []struct {
		arg  string
		want string
	}{
		{"banana | x", "couldn't understand"},
		{"in 1 hour | x --every=fortnightly", "Unknown repeat"},
		{"", "When?"},
	}
	for _, tc := range cases {
		if err := b.handleRemind(ctx, command(ad, 1, tc.arg)); err != nil {
			t.Fatalf("%q: user errors must not surface: %v", tc.arg, err)
		}
		if got := ad.last(t).Text; !strings.Contains(got, tc.want) {
			t.Fatalf("%q: reply=%q want %q", tc.arg, got, tc.want)
		}
	}

	for i := 0; i < 3; i++ {
		if err := b.handleRemind(ctx, command(ad, 2, "in 1 hour | n")); err != nil {
			t.Fatalf("remind %d: %v", i, err)
		}
	}
	_ = b.handleRemind(ctx, command(ad, 2, "in 1 hour | over"))
	if got := ad.last(t).Text; !strings.Contains(got, "too many") {
		t.Fatalf("reply=%q", got)
	}
}

func TestListShowsPendingWithCancelButtons(t *testing.T) {
	b, svc, ad := newTestBot(t)
	ctx := context.Background()

	if err := b.handleList(ctx, command(ad, 5, "")); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(ad.last(t).Text, "No pending") {
		t.Fatalf("empty list reply=%q", ad.last(t).Text)
	}

	for _, in := range [][2]string{{"in 3 hours", "later <b>"}, {"in 1 hour", "sooner"}} {
		if _, err := svc.Create(ctx, reminder.CreateRequest{OwnerID: "5", Destination: "100", RawTime: in[0], Title: in[1]}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := b.handleList(ctx, command(ad, 5, "")); err != nil {
		t.Fatalf("list: %v", err)
	}
	out := ad.last(t)
	if out.Opt == nil || out.Opt.ParseMode != "HTML" || len(out.Opt.Buttons) != 2 {
		t.Fatalf("reply=%+v", out)
	}
	if strings.Index(out.Text, "sooner") > strings.Index(out.Text, "later") {
		t.Fatalf("list not ordered by fire time: %q", out.Text)
	}
	if !strings.Contains(out.Text, "later &lt;b&gt;") {
		t.Fatalf("title not escaped: %q", out.Text)
	}
	if !strings.HasSuffix(out.Opt.Buttons[0][0].Data, ":"+listMarker) {
		t.Fatalf("button data=%q", out.Opt.Buttons[0][0].Data)
	}
}

func TestSnoozeAndCancelByShortID(t *testing.T) {
	b, svc, ad := newTestBot(t)
	ctx := context.Background()
	r, err := svc.Create(ctx, reminder.CreateRequest{OwnerID: "9", Destination: "100", RawTime: "in 1 hour", Title: "water"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := b.handleSnooze(ctx, command(ad, 9, "", shortID(r.ID), "30m")); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	got, err := svc.Get(ctx, r.ID, "9")
	if err != nil || !got.FireAt.Equal(testNow.Add(30*time.Minute)) {
		t.Fatalf("after snooze=%+v err=%v", got, err)
	}

	// Someone else cannot touch it.
	_ = b.handleCancel(ctx, command(ad, 10, "", shortID(r.ID)))
	if !strings.Contains(ad.last(t).Text, "No such reminder") {
		t.Fatalf("reply=%q", ad.last(t).Text)
	}

	if err := b.handleCancel(ctx, command(ad, 9, "", shortID(r.ID))); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Get(ctx, r.ID, "9"); !errors.Is(err, reminder.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSnoozeButton(t *testing.T) {
	b, svc, ad := newTestBot(t)
	ctx := context.Background()
	r, err := svc.Create(ctx, reminder.CreateRequest{OwnerID: "9", Destination: "100", RawTime: "in 1 hour", Title: "water"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := callback(ad, 9, r.ID+":2h")
	if err := b.handleSnoozeButton(ctx, req); err != nil {
		t.Fatalf("snooze button: %v", err)
	}
	if req.Answer != "Snoozed 2h" {
		t.Fatalf("answer=%q", req.Answer)
	}
	got, _ := svc.Get(ctx, r.ID, "9")
	if !got.FireAt.Equal(testNow.Add(2 * time.Hour)) {
		t.Fatalf("fire_at=%v", got.FireAt)
	}
	if len(ad.edits) != 1 || ad.edits[0].Ref.MessageID != 7 || !strings.Contains(ad.edits[0].Text, "Snoozed until") {
		t.Fatalf("edits=%+v", ad.edits)
	}

	other := callback(ad, 11, r.ID+":2h")
	if err := b.handleSnoozeButton(ctx, other); err != nil {
		t.Fatalf("foreign snooze must not error: %v", err)
	}
	if !strings.Contains(other.Answer, "isn't yours") {
		t.Fatalf("answer=%q", other.Answer)
	}
}

func TestCancelButtonFromListRedraws(t *testing.T) {
	b, svc, ad := newTestBot(t)
	ctx := context.Background()
	r, err := svc.Create(ctx, reminder.CreateRequest{OwnerID: "9", Destination: "100", RawTime: "in 1 hour", Title: "only"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := callback(ad, 9, r.ID+":"+listMarker)
	if err := b.handleCancelButton(ctx, req); err != nil {
		t.Fatalf("cancel button: %v", err)
	}
	if req.Answer != "Cancelled" {
		t.Fatalf("answer=%q", req.Answer)
	}
	if len(ad.edits) != 1 || !strings.Contains(ad.edits[0].Text, "No pending") {
		t.Fatalf("edits=%+v", ad.edits)
	}

	again := callback(ad, 9, r.ID)
	_ = b.handleCancelButton(ctx, again)
	if !strings.Contains(again.Answer, "gone") {
		t.Fatalf("answer=%q", again.Answer)
	}
}

func TestSenderBuildsActionKeyboard(t *testing.T) {
	ad := &fakeAdapter{}
	s := NewSender(ad)
	id := "0192d4a8-7c1e-7b3a-9f00-12ab34cd56ef"
	err := s.Send(context.Background(), notifier.Message{
		Destination: "-1001:42",
		Text:        "⏰ Reminder: x",
		Actions:     reminder.FireActions(id, reminder.DefaultSnoozeOptions),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	out := ad.last(t)
	if out.To != (kit.ChatTarget{ChatID: -1001, ThreadID: 42}) {
		t.Fatalf("to=%+v", out.To)
	}
	if out.Opt == nil || len(out.Opt.Buttons) != 2 || len(out.Opt.Buttons[0]) != 3 {
		t.Fatalf("buttons=%+v", out.Opt)
	}
	want := []string{"rem:snooze:" + id + ":30m", "rem:snooze:" + id + ":2h", "rem:snooze:" + id + ":1d"}
	for i, btn := range out.Opt.Buttons[0] {
		if btn.Data != want[i] || len(btn.Data) > tgui.MaxCallbackDataLen {
			t.Fatalf("button %d data=%q", i, btn.Data)
		}
	}
	if out.Opt.Buttons[1][0].Data != "rem:cancel:"+id {
		t.Fatalf("cancel data=%q", out.Opt.Buttons[1][0].Data)
	}

	if err := s.Send(context.Background(), notifier.Message{Destination: "nope", Text: "x"}); err == nil {
		t.Fatalf("expected destination error")
	}
	ad.fail = errors.New("boom")
	if err := s.Send(context.Background(), notifier.Message{Destination: "1", Text: "x"}); err == nil {
		t.Fatalf("expected send error")
	}
}
