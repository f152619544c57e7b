package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type sent struct {
	to   kit.ChatTarget
	text string
	opt  *kit.SendOptions
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sent
	answers []string
	menu    []kit.BotCommand
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                        { return nil }
func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{to: to, text: text, opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}
func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) AnswerCallback(ctx context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}
func (f *fakeAdapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menu = cmds
	return nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.text
	}
	return out
}

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 100, FromID: from, Text: text}}
}

func runJobs(m *Manager) {
	for {
		select {
		case job := <-m.jobs:
			m.runJob(0, job)
		default:
			return
		}
	}
}

func TestRouteMessageToCommandAndAlias(t *testing.T) {
	ad := &fakeAdapter{}
	m := New(logx.Nop(), ad)
	var got []*Request
	m.SetRegistry([]Command{{
		Name:    "remind",
		Aliases: []string{"r"},
		Handle: func(ctx context.Context, req *Request) error {
			got = append(got, req)
			return nil
		},
	}}, nil)

	ctx := context.Background()
	m.Route(ctx, msg(1, "/remind@mybot in 10 mins | tea --every=daily"))
	m.Route(ctx, msg(1, "/R tomorrow"))
	runJobs(m)

	if len(got) != 2 {
		t.Fatalf("handled %d requests", len(got))
	}
	if got[0].ArgText != "in 10 mins | tea --every=daily" || got[0].Flags["every"] != "daily" {
		t.Fatalf("first request: %+v", got[0])
	}
	if got[1].Command != "remind" || got[1].ArgText != "tomorrow" {
		t.Fatalf("alias request: %+v", got[1])
	}
}

func TestUnknownCommandAndPlainText(t *testing.T) {
	ad := &fakeAdapter{}
	m := New(logx.Nop(), ad)
	m.SetRegistry(nil, nil)
	m.Route(context.Background(), msg(1, "hello there"))
	m.Route(context.Background(), msg(1, "/nope"))
	texts := ad.texts()
	if len(texts) != 1 || !strings.Contains(texts[0], "Unknown command") {
		t.Fatalf("sent: %q", texts)
	}
}

func TestAccessPolicy(t *testing.T) {
	ad := &fakeAdapter{}
	m := New(logx.Nop(), ad)
	calls := 0
	h := func(ctx context.Context, req *Request) error { calls++; return nil }
	m.SetRegistry([]Command{
		{Name: "list", Handle: h},
		{Name: "admin", Access: AccessOwnerOnly, Handle: h},
	}, nil)

	ctx := context.Background()
	// Empty allow list admits everyone for AccessAllowed.
	m.Route(ctx, msg(5, "/list"))
	m.SetAccess([]int64{1}, []int64{2})
	m.Route(ctx, msg(5, "/list"))  // denied
	m.Route(ctx, msg(2, "/list"))  // allowed
	m.Route(ctx, msg(1, "/list"))  // owner
	m.Route(ctx, msg(2, "/admin")) // denied
	m.Route(ctx, msg(1, "/admin")) // owner
	runJobs(m)
	if calls != 4 {
		t.Fatalf("calls=%d want 4", calls)
	}
	denied := 0
	for _, s := range ad.texts() {
		if strings.Contains(s, "not allowed") {
			denied++
		}
	}
	if denied != 2 {
		t.Fatalf("denied=%d want 2", denied)
	}
}

func TestRouteCallback(t *testing.T) {
	ad := &fakeAdapter{}
	m := New(logx.Nop(), ad)
	var payload string
	m.SetRegistry(nil, []CallbackRoute{{
		Namespace: "rem",
		Action:    "snooze",
		Handle: func(ctx context.Context, req *Request) error {
			payload = req.Payload
			req.Answer = "snoozed"
			return nil
		},
	}})
	ctx := context.Background()
	m.Route(ctx, kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb1", FromID: 1, Data: "rem:snooze:abc:30m"}})
	m.Route(ctx, kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb2", FromID: 1, Data: "rem:unknown"}})
	runJobs(m)
	if payload != "abc:30m" {
		t.Fatalf("payload=%q", payload)
	}
	if len(ad.answers) != 2 || ad.answers[0] != "" || ad.answers[1] != "snoozed" {
		t.Fatalf("answers: %q", ad.answers)
	}
}

func TestPanicInHandlerIsRecovered(t *testing.T) {
	ad := &fakeAdapter{}
	m := New(logx.Nop(), ad)
	m.SetRegistry([]Command{{Name: "boom", Handle: func(ctx context.Context, req *Request) error { panic("x") }}}, nil)
	m.Route(context.Background(), msg(1, "/boom"))
	runJobs(m) // must not panic
}

func TestHelpAndMenu(t *testing.T) {
	ad := &fakeAdapter{}
	m := New(logx.Nop(), ad)
	m.SetRegistry([]Command{
		{Name: "remind", Description: "create a reminder", Usage: "/remind <when> | <title>", Handle: func(context.Context, *Request) error { return nil }},
		{Name: "secret", Access: AccessOwnerOnly, Handle: func(context.Context, *Request) error { return nil }},
	}, nil)

	top := m.helpText(nil).String()
	if !strings.Contains(top, "/remind") || !strings.Contains(top, "🔒") {
		t.Fatalf("top help: %s", top)
	}
	one := m.helpText([]string{"remind"}).String()
	if !strings.Contains(one, "&lt;when&gt;") {
		t.Fatalf("usage must be escaped: %s", one)
	}

	if err := m.SyncMenu(context.Background()); err != nil {
		t.Fatalf("menu: %v", err)
	}
	for _, c := range ad.menu {
		if c.Command == "secret" {
			t.Fatalf("owner-only command leaked into menu")
		}
	}
	if len(ad.menu) != 2 { // help + remind
		t.Fatalf("menu=%+v", ad.menu)
	}
}

func TestDispatchLoopStopsOnClose(t *testing.T) {
	ad := &fakeAdapter{}
	m := New(logx.Nop(), ad)
	done := make(chan struct{})
	m.SetRegistry([]Command{{Name: "ping", Handle: func(ctx context.Context, req *Request) error {
		close(done)
		return nil
	}}}, nil)
	updates := make(chan kit.Update, 1)
	errc := make(chan error, 1)
	go func() { errc <- m.DispatchLoop(context.Background(), updates) }()
	updates <- msg(1, "/ping")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("command not run")
	}
	close(updates)
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("dispatch loop did not stop")
	}
}
