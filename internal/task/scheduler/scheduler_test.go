package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	cases := []struct {
		in    string
		kind  SpecKind
		every time.Duration
		cron  string
	}{
		{"*/5 * * * *", SpecCron, 0, "*/5 * * * *"},
		{"@hourly", SpecCron, 0, "@hourly"},
		{"cron:0 3 * * *", SpecCron, 0, "0 3 * * *"},
		{"55m", SpecInterval, 55 * time.Minute, ""},
		{"02:30", SpecInterval, 150 * time.Minute, ""},
		{"every:1h", SpecInterval, time.Hour, ""},
		{"interval: 00:10", SpecInterval, 10 * time.Minute, ""},
	}
	for _, tc := range cases {
		got, err := ParseSchedule(tc.in)
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tc.in, err)
		}
		if got.Kind != tc.kind || got.Every != tc.every || got.Cron != tc.cron {
			t.Fatalf("ParseSchedule(%q)=%+v", tc.in, got)
		}
	}
	for _, in := range []string{"", "soon", "00:00", "01:75", "-5m", "cron:"} {
		if _, err := ParseSchedule(in); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", in)
		}
	}
}

func TestAddRejectsBadCron(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	if err := s.Add("bad", "99 * * * *", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected invalid cron error")
	}
	if err := s.Add("", "1h", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected name error")
	}
	if len(s.Snapshot().Schedules) != 0 {
		t.Fatalf("rejected jobs must not be registered")
	}
}

func TestAddUpsertsByName(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	job := func(context.Context) error { return nil }
	_ = s.Add("sweep", "1h", 0, job)
	_ = s.Add("sweep", "@daily", time.Minute, job)
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "@daily" || snap.Schedules[0].Timeout != time.Minute {
		t.Fatalf("snapshot=%+v", snap.Schedules)
	}
	if !s.Remove("sweep") || s.Remove("sweep") {
		t.Fatalf("remove semantics")
	}
}

func TestRunNowRecordsHistoryAndEvents(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8, "task.")
	defer unsub()

	s := New(Config{Enabled: true}, logx.Nop(), bus)
	boom := errors.New("boom")
	_ = s.Add("fails", "@yearly", 0, func(context.Context) error { return boom })
	if s.RunNow("fails") {
		t.Fatalf("RunNow before Start must report false")
	}
	s.Start(context.Background())
	defer func() { _ = s.Stop(context.Background()) }()

	if !s.RunNow("fails") {
		t.Fatalf("RunNow returned false")
	}
	select {
	case ev := <-events:
		if ev.Type != EventTaskFailed {
			t.Fatalf("event=%+v", ev)
		}
		if te, ok := ev.Data.(TaskEvent); !ok || te.Name != "fails" || te.Error != "boom" {
			t.Fatalf("data=%+v", ev.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event")
	}
	deadline := time.Now().Add(time.Second)
	for len(s.Snapshot().History) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h := s.Snapshot().History
	if len(h) != 1 || h[0].Error != "boom" {
		t.Fatalf("history=%+v", h)
	}
}

func TestRunSkipsOverlapAndHonoursTimeout(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	var calls atomic.Int32
	release := make(chan struct{})
	_ = s.Add("slow", "@yearly", 50*time.Millisecond, func(ctx context.Context) error {
		calls.Add(1)
		select {
		case <-ctx.Done():
			<-release
			return ctx.Err()
		case <-release:
			return nil
		}
	})
	s.Start(context.Background())

	s.RunNow("slow")
	deadline := time.Now().Add(time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.RunNow("slow")
	time.Sleep(100 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls=%d want 1 while first run is in progress", n)
	}
	close(release)

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	h := s.Snapshot().History
	if len(h) != 1 || h[0].Error != context.DeadlineExceeded.Error() {
		t.Fatalf("history=%+v", h)
	}
}

func TestRecoversPanics(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	_ = s.Add("panics", "@yearly", 0, func(context.Context) error { panic("oops") })
	s.Start(context.Background())
	s.RunNow("panics")
	deadline := time.Now().Add(time.Second)
	for len(s.Snapshot().History) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	_ = s.Stop(context.Background())
	if h := s.Snapshot().History; len(h) != 1 || h[0].Error != "panic: oops" {
		t.Fatalf("history=%+v", h)
	}
}

func TestDisabledDoesNotStart(t *testing.T) {
	s := New(Config{}, logx.Nop(), nil)
	s.Start(context.Background())
	if s.Snapshot().Running {
		t.Fatalf("disabled scheduler must not run")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
