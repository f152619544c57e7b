package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	logx "remindbot/pkg/logx"
)

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(Config{Token: "t"}, logx.Nop())
	if rec := get(t, s.Handler(), "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz=%d", rec.Code)
	}

	s.SetHealth(func(context.Context) error { return errors.New("store down") })
	rec := get(t, s.Handler(), "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz=%d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] != "store down" {
		t.Fatalf("body=%s err=%v", rec.Body.String(), err)
	}
}

func TestStatsRequiresToken(t *testing.T) {
	s := New(Config{Token: "secret"}, logx.Nop())
	s.Register("reminders", func(context.Context) any { return map[string]int{"live_timers": 3} })
	s.Register("notifier", func(context.Context) any { return map[string]int{"sent": 7} })
	h := s.Handler()

	if rec := get(t, h, "/stats", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}
	if rec := get(t, h, "/stats", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", rec.Code)
	}
	if rec := get(t, h, "/stats?token=secret", ""); rec.Code != http.StatusOK {
		t.Fatalf("query token: %d", rec.Code)
	}

	rec := get(t, h, "/stats", "secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats=%d", rec.Code)
	}
	var all map[string]map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if all["reminders"]["live_timers"] != 3 || all["notifier"]["sent"] != 7 {
		t.Fatalf("stats=%v", all)
	}

	if rec := get(t, h, "/stats/notifier", "secret"); rec.Code != http.StatusOK || rec.Body.String() != `{"sent":7}` {
		t.Fatalf("section=%d %s", rec.Code, rec.Body.String())
	}
	if rec := get(t, h, "/stats/nope", "secret"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown section=%d", rec.Code)
	}
}

func TestPprofMountedOnlyWhenEnabled(t *testing.T) {
	off := New(Config{}, logx.Nop()).Handler()
	if rec := get(t, off, "/debug/pprof/cmdline", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof off: %d", rec.Code)
	}
	on := New(Config{Pprof: true}, logx.Nop()).Handler()
	if rec := get(t, on, "/debug/pprof/cmdline", ""); rec.Code != http.StatusOK {
		t.Fatalf("pprof on: %d", rec.Code)
	}
}

func TestStartRefusesInsecureBind(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected refusal")
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:80": true, "localhost:1": true, "[::1]:9": true,
		":80": false, "0.0.0.0:80": false, "10.0.0.1:80": false, "bad": false,
	}
	for in, want := range cases {
		if got := isLoopbackAddr(in); got != want {
			t.Fatalf("isLoopbackAddr(%q)=%v want %v", in, got, want)
		}
	}
}
