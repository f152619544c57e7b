package reminder

import (
	"testing"
	"time"
)

type stubHandle struct{ stops int }

func (h *stubHandle) Stop() bool { h.stops++; return true }

func TestRegistryInstallReplacesPrior(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	first, second := &stubHandle{}, &stubHandle{}
	tok1 := r.Install("a", func(uint64) Handle { return first })
	tok2 := r.Install("a", func(uint64) Handle { return second })

	if r.Len() != 1 {
		t.Fatalf("len=%d want 1", r.Len())
	}
	if first.stops != 1 || second.stops != 0 {
		t.Fatalf("stops first=%d second=%d", first.stops, second.stops)
	}
	if r.Claim("a", tok1) {
		t.Fatalf("stale token must not claim")
	}
	if !r.Claim("a", tok2) || r.Has("a") {
		t.Fatalf("current token should claim and remove the entry")
	}
	if second.stops != 0 {
		t.Fatalf("claim must not stop the handle")
	}
}

func TestRegistryCancelRemove(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	h := &stubHandle{}
	r.Install("a", func(uint64) Handle { return h })
	if !r.Cancel("a") || h.stops != 1 || r.Has("a") {
		t.Fatalf("cancel should stop and remove")
	}
	if r.Cancel("a") {
		t.Fatalf("second cancel should be a no-op")
	}

	h2 := &stubHandle{}
	r.Install("b", func(uint64) Handle { return h2 })
	if !r.Remove("b") || h2.stops != 0 || r.Has("b") {
		t.Fatalf("remove should drop without stopping")
	}
}

func TestRegistryInstallIfAbsent(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	h := &stubHandle{}
	r.Install("a", func(uint64) Handle { return h })
	called := false
	if r.InstallIfAbsent("a", func(uint64) Handle { called = true; return &stubHandle{} }) {
		t.Fatalf("existing entry must be kept")
	}
	if called || h.stops != 0 {
		t.Fatalf("arm called=%v stops=%d", called, h.stops)
	}
	if !r.InstallIfAbsent("b", func(uint64) Handle { return &stubHandle{} }) {
		t.Fatalf("missing entry should be installed")
	}
}

func TestRegistryCancelAll(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	hs := []*stubHandle{{}, {}, {}}
	for i, h := range hs {
		r.Install(string(rune('a'+i)), func(uint64) Handle { return h })
	}
	if n := r.CancelAll(); n != 3 || r.Len() != 0 {
		t.Fatalf("CancelAll=%d len=%d", n, r.Len())
	}
	for i, h := range hs {
		if h.stops != 1 {
			t.Fatalf("handle %d stops=%d", i, h.stops)
		}
	}
}

func TestRegistryStaleCallbackAfterCancel(t *testing.T) {
	t.Parallel()

	clk := newFakeClock(time.Unix(0, 0))
	r := NewRegistry()
	fired := 0
	r.Install("a", func(tok uint64) Handle {
		return clk.AfterFunc(time.Minute, func() {
			if r.Claim("a", tok) {
				fired++
			}
		})
	})
	// Replace before the first fires; only the replacement may run.
	r.Install("a", func(tok uint64) Handle {
		return clk.AfterFunc(2*time.Minute, func() {
			if r.Claim("a", tok) {
				fired++
			}
		})
	})
	clk.Advance(5 * time.Minute)
	if fired != 1 {
		t.Fatalf("fired=%d want 1", fired)
	}
}
