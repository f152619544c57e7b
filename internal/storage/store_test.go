package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/timeparse"
	logx "remindbot/pkg/logx"
)

var testZone = time.FixedZone("WIB", 7*3600)

func sampleRecord(id, owner string) reminder.Record {
	at := time.Date(2026, 10, 14, 9, 30, 0, 0, testZone)
	return reminder.Record{
		ID:          id,
		OwnerID:     owner,
		Destination: "chat-" + owner,
		FireAt:      at.Add(time.Hour),
		Title:       "stretch",
		Recurrence:  reminder.Daily,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

type opener func(t *testing.T) Store

func drivers(t *testing.T) map[string]opener {
	t.Helper()
	ds := map[string]opener{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"file": func(t *testing.T) Store {
			st, err := Open(context.Background(), Config{Driver: "file", Path: filepath.Join(t.TempDir(), "rem")}, logx.Nop())
			if err != nil {
				t.Fatalf("open file: %v", err)
			}
			return st
		},
		"sqlite": func(t *testing.T) Store {
			st, err := Open(context.Background(), Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "rem.db")}, logx.Nop())
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return st
		},
	}
	if dsn := os.Getenv("REMINDBOT_TEST_PG_DSN"); dsn != "" {
		ds["postgres"] = func(t *testing.T) Store {
			st, err := Open(context.Background(), Config{Driver: "postgres", DSN: dsn}, logx.Nop())
			if err != nil {
				t.Fatalf("open postgres: %v", err)
			}
			wipe(t, st)
			return st
		}
	}
	if addr := os.Getenv("REMINDBOT_TEST_REDIS_ADDR"); addr != "" {
		ds["redis"] = func(t *testing.T) Store {
			prefix := "remindbot-test:" + t.Name() + ":"
			st, err := Open(context.Background(), Config{Driver: "redis", Addr: addr, KeyPrefix: prefix}, logx.Nop())
			if err != nil {
				t.Fatalf("open redis: %v", err)
			}
			wipe(t, st)
			return st
		}
	}
	return ds
}

func wipe(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	list, err := st.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, r := range list {
		_ = st.Delete(ctx, r.ID)
	}
}

func TestStoreConformance(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			defer st.Close()
			ctx := context.Background()

			in, err := st.Insert(ctx, sampleRecord("a", "u1"))
			if err != nil {
				t.Fatalf("insert: %v", err)
			}
			if in.Version != 1 {
				t.Fatalf("insert version=%d want 1", in.Version)
			}
			if _, err := st.Insert(ctx, sampleRecord("a", "u1")); !errors.Is(err, reminder.ErrDuplicateID) {
				t.Fatalf("duplicate insert err=%v", err)
			}

			got, err := st.Find(ctx, "a", "u1")
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if !got.FireAt.Equal(in.FireAt) || got.Title != "stretch" || got.Recurrence != reminder.Daily {
				t.Fatalf("find mismatch: %+v", got)
			}
			if _, err := st.Find(ctx, "a", "u2"); !errors.Is(err, reminder.ErrRecordNotFound) {
				t.Fatalf("foreign owner err=%v", err)
			}
			if _, err := st.Find(ctx, "a", ""); err != nil {
				t.Fatalf("find without owner: %v", err)
			}
			if _, err := st.Find(ctx, "missing", ""); !errors.Is(err, reminder.ErrRecordNotFound) {
				t.Fatalf("missing err=%v", err)
			}

			upd := got
			upd.Triggered = true
			upd.FireAt = got.FireAt.Add(24 * time.Hour)
			v2, err := st.Update(ctx, upd)
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if v2.Version != 2 {
				t.Fatalf("update version=%d want 2", v2.Version)
			}
			// Stale version must not overwrite.
			stale := got
			stale.Title = "stale"
			if _, err := st.Update(ctx, stale); !errors.Is(err, reminder.ErrVersionConflict) {
				t.Fatalf("stale update err=%v", err)
			}
			cur, _ := st.Find(ctx, "a", "")
			if cur.Title != "stretch" || !cur.Triggered || cur.Version != 2 {
				t.Fatalf("after conflict: %+v", cur)
			}
			ghost := sampleRecord("ghost", "u1")
			ghost.Version = 1
			if _, err := st.Update(ctx, ghost); !errors.Is(err, reminder.ErrRecordNotFound) {
				t.Fatalf("update missing err=%v", err)
			}

			if _, err := st.Insert(ctx, sampleRecord("b", "u2")); err != nil {
				t.Fatalf("insert b: %v", err)
			}
			list, err := st.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 2 {
				t.Fatalf("list len=%d want 2", len(list))
			}

			if err := st.Delete(ctx, "a"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := st.Delete(ctx, "a"); !errors.Is(err, reminder.ErrRecordNotFound) {
				t.Fatalf("second delete err=%v", err)
			}

			if err := st.AppendAudit(ctx, AuditEntry{Action: "reminder.created", ReminderID: "b", OwnerID: "u2"}); err != nil {
				t.Fatalf("audit: %v", err)
			}
		})
	}
}

func TestFileStoreReplaysJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rem")
	ctx := context.Background()
	st, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	r, _ := st.Insert(ctx, sampleRecord("a", "u1"))
	r.Triggered = true
	if _, err := st.Update(ctx, r); err != nil {
		t.Fatalf("update: %v", err)
	}
	_, _ = st.Insert(ctx, sampleRecord("b", "u1"))
	_ = st.Delete(ctx, "b")

	// Simulate a crash: no Close, so nothing is compacted.
	fs := st.(*fileStore)
	_ = fs.journalFile.Close()
	_ = fs.auditFile.Close()

	journal := filepath.Join(filepath.Dir(path), "rem.reminders.journal.jsonl")
	f, err := os.OpenFile(journal, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	_, _ = f.WriteString(`{"op":"put","id":"c","rec`)
	_ = f.Close()

	st2, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	list, _ := st2.List(ctx)
	if len(list) != 1 || list[0].ID != "a" || !list[0].Triggered || list[0].Version != 2 {
		t.Fatalf("replayed state: %+v", list)
	}
}

func TestFileStoreCompactsOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rem")
	ctx := context.Background()
	st, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = st.Insert(ctx, sampleRecord("a", "u1"))
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	fi, err := os.Stat(filepath.Join(dir, "rem.reminders.journal.jsonl"))
	if err != nil || fi.Size() != 0 {
		t.Fatalf("journal not truncated: %v size=%v", err, fi)
	}
	st2, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	if _, err := st2.Find(ctx, "a", "u1"); err != nil {
		t.Fatalf("find after compact: %v", err)
	}
	if _, err := st.Insert(ctx, sampleRecord("z", "u1")); !errors.Is(err, ErrClosed) {
		t.Fatalf("closed insert err=%v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "floppy"}, logx.Nop()); err == nil {
		t.Fatalf("expected error")
	}
}

type stillClock struct{ now time.Time }

func (c stillClock) Now() time.Time { return c.now }
func (c stillClock) AfterFunc(d time.Duration, f func()) reminder.Handle {
	return time.AfterFunc(time.Hour, func() {})
}

func TestFileStoreReloadKeepsDailyWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	path := filepath.Join(t.TempDir(), "rem")
	ctx := context.Background()

	st, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	r := sampleRecord("d", "u1")
	r.FireAt = time.Date(2026, 3, 27, 9, 0, 0, 0, loc)
	if _, err := st.Insert(ctx, r); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st2, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	svc := reminder.New(st2, nil, reminder.Options{
		Location: loc,
		Clock:    stillClock{now: time.Date(2026, 3, 30, 12, 0, 0, 0, loc)},
		Parser:   timeparse.New(loc),
	})
	defer svc.Stop(ctx)
	if _, err := svc.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got, err := st2.Find(ctx, "d", "")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if want := time.Date(2026, 3, 31, 9, 0, 0, 0, loc); !got.FireAt.Equal(want) {
		t.Fatalf("advanced fire_at=%s want %s", got.FireAt.In(loc), want)
	}
}
