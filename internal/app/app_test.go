package app

import (
	"strings"
	"testing"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
)

func TestMapNotifierDefaults(t *testing.T) {
	n, err := mapNotifierConfig(&config.Config{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if n.RetryMax != 3 || n.DedupWindow != 10*time.Minute {
		t.Fatalf("defaults=%+v", n)
	}
	if _, err := mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{RetryBase: "later"}}); err == nil {
		t.Fatalf("bad retry_base should fail")
	}
}

func TestReminderOptions(t *testing.T) {
	cfg := &config.Config{Reminders: config.RemindersConfig{
		Timezone:      "Asia/Jakarta",
		MaxPerUser:    7,
		FireTimeout:   "10s",
		SnoozeOptions: []string{"5m"},
	}}
	opts, err := reminderOptions(cfg)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if opts.Location.String() != "Asia/Jakarta" || opts.MaxPerOwner != 7 || opts.FireTimeout != 10*time.Second {
		t.Fatalf("opts=%+v", opts)
	}
	if len(opts.SnoozeOptions) != 1 || opts.SnoozeOptions[0] != 5*time.Minute {
		t.Fatalf("snooze=%v", opts.SnoozeOptions)
	}
}

func TestMapHousekeeping(t *testing.T) {
	hk, err := mapHousekeeping(&config.Config{Housekeeping: config.HousekeepingConfig{Enabled: true}})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if hk.sweep != config.DefaultSweep || hk.resync != config.DefaultResync || hk.retention != config.DefaultRetention {
		t.Fatalf("hk=%+v", hk)
	}
	_, err = mapHousekeeping(&config.Config{Housekeeping: config.HousekeepingConfig{SweepSchedule: "whenever"}})
	if err == nil || !strings.Contains(err.Error(), "invalid schedule") {
		t.Fatalf("err=%v want invalid schedule", err)
	}
}

func TestMapHTTPDefaultAddr(t *testing.T) {
	h := mapHTTPConfig(&config.Config{HTTP: config.HTTPConfig{Enabled: true}})
	if h.Addr != config.DefaultHTTPAddr || !h.Enabled {
		t.Fatalf("http=%+v", h)
	}
}

func TestAuditEntryFromReminderEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := eventbus.Event{
		Type: "reminder.fired",
		Time: at,
		Data: reminder.EventData{ID: "r1", OwnerID: "42", Destination: "100", FireAt: at, Detail: "delivered"},
	}
	got, ok := auditEntry(e)
	if !ok {
		t.Fatalf("event not mapped")
	}
	if got.Action != "fired" || got.ReminderID != "r1" || got.OwnerID != "42" || !got.FireAt.Equal(at) {
		t.Fatalf("entry=%+v", got)
	}
	if _, ok := auditEntry(eventbus.Event{Type: "reminder.fired", Data: "junk"}); ok {
		t.Fatalf("foreign payload should be skipped")
	}
}
