package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/reminder"
	"remindbot/pkg/tgui"
)

const (
	shortIDLen = 8
	whenLayout = "Mon 02 Jan 2006 15:04 MST"
)

// shortID is what users type back. UUIDv7 prefixes are timestamps, so the tail is used.
func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[len(id)-shortIDLen:]
}

// formatDur renders d in the largest whole unit: 30m, 2h, 1d. Mixed values fall back to
// time.Duration's form.
func formatDur(d time.Duration) string {
	switch {
	case d <= 0:
		return "0m"
	case d%(24*time.Hour) == 0:
		return strconv.FormatInt(int64(d/(24*time.Hour)), 10) + "d"
	case d%time.Hour == 0:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "h"
	case d%time.Minute == 0:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "m"
	}
	return d.String()
}

// parseDur accepts Go durations plus a leading day count ("1d", "1d12h") and bare
// numbers as minutes.
func parseDur(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Minute, nil
	}
	var days time.Duration
	if head, tail, ok := strings.Cut(s, "d"); ok {
		n, err := strconv.Atoi(head)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		days = time.Duration(n) * 24 * time.Hour
		s = tail
		if s == "" {
			return days, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return days + d, nil
}

// relative renders the gap between now and t at minute precision.
func relative(now, t time.Time) string {
	d := t.Sub(now).Round(time.Minute)
	if d < time.Minute {
		return "now"
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	mins := (d - hours*time.Hour) / time.Minute

	var parts []string
	if days > 0 {
		parts = append(parts, strconv.Itoa(int(days))+"d")
	}
	if hours > 0 {
		parts = append(parts, strconv.Itoa(int(hours))+"h")
	}
	if mins > 0 && days == 0 {
		parts = append(parts, strconv.Itoa(int(mins))+"m")
	}
	return "in " + strings.Join(parts, " ")
}

func (b *Bot) when(t time.Time) tgui.H {
	now := b.now()
	loc := b.svc.Location()
	return tgui.JoinH(" ", tgui.B(t.In(loc).Format(whenLayout)), tgui.Esc("("+relative(now, t)+")"))
}

func (b *Bot) whenPlain(t time.Time) string {
	return t.In(b.svc.Location()).Format(whenLayout) + " (" + relative(b.now(), t) + ")"
}

func title(r reminder.Record) string {
	if r.Title == "" {
		return "(untitled)"
	}
	return r.Title
}

// userError maps service errors to something a chat user can act on.
func userError(err error) string {
	switch {
	case errors.Is(err, reminder.ErrUnparsableTime):
		return "I couldn't understand that time. Try \"tomorrow at 9am\", \"in 20 minutes\" or \"friday 18:30\"."
	case errors.Is(err, reminder.ErrTimeInPast):
		return "That time is already in the past."
	case errors.Is(err, reminder.ErrNotFound):
		return "No such reminder."
	case errors.Is(err, reminder.ErrTooMany):
		return "You have too many pending reminders. Cancel some first."
	case errors.Is(err, reminder.ErrInvalidRecurrence):
		return "Unknown repeat. Use one of: hourly, daily, weekday, weekly, monthly, yearly."
	case errors.Is(err, reminder.ErrInvalidDuration):
		return "Snooze duration must be positive."
	case errors.Is(err, reminder.ErrStoreUnavailable):
		return "Storage is unavailable right now, please try again later."
	case errors.Is(err, reminder.ErrStopped):
		return "The bot is shutting down, please try again in a moment."
	}
	return "Something went wrong."
}

func userFault(err error) bool {
	for _, e := range []error{
		reminder.ErrUnparsableTime, reminder.ErrTimeInPast, reminder.ErrNotFound,
		reminder.ErrTooMany, reminder.ErrInvalidRecurrence, reminder.ErrInvalidDuration,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
