package reminder

import (
	"fmt"
	"strings"
	"time"
)

// Recurrence is how often a reminder repeats. The zero value means it does not.
type Recurrence string

const (
	None    Recurrence = ""
	Hourly  Recurrence = "hourly"
	Daily   Recurrence = "daily"
	Weekday Recurrence = "weekday"
	Weekly  Recurrence = "weekly"
	Monthly Recurrence = "monthly"
	Yearly  Recurrence = "yearly"
)

// ParseRecurrence accepts the canonical names plus a few aliases ("none", "weekdays").
func ParseRecurrence(s string) (Recurrence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "once", "never":
		return None, nil
	case "hourly", "hour":
		return Hourly, nil
	case "daily", "day":
		return Daily, nil
	case "weekday", "weekdays", "workday", "workdays":
		return Weekday, nil
	case "weekly", "week":
		return Weekly, nil
	case "monthly", "month":
		return Monthly, nil
	case "yearly", "year", "annually":
		return Yearly, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrInvalidRecurrence, s)
	}
}

func (r Recurrence) Valid() bool {
	switch r {
	case None, Hourly, Daily, Weekday, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

func (r Recurrence) String() string {
	if r == None {
		return "none"
	}
	return string(r)
}

// Record is one persisted reminder.
//
// ID, OwnerID, Destination, Title and Recurrence never change after creation. FireAt moves
// on snooze and on recurrence. Version is owned by the Store and bumps on every update.
type Record struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Destination string     `json:"destination"`
	FireAt      time.Time  `json:"fire_at"`
	Title       string     `json:"title,omitempty"`
	Recurrence  Recurrence `json:"recurrence,omitempty"`
	Triggered   bool       `json:"triggered"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Version     int64      `json:"version"`
}

// Terminal reports whether the record has fired and will not fire again on its own.
func (r Record) Terminal() bool { return r.Triggered && r.Recurrence == None }

type ActionKind string

const (
	ActionSnooze ActionKind = "snooze"
	ActionCancel ActionKind = "cancel"
)

// Action is an interactive control attached to a fired reminder. The command layer routes
// it back to Service.Snooze or Service.Cancel.
type Action struct {
	Kind       ActionKind
	Magnitude  time.Duration
	ReminderID string
}

// DefaultSnoozeOptions are the snooze buttons offered with every fired reminder.
var DefaultSnoozeOptions = []time.Duration{30 * time.Minute, 2 * time.Hour, 24 * time.Hour}

// CreateRequest carries the inputs of Service.Create.
type CreateRequest struct {
	OwnerID     string
	Destination string
	RawTime     string
	Title       string
	Recurrence  Recurrence
}
