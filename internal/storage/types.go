package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// DefaultPath is used by the file and sqlite drivers when Path is empty.
const DefaultPath = "data/reminders"

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl journal + snapshot), the default
//   - "sqlite": SQLite database file
//   - "postgres": PostgreSQL through a pgx pool
//   - "redis": one JSON value per reminder plus an id set
//   - "memory": process-local, lost on restart
type Config struct {
	Driver      string
	Path        string
	DSN         string
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records a reminder lifecycle event.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At          time.Time `json:"at"`
	Action      string    `json:"action"`
	ReminderID  string    `json:"reminder_id"`
	OwnerID     string    `json:"owner_id,omitempty"`
	Destination string    `json:"destination,omitempty"`
	FireAt      time.Time `json:"fire_at,omitzero"`
	Detail      string    `json:"detail,omitempty"`
}
