package notifier

import (
	"context"
	"time"

	"remindbot/internal/reminder"
)

// Config controls the async delivery pipeline.
type Config struct {
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Message is one outgoing text with optional inline actions.
type Message struct {
	Destination string
	Text        string
	Actions     []reminder.Action
}

// Sender is the transport used by workers.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

type HistoryItem struct {
	At          time.Time `json:"at"`
	Destination string    `json:"destination"`
	Text        string    `json:"text"`
}

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
// Keep it small; Data may be logged/serialized by subscribers.
type NotificationEvent struct {
	Destination string    `json:"destination"`
	Key         string    `json:"key"`
	At          time.Time `json:"at"`
	Attempts    int       `json:"attempts,omitempty"`
	Error       string    `json:"error,omitempty"`
}
