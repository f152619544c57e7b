package bot

import (
	"context"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

// callbackNamespace prefixes every inline button this package emits.
const callbackNamespace = "rem"

// maxListed bounds /reminders output.
const maxListed = 20

// Reminders is the part of reminder.Service the chat surface uses.
type Reminders interface {
	Create(ctx context.Context, req reminder.CreateRequest) (reminder.Record, error)
	Snooze(ctx context.Context, id, ownerID string, d time.Duration) (reminder.Record, error)
	Cancel(ctx context.Context, id, ownerID string) error
	Get(ctx context.Context, id, ownerID string) (reminder.Record, error)
	List(ctx context.Context, ownerID string) ([]reminder.Record, error)
	Location() *time.Location
	SnoozeOptions() []time.Duration
}

type Bot struct {
	svc Reminders
	log logx.Logger
	now func() time.Time
}

func New(svc Reminders, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bot{svc: svc, log: log.With(logx.String("comp", "bot")), now: time.Now}
}

func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "remind",
			Aliases:     []string{"r", "new"},
			Description: "create a reminder",
			Usage:       "/remind <when> | <title> [--every=daily]\n/remind tomorrow at 9am | stand-up\n/remind in 20 minutes | tea --every=hourly",
			Handle:      b.handleRemind,
		},
		{
			Name:        "reminders",
			Aliases:     []string{"list", "ls"},
			Description: "list your reminders",
			Usage:       "/reminders",
			Handle:      b.handleList,
		},
		{
			Name:        "snooze",
			Description: "push a reminder back",
			Usage:       "/snooze <id> <duration>\n/snooze 3f2a9c1d 2h",
			Handle:      b.handleSnooze,
		},
		{
			Name:        "cancel",
			Aliases:     []string{"rm", "delete"},
			Description: "delete a reminder",
			Usage:       "/cancel <id>",
			Handle:      b.handleCancel,
		},
	}
}

func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Namespace: callbackNamespace, Action: string(reminder.ActionSnooze), Handle: b.handleSnoozeButton},
		{Namespace: callbackNamespace, Action: string(reminder.ActionCancel), Handle: b.handleCancelButton},
	}
}
