package reminder

import (
	"fmt"
	"time"
)

// FireText is the notification body for a fired reminder.
func FireText(r Record) string {
	msg := "⏰ Reminder!"
	if r.Title != "" {
		msg = "⏰ Reminder: " + r.Title
	}
	if r.Recurrence != None {
		msg += fmt.Sprintf("\n(repeats %s)", r.Recurrence)
	}
	return msg
}

// FireActions returns the controls attached to a fired reminder: one snooze per option,
// then cancel.
func FireActions(id string, snooze []time.Duration) []Action {
	out := make([]Action, 0, len(snooze)+1)
	for _, d := range snooze {
		out = append(out, Action{Kind: ActionSnooze, Magnitude: d, ReminderID: id})
	}
	return append(out, Action{Kind: ActionCancel, ReminderID: id})
}
