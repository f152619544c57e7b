package bot

import (
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/pkg/tgui"
)

// listMarker tags cancel buttons that live on a /reminders listing, so the listing is
// redrawn instead of replaced.
const listMarker = "list"

func snoozeButton(id string, d time.Duration) (kit.Button, bool) {
	data, err := tgui.Data(callbackNamespace, string(reminder.ActionSnooze), id+":"+formatDur(d))
	if err != nil {
		return kit.Button{}, false
	}
	return kit.Button{Text: "😴 " + formatDur(d), Data: data}, true
}

func cancelButton(label, id string, fromList bool) (kit.Button, bool) {
	payload := id
	if fromList {
		payload += ":" + listMarker
	}
	data, err := tgui.Data(callbackNamespace, string(reminder.ActionCancel), payload)
	if err != nil {
		return kit.Button{}, false
	}
	return kit.Button{Text: label, Data: data}, true
}

func cancelRow(id string, fromList bool) [][]kit.Button {
	btn, ok := cancelButton("✖ Cancel", id, fromList)
	if !ok {
		return nil
	}
	return [][]kit.Button{{btn}}
}

// actionRows lays out snooze actions on one row and cancel below them. Actions whose
// callback data would not fit are dropped.
func actionRows(actions []reminder.Action) [][]kit.Button {
	var snooze, rest []kit.Button
	for _, a := range actions {
		switch a.Kind {
		case reminder.ActionSnooze:
			if btn, ok := snoozeButton(a.ReminderID, a.Magnitude); ok {
				snooze = append(snooze, btn)
			}
		case reminder.ActionCancel:
			if btn, ok := cancelButton("✖ Cancel", a.ReminderID, false); ok {
				rest = append(rest, btn)
			}
		}
	}
	var rows [][]kit.Button
	if len(snooze) > 0 {
		rows = append(rows, snooze)
	}
	if len(rest) > 0 {
		rows = append(rows, rest)
	}
	return rows
}
