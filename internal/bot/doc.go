// Package bot is the chat surface of the reminder engine: the /remind, /reminders,
// /snooze and /cancel commands, the inline snooze/cancel buttons attached to fired
// reminders, and the notifier.Sender that renders outgoing reminders for Telegram.
package bot
