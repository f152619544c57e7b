// Package reminder is the scheduling core: it creates reminders from natural-language time
// phrases, keeps one live timer per pending reminder, fires them through a Sink, advances
// recurring reminders, and rebuilds its timers from the Store on startup (Reconcile).
//
// Persistence and delivery are consumed through the Store and Sink interfaces; the Service
// never assumes anything about the chat platform or the storage medium behind them.
//
// Concurrency: records carry a Version. Store.Update is a compare-and-swap on it. A fire
// handler commits its post-fire write only when the record is still the version it fired,
// so a snooze racing a fire always wins.
package reminder
