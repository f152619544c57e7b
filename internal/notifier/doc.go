// Package notifier delivers outgoing reminder messages.
//
// Messages go through a bounded queue served by a worker pool. Each send is
// rate limited with a token bucket and retried with jittered backoff. Identical
// Notify messages to the same destination inside DedupWindow are suppressed;
// Deliver is never deduped.
//
// Deliver blocks until the message was handed to the transport (or failed), so
// the caller learns about delivery errors. Notify is fire-and-forget and is used
// for operator alerts.
package notifier
