package reminder

import "errors"

// Errors returned by Service. Wrapped causes are preserved for errors.Is / errors.As.
var (
	ErrUnparsableTime    = errors.New("reminder: unparsable time")
	ErrTimeInPast        = errors.New("reminder: time is in the past")
	ErrStoreUnavailable  = errors.New("reminder: store unavailable")
	ErrNotFound          = errors.New("reminder: not found")
	ErrTooMany           = errors.New("reminder: too many pending reminders")
	ErrInvalidRecurrence = errors.New("reminder: invalid recurrence")
	ErrInvalidDuration   = errors.New("reminder: snooze duration must be positive")
	ErrStopped           = errors.New("reminder: service stopped")
)

// Errors a Store implementation must return so the Service can tell them apart.
var (
	ErrRecordNotFound  = errors.New("store: record not found")
	ErrVersionConflict = errors.New("store: version conflict")
	ErrDuplicateID     = errors.New("store: duplicate id")
)
