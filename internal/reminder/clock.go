package reminder

import "time"

// Handle is a cancellable pending callback. *time.Timer satisfies it.
type Handle interface {
	Stop() bool
}

// Clock is the time source of the Service.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Handle
}

type systemClock struct{}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Handle { return time.AfterFunc(d, f) }
