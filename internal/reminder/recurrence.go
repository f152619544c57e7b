package reminder

import "time"

const (
	// weekdayGuard bounds the Weekday search; any seven consecutive days contain a weekday.
	weekdayGuard = 7

	// DefaultAdvanceCap bounds Advance.
	DefaultAdvanceCap = 400
)

// Next returns the occurrence after current for kind. It returns false for None and for
// unknown kinds.
//
// Monthly and yearly steps clamp to the end of the target month (Jan 31 -> Feb 28).
func Next(current time.Time, kind Recurrence) (time.Time, bool) {
	switch kind {
	case Hourly:
		return current.Add(time.Hour), true
	case Daily:
		return current.AddDate(0, 0, 1), true
	case Weekly:
		return current.AddDate(0, 0, 7), true
	case Monthly:
		return addMonthsClamped(current, 1), true
	case Yearly:
		return addMonthsClamped(current, 12), true
	case Weekday:
		t := current
		for i := 0; i < weekdayGuard; i++ {
			t = t.AddDate(0, 0, 1)
			if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Advance steps from last with Next until the result is strictly after now. It gives up
// after maxSteps steps (DefaultAdvanceCap when maxSteps <= 0) or when Next returns false.
func Advance(last time.Time, kind Recurrence, now time.Time, maxSteps int) (time.Time, bool) {
	if maxSteps <= 0 {
		maxSteps = DefaultAdvanceCap
	}
	t := last
	for i := 0; i < maxSteps; i++ {
		n, ok := Next(t, kind)
		if !ok {
			return time.Time{}, false
		}
		if n.After(now) {
			return n, true
		}
		t = n
	}
	return time.Time{}, false
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
