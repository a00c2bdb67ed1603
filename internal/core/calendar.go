// Calendar arithmetic for recurring schedules.
//
// Monthly and yearly steps clamp the day of month to the last valid day of
// the target month (Jan 31 -> Feb 28/29, Feb 29 -> Feb 28 on non-leap years)
// instead of letting time.AddDate roll over into the following month.
package core

import (
	"fmt"
	"time"
)

// Advance returns the next occurrence date after one frequency step.
// It is total over all valid calendar dates; callers are expected to have
// validated the frequency (unknown frequencies return the input unchanged).
func Advance(d Date, f Frequency) Date {
	switch f {
	case Daily:
		return Date{Time: d.AddDate(0, 0, 1)}
	case Weekly:
		return Date{Time: d.AddDate(0, 0, 7)}
	case Monthly:
		return addMonthsClamped(d, 1)
	case Yearly:
		return addMonthsClamped(d, 12)
	}
	return d
}

// FirstDue computes the first date at or after today on which a schedule
// starting at start is due. A start date at or after today is returned as-is.
// An unknown frequency is a configuration error, never a silent no-op: the
// loop below would otherwise not terminate.
func FirstDue(start Date, f Frequency, today Date) (Date, error) {
	if !f.Valid() {
		return Date{}, fmt.Errorf("first due: %w: %q", ErrInvalidFrequency, f)
	}
	next := start
	for next.Before(today) {
		next = Advance(next, f)
	}
	return next, nil
}

func addMonthsClamped(d Date, months int) Date {
	year, month, day := d.Date()
	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := lastDayOfMonth(target); day > last {
		day = last
	}
	return NewDate(target.Year(), int(target.Month()), day)
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
