package domain

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// DayBucket is the half-open interval [Start, End) of one calendar day in the service time zone.
// Date carries the same calendar day at UTC midnight and is used as the DATE key in storage.
type DayBucket struct {
	Date  time.Time
	Start time.Time
	End   time.Time
}

// NewDayBucket returns the bucket containing t, evaluated in loc.
func NewDayBucket(t time.Time, loc *time.Location) DayBucket {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return DayBucket{
		Date:  time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
		Start: start,
		End:   start.AddDate(0, 0, 1),
	}
}

// ParseDay parses a YYYY-MM-DD value into its bucket.
func ParseDay(value string, loc *time.Location) (DayBucket, error) {
	t, err := time.ParseInLocation(dayLayout, value, loc)
	if err != nil {
		return DayBucket{}, fmt.Errorf("parse day %q: %w", value, err)
	}
	return NewDayBucket(t, loc), nil
}

// Contains reports whether t falls inside the bucket.
func (d DayBucket) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}

func (d DayBucket) String() string {
	return d.Date.Format(dayLayout)
}

// FormatDuration renders whole seconds as MM:SS. Minutes are not wrapped into hours.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// ElapsedSeconds returns the truncated number of whole seconds between start and end.
func ElapsedSeconds(start, end time.Time) int {
	return int(end.Sub(start) / time.Second)
}
