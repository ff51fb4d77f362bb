package airquality

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar format accepted for history and catalog windows.
const DateLayout = "2006/01/02"

var (
	// ErrInvalidDate is returned when a date does not match DateLayout.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidRange is returned when the end of a window precedes its start.
	ErrInvalidRange = errors.New("end date precedes start date")
)

// DateRange is a calendar window, both ends at midnight UTC.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDate parses s with DateLayout and anchors it at midnight UTC.
// Calendar dates are never interpreted in the host timezone.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: expected YYYY/MM/DD", ErrInvalidDate, s)
	}
	return t, nil
}

// UnixSeconds converts a calendar date to seconds since the Unix epoch.
func UnixSeconds(s string) (int64, error) {
	t, err := ParseDate(s)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// ParseDateRange parses both ends of a window and checks their order.
func ParseDateRange(start, end string) (DateRange, error) {
	from, err := ParseDate(start)
	if err != nil {
		return DateRange{}, fmt.Errorf("start: %w", err)
	}
	to, err := ParseDate(end)
	if err != nil {
		return DateRange{}, fmt.Errorf("end: %w", err)
	}
	if to.Before(from) {
		return DateRange{}, fmt.Errorf("%w: %s > %s", ErrInvalidRange, start, end)
	}
	return DateRange{Start: from, End: to}, nil
}

// RFC3339Instant formats t as a second-precision UTC instant, e.g. 2022-06-01T00:00:00Z.
func RFC3339Instant(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// Interval renders the range as an RFC3339 "start/end" interval string.
func (r DateRange) Interval() string {
	return RFC3339Instant(r.Start) + "/" + RFC3339Instant(r.End)
}

// RFC3339Interval converts two calendar dates into a "start/end" interval.
func RFC3339Interval(start, end string) (string, error) {
	r, err := ParseDateRange(start, end)
	if err != nil {
		return "", err
	}
	return r.Interval(), nil
}
