// utils/dates.go
package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of a calendar day.
const DateLayout = "2006-01-02"

// Day truncates t to its calendar day in t's own location and returns it as
// 00:00 UTC. All calendar dates in the engine use this representation so they
// compare and serialize the same way regardless of the participant's timezone.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LocalDay is the calendar day of instant t as seen in loc.
func LocalDay(t time.Time, loc *time.Location) time.Time {
	return Day(t.In(loc))
}

// ParseDate parses a YYYY-MM-DD string into a calendar day.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// WeekStart returns the Monday of the ISO week containing d. Weeks run
// Monday through Sunday, so a Sunday maps to the Monday six days earlier.
func WeekStart(d time.Time) time.Time {
	d = Day(d)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// ParseClock parses an "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q (use HH:MM)", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// ValidClock reports whether s is a well-formed "HH:MM".
func ValidClock(s string) bool {
	_, _, err := ParseClock(s)
	return err == nil
}

// CutoffInstant is the instant at which judgment for date fires: date at the
// cutoff time of day, in loc. An unparsable cutoff falls back to midnight of
// the following day.
func CutoffInstant(date time.Time, cutoff string, loc *time.Location) time.Time {
	y, m, d := date.Date()
	hour, minute, err := ParseClock(cutoff)
	if err != nil {
		return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	}
	return time.Date(y, m, d, hour, minute, 0, 0, loc)
}

// BucketDate returns the calendar day an event at instant t is judged on.
// Events at or after the cutoff belong to the next day's bucket.
func BucketDate(t time.Time, cutoff string, loc *time.Location) time.Time {
	day := LocalDay(t, loc)
	if !t.Before(CutoffInstant(day, cutoff, loc)) {
		return AddDays(day, 1)
	}
	return day
}

// BucketWindow returns the half-open instant window [from, to) whose events
// count toward date.
func BucketWindow(date time.Time, cutoff string, loc *time.Location) (from, to time.Time) {
	return CutoffInstant(AddDays(date, -1), cutoff, loc), CutoffInstant(date, cutoff, loc)
}

// LatestDueDate is the most recent calendar day whose cutoff is at or before now.
func LatestDueDate(now time.Time, cutoff string, loc *time.Location) time.Time {
	today := LocalDay(now, loc)
	if !now.Before(CutoffInstant(today, cutoff, loc)) {
		return today
	}
	return AddDays(today, -1)
}

// LoadLocation resolves an IANA zone name, treating "" as UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
