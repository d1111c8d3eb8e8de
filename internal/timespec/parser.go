package timespec

import (
	"fmt"
	"strings"
	"time"
)

// ParseAt parses a point-in-time specification on the scope date (YYYY-MM-DD) in loc.
// Supports three formats:
//   - Clock time on the scope date: "10:47", "10:47:30"
//   - Go duration offset from now's clock time on the scope date: "15m", "-15m", "1h30m"
//   - RFC3339 timestamps, taken as is: "2025-10-29T13:00:00Z"
//
// An empty spec is now's clock time on the scope date. An empty date means now's date.
func ParseAt(spec string, now time.Time, date string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)

	day := now
	if date != "" {
		d, err := time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid scope date: %s", date)
		}
		day = d
	}
	base := time.Date(day.Year(), day.Month(), day.Day(),
		now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), loc)

	if spec == "" {
		return base, nil
	}

	// Try parsing as RFC3339 first
	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.In(loc), nil
	}

	for _, layout := range []string{"15:04:05", "15:04"} {
		if clock, err := time.Parse(layout, spec); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(),
				clock.Hour(), clock.Minute(), clock.Second(), 0, loc), nil
		}
	}

	// Try parsing as Go duration, relative to now on the scope date
	if d, err := time.ParseDuration(spec); err == nil {
		return base.Add(d), nil
	}

	return time.Time{}, fmt.Errorf("invalid time specification: %s (use a clock time like '10:47', a duration like '15m' or RFC3339 like '2025-10-29T13:00:00Z')", spec)
}

// ParseDate parses a date identifier. Accepts "YYYY-MM-DD", "today", "yesterday" and "tomorrow";
// an empty spec means today. Relative forms use now's calendar date in loc.
func ParseDate(spec string, now time.Time, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc)

	switch strings.ToLower(strings.TrimSpace(spec)) {
	case "", "today":
		return today.Format("2006-01-02"), nil
	case "yesterday":
		return today.AddDate(0, 0, -1).Format("2006-01-02"), nil
	case "tomorrow":
		return today.AddDate(0, 0, 1).Format("2006-01-02"), nil
	}

	t, err := time.ParseInLocation("2006-01-02", spec, loc)
	if err != nil {
		return "", fmt.Errorf("invalid date: %s (use YYYY-MM-DD, today, yesterday or tomorrow)", spec)
	}
	return t.Format("2006-01-02"), nil
}
