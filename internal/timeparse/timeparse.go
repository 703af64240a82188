package timeparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var absoluteLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

const dateLayout = "2006-01-02"

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseDateTime resolves a user-facing selector relative to now. Day
// selectors (today, tomorrow, yesterday, +Nd, -Nw, weekday names) resolve to
// local midnight; "now" keeps the clock time.
func ParseDateTime(input string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(strings.ToLower(input))
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	today := midnight(now.In(loc))

	switch s {
	case "now":
		return now.In(loc), nil
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}
	if wd, ok := weekdays[s]; ok {
		delta := (int(wd) - int(today.Weekday()) + 7) % 7
		return today.AddDate(0, 0, delta), nil
	}

	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		sign := 1
		if strings.HasPrefix(s, "-") {
			sign = -1
		}
		raw := s[1:]
		if len(raw) < 2 {
			return time.Time{}, fmt.Errorf("invalid relative offset: %s", input)
		}
		unit := raw[len(raw)-1:]
		n, err := strconv.Atoi(raw[:len(raw)-1])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid relative offset: %s", input)
		}
		switch unit {
		case "d":
			return today.AddDate(0, 0, sign*n), nil
		case "w":
			return today.AddDate(0, 0, sign*n*7), nil
		case "h":
			return now.In(loc).Add(time.Duration(sign*n) * time.Hour), nil
		default:
			return time.Time{}, fmt.Errorf("invalid relative unit in %s (use d, w or h)", input)
		}
	}

	ts, _, err := ParseAbsolute(input, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported datetime format: %s", input)
	}
	return ts, nil
}

// ParseAbsolute parses a stored timestamp. dateOnly is true for YYYY-MM-DD
// values, which resolve to midnight in loc.
func ParseAbsolute(input string, loc *time.Location) (ts time.Time, dateOnly bool, err error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, false, fmt.Errorf("empty time")
	}
	for _, layout := range absoluteLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, false, nil
		}
	}
	if ts, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return ts, true, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).In(loc), false, nil
	}
	return time.Time{}, false, fmt.Errorf("unsupported datetime format: %s", input)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
