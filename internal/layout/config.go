package layout

import (
	"fmt"
	"strings"
	"time"

	"github.com/agis/gridcal/internal/contract"
)

type View string

const (
	ViewDay  View = "day"
	ViewWeek View = "week"
)

// MultiDayMode decides where a timed (not all-day) event spanning several
// calendar days is drawn.
type MultiDayMode string

const (
	// MultiDayAuto uses the header lane in day view and per-day clipping in
	// week view.
	MultiDayAuto MultiDayMode = "auto"
	MultiDayLane MultiDayMode = "lane"
	MultiDayClip MultiDayMode = "clip"
)

const (
	DefaultStartHour = 0
	DefaultEndHour   = 24
	DefaultRowHeight = 64
	// DefaultMinHeight draws a zero-length event as a quarter hour.
	DefaultMinHeight = DefaultRowHeight / 4
)

type Config struct {
	StartHour int
	EndHour   int
	// RowHeight is the vertical size of one hour in the caller's unit.
	RowHeight float64
	// MinHeight floors the drawn height of very short events. Packing treats
	// such events as lasting the time the floor covers, so a drawn box never
	// shares a column with a box it overlaps.
	MinHeight float64
	WeekStart time.Weekday
	MultiDay  MultiDayMode
}

func DefaultConfig() Config {
	return Config{
		StartHour: DefaultStartHour,
		EndHour:   DefaultEndHour,
		RowHeight: DefaultRowHeight,
		MinHeight: DefaultMinHeight,
		WeekStart: time.Sunday,
		MultiDay:  MultiDayAuto,
	}
}

func (c Config) Validate() error {
	if c.StartHour < 0 || c.StartHour > 23 {
		return fmt.Errorf("start hour must be within 0..23, got %d", c.StartHour)
	}
	if c.EndHour < 1 || c.EndHour > 24 {
		return fmt.Errorf("end hour must be within 1..24, got %d", c.EndHour)
	}
	if c.StartHour >= c.EndHour {
		return fmt.Errorf("start hour %d must be before end hour %d", c.StartHour, c.EndHour)
	}
	if c.RowHeight <= 0 {
		return fmt.Errorf("row height must be positive, got %v", c.RowHeight)
	}
	if c.MinHeight < 0 {
		return fmt.Errorf("min height must not be negative, got %v", c.MinHeight)
	}
	if c.WeekStart < time.Sunday || c.WeekStart > time.Saturday {
		return fmt.Errorf("invalid week start: %d", c.WeekStart)
	}
	if _, err := ParseMultiDayMode(string(c.MultiDay)); err != nil {
		return err
	}
	return nil
}

// Normalize replaces invalid fields with defaults so layout never fails.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.StartHour < 0 || c.StartHour > 23 || c.EndHour < 1 || c.EndHour > 24 || c.StartHour >= c.EndHour {
		c.StartHour, c.EndHour = def.StartHour, def.EndHour
	}
	if c.RowHeight <= 0 {
		c.RowHeight = def.RowHeight
	}
	if c.MinHeight < 0 {
		c.MinHeight = 0
	}
	if c.WeekStart < time.Sunday || c.WeekStart > time.Saturday {
		c.WeekStart = def.WeekStart
	}
	if mode, err := ParseMultiDayMode(string(c.MultiDay)); err == nil {
		c.MultiDay = mode
	} else {
		c.MultiDay = def.MultiDay
	}
	return c
}

func ParseMultiDayMode(v string) (MultiDayMode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "auto":
		return MultiDayAuto, nil
	case "lane":
		return MultiDayLane, nil
	case "clip":
		return MultiDayClip, nil
	default:
		return MultiDayAuto, fmt.Errorf("invalid multi-day mode: %s", v)
	}
}

func ParseWeekStart(v string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	default:
		return time.Sunday, fmt.Errorf("invalid week start: %s", v)
	}
}

// inHeaderLane reports whether e belongs in the header lane rather than the
// timed grid for the given view.
func (c Config) inHeaderLane(e contract.Event, view View) bool {
	if e.AllDay {
		return true
	}
	mode := c.MultiDay
	if mode == MultiDayAuto {
		mode = MultiDayLane
		if view == ViewWeek {
			mode = MultiDayClip
		}
	}
	return mode == MultiDayLane && IsMultiDayEvent(e)
}
