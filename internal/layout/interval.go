// Package layout computes grid geometry for calendar day and week views.
//
// Every function here is pure: identical inputs produce identical outputs,
// nothing reads the system clock, and no input slice is mutated.
package layout

import (
	"time"

	"github.com/agis/gridcal/internal/contract"
)

// Interval is a half-open [Start, End) span of time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// IntervalsOverlap reports whether a and b share any instant. Intervals that
// only touch (a.End == b.Start) do not overlap.
func IntervalsOverlap(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// EventInterval returns the span an event occupies. An end before the start
// collapses to a zero-length interval at the start.
func EventInterval(e contract.Event) Interval {
	end := e.End
	if end.Before(e.Start) {
		end = e.Start
	}
	return Interval{Start: e.Start, End: end}
}

// IsMultiDayEvent reports whether the event starts and ends on different
// calendar days of the start's location. An end exactly at the next
// midnight counts as the next day.
func IsMultiDayEvent(e contract.Event) bool {
	iv := EventInterval(e)
	return !SameDay(iv.Start, iv.End)
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func NextDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}

func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

// FractionalHour expresses t as hours past dayStart on the wall clock
// (h + m/60 + s/3600). Instants at or after the following midnight map to 24.
func FractionalHour(t, dayStart time.Time) float64 {
	if !t.Before(NextDay(dayStart)) {
		return 24
	}
	if t.Before(dayStart) {
		return 0
	}
	local := t.In(dayStart.Location())
	return float64(local.Hour()) +
		float64(local.Minute())/60 +
		float64(local.Second())/3600 +
		float64(local.Nanosecond())/3.6e12
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClipInterval bounds iv to the window [from, to).
func ClipInterval(iv Interval, from, to time.Time) Interval {
	out := iv
	if out.Start.Before(from) {
		out.Start = from
	}
	if out.End.After(to) {
		out.End = to
	}
	if out.End.Before(out.Start) {
		out.End = out.Start
	}
	return out
}

// touches reports whether the event shows on the window [from, to).
// Zero-length events count when their instant falls inside the window.
func touches(e contract.Event, from, to time.Time) bool {
	iv := EventInterval(e)
	if iv.Start.Equal(iv.End) {
		return !iv.Start.Before(from) && iv.Start.Before(to)
	}
	return IntervalsOverlap(iv, Interval{Start: from, End: to})
}

func lastInstant(iv Interval) time.Time {
	if iv.End.After(iv.Start) {
		return iv.End.Add(-time.Nanosecond)
	}
	return iv.Start
}
