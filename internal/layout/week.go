package layout

import (
	"time"

	"github.com/agis/gridcal/internal/contract"
)

const DaysPerWeek = 7

// WeekStart returns midnight of the first day of the week containing anchor.
func WeekStart(anchor time.Time, first time.Weekday) time.Time {
	day := StartOfDay(anchor)
	delta := (int(day.Weekday()) - int(first) + DaysPerWeek) % DaysPerWeek
	return day.AddDate(0, 0, -delta)
}

// WeekDays returns the midnights of the seven days of the week containing
// anchor.
func WeekDays(anchor time.Time, first time.Weekday) []time.Time {
	start := WeekStart(anchor, first)
	days := make([]time.Time, DaysPerWeek)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return days
}

// LayoutWeek lays out each day of the week containing anchor independently
// and collects header-lane events into bars spanning the week grid.
func LayoutWeek(anchor time.Time, events []contract.Event, cfg Config) contract.WeekLayout {
	cfg = cfg.Normalize()
	days := WeekDays(anchor, cfg.WeekStart)
	out := contract.WeekLayout{
		Start:  days[0],
		End:    NextDay(days[DaysPerWeek-1]),
		Days:   make([]contract.DayColumn, 0, DaysPerWeek),
		AllDay: []contract.SpanningBar{},
	}
	for i, day := range days {
		dl := layoutDay(day, events, cfg, ViewWeek)
		out.Days = append(out.Days, contract.DayColumn{
			Date:    dl.Date,
			Index:   i,
			Timed:   dl.Timed,
			Columns: dl.Columns,
		})
	}

	lane := make([]contract.Event, 0)
	for _, e := range events {
		if cfg.inHeaderLane(e, ViewWeek) && touches(e, out.Start, out.End) {
			lane = append(lane, e)
		}
	}
	sortLane(lane)
	for _, e := range lane {
		if bar, ok := spanningBar(e, days, out.Start, out.End); ok {
			out.AllDay = append(out.AllDay, bar)
		}
	}
	return out
}

func spanningBar(e contract.Event, days []time.Time, weekStart, weekEnd time.Time) (contract.SpanningBar, bool) {
	iv := EventInterval(e)
	last := lastInstant(iv)
	bar := contract.SpanningBar{
		Event:           e,
		StartIndex:      -1,
		EndIndex:        -1,
		ContinuesBefore: iv.Start.Before(weekStart),
		ContinuesAfter:  !last.Before(weekEnd),
	}
	for i, day := range days {
		if !touches(e, day, NextDay(day)) {
			continue
		}
		if bar.StartIndex < 0 {
			bar.StartIndex = i
		}
		bar.EndIndex = i
		bar.Days = append(bar.Days, contract.BarDay{
			Index:     i,
			Date:      day,
			ShowTitle: len(bar.Days) == 0,
			IsStart:   SameDay(day, iv.Start),
			IsEnd:     SameDay(day, last),
		})
	}
	return bar, bar.StartIndex >= 0
}
