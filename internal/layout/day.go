package layout

import (
	"math"
	"sort"
	"time"

	"github.com/agis/gridcal/internal/contract"
)

const baseZIndex = 10

type placement struct {
	event  contract.Event
	span   Interval // unclipped, used for ordering
	clip   Interval
	pack   Interval // clip with its end floored to the drawn height
	column int
}

// LayoutDay places the events touching day on a single day grid. All-day
// events (and, in the default mode, multi-day timed events) are returned
// separately for the header lane and never take part in column packing.
func LayoutDay(day time.Time, events []contract.Event, cfg Config) contract.DayLayout {
	return layoutDay(day, events, cfg.Normalize(), ViewDay)
}

func layoutDay(day time.Time, events []contract.Event, cfg Config, view View) contract.DayLayout {
	dayStart := StartOfDay(day)
	dayEnd := NextDay(dayStart)

	out := contract.DayLayout{
		Date:   dayStart,
		Timed:  []contract.PositionedEvent{},
		AllDay: []contract.Event{},
	}
	items := make([]placement, 0, len(events))
	for _, e := range events {
		if !touches(e, dayStart, dayEnd) {
			continue
		}
		if cfg.inHeaderLane(e, view) {
			out.AllDay = append(out.AllDay, e)
			continue
		}
		items = append(items, placement{event: e, span: EventInterval(e)})
	}
	sortLane(out.AllDay)
	sortPlacements(items)
	floor := minDuration(cfg)
	for i := range items {
		items[i].clip = ClipInterval(items[i].span, dayStart, dayEnd)
		items[i].pack = items[i].clip
		if d := items[i].clip.End.Sub(items[i].clip.Start); d < floor {
			items[i].pack.End = items[i].clip.Start.Add(floor)
		}
	}

	out.Columns = assignColumns(items)
	left, width := columnGeometry(out.Columns)
	for _, it := range items {
		startH := FractionalHour(it.clip.Start, dayStart)
		endH := FractionalHour(it.clip.End, dayStart)
		height := (endH - startH) * cfg.RowHeight
		if height < cfg.MinHeight {
			height = cfg.MinHeight
		}
		out.Timed = append(out.Timed, contract.PositionedEvent{
			Event:  it.event,
			Start:  it.clip.Start,
			End:    it.clip.End,
			Top:    (startH - float64(cfg.StartHour)) * cfg.RowHeight,
			Height: height,
			Left:   left(it.column),
			Width:  width,
			ZIndex: baseZIndex + it.column,
			Column: it.column,
		})
	}
	return out
}

// sortPlacements orders by start, then longer duration first, then id.
func sortPlacements(items []placement) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].span, items[j].span
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		da, db := a.End.Sub(a.Start), b.End.Sub(b.Start)
		if da != db {
			return da > db
		}
		return items[i].event.ID < items[j].event.ID
	})
}

func sortLane(events []contract.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := EventInterval(events[i]), EventInterval(events[j])
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		da, db := a.End.Sub(a.Start), b.End.Sub(b.Start)
		if da != db {
			return da > db
		}
		return events[i].ID < events[j].ID
	})
}

// assignColumns greedily puts each item in the first column none of whose
// members overlap its packing interval, opening a new column when every column conflicts.
// Items must already be sorted. It returns the number of columns opened.
func assignColumns(items []placement) int {
	var columns [][]Interval
	for i := range items {
		col := -1
		for c, members := range columns {
			if !overlapsAny(members, items[i].pack) {
				col = c
				break
			}
		}
		if col < 0 {
			columns = append(columns, nil)
			col = len(columns) - 1
		}
		columns[col] = append(columns[col], items[i].pack)
		items[i].column = col
	}
	return len(columns)
}

func overlapsAny(members []Interval, iv Interval) bool {
	for _, m := range members {
		if IntervalsOverlap(m, iv) {
			return true
		}
	}
	return false
}

// minDuration is the span of time MinHeight covers on the grid.
func minDuration(cfg Config) time.Duration {
	if cfg.MinHeight <= 0 || cfg.RowHeight <= 0 {
		return 0
	}
	return time.Duration(cfg.MinHeight / cfg.RowHeight * float64(time.Hour))
}

// columnGeometry splits the unit width into n columns separated by a gap
// that shrinks as n grows. left(col)+width never exceeds 1.
func columnGeometry(n int) (func(col int) float64, float64) {
	c := float64(max(n, 1))
	gap := min(0.02, 0.4/c)
	width := (1 - gap*(c-1)) / c
	return func(col int) float64 {
		left := min(float64(col)*(width+gap), 1-width)
		for left > 0 && left+width > 1 {
			left = math.Nextafter(left, 0)
		}
		return left
	}, width
}
