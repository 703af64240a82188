package layout

import (
	"time"

	"github.com/agis/gridcal/internal/contract"
)

// CurrentTimeIndicator positions the "now" line for the day or week view
// containing date. Position is a percentage of the visible hour range. The
// line is visible only while now falls inside that range on a shown day; in
// week view DayIndex names the column for today, or -1.
func CurrentTimeIndicator(view View, date, now time.Time, cfg Config) contract.TimeIndicator {
	cfg = cfg.Normalize()
	local := now.In(date.Location())
	hour := FractionalHour(local, StartOfDay(local))
	span := float64(cfg.EndHour - cfg.StartHour)

	ind := contract.TimeIndicator{
		Position: Clamp((hour-float64(cfg.StartHour))/span*100, 0, 100),
		DayIndex: -1,
		Now:      now,
	}
	inRange := hour >= float64(cfg.StartHour) && hour < float64(cfg.EndHour)

	switch view {
	case ViewWeek:
		for i, day := range WeekDays(date, cfg.WeekStart) {
			if SameDay(day, local) {
				ind.DayIndex = i
				ind.Visible = inRange
				break
			}
		}
	default:
		if SameDay(date, local) {
			ind.DayIndex = 0
			ind.Visible = inRange
		}
	}
	return ind
}
