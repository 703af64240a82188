package layout

import (
	"sort"
	"time"

	"github.com/agis/gridcal/internal/contract"
)

const UpcomingDays = 7

// Upcoming returns events starting after ref and no later than ref plus the
// given number of days, ordered by start. Events starting exactly at ref are
// current, not upcoming.
func Upcoming(events []contract.Event, ref time.Time, days int) []contract.Event {
	limit := ref.AddDate(0, 0, days)
	out := make([]contract.Event, 0)
	for _, e := range events {
		if e.Start.After(ref) && !e.Start.After(limit) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func UpcomingNext7Days(events []contract.Event, ref time.Time) []contract.Event {
	return Upcoming(events, ref, UpcomingDays)
}
