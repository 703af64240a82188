package source

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agis/gridcal/internal/contract"
	"github.com/agis/gridcal/internal/timeparse"
	"github.com/google/uuid"
)

// idNamespace seeds ids for records stored without one, so the same record
// always gets the same id.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/agis/gridcal/events"))

// record is the stored shape shared by the JSON, YAML and SQLite stores.
type record struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Start       string `json:"start" yaml:"start"`
	End         string `json:"end" yaml:"end"`
	AllDay      *bool  `json:"all_day" yaml:"all_day"`
	Description string `json:"description" yaml:"description"`
	Location    string `json:"location" yaml:"location"`
	Color       string `json:"color" yaml:"color"`
	ProjectID   string `json:"project_id" yaml:"project_id"`
	TaskID      string `json:"task_id" yaml:"task_id"`
	Source      string `json:"source" yaml:"source"`
}

// toEvent resolves a record into a concrete event.
//
// A date-only start is local midnight. A date-only end covers that whole
// day, so it resolves to the following midnight. A missing end is one day
// after a date-only start and equal to a timed start. Records with date-only
// bounds and no explicit flag are all-day.
// toEvent resolves r, the index-th record of its source.
func (r record) toEvent(loc *time.Location, sourceName string, index int) (contract.Event, error) {
	if strings.TrimSpace(r.Start) == "" {
		return contract.Event{}, fmt.Errorf("missing start")
	}
	start, startDateOnly, err := timeparse.ParseAbsolute(r.Start, loc)
	if err != nil {
		return contract.Event{}, fmt.Errorf("start: %w", err)
	}

	end := start
	endDateOnly := true
	switch {
	case strings.TrimSpace(r.End) != "":
		end, endDateOnly, err = timeparse.ParseAbsolute(r.End, loc)
		if err != nil {
			return contract.Event{}, fmt.Errorf("end: %w", err)
		}
		if endDateOnly {
			end = end.AddDate(0, 0, 1)
		}
	case startDateOnly:
		end = start.AddDate(0, 0, 1)
	}

	allDay := startDateOnly && endDateOnly
	if r.AllDay != nil {
		allDay = *r.AllDay
	}

	e := contract.Event{
		ID:          strings.TrimSpace(r.ID),
		Title:       r.Title,
		Start:       start,
		End:         end,
		AllDay:      allDay,
		Description: r.Description,
		Location:    r.Location,
		Color:       r.Color,
		ProjectID:   r.ProjectID,
		TaskID:      r.TaskID,
		Source:      firstNonEmpty(r.Source, sourceName),
	}
	if e.ID == "" {
		e.ID = stableID(e, index)
	}
	return e, nil
}

// stableID derives a repeatable id for an id-less event. The position in the
// source keeps otherwise identical records apart.
func stableID(e contract.Event, index int) string {
	key := strings.Join([]string{
		e.Source,
		strconv.Itoa(index),
		e.Title,
		e.Start.UTC().Format(time.RFC3339Nano),
		e.End.UTC().Format(time.RFC3339Nano),
	}, "\x1f")
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// resolveRecords converts records, collecting per-record failures unless
// strict is set.
func resolveRecords(records []record, loc *time.Location, sourceName string, strict bool) ([]contract.Event, []string, error) {
	events := make([]contract.Event, 0, len(records))
	var skipped []string
	for i, r := range records {
		e, err := r.toEvent(loc, sourceName, i)
		if err != nil {
			msg := fmt.Sprintf("%s: record %d (%q): %v", sourceName, i, r.Title, err)
			if strict {
				return nil, nil, errors.New(msg)
			}
			skipped = append(skipped, msg)
			continue
		}
		events = append(events, e)
	}
	return events, skipped, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
