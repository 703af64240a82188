package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agis/gridcal/internal/contract"
	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

const (
	// maxOccurrences caps the instances produced for one recurring series.
	maxOccurrences = 5000
	// openRangeYears bounds recurrence resolution when the filter has no
	// upper limit.
	openRangeYears = 1
)

const (
	propColor        = ical.ComponentProperty("COLOR")
	propRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")
)

// ICSSource reads an iCalendar file. Recurring series are resolved into
// concrete instances inside the requested range.
type ICSSource struct {
	path string
	opts Options
}

func NewICSSource(path string, opts Options) *ICSSource {
	return &ICSSource{path: path, opts: opts}
}

func (s *ICSSource) Name() string { return filepath.Base(s.path) }
func (s *ICSSource) Path() string { return s.path }

type icsEvent struct {
	uid         string
	summary     string
	description string
	location    string
	color       string
	start       time.Time
	end         time.Time
	allDay      bool
	rrule       string
	exdates     []time.Time
	recurrence  *time.Time
}

func (s *ICSSource) Doctor(ctx context.Context) ([]contract.DoctorCheck, error) {
	checks := []contract.DoctorCheck{}
	if _, err := os.Stat(s.path); err != nil {
		checks = append(checks, contract.DoctorCheck{Name: "source_file", Status: "fail", Message: err.Error()})
		return checks, err
	}
	checks = append(checks, contract.DoctorCheck{Name: "source_file", Status: "ok", Message: s.path})
	parsed, skipped, err := s.parse(ctx)
	if err != nil {
		checks = append(checks, contract.DoctorCheck{Name: "source_parse", Status: "fail", Message: err.Error()})
		return checks, err
	}
	checks = append(checks, contract.DoctorCheck{Name: "source_parse", Status: "ok", Message: fmt.Sprintf("%d VEVENTs", len(parsed))})
	if len(skipped) > 0 {
		checks = append(checks, contract.DoctorCheck{Name: "source_records", Status: "warn", Message: fmt.Sprintf("%d VEVENTs cannot be resolved", len(skipped))})
	} else {
		checks = append(checks, contract.DoctorCheck{Name: "source_records", Status: "ok", Message: "all VEVENTs resolve"})
	}
	return checks, nil
}

func (s *ICSSource) ListEvents(ctx context.Context, f Filter) (Listing, error) {
	started := time.Now()
	parsed, skipped, err := s.parse(ctx)
	if err != nil {
		return Listing{}, err
	}

	overrides := map[string]icsEvent{}
	var bases []icsEvent
	for _, ev := range parsed {
		if ev.recurrence != nil {
			overrides[overrideKey(ev.uid, *ev.recurrence)] = ev
			continue
		}
		bases = append(bases, ev)
	}

	events := make([]contract.Event, 0, len(bases))
	for _, ev := range bases {
		if ev.rrule == "" {
			events = append(events, s.instance(ev, ev.uid))
			continue
		}
		occ, err := s.expand(ev, overrides, f)
		if err != nil {
			msg := fmt.Sprintf("%s: VEVENT %s: %v", s.Name(), ev.uid, err)
			if s.opts.Strict {
				return Listing{}, errors.New(msg)
			}
			skipped = append(skipped, msg)
			continue
		}
		events = append(events, occ...)
	}

	out := applyFilter(events, f)
	s.opts.logger().Debug("source read",
		"source", s.path,
		"format", "ics",
		"vevents", len(parsed),
		"instances", len(events),
		"skipped", len(skipped),
		"matched", len(out),
		"elapsed", time.Since(started),
	)
	return Listing{Events: out, Skipped: skipped}, nil
}

func (s *ICSSource) parse(ctx context.Context) ([]icsEvent, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, nil, err
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("parse ics: %w", err)
	}
	var out []icsEvent
	var skipped []string
	for i, ve := range cal.Events() {
		ev, err := s.parseVEvent(ve, i)
		if err != nil {
			msg := fmt.Sprintf("%s: VEVENT %d: %v", s.Name(), i, err)
			if s.opts.Strict {
				return nil, nil, errors.New(msg)
			}
			skipped = append(skipped, msg)
			continue
		}
		out = append(out, ev)
	}
	return out, skipped, nil
}

func (s *ICSSource) parseVEvent(ve *ical.VEvent, index int) (icsEvent, error) {
	loc := s.opts.location()
	var ev icsEvent
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		ev.uid = strings.TrimSpace(p.Value)
	}
	ev.summary = propValue(ve, ical.ComponentPropertySummary)
	ev.description = propValue(ve, ical.ComponentPropertyDescription)
	ev.location = propValue(ve, ical.ComponentPropertyLocation)
	ev.color = propValue(ve, propColor)
	ev.rrule = propValue(ve, ical.ComponentPropertyRrule)

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, errors.New("missing DTSTART")
	}
	ev.allDay = isDateValue(dtStart)
	if ev.allDay {
		start, err := parseICSTime(dtStart.Value, "", loc)
		if err != nil {
			return ev, fmt.Errorf("DTSTART: %w", err)
		}
		ev.start = start
		ev.end = start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseICSTime(dtEnd.Value, "", loc); err == nil && end.After(start) {
				ev.end = end
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return ev, fmt.Errorf("DTSTART: %w", err)
		}
		ev.start = floating(start, dtStart, loc)
		ev.end = ev.start
		if end, err := ve.GetEndAt(); err == nil {
			ev.end = floating(end, ve.GetProperty(ical.ComponentPropertyDtEnd), loc)
		}
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, paramValue(p, "TZID"), loc); err == nil {
				ev.exdates = append(ev.exdates, t)
			}
		}
	}
	if p := ve.GetProperty(propRecurrenceID); p != nil {
		t, err := parseICSTime(p.Value, paramValue(p, "TZID"), loc)
		if err != nil {
			return ev, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		ev.recurrence = &t
	}
	if ev.uid == "" {
		ev.uid = stableID(contract.Event{Source: s.Name(), Title: ev.summary, Start: ev.start, End: ev.end}, index)
	}
	return ev, nil
}

// expand resolves a recurring series into instances inside the filter
// range, replacing instances that have a RECURRENCE-ID override.
func (s *ICSSource) expand(ev icsEvent, overrides map[string]icsEvent, f Filter) ([]contract.Event, error) {
	r, err := rrule.StrToRRule(ev.rrule)
	if err != nil {
		return nil, fmt.Errorf("RRULE %q: %w", ev.rrule, err)
	}
	r.DTStart(ev.start)
	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exdates {
		set.ExDate(ex.In(ev.start.Location()))
	}

	duration := ev.end.Sub(ev.start)
	from, to := f.From, f.To
	if from.IsZero() {
		from = ev.start
	}
	if to.IsZero() {
		to = from.AddDate(openRangeYears, 0, 0)
	}
	// Widen the lower bound so instances already in progress at from are kept.
	from = from.Add(-duration)

	starts := set.Between(from.In(ev.start.Location()), to.In(ev.start.Location()), true)
	if len(starts) > maxOccurrences {
		s.opts.logger().Warn("recurrence truncated", "uid", ev.uid, "cap", maxOccurrences)
		starts = starts[:maxOccurrences]
	}

	out := make([]contract.Event, 0, len(starts))
	for _, occStart := range starts {
		id := fmt.Sprintf("%s@%d", ev.uid, occStart.Unix())
		if o, ok := overrides[overrideKey(ev.uid, occStart)]; ok {
			out = append(out, s.instance(o, id))
			continue
		}
		inst := ev
		inst.start = occStart
		if ev.allDay {
			inst.end = occStart.AddDate(0, 0, max(int(duration.Hours()/24+0.5), 1))
		} else {
			inst.end = occStart.Add(duration)
		}
		out = append(out, s.instance(inst, id))
	}
	return out, nil
}

func (s *ICSSource) instance(ev icsEvent, id string) contract.Event {
	return contract.Event{
		ID:          id,
		Title:       ev.summary,
		Start:       ev.start,
		End:         ev.end,
		AllDay:      ev.allDay,
		Description: ev.description,
		Location:    ev.location,
		Color:       ev.color,
		Source:      s.Name(),
	}
}

func overrideKey(uid string, t time.Time) string {
	return fmt.Sprintf("%s@%d", uid, t.Unix())
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

func paramValue(p *ical.IANAProperty, name string) string {
	if p == nil || p.ICalParameters == nil {
		return ""
	}
	if vs, ok := p.ICalParameters[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func isDateValue(p *ical.IANAProperty) bool {
	if strings.EqualFold(paramValue(p, "VALUE"), "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// floating moves a DTSTART/DTEND without TZID or UTC suffix into loc.
func floating(t time.Time, p *ical.IANAProperty, loc *time.Location) time.Time {
	if p == nil || paramValue(p, "TZID") != "" || strings.HasSuffix(p.Value, "Z") {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

func parseICSTime(v, tzid string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
