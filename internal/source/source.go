// Package source loads concrete calendar events from on-disk stores.
//
// Every store resolves its own representation (date-only strings, unix
// timestamps, recurrence rules) into plain contract.Event instances, so the
// layout engine only ever sees concrete start and end instants.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agis/gridcal/internal/contract"
)

var ErrUnknownFormat = errors.New("unknown source format")

type Filter struct {
	From  time.Time
	To    time.Time
	Limit int
	Query string
}

// Listing is the result of a read. Skipped holds one message per record
// that could not be resolved into an event.
type Listing struct {
	Events  []contract.Event
	Skipped []string
}

type Source interface {
	Name() string
	Path() string
	Doctor(context.Context) ([]contract.DoctorCheck, error)
	ListEvents(context.Context, Filter) (Listing, error)
}

type Options struct {
	// Location resolves floating and date-only timestamps. Defaults to
	// time.Local.
	Location *time.Location
	// Strict turns skipped records into errors.
	Strict bool
	Logger *slog.Logger
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Open picks a store from target, which is either a path whose extension
// names the format or "<format>:<path>".
func Open(target string, opts Options) (Source, error) {
	format, path := splitTarget(target)
	if path == "" {
		return nil, fmt.Errorf("empty source path")
	}
	switch format {
	case "json":
		return NewFileSource(path, FormatJSON, opts), nil
	case "yaml", "yml":
		return NewFileSource(path, FormatYAML, opts), nil
	case "ics", "ical":
		return NewICSSource(path, opts), nil
	case "sqlite", "db", "sqlitedb", "sqlite3":
		return NewSQLiteSource(path, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q (use .json, .yaml, .ics or .db)", ErrUnknownFormat, target)
	}
}

func splitTarget(target string) (format, path string) {
	s := strings.TrimSpace(target)
	if i := strings.Index(s, ":"); i > 1 {
		prefix := strings.ToLower(s[:i])
		switch prefix {
		case "json", "yaml", "yml", "ics", "ical", "sqlite", "sqlite3", "db":
			return prefix, s[i+1:]
		}
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(s)), "."), s
}

// applyFilter keeps events touching [f.From, f.To), matching f.Query, in
// start order, truncated to f.Limit.
func applyFilter(events []contract.Event, f Filter) []contract.Event {
	out := make([]contract.Event, 0, len(events))
	needle := strings.ToLower(strings.TrimSpace(f.Query))
	for _, e := range events {
		if !inRange(e, f.From, f.To) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(e.Title), needle) &&
			!strings.Contains(strings.ToLower(e.Location), needle) &&
			!strings.Contains(strings.ToLower(e.Description), needle) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func inRange(e contract.Event, from, to time.Time) bool {
	end := e.End
	if end.Before(e.Start) {
		end = e.Start
	}
	if !to.IsZero() && !e.Start.Before(to) {
		return false
	}
	if from.IsZero() {
		return true
	}
	if end.Equal(e.Start) {
		return !e.Start.Before(from)
	}
	return end.After(from)
}
