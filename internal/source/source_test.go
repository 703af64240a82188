package source

import (
	"errors"
	"testing"
	"time"

	"github.com/agis/gridcal/internal/contract"
)

func TestOpenPicksStoreByExtensionOrPrefix(t *testing.T) {
	cases := []struct {
		target string
		want string
	}{
		{"events.json", "*source.FileSource"},
		{"events.yaml", "*source.FileSource"},
		{"cal/events.yml", "*source.FileSource"},
		{"work.ics", "*source.ICSSource"},
		{"events.db", "*source.SQLiteSource"},
		{"sqlite:/tmp/data.bin", "*source.SQLiteSource"},
		{"json:/tmp/export.txt", "*source.FileSource"},
	}
	for _, tc := range cases {
		src, err := Open(tc.target, Options{})
		if err != nil {
			t.Fatalf("Open(%q) error: %v", tc.target, err)
		}
		if got := typeName(src); got != tc.want {
			t.Fatalf("Open(%q) = %s, want %s", tc.target, got, tc.want)
		}
	}
	if _, err := Open("events.csv", Options{}); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
	if _, err := Open("  ", Options{}); err == nil {
		t.Fatalf("expected error for empty target")
	}
}

func typeName(s Source) string {
	switch s.(type) {
	case *FileSource:
		return "*source.FileSource"
	case *ICSSource:
		return "*source.ICSSource"
	case *SQLiteSource:
		return "*source.SQLiteSource"
	default:
		return "unknown"
	}
}

func TestOpenKeepsPrefixedPath(t *testing.T) {
	src, err := Open("yaml:/data/cal.txt", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if src.Path() != "/data/cal.txt" || src.Name() != "cal.txt" {
		t.Fatalf("unexpected path/name: %q %q", src.Path(), src.Name())
	}
}

func TestApplyFilter(t *testing.T) {
	day := func(d, h int) time.Time { return time.Date(2024, 1, d, h, 0, 0, 0, time.UTC) }
	events := []contract.Event{
		{ID: "c", Title: "Late review", Start: day(3, 15), End: day(3, 16)},
		{ID: "a", Title: "Standup", Start: day(1, 9), End: day(1, 10)},
		{ID: "b", Title: "Overnight", Start: day(1, 22), End: day(2, 2), Location: "Review room"},
		{ID: "d", Title: "Instant", Start: day(2, 0), End: day(2, 0)},
		{ID: "e", Title: "Outside", Start: day(5, 9), End: day(5, 10)},
	}

	got := applyFilter(events, Filter{From: day(2, 0), To: day(4, 0)})
	if ids := idsOf(got); ids != "b,d,c" {
		t.Fatalf("unexpected range result: %s", ids)
	}

	got = applyFilter(events, Filter{Query: "review"})
	if ids := idsOf(got); ids != "b,c" {
		t.Fatalf("unexpected query result: %s", ids)
	}

	got = applyFilter(events, Filter{Limit: 2})
	if ids := idsOf(got); ids != "a,b" {
		t.Fatalf("unexpected limited result: %s", ids)
	}
}

func idsOf(events []contract.Event) string {
	out := ""
	for i, e := range events {
		if i > 0 {
			out += ","
		}
		out += e.ID
	}
	return out
}
