package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agis/gridcal/internal/contract"
	"github.com/agis/gridcal/internal/source"
)

type fakeSource struct {
	events    []contract.Event
	skipped   []string
	checks    []contract.DoctorCheck
	doctorErr error
	listErr   error
	block     bool
}

func (s *fakeSource) Name() string { return "fake.json" }
func (s *fakeSource) Path() string { return "fake.json" }

func (s *fakeSource) Doctor(context.Context) ([]contract.DoctorCheck, error) {
	return s.checks, s.doctorErr
}

func (s *fakeSource) ListEvents(ctx context.Context, _ source.Filter) (source.Listing, error) {
	if s.block {
		<-ctx.Done()
		return source.Listing{}, ctx.Err()
	}
	if s.listErr != nil {
		return source.Listing{}, s.listErr
	}
	return source.Listing{Events: s.events, Skipped: s.skipped}, nil
}

type envelope[T any] struct {
	Command  string         `json:"command"`
	Data     T              `json:"data"`
	Meta     map[string]any `json:"meta"`
	Warnings []string       `json:"warnings"`
}

var healthyChecks = []contract.DoctorCheck{
	{Name: "source_file", Status: "ok", Message: "fake.json"},
	{Name: "source_parse", Status: "ok", Message: "3 records (json)"},
	{Name: "source_records", Status: "ok", Message: "all records resolve"},
}

func useFakeSource(t *testing.T, src source.Source, now time.Time) {
	t.Helper()
	isolateConfig(t)
	origFactory, origClock := sourceFactory, clock
	sourceFactory = func(string, source.Options) (source.Source, error) { return src, nil }
	clock = func() time.Time { return now }
	t.Cleanup(func() {
		sourceFactory = origFactory
		clock = origClock
	})
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func decode[T any](t *testing.T, raw string) envelope[T] {
	t.Helper()
	var env envelope[T]
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("decode envelope: %v\n%s", err, raw)
	}
	return env
}

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 1, day, hour, minute, 0, 0, time.UTC)
}

func timed(id string, start, end time.Time) contract.Event {
	return contract.Event{ID: id, Title: strings.ToUpper(id), Start: start, End: end}
}

func TestDayCommandJSON(t *testing.T) {
	src := &fakeSource{
		events: []contract.Event{
			timed("a", at(1, 9, 0), at(1, 11, 0)),
			timed("b", at(1, 10, 0), at(1, 12, 0)),
			timed("c", at(1, 11, 0), at(1, 12, 0)),
			{ID: "h", Title: "Holiday", Start: at(1, 0, 0), End: at(2, 0, 0), AllDay: true},
			timed("other-day", at(2, 9, 0), at(2, 10, 0)),
		},
		skipped: []string{"record 6: missing start"},
	}
	useFakeSource(t, src, at(1, 10, 30))

	out, _, err := runCLI(t, "day", "--day", "2024-01-01", "--tz", "UTC", "--json")
	if err != nil {
		t.Fatalf("day failed: %v", err)
	}
	env := decode[contract.DayLayout](t, out)
	if env.Command != "day" {
		t.Fatalf("command = %q", env.Command)
	}
	if env.Data.Columns != 2 {
		t.Fatalf("columns = %d, want 2", env.Data.Columns)
	}
	want := []struct {
		id     string
		column int
	}{{"a", 0}, {"b", 1}, {"c", 0}}
	if len(env.Data.Timed) != len(want) {
		t.Fatalf("timed = %d events, want %d", len(env.Data.Timed), len(want))
	}
	for i, w := range want {
		got := env.Data.Timed[i]
		if got.Event.ID != w.id || got.Column != w.column {
			t.Fatalf("timed[%d] = %s col %d, want %s col %d", i, got.Event.ID, got.Column, w.id, w.column)
		}
	}
	if first := env.Data.Timed[0]; first.Top != 9*64 || first.Height != 2*64 {
		t.Fatalf("a geometry top=%v height=%v", first.Top, first.Height)
	}
	if len(env.Data.AllDay) != 1 || env.Data.AllDay[0].ID != "h" {
		t.Fatalf("all-day lane = %+v", env.Data.AllDay)
	}
	now, _ := env.Meta["now"].(map[string]any)
	if now["visible"] != true {
		t.Fatalf("expected visible now indicator, meta=%v", env.Meta)
	}
	if len(env.Warnings) != 1 {
		t.Fatalf("warnings = %v", env.Warnings)
	}
}

func TestDayCommandPlain(t *testing.T) {
	src := &fakeSource{events: []contract.Event{
		timed("a", at(1, 9, 0), at(1, 10, 0)),
		timed("b", at(1, 13, 0), at(1, 14, 0)),
	}}
	useFakeSource(t, src, at(1, 11, 0))

	out, _, err := runCLI(t, "day", "--day", "2024-01-01", "--tz", "UTC", "--plain")
	if err != nil {
		t.Fatalf("day failed: %v", err)
	}
	for _, want := range []string{"Mon 2024-01-01  1 column", "09:00-10:00", "now 11:00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Index(out, "now 11:00") > strings.Index(out, "13:00-14:00") {
		t.Fatalf("now line should precede the 13:00 event:\n%s", out)
	}
}

func TestWeekCommandJSON(t *testing.T) {
	src := &fakeSource{events: []contract.Event{
		{ID: "trip", Title: "Trip", Start: at(1, 0, 0), End: at(3, 0, 0), AllDay: true},
		timed("standup", at(3, 9, 0), at(3, 9, 15)),
	}}
	useFakeSource(t, src, at(3, 8, 0))

	out, _, err := runCLI(t, "week", "--of", "2024-01-03", "--week-start", "monday", "--tz", "UTC", "--json")
	if err != nil {
		t.Fatalf("week failed: %v", err)
	}
	env := decode[contract.WeekLayout](t, out)
	if !env.Data.Start.Equal(at(1, 0, 0)) {
		t.Fatalf("week start = %s, want Monday 2024-01-01", env.Data.Start)
	}
	if len(env.Data.Days) != 7 {
		t.Fatalf("days = %d", len(env.Data.Days))
	}
	if len(env.Data.Days[2].Timed) != 1 || env.Data.Days[2].Timed[0].Event.ID != "standup" {
		t.Fatalf("wednesday column = %+v", env.Data.Days[2].Timed)
	}
	if len(env.Data.AllDay) != 1 {
		t.Fatalf("bars = %+v", env.Data.AllDay)
	}
	bar := env.Data.AllDay[0]
	if bar.StartIndex != 0 || bar.ContinuesBefore {
		t.Fatalf("bar = %+v", bar)
	}
	if env.Meta["week_start"] != "Monday" {
		t.Fatalf("meta week_start = %v", env.Meta["week_start"])
	}
}

func TestNowCommand(t *testing.T) {
	useFakeSource(t, &fakeSource{}, at(1, 0, 0))

	out, _, err := runCLI(t, "now", "--at", "2024-01-01T12:00", "--tz", "UTC", "--json")
	if err != nil {
		t.Fatalf("now failed: %v", err)
	}
	env := decode[contract.TimeIndicator](t, out)
	if env.Data.Position != 50 || !env.Data.Visible || env.Data.DayIndex != 0 {
		t.Fatalf("indicator = %+v", env.Data)
	}

	out, _, err = runCLI(t, "now", "--at", "2024-01-01T06:00", "--start-hour", "8", "--tz", "UTC", "--plain")
	if err != nil {
		t.Fatalf("now failed: %v", err)
	}
	if want := "06:00  hidden  position=0.00%  day=0\n"; out != want {
		t.Fatalf("plain indicator = %q, want %q", out, want)
	}
}

func TestNowCommandWeekOutsideWeek(t *testing.T) {
	useFakeSource(t, &fakeSource{}, at(1, 0, 0))

	out, _, err := runCLI(t, "now", "--view", "week", "--date", "2024-01-15", "--at", "2024-01-03T12:00", "--tz", "UTC", "--json")
	if err != nil {
		t.Fatalf("now failed: %v", err)
	}
	env := decode[contract.TimeIndicator](t, out)
	if env.Data.Visible || env.Data.DayIndex != -1 {
		t.Fatalf("indicator = %+v", env.Data)
	}
}

func TestNowCommandUsageErrors(t *testing.T) {
	useFakeSource(t, &fakeSource{}, at(1, 0, 0))
	tests := [][]string{
		{"now", "--follow", "--at", "2024-01-01T12:00"},
		{"now", "--view", "month"},
		{"now", "--at", "someday"},
	}
	for _, args := range tests {
		_, _, err := runCLI(t, args...)
		if code := ExitCode(err); code != 2 {
			t.Fatalf("%v: exit code = %d, want 2 (err=%v)", args, code, err)
		}
	}
}

func TestUpcomingCommandWindow(t *testing.T) {
	src := &fakeSource{events: []contract.Event{
		timed("past", at(1, 9, 0), at(1, 9, 30)),
		timed("at-ref", at(1, 10, 0), at(1, 10, 30)),
		timed("edge", at(2, 10, 0), at(2, 10, 30)),
		timed("late", at(2, 10, 1), at(2, 10, 30)),
		timed("soon", at(1, 15, 0), at(1, 16, 0)),
	}}
	useFakeSource(t, src, at(1, 0, 0))

	out, _, err := runCLI(t, "upcoming", "--at", "2024-01-01T10:00", "--days", "1", "--tz", "UTC", "--json")
	if err != nil {
		t.Fatalf("upcoming failed: %v", err)
	}
	env := decode[[]contract.Event](t, out)
	var ids []string
	for _, e := range env.Data {
		ids = append(ids, e.ID)
	}
	if got := strings.Join(ids, ","); got != "soon,edge" {
		t.Fatalf("upcoming ids = %s, want soon,edge", got)
	}

	_, _, err = runCLI(t, "upcoming", "--days", "0")
	if code := ExitCode(err); code != 2 {
		t.Fatalf("--days 0 exit code = %d, want 2", code)
	}
}

func TestEventsShow(t *testing.T) {
	src := &fakeSource{events: []contract.Event{timed("b", at(1, 9, 0), at(1, 10, 0))}}
	useFakeSource(t, src, at(1, 0, 0))

	out, _, err := runCLI(t, "events", "show", "b", "--tz", "UTC", "--json")
	if err != nil {
		t.Fatalf("events show failed: %v", err)
	}
	if env := decode[contract.Event](t, out); env.Data.ID != "b" {
		t.Fatalf("event = %+v", env.Data)
	}

	_, errOut, err := runCLI(t, "events", "show", "nope", "--json")
	if code := ExitCode(err); code != 4 {
		t.Fatalf("exit code = %d, want 4", code)
	}
	if !strings.Contains(errOut, string(contract.ErrNotFound)) {
		t.Fatalf("expected NOT_FOUND envelope, got %q", errOut)
	}
}

func TestEventsListFromJSONFile(t *testing.T) {
	isolateConfig(t)
	path := filepath.Join(t.TempDir(), "events.json")
	body := `[
  {"id": "a", "title": "Standup", "start": "2024-01-01T09:00:00Z", "end": "2024-01-01T09:30:00Z"},
  {"id": "b", "title": "Review", "start": "2024-01-03T09:00:00Z", "end": "2024-01-03T10:00:00Z"},
  {"id": "c", "title": "Planning", "start": "2024-01-02T16:00:00Z", "end": "2024-01-02T17:00:00Z"}
]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, "events", "list", "--source", path, "--from", "2024-01-01", "--to", "2024-01-02", "--tz", "UTC", "--json")
	if err != nil {
		t.Fatalf("events list failed: %v", err)
	}
	env := decode[[]contract.Event](t, out)
	if len(env.Data) != 2 || env.Data[0].ID != "a" || env.Data[1].ID != "c" {
		t.Fatalf("events = %+v", env.Data)
	}
	if env.Meta["source"] != "events.json" {
		t.Fatalf("meta source = %v", env.Meta["source"])
	}
}

func TestEventsListMissingSource(t *testing.T) {
	isolateConfig(t)
	missing := filepath.Join(t.TempDir(), "missing.json")
	_, errOut, err := runCLI(t, "events", "list", "--source", missing, "--json")
	if code := ExitCode(err); code != 4 {
		t.Fatalf("exit code = %d, want 4 (err=%v)", code, err)
	}
	if !strings.Contains(errOut, string(contract.ErrNotFound)) {
		t.Fatalf("expected NOT_FOUND envelope, got %q", errOut)
	}
}

func TestEventsListInvalidRange(t *testing.T) {
	useFakeSource(t, &fakeSource{}, at(5, 0, 0))
	_, _, err := runCLI(t, "events", "list", "--from", "2024-01-05", "--to", "2024-01-01", "--json")
	if code := ExitCode(err); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestSourceFailureExitCode(t *testing.T) {
	useFakeSource(t, &fakeSource{listErr: errors.New("disk on fire")}, at(1, 0, 0))
	_, errOut, err := runCLI(t, "day", "--json")
	if code := ExitCode(err); code != 6 {
		t.Fatalf("exit code = %d, want 6", code)
	}
	if !strings.Contains(errOut, string(contract.ErrSourceUnavailable)) {
		t.Fatalf("expected SOURCE_UNAVAILABLE envelope, got %q", errOut)
	}
}

func TestListTimeoutIncludesSourcePhase(t *testing.T) {
	useFakeSource(t, &fakeSource{block: true}, at(1, 0, 0))

	out, errOut, err := runCLI(t, "events", "list", "--from", "today", "--to", "+1d", "--timeout", "1ns", "--json")
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if code := ExitCode(err); code != 6 {
		t.Fatalf("exit code mismatch: got=%d want=6", code)
	}
	got := out + errOut
	if !strings.Contains(got, "source.list_events timed out") {
		t.Fatalf("expected source phase timeout in output, got: %q", got)
	}
	if !strings.Contains(got, `"kind": "timeout"`) {
		t.Fatalf("expected timeout meta in error envelope, got: %q", got)
	}
}

func TestLayoutUsageErrors(t *testing.T) {
	useFakeSource(t, &fakeSource{}, at(1, 0, 0))
	tests := []struct {
		name string
		args []string
	}{
		{"start hour out of range", []string{"day", "--start-hour", "30", "--json"}},
		{"start after end", []string{"day", "--start-hour", "18", "--end-hour", "9", "--json"}},
		{"bad multi-day", []string{"day", "--multi-day", "stack", "--json"}},
		{"bad week start", []string{"week", "--week-start", "friday", "--json"}},
		{"bad tz", []string{"day", "--tz", "Mars/Olympus", "--json"}},
		{"conflicting modes", []string{"day", "--json", "--plain"}},
		{"bad day", []string{"day", "--day", "someday", "--json"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := runCLI(t, tc.args...)
			if code := ExitCode(err); code != 2 {
				t.Fatalf("exit code = %d, want 2 (err=%v)", code, err)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	SetBuildInfo("v9.9.9", "abc", "2026-02-17T00:00:00Z")
	out, _, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !strings.Contains(out, "gridcal v9.9.9 (abc) 2026-02-17T00:00:00Z") {
		t.Fatalf("unexpected version output: %q", out)
	}
}

func TestCompletionCommand(t *testing.T) {
	out, _, err := runCLI(t, "completion", "bash")
	if err != nil || !strings.Contains(out, "gridcal") {
		t.Fatalf("bash completion: err=%v output=%q", err, out)
	}
	_, _, err = runCLI(t, "completion", "tcsh")
	if code := ExitCode(err); code != 2 {
		t.Fatalf("exit code mismatch: got=%d want=2", code)
	}
}

func TestDoctorCommand(t *testing.T) {
	useFakeSource(t, &fakeSource{checks: healthyChecks}, at(1, 0, 0))
	out, _, err := runCLI(t, "doctor", "--json")
	if err != nil {
		t.Fatalf("doctor failed: %v", err)
	}
	env := decode[[]contract.DoctorCheck](t, out)
	if env.Command != "doctor" || len(env.Data) != 4 {
		t.Fatalf("doctor payload = %+v", env)
	}
	if env.Data[3].Name != "layout_config" || env.Data[3].Status != "ok" {
		t.Fatalf("layout check = %+v", env.Data[3])
	}
}

func TestDoctorFailureProducesSinglePayload(t *testing.T) {
	src := &fakeSource{
		checks:    []contract.DoctorCheck{{Name: "source_file", Status: "fail", Message: "no such file"}},
		doctorErr: errors.New("no such file"),
	}
	useFakeSource(t, src, at(1, 0, 0))

	out, errOut, err := runCLI(t, "doctor", "--json")
	if err == nil {
		t.Fatalf("expected doctor error")
	}
	if code := ExitCode(err); code != 6 {
		t.Fatalf("exit code mismatch: got=%d want=6", code)
	}
	if errOut != "" {
		t.Fatalf("expected no stderr payload, got: %q", errOut)
	}
	if !strings.Contains(out, "\"warnings\": [") || !strings.Contains(out, "source_file_fail") {
		t.Fatalf("expected warnings and reason codes in doctor payload: %q", out)
	}
}

func TestDoctorPlain(t *testing.T) {
	src := &fakeSource{checks: []contract.DoctorCheck{
		{Name: "source_file", Status: "ok", Message: "fake.json"},
		{Name: "source_records", Status: "warn", Message: "1 records cannot be resolved"},
	}}
	useFakeSource(t, src, at(1, 0, 0))

	out, _, err := runCLI(t, "doctor", "--plain")
	if err != nil {
		t.Fatalf("doctor failed: %v", err)
	}
	for _, want := range []string{"ready=true degraded=true checks=3", "reasons=source_records_warn", "[warn] source_records"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestStatusCommand(t *testing.T) {
	useFakeSource(t, &fakeSource{checks: healthyChecks}, at(1, 0, 0))

	out, _, err := runCLI(t, "status", "--start-hour", "7")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	env := decode[statusResult](t, out)
	if env.Command != "status" || !env.Data.Ready {
		t.Fatalf("status payload = %+v", env)
	}
	if env.Data.OutputMode != "json" {
		t.Fatalf("expected effective output_mode json in non-tty, got %q", env.Data.OutputMode)
	}
	if env.Data.Layout.StartHour != 7 || env.Data.Layout.EndHour != 24 {
		t.Fatalf("layout summary = %+v", env.Data.Layout)
	}
}

func TestStatusCommandNotReadyExitCode(t *testing.T) {
	src := &fakeSource{
		checks:    []contract.DoctorCheck{{Name: "source_db", Status: "fail"}},
		doctorErr: errors.New("database is locked"),
	}
	useFakeSource(t, src, at(1, 0, 0))

	_, errOut, err := runCLI(t, "status", "--json")
	if code := ExitCode(err); code != 6 {
		t.Fatalf("exit code mismatch: got=%d want=6", code)
	}
	if !strings.Contains(errOut, string(contract.ErrSourceUnavailable)) {
		t.Fatalf("expected SOURCE_UNAVAILABLE envelope, got %q", errOut)
	}
}

func TestWantsStructuredErrorOutput(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"day", "--json"}, true},
		{[]string{"day", "--jsonl=true"}, true},
		{[]string{"day", "--plain"}, false},
		{[]string{"events", "search", "--", "--json"}, false},
	}
	for _, tc := range tests {
		if got := wantsStructuredErrorOutput(tc.args); got != tc.want {
			t.Fatalf("wantsStructuredErrorOutput(%v) = %v, want %v", tc.args, got, tc.want)
		}
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" id, title ,,start ")
	if strings.Join(got, "|") != "id|title|start" {
		t.Fatalf("splitCSV = %v", got)
	}
	if splitCSV("  ") != nil {
		t.Fatalf("expected nil for blank input")
	}
}
