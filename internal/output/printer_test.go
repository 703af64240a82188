package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/agis/gridcal/internal/contract"
)

func TestSchemaVersionDefault(t *testing.T) {
	p := Printer{}
	if p.schemaVersion() != contract.SchemaVersion {
		t.Fatalf("expected default schema version %q", contract.SchemaVersion)
	}
}

func TestFlattenWithFields(t *testing.T) {
	e := contract.Event{
		ID:    "abc",
		Title: "Standup",
		Start: time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC),
	}
	got := flatten(e, []string{"id", "title", "start", "all_day"})
	if got != "abc\tStandup\t2026-02-16T10:00:00Z\tfalse" {
		t.Fatalf("unexpected flatten result: %q", got)
	}
}

func TestEffectiveSuccessMode(t *testing.T) {
	cases := map[Mode]Mode{
		ModeAuto:  ModeJSON,
		"":        ModeJSON,
		ModeJSON:  ModeJSON,
		ModeJSONL: ModeJSONL,
		ModePlain: ModePlain,
	}
	for in, want := range cases {
		if got := (Printer{Mode: in, Out: &bytes.Buffer{}}).EffectiveSuccessMode(); got != want {
			t.Fatalf("mode %q resolved to %q, want %q", in, got, want)
		}
	}
}

func TestSuccessJSONEnvelope(t *testing.T) {
	var out bytes.Buffer
	p := Printer{Mode: ModeJSON, Command: "day", Out: &out}
	if err := p.Success([]string{"a"}, map[string]any{"count": 1}, []string{"skipped one"}); err != nil {
		t.Fatal(err)
	}
	var env contract.SuccessEnvelope
	if err := json.Unmarshal(out.Bytes(), &env); err != nil {
		t.Fatalf("invalid envelope: %v\n%s", err, out.String())
	}
	if env.Command != "day" || env.SchemaVersion != contract.SchemaVersion || len(env.Warnings) != 1 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestSuccessJSONLWritesOneLinePerItem(t *testing.T) {
	var out bytes.Buffer
	p := Printer{Mode: ModeJSONL, Out: &out}
	if err := p.Success([]int{1, 2, 3}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(out.String(), "\n"); got != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", got, out.String())
	}
}

func TestPlainEmptyAndWarnings(t *testing.T) {
	var out, errOut bytes.Buffer
	p := Printer{Mode: ModePlain, Out: &out, Err: &errOut}
	if err := p.Success([]string{}, nil, []string{"record 2 skipped"}); err != nil {
		t.Fatal(err)
	}
	if out.String() != "no results\n" {
		t.Fatalf("unexpected plain output: %q", out.String())
	}
	if errOut.String() != "warning: record 2 skipped\n" {
		t.Fatalf("unexpected warning output: %q", errOut.String())
	}

	out.Reset()
	errOut.Reset()
	p.Quiet = true
	_ = p.Success(nil, nil, []string{"hidden"})
	if out.Len() != 0 || errOut.Len() != 0 {
		t.Fatalf("quiet printer wrote output: %q %q", out.String(), errOut.String())
	}
}

func TestErrorOutput(t *testing.T) {
	var errOut bytes.Buffer
	p := Printer{Mode: ModePlain, Err: &errOut}
	_ = p.Error(contract.ErrInvalidUsage, "bad day", "use YYYY-MM-DD")
	if errOut.String() != "error: bad day\nhint: use YYYY-MM-DD\n" {
		t.Fatalf("unexpected plain error: %q", errOut.String())
	}

	errOut.Reset()
	p.Mode = ModeJSON
	_ = p.Error(contract.ErrSourceUnavailable, "missing", "")
	var env contract.ErrorEnvelope
	if err := json.Unmarshal(errOut.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Error.Code != contract.ErrSourceUnavailable || env.Error.Message != "missing" {
		t.Fatalf("unexpected error envelope: %+v", env)
	}
}

func TestColorfulNeedsTerminal(t *testing.T) {
	if (Printer{Out: &bytes.Buffer{}}).Colorful() {
		t.Fatalf("buffer output must not be colorful")
	}
}
