package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agis/gridcal/internal/contract"
	"github.com/agis/gridcal/internal/layout"
	"github.com/agis/gridcal/internal/output"
	"github.com/agis/gridcal/internal/source"
	"github.com/spf13/cobra"
)

var sourceFactory = source.Open

// clock is the wall clock behind "now" whenever a command has no --at.
var clock = time.Now

type globalOptions struct {
	JSON          bool
	JSONL         bool
	Plain         bool
	Fields        string
	Quiet         bool
	Verbose       bool
	NoColor       bool
	Strict        bool
	Profile       string
	Config        string
	Source        string
	TZ            string
	Timeout       time.Duration
	SchemaVersion string
	TimeFormat    string

	StartHour int
	EndHour   int
	RowHeight float64
	MinHeight float64
	WeekStart string
	MultiDay  string

	logger *slog.Logger
}

func defaultGlobalOptions() *globalOptions {
	return &globalOptions{
		Profile:       "default",
		Source:        defaultSource,
		Timeout:       15 * time.Second,
		SchemaVersion: contract.SchemaVersion,
		StartHour:     layout.DefaultStartHour,
		EndHour:       layout.DefaultEndHour,
		RowHeight:     layout.DefaultRowHeight,
		MinHeight:     layout.DefaultMinHeight,
		WeekStart:     "sunday",
		MultiDay:      string(layout.MultiDayAuto),
	}
}

func Execute() int {
	cmd := NewRootCommand()
	err := cmd.Execute()
	if err != nil {
		renderTopLevelError(cmd, err)
	}
	return ExitCode(err)
}

func NewRootCommand() *cobra.Command {
	opts := defaultGlobalOptions()

	root := &cobra.Command{
		Use:           "gridcal",
		Short:         "Lay out calendar events on day and week grids",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       BuildVersionString(),
	}
	root.SetVersionTemplate("gridcal {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.BoolVar(&opts.JSON, "json", false, "Output structured JSON")
	pf.BoolVar(&opts.JSONL, "jsonl", false, "Output newline-delimited JSON")
	pf.BoolVar(&opts.Plain, "plain", false, "Output stable plain text")
	pf.StringVar(&opts.Fields, "fields", "", "Projected fields, comma-separated")
	pf.BoolVarP(&opts.Quiet, "quiet", "q", false, "Reduce success output")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "Verbose diagnostics")
	pf.BoolVar(&opts.NoColor, "no-color", false, "Disable color output")
	pf.BoolVar(&opts.Strict, "strict", false, "Fail on source records that cannot be resolved")
	pf.StringVar(&opts.Profile, "profile", "default", "Config profile")
	pf.StringVar(&opts.Config, "config", "", "Config file path")
	pf.StringVarP(&opts.Source, "source", "s", defaultSource, "Event source: .json, .yaml, .ics or .db file, or <format>:<path>")
	pf.StringVar(&opts.TZ, "tz", "", "IANA timezone for layout and output")
	pf.DurationVar(&opts.Timeout, "timeout", 15*time.Second, "Source read timeout (e.g. 10s, 1m, 0 to disable)")
	pf.StringVar(&opts.SchemaVersion, "schema-version", contract.SchemaVersion, "Output schema version")
	pf.IntVar(&opts.StartHour, "start-hour", layout.DefaultStartHour, "First visible hour of the grid")
	pf.IntVar(&opts.EndHour, "end-hour", layout.DefaultEndHour, "Hour the visible grid ends at")
	pf.Float64Var(&opts.RowHeight, "row-height", layout.DefaultRowHeight, "Height of one hour row")
	pf.Float64Var(&opts.MinHeight, "min-height", layout.DefaultMinHeight, "Minimum drawn height of an event")
	pf.StringVar(&opts.MultiDay, "multi-day", string(layout.MultiDayAuto), "Timed multi-day events: auto|lane|clip")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newDoctorCmd(opts))
	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newDayCmd(opts))
	root.AddCommand(newWeekCmd(opts))
	root.AddCommand(newNowCmd(opts))
	root.AddCommand(newUpcomingCmd(opts))
	root.AddCommand(newEventsCmd(opts))
	root.AddCommand(newCompletionCmd(root))

	return root
}

func buildContext(cmd *cobra.Command, opts *globalOptions, command string) (output.Printer, source.Source, *globalOptions, error) {
	resolved, err := resolveGlobalOptions(cmd, opts)
	if err != nil {
		return output.Printer{}, nil, nil, Wrap(2, err)
	}
	if conflictCount(resolved.JSON, resolved.JSONL, resolved.Plain) > 1 {
		return output.Printer{}, nil, nil, Wrap(2, errors.New("--json, --jsonl, and --plain are mutually exclusive"))
	}
	mode := output.ModeAuto
	if resolved.JSON {
		mode = output.ModeJSON
	} else if resolved.JSONL {
		mode = output.ModeJSONL
	} else if resolved.Plain {
		mode = output.ModePlain
	}

	printer := output.Printer{
		Mode:          mode,
		Command:       command,
		Fields:        splitCSV(resolved.Fields),
		Quiet:         resolved.Quiet,
		NoColor:       resolved.NoColor,
		SchemaVersion: resolved.SchemaVersion,
		TimeFormat:    resolved.TimeFormat,
		Out:           cmd.OutOrStdout(),
		Err:           cmd.ErrOrStderr(),
		Now:           clock,
	}
	resolved.logger = newLogger(printer.Err, resolved.Verbose)

	loc, err := loadLocation(resolved.TZ)
	if err != nil {
		return printer, nil, nil, failWithHint(printer, contract.ErrInvalidUsage, err, "Use an IANA name such as Europe/Berlin", 2)
	}

	src, err := sourceFactory(resolved.Source, source.Options{
		Location: loc,
		Strict:   resolved.Strict,
		Logger:   resolved.logger,
	})
	if err != nil {
		return printer, nil, nil, failWithHint(printer, contract.ErrInvalidUsage, err, "Use --source with a .json, .yaml, .ics or .db path", 2)
	}
	resolved.logger.Debug("resolved options",
		"command", command,
		"source", resolved.Source,
		"mode", mode,
		"tz", resolved.TZ,
		"profile", resolved.Profile,
		"timeout", resolved.Timeout,
	)
	return printer, src, resolved, nil
}

// layoutConfig turns the resolved options into an engine config. Invalid
// values are usage errors here even though the engine itself would fall
// back to defaults.
func layoutConfig(ro *globalOptions) (layout.Config, error) {
	ws, err := layout.ParseWeekStart(ro.WeekStart)
	if err != nil {
		return layout.Config{}, err
	}
	md, err := layout.ParseMultiDayMode(ro.MultiDay)
	if err != nil {
		return layout.Config{}, err
	}
	cfg := layout.Config{
		StartHour: ro.StartHour,
		EndHour:   ro.EndHour,
		RowHeight: ro.RowHeight,
		MinHeight: ro.MinHeight,
		WeekStart: ws,
		MultiDay:  md,
	}
	if err := cfg.Validate(); err != nil {
		return layout.Config{}, err
	}
	return cfg, nil
}

func commandContext(ro *globalOptions) (context.Context, context.CancelFunc) {
	timing := &timingRecorder{calls: map[string]time.Duration{}}
	base := context.WithValue(context.Background(), timingContextKey{}, timing)
	if ro == nil || ro.Timeout <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, ro.Timeout)
}

type timeoutResult[T any] struct {
	val T
	err error
}

type timingContextKey struct{}

type timingRecorder struct {
	mu    sync.Mutex
	calls map[string]time.Duration
}

func (r *timingRecorder) add(name string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name] += d
}

func sourceTimings(ctx context.Context) map[string]string {
	rec, _ := ctx.Value(timingContextKey{}).(*timingRecorder)
	if rec == nil {
		return nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.calls) == 0 {
		return nil
	}
	keys := make([]string, 0, len(rec.calls))
	for k := range rec.calls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = rec.calls[k].String()
	}
	return out
}

func withTimeout[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	ch := make(chan timeoutResult[T], 1)
	go func() {
		v, err := fn()
		ch <- timeoutResult[T]{val: v, err: err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		return res.val, res.err
	}
}

func doctorWithTimeout(ctx context.Context, src source.Source) ([]contract.DoctorCheck, error) {
	start := time.Now()
	v, err := withTimeout(ctx, func() ([]contract.DoctorCheck, error) {
		return src.Doctor(ctx)
	})
	err = annotateSourceError(ctx, "source.doctor", err)
	recordTiming(ctx, "source.doctor", time.Since(start))
	return v, err
}

func listEventsWithTimeout(ctx context.Context, src source.Source, f source.Filter) (source.Listing, error) {
	start := time.Now()
	v, err := withTimeout(ctx, func() (source.Listing, error) {
		return src.ListEvents(ctx, f)
	})
	err = annotateSourceError(ctx, "source.list_events", err)
	recordTiming(ctx, "source.list_events", time.Since(start))
	return v, err
}

func recordTiming(ctx context.Context, name string, d time.Duration) {
	rec, _ := ctx.Value(timingContextKey{}).(*timingRecorder)
	if rec == nil {
		return
	}
	rec.add(name, d)
}

func successWithMeta(ctx context.Context, p output.Printer, ro *globalOptions, data any, meta map[string]any, warnings []string) error {
	if ro != nil && ro.Verbose {
		timings := sourceTimings(ctx)
		if len(timings) > 0 {
			if meta == nil {
				meta = map[string]any{}
			}
			meta["timings"] = timings
			ro.logger.Debug("timings", "calls", timings)
		}
	}
	return p.Success(data, meta, warnings)
}

func renderTopLevelError(cmd *cobra.Command, err error) {
	var appErr AppError
	if errors.As(err, &appErr) && appErr.Printed {
		return
	}
	if wantsStructuredErrorOutput(os.Args[1:]) {
		printer := output.Printer{
			Mode:          output.ModeJSON,
			SchemaVersion: contract.SchemaVersion,
			Err:           cmd.ErrOrStderr(),
		}
		_ = printer.Error(errorCodeForExit(ExitCode(err)), err.Error(), "")
		return
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", err.Error())
}

func wantsStructuredErrorOutput(args []string) bool {
	for _, arg := range args {
		switch {
		case arg == "--":
			return false
		case arg == "--json", arg == "--jsonl":
			return true
		case strings.HasPrefix(arg, "--json="), strings.HasPrefix(arg, "--jsonl="):
			return true
		}
	}
	return false
}

func errorCodeForExit(code int) contract.ErrorCode {
	switch code {
	case 2:
		return contract.ErrInvalidUsage
	case 4:
		return contract.ErrNotFound
	case 6:
		return contract.ErrSourceUnavailable
	default:
		return contract.ErrGeneric
	}
}

func loadLocation(tz string) (*time.Location, error) {
	if strings.TrimSpace(tz) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(strings.TrimSpace(tz))
	if err != nil {
		return nil, fmt.Errorf("invalid --tz %q: %w", tz, err)
	}
	return loc, nil
}

// resolveLocation is loadLocation for options that were already validated
// by buildContext.
func resolveLocation(tz string) *time.Location {
	if loc, err := loadLocation(tz); err == nil {
		return loc
	}
	return time.Local
}

func conflictCount(vals ...bool) int {
	total := 0
	for _, v := range vals {
		if v {
			total++
		}
	}
	return total
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
