package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agis/gridcal/internal/contract"
	"github.com/agis/gridcal/internal/layout"
	"github.com/agis/gridcal/internal/output"
	"github.com/agis/gridcal/internal/source"
	"github.com/agis/gridcal/internal/timeparse"
	"github.com/spf13/cobra"
)

func newEventsCmd(opts *globalOptions) *cobra.Command {
	events := &cobra.Command{Use: "events", Short: "Inspect events resolved from the source"}

	var listFrom, listTo string
	var listLimit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List resolved events in a range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, src, ro, err := buildContext(cmd, opts, "events.list")
			if err != nil {
				return err
			}
			f, err := buildEventFilter(listFrom, listTo, listLimit, ro.TZ)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --from and --to with RFC3339, YYYY-MM-DD, or relative values", 2)
			}
			return runEventQuery(p, src, ro, f, "")
		},
	}
	list.Flags().StringVar(&listFrom, "from", "today", "Range start")
	list.Flags().StringVar(&listTo, "to", "+7d", "Range end")
	list.Flags().IntVar(&listLimit, "limit", 0, "Limit results")

	var searchFrom, searchTo string
	var searchLimit int
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search titles, locations and descriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, src, ro, err := buildContext(cmd, opts, "events.search")
			if err != nil {
				return err
			}
			f, err := buildEventFilter(searchFrom, searchTo, searchLimit, ro.TZ)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use valid --from/--to values", 2)
			}
			f.Query = args[0]
			return runEventQuery(p, src, ro, f, args[0])
		},
	}
	search.Flags().StringVar(&searchFrom, "from", "today", "Range start")
	search.Flags().StringVar(&searchTo, "to", "+30d", "Range end")
	search.Flags().IntVar(&searchLimit, "limit", 0, "Limit results")

	var showFrom, showTo string
	show := &cobra.Command{
		Use:   "show <event-id>",
		Short: "Show one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, src, ro, err := buildContext(cmd, opts, "events.show")
			if err != nil {
				return err
			}
			f, err := buildEventFilter(showFrom, showTo, 0, ro.TZ)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use valid --from/--to values", 2)
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			listing, err := listEventsWithTimeout(ctx, src, f)
			if err != nil {
				return failSource(p, err)
			}
			id := strings.TrimSpace(args[0])
			for _, e := range listing.Events {
				if e.ID == id {
					return successWithMeta(ctx, p, ro, e, map[string]any{"source": src.Name()}, listing.Skipped)
				}
			}
			return failWithHint(p, contract.ErrNotFound, fmt.Errorf("event not found: %s", id), "Recurring instances are listed as <uid>@<unix>; widen --from/--to if needed", 4)
		},
	}
	show.Flags().StringVar(&showFrom, "from", "-365d", "Range start")
	show.Flags().StringVar(&showTo, "to", "+365d", "Range end")

	events.AddCommand(list, search, show)
	return events
}

func runEventQuery(p output.Printer, src source.Source, ro *globalOptions, f source.Filter, query string) error {
	ctx, cancel := commandContext(ro)
	defer cancel()
	listing, err := listEventsWithTimeout(ctx, src, f)
	if err != nil {
		return failSource(p, err)
	}
	if p.EffectiveSuccessMode() == output.ModePlain && len(p.Fields) == 0 {
		p.PrintWarnings(listing.Skipped)
		return p.RenderEvents(listing.Events, ro.Verbose)
	}
	meta := map[string]any{
		"count":  len(listing.Events),
		"from":   f.From.Format(time.RFC3339),
		"to":     f.To.Format(time.RFC3339),
		"source": src.Name(),
	}
	if query != "" {
		meta["query"] = query
	}
	return successWithMeta(ctx, p, ro, listing.Events, meta, listing.Skipped)
}

// buildEventFilter parses a [from, to) range. A date-only --to includes that
// whole day.
func buildEventFilter(fromS, toS string, limit int, tz string) (source.Filter, error) {
	loc := resolveLocation(tz)
	now := clock().In(loc)
	from, err := timeparse.ParseDateTime(fromS, now, loc)
	if err != nil {
		return source.Filter{}, fmt.Errorf("invalid --from: %w", err)
	}
	to, err := timeparse.ParseDateTime(toS, now, loc)
	if err != nil {
		return source.Filter{}, fmt.Errorf("invalid --to: %w", err)
	}
	if to.Equal(layout.StartOfDay(to)) {
		to = layout.NextDay(to)
	}
	if to.Before(from) {
		return source.Filter{}, errors.New("--to must not be earlier than --from")
	}
	return source.Filter{From: from, To: to, Limit: limit}, nil
}
