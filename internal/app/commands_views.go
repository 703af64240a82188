package app

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agis/gridcal/internal/contract"
	"github.com/agis/gridcal/internal/layout"
	"github.com/agis/gridcal/internal/output"
	"github.com/agis/gridcal/internal/source"
	"github.com/agis/gridcal/internal/timeparse"
	"github.com/spf13/cobra"
)

func newDayCmd(opts *globalOptions) *cobra.Command {
	var day string
	var watch bool
	cmd := &cobra.Command{
		Use:   "day",
		Short: "Lay out one day (defaults to today)",
		RunE: func(c *cobra.Command, _ []string) error {
			p, src, ro, err := buildContext(c, opts, "day")
			if err != nil {
				return err
			}
			cfg, err := layoutConfig(ro)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Check --start-hour, --end-hour, --row-height and --multi-day", 2)
			}
			loc := resolveLocation(ro.TZ)
			anchor, err := timeparse.ParseDateTime(day, clock().In(loc), loc)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --day as today, tomorrow, +Nd, or YYYY-MM-DD", 2)
			}
			dayStart := layout.StartOfDay(anchor)

			render := func() error {
				ctx, cancel := commandContext(ro)
				defer cancel()
				listing, err := listEventsWithTimeout(ctx, src, source.Filter{From: dayStart, To: layout.NextDay(dayStart)})
				if err != nil {
					return failSource(p, err)
				}
				res := layout.LayoutDay(dayStart, listing.Events, cfg)
				ind := layout.CurrentTimeIndicator(layout.ViewDay, dayStart, clock().In(loc), cfg)
				if p.EffectiveSuccessMode() == output.ModePlain && len(p.Fields) == 0 {
					p.PrintWarnings(listing.Skipped)
					return p.RenderDay(res, &ind)
				}
				return successWithMeta(ctx, p, ro, res, map[string]any{
					"view":    "day",
					"day":     dayStart.Format("2006-01-02"),
					"count":   len(res.Timed) + len(res.AllDay),
					"columns": res.Columns,
					"now":     ind,
					"skipped": len(listing.Skipped),
				}, listing.Skipped)
			}
			if watch {
				return watchAndRender(c, src, ro, render)
			}
			return render()
		},
	}
	cmd.Flags().StringVar(&day, "day", "today", "Day selector")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-run the layout whenever the source changes")
	return cmd
}

func newWeekCmd(opts *globalOptions) *cobra.Command {
	var of string
	var weekStart string
	var watch bool
	cmd := &cobra.Command{
		Use:   "week",
		Short: "Lay out the week containing a date",
		RunE: func(c *cobra.Command, _ []string) error {
			p, src, ro, err := buildContext(c, opts, "week")
			if err != nil {
				return err
			}
			if c.Flags().Changed("week-start") {
				ro.WeekStart = weekStart
			}
			cfg, err := layoutConfig(ro)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --week-start sunday|monday|saturday and check the layout flags", 2)
			}
			loc := resolveLocation(ro.TZ)
			anchor, err := timeparse.ParseDateTime(of, clock().In(loc), loc)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --of as today, tomorrow, +Nd, or YYYY-MM-DD", 2)
			}
			start := layout.WeekStart(anchor, cfg.WeekStart)
			end := start.AddDate(0, 0, layout.DaysPerWeek)

			render := func() error {
				ctx, cancel := commandContext(ro)
				defer cancel()
				listing, err := listEventsWithTimeout(ctx, src, source.Filter{From: start, To: end})
				if err != nil {
					return failSource(p, err)
				}
				res := layout.LayoutWeek(anchor, listing.Events, cfg)
				ind := layout.CurrentTimeIndicator(layout.ViewWeek, anchor, clock().In(loc), cfg)
				if p.EffectiveSuccessMode() == output.ModePlain && len(p.Fields) == 0 {
					p.PrintWarnings(listing.Skipped)
					return p.RenderWeek(res, &ind)
				}
				return successWithMeta(ctx, p, ro, res, map[string]any{
					"view":       "week",
					"from":       start.Format("2006-01-02"),
					"to":         end.AddDate(0, 0, -1).Format("2006-01-02"),
					"week_start": cfg.WeekStart.String(),
					"count":      len(listing.Events),
					"now":        ind,
					"skipped":    len(listing.Skipped),
				}, listing.Skipped)
			}
			if watch {
				return watchAndRender(c, src, ro, render)
			}
			return render()
		},
	}
	cmd.Flags().StringVar(&of, "of", "today", "Date selector within target week")
	cmd.Flags().StringVar(&weekStart, "week-start", "sunday", "Week start day: sunday|monday|saturday")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-run the layout whenever the source changes")
	return cmd
}

// watchAndRender runs render once and then again after each change to the
// source file, until interrupted. Read failures after the first render are
// reported without ending the watch.
func watchAndRender(c *cobra.Command, src source.Source, ro *globalOptions, render func() error) error {
	if err := render(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	changes := make(chan struct{}, 1)
	w, err := source.NewWatcher(func(string) {
		select {
		case changes <- struct{}{}:
		default:
		}
	}, ro.logger)
	if err != nil {
		return Wrap(1, err)
	}
	defer w.Close()
	if err := w.Add(src.Path()); err != nil {
		return Wrap(6, err)
	}
	ro.logger.Debug("watching source", "path", src.Path())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			started := time.Now()
			err := render()
			ro.logger.Debug("source reloaded", "path", src.Path(), "elapsed", time.Since(started), "err", err)
			if err != nil && ExitCode(err) != 4 && ExitCode(err) != 6 {
				return err
			}
		}
	}
}
