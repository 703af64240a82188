package app

import (
	"errors"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/agis/gridcal/internal/contract"
	"github.com/agis/gridcal/internal/layout"
	"github.com/agis/gridcal/internal/output"
	"github.com/agis/gridcal/internal/timeparse"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const followSchedule = "@every 1m"

func newNowCmd(opts *globalOptions) *cobra.Command {
	var view string
	var date string
	var at string
	var follow bool
	cmd := &cobra.Command{
		Use:   "now",
		Short: "Position the current time line for a day or week view",
		RunE: func(c *cobra.Command, _ []string) error {
			p, _, ro, err := buildContext(c, opts, "now")
			if err != nil {
				return err
			}
			cfg, err := layoutConfig(ro)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Check --start-hour and --end-hour", 2)
			}
			v, err := parseView(view)
			if err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --view day|week", 2)
			}
			if follow && strings.TrimSpace(at) != "" {
				return failWithHint(p, contract.ErrInvalidUsage, errors.New("--follow and --at are mutually exclusive"), "Drop --at to follow the wall clock", 2)
			}
			loc := resolveLocation(ro.TZ)
			now := clock().In(loc)
			if strings.TrimSpace(at) != "" {
				now, err = timeparse.ParseDateTime(at, now, loc)
				if err != nil {
					return failWithHint(p, contract.ErrInvalidUsage, err, "Use --at as YYYY-MM-DDTHH:MM or relative syntax such as +2h", 2)
				}
			}
			anchor := now
			if strings.TrimSpace(date) != "" {
				anchor, err = timeparse.ParseDateTime(date, now, loc)
				if err != nil {
					return failWithHint(p, contract.ErrInvalidUsage, err, "Use --date as today, tomorrow, +Nd, or YYYY-MM-DD", 2)
				}
			}

			emit := func(now time.Time) error {
				ind := layout.CurrentTimeIndicator(v, anchor, now, cfg)
				if p.EffectiveSuccessMode() == output.ModePlain && len(p.Fields) == 0 {
					return p.RenderIndicator(ind)
				}
				return p.Success(ind, map[string]any{
					"view": string(v),
					"date": layout.StartOfDay(anchor).Format("2006-01-02"),
				}, nil)
			}
			if !follow {
				return emit(now)
			}
			return followIndicator(c, ro, loc, emit)
		},
	}
	cmd.Flags().StringVar(&view, "view", "day", "View the line is drawn in: day|week")
	cmd.Flags().StringVar(&date, "date", "", "Day shown by the view (defaults to the day of --at)")
	cmd.Flags().StringVar(&at, "at", "", "Instant treated as now")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Re-emit the indicator every minute")
	return cmd
}

// followIndicator emits immediately and then on every tick of the follow
// schedule until interrupted.
func followIndicator(c *cobra.Command, ro *globalOptions, loc *time.Location, emit func(time.Time) error) error {
	if err := emit(clock().In(loc)); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	sched := cron.New(cron.WithLocation(loc))
	if _, err := sched.AddFunc(followSchedule, func() {
		mu.Lock()
		defer mu.Unlock()
		if err := emit(clock().In(loc)); err != nil {
			ro.logger.Warn("emit indicator", "err", err)
		}
	}); err != nil {
		return Wrap(1, err)
	}
	sched.Start()
	ro.logger.Debug("following clock", "schedule", followSchedule)
	<-ctx.Done()
	<-sched.Stop().Done()
	return nil
}

func parseView(v string) (layout.View, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "day":
		return layout.ViewDay, nil
	case "week":
		return layout.ViewWeek, nil
	default:
		return layout.ViewDay, errors.New("invalid --view: " + v)
	}
}
