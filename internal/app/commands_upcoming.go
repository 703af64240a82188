package app

import (
	"errors"
	"strings"
	"time"

	"github.com/agis/gridcal/internal/contract"
	"github.com/agis/gridcal/internal/layout"
	"github.com/agis/gridcal/internal/output"
	"github.com/agis/gridcal/internal/source"
	"github.com/agis/gridcal/internal/timeparse"
	"github.com/spf13/cobra"
)

func newUpcomingCmd(opts *globalOptions) *cobra.Command {
	var at string
	var days int
	var limit int
	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List events starting within the next days",
		RunE: func(c *cobra.Command, _ []string) error {
			p, src, ro, err := buildContext(c, opts, "upcoming")
			if err != nil {
				return err
			}
			if days <= 0 {
				return failWithHint(p, contract.ErrInvalidUsage, errors.New("--days must be positive"), "Use --days 7 for the next week", 2)
			}
			loc := resolveLocation(ro.TZ)
			ref := clock().In(loc)
			if strings.TrimSpace(at) != "" {
				ref, err = timeparse.ParseDateTime(at, ref, loc)
				if err != nil {
					return failWithHint(p, contract.ErrInvalidUsage, err, "Use --at as YYYY-MM-DDTHH:MM or relative syntax such as -1d", 2)
				}
			}

			ctx, cancel := commandContext(ro)
			defer cancel()
			// The window is wide enough to include anything starting in
			// (ref, ref+days]; Upcoming applies the exact bounds.
			listing, err := listEventsWithTimeout(ctx, src, source.Filter{From: ref, To: ref.AddDate(0, 0, days).Add(1)})
			if err != nil {
				return failSource(p, err)
			}
			items := layout.Upcoming(listing.Events, ref, days)
			if limit > 0 && len(items) > limit {
				items = items[:limit]
			}
			if p.EffectiveSuccessMode() == output.ModePlain && len(p.Fields) == 0 {
				p.PrintWarnings(listing.Skipped)
				p.Now = func() time.Time { return ref }
				return p.RenderEvents(items, ro.Verbose)
			}
			return successWithMeta(ctx, p, ro, items, map[string]any{
				"count": len(items),
				"ref":   ref,
				"days":  days,
			}, listing.Skipped)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Reference instant (defaults to now)")
	cmd.Flags().IntVar(&days, "days", layout.UpcomingDays, "Window length in days")
	cmd.Flags().IntVar(&limit, "limit", 0, "Limit results")
	return cmd
}
