package app

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/agis/gridcal/internal/contract"
	"github.com/agis/gridcal/internal/output"
	"github.com/spf13/cobra"
)

type statusResult struct {
	Ready         bool                   `json:"ready"`
	Degraded      bool                   `json:"degraded"`
	Source        string                 `json:"source"`
	Profile       string                 `json:"profile"`
	TZ            string                 `json:"tz,omitempty"`
	OutputMode    string                 `json:"output_mode"`
	SchemaVersion string                 `json:"schema_version"`
	Layout        layoutSummary          `json:"layout"`
	Checks        []contract.DoctorCheck `json:"checks"`
	NextSteps     []string               `json:"next_steps,omitempty"`
	ReasonCodes   []string               `json:"degraded_reason_codes,omitempty"`
}

type layoutSummary struct {
	StartHour int     `json:"start_hour"`
	EndHour   int     `json:"end_hour"`
	RowHeight float64 `json:"row_height"`
	MinHeight float64 `json:"min_height"`
	WeekStart string  `json:"week_start"`
	MultiDay  string  `json:"multi_day"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "gridcal %s\n", BuildVersionString())
		},
	}
}

func newDoctorCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the event source and layout configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, src, ro, err := buildContext(cmd, opts, "doctor")
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			checks, derr := doctorWithTimeout(ctx, src)
			checks = append(checks, layoutCheck(ro))
			health := buildHealth(checks, derr, src.Path())
			reasonCodes := deriveDegradedReasonCodes(checks, derr)
			meta := map[string]any{
				"count":                 len(checks),
				"ready":                 health.Ready,
				"degraded":              health.Degraded,
				"degraded_reason_codes": reasonCodes,
			}
			if p.EffectiveSuccessMode() == output.ModePlain {
				_ = printDoctorPlain(cmd.OutOrStdout(), checks, health, reasonCodes)
			} else {
				_ = successWithMeta(ctx, p, ro, checks, meta, health.Notes)
			}
			if !health.Ready && derr != nil {
				return WrapPrinted(6, derr)
			}
			if !health.Ready {
				return Wrap(6, fmt.Errorf("doctor checks not ready"))
			}
			return nil
		},
	}
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show source health and the active runtime configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, src, ro, err := buildContext(cmd, opts, "status")
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(ro)
			defer cancel()
			checks, derr := doctorWithTimeout(ctx, src)
			checks = append(checks, layoutCheck(ro))
			health := buildHealth(checks, derr, src.Path())
			reasonCodes := deriveDegradedReasonCodes(checks, derr)
			res := statusResult{
				Ready:         health.Ready,
				Degraded:      health.Degraded,
				Source:        src.Path(),
				Profile:       ro.Profile,
				TZ:            ro.TZ,
				OutputMode:    string(p.EffectiveSuccessMode()),
				SchemaVersion: ro.SchemaVersion,
				Layout: layoutSummary{
					StartHour: ro.StartHour,
					EndHour:   ro.EndHour,
					RowHeight: ro.RowHeight,
					MinHeight: ro.MinHeight,
					WeekStart: ro.WeekStart,
					MultiDay:  ro.MultiDay,
				},
				Checks:      checks,
				NextSteps:   health.NextSteps,
				ReasonCodes: reasonCodes,
			}
			meta := map[string]any{
				"ready":                 res.Ready,
				"degraded":              res.Degraded,
				"checks":                len(res.Checks),
				"degraded_reason_codes": reasonCodes,
			}
			if p.EffectiveSuccessMode() == output.ModePlain {
				_ = printStatusPlain(cmd.OutOrStdout(), res)
			} else {
				_ = successWithMeta(ctx, p, ro, res, meta, nil)
			}
			if !health.Ready {
				if derr != nil {
					_ = p.Error(contract.ErrSourceUnavailable, derr.Error(), "Run `gridcal doctor` for details")
					return WrapPrinted(6, derr)
				}
				return Wrap(6, fmt.Errorf("status not ready"))
			}
			return nil
		},
	}
}

func newCompletionCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "completion <bash|zsh|fish|powershell>",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := strings.ToLower(args[0])
			switch shell {
			case "bash":
				return root.GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return root.GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return root.GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return root.GenPowerShellCompletion(cmd.OutOrStdout())
			default:
				return Wrap(2, fmt.Errorf("unsupported shell: %s", shell))
			}
		},
	}
}

func layoutCheck(ro *globalOptions) contract.DoctorCheck {
	if _, err := layoutConfig(ro); err != nil {
		return contract.DoctorCheck{Name: "layout_config", Status: "fail", Message: err.Error()}
	}
	return contract.DoctorCheck{
		Name:    "layout_config",
		Status:  "ok",
		Message: fmt.Sprintf("hours %d-%d, row height %g, week starts %s, multi-day %s", ro.StartHour, ro.EndHour, ro.RowHeight, ro.WeekStart, ro.MultiDay),
	}
}

func deriveDegradedReasonCodes(checks []contract.DoctorCheck, derr error) []string {
	codeSet := map[string]struct{}{}
	for _, c := range checks {
		status := strings.ToLower(strings.TrimSpace(c.Status))
		if status == "" || status == "ok" || status == "pass" {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(c.Name))
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, "-", "_")
		if name == "" {
			name = "unknown_check"
		}
		codeSet[name+"_"+status] = struct{}{}
	}
	if derr != nil {
		codeSet["doctor_error"] = struct{}{}
	}
	if len(codeSet) == 0 {
		return nil
	}
	out := make([]string, 0, len(codeSet))
	for code := range codeSet {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func printDoctorPlain(out io.Writer, checks []contract.DoctorCheck, health healthResult, reasonCodes []string) error {
	_, _ = fmt.Fprintf(out, "ready=%t degraded=%t checks=%d\n", health.Ready, health.Degraded, len(checks))
	if len(reasonCodes) > 0 {
		_, _ = fmt.Fprintf(out, "reasons=%s\n", strings.Join(reasonCodes, ","))
	}
	for _, c := range checks {
		_, _ = fmt.Fprintf(out, "[%s] %s: %s\n", c.Status, c.Name, c.Message)
	}
	for _, step := range health.NextSteps {
		_, _ = fmt.Fprintf(out, "next: %s\n", step)
	}
	return nil
}

func printStatusPlain(out io.Writer, res statusResult) error {
	_, _ = fmt.Fprintf(out, "ready=%t degraded=%t source=%s profile=%s output_mode=%s checks=%d\n", res.Ready, res.Degraded, res.Source, res.Profile, res.OutputMode, len(res.Checks))
	_, _ = fmt.Fprintf(out, "layout: hours=%d-%d row_height=%g min_height=%g week_start=%s multi_day=%s\n",
		res.Layout.StartHour, res.Layout.EndHour, res.Layout.RowHeight, res.Layout.MinHeight, res.Layout.WeekStart, res.Layout.MultiDay)
	if len(res.ReasonCodes) > 0 {
		_, _ = fmt.Fprintf(out, "reasons=%s\n", strings.Join(res.ReasonCodes, ","))
	}
	for _, c := range res.Checks {
		_, _ = fmt.Fprintf(out, "[%s] %s: %s\n", c.Status, c.Name, c.Message)
	}
	return nil
}
