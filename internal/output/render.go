package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/agis/gridcal/internal/contract"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"github.com/ncruces/go-strftime"
)

const (
	DefaultTimeFormat = "%H:%M"
	DefaultWidth      = 48
	dateFormat        = "%a %Y-%m-%d"
)

// theme holds the plain output styles. Every style is the identity when
// output is not a terminal.
type theme struct {
	heading func(string) string
	dim     func(string) string
	accent  func(string) string
	now     func(string) string
	alert   func(string) string
	warn    func(string) string
}

func (p Printer) theme() theme {
	if !p.Colorful() {
		id := func(s string) string { return s }
		return theme{heading: id, dim: id, accent: id, now: id, alert: id, warn: id}
	}
	return theme{
		heading: style(lipgloss.NewStyle().Bold(true)),
		dim:     style(lipgloss.NewStyle().Foreground(lipgloss.Color("241"))),
		accent:  style(lipgloss.NewStyle().Foreground(lipgloss.Color("39"))),
		now:     style(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)),
		alert:   style(lipgloss.NewStyle().Foreground(lipgloss.Color("196"))),
		warn:    style(lipgloss.NewStyle().Foreground(lipgloss.Color("220"))),
	}
}

func style(st lipgloss.Style) func(string) string {
	return func(s string) string { return st.Render(s) }
}

func (p Printer) clock(t time.Time) string {
	return strftime.Format(firstNonEmpty(p.TimeFormat, DefaultTimeFormat), t)
}

func (p Printer) title(s string) string {
	w := p.Width
	if w <= 0 {
		w = DefaultWidth
	}
	if s == "" {
		s = "(untitled)"
	}
	return truncate.StringWithTail(s, uint(w), "…")
}

// RenderDay writes a day layout as one line per placed event. ind may be
// nil when no current time marker applies.
func (p Printer) RenderDay(l contract.DayLayout, ind *contract.TimeIndicator) error {
	th := p.theme()
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", th.heading(strftime.Format(dateFormat, l.Date)), th.dim(columnsLabel(l.Columns)))
	for _, e := range l.AllDay {
		fmt.Fprintf(&b, "  %-13s %s\n", th.accent("all-day"), p.title(e.Title))
	}
	p.writeTimed(&b, l.Timed, ind, 0)
	if len(l.AllDay) == 0 && len(l.Timed) == 0 && !p.Quiet {
		fmt.Fprintf(&b, "  %s\n", th.dim("no events"))
	}
	_, err := fmt.Fprint(p.out(), b.String())
	return err
}

// RenderWeek writes spanning bars first, then each day column.
func (p Printer) RenderWeek(w contract.WeekLayout, ind *contract.TimeIndicator) error {
	th := p.theme()
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", th.heading("week of "+strftime.Format(dateFormat, w.Start)), th.dim(fmt.Sprintf("%d all-day", len(w.AllDay))))
	for _, bar := range w.AllDay {
		fmt.Fprintf(&b, "  %s %s\n", barCells(bar, len(w.Days)), p.title(bar.Event.Title))
	}
	for _, d := range w.Days {
		fmt.Fprintf(&b, "%s  %s\n", th.heading(strftime.Format(dateFormat, d.Date)), th.dim(columnsLabel(d.Columns)))
		p.writeTimed(&b, d.Timed, ind, d.Index)
	}
	_, err := fmt.Fprint(p.out(), b.String())
	return err
}

func (p Printer) writeTimed(b *strings.Builder, items []contract.PositionedEvent, ind *contract.TimeIndicator, dayIndex int) {
	th := p.theme()
	marked := ind == nil || !ind.Visible || ind.DayIndex != dayIndex
	for _, pe := range items {
		if !marked && !ind.Now.After(pe.Start) {
			p.writeNowLine(b, *ind)
			marked = true
		}
		span := fmt.Sprintf("%s-%s", p.clock(pe.Start), p.clock(pe.End))
		geo := fmt.Sprintf("col %d  top %.1f  h %.1f  x %.3f  w %.3f", pe.Column, pe.Top, pe.Height, pe.Left, pe.Width)
		fmt.Fprintf(b, "  %-13s %s  %s\n", span, p.title(pe.Event.Title), th.dim(geo))
	}
	if !marked {
		p.writeNowLine(b, *ind)
	}
}

func (p Printer) writeNowLine(b *strings.Builder, ind contract.TimeIndicator) {
	th := p.theme()
	fmt.Fprintf(b, "  %s\n", th.now(fmt.Sprintf("── now %s (%.1f%%) ──", p.clock(ind.Now), ind.Position)))
}

// RenderIndicator writes the current time marker state on one line.
func (p Printer) RenderIndicator(ind contract.TimeIndicator) error {
	th := p.theme()
	state := th.now("visible")
	if !ind.Visible {
		state = th.dim("hidden")
	}
	_, err := fmt.Fprintf(p.out(), "%s  %s  position=%.2f%%  day=%d\n", p.clock(ind.Now), state, ind.Position, ind.DayIndex)
	return err
}

// RenderEvents lists events with their distance from the printer's clock.
// Descriptions are wrapped under the title when verbose is set.
func (p Printer) RenderEvents(events []contract.Event, verbose bool) error {
	th := p.theme()
	if len(events) == 0 {
		if !p.Quiet {
			_, _ = fmt.Fprintln(p.out(), "no results")
		}
		return nil
	}
	now := p.now()
	var b strings.Builder
	for _, e := range events {
		when := strftime.Format(dateFormat, e.Start) + " " + p.clock(e.Start)
		if e.AllDay {
			when = strftime.Format(dateFormat, e.Start) + " all-day"
		}
		rel := humanize.RelTime(e.Start, now, "ago", "from now")
		fmt.Fprintf(&b, "%s  %s  %s\n", th.accent(when), p.title(e.Title), th.dim(rel))
		if e.Location != "" {
			fmt.Fprintf(&b, "    @ %s\n", e.Location)
		}
		if verbose && strings.TrimSpace(e.Description) != "" {
			width := p.Width
			if width <= 0 {
				width = DefaultWidth
			}
			wrapped := wordwrap.String(strings.TrimSpace(e.Description), width)
			fmt.Fprintln(&b, indent.String(wrapped, 4))
		}
	}
	_, err := fmt.Fprint(p.out(), b.String())
	return err
}

func columnsLabel(n int) string {
	if n == 1 {
		return "1 column"
	}
	return fmt.Sprintf("%d columns", n)
}

// barCells draws a bar across days day cells: '<' and '>' mark a bar that
// continues past the week, '=' covers a day.
func barCells(bar contract.SpanningBar, days int) string {
	if days <= 0 {
		return "[]"
	}
	cells := make([]byte, days)
	for i := range cells {
		cells[i] = '.'
	}
	for i := bar.StartIndex; i <= bar.EndIndex && i < days; i++ {
		if i >= 0 {
			cells[i] = '='
		}
	}
	if bar.ContinuesBefore && bar.StartIndex == 0 {
		cells[0] = '<'
	}
	if bar.ContinuesAfter && bar.EndIndex == days-1 {
		cells[days-1] = '>'
	}
	return "[" + string(cells) + "]"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
