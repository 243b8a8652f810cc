package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/groundlink/internal/counters"
	"github.com/muurk/groundlink/internal/discovery"
)

// Param is one key/value line in a header.
type Param struct {
	Key   string
	Value string
}

// Header is a command banner with title, command and parameters.
type Header struct {
	Title   string
	Command string
	Params  []Param
	Width   int
}

// NewHeader creates a header sized to the terminal.
func NewHeader(title, command string, params ...Param) *Header {
	return &Header{
		Title:   title,
		Command: command,
		Params:  params,
		Width:   GetTerminalWidth(),
	}
}

// Render returns the styled header
func (h *Header) Render() string {
	width := clampWidth(h.Width)

	top := lipgloss.JoinVertical(lipgloss.Left,
		HeaderTitleStyle.Render(strings.ToUpper(h.Title)),
		HeaderCommandStyle.Render(h.Command),
	)

	content := top
	if len(h.Params) > 0 {
		keyWidth := 0
		for _, p := range h.Params {
			keyWidth = max(keyWidth, len(p.Key)+1)
		}
		lines := make([]string, 0, len(h.Params))
		for _, p := range h.Params {
			k := HeaderParamKeyStyle.Render(fmt.Sprintf("%-*s", keyWidth, p.Key+":"))
			lines = append(lines, k+" "+HeaderParamValueStyle.Render(p.Value))
		}
		divider := lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Render(strings.Repeat("─", max(width-6, 10)))
		content = lipgloss.JoinVertical(lipgloss.Left, top, divider, strings.Join(lines, "\n"))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(content)
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}

// FormatRate formats a loss rate as a percentage.
func FormatRate(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

// RenderSourceSummary renders lifetime counters per source system.
func RenderSourceSummary(snaps []counters.Snapshot) string {
	if len(snaps) == 0 {
		return MutedStyle.Render("  No MAVLink traffic decoded.")
	}

	sorted := append([]counters.Snapshot(nil), snaps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Source < sorted[j].Source })

	var b strings.Builder
	b.WriteString(SectionTitleStyle.Render(fmt.Sprintf("  %-8s %12s %10s %8s", "SYSID", "RECEIVED", "LOST", "LOSS")))
	for _, s := range sorted {
		rate := s.LossRate()
		fmt.Fprintf(&b, "\n  %-8d %12d %10d %8s",
			s.Source, s.Received, s.Lost, RateStyle(rate).Render(fmt.Sprintf("%7s", FormatRate(rate))))
	}
	return b.String()
}

// RenderEndpoints renders the result of a discovery scan.
func RenderEndpoints(eps []*discovery.Endpoint) string {
	if len(eps) == 0 {
		return MutedStyle.Render("  No groundlink stations found.")
	}

	var b strings.Builder
	b.WriteString(SectionTitleStyle.Render(fmt.Sprintf("  %-24s %-26s %s", "INSTANCE", "LINK", "SYSID")))
	for _, ep := range eps {
		sysid := "-"
		if id, ok := ep.SystemID(); ok {
			sysid = fmt.Sprint(id)
		}
		fmt.Fprintf(&b, "\n  %-24s %-26s %s", ep.Instance, ep.LinkSpec(), sysid)
	}
	return b.String()
}

// RenderError renders an error line.
func RenderError(err error) string {
	return ErrorMessageStyle.Render("✗ " + err.Error())
}
