package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Timborini/ticktacktoto-sub000/internal/export"
	"github.com/Timborini/ticktacktoto-sub000/internal/format"
	"github.com/Timborini/ticktacktoto-sub000/internal/logs"
	"github.com/Timborini/ticktacktoto-sub000/internal/tracker"
	"github.com/Timborini/ticktacktoto-sub000/internal/viewstate"
)

// chartTickets caps the number of bars; the rest are folded into "other".
const chartTickets = 8

// writeClipboard is swapped out in tests.
var writeClipboard = clipboard.WriteAll

// reportsModel charts per-ticket time of the current Logs filters and shows
// the report draft prompt for it.
type reportsModel struct {
	tr      *tracker.Tracker
	vs      *viewstate.State
	profile func() export.Profile
	width   int
	height  int

	result logs.Result
	draft  string
	err    error

	chart barchart.Model
}

func newReportsModel(tr *tracker.Tracker, vs *viewstate.State, profile func() export.Profile) reportsModel {
	if profile == nil {
		profile = func() export.Profile { return export.Profile{} }
	}
	return reportsModel{
		tr:      tr,
		vs:      vs,
		profile: profile,
		chart:   barchart.New(60, 12),
	}
}

func (r *reportsModel) setSize(w, h int) {
	r.width = w
	r.height = h
	r.buildChart()
}

func (r *reportsModel) refresh() {
	criteria := r.vs.Criteria(r.tr.Location())
	r.result = r.tr.View(criteria)
	r.draft, r.err = r.tr.Report(criteria, nil, r.profile())
	r.buildChart()
}

func (r reportsModel) update(msg tea.Msg) (reportsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		r.refresh()
		return r, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Copy) {
			return r, r.copyDraft()
		}
	}
	return r, nil
}

func (r reportsModel) copyDraft() tea.Cmd {
	draft := r.draft
	if r.err != nil || len(r.result.Groups) == 0 {
		return func() tea.Msg {
			return statusMsg{text: "Nothing to report for the current filters", isError: true}
		}
	}
	return func() tea.Msg {
		if err := writeClipboard(draft); err != nil {
			return statusMsg{text: fmt.Sprintf("Clipboard unavailable: %v", err), isError: true}
		}
		return statusMsg{text: "Report draft copied to clipboard"}
	}
}

func (r *reportsModel) buildChart() {
	chartWidth := max(20, r.width-8)
	chartHeight := 12
	if r.height > 40 {
		chartHeight = 16
	}

	r.chart = barchart.New(chartWidth, chartHeight)

	var bars []barchart.BarData
	var otherMs int64
	for i, g := range r.result.Groups {
		if i >= chartTickets {
			otherMs += g.TotalMs
			continue
		}
		style := lipgloss.NewStyle().Foreground(ticketPalette[i%len(ticketPalette)])
		bars = append(bars, barchart.BarData{
			Label:  chartLabel(g.TicketID),
			Values: []barchart.BarValue{{Name: g.TicketID, Value: hours(g.TotalMs), Style: style}},
		})
	}
	if otherMs > 0 {
		bars = append(bars, barchart.BarData{
			Label:  "other",
			Values: []barchart.BarValue{{Name: "other", Value: hours(otherMs), Style: mutedStyle}},
		})
	}
	if len(bars) == 0 {
		return
	}

	r.chart.PushAll(bars)
	r.chart.Draw()
}

func hours(ms int64) float64 {
	return float64(ms) / 3_600_000
}

func chartLabel(ticketID string) string {
	const maxLabel = 10
	if len([]rune(ticketID)) <= maxLabel {
		return ticketID
	}
	return string([]rune(ticketID)[:maxLabel-1]) + "…"
}

func (r reportsModel) view() string {
	w := r.width - 4

	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Reports"), "  ",
		highlightStyle.Render(format.Duration(r.result.TotalMs)), "  ",
		mutedStyle.Render(fmt.Sprintf("%d tickets, status: %s", len(r.result.Groups), r.vs.Status)),
	)

	if len(r.result.Groups) == 0 {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			header, "", mutedStyle.Render("  No data for the current filters"),
		))
	}

	draft := r.draft
	if r.err != nil {
		draft = errorStyle.Render(r.err.Error())
	}

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header, "",
			r.chart.View(), "",
			r.renderTable(w), "",
			titleStyle.Render("Report draft"),
			mutedStyle.Render(draft),
			mutedStyle.Render("  y: copy draft  (filters are set on the Logs view)"),
		),
	)
}

func (r reportsModel) renderTable(w int) string {
	rows := []string{
		mutedStyle.Render(fmt.Sprintf("  %-24s %10s %8s %9s", "Ticket", "Duration", "Hours", "Sessions")),
		mutedStyle.Render("  " + strings.Repeat("─", min(w-6, 54))),
	}
	for i, g := range r.result.Groups {
		dot := lipgloss.NewStyle().Foreground(ticketPalette[i%len(ticketPalette)]).Render("●")
		rows = append(rows, fmt.Sprintf("  %s %-22s %10s %8s %9d",
			dot, g.TicketID, format.Duration(g.TotalMs), format.Hours(g.TotalMs), len(g.Sessions)))
	}
	return strings.Join(rows, "\n")
}
