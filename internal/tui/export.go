package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Timborini/ticktacktoto-sub000/internal/export"
	"github.com/Timborini/ticktacktoto-sub000/internal/tracker"
	"github.com/Timborini/ticktacktoto-sub000/internal/viewstate"
)

type exportStep int

const (
	pickScope exportStep = iota
	pickFormat
	pickDecision
)

var (
	exportScopes  = []export.Scope{export.ScopeSelected, export.ScopeFiltered, export.ScopeAll}
	exportFormats = []export.Format{export.FormatCSV, export.FormatJSON}
)

var decisionLabels = map[export.Decision]string{
	export.ExportAndSubmit: "Export & mark submitted",
	export.ExportOnly:      "Export only",
	export.Cancel:          "Cancel",
}

// exportPicker walks through scope, format and, when unsubmitted sessions
// are included, the submit confirmation.
type exportPicker struct {
	tr     *tracker.Tracker
	vs     *viewstate.State
	dir    string
	step   exportStep
	cursor int
	scope  export.Scope
	format export.Format
}

func newExportPicker(tr *tracker.Tracker, vs *viewstate.State, dir string) exportPicker {
	p := exportPicker{tr: tr, vs: vs, dir: dir}
	// Default to the selection when there is one.
	if vs.SelectedCount() == 0 {
		p.cursor = 1
	}
	return p
}

func (p exportPicker) options() []string {
	switch p.step {
	case pickScope:
		return []string{
			fmt.Sprintf("Selected (%d)", p.vs.SelectedCount()),
			"Filtered view",
			"All logs",
		}
	case pickFormat:
		return []string{"CSV", "JSON"}
	default:
		out := make([]string, len(export.Decisions))
		for i, d := range export.Decisions {
			out[i] = decisionLabels[d]
		}
		return out
	}
}

// update handles a key. done is true once the picker should close.
func (p exportPicker) update(msg tea.KeyMsg) (exportPicker, tea.Cmd, bool) {
	switch {
	case key.Matches(msg, keys.Up):
		if p.cursor > 0 {
			p.cursor--
		}
	case key.Matches(msg, keys.Down):
		if p.cursor < len(p.options())-1 {
			p.cursor++
		}
	case key.Matches(msg, keys.Back):
		p.vs.ClearPendingExport()
		return p, nil, true
	case key.Matches(msg, keys.Enter):
		return p.choose()
	}
	return p, nil, false
}

func (p exportPicker) choose() (exportPicker, tea.Cmd, bool) {
	switch p.step {
	case pickScope:
		p.scope = exportScopes[p.cursor]
		if p.scope == export.ScopeSelected && p.vs.SelectedCount() == 0 {
			return p, statusCmd("Nothing selected", true), false
		}
		p.step, p.cursor = pickFormat, 0
		return p, nil, false

	case pickFormat:
		p.format = exportFormats[p.cursor]
		plan := p.tr.PlanExport(p.scope, p.format, p.vs.Criteria(p.tr.Location()), p.vs.Selection())
		if len(plan.Sessions) == 0 {
			return p, statusCmd("No finished sessions to export", true), true
		}
		if !plan.NeedsConfirmation() {
			return p, p.save(plan, export.ExportOnly), true
		}
		p.vs.SetPendingExport(plan)
		p.step, p.cursor = pickDecision, 0
		return p, nil, false

	default:
		d := export.Decisions[p.cursor]
		plan := p.vs.PendingExport
		p.vs.ClearPendingExport()
		if d == export.Cancel || plan == nil {
			return p, statusCmd("Export cancelled", false), true
		}
		return p, p.save(*plan, d), true
	}
}

func (p exportPicker) save(plan export.Plan, d export.Decision) tea.Cmd {
	tr, dir := p.tr, p.dir
	return func() tea.Msg {
		path, err := tr.SaveExport(context.Background(), plan, d, dir)
		if err != nil {
			return actionMsg{err: err}
		}
		return exportDoneMsg{path: path}
	}
}

func statusCmd(text string, isError bool) tea.Cmd {
	return func() tea.Msg { return statusMsg{text: text, isError: isError} }
}

func (p exportPicker) view(w int) string {
	var title, hint string
	switch p.step {
	case pickScope:
		title = "Export: which sessions?"
	case pickFormat:
		title = "Export " + string(p.scope) + " as"
	default:
		title = "Export"
		if plan := p.vs.PendingExport; plan != nil {
			hint = warningStyle.Render(fmt.Sprintf("%d of %s not submitted yet.",
				plan.Unsubmitted(), plural(len(plan.Sessions), "session")))
		}
	}

	rows := []string{titleStyle.Render(title), ""}
	if hint != "" {
		rows = append(rows, hint, "")
	}
	for i, opt := range p.options() {
		cursor := "  "
		style := normalItemStyle
		if i == p.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+opt))
	}
	rows = append(rows, "", mutedStyle.Render("  enter: choose  esc: cancel"))

	return activePanelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
