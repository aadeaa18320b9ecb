package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/Timborini/ticktacktoto-sub000/internal/export"
	"github.com/Timborini/ticktacktoto-sub000/internal/format"
	"github.com/Timborini/ticktacktoto-sub000/internal/sanitize"
	"github.com/Timborini/ticktacktoto-sub000/internal/tracker"
)

// Preferences is the device-local state the TUI reads and writes.
type Preferences interface {
	ProfileTitle() string
	ProfileRole() string
	SetProfile(title, role string) error
	RecentTickets() []string
	Visited() bool
	MarkVisited() error
}

type settingsModel struct {
	tr        *tracker.Tracker
	prefs     Preferences
	exportDir string
	width     int
	height    int

	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	title *string
	role  *string
}

func newSettingsModel(tr *tracker.Tracker, p Preferences, exportDir string) settingsModel {
	title, role := "", ""
	return settingsModel{
		tr:        tr,
		prefs:     p,
		exportDir: exportDir,
		title:     &title,
		role:      &role,
	}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

// profile returns the saved report profile with defaults filled in.
func (s settingsModel) profile() export.Profile {
	p := export.Profile{Title: s.prefs.ProfileTitle(), Role: s.prefs.ProfileRole()}
	if p.Title == "" {
		p.Title = export.DefaultTitle
	}
	if p.Role == "" {
		p.Role = export.DefaultRole
	}
	return p
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	if msg, ok := msg.(tea.KeyMsg); ok && (key.Matches(msg, keys.Enter) || key.Matches(msg, keys.Edit)) {
		return s.showForm()
	}
	return s, nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	*s.title = s.prefs.ProfileTitle()
	*s.role = s.prefs.ProfileRole()

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Your job title").
				Placeholder(export.DefaultTitle).
				CharLimit(sanitize.MaxTitleLen).
				Value(s.title),
			huh.NewInput().Title("Report audience").
				Placeholder(export.DefaultRole).
				CharLimit(sanitize.MaxTitleLen).
				Value(s.role),
		).Title("Report profile"),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			s.formActive = false
			s.form = nil
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	switch s.form.State {
	case huh.StateCompleted:
		s.formActive = false
		s.form = nil
		title, role := sanitize.Title(*s.title), sanitize.Title(*s.role)
		p := s.prefs
		return s, func() tea.Msg {
			if err := p.SetProfile(title, role); err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{text: "Profile saved"}
		}
	case huh.StateAborted:
		s.formActive = false
		s.form = nil
		return s, nil
	}

	return s, cmd
}

func (s settingsModel) view() string {
	w := s.width - 4

	if s.formActive && s.form != nil {
		title := titleStyle.Render("Settings")
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", s.form.View()),
		)
	}

	p := s.profile()
	scope := s.tr.Scope()
	scopeText := "personal"
	if scope.Shared() {
		scopeText = "shared log " + scope.ID
	}

	rows := []string{
		titleStyle.Render("Settings"),
		"",
		settingRow("Job title", p.Title),
		settingRow("Report audience", p.Role),
		settingRow("Log", scopeText),
		settingRow("Max segment", format.Duration(s.tr.MaxSegment().Milliseconds())),
		settingRow("Time zone", s.tr.Location().String()),
		settingRow("Export folder", s.exportDir),
	}
	if recent := s.prefs.RecentTickets(); len(recent) > 0 {
		rows = append(rows, settingRow("Recent tickets", strings.Join(recent, ", ")))
	}
	rows = append(rows, "", mutedStyle.Render("Press enter to edit the report profile"))

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func settingRow(label, value string) string {
	l := lipgloss.NewStyle().Width(18).Render(label)
	return fmt.Sprintf("  %s %s", l, highlightStyle.Render(value))
}
