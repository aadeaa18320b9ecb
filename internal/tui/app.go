package tui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Timborini/ticktacktoto-sub000/internal/tracker"
	"github.com/Timborini/ticktacktoto-sub000/internal/viewstate"
)

// App is the root Bubble Tea model.
type App struct {
	tr        *tracker.Tracker
	prefs     Preferences
	vs        *viewstate.State
	exportDir string
	updates   <-chan tracker.Update

	width  int
	height int

	activeView    viewState
	showHelp      bool
	firstVisit    bool
	exportPicking bool
	picker        exportPicker

	dashboard dashboardModel
	logs      logsModel
	reports   reportsModel
	settings  settingsModel

	help     help.Model
	status   string
	isError  bool
	toast    string
	toastID  int
	banner   string
	watching bool
}

// NewApp builds the root model over tr. Updates are consumed until ctx ends.
func NewApp(ctx context.Context, tr *tracker.Tracker, p Preferences, exportDir string) App {
	h := help.New()
	vs := viewstate.New()

	a := App{
		tr:        tr,
		prefs:     p,
		vs:        &vs,
		exportDir: exportDir,
		updates:   tr.Watch(ctx),
		help:      h,
		banner:    tr.Banner(),
		watching:  true,
	}
	a.dashboard = newDashboardModel(tr, p.RecentTickets)
	a.logs = newLogsModel(tr, a.vs)
	a.settings = newSettingsModel(tr, p, exportDir)
	a.reports = newReportsModel(tr, a.vs, a.settings.profile)
	a.reports.refresh()

	if !p.Visited() {
		a.firstVisit = true
		a.showHelp = true
		a.help.ShowAll = true
	}
	return a
}

func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForUpdate(a.updates)}
	if a.firstVisit {
		p := a.prefs
		cmds = append(cmds, func() tea.Msg {
			if err := p.MarkVisited(); err != nil {
				return statusMsg{text: "Could not save preferences: " + err.Error(), isError: true}
			}
			return nil
		})
	}
	return tea.Batch(cmds...)
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.dashboard.setSize(a.width, contentHeight)
		a.logs.setSize(a.width, contentHeight)
		a.reports.setSize(a.width, contentHeight)
		a.settings.setSize(a.width, contentHeight)
		return a, nil

	case tea.KeyMsg:
		if a.exportPicking {
			picker, cmd, done := a.picker.update(msg)
			a.picker = picker
			if done {
				a.exportPicking = false
			}
			return a, cmd
		}

		// If a child view is capturing input (e.g. form), delegate first.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		case key.Matches(msg, keys.Back) && a.banner != "":
			a.banner = ""
			a.tr.DismissBanner()
			return a, nil
		case key.Matches(msg, keys.Export):
			a.exportPicking = true
			a.picker = newExportPicker(a.tr, a.vs, a.exportDir)
			return a, nil
		case key.Matches(msg, keys.Tab1):
			return a.switchTo(viewTimer), nil
		case key.Matches(msg, keys.Tab2):
			return a.switchTo(viewLogs), nil
		case key.Matches(msg, keys.Tab3):
			return a.switchTo(viewReports), nil
		case key.Matches(msg, keys.Tab4):
			return a.switchTo(viewSettings), nil
		case key.Matches(msg, keys.Tab):
			return a.switchTo((a.activeView + 1) % viewState(len(viewNames))), nil
		}

	case updateMsg:
		return a.applyUpdate(msg)

	case watchClosedMsg:
		a.watching = false
		return a, nil

	case actionMsg:
		if msg.err != nil {
			a.setStatus(errorText(msg.err), true)
		} else if msg.text != "" {
			a.setStatus(msg.text, false)
		}
		if msg.clearSelection {
			a.vs.ClearSelection()
			a.logs.refresh()
			a.reports.refresh()
		}
		return a, nil

	case statusMsg:
		a.setStatus(msg.text, msg.isError)
		return a, nil

	case exportDoneMsg:
		a.exportPicking = false
		if msg.path != "" {
			a.setStatus("Exported to "+msg.path, false)
		}
		return a, nil

	case clearToastMsg:
		if msg.id == a.toastID {
			a.toast = ""
		}
		return a, nil
	}

	return a.updateActiveView(msg)
}

// applyUpdate routes a tracker update to every view, since all of them
// render from the same cache.
func (a App) applyUpdate(u updateMsg) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{waitForUpdate(a.updates)}
	a.banner = u.Banner

	var cmd tea.Cmd
	a.dashboard, cmd = a.dashboard.update(u)
	cmds = append(cmds, cmd)
	a.logs, cmd = a.logs.update(u)
	cmds = append(cmds, cmd)
	a.reports, cmd = a.reports.update(u)
	cmds = append(cmds, cmd)

	if len(u.Notices) > 0 {
		a.toastID++
		a.toast = strings.Join(u.Notices, "  ")
		cmds = append(cmds, clearToastAfter(a.toastID))
	}
	return a, tea.Batch(cmds...)
}

func (a *App) setStatus(text string, isError bool) {
	a.status = text
	a.isError = isError
}

func (a App) switchTo(v viewState) App {
	a.activeView = v
	switch v {
	case viewLogs:
		a.logs.refresh()
	case viewReports:
		a.reports.refresh()
	}
	return a
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewTimer:
		a.dashboard, cmd = a.dashboard.update(msg)
	case viewLogs:
		a.logs, cmd = a.logs.update(msg)
	case viewReports:
		a.reports, cmd = a.reports.update(msg)
	case viewSettings:
		a.settings, cmd = a.settings.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch a.activeView {
	case viewTimer:
		return a.dashboard.formActive || a.dashboard.editingNote
	case viewLogs:
		return a.logs.inputActive()
	case viewSettings:
		return a.settings.formActive
	}
	return false
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch a.activeView {
	case viewTimer:
		content = a.dashboard.view()
	case viewLogs:
		content = a.logs.view()
	case viewReports:
		content = a.reports.view()
	case viewSettings:
		content = a.settings.view()
	}
	if a.exportPicking {
		content = a.picker.view(a.width - 4)
	}

	parts := []string{header}
	if a.banner != "" {
		parts = append(parts, bannerStyle.Width(a.width).Render(a.banner+"  (esc to dismiss)"))
	}

	headerHeight := lipgloss.Height(lipgloss.JoinVertical(lipgloss.Left, parts...))
	contentHeight := max(1, a.height-headerHeight-lipgloss.Height(footer))

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	parts = append(parts, content, footer)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(label))
		}
	}

	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	name := "ticktack"
	if a.tr.Scope().Shared() {
		name += " · shared"
	}
	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render(name)
	gap := max(1, a.width-lipgloss.Width(title)-lipgloss.Width(tabRow)-4)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow),
	)
}

func (a App) renderFooter() string {
	helpView := a.help.View(keys)

	var right string
	if a.tr.Busy() {
		right += mutedStyle.Render(" saving…")
	}
	if !a.watching {
		right += errorStyle.Render(" offline")
	}
	if a.dashboard.isRunning() {
		right += successStyle.Render(" ● " + formatDuration(a.dashboard.elapsed()))
	} else if a.dashboard.isPaused() {
		right += warningStyle.Render(" ⏸ " + formatDuration(a.dashboard.elapsed()))
	}
	if a.toast != "" {
		right += " " + toastStyle.Render(a.toast)
	}
	if a.status != "" {
		if a.isError {
			right += errorStyle.Render(" " + a.status)
		} else {
			right += mutedStyle.Render(" " + a.status)
		}
	}

	left := footerStyle.Render(helpView)
	gap := max(1, a.width-lipgloss.Width(left)-lipgloss.Width(right)-2)
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

// OpenLog redirects the standard logger to path and returns the file so
// structured handlers can write to it too. The screen stays clean.
func OpenLog(path string) (*os.File, error) {
	f, err := tea.LogToFile(path, "ticktack")
	if err != nil {
		return nil, fmt.Errorf("open tui log: %w", err)
	}
	return f, nil
}

// Run starts the program on the alternate screen and blocks until the user
// quits or ctx ends.
func Run(ctx context.Context, tr *tracker.Tracker, p Preferences, exportDir string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(NewApp(ctx, tr, p, exportDir), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
