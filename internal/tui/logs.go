package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/Timborini/ticktacktoto-sub000/internal/format"
	"github.com/Timborini/ticktacktoto-sub000/internal/logs"
	"github.com/Timborini/ticktacktoto-sub000/internal/sanitize"
	"github.com/Timborini/ticktacktoto-sub000/internal/tracker"
	"github.com/Timborini/ticktacktoto-sub000/internal/viewstate"
)

type logsForm int

const (
	formNone logsForm = iota
	formEdit
	formRename
	formDates
	formDelete
)

// logRow is one line of the list: a ticket group, or one of its sessions
// when the group is expanded.
type logRow struct {
	group   int
	session int // -1 for the group row
}

type logsModel struct {
	tr     *tracker.Tracker
	vs     *viewstate.State
	width  int
	height int

	result logs.Result
	rows   []logRow
	cursor int

	searching bool
	search    textinput.Model

	formActive bool
	form       *huh.Form
	formType   logsForm

	// Form field pointers (survive value copies)
	fTicket   *string
	fNote     *string
	fDuration *string
	fStart    *string
	fEnd      *string
	fConfirm  *bool

	renameFrom string
	deleteIDs  []string
}

func newLogsModel(tr *tracker.Tracker, vs *viewstate.State) logsModel {
	ticket, note, dur, start, end, confirm := "", "", "", "", "", false
	si := textinput.New()
	si.Placeholder = "Search ticket IDs"
	si.CharLimit = sanitize.MaxTicketIDLen
	si.Width = 40

	m := logsModel{
		tr:        tr,
		vs:        vs,
		search:    si,
		fTicket:   &ticket,
		fNote:     &note,
		fDuration: &dur,
		fStart:    &start,
		fEnd:      &end,
		fConfirm:  &confirm,
	}
	m.refresh()
	return m
}

func (m *logsModel) setSize(w, h int) {
	m.width = w
	m.height = h
}

// refresh reruns the pipeline over the tracker cache and rebuilds the rows.
func (m *logsModel) refresh() {
	m.result = m.tr.View(m.vs.Criteria(m.tr.Location()))
	m.rows = nil
	for gi, g := range m.result.Groups {
		m.rows = append(m.rows, logRow{group: gi, session: -1})
		if m.vs.Expanded[g.TicketID] {
			for si := range g.Sessions {
				m.rows = append(m.rows, logRow{group: gi, session: si})
			}
		}
	}
	if m.cursor >= len(m.rows) {
		m.cursor = max(0, len(m.rows)-1)
	}
}

func (m logsModel) inputActive() bool {
	return m.formActive || m.searching
}

func (m logsModel) update(msg tea.Msg) (logsModel, tea.Cmd) {
	if _, ok := msg.(updateMsg); ok {
		m.refresh()
		if !m.formActive {
			return m, nil
		}
	}
	if m.formActive && m.form != nil {
		return m.updateForm(msg)
	}
	if m.searching {
		return m.updateSearch(msg)
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		return m.updateList(msg)
	}
	return m, nil
}

func (m logsModel) updateList(msg tea.KeyMsg) (logsModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Enter):
		if g, ok := m.currentGroup(); ok {
			m.vs.ToggleExpanded(g.TicketID)
			m.refresh()
		}
	case key.Matches(msg, keys.Select):
		m.toggleSelection()
	case key.Matches(msg, keys.Back):
		m.vs.ClearSelection()
	case key.Matches(msg, keys.Search):
		m.searching = true
		m.search.SetValue(m.vs.Search)
		m.search.Focus()
		return m, textinput.Blink
	case key.Matches(msg, keys.Status):
		m.vs.SetStatus(nextStatus(m.vs.Status))
		m.refresh()
	case key.Matches(msg, keys.Clear):
		m.vs.ClearFilters()
		m.refresh()
	case key.Matches(msg, keys.Dates):
		return m.showDatesForm()
	case key.Matches(msg, keys.Submit):
		return m, m.setSubmitted(true)
	case key.Matches(msg, keys.Unsubmit):
		return m, m.setSubmitted(false)
	case key.Matches(msg, keys.Delete):
		return m.showDeleteForm()
	case key.Matches(msg, keys.Close):
		return m, m.toggleClosed()
	case key.Matches(msg, keys.Rename):
		return m.showRenameForm()
	case key.Matches(msg, keys.Edit):
		return m.showEditForm()
	}
	return m, nil
}

func (m logsModel) updateSearch(msg tea.Msg) (logsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Back):
			m.searching = false
			m.search.Blur()
			return m, nil
		case key.Matches(msg, keys.Enter):
			m.searching = false
			m.search.Blur()
			m.vs.SetSearch(m.search.Value())
			m.refresh()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func nextStatus(cur logs.StatusFilter) logs.StatusFilter {
	for i, s := range logs.StatusFilters {
		if s == cur {
			return logs.StatusFilters[(i+1)%len(logs.StatusFilters)]
		}
	}
	return logs.StatusAll
}

func (m logsModel) currentRow() (logRow, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return logRow{}, false
	}
	return m.rows[m.cursor], true
}

func (m logsModel) currentGroup() (logs.Group, bool) {
	row, ok := m.currentRow()
	if !ok {
		return logs.Group{}, false
	}
	return m.result.Groups[row.group], true
}

func (m *logsModel) toggleSelection() {
	row, ok := m.currentRow()
	if !ok {
		return
	}
	g := m.result.Groups[row.group]
	if row.session < 0 {
		m.vs.ToggleTicket(g.TicketID)
		return
	}
	m.vs.ToggleSession(g.Sessions[row.session].ID)
}

// targetIDs is the selection, or the row under the cursor when nothing is
// selected.
func (m logsModel) targetIDs() []string {
	if m.vs.SelectedCount() > 0 {
		return m.tr.SelectedIDs(m.vs.Selection())
	}
	row, ok := m.currentRow()
	if !ok {
		return nil
	}
	g := m.result.Groups[row.group]
	if row.session >= 0 {
		return []string{g.Sessions[row.session].ID}
	}
	ids := make([]string, 0, len(g.Sessions))
	for _, s := range g.Sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

func (m logsModel) setSubmitted(submitted bool) tea.Cmd {
	ids := m.targetIDs()
	if len(ids) == 0 {
		return nil
	}
	return func() tea.Msg {
		n, err := m.tr.SetSubmitted(context.Background(), ids, submitted)
		if err != nil {
			return actionMsg{err: err}
		}
		verb := "Marked %s submitted"
		if !submitted {
			verb = "Marked %s unsubmitted"
		}
		return actionMsg{text: fmt.Sprintf(verb, plural(n, "session")), clearSelection: true}
	}
}

func (m logsModel) toggleClosed() tea.Cmd {
	g, ok := m.currentGroup()
	if !ok {
		return nil
	}
	ticket := g.TicketID
	if g.Closed {
		return runAction("Reopened "+ticket, func(ctx context.Context) error {
			return m.tr.ReopenTicket(ctx, ticket)
		})
	}
	return runAction("Closed "+ticket, func(ctx context.Context) error {
		return m.tr.CloseTicket(ctx, ticket)
	})
}

func (m logsModel) showEditForm() (logsModel, tea.Cmd) {
	row, ok := m.currentRow()
	if !ok || row.session < 0 {
		return m, func() tea.Msg {
			return statusMsg{text: "Expand a ticket (enter) and pick a session to edit", isError: true}
		}
	}
	m.vs.BeginEdit(m.result.Groups[row.group].Sessions[row.session])
	*m.fTicket = m.vs.Edit.TicketID
	*m.fNote = m.vs.Edit.Note
	*m.fDuration = m.vs.Edit.Duration
	m.formType = formEdit

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Ticket ID").Value(m.fTicket).Validate(requireTicket),
			huh.NewText().Title("Note").CharLimit(sanitize.MaxNoteLen).Value(m.fNote),
			huh.NewInput().Title("Duration (HH:MM:SS)").Value(m.fDuration).Validate(func(s string) error {
				_, err := format.ParseDuration(s)
				return err
			}),
		),
	).WithShowHelp(true).WithShowErrors(true)

	m.formActive = true
	return m, m.form.Init()
}

func (m logsModel) showRenameForm() (logsModel, tea.Cmd) {
	g, ok := m.currentGroup()
	if !ok {
		return m, nil
	}
	m.renameFrom = g.TicketID
	*m.fTicket = g.TicketID
	m.formType = formRename

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Rename " + g.TicketID + " to").Value(m.fTicket).Validate(requireTicket),
		),
	).WithShowHelp(true).WithShowErrors(true)

	m.formActive = true
	return m, m.form.Init()
}

func (m logsModel) showDatesForm() (logsModel, tea.Cmd) {
	*m.fStart = m.vs.DateStart
	*m.fEnd = m.vs.DateEnd
	m.formType = formDates

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("From (YYYY-MM-DD, empty for open)").Value(m.fStart).Validate(optionalDate),
			huh.NewInput().Title("To (YYYY-MM-DD, empty for open)").Value(m.fEnd).Validate(optionalDate),
		),
	).WithShowHelp(true).WithShowErrors(true)

	m.formActive = true
	return m, m.form.Init()
}

func (m logsModel) showDeleteForm() (logsModel, tea.Cmd) {
	m.deleteIDs = m.targetIDs()
	if len(m.deleteIDs) == 0 {
		return m, nil
	}
	*m.fConfirm = false
	m.formType = formDelete

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete %s?", plural(len(m.deleteIDs), "session"))).
				Description("This cannot be undone.").
				Affirmative("Delete").
				Negative("Keep").
				Value(m.fConfirm),
		),
	).WithShowHelp(true)

	m.formActive = true
	return m, m.form.Init()
}

func (m logsModel) updateForm(msg tea.Msg) (logsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			m.closeForm()
			return m, nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateAborted:
		m.closeForm()
		return m, nil
	case huh.StateCompleted:
		kind := m.formType
		m.formActive = false
		return m, m.submitForm(kind)
	}
	return m, cmd
}

func (m *logsModel) closeForm() {
	m.formActive = false
	m.form = nil
	m.formType = formNone
	m.vs.CancelEdit()
}

func (m *logsModel) submitForm(kind logsForm) tea.Cmd {
	defer m.closeForm()

	switch kind {
	case formEdit:
		buf := m.vs.Edit
		if buf == nil {
			return nil
		}
		id := buf.SessionID
		var e tracker.Edit
		if t := sanitize.TicketID(*m.fTicket); t != buf.TicketID {
			e.TicketID = &t
		}
		if *m.fNote != buf.Note {
			note := *m.fNote
			e.Note = &note
		}
		if *m.fDuration != buf.Duration {
			ms, err := format.ParseDuration(*m.fDuration)
			if err != nil {
				return func() tea.Msg { return statusMsg{text: err.Error(), isError: true} }
			}
			d := time.Duration(ms) * time.Millisecond
			e.Duration = &d
		}
		if e.TicketID == nil && e.Note == nil && e.Duration == nil {
			return nil
		}
		return runAction("Session saved", func(ctx context.Context) error {
			return m.tr.EditSession(ctx, id, e)
		})

	case formRename:
		from, to := m.renameFrom, sanitize.TicketID(*m.fTicket)
		if to == from {
			return nil
		}
		return func() tea.Msg {
			n, err := m.tr.RenameTicket(context.Background(), from, to)
			if err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{text: fmt.Sprintf("Renamed %s to %s (%s)", from, to, plural(n, "session"))}
		}

	case formDates:
		if err := m.vs.SetDateRange(*m.fStart, *m.fEnd); err != nil {
			return func() tea.Msg { return statusMsg{text: errorText(err), isError: true} }
		}
		m.refresh()
		return nil

	case formDelete:
		if !*m.fConfirm {
			return nil
		}
		ids := m.deleteIDs
		return func() tea.Msg {
			n, err := m.tr.DeleteSessions(context.Background(), ids)
			if err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{text: fmt.Sprintf("Deleted %s", plural(n, "session")), clearSelection: true}
		}
	}
	return nil
}

func requireTicket(s string) error {
	if sanitize.TicketID(s) == "" {
		return fmt.Errorf("ticket ID must not be empty")
	}
	return nil
}

func optionalDate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := time.Parse(format.DateLayout, s); err != nil {
		return fmt.Errorf("use YYYY-MM-DD")
	}
	return nil
}

func (m logsModel) view() string {
	w := m.width - 4

	if m.formActive && m.form != nil {
		titles := map[logsForm]string{
			formEdit:   "Edit Session",
			formRename: "Rename Ticket",
			formDates:  "Date Range",
			formDelete: "Delete",
		}
		content := lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(titles[m.formType]), "", m.form.View())
		return panelStyle.Width(w).Render(content)
	}

	rows := []string{m.renderHeader()}
	if m.searching {
		rows = append(rows, "", "Search: "+m.search.View())
	}
	rows = append(rows, "")

	if len(m.rows) == 0 {
		msg := "No sessions yet. Start the timer on the Timer view."
		if m.vs.Filtered() {
			msg = "No sessions match the filters. Press z to clear them."
		}
		rows = append(rows, mutedStyle.Render(msg))
		return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
	}

	for i, row := range m.visibleRows() {
		rows = append(rows, m.renderRow(row, i+m.scrollOffset() == m.cursor))
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  enter: expand  v: select  m/u: (un)submit  e: edit  r: rename  c: close  d: delete  /: search  f: status  t: dates"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (m logsModel) renderHeader() string {
	title := titleStyle.Render("Logs")
	total := highlightStyle.Render(format.Duration(m.result.TotalMs))

	var filters []string
	filters = append(filters, "status: "+string(m.vs.Status))
	if m.vs.Search != "" {
		filters = append(filters, "search: "+m.vs.Search)
	}
	if m.vs.DateStart != "" || m.vs.DateEnd != "" {
		filters = append(filters, fmt.Sprintf("dates: %s..%s", m.vs.DateStart, m.vs.DateEnd))
	}
	if n := m.vs.SelectedCount(); n > 0 {
		filters = append(filters, fmt.Sprintf("%d selected", n))
	}
	return fmt.Sprintf("%s  %s  %s", title, total, mutedStyle.Render(strings.Join(filters, "  ")))
}

// listHeight is the number of rows that fit the panel.
func (m logsModel) listHeight() int {
	return max(3, m.height-10)
}

func (m logsModel) scrollOffset() int {
	h := m.listHeight()
	if m.cursor < h {
		return 0
	}
	return m.cursor - h + 1
}

func (m logsModel) visibleRows() []logRow {
	start := m.scrollOffset()
	end := min(len(m.rows), start+m.listHeight())
	return m.rows[start:end]
}

func (m logsModel) renderRow(row logRow, current bool) string {
	g := m.result.Groups[row.group]
	cursor := "  "
	style := normalItemStyle
	if current {
		cursor = "> "
		style = selectedItemStyle
	}

	if row.session < 0 {
		check := "[ ]"
		if m.vs.SelectedTickets[g.TicketID] {
			check = "[x]"
		}
		arrow := "▸"
		if m.vs.Expanded[g.TicketID] {
			arrow = "▾"
		}
		name := g.TicketID
		if g.Closed {
			name = closedStyle.Render(name) + mutedStyle.Render(" (closed)")
		}
		return style.Render(fmt.Sprintf("%s%s %s ", cursor, check, arrow)) + name +
			style.Render(fmt.Sprintf("  %s  %s", format.Duration(g.TotalMs), plural(len(g.Sessions), "session")))
	}

	s := g.Sessions[row.session]
	check := "[ ]"
	if m.vs.SelectedSessions[s.ID] {
		check = "[x]"
	}
	end := s.EndTime.In(m.tr.Location()).Format("2006-01-02 15:04")
	line := fmt.Sprintf("%s    %s %s  %s  %s", cursor, check, end, format.Duration(s.AccumulatedMs), firstLine(s.Note))
	if s.Submitted() {
		return submittedStyle.Render(line + "  ✓")
	}
	return style.Render(line)
}
