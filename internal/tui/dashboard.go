package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Timborini/ticktacktoto-sub000/internal/format"
	"github.com/Timborini/ticktacktoto-sub000/internal/sanitize"
	"github.com/Timborini/ticktacktoto-sub000/internal/store"
	"github.com/Timborini/ticktacktoto-sub000/internal/timer"
	"github.com/Timborini/ticktacktoto-sub000/internal/tracker"
)

// recentLimit is the number of finished sessions listed under the timer.
const recentLimit = 5

// dashboardModel is the Timer view: the live timer, today's totals and the
// latest finished sessions.
type dashboardModel struct {
	tr      *tracker.Tracker
	recents func() []string
	width   int
	height  int

	status timer.Status
	snap   store.Snapshot

	formActive bool
	form       startForm

	// note is sent with pause, resume and stop. It is reset to the stored
	// note whenever another session becomes active.
	note        textinput.Model
	noteSession string
	editingNote bool
}

func newDashboardModel(tr *tracker.Tracker, recents func() []string) dashboardModel {
	if recents == nil {
		recents = func() []string { return nil }
	}
	ni := textinput.New()
	ni.Placeholder = "Add a note"
	ni.CharLimit = sanitize.MaxNoteLen
	ni.Width = 60

	d := dashboardModel{
		tr:      tr,
		recents: recents,
		status:  tr.Status(),
		snap:    tr.Snapshot(),
		note:    ni,
	}
	d.syncNote()
	return d
}

// syncNote loads the stored note of the active session into the note input
// unless it already belongs to that session.
func (d *dashboardModel) syncNote() {
	var id, note string
	if d.status.Session != nil {
		id, note = d.status.Session.ID, d.status.Session.Note
	}
	if id == d.noteSession {
		return
	}
	d.noteSession = id
	d.note.SetValue(note)
	d.editingNote = false
	d.note.Blur()
}

func (d dashboardModel) noteValue() string {
	return sanitize.Note(d.note.Value())
}

func (d dashboardModel) updateNote(msg tea.KeyMsg) (dashboardModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Enter):
		d.editingNote = false
		d.note.Blur()
		return d, nil
	case key.Matches(msg, keys.Back):
		if d.status.Session != nil {
			d.note.SetValue(d.status.Session.Note)
		}
		d.editingNote = false
		d.note.Blur()
		return d, nil
	}
	var cmd tea.Cmd
	d.note, cmd = d.note.Update(msg)
	return d, cmd
}

func (d *dashboardModel) setSize(w, h int) {
	d.width = w
	d.height = h
}

func (d dashboardModel) update(msg tea.Msg) (dashboardModel, tea.Cmd) {
	if d.formActive {
		return d.updateForm(msg)
	}

	switch msg := msg.(type) {
	case updateMsg:
		d.status = msg.Timer
		d.snap = msg.Snapshot
		d.syncNote()
		return d, nil

	case tea.KeyMsg:
		if d.editingNote {
			return d.updateNote(msg)
		}
		switch {
		case key.Matches(msg, keys.Start):
			var ticket, note string
			if d.status.State == timer.Paused {
				ticket, note = d.status.Session.TicketID, d.noteValue()
			}
			d.form = newStartForm(d.recents(), ticket)
			d.form.note.SetValue(note)
			d.formActive = true
			return d, nil

		case key.Matches(msg, keys.Note):
			if d.status.State == timer.Idle {
				return d, nil
			}
			d.editingNote = true
			cmd := d.note.Focus()
			return d, cmd

		case key.Matches(msg, keys.Pause):
			note := d.noteValue()
			switch d.status.State {
			case timer.Running:
				return d, runAction("Timer paused", func(ctx context.Context) error {
					return d.tr.Pause(ctx, note)
				})
			case timer.Paused:
				return d, runAction("Timer resumed", func(ctx context.Context) error {
					_, err := d.tr.Resume(ctx, "", note)
					return err
				})
			}
			return d, nil

		case key.Matches(msg, keys.Stop):
			if d.status.State == timer.Idle {
				return d, nil
			}
			note := d.noteValue()
			return d, runAction("Timer stopped", func(ctx context.Context) error {
				_, err := d.tr.Stop(ctx, note)
				return err
			})
		}
	}
	return d, nil
}

func (d dashboardModel) updateForm(msg tea.Msg) (dashboardModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, keys.Back) {
		d.formActive = false
		return d, nil
	}
	if u, ok := msg.(updateMsg); ok {
		d.status = u.Timer
		d.snap = u.Snapshot
		d.syncNote()
		return d, nil
	}

	form, cmd, done := d.form.update(msg)
	d.form = form
	if !done {
		return d, cmd
	}

	d.formActive = false
	ticket, note := d.form.values()
	return d, runAction("Tracking "+ticket, func(ctx context.Context) error {
		_, err := d.tr.Start(ctx, ticket, note)
		return err
	})
}

func (d dashboardModel) isRunning() bool { return d.status.State == timer.Running }
func (d dashboardModel) isPaused() bool  { return d.status.State == timer.Paused }
func (d dashboardModel) elapsed() time.Duration {
	return d.status.Elapsed
}

func (d dashboardModel) view() string {
	if d.width < 20 {
		return "Terminal too small"
	}

	contentWidth := d.width - 4
	if d.formActive {
		return d.form.view(contentWidth, d.recents())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		d.renderTimerPanel(contentWidth),
		d.renderTodayPanel(contentWidth),
		d.renderRecentPanel(contentWidth),
	)
}

func (d dashboardModel) renderTimerPanel(w int) string {
	timeStr := formatDuration(d.status.Elapsed)

	switch d.status.State {
	case timer.Running, timer.Paused:
		sess := d.status.Session
		timeDisplay := timerRunningStyle.Width(w - 6).Render(timeStr)
		indicator := successStyle.Render("●  RUNNING")
		if d.status.State == timer.Paused {
			timeDisplay = timerPausedStyle.Width(w - 6).Render(timeStr)
			indicator = warningStyle.Render("⏸  PAUSED")
		}

		ticketLine := highlightStyle.Render(sess.TicketID)
		noteLine := mutedStyle.Render("n: add a note")
		switch {
		case d.editingNote:
			noteLine = d.note.View()
		case d.note.Value() != "":
			noteLine = mutedStyle.Render(firstLine(d.note.Value()))
		}
		content := lipgloss.JoinVertical(lipgloss.Center, timeDisplay, indicator, ticketLine, noteLine)
		return activePanelStyle.Width(w).Render(content)
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		timerStyle.Width(w-6).Render("00:00:00"),
		mutedStyle.Render("■  STOPPED"),
		mutedStyle.Render("Press s to start tracking a ticket"),
	)
	return panelStyle.Width(w).Render(content)
}

type ticketTotal struct {
	ticketID string
	ms       int64
	count    int
}

// todayTotals sums the sessions finished today per ticket, largest first.
func todayTotals(sessions []store.Session, now time.Time, loc *time.Location) ([]ticketTotal, int64) {
	today := format.Date(now, loc)
	idx := make(map[string]int)
	var totals []ticketTotal
	var sum int64
	for _, s := range sessions {
		if s.Open() || format.Date(*s.EndTime, loc) != today {
			continue
		}
		i, ok := idx[s.TicketID]
		if !ok {
			i = len(totals)
			idx[s.TicketID] = i
			totals = append(totals, ticketTotal{ticketID: s.TicketID})
		}
		totals[i].ms += s.AccumulatedMs
		totals[i].count++
		sum += s.AccumulatedMs
	}
	sort.SliceStable(totals, func(i, j int) bool { return totals[i].ms > totals[j].ms })
	return totals, sum
}

func (d dashboardModel) renderTodayPanel(w int) string {
	totals, sum := todayTotals(d.snap.Sessions, time.Now(), d.tr.Location())
	header := fmt.Sprintf("%s  %s", titleStyle.Render("Today"), highlightStyle.Render(format.Duration(sum)))

	if len(totals) == 0 {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			header,
			mutedStyle.Render("No finished sessions today"),
		))
	}

	rows := []string{header}
	for _, t := range totals {
		rows = append(rows, fmt.Sprintf("  %-24s %s  (%s)", t.ticketID, format.Duration(t.ms), plural(t.count, "session")))
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (d dashboardModel) renderRecentPanel(w int) string {
	title := titleStyle.Render("Recent Sessions")
	finished := d.snap.Finalized()
	if len(finished) == 0 {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			title,
			mutedStyle.Render("No sessions yet"),
		))
	}

	rows := []string{title}
	for i, s := range finished {
		if i == recentLimit {
			break
		}
		mark := "○"
		if s.Submitted() {
			mark = submittedStyle.Render("✓")
		}
		end := s.EndTime.In(d.tr.Location()).Format("Jan 02 15:04")
		rows = append(rows, fmt.Sprintf("  %s %s  %-20s %s", mark, end, s.TicketID, format.Duration(s.AccumulatedMs)))
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
