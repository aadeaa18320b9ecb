package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Timborini/ticktacktoto-sub000/internal/sanitize"
)

const (
	fieldTicket = iota
	fieldNote
)

// startForm collects the ticket id and optional note for a new session.
// Recent tickets are offered as completions (tab accepts).
type startForm struct {
	ticket textinput.Model
	note   textinput.Model
	focus  int
	err    string
}

func newStartForm(recent []string, ticket string) startForm {
	ti := textinput.New()
	ti.Placeholder = "Ticket ID, e.g. PROJ-123"
	ti.CharLimit = sanitize.MaxTicketIDLen
	ti.Width = 40
	ti.ShowSuggestions = true
	ti.SetSuggestions(recent)
	ti.SetValue(ticket)
	ti.Focus()

	ni := textinput.New()
	ni.Placeholder = "What are you working on? (optional)"
	ni.CharLimit = sanitize.MaxNoteLen
	ni.Width = 60

	return startForm{ticket: ti, note: ni}
}

// values returns the sanitized inputs.
func (f startForm) values() (ticket, note string) {
	return sanitize.TicketID(f.ticket.Value()), sanitize.Note(f.note.Value())
}

// update handles a key. done is true once the user submitted a non-empty
// ticket.
func (f startForm) update(msg tea.Msg) (startForm, tea.Cmd, bool) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Enter):
			if f.focus == fieldTicket {
				if t, _ := f.values(); t == "" {
					f.err = "Enter a ticket ID."
					return f, nil, false
				}
				f.err = ""
				return f.setFocus(fieldNote), nil, false
			}
			if t, _ := f.values(); t == "" {
				f.err = "Enter a ticket ID."
				return f.setFocus(fieldTicket), nil, false
			}
			return f, nil, true
		case msg.Type == tea.KeyUp, msg.Type == tea.KeyShiftTab:
			return f.setFocus(fieldTicket), nil, false
		case msg.Type == tea.KeyDown:
			return f.setFocus(fieldNote), nil, false
		}
	}

	var cmd tea.Cmd
	if f.focus == fieldTicket {
		f.ticket, cmd = f.ticket.Update(msg)
	} else {
		f.note, cmd = f.note.Update(msg)
	}
	return f, cmd, false
}

func (f startForm) setFocus(field int) startForm {
	f.focus = field
	if field == fieldTicket {
		f.ticket.Focus()
		f.note.Blur()
	} else {
		f.note.Focus()
		f.ticket.Blur()
	}
	return f
}

func (f startForm) view(w int, recent []string) string {
	rows := []string{
		titleStyle.Render("Start tracking"),
		"",
		mutedStyle.Render("Ticket"),
		f.ticket.View(),
		"",
		mutedStyle.Render("Note"),
		f.note.View(),
	}
	if len(recent) > 0 {
		rows = append(rows, "", mutedStyle.Render("Recent: "+strings.Join(recent, "  ")))
	}
	if f.err != "" {
		rows = append(rows, "", errorStyle.Render(f.err))
	}
	rows = append(rows, "", mutedStyle.Render("  enter: next/start  tab: complete  esc: cancel"))
	return activePanelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
