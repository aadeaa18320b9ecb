// Package viewstate holds every piece of transient view state in one struct,
// changed only through its handler methods, and round-trips the filter part
// through URL query parameters.
package viewstate

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
	"github.com/Timborini/ticktacktoto-sub000/internal/export"
	"github.com/Timborini/ticktacktoto-sub000/internal/format"
	"github.com/Timborini/ticktacktoto-sub000/internal/logs"
	"github.com/Timborini/ticktacktoto-sub000/internal/sanitize"
	"github.com/Timborini/ticktacktoto-sub000/internal/store"
)

// Query parameter names.
const (
	ParamShareID   = "shareId"
	ParamStatus    = "status"
	ParamSearch    = "search"
	ParamDateStart = "dateStart"
	ParamDateEnd   = "dateEnd"
	ParamDate      = "date"
)

// EditBuffer holds unsaved edits to one session. Cancelling discards it.
type EditBuffer struct {
	SessionID string
	TicketID  string
	Note      string
	Duration  string // HH:MM:SS
}

// State is the complete view state.
type State struct {
	ShareID   string
	Status    logs.StatusFilter
	Search    string
	DateStart string
	DateEnd   string
	Date      string

	SelectedTickets  map[string]bool
	SelectedSessions map[string]bool
	Expanded         map[string]bool

	Edit          *EditBuffer
	PendingExport *export.Plan
	Banner        string
}

// New returns the unfiltered default state.
func New() State {
	return State{
		Status:           logs.StatusAll,
		SelectedTickets:  make(map[string]bool),
		SelectedSessions: make(map[string]bool),
		Expanded:         make(map[string]bool),
	}
}

// Parse reads the filter state from q. Invalid values are dropped and
// reported; they never fail the whole parse.
func Parse(q url.Values) (State, []error) {
	s := New()
	var errs []error

	s.ShareID = strings.TrimSpace(q.Get(ParamShareID))
	if strings.Contains(s.ShareID, "/") {
		errs = append(errs, errors.NewInvalidRequest(fmt.Sprintf("invalid %s %q", ParamShareID, s.ShareID)))
		s.ShareID = ""
	}

	if raw := q.Get(ParamStatus); raw != "" {
		status, ok := logs.ParseStatus(raw)
		if !ok {
			errs = append(errs, errors.NewInvalidRequest(fmt.Sprintf("invalid %s %q", ParamStatus, raw)))
		}
		s.Status = status
	}

	s.Search = sanitize.TicketID(q.Get(ParamSearch))

	for _, p := range []struct {
		name string
		dst  *string
	}{
		{ParamDateStart, &s.DateStart},
		{ParamDateEnd, &s.DateEnd},
		{ParamDate, &s.Date},
	} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		if !validDate(raw) {
			errs = append(errs, errors.NewInvalidRequest(fmt.Sprintf("invalid %s %q (want YYYY-MM-DD)", p.name, raw)))
			continue
		}
		*p.dst = raw
	}
	if s.DateStart != "" && s.DateEnd != "" && s.DateStart > s.DateEnd {
		errs = append(errs, errors.NewInvalidRequest(fmt.Sprintf("%s is after %s", ParamDateStart, ParamDateEnd)))
		s.DateStart, s.DateEnd = "", ""
	}
	return s, errs
}

// Encode writes the filter state as query parameters, omitting defaults.
func (s State) Encode() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set(ParamShareID, s.ShareID)
	if s.Status != "" && s.Status != logs.StatusAll {
		q.Set(ParamStatus, string(s.Status))
	}
	set(ParamSearch, s.Search)
	set(ParamDateStart, s.DateStart)
	set(ParamDateEnd, s.DateEnd)
	set(ParamDate, s.Date)
	return q
}

// Criteria returns the pipeline filters of the state.
func (s State) Criteria(loc *time.Location) logs.Criteria {
	return logs.Criteria{
		DateStart: s.DateStart,
		DateEnd:   s.DateEnd,
		Date:      s.Date,
		Search:    s.Search,
		Status:    s.Status,
		Location:  loc,
	}
}

// Selection returns the checked tickets and sessions.
func (s State) Selection() export.Selection {
	return export.Selection{Tickets: s.SelectedTickets, Sessions: s.SelectedSessions}
}

// Filtered reports whether any filter differs from the default.
func (s State) Filtered() bool {
	return (s.Status != "" && s.Status != logs.StatusAll) || s.Search != "" ||
		s.DateStart != "" || s.DateEnd != "" || s.Date != ""
}

func (s *State) SetStatus(f logs.StatusFilter) {
	s.Status = f
}

func (s *State) SetSearch(q string) {
	s.Search = sanitize.TicketID(q)
}

// SetDateRange sets either bound; an empty string clears it. The legacy
// single date is cleared since the range takes precedence.
func (s *State) SetDateRange(start, end string) error {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	for _, d := range []string{start, end} {
		if d != "" && !validDate(d) {
			return errors.NewInvalidRequest(fmt.Sprintf("invalid date %q (want YYYY-MM-DD)", d))
		}
	}
	if start != "" && end != "" && start > end {
		return errors.NewInvalidRequest("start date is after end date")
	}
	s.DateStart, s.DateEnd, s.Date = start, end, ""
	return nil
}

// ClearFilters restores the default filters. The share id is kept.
func (s *State) ClearFilters() {
	s.Status = logs.StatusAll
	s.Search = ""
	s.DateStart, s.DateEnd, s.Date = "", "", ""
}

func (s *State) ToggleTicket(ticketID string) {
	toggle(&s.SelectedTickets, ticketID)
}

func (s *State) ToggleSession(sessionID string) {
	toggle(&s.SelectedSessions, sessionID)
}

func (s *State) ToggleExpanded(ticketID string) {
	toggle(&s.Expanded, ticketID)
}

// ClearSelection unchecks every ticket and session.
func (s *State) ClearSelection() {
	s.SelectedTickets = make(map[string]bool)
	s.SelectedSessions = make(map[string]bool)
}

// SelectedCount is the number of checked tickets plus checked sessions.
func (s State) SelectedCount() int {
	return len(s.SelectedTickets) + len(s.SelectedSessions)
}

// BeginEdit loads sess into a fresh edit buffer.
func (s *State) BeginEdit(sess store.Session) {
	s.Edit = &EditBuffer{
		SessionID: sess.ID,
		TicketID:  sess.TicketID,
		Note:      sess.Note,
		Duration:  format.Duration(sess.AccumulatedMs),
	}
}

func (s *State) CancelEdit() {
	s.Edit = nil
}

func (s *State) SetPendingExport(p export.Plan) {
	s.PendingExport = &p
}

func (s *State) ClearPendingExport() {
	s.PendingExport = nil
}

// ShowBanner replaces the banner with the user message of err.
func (s *State) ShowBanner(err error) {
	s.Banner = errors.UserMessage(err)
}

func (s *State) DismissBanner() {
	s.Banner = ""
}

func toggle(m *map[string]bool, key string) {
	if *m == nil {
		*m = make(map[string]bool)
	}
	if (*m)[key] {
		delete(*m, key)
		return
	}
	(*m)[key] = true
}

func validDate(s string) bool {
	_, err := time.Parse(format.DateLayout, s)
	return err == nil
}
