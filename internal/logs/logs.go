// Package logs groups finalized sessions by ticket and applies the history
// filters. Everything here is a pure function of its inputs.
package logs

import (
	"sort"
	"strings"
	"time"

	"github.com/Timborini/ticktacktoto-sub000/internal/format"
	"github.com/Timborini/ticktacktoto-sub000/internal/store"
)

// StatusFilter selects groups by ticket and submission state.
type StatusFilter string

const (
	StatusAll       StatusFilter = "All"
	StatusOpen      StatusFilter = "Open"
	StatusClosed    StatusFilter = "Closed"
	StatusSubmitted StatusFilter = "Submitted"
)

// StatusFilters lists the filters in display order.
var StatusFilters = []StatusFilter{StatusAll, StatusOpen, StatusClosed, StatusSubmitted}

// ParseStatus matches s case-insensitively against the known filters.
func ParseStatus(s string) (StatusFilter, bool) {
	for _, f := range StatusFilters {
		if strings.EqualFold(strings.TrimSpace(s), string(f)) {
			return f, true
		}
	}
	return StatusAll, false
}

// Criteria are the active history filters. Dates are YYYY-MM-DD calendar days
// in Location; empty strings are unset.
type Criteria struct {
	DateStart string
	DateEnd   string
	Date      string // single-day filter, used when no range bound is set
	Search    string
	Status    StatusFilter
	Location  *time.Location
}

// Group is every displayed session of one ticket.
type Group struct {
	TicketID  string
	TotalMs   int64
	Sessions  []store.Session
	Closed    bool
	LatestEnd time.Time
}

// AllSubmitted reports whether every member session is submitted.
func (g Group) AllSubmitted() bool {
	if len(g.Sessions) == 0 {
		return false
	}
	for _, s := range g.Sessions {
		if !s.Submitted() {
			return false
		}
	}
	return true
}

// Result is the ordered pipeline output.
type Result struct {
	Groups  []Group
	TotalMs int64
}

// Aggregate filters sessions by date and search, groups them by ticket,
// applies the status filter and orders groups by their most recent end time.
// Open sessions never appear.
func Aggregate(sessions []store.Session, statuses []store.TicketStatus, c Criteria) Result {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	closed := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		closed[st.TicketID] = st.Closed
	}
	query := strings.ToLower(strings.TrimSpace(c.Search))

	var order []string
	byTicket := make(map[string]*Group)
	for _, s := range sessions {
		if s.EndTime == nil {
			continue
		}
		if !c.matchesDate(format.Date(*s.EndTime, loc)) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(s.TicketID), query) {
			continue
		}
		g, ok := byTicket[s.TicketID]
		if !ok {
			g = &Group{TicketID: s.TicketID, Closed: closed[s.TicketID]}
			byTicket[s.TicketID] = g
			order = append(order, s.TicketID)
		}
		g.TotalMs += s.AccumulatedMs
		g.Sessions = append(g.Sessions, s)
		if s.EndTime.After(g.LatestEnd) {
			g.LatestEnd = *s.EndTime
		}
	}

	var res Result
	for _, id := range order {
		g := byTicket[id]
		if !c.matchesStatus(g) {
			continue
		}
		sort.SliceStable(g.Sessions, func(i, j int) bool {
			return g.Sessions[i].EndTime.After(*g.Sessions[j].EndTime)
		})
		res.Groups = append(res.Groups, *g)
		res.TotalMs += g.TotalMs
	}
	sort.SliceStable(res.Groups, func(i, j int) bool {
		return res.Groups[i].LatestEnd.After(res.Groups[j].LatestEnd)
	})
	return res
}

func (c Criteria) matchesDate(day string) bool {
	if c.DateStart != "" || c.DateEnd != "" {
		if c.DateStart != "" && day < c.DateStart {
			return false
		}
		if c.DateEnd != "" && day > c.DateEnd {
			return false
		}
		return true
	}
	if c.Date != "" {
		return day == c.Date
	}
	return true
}

func (c Criteria) matchesStatus(g *Group) bool {
	switch c.Status {
	case StatusSubmitted:
		return g.AllSubmitted()
	case StatusOpen:
		return !g.Closed && !g.AllSubmitted()
	case StatusClosed:
		return g.Closed && !g.AllSubmitted()
	default:
		return !g.AllSubmitted()
	}
}

// Flatten returns the sessions of groups in display order.
func Flatten(groups []Group) []store.Session {
	var out []store.Session
	for _, g := range groups {
		out = append(out, g.Sessions...)
	}
	return out
}

// Tickets returns the ticket ids of groups in display order.
func Tickets(groups []Group) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.TicketID)
	}
	return out
}

// Find returns the group of ticketID, if displayed.
func (r Result) Find(ticketID string) (Group, bool) {
	for _, g := range r.Groups {
		if g.TicketID == ticketID {
			return g, true
		}
	}
	return Group{}, false
}
