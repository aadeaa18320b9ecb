package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Status is the submission state of a session.
type Status string

const (
	StatusUnsubmitted Status = "unsubmitted"
	StatusSubmitted   Status = "submitted"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusUnsubmitted || s == StatusSubmitted
}

// Session is one tracked unit of work on a ticket.
type Session struct {
	ID             string
	TicketID       string
	StartTime      *time.Time // non-nil only while running
	EndTime        *time.Time // nil while the session is open
	AccumulatedMs  int64
	Note           string
	Status         Status
	SubmissionDate *time.Time
	CreatedAt      time.Time
}

// Open reports whether the session has not been finalized.
func (s Session) Open() bool { return s.EndTime == nil }

// Running reports whether the session has an active run segment.
func (s Session) Running() bool { return s.EndTime == nil && s.StartTime != nil }

// Submitted reports whether the session was marked submitted.
func (s Session) Submitted() bool { return s.Status == StatusSubmitted }

// TicketStatus records whether a ticket is closed for new time.
type TicketStatus struct {
	TicketID  string
	Closed    bool
	UpdatedAt time.Time
}

// SessionPatch lists the fields to change on a session. Nil fields are left
// untouched; nullable timestamps use At to set and Null to clear.
type SessionPatch struct {
	TicketID       *string
	StartTime      *sql.Null[time.Time]
	EndTime        *sql.Null[time.Time]
	AccumulatedMs  *int64
	Note           *string
	Status         *Status
	SubmissionDate *sql.Null[time.Time]
}

// Empty reports whether the patch changes nothing.
func (p SessionPatch) Empty() bool {
	return p.TicketID == nil && p.StartTime == nil && p.EndTime == nil &&
		p.AccumulatedMs == nil && p.Note == nil && p.Status == nil && p.SubmissionDate == nil
}

// At returns a patch value setting a timestamp.
func At(t time.Time) *sql.Null[time.Time] {
	return &sql.Null[time.Time]{V: t, Valid: true}
}

// Null returns a patch value clearing a timestamp.
func Null() *sql.Null[time.Time] {
	return &sql.Null[time.Time]{}
}

// Ptr returns a pointer to v, for patch fields.
func Ptr[T any](v T) *T { return &v }

// ScopeKind selects whose partition a Scope addresses.
type ScopeKind string

const (
	ScopeUser  ScopeKind = "users"
	ScopeShare ScopeKind = "shares"
)

// Scope is the per-deployment, per-user (or per-share) partition of both
// collections.
type Scope struct {
	AppID string
	Kind  ScopeKind
	ID    string
}

func UserScope(appID, userID string) Scope {
	return Scope{AppID: appID, Kind: ScopeUser, ID: userID}
}

func ShareScope(appID, shareID string) Scope {
	return Scope{AppID: appID, Kind: ScopeShare, ID: shareID}
}

// Key is the partition key stored with every document.
func (s Scope) Key() string {
	return s.AppID + "/" + string(s.Kind) + "/" + s.ID
}

// Shared reports whether the scope is a shared view.
func (s Scope) Shared() bool { return s.Kind == ScopeShare }

// Validate checks that every part of the scope is present.
func (s Scope) Validate() error {
	if strings.TrimSpace(s.AppID) == "" {
		return fmt.Errorf("scope: app id is required")
	}
	if s.Kind != ScopeUser && s.Kind != ScopeShare {
		return fmt.Errorf("scope: unknown kind %q", s.Kind)
	}
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("scope: %s id is required", s.Kind)
	}
	if strings.Contains(s.ID, "/") || strings.Contains(s.AppID, "/") {
		return fmt.Errorf("scope: ids must not contain '/'")
	}
	return nil
}

// Snapshot is the full content of a scope at one point in time.
type Snapshot struct {
	Scope    Scope
	Version  uint64
	Sessions []Session
	Statuses []TicketStatus
	Err      error
}

// ClosedTickets indexes ticket statuses by ticket id.
func (s Snapshot) ClosedTickets() map[string]bool {
	closed := make(map[string]bool, len(s.Statuses))
	for _, st := range s.Statuses {
		closed[st.TicketID] = st.Closed
	}
	return closed
}

// Active returns the open session, if any. When more than one is open the
// most recently created wins.
func (s Snapshot) Active() *Session {
	var active *Session
	for i := range s.Sessions {
		sess := &s.Sessions[i]
		if !sess.Open() {
			continue
		}
		if active == nil || sess.CreatedAt.After(active.CreatedAt) {
			active = sess
		}
	}
	return active
}

// Finalized returns the sessions that have an end time.
func (s Snapshot) Finalized() []Session {
	var out []Session
	for _, sess := range s.Sessions {
		if !sess.Open() {
			out = append(out, sess)
		}
	}
	return out
}

// Field names a session property usable in QuerySessions.
type Field string

const (
	FieldTicketID Field = "ticket_id"
	FieldStatus   Field = "status"
)

func (f Field) valid() bool {
	return f == FieldTicketID || f == FieldStatus
}
