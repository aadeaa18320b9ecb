// Package export turns a selected, filtered or complete set of finalized
// sessions into CSV or JSON files and builds the report draft prompt.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
	"github.com/Timborini/ticktacktoto-sub000/internal/format"
	"github.com/Timborini/ticktacktoto-sub000/internal/logs"
	"github.com/Timborini/ticktacktoto-sub000/internal/store"
)

// Scope selects which sessions an export covers.
type Scope string

const (
	ScopeSelected Scope = "selected"
	ScopeFiltered Scope = "filtered"
	ScopeAll      Scope = "all"
)

// Name is the file name stem of the scope.
func (s Scope) Name() string { return string(s) + "-logs" }

func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeSelected:
		return ScopeSelected, nil
	case ScopeFiltered:
		return ScopeFiltered, nil
	case ScopeAll:
		return ScopeAll, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown export scope %q (want selected, filtered or all)", s))
}

// Format is the export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown export format %q (want csv or json)", s))
}

// ContentType is the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// Decision is the answer to the confirmation step.
type Decision string

const (
	ExportAndSubmit Decision = "submit"
	ExportOnly      Decision = "export"
	Cancel          Decision = "cancel"
)

// Decisions lists the confirmation choices in display order.
var Decisions = []Decision{ExportAndSubmit, ExportOnly, Cancel}

func ParseDecision(s string) (Decision, error) {
	for _, d := range Decisions {
		if strings.EqualFold(strings.TrimSpace(s), string(d)) {
			return d, nil
		}
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown export decision %q", s))
}

// Selection is the set of checked tickets and sessions.
type Selection struct {
	Tickets  map[string]bool
	Sessions map[string]bool
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool { return len(s.Tickets) == 0 && len(s.Sessions) == 0 }

// Resolve returns the finalized sessions a scope covers. all is every
// session of the store snapshot, filtered the current pipeline output.
func Resolve(scope Scope, all []store.Session, filtered logs.Result, sel Selection) []store.Session {
	switch scope {
	case ScopeFiltered:
		return logs.Flatten(filtered.Groups)
	case ScopeSelected:
		var out []store.Session
		for _, s := range all {
			if s.Open() {
				continue
			}
			if sel.Sessions[s.ID] || sel.Tickets[s.TicketID] {
				out = append(out, s)
			}
		}
		return out
	default:
		var out []store.Session
		for _, s := range all {
			if !s.Open() {
				out = append(out, s)
			}
		}
		return out
	}
}

// Plan is an export waiting to be written.
type Plan struct {
	Scope    Scope
	Format   Format
	Sessions []store.Session
}

// NeedsConfirmation reports whether any session is not yet submitted.
func (p Plan) NeedsConfirmation() bool {
	for _, s := range p.Sessions {
		if !s.Submitted() {
			return true
		}
	}
	return false
}

// Unsubmitted counts the sessions that are not submitted.
func (p Plan) Unsubmitted() int {
	n := 0
	for _, s := range p.Sessions {
		if !s.Submitted() {
			n++
		}
	}
	return n
}

// Filename is <scope-name>-<YYYY-MM-DD>.<ext>.
func (p Plan) Filename(now time.Time, loc *time.Location) string {
	return fmt.Sprintf("%s-%s.%s", p.Scope.Name(), format.Date(now, loc), p.Format)
}

// Write encodes the plan's sessions to w.
func (p Plan) Write(w io.Writer, loc *time.Location) error {
	switch p.Format {
	case FormatJSON:
		return WriteJSON(w, p.Sessions)
	default:
		return WriteCSV(w, p.Sessions, loc)
	}
}

// SubmitOps marks the finalized, not yet submitted sessions as submitted at
// now. Already submitted sessions are left alone.
func SubmitOps(sessions []store.Session, now time.Time) []store.BatchOp {
	var ops []store.BatchOp
	for _, s := range sessions {
		if s.Open() || s.Submitted() {
			continue
		}
		ops = append(ops, store.UpdateOp(s.ID, store.SessionPatch{
			Status:         store.Ptr(store.StatusSubmitted),
			SubmissionDate: store.At(now),
		}))
	}
	return ops
}
