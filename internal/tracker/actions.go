package tracker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
	"github.com/Timborini/ticktacktoto-sub000/internal/export"
	"github.com/Timborini/ticktacktoto-sub000/internal/logs"
	"github.com/Timborini/ticktacktoto-sub000/internal/sanitize"
	"github.com/Timborini/ticktacktoto-sub000/internal/store"
)

// maxParallelChunks bounds concurrent batches when a bulk write is split.
const maxParallelChunks = 4

// Start begins timing ticketID, finalizing any other active session first.
func (t *Tracker) Start(ctx context.Context, ticketID, note string) (string, error) {
	var id string
	err := t.do("start the timer", func() error {
		var err error
		id, err = t.machine.Start(ctx, ticketID, note)
		return err
	})
	if err == nil {
		t.remember(ticketID)
	}
	return id, err
}

// Pause banks the running segment.
func (t *Tracker) Pause(ctx context.Context, note string) error {
	return t.do("pause the timer", func() error {
		return t.machine.Pause(ctx, note)
	})
}

// Resume restarts the paused session, or switches to ticketID when it names
// another ticket.
func (t *Tracker) Resume(ctx context.Context, ticketID, note string) (string, error) {
	var id string
	err := t.do("resume the timer", func() error {
		var err error
		id, err = t.machine.Resume(ctx, ticketID, note)
		return err
	})
	if err == nil && ticketID != "" {
		t.remember(ticketID)
	}
	return id, err
}

// Stop finalizes the active session. Stopping with nothing active is a no-op.
func (t *Tracker) Stop(ctx context.Context, note string) (string, error) {
	var id string
	err := t.do("stop the timer", func() error {
		var err error
		id, err = t.machine.Stop(ctx, note)
		return err
	})
	return id, err
}

func (t *Tracker) remember(ticketID string) {
	if t.recents == nil {
		return
	}
	if err := t.recents.AddRecent(sanitize.TicketID(ticketID)); err != nil {
		t.log.Warn("save recent ticket", "err", err)
	}
}

// Edit lists the changes to a finalized session. Nil fields are kept.
type Edit struct {
	TicketID *string
	Note     *string
	Duration *time.Duration
}

// EditSession updates the note, duration or ticket of a session. Moving a
// session to a closed ticket is rejected, and the duration of an open session
// cannot be edited.
func (t *Tracker) EditSession(ctx context.Context, id string, e Edit) error {
	return t.do("save the session", func() error {
		sess, ok := t.session(id)
		if !ok {
			return errors.NewNotFound("session", id)
		}

		var patch store.SessionPatch
		if e.TicketID != nil {
			ticket := sanitize.TicketID(*e.TicketID)
			if ticket == "" {
				return errors.NewEmptyTicket()
			}
			if ticket != sess.TicketID {
				closed, err := t.backend.TicketClosed(ctx, t.scope, ticket)
				if err != nil {
					return err
				}
				if closed {
					return errors.NewTicketClosed(ticket)
				}
				patch.TicketID = &ticket
			}
		}
		if e.Note != nil {
			patch.Note = store.Ptr(sanitize.Note(*e.Note))
		}
		if e.Duration != nil {
			if sess.Open() {
				return errors.NewInvalidRequest("stop the timer before editing its duration")
			}
			d := *e.Duration
			if d < 0 || d > t.machine.MaxSegment() {
				return errors.NewDurationOutOfRange(d.Milliseconds(), t.machine.MaxSegment().Milliseconds())
			}
			patch.AccumulatedMs = store.Ptr(d.Milliseconds())
		}
		return t.backend.UpdateSession(ctx, t.scope, id, patch)
	})
}

// DeleteSession removes one session.
func (t *Tracker) DeleteSession(ctx context.Context, id string) error {
	return t.do("delete the session", func() error {
		return t.backend.DeleteSession(ctx, t.scope, id)
	})
}

// CloseTicket blocks new time on ticketID. A ticket with an active session
// must be stopped first.
func (t *Tracker) CloseTicket(ctx context.Context, ticketID string) error {
	return t.do("close the ticket", func() error {
		ticketID = sanitize.TicketID(ticketID)
		if ticketID == "" {
			return errors.NewEmptyTicket()
		}
		if active := t.Snapshot().Active(); active != nil && active.TicketID == ticketID {
			return errors.NewInvalidTransition(fmt.Sprintf("stop the timer on %s before closing it", ticketID))
		}
		return t.backend.SetTicketStatus(ctx, t.scope, ticketID, true)
	})
}

// ReopenTicket allows time on ticketID again.
func (t *Tracker) ReopenTicket(ctx context.Context, ticketID string) error {
	return t.do("reopen the ticket", func() error {
		ticketID = sanitize.TicketID(ticketID)
		if ticketID == "" {
			return errors.NewEmptyTicket()
		}
		return t.backend.SetTicketStatus(ctx, t.scope, ticketID, false)
	})
}

// RenameTicket moves every session and the status document of from to to.
// Like EditSession it refuses to move sessions onto a closed ticket. It
// returns the number of sessions moved.
func (t *Tracker) RenameTicket(ctx context.Context, from, to string) (int, error) {
	var moved int
	err := t.do("rename the ticket", func() error {
		from = sanitize.TicketID(from)
		to = sanitize.TicketID(to)
		if from == "" || to == "" {
			return errors.NewEmptyTicket()
		}
		if from == to {
			return nil
		}
		closedTo, err := t.backend.TicketClosed(ctx, t.scope, to)
		if err != nil {
			return err
		}
		if closedTo {
			return errors.NewTicketClosed(to)
		}

		sessions, err := t.backend.QuerySessions(ctx, t.scope, store.FieldTicketID, from)
		if err != nil {
			return err
		}
		var ops []store.BatchOp
		for _, s := range sessions {
			ops = append(ops, store.UpdateOp(s.ID, store.SessionPatch{TicketID: store.Ptr(to)}))
		}

		statuses := t.Snapshot().ClosedTickets()
		if closedFrom, ok := statuses[from]; ok {
			ops = append(ops,
				store.SetStatusOp(to, closedFrom),
				store.DeleteStatusOp(from),
			)
		}
		if len(ops) == 0 {
			return errors.NewNotFound("ticket", from)
		}
		moved = len(sessions)
		return t.bulk(ctx, ops)
	})
	return moved, err
}

// SetSubmitted marks the finalized sessions among ids as submitted, or
// reverts them to unsubmitted. Sessions already in the requested state are
// skipped. It returns the number of sessions changed.
func (t *Tracker) SetSubmitted(ctx context.Context, ids []string, submitted bool) (int, error) {
	var changed int
	err := t.do("update submission status", func() error {
		now := t.now()
		var ops []store.BatchOp
		for _, s := range t.sessions(ids) {
			if s.Open() || s.Submitted() == submitted {
				continue
			}
			patch := store.SessionPatch{
				Status:         store.Ptr(store.StatusUnsubmitted),
				SubmissionDate: store.Null(),
			}
			if submitted {
				patch.Status = store.Ptr(store.StatusSubmitted)
				patch.SubmissionDate = store.At(now)
			}
			ops = append(ops, store.UpdateOp(s.ID, patch))
		}
		changed = len(ops)
		return t.bulk(ctx, ops)
	})
	return changed, err
}

// DeleteSessions removes every session in ids.
func (t *Tracker) DeleteSessions(ctx context.Context, ids []string) (int, error) {
	var deleted int
	err := t.do("delete sessions", func() error {
		var ops []store.BatchOp
		for _, s := range t.sessions(ids) {
			ops = append(ops, store.DeleteOp(s.ID))
		}
		deleted = len(ops)
		return t.bulk(ctx, ops)
	})
	return deleted, err
}

// SelectedIDs resolves a selection to the ids of its finalized sessions.
func (t *Tracker) SelectedIDs(sel export.Selection) []string {
	var ids []string
	for _, s := range export.Resolve(export.ScopeSelected, t.Snapshot().Sessions, logs.Result{}, sel) {
		ids = append(ids, s.ID)
	}
	return ids
}

// PlanExport resolves scope against the cache and the current filters.
func (t *Tracker) PlanExport(scope export.Scope, f export.Format, c logs.Criteria, sel export.Selection) export.Plan {
	return export.Plan{
		Scope:    scope,
		Format:   f,
		Sessions: export.Resolve(scope, t.Snapshot().Sessions, t.View(c), sel),
	}
}

// Export writes plan to w according to the confirmation decision. With
// ExportAndSubmit the exported sessions are then marked submitted in one
// atomic commit. Cancel writes nothing.
func (t *Tracker) Export(ctx context.Context, plan export.Plan, d export.Decision, w io.Writer) error {
	switch d {
	case export.Cancel:
		return nil
	case export.ExportOnly:
		if err := plan.Write(w, t.loc); err != nil {
			t.log.Error("export failed", "action", "export", "err", err)
			return errors.NewWrite("export the logs", err)
		}
		return nil
	case export.ExportAndSubmit:
		return t.do("export and submit", func() error {
			ops := export.SubmitOps(plan.Sessions, t.now())
			if len(ops) > t.backend.BatchLimit() {
				return errors.NewInvalidRequest(fmt.Sprintf(
					"cannot mark %d sessions submitted in one commit (limit %d)", len(ops), t.backend.BatchLimit()))
			}
			if err := plan.Write(w, t.loc); err != nil {
				return errors.NewWrite("export the logs", err)
			}
			if len(ops) == 0 {
				return nil
			}
			_, err := t.backend.Batch(ctx, t.scope, ops)
			return err
		})
	}
	return errors.NewInvalidRequest(fmt.Sprintf("unknown export decision %q", d))
}

// SaveExport runs Export into a new file in dir named after the plan and
// returns its path. Cancel creates nothing and returns "".
func (t *Tracker) SaveExport(ctx context.Context, plan export.Plan, d export.Decision, dir string) (string, error) {
	if d == export.Cancel {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.NewWrite("create the export directory", err)
	}
	path := filepath.Join(dir, plan.Filename(t.now(), t.loc))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.NewWrite("create the export file", err)
	}
	if err := t.Export(ctx, plan, d, f); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errors.NewWrite("write the export file", err)
	}
	return path, nil
}

// Report builds the draft prompt for the groups of the current view. A
// non-empty tickets list restricts it to those tickets.
func (t *Tracker) Report(c logs.Criteria, tickets []string, p export.Profile) (string, error) {
	groups := t.View(c).Groups
	if len(tickets) > 0 {
		want := make(map[string]bool, len(tickets))
		for _, id := range tickets {
			want[id] = true
		}
		var kept []logs.Group
		for _, g := range groups {
			if want[g.TicketID] {
				kept = append(kept, g)
			}
		}
		groups = kept
	}
	return export.Draft(groups, p)
}

// bulk commits ops atomically when they fit in one batch. Larger sets are
// split and committed in parallel; failed chunks are reported together as a
// partial failure and not retried.
func (t *Tracker) bulk(ctx context.Context, ops []store.BatchOp) error {
	if len(ops) == 0 {
		return nil
	}
	limit := t.backend.BatchLimit()
	if limit <= 0 || len(ops) <= limit {
		_, err := t.backend.Batch(ctx, t.scope, ops)
		return err
	}

	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(maxParallelChunks)
	for start := 0; start < len(ops); start += limit {
		chunk := ops[start:min(start+limit, len(ops))]
		g.Go(func() error {
			if _, err := t.backend.Batch(ctx, t.scope, chunk); err != nil {
				failed.Add(int64(len(chunk)))
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.NewPartialFailure(int(failed.Load()), len(ops), err)
	}
	return nil
}

func (t *Tracker) session(id string) (store.Session, bool) {
	for _, s := range t.Snapshot().Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return store.Session{}, false
}

// sessions returns the cached sessions whose id is in ids, in cache order.
func (t *Tracker) sessions(ids []string) []store.Session {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []store.Session
	for _, s := range t.Snapshot().Sessions {
		if want[s.ID] {
			out = append(out, s)
		}
	}
	return out
}
