package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
)

const sessionColumns = `id, ticket_id, start_ms, end_ms, accumulated_ms, note, status, submitted_ms, created_ms`

// newID returns a time-sortable document id.
func newID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// CreateSession stores a new session in scope and returns its assigned id.
func (s *Store) CreateSession(ctx context.Context, scope Scope, sess Session) (string, error) {
	if err := scope.Validate(); err != nil {
		return "", errors.NewInvalidRequest(err.Error())
	}
	id, err := insertSession(ctx, s.db, scope, sess)
	if err != nil {
		return "", err
	}
	s.publish(scope)
	return id, nil
}

func insertSession(ctx context.Context, db execer, scope Scope, sess Session) (string, error) {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	if sess.Status == "" {
		sess.Status = StatusUnsubmitted
	}
	if !sess.Status.Valid() {
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown status %q", sess.Status))
	}
	id := newID()
	_, err := db.ExecContext(ctx,
		`INSERT INTO time_entries (id, scope, ticket_id, start_ms, end_ms, accumulated_ms, note, status, submitted_ms, created_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, scope.Key(), sess.TicketID, toMs(sess.StartTime), toMs(sess.EndTime), sess.AccumulatedMs,
		sess.Note, string(sess.Status), toMs(sess.SubmissionDate), sess.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// UpdateSession applies patch to the session id in scope.
func (s *Store) UpdateSession(ctx context.Context, scope Scope, id string, patch SessionPatch) error {
	if err := scope.Validate(); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	if patch.Empty() {
		return nil
	}
	if err := updateSession(ctx, s.db, scope, id, patch); err != nil {
		return err
	}
	s.publish(scope)
	return nil
}

func updateSession(ctx context.Context, db execer, scope Scope, id string, p SessionPatch) error {
	var sets []string
	var args []any

	if p.TicketID != nil {
		sets = append(sets, "ticket_id = ?")
		args = append(args, *p.TicketID)
	}
	if p.StartTime != nil {
		sets = append(sets, "start_ms = ?")
		args = append(args, nullMs(p.StartTime))
	}
	if p.EndTime != nil {
		sets = append(sets, "end_ms = ?")
		args = append(args, nullMs(p.EndTime))
	}
	if p.AccumulatedMs != nil {
		sets = append(sets, "accumulated_ms = ?")
		args = append(args, *p.AccumulatedMs)
	}
	if p.Note != nil {
		sets = append(sets, "note = ?")
		args = append(args, *p.Note)
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return errors.NewInvalidRequest(fmt.Sprintf("unknown status %q", *p.Status))
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
	}
	if p.SubmissionDate != nil {
		sets = append(sets, "submitted_ms = ?")
		args = append(args, nullMs(p.SubmissionDate))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, scope.Key(), id)
	res, err := db.ExecContext(ctx,
		`UPDATE time_entries SET `+strings.Join(sets, ", ")+` WHERE scope = ? AND id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update session %s: %w", id, err)
	}
	return requireRow(res, "session", id)
}

// DeleteSession removes the session id from scope.
func (s *Store) DeleteSession(ctx context.Context, scope Scope, id string) error {
	if err := scope.Validate(); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	if err := deleteSession(ctx, s.db, scope, id); err != nil {
		return err
	}
	s.publish(scope)
	return nil
}

func deleteSession(ctx context.Context, db execer, scope Scope, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM time_entries WHERE scope = ? AND id = ?`, scope.Key(), id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return requireRow(res, "session", id)
}

// GetSession loads one session.
func (s *Store) GetSession(ctx context.Context, scope Scope, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM time_entries WHERE scope = ? AND id = ?`, scope.Key(), id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns every session in scope, newest first.
func (s *Store) ListSessions(ctx context.Context, scope Scope) ([]Session, error) {
	return s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM time_entries WHERE scope = ? ORDER BY created_ms DESC, id DESC`,
		scope.Key())
}

// ActiveSessions returns the sessions of scope that have no end time.
func (s *Store) ActiveSessions(ctx context.Context, scope Scope) ([]Session, error) {
	return s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM time_entries WHERE scope = ? AND end_ms IS NULL ORDER BY created_ms DESC, id DESC`,
		scope.Key())
}

// QuerySessions returns the sessions of scope whose field equals value.
func (s *Store) QuerySessions(ctx context.Context, scope Scope, field Field, value string) ([]Session, error) {
	if !field.valid() {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot query by field %q", field))
	}
	return s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM time_entries WHERE scope = ? AND `+string(field)+` = ? ORDER BY created_ms DESC, id DESC`,
		scope.Key(), value)
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess                      Session
		status                    string
		startMs, endMs, submitted sql.NullInt64
		createdMs                 int64
	)
	err := row.Scan(&sess.ID, &sess.TicketID, &startMs, &endMs, &sess.AccumulatedMs,
		&sess.Note, &status, &submitted, &createdMs)
	if err != nil {
		return nil, err
	}
	sess.Status = Status(status)
	sess.StartTime = fromMs(startMs)
	sess.EndTime = fromMs(endMs)
	sess.SubmissionDate = fromMs(submitted)
	sess.CreatedAt = time.UnixMilli(createdMs)
	return &sess, nil
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errors.NewNotFound(kind, id)
	}
	return nil
}

func toMs(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func nullMs(n *sql.Null[time.Time]) any {
	if n == nil || !n.Valid {
		return nil
	}
	return n.V.UnixMilli()
}

func fromMs(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64)
	return &t
}
