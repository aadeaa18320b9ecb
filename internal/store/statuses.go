package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
)

// SetTicketStatus creates or updates the status document of ticketID.
func (s *Store) SetTicketStatus(ctx context.Context, scope Scope, ticketID string, closed bool) error {
	if err := scope.Validate(); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	if err := upsertStatus(ctx, s.db, scope, ticketID, closed); err != nil {
		return err
	}
	s.publish(scope)
	return nil
}

func upsertStatus(ctx context.Context, db execer, scope Scope, ticketID string, closed bool) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO ticket_statuses (scope, ticket_id, is_closed, updated_ms) VALUES (?, ?, ?, ?)
		 ON CONFLICT(scope, ticket_id) DO UPDATE SET is_closed = excluded.is_closed, updated_ms = excluded.updated_ms`,
		scope.Key(), ticketID, boolInt(closed), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("set ticket status %q: %w", ticketID, err)
	}
	return nil
}

func deleteStatus(ctx context.Context, db execer, scope Scope, ticketID string) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM ticket_statuses WHERE scope = ? AND ticket_id = ?`, scope.Key(), ticketID)
	if err != nil {
		return fmt.Errorf("delete ticket status %q: %w", ticketID, err)
	}
	return nil
}

// TicketClosed reports whether ticketID is closed. Tickets without a status
// document are open.
func (s *Store) TicketClosed(ctx context.Context, scope Scope, ticketID string) (bool, error) {
	var closed int
	err := s.db.QueryRowContext(ctx,
		`SELECT is_closed FROM ticket_statuses WHERE scope = ? AND ticket_id = ?`, scope.Key(), ticketID,
	).Scan(&closed)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("get ticket status %q: %w", ticketID, err)
	}
	return closed == 1, nil
}

// ListTicketStatuses returns every status document in scope.
func (s *Store) ListTicketStatuses(ctx context.Context, scope Scope) ([]TicketStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticket_id, is_closed, updated_ms FROM ticket_statuses WHERE scope = ? ORDER BY ticket_id`,
		scope.Key())
	if err != nil {
		return nil, fmt.Errorf("list ticket statuses: %w", err)
	}
	defer rows.Close()

	var statuses []TicketStatus
	for rows.Next() {
		var st TicketStatus
		var closed int
		var updated int64
		if err := rows.Scan(&st.TicketID, &closed, &updated); err != nil {
			return nil, err
		}
		st.Closed = closed == 1
		st.UpdatedAt = time.UnixMilli(updated)
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
