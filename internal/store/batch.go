package store

import (
	"context"
	"fmt"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
)

// OpKind is the kind of write inside a batch.
type OpKind int

const (
	OpCreateSession OpKind = iota
	OpUpdateSession
	OpDeleteSession
	OpSetStatus
	OpDeleteStatus
)

// BatchOp is one write of an atomic batch.
type BatchOp struct {
	Kind     OpKind
	ID       string       // session id for update/delete
	Session  Session      // create
	Patch    SessionPatch // update
	TicketID string       // set/delete status
	Closed   bool         // set status
}

func CreateOp(sess Session) BatchOp {
	return BatchOp{Kind: OpCreateSession, Session: sess}
}

func UpdateOp(id string, patch SessionPatch) BatchOp {
	return BatchOp{Kind: OpUpdateSession, ID: id, Patch: patch}
}

func DeleteOp(id string) BatchOp {
	return BatchOp{Kind: OpDeleteSession, ID: id}
}

func SetStatusOp(ticketID string, closed bool) BatchOp {
	return BatchOp{Kind: OpSetStatus, TicketID: ticketID, Closed: closed}
}

func DeleteStatusOp(ticketID string) BatchOp {
	return BatchOp{Kind: OpDeleteStatus, TicketID: ticketID}
}

// Batch commits ops in one transaction: either all apply or none do. It
// returns the ids assigned to created sessions, in op order. Updates and
// deletes that match no document abort the batch with NOT_FOUND.
func (s *Store) Batch(ctx context.Context, scope Scope, ops []BatchOp) ([]string, error) {
	if err := scope.Validate(); err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	if len(ops) == 0 {
		return nil, nil
	}
	if len(ops) > s.batchLimit {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("batch of %d writes exceeds limit %d", len(ops), s.batchLimit))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	var created []string
	for i, op := range ops {
		switch op.Kind {
		case OpCreateSession:
			id, err := insertSession(ctx, tx, scope, op.Session)
			if err != nil {
				return nil, fmt.Errorf("batch op %d: %w", i, err)
			}
			created = append(created, id)
		case OpUpdateSession:
			if op.Patch.Empty() {
				continue
			}
			err = updateSession(ctx, tx, scope, op.ID, op.Patch)
		case OpDeleteSession:
			err = deleteSession(ctx, tx, scope, op.ID)
		case OpSetStatus:
			err = upsertStatus(ctx, tx, scope, op.TicketID, op.Closed)
		case OpDeleteStatus:
			err = deleteStatus(ctx, tx, scope, op.TicketID)
		default:
			err = errors.NewInvalidRequest(fmt.Sprintf("unknown batch op kind %d", op.Kind))
		}
		if err != nil {
			return nil, fmt.Errorf("batch op %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	s.publish(scope)
	return created, nil
}
