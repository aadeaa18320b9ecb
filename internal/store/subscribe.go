package store

import (
	"context"
	"fmt"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
)

type subscriber struct {
	key string
	ch  chan Snapshot
}

// Subscribe streams full snapshots of scope. The current snapshot is
// delivered immediately and a new one follows every committed write to the
// scope. The channel holds at most one snapshot: a slow reader only ever sees
// the latest. It is closed when ctx ends or the store is closed.
func (s *Store) Subscribe(ctx context.Context, scope Scope) (<-chan Snapshot, error) {
	if err := scope.Validate(); err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	ch := make(chan Snapshot, 1)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = &subscriber{key: scope.Key(), ch: ch}
	deliver(ch, s.load(ctx, scope))
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if sub, ok := s.subs[id]; ok {
			close(sub.ch)
			delete(s.subs, id)
		}
	}()

	return ch, nil
}

// Snapshot loads the current content of scope without subscribing.
func (s *Store) Snapshot(ctx context.Context, scope Scope) Snapshot {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.load(ctx, scope)
}

// publish pushes a fresh snapshot to every subscriber of scope.
func (s *Store) publish(scope Scope) {
	key := scope.Key()

	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.version[key]++

	var targets []chan Snapshot
	for _, sub := range s.subs {
		if sub.key == key {
			targets = append(targets, sub.ch)
		}
	}
	if len(targets) == 0 {
		return
	}

	snap := s.load(context.Background(), scope)
	for _, ch := range targets {
		deliver(ch, snap)
	}
}

// load reads scope; callers hold subMu.
func (s *Store) load(ctx context.Context, scope Scope) Snapshot {
	snap := Snapshot{Scope: scope, Version: s.version[scope.Key()]}

	sessions, err := s.ListSessions(ctx, scope)
	if err != nil {
		snap.Err = fmt.Errorf("load sessions: %w", err)
		return snap
	}
	statuses, err := s.ListTicketStatuses(ctx, scope)
	if err != nil {
		snap.Err = fmt.Errorf("load ticket statuses: %w", err)
		return snap
	}
	snap.Sessions = sessions
	snap.Statuses = statuses
	return snap
}

// deliver replaces any undelivered snapshot in ch with snap.
func deliver(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
