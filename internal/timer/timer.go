// Package timer derives the Idle/Running/Paused state of a scope from its open
// session and performs the transitions between those states.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
	"github.com/Timborini/ticktacktoto-sub000/internal/sanitize"
	"github.com/Timborini/ticktacktoto-sub000/internal/store"
)

// State is the timer state derived from the active session.
type State int

const (
	Idle State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

const (
	// DefaultMaxSegment bounds a single run segment; longer deltas are
	// treated as clock skew or stale state.
	DefaultMaxSegment = 30 * 24 * time.Hour

	// MinFinalDuration is the floor applied when a session is finalized.
	MinFinalDuration = time.Second
)

// Store is the part of the session store the machine writes through.
type Store interface {
	ActiveSessions(ctx context.Context, scope store.Scope) ([]store.Session, error)
	TicketClosed(ctx context.Context, scope store.Scope, ticketID string) (bool, error)
	CreateSession(ctx context.Context, scope store.Scope, sess store.Session) (string, error)
	UpdateSession(ctx context.Context, scope store.Scope, id string, patch store.SessionPatch) error
	Batch(ctx context.Context, scope store.Scope, ops []store.BatchOp) ([]string, error)
}

// Status is a point-in-time view of the timer.
type Status struct {
	State   State
	Session *store.Session
	Elapsed time.Duration
}

// Derive computes the timer status of an active session at now.
func Derive(active *store.Session, now time.Time) Status {
	if active == nil || !active.Open() {
		return Status{State: Idle}
	}
	acc := time.Duration(active.AccumulatedMs) * time.Millisecond
	if active.StartTime == nil {
		return Status{State: Paused, Session: active, Elapsed: acc}
	}
	run := now.Sub(*active.StartTime)
	if run < 0 {
		run = 0
	}
	return Status{State: Running, Session: active, Elapsed: acc + run}
}

// Tick is delivered once per tick interval while a session is running.
type Tick struct {
	Status  Status
	Crossed []time.Duration
}

// Options configure a Machine. Zero values select the defaults.
type Options struct {
	Now          func() time.Time
	MaxSegment   time.Duration
	TickInterval time.Duration
	OnTick       func(Tick)
}

// Machine owns the timer state of one scope. Transitions always re-read the
// active session from the store; the cached status only drives the display.
type Machine struct {
	store      Store
	scope      store.Scope
	now        func() time.Time
	maxSegment time.Duration
	onTick     func(Tick)
	ticker     *Ticker

	mu     sync.Mutex
	active *store.Session
	runKey string
	fired  map[time.Duration]bool
}

// New creates a machine for scope.
func New(st Store, scope store.Scope, opts Options) *Machine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxSegment <= 0 {
		opts.MaxSegment = DefaultMaxSegment
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	return &Machine{
		store:      st,
		scope:      scope,
		now:        opts.Now,
		maxSegment: opts.MaxSegment,
		onTick:     opts.OnTick,
		ticker:     NewTicker(opts.TickInterval),
		fired:      make(map[time.Duration]bool),
	}
}

// Scope returns the scope the machine writes to.
func (m *Machine) Scope() store.Scope { return m.scope }

// MaxSegment returns the longest run segment accepted by Pause and Stop.
func (m *Machine) MaxSegment() time.Duration { return m.maxSegment }

// Status returns the cached status with elapsed time computed now.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Derive(m.active, m.now())
}

// Apply replaces the cached active session with the one in snap and
// schedules or cancels the display tick accordingly.
func (m *Machine) Apply(snap store.Snapshot) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = snap.Active()
	st := Derive(m.active, m.now())

	if st.State != Running {
		m.ticker.Stop()
		m.runKey = ""
		return st
	}

	key := runKey(st.Session)
	if key != m.runKey || !m.ticker.Running() {
		if key != m.runKey {
			m.fired = make(map[time.Duration]bool)
		}
		m.runKey = key
		m.ticker.Start(m.tick)
	}
	return st
}

// Close cancels the display tick.
func (m *Machine) Close() {
	m.ticker.Stop()
}

func (m *Machine) tick(now time.Time) {
	m.mu.Lock()
	st := Derive(m.active, now)
	if st.State != Running {
		m.mu.Unlock()
		return
	}
	crossed := Crossed(st.Elapsed, m.fired)
	for _, th := range crossed {
		m.fired[th] = true
	}
	onTick := m.onTick
	m.mu.Unlock()

	if onTick != nil {
		onTick(Tick{Status: st, Crossed: crossed})
	}
}

// runKey identifies one running segment: the same session resumed later is a
// new run.
func runKey(s *store.Session) string {
	return fmt.Sprintf("%s@%d", s.ID, s.StartTime.UnixMilli())
}

// current reads the newest open session from the store.
func (m *Machine) current(ctx context.Context) (*store.Session, []store.Session, error) {
	open, err := m.store.ActiveSessions(ctx, m.scope)
	if err != nil {
		return nil, nil, errors.NewWrite("load the active session", err)
	}
	if len(open) == 0 {
		return nil, nil, nil
	}
	return &open[0], open, nil
}

// Start begins timing ticketID. When another ticket is running or paused it
// is finalized and the new session created in one atomic batch. Starting the
// ticket that is already paused resumes it. It returns the id of the running
// session.
func (m *Machine) Start(ctx context.Context, ticketID, note string) (string, error) {
	ticketID = sanitize.TicketID(ticketID)
	note = sanitize.Note(note)
	if ticketID == "" {
		return "", errors.NewEmptyTicket()
	}
	if err := m.ensureOpen(ctx, ticketID); err != nil {
		return "", err
	}

	active, open, err := m.current(ctx)
	if err != nil {
		return "", err
	}
	now := m.now()

	if active == nil {
		if err := ensureNoOtherActive(open); err != nil {
			return "", err
		}
		id, err := m.store.CreateSession(ctx, m.scope, newSession(ticketID, note, now))
		if err != nil {
			return "", writeErr("start the timer", err)
		}
		return id, nil
	}

	if active.TicketID == ticketID {
		if active.Running() {
			return "", errors.NewInvalidTransition(fmt.Sprintf("%s is already running", ticketID))
		}
		return active.ID, m.resume(ctx, active, note, now)
	}
	return m.override(ctx, active, open, ticketID, note, now)
}

// Pause banks the running segment of the active session.
func (m *Machine) Pause(ctx context.Context, note string) error {
	active, _, err := m.current(ctx)
	if err != nil {
		return err
	}
	if active == nil || !active.Running() {
		return errors.NewInvalidTransition("no running session to pause")
	}

	now := m.now()
	run, err := m.segment(active, now)
	if err != nil {
		return err
	}
	patch := store.SessionPatch{
		StartTime:     store.Null(),
		AccumulatedMs: store.Ptr(clampNonNegative(active.AccumulatedMs + run.Milliseconds())),
	}
	setNote(&patch, note)
	if err := m.store.UpdateSession(ctx, m.scope, active.ID, patch); err != nil {
		return writeErr("pause the timer", err)
	}
	return nil
}

// Resume restarts the paused session. A ticketID naming a different ticket
// starts that ticket instead, finalizing the paused one. An empty ticketID
// resumes the paused ticket.
func (m *Machine) Resume(ctx context.Context, ticketID, note string) (string, error) {
	active, _, err := m.current(ctx)
	if err != nil {
		return "", err
	}
	ticketID = sanitize.TicketID(ticketID)
	if active == nil {
		return "", errors.NewInvalidTransition("no paused session to resume")
	}
	if ticketID != "" && ticketID != active.TicketID {
		return m.Start(ctx, ticketID, note)
	}
	if active.Running() {
		return "", errors.NewInvalidTransition(fmt.Sprintf("%s is already running", active.TicketID))
	}
	if err := m.ensureOpen(ctx, active.TicketID); err != nil {
		return "", err
	}
	return active.ID, m.resume(ctx, active, sanitize.Note(note), m.now())
}

func (m *Machine) resume(ctx context.Context, active *store.Session, note string, now time.Time) error {
	patch := store.SessionPatch{StartTime: store.At(now)}
	setNote(&patch, note)
	if err := m.store.UpdateSession(ctx, m.scope, active.ID, patch); err != nil {
		return writeErr("resume the timer", err)
	}
	return nil
}

// Stop finalizes the active session and returns its id. With no active
// session it does nothing and returns "".
func (m *Machine) Stop(ctx context.Context, note string) (string, error) {
	active, _, err := m.current(ctx)
	if err != nil {
		return "", err
	}
	if active == nil {
		return "", nil
	}
	patch, err := m.finalize(active, sanitize.Note(note), m.now())
	if err != nil {
		return "", err
	}
	if err := m.store.UpdateSession(ctx, m.scope, active.ID, patch); err != nil {
		return "", writeErr("stop the timer", err)
	}
	return active.ID, nil
}

func (m *Machine) override(ctx context.Context, active *store.Session, open []store.Session, ticketID, note string, now time.Time) (string, error) {
	if err := ensureNoOtherActive(open, active.ID); err != nil {
		return "", err
	}
	patch, err := m.finalize(active, "", now)
	if err != nil {
		return "", err
	}
	ids, err := m.store.Batch(ctx, m.scope, []store.BatchOp{
		store.UpdateOp(active.ID, patch),
		store.CreateOp(newSession(ticketID, note, now)),
	})
	if err != nil {
		return "", writeErr("switch tickets", err)
	}
	if len(ids) != 1 {
		return "", errors.NewInternal(fmt.Errorf("override created %d sessions", len(ids)))
	}
	return ids[0], nil
}

// finalize builds the patch that closes active at now.
func (m *Machine) finalize(active *store.Session, note string, now time.Time) (store.SessionPatch, error) {
	acc := active.AccumulatedMs
	if active.Running() {
		run, err := m.segment(active, now)
		if err != nil {
			return store.SessionPatch{}, err
		}
		acc += max(MinFinalDuration.Milliseconds(), run.Milliseconds())
	} else {
		acc = max(MinFinalDuration.Milliseconds(), acc)
	}

	patch := store.SessionPatch{
		StartTime:     store.Null(),
		EndTime:       store.At(now),
		AccumulatedMs: store.Ptr(clampNonNegative(acc)),
		Status:        store.Ptr(store.StatusUnsubmitted),
	}
	setNote(&patch, note)
	return patch, nil
}

// segment validates and returns the length of the running segment of active.
func (m *Machine) segment(active *store.Session, now time.Time) (time.Duration, error) {
	if active.StartTime == nil || active.StartTime.UnixMilli() <= 0 {
		return 0, errors.NewInvalidStartTime(active.ID)
	}
	run := now.Sub(*active.StartTime)
	if run < 0 || run > m.maxSegment {
		return 0, errors.NewDurationOutOfRange(run.Milliseconds(), m.maxSegment.Milliseconds())
	}
	return run, nil
}

func (m *Machine) ensureOpen(ctx context.Context, ticketID string) error {
	closed, err := m.store.TicketClosed(ctx, m.scope, ticketID)
	if err != nil {
		return errors.NewWrite("check the ticket status", err)
	}
	if closed {
		return errors.NewTicketClosed(ticketID)
	}
	return nil
}

// ensureNoOtherActive fails when a session is open that the current operation
// does not finalize.
func ensureNoOtherActive(open []store.Session, finalizing ...string) error {
	for _, s := range open {
		skip := false
		for _, id := range finalizing {
			if s.ID == id {
				skip = true
				break
			}
		}
		if !skip {
			return errors.NewActiveSessionExists(s.ID, s.TicketID)
		}
	}
	return nil
}

func newSession(ticketID, note string, now time.Time) store.Session {
	return store.Session{
		TicketID:      ticketID,
		StartTime:     &now,
		AccumulatedMs: 0,
		Note:          note,
		Status:        store.StatusUnsubmitted,
		CreatedAt:     now,
	}
}

// setNote persists note when one was given; an empty note keeps the stored one.
func setNote(p *store.SessionPatch, note string) {
	if note != "" {
		p.Note = store.Ptr(sanitize.Note(note))
	}
}

func clampNonNegative(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	return ms
}

// writeErr keeps coded store errors and wraps everything else as a failed
// write.
func writeErr(action string, err error) error {
	if errors.CategoryOf(err) != errors.CategoryInternal {
		return err
	}
	return errors.NewWrite(action, err)
}
