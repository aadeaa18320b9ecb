// Package tracker ties the store subscription, the timer machine and the log
// pipeline together and is the single entry point for user actions. Every
// action fails fast with BUSY while another write is in flight.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
	"github.com/Timborini/ticktacktoto-sub000/internal/logs"
	"github.com/Timborini/ticktacktoto-sub000/internal/store"
	"github.com/Timborini/ticktacktoto-sub000/internal/timer"
)

// DefaultStartupTimeout bounds the wait for the first snapshot.
const DefaultStartupTimeout = 10 * time.Second

// Backend is the session store the tracker runs against.
type Backend interface {
	timer.Store
	Subscribe(ctx context.Context, scope store.Scope) (<-chan store.Snapshot, error)
	DeleteSession(ctx context.Context, scope store.Scope, id string) error
	SetTicketStatus(ctx context.Context, scope store.Scope, ticketID string, closed bool) error
	QuerySessions(ctx context.Context, scope store.Scope, field store.Field, value string) ([]store.Session, error)
	BatchLimit() int
}

// Recents records tickets the user started.
type Recents interface {
	AddRecent(ticketID string) error
}

// Options configure a Tracker. Zero values select defaults.
type Options struct {
	StartupTimeout time.Duration
	MaxSegment     time.Duration
	TickInterval   time.Duration
	Location       *time.Location
	Now            func() time.Time
	Logger         *slog.Logger
	Recents        Recents
	// Banner seeds the dismissible error message, e.g. a failed sign-in
	// that fell back to another identity. Startup failures replace it.
	Banner string
}

// Update is pushed to watchers after every snapshot and every display tick.
type Update struct {
	Snapshot store.Snapshot
	Timer    timer.Status
	Notices  []string
	Banner   string
}

// Tracker is the live state of one scope.
type Tracker struct {
	backend Backend
	scope   store.Scope
	machine *timer.Machine
	log     *slog.Logger
	loc     *time.Location
	now     func() time.Time
	recents Recents

	snaps     <-chan store.Snapshot
	cancelSub context.CancelFunc
	busy      atomic.Bool

	mu        sync.RWMutex
	snap      store.Snapshot
	banner    string
	subBanner bool // banner came from the subscription

	wmu      sync.Mutex
	watchers map[int]chan Update
	nextW    int
	closed   bool
}

// Open subscribes to scope and waits for the first snapshot. The tracker is
// always returned usable; when the first snapshot failed or did not arrive
// before the startup timeout the error is returned alongside it and shown as
// the banner.
func Open(ctx context.Context, backend Backend, scope store.Scope, opts Options) (*Tracker, error) {
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = DefaultStartupTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	t := &Tracker{
		backend:  backend,
		scope:    scope,
		log:      opts.Logger.With("scope", scope.Key()),
		loc:      opts.Location,
		now:      opts.Now,
		recents:  opts.Recents,
		banner:   opts.Banner,
		watchers: make(map[int]chan Update),
	}
	t.machine = timer.New(backend, scope, timer.Options{
		Now:          opts.Now,
		MaxSegment:   opts.MaxSegment,
		TickInterval: opts.TickInterval,
		OnTick:       t.onTick,
	})

	subCtx, cancel := context.WithCancel(context.Background())
	snaps, err := backend.Subscribe(subCtx, scope)
	if err != nil {
		cancel()
		subErr := errors.NewSubscription(err)
		t.log.Error("subscribe failed", "err", err)
		t.setBanner(subErr)
		return t, subErr
	}
	t.snaps = snaps
	t.cancelSub = cancel

	timeout := time.NewTimer(opts.StartupTimeout)
	defer timeout.Stop()

	select {
	case snap, ok := <-snaps:
		if !ok {
			subErr := errors.NewSubscription(fmt.Errorf("subscription closed before the first snapshot"))
			t.setBanner(subErr)
			return t, subErr
		}
		if err := t.apply(snap); err != nil {
			return t, err
		}
		return t, nil
	case <-timeout.C:
		tErr := errors.NewTimeout("loading your sessions", nil)
		t.log.Error("startup timed out", "after", opts.StartupTimeout)
		t.setBanner(tErr)
		return t, tErr
	case <-ctx.Done():
		tErr := errors.NewTimeout("loading your sessions", ctx.Err())
		t.setBanner(tErr)
		return t, tErr
	}
}

// Run applies snapshots until ctx ends or the subscription closes.
func (t *Tracker) Run(ctx context.Context) error {
	if t.snaps == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-t.snaps:
			if !ok {
				return nil
			}
			t.apply(snap)
		}
	}
}

// Close ends the subscription, the display tick and all watchers.
func (t *Tracker) Close() {
	if t.cancelSub != nil {
		t.cancelSub()
	}
	t.machine.Close()

	t.wmu.Lock()
	defer t.wmu.Unlock()
	t.closed = true
	for id, ch := range t.watchers {
		close(ch)
		delete(t.watchers, id)
	}
}

// apply replaces the cache with snap. A failed snapshot keeps the previous
// cache and raises a banner.
func (t *Tracker) apply(snap store.Snapshot) error {
	if snap.Err != nil {
		subErr := errors.NewSubscription(snap.Err)
		t.log.Error("snapshot failed", "err", snap.Err)
		t.setBanner(subErr)
		t.broadcast(t.update(nil))
		return subErr
	}

	t.machine.Apply(snap)

	t.mu.Lock()
	t.snap = snap
	if t.subBanner {
		t.banner, t.subBanner = "", false
	}
	t.mu.Unlock()

	t.log.Debug("snapshot applied", "version", snap.Version, "sessions", len(snap.Sessions))
	t.broadcast(t.update(nil))
	return nil
}

func (t *Tracker) onTick(tk timer.Tick) {
	var notices []string
	for _, th := range tk.Crossed {
		notices = append(notices, timer.ThresholdMessage(th))
	}
	u := t.update(notices)
	u.Timer = tk.Status
	t.broadcast(u)
}

func (t *Tracker) update(notices []string) Update {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Update{
		Snapshot: t.snap,
		Timer:    t.machine.Status(),
		Notices:  notices,
		Banner:   t.banner,
	}
}

// Watch streams updates, starting with the current state. Slow readers only
// see the latest update. The channel closes when ctx ends or the tracker is
// closed.
func (t *Tracker) Watch(ctx context.Context) <-chan Update {
	ch := make(chan Update, 1)
	first := t.update(nil)

	t.wmu.Lock()
	if t.closed {
		t.wmu.Unlock()
		close(ch)
		return ch
	}
	id := t.nextW
	t.nextW++
	t.watchers[id] = ch
	send(ch, first)
	t.wmu.Unlock()

	go func() {
		<-ctx.Done()
		t.wmu.Lock()
		defer t.wmu.Unlock()
		if w, ok := t.watchers[id]; ok {
			close(w)
			delete(t.watchers, id)
		}
	}()
	return ch
}

// Await blocks until a snapshot newer than version has been applied and
// returns the timer status it produced.
func (t *Tracker) Await(ctx context.Context, version uint64) (timer.Status, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for u := range t.Watch(ctx) {
		if u.Snapshot.Version > version {
			return u.Timer, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return t.Status(), err
	}
	return t.Status(), errors.NewSubscription(fmt.Errorf("tracker closed"))
}

func (t *Tracker) broadcast(u Update) {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	for _, ch := range t.watchers {
		send(ch, u)
	}
}

// send replaces any undelivered update in ch with u. Notices of a replaced
// update are carried over so threshold toasts are not lost.
func send(ch chan Update, u Update) {
	select {
	case ch <- u:
		return
	default:
	}
	select {
	case old := <-ch:
		if len(old.Notices) > 0 {
			u.Notices = append(old.Notices, u.Notices...)
		}
	default:
	}
	select {
	case ch <- u:
	default:
	}
}

// Scope is the scope the tracker reads and writes.
func (t *Tracker) Scope() store.Scope { return t.scope }

// Location is the zone used for calendar dates.
func (t *Tracker) Location() *time.Location { return t.loc }

// Snapshot returns the cached snapshot.
func (t *Tracker) Snapshot() store.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Status returns the timer status at the current time.
func (t *Tracker) Status() timer.Status {
	return t.machine.Status()
}

// MaxSegment is the longest accepted run segment.
func (t *Tracker) MaxSegment() time.Duration {
	return t.machine.MaxSegment()
}

// Banner returns the persistent error message, if any.
func (t *Tracker) Banner() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.banner
}

// DismissBanner clears the banner.
func (t *Tracker) DismissBanner() {
	t.mu.Lock()
	t.banner, t.subBanner = "", false
	t.mu.Unlock()
	t.broadcast(t.update(nil))
}

// Busy reports whether a write is in flight.
func (t *Tracker) Busy() bool { return t.busy.Load() }

// View runs the log pipeline over the cached snapshot.
func (t *Tracker) View(c logs.Criteria) logs.Result {
	if c.Location == nil {
		c.Location = t.loc
	}
	snap := t.Snapshot()
	return logs.Aggregate(snap.Sessions, snap.Statuses, c)
}

func (t *Tracker) setBanner(err error) {
	t.mu.Lock()
	t.banner = errors.UserMessage(err)
	t.subBanner = errors.CategoryOf(err) == errors.CategorySubscription
	t.mu.Unlock()
}

// do runs a mutating action under the busy flag. Failures are logged once
// here and returned as coded errors.
func (t *Tracker) do(action string, fn func() error) error {
	if !t.busy.CompareAndSwap(false, true) {
		return errors.NewBusy()
	}
	defer t.busy.Store(false)

	err := fn()
	if err == nil {
		t.log.Debug("action done", "action", action)
		return nil
	}
	if errors.CategoryOf(err) == errors.CategoryInternal {
		err = errors.NewWrite(action, err)
	}
	if errors.CategoryOf(err) == errors.CategoryValidation {
		t.log.Info("action rejected", "action", action, "err", err)
	} else {
		t.log.Error("action failed", "action", action, "err", err)
	}
	return err
}
