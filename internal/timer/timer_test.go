package timer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
	"github.com/Timborini/ticktacktoto-sub000/internal/store"
)

var testScope = store.UserScope("app", "u1")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestMachine(t *testing.T, st Store, clk *fakeClock, maxSegment time.Duration) *Machine {
	t.Helper()
	m := New(st, testScope, Options{Now: clk.Now, MaxSegment: maxSegment})
	t.Cleanup(m.Close)
	return m
}

func get(t *testing.T, s *store.Store, id string) *store.Session {
	t.Helper()
	sess, err := s.GetSession(context.Background(), testScope, id)
	require.NoError(t, err)
	return sess
}

func openCount(t *testing.T, s *store.Store) int {
	t.Helper()
	open, err := s.ActiveSessions(context.Background(), testScope)
	require.NoError(t, err)
	return len(open)
}

// ============================================================
// Derive
// ============================================================

func TestDerive(t *testing.T) {
	now := time.UnixMilli(100_000)
	start := time.UnixMilli(40_000)
	end := now

	require.Equal(t, Idle, Derive(nil, now).State)
	require.Equal(t, Idle, Derive(&store.Session{EndTime: &end}, now).State)

	paused := Derive(&store.Session{AccumulatedMs: 5000}, now)
	require.Equal(t, Paused, paused.State)
	require.Equal(t, 5*time.Second, paused.Elapsed)

	running := Derive(&store.Session{AccumulatedMs: 5000, StartTime: &start}, now)
	require.Equal(t, Running, running.State)
	require.Equal(t, 65*time.Second, running.Elapsed)

	future := time.UnixMilli(200_000)
	skewed := Derive(&store.Session{AccumulatedMs: 5000, StartTime: &future}, now)
	require.Equal(t, 5*time.Second, skewed.Elapsed)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "idle", Idle.String())
	require.Equal(t, "running", Running.String())
	require.Equal(t, "paused", Paused.String())
}

// ============================================================
// Transitions
// ============================================================

func TestPauseResumeStopScenario(t *testing.T) {
	s := newTestStore(t)
	clk := newClock()
	m := newTestMachine(t, s, clk, 0)
	ctx := context.Background()
	t0 := clk.Now()

	id, err := m.Start(ctx, "PROJ-1", "")
	require.NoError(t, err)

	clk.Advance(65 * time.Second)
	require.NoError(t, m.Pause(ctx, ""))
	sess := get(t, s, id)
	require.Equal(t, int64(65_000), sess.AccumulatedMs)
	require.Nil(t, sess.StartTime)
	require.Nil(t, sess.EndTime)

	clk.Advance(5 * time.Second)
	resumed, err := m.Resume(ctx, "PROJ-1", "")
	require.NoError(t, err)
	require.Equal(t, id, resumed)

	clk.Advance(60 * time.Second)
	stopped, err := m.Stop(ctx, "wrapped up")
	require.NoError(t, err)
	require.Equal(t, id, stopped)

	sess = get(t, s, id)
	require.Equal(t, int64(125_000), sess.AccumulatedMs)
	require.Equal(t, t0.Add(130*time.Second).UnixMilli(), sess.EndTime.UnixMilli())
	require.Nil(t, sess.StartTime)
	require.Equal(t, "wrapped up", sess.Note)
	require.Equal(t, store.StatusUnsubmitted, sess.Status)
}

func TestStopImmediatelyFloorsToOneSecond(t *testing.T) {
	s := newTestStore(t)
	m := newTestMachine(t, s, newClock(), 0)
	ctx := context.Background()

	id, err := m.Start(ctx, "T-1", "")
	require.NoError(t, err)
	_, err = m.Stop(ctx, "")
	require.NoError(t, err)

	require.Equal(t, int64(1000), get(t, s, id).AccumulatedMs)
}

func TestStopFromPausedFloorsToOneSecond(t *testing.T) {
	s := newTestStore(t)
	clk := newClock()
	m := newTestMachine(t, s, clk, 0)
	ctx := context.Background()

	id, err := m.Start(ctx, "T-1", "")
	require.NoError(t, err)
	clk.Advance(200 * time.Millisecond)
	require.NoError(t, m.Pause(ctx, ""))
	_, err = m.Stop(ctx, "")
	require.NoError(t, err)

	require.Equal(t, int64(1000), get(t, s, id).AccumulatedMs)
}

func TestSecondStopIsNoop(t *testing.T) {
	s := newTestStore(t)
	clk := newClock()
	m := newTestMachine(t, s, clk, 0)
	ctx := context.Background()

	id, err := m.Start(ctx, "T-1", "")
	require.NoError(t, err)
	clk.Advance(10 * time.Second)
	_, err = m.Stop(ctx, "")
	require.NoError(t, err)

	clk.Advance(10 * time.Second)
	again, err := m.Stop(ctx, "")
	require.NoError(t, err)
	require.Empty(t, again)
	require.Equal(t, int64(10_000), get(t, s, id).AccumulatedMs)
}

func TestStartWhileRunningOverrides(t *testing.T) {
	s := newTestStore(t)
	clk := newClock()
	m := newTestMachine(t, s, clk, 0)
	ctx := context.Background()

	first, err := m.Start(ctx, "T-1", "")
	require.NoError(t, err)
	clk.Advance(42 * time.Second)

	second, err := m.Start(ctx, "T-2", "next")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	old := get(t, s, first)
	require.NotNil(t, old.EndTime)
	require.Equal(t, int64(42_000), old.AccumulatedMs)

	cur := get(t, s, second)
	require.True(t, cur.Running())
	require.Equal(t, "next", cur.Note)
	require.Equal(t, 1, openCount(t, s))
}

func TestResumeOtherTicketOverridesPaused(t *testing.T) {
	s := newTestStore(t)
	clk := newClock()
	m := newTestMachine(t, s, clk, 0)
	ctx := context.Background()

	first, err := m.Start(ctx, "T-1", "")
	require.NoError(t, err)
	clk.Advance(5 * time.Second)
	require.NoError(t, m.Pause(ctx, ""))

	second, err := m.Resume(ctx, "T-2", "")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Equal(t, int64(5000), get(t, s, first).AccumulatedMs)
	require.NotNil(t, get(t, s, first).EndTime)
	require.Equal(t, 1, openCount(t, s))
}

func TestStartSamePausedTicketResumes(t *testing.T) {
	s := newTestStore(t)
	clk := newClock()
	m := newTestMachine(t, s, clk, 0)
	ctx := context.Background()

	id, err := m.Start(ctx, "T-1", "")
	require.NoError(t, err)
	require.NoError(t, m.Pause(ctx, ""))

	again, err := m.Start(ctx, "T-1", "")
	require.NoError(t, err)
	require.Equal(t, id, again)
	require.True(t, get(t, s, id).Running())
}

func TestStartSameRunningTicketRejected(t *testing.T) {
	s := newTestStore(t)
	m := newTestMachine(t, s, newClock(), 0)
	ctx := context.Background()

	_, err := m.Start(ctx, "T-1", "")
	require.NoError(t, err)
	_, err = m.Start(ctx, "T-1", "")
	require.True(t, errors.Is(err, errors.ErrInvalidTransition))
}

func TestEmptyTicketRejected(t *testing.T) {
	s := newTestStore(t)
	m := newTestMachine(t, s, newClock(), 0)

	_, err := m.Start(context.Background(), "  \t ", "")
	require.True(t, errors.Is(err, errors.ErrEmptyTicket))
	require.Equal(t, 0, openCount(t, s))
}

func TestClosedTicketGuard(t *testing.T) {
	s := newTestStore(t)
	m := newTestMachine(t, s, newClock(), 0)
	ctx := context.Background()
	require.NoError(t, s.SetTicketStatus(ctx, testScope, "T-1", true))

	_, err := m.Start(ctx, "T-1", "")
	require.True(t, errors.Is(err, errors.ErrTicketClosed))

	sessions, err := s.ListSessions(ctx, testScope)
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestClosedTicketOverrideSkipped(t *testing.T) {
	s := newTestStore(t)
	clk := newClock()
	m := newTestMachine(t, s, clk, 0)
	ctx := context.Background()

	id, err := m.Start(ctx, "T-1", "")
	require.NoError(t, err)
	require.NoError(t, s.SetTicketStatus(ctx, testScope, "T-2", true))
	clk.Advance(time.Minute)

	_, err = m.Start(ctx, "T-2", "")
	require.True(t, errors.Is(err, errors.ErrTicketClosed))
	require.True(t, get(t, s, id).Running())
}

func TestResumeClosedTicketRejected(t *testing.T) {
	s := newTestStore(t)
	m := newTestMachine(t, s, newClock(), 0)
	ctx := context.Background()

	id, err := m.Start(ctx, "T-1", "")
	require.NoError(t, err)
	require.NoError(t, m.Pause(ctx, ""))
	require.NoError(t, s.SetTicketStatus(ctx, testScope, "T-1", true))

	_, err = m.Resume(ctx, "", "")
	require.True(t, errors.Is(err, errors.ErrTicketClosed))
	require.False(t, get(t, s, id).Running())
}

func TestInvalidTransitions(t *testing.T) {
	s := newTestStore(t)
	m := newTestMachine(t, s, newClock(), 0)
	ctx := context.Background()

	require.True(t, errors.Is(m.Pause(ctx, ""), errors.ErrInvalidTransition))
	_, err := m.Resume(ctx, "T-1", "")
	require.True(t, errors.Is(err, errors.ErrInvalidTransition))

	_, err = m.Start(ctx, "T-1", "")
	require.NoError(t, err)
	_, err = m.Resume(ctx, "", "")
	require.True(t, errors.Is(err, errors.ErrInvalidTransition))

	require.NoError(t, m.Pause(ctx, ""))
	require.True(t, errors.Is(m.Pause(ctx, ""), errors.ErrInvalidTransition))
}

func TestSegmentOverMaxRejected(t *testing.T) {
	s := newTestStore(t)
	clk := newClock()
	m := newTestMachine(t, s, clk, time.Hour)
	ctx := context.Background()

	id, err := m.Start(ctx, "T-1", "")
	require.NoError(t, err)
	clk.Advance(2 * time.Hour)

	require.True(t, errors.Is(m.Pause(ctx, ""), errors.ErrDurationOutOfRange))
	_, err = m.Stop(ctx, "")
	require.True(t, errors.Is(err, errors.ErrDurationOutOfRange))

	sess := get(t, s, id)
	require.True(t, sess.Running())
	require.Equal(t, int64(0), sess.AccumulatedMs)
}

func TestNegativeSegmentRejected(t *testing.T) {
	s := newTestStore(t)
	clk := newClock()
	m := newTestMachine(t, s, clk, 0)
	ctx := context.Background()

	_, err := m.Start(ctx, "T-1", "")
	require.NoError(t, err)
	clk.Advance(-time.Minute)

	require.True(t, errors.Is(m.Pause(ctx, ""), errors.ErrDurationOutOfRange))
}

func TestInvalidStartTimeBlocksStop(t *testing.T) {
	s := newTestStore(t)
	m := newTestMachine(t, s, newClock(), 0)
	ctx := context.Background()

	epoch := time.UnixMilli(0)
	id, err := s.CreateSession(ctx, testScope, store.Session{TicketID: "T-1", StartTime: &epoch})
	require.NoError(t, err)

	_, err = m.Stop(ctx, "")
	require.True(t, errors.Is(err, errors.ErrInvalidStartTime))
	require.True(t, errors.Is(m.Pause(ctx, ""), errors.ErrInvalidStartTime))
	require.Nil(t, get(t, s, id).EndTime)
}

func TestEnsureNoOtherActive(t *testing.T) {
	s := newTestStore(t)
	clk := newClock()
	m := newTestMachine(t, s, clk, 0)
	ctx := context.Background()

	for _, ticket := range []string{"T-1", "T-2"} {
		now := clk.Now()
		_, err := s.CreateSession(ctx, testScope, store.Session{TicketID: ticket, StartTime: &now, CreatedAt: now})
		require.NoError(t, err)
		clk.Advance(time.Second)
	}

	_, err := m.Start(ctx, "T-3", "")
	require.True(t, errors.Is(err, errors.ErrActiveSessionExists))
	require.Equal(t, 2, openCount(t, s))

	require.NoError(t, ensureNoOtherActive(nil))
	require.NoError(t, ensureNoOtherActive([]store.Session{{ID: "a"}}, "a"))
}

func TestNotePersistedOnPause(t *testing.T) {
	s := newTestStore(t)
	clk := newClock()
	m := newTestMachine(t, s, clk, 0)
	ctx := context.Background()

	id, err := m.Start(ctx, "T-1", "first")
	require.NoError(t, err)
	clk.Advance(time.Second)
	require.NoError(t, m.Pause(ctx, "second"))
	require.Equal(t, "second", get(t, s, id).Note)

	_, err = m.Resume(ctx, "", "")
	require.NoError(t, err)
	require.Equal(t, "second", get(t, s, id).Note)
}

type failingStore struct {
	*store.Store
}

func (f failingStore) UpdateSession(context.Context, store.Scope, string, store.SessionPatch) error {
	return fmt.Errorf("network down")
}

func TestWriteFailureLeavesState(t *testing.T) {
	s := newTestStore(t)
	clk := newClock()
	ctx := context.Background()

	id, err := newTestMachine(t, s, clk, 0).Start(ctx, "T-1", "")
	require.NoError(t, err)
	clk.Advance(time.Minute)

	m := newTestMachine(t, failingStore{s}, clk, 0)
	err = m.Pause(ctx, "")
	require.True(t, errors.Is(err, errors.ErrWrite))
	require.Equal(t, errors.CategoryTransient, errors.CategoryOf(err))
	require.True(t, get(t, s, id).Running())
}

// ============================================================
// Display tick
// ============================================================

func TestApplyDrivesTicker(t *testing.T) {
	s := newTestStore(t)
	clk := newClock()
	var ticks atomic.Int32
	m := New(s, testScope, Options{
		Now:          clk.Now,
		TickInterval: 5 * time.Millisecond,
		OnTick:       func(Tick) { ticks.Add(1) },
	})
	defer m.Close()
	ctx := context.Background()

	_, err := m.Start(ctx, "T-1", "")
	require.NoError(t, err)
	snap := s.Snapshot(ctx, testScope)
	st := m.Apply(snap)
	require.Equal(t, Running, st.State)
	require.True(t, m.ticker.Running())
	require.Eventually(t, func() bool { return ticks.Load() > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Pause(ctx, ""))
	st = m.Apply(s.Snapshot(ctx, testScope))
	require.Equal(t, Paused, st.State)
	require.False(t, m.ticker.Running())
	require.Equal(t, Paused, m.Status().State)
}

func TestTickerRestartDoesNotDuplicate(t *testing.T) {
	tk := NewTicker(10 * time.Millisecond)
	var first, second atomic.Int32
	tk.Start(func(time.Time) { first.Add(1) })
	tk.Start(func(time.Time) { second.Add(1) })

	require.Eventually(t, func() bool { return second.Load() >= 3 }, time.Second, 5*time.Millisecond)
	tk.Stop()
	require.False(t, tk.Running())

	stopped := second.Load()
	time.Sleep(40 * time.Millisecond)
	require.LessOrEqual(t, second.Load(), stopped+1)
	require.LessOrEqual(t, first.Load(), int32(1))

	tk.Stop()
}

func TestCrossedThresholds(t *testing.T) {
	fired := map[time.Duration]bool{}

	require.Empty(t, Crossed(29*time.Minute, fired))
	require.Equal(t, []time.Duration{30 * time.Minute}, Crossed(30*time.Minute+500*time.Millisecond, fired))
	require.Empty(t, Crossed(30*time.Minute+time.Second, fired))
	require.Equal(t, []time.Duration{time.Hour}, Crossed(time.Hour, fired))

	fired[time.Hour] = true
	require.Empty(t, Crossed(time.Hour, fired))
	require.Equal(t, []time.Duration{4 * time.Hour}, Crossed(4*time.Hour+999*time.Millisecond, fired))
}

func TestTickFiresThresholdOncePerRun(t *testing.T) {
	s := newTestStore(t)
	clk := newClock()
	var got []Tick
	var mu sync.Mutex
	m := New(s, testScope, Options{
		Now:          clk.Now,
		TickInterval: time.Hour,
		OnTick: func(tk Tick) {
			mu.Lock()
			got = append(got, tk)
			mu.Unlock()
		},
	})
	defer m.Close()
	ctx := context.Background()

	_, err := m.Start(ctx, "T-1", "")
	require.NoError(t, err)
	m.Apply(s.Snapshot(ctx, testScope))

	at := clk.Now().Add(30 * time.Minute)
	m.tick(at)
	m.tick(at.Add(500 * time.Millisecond))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	require.Equal(t, []time.Duration{30 * time.Minute}, got[0].Crossed)
	require.Empty(t, got[1].Crossed)
}

func TestThresholdMessage(t *testing.T) {
	require.Contains(t, ThresholdMessage(30*time.Minute), "30 minutes")
	require.Contains(t, ThresholdMessage(time.Hour), "1 hour")
	require.Contains(t, ThresholdMessage(4*time.Hour), "4 hours")
}
