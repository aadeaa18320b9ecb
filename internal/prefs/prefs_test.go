package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestPrefs(t *testing.T) (*Prefs, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "prefs.json")
	p, err := Load(path)
	require.NoError(t, err)
	return p, path
}

func TestLoadMissing(t *testing.T) {
	p, _ := newTestPrefs(t)
	require.Empty(t, p.ProfileTitle())
	require.Empty(t, p.RecentTickets())
	require.False(t, p.Visited())
	require.Empty(t, p.AnonymousID())
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestPersistAcrossLoads(t *testing.T) {
	p, path := newTestPrefs(t)
	require.NoError(t, p.SetProfile("  Backend Developer ", "team lead"))
	require.NoError(t, p.AddRecent("T-1"))
	require.NoError(t, p.MarkVisited())
	require.NoError(t, p.SetAnonymousID("anon-1"))

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "Backend Developer", again.ProfileTitle())
	require.Equal(t, "team lead", again.ProfileRole())
	require.Equal(t, []string{"T-1"}, again.RecentTickets())
	require.True(t, again.Visited())
	require.Equal(t, "anon-1", again.AnonymousID())
}

func TestAddRecentDedupesAndCaps(t *testing.T) {
	p, _ := newTestPrefs(t)
	for _, id := range []string{"A", "B", "C", "D", "E", "F"} {
		require.NoError(t, p.AddRecent(id))
	}
	require.Equal(t, []string{"F", "E", "D", "C", "B"}, p.RecentTickets())

	require.NoError(t, p.AddRecent("c"))
	require.Equal(t, []string{"c", "F", "E", "D", "B"}, p.RecentTickets())

	require.NoError(t, p.AddRecent("   "))
	require.Len(t, p.RecentTickets(), MaxRecent)
}

func TestRecentTicketsIsCopy(t *testing.T) {
	p, _ := newTestPrefs(t)
	require.NoError(t, p.AddRecent("A"))
	got := p.RecentTickets()
	got[0] = "mutated"
	require.Equal(t, []string{"A"}, p.RecentTickets())
}

func TestInMemoryPrefs(t *testing.T) {
	p := &Prefs{}
	require.NoError(t, p.AddRecent("A"))
	require.Equal(t, []string{"A"}, p.RecentTickets())
}
