package identity

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
)

type memIDs struct {
	id  string
	err error
}

func (m *memIDs) AnonymousID() string { return m.id }

func (m *memIDs) SetAnonymousID(id string) error {
	if m.err != nil {
		return m.err
	}
	m.id = id
	return nil
}

func TestFederated(t *testing.T) {
	ctx := context.Background()

	id, err := Federated{UserID: "alice", Token: "alice:s3cret"}.SignIn(ctx)
	require.NoError(t, err)
	require.Equal(t, Identity{UserID: "alice", Provider: "federated"}, id)

	for _, f := range []Federated{
		{},
		{UserID: "alice"},
		{UserID: "alice", Token: "nocolon"},
		{UserID: "alice", Token: "alice:"},
		{UserID: "alice", Token: "bob:s3cret"},
	} {
		_, err := f.SignIn(ctx)
		require.True(t, errors.Is(err, errors.ErrAuth), "%+v", f)
	}
}

func TestAnonymousMintsOnce(t *testing.T) {
	ids := &memIDs{}
	a := Anonymous{Store: ids}

	first, err := a.SignIn(context.Background())
	require.NoError(t, err)
	require.True(t, first.Anonymous)
	require.True(t, strings.HasPrefix(first.UserID, "anon-"))
	_, err = uuid.Parse(strings.TrimPrefix(first.UserID, "anon-"))
	require.NoError(t, err)

	second, err := a.SignIn(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestAnonymousSaveFailure(t *testing.T) {
	_, err := Anonymous{Store: &memIDs{err: fmt.Errorf("disk full")}}.SignIn(context.Background())
	require.True(t, errors.Is(err, errors.ErrAuth))
}

func TestResolveFallsBackToAnonymous(t *testing.T) {
	id, failed, err := Resolve(context.Background(),
		Federated{UserID: "alice", Token: "bob:x"},
		Anonymous{Store: &memIDs{id: "anon-1"}},
	)
	require.NoError(t, err)
	require.Equal(t, "anon-1", id.UserID)
	require.Len(t, failed, 1)
	require.Equal(t, errors.CategoryAuth, errors.CategoryOf(failed[0]))
}

func TestResolveFederatedFirst(t *testing.T) {
	id, failed, err := Resolve(context.Background(),
		Federated{UserID: "alice", Token: "alice:x"},
		Anonymous{Store: &memIDs{id: "anon-1"}},
	)
	require.NoError(t, err)
	require.Equal(t, "alice", id.UserID)
	require.Empty(t, failed)
}

func TestResolveAllFail(t *testing.T) {
	_, failed, err := Resolve(context.Background(),
		Federated{},
		Anonymous{Store: &memIDs{err: fmt.Errorf("read-only")}},
	)
	require.True(t, errors.Is(err, errors.ErrAuth))
	require.Len(t, failed, 1)

	_, _, err = Resolve(context.Background())
	require.Error(t, err)
}

func TestResolveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Resolve(ctx, Anonymous{Store: &memIDs{id: "anon-1"}})
	require.True(t, errors.Is(err, errors.ErrAuth))
}

func TestNewShareID(t *testing.T) {
	a, b := NewShareID(), NewShareID()
	require.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	require.NoError(t, err)
}
