// Package identity resolves who the tracker writes as: a federated user when
// credentials are configured, otherwise a persistent anonymous id.
package identity

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
)

// Identity is a signed-in user.
type Identity struct {
	UserID    string
	Provider  string
	Anonymous bool
}

// Provider signs a user in.
type Provider interface {
	Name() string
	SignIn(ctx context.Context) (Identity, error)
}

// Federated accepts a configured user id and a token of the form
// "<user>:<secret>" issued for that user.
type Federated struct {
	UserID string
	Token  string
}

func (f Federated) Name() string { return "federated" }

func (f Federated) SignIn(ctx context.Context) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, errors.NewAuth(f.Name(), err)
	}
	userID := strings.TrimSpace(f.UserID)
	if userID == "" || f.Token == "" {
		return Identity{}, errors.NewAuth(f.Name(), fmt.Errorf("no credentials configured"))
	}
	owner, secret, ok := strings.Cut(f.Token, ":")
	if !ok || secret == "" {
		return Identity{}, errors.NewAuth(f.Name(), fmt.Errorf("malformed token"))
	}
	if subtle.ConstantTimeCompare([]byte(owner), []byte(userID)) != 1 {
		return Identity{}, errors.NewAuth(f.Name(), fmt.Errorf("token was not issued for %s", userID))
	}
	if strings.Contains(userID, "/") {
		return Identity{}, errors.NewAuth(f.Name(), fmt.Errorf("invalid user id %q", userID))
	}
	return Identity{UserID: userID, Provider: f.Name()}, nil
}

// IDStore persists the anonymous id between runs.
type IDStore interface {
	AnonymousID() string
	SetAnonymousID(id string) error
}

// Anonymous returns the stored anonymous id, minting one on first use.
type Anonymous struct {
	Store IDStore
}

func (a Anonymous) Name() string { return "anonymous" }

func (a Anonymous) SignIn(ctx context.Context) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, errors.NewAuth(a.Name(), err)
	}
	if id := a.Store.AnonymousID(); id != "" {
		return Identity{UserID: id, Provider: a.Name(), Anonymous: true}, nil
	}
	id := "anon-" + uuid.NewString()
	if err := a.Store.SetAnonymousID(id); err != nil {
		return Identity{}, errors.NewAuth(a.Name(), err)
	}
	return Identity{UserID: id, Provider: a.Name(), Anonymous: true}, nil
}

// Resolve tries providers in order and returns the first identity. Errors of
// providers that failed before it are returned alongside so the caller can
// show them without blocking. When every provider fails the last error is
// returned as err.
func Resolve(ctx context.Context, providers ...Provider) (Identity, []error, error) {
	var failed []error
	for _, p := range providers {
		id, err := p.SignIn(ctx)
		if err == nil {
			return id, failed, nil
		}
		failed = append(failed, err)
	}
	if len(failed) == 0 {
		return Identity{}, nil, errors.NewAuth("none", fmt.Errorf("no identity providers"))
	}
	return Identity{}, failed[:len(failed)-1], failed[len(failed)-1]
}

// NewShareID mints an id for a shared view.
func NewShareID() string {
	return uuid.NewString()
}
