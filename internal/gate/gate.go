// Package gate validates access keys and enforces the time-boxed usage
// window. Reads are side-effect free; the window start is a distinct
// operation invoked by the orchestrator on first credit consumption.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minseokoh/myeongshim/internal/store"
)

var (
	ErrInvalidKey    = errors.New("invalid access key")
	ErrWindowExpired = errors.New("usage window expired")
)

// masterDurationMinutes marks lifetime keys: anything above this is treated
// as never-expiring admin access.
const masterDurationMinutes = 500000

// Grant reports a successful authorization.
type Grant struct {
	Account store.Account
	// Remaining is the time left in the window, floored to whole seconds.
	// It is zero while OpenEnded is true.
	Remaining time.Duration
	// OpenEnded is true when the window has not started yet (or the key is a
	// master key): the clock only starts on the first answered question.
	OpenEnded bool
}

// Master reports whether the granted key carries admin privileges.
func (g Grant) Master() bool {
	return g.Account.WindowDurationMinutes > masterDurationMinutes
}

type Gate struct {
	store store.Store
}

func New(s store.Store) *Gate {
	return &Gate{store: s}
}

// Authorize resolves the account behind the key and checks the usage window
// against now. It never mutates state.
func (g *Gate) Authorize(ctx context.Context, accessKey string, now time.Time) (Grant, error) {
	account, err := g.store.AccountByKey(ctx, accessKey)
	if errors.Is(err, store.ErrAccountNotFound) {
		return Grant{}, ErrInvalidKey
	}
	if err != nil {
		return Grant{}, fmt.Errorf("resolve access key: %w", err)
	}

	grant := Grant{Account: account}
	if grant.Master() {
		grant.OpenEnded = true
		return grant, nil
	}

	if account.WindowStartedAt == nil {
		grant.OpenEnded = true
		return grant, nil
	}

	expireAt := account.WindowStartedAt.Add(time.Duration(account.WindowDurationMinutes) * time.Minute)
	if !now.Before(expireAt) {
		return Grant{}, ErrWindowExpired
	}
	grant.Remaining = expireAt.Sub(now).Truncate(time.Second)
	return grant, nil
}

// StartWindow starts the account's usage window at the given instant. The
// store performs a single conditional write, so concurrent first requests
// cannot move the start time; master keys never start a clock.
func (g *Gate) StartWindow(ctx context.Context, account store.Account, at time.Time) (bool, error) {
	if account.WindowDurationMinutes > masterDurationMinutes {
		return false, nil
	}
	if account.WindowStartedAt != nil {
		return false, nil
	}
	started, err := g.store.StartWindow(ctx, account.ID, at)
	if err != nil {
		return false, fmt.Errorf("start window: %w", err)
	}
	return started, nil
}
