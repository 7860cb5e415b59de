// Package ledger meters service consumption: one credit per answered
// question, denied at zero.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/minseokoh/myeongshim/internal/store"
)

var ErrInsufficientCredit = errors.New("insufficient credit")

type Ledger struct {
	store store.Store
}

func New(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// Check fails closed: a balance of zero or less denies service before any
// further processing.
func (l *Ledger) Check(account store.Account) error {
	if account.CreditBalance <= 0 {
		return ErrInsufficientCredit
	}
	return nil
}

// Consume decrements the balance by exactly one and returns the new value.
// The store performs the decrement as an atomic conditional update, so the
// losing side of a concurrent race observes ErrInsufficientCredit instead of
// driving the balance negative.
func (l *Ledger) Consume(ctx context.Context, accountID string) (int, error) {
	balance, err := l.store.ConsumeCredit(ctx, accountID)
	if errors.Is(err, store.ErrInsufficientCredit) {
		return 0, ErrInsufficientCredit
	}
	if err != nil {
		return 0, fmt.Errorf("consume credit: %w", err)
	}
	return balance, nil
}
