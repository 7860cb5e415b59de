package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrSessionNotFound    = errors.New("session not found")
)

// Account is a paid consultation account identified by its access key.
type Account struct {
	ID                    string     `json:"id"`
	AccessKey             string     `json:"access_key"`
	Email                 string     `json:"email"`
	CreditBalance         int        `json:"credit_balance"`
	WindowStartedAt       *time.Time `json:"window_started_at,omitempty"`
	WindowDurationMinutes int        `json:"window_duration_minutes"`
	CreatedAt             time.Time  `json:"created_at"`
}

// Session groups the turns of one account's ongoing consultation and carries
// the rolling summary of its older history.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is a single immutable user or assistant message. Seq is assigned by
// the store and is the authoritative chronological order within a session.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Store persists accounts, sessions and conversation turns. It is the only
// shared mutable state across requests; all cross-request coordination
// (credit balance, window start, turn ordering) happens through it.
type Store interface {
	AccountByKey(ctx context.Context, accessKey string) (Account, error)
	CreateAccount(ctx context.Context, account Account) (Account, error)

	// StartWindow sets window_started_at once. It reports whether this call
	// performed the write; a false return with nil error means the window was
	// already running.
	StartWindow(ctx context.Context, accountID string, at time.Time) (bool, error)

	// ConsumeCredit decrements the balance by one as a single conditional
	// write and returns the new balance. It returns ErrInsufficientCredit
	// when the balance is already zero; the balance never goes negative.
	ConsumeCredit(ctx context.Context, accountID string) (int, error)

	// EnsureSession returns the account's most recent session, creating one
	// on first contact.
	EnsureSession(ctx context.Context, accountID string) (Session, error)

	AppendTurn(ctx context.Context, turn Turn) (Turn, error)
	Turns(ctx context.Context, sessionID string) ([]Turn, error)
	// RecentTurns returns the last n turns in chronological order.
	RecentTurns(ctx context.Context, sessionID string, n int) ([]Turn, error)
	CountTurns(ctx context.Context, sessionID string) (int, error)

	Summary(ctx context.Context, sessionID string) (string, error)
	UpdateSummary(ctx context.Context, sessionID, summary string) error

	Close() error
}
