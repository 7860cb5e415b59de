package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists accounts, sessions and turns in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			access_key TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL DEFAULT '',
			credit_balance INTEGER NOT NULL DEFAULT 0 CHECK (credit_balance >= 0),
			window_started_at TIMESTAMPTZ NULL,
			window_duration_minutes INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			summary TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_account_created ON chat_sessions (account_id, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS chat_turns (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES chat_sessions(id),
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			seq BIGSERIAL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_turns_session_seq ON chat_turns (session_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) AccountByKey(ctx context.Context, accessKey string) (Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, access_key, email, credit_balance, window_started_at, window_duration_minutes, created_at
		 FROM accounts WHERE access_key=$1`,
		strings.TrimSpace(accessKey),
	).Scan(&a.ID, &a.AccessKey, &a.Email, &a.CreditBalance, &a.WindowStartedAt, &a.WindowDurationMinutes, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("query account: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) (Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, access_key, email, credit_balance, window_started_at, window_duration_minutes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account.ID,
		account.AccessKey,
		account.Email,
		account.CreditBalance,
		account.WindowStartedAt,
		account.WindowDurationMinutes,
		account.CreatedAt,
	)
	if err != nil {
		return Account{}, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

// StartWindow is a single authoritative write: only the first caller flips
// window_started_at, concurrent callers observe started=false.
func (s *PostgresStore) StartWindow(ctx context.Context, accountID string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET window_started_at=$2 WHERE id=$1 AND window_started_at IS NULL`,
		accountID, at.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("start window: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ConsumeCredit decrements conditionally so the balance can never go
// negative: the losing side of a race sees zero rows affected.
func (s *PostgresStore) ConsumeCredit(ctx context.Context, accountID string) (int, error) {
	var balance int
	err := s.pool.QueryRow(ctx,
		`UPDATE accounts SET credit_balance = credit_balance - 1
		 WHERE id=$1 AND credit_balance > 0
		 RETURNING credit_balance`,
		accountID,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientCredit
	}
	if err != nil {
		return 0, fmt.Errorf("consume credit: %w", err)
	}
	return balance, nil
}

func (s *PostgresStore) EnsureSession(ctx context.Context, accountID string) (Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, summary, created_at FROM chat_sessions
		 WHERE account_id=$1 ORDER BY created_at DESC LIMIT 1`,
		accountID,
	).Scan(&sess.ID, &sess.AccountID, &sess.Summary, &sess.CreatedAt)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Session{}, fmt.Errorf("query session: %w", err)
	}

	sess = Session{
		ID:        uuid.NewString(),
		AccountID: accountID,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO chat_sessions (id, account_id, summary, created_at) VALUES ($1, $2, '', $3)`,
		sess.ID, sess.AccountID, sess.CreatedAt,
	)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, turn Turn) (Turn, error) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO chat_turns (id, session_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING seq`,
		turn.ID, turn.SessionID, turn.Role, turn.Content, turn.CreatedAt,
	).Scan(&turn.Seq)
	if err != nil {
		return Turn{}, fmt.Errorf("append turn: %w", err)
	}
	return turn, nil
}

func (s *PostgresStore) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, seq, created_at
		 FROM chat_turns WHERE session_id=$1 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *PostgresStore) RecentTurns(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, seq, created_at
		 FROM chat_turns WHERE session_id=$1 ORDER BY seq DESC LIMIT $2`,
		sessionID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *PostgresStore) CountTurns(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_turns WHERE session_id=$1`, sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Summary(ctx context.Context, sessionID string) (string, error) {
	var summary string
	err := s.pool.QueryRow(ctx,
		`SELECT summary FROM chat_sessions WHERE id=$1`, sessionID,
	).Scan(&summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query summary: %w", err)
	}
	return summary, nil
}

func (s *PostgresStore) UpdateSummary(ctx context.Context, sessionID, summary string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chat_sessions SET summary=$2 WHERE id=$1`, sessionID, summary,
	)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanTurns(rows pgx.Rows) ([]Turn, error) {
	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &t.Seq, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}
