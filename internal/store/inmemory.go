package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a mutex-guarded in-process store for local/dev use and
// tests. It honors the same conditional-write contracts as PostgresStore.
type InMemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*Account // by ID
	byKey    map[string]string   // access key -> account ID
	sessions map[string]*Session // by ID
	turns    map[string][]Turn   // by session ID
	nextSeq  int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		accounts: make(map[string]*Account),
		byKey:    make(map[string]string),
		sessions: make(map[string]*Session),
		turns:    make(map[string][]Turn),
	}
}

func (s *InMemoryStore) AccountByKey(_ context.Context, accessKey string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[strings.TrimSpace(accessKey)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return cloneAccount(s.accounts[id]), nil
}

func (s *InMemoryStore) CreateAccount(_ context.Context, account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	a := account
	s.accounts[a.ID] = &a
	s.byKey[a.AccessKey] = a.ID
	return cloneAccount(&a), nil
}

func (s *InMemoryStore) StartWindow(_ context.Context, accountID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return false, ErrAccountNotFound
	}
	if a.WindowStartedAt != nil {
		return false, nil
	}
	t := at.UTC()
	a.WindowStartedAt = &t
	return true, nil
}

func (s *InMemoryStore) ConsumeCredit(_ context.Context, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	if a.CreditBalance <= 0 {
		return 0, ErrInsufficientCredit
	}
	a.CreditBalance--
	return a.CreditBalance, nil
}

func (s *InMemoryStore) EnsureSession(_ context.Context, accountID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *Session
	for _, sess := range s.sessions {
		if sess.AccountID != accountID {
			continue
		}
		if latest == nil || sess.CreatedAt.After(latest.CreatedAt) {
			latest = sess
		}
	}
	if latest != nil {
		return *latest, nil
	}

	sess := Session{
		ID:        uuid.NewString(),
		AccountID: accountID,
		CreatedAt: time.Now().UTC(),
	}
	s.sessions[sess.ID] = &sess
	return sess, nil
}

func (s *InMemoryStore) AppendTurn(_ context.Context, turn Turn) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[turn.SessionID]; !ok {
		return Turn{}, ErrSessionNotFound
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	s.nextSeq++
	turn.Seq = s.nextSeq
	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], turn)
	return turn, nil
}

func (s *InMemoryStore) Turns(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := s.turns[sessionID]
	out := make([]Turn, len(arr))
	copy(out, arr)
	return out, nil
}

func (s *InMemoryStore) RecentTurns(_ context.Context, sessionID string, n int) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arr := s.turns[sessionID]
	if n <= 0 || len(arr) == 0 {
		return nil, nil
	}
	if n > len(arr) {
		n = len(arr)
	}
	out := make([]Turn, n)
	copy(out, arr[len(arr)-n:])
	return out, nil
}

func (s *InMemoryStore) CountTurns(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns[sessionID]), nil
}

func (s *InMemoryStore) Summary(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	return sess.Summary, nil
}

func (s *InMemoryStore) UpdateSummary(_ context.Context, sessionID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Summary = summary
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

func cloneAccount(a *Account) Account {
	c := *a
	if a.WindowStartedAt != nil {
		t := *a.WindowStartedAt
		c.WindowStartedAt = &t
	}
	return c
}
