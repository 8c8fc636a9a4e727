// Package memory is an in-process Store for development and tests.
// State is lost on restart and is not shared between instances.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"workflow-dashboard/internal/model"
	"workflow-dashboard/internal/repository"

	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex

	users        map[string]model.User
	usersByEmail map[string]string
	codes        map[string][]model.VerificationCode // user id -> codes, oldest first
	accounts     map[string]model.N8nAccount

	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		users:        make(map[string]model.User),
		usersByEmail: make(map[string]string),
		codes:        make(map[string][]model.VerificationCode),
		accounts:     make(map[string]model.N8nAccount),
		now:          time.Now,
	}
}

// WithClock replaces the clock used for created/updated timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *Store) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := s.usersByEmail[email]; exists {
		return repository.ErrConflict
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now().UTC()
	}
	user.Email = email

	s.users[user.ID] = *user
	s.usersByEmail[email] = user.ID
	return nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	s.users[id] = u
	return nil
}

func (s *Store) ReplaceVerificationCode(_ context.Context, code *model.VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[code.UserID]; !ok {
		return repository.ErrNotFound
	}
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = s.now().UTC()
	}

	existing := s.codes[code.UserID]
	for i := range existing {
		existing[i].Used = true
	}
	c := *code
	c.Used = false
	s.codes[code.UserID] = append(existing, c)
	return nil
}

func (s *Store) ConsumeVerificationCode(_ context.Context, userID, code string, now time.Time) (*model.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := s.codes[userID]
	for i := range codes {
		if codes[i].Code == code && codes[i].Live(now) {
			codes[i].Used = true
			c := codes[i]
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListVerificationCodes(_ context.Context, userID string) ([]model.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.VerificationCode, len(s.codes[userID]))
	copy(out, s.codes[userID])
	return out, nil
}

func (s *Store) ListAccounts(_ context.Context, userID string) ([]model.N8nAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.N8nAccount{}
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetAccount(_ context.Context, userID, accountID string) (*model.N8nAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok || a.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (s *Store) CreateAccount(_ context.Context, account *model.N8nAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[account.UserID]; !ok {
		return repository.ErrNotFound
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := s.now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	if account.IsDefault {
		s.clearDefaultLocked(account.UserID, now)
	}
	s.accounts[account.ID] = *account
	return nil
}

func (s *Store) SetDefaultAccount(_ context.Context, userID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok || a.UserID != userID {
		return repository.ErrNotFound
	}
	now := s.now().UTC()
	s.clearDefaultLocked(userID, now)
	a = s.accounts[accountID]
	a.IsDefault = true
	a.UpdatedAt = now
	s.accounts[accountID] = a
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, userID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok || a.UserID != userID {
		return repository.ErrNotFound
	}
	delete(s.accounts, accountID)
	return nil
}

func (s *Store) clearDefaultLocked(userID string, now time.Time) {
	for id, a := range s.accounts {
		if a.UserID == userID && a.IsDefault {
			a.IsDefault = false
			a.UpdatedAt = now
			s.accounts[id] = a
		}
	}
}

func (s *Store) HealthCheck(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
