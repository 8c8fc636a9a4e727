package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"workflow-dashboard/internal/config"
	"workflow-dashboard/internal/encryption"
	"workflow-dashboard/internal/hashing"
	"workflow-dashboard/internal/model"
	"workflow-dashboard/internal/repository/memory"
	"workflow-dashboard/internal/token"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sentCode struct {
	To   string
	Code string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (m *fakeMailer) SendVerificationCode(_ context.Context, to, code string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentCode{To: to, Code: code})
	return nil
}

func (m *fakeMailer) last(t *testing.T) sentCode {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no code was mailed")
	return m.sent[len(m.sent)-1]
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fixture struct {
	clock   *testClock
	store   *memory.Store
	tokens  *token.Manager
	hasher  *hashing.Hasher
	mailer  *fakeMailer
	sealer  *encryption.EncryptionManager
	n8n     *fakeN8N
	factory *ServiceFactory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewStore().WithClock(clock.Now)

	tokens, err := token.NewManager(token.Config{
		Secret: []byte("test-secret-test-secret-test-secret"),
		Now:    clock.Now,
	})
	require.NoError(t, err)

	hasher := hashing.NewHasher(config.HashingConfig{
		Argon2MemoryCost:  1024,
		Argon2TimeCost:    1,
		Argon2Parallelism: 1,
	})

	sealer, err := encryption.NewLocalEncryptionManager(make([]byte, 32))
	require.NoError(t, err)

	f := &fixture{
		clock:  clock,
		store:  store,
		tokens: tokens,
		hasher: hasher,
		mailer: &fakeMailer{},
		sealer: sealer,
		n8n:    &fakeN8N{},
	}
	f.factory = NewServiceFactory(Dependencies{
		Store:   store,
		Tokens:  tokens,
		Hasher:  hasher,
		Mailer:  f.mailer,
		Sealer:  sealer,
		N8N:     f.n8n,
		CodeTTL: 10 * time.Minute,
		Logger:  zap.NewNop(),
	})
	f.factory.CodeManager().now = clock.Now
	return f
}

func (f *fixture) addUser(t *testing.T, email, password string) *model.User {
	t.Helper()
	hash, err := f.hasher.HashPassword(password)
	require.NoError(t, err)
	u := &model.User{Email: email, PasswordHash: hash}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) liveCodes(t *testing.T, userID string) int {
	t.Helper()
	codes, err := f.store.ListVerificationCodes(context.Background(), userID)
	require.NoError(t, err)
	n := 0
	for i := range codes {
		if codes[i].Live(f.clock.Now()) {
			n++
		}
	}
	return n
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	var se *Error
	require.True(t, errors.As(err, &se), "expected *service.Error, got %T: %v", err, err)
	require.Equal(t, kind, se.Kind, "message: %s", se.Message)
	return se
}

type fakeN8N struct {
	workflows []model.Workflow
	err       error
	gotKey    string
	gotBase   string
	toggled   map[string]bool
}

func (n *fakeN8N) ListWorkflows(_ context.Context, baseURL, apiKey string) ([]model.Workflow, error) {
	n.gotBase, n.gotKey = baseURL, apiKey
	if n.err != nil {
		return nil, n.err
	}
	return n.workflows, nil
}

func (n *fakeN8N) SetWorkflowActive(_ context.Context, baseURL, apiKey, workflowID string, active bool) (*model.Workflow, error) {
	n.gotBase, n.gotKey = baseURL, apiKey
	if n.err != nil {
		return nil, n.err
	}
	if n.toggled == nil {
		n.toggled = make(map[string]bool)
	}
	n.toggled[workflowID] = active
	return &model.Workflow{ID: workflowID, Active: active}, nil
}
