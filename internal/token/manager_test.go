package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T, now *time.Time) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Secret: testSecret,
		Now:    func() time.Time { return *now },
	})
	require.NoError(t, err)
	return m
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager(Config{})
	assert.Error(t, err)
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(t, &now)

	subject := Subject{UserID: "u1", Email: "a@x.com"}

	access, accessExp, err := m.Issue(KindAccess, subject)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), accessExp)

	refresh, refreshExp, err := m.Issue(KindRefresh, subject)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*24*time.Hour), refreshExp)

	claims, err := m.Verify(access)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, KindAccess, claims.Type)
	assert.Equal(t, "u1", claims.Subject)

	claims, err = m.Verify(refresh)
	require.NoError(t, err)
	assert.Equal(t, KindRefresh, claims.Type)
}

func TestIssueIsDeterministicUnderFixedClock(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(t, &now)

	a, _, err := m.Issue(KindAccess, Subject{UserID: "u1", Email: "a@x.com"})
	require.NoError(t, err)
	b, _, err := m.Issue(KindAccess, Subject{UserID: "u1", Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestVerifyExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(t, &now)

	tok, _, err := m.Issue(KindAccess, Subject{UserID: "u1"})
	require.NoError(t, err)

	now = now.Add(time.Hour + time.Second)
	_, err = m.Verify(tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyTampered(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, &now)

	tok, _, err := m.Issue(KindAccess, Subject{UserID: "u1"})
	require.NoError(t, err)

	other, err := NewManager(Config{Secret: []byte("another-secret-another-secret-xx")})
	require.NoError(t, err)
	_, err = other.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	_, err = m.Verify(parts[0] + "." + parts[1] + "." + string(sig))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, &now)

	claims := Claims{
		UserID: "u1",
		Type:   KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = m.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Verify(none)
	assert.Error(t, err)
}

func TestVerifyMalformed(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, &now)

	for _, tok := range []string{"", "abc", "a.b.c"} {
		_, err := m.Verify(tok)
		assert.ErrorIs(t, err, ErrMalformed, tok)
	}
}

func TestVerifyRejectsUnknownKind(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, &now)

	claims := Claims{
		UserID: "u1",
		Type:   "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = m.Verify(tok)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyKind(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, &now)

	refresh, _, err := m.Issue(KindRefresh, Subject{UserID: "u1"})
	require.NoError(t, err)

	_, err = m.VerifyKind(refresh, KindAccess)
	assert.ErrorIs(t, err, ErrWrongKind)

	claims, err := m.VerifyKind(refresh, KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
}

func TestIssueRejectsUnknownKind(t *testing.T) {
	now := time.Now()
	m := newTestManager(t, &now)

	_, _, err := m.Issue("bogus", Subject{UserID: "u1"})
	assert.Error(t, err)
	_, _, err = m.Issue(KindAccess, Subject{})
	assert.Error(t, err)
}
