// Package token signs and verifies the two credential kinds used by the
// dashboard: short-lived access tokens and long-lived device-trust tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes access credentials from device-trust (refresh) credentials.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

var (
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrMalformed        = errors.New("token malformed")
	ErrWrongKind        = errors.New("token kind mismatch")
)

// Subject identifies whom a token is issued to.
type Subject struct {
	UserID string
	Email  string
}

// Claims is the payload carried by both token kinds.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Type   Kind   `json:"type"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		secret:     cfg.Secret,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
		now:        cfg.Now,
	}, nil
}

// Issue signs a token of the given kind for subject and returns it with its expiry.
func (m *Manager) Issue(kind Kind, subject Subject) (string, time.Time, error) {
	var ttl time.Duration
	switch kind {
	case KindAccess:
		ttl = m.accessTTL
	case KindRefresh:
		ttl = m.refreshTTL
	default:
		return "", time.Time{}, fmt.Errorf("unknown token kind %q", kind)
	}
	if subject.UserID == "" {
		return "", time.Time{}, errors.New("token subject is required")
	}

	now := m.now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	claims := Claims{
		UserID: subject.UserID,
		Email:  subject.Email,
		Type:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, algorithm and expiry and returns the claims.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMalformed
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	}

	if claims.Type != KindAccess && claims.Type != KindRefresh {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, claims.Type)
	}
	if claims.UserID == "" || claims.Subject != claims.UserID {
		return nil, fmt.Errorf("%w: subject mismatch", ErrMalformed)
	}
	return claims, nil
}

// VerifyKind verifies the token and requires it to be of the given kind.
func (m *Manager) VerifyKind(tokenString string, kind Kind) (*Claims, error) {
	claims, err := m.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != kind {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrWrongKind, kind, claims.Type)
	}
	return claims, nil
}

func (m *Manager) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return m.refreshTTL
	}
	return m.accessTTL
}
