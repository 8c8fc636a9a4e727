package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"workflow-dashboard/internal/model"
	"workflow-dashboard/internal/repository"
)

const (
	codeDigits     = 6
	DefaultCodeTTL = 10 * time.Minute
)

var codeSpace = big.NewInt(1_000_000)

// CodeManager issues and redeems one-time verification codes.
type CodeManager struct {
	store  repository.VerificationCodeRepository
	ttl    time.Duration
	now    func() time.Time
	random io.Reader
	logger *zap.Logger
}

func NewCodeManager(store repository.VerificationCodeRepository, ttl time.Duration, logger *zap.Logger) *CodeManager {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &CodeManager{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		random: rand.Reader,
		logger: logger,
	}
}

// Issue creates a new code for userID, invalidating any earlier unused one.
func (m *CodeManager) Issue(ctx context.Context, userID string) (string, time.Time, error) {
	n, err := rand.Int(m.random, codeSpace)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())

	now := m.now().UTC()
	vc := &model.VerificationCode{
		ID:        uuid.NewString(),
		UserID:    userID,
		Code:      code,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.store.ReplaceVerificationCode(ctx, vc); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store code: %w", err)
	}

	m.logger.Debug("Verification code issued",
		zap.String("user_id", userID),
		zap.Time("expires_at", vc.ExpiresAt))
	return code, vc.ExpiresAt, nil
}

// Verify redeems code for userID. Wrong, expired and already used codes all
// yield ErrInvalidOrExpired.
func (m *CodeManager) Verify(ctx context.Context, userID, code string) error {
	if !wellFormedCode(code) {
		return ErrInvalidOrExpired
	}

	_, err := m.store.ConsumeVerificationCode(ctx, userID, code, m.now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidOrExpired
	}
	if err != nil {
		return fmt.Errorf("failed to consume code: %w", err)
	}
	return nil
}

func (m *CodeManager) TTL() time.Duration { return m.ttl }

func wellFormedCode(code string) bool {
	if len(code) != codeDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
