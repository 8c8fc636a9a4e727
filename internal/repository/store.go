// Package repository defines the persistence contracts for users,
// verification codes and n8n accounts.
package repository

import (
	"context"
	"errors"
	"time"

	"workflow-dashboard/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

type VerificationCodeRepository interface {
	// ReplaceVerificationCode marks every unused code of code.UserID as used and
	// inserts code, as one atomic step.
	ReplaceVerificationCode(ctx context.Context, code *model.VerificationCode) error
	// ConsumeVerificationCode flips used on the unused, unexpired row matching
	// (userID, code). ErrNotFound when there is none.
	ConsumeVerificationCode(ctx context.Context, userID, code string, now time.Time) (*model.VerificationCode, error)
	ListVerificationCodes(ctx context.Context, userID string) ([]model.VerificationCode, error)
}

type AccountRepository interface {
	// ListAccounts returns the default account first, then newest first.
	ListAccounts(ctx context.Context, userID string) ([]model.N8nAccount, error)
	GetAccount(ctx context.Context, userID, accountID string) (*model.N8nAccount, error)
	// CreateAccount inserts account; when account.IsDefault the user's other
	// accounts lose the flag in the same step.
	CreateAccount(ctx context.Context, account *model.N8nAccount) error
	SetDefaultAccount(ctx context.Context, userID, accountID string) error
	DeleteAccount(ctx context.Context, userID, accountID string) error
}

// Store is a complete persistence backend.
type Store interface {
	UserRepository
	VerificationCodeRepository
	AccountRepository
	HealthCheck(ctx context.Context) error
	Close() error
}
