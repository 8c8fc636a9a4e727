package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"workflow-dashboard/internal/model"
	"workflow-dashboard/internal/repository"
	"workflow-dashboard/internal/util"
)

// Sealer encrypts secrets for storage.
type Sealer interface {
	Seal(ctx context.Context, plaintext string) (string, error)
	Open(ctx context.Context, sealed string) (string, error)
}

// AccountView is an n8n account as returned to its owner. APIKey is masked.
type AccountView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	BaseURL   string    `json:"base_url"`
	APIKey    string    `json:"api_key"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateAccountRequest struct {
	Name      string `json:"name"`
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key"`
	IsDefault bool   `json:"is_default"`
}

// AccountService manages the n8n accounts a user has connected.
type AccountService struct {
	accounts repository.AccountRepository
	sealer   Sealer
	logger   *zap.Logger
}

func NewAccountService(accounts repository.AccountRepository, sealer Sealer, logger *zap.Logger) *AccountService {
	return &AccountService{accounts: accounts, sealer: sealer, logger: logger}
}

func (s *AccountService) List(ctx context.Context, userID string) ([]AccountView, error) {
	accounts, err := s.accounts.ListAccounts(ctx, userID)
	if err != nil {
		return nil, publicError(reasonInternal, err)
	}

	views := make([]AccountView, 0, len(accounts))
	for i := range accounts {
		v, err := s.view(ctx, &accounts[i])
		if err != nil {
			return nil, publicError(reasonInternal, err)
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *AccountService) Create(ctx context.Context, userID string, req CreateAccountRequest) (*AccountView, error) {
	name := util.SanitizeInput(req.Name)
	baseURL := strings.TrimRight(strings.TrimSpace(req.BaseURL), "/")
	apiKey := strings.TrimSpace(req.APIKey)
	if name == "" || baseURL == "" || apiKey == "" {
		return nil, validationError("name, base_url and api_key are required")
	}
	if err := validateBaseURL(baseURL); err != nil {
		return nil, validationError(err.Error())
	}

	sealed, err := s.sealer.Seal(ctx, apiKey)
	if err != nil {
		return nil, publicError(reasonInternal, fmt.Errorf("failed to encrypt api key: %w", err))
	}

	account := &model.N8nAccount{
		UserID:          userID,
		Name:            name,
		BaseURL:         baseURL,
		APIKeyEncrypted: sealed,
		IsDefault:       req.IsDefault,
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, publicError(reasonUserVanished, err)
		}
		return nil, publicError(reasonInternal, err)
	}

	s.logger.Info("n8n account created",
		zap.String("user_id", userID),
		zap.String("account_id", account.ID),
		zap.Bool("is_default", account.IsDefault))

	v := AccountView{
		ID:        account.ID,
		UserID:    account.UserID,
		Name:      account.Name,
		BaseURL:   account.BaseURL,
		APIKey:    util.MaskSecret(apiKey),
		IsDefault: account.IsDefault,
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}
	return &v, nil
}

func (s *AccountService) SetDefault(ctx context.Context, userID, accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return validationError("accountId is required")
	}
	if err := s.accounts.SetDefaultAccount(ctx, userID, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return publicError(reasonAccountNotFound, err)
		}
		return publicError(reasonInternal, err)
	}
	s.logger.Info("Default n8n account changed",
		zap.String("user_id", userID),
		zap.String("account_id", accountID))
	return nil
}

func (s *AccountService) Delete(ctx context.Context, userID, accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return validationError("accountId is required")
	}
	if err := s.accounts.DeleteAccount(ctx, userID, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return publicError(reasonAccountNotFound, err)
		}
		return publicError(reasonInternal, err)
	}
	s.logger.Info("n8n account deleted",
		zap.String("user_id", userID),
		zap.String("account_id", accountID))
	return nil
}

// credentials returns the account and its decrypted API key.
func (s *AccountService) credentials(ctx context.Context, userID, accountID string) (*model.N8nAccount, string, error) {
	account, err := s.accounts.GetAccount(ctx, userID, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "", publicError(reasonAccountNotFound, err)
	}
	if err != nil {
		return nil, "", publicError(reasonInternal, err)
	}
	key, err := s.sealer.Open(ctx, account.APIKeyEncrypted)
	if err != nil {
		return nil, "", publicError(reasonInternal, fmt.Errorf("failed to decrypt api key: %w", err))
	}
	return account, key, nil
}

func (s *AccountService) view(ctx context.Context, a *model.N8nAccount) (AccountView, error) {
	key, err := s.sealer.Open(ctx, a.APIKeyEncrypted)
	if err != nil {
		return AccountView{}, fmt.Errorf("failed to decrypt api key of %s: %w", a.ID, err)
	}
	return AccountView{
		ID:        a.ID,
		UserID:    a.UserID,
		Name:      a.Name,
		BaseURL:   a.BaseURL,
		APIKey:    util.MaskSecret(key),
		IsDefault: a.IsDefault,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}, nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return errors.New("base_url must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("base_url must use http or https")
	}
	return nil
}
