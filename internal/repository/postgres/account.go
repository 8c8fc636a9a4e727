package postgres

import (
	"context"
	"fmt"

	"workflow-dashboard/internal/model"
	"workflow-dashboard/internal/repository"

	"github.com/google/uuid"
)

const accountColumns = `id, user_id, name, base_url, api_key_encrypted, is_default, created_at, updated_at`

func (s *Store) ListAccounts(ctx context.Context, userID string) ([]model.N8nAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM n8n_accounts
		 WHERE user_id = $1
		 ORDER BY is_default DESC, created_at DESC`, userID)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	out := []model.N8nAccount{}
	for rows.Next() {
		var a model.N8nAccount
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.BaseURL, &a.APIKeyEncrypted, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (s *Store) GetAccount(ctx context.Context, userID, accountID string) (*model.N8nAccount, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return nil, repository.ErrNotFound
	}

	var a model.N8nAccount
	err := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM n8n_accounts
		 WHERE id = $1 AND user_id = $2`, accountID, userID).
		Scan(&a.ID, &a.UserID, &a.Name, &a.BaseURL, &a.APIKeyEncrypted, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &a, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *model.N8nAccount) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := s.now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	return s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		if account.IsDefault {
			if _, err := tx.ExecContext(ctx,
				`UPDATE n8n_accounts SET is_default = FALSE, updated_at = $2
				 WHERE user_id = $1 AND is_default`, account.UserID, now); err != nil {
				return mapPgErr(err)
			}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO n8n_accounts (`+accountColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			account.ID, account.UserID, account.Name, account.BaseURL, account.APIKeyEncrypted,
			account.IsDefault, account.CreatedAt, account.UpdatedAt)
		if err != nil {
			return mapPgErr(err)
		}
		return nil
	})
}

func (s *Store) SetDefaultAccount(ctx context.Context, userID, accountID string) error {
	if _, err := uuid.Parse(accountID); err != nil {
		return repository.ErrNotFound
	}
	now := s.now().UTC()

	return s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		var locked string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM n8n_accounts WHERE id = $1 AND user_id = $2 FOR UPDATE`,
			accountID, userID).Scan(&locked)
		if err != nil {
			return mapPgErr(err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE n8n_accounts SET is_default = FALSE, updated_at = $2
			 WHERE user_id = $1 AND is_default`, userID, now); err != nil {
			return mapPgErr(err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE n8n_accounts SET is_default = TRUE, updated_at = $2
			 WHERE id = $1`, accountID, now); err != nil {
			return mapPgErr(err)
		}
		return nil
	})
}

func (s *Store) DeleteAccount(ctx context.Context, userID, accountID string) error {
	if _, err := uuid.Parse(accountID); err != nil {
		return repository.ErrNotFound
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM n8n_accounts WHERE id = $1 AND user_id = $2`, accountID, userID)
	if err != nil {
		return mapPgErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
