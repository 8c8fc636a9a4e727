package postgres

import (
	"context"
	"fmt"
	"time"

	"workflow-dashboard/internal/model"
	"workflow-dashboard/internal/repository"

	"github.com/google/uuid"
)

// ReplaceVerificationCode locks the user row so concurrent logins for the
// same user serialize, then invalidates live codes and inserts the new one.
func (s *Store) ReplaceVerificationCode(ctx context.Context, code *model.VerificationCode) error {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = s.now().UTC()
	}

	return s.withTx(ctx, func(ctx context.Context, tx DBTX) error {
		var locked string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM users WHERE id = $1 FOR UPDATE`, code.UserID).Scan(&locked)
		if err != nil {
			return mapPgErr(err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE verification_codes SET used = TRUE
			 WHERE user_id = $1 AND used = FALSE`, code.UserID); err != nil {
			return mapPgErr(err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO verification_codes (id, user_id, code, expires_at, used, created_at)
			 VALUES ($1, $2, $3, $4, FALSE, $5)`,
			code.ID, code.UserID, code.Code, code.ExpiresAt, code.CreatedAt); err != nil {
			return mapPgErr(err)
		}
		return nil
	})
}

// ConsumeVerificationCode is a single conditional update, so two concurrent
// verifications of one code cannot both succeed.
func (s *Store) ConsumeVerificationCode(ctx context.Context, userID, code string, now time.Time) (*model.VerificationCode, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, repository.ErrNotFound
	}

	var vc model.VerificationCode
	err := s.db.QueryRowContext(ctx,
		`UPDATE verification_codes SET used = TRUE
		 WHERE user_id = $1 AND code = $2 AND used = FALSE AND expires_at > $3
		 RETURNING id, user_id, code, expires_at, used, created_at`,
		userID, code, now).
		Scan(&vc.ID, &vc.UserID, &vc.Code, &vc.ExpiresAt, &vc.Used, &vc.CreatedAt)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &vc, nil
}

func (s *Store) ListVerificationCodes(ctx context.Context, userID string) ([]model.VerificationCode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, code, expires_at, used, created_at FROM verification_codes
		 WHERE user_id = $1
		 ORDER BY created_at`, userID)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	var out []model.VerificationCode
	for rows.Next() {
		var vc model.VerificationCode
		if err := rows.Scan(&vc.ID, &vc.UserID, &vc.Code, &vc.ExpiresAt, &vc.Used, &vc.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
