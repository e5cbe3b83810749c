package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PasswordResetCode is a one-time recovery code sent by email.
type PasswordResetCode struct {
	ID        string
	AccountID string
	Code      string
	ExpiresAt time.Time
	UsedAt    *time.Time
	// Attempts counts wrong guesses against this code.
	Attempts  int
	CreatedAt time.Time
}

// MaxResetAttempts is the number of wrong guesses a code tolerates.
const MaxResetAttempts = 5

// Usable reports whether the code can still be redeemed at now.
func (c *PasswordResetCode) Usable(now time.Time) bool {
	return c.UsedAt == nil && c.Attempts < MaxResetAttempts && now.Before(c.ExpiresAt)
}

// PasswordResetRepository manages recovery code persistence.
type PasswordResetRepository interface {
	// Create stores a new code and retires every unused code issued before it.
	Create(ctx context.Context, code *PasswordResetCode) error
	// GetLatest returns the newest unused code issued to the account.
	GetLatest(ctx context.Context, accountID string) (*PasswordResetCode, error)
	// RecordFailure counts a wrong guess and returns the new attempt count.
	RecordFailure(ctx context.Context, id string) (int, error)
	MarkUsed(ctx context.Context, id string) error
}

type passwordResetRepository struct {
	pool *pgxpool.Pool
}

// NewPasswordResetRepository constructs repository.
func NewPasswordResetRepository(pool *pgxpool.Pool) PasswordResetRepository {
	return &passwordResetRepository{pool: pool}
}

func (r *passwordResetRepository) Create(ctx context.Context, code *PasswordResetCode) error {
	const retire = `
        UPDATE password_reset_codes SET used_at=NOW()
        WHERE account_id=$1 AND used_at IS NULL`
	const insert = `
        INSERT INTO password_reset_codes (account_id, code, expires_at)
        VALUES ($1,$2,$3)
        RETURNING id, attempts, created_at`
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, retire, code.AccountID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, insert,
			code.AccountID,
			code.Code,
			code.ExpiresAt,
		).Scan(&code.ID, &code.Attempts, &code.CreatedAt)
	})
}

func (r *passwordResetRepository) GetLatest(ctx context.Context, accountID string) (*PasswordResetCode, error) {
	const query = `
        SELECT id, account_id, code, expires_at, used_at, attempts, created_at
        FROM password_reset_codes WHERE account_id=$1 AND used_at IS NULL
        ORDER BY created_at DESC LIMIT 1`
	var code PasswordResetCode
	if err := r.pool.QueryRow(ctx, query, accountID).Scan(
		&code.ID,
		&code.AccountID,
		&code.Code,
		&code.ExpiresAt,
		&code.UsedAt,
		&code.Attempts,
		&code.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *passwordResetRepository) RecordFailure(ctx context.Context, id string) (int, error) {
	const query = `
        UPDATE password_reset_codes SET attempts=attempts+1
        WHERE id=$1 AND used_at IS NULL
        RETURNING attempts`
	var attempts int
	if err := r.pool.QueryRow(ctx, query, id).Scan(&attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}

func (r *passwordResetRepository) MarkUsed(ctx context.Context, id string) error {
	const query = `
        UPDATE password_reset_codes SET used_at=NOW()
        WHERE id=$1 AND used_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
