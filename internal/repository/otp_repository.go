package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bantai/bantai-service/internal/domain"
)

type OTPRepository struct {
	db *sqlx.DB
}

func NewOTPRepository(db *sqlx.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// Issue supersedes earlier unverified codes for the same phone and purpose and
// inserts rec. Both happen in one transaction so two live codes are never
// visible at once.
func (r *OTPRepository) Issue(ctx context.Context, rec *domain.OTPRecord) (id int64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	supersede := `
		UPDATE otp_codes
		SET superseded = TRUE
		WHERE phone = ? AND purpose = ? AND verified = FALSE AND superseded = FALSE
	`
	if _, err = tx.ExecContext(ctx, supersede, rec.Phone, rec.Purpose); err != nil {
		return 0, fmt.Errorf("failed to supersede otp codes: %w", err)
	}

	insert := `
		INSERT INTO otp_codes (phone, purpose, code_hash, expires_at, verified, superseded, created_at)
		VALUES (?, ?, ?, ?, FALSE, FALSE, ?)
	`
	result, err := tx.ExecContext(ctx, insert, rec.Phone, rec.Purpose, rec.CodeHash, rec.ExpiresAt.UTC(), rec.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to create otp code: %w", err)
	}

	id, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit otp code: %w", err)
	}

	return id, nil
}

func (r *OTPRepository) Latest(ctx context.Context, phone string, purpose domain.OTPPurpose) (*domain.OTPRecord, error) {
	query := `
		SELECT id, phone, purpose, code_hash, expires_at, verified, superseded, verified_at, created_at
		FROM otp_codes
		WHERE phone = ? AND purpose = ? AND superseded = FALSE
		ORDER BY id DESC
		LIMIT 1
	`

	var rec domain.OTPRecord
	if err := r.db.GetContext(ctx, &rec, query, phone, purpose); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get otp code: %w", err)
	}

	return &rec, nil
}

func (r *OTPRepository) MarkVerified(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `UPDATE otp_codes SET verified = TRUE, verified_at = ? WHERE id = ? AND verified = FALSE AND superseded = FALSE`

	result, err := r.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to mark otp verified: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows == 1, nil
}

func (r *OTPRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM otp_codes WHERE expires_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired otp codes: %w", err)
	}

	return result.RowsAffected()
}
