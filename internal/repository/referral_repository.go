package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bantai/bantai-service/internal/domain"
)

type ReferralRepository struct {
	db *sqlx.DB
}

func NewReferralRepository(db *sqlx.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// Create inserts a referral. Codes and assessments are unique; a clash yields
// domain.ErrDuplicate.
func (r *ReferralRepository) Create(ctx context.Context, ref *domain.Referral) (int64, error) {
	query := `
		INSERT INTO referrals (code, assessment_id, subject_id, risk_level, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query, ref.Code, ref.AssessmentID, ref.SubjectID, ref.RiskLevel, ref.CreatedAt.UTC())
	if err != nil {
		return 0, wrapInsert("referral", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return id, nil
}

func (r *ReferralRepository) GetByAssessment(ctx context.Context, assessmentID string) (*domain.Referral, error) {
	query := `
		SELECT id, code, assessment_id, subject_id, risk_level, created_at
		FROM referrals
		WHERE assessment_id = ?
	`

	var ref domain.Referral
	if err := r.db.GetContext(ctx, &ref, query, assessmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get referral: %w", err)
	}

	return &ref, nil
}
