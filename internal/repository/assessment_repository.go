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

const assessmentColumns = `id, code, subject_id, phone, locale, status, method, questionnaire_version, question_ids,
	total_score, risk_level, created_at, expires_at, completed_at`

type AssessmentRepository struct {
	db *sqlx.DB
}

func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// Create inserts a new assessment. A clashing code yields domain.ErrDuplicate.
func (r *AssessmentRepository) Create(ctx context.Context, a *domain.Assessment) error {
	query := `
		INSERT INTO assessments (id, code, subject_id, phone, locale, status, method, questionnaire_version,
			question_ids, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Code, a.SubjectID, a.Phone, a.Locale, a.Status, a.Method, a.QuestionnaireVersion,
		a.QuestionIDs, a.CreatedAt.UTC(), a.ExpiresAt.UTC(),
	)
	if err != nil {
		return wrapInsert("assessment", err)
	}

	return nil
}

func (r *AssessmentRepository) GetByID(ctx context.Context, id string) (*domain.Assessment, error) {
	return r.getOne(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE id = ?`, id)
}

// LatestOpenForSubject returns the newest unfinished assessment still inside
// its window.
func (r *AssessmentRepository) LatestOpenForSubject(ctx context.Context, subjectID string, now time.Time) (*domain.Assessment, error) {
	query := `
		SELECT ` + assessmentColumns + ` FROM assessments
		WHERE subject_id = ? AND status IN ('pending', 'in_progress') AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, subjectID, now.UTC())
}

func (r *AssessmentRepository) LastCompletedForSubject(ctx context.Context, subjectID string) (*domain.Assessment, error) {
	query := `
		SELECT ` + assessmentColumns + ` FROM assessments
		WHERE subject_id = ? AND status = 'completed'
		ORDER BY completed_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, subjectID)
}

// ActiveSMSByPhone finds the SMS assessment a reply from phone belongs to.
func (r *AssessmentRepository) ActiveSMSByPhone(ctx context.Context, phone string, now time.Time) (*domain.Assessment, error) {
	query := `
		SELECT ` + assessmentColumns + ` FROM assessments
		WHERE phone = ? AND method = 'sms' AND status IN ('pending', 'in_progress') AND expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, phone, now.UTC())
}

func (r *AssessmentRepository) MarkInProgress(ctx context.Context, id string) error {
	query := `UPDATE assessments SET status = 'in_progress' WHERE id = ? AND status = 'pending'`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to start assessment: %w", err)
	}
	return nil
}

// Complete stores the final score. It reports false when the assessment was
// already completed.
func (r *AssessmentRepository) Complete(
	ctx context.Context,
	id string,
	total int,
	level domain.RiskLevel,
	completedAt time.Time,
) (bool, error) {
	query := `
		UPDATE assessments
		SET status = 'completed', total_score = ?, risk_level = ?, completed_at = ?
		WHERE id = ? AND status IN ('pending', 'in_progress')
	`

	result, err := r.db.ExecContext(ctx, query, total, level, completedAt.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to complete assessment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows == 1, nil
}

// MarkExpired records the expired status on unfinished assessments past their
// window. Reads already treat them as expired; this only tidies storage.
func (r *AssessmentRepository) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE assessments SET status = 'expired' WHERE status IN ('pending', 'in_progress') AND expires_at < ?`

	result, err := r.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire assessments: %w", err)
	}

	return result.RowsAffected()
}

// InsertResponse appends an answer. A second answer to the same question
// yields domain.ErrDuplicate.
func (r *AssessmentRepository) InsertResponse(ctx context.Context, resp *domain.Response) (int64, error) {
	query := `
		INSERT INTO assessment_responses (assessment_id, question_id, token, contribution, method, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		resp.AssessmentID, resp.QuestionID, resp.Token, resp.Contribution, resp.Method, resp.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, wrapInsert("assessment response", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return id, nil
}

func (r *AssessmentRepository) ListResponses(ctx context.Context, assessmentID string) ([]domain.Response, error) {
	query := `
		SELECT id, assessment_id, question_id, token, contribution, method, created_at
		FROM assessment_responses
		WHERE assessment_id = ?
		ORDER BY id ASC
	`

	var responses []domain.Response
	if err := r.db.SelectContext(ctx, &responses, query, assessmentID); err != nil {
		return nil, fmt.Errorf("failed to list assessment responses: %w", err)
	}

	return responses, nil
}

func (r *AssessmentRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Assessment, error) {
	var a domain.Assessment
	if err := r.db.GetContext(ctx, &a, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	return &a, nil
}
