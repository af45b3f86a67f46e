package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bantai/bantai-service/internal/domain"
)

// SMSResponseRepository stores inbound patient replies.
type SMSResponseRepository struct {
	db *sqlx.DB
}

func NewSMSResponseRepository(db *sqlx.DB) *SMSResponseRepository {
	return &SMSResponseRepository{db: db}
}

func (r *SMSResponseRepository) Create(ctx context.Context, in *domain.InboundSMS) (int64, error) {
	query := `INSERT INTO sms_responses (phone, body, assessment_id, received_at) VALUES (?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query, in.Phone, in.Body, in.AssessmentID, in.ReceivedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to create sms response: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return id, nil
}

func (r *SMSResponseRepository) ListByPhone(ctx context.Context, phone string, limit int) ([]domain.InboundSMS, error) {
	query := `
		SELECT id, phone, body, assessment_id, received_at
		FROM sms_responses
		WHERE phone = ?
		ORDER BY received_at DESC, id DESC
		LIMIT ?
	`

	var replies []domain.InboundSMS
	if err := r.db.SelectContext(ctx, &replies, query, phone, limit); err != nil {
		return nil, fmt.Errorf("failed to list sms responses: %w", err)
	}

	return replies, nil
}
