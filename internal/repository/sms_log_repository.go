package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bantai/bantai-service/internal/domain"
)

const smsLogColumns = `id, recipient, message, message_type, status, provider, provider_message_id, error,
	attempts, retry_of, assessment_id, claimed_at, sent_at, delivered_at, created_at, updated_at`

// SMSLogRepository handles database operations for the SMS log.
type SMSLogRepository struct {
	db *sqlx.DB
}

func NewSMSLogRepository(db *sqlx.DB) *SMSLogRepository {
	return &SMSLogRepository{db: db}
}

func (r *SMSLogRepository) Create(ctx context.Context, entry *domain.SMSLog) (int64, error) {
	query := `
		INSERT INTO sms_logs (recipient, message, message_type, status, provider, attempts, retry_of,
			assessment_id, claimed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		entry.Recipient, entry.Message, entry.MessageType, entry.Status, entry.Provider, entry.Attempts,
		entry.RetryOf, entry.AssessmentID, utcPtr(entry.ClaimedAt), entry.CreatedAt.UTC(), entry.UpdatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create sms log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return id, nil
}

func (r *SMSLogRepository) GetByID(ctx context.Context, id int64) (*domain.SMSLog, error) {
	query := `SELECT ` + smsLogColumns + ` FROM sms_logs WHERE id = ?`

	var entry domain.SMSLog
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sms log: %w", err)
	}

	return &entry, nil
}

func (r *SMSLogRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.SMSLog, error) {
	query := `SELECT ` + smsLogColumns + ` FROM sms_logs WHERE provider_message_id = ? ORDER BY id DESC LIMIT 1`

	var entry domain.SMSLog
	if err := r.db.GetContext(ctx, &entry, query, providerMessageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sms log by provider id: %w", err)
	}

	return &entry, nil
}

func (r *SMSLogRepository) MarkAsSent(ctx context.Context, id int64, providerMessageID string, sentAt time.Time) (bool, error) {
	query := `
		UPDATE sms_logs
		SET status = 'sent', provider_message_id = ?, sent_at = ?, claimed_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'queued'
	`

	return r.exec(ctx, "mark sms log as sent", query, providerMessageID, sentAt.UTC(), id)
}

func (r *SMSLogRepository) MarkAsDelivered(ctx context.Context, id int64, deliveredAt time.Time) (bool, error) {
	query := `
		UPDATE sms_logs
		SET status = 'delivered', delivered_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'sent'
	`

	return r.exec(ctx, "mark sms log as delivered", query, deliveredAt.UTC(), id)
}

func (r *SMSLogRepository) MarkAsFailed(ctx context.Context, id int64, reason string) (bool, error) {
	query := `
		UPDATE sms_logs
		SET status = 'failed', error = ?, claimed_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('queued', 'sent')
	`

	return r.exec(ctx, "mark sms log as failed", query, reason, id)
}

// ClaimQueued takes up to limit queued entries whose claim is absent or older
// than staleBefore. Each claim is a conditional update, so an entry claimed by
// a concurrent processor is skipped rather than returned twice.
func (r *SMSLogRepository) ClaimQueued(ctx context.Context, limit int, now, staleBefore time.Time) ([]domain.SMSLog, error) {
	candidates := `
		SELECT id FROM sms_logs
		WHERE status = 'queued' AND (claimed_at IS NULL OR claimed_at < ?)
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`

	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, candidates, staleBefore.UTC(), limit); err != nil {
		return nil, fmt.Errorf("failed to list queued sms logs: %w", err)
	}

	claim := `
		UPDATE sms_logs
		SET claimed_at = ?, attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'queued' AND (claimed_at IS NULL OR claimed_at < ?)
	`

	claimed := make([]int64, 0, len(ids))
	for _, id := range ids {
		ok, err := r.exec(ctx, "claim sms log", claim, now.UTC(), id, staleBefore.UTC())
		if err != nil {
			return nil, err
		}
		if ok {
			claimed = append(claimed, id)
		}
	}

	if len(claimed) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+smsLogColumns+` FROM sms_logs WHERE id IN (?) ORDER BY created_at ASC, id ASC`, claimed)
	if err != nil {
		return nil, fmt.Errorf("failed to build claimed query: %w", err)
	}

	var entries []domain.SMSLog
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load claimed sms logs: %w", err)
	}

	return entries, nil
}

// ReleaseClaim returns a queued entry to the queue after a failed attempt.
func (r *SMSLogRepository) ReleaseClaim(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE sms_logs
		SET claimed_at = NULL, error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'queued'
	`

	_, err := r.exec(ctx, "release sms log", query, reason, id)
	return err
}

func (r *SMSLogRepository) GetAll(
	ctx context.Context,
	filter domain.SMSLogFilter,
	page, pageSize int,
) ([]domain.SMSLog, int64, error) {
	offset := (page - 1) * pageSize

	var conditions []string
	var args []any

	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.MessageType != nil {
		conditions = append(conditions, "message_type = ?")
		args = append(args, *filter.MessageType)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int64
	if err := r.db.GetContext(ctx, &totalCount, "SELECT COUNT(*) FROM sms_logs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count sms logs: %w", err)
	}

	query := `SELECT ` + smsLogColumns + ` FROM sms_logs` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	var entries []domain.SMSLog
	if err := r.db.SelectContext(ctx, &entries, query, append(args, pageSize, offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to get sms logs: %w", err)
	}

	return entries, totalCount, nil
}

func (r *SMSLogRepository) GetStats(ctx context.Context) (domain.SMSStats, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'queued' THEN 1 ELSE 0 END), 0)    AS queued,
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0)      AS sent,
			COALESCE(SUM(CASE WHEN status = 'delivered' THEN 1 ELSE 0 END), 0) AS delivered,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)    AS failed
		FROM sms_logs
	`

	var stats domain.SMSStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return domain.SMSStats{}, fmt.Errorf("failed to get stats: %w", err)
	}

	return stats, nil
}

// GetReplayable lists failed entries that have not been replayed yet.
func (r *SMSLogRepository) GetReplayable(ctx context.Context, limit int) ([]domain.SMSLog, error) {
	query := `
		SELECT ` + smsLogColumns + ` FROM sms_logs f
		WHERE f.status = 'failed'
		  AND NOT EXISTS (SELECT 1 FROM sms_logs r WHERE r.retry_of = f.id)
		ORDER BY f.created_at ASC, f.id ASC
		LIMIT ?
	`

	var entries []domain.SMSLog
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get failed sms logs: %w", err)
	}

	return entries, nil
}

func (r *SMSLogRepository) HasRetry(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM sms_logs WHERE retry_of = ?", id); err != nil {
		return false, fmt.Errorf("failed to count replays: %w", err)
	}
	return count > 0, nil
}

func (r *SMSLogRepository) exec(ctx context.Context, what, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", what, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
