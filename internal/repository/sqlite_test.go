package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bantai/bantai-service/environments"
	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/pkg/database"
)

func setupSQLite(t *testing.T) *sqlx.DB {
	db, err := database.New(environments.DatabaseConfig{Driver: database.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newAssessment(id, code, subject string, now time.Time) *domain.Assessment {
	return &domain.Assessment{
		ID:                   id,
		Code:                 code,
		SubjectID:            subject,
		Locale:               "en",
		Status:               domain.AssessmentPending,
		Method:               domain.MethodWeb,
		QuestionnaireVersion: "2024-01",
		QuestionIDs:          domain.StringList{"q1", "q2"},
		CreatedAt:            now,
		ExpiresAt:            now.Add(24 * time.Hour),
	}
}

func TestSQLite_AssessmentLifecycle(t *testing.T) {
	db := setupSQLite(t)
	repo := NewAssessmentRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Create(ctx, newAssessment("a-1", "ABC123", "subject-1", now)))

	err := repo.Create(ctx, newAssessment("a-2", "ABC123", "subject-2", now))
	assert.True(t, errors.Is(err, domain.ErrDuplicate), "duplicate code must map to ErrDuplicate, got %v", err)

	got, err := repo.GetByID(ctx, "a-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StringList{"q1", "q2"}, got.QuestionIDs)

	open, err := repo.LatestOpenForSubject(ctx, "subject-1", now)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "a-1", open.ID)

	_, err = repo.InsertResponse(ctx, &domain.Response{AssessmentID: "a-1", QuestionID: "q1", Token: "yes", Contribution: 2, Method: domain.MethodWeb, CreatedAt: now})
	require.NoError(t, err)
	_, err = repo.InsertResponse(ctx, &domain.Response{AssessmentID: "a-1", QuestionID: "q1", Token: "no", Method: domain.MethodWeb, CreatedAt: now})
	assert.True(t, errors.Is(err, domain.ErrDuplicate), "second answer must map to ErrDuplicate, got %v", err)

	require.NoError(t, repo.MarkInProgress(ctx, "a-1"))

	ok, err := repo.Complete(ctx, "a-1", 2, domain.RiskLow, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Complete(ctx, "a-1", 9, domain.RiskHigh, now)
	require.NoError(t, err)
	assert.False(t, ok, "completion is write-once")

	last, err := repo.LastCompletedForSubject(ctx, "subject-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	require.NotNil(t, last.TotalScore)
	assert.Equal(t, 2, *last.TotalScore)

	responses, err := repo.ListResponses(ctx, "a-1")
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, "yes", responses[0].Token)
}

func TestSQLite_ReferralDuplicates(t *testing.T) {
	db := setupSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	assessments := NewAssessmentRepository(db)
	require.NoError(t, assessments.Create(ctx, newAssessment("a-1", "C1", "s-1", now)))
	require.NoError(t, assessments.Create(ctx, newAssessment("a-2", "C2", "s-2", now)))

	repo := NewReferralRepository(db)

	_, err := repo.Create(ctx, &domain.Referral{Code: "HIGAAAAA", AssessmentID: "a-1", SubjectID: "s-1", RiskLevel: domain.RiskHigh, CreatedAt: now})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &domain.Referral{Code: "HIGAAAAA", AssessmentID: "a-2", SubjectID: "s-2", RiskLevel: domain.RiskHigh, CreatedAt: now})
	assert.True(t, errors.Is(err, domain.ErrDuplicate))

	ref, err := repo.GetByAssessment(ctx, "a-1")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, "HIGAAAAA", ref.Code)

	missing, err := repo.GetByAssessment(ctx, "a-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_OTPIssueAndVerify(t *testing.T) {
	db := setupSQLite(t)
	repo := NewOTPRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := repo.Issue(ctx, &domain.OTPRecord{Phone: "+639171234567", Purpose: domain.OTPPurposeLogin, CodeHash: "h1", ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now})
	require.NoError(t, err)
	second, err := repo.Issue(ctx, &domain.OTPRecord{Phone: "+639171234567", Purpose: domain.OTPPurposeLogin, CodeHash: "h2", ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now})
	require.NoError(t, err)

	latest, err := repo.Latest(ctx, "+639171234567", domain.OTPPurposeLogin)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second, latest.ID)
	assert.NotEqual(t, first, latest.ID)

	ok, err := repo.MarkVerified(ctx, second, now)
	require.NoError(t, err)
	assert.True(t, ok)

	latest, err = repo.Latest(ctx, "+639171234567", domain.OTPPurposeLogin)
	require.NoError(t, err)
	assert.True(t, latest.Verified)

	removed, err := repo.DeleteExpired(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestSQLite_SupersededCodeCannotBeVerified(t *testing.T) {
	db := setupSQLite(t)
	repo := NewOTPRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := repo.Issue(ctx, &domain.OTPRecord{Phone: "+639171234567", Purpose: domain.OTPPurposeLogin, CodeHash: "h1", ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now})
	require.NoError(t, err)

	loaded, err := repo.Latest(ctx, "+639171234567", domain.OTPPurposeLogin)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, first, loaded.ID)

	second, err := repo.Issue(ctx, &domain.OTPRecord{Phone: "+639171234567", Purpose: domain.OTPPurposeLogin, CodeHash: "h2", ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now})
	require.NoError(t, err)

	ok, err := repo.MarkVerified(ctx, loaded.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "a superseded code must not verify")

	ok, err = repo.MarkVerified(ctx, second, now)
	require.NoError(t, err)
	assert.True(t, ok)

	var verified bool
	require.NoError(t, db.GetContext(ctx, &verified, `SELECT verified FROM otp_codes WHERE id = ?`, first))
	assert.False(t, verified)
}

func TestSQLite_SMSLogClaimAndReplay(t *testing.T) {
	db := setupSQLite(t)
	repo := NewSMSLogRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := repo.Create(ctx, &domain.SMSLog{
		Recipient: "+639171234567", Message: "hi", MessageType: domain.MessageTypeReminder,
		Status: domain.SMSStatusQueued, Provider: "console", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	claimed, err := repo.ClaimQueued(ctx, 10, now, now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	again, err := repo.ClaimQueued(ctx, 10, now, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, again, "a fresh claim must not be taken twice")

	ok, err := repo.MarkAsFailed(ctx, id, "carrier down")
	require.NoError(t, err)
	assert.True(t, ok)

	replayable, err := repo.GetReplayable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, replayable, 1)

	retryOf := id
	_, err = repo.Create(ctx, &domain.SMSLog{
		Recipient: "+639171234567", Message: "hi", MessageType: domain.MessageTypeReminder,
		Status: domain.SMSStatusQueued, Provider: "console", RetryOf: &retryOf, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	retried, err := repo.HasRetry(ctx, id)
	require.NoError(t, err)
	assert.True(t, retried)

	replayable, err = repo.GetReplayable(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, replayable)
}
