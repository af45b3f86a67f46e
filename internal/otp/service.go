// Package otp issues and verifies one-time codes per (phone, purpose).
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bantai/bantai-service/environments"
	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/internal/keylock"
	"github.com/bantai/bantai-service/internal/ratelimit"
	"github.com/bantai/bantai-service/internal/sms/phone"
	"github.com/bantai/bantai-service/internal/templates"
	"github.com/bantai/bantai-service/pkg/logger"
)

const codeDigits = 6

var codePattern = regexp.MustCompile(`^\d{6}$`)

type repository interface {
	// Issue supersedes every earlier unverified record for the same
	// (phone, purpose) and inserts rec in one transaction.
	Issue(ctx context.Context, rec *domain.OTPRecord) (int64, error)
	// Latest returns the newest non-superseded record, or nil.
	Latest(ctx context.Context, phone string, purpose domain.OTPPurpose) (*domain.OTPRecord, error)
	// MarkVerified flips verified only while the record is neither verified
	// nor superseded.
	MarkVerified(ctx context.Context, id int64, at time.Time) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type smsSender interface {
	SendTemplate(ctx context.Context, to string, msg templates.Message, locale string, sc domain.SendContext) (domain.SendResult, error)
}

// Issued is the outcome of Create. The record exists even when Delivery
// reports a failed send.
type Issued struct {
	ExpiresAt time.Time         `json:"expiresAt"`
	Delivery  domain.SendResult `json:"delivery"`
}

type Service struct {
	repo     repository
	sender   smsSender
	issuing  *ratelimit.Limiter
	verifies *ratelimit.Limiter
	locker   keylock.Locker
	config   environments.OTPConfig
	now      func() time.Time
}

// NewService wires the engine. issuing is keyed by phone; verifies is keyed by
// phone and purpose.
func NewService(
	repo repository,
	sender smsSender,
	issuing *ratelimit.Limiter,
	verifies *ratelimit.Limiter,
	locker keylock.Locker,
	config environments.OTPConfig,
) *Service {
	return &Service{
		repo:     repo,
		sender:   sender,
		issuing:  issuing,
		verifies: verifies,
		locker:   locker,
		config:   config,
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// TTLMinutes is the expiry quoted in messages, taken from the same setting the
// records are stamped with. Partial minutes round up.
func (s *Service) TTLMinutes() int {
	return int((s.config.TTL + time.Minute - 1) / time.Minute)
}

// Create issues a code and texts it to phone using the standard OTP message.
func (s *Service) Create(ctx context.Context, rawPhone string, purpose domain.OTPPurpose, locale string) (*Issued, error) {
	code, rec, err := s.Issue(ctx, rawPhone, purpose)
	if err != nil {
		return nil, err
	}

	delivery, err := s.sender.SendTemplate(ctx, rec.Phone, templates.OTP{Code: code, Minutes: s.TTLMinutes()}, locale, domain.SendContext{Type: domain.MessageTypeOTP})
	if err != nil {
		return nil, err
	}

	return &Issued{ExpiresAt: rec.ExpiresAt, Delivery: delivery}, nil
}

// Issue rate-limits, generates and stores a new code without sending it. It
// returns the plaintext code; only its hash is persisted.
func (s *Service) Issue(ctx context.Context, rawPhone string, purpose domain.OTPPurpose) (string, *domain.OTPRecord, error) {
	number, err := phone.Normalize(rawPhone)
	if err != nil {
		return "", nil, err
	}
	if !purpose.Valid() {
		return "", nil, domain.NewValidationError("purpose", fmt.Sprintf("unknown purpose %q", purpose))
	}

	unlock, err := s.locker.Lock(ctx, "otp:"+number)
	if err != nil {
		return "", nil, fmt.Errorf("failed to lock %s: %w", logger.MaskPhone(number), err)
	}
	defer unlock()

	if _, err := s.issuing.Allow(ctx, number); err != nil {
		return "", nil, err
	}

	code, err := generateCode()
	if err != nil {
		return "", nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.config.BcryptCost)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash otp: %w", err)
	}

	now := s.now()
	rec := &domain.OTPRecord{
		Phone:     number,
		Purpose:   purpose,
		CodeHash:  string(hash),
		ExpiresAt: now.Add(s.config.TTL),
		CreatedAt: now,
	}

	id, err := s.repo.Issue(ctx, rec)
	if err != nil {
		return "", nil, fmt.Errorf("failed to store otp: %w", err)
	}
	rec.ID = id

	logger.Infof("Issued %s otp %d for %s", purpose, id, logger.MaskPhone(number))

	return code, rec, nil
}

// Verify checks code against the newest record for (phone, purpose). A record
// verifies at most once.
func (s *Service) Verify(ctx context.Context, rawPhone, code string, purpose domain.OTPPurpose) error {
	number, err := phone.Normalize(rawPhone)
	if err != nil {
		return err
	}
	if !purpose.Valid() {
		return domain.NewValidationError("purpose", fmt.Sprintf("unknown purpose %q", purpose))
	}
	if !codePattern.MatchString(code) {
		return domain.NewValidationError("otp", "must be a 6-digit code")
	}

	attemptKey := number + ":" + string(purpose)
	if _, err := s.verifies.Allow(ctx, attemptKey); err != nil {
		return err
	}

	// Issue holds the same key, so a code cannot be replaced mid-verify.
	unlock, err := s.locker.Lock(ctx, "otp:"+number)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", logger.MaskPhone(number), err)
	}
	defer unlock()

	rec, err := s.repo.Latest(ctx, number, purpose)
	if err != nil {
		return fmt.Errorf("failed to load otp: %w", err)
	}
	if rec == nil {
		return &domain.NotFoundError{Resource: "verification code"}
	}
	if rec.Verified {
		return &domain.AlreadyUsedError{Resource: "verification code"}
	}

	now := s.now()
	if rec.Expired(now) {
		return &domain.ExpiredError{Resource: "verification code"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(code)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return &domain.MismatchError{}
		}
		return fmt.Errorf("failed to compare otp: %w", err)
	}

	ok, err := s.repo.MarkVerified(ctx, rec.ID, now)
	if err != nil {
		return fmt.Errorf("failed to mark otp verified: %w", err)
	}
	if !ok {
		return s.staleRecord(ctx, rec)
	}

	if err := s.verifies.MarkSuccess(ctx, attemptKey); err != nil {
		logger.Warnf("Failed to release verification attempt for %s: %v", logger.MaskPhone(number), err)
	}

	logger.Infof("Verified %s otp %d for %s", purpose, rec.ID, logger.MaskPhone(number))

	return nil
}

// staleRecord explains a MarkVerified that matched no row: the record was
// either verified already or replaced by a newer code.
func (s *Service) staleRecord(ctx context.Context, rec *domain.OTPRecord) error {
	latest, err := s.repo.Latest(ctx, rec.Phone, rec.Purpose)
	if err != nil {
		return fmt.Errorf("failed to load otp: %w", err)
	}
	if latest != nil && latest.ID == rec.ID && latest.Verified {
		return &domain.AlreadyUsedError{Resource: "verification code"}
	}
	return &domain.NotFoundError{Resource: "verification code"}
}

// CanRequest reports whether phone may be sent another code now, without
// using up an attempt.
func (s *Service) CanRequest(ctx context.Context, rawPhone string) (domain.RateLimitResult, error) {
	number, err := phone.Normalize(rawPhone)
	if err != nil {
		return domain.RateLimitResult{}, err
	}
	return s.issuing.Peek(ctx, number)
}

// Cleanup deletes records that expired before now minus retention.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now().Add(-retention))
}

func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}

	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
