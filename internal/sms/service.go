package sms

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bantai/bantai-service/environments"
	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/internal/sms/phone"
	"github.com/bantai/bantai-service/internal/templates"
	"github.com/bantai/bantai-service/pkg/logger"
)

// claimTimeout is how long a queue claim holds before another processor may
// take the entry over.
const claimTimeout = 5 * time.Minute

type logRepository interface {
	Create(ctx context.Context, entry *domain.SMSLog) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.SMSLog, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.SMSLog, error)

	// The Mark* methods apply only from an allowed prior status and report
	// whether a row changed.
	MarkAsSent(ctx context.Context, id int64, providerMessageID string, sentAt time.Time) (bool, error)
	MarkAsDelivered(ctx context.Context, id int64, deliveredAt time.Time) (bool, error)
	MarkAsFailed(ctx context.Context, id int64, reason string) (bool, error)

	ClaimQueued(ctx context.Context, limit int, now, staleBefore time.Time) ([]domain.SMSLog, error)
	ReleaseClaim(ctx context.Context, id int64, reason string) error

	GetAll(ctx context.Context, filter domain.SMSLogFilter, page, pageSize int) ([]domain.SMSLog, int64, error)
	GetStats(ctx context.Context) (domain.SMSStats, error)
	GetReplayable(ctx context.Context, limit int) ([]domain.SMSLog, error)
	HasRetry(ctx context.Context, id int64) (bool, error)
}

type inboundRepository interface {
	Create(ctx context.Context, in *domain.InboundSMS) (int64, error)
}

type sentCache interface {
	CacheSentMessage(ctx context.Context, logID int64, messageID string, sentAt time.Time) error
	GetAllCachedMessages(ctx context.Context) (map[int64]*domain.SentMessageCache, error)
}

type Service struct {
	logs     logRepository
	inbound  inboundRepository
	provider Provider
	cache    sentCache
	config   environments.SMSConfig
	now      func() time.Time
}

func NewService(
	logs logRepository,
	inbound inboundRepository,
	provider Provider,
	config environments.SMSConfig,
) *Service {
	return &Service{
		logs:     logs,
		inbound:  inbound,
		provider: provider,
		config:   config,
		now:      time.Now,
	}
}

// WithCache records successful sends in the sent-message cache.
func (s *Service) WithCache(cache sentCache) *Service {
	s.cache = cache
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) ProviderName() string {
	return s.provider.Name()
}

func (s *Service) ValidatePhoneNumber(raw string) bool {
	return s.provider.ValidatePhoneNumber(raw)
}

// Send validates and logs a message, then dispatches it immediately. Input
// problems come back as a ValidationError. Provider failures never do: they
// are recorded on the log entry and reported through SendResult.
func (s *Service) Send(ctx context.Context, to, body string, sc domain.SendContext) (domain.SendResult, error) {
	entry, err := s.newEntry(to, body, sc)
	if err != nil {
		return domain.SendResult{Error: err.Error()}, err
	}

	now := s.now()
	entry.Attempts = 1
	entry.ClaimedAt = &now

	id, err := s.logs.Create(ctx, entry)
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("failed to log sms: %w", err)
	}
	entry.ID = id

	return s.dispatch(ctx, entry, false), nil
}

// SendTemplate renders msg in locale and sends it.
func (s *Service) SendTemplate(
	ctx context.Context,
	to string,
	msg templates.Message,
	locale string,
	sc domain.SendContext,
) (domain.SendResult, error) {
	if locale == "" {
		locale = s.config.DefaultLocale
	}

	body, err := templates.Render(msg, locale)
	if err != nil {
		return domain.SendResult{Error: err.Error()}, fmt.Errorf("failed to render %s: %w", msg.TemplateID(), err)
	}

	return s.Send(ctx, to, body, sc)
}

// Enqueue logs a message as queued for the next ProcessQueue run.
func (s *Service) Enqueue(ctx context.Context, to, body string, sc domain.SendContext) (*domain.SMSLog, error) {
	entry, err := s.newEntry(to, body, sc)
	if err != nil {
		return nil, err
	}

	id, err := s.logs.Create(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to queue sms: %w", err)
	}
	entry.ID = id

	logger.Infof("Queued %s sms %d for %s", entry.MessageType, id, logger.MaskPhone(entry.Recipient))

	return entry, nil
}

func (s *Service) newEntry(to, body string, sc domain.SendContext) (*domain.SMSLog, error) {
	if !sc.Type.Valid() {
		return nil, domain.NewValidationError("messageType", fmt.Sprintf("unknown message type %q", sc.Type))
	}

	if !s.provider.ValidatePhoneNumber(to) {
		return nil, domain.NewValidationError("phoneNumber", "must be a Philippine mobile number (09XXXXXXXXX or +639XXXXXXXXX)")
	}
	recipient, err := phone.Normalize(to)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(body) == "" {
		return nil, domain.NewValidationError("message", "message body is empty")
	}
	if n := utf8.RuneCountInString(body); s.config.MaxContentLength > 0 && n > s.config.MaxContentLength {
		return nil, domain.NewValidationError("message", fmt.Sprintf("content exceeds maximum length of %d characters", s.config.MaxContentLength))
	}

	now := s.now()

	return &domain.SMSLog{
		Recipient:    recipient,
		Message:      body,
		MessageType:  sc.Type,
		Status:       domain.SMSStatusQueued,
		Provider:     s.provider.Name(),
		AssessmentID: sc.AssessmentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// dispatch sends a claimed queued entry. When retryable is set a provider
// failure releases the claim so a later run tries again; otherwise the entry
// is marked failed.
func (s *Service) dispatch(ctx context.Context, entry *domain.SMSLog, retryable bool) domain.SendResult {
	result := domain.SendResult{LogID: entry.ID}

	messageID, err := s.provider.Send(ctx, entry.Recipient, entry.Message, entry.MessageType)
	if err != nil {
		perr := &domain.ProviderError{Provider: s.provider.Name(), Err: err}
		logger.Errorf("Failed to send sms %d to %s: %v", entry.ID, logger.MaskPhone(entry.Recipient), perr)

		result.Error = perr.Error()

		if retryable {
			if relErr := s.logs.ReleaseClaim(ctx, entry.ID, perr.Error()); relErr != nil {
				logger.Errorf("Failed to release sms %d: %v", entry.ID, relErr)
			}
			return result
		}

		if _, markErr := s.logs.MarkAsFailed(ctx, entry.ID, perr.Error()); markErr != nil {
			logger.Errorf("Failed to mark sms %d as failed: %v", entry.ID, markErr)
		}
		return result
	}

	sentAt := s.now()

	applied, err := s.logs.MarkAsSent(ctx, entry.ID, messageID, sentAt)
	if err != nil {
		logger.Errorf("Failed to mark sms %d as sent: %v", entry.ID, err)
	} else if !applied {
		logger.Warnf("sms %d was no longer queued when marked sent", entry.ID)
	}

	if s.cache != nil {
		if err := s.cache.CacheSentMessage(ctx, entry.ID, messageID, sentAt); err != nil {
			logger.Warnf("Failed to cache sms %d: %v", entry.ID, err)
		}
	}

	logger.Infof("Sent %s sms %d via %s (providerMessageId: %s)", entry.MessageType, entry.ID, s.provider.Name(), messageID)

	result.Success = true
	result.ProviderMessageID = messageID

	return result
}

// ProcessQueue dispatches a batch of queued entries. Only entries this call
// managed to claim are sent, so concurrent runs never send the same entry
// twice. Entries that exhaust their attempts are marked failed.
func (s *Service) ProcessQueue(ctx context.Context) ([]domain.SendResult, error) {
	now := s.now()

	entries, err := s.logs.ClaimQueued(ctx, s.config.BatchSize, now, now.Add(-claimTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to claim queued sms: %w", err)
	}

	if len(entries) == 0 {
		logger.Debugf("No queued sms to process")
		return nil, nil
	}

	logger.Infof("Processing %d queued sms", len(entries))

	results := make([]domain.SendResult, 0, len(entries))

	for i := range entries {
		entry := &entries[i]

		if entry.Status != domain.SMSStatusQueued {
			logger.Debugf("Skipping sms %d in status %s", entry.ID, entry.Status)
			continue
		}

		retryable := entry.Attempts < s.config.MaxAttempts
		results = append(results, s.dispatch(ctx, entry, retryable))
	}

	return results, nil
}

// UpdateDeliveryStatus applies a delivery report for a provider message id.
// When reported is nil the provider is asked for the status. Reports that
// would move the entry backwards are ignored.
func (s *Service) UpdateDeliveryStatus(
	ctx context.Context,
	providerMessageID string,
	reported *domain.SMSStatus,
) (*domain.SMSLog, error) {
	entry, err := s.logs.GetByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sms %s: %w", providerMessageID, err)
	}
	if entry == nil {
		return nil, &domain.NotFoundError{Resource: "sms message"}
	}

	var status domain.SMSStatus
	if reported != nil {
		status = *reported
	} else {
		status, err = s.provider.DeliveryStatus(ctx, providerMessageID)
		if err != nil {
			return nil, &domain.ProviderError{Provider: s.provider.Name(), Err: err}
		}
	}

	if !status.Valid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown delivery status %q", status))
	}

	if !entry.Status.CanTransitionTo(status) {
		logger.Debugf("Ignoring %s report for sms %d in status %s", status, entry.ID, entry.Status)
		return entry, nil
	}

	now := s.now()

	var applied bool
	switch status {
	case domain.SMSStatusSent:
		applied, err = s.logs.MarkAsSent(ctx, entry.ID, providerMessageID, now)
	case domain.SMSStatusDelivered:
		applied, err = s.logs.MarkAsDelivered(ctx, entry.ID, now)
	case domain.SMSStatusFailed:
		applied, err = s.logs.MarkAsFailed(ctx, entry.ID, "carrier reported delivery failure")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update sms %d: %w", entry.ID, err)
	}
	if !applied {
		logger.Debugf("sms %d changed concurrently, %s report not applied", entry.ID, status)
	}

	return s.logs.GetByID(ctx, entry.ID)
}

// RecordInbound stores a reply received from a patient.
func (s *Service) RecordInbound(ctx context.Context, from, body string, assessmentID *string) (*domain.InboundSMS, error) {
	sender, err := phone.Normalize(from)
	if err != nil {
		return nil, err
	}

	in := &domain.InboundSMS{
		Phone:        sender,
		Body:         strings.TrimSpace(body),
		AssessmentID: assessmentID,
		ReceivedAt:   s.now(),
	}

	id, err := s.inbound.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to store inbound sms: %w", err)
	}
	in.ID = id

	return in, nil
}

// Replay queues a fresh copy of a failed entry linked to it by retry_of. The
// failed entry itself is left untouched.
func (s *Service) Replay(ctx context.Context, id int64) (*domain.SMSLog, error) {
	entry, err := s.logs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load sms %d: %w", id, err)
	}
	if entry == nil {
		return nil, &domain.NotFoundError{Resource: "sms message"}
	}
	if entry.Status != domain.SMSStatusFailed {
		return nil, domain.NewValidationError("id", "only failed messages can be replayed")
	}

	retried, err := s.logs.HasRetry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check replays of sms %d: %w", id, err)
	}
	if retried {
		return nil, &domain.AlreadyUsedError{Resource: "failed sms"}
	}

	return s.requeue(ctx, entry)
}

// ReplayAll queues a copy of every failed entry not replayed yet.
func (s *Service) ReplayAll(ctx context.Context) (int, error) {
	entries, err := s.logs.GetReplayable(ctx, 1000)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed sms: %w", err)
	}

	count := 0
	for i := range entries {
		if _, err := s.requeue(ctx, &entries[i]); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

func (s *Service) requeue(ctx context.Context, failed *domain.SMSLog) (*domain.SMSLog, error) {
	now := s.now()
	retryOf := failed.ID

	entry := &domain.SMSLog{
		Recipient:    failed.Recipient,
		Message:      failed.Message,
		MessageType:  failed.MessageType,
		Status:       domain.SMSStatusQueued,
		Provider:     s.provider.Name(),
		RetryOf:      &retryOf,
		AssessmentID: failed.AssessmentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	id, err := s.logs.Create(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to replay sms %d: %w", failed.ID, err)
	}
	entry.ID = id

	logger.Infof("Replaying sms %d as %d", failed.ID, id)

	return entry, nil
}

func (s *Service) GetLogs(ctx context.Context, filter domain.SMSLogFilter, page, pageSize int) ([]domain.SMSLog, int64, error) {
	return s.logs.GetAll(ctx, filter, page, pageSize)
}

func (s *Service) GetStats(ctx context.Context) (domain.SMSStats, error) {
	return s.logs.GetStats(ctx)
}

func (s *Service) GetCachedMessages(ctx context.Context) (map[int64]*domain.SentMessageCache, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("redis client not configured")
	}
	return s.cache.GetAllCachedMessages(ctx)
}
