package sms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bantai/bantai-service/environments"
	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/internal/templates"
)

//
// Test fakes – only for this file.
//

type fakeLogRepo struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*domain.SMSLog
}

func newFakeLogRepo() *fakeLogRepo {
	return &fakeLogRepo{entries: make(map[int64]*domain.SMSLog)}
}

func (r *fakeLogRepo) Create(ctx context.Context, entry *domain.SMSLog) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	stored := *entry
	stored.ID = r.nextID
	r.entries[stored.ID] = &stored
	return stored.ID, nil
}

func (r *fakeLogRepo) get(id int64) *domain.SMSLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		cp := *e
		return &cp
	}
	return nil
}

func (r *fakeLogRepo) GetByID(ctx context.Context, id int64) (*domain.SMSLog, error) {
	return r.get(id), nil
}

func (r *fakeLogRepo) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.SMSLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.ProviderMessageID != nil && *e.ProviderMessageID == providerMessageID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeLogRepo) transition(id int64, to domain.SMSStatus, apply func(e *domain.SMSLog)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || !e.Status.CanTransitionTo(to) {
		return false
	}
	e.Status = to
	apply(e)
	return true
}

func (r *fakeLogRepo) MarkAsSent(ctx context.Context, id int64, providerMessageID string, sentAt time.Time) (bool, error) {
	return r.transition(id, domain.SMSStatusSent, func(e *domain.SMSLog) {
		e.ProviderMessageID = &providerMessageID
		e.SentAt = &sentAt
		e.ClaimedAt = nil
	}), nil
}

func (r *fakeLogRepo) MarkAsDelivered(ctx context.Context, id int64, deliveredAt time.Time) (bool, error) {
	return r.transition(id, domain.SMSStatusDelivered, func(e *domain.SMSLog) {
		e.DeliveredAt = &deliveredAt
	}), nil
}

func (r *fakeLogRepo) MarkAsFailed(ctx context.Context, id int64, reason string) (bool, error) {
	return r.transition(id, domain.SMSStatusFailed, func(e *domain.SMSLog) {
		e.Error = &reason
		e.ClaimedAt = nil
	}), nil
}

func (r *fakeLogRepo) ClaimQueued(ctx context.Context, limit int, now, staleBefore time.Time) ([]domain.SMSLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var claimed []domain.SMSLog
	for _, id := range ids {
		if len(claimed) == limit {
			break
		}
		e := r.entries[id]
		if e.Status != domain.SMSStatusQueued {
			continue
		}
		if e.ClaimedAt != nil && !e.ClaimedAt.Before(staleBefore) {
			continue
		}
		claimedAt := now
		e.ClaimedAt = &claimedAt
		e.Attempts++
		claimed = append(claimed, *e)
	}
	return claimed, nil
}

func (r *fakeLogRepo) ReleaseClaim(ctx context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		e.ClaimedAt = nil
		e.Error = &reason
	}
	return nil
}

func (r *fakeLogRepo) GetAll(ctx context.Context, filter domain.SMSLogFilter, page, pageSize int) ([]domain.SMSLog, int64, error) {
	return nil, 0, nil
}

func (r *fakeLogRepo) GetStats(ctx context.Context) (domain.SMSStats, error) {
	return domain.SMSStats{}, nil
}

func (r *fakeLogRepo) GetReplayable(ctx context.Context, limit int) ([]domain.SMSLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	retried := make(map[int64]bool)
	for _, e := range r.entries {
		if e.RetryOf != nil {
			retried[*e.RetryOf] = true
		}
	}

	var out []domain.SMSLog
	for _, e := range r.entries {
		if e.Status == domain.SMSStatusFailed && !retried[e.ID] {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeLogRepo) HasRetry(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.RetryOf != nil && *e.RetryOf == id {
			return true, nil
		}
	}
	return false, nil
}

type fakeInboundRepo struct {
	stored []domain.InboundSMS
}

func (r *fakeInboundRepo) Create(ctx context.Context, in *domain.InboundSMS) (int64, error) {
	r.stored = append(r.stored, *in)
	return int64(len(r.stored)), nil
}

type fakeProvider struct {
	mu         sync.Mutex
	shouldFail bool
	status     domain.SMSStatus
	sent       []string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Send(ctx context.Context, to, body string, msgType domain.MessageType) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shouldFail {
		return "", errors.New("simulated carrier outage")
	}
	p.sent = append(p.sent, body)
	return fmt.Sprintf("msg-%d", len(p.sent)), nil
}

func (p *fakeProvider) ValidatePhoneNumber(raw string) bool {
	return validPhone(raw)
}

func (p *fakeProvider) DeliveryStatus(ctx context.Context, messageID string) (domain.SMSStatus, error) {
	return p.status, nil
}

func (p *fakeProvider) sentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type fakeCache struct {
	cache map[int64]*domain.SentMessageCache
}

func (c *fakeCache) CacheSentMessage(ctx context.Context, logID int64, messageID string, sentAt time.Time) error {
	if c.cache == nil {
		c.cache = make(map[int64]*domain.SentMessageCache)
	}
	c.cache[logID] = &domain.SentMessageCache{MessageID: messageID, SentAt: sentAt}
	return nil
}

func (c *fakeCache) GetAllCachedMessages(ctx context.Context) (map[int64]*domain.SentMessageCache, error) {
	return c.cache, nil
}

func testConfig() environments.SMSConfig {
	return environments.SMSConfig{
		BatchSize:        10,
		MaxAttempts:      2,
		MaxContentLength: 918,
		DefaultLocale:    "en",
	}
}

func newTestService(provider *fakeProvider) (*Service, *fakeLogRepo, *fakeInboundRepo) {
	logs := newFakeLogRepo()
	inbound := &fakeInboundRepo{}
	return NewService(logs, inbound, provider, testConfig()), logs, inbound
}

//
// Tests
//

func TestSend_SuccessLogsAndCaches(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	svc, logs, _ := newTestService(provider)
	cache := &fakeCache{}
	svc.WithCache(cache)

	res, err := svc.Send(ctx, "09171234567", "hello", domain.SendContext{Type: domain.MessageTypeTest})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if !res.Success || res.ProviderMessageID != "msg-1" {
		t.Fatalf("unexpected result: %+v", res)
	}

	entry := logs.get(res.LogID)
	if entry.Status != domain.SMSStatusSent {
		t.Fatalf("expected sent, got %s", entry.Status)
	}
	if entry.Recipient != "+639171234567" {
		t.Errorf("expected normalized recipient, got %s", entry.Recipient)
	}
	if entry.MessageType != domain.MessageTypeTest {
		t.Errorf("expected message type test, got %s", entry.MessageType)
	}
	if _, ok := cache.cache[res.LogID]; !ok {
		t.Errorf("expected sent message to be cached")
	}
}

func TestSend_ProviderFailureIsSoft(t *testing.T) {
	ctx := context.Background()
	svc, logs, _ := newTestService(&fakeProvider{shouldFail: true})

	res, err := svc.Send(ctx, "+639171234567", "hello", domain.SendContext{Type: domain.MessageTypeOTP})
	if err != nil {
		t.Fatalf("provider failures must not surface as errors, got %v", err)
	}
	if res.Success || res.Error == "" {
		t.Fatalf("expected unsuccessful result with error, got %+v", res)
	}

	entry := logs.get(res.LogID)
	if entry.Status != domain.SMSStatusFailed {
		t.Fatalf("expected failed, got %s", entry.Status)
	}
	if entry.Error == nil {
		t.Errorf("expected error to be recorded on the log entry")
	}
}

func TestSend_InvalidPhoneIsValidationError(t *testing.T) {
	provider := &fakeProvider{}
	svc, logs, _ := newTestService(provider)

	_, err := svc.Send(context.Background(), "+15551234567", "hello", domain.SendContext{Type: domain.MessageTypeTest})

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if provider.sentCount() != 0 || len(logs.entries) != 0 {
		t.Fatalf("invalid numbers must be rejected before logging or sending")
	}
}

func TestSend_RejectsUnknownTypeAndOversizedBody(t *testing.T) {
	svc, _, _ := newTestService(&fakeProvider{})
	ctx := context.Background()

	var verr *domain.ValidationError

	_, err := svc.Send(ctx, "09171234567", "hi", domain.SendContext{Type: "promo"})
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for unknown type, got %v", err)
	}

	big := make([]byte, 919)
	for i := range big {
		big[i] = 'a'
	}
	_, err = svc.Send(ctx, "09171234567", string(big), domain.SendContext{Type: domain.MessageTypeTest})
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for oversized body, got %v", err)
	}
}

func TestSendTemplate_RendersOTP(t *testing.T) {
	provider := &fakeProvider{}
	svc, _, _ := newTestService(provider)

	res, err := svc.SendTemplate(context.Background(), "09171234567", templates.OTP{Code: "123456", Minutes: 10}, "", domain.SendContext{Type: domain.MessageTypeOTP})
	if err != nil || !res.Success {
		t.Fatalf("SendTemplate failed: %+v %v", res, err)
	}
	if provider.sent[0] == "" {
		t.Fatalf("expected a rendered body")
	}
}

func TestProcessQueue_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	svc, logs, _ := newTestService(provider)

	entry, err := svc.Enqueue(ctx, "09171234567", "reminder", domain.SendContext{Type: domain.MessageTypeReminder})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	results, err := svc.ProcessQueue(ctx)
	if err != nil {
		t.Fatalf("ProcessQueue returned error: %v", err)
	}
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("unexpected results: %+v", results)
	}

	results, err = svc.ProcessQueue(ctx)
	if err != nil {
		t.Fatalf("second ProcessQueue returned error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("already sent entry must not be processed again, got %+v", results)
	}
	if provider.sentCount() != 1 {
		t.Fatalf("expected exactly one send, got %d", provider.sentCount())
	}
	if logs.get(entry.ID).Status != domain.SMSStatusSent {
		t.Fatalf("expected entry to be sent")
	}
}

func TestProcessQueue_ConcurrentRunsSendOnce(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	svc, _, _ := newTestService(provider)

	for i := 0; i < 5; i++ {
		if _, err := svc.Enqueue(ctx, "09171234567", fmt.Sprintf("msg %d", i), domain.SendContext{Type: domain.MessageTypeNotification}); err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.ProcessQueue(ctx)
		}()
	}
	wg.Wait()

	if provider.sentCount() != 5 {
		t.Fatalf("expected 5 sends, got %d", provider.sentCount())
	}
}

func TestProcessQueue_RetriesThenFails(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{shouldFail: true}
	svc, logs, _ := newTestService(provider)

	entry, err := svc.Enqueue(ctx, "09171234567", "hello", domain.SendContext{Type: domain.MessageTypeNotification})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	if _, err := svc.ProcessQueue(ctx); err != nil {
		t.Fatalf("ProcessQueue returned error: %v", err)
	}
	if got := logs.get(entry.ID); got.Status != domain.SMSStatusQueued || got.Attempts != 1 {
		t.Fatalf("expected entry to stay queued after first attempt, got %+v", got)
	}

	if _, err := svc.ProcessQueue(ctx); err != nil {
		t.Fatalf("ProcessQueue returned error: %v", err)
	}
	if got := logs.get(entry.ID); got.Status != domain.SMSStatusFailed || got.Attempts != 2 {
		t.Fatalf("expected entry to fail after max attempts, got %+v", got)
	}
}

func TestUpdateDeliveryStatus(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{status: domain.SMSStatusDelivered}
	svc, _, _ := newTestService(provider)

	res, err := svc.Send(ctx, "09171234567", "hello", domain.SendContext{Type: domain.MessageTypeTest})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	entry, err := svc.UpdateDeliveryStatus(ctx, res.ProviderMessageID, nil)
	if err != nil {
		t.Fatalf("UpdateDeliveryStatus returned error: %v", err)
	}
	if entry.Status != domain.SMSStatusDelivered || entry.DeliveredAt == nil {
		t.Fatalf("expected delivered entry, got %+v", entry)
	}

	failed := domain.SMSStatusFailed
	entry, err = svc.UpdateDeliveryStatus(ctx, res.ProviderMessageID, &failed)
	if err != nil {
		t.Fatalf("UpdateDeliveryStatus returned error: %v", err)
	}
	if entry.Status != domain.SMSStatusDelivered {
		t.Fatalf("terminal delivered status must not be overwritten, got %s", entry.Status)
	}

	_, err = svc.UpdateDeliveryStatus(ctx, "unknown", nil)
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestReplay_CreatesLinkedEntry(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{shouldFail: true}
	svc, logs, _ := newTestService(provider)

	res, _ := svc.Send(ctx, "09171234567", "hello", domain.SendContext{Type: domain.MessageTypeTest})

	replay, err := svc.Replay(ctx, res.LogID)
	if err != nil {
		t.Fatalf("Replay returned error: %v", err)
	}
	if replay.Status != domain.SMSStatusQueued || replay.RetryOf == nil || *replay.RetryOf != res.LogID {
		t.Fatalf("unexpected replay entry: %+v", replay)
	}
	if logs.get(res.LogID).Status != domain.SMSStatusFailed {
		t.Fatalf("original entry must stay failed")
	}

	_, err = svc.Replay(ctx, res.LogID)
	var used *domain.AlreadyUsedError
	if !errors.As(err, &used) {
		t.Fatalf("expected AlreadyUsedError on second replay, got %v", err)
	}

	_, err = svc.Replay(ctx, replay.ID)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for non-failed entry, got %v", err)
	}
}

func TestReplayAll(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(&fakeProvider{shouldFail: true})

	for i := 0; i < 3; i++ {
		_, _ = svc.Send(ctx, "09171234567", "hello", domain.SendContext{Type: domain.MessageTypeTest})
	}

	count, err := svc.ReplayAll(ctx)
	if err != nil {
		t.Fatalf("ReplayAll returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 replays, got %d", count)
	}

	count, _ = svc.ReplayAll(ctx)
	if count != 0 {
		t.Fatalf("expected nothing left to replay, got %d", count)
	}
}

func TestRecordInbound(t *testing.T) {
	svc, _, inbound := newTestService(&fakeProvider{})

	in, err := svc.RecordInbound(context.Background(), "639171234567", "  A ", nil)
	if err != nil {
		t.Fatalf("RecordInbound returned error: %v", err)
	}
	if in.Phone != "+639171234567" || in.Body != "A" {
		t.Fatalf("unexpected inbound record: %+v", in)
	}
	if len(inbound.stored) != 1 {
		t.Fatalf("expected inbound sms to be stored")
	}
}

func TestGetCachedMessages_WithoutCache(t *testing.T) {
	svc, _, _ := newTestService(&fakeProvider{})

	if _, err := svc.GetCachedMessages(context.Background()); err == nil {
		t.Fatalf("expected error without a cache")
	}
}
