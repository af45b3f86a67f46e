package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bantai/bantai-service/internal/assessment"
	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/internal/otp"
	"github.com/bantai/bantai-service/internal/scheduler"
	"github.com/bantai/bantai-service/internal/templates"
	"github.com/bantai/bantai-service/pkg/response"
	validatorpkg "github.com/bantai/bantai-service/pkg/validator"
)

//
// Test fakes – only for this file.
//

type fakeOTPService struct {
	issued    *otp.Issued
	err       error
	verifyErr error
	purposes  []domain.OTPPurpose
}

func (f *fakeOTPService) Create(ctx context.Context, rawPhone string, purpose domain.OTPPurpose, locale string) (*otp.Issued, error) {
	f.purposes = append(f.purposes, purpose)
	return f.issued, f.err
}

func (f *fakeOTPService) Verify(ctx context.Context, rawPhone, code string, purpose domain.OTPPurpose) error {
	return f.verifyErr
}

type fakeSMSService struct {
	result   domain.SendResult
	err      error
	filter   domain.SMSLogFilter
	replayed *domain.SMSLog
	template templates.Message
	sentType domain.MessageType
}

func (f *fakeSMSService) Send(ctx context.Context, to, body string, sc domain.SendContext) (domain.SendResult, error) {
	return f.result, f.err
}

func (f *fakeSMSService) SendTemplate(ctx context.Context, to string, msg templates.Message, locale string, sc domain.SendContext) (domain.SendResult, error) {
	f.template = msg
	f.sentType = sc.Type
	return f.result, f.err
}

func (f *fakeSMSService) Enqueue(ctx context.Context, to, body string, sc domain.SendContext) (*domain.SMSLog, error) {
	return &domain.SMSLog{ID: 1, Recipient: to, Message: body, MessageType: sc.Type, Status: domain.SMSStatusQueued}, f.err
}

func (f *fakeSMSService) ProcessQueue(ctx context.Context) ([]domain.SendResult, error) {
	return []domain.SendResult{{Success: true}, {Success: false}}, nil
}

func (f *fakeSMSService) Replay(ctx context.Context, id int64) (*domain.SMSLog, error) {
	return f.replayed, f.err
}

func (f *fakeSMSService) ReplayAll(ctx context.Context) (int, error) {
	return 3, nil
}

func (f *fakeSMSService) GetLogs(ctx context.Context, filter domain.SMSLogFilter, page, pageSize int) ([]domain.SMSLog, int64, error) {
	f.filter = filter
	return nil, 0, nil
}

func (f *fakeSMSService) GetStats(ctx context.Context) (domain.SMSStats, error) {
	return domain.SMSStats{Queued: 1, Sent: 2, Delivered: 3, Failed: 4}, nil
}

func (f *fakeSMSService) GetCachedMessages(ctx context.Context) (map[int64]*domain.SentMessageCache, error) {
	return map[int64]*domain.SentMessageCache{}, nil
}

type fakeAssessmentService struct {
	started  assessment.StartRequest
	result   *domain.AssessmentResult
	err      error
	inbound  *assessment.InboundResult
	delivery *domain.SMSLog
}

func (f *fakeAssessmentService) Questions(locale string) []assessment.QuestionView {
	return []assessment.QuestionView{{ID: "q1", Index: 1, Text: "Question " + locale}}
}

func (f *fakeAssessmentService) Start(ctx context.Context, req assessment.StartRequest) (*domain.Assessment, error) {
	f.started = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Assessment{ID: "a-1", SubjectID: req.SubjectID, Status: domain.AssessmentPending}, nil
}

func (f *fakeAssessmentService) Get(ctx context.Context, id string) (*assessment.View, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &assessment.View{Assessment: &domain.Assessment{ID: id}}, nil
}

func (f *fakeAssessmentService) SubmitResponse(ctx context.Context, assessmentID, questionID, token string, method domain.DeliveryMethod) (*domain.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Response{AssessmentID: assessmentID, QuestionID: questionID, Token: token, Method: method}, nil
}

func (f *fakeAssessmentService) Complete(ctx context.Context, assessmentID string) (*domain.AssessmentResult, error) {
	return f.result, f.err
}

func (f *fakeAssessmentService) StartSMS(ctx context.Context, rawPhone, locale string) (*domain.SendResult, error) {
	return &domain.SendResult{Success: true}, f.err
}

func (f *fakeAssessmentService) HandleInbound(ctx context.Context, from, body string) (*assessment.InboundResult, error) {
	return f.inbound, f.err
}

func (f *fakeAssessmentService) UpdateDeliveryStatus(ctx context.Context, providerMessageID string, reported *domain.SMSStatus) (*domain.SMSLog, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.delivery, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error        { return p.err }
func (p fakePinger) PingContext(ctx context.Context) error { return p.err }

type fakeScheduler struct {
	running   bool
	interval  time.Duration
	runs      int
	startedOn context.Context
}

func (f *fakeScheduler) StartWithInterval(ctx context.Context, interval time.Duration) error {
	f.running = true
	f.interval = interval
	f.startedOn = ctx
	return nil
}

func (f *fakeScheduler) Stop() error {
	f.running = false
	return nil
}

func (f *fakeScheduler) IsRunning() bool             { return f.running }
func (f *fakeScheduler) RunOnce(ctx context.Context) { f.runs++ }

func (f *fakeScheduler) GetStatus() scheduler.SchedulerStatus {
	return scheduler.SchedulerStatus{Running: f.running, Interval: f.interval.String()}
}

func newRequest(method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = validatorpkg.New()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeDomainError(t *testing.T, rec *httptest.ResponseRecorder) response.DomainErrorResponse {
	t.Helper()
	var body response.DomainErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

//
// Tests
//

func TestSendOTP_BadJSON(t *testing.T) {
	handler := NewOTPHandler(&fakeOTPService{})

	c, rec := newRequest(http.MethodPost, "/api/v1/sms/send-otp", `{"phoneNumber":`)
	require.NoError(t, handler.SendOTP(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestSendOTP_RejectsForeignPhoneAndUnknownPurpose(t *testing.T) {
	svc := &fakeOTPService{}
	handler := NewOTPHandler(svc)

	c, rec := newRequest(http.MethodPost, "/api/v1/sms/send-otp", `{"phoneNumber":"+15551234567","purpose":"sms_assessment"}`)
	require.NoError(t, handler.SendOTP(c))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp validatorpkg.ValidationErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Details, "phoneNumber")
	assert.Contains(t, resp.Details, "purpose")
	assert.Empty(t, svc.purposes, "service must not be called")
}

func TestSendOTP_Success(t *testing.T) {
	svc := &fakeOTPService{issued: &otp.Issued{
		ExpiresAt: time.Now().Add(10 * time.Minute),
		Delivery:  domain.SendResult{Success: true, ProviderMessageID: "m-1"},
	}}
	handler := NewOTPHandler(svc)

	c, rec := newRequest(http.MethodPost, "/api/v1/sms/send-otp", `{"phoneNumber":"09171234567","purpose":"login"}`)
	require.NoError(t, handler.SendOTP(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []domain.OTPPurpose{domain.OTPPurposeLogin}, svc.purposes)
}

func TestSendOTP_RateLimited(t *testing.T) {
	handler := NewOTPHandler(&fakeOTPService{err: &domain.RateLimitError{RetryAfter: 30 * time.Minute}})

	c, rec := newRequest(http.MethodPost, "/api/v1/sms/send-otp", `{"phoneNumber":"09171234567","purpose":"registration"}`)
	require.NoError(t, handler.SendOTP(c))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1800", rec.Header().Get("Retry-After"))
}

func TestSendOTP_DeliveryFailureIsProviderError(t *testing.T) {
	handler := NewOTPHandler(&fakeOTPService{issued: &otp.Issued{
		Delivery: domain.SendResult{Error: "carrier down"},
	}})

	c, rec := newRequest(http.MethodPost, "/api/v1/sms/send-otp", `{"phoneNumber":"09171234567","purpose":"registration"}`)
	require.NoError(t, handler.SendOTP(c))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeDomainError(t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, response.CodeProvider, body.Code)
}

func TestVerifyOTP_DistinguishesFailures(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&domain.MismatchError{}, http.StatusBadRequest, response.CodeMismatch},
		{&domain.ExpiredError{Resource: "verification code"}, http.StatusGone, response.CodeExpired},
		{&domain.AlreadyUsedError{Resource: "verification code"}, http.StatusConflict, response.CodeAlreadyUsed},
		{&domain.NotFoundError{Resource: "verification code"}, http.StatusNotFound, response.CodeNotFound},
	}

	for _, tt := range tests {
		handler := NewOTPHandler(&fakeOTPService{verifyErr: tt.err})

		c, rec := newRequest(http.MethodPost, "/api/v1/sms/verify-otp", `{"phoneNumber":"09171234567","otp":"123456","purpose":"login"}`)
		require.NoError(t, handler.VerifyOTP(c))

		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
		assert.Equal(t, tt.code, decodeDomainError(t, rec).Code)
	}
}

func TestVerifyOTP_RejectsMalformedCode(t *testing.T) {
	handler := NewOTPHandler(&fakeOTPService{})

	c, rec := newRequest(http.MethodPost, "/api/v1/sms/verify-otp", `{"phoneNumber":"09171234567","otp":"12ab56","purpose":"login"}`)
	require.NoError(t, handler.VerifyOTP(c))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSendSMS_SoftFailureReturnsAccepted(t *testing.T) {
	handler := NewSMSHandler(&fakeSMSService{result: domain.SendResult{LogID: 9, Error: "carrier down"}})

	c, rec := newRequest(http.MethodPost, "/api/v1/sms/send", `{"phoneNumber":"09171234567","message":"hi","messageType":"test"}`)
	require.NoError(t, handler.SendSMS(c))

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSendSMS_QueueAndValidation(t *testing.T) {
	handler := NewSMSHandler(&fakeSMSService{})

	c, rec := newRequest(http.MethodPost, "/api/v1/sms/send", `{"phoneNumber":"09171234567","message":"hi","messageType":"reminder","queue":true}`)
	require.NoError(t, handler.SendSMS(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	c, rec = newRequest(http.MethodPost, "/api/v1/sms/send", `{"phoneNumber":"09171234567","message":"hi","messageType":"marketing"}`)
	require.NoError(t, handler.SendSMS(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestValidateMessage_ReportsSegments(t *testing.T) {
	handler := NewSMSHandler(&fakeSMSService{})

	c, rec := newRequest(http.MethodPost, "/api/v1/sms/validate", `{"message":"`+strings.Repeat("a", 200)+`"}`)
	require.NoError(t, handler.ValidateMessage(c))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Segments int    `json:"segments"`
			Encoding string `json:"encoding"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Data.Segments)
	assert.Equal(t, "GSM-7", body.Data.Encoding)
}

func TestGetLogs_Filters(t *testing.T) {
	svc := &fakeSMSService{}
	handler := NewSMSHandler(svc)

	c, rec := newRequest(http.MethodGet, "/api/v1/sms/logs?status=failed&type=otp&page=2", "")
	require.NoError(t, handler.GetLogs(c))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.filter.Status)
	assert.Equal(t, domain.SMSStatusFailed, *svc.filter.Status)
	require.NotNil(t, svc.filter.MessageType)
	assert.Equal(t, domain.MessageTypeOTP, *svc.filter.MessageType)

	c, rec = newRequest(http.MethodGet, "/api/v1/sms/logs?status=bogus", "")
	require.NoError(t, handler.GetLogs(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newRequest(http.MethodGet, "/api/v1/sms/logs?pageSize=500", "")
	require.NoError(t, handler.GetLogs(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStats_IncludesTotal(t *testing.T) {
	handler := NewSMSHandler(&fakeSMSService{})

	c, rec := newRequest(http.MethodGet, "/api/v1/sms/stats", "")
	require.NoError(t, handler.GetStats(c))

	var body struct {
		Data map[string]int64 `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(10), body.Data["total"])
}

func TestReplayFailed(t *testing.T) {
	svc := &fakeSMSService{replayed: &domain.SMSLog{ID: 2, Status: domain.SMSStatusQueued}}
	handler := NewSMSHandler(svc)

	c, rec := newRequest(http.MethodPost, "/api/v1/sms/logs/1/replay", "")
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, handler.ReplayFailed(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	c, rec = newRequest(http.MethodPost, "/api/v1/sms/logs/abc/replay", "")
	c.SetParamNames("id")
	c.SetParamValues("abc")
	require.NoError(t, handler.ReplayFailed(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.err = &domain.AlreadyUsedError{Resource: "sms replay"}
	c, rec = newRequest(http.MethodPost, "/api/v1/sms/logs/1/replay", "")
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, handler.ReplayFailed(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartAssessment(t *testing.T) {
	svc := &fakeAssessmentService{}
	handler := NewAssessmentHandler(svc)

	c, rec := newRequest(http.MethodPost, "/api/v1/assessments", `{"subjectId":"user-1","locale":"tl"}`)
	require.NoError(t, handler.StartAssessment(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-1", svc.started.SubjectID)
	assert.Equal(t, domain.MethodWeb, svc.started.Method)

	c, rec = newRequest(http.MethodPost, "/api/v1/assessments", `{}`)
	require.NoError(t, handler.StartAssessment(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCompleteAssessment_Cooldown(t *testing.T) {
	svc := &fakeAssessmentService{err: &domain.ValidationError{
		Field:   "subjectId",
		Message: "an assessment was completed recently",
		Details: map[string]any{"availableAt": "2024-07-01T00:00:00Z"},
	}}
	handler := NewAssessmentHandler(svc)

	c, rec := newRequest(http.MethodPost, "/api/v1/assessments/a-1/complete", "")
	c.SetParamNames("id")
	c.SetParamValues("a-1")
	require.NoError(t, handler.CompleteAssessment(c))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeDomainError(t, rec)
	assert.Equal(t, response.CodeValidation, body.Code)
	assert.Contains(t, body.Details, "availableAt")
}

func TestSubmitResponse_ExpiredIsGone(t *testing.T) {
	handler := NewAssessmentHandler(&fakeAssessmentService{err: &domain.ExpiredError{Resource: "assessment"}})

	c, rec := newRequest(http.MethodPost, "/api/v1/assessments/a-1/responses", `{"questionId":"q1","token":"yes"}`)
	c.SetParamNames("id")
	c.SetParamValues("a-1")
	require.NoError(t, handler.SubmitResponse(c))

	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestWebhooks(t *testing.T) {
	svc := &fakeAssessmentService{
		inbound:  &assessment.InboundResult{Action: assessment.ActionUnmatched},
		delivery: &domain.SMSLog{ID: 1, Status: domain.SMSStatusDelivered},
	}
	handler := NewWebhookHandler(svc, svc)

	c, rec := newRequest(http.MethodPost, "/webhooks/sms/inbound", `{"from":"09171234567","message":"hello"}`)
	require.NoError(t, handler.InboundSMS(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newRequest(http.MethodPost, "/webhooks/sms/delivery", `{"messageId":"m-1","status":"delivered"}`)
	require.NoError(t, handler.DeliveryReport(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newRequest(http.MethodPost, "/webhooks/sms/delivery", `{"messageId":"m-1","status":"queued"}`)
	require.NoError(t, handler.DeliveryReport(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	svc.err = &domain.NotFoundError{Resource: "sms message"}
	c, rec = newRequest(http.MethodPost, "/webhooks/sms/delivery", `{"messageId":"missing"}`)
	require.NoError(t, handler.DeliveryReport(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	handler := NewHealthHandler(fakePinger{}, nil, "console")
	c, rec := newRequest(http.MethodGet, "/health", "")
	require.NoError(t, handler.Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"disabled"`)

	handler = NewHealthHandler(fakePinger{}, fakePinger{err: errors.New("refused")}, "console")
	c, rec = newRequest(http.MethodGet, "/health", "")
	require.NoError(t, handler.Health(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)

	handler = NewHealthHandler(fakePinger{err: errors.New("refused")}, nil, "console")
	c, rec = newRequest(http.MethodGet, "/health", "")
	require.NoError(t, handler.Health(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type serverCtxKey struct{}

func TestScheduler_StartUsesServerContextAndInterval(t *testing.T) {
	sched := &fakeScheduler{}
	serverCtx := context.WithValue(context.Background(), serverCtxKey{}, "server")
	handler := NewSchedulerHandler(sched, serverCtx, time.Minute)

	c, rec := newRequest(http.MethodPost, "/api/v1/scheduler/start", "")
	require.NoError(t, handler.StartScheduler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Minute, sched.interval)
	assert.Equal(t, "server", sched.startedOn.Value(serverCtxKey{}))

	c, rec = newRequest(http.MethodPost, "/api/v1/scheduler/start", `{"interval":30}`)
	require.NoError(t, handler.StartScheduler(c))
	assert.Contains(t, rec.Body.String(), "already running")
	assert.Equal(t, time.Minute, sched.interval)

	require.NoError(t, handler.StopScheduler(c))
	assert.False(t, sched.running)

	c, _ = newRequest(http.MethodPost, "/api/v1/scheduler/start", `{"interval":30}`)
	require.NoError(t, handler.StartScheduler(c))
	assert.Equal(t, 30*time.Second, sched.interval)

	c, rec = newRequest(http.MethodPost, "/api/v1/scheduler/start", `{"interval":0}`)
	sched.running = false
	require.NoError(t, handler.StartScheduler(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestScheduler_RunOnce(t *testing.T) {
	sched := &fakeScheduler{}
	handler := NewSchedulerHandler(sched, context.Background(), time.Minute)

	c, rec := newRequest(http.MethodPost, "/api/v1/scheduler/run", "")
	require.NoError(t, handler.RunScheduler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, sched.runs)
}

func TestSendTemplate(t *testing.T) {
	svc := &fakeSMSService{result: domain.SendResult{Success: true}}
	handler := NewSMSHandler(svc)

	c, rec := newRequest(http.MethodPost, "/api/v1/sms/send-template",
		`{"phoneNumber":"09171234567","template":"reminder","name":"Ana","center":"Manila Social Hygiene Clinic","date":"Mon 3pm","code":"MODA1B2C"}`)
	require.NoError(t, handler.SendTemplate(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, templates.Reminder{Name: "Ana", Center: "Manila Social Hygiene Clinic", Date: "Mon 3pm", Code: "MODA1B2C"}, svc.template)
	assert.Equal(t, domain.MessageTypeReminder, svc.sentType)

	c, rec = newRequest(http.MethodPost, "/api/v1/sms/send-template", `{"phoneNumber":"09171234567","template":"reminder","name":"Ana"}`)
	require.NoError(t, handler.SendTemplate(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "center")

	c, rec = newRequest(http.MethodPost, "/api/v1/sms/send-template", `{"phoneNumber":"09171234567","template":"test"}`)
	require.NoError(t, handler.SendTemplate(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.MessageTypeTest, svc.sentType)

	svc.result = domain.SendResult{Success: false, Error: "carrier down"}
	c, rec = newRequest(http.MethodPost, "/api/v1/sms/send-template", `{"phoneNumber":"09171234567","template":"welcome","name":"Ana","locale":"tl"}`)
	require.NoError(t, handler.SendTemplate(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, domain.MessageTypeNotification, svc.sentType)
}
