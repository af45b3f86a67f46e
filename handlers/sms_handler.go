package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/internal/templates"
	"github.com/bantai/bantai-service/pkg/response"
	"github.com/bantai/bantai-service/pkg/validator"
)

type smsService interface {
	Send(ctx context.Context, to, body string, sc domain.SendContext) (domain.SendResult, error)
	SendTemplate(ctx context.Context, to string, msg templates.Message, locale string, sc domain.SendContext) (domain.SendResult, error)
	Enqueue(ctx context.Context, to, body string, sc domain.SendContext) (*domain.SMSLog, error)
	ProcessQueue(ctx context.Context) ([]domain.SendResult, error)
	Replay(ctx context.Context, id int64) (*domain.SMSLog, error)
	ReplayAll(ctx context.Context) (int, error)
	GetLogs(ctx context.Context, filter domain.SMSLogFilter, page, pageSize int) ([]domain.SMSLog, int64, error)
	GetStats(ctx context.Context) (domain.SMSStats, error)
	GetCachedMessages(ctx context.Context) (map[int64]*domain.SentMessageCache, error)
}

type SMSHandler struct {
	service smsService
}

func NewSMSHandler(service smsService) *SMSHandler {
	return &SMSHandler{service: service}
}

type SendSMSRequest struct {
	PhoneNumber  string `json:"phoneNumber" validate:"required,ph_mobile"`
	Message      string `json:"message" validate:"required"`
	MessageType  string `json:"messageType" validate:"required,oneof=otp risk_assessment reminder notification test"`
	AssessmentID string `json:"assessmentId,omitempty"`
	// Queue logs the message for the next queue run instead of sending now.
	Queue bool `json:"queue,omitempty"`
}

// SendTemplateRequest fills one of the operator templates. Which fields are
// required depends on the template.
type SendTemplateRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,ph_mobile"`
	Template    string `json:"template" validate:"required,oneof=welcome reminder test"`
	Locale      string `json:"locale,omitempty" validate:"omitempty,locale"`
	Name        string `json:"name,omitempty" validate:"required_if=Template welcome,required_if=Template reminder"`
	Center      string `json:"center,omitempty" validate:"required_if=Template reminder"`
	Date        string `json:"date,omitempty" validate:"required_if=Template reminder"`
	Code        string `json:"code,omitempty" validate:"required_if=Template reminder"`
}

func (r SendTemplateRequest) message(now time.Time) (templates.Message, domain.MessageType) {
	switch templates.ID(r.Template) {
	case templates.IDWelcome:
		return templates.Welcome{Name: r.Name}, domain.MessageTypeNotification
	case templates.IDReminder:
		return templates.Reminder{Name: r.Name, Center: r.Center, Date: r.Date, Code: r.Code}, domain.MessageTypeReminder
	default:
		return templates.Test{Time: now.Format(time.RFC1123)}, domain.MessageTypeTest
	}
}

type ValidateMessageRequest struct {
	Message string `json:"message"`
}

// SendSMS godoc
// @Summary Send an SMS
// @Description Logs and sends a message now, or queues it when queue is true. Carrier failures are logged and returned with status 202.
// @Tags sms
// @Accept json
// @Produce json
// @Param x-bantai-auth-key header string true "Admin API key"
// @Param request body SendSMSRequest true "Message to send"
// @Success 200 {object} response.SuccessResponse
// @Success 201 {object} response.SuccessResponse
// @Success 202 {object} response.SuccessResponse
// @Failure 422 {object} response.DomainErrorResponse
// @Router /api/v1/sms/send [post]
func (h *SMSHandler) SendSMS(c echo.Context) error {
	var req SendSMSRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	sc := domain.SendContext{Type: domain.MessageType(req.MessageType)}
	if req.AssessmentID != "" {
		sc.AssessmentID = &req.AssessmentID
	}

	ctx := c.Request().Context()

	if req.Queue {
		entry, err := h.service.Enqueue(ctx, req.PhoneNumber, req.Message, sc)
		if err != nil {
			return response.FromError(c, err)
		}
		return response.Created(c, "SMS queued", entry)
	}

	result, err := h.service.Send(ctx, req.PhoneNumber, req.Message, sc)
	if err != nil {
		return response.FromError(c, err)
	}

	if !result.Success {
		return response.Accepted(c, "SMS logged but not delivered to the carrier", result)
	}

	return response.OkWithMessage(c, "SMS sent", result)
}

// SendTemplate godoc
// @Summary Send a templated SMS
// @Description Renders the welcome, reminder or test template in the requested locale and sends it
// @Tags sms
// @Accept json
// @Produce json
// @Param x-bantai-auth-key header string true "Admin API key"
// @Param request body SendTemplateRequest true "Template and variables"
// @Success 200 {object} response.SuccessResponse
// @Success 202 {object} response.SuccessResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Router /api/v1/sms/send-template [post]
func (h *SMSHandler) SendTemplate(c echo.Context) error {
	var req SendTemplateRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	msg, messageType := req.message(time.Now())

	result, err := h.service.SendTemplate(c.Request().Context(), req.PhoneNumber, msg, req.Locale, domain.SendContext{Type: messageType})
	if err != nil {
		return response.FromError(c, err)
	}

	if !result.Success {
		return response.Accepted(c, "SMS logged but not delivered to the carrier", result)
	}

	return response.OkWithMessage(c, "SMS sent", result)
}

// ValidateMessage godoc
// @Summary Inspect an SMS body
// @Description Reports encoding, length, segment count and warnings for a message body
// @Tags sms
// @Accept json
// @Produce json
// @Param x-bantai-auth-key header string true "Admin API key"
// @Param request body ValidateMessageRequest true "Message body"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/sms/validate [post]
func (h *SMSHandler) ValidateMessage(c echo.Context) error {
	var req ValidateMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	return response.Ok(c, templates.ValidateMessage(req.Message))
}

// GetLogs godoc
// @Summary List SMS logs
// @Description Retrieves a paginated list of SMS log entries with optional status and type filters
// @Tags sms
// @Accept json
// @Produce json
// @Param x-bantai-auth-key header string true "Admin API key"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Param status query string false "Filter by status (queued, sent, delivered, failed)"
// @Param type query string false "Filter by message type"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/sms/logs [get]
func (h *SMSHandler) GetLogs(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	var filter domain.SMSLogFilter

	if raw := c.QueryParam("status"); raw != "" {
		status := domain.SMSStatus(raw)
		if !status.Valid() {
			return response.BadRequest(c, fmt.Errorf("unknown status %q", raw))
		}
		filter.Status = &status
	}

	if raw := c.QueryParam("type"); raw != "" {
		messageType := domain.MessageType(raw)
		if !messageType.Valid() {
			return response.BadRequest(c, fmt.Errorf("unknown message type %q", raw))
		}
		filter.MessageType = &messageType
	}

	entries, totalCount, err := h.service.GetLogs(c.Request().Context(), filter, page, pageSize)
	if err != nil {
		return response.InternalServerError(c, err)
	}
	if entries == nil {
		entries = []domain.SMSLog{}
	}

	return response.Paginated(c, entries, page, pageSize, totalCount)
}

// GetStats godoc
// @Summary Get SMS statistics
// @Description Returns the count of log entries by status
// @Tags sms
// @Accept json
// @Produce json
// @Param x-bantai-auth-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/sms/stats [get]
func (h *SMSHandler) GetStats(c echo.Context) error {
	stats, err := h.service.GetStats(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, map[string]any{
		"queued":    stats.Queued,
		"sent":      stats.Sent,
		"delivered": stats.Delivered,
		"failed":    stats.Failed,
		"total":     stats.Total(),
	})
}

// GetCachedMessages godoc
// @Summary Get cached sends
// @Description Returns successful sends cached in valkey for the last 24 hours
// @Tags sms
// @Accept json
// @Produce json
// @Param x-bantai-auth-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/sms/cached [get]
func (h *SMSHandler) GetCachedMessages(c echo.Context) error {
	cached, err := h.service.GetCachedMessages(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, cached)
}

// ProcessQueue godoc
// @Summary Process the SMS queue now
// @Description Claims and dispatches one batch of queued messages
// @Tags sms
// @Accept json
// @Produce json
// @Param x-bantai-auth-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/sms/process-queue [post]
func (h *SMSHandler) ProcessQueue(c echo.Context) error {
	results, err := h.service.ProcessQueue(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	sent := 0
	for _, r := range results {
		if r.Success {
			sent++
		}
	}

	return response.Ok(c, map[string]any{
		"processed": len(results),
		"sent":      sent,
		"failed":    len(results) - sent,
		"results":   results,
	})
}

// ReplayAllFailed godoc
// @Summary Replay all failed messages
// @Description Queues a new attempt for every failed entry that has not been replayed yet
// @Tags sms
// @Accept json
// @Produce json
// @Param x-bantai-auth-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/sms/logs/replay [post]
func (h *SMSHandler) ReplayAllFailed(c echo.Context) error {
	count, err := h.service.ReplayAll(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, map[string]any{
		"replayed": count,
	})
}

// ReplayFailed godoc
// @Summary Replay a single failed message
// @Description Queues a new attempt linked to the failed entry through retryOf
// @Tags sms
// @Accept json
// @Produce json
// @Param x-bantai-auth-key header string true "Admin API key"
// @Param id path int true "SMS log ID"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.DomainErrorResponse
// @Failure 409 {object} response.DomainErrorResponse
// @Failure 422 {object} response.DomainErrorResponse
// @Router /api/v1/sms/logs/{id}/replay [post]
func (h *SMSHandler) ReplayFailed(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return response.BadRequest(c, fmt.Errorf("invalid sms log id"))
	}

	entry, err := h.service.Replay(c.Request().Context(), id)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "SMS queued for replay", entry)
}

func parsePaginationParams(c echo.Context) (int, int, error) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)

	pageStr := c.QueryParam("page")
	pageSizeStr := c.QueryParam("pageSize")

	page := defaultPage
	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = p
	}

	pageSize := defaultPageSize
	if pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 || ps > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}
		pageSize = ps
	}

	return page, pageSize, nil
}
