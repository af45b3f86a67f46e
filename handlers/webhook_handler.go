package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/bantai/bantai-service/internal/assessment"
	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/pkg/logger"
	"github.com/bantai/bantai-service/pkg/response"
	"github.com/bantai/bantai-service/pkg/validator"
)

type deliveryUpdater interface {
	UpdateDeliveryStatus(ctx context.Context, providerMessageID string, reported *domain.SMSStatus) (*domain.SMSLog, error)
}

type inboundRouter interface {
	HandleInbound(ctx context.Context, from, body string) (*assessment.InboundResult, error)
}

// WebhookHandler receives carrier callbacks.
type WebhookHandler struct {
	delivery deliveryUpdater
	inbound  inboundRouter
}

func NewWebhookHandler(delivery deliveryUpdater, inbound inboundRouter) *WebhookHandler {
	return &WebhookHandler{delivery: delivery, inbound: inbound}
}

type DeliveryReportRequest struct {
	MessageID string `json:"messageId" validate:"required"`
	// Status is optional; without it the provider is asked.
	Status string `json:"status,omitempty" validate:"omitempty,oneof=sent delivered failed"`
}

type InboundSMSRequest struct {
	From    string `json:"from" validate:"required"`
	Message string `json:"message"`
}

// DeliveryReport godoc
// @Summary Carrier delivery report
// @Description Applies a delivery status to the log entry for a provider message id. Backward transitions are ignored.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param x-bantai-webhook-secret header string true "Webhook secret"
// @Param request body DeliveryReportRequest true "Delivery report"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.DomainErrorResponse
// @Failure 502 {object} response.DomainErrorResponse
// @Router /webhooks/sms/delivery [post]
func (h *WebhookHandler) DeliveryReport(c echo.Context) error {
	var req DeliveryReportRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	var reported *domain.SMSStatus
	if req.Status != "" {
		status := domain.SMSStatus(req.Status)
		reported = &status
	}

	entry, err := h.delivery.UpdateDeliveryStatus(c.Request().Context(), req.MessageID, reported)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Ok(c, entry)
}

// InboundSMS godoc
// @Summary Inbound patient SMS
// @Description Stores a patient reply and advances the SMS assessment for the sender, if any
// @Tags webhooks
// @Accept json
// @Produce json
// @Param x-bantai-webhook-secret header string true "Webhook secret"
// @Param request body InboundSMSRequest true "Inbound message"
// @Success 200 {object} response.SuccessResponse
// @Failure 422 {object} response.DomainErrorResponse
// @Router /webhooks/sms/inbound [post]
func (h *WebhookHandler) InboundSMS(c echo.Context) error {
	var req InboundSMSRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	result, err := h.inbound.HandleInbound(c.Request().Context(), req.From, req.Message)
	if err != nil {
		return response.FromError(c, err)
	}

	logger.Debugf("Inbound sms from %s handled: %s", logger.MaskPhone(req.From), result.Action)

	return response.Ok(c, result)
}
