package handlers

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/internal/otp"
	"github.com/bantai/bantai-service/pkg/response"
	"github.com/bantai/bantai-service/pkg/validator"
)

type otpService interface {
	Create(ctx context.Context, rawPhone string, purpose domain.OTPPurpose, locale string) (*otp.Issued, error)
	Verify(ctx context.Context, rawPhone, code string, purpose domain.OTPPurpose) error
}

type OTPHandler struct {
	service otpService
}

func NewOTPHandler(service otpService) *OTPHandler {
	return &OTPHandler{service: service}
}

type SendOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,ph_mobile"`
	Purpose     string `json:"purpose" validate:"required,oneof=registration login password_reset"`
	Locale      string `json:"locale,omitempty" validate:"omitempty,locale"`
}

type VerifyOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,ph_mobile"`
	OTP         string `json:"otp" validate:"required,len=6,numeric"`
	Purpose     string `json:"purpose" validate:"required,oneof=registration login password_reset"`
}

// SendOTP godoc
// @Summary Send a one-time code
// @Description Issues a 6-digit code for (phoneNumber, purpose) and texts it. Any earlier code for the pair stops working.
// @Tags otp
// @Accept json
// @Produce json
// @Param x-bantai-auth-key header string true "API key"
// @Param request body SendOTPRequest true "Recipient and purpose"
// @Success 200 {object} response.SuccessResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Failure 429 {object} response.DomainErrorResponse
// @Failure 502 {object} response.DomainErrorResponse
// @Router /api/v1/sms/send-otp [post]
func (h *OTPHandler) SendOTP(c echo.Context) error {
	var req SendOTPRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	issued, err := h.service.Create(c.Request().Context(), req.PhoneNumber, domain.OTPPurpose(req.Purpose), req.Locale)
	if err != nil {
		return response.FromError(c, err)
	}

	if !issued.Delivery.Success {
		return response.FromError(c, &domain.ProviderError{
			Provider: "sms",
			Err:      errors.New(issued.Delivery.Error),
		})
	}

	return response.OkWithMessage(c, "Verification code sent", map[string]any{
		"expiresAt": issued.ExpiresAt,
		"messageId": issued.Delivery.ProviderMessageID,
	})
}

// VerifyOTP godoc
// @Summary Verify a one-time code
// @Description Checks a code for (phoneNumber, purpose). Wrong, expired and already used codes are reported with distinct error codes.
// @Tags otp
// @Accept json
// @Produce json
// @Param x-bantai-auth-key header string true "API key"
// @Param request body VerifyOTPRequest true "Code to verify"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.DomainErrorResponse
// @Failure 404 {object} response.DomainErrorResponse
// @Failure 409 {object} response.DomainErrorResponse
// @Failure 410 {object} response.DomainErrorResponse
// @Failure 429 {object} response.DomainErrorResponse
// @Router /api/v1/sms/verify-otp [post]
func (h *OTPHandler) VerifyOTP(c echo.Context) error {
	var req VerifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	if err := h.service.Verify(c.Request().Context(), req.PhoneNumber, req.OTP, domain.OTPPurpose(req.Purpose)); err != nil {
		return response.FromError(c, err)
	}

	return response.OkWithMessage(c, "Phone number verified", nil)
}
