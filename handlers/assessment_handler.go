package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/bantai/bantai-service/internal/assessment"
	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/pkg/response"
	"github.com/bantai/bantai-service/pkg/validator"
)

type assessmentService interface {
	Questions(locale string) []assessment.QuestionView
	Start(ctx context.Context, req assessment.StartRequest) (*domain.Assessment, error)
	Get(ctx context.Context, id string) (*assessment.View, error)
	SubmitResponse(ctx context.Context, assessmentID, questionID, token string, method domain.DeliveryMethod) (*domain.Response, error)
	Complete(ctx context.Context, assessmentID string) (*domain.AssessmentResult, error)
	StartSMS(ctx context.Context, rawPhone, locale string) (*domain.SendResult, error)
}

type AssessmentHandler struct {
	service assessmentService
}

func NewAssessmentHandler(service assessmentService) *AssessmentHandler {
	return &AssessmentHandler{service: service}
}

type StartAssessmentRequest struct {
	SubjectID   string `json:"subjectId" validate:"required,max=64"`
	PhoneNumber string `json:"phoneNumber,omitempty" validate:"omitempty,ph_mobile"`
	Locale      string `json:"locale,omitempty" validate:"omitempty,locale"`
}

type SubmitResponseRequest struct {
	QuestionID string `json:"questionId" validate:"required"`
	Token      string `json:"token" validate:"required"`
}

type StartSMSAssessmentRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,ph_mobile"`
	Locale      string `json:"locale,omitempty" validate:"omitempty,locale"`
}

// GetQuestions godoc
// @Summary List assessment questions
// @Description Returns the active questionnaire with lettered options
// @Tags assessments
// @Produce json
// @Param x-bantai-auth-key header string true "API key"
// @Param locale query string false "en or tl (default: en)"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/assessments/questions [get]
func (h *AssessmentHandler) GetQuestions(c echo.Context) error {
	return response.Ok(c, h.service.Questions(c.QueryParam("locale")))
}

// StartAssessment godoc
// @Summary Start a risk assessment
// @Description Opens an assessment for a subject, or returns the one still open. Rejected within 30 days of a completed assessment.
// @Tags assessments
// @Accept json
// @Produce json
// @Param x-bantai-auth-key header string true "API key"
// @Param request body StartAssessmentRequest true "Subject"
// @Success 201 {object} response.SuccessResponse
// @Failure 422 {object} response.DomainErrorResponse
// @Router /api/v1/assessments [post]
func (h *AssessmentHandler) StartAssessment(c echo.Context) error {
	var req StartAssessmentRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	a, err := h.service.Start(c.Request().Context(), assessment.StartRequest{
		SubjectID: req.SubjectID,
		Phone:     req.PhoneNumber,
		Locale:    req.Locale,
		Method:    domain.MethodWeb,
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Assessment started", a)
}

// GetAssessment godoc
// @Summary Get an assessment
// @Description Returns the assessment with its responses. Unfinished assessments past their window report status expired.
// @Tags assessments
// @Produce json
// @Param x-bantai-auth-key header string true "API key"
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.DomainErrorResponse
// @Router /api/v1/assessments/{id} [get]
func (h *AssessmentHandler) GetAssessment(c echo.Context) error {
	view, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Ok(c, view)
}

// SubmitResponse godoc
// @Summary Answer a question
// @Description Records one answer. Each question can be answered once.
// @Tags assessments
// @Accept json
// @Produce json
// @Param x-bantai-auth-key header string true "API key"
// @Param id path string true "Assessment ID"
// @Param request body SubmitResponseRequest true "Answer"
// @Success 201 {object} response.SuccessResponse
// @Failure 404 {object} response.DomainErrorResponse
// @Failure 410 {object} response.DomainErrorResponse
// @Failure 422 {object} response.DomainErrorResponse
// @Router /api/v1/assessments/{id}/responses [post]
func (h *AssessmentHandler) SubmitResponse(c echo.Context) error {
	var req SubmitResponseRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	resp, err := h.service.SubmitResponse(c.Request().Context(), c.Param("id"), req.QuestionID, req.Token, domain.MethodWeb)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, "Response recorded", resp)
}

// CompleteAssessment godoc
// @Summary Complete an assessment
// @Description Scores the answers, stores the risk level, issues a referral for moderate and high risk and texts the result when a phone is on file
// @Tags assessments
// @Produce json
// @Param x-bantai-auth-key header string true "API key"
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 404 {object} response.DomainErrorResponse
// @Failure 410 {object} response.DomainErrorResponse
// @Failure 422 {object} response.DomainErrorResponse
// @Router /api/v1/assessments/{id}/complete [post]
func (h *AssessmentHandler) CompleteAssessment(c echo.Context) error {
	result, err := h.service.Complete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OkWithMessage(c, "Assessment completed", result)
}

// StartSMSAssessment godoc
// @Summary Start an assessment over SMS
// @Description Texts a start code. The patient replies with the code to receive the first question.
// @Tags assessments
// @Accept json
// @Produce json
// @Param x-bantai-auth-key header string true "API key"
// @Param request body StartSMSAssessmentRequest true "Recipient"
// @Success 200 {object} response.SuccessResponse
// @Success 202 {object} response.SuccessResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Failure 429 {object} response.DomainErrorResponse
// @Router /api/v1/assessments/sms [post]
func (h *AssessmentHandler) StartSMSAssessment(c echo.Context) error {
	var req StartSMSAssessmentRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	result, err := h.service.StartSMS(c.Request().Context(), req.PhoneNumber, req.Locale)
	if err != nil {
		return response.FromError(c, err)
	}

	if !result.Success {
		return response.Accepted(c, "Start code issued but the SMS was not delivered", result)
	}

	return response.OkWithMessage(c, "Start code sent", result)
}
