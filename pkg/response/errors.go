package response

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/bantai/bantai-service/internal/domain"
)

const (
	CodeValidation  = "validation_error"
	CodeRateLimited = "rate_limited"
	CodeNotFound    = "not_found"
	CodeExpired     = "expired"
	CodeAlreadyUsed = "already_used"
	CodeMismatch    = "mismatch"
	CodeProvider    = "provider_error"
	CodeInternal    = "internal_error"
)

// DomainErrorResponse carries a machine-readable code so clients can choose a
// recovery action (resend, re-enter, restart).
type DomainErrorResponse struct {
	Success    bool           `json:"success"`
	Error      string         `json:"error"`
	Code       string         `json:"code"`
	RetryAfter int            `json:"retryAfter,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// FromError writes err using the status that matches its type.
func FromError(c echo.Context, err error) error {
	status, body := Classify(err)

	if body.RetryAfter > 0 {
		c.Response().Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
	}

	return c.JSON(status, body)
}

// Classify maps an error to an HTTP status and response body.
func Classify(err error) (int, DomainErrorResponse) {
	body := DomainErrorResponse{Success: false, Error: err.Error()}

	var (
		validationErr  *domain.ValidationError
		rateLimitErr   *domain.RateLimitError
		notFoundErr    *domain.NotFoundError
		expiredErr     *domain.ExpiredError
		alreadyUsedErr *domain.AlreadyUsedError
		mismatchErr    *domain.MismatchError
		providerErr    *domain.ProviderError
	)

	switch {
	case errors.As(err, &validationErr):
		body.Code = CodeValidation
		body.Details = validationErr.Details
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &rateLimitErr):
		body.Code = CodeRateLimited
		body.RetryAfter = rateLimitErr.RetryAfterSeconds()
		return http.StatusTooManyRequests, body
	case errors.As(err, &notFoundErr):
		body.Code = CodeNotFound
		return http.StatusNotFound, body
	case errors.As(err, &expiredErr):
		body.Code = CodeExpired
		return http.StatusGone, body
	case errors.As(err, &alreadyUsedErr):
		body.Code = CodeAlreadyUsed
		return http.StatusConflict, body
	case errors.As(err, &mismatchErr):
		body.Code = CodeMismatch
		return http.StatusBadRequest, body
	case errors.As(err, &providerErr):
		body.Code = CodeProvider
		return http.StatusBadGateway, body
	}

	body.Code = CodeInternal
	return http.StatusInternalServerError, body
}
