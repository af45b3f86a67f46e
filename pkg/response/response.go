package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bantai/bantai-service/pkg/logger"
)

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type PaginatedResponse struct {
	Success    bool       `json:"success"`
	Data       any        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

func success(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, SuccessResponse{Success: true, Message: message, Data: data})
}

func failure(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{Success: false, Error: message, Code: code})
}

func Ok(c echo.Context, data any) error {
	return success(c, http.StatusOK, "", data)
}

func OkWithMessage(c echo.Context, message string, data any) error {
	return success(c, http.StatusOK, message, data)
}

func Created(c echo.Context, message string, data any) error {
	return success(c, http.StatusCreated, message, data)
}

// Accepted reports a request that was recorded but whose SMS did not go out.
func Accepted(c echo.Context, message string, data any) error {
	return success(c, http.StatusAccepted, message, data)
}

func BadRequest(c echo.Context, err error) error {
	return failure(c, http.StatusBadRequest, "bad_request", err.Error())
}

// Unauthorized names the missing credential, e.g. "API key".
func Unauthorized(c echo.Context, credential string) error {
	return failure(c, http.StatusUnauthorized, "unauthorized", "Invalid or missing "+credential)
}

// InternalServerError logs err and hides it from the caller.
func InternalServerError(c echo.Context, err error) error {
	logger.Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	return failure(c, http.StatusInternalServerError, CodeInternal, "Internal server error")
}

func Paginated(c echo.Context, data any, page, pageSize int, total int64) error {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return c.JSON(http.StatusOK, PaginatedResponse{
		Success: true,
		Data:    data,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}
