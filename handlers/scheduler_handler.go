package handlers

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bantai/bantai-service/internal/scheduler"
	"github.com/bantai/bantai-service/pkg/response"
	"github.com/bantai/bantai-service/pkg/validator"
)

type schedulerControl interface {
	StartWithInterval(ctx context.Context, interval time.Duration) error
	Stop() error
	IsRunning() bool
	RunOnce(ctx context.Context)
	GetStatus() scheduler.SchedulerStatus
}

// SchedulerHandler controls the background queue loop. The loop runs on the
// server's lifetime context, not the request's.
type SchedulerHandler struct {
	scheduler       schedulerControl
	serverCtx       context.Context
	defaultInterval time.Duration
}

type StartSchedulerRequest struct {
	// Seconds between runs. Defaults to SMS_QUEUE_INTERVAL.
	IntervalSeconds *int `json:"interval,omitempty" validate:"omitempty,min=1,max=86400"`
}

func NewSchedulerHandler(sched schedulerControl, serverCtx context.Context, defaultInterval time.Duration) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler:       sched,
		serverCtx:       serverCtx,
		defaultInterval: defaultInterval,
	}
}

// StartScheduler godoc
// @Summary Start the SMS scheduler
// @Description Starts periodic queue processing and storage cleanup
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-bantai-auth-key header string true "Admin API key"
// @Param request body StartSchedulerRequest false "Scheduler parameters (optional)"
// @Success 200 {object} response.SuccessResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/start [post]
func (h *SchedulerHandler) StartScheduler(c echo.Context) error {
	var req StartSchedulerRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	if h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is already running", h.scheduler.GetStatus())
	}

	interval := h.defaultInterval
	if req.IntervalSeconds != nil {
		interval = time.Duration(*req.IntervalSeconds) * time.Second
	}

	if err := h.scheduler.StartWithInterval(h.serverCtx, interval); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Scheduler started", h.scheduler.GetStatus())
}

// StopScheduler godoc
// @Summary Stop the SMS scheduler
// @Tags scheduler
// @Produce json
// @Param x-bantai-auth-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/stop [post]
func (h *SchedulerHandler) StopScheduler(c echo.Context) error {
	if !h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is not running", h.scheduler.GetStatus())
	}

	if err := h.scheduler.Stop(); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Scheduler stopped", h.scheduler.GetStatus())
}

// RunScheduler godoc
// @Summary Run one scheduler pass now
// @Description Processes the SMS queue and the cleanup tasks once, whether or not the loop is running
// @Tags scheduler
// @Produce json
// @Param x-bantai-auth-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/scheduler/run [post]
func (h *SchedulerHandler) RunScheduler(c echo.Context) error {
	h.scheduler.RunOnce(c.Request().Context())
	return response.OkWithMessage(c, "Scheduler pass completed", h.scheduler.GetStatus())
}

// GetSchedulerStatus godoc
// @Summary Get scheduler status
// @Tags scheduler
// @Produce json
// @Param x-bantai-auth-key header string true "Admin API key"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/scheduler/status [get]
func (h *SchedulerHandler) GetSchedulerStatus(c echo.Context) error {
	return response.Ok(c, h.scheduler.GetStatus())
}
