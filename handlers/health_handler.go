package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// sqlPinger adapts *sqlx.DB, whose ping method is PingContext.
type sqlPinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler handles health checks.
type HealthHandler struct {
	db           sqlPinger
	kv           pinger
	smsProvider  string
	checkTimeout time.Duration
}

// NewHealthHandler takes a nil kv when no shared store is configured.
func NewHealthHandler(db sqlPinger, kv pinger, smsProvider string) *HealthHandler {
	return &HealthHandler{
		db:           db,
		kv:           kv,
		smsProvider:  smsProvider,
		checkTimeout: 2 * time.Second,
	}
}

// Health returns overall status and basic component statuses.
// @Summary Health check
// @Description Returns overall status with database and valkey connectivity results
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.checkTimeout)
	defer cancel()

	overallStatus := "ok"
	httpStatus := http.StatusOK

	dbStatus := "up"
	if h.db == nil {
		dbStatus = "down"
	} else if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "down"
	}
	if dbStatus == "down" {
		overallStatus = "down"
		httpStatus = http.StatusServiceUnavailable
	}

	kvStatus := "disabled"
	if h.kv != nil {
		if err := h.kv.Ping(ctx); err != nil {
			kvStatus = "down"
			if overallStatus == "ok" {
				overallStatus = "degraded"
			}
		} else {
			kvStatus = "up"
		}
	}

	return c.JSON(httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().Format(time.RFC3339),
		"components": map[string]any{
			"database": map[string]any{"status": dbStatus},
			"valkey":   map[string]any{"status": kvStatus},
			"sms":      map[string]any{"provider": h.smsProvider},
		},
	})
}
