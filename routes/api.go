package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/bantai/bantai-service/environments"
	"github.com/bantai/bantai-service/handlers"
	"github.com/bantai/bantai-service/internal/middlewares"
)

type Handlers struct {
	Health     *handlers.HealthHandler
	OTP        *handlers.OTPHandler
	SMS        *handlers.SMSHandler
	Webhooks   *handlers.WebhookHandler
	Assessment *handlers.AssessmentHandler
	Scheduler  *handlers.SchedulerHandler
}

// RegisterRoutes registers all API routes with middleware. otpByIP limits
// code requests per client address.
func RegisterRoutes(
	e *echo.Echo,
	h Handlers,
	otpByIP echo.MiddlewareFunc,
	cfg *environments.Config,
) {
	e.GET("/health", h.Health.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	clientAuth := middlewares.APIKeyAuth(cfg.Auth.APIKey, cfg.Auth.AdminAPIKey)
	adminAuth := middlewares.APIKeyAuth(cfg.Auth.AdminAPIKey)

	v1 := e.Group("/api/v1")

	// OTP routes share the /sms prefix with the admin routes but use the client key.
	v1.POST("/sms/send-otp", h.OTP.SendOTP, clientAuth, otpByIP)
	v1.POST("/sms/verify-otp", h.OTP.VerifyOTP, clientAuth)

	sms := v1.Group("/sms", adminAuth)

	sms.POST("/send", h.SMS.SendSMS)
	sms.POST("/send-template", h.SMS.SendTemplate)
	sms.POST("/validate", h.SMS.ValidateMessage)
	sms.GET("/logs", h.SMS.GetLogs)
	sms.GET("/stats", h.SMS.GetStats)
	sms.GET("/cached", h.SMS.GetCachedMessages)
	sms.POST("/process-queue", h.SMS.ProcessQueue)
	sms.POST("/logs/replay", h.SMS.ReplayAllFailed)
	sms.POST("/logs/:id/replay", h.SMS.ReplayFailed)

	assessments := v1.Group("/assessments", clientAuth)

	assessments.GET("/questions", h.Assessment.GetQuestions)
	assessments.POST("", h.Assessment.StartAssessment)
	assessments.POST("/sms", h.Assessment.StartSMSAssessment)
	assessments.GET("/:id", h.Assessment.GetAssessment)
	assessments.POST("/:id/responses", h.Assessment.SubmitResponse)
	assessments.POST("/:id/complete", h.Assessment.CompleteAssessment)

	schedulerGroup := v1.Group("/scheduler", adminAuth)

	schedulerGroup.POST("/start", h.Scheduler.StartScheduler)
	schedulerGroup.POST("/stop", h.Scheduler.StopScheduler)
	schedulerGroup.POST("/run", h.Scheduler.RunScheduler)
	schedulerGroup.GET("/status", h.Scheduler.GetSchedulerStatus)

	webhooks := e.Group("/webhooks/sms", middlewares.WebhookSecret(cfg.Auth.WebhookSecret))

	webhooks.POST("/delivery", h.Webhooks.DeliveryReport)
	webhooks.POST("/inbound", h.Webhooks.InboundSMS)
}
