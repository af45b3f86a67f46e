package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/bantai/bantai-service/environments"
	"github.com/bantai/bantai-service/handlers"
	"github.com/bantai/bantai-service/internal/middlewares"
	"github.com/bantai/bantai-service/internal/ratelimit"
	"github.com/bantai/bantai-service/pkg/database"
	"github.com/bantai/bantai-service/pkg/logger"
	"github.com/bantai/bantai-service/pkg/validator"
	"github.com/bantai/bantai-service/routes"

	_ "github.com/bantai/bantai-service/docs" // swagger docs
)

// @title BantAI Service API
// @version 1.0
// @description HIV risk self-assessment, phone verification and SMS delivery

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @schemes http https
func main() {
	rootCmd := &cobra.Command{
		Use:           "bantai",
		Short:         "BantAI risk assessment and SMS service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := environments.Load()
			return logger.Init(logger.Options{
				Level:       cfg.Log.Level,
				File:        cfg.Log.File,
				Development: !cfg.IsProduction(),
			})
		},
	}

	rootCmd.AddCommand(serveCmd(), migrateCmd(), seedCmd(), processQueueCmd(), cleanupCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Errorf("%v", err)
		_ = logger.Sync()
		os.Exit(1)
	}

	_ = logger.Sync()
}

func serveCmd() *cobra.Command {
	var autoStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the SMS scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(autoStart)
		},
	}

	cmd.Flags().BoolVar(&autoStart, "scheduler", environments.GetEnvAsBool("AUTO_START_SCHEDULER", true), "start the SMS scheduler with the server")

	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := environments.Load()

			db, err := database.New(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.RunMigrations(db); err != nil {
				return err
			}

			logger.Infof("Migrations applied (%s)", cfg.Database.Driver)
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert sample queued SMS messages for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := environments.Load()
			if cfg.IsProduction() {
				return errors.New("refusing to seed a production database")
			}

			db, err := database.New(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.RunMigrations(db); err != nil {
				return err
			}

			return database.SeedTestData(db)
		},
	}
}

func processQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process-queue",
		Short: "Dispatch one batch of queued SMS messages and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(environments.Load())
			if err != nil {
				return err
			}
			defer a.close()

			results, err := a.sms.ProcessQueue(cmd.Context())
			if err != nil {
				return err
			}

			sent := 0
			for _, r := range results {
				if r.Success {
					sent++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d messages, %d sent, %d failed\n", len(results), sent, len(results)-sent)
			return nil
		},
	}
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired verification codes and close expired assessments",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(environments.Load())
			if err != nil {
				return err
			}
			defer a.close()

			for _, task := range a.scheduler.Tasks() {
				n, err := task.Run(cmd.Context())
				if err != nil {
					return fmt.Errorf("%s: %w", task.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", task.Name, n)
			}
			return nil
		},
	}
}

// requireSecrets hard-fails serve when a secret it depends on is missing.
func requireSecrets(cfg *environments.Config) error {
	required := map[string]string{
		"API_KEY":            cfg.Auth.APIKey,
		"ADMIN_API_KEY":      cfg.Auth.AdminAPIKey,
		"SMS_WEBHOOK_SECRET": cfg.Auth.WebhookSecret,
	}
	if cfg.ResolvedProvider() == environments.ProviderSemaphore {
		required["SEMAPHORE_API_KEY"] = cfg.Semaphore.APIKey
	}

	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required but not set", name)
		}
	}
	return nil
}

func runServer(autoStart bool) error {
	cfg := environments.Load()

	if err := requireSecrets(cfg); err != nil {
		return err
	}

	logger.Infof("Starting BantAI service (%s)...", cfg.App.Env)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var kv interface{ Ping(context.Context) error }
	if a.redisClient != nil {
		kv = a.redisClient
	}

	h := routes.Handlers{
		Health:     handlers.NewHealthHandler(a.db, kv, a.sms.ProviderName()),
		OTP:        handlers.NewOTPHandler(a.otp),
		SMS:        handlers.NewSMSHandler(a.sms),
		Webhooks:   handlers.NewWebhookHandler(a.sms, a.assessments),
		Assessment: handlers.NewAssessmentHandler(a.assessments),
		Scheduler:  handlers.NewSchedulerHandler(a.scheduler, ctx, cfg.SMS.SendInterval),
	}

	if autoStart {
		logger.Infof("Auto-starting scheduler...")
		if err := a.scheduler.Start(ctx); err != nil {
			logger.Warnf("Failed to auto-start scheduler: %v", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			middlewares.APIKeyHeader,
		},
	}))

	routes.RegisterRoutes(e, h, ratelimit.ByIP(a.otpByIP), cfg)

	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		logger.Infof("Swagger docs available at http://localhost%s/swagger/index.html", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	if a.scheduler.IsRunning() {
		logger.Infof("Stopping scheduler...")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()

		done := make(chan error, 1)
		go func() {
			done <- a.scheduler.Stop()
		}()

		select {
		case err := <-done:
			if err != nil {
				logger.Errorf("Error stopping scheduler: %v", err)
			}
		case <-stopCtx.Done():
			logger.Warnf("Scheduler stop timeout, forcing shutdown")
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Infof("Graceful shutdown completed")
	return nil
}
