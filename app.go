package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bantai/bantai-service/environments"
	"github.com/bantai/bantai-service/internal/assessment"
	"github.com/bantai/bantai-service/internal/keylock"
	"github.com/bantai/bantai-service/internal/otp"
	"github.com/bantai/bantai-service/internal/ratelimit"
	"github.com/bantai/bantai-service/internal/repository"
	"github.com/bantai/bantai-service/internal/scheduler"
	"github.com/bantai/bantai-service/internal/scoring"
	"github.com/bantai/bantai-service/internal/sms"
	"github.com/bantai/bantai-service/pkg/database"
	"github.com/bantai/bantai-service/pkg/logger"
	"github.com/bantai/bantai-service/pkg/redis"
)

// otpRetention keeps expired codes around for a day before cleanup removes them.
const otpRetention = 24 * time.Hour

// app holds the process-wide services, built once at startup.
type app struct {
	cfg         *environments.Config
	db          *sqlx.DB
	redisClient *redis.Client
	memoryStore *ratelimit.MemoryStore

	sms         *sms.Service
	otp         *otp.Service
	assessments *assessment.Service
	otpByIP     *ratelimit.Limiter
	scheduler   *scheduler.Scheduler
}

func newApp(cfg *environments.Config) (*app, error) {
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &app{cfg: cfg, db: db}

	var (
		store  ratelimit.Store
		locker keylock.Locker
	)

	if cfg.Redis.Enabled {
		a.redisClient, err = redis.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Warnf("Valkey not available, using in-process rate limits and locks: %v", err)
			a.redisClient = nil
		}
	}

	if a.redisClient != nil {
		store = a.redisClient
		locker = a.redisClient
	} else {
		a.memoryStore = ratelimit.NewMemoryStore()
		store = a.memoryStore
		locker = keylock.NewMemory()
	}

	provider, err := sms.NewProvider(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	logger.Infof("SMS provider: %s", provider.Name())

	a.sms = sms.NewService(
		repository.NewSMSLogRepository(db),
		repository.NewSMSResponseRepository(db),
		provider,
		cfg.SMS,
	)
	if a.redisClient != nil {
		a.sms.WithCache(a.redisClient)
	}

	issuing := ratelimit.New(policy("otp_phone", cfg.RateLimit.OTPPhone), store)
	verifies := ratelimit.New(policy("otp_verify", cfg.RateLimit.Auth), store)
	a.otpByIP = ratelimit.New(policy("otp_ip", cfg.RateLimit.OTPIP), store)

	a.otp = otp.NewService(repository.NewOTPRepository(db), a.sms, issuing, verifies, locker, cfg.OTP)

	bands, err := scoring.LoadBands(cfg.Assessment.RiskConfigFile)
	if err != nil {
		a.close()
		return nil, err
	}

	engine, err := scoring.NewEngine(scoring.DefaultQuestionnaire(), bands)
	if err != nil {
		a.close()
		return nil, err
	}

	assessmentRepo := repository.NewAssessmentRepository(db)
	a.assessments = assessment.NewService(
		assessmentRepo,
		repository.NewReferralRepository(db),
		engine,
		a.sms,
		a.otp,
		locker,
		cfg.Assessment,
		cfg.SMS.DefaultLocale,
	)

	a.scheduler = scheduler.NewScheduler(a.sms, cfg.SMS.SendInterval, a.housekeeping(assessmentRepo)...).
		WithAlerts(cfg.Alert.WebhookURL, cfg.Alert.IterationCount)

	return a, nil
}

func policy(name string, c environments.RateLimitPolicyConfig) ratelimit.Policy {
	return ratelimit.Policy{
		Name:               name,
		MaxAttempts:        c.MaxAttempts,
		Window:             c.Window,
		SkipSuccessfulHits: c.SkipSuccessfulHits,
	}
}

// housekeeping lists the storage hygiene jobs run after each queue pass.
func (a *app) housekeeping(assessments *repository.AssessmentRepository) []scheduler.Task {
	tasks := []scheduler.Task{
		{
			Name: "otp_cleanup",
			Run: func(ctx context.Context) (int64, error) {
				return a.otp.Cleanup(ctx, otpRetention)
			},
		},
		{
			Name: "expire_assessments",
			Run: func(ctx context.Context) (int64, error) {
				return assessments.MarkExpired(ctx, time.Now())
			},
		},
	}

	if a.memoryStore != nil {
		tasks = append(tasks, scheduler.Task{
			Name: "rate_limit_sweep",
			Run: func(ctx context.Context) (int64, error) {
				return int64(a.memoryStore.Sweep(time.Now())), nil
			},
		})
	}

	return tasks
}

func (a *app) close() {
	logger.Infof("Closing database connection...")
	if err := a.db.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	if a.redisClient != nil {
		logger.Infof("Closing Valkey connection...")
		if err := a.redisClient.Close(); err != nil {
			logger.Errorf("Error closing Valkey: %v", err)
		}
	}
}
