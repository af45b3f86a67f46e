package environments

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	ProviderConsole   = "console"
	ProviderSemaphore = "semaphore"
)

type Config struct {
	App        AppConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	SMS        SMSConfig
	Semaphore  SemaphoreConfig
	OTP        OTPConfig
	RateLimit  RateLimitConfig
	Assessment AssessmentConfig
	Alert      AlertConfig
	Auth       AuthConfig
	Log        LogConfig
}

type AppConfig struct {
	Env string
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SQLitePath string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type SMSConfig struct {
	// Provider is empty unless SMS_PROVIDER is set; see ResolvedProvider.
	Provider         string
	BatchSize        int
	SendInterval     time.Duration
	MaxAttempts      int
	MaxContentLength int
	DefaultLocale    string
}

type SemaphoreConfig struct {
	BaseURL    string
	APIKey     string
	SenderName string
	Timeout    time.Duration
}

type OTPConfig struct {
	TTL        time.Duration
	BcryptCost int
}

type RateLimitPolicyConfig struct {
	MaxAttempts        int
	Window             time.Duration
	SkipSuccessfulHits bool
}

type RateLimitConfig struct {
	OTPPhone RateLimitPolicyConfig
	OTPIP    RateLimitPolicyConfig
	Auth     RateLimitPolicyConfig
}

type AssessmentConfig struct {
	TTL            time.Duration
	Cooldown       time.Duration
	RiskConfigFile string
}

type AlertConfig struct {
	WebhookURL     string
	IterationCount int
}

type AuthConfig struct {
	APIKey        string
	AdminAPIKey   string
	WebhookSecret string
}

type LogConfig struct {
	Level string
	File  string
}

func Load() *Config {
	return &Config{
		App: AppConfig{
			Env: GetEnv("APP_ENV", EnvDevelopment),
		},
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Driver:     GetEnv("DB_DRIVER", "mysql"),
			Host:       GetEnv("DB_HOST", "localhost"),
			Port:       GetEnv("DB_PORT", "3306"),
			User:       GetEnv("DB_USER", "bantai"),
			Password:   GetEnv("DB_PASSWORD", "bantai123"),
			DBName:     GetEnv("DB_NAME", "bantai"),
			SQLitePath: GetEnv("DB_SQLITE_PATH", "bantai.db"),
		},
		Redis: RedisConfig{
			Enabled:  GetEnvAsBool("REDIS_ENABLED", true),
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		SMS: SMSConfig{
			Provider:         GetEnv("SMS_PROVIDER", ""),
			BatchSize:        GetEnvAsInt("SMS_QUEUE_BATCH_SIZE", 20),
			SendInterval:     GetEnvAsDuration("SMS_QUEUE_INTERVAL", time.Minute),
			MaxAttempts:      GetEnvAsInt("SMS_MAX_ATTEMPTS", 3),
			MaxContentLength: GetEnvAsInt("SMS_MAX_CONTENT_LENGTH", 918),
			DefaultLocale:    GetEnv("SMS_DEFAULT_LOCALE", "en"),
		},
		Semaphore: SemaphoreConfig{
			BaseURL:    GetEnv("SEMAPHORE_BASE_URL", "https://api.semaphore.co/api/v4"),
			APIKey:     GetEnv("SEMAPHORE_API_KEY", ""),
			SenderName: GetEnv("SEMAPHORE_SENDER_NAME", "BantAI"),
			Timeout:    time.Duration(GetEnvAsInt("SEMAPHORE_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		OTP: OTPConfig{
			TTL:        GetEnvAsDuration("OTP_TTL", 10*time.Minute),
			BcryptCost: GetEnvAsInt("OTP_BCRYPT_COST", 10),
		},
		RateLimit: RateLimitConfig{
			OTPPhone: RateLimitPolicyConfig{
				MaxAttempts: GetEnvAsInt("RATE_LIMIT_OTP_PHONE_MAX", 5),
				Window:      GetEnvAsDuration("RATE_LIMIT_OTP_PHONE_WINDOW", time.Hour),
			},
			OTPIP: RateLimitPolicyConfig{
				MaxAttempts: GetEnvAsInt("RATE_LIMIT_OTP_IP_MAX", 3),
				Window:      GetEnvAsDuration("RATE_LIMIT_OTP_IP_WINDOW", time.Hour),
			},
			Auth: RateLimitPolicyConfig{
				MaxAttempts:        GetEnvAsInt("RATE_LIMIT_AUTH_MAX", 5),
				Window:             GetEnvAsDuration("RATE_LIMIT_AUTH_WINDOW", 15*time.Minute),
				SkipSuccessfulHits: GetEnvAsBool("RATE_LIMIT_AUTH_SKIP_SUCCESS", true),
			},
		},
		Assessment: AssessmentConfig{
			TTL:            GetEnvAsDuration("ASSESSMENT_TTL", 24*time.Hour),
			Cooldown:       GetEnvAsDuration("ASSESSMENT_COOLDOWN", 30*24*time.Hour),
			RiskConfigFile: GetEnv("RISK_CONFIG_FILE", ""),
		},
		Alert: AlertConfig{
			WebhookURL:     GetEnv("ALERT_WEBHOOK_URL", ""),
			IterationCount: GetEnvAsInt("ALERT_ITERATION_COUNT", 0),
		},
		Auth: AuthConfig{
			APIKey:        GetEnv("API_KEY", ""),
			AdminAPIKey:   GetEnv("ADMIN_API_KEY", ""),
			WebhookSecret: GetEnv("SMS_WEBHOOK_SECRET", ""),
		},
		Log: LogConfig{
			Level: GetEnv("LOG_LEVEL", "info"),
			File:  GetEnv("LOG_FILE", ""),
		},
	}
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, EnvProduction)
}

// ResolvedProvider returns the SMS provider to construct at startup. An explicit
// SMS_PROVIDER wins; otherwise production uses the carrier and everything else
// prints to the console.
func (c *Config) ResolvedProvider() string {
	if c.SMS.Provider != "" {
		return strings.ToLower(c.SMS.Provider)
	}
	if c.IsProduction() {
		return ProviderSemaphore
	}
	return ProviderConsole
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
