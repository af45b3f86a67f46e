package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bantai/bantai-service/pkg/logger"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS sms_logs (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		recipient VARCHAR(20) NOT NULL,
		message TEXT NOT NULL,
		message_type VARCHAR(32) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'queued',
		provider VARCHAR(32) NOT NULL,
		provider_message_id VARCHAR(100),
		error TEXT,
		attempts INT NOT NULL DEFAULT 0,
		retry_of BIGINT,
		assessment_id VARCHAR(36),
		claimed_at DATETIME,
		sent_at DATETIME,
		delivered_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		INDEX idx_sms_logs_status (status, created_at),
		INDEX idx_sms_logs_provider_message_id (provider_message_id),
		INDEX idx_sms_logs_retry_of (retry_of)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS sms_responses (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		phone VARCHAR(20) NOT NULL,
		body TEXT NOT NULL,
		assessment_id VARCHAR(36),
		received_at DATETIME NOT NULL,
		INDEX idx_sms_responses_phone (phone, received_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS otp_codes (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		phone VARCHAR(20) NOT NULL,
		purpose VARCHAR(32) NOT NULL,
		code_hash VARCHAR(100) NOT NULL,
		expires_at DATETIME NOT NULL,
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		superseded BOOLEAN NOT NULL DEFAULT FALSE,
		verified_at DATETIME,
		created_at DATETIME NOT NULL,
		INDEX idx_otp_codes_lookup (phone, purpose, superseded, id),
		INDEX idx_otp_codes_expires_at (expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS assessments (
		id VARCHAR(36) PRIMARY KEY,
		code VARCHAR(16) NOT NULL,
		subject_id VARCHAR(64) NOT NULL,
		phone VARCHAR(20),
		locale VARCHAR(8) NOT NULL,
		status VARCHAR(20) NOT NULL,
		method VARCHAR(8) NOT NULL,
		questionnaire_version VARCHAR(32) NOT NULL,
		question_ids TEXT NOT NULL,
		total_score INT,
		risk_level VARCHAR(16),
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		completed_at DATETIME,
		UNIQUE KEY uq_assessments_code (code),
		INDEX idx_assessments_subject (subject_id, created_at),
		INDEX idx_assessments_phone (phone, status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS assessment_responses (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		assessment_id VARCHAR(36) NOT NULL,
		question_id VARCHAR(16) NOT NULL,
		token VARCHAR(32) NOT NULL,
		contribution INT NOT NULL,
		method VARCHAR(8) NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE KEY uq_assessment_responses (assessment_id, question_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS referrals (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		code VARCHAR(8) NOT NULL,
		assessment_id VARCHAR(36) NOT NULL,
		subject_id VARCHAR(64) NOT NULL,
		risk_level VARCHAR(16) NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE KEY uq_referrals_code (code),
		UNIQUE KEY uq_referrals_assessment (assessment_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS sms_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recipient TEXT NOT NULL,
		message TEXT NOT NULL,
		message_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		provider TEXT NOT NULL,
		provider_message_id TEXT,
		error TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		retry_of INTEGER,
		assessment_id TEXT,
		claimed_at DATETIME,
		sent_at DATETIME,
		delivered_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sms_logs_status ON sms_logs (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sms_logs_provider_message_id ON sms_logs (provider_message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sms_logs_retry_of ON sms_logs (retry_of)`,
	`CREATE TABLE IF NOT EXISTS sms_responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		phone TEXT NOT NULL,
		body TEXT NOT NULL,
		assessment_id TEXT,
		received_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sms_responses_phone ON sms_responses (phone, received_at)`,
	`CREATE TABLE IF NOT EXISTS otp_codes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		phone TEXT NOT NULL,
		purpose TEXT NOT NULL,
		code_hash TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		verified BOOLEAN NOT NULL DEFAULT 0,
		superseded BOOLEAN NOT NULL DEFAULT 0,
		verified_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_otp_codes_lookup ON otp_codes (phone, purpose, superseded, id)`,
	`CREATE INDEX IF NOT EXISTS idx_otp_codes_expires_at ON otp_codes (expires_at)`,
	`CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		subject_id TEXT NOT NULL,
		phone TEXT,
		locale TEXT NOT NULL,
		status TEXT NOT NULL,
		method TEXT NOT NULL,
		questionnaire_version TEXT NOT NULL,
		question_ids TEXT NOT NULL,
		total_score INTEGER,
		risk_level TEXT,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		completed_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assessments_subject ON assessments (subject_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_assessments_phone ON assessments (phone, status)`,
	`CREATE TABLE IF NOT EXISTS assessment_responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assessment_id TEXT NOT NULL REFERENCES assessments (id),
		question_id TEXT NOT NULL,
		token TEXT NOT NULL,
		contribution INTEGER NOT NULL,
		method TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (assessment_id, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS referrals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		assessment_id TEXT NOT NULL UNIQUE REFERENCES assessments (id),
		subject_id TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
}

// RunMigrations creates the schema for the connection's dialect.
func RunMigrations(db *sqlx.DB) error {
	schema := mysqlSchema
	if db.DriverName() == DriverSQLite {
		schema = sqliteSchema
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed (%s)", db.DriverName())

	return nil
}
