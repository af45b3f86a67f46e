package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bantai/bantai-service/pkg/logger"
)

// SeedTestData inserts a handful of SMS log entries for local development.
func SeedTestData(db *sqlx.DB) error {
	var count int

	err := db.Get(&count, "SELECT COUNT(*) FROM sms_logs")
	if err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d sms logs, skipping seed", count)
		return nil
	}

	testMessages := []struct {
		recipient   string
		message     string
		messageType string
	}{
		{"+639171234567", "Welcome to BantAI! Reply HELP for options.", "notification"},
		{"+639181234567", "Reminder: your testing appointment is tomorrow at 10 AM.", "reminder"},
		{"+639191234567", "BantAI test message.", "test"},
		{"+639201234567", "Your risk assessment is ready. Thank you for taking care of your health.", "risk_assessment"},
		{"+639211234567", "Reminder: free HIV testing this Saturday at the city health office.", "reminder"},
	}

	now := time.Now().UTC()

	for _, msg := range testMessages {
		_, err := db.Exec(
			db.Rebind(`INSERT INTO sms_logs (recipient, message, message_type, status, provider, attempts, created_at, updated_at)
			VALUES (?, ?, ?, 'queued', 'console', 0, ?, ?)`),
			msg.recipient, msg.message, msg.messageType, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to seed test data: %w", err)
		}
	}

	logger.Infof("Seeded %d queued sms logs", len(testMessages))
	return nil
}
