package sms

import (
	"context"

	"github.com/google/uuid"

	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/pkg/logger"
)

// ConsoleProvider prints messages to the log instead of sending them.
type ConsoleProvider struct{}

func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{}
}

func (p *ConsoleProvider) Name() string {
	return "console"
}

func (p *ConsoleProvider) Send(_ context.Context, to, body string, msgType domain.MessageType) (string, error) {
	messageID := "console-" + uuid.NewString()

	logger.Infof("[console sms] id=%s to=%s type=%s\n%s", messageID, to, msgType, body)

	return messageID, nil
}

func (p *ConsoleProvider) ValidatePhoneNumber(raw string) bool {
	return validPhone(raw)
}

// DeliveryStatus reports every console message as delivered.
func (p *ConsoleProvider) DeliveryStatus(_ context.Context, _ string) (domain.SMSStatus, error) {
	return domain.SMSStatusDelivered, nil
}
