package sms

import (
	"context"
	"fmt"

	"github.com/bantai/bantai-service/environments"
	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/internal/sms/phone"
	"github.com/bantai/bantai-service/pkg/semaphore"
)

// Provider is one SMS backend. Exactly one is active per process.
type Provider interface {
	Name() string
	// Send dispatches body to an E.164 recipient and returns the provider's
	// message id.
	Send(ctx context.Context, to, body string, msgType domain.MessageType) (string, error)
	ValidatePhoneNumber(raw string) bool
	// DeliveryStatus asks the provider for the current state of a message.
	DeliveryStatus(ctx context.Context, messageID string) (domain.SMSStatus, error)
}

// NewProvider builds the provider chosen by configuration.
func NewProvider(cfg *environments.Config) (Provider, error) {
	switch name := cfg.ResolvedProvider(); name {
	case environments.ProviderConsole:
		return NewConsoleProvider(), nil
	case environments.ProviderSemaphore:
		if cfg.Semaphore.APIKey == "" {
			return nil, fmt.Errorf("SEMAPHORE_API_KEY is required for the %s provider", name)
		}
		return NewCarrierProvider(semaphore.NewClient(cfg.Semaphore)), nil
	default:
		return nil, fmt.Errorf("unknown SMS provider %q", name)
	}
}

func validPhone(raw string) bool {
	return phone.Valid(raw)
}
