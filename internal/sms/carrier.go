package sms

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/internal/sms/phone"
	"github.com/bantai/bantai-service/pkg/semaphore"
)

type carrierClient interface {
	SendMessage(ctx context.Context, number, content string, priority bool) (*semaphore.Message, error)
	GetMessage(ctx context.Context, messageID string) (*semaphore.Message, error)
}

// CarrierProvider sends through the Semaphore SMS gateway.
type CarrierProvider struct {
	client carrierClient
}

func NewCarrierProvider(client carrierClient) *CarrierProvider {
	return &CarrierProvider{client: client}
}

func (p *CarrierProvider) Name() string {
	return "semaphore"
}

// Send uses the priority route for OTP messages so codes are not held behind
// bulk traffic. The gateway takes the local 09XXXXXXXXX form.
func (p *CarrierProvider) Send(ctx context.Context, to, body string, msgType domain.MessageType) (string, error) {
	number, err := phone.Local(to)
	if err != nil {
		return "", err
	}

	msg, err := p.client.SendMessage(ctx, number, body, msgType == domain.MessageTypeOTP)
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(msg.MessageID, 10), nil
}

func (p *CarrierProvider) ValidatePhoneNumber(raw string) bool {
	return validPhone(raw)
}

func (p *CarrierProvider) DeliveryStatus(ctx context.Context, messageID string) (domain.SMSStatus, error) {
	msg, err := p.client.GetMessage(ctx, messageID)
	if err != nil {
		return "", err
	}

	return carrierStatus(msg.Status)
}

// carrierStatus maps gateway states onto log statuses. "Sent" at the gateway
// means the network accepted the message for the handset.
func carrierStatus(status string) (domain.SMSStatus, error) {
	switch strings.ToLower(status) {
	case "pending", "queued":
		return domain.SMSStatusSent, nil
	case "sent", "delivered":
		return domain.SMSStatusDelivered, nil
	case "failed", "refunded":
		return domain.SMSStatusFailed, nil
	default:
		return "", fmt.Errorf("unknown carrier status %q", status)
	}
}
