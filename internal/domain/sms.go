package domain

import "time"

type SMSStatus string

const (
	SMSStatusQueued    SMSStatus = "queued"
	SMSStatusSent      SMSStatus = "sent"
	SMSStatusDelivered SMSStatus = "delivered"
	SMSStatusFailed    SMSStatus = "failed"
)

func (s SMSStatus) Valid() bool {
	switch s {
	case SMSStatusQueued, SMSStatusSent, SMSStatusDelivered, SMSStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether a log entry in status s may move to next.
// Statuses only move forward: queued -> sent -> delivered|failed, or
// queued -> failed when dispatch itself fails.
func (s SMSStatus) CanTransitionTo(next SMSStatus) bool {
	switch s {
	case SMSStatusQueued:
		return next == SMSStatusSent || next == SMSStatusFailed
	case SMSStatusSent:
		return next == SMSStatusDelivered || next == SMSStatusFailed
	}
	return false
}

type MessageType string

const (
	MessageTypeOTP            MessageType = "otp"
	MessageTypeRiskAssessment MessageType = "risk_assessment"
	MessageTypeReminder       MessageType = "reminder"
	MessageTypeNotification   MessageType = "notification"
	MessageTypeTest           MessageType = "test"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeOTP, MessageTypeRiskAssessment, MessageTypeReminder, MessageTypeNotification, MessageTypeTest:
		return true
	}
	return false
}

type SMSLog struct {
	ID                int64       `db:"id" json:"id"`
	Recipient         string      `db:"recipient" json:"recipient"`
	Message           string      `db:"message" json:"message"`
	MessageType       MessageType `db:"message_type" json:"messageType"`
	Status            SMSStatus   `db:"status" json:"status"`
	Provider          string      `db:"provider" json:"provider"`
	ProviderMessageID *string     `db:"provider_message_id" json:"providerMessageId,omitempty"`
	Error             *string     `db:"error" json:"error,omitempty"`
	Attempts          int         `db:"attempts" json:"attempts"`
	RetryOf           *int64      `db:"retry_of" json:"retryOf,omitempty"`
	AssessmentID      *string     `db:"assessment_id" json:"assessmentId,omitempty"`
	ClaimedAt         *time.Time  `db:"claimed_at" json:"-"`
	SentAt            *time.Time  `db:"sent_at" json:"sentAt,omitempty"`
	DeliveredAt       *time.Time  `db:"delivered_at" json:"deliveredAt,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updatedAt"`
}

type SMSLogFilter struct {
	Status      *SMSStatus
	MessageType *MessageType
}

type SMSStats struct {
	Queued    int64 `db:"queued" json:"queued"`
	Sent      int64 `db:"sent" json:"sent"`
	Delivered int64 `db:"delivered" json:"delivered"`
	Failed    int64 `db:"failed" json:"failed"`
}

func (s SMSStats) Total() int64 {
	return s.Queued + s.Sent + s.Delivered + s.Failed
}

// InboundSMS is a patient reply received through the carrier webhook.
type InboundSMS struct {
	ID           int64     `db:"id" json:"id"`
	Phone        string    `db:"phone" json:"phone"`
	Body         string    `db:"body" json:"body"`
	AssessmentID *string   `db:"assessment_id" json:"assessmentId,omitempty"`
	ReceivedAt   time.Time `db:"received_at" json:"receivedAt"`
}

// SendContext describes why a message is being sent.
type SendContext struct {
	Type         MessageType
	AssessmentID *string
}

type SendResult struct {
	LogID             int64  `json:"logId,omitempty"`
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"messageId,omitempty"`
	Error             string `json:"error,omitempty"`
}

type SentMessageCache struct {
	MessageID string    `json:"messageId"`
	SentAt    time.Time `json:"sentAt"`
}
