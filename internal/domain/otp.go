package domain

import "time"

type OTPPurpose string

const (
	OTPPurposeRegistration  OTPPurpose = "registration"
	OTPPurposeLogin         OTPPurpose = "login"
	OTPPurposePasswordReset OTPPurpose = "password_reset"
	// OTPPurposeSMSAssessment confirms a phone can receive texts before an
	// SMS-only assessment starts. It is not accepted from the public API.
	OTPPurposeSMSAssessment OTPPurpose = "sms_assessment"
)

func (p OTPPurpose) Valid() bool {
	switch p {
	case OTPPurposeRegistration, OTPPurposeLogin, OTPPurposePasswordReset, OTPPurposeSMSAssessment:
		return true
	}
	return false
}

type OTPRecord struct {
	ID         int64      `db:"id"`
	Phone      string     `db:"phone"`
	Purpose    OTPPurpose `db:"purpose"`
	CodeHash   string     `db:"code_hash"`
	ExpiresAt  time.Time  `db:"expires_at"`
	Verified   bool       `db:"verified"`
	Superseded bool       `db:"superseded"`
	VerifiedAt *time.Time `db:"verified_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

func (r *OTPRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

type RateLimitResult struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
}
