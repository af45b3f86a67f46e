package domain

import "time"

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

func (l RiskLevel) Valid() bool {
	return l == RiskLow || l == RiskModerate || l == RiskHigh
}

type AssessmentStatus string

const (
	AssessmentPending    AssessmentStatus = "pending"
	AssessmentInProgress AssessmentStatus = "in_progress"
	AssessmentCompleted  AssessmentStatus = "completed"
	AssessmentExpired    AssessmentStatus = "expired"
)

type DeliveryMethod string

const (
	MethodWeb DeliveryMethod = "web"
	MethodSMS DeliveryMethod = "sms"
)

type Assessment struct {
	ID                   string           `db:"id" json:"id"`
	Code                 string           `db:"code" json:"code"`
	SubjectID            string           `db:"subject_id" json:"subjectId"`
	Phone                *string          `db:"phone" json:"phone,omitempty"`
	Locale               string           `db:"locale" json:"locale"`
	Status               AssessmentStatus `db:"status" json:"status"`
	Method               DeliveryMethod   `db:"method" json:"method"`
	QuestionnaireVersion string           `db:"questionnaire_version" json:"questionnaireVersion"`
	QuestionIDs          StringList       `db:"question_ids" json:"questionIds"`
	TotalScore           *int             `db:"total_score" json:"totalScore,omitempty"`
	RiskLevel            *RiskLevel       `db:"risk_level" json:"riskLevel,omitempty"`
	CreatedAt            time.Time        `db:"created_at" json:"createdAt"`
	ExpiresAt            time.Time        `db:"expires_at" json:"expiresAt"`
	CompletedAt          *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
}

// EffectiveStatus treats an unfinished assessment past its window as expired,
// whatever status is stored.
func (a *Assessment) EffectiveStatus(now time.Time) AssessmentStatus {
	if a.Status != AssessmentCompleted && now.After(a.ExpiresAt) {
		return AssessmentExpired
	}
	return a.Status
}

func (a *Assessment) HasQuestion(questionID string) bool {
	for _, id := range a.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

type Response struct {
	ID           int64          `db:"id" json:"id"`
	AssessmentID string         `db:"assessment_id" json:"assessmentId"`
	QuestionID   string         `db:"question_id" json:"questionId"`
	Token        string         `db:"token" json:"token"`
	Contribution int            `db:"contribution" json:"contribution"`
	Method       DeliveryMethod `db:"method" json:"method"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
}

type Referral struct {
	ID           int64     `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	AssessmentID string    `db:"assessment_id" json:"assessmentId"`
	SubjectID    string    `db:"subject_id" json:"subjectId"`
	RiskLevel    RiskLevel `db:"risk_level" json:"riskLevel"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type AssessmentResult struct {
	Assessment   *Assessment `json:"assessment"`
	TotalScore   int         `json:"totalScore"`
	RiskLevel    RiskLevel   `json:"riskLevel"`
	Message      string      `json:"message"`
	ReferralCode string      `json:"referralCode,omitempty"`
	Notification *SendResult `json:"notification,omitempty"`
}
