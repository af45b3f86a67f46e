// Package assessment sequences risk assessments over the web and SMS, from
// start through scoring, referral and result notification.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bantai/bantai-service/environments"
	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/internal/keylock"
	"github.com/bantai/bantai-service/internal/scoring"
	"github.com/bantai/bantai-service/internal/sms/phone"
	"github.com/bantai/bantai-service/internal/templates"
	"github.com/bantai/bantai-service/pkg/logger"
)

const (
	codeLength    = 6
	insertRetries = 5
)

type store interface {
	Create(ctx context.Context, a *domain.Assessment) error
	GetByID(ctx context.Context, id string) (*domain.Assessment, error)
	LatestOpenForSubject(ctx context.Context, subjectID string, now time.Time) (*domain.Assessment, error)
	LastCompletedForSubject(ctx context.Context, subjectID string) (*domain.Assessment, error)
	ActiveSMSByPhone(ctx context.Context, phone string, now time.Time) (*domain.Assessment, error)
	MarkInProgress(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, total int, level domain.RiskLevel, completedAt time.Time) (bool, error)
	InsertResponse(ctx context.Context, resp *domain.Response) (int64, error)
	ListResponses(ctx context.Context, assessmentID string) ([]domain.Response, error)
}

type referralStore interface {
	Create(ctx context.Context, ref *domain.Referral) (int64, error)
	GetByAssessment(ctx context.Context, assessmentID string) (*domain.Referral, error)
}

type messenger interface {
	SendTemplate(ctx context.Context, to string, msg templates.Message, locale string, sc domain.SendContext) (domain.SendResult, error)
	RecordInbound(ctx context.Context, from, body string, assessmentID *string) (*domain.InboundSMS, error)
}

type verifier interface {
	Issue(ctx context.Context, rawPhone string, purpose domain.OTPPurpose) (string, *domain.OTPRecord, error)
	Verify(ctx context.Context, rawPhone, code string, purpose domain.OTPPurpose) error
	TTLMinutes() int
}

type Service struct {
	store         store
	referrals     referralStore
	engine        *scoring.Engine
	messenger     messenger
	verifier      verifier
	locker        keylock.Locker
	config        environments.AssessmentConfig
	defaultLocale string
	now           func() time.Time
}

func NewService(
	store store,
	referrals referralStore,
	engine *scoring.Engine,
	messenger messenger,
	verifier verifier,
	locker keylock.Locker,
	config environments.AssessmentConfig,
	defaultLocale string,
) *Service {
	if defaultLocale == "" {
		defaultLocale = templates.DefaultLocale
	}

	return &Service{
		store:         store,
		referrals:     referrals,
		engine:        engine,
		messenger:     messenger,
		verifier:      verifier,
		locker:        locker,
		config:        config,
		defaultLocale: defaultLocale,
		now:           time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type StartRequest struct {
	SubjectID string
	Phone     string
	Locale    string
	Method    domain.DeliveryMethod
}

// Start opens an assessment for a subject. An unfinished assessment still in
// its window is returned instead of a new one. A completion inside the
// cool-down period blocks the start.
func (s *Service) Start(ctx context.Context, req StartRequest) (*domain.Assessment, error) {
	subjectID := strings.TrimSpace(req.SubjectID)
	if subjectID == "" {
		return nil, domain.NewValidationError("subjectId", "is required")
	}

	method := req.Method
	if method == "" {
		method = domain.MethodWeb
	}
	if method != domain.MethodWeb && method != domain.MethodSMS {
		return nil, domain.NewValidationError("method", fmt.Sprintf("unknown delivery method %q", method))
	}

	var phonePtr *string
	if req.Phone != "" {
		normalized, err := phone.Normalize(req.Phone)
		if err != nil {
			return nil, err
		}
		phonePtr = &normalized
	}
	if method == domain.MethodSMS && phonePtr == nil {
		return nil, domain.NewValidationError("phoneNumber", "is required for SMS assessments")
	}

	unlock, err := s.locker.Lock(ctx, "assessment:"+subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock subject: %w", err)
	}
	defer unlock()

	now := s.now()

	if err := s.checkCooldown(ctx, subjectID, "", now); err != nil {
		return nil, err
	}

	open, err := s.store.LatestOpenForSubject(ctx, subjectID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load open assessment: %w", err)
	}
	if open != nil {
		logger.Infof("Resuming assessment %s for subject %s", open.ID, subjectID)
		return open, nil
	}

	active := s.engine.Questionnaire().Active()
	questionIDs := make(domain.StringList, len(active))
	for i, q := range active {
		questionIDs[i] = q.ID
	}

	a := &domain.Assessment{
		ID:                   uuid.NewString(),
		SubjectID:            subjectID,
		Phone:                phonePtr,
		Locale:               s.locale(req.Locale),
		Status:               domain.AssessmentPending,
		Method:               method,
		QuestionnaireVersion: s.engine.Questionnaire().Version,
		QuestionIDs:          questionIDs,
		CreatedAt:            now,
		ExpiresAt:            now.Add(s.config.TTL),
	}

	for attempt := 1; ; attempt++ {
		a.Code, err = scoring.RandomCode(codeLength)
		if err != nil {
			return nil, err
		}

		err = s.store.Create(ctx, a)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrDuplicate) || attempt == insertRetries {
			return nil, fmt.Errorf("failed to create assessment: %w", err)
		}
		logger.Warnf("Assessment code %s already taken, retrying (%d/%d)", a.Code, attempt, insertRetries)
	}

	logger.Infof("Started %s assessment %s (%s) for subject %s", method, a.ID, a.Code, subjectID)

	return a, nil
}

// checkCooldown rejects when the subject completed an assessment other than
// exceptID within the cool-down period.
func (s *Service) checkCooldown(ctx context.Context, subjectID, exceptID string, now time.Time) error {
	last, err := s.store.LastCompletedForSubject(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("failed to load last assessment: %w", err)
	}
	if last == nil || last.ID == exceptID || last.CompletedAt == nil {
		return nil
	}

	if until := last.CompletedAt.Add(s.config.Cooldown); now.Before(until) {
		return cooldownError(until)
	}
	return nil
}

// cooldownUntil reports when a cool-down rejection from checkCooldown ends.
func cooldownUntil(err error) (time.Time, bool) {
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		return time.Time{}, false
	}
	until, ok := validation.Details["availableAt"].(time.Time)
	return until, ok
}

func cooldownError(until time.Time) *domain.ValidationError {
	return &domain.ValidationError{
		Field:   "subjectId",
		Message: fmt.Sprintf("an assessment was completed recently; a new one can be taken after %s", until.UTC().Format(time.RFC3339)),
		Details: map[string]any{"availableAt": until.UTC()},
	}
}

func (s *Service) locale(requested string) string {
	switch l := strings.ToLower(requested); l {
	case "en", "tl":
		return l
	default:
		return s.defaultLocale
	}
}

// load returns the assessment or a NotFoundError.
func (s *Service) load(ctx context.Context, id string) (*domain.Assessment, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load assessment: %w", err)
	}
	if a == nil {
		return nil, &domain.NotFoundError{Resource: "assessment"}
	}
	return a, nil
}

// open loads an assessment that can still take answers.
func (s *Service) open(ctx context.Context, id string, now time.Time) (*domain.Assessment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch a.EffectiveStatus(now) {
	case domain.AssessmentExpired:
		return nil, &domain.ExpiredError{Resource: "assessment"}
	case domain.AssessmentCompleted:
		return nil, domain.NewValidationError("assessmentId", "assessment is already completed")
	}
	return a, nil
}

// SubmitResponse records one answer. Each question is answered once.
func (s *Service) SubmitResponse(
	ctx context.Context,
	assessmentID, questionID, token string,
	method domain.DeliveryMethod,
) (*domain.Response, error) {
	now := s.now()

	a, err := s.open(ctx, assessmentID, now)
	if err != nil {
		return nil, err
	}

	if !a.HasQuestion(questionID) {
		return nil, domain.NewValidationError("questionId", fmt.Sprintf("question %s is not part of this assessment", questionID))
	}

	contribution, err := s.engine.Contribution(questionID, token)
	if err != nil {
		return nil, err
	}

	if method == "" {
		method = a.Method
	}

	resp := &domain.Response{
		AssessmentID: a.ID,
		QuestionID:   questionID,
		Token:        token,
		Contribution: contribution,
		Method:       method,
		CreatedAt:    now,
	}

	id, err := s.store.InsertResponse(ctx, resp)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, domain.NewValidationError("questionId", fmt.Sprintf("question %s is already answered", questionID))
		}
		return nil, fmt.Errorf("failed to store response: %w", err)
	}
	resp.ID = id

	if a.Status == domain.AssessmentPending {
		if err := s.store.MarkInProgress(ctx, a.ID); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// Complete scores the persisted answers and stores the result. Moderate and
// high results get a referral. The result SMS is best effort: a failed send is
// reported in the result and never undoes the completion.
func (s *Service) Complete(ctx context.Context, assessmentID string) (*domain.AssessmentResult, error) {
	result, err := s.complete(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	// Sent after the subject lock is released.
	if a := result.Assessment; a.Phone != nil {
		result.Notification = s.notifyResult(ctx, a, result)
	}

	return result, nil
}

func (s *Service) complete(ctx context.Context, assessmentID string) (*domain.AssessmentResult, error) {
	a, err := s.load(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, "assessment:"+a.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock subject: %w", err)
	}
	defer unlock()

	now := s.now()

	a, err = s.load(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	switch a.EffectiveStatus(now) {
	case domain.AssessmentCompleted:
		if a.CompletedAt != nil {
			return nil, cooldownError(a.CompletedAt.Add(s.config.Cooldown))
		}
		return nil, domain.NewValidationError("assessmentId", "assessment is already completed")
	case domain.AssessmentExpired:
		return nil, &domain.ExpiredError{Resource: "assessment"}
	}

	if err := s.checkCooldown(ctx, a.SubjectID, a.ID, now); err != nil {
		return nil, err
	}

	responses, err := s.store.ListResponses(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responses: %w", err)
	}

	answers := make(map[string]string, len(responses))
	persisted := 0
	for _, r := range responses {
		answers[r.QuestionID] = r.Token
		persisted += r.Contribution
	}

	score, err := s.engine.ScoreFor(a.QuestionIDs, answers)
	if err != nil {
		return nil, err
	}
	if score.Total != persisted {
		return nil, fmt.Errorf("assessment %s: recomputed score %d differs from stored contributions %d", a.ID, score.Total, persisted)
	}

	ok, err := s.store.Complete(ctx, a.ID, score.Total, score.Level, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cooldownError(now.Add(s.config.Cooldown))
	}

	a.Status = domain.AssessmentCompleted
	a.TotalScore = &score.Total
	a.RiskLevel = &score.Level
	a.CompletedAt = &now

	logger.Infof("Completed assessment %s: score %d, level %s", a.ID, score.Total, score.Level)

	result := &domain.AssessmentResult{
		Assessment: a,
		TotalScore: score.Total,
		RiskLevel:  score.Level,
		Message:    scoring.RiskMessage(score.Level, a.Locale),
	}

	if score.Level != domain.RiskLow {
		ref, err := s.createReferral(ctx, a, score.Level, now)
		if err != nil {
			logger.Errorf("Failed to create referral for assessment %s: %v", a.ID, err)
		} else {
			result.ReferralCode = ref.Code
		}
	}

	return result, nil
}

// createReferral retries on code collisions. An existing referral for the
// assessment is returned as is.
func (s *Service) createReferral(ctx context.Context, a *domain.Assessment, level domain.RiskLevel, now time.Time) (*domain.Referral, error) {
	for attempt := 1; attempt <= insertRetries; attempt++ {
		code, err := scoring.GenerateReferralCode(level)
		if err != nil {
			return nil, err
		}

		ref := &domain.Referral{
			Code:         code,
			AssessmentID: a.ID,
			SubjectID:    a.SubjectID,
			RiskLevel:    level,
			CreatedAt:    now,
		}

		id, err := s.referrals.Create(ctx, ref)
		if err == nil {
			ref.ID = id
			return ref, nil
		}
		if !errors.Is(err, domain.ErrDuplicate) {
			return nil, err
		}

		existing, lookupErr := s.referrals.GetByAssessment(ctx, a.ID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing != nil {
			return existing, nil
		}

		logger.Warnf("Referral code %s already taken, retrying (%d/%d)", code, attempt, insertRetries)
	}

	return nil, fmt.Errorf("no free referral code after %d attempts", insertRetries)
}

func (s *Service) notifyResult(ctx context.Context, a *domain.Assessment, result *domain.AssessmentResult) *domain.SendResult {
	msg := templates.RiskResult{Message: result.Message, ReferralCode: result.ReferralCode}
	sc := domain.SendContext{Type: domain.MessageTypeRiskAssessment, AssessmentID: &a.ID}

	res, err := s.messenger.SendTemplate(ctx, *a.Phone, msg, a.Locale, sc)
	if err != nil {
		logger.Errorf("Failed to send result for assessment %s: %v", a.ID, err)
		res = domain.SendResult{Error: err.Error()}
	}

	return &res
}

// View is an assessment as read by clients, with lazy expiry applied.
type View struct {
	*domain.Assessment
	Responses []domain.Response `json:"responses"`
}

func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	responses, err := s.store.ListResponses(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responses: %w", err)
	}
	if responses == nil {
		responses = []domain.Response{}
	}

	a.Status = a.EffectiveStatus(s.now())

	return &View{Assessment: a, Responses: responses}, nil
}

type OptionView struct {
	Letter string `json:"letter"`
	Token  string `json:"token"`
	Label  string `json:"label"`
}

type QuestionView struct {
	ID      string       `json:"id"`
	Index   int          `json:"index"`
	Text    string       `json:"text"`
	Options []OptionView `json:"options"`
}

// Questions lists the active questionnaire in locale.
func (s *Service) Questions(locale string) []QuestionView {
	locale = s.locale(locale)

	active := s.engine.Questionnaire().Active()
	out := make([]QuestionView, len(active))
	for i, q := range active {
		options := make([]OptionView, len(q.Options))
		for j, o := range q.Options {
			options[j] = OptionView{Letter: string(rune('A' + j)), Token: o.Token, Label: o.LabelFor(locale)}
		}
		out[i] = QuestionView{ID: q.ID, Index: q.Index, Text: q.TextFor(locale), Options: options}
	}
	return out
}
