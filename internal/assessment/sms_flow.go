package assessment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bantai/bantai-service/internal/domain"
	"github.com/bantai/bantai-service/internal/sms/phone"
	"github.com/bantai/bantai-service/internal/templates"
	"github.com/bantai/bantai-service/pkg/logger"
)

// Inbound reply handling outcomes.
const (
	ActionStarted   = "started"
	ActionAnswered  = "answered"
	ActionCompleted = "completed"
	ActionInvalid   = "invalid_reply"
	ActionStopped   = "stopped"
	ActionRejected  = "rejected"
	ActionUnmatched = "unmatched"
)

var startReplyPattern = regexp.MustCompile(`^(\d{6})(?:\s+(EN|TL))?$`)

type InboundResult struct {
	Action       string  `json:"action"`
	AssessmentID *string `json:"assessmentId,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// StartSMS texts a start code to phone. Replying with the code begins an
// SMS-only assessment. No code is issued while the phone is in cool-down.
func (s *Service) StartSMS(ctx context.Context, rawPhone, locale string) (*domain.SendResult, error) {
	normalized, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, err
	}

	if err := s.checkCooldown(ctx, normalized, "", s.now()); err != nil {
		return nil, err
	}

	code, rec, err := s.verifier.Issue(ctx, normalized, domain.OTPPurposeSMSAssessment)
	if err != nil {
		return nil, err
	}

	msg := templates.AssessmentStart{Code: code, Minutes: s.verifier.TTLMinutes()}
	res, err := s.messenger.SendTemplate(ctx, rec.Phone, msg, s.locale(locale), domain.SendContext{Type: domain.MessageTypeOTP})
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// HandleInbound routes one patient reply. A reply the flow cannot use is
// answered by SMS where possible and reported in the result, not as an error.
func (s *Service) HandleInbound(ctx context.Context, from, body string) (*InboundResult, error) {
	normalized, err := phone.Normalize(from)
	if err != nil {
		return nil, err
	}

	reply := strings.ToUpper(strings.TrimSpace(body))

	active, err := s.store.ActiveSMSByPhone(ctx, normalized, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to find active assessment: %w", err)
	}

	var assessmentID *string
	if active != nil {
		assessmentID = &active.ID
	}
	if _, err := s.messenger.RecordInbound(ctx, normalized, body, assessmentID); err != nil {
		return nil, err
	}

	if reply == "STOP" {
		logger.Infof("Opt-out received from %s", logger.MaskPhone(normalized))
		return &InboundResult{Action: ActionStopped, AssessmentID: assessmentID}, nil
	}

	if active == nil {
		return s.startFromReply(ctx, normalized, reply)
	}

	return s.answerFromReply(ctx, active, reply)
}

func (s *Service) startFromReply(ctx context.Context, from, reply string) (*InboundResult, error) {
	m := startReplyPattern.FindStringSubmatch(reply)
	if m == nil {
		return &InboundResult{Action: ActionUnmatched}, nil
	}

	locale := s.locale(m[2])

	// The code stays unused when the start would be refused anyway.
	if err := s.checkCooldown(ctx, from, "", s.now()); err != nil {
		return s.rejectStart(ctx, from, locale, err)
	}

	if err := s.verifier.Verify(ctx, from, m[1], domain.OTPPurposeSMSAssessment); err != nil {
		return s.rejectStart(ctx, from, locale, err)
	}

	a, err := s.Start(ctx, StartRequest{
		SubjectID: from,
		Phone:     from,
		Locale:    locale,
		Method:    domain.MethodSMS,
	})
	if err != nil {
		return s.rejectStart(ctx, from, locale, err)
	}

	answered, err := s.answered(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	s.sendNextQuestion(ctx, a, answered)

	return &InboundResult{Action: ActionStarted, AssessmentID: &a.ID}, nil
}

// rejectStart turns a client error from the start path into a rejected
// result. A cool-down rejection is explained to the sender by SMS.
func (s *Service) rejectStart(ctx context.Context, from, locale string, err error) (*InboundResult, error) {
	if !isClientError(err) {
		return nil, err
	}

	logger.Warnf("Rejected start from %s: %v", logger.MaskPhone(from), err)

	if until, ok := cooldownUntil(err); ok {
		s.deliver(ctx, from, locale, templates.Cooldown{AvailableAt: until}, nil)
	}

	return &InboundResult{Action: ActionRejected, Error: err.Error()}, nil
}

func (s *Service) answerFromReply(ctx context.Context, a *domain.Assessment, reply string) (*InboundResult, error) {
	answered, err := s.answered(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	questionID, ok := nextQuestion(a, answered)
	if !ok {
		return s.completeFromReply(ctx, a)
	}

	q, ok := s.engine.Questionnaire().Question(questionID)
	if !ok {
		return nil, fmt.Errorf("question %s missing from questionnaire", questionID)
	}

	letters := make([]string, len(q.Options))
	for i := range q.Options {
		letters[i] = string(rune('A' + i))
	}

	option, valid := q.OptionAt(letterIndex(reply))
	if !valid {
		s.send(ctx, a, templates.InvalidReply{Reply: reply, Letters: letters})
		return &InboundResult{Action: ActionInvalid, AssessmentID: &a.ID}, nil
	}

	if _, err := s.SubmitResponse(ctx, a.ID, questionID, option.Token, domain.MethodSMS); err != nil {
		if isClientError(err) {
			return &InboundResult{Action: ActionRejected, AssessmentID: &a.ID, Error: err.Error()}, nil
		}
		return nil, err
	}
	answered[questionID] = true

	if _, more := nextQuestion(a, answered); more {
		s.sendNextQuestion(ctx, a, answered)
		return &InboundResult{Action: ActionAnswered, AssessmentID: &a.ID}, nil
	}

	return s.completeFromReply(ctx, a)
}

func (s *Service) completeFromReply(ctx context.Context, a *domain.Assessment) (*InboundResult, error) {
	if _, err := s.Complete(ctx, a.ID); err != nil {
		if isClientError(err) {
			return &InboundResult{Action: ActionRejected, AssessmentID: &a.ID, Error: err.Error()}, nil
		}
		return nil, err
	}
	return &InboundResult{Action: ActionCompleted, AssessmentID: &a.ID}, nil
}

func (s *Service) answered(ctx context.Context, assessmentID string) (map[string]bool, error) {
	responses, err := s.store.ListResponses(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load responses: %w", err)
	}

	answered := make(map[string]bool, len(responses))
	for _, r := range responses {
		answered[r.QuestionID] = true
	}
	return answered, nil
}

// letterIndex maps "A", "B", ... to 0, 1, ... and anything else to -1.
func letterIndex(reply string) int {
	if len(reply) != 1 || reply[0] < 'A' || reply[0] > 'Z' {
		return -1
	}
	return int(reply[0] - 'A')
}

// nextQuestion is the first question in the snapshot without an answer.
func nextQuestion(a *domain.Assessment, answered map[string]bool) (string, bool) {
	for _, id := range a.QuestionIDs {
		if !answered[id] {
			return id, true
		}
	}
	return "", false
}

func (s *Service) sendNextQuestion(ctx context.Context, a *domain.Assessment, answered map[string]bool) {
	questionID, ok := nextQuestion(a, answered)
	if !ok {
		return
	}

	q, ok := s.engine.Questionnaire().Question(questionID)
	if !ok {
		logger.Errorf("Question %s of assessment %s missing from questionnaire", questionID, a.ID)
		return
	}

	options := make([]string, len(q.Options))
	for i, o := range q.Options {
		options[i] = o.LabelFor(a.Locale)
	}

	s.send(ctx, a, templates.Question{
		Number:  len(answered) + 1,
		Total:   len(a.QuestionIDs),
		Text:    q.TextFor(a.Locale),
		Options: options,
	})
}

// send delivers a flow message. Failures are logged only.
func (s *Service) send(ctx context.Context, a *domain.Assessment, msg templates.Message) {
	if a.Phone == nil {
		return
	}
	s.deliver(ctx, *a.Phone, a.Locale, msg, &a.ID)
}

func (s *Service) deliver(ctx context.Context, to, locale string, msg templates.Message, assessmentID *string) {
	sc := domain.SendContext{Type: domain.MessageTypeNotification, AssessmentID: assessmentID}
	res, err := s.messenger.SendTemplate(ctx, to, msg, locale, sc)
	if err != nil {
		logger.Errorf("Failed to send %s to %s: %v", msg.TemplateID(), logger.MaskPhone(to), err)
		return
	}
	if !res.Success {
		logger.Warnf("Sending %s to %s failed: %s", msg.TemplateID(), logger.MaskPhone(to), res.Error)
	}
}

func isClientError(err error) bool {
	var (
		validation *domain.ValidationError
		notFound   *domain.NotFoundError
		expired    *domain.ExpiredError
		used       *domain.AlreadyUsedError
		mismatch   *domain.MismatchError
		limited    *domain.RateLimitError
	)
	return errors.As(err, &validation) ||
		errors.As(err, &notFound) ||
		errors.As(err, &expired) ||
		errors.As(err, &used) ||
		errors.As(err, &mismatch) ||
		errors.As(err, &limited)
}
