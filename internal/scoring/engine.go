package scoring

import (
	"fmt"
	"sort"

	"github.com/bantai/bantai-service/internal/domain"
)

type InvalidAnswer struct {
	QuestionID string `json:"questionId"`
	Token      string `json:"token"`
}

type Validation struct {
	Valid            bool            `json:"valid"`
	MissingQuestions []string        `json:"missingQuestions"`
	InvalidAnswers   []InvalidAnswer `json:"invalidAnswers"`
}

type Score struct {
	Total         int              `json:"total"`
	Level         domain.RiskLevel `json:"level"`
	Contributions map[string]int   `json:"contributions"`
}

// Engine scores answers against one questionnaire and one band table. It holds
// no mutable state and is safe for concurrent use.
type Engine struct {
	questionnaire *Questionnaire
	bands         []Band
}

func NewEngine(questionnaire *Questionnaire, bands []Band) (*Engine, error) {
	validated, err := ValidateBands(bands)
	if err != nil {
		return nil, err
	}

	return &Engine{
		questionnaire: questionnaire,
		bands:         validated,
	}, nil
}

func (e *Engine) Questionnaire() *Questionnaire {
	return e.questionnaire
}

func (e *Engine) Bands() []Band {
	out := make([]Band, len(e.bands))
	copy(out, e.bands)
	return out
}

// ValidateAnswers reports required questions with no answer and answers whose
// token is not allowed. An answer present with a bad token is invalid, never
// missing.
func (e *Engine) ValidateAnswers(answers map[string]string) Validation {
	return e.validate(e.questionnaire.Active(), answers)
}

// ValidateFor is ValidateAnswers restricted to a snapshot of question ids.
func (e *Engine) ValidateFor(questionIDs []string, answers map[string]string) Validation {
	questions := make([]Question, 0, len(questionIDs))
	for _, id := range questionIDs {
		if q, ok := e.questionnaire.Question(id); ok {
			questions = append(questions, *q)
		}
	}
	return e.validate(questions, answers)
}

func (e *Engine) validate(questions []Question, answers map[string]string) Validation {
	result := Validation{
		MissingQuestions: []string{},
		InvalidAnswers:   []InvalidAnswer{},
	}

	known := make(map[string]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true

		token, ok := answers[q.ID]
		if !ok {
			if q.Required {
				result.MissingQuestions = append(result.MissingQuestions, q.ID)
			}
			continue
		}
		if _, allowed := q.Option(token); !allowed {
			result.InvalidAnswers = append(result.InvalidAnswers, InvalidAnswer{QuestionID: q.ID, Token: token})
		}
	}

	extra := make([]string, 0)
	for id := range answers {
		if !known[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		result.InvalidAnswers = append(result.InvalidAnswers, InvalidAnswer{QuestionID: id, Token: answers[id]})
	}

	result.Valid = len(result.MissingQuestions) == 0 && len(result.InvalidAnswers) == 0
	return result
}

// Contribution is the score a single response adds, taken from the question's
// token table.
func (e *Engine) Contribution(questionID, token string) (int, error) {
	q, ok := e.questionnaire.Question(questionID)
	if !ok {
		return 0, &domain.NotFoundError{Resource: "question " + questionID}
	}

	opt, ok := q.Option(token)
	if !ok {
		return 0, &domain.ValidationError{
			Field:   questionID,
			Message: fmt.Sprintf("%q is not a valid answer", token),
		}
	}

	return opt.Multiplier.Apply(q.Weight), nil
}

// Score totals a complete, valid answer set. Incomplete or invalid sets are
// rejected rather than scored.
func (e *Engine) Score(answers map[string]string) (*Score, error) {
	if v := e.ValidateAnswers(answers); !v.Valid {
		return nil, validationFailure(v)
	}
	return e.total(answers)
}

// ScoreFor is Score restricted to a snapshot of question ids.
func (e *Engine) ScoreFor(questionIDs []string, answers map[string]string) (*Score, error) {
	if v := e.ValidateFor(questionIDs, answers); !v.Valid {
		return nil, validationFailure(v)
	}
	return e.total(answers)
}

func (e *Engine) total(answers map[string]string) (*Score, error) {
	score := &Score{Contributions: make(map[string]int, len(answers))}
	for id, token := range answers {
		points, err := e.Contribution(id, token)
		if err != nil {
			return nil, err
		}
		score.Contributions[id] = points
		score.Total += points
	}

	score.Level = e.RiskLevel(score.Total)
	return score, nil
}

// RiskLevel returns the level of the single band containing total. Negative
// totals cannot occur; they are clamped into the first band.
func (e *Engine) RiskLevel(total int) domain.RiskLevel {
	if total < 0 {
		total = 0
	}
	for _, b := range e.bands {
		if b.Contains(total) {
			return b.Level
		}
	}
	// Unreachable with validated bands.
	return e.bands[len(e.bands)-1].Level
}

func validationFailure(v Validation) *domain.ValidationError {
	return &domain.ValidationError{
		Field:   "answers",
		Message: fmt.Sprintf("%d missing and %d invalid answers", len(v.MissingQuestions), len(v.InvalidAnswers)),
		Details: map[string]any{
			"missingQuestions": v.MissingQuestions,
			"invalidAnswers":   v.InvalidAnswers,
		},
	}
}
