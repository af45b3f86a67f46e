package scoring

// Multiplier is the share of a question's weight a response token contributes.
type Multiplier int

const (
	MultiplierNone Multiplier = iota
	MultiplierHalf
	MultiplierFull
)

// Apply returns the points for weight. Half rounds down.
func (m Multiplier) Apply(weight int) int {
	switch m {
	case MultiplierFull:
		return weight
	case MultiplierHalf:
		return weight / 2
	default:
		return 0
	}
}

type Option struct {
	Token      string            `json:"token"`
	Label      map[string]string `json:"label"`
	Multiplier Multiplier        `json:"-"`
}

type Question struct {
	ID       string            `json:"id"`
	Index    int               `json:"index"`
	Text     map[string]string `json:"text"`
	Weight   int               `json:"weight"`
	Active   bool              `json:"active"`
	Required bool              `json:"required"`
	Options  []Option          `json:"options"`
}

func (o Option) LabelFor(locale string) string {
	return localized(o.Label, locale)
}

func (q *Question) Option(token string) (Option, bool) {
	for _, o := range q.Options {
		if o.Token == token {
			return o, true
		}
	}
	return Option{}, false
}

// OptionAt maps a zero-based position (A=0, B=1, ...) to its option.
func (q *Question) OptionAt(i int) (Option, bool) {
	if i < 0 || i >= len(q.Options) {
		return Option{}, false
	}
	return q.Options[i], true
}

func (q *Question) TextFor(locale string) string {
	return localized(q.Text, locale)
}

// Questionnaire is an immutable, versioned question set. Changing a question
// means publishing a new version.
type Questionnaire struct {
	Version   string
	Questions []Question
}

func (qs *Questionnaire) Active() []Question {
	active := make([]Question, 0, len(qs.Questions))
	for _, q := range qs.Questions {
		if q.Active {
			active = append(active, q)
		}
	}
	return active
}

func (qs *Questionnaire) Question(id string) (*Question, bool) {
	for i := range qs.Questions {
		if qs.Questions[i].ID == id {
			return &qs.Questions[i], true
		}
	}
	return nil, false
}

func yesNo(yesMultiplier Multiplier) []Option {
	return []Option{
		{Token: "yes", Label: map[string]string{"en": "Yes", "tl": "Oo"}, Multiplier: yesMultiplier},
		{Token: "no", Label: map[string]string{"en": "No", "tl": "Hindi"}, Multiplier: MultiplierNone},
	}
}

// DefaultQuestionnaire is the seven-question HIV risk screen.
func DefaultQuestionnaire() *Questionnaire {
	return &Questionnaire{
		Version: "2024-01",
		Questions: []Question{
			{
				ID:    "q1",
				Index: 1,
				Text: map[string]string{
					"en": "In the past 6 months, have you had sex without a condom?",
					"tl": "Sa nakaraang 6 na buwan, nakipagtalik ka ba nang walang condom?",
				},
				Weight: 2, Active: true, Required: true,
				Options: yesNo(MultiplierFull),
			},
			{
				ID:    "q2",
				Index: 2,
				Text: map[string]string{
					"en": "In the past 6 months, have you had more than one sexual partner?",
					"tl": "Sa nakaraang 6 na buwan, nagkaroon ka ba ng higit sa isang kapareha sa pagtatalik?",
				},
				Weight: 2, Active: true, Required: true,
				Options: yesNo(MultiplierFull),
			},
			{
				ID:    "q3",
				Index: 3,
				Text: map[string]string{
					"en": "How often do you use condoms during sex?",
					"tl": "Gaano ka kadalas gumamit ng condom sa pakikipagtalik?",
				},
				Weight: 2, Active: true, Required: true,
				Options: []Option{
					{Token: "always", Label: map[string]string{"en": "Always", "tl": "Palagi"}, Multiplier: MultiplierNone},
					{Token: "sometimes", Label: map[string]string{"en": "Sometimes", "tl": "Minsan"}, Multiplier: MultiplierHalf},
					{Token: "never", Label: map[string]string{"en": "Never", "tl": "Hindi kailanman"}, Multiplier: MultiplierFull},
				},
			},
			{
				ID:    "q4",
				Index: 4,
				Text: map[string]string{
					"en": "When was your last HIV test?",
					"tl": "Kailan ang huli mong HIV test?",
				},
				Weight: 2, Active: true, Required: true,
				Options: []Option{
					{Token: "recent", Label: map[string]string{"en": "Within the last 6 months", "tl": "Sa loob ng nakaraang 6 na buwan"}, Multiplier: MultiplierNone},
					{Token: "over_six_months", Label: map[string]string{"en": "More than 6 months ago", "tl": "Mahigit 6 na buwan na ang nakalipas"}, Multiplier: MultiplierHalf},
					{Token: "never", Label: map[string]string{"en": "Never tested", "tl": "Hindi pa nagpapa-test"}, Multiplier: MultiplierFull},
				},
			},
			{
				ID:    "q5",
				Index: 5,
				Text: map[string]string{
					"en": "Have you ever been diagnosed with a sexually transmitted infection (STI)?",
					"tl": "Na-diagnose ka na ba ng sexually transmitted infection (STI)?",
				},
				Weight: 1, Active: true, Required: true,
				Options: yesNo(MultiplierFull),
			},
			{
				ID:    "q6",
				Index: 6,
				Text: map[string]string{
					"en": "Have you ever shared needles or injection equipment?",
					"tl": "Nakigamit ka na ba ng karayom o kagamitan sa pag-iniksyon?",
				},
				Weight: 3, Active: true, Required: true,
				Options: yesNo(MultiplierFull),
			},
			{
				ID:    "q7",
				Index: 7,
				Text: map[string]string{
					"en": "What is the HIV status of your sexual partner(s)?",
					"tl": "Ano ang HIV status ng iyong (mga) kapareha?",
				},
				Weight: 3, Active: true, Required: true,
				Options: []Option{
					{Token: "negative", Label: map[string]string{"en": "Negative", "tl": "Negatibo"}, Multiplier: MultiplierNone},
					{Token: "unknown", Label: map[string]string{"en": "I don't know", "tl": "Hindi ko alam"}, Multiplier: MultiplierHalf},
					{Token: "positive", Label: map[string]string{"en": "Positive", "tl": "Positibo"}, Multiplier: MultiplierFull},
				},
			},
		},
	}
}

