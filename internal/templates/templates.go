package templates

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ID names a message template. The set is closed: every ID has a typed
// Message below that fills exactly its placeholders.
type ID string

const (
	IDOTP             ID = "otp"
	IDWelcome         ID = "welcome"
	IDRiskAssessment  ID = "riskAssessment"
	IDReferral        ID = "referral"
	IDQuestion        ID = "question"
	IDAssessmentStart ID = "assessmentStart"
	IDInvalidReply    ID = "invalidReply"
	IDCooldown        ID = "cooldown"
	IDReminder        ID = "reminder"
	IDTest            ID = "test"
)

const DefaultLocale = "en"

type template struct {
	bodies   map[string]string
	required []string
}

var registry = map[ID]template{
	IDOTP: {
		bodies: map[string]string{
			"en": "Your BantAI verification code is: {code}\n\nThis code will expire in {minutes} minutes.\n\nIf you didn't request this code, please ignore this message.",
			"tl": "Ang iyong BantAI verification code ay: {code}\n\nMag-e-expire ang code na ito sa loob ng {minutes} minuto.\n\nKung hindi ikaw ang humiling nito, huwag pansinin ang mensaheng ito.",
		},
	},
	IDWelcome: {
		bodies: map[string]string{
			"en": "Welcome to BantAI, {name}! Your account is ready. Reply HELP anytime for assistance.",
			"tl": "Maligayang pagdating sa BantAI, {name}! Handa na ang iyong account. Mag-reply ng HELP para sa tulong.",
		},
	},
	IDRiskAssessment: {
		bodies: map[string]string{
			"en": "BantAI Risk Assessment Result\n\n{message}",
			"tl": "Resulta ng BantAI Risk Assessment\n\n{message}",
		},
	},
	IDReferral: {
		bodies: map[string]string{
			"en": "BantAI Risk Assessment Result\n\n{message}\n\nReferral code: {code}",
			"tl": "Resulta ng BantAI Risk Assessment\n\n{message}\n\nReferral code: {code}",
		},
	},
	IDQuestion: {
		bodies: map[string]string{
			"en": "Question {number} of {total}: {question}\n{options}\nReply with the letter of your answer.",
			"tl": "Tanong {number} sa {total}: {question}\n{options}\nMag-reply ng letra ng iyong sagot.",
		},
	},
	IDAssessmentStart: {
		bodies: map[string]string{
			"en": "BantAI: To start your confidential HIV risk assessment, reply with the code {code}. It expires in {minutes} minutes.",
			"tl": "BantAI: Para simulan ang iyong kumpidensyal na HIV risk assessment, i-reply ang code na {code}. Mag-e-expire ito sa loob ng {minutes} minuto.",
		},
	},
	IDInvalidReply: {
		bodies: map[string]string{
			"en": "Sorry, we did not understand \"{reply}\". Please reply with one of: {letters}.",
			"tl": "Paumanhin, hindi namin naintindihan ang \"{reply}\". Mag-reply ng isa sa: {letters}.",
		},
	},
	IDCooldown: {
		bodies: map[string]string{
			"en": "BantAI: You completed a risk assessment recently. You can take a new one after {date}.",
			"tl": "BantAI: Kamakailan ka lang natapos ng risk assessment. Maaari kang kumuha ng bago pagkatapos ng {date}.",
		},
	},
	IDReminder: {
		bodies: map[string]string{
			"en": "Hi {name}, this is a reminder of your appointment at {center} on {date}. Your referral code is {code}.",
			"tl": "Hi {name}, paalala ito ng iyong appointment sa {center} sa {date}. Ang iyong referral code ay {code}.",
		},
	},
	IDTest: {
		bodies: map[string]string{
			"en": "This is a test message from BantAI sent at {time}.",
			"tl": "Ito ay test message mula sa BantAI na ipinadala noong {time}.",
		},
	},
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_]+)\}`)

func init() {
	// Required variables are derived from the English body and every locale
	// must use the same set.
	for id, tpl := range registry {
		want := placeholders(tpl.bodies[DefaultLocale])
		for locale, body := range tpl.bodies {
			if got := placeholders(body); strings.Join(got, ",") != strings.Join(want, ",") {
				panic(fmt.Sprintf("template %s/%s placeholders %v differ from %v", id, locale, got, want))
			}
		}
		tpl.required = want
		registry[id] = tpl
	}
}

func placeholders(body string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

type MissingVariablesError struct {
	Template ID
	Missing  []string
}

func (e *MissingVariablesError) Error() string {
	return fmt.Sprintf("template %s is missing variables: %s", e.Template, strings.Join(e.Missing, ", "))
}

// Format renders template id in locale (falling back to English). Every
// placeholder must have a value; nothing is ever emitted as a literal {name}.
func Format(id ID, variables map[string]string, locale string) (string, error) {
	tpl, ok := registry[id]
	if !ok {
		return "", fmt.Errorf("unknown template %q", id)
	}

	var missing []string
	for _, name := range tpl.required {
		if _, ok := variables[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", &MissingVariablesError{Template: id, Missing: missing}
	}

	body, ok := tpl.bodies[strings.ToLower(locale)]
	if !ok {
		body = tpl.bodies[DefaultLocale]
	}

	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		return variables[match[1:len(match)-1]]
	}), nil
}

// Message is a typed template invocation.
type Message interface {
	TemplateID() ID
	Variables() map[string]string
}

// Render formats a typed message.
func Render(msg Message, locale string) (string, error) {
	return Format(msg.TemplateID(), msg.Variables(), locale)
}

type OTP struct {
	Code    string
	Minutes int
}

func (m OTP) TemplateID() ID { return IDOTP }
func (m OTP) Variables() map[string]string {
	return map[string]string{"code": m.Code, "minutes": strconv.Itoa(m.Minutes)}
}

type Welcome struct {
	Name string
}

func (m Welcome) TemplateID() ID { return IDWelcome }
func (m Welcome) Variables() map[string]string {
	return map[string]string{"name": m.Name}
}

// RiskResult picks the referral variant when a referral code is present.
type RiskResult struct {
	Message      string
	ReferralCode string
}

func (m RiskResult) TemplateID() ID {
	if m.ReferralCode != "" {
		return IDReferral
	}
	return IDRiskAssessment
}

func (m RiskResult) Variables() map[string]string {
	vars := map[string]string{"message": m.Message}
	if m.ReferralCode != "" {
		vars["code"] = m.ReferralCode
	}
	return vars
}

type Question struct {
	Number  int
	Total   int
	Text    string
	Options []string
}

func (m Question) TemplateID() ID { return IDQuestion }
func (m Question) Variables() map[string]string {
	lines := make([]string, len(m.Options))
	for i, opt := range m.Options {
		lines[i] = fmt.Sprintf("%c) %s", 'A'+i, opt)
	}
	return map[string]string{
		"number":   strconv.Itoa(m.Number),
		"total":    strconv.Itoa(m.Total),
		"question": m.Text,
		"options":  strings.Join(lines, "\n"),
	}
}

type AssessmentStart struct {
	Code    string
	Minutes int
}

func (m AssessmentStart) TemplateID() ID { return IDAssessmentStart }
func (m AssessmentStart) Variables() map[string]string {
	return map[string]string{"code": m.Code, "minutes": strconv.Itoa(m.Minutes)}
}

type InvalidReply struct {
	Reply   string
	Letters []string
}

func (m InvalidReply) TemplateID() ID { return IDInvalidReply }
func (m InvalidReply) Variables() map[string]string {
	return map[string]string{"reply": m.Reply, "letters": strings.Join(m.Letters, ", ")}
}

// Cooldown tells a patient when a new assessment becomes available.
type Cooldown struct {
	AvailableAt time.Time
}

func (m Cooldown) TemplateID() ID { return IDCooldown }
func (m Cooldown) Variables() map[string]string {
	return map[string]string{"date": m.AvailableAt.UTC().Format("Jan 2, 2006")}
}

type Reminder struct {
	Name   string
	Center string
	Date   string
	Code   string
}

func (m Reminder) TemplateID() ID { return IDReminder }
func (m Reminder) Variables() map[string]string {
	return map[string]string{"name": m.Name, "center": m.Center, "date": m.Date, "code": m.Code}
}

type Test struct {
	Time string
}

func (m Test) TemplateID() ID { return IDTest }
func (m Test) Variables() map[string]string {
	return map[string]string{"time": m.Time}
}
