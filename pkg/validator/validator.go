package validator

import (
	"errors"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/labstack/echo/v4"

	"github.com/bantai/bantai-service/internal/sms/phone"
	"github.com/bantai/bantai-service/pkg/response"
)

// rule is a custom tag with its English message. {0} is the field name.
type rule struct {
	tag     string
	message string
	check   validator.Func
}

var rules = []rule{
	{
		tag:     "ph_mobile",
		message: "{0} must be a Philippine mobile number (09XXXXXXXXX or +639XXXXXXXXX)",
		check: func(fl validator.FieldLevel) bool {
			return phone.Valid(fl.Field().String())
		},
	},
	{
		tag:     "locale",
		message: "{0} must be one of: en, tl",
		check: func(fl validator.FieldLevel) bool {
			switch strings.ToLower(fl.Field().String()) {
			case "en", "tl":
				return true
			}
			return false
		},
	},
}

// CustomValidator plugs go-playground/validator into Echo and reports field
// errors under their json names.
type CustomValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func New() *CustomValidator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonName)

	english := en.New()
	trans, _ := ut.New(english, english).GetTranslator("en")

	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		panic("failed to register validator translations: " + err.Error())
	}

	for _, r := range rules {
		register(validate, trans, r)
	}

	return &CustomValidator{validate: validate, translator: trans}
}

func jsonName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "" || name == "-" {
		return field.Name
	}
	return name
}

func register(validate *validator.Validate, trans ut.Translator, r rule) {
	if err := validate.RegisterValidation(r.tag, r.check); err != nil {
		panic("failed to register " + r.tag + " validation: " + err.Error())
	}

	_ = validate.RegisterTranslation(r.tag, trans,
		func(t ut.Translator) error {
			return t.Add(r.tag, r.message, true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T(r.tag, fe.Field())
			return msg
		},
	)
}

func (cv *CustomValidator) Validate(i any) error {
	err := cv.validate.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Translate(cv.translator)
	}
	return &ValidationError{Errors: details}
}

type ValidationError struct {
	Errors map[string]string `json:"errors"`
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	messages := make([]string, 0, len(fields))
	for _, field := range fields {
		messages = append(messages, field+": "+e.Errors[field])
	}
	return strings.Join(messages, "; ")
}

type ValidationErrorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// HandleValidationError writes field errors as 422. Anything else Validate
// returned is a malformed request.
func HandleValidationError(c echo.Context, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusUnprocessableEntity, ValidationErrorResponse{
			Success: false,
			Error:   "Validation failed",
			Code:    response.CodeValidation,
			Details: ve.Errors,
		})
	}
	return response.BadRequest(c, err)
}
