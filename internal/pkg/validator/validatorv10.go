package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/shandysiswandi/otpgate/internal/pkg/strcase"
)

// DefaultPhonePattern is a ten digit mobile number starting with 6 to 9.
const DefaultPhonePattern = `^[6-9]\d{9}$`

const phoneTag = "phone"

var ErrTranslatorNotFound = errors.New("validator: translator not found")

// V10ValidationError maps snake_case field names to English messages.
type V10ValidationError map[string]string

func (vs V10ValidationError) Error() string {
	if len(vs) == 0 {
		return "validation error"
	}
	b, _ := json.Marshal(map[string]string(vs)) //nolint:errchkjson // string map
	return string(b)
}

func (vs V10ValidationError) Values() map[string]string { return vs }

type Option func(*settings) error

type settings struct {
	phone *regexp.Regexp
}

// WithPhonePattern replaces the regular expression behind the "phone" tag.
func WithPhonePattern(pattern string) Option {
	return func(s *settings) error {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("validator: phone pattern: %w", err)
		}
		s.phone = re
		return nil
	}
}

// V10Validator wraps go-playground/validator with English messages and the
// "phone" tag.
type V10Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

func NewV10Validator(opts ...Option) (*V10Validator, error) {
	s := settings{phone: regexp.MustCompile(DefaultPhonePattern)}
	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return nil, err
		}
	}

	lang := en.New()
	trans, ok := ut.New(lang, lang).GetTranslator("en")
	if !ok {
		return nil, ErrTranslatorNotFound
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := enTranslations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, err
	}
	if err := registerPhone(v, trans, s.phone); err != nil {
		return nil, err
	}

	return &V10Validator{validate: v, trans: trans}, nil
}

// Validate returns V10ValidationError for rule violations and the raw error
// for anything else, such as a non-struct argument.
func (v *V10Validator) Validate(data any) error {
	err := v.validate.Struct(data)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(V10ValidationError, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[strcase.ToLowerSnake(fe.Field())] = fe.Translate(v.trans)
	}
	return out
}

func registerPhone(v *validator.Validate, trans ut.Translator, re *regexp.Regexp) error {
	err := v.RegisterValidation(phoneTag, func(fl validator.FieldLevel) bool {
		s, ok := fl.Field().Interface().(string)
		return ok && re.MatchString(s)
	})
	if err != nil {
		return err
	}

	return v.RegisterTranslation(phoneTag, trans,
		func(t ut.Translator) error {
			return t.Add(phoneTag, "{0} must be a valid phone number", false)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, err := t.T(phoneTag, fe.Field())
			if err != nil {
				return fe.Error()
			}
			return msg
		},
	)
}
