package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"billing/internal/domain"
)

var (
	Validate   *validator.Validate
	Translator ut.Translator

	// custom validation tags
	trimesterTag     = "trimester"
	paymentMethodTag = "payment_method"
	providerTag      = "provider"
	relationshipTag  = "relationship"
	phoneTag         = "phone"
	academicYearTag  = "academic_year"

	phoneRegex        = regexp.MustCompile(`^\+?[0-9]{8,15}$`)
	academicYearRegex = regexp.MustCompile(`^[0-9]{4}-[0-9]{4}$`)

	errInvalidRequest = errors.New("invalid request")
)

func init() {
	Validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	Translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(Validate, Translator)

	// Use JSON tag names for errors instead of Go struct names.
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = Validate.RegisterValidation(trimesterTag, oneOf(
		domain.TrimesterFirst, domain.TrimesterSecond, domain.TrimesterThird, domain.TrimesterAnnual))
	_ = Validate.RegisterValidation(paymentMethodTag, oneOf(
		domain.PaymentMethodMobileMoney, domain.PaymentMethodCash, domain.PaymentMethodBankTransfer))
	_ = Validate.RegisterValidation(providerTag, oneOf("mtn", "moov", "celtiis"))
	_ = Validate.RegisterValidation(relationshipTag, oneOf(
		domain.RelationshipFather, domain.RelationshipMother, domain.RelationshipGuardian, domain.RelationshipOther))
	_ = Validate.RegisterValidation(phoneTag, matches(phoneRegex))
	_ = Validate.RegisterValidation(academicYearTag, matches(academicYearRegex))

	registerCustomValidationsTranslations(trimesterTag, paymentMethodTag, providerTag, relationshipTag, phoneTag, academicYearTag)
}

// registerCustomValidationsTranslations registers error messages for custom tags.
// The registration func is a noop since the english defaults are already loaded.
func registerCustomValidationsTranslations(tags ...string) {
	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range tags {
		_ = Validate.RegisterTranslation(tag, Translator, registerFn, translateCustomValidationErrs)
	}
}

func translateCustomValidationErrs(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case trimesterTag:
		return "must be one of first, second, third or annual"
	case paymentMethodTag:
		return "must be one of mobile_money, cash or bank_transfer"
	case providerTag:
		return "unsupported mobile money provider"
	case relationshipTag:
		return "must be one of father, mother, guardian or other"
	case phoneTag:
		return "invalid phone number"
	case academicYearTag:
		return "must look like 2025-2026"
	default:
		return ""
	}
}

func oneOf[T ~string](allowed ...T) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value := strings.ToLower(fl.Field().String())
		for _, a := range allowed {
			if value == string(a) {
				return true
			}
		}
		return false
	}
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// Struct validates s and returns a *domain.ValidationError listing each failing field.
func Struct(s any) error {
	err := Validate.Struct(s)
	if err == nil {
		return nil
	}

	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return domain.NewValidationError(err)
	}
	fields := make([]domain.FieldError, 0, len(vErrs))
	for _, vErr := range vErrs {
		fields = append(fields, domain.FieldError{
			Field: vErr.Field(),
			Error: vErr.Translate(Translator),
		})
	}
	return domain.NewValidationError(errInvalidRequest, fields...)
}

// FieldError builds a single-field validation error for checks the tags cannot express.
func FieldError(field, msg string) error {
	return domain.NewValidationError(errInvalidRequest, domain.FieldError{Field: field, Error: msg})
}
