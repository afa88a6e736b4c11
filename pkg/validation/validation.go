package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_ .-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	MustRegister(v, "notblank", ValidateNotBlank)
	MustRegister(v, "username", ValidateUsername)
	return v
}

// jsonFieldName reports fields by their wire name so that errors name
// "appInstance" rather than "AppInstance".
func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

func MustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// ValidateNotBlank rejects strings that are empty once trimmed.
func ValidateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// ValidateUsername allows letters, digits, spaces and _ . -
func ValidateUsername(fl validator.FieldLevel) bool {
	return usernameRegex.MatchString(fl.Field().String())
}

// FieldError names the attribute that failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Message
}

// Struct validates v by its `validate` tags and returns the first failing
// field in declaration order, or nil.
func Struct(v any) *FieldError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &FieldError{Message: err.Error()}
	}
	return fromValidator(verrs[0])
}

func fromValidator(fe validator.FieldError) *FieldError {
	field := fe.Field()

	var msg string
	switch fe.Tag() {
	case "required", "notblank":
		msg = fmt.Sprintf("%s is required", field)
	case "max":
		msg = fmt.Sprintf("%s is too long (max %s characters)", field, fe.Param())
	case "min":
		msg = fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "gte":
		msg = fmt.Sprintf("%s must not be negative", field)
	case "email":
		msg = "invalid email format"
	default:
		msg = fmt.Sprintf("%s contains invalid characters", field)
	}
	return &FieldError{Field: field, Message: msg}
}
