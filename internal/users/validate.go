package users

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// Validator enforces the user input schema.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a Validator with the rfc3339 tag registered and
// field errors keyed by JSON name.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("rfc3339", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.RFC3339, fl.Field().String())
		return err == nil
	})
	return &Validator{validate: v}
}

// ValidateCreate normalises and checks a create input.
func (v *Validator) ValidateCreate(in CreateInput) (CreateInput, error) {
	in.FullName = NormalizeName(in.FullName)
	if err := v.check(in); err != nil {
		return CreateInput{}, err
	}
	return in, nil
}

// ValidateUpdate normalises and checks a partial input.
func (v *Validator) ValidateUpdate(in UpdateInput) (UpdateInput, error) {
	if in.FullName != nil {
		name := NormalizeName(*in.FullName)
		in.FullName = &name
	}
	if err := v.check(in); err != nil {
		return UpdateInput{}, err
	}
	return in, nil
}

func (v *Validator) check(in any) error {
	err := v.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("users: validate: %w", err)
	}
	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s character(s)", fe.Param())
	case "max":
		return fmt.Sprintf("must contain at most %s character(s)", fe.Param())
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "rfc3339":
		return "must be an ISO-8601 date-time"
	default:
		return "is invalid"
	}
}

// NormalizeName trims surrounding whitespace and applies NFC so that the
// length bounds count user-perceived characters.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
