// Package validation holds the input rules shared by the chat service and the client cores,
// so a form is rejected with the same message before and after the network call.
package validation

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	MaxNameLength    = 100
	MaxMessageLength = 4000
)

type Visitor struct {
	Name   string `validate:"required,max=100"`
	Email  string `validate:"required,email"`
	Locale string `validate:"omitempty,oneof=en fa"`
}

type Message struct {
	Message string `validate:"required,max=4000"`
}

var (
	once     sync.Once
	instance *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
	})
	return instance
}

// NormalizeVisitor trims every field and lower-cases the email.
func NormalizeVisitor(v Visitor) Visitor {
	return Visitor{
		Name:   strings.TrimSpace(v.Name),
		Email:  strings.ToLower(strings.TrimSpace(v.Email)),
		Locale: strings.ToLower(strings.TrimSpace(v.Locale)),
	}
}

func ValidateVisitor(v Visitor) error {
	return get().Struct(v)
}

// ValidateMessage checks text after trimming; whitespace-only text counts as empty.
func ValidateMessage(text string) error {
	return get().Struct(Message{Message: strings.TrimSpace(text)})
}

// Describe turns a validator error into a short user-facing sentence.
func Describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid input"
	}

	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return "a valid email is required"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	default:
		return field + " is invalid"
	}
}
