// Package validation checks interaction events before they reach the ledger,
// using go-playground/validator struct tags declared on the model types.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"reelrank/internal/model"
)

// ErrInvalidEvent is the error kind for malformed interaction events.
var ErrInvalidEvent = errors.New("invalid interaction event")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError describes one failed constraint.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// EventError aggregates the field failures of one event. It unwraps to ErrInvalidEvent.
type EventError struct {
	Fields []FieldError
}

func (e *EventError) Error() string {
	if len(e.Fields) == 0 {
		return ErrInvalidEvent.Error()
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return ErrInvalidEvent.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *EventError) Unwrap() error { return ErrInvalidEvent }

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
		_ = validate.RegisterValidation("nocontrol", func(fl validator.FieldLevel) bool {
			return !strings.ContainsFunc(fl.Field().String(), unicode.IsControl)
		})
	})
	return validate
}

// ValidateEvent returns nil or an *EventError.
func ValidateEvent(ev model.InteractionEvent) error {
	err := Validator().Struct(ev)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &EventError{Fields: []FieldError{{Field: "event", Tag: "unknown", Message: err.Error()}}}
	}
	out := &EventError{Fields: make([]FieldError, len(verrs))}
	for i, fe := range verrs {
		out.Fields[i] = FieldError{Field: fe.Field(), Tag: fe.Tag(), Message: translate(fe)}
	}
	return out
}

func translate(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "nocontrol":
		return fmt.Sprintf("%s must not contain control characters", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
