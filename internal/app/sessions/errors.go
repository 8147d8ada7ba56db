package sessions

import (
	"errors"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
)

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func invalid(field, reason string) error {
	return &Error{
		Status:  422,
		Code:    "VALIDATION_ERROR",
		Message: "invalid " + field,
		Details: map[string]any{field: reason},
	}
}

func validationError(err error) error {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return invalid(ve.Field, ve.Reason)
	}
	return err
}
