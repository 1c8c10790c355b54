package generate

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrMissingRequiredField ErrorKind = "missing-required-field"
	ErrUnsupportedValue     ErrorKind = "unsupported-value"
)

// Error reports why a record could not be turned into a document.
type Error struct {
	Kind      ErrorKind
	MonitorID string
	Field     string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("generate %s: %s %q", e.MonitorID, e.Kind, e.Field)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind carried by err, or "".
func KindOf(err error) ErrorKind {
	var gErr *Error
	if errors.As(err, &gErr) {
		return gErr.Kind
	}
	return ""
}

func missing(id, field string) error {
	return &Error{Kind: ErrMissingRequiredField, MonitorID: id, Field: field}
}
