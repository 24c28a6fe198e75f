package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation           = "validation_error"
	CodeUnauthorized         = "unauthorized"
	CodeForbidden            = "forbidden"
	CodeNotFound             = "not_found"
	CodeCapacityExceeded     = "capacity_exceeded"
	CodeDuplicateInteraction = "duplicate_interaction"
	CodeNoContacts           = "no_contacts_configured"
	CodeNoPhone              = "no_phone_on_account"
	CodeAllSendsFailed       = "all_sends_failed"
	CodeRateLimited          = "rate_limited"
	CodeDispatchInProgress   = "dispatch_in_progress"
	CodeInternal             = "internal"
)

type Error struct {
	Status    int
	Code      string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func NewRetryable(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err, Retryable: true}
}

func Validation(format string, args ...any) *Error {
	return New(http.StatusBadRequest, CodeValidation, fmt.Errorf(format, args...))
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae, true
	}
	return nil, false
}
