package domain

import "errors"

var (
	ErrValidation           = errors.New("validation error")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrCapacityExceeded     = errors.New("emergency contact limit reached")
	ErrDuplicateInteraction = errors.New("interaction already recorded for this report")
	ErrNoContactsConfigured = errors.New("no emergency contacts configured")
	ErrNoPhoneOnAccount     = errors.New("no phone number on account")
	ErrAllSendsFailed       = errors.New("all alert sends failed")
)
