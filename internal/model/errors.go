package model

import (
	"errors"
	"fmt"
)

var (
	ErrContentRejected    = errors.New("image does not appear to be a road")
	ErrValidation         = errors.New("validation failed")
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrNothingToRetry     = errors.New("no failed submission to retry")
	ErrReportNotFound     = errors.New("report not found")
	ErrInvalidStatus      = errors.New("invalid report status")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAddressNotFound    = errors.New("address not found")
)

// TransportError is returned when a call to an external service did not
// complete or returned a non-success status.
type TransportError struct {
	Service    string
	StatusCode int
	Detail     string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Service, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	default:
		return e.Service + ": request failed"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Validationf wraps ErrValidation with a reason.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
