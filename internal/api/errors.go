package api

import (
	"errors"
	"fmt"
)

// Error codes returned by the document service.
const (
	ErrPairingInvalid = "PAIRING_INVALID"
	ErrNotPaired      = "NOT_PAIRED"
	ErrRefreshFailed  = "REFRESH_FAILED"
	ErrUnauthorized   = "UNAUTHORIZED"
	ErrNotFound       = "NOT_FOUND"
	ErrAlreadyExists  = "ALREADY_EXISTS"
	ErrInternal       = "INTERNAL"
)

// Error is a structured error response from the service.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsAuthError reports whether err means the presented credential was
// rejected (as opposed to a transport failure). Auth errors are fatal for
// the session: the caller must fall back to pairing.
func IsAuthError(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case ErrUnauthorized, ErrRefreshFailed, ErrNotPaired:
		return true
	}
	return apiErr.HTTPStatus == 401 || apiErr.HTTPStatus == 403
}

// IsTransient reports whether err is a connectivity-level failure worth
// retrying on the next poll tick. Structured service errors are never
// transient: the server made a decision.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *Error
	return !errors.As(err, &apiErr)
}
