package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is deliberately generic so callers cannot tell
	// whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("incorrect email or password")
	// ErrInvalidOrExpiredToken covers reset and verification tokens that do
	// not match any live record.
	ErrInvalidOrExpiredToken = errors.New("token is invalid or has expired")
	// ErrNoSuchUser is returned when an email lookup finds nobody.
	ErrNoSuchUser = errors.New("there is no user with that email address")
	// ErrEmailTaken is returned when signup or profile update hits the email
	// uniqueness constraint.
	ErrEmailTaken = errors.New("email address already registered")
	// ErrUnauthenticated covers missing, malformed, and expired session tokens.
	ErrUnauthenticated = errors.New("you are not logged in")
	// ErrStaleToken is returned for session tokens issued before the last
	// password change.
	ErrStaleToken = errors.New("password was changed after this token was issued")
	// ErrEmailDelivery signals that a token email could not be dispatched; any
	// token fields written for it have been rolled back.
	ErrEmailDelivery = errors.New("there was an error sending the email, try again later")
	// ErrInsufficientBalance fails a transfer that would overdraw the sender.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// ValidationError reports bad input shape or constraint violations.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalidInput(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
