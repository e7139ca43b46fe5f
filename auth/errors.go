package auth

import (
	"errors"
	"strings"
)

// ErrBusy is returned when a login or registration is submitted while
// another one is still running.
var ErrBusy = errors.New("another sign-in request is already in progress")

// ValidationError reports missing input, detected before any network
// or storage call.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "please fill in all required fields"
	}
	return "please fill in: " + strings.Join(e.Fields, ", ")
}

// AuthPersistenceError is returned when credentials could not be saved.
// The in-memory session is left untouched.
type AuthPersistenceError struct {
	Err error
}

func (e *AuthPersistenceError) Error() string {
	if e == nil || e.Err == nil {
		return "could not save session"
	}
	return "could not save session: " + e.Err.Error()
}

func (e *AuthPersistenceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RegistrationError is returned when the server refused the account or
// could not be reached.
type RegistrationError struct {
	Message string
	Err     error
}

func (e *RegistrationError) Error() string {
	if e == nil {
		return "registration failed"
	}
	if e.Message == "" {
		return "registration failed"
	}
	return "registration failed: " + e.Message
}

func (e *RegistrationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
