package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// NetworkError is returned when the server could not be reached or the
// request timed out.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	if e == nil || e.Err == nil {
		return "network error"
	}
	return fmt.Sprintf("network error: %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ServerError is returned when the API answers with a non-2xx status,
// a non-success envelope code or a body that cannot be decoded.
type ServerError struct {
	StatusCode int
	Status     string
	Endpoint   string
	Body       string
	Code       int
	Message    string
	Err        error
}

func (e *ServerError) Error() string {
	if e == nil {
		return "server error"
	}
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("code %d", e.Code)
	}
	detail := e.Message
	if detail == "" {
		detail = e.Body
	}
	if detail == "" {
		return "server error: " + status
	}
	return fmt.Sprintf("server error: %s: %s", status, detail)
}

func (e *ServerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsUnauthorized reports whether the server rejected the bearer token.
func IsUnauthorized(err error) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.StatusCode == http.StatusUnauthorized || serverErr.Code == http.StatusUnauthorized
	}
	return false
}

// Message renders err as a single line suitable for the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var networkErr *NetworkError
	if errors.As(err, &networkErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return "The server took too long to respond, please try again"
		}
		return "Cannot connect to the server, please check your network connection"
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		if serverErr.Message != "" {
			return serverErr.Message
		}
		if serverErr.StatusCode == http.StatusUnauthorized {
			return "Your session has expired, please log in again"
		}
		if serverErr.Status != "" {
			return "Server error: " + serverErr.Status
		}
		return "Server error"
	}
	return err.Error()
}
