package server

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a failure the API reports to the caller as {"error": Message}.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func badRequest(msg string) *Error { return &Error{Status: http.StatusBadRequest, Message: msg} }
func notFound(msg string) *Error   { return &Error{Status: http.StatusNotFound, Message: msg} }
func conflict(msg string) *Error   { return &Error{Status: http.StatusConflict, Message: msg} }
func unprocessable(msg string) *Error {
	return &Error{Status: http.StatusUnprocessableEntity, Message: msg}
}

func internal(msg string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: msg, Err: err}
}

func badGateway(msg string, err error) *Error {
	return &Error{Status: http.StatusBadGateway, Message: msg, Err: err}
}

// statusOf maps err to the HTTP status and message sent to the client.
// Unclassified errors become a generic 500.
func statusOf(err error) (int, string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Status, e.Message
	}
	return http.StatusInternalServerError, "Internal server error"
}
