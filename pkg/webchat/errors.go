package webchat

import (
	"fmt"
	"net/http"
)

// RequestError is a failure that occurred before any bytes were streamed to
// the caller; it maps onto an HTTP status and a stable machine-readable code.
type RequestError struct {
	Status int
	Code   string
	Msg    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func unauthorized() *RequestError {
	return &RequestError{Status: http.StatusUnauthorized, Code: "unauthorized:chat", Msg: "authentication required"}
}

func badRequest(msg string) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Code: "bad_request:api", Msg: msg}
}

func backendUnavailable() *RequestError {
	return &RequestError{Status: http.StatusServiceUnavailable, Code: "offline:api", Msg: "backend connection failed"}
}

func internalError() *RequestError {
	return &RequestError{Status: http.StatusInternalServerError, Code: "internal:api", Msg: "internal error"}
}
