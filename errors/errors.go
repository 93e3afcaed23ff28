package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/dropwing/dropwing-go/logger"
)

type ErrorType string

const (
	TransportError  ErrorType = "TRANSPORT_ERROR"
	ValidationError ErrorType = "VALIDATION_ERROR"
	AuthError       ErrorType = "AUTHENTICATION_ERROR"
	RequestError    ErrorType = "REQUEST_FAILED"
	PayloadError    ErrorType = "MALFORMED_PAYLOAD"
	NotFoundError   ErrorType = "NOT_FOUND"
	ConflictError   ErrorType = "CONFLICT"
	ServerError     ErrorType = "SERVER_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Raw        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Raw
}

// New creates a new AppError
func New(errType ErrorType, message string, detail string) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     detail,
		HTTPStatus: getHTTPStatus(errType),
	}
}

// Wrap wraps a raw error with AppError context
func Wrap(err error, errType ErrorType, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:       errType,
		Message:    message,
		Detail:     err.Error(),
		HTTPStatus: getHTTPStatus(errType),
		Raw:        err,
	}
}

// IsType reports whether err is (or wraps) an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// Helper functions for common errors

func ConnectionFailed(detail string, err error) *AppError {
	return &AppError{
		Type:       TransportError,
		Message:    "Realtime connection failed",
		Detail:     detail,
		HTTPStatus: http.StatusServiceUnavailable,
		Raw:        err,
	}
}

func ValidationFailed(message string, details string) *AppError {
	return &AppError{
		Type:       ValidationError,
		Message:    message,
		Detail:     details,
		HTTPStatus: http.StatusBadRequest,
	}
}

func AuthenticationFailed(message string) *AppError {
	return &AppError{
		Type:       AuthError,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func NotFound(entity string, id interface{}) *AppError {
	return &AppError{
		Type:       NotFoundError,
		Message:    fmt.Sprintf("%s not found", entity),
		Detail:     fmt.Sprintf("ID: %v", id),
		HTTPStatus: http.StatusNotFound,
	}
}

// RequestFailed captures a non-2xx response from the notification API.
// The original server message is logged but the returned error carries a
// sanitized detail suitable for surfacing to the user.
func RequestFailed(operation string, status int, serverMessage string) *AppError {
	if serverMessage != "" {
		logger.GetLogger().Warnw("API request failed",
			"operation", operation,
			"status", status,
			"serverMessage", serverMessage)
	}
	return &AppError{
		Type:       RequestError,
		Code:       fmt.Sprintf("http_%d", status),
		Message:    fmt.Sprintf("%s failed", operation),
		Detail:     serverMessage,
		HTTPStatus: status,
	}
}

func MalformedPayload(what string, err error) *AppError {
	return &AppError{
		Type:       PayloadError,
		Message:    fmt.Sprintf("Malformed %s", what),
		Detail:     errDetail(err),
		HTTPStatus: http.StatusBadRequest,
		Raw:        err,
	}
}

func InternalServerError(message string) *AppError {
	return &AppError{
		Type:       ServerError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func getHTTPStatus(errType ErrorType) int {
	switch errType {
	case ValidationError:
		return http.StatusBadRequest
	case NotFoundError:
		return http.StatusNotFound
	case AuthError:
		return http.StatusUnauthorized
	case TransportError:
		return http.StatusServiceUnavailable
	case PayloadError:
		return http.StatusBadRequest
	case ConflictError:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
