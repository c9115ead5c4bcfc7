package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an AppError so callers can branch without string matching.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindAuth        Kind = "auth"
	KindAuthz       Kind = "authz"
	KindConfig      Kind = "config"
	KindUpstream    Kind = "upstream"
	KindPersistence Kind = "persistence"
	KindNotFound    Kind = "not_found"
	KindRateLimit   Kind = "rate_limit"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Kind           Kind   `json:"-"`
	Code           string `json:"code"`
	Message        string `json:"message"`
	StatusCode     int    `json:"-"`
	Service        string `json:"service,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	Internal       error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches AppErrors by code so copies made with WithInternal still satisfy errors.Is.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Common errors exposed to the rest of the application.
var (
	ErrUnauthorized = &AppError{
		Kind:       KindAuth,
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInvalidCredentials = &AppError{
		Kind:       KindAuth,
		Code:       "INVALID_CREDENTIALS",
		Message:    "Invalid credentials",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Kind:       KindAuthz,
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Kind:       KindNotFound,
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Kind:       KindValidation,
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrServiceNotConfigured = &AppError{
		Kind:       KindConfig,
		Code:       "SERVICE_NOT_CONFIGURED",
		Message:    "Service not configured",
		StatusCode: http.StatusBadRequest,
	}

	ErrUpstreamFailed = &AppError{
		Kind:       KindUpstream,
		Code:       "UPSTREAM_FAILED",
		Message:    "Upstream request failed",
		StatusCode: http.StatusBadGateway,
	}

	ErrUpstreamTimeout = &AppError{
		Kind:       KindUpstream,
		Code:       "UPSTREAM_TIMEOUT",
		Message:    "Upstream request timed out",
		StatusCode: http.StatusGatewayTimeout,
	}

	ErrInternalServer = &AppError{
		Kind:       KindPersistence,
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrRateLimit = &AppError{
		Kind:       KindRateLimit,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}
)

// New builds a new application error with the provided metadata.
func New(kind Kind, code, message string, statusCode int) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Kind:       KindPersistence,
		Code:       ErrInternalServer.Code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// KindOf reports the kind of err, or KindPersistence for anything that is not an AppError.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return FromError(err).Kind
}

// NewValidation wraps validation errors with a helpful message.
func NewValidation(message string) *AppError {
	return &AppError{
		Kind:       KindValidation,
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}

// NewBadRequest is kept as an alias of NewValidation for handler readability.
func NewBadRequest(message string) *AppError {
	return NewValidation(message)
}

// NewConfig reports that the named upstream service has no usable credential.
func NewConfig(service string) *AppError {
	cpy := *ErrServiceNotConfigured
	cpy.Service = service
	cpy.Message = fmt.Sprintf("API key not configured for %s", service)
	return &cpy
}

// NewUpstream reports a failed upstream call. status is zero for transport failures.
func NewUpstream(service string, status int, internal error) *AppError {
	cpy := *ErrUpstreamFailed
	cpy.Service = service
	cpy.UpstreamStatus = status
	cpy.Internal = internal
	if status > 0 {
		cpy.Message = fmt.Sprintf("%s returned HTTP %d", service, status)
	} else {
		cpy.Message = fmt.Sprintf("%s request failed", service)
	}
	return &cpy
}

// NewPersistence hides a storage failure behind a generic 500.
func NewPersistence(internal error) *AppError {
	return ErrInternalServer.WithInternal(internal)
}

// NewUpstreamTimeout reports an upstream call that exceeded its deadline.
func NewUpstreamTimeout(service string, internal error) *AppError {
	cpy := *ErrUpstreamTimeout
	cpy.Service = service
	cpy.Internal = internal
	cpy.Message = fmt.Sprintf("%s request timed out", service)
	return &cpy
}
