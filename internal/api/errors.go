package api

import (
	"errors"
	"net/http"
)

// Error types exposed to clients. Clients branch on these, so they never change.
const (
	TypeValidation          = "validation_error"
	TypeAuthentication      = "authentication_error"
	TypeInsufficientCredits = "insufficient_credits"
	TypeNotFound            = "not_found"
	TypeRateLimit           = "rate_limit_error"
	TypeAPI                 = "api_error"
	TypeServer              = "server_error"
)

type AppError struct {
	Code    int            `json:"-"`
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

// WithDetails returns a copy of e carrying extra fields for the error body.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

var (
	ErrBadRequest          = &AppError{Code: http.StatusBadRequest, Type: TypeValidation, Message: "bad request"}
	ErrValidation          = &AppError{Code: http.StatusBadRequest, Type: TypeValidation, Message: "validation error"}
	ErrInvalidWallet       = &AppError{Code: http.StatusBadRequest, Type: TypeValidation, Message: "invalid wallet address"}
	ErrUnauthorized        = &AppError{Code: http.StatusUnauthorized, Type: TypeAuthentication, Message: "missing or malformed authorization header"}
	ErrInvalidToken        = &AppError{Code: http.StatusUnauthorized, Type: TypeAuthentication, Message: "invalid or expired token"}
	ErrInvalidAPIKey       = &AppError{Code: http.StatusUnauthorized, Type: TypeAuthentication, Message: "invalid api key"}
	ErrInvalidSignature    = &AppError{Code: http.StatusUnauthorized, Type: TypeAuthentication, Message: "invalid signature"}
	ErrInsufficientCredits = &AppError{Code: http.StatusPaymentRequired, Type: TypeInsufficientCredits, Message: "insufficient credits"}
	ErrNotFound            = &AppError{Code: http.StatusNotFound, Type: TypeNotFound, Message: "not found"}
	ErrRateLimited         = &AppError{Code: http.StatusTooManyRequests, Type: TypeRateLimit, Message: "too many requests"}
	ErrInternalServer      = &AppError{Code: http.StatusInternalServerError, Type: TypeServer, Message: "internal server error"}
)

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Type: TypeValidation, Message: msg}
}

func NewNotFoundError(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Type: TypeNotFound, Message: msg}
}

// NewUpstreamError relays an upstream provider failure. A status outside 4xx/5xx becomes 502.
func NewUpstreamError(status int, msg string) *AppError {
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &AppError{Code: status, Type: TypeAPI, Message: msg}
}

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		JSONError(w, appErr)
		return
	}
	JSONError(w, ErrInternalServer)
}
