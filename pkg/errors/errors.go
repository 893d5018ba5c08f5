// Package errors defines the application error type rendered by the
// HTTP layer and matched by callers through sentinel errors.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/malipo/malipo-backend/pkg/i18n"
)

// Sentinels for errors.Is matching. Every constructor below attaches
// one, so a caller never needs the concrete *AppError type to branch
// on the failure kind.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("resource conflict")
	ErrInternal     = errors.New("internal server error")
	ErrValidation   = errors.New("validation error")
	ErrTransient    = errors.New("transient store error")
	ErrInvariant    = errors.New("computation invariant violated")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// AppError carries what the HTTP layer needs to render a failure: a
// stable machine code, the status, a developer message, and optionally
// an i18n key plus interpolation params for the client-facing text.
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	MessageKey string            `json:"-"`
	Params     map[string]string `json:"-"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Localize resolves the client-facing message in the locale carried by
// ctx. Errors without a message key fall back to the developer message.
func (e *AppError) Localize(ctx context.Context) string {
	if e.MessageKey == "" {
		return e.Message
	}
	return i18n.TFromContext(ctx, e.MessageKey, e.Params)
}

// WithErr attaches a cause, usually one of the sentinels above, so
// callers can match with errors.Is.
func (e *AppError) WithErr(err error) *AppError {
	e.Err = err
	return e
}

// WithDetails attaches per-field details rendered alongside the message.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// NewWithKey builds an error from a domain i18n key. Unlike the
// constructors below it attaches no sentinel; chain WithErr when
// callers need to match the kind.
func NewWithKey(code string, messageKey string, statusCode int, params ...map[string]string) *AppError {
	var p map[string]string
	if len(params) > 0 {
		p = params[0]
	}
	return &AppError{
		Code:       code,
		Message:    i18n.T(messageKey, p),
		MessageKey: messageKey,
		Params:     p,
		StatusCode: statusCode,
	}
}

func newError(sentinel error, code, messageKey string, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Code:       code,
		Message:    message,
		MessageKey: messageKey,
		StatusCode: statusCode,
	}
}

// NotFound reports a missing resource; the name is interpolated into
// the localized message.
func NotFound(resource string) *AppError {
	e := newError(ErrNotFound, "NOT_FOUND", "errors.not_found", http.StatusNotFound, resource+" not found")
	e.Params = map[string]string{"resource": resource}
	return e
}

func Unauthorized(message string) *AppError {
	return newError(ErrUnauthorized, "UNAUTHORIZED", "errors.unauthorized", http.StatusUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return newError(ErrForbidden, "FORBIDDEN", "errors.forbidden", http.StatusForbidden, message)
}

func BadRequest(message string) *AppError {
	return newError(ErrBadRequest, "BAD_REQUEST", "errors.bad_request", http.StatusBadRequest, message)
}

func Conflict(message string) *AppError {
	return newError(ErrConflict, "CONFLICT", "errors.conflict", http.StatusConflict, message)
}

func Internal(message string) *AppError {
	return newError(ErrInternal, "INTERNAL_ERROR", "errors.internal", http.StatusInternalServerError, message)
}

// Validation reports client input that failed validation, with one
// detail entry per offending field.
func Validation(details map[string]string) *AppError {
	e := newError(ErrValidation, "VALIDATION_ERROR", "errors.validation_failed", http.StatusBadRequest, "validation failed")
	e.Details = details
	return e
}

// Transient marks a store or broker failure the caller may safely
// retry. The cause is joined in for logging; the payload stays generic.
func Transient(err error) *AppError {
	e := newError(ErrTransient, "TRANSIENT_STORE_ERROR", "errors.transient", http.StatusServiceUnavailable, "temporary storage failure, retry later")
	e.Err = errors.Join(ErrTransient, err)
	return e
}

// Invariant signals corrupted upstream data detected during computation
// (negative salary, malformed assignment). The whole operation must abort.
func Invariant(message string) *AppError {
	return newError(ErrInvariant, "COMPUTATION_INVARIANT", "errors.invariant", http.StatusUnprocessableEntity, message)
}

func TokenExpired() *AppError {
	return newError(ErrTokenExpired, "TOKEN_EXPIRED", "errors.token_expired", http.StatusUnauthorized, "token has expired")
}

func TokenInvalid() *AppError {
	return newError(ErrTokenInvalid, "TOKEN_INVALID", "errors.token_invalid", http.StatusUnauthorized, "invalid token")
}

// Is reports whether err matches target, unwrapping as needed.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target's type.
func As(err error, target any) bool {
	return errors.As(err, target)
}
