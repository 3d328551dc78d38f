package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Status  int      `json:"status"`
	Details []string `json:"details,omitempty"`
	Err     error    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so cloned errors compare equal to their template.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrUpstream           = New("UPSTREAM_FAILURE", http.StatusBadGateway, "object storage unavailable")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Admission workflow errors. Each carries the reason a mutation was refused.
var (
	ErrApplicationNotFound  = New("APPLICATION_NOT_FOUND", http.StatusNotFound, "application not found")
	ErrProcessNotFound      = New("PROCESS_NOT_FOUND", http.StatusNotFound, "selection process not found")
	ErrDuplicateApplication = New("DUPLICATE_APPLICATION", http.StatusConflict, "user already applied to this selection process")
	ErrDocumentUploaded     = New("DOCUMENT_ALREADY_UPLOADED", http.StatusConflict, "document already uploaded for this application")
	ErrProcessInactive      = New("PROCESS_INACTIVE", http.StatusPreconditionFailed, "selection process is not active")
	ErrWindowClosed         = New("SUBMISSION_WINDOW_CLOSED", http.StatusPreconditionFailed, "submission window is closed")
	ErrWindowOpen           = New("SUBMISSION_WINDOW_OPEN", http.StatusPreconditionFailed, "submission window is still open")
	ErrStepNotFinalized     = New("STEP_NOT_FINALIZED", http.StatusPreconditionFailed, "a prior step has not been finalized")
	ErrMissingDocuments     = New("MISSING_MANDATORY_DOCUMENTS", http.StatusPreconditionFailed, "mandatory documents are missing")
	ErrDocumentsPending     = New("DOCUMENTS_PENDING_ANALYSIS", http.StatusPreconditionFailed, "not all documents have been analyzed")
	ErrApplicationNotFilled = New("APPLICATION_NOT_FILLED", http.StatusPreconditionFailed, "application has not been filled")
	ErrApplicationReviewed  = New("APPLICATION_REVIEWED", http.StatusPreconditionFailed, "application has already been reviewed")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of the error carrying the provided detail lines.
func WithDetails(err *Error, message string, details []string) *Error {
	clone := Clone(err, message)
	if clone == nil {
		return nil
	}
	clone.Details = append([]string(nil), details...)
	return clone
}
