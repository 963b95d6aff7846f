package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness. Details carries
// structured, user-renderable context such as itemized eligibility reasons.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Status  int         `json:"status"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
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
	ErrRateLimited        = New("RATE_LIMITED", http.StatusTooManyRequests, "too many requests")
)

// Application workflow errors. These are user-correctable precondition
// violations returned synchronously and never retried automatically.
var (
	ErrNotEligible          = New("NOT_ELIGIBLE", http.StatusUnprocessableEntity, "student does not meet the eligibility criteria")
	ErrProfileUnverified    = New("PROFILE_UNVERIFIED", http.StatusPreconditionFailed, "student profile is not verified")
	ErrResumeMissing        = New("RESUME_MISSING", http.StatusPreconditionFailed, "no active resume on file")
	ErrDeadlinePassed       = New("DEADLINE_PASSED", http.StatusPreconditionFailed, "application deadline has passed")
	ErrDuplicateApplication = New("DUPLICATE_APPLICATION", http.StatusConflict, "an application for this job already exists")
	ErrQuotaExceeded        = New("QUOTA_EXCEEDED", http.StatusPreconditionFailed, "semester application quota exceeded")
	ErrInvalidTransition    = New("INVALID_TRANSITION", http.StatusConflict, "application is not in a reviewable state")
	ErrPriorStageIncomplete = New("PRIOR_STAGE_INCOMPLETE", http.StatusPreconditionFailed, "application is not awaiting administrative review")
	ErrWithdrawalNotAllowed = New("WITHDRAWAL_NOT_ALLOWED", http.StatusPreconditionFailed, "application can no longer be withdrawn")
)

// Consent ledger errors.
var (
	ErrConsentRevoked  = New("CONSENT_REVOKED", http.StatusForbidden, "data-sharing consent has been revoked")
	ErrConsentNotFound = New("CONSENT_NOT_FOUND", http.StatusNotFound, "no consent covers the requested scope")
	ErrAlreadyRevoked  = New("ALREADY_REVOKED", http.StatusConflict, "consent is already revoked")
)

// Dual-control workflow errors.
var (
	ErrSelfApprovalForbidden = New("SELF_APPROVAL_FORBIDDEN", http.StatusForbidden, "initiator cannot decide their own request")
	ErrRequestNotPending     = New("REQUEST_NOT_PENDING", http.StatusConflict, "approval request has already been decided")
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

// WithDetails returns a copy of the error carrying structured details.
func WithDetails(err *Error, details interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = details
	return &clone
}
