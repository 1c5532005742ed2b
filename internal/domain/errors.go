package domain

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes core errors.
type ErrorCode string

const (
	// ErrCodeSchemaProbe indicates a schema inspection query failed.
	// Fatal for the run that issued it.
	ErrCodeSchemaProbe ErrorCode = "SCHEMA_PROBE_FAILED"

	// ErrCodeCardinality indicates an insert would exceed the per-parent association limit.
	ErrCodeCardinality ErrorCode = "CARDINALITY_VIOLATION"

	// ErrCodeUniqueness indicates an insert would duplicate an existing (parent, child) pair.
	ErrCodeUniqueness ErrorCode = "UNIQUENESS_VIOLATION"

	// ErrCodeTransactionAborted indicates a multi-step transactional run was rolled back.
	ErrCodeTransactionAborted ErrorCode = "TRANSACTION_ABORTED"

	// ErrCodeIdempotency indicates an invariant the consolidator relies on was found false.
	ErrCodeIdempotency ErrorCode = "IDEMPOTENCY_VIOLATION"

	// ErrCodeInvalidParticipants indicates a participant set is empty, blank, or disallowed.
	ErrCodeInvalidParticipants ErrorCode = "INVALID_PARTICIPANTS"

	// ErrCodeNotFound indicates a referenced row does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Error is the typed error returned by core operations.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Step names the migration step or operation that failed, if any.
	Step string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Step != "" {
		msg = fmt.Sprintf("%s: %s", e.Step, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// HasCode walks every *Error in err's chain, so a probe failure stays
// detectable after the controller wraps it in a transaction abort.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the code of the outermost *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsProbeFailure returns true if err is or wraps a schema probe failure.
func IsProbeFailure(err error) bool { return HasCode(err, ErrCodeSchemaProbe) }

// IsCardinalityViolation returns true if err is or wraps a cardinality violation.
func IsCardinalityViolation(err error) bool { return HasCode(err, ErrCodeCardinality) }

// IsUniquenessViolation returns true if err is or wraps a uniqueness violation.
func IsUniquenessViolation(err error) bool { return HasCode(err, ErrCodeUniqueness) }

// IsConstraintViolation returns true for both cardinality and uniqueness violations.
func IsConstraintViolation(err error) bool {
	return IsCardinalityViolation(err) || IsUniquenessViolation(err)
}

// IsTransactionAbort returns true if err is or wraps a rolled-back run.
func IsTransactionAbort(err error) bool { return HasCode(err, ErrCodeTransactionAborted) }

// IsIdempotencyViolation returns true if err is or wraps an idempotency violation.
func IsIdempotencyViolation(err error) bool { return HasCode(err, ErrCodeIdempotency) }

// IsInvalidParticipants returns true if err is or wraps an invalid participant set.
func IsInvalidParticipants(err error) bool { return HasCode(err, ErrCodeInvalidParticipants) }

// IsNotFound returns true if err is or wraps a missing-row error.
func IsNotFound(err error) bool { return HasCode(err, ErrCodeNotFound) }

// NewProbeError wraps a failed schema inspection query.
func NewProbeError(what string, err error) *Error {
	return &Error{
		Code:    ErrCodeSchemaProbe,
		Message: fmt.Sprintf("probe %s", what),
		Err:     err,
	}
}

// NewCardinalityError reports that parentID already holds limit associations.
func NewCardinalityError(parentID string, count, limit int) *Error {
	return &Error{
		Code:    ErrCodeCardinality,
		Message: fmt.Sprintf("tag limit reached for post %s (%d >= %d)", parentID, count, limit),
	}
}

// NewUniquenessError reports a duplicate (parent, child) association.
func NewUniquenessError(parentID, childID string, cause error) *Error {
	return &Error{
		Code:    ErrCodeUniqueness,
		Message: fmt.Sprintf("tag %s already attached to post %s", childID, parentID),
		Err:     cause,
	}
}

// NewAbortError reports that a transactional run failed at step and was rolled back.
func NewAbortError(step string, cause error) *Error {
	return &Error{
		Code:    ErrCodeTransactionAborted,
		Step:    step,
		Message: "transaction rolled back",
		Err:     cause,
	}
}

// NewIdempotencyError reports a broken consolidation invariant.
func NewIdempotencyError(step, message string) *Error {
	return &Error{
		Code:    ErrCodeIdempotency,
		Step:    step,
		Message: message,
	}
}

// NewInvalidParticipantsError reports a rejected participant set.
func NewInvalidParticipantsError(message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidParticipants,
		Message: message,
	}
}

// NewNotFoundError reports a missing row of the given kind.
func NewNotFoundError(kind, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %s not found", kind, id),
	}
}
