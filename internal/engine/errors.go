package engine

import (
	"errors"
	"fmt"
)

// RunError describes why a rule, or a whole run, was aborted.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// RuleID identifies the affected rule, if any.
	RuleID string

	// Err is the underlying cause, if any.
	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeConfigInvalid indicates the rule cannot run as written.
	ErrCodeConfigInvalid RunErrorCode = "CONFIG_INVALID"

	// ErrCodeTranslationCritical indicates a condition could not be
	// translated faithfully.
	ErrCodeTranslationCritical RunErrorCode = "TRANSLATION_CRITICAL"

	// ErrCodeSearchFailed indicates the remote search call failed.
	ErrCodeSearchFailed RunErrorCode = "SEARCH_FAILED"

	// ErrCodeServicesUnavailable indicates the service catalog could not
	// be loaded.
	ErrCodeServicesUnavailable RunErrorCode = "SERVICES_UNAVAILABLE"

	// ErrCodePersistence indicates a database failure. It aborts the run.
	ErrCodePersistence RunErrorCode = "PERSISTENCE"

	// ErrCodeRelocationUnsafe indicates a relocation was refused before
	// any remote call.
	ErrCodeRelocationUnsafe RunErrorCode = "RELOCATION_UNSAFE"

	// ErrCodeVersioning indicates the rule could not be hashed.
	ErrCodeVersioning RunErrorCode = "VERSIONING"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RuleID != "" {
		msg = fmt.Sprintf("%s (rule=%s)", msg, e.RuleID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error { return e.Err }

// IsPersistenceError reports whether err is a persistence RunError.
// Uses errors.As to handle wrapped errors.
func IsPersistenceError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodePersistence
	}
	return false
}

// IsAbort reports whether err is any RunError.
func IsAbort(err error) bool {
	var re *RunError
	return errors.As(err, &re)
}

func newRunError(code RunErrorCode, ruleID string, err error, format string, args ...any) *RunError {
	return &RunError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		RuleID:  ruleID,
		Err:     err,
	}
}

func persistenceError(ruleID string, err error) *RunError {
	return newRunError(ErrCodePersistence, ruleID, err, "database write failed")
}
