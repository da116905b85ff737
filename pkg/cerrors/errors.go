package cerrors

import (
	"fmt"

	"github.com/palantir/stacktrace"
)

type ErrorType string

const (
	ErrorTypeNonUserFriendly  ErrorType = "NON_USER_FRIENDLY_ERROR"
	ErrorTypeGeneric          ErrorType = "GENERIC_ERROR"
	ErrorTypeInvalidScenario  ErrorType = "INVALID_SCENARIO_ERROR"
	ErrorTypeInvalidParameter ErrorType = "INVALID_PARAMETER_ERROR"
	ErrorTypeCapacityExceeded ErrorType = "CAPACITY_EXCEEDED_ERROR"
	ErrorTypeActionFailed     ErrorType = "ACTION_FAILED_ERROR"
	ErrorTypeAssertionFailed  ErrorType = "ASSERTION_FAILED_ERROR"
	ErrorTypeDeadlineExceeded ErrorType = "DEADLINE_EXCEEDED_ERROR"
	ErrorTypeCanceled         ErrorType = "CANCELED_ERROR"
	ErrorTypeRollbackPartial  ErrorType = "ROLLBACK_PARTIAL_ERROR"
	ErrorTypeRepositoryFailure ErrorType = "REPOSITORY_FAILURE_ERROR"
	ErrorTypeNotFound         ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeAlreadyFinished  ErrorType = "ALREADY_FINISHED_ERROR"
	ErrorTypeTimeout          ErrorType = "TIMEOUT_ERROR"
)

// Error is the typed error carried across the engine boundary. Phase names
// the execution stage that produced it, Target the service or assertion kind.
type Error struct {
	ErrorCode ErrorType
	Phase     string
	Target    string
	Reason    string
	Retryable bool
}

func (e Error) Error() string {
	switch {
	case e.Phase == "" && e.Target == "":
		return e.Reason
	case e.Phase == "":
		return fmt.Sprintf("{target: '%s', reason: %s}", e.Target, e.Reason)
	case e.Target == "":
		return fmt.Sprintf("[%s]: %s", e.Phase, e.Reason)
	}
	return fmt.Sprintf("[%s]: {target: '%s', reason: %s}", e.Phase, e.Target, e.Reason)
}

func (e Error) UserFriendly() bool {
	return true
}

func (e Error) ErrorType() ErrorType {
	return e.ErrorCode
}

type userFriendly interface {
	UserFriendly() bool
	ErrorType() ErrorType
}

// IsUserFriendly returns true if err is marked as safe to surface in records
func IsUserFriendly(err error) bool {
	ufe, ok := err.(userFriendly)
	return ok && ufe.UserFriendly()
}

// GetErrorType returns the type of error if the error is user-friendly
func GetErrorType(err error) ErrorType {
	if ufe, ok := err.(userFriendly); ok {
		return ufe.ErrorType()
	}
	return ErrorTypeNonUserFriendly
}

// IsRetryable reports whether the root cause is a retryable driver failure
func IsRetryable(err error) bool {
	if cerr, ok := stacktrace.RootCause(err).(Error); ok {
		return cerr.Retryable
	}
	return false
}

func GetRootCauseAndErrorCode(err error, phase string) (string, ErrorType) {
	rootCause := stacktrace.RootCause(err)
	errorType := GetErrorType(rootCause)
	if !IsUserFriendly(rootCause) {
		return err.Error(), errorType
	}
	if cerr, ok := rootCause.(Error); ok && cerr.Phase == "" {
		cerr.Phase = phase
		return cerr.Error(), errorType
	}
	return rootCause.Error(), errorType
}
