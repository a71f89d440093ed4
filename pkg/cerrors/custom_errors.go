package cerrors

import "github.com/palantir/stacktrace"

type ErrorType string

const (
	ErrorTypeNonUserFriendly ErrorType = "NON_USER_FRIENDLY_ERROR"
	ErrorTypeGeneric         ErrorType = "GENERIC_ERROR"
	ErrorTypeTargetSelection ErrorType = "TARGET_SELECTION_ERROR"
	ErrorTypeFaultInjection  ErrorType = "FAULT_INJECTION_ERROR"
	ErrorTypeMetricsQuery    ErrorType = "METRICS_QUERY_ERROR"
	ErrorTypeRecovery        ErrorType = "RECOVERY_ERROR"
	ErrorTypeConfiguration   ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeExperimentCRUD  ErrorType = "EXPERIMENT_CRUD_ERROR"
)

type userFriendly interface {
	UserFriendly() bool
	ErrorType() ErrorType
}

// IsUserFriendly returns true if err is marked as safe to present to callers
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

// GetRootCauseAndErrorCode unwraps a stacktrace-propagated error down to its
// root cause and reports the cause's type alongside a presentable message
func GetRootCauseAndErrorCode(err error) (string, ErrorType) {
	rootCause := stacktrace.RootCause(err)
	errorType := GetErrorType(rootCause)
	if !IsUserFriendly(rootCause) {
		return err.Error(), errorType
	}
	return rootCause.Error(), errorType
}

// IsNotFound reports whether err resolves to an unknown target or an
// unknown experiment definition
func IsNotFound(err error) bool {
	cause := stacktrace.RootCause(err)
	switch c := cause.(type) {
	case TargetSelection:
		return c.NotFound
	case ExperimentCRUD:
		return c.NotFound
	}
	return false
}

// IsConfiguration reports whether err resolves to a rejected definition or
// an ambiguous target name
func IsConfiguration(err error) bool {
	cause := stacktrace.RootCause(err)
	switch c := cause.(type) {
	case Configuration:
		return true
	case TargetSelection:
		return c.Ambiguous
	}
	return false
}
