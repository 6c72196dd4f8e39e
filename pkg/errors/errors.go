package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown        ErrorCode = "UNKNOWN"
	ErrInternal       ErrorCode = "INTERNAL"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrAlreadyExists  ErrorCode = "ALREADY_EXISTS"
	ErrNotImplemented ErrorCode = "NOT_IMPLEMENTED"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"
	ErrConfigValid ErrorCode = "CONFIG_INVALID"

	// Security errors
	ErrUnsafeCommand ErrorCode = "UNSAFE_COMMAND"
	ErrUnsafePath    ErrorCode = "UNSAFE_PATH"

	// Operation errors
	ErrHookFailed     ErrorCode = "HOOK_FAILED"
	ErrScriptFailed   ErrorCode = "SCRIPT_FAILED"
	ErrPackageInstall ErrorCode = "PACKAGE_INSTALL"
	ErrGitOperation   ErrorCode = "GIT_OPERATION"
	ErrOperationAbort ErrorCode = "OPERATION_ABORT"
	ErrTimeout        ErrorCode = "TIMEOUT"
	ErrInterrupted    ErrorCode = "INTERRUPTED"

	// Rollback and backup errors
	ErrRollbackFailed  ErrorCode = "ROLLBACK_FAILED"
	ErrBackupCreate    ErrorCode = "BACKUP_CREATE"
	ErrBackupRestore   ErrorCode = "BACKUP_RESTORE"
	ErrBackupIntegrity ErrorCode = "BACKUP_INTEGRITY"

	// FileSystem errors
	ErrFileNotFound  ErrorCode = "FILE_NOT_FOUND"
	ErrFileAccess    ErrorCode = "FILE_ACCESS"
	ErrFileWrite     ErrorCode = "FILE_WRITE"
	ErrSymlinkCreate ErrorCode = "SYMLINK_CREATE"
	ErrDirCreate     ErrorCode = "DIR_CREATE"
)

// RigError represents a structured error with code and details
type RigError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *RigError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *RigError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *RigError) Is(target error) bool {
	var targetErr *RigError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new RigError with the given code and message
func New(code ErrorCode, message string) *RigError {
	return &RigError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new RigError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *RigError {
	return &RigError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a RigError
func Wrap(err error, code ErrorCode, message string) *RigError {
	if err == nil {
		return nil
	}
	return &RigError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *RigError {
	if err == nil {
		return nil
	}
	return &RigError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *RigError) WithDetail(key string, value interface{}) *RigError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var rigErr *RigError
	if errors.As(err, &rigErr) {
		return rigErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a RigError
func GetErrorCode(err error) ErrorCode {
	var rigErr *RigError
	if errors.As(err, &rigErr) {
		return rigErr.Code
	}
	return ErrUnknown
}

// ExitCode maps an error to the process exit code contract:
// 0 success, 1 general/operation error, 2 usage error, 3 configuration error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch GetErrorCode(err) {
	case ErrConfigLoad, ErrConfigParse, ErrConfigValid:
		return 3
	case ErrInvalidInput:
		return 2
	default:
		return 1
	}
}
