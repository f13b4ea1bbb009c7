package utils

import (
	"errors"
	"fmt"

	"github.com/dl-alexandre/savegem/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Another daemon instance already owns the socket
	ExitAlreadyRunning = 1
	// Auth errors (10-19)
	ExitAuthRequired = 10
	ExitAuthExpired  = 11
	// Remote store errors (20-29)
	ExitFileNotFound     = 20
	ExitPermissionDenied = 21
	ExitQuotaExceeded    = 22
	ExitGameConfig       = 23
	// Network errors (30-39)
	ExitNetworkError = 30
	ExitRateLimited  = 32
	// Validation errors (40-49)
	ExitInvalidArgument = 40
	ExitUnknownGame     = 41
	// Local state errors (50-59)
	ExitSavesMissing = 50
	ExitBusy         = 51
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthRequired      = "AUTH_REQUIRED"
	ErrCodeAuthExpired       = "AUTH_EXPIRED"
	ErrCodeAuthClientMissing = "AUTH_CLIENT_MISSING"
	ErrCodeFileNotFound      = "FILE_NOT_FOUND"
	ErrCodePermissionDenied  = "PERMISSION_DENIED"
	ErrCodeQuotaExceeded     = "QUOTA_EXCEEDED"
	ErrCodeNetworkError      = "NETWORK_ERROR"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeInvalidArgument   = "INVALID_ARGUMENT"
	ErrCodeUnknownGame       = "UNKNOWN_GAME"
	ErrCodeGameConfigFailed  = "GAME_CONFIG_FAILED"
	ErrCodeSavesMissing      = "SAVES_DIRECTORY_MISSING"
	ErrCodeDriveMetadata     = "DRIVE_METADATA_MISSING"
	ErrCodeTransferFailed    = "TRANSFER_FAILED"
	ErrCodeAlreadyRunning    = "ALREADY_RUNNING"
	ErrCodeBusy              = "BUSY"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeUnknown           = "UNKNOWN"
)

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError creates a new error builder
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithDriveReason(reason string) *CLIErrorBuilder {
	b.err.DriveReason = reason
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeAuthRequired:      ExitAuthRequired,
		ErrCodeAuthExpired:       ExitAuthExpired,
		ErrCodeAuthClientMissing: ExitAuthRequired,
		ErrCodeFileNotFound:      ExitFileNotFound,
		ErrCodePermissionDenied:  ExitPermissionDenied,
		ErrCodeQuotaExceeded:     ExitQuotaExceeded,
		ErrCodeNetworkError:      ExitNetworkError,
		ErrCodeRateLimited:       ExitRateLimited,
		ErrCodeInvalidArgument:   ExitInvalidArgument,
		ErrCodeUnknownGame:       ExitUnknownGame,
		ErrCodeGameConfigFailed:  ExitGameConfig,
		ErrCodeSavesMissing:      ExitSavesMissing,
		ErrCodeDriveMetadata:     ExitFileNotFound,
		ErrCodeTransferFailed:    ExitNetworkError,
		ErrCodeAlreadyRunning:    ExitAlreadyRunning,
		ErrCodeBusy:              ExitBusy,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
	cause    error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// NewAppError creates an AppError from a CLIError
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// WrapAppError creates an AppError that unwraps to cause
func WrapAppError(cliErr types.CLIError, cause error) *AppError {
	return &AppError{CLIError: cliErr, cause: cause}
}

// AsCLIError extracts the CLIError carried by err, falling back to a generic one
func AsCLIError(err error) types.CLIError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError
	}
	return NewCLIError(ErrCodeUnknown, err.Error()).Build()
}
