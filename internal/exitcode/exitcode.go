package exitcode

import (
	"context"
	"errors"
	"os"
	"strings"

	rerrors "github.com/felixgeelhaar/rman/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition, including failed tasks
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// NoWorkspace indicates no workspace root could be located
	NoWorkspace = 3

	// ConfigError indicates an unreadable configuration file or manifest
	ConfigError = 4

	// Cancelled indicates the run was interrupted by a signal
	Cancelled = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if errors.Is(err, context.Canceled) {
		return Cancelled
	}

	switch rerrors.Code(err) {
	case rerrors.ErrCodeNoWorkspace:
		return NoWorkspace
	case rerrors.ErrCodeConfigInvalid, rerrors.ErrCodeManifestInvalid:
		return ConfigError
	case rerrors.ErrCodeInvalidBump, rerrors.ErrCodeUsage:
		return UsageError
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "invalid flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown shorthand flag") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts") && strings.Contains(errMsg, "arg(s)") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case NoWorkspace:
		return "No workspace found"
	case ConfigError:
		return "Invalid configuration"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown error"
	}
}
