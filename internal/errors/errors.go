package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Workspace errors (WORKSPACE-001 to WORKSPACE-099)
	ErrCodeNoWorkspace     ErrorCode = "WORKSPACE-001"
	ErrCodeManifestInvalid ErrorCode = "WORKSPACE-002"
	ErrCodePackageUnknown  ErrorCode = "WORKSPACE-003"

	// Script errors (SCRIPT-001 to SCRIPT-099)
	ErrCodeScriptNotFound ErrorCode = "SCRIPT-001"

	// Execution errors (EXEC-001 to EXEC-099)
	ErrCodeCommandExecution ErrorCode = "EXEC-001"

	// Task errors (TASK-001 to TASK-099)
	ErrCodeDependencyFailed ErrorCode = "TASK-001"
	ErrCodeTasksFailed      ErrorCode = "TASK-002"
	ErrCodeTaskPanic        ErrorCode = "TASK-003"

	// Registry errors (REGISTRY-001 to REGISTRY-099)
	ErrCodePackageNotFound ErrorCode = "REGISTRY-001"
	ErrCodeRegistryQuery   ErrorCode = "REGISTRY-002"

	// Config errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"

	// Git errors (GIT-001 to GIT-099)
	ErrCodeGit ErrorCode = "GIT-001"

	// Version errors (VERSION-001 to VERSION-099)
	ErrCodeInvalidBump   ErrorCode = "VERSION-001"
	ErrCodeDirtyPackages ErrorCode = "VERSION-002"

	// CLI errors (CLI-001 to CLI-099)
	ErrCodeUsage ErrorCode = "CLI-001"
)

// RmanError represents an error with a code and optional suggestions
type RmanError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *RmanError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *RmanError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an RmanError with the same code.
func (e *RmanError) Is(target error) bool {
	t, ok := target.(*RmanError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// New creates a new RmanError
func New(code ErrorCode, message string) *RmanError {
	return &RmanError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new RmanError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *RmanError {
	return &RmanError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *RmanError) WithSuggestion(suggestion string) *RmanError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *RmanError) WithSuggestions(suggestions ...string) *RmanError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// Code returns the code of the first RmanError in err's chain, or "".
func Code(err error) ErrorCode {
	var re *RmanError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &RmanError{Code: code})
}

// Sentinels usable with errors.Is.
var (
	ErrNoWorkspace      = &RmanError{Code: ErrCodeNoWorkspace}
	ErrScriptNotFound   = &RmanError{Code: ErrCodeScriptNotFound}
	ErrCommandExecution = &RmanError{Code: ErrCodeCommandExecution}
	ErrDependencyFailed = &RmanError{Code: ErrCodeDependencyFailed}
	ErrPackageNotFound  = &RmanError{Code: ErrCodePackageNotFound}
)

// NewNoWorkspaceError is returned when no workspace root is found above dir.
func NewNoWorkspaceError(dir string, depth int) *RmanError {
	return New(ErrCodeNoWorkspace, fmt.Sprintf("no workspace found in %s or its %d parent directories", dir, depth)).
		WithSuggestion(`Add a "workspaces" array to the root package.json`).
		WithSuggestion("Run the command from inside the monorepo or pass --cwd")
}

// NewManifestError creates a package.json parse error
func NewManifestError(path string, cause error) *RmanError {
	return Wrap(ErrCodeManifestInvalid, fmt.Sprintf("invalid manifest: %s", path), cause).
		WithSuggestion("Check that the file is valid JSON")
}

// NewScriptNotFoundError reports a package without the requested script.
func NewScriptNotFoundError(pkg, script string) *RmanError {
	return New(ErrCodeScriptNotFound, fmt.Sprintf("package %s has no script %q", pkg, script))
}

// NewCommandExecutionError creates a failed subprocess error
func NewCommandExecutionError(command string, exitCode int, cause error) *RmanError {
	if cause != nil {
		return Wrap(ErrCodeCommandExecution, fmt.Sprintf("command %q could not be started", command), cause)
	}
	return New(ErrCodeCommandExecution, fmt.Sprintf("Command failed with exit code %d", exitCode))
}

// NewDependencyFailedError is attached to tasks failed by propagation.
func NewDependencyFailedError(task, dependency string) *RmanError {
	return New(ErrCodeDependencyFailed, fmt.Sprintf("%s: dependency failed (%s)", task, dependency))
}

// NewTasksFailedError summarizes literal task failures.
func NewTasksFailedError(count int) *RmanError {
	noun := "tasks"
	if count == 1 {
		noun = "task"
	}
	return New(ErrCodeTasksFailed, fmt.Sprintf("%d %s failed", count, noun))
}

// NewPackageNotFoundError is returned when the registry has never seen name.
func NewPackageNotFoundError(name string) *RmanError {
	return New(ErrCodePackageNotFound, fmt.Sprintf("package %s not found in registry", name))
}

// NewConfigError creates a config file parse error
func NewConfigError(path string, cause error) *RmanError {
	return Wrap(ErrCodeConfigInvalid, fmt.Sprintf("failed to parse config file: %s", path), cause).
		WithSuggestion("Check the file syntax and format")
}

// NewGitError wraps a failed git invocation.
func NewGitError(args string, cause error) *RmanError {
	return Wrap(ErrCodeGit, fmt.Sprintf("git %s failed", args), cause).
		WithSuggestion("Make sure the workspace is a git repository")
}

// NewInvalidBumpError reports an unusable version argument.
func NewInvalidBumpError(bump string) *RmanError {
	return New(ErrCodeInvalidBump, fmt.Sprintf("invalid version or release type: %s", bump)).
		WithSuggestion("Use one of: major, minor, patch, premajor, preminor, prepatch, prerelease").
		WithSuggestion("Or pass an explicit version such as 1.2.3")
}

// NewDirtyPackagesError lists packages with uncommitted changes.
func NewDirtyPackagesError(names []string) *RmanError {
	return New(ErrCodeDirtyPackages, fmt.Sprintf("uncommitted changes in: %s", strings.Join(names, ", "))).
		WithSuggestion("Commit or stash your changes").
		WithSuggestion("Use --ignore-dirty to bump anyway")
}
