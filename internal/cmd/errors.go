package cmd

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/rman/internal/errors"
	"github.com/felixgeelhaar/rman/internal/semver"
)

// ErrorWithSuggestion wraps an error with actionable recovery suggestions
type ErrorWithSuggestion struct {
	Message     string
	Suggestions []string
	err         error
}

func (e *ErrorWithSuggestion) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, s := range e.Suggestions {
			b.WriteString("\n  • ")
			b.WriteString(s)
		}
	}

	if e.err != nil {
		b.WriteString("\n\nDetails: ")
		b.WriteString(e.err.Error())
	}

	return b.String()
}

func (e *ErrorWithSuggestion) Unwrap() error {
	return e.err
}

// NewErrorWithSuggestions creates an error with recovery suggestions
func NewErrorWithSuggestions(msg string, err error, suggestions ...string) error {
	return &ErrorWithSuggestion{
		Message:     msg,
		Suggestions: suggestions,
		err:         err,
	}
}

// MissingBumpError is returned by version when no release type was given
// and no prompt can be shown.
func MissingBumpError() error {
	return NewErrorWithSuggestions(
		"A release type or version is required",
		errors.New(errors.ErrCodeUsage, "missing <bump> argument"),
		fmt.Sprintf("Pass a release type: rman version <%s>", strings.Join(bumpNames(), "|")),
		"Or an explicit version: rman version 2.0.0",
	)
}

// GitUnavailableError explains that change detection needs a git checkout.
func GitUnavailableError(err error) error {
	return NewErrorWithSuggestions(
		"Could not determine changed packages",
		err,
		"Run rman from inside a git repository",
		"Check that git is installed: git --version",
	)
}

// RegistryError explains a failed registry lookup during publish.
func RegistryError(name string, err error) error {
	return NewErrorWithSuggestions(
		fmt.Sprintf("Failed to fetch %s from the registry", name),
		err,
		"Check your registry configuration: npm config get registry",
		"Verify that you are logged in: npm whoami",
	)
}

func bumpNames() []string {
	names := make([]string, len(semver.Bumps))
	for i, b := range semver.Bumps {
		names[i] = string(b)
	}
	return names
}
