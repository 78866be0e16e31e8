package tui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// CIEnvVars are the environment variables that mark a CI run.
var CIEnvVars = []string{
	"CI",
	"CONTINUOUS_INTEGRATION",
	"BUILD_NUMBER",
	"GITHUB_ACTIONS",
}

// IsCI reports whether any CI marker is set in the environment.
func IsCI(getenv func(string) string) bool {
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, key := range CIEnvVars {
		if v := getenv(key); v != "" && v != "false" && v != "0" {
			return true
		}
	}
	return false
}

// IsInteractive returns true if stdin and stdout are both terminals
func IsInteractive() bool {
	return IsTerminal(os.Stdin) && IsTerminal(os.Stdout)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// ShouldPrompt returns true if prompts should be shown.
// Prompts are disabled in CI environments or when stdin is not a terminal
func ShouldPrompt(ci bool) bool {
	return !ci && IsInteractive()
}

// PromptForConfirmation displays a yes/no confirmation prompt. The
// description is shown under the title, typically the change plan.
func PromptForConfirmation(message, description string, defaultValue bool) (bool, error) {
	confirmed := defaultValue

	confirm := huh.NewConfirm().
		Title(message).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&confirmed)

	form := huh.NewForm(huh.NewGroup(confirm))

	if err := form.Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}

	return confirmed, nil
}

// PromptForSelect displays a selection prompt with multiple options
func PromptForSelect(message string, options []string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("no options provided")
	}

	huhOptions := make([]huh.Option[string], len(options))
	for i, opt := range options {
		huhOptions[i] = huh.NewOption(opt, opt)
	}

	var selected string
	selectField := huh.NewSelect[string]().
		Title(message).
		Options(huhOptions...).
		Value(&selected)

	form := huh.NewForm(huh.NewGroup(selectField))

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}

	return selected, nil
}
