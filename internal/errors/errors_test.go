package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeScriptNotFound, "test error message")

	if err.Code != ErrCodeScriptNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeScriptNotFound, err.Code)
	}

	if err.Message != "test error message" {
		t.Errorf("expected message 'test error message', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(ErrCodeConfigInvalid, "failed to read config", cause)

	if err.Cause != cause {
		t.Errorf("expected cause to be set")
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *RmanError
		wantCode string
		wantMsg  string
	}{
		{
			name:     "simple error",
			err:      New(ErrCodeTasksFailed, "2 tasks failed"),
			wantCode: "TASK-002",
			wantMsg:  "2 tasks failed",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeGit, "git status failed", fmt.Errorf("not a git repository")),
			wantCode: "GIT-001",
			wantMsg:  "not a git repository",
		},
		{
			name:     "error with suggestions",
			err:      NewNoWorkspaceError("/tmp/x", 10),
			wantCode: "WORKSPACE-001",
			wantMsg:  "Suggestions:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()

			if !strings.Contains(errStr, tt.wantCode) {
				t.Errorf("error string should contain code %s, got: %s", tt.wantCode, errStr)
			}

			if !strings.Contains(errStr, tt.wantMsg) {
				t.Errorf("error string should contain message '%s', got: %s", tt.wantMsg, errStr)
			}
		})
	}
}

func TestSentinelMatching(t *testing.T) {
	wrapped := fmt.Errorf("failed to load workspace: %w", NewNoWorkspaceError("/tmp", 10))

	if !errors.Is(wrapped, ErrNoWorkspace) {
		t.Errorf("expected wrapped error to match ErrNoWorkspace")
	}
	if errors.Is(wrapped, ErrPackageNotFound) {
		t.Errorf("did not expect wrapped error to match ErrPackageNotFound")
	}
	if !HasCode(wrapped, ErrCodeNoWorkspace) {
		t.Errorf("expected HasCode to find %s", ErrCodeNoWorkspace)
	}
	if got := Code(wrapped); got != ErrCodeNoWorkspace {
		t.Errorf("Code() = %s, want %s", got, ErrCodeNoWorkspace)
	}
	if got := Code(fmt.Errorf("plain")); got != "" {
		t.Errorf("Code() of plain error = %q, want empty", got)
	}
}

func TestTasksFailedMessage(t *testing.T) {
	if got := NewTasksFailedError(1).Message; got != "1 task failed" {
		t.Errorf("unexpected message %q", got)
	}
	if got := NewTasksFailedError(3).Message; got != "3 tasks failed" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestCommandExecutionError(t *testing.T) {
	err := NewCommandExecutionError("false", 1, nil)
	if !strings.Contains(err.Error(), "exit code 1") {
		t.Errorf("expected exit code in message, got %s", err.Error())
	}

	spawn := NewCommandExecutionError("nope", -1, fmt.Errorf("executable file not found"))
	if !errors.Is(spawn, ErrCommandExecution) {
		t.Errorf("expected spawn error to match ErrCommandExecution")
	}
}

func TestWithSuggestion(t *testing.T) {
	err := New(ErrCodeGit, "git failed").
		WithSuggestion("first").
		WithSuggestions("second", "third")

	if len(err.Suggestions) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(err.Suggestions))
	}
	if err.Suggestions[2] != "third" {
		t.Errorf("unexpected suggestion order: %v", err.Suggestions)
	}
}
