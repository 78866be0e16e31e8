package tui

import (
	"testing"
)

func TestIsCI(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{"no CI environment", map[string]string{}, false},
		{"GitHub Actions", map[string]string{"GITHUB_ACTIONS": "true"}, true},
		{"Generic CI", map[string]string{"CI": "1"}, true},
		{"Jenkins build number", map[string]string{"BUILD_NUMBER": "42"}, true},
		{"continuous integration", map[string]string{"CONTINUOUS_INTEGRATION": "yes"}, true},
		{"explicitly disabled", map[string]string{"CI": "false"}, false},
		{"unrelated", map[string]string{"GITLAB_TOKEN": "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(key string) string { return tt.env[key] }
			if got := IsCI(getenv); got != tt.want {
				t.Errorf("IsCI() = %v, want %v (with env: %v)", got, tt.want, tt.env)
			}
		})
	}
}

func TestShouldPromptInCI(t *testing.T) {
	if ShouldPrompt(true) {
		t.Error("ShouldPrompt(true) = true, want false")
	}
}

func TestIsTerminalNil(t *testing.T) {
	if IsTerminal(nil) {
		t.Error("IsTerminal(nil) = true, want false")
	}
}

func TestPromptForSelect(t *testing.T) {
	_, err := PromptForSelect("Choose:", []string{})
	if err == nil {
		t.Error("expected error when no options provided, got nil")
	}
}
