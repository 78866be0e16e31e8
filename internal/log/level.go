package log

import (
	"log/slog"
	"strings"
)

// Level represents the severity of a log message
type Level int

const (
	// LevelDebug is for detailed debugging information
	LevelDebug Level = iota
	// LevelInfo is for general informational messages
	LevelInfo
	// LevelWarn is for warning messages that indicate potential issues
	LevelWarn
	// LevelError is for error messages that indicate failures
	LevelError
	// LevelSilent suppresses all log output
	LevelSilent
)

// slogLevelSilent sits above every level slog emits.
const slogLevelSilent = slog.Level(100)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelSilent:
		return "SILENT"
	default:
		return "UNKNOWN"
	}
}

// ToSlogLevel converts our Level to slog.Level
func (l Level) ToSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelSilent:
		return slogLevelSilent
	default:
		return slog.LevelInfo
	}
}

// ParseLevel parses a string into a Level.
// It accepts the npmlog names used by --log-level (silly, verbose, notice,
// success, output) as well as the plain slog names.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silly", "verbose", "debug", "trace":
		return LevelDebug
	case "info", "output", "notice", "success", "http", "timing":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "silent", "quiet", "off":
		return LevelSilent
	default:
		return LevelInfo
	}
}

// LevelNames lists the accepted --log-level values.
var LevelNames = []string{"silly", "verbose", "info", "output", "notice", "success", "warn", "error", "silent"}
