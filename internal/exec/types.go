package exec

import "time"

// Stdio selects how a child's standard streams are wired.
type Stdio int

const (
	// StdioPipe captures output line by line
	StdioPipe Stdio = iota
	// StdioInherit connects the child to the parent's terminal
	StdioInherit
)

// Stream identifies the output stream a line came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Options configures a single command run
type Options struct {
	// Dir is the working directory; defaults to the current directory
	Dir string

	// Args are appended to the command line as positional arguments,
	// after the shell has parsed the command itself
	Args []string

	// Env overrides or extends the inherited environment
	Env map[string]string

	// Stdio selects piped capture or an inherited terminal
	Stdio Stdio

	// OnLine receives each complete output line as it arrives.
	// Calls are serialized across both streams.
	OnLine func(stream Stream, line string)

	// AllowFailure returns a failed run as data in Result.Error
	// instead of as the returned error
	AllowFailure bool
}

// Result represents the outcome of a command run
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	Error    error
}

// Failed reports whether the run did not succeed.
func (r *Result) Failed() bool {
	return r != nil && (r.Error != nil || r.ExitCode != 0)
}
