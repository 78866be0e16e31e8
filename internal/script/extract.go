package script

import (
	"strings"

	"github.com/felixgeelhaar/rman/internal/errors"
)

// maxDepth bounds nested "npm run" inlining.
const maxDepth = 10

// Step is one shell command derived from a script.
type Step struct {
	// Name is the lifecycle entry the command came from, e.g. "pretest".
	Name string

	// Command is the literal shell command line.
	Command string

	// WaitDependencies is false for pre and post hooks, which run
	// without waiting on dependency packages.
	WaitDependencies bool
}

// Extract expands the named script of a package into ordered steps.
func Extract(scripts map[string]string, name string) []Step {
	var steps []Step
	for _, entry := range []struct {
		name string
		wait bool
	}{
		{"pre" + name, false},
		{name, true},
		{"post" + name, false},
	} {
		line, ok := scripts[entry.name]
		if !ok {
			continue
		}

		commands, ok := expand(scripts, line, map[string]bool{name: true}, 0)
		if !ok {
			return nil
		}
		for _, cmd := range commands {
			steps = append(steps, Step{Name: entry.name, Command: cmd, WaitDependencies: entry.wait})
		}
	}
	return steps
}

// Lookup returns the command line of a script, or ScriptNotFoundError.
func Lookup(scripts map[string]string, pkg, name string) (string, error) {
	line, ok := scripts[name]
	if !ok {
		return "", errors.NewScriptNotFoundError(pkg, name)
	}
	return line, nil
}

// expand splits line into commands and inlines nested script runs.
// visited holds the scripts on the current inlining path.
func expand(scripts map[string]string, line string, visited map[string]bool, depth int) ([]string, bool) {
	parts, ok := SplitAnd(line)
	if !ok {
		return nil, false
	}

	var out []string
	for _, part := range parts {
		target, nested := runTarget(part)
		if !nested || depth >= maxDepth || visited[target] {
			out = append(out, part)
			continue
		}
		if _, exists := scripts[target]; !exists {
			out = append(out, part)
			continue
		}

		visited[target] = true
		for _, hook := range []string{"pre" + target, target, "post" + target} {
			body, exists := scripts[hook]
			if !exists {
				continue
			}
			cmds, ok := expand(scripts, body, visited, depth+1)
			if !ok {
				return nil, false
			}
			out = append(out, cmds...)
		}
		delete(visited, target)
	}
	return out, true
}

// runTarget recognizes "npm run x", "npm run-script x" and "yarn run x"
// with no further arguments.
func runTarget(command string) (string, bool) {
	fields := strings.Fields(command)
	if len(fields) != 3 {
		return "", false
	}
	switch {
	case fields[0] == "npm" && (fields[1] == "run" || fields[1] == "run-script"):
	case fields[0] == "yarn" && fields[1] == "run":
	default:
		return "", false
	}
	return fields[2], true
}

// SplitAnd splits a command line on "&&" outside quotes. It returns false
// when a quote is left open or an operand is empty.
func SplitAnd(line string) ([]string, bool) {
	var (
		parts   []string
		current strings.Builder
		quote   rune
		escaped bool
	)

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '&' && i+1 < len(runes) && runes[i+1] == '&':
			part := strings.TrimSpace(current.String())
			if part == "" {
				return nil, false
			}
			parts = append(parts, part)
			current.Reset()
			i++
			continue
		}
		current.WriteRune(r)
	}

	if quote != 0 || escaped {
		return nil, false
	}

	last := strings.TrimSpace(current.String())
	if last == "" {
		if len(parts) > 0 {
			return nil, false
		}
		return nil, true
	}
	return append(parts, last), true
}
