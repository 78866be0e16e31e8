// Package detect gathers the environment report shown by `rman info`.
package detect

import (
	"context"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTools are the binaries checked for a version, in report order.
var DefaultTools = []string{"node", "npm", "yarn", "git"}

// versionTimeout bounds a single `<tool> --version` call.
const versionTimeout = 5 * time.Second

// Environment is the detected host and toolchain.
type Environment struct {
	OS    string `json:"os" yaml:"os"`
	Arch  string `json:"arch" yaml:"arch"`
	CPUs  int    `json:"cpus" yaml:"cpus"`
	Shell string `json:"shell" yaml:"shell"`

	Tools []Tool `json:"binaries" yaml:"binaries"`
	CI    CIInfo `json:"ci" yaml:"ci"`
}

// Tool holds the detection result for one binary.
type Tool struct {
	Name      string `json:"name" yaml:"name"`
	Available bool   `json:"available" yaml:"available"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Version   string `json:"version,omitempty" yaml:"version,omitempty"`
}

// CIInfo holds CI/CD environment information
type CIInfo struct {
	Detected bool   `json:"detected" yaml:"detected"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Detector inspects the host. The zero value uses exec.LookPath, runs
// `<binary> --version` and reads the process environment.
type Detector struct {
	LookPath func(file string) (string, error)
	Version  func(ctx context.Context, path string) (string, error)
	Getenv   func(key string) string
	Tools    []string
}

// Detect runs every check. Tools are looked up concurrently; a missing or
// failing binary is reported as unavailable rather than as an error.
func (d Detector) Detect(ctx context.Context) (*Environment, error) {
	getenv := d.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	names := d.Tools
	if names == nil {
		names = DefaultTools
	}

	env := &Environment{
		OS:    runtime.GOOS,
		Arch:  runtime.GOARCH,
		CPUs:  runtime.NumCPU(),
		Shell: detectShell(getenv),
		Tools: make([]Tool, len(names)),
		CI:    detectCI(getenv),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			env.Tools[i] = d.lookup(gctx, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return env, nil
}

// Tool returns the result for name.
func (e *Environment) Tool(name string) (Tool, bool) {
	for _, t := range e.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

func (d Detector) lookup(ctx context.Context, name string) Tool {
	lookPath := d.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	version := d.Version
	if version == nil {
		version = runVersion
	}

	tool := Tool{Name: name}
	path, err := lookPath(name)
	if err != nil {
		return tool
	}
	tool.Available = true
	tool.Path = path

	out, err := version(ctx, path)
	if err == nil {
		tool.Version = ParseVersion(out)
	}
	return tool
}

func runVersion(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	return string(out), err
}

var versionPattern = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z.-]+)?`)

// ParseVersion extracts the version number from `--version` output such
// as "v20.11.0" or "git version 2.43.0 (Apple Git-146)". Output without a
// recognisable number is returned trimmed.
func ParseVersion(out string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	line = strings.TrimSpace(line)
	if v := versionPattern.FindString(line); v != "" {
		return v
	}
	return line
}

func detectShell(getenv func(string) string) string {
	if shell := getenv("SHELL"); shell != "" {
		return shell
	}
	if runtime.GOOS == "windows" {
		if comspec := getenv("ComSpec"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}
	return "/bin/sh"
}

// ciChecks maps CI provider variables to provider names, most specific
// first.
var ciChecks = []struct {
	env  string
	name string
}{
	{"GITHUB_ACTIONS", "github"},
	{"GITLAB_CI", "gitlab"},
	{"JENKINS_HOME", "jenkins"},
	{"CIRCLECI", "circleci"},
	{"TRAVIS", "travis"},
	{"BUILDKITE", "buildkite"},
}

// detectCI detects CI/CD environment
func detectCI(getenv func(string) string) CIInfo {
	for _, check := range ciChecks {
		if getenv(check.env) != "" {
			return CIInfo{Detected: true, Name: check.name}
		}
	}
	for _, key := range []string{"CI", "CONTINUOUS_INTEGRATION", "BUILD_NUMBER"} {
		if v := getenv(key); v != "" && v != "false" && v != "0" {
			return CIInfo{Detected: true, Name: "generic"}
		}
	}
	return CIInfo{}
}
