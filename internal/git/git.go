// Package git finds the workspace packages touched by uncommitted or
// unpushed changes.
package git

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/rman/internal/errors"
	"github.com/felixgeelhaar/rman/internal/exec"
	"github.com/felixgeelhaar/rman/internal/log"
	"github.com/felixgeelhaar/rman/internal/workspace"
)

// Change classifies how a package differs from its upstream.
type Change string

const (
	Unchanged Change = ""
	// Dirty means the package has uncommitted changes.
	Dirty Change = "dirty"
	// Committed means the package has commits that are not upstream yet.
	Committed Change = "committed"
)

// Runner executes a command; *exec.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, command string, opts exec.Options) (*exec.Result, error)
}

// Client runs git in a working directory.
type Client struct {
	runner Runner
	dir    string
	logger *log.Logger
}

// New creates a git client for dir.
func New(runner Runner, dir string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{runner: runner, dir: dir, logger: logger}
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	res, err := c.runner.Run(ctx, "git", exec.Options{Dir: c.dir, Args: args})
	if err != nil {
		msg := err
		if res != nil && strings.TrimSpace(res.Stderr) != "" {
			msg = errors.Wrap(errors.ErrCodeGit, strings.TrimSpace(res.Stderr), err)
		}
		return "", errors.NewGitError(strings.Join(args, " "), msg)
	}
	return res.Stdout, nil
}

// TopLevel returns the absolute root of the repository.
func (c *Client) TopLevel(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// DirtyFiles lists files with uncommitted changes, relative to the
// repository root.
func (c *Client) DirtyFiles(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseStatus(out), nil
}

// CommittedFiles lists files touched by commits that are not on the
// upstream branch. Without an upstream nothing is reported.
func (c *Client) CommittedFiles(ctx context.Context) ([]string, error) {
	res, err := c.runner.Run(ctx, "git", exec.Options{Dir: c.dir, Args: []string{"cherry"}, AllowFailure: true})
	if err != nil {
		return nil, errors.NewGitError("cherry", err)
	}
	if res.Failed() {
		c.logger.Debug("no upstream to compare against", "stderr", strings.TrimSpace(res.Stderr))
		return nil, nil
	}

	var files []string
	seen := make(map[string]bool)
	for _, sha := range ParseCherry(res.Stdout) {
		out, err := c.run(ctx, "show", sha, "--name-only", "--pretty=format:")
		if err != nil {
			return nil, err
		}
		for _, line := range strings.Split(out, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || seen[line] {
				continue
			}
			seen[line] = true
			files = append(files, line)
		}
	}
	return files, nil
}

// Changes maps each touched package name to its change kind. Dirty wins
// over Committed.
func (c *Client) Changes(ctx context.Context, pkgs []*workspace.Package) (map[string]Change, error) {
	top, err := c.TopLevel(ctx)
	if err != nil {
		return nil, err
	}
	dirty, err := c.DirtyFiles(ctx)
	if err != nil {
		return nil, err
	}
	committed, err := c.CommittedFiles(ctx)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]Change)
	for name := range Owners(top, committed, pkgs) {
		changes[name] = Committed
	}
	for name := range Owners(top, dirty, pkgs) {
		changes[name] = Dirty
	}
	c.logger.Debug("detected changes", "dirty", len(dirty), "committed", len(committed), "packages", len(changes))
	return changes, nil
}

// Commit commits files with message.
func (c *Client) Commit(ctx context.Context, message string, files []string) error {
	args := append([]string{"commit", "-m", message, "--"}, files...)
	_, err := c.run(ctx, args...)
	return err
}

// Tag creates an annotated tag.
func (c *Client) Tag(ctx context.Context, name, message string) error {
	_, err := c.run(ctx, "tag", "-a", name, "-m", message)
	return err
}

// Owners returns the names of packages containing any of files. Files are
// relative to top.
func Owners(top string, files []string, pkgs []*workspace.Package) map[string]bool {
	top = resolve(top)
	dirs := make([]string, len(pkgs))
	for i, p := range pkgs {
		dirs[i] = resolve(p.Dir)
	}

	owners := make(map[string]bool)
	for _, f := range files {
		path := filepath.Join(top, filepath.FromSlash(f))
		for i, dir := range dirs {
			if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
				owners[pkgs[i].Name] = true
			}
		}
	}
	return owners
}

func resolve(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if real, err := filepath.EvalSymlinks(path); err == nil {
		path = real
	}
	return filepath.Clean(path)
}

// ParseStatus extracts paths from `git status --porcelain` output. Renames
// report the new path.
func ParseStatus(out string) []string {
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		files = append(files, unquote(path))
	}
	return files
}

// ParseCherry returns the SHAs `git cherry` marks as not upstream.
func ParseCherry(out string) []string {
	var shas []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "+" {
			shas = append(shas, fields[1])
		}
	}
	return shas
}

func unquote(path string) string {
	if strings.HasPrefix(path, `"`) {
		if s, err := strconv.Unquote(path); err == nil {
			return s
		}
	}
	return path
}
