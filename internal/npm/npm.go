// Package npm queries the npm registry through the npm CLI.
package npm

import (
	"context"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/rman/internal/errors"
	"github.com/felixgeelhaar/rman/internal/exec"
)

// Runner executes a command; *exec.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, command string, opts exec.Options) (*exec.Result, error)
}

// Info is the subset of `npm view` output rman uses.
type Info struct {
	Name     string
	Version  string
	Versions []string
	DistTags map[string]string
}

// Client runs npm commands.
type Client struct {
	runner Runner
	dir    string
}

// New creates a client running npm in dir.
func New(runner Runner, dir string) *Client {
	return &Client{runner: runner, dir: dir}
}

var notFound = regexp.MustCompile(`\bE404\b|\b404\b`)

// View returns registry metadata for name. A package the registry has never
// seen yields a PackageNotFoundError.
func (c *Client) View(ctx context.Context, name string) (*Info, error) {
	res, err := c.runner.Run(ctx, "npm", exec.Options{
		Dir:          c.dir,
		Args:         []string{"view", name, "--json"},
		AllowFailure: true,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeRegistryQuery, "failed to query registry for "+name, err)
	}

	if res.Failed() {
		body := gjson.Get(res.Stdout, "error.code").String()
		if body == "E404" || notFound.MatchString(res.Stderr) {
			return nil, errors.NewPackageNotFoundError(name)
		}
		return nil, errors.Wrap(errors.ErrCodeRegistryQuery, "failed to query registry for "+name, res.Error)
	}

	return ParseView(name, res.Stdout)
}

// ParseView decodes `npm view --json` output.
func ParseView(name, out string) (*Info, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		// npm prints nothing for an unpublished name on some versions.
		return nil, errors.NewPackageNotFoundError(name)
	}
	if !gjson.Valid(out) {
		return nil, errors.New(errors.ErrCodeRegistryQuery, "unexpected npm view output for "+name)
	}

	doc := gjson.Parse(out)
	if doc.IsArray() {
		arr := doc.Array()
		if len(arr) == 0 {
			return nil, errors.NewPackageNotFoundError(name)
		}
		doc = arr[len(arr)-1]
	}

	info := &Info{
		Name:     doc.Get("name").String(),
		Version:  doc.Get("version").String(),
		DistTags: make(map[string]string),
	}
	if info.Name == "" {
		info.Name = name
	}
	versions := doc.Get("versions")
	if versions.IsArray() {
		for _, v := range versions.Array() {
			info.Versions = append(info.Versions, v.String())
		}
	} else if versions.Exists() {
		info.Versions = []string{versions.String()}
	}
	doc.Get("dist-tags").ForEach(func(k, v gjson.Result) bool {
		info.DistTags[k.String()] = v.String()
		return true
	})
	return info, nil
}

// Published reports whether version of info has been published.
func (i *Info) Published(version string) bool {
	if i == nil {
		return false
	}
	if i.Version == version {
		return true
	}
	for _, v := range i.Versions {
		if v == version {
			return true
		}
	}
	return false
}

// Lookup is the outcome of a View for one package.
type Lookup struct {
	Name string
	Info *Info
	Err  error
}

// ViewAll queries every name concurrently, at most limit at a time, and
// returns the results in input order. Per-package failures are reported in
// Lookup.Err; only cancellation aborts the batch.
func (c *Client) ViewAll(ctx context.Context, names []string, limit int) ([]Lookup, error) {
	results := make([]Lookup, len(names))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, name := range names {
		g.Go(func() error {
			info, err := c.View(gctx, name)
			results[i] = Lookup{Name: name, Info: info, Err: err}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// alreadyPublished matches the registry's refusal to overwrite a version.
var alreadyPublished = regexp.MustCompile(`(?i)cannot publish over|previously published|EPUBLISHCONFLICT|You cannot publish over the previously published versions`)

// AlreadyPublished reports whether publish output says the version exists.
func AlreadyPublished(output string) bool {
	return alreadyPublished.MatchString(output)
}
