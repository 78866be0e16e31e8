// Package config merges rman settings from the root manifest, config files
// and command-line flags.
//
// Layers, lowest precedence first:
//
//  1. the "rman" section of the root package.json
//  2. .rman.yml / .rman.yaml
//  3. .rman.toml
//  4. .rmanrc (JSON)
//  5. the command.<name> section of the merged result
//  6. flags that were set explicitly
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	rerrors "github.com/felixgeelhaar/rman/internal/errors"
)

// ManifestKey is the package.json section holding rman settings.
const ManifestKey = "rman"

// Setting keys.
const (
	KeyLogLevel     = "loglevel"
	KeyConcurrency  = "concurrency"
	KeyParallel     = "parallel"
	KeyBail         = "bail"
	KeyProgress     = "progress"
	KeyClient       = "client"
	KeyPackageOrder = "packageorder"
)

// Clients are the supported package manager clients.
var Clients = []string{"npm", "yarn"}

type layer struct {
	name   string
	decode func([]byte) (map[string]any, error)
}

// files lists the config files read from the workspace root, in merge
// order.
var files = []layer{
	{".rman.yml", decodeYAML},
	{".rman.yaml", decodeYAML},
	{".rman.toml", decodeTOML},
	{".rmanrc", decodeJSON},
}

// Config is a merged view of every configuration layer.
type Config struct {
	v       *viper.Viper
	sources []string
}

// Defaults returns a config with built-in values only.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	return &Config{v: v}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyBail, true)
	v.SetDefault(KeyProgress, true)
	v.SetDefault(KeyParallel, false)
	v.SetDefault(KeyClient, "npm")
}

// Load reads the manifest section and config files in dir. An empty dir
// yields the defaults. Missing files are skipped; unreadable or malformed
// ones are a ConfigError.
func Load(dir string) (*Config, error) {
	cfg := Defaults()
	if dir == "" {
		return cfg, nil
	}

	manifest := filepath.Join(dir, "package.json")
	if data, err := os.ReadFile(manifest); err == nil {
		if section := gjson.GetBytes(data, ManifestKey); section.IsObject() {
			if m, ok := section.Value().(map[string]any); ok {
				if err := cfg.merge(manifest, m); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, l := range files {
		path := filepath.Join(dir, l.name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, rerrors.NewConfigError(path, err)
		}
		m, err := l.decode(data)
		if err != nil {
			return nil, rerrors.NewConfigError(path, err)
		}
		if err := cfg.merge(path, m); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) merge(source string, m map[string]any) error {
	if len(m) == 0 {
		return nil
	}
	if err := c.v.MergeConfigMap(m); err != nil {
		return rerrors.NewConfigError(source, err)
	}
	c.sources = append(c.sources, source)
	return nil
}

func (c *Config) validate() error {
	client := c.Client()
	for _, known := range Clients {
		if client == known {
			return nil
		}
	}
	return rerrors.New(rerrors.ErrCodeConfigInvalid, fmt.Sprintf("unsupported client %q", client)).
		WithSuggestion("Set client to one of: " + strings.Join(Clients, ", "))
}

// Sources lists the layers that contributed settings, in merge order.
func (c *Config) Sources() []string {
	return append([]string(nil), c.sources...)
}

// ForCommand returns a copy of the config with the command.<name> section
// merged over the top level. The section must be a table of settings.
func (c *Config) ForCommand(name string) (*Config, error) {
	key := "command." + name
	v := viper.New()
	setDefaults(v)
	if err := v.MergeConfigMap(c.v.AllSettings()); err != nil {
		return nil, rerrors.NewConfigError(strings.Join(c.sources, ", "), err)
	}

	sources := c.Sources()
	if raw := c.v.Get(key); raw != nil {
		sub, ok := raw.(map[string]any)
		if !ok {
			return nil, rerrors.NewConfigError(key, fmt.Errorf("expected a table of settings, got %T", raw))
		}
		if err := v.MergeConfigMap(sub); err != nil {
			return nil, rerrors.NewConfigError(key, err)
		}
		if len(sub) > 0 {
			sources = append(sources, key)
		}
	}
	return &Config{v: v, sources: sources}, nil
}

// BindFlags binds config keys to flags. A flag only overrides the file
// layers when it was set on the command line. bindings maps keys to flag
// names; flags missing from fs are ignored.
func (c *Config) BindFlags(fs *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		flag := fs.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := c.v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// Set overrides a key for the rest of the run.
func (c *Config) Set(key string, value any) {
	c.v.Set(key, value)
}

// Get returns the raw value of key.
func (c *Config) Get(key string) any {
	return c.v.Get(key)
}

// GetString returns key as a string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// LogLevel returns the configured log level name.
func (c *Config) LogLevel() string {
	return c.v.GetString(KeyLogLevel)
}

// Concurrency returns the configured concurrency, or 0 for the default.
func (c *Config) Concurrency() int {
	n := c.v.GetInt(KeyConcurrency)
	if n < 0 {
		return 0
	}
	return n
}

// Client returns the package manager client used for installs.
func (c *Config) Client() string {
	return strings.ToLower(c.v.GetString(KeyClient))
}

// PackageOrder returns the package names that sort first in listings.
func (c *Config) PackageOrder() []string {
	return c.v.GetStringSlice(KeyPackageOrder)
}

// Parallel reports whether script runs without dependency ordering.
func (c *Config) Parallel(script string) bool {
	return MatchScript(c.v.Get(KeyParallel), script, false)
}

// Bail reports whether failures stop dependent tasks for script.
func (c *Config) Bail(script string) bool {
	return MatchScript(c.v.Get(KeyBail), script, true)
}

// Progress reports whether the live view is enabled for script.
func (c *Config) Progress(script string) bool {
	return MatchScript(c.v.Get(KeyProgress), script, true)
}

// MatchScript interprets a setting that is either a boolean or a list of
// script names (a slice or a comma separated string). A list enables the
// setting for the scripts it names.
func MatchScript(value any, script string, def bool) bool {
	switch v := value.(type) {
	case nil:
		return def
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
		for _, name := range strings.Split(v, ",") {
			if strings.TrimSpace(name) == script {
				return true
			}
		}
		return false
	case []string:
		for _, name := range v {
			if name == script {
				return true
			}
		}
		return false
	case []any:
		for _, name := range v {
			if fmt.Sprint(name) == script {
				return true
			}
		}
		return false
	default:
		return def
	}
}

func decodeYAML(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeTOML(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeJSON(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Settings returns every merged setting, keyed by lower-cased name.
func (c *Config) Settings() map[string]any {
	return c.v.AllSettings()
}
