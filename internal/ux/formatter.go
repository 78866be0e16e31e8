// Package ux renders command reports as text, JSON or YAML.
package ux

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/rman/internal/errors"
)

// Output formats accepted by NewFormatter.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formatter writes one report in a fixed format.
type Formatter interface {
	Format(data any) error
}

// TextRenderer is implemented by reports with a human-readable form.
type TextRenderer interface {
	RenderText(w io.Writer) error
}

// FormatterOptions contains configuration for formatters
type FormatterOptions struct {
	// Writer is where output is written (defaults to os.Stdout)
	Writer io.Writer
	// Compact disables indentation for JSON and YAML
	Compact bool
}

// NewFormatter creates a formatter based on the format string
func NewFormatter(format string, opts *FormatterOptions) (Formatter, error) {
	o := FormatterOptions{Writer: os.Stdout}
	if opts != nil {
		o = *opts
		if o.Writer == nil {
			o.Writer = os.Stdout
		}
	}

	switch format {
	case FormatJSON:
		return &JSONFormatter{opts: o}, nil
	case FormatYAML:
		return &YAMLFormatter{opts: o}, nil
	case FormatText, "":
		return &TextFormatter{opts: o}, nil
	default:
		return nil, errors.New(errors.ErrCodeUsage, fmt.Sprintf("unknown format: %s", format)).
			WithSuggestion("Supported formats: text, json, yaml")
	}
}

// SelectFormat maps the usual --json/--yaml flag pair to a format name.
func SelectFormat(jsonOut, yamlOut bool) string {
	switch {
	case jsonOut:
		return FormatJSON
	case yamlOut:
		return FormatYAML
	default:
		return FormatText
	}
}

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	opts FormatterOptions
}

// Format writes data as JSON
func (f *JSONFormatter) Format(data any) error {
	encoder := json.NewEncoder(f.opts.Writer)
	if !f.opts.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// YAMLFormatter formats output as YAML
type YAMLFormatter struct {
	opts FormatterOptions
}

// Format writes data as YAML
func (f *YAMLFormatter) Format(data any) error {
	encoder := yaml.NewEncoder(f.opts.Writer)
	if !f.opts.Compact {
		encoder.SetIndent(2)
	}
	if err := encoder.Encode(data); err != nil {
		return err
	}
	return encoder.Close()
}

// TextFormatter formats output as human-readable text
type TextFormatter struct {
	opts FormatterOptions
}

// Format writes data through its TextRenderer or String method.
func (f *TextFormatter) Format(data any) error {
	switch v := data.(type) {
	case TextRenderer:
		return v.RenderText(f.opts.Writer)
	case string:
		_, err := fmt.Fprintln(f.opts.Writer, v)
		return err
	case fmt.Stringer:
		_, err := fmt.Fprintln(f.opts.Writer, v.String())
		return err
	default:
		return fmt.Errorf("text output is not supported for %T", data)
	}
}

var (
	_ Formatter = (*JSONFormatter)(nil)
	_ Formatter = (*YAMLFormatter)(nil)
	_ Formatter = (*TextFormatter)(nil)
)
