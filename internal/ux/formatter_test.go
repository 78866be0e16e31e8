package ux

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/rman/internal/errors"
)

type testData struct {
	Name  string `json:"name" yaml:"name"`
	Value int    `json:"value" yaml:"value"`
}

type renderedData struct{ testData }

func (d renderedData) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s=%d\n", d.Name, d.Value)
	return err
}

type stringerData struct{}

func (stringerData) String() string { return "stringer" }

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		wantErr bool
	}{
		{"json format", FormatJSON, false},
		{"yaml format", FormatYAML, false},
		{"text format", FormatText, false},
		{"empty format defaults to text", "", false},
		{"unknown format", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFormatter(tt.format, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.ErrCodeUsage))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSelectFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, SelectFormat(true, true))
	assert.Equal(t, FormatYAML, SelectFormat(false, true))
	assert.Equal(t, FormatText, SelectFormat(false, false))
}

func TestFormatters(t *testing.T) {
	data := testData{Name: "test", Value: 42}

	tests := []struct {
		name    string
		format  string
		compact bool
		data    any
		want    string
	}{
		{name: "json", format: FormatJSON, data: data, want: "{\n  \"name\": \"test\",\n  \"value\": 42\n}\n"},
		{name: "json compact", format: FormatJSON, compact: true, data: data, want: "{\"name\":\"test\",\"value\":42}\n"},
		{name: "yaml", format: FormatYAML, data: data, want: "name: test\nvalue: 42\n"},
		{name: "text renderer", format: FormatText, data: renderedData{data}, want: "test=42\n"},
		{name: "text string", format: FormatText, data: "plain", want: "plain\n"},
		{name: "text stringer", format: FormatText, data: stringerData{}, want: "stringer\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			f, err := NewFormatter(tt.format, &FormatterOptions{Writer: &buf, Compact: tt.compact})
			require.NoError(t, err)
			require.NoError(t, f.Format(tt.data))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestTextFormatterUnsupported(t *testing.T) {
	f, err := NewFormatter(FormatText, &FormatterOptions{Writer: io.Discard})
	require.NoError(t, err)
	assert.Error(t, f.Format(testData{}))
}
