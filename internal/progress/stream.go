package progress

import (
	"bytes"
	"fmt"
	"io"
)

// StreamWriter prefixes every line written to it.
type StreamWriter struct {
	writer io.Writer
	prefix string
	buffer []byte
}

// NewStreamWriter creates a new stream writer with a prefix
func NewStreamWriter(w io.Writer, prefix string) *StreamWriter {
	return &StreamWriter{
		writer: w,
		prefix: prefix,
		buffer: make([]byte, 0, 256),
	}
}

// Write implements io.Writer
func (sw *StreamWriter) Write(p []byte) (n int, err error) {
	n = len(p)
	sw.buffer = append(sw.buffer, p...)

	for {
		idx := bytes.IndexByte(sw.buffer, '\n')
		if idx == -1 {
			break
		}

		line := sw.buffer[:idx]
		sw.buffer = sw.buffer[idx+1:]

		if _, err := fmt.Fprintf(sw.writer, "%s %s\n", sw.prefix, line); err != nil {
			return n, err
		}
	}

	return n, nil
}

// Flush writes any remaining partial line
func (sw *StreamWriter) Flush() error {
	if len(sw.buffer) > 0 {
		_, err := fmt.Fprintf(sw.writer, "%s %s\n", sw.prefix, string(sw.buffer))
		sw.buffer = sw.buffer[:0]
		return err
	}
	return nil
}
