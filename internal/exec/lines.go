package exec

import (
	"bytes"
	"strings"
	"sync"
)

// lineWriter splits written bytes into lines, forwarding each complete line
// to a callback while keeping the full text.
type lineWriter struct {
	stream  Stream
	mu      *sync.Mutex
	onLine  func(Stream, string)
	full    strings.Builder
	pending []byte
}

func newLineWriter(stream Stream, mu *sync.Mutex, onLine func(Stream, string)) *lineWriter {
	return &lineWriter{stream: stream, mu: mu, onLine: onLine}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.full.Write(p)
	if w.onLine == nil {
		return len(p), nil
	}

	w.pending = append(w.pending, p...)
	for {
		idx := bytes.IndexByte(w.pending, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSuffix(string(w.pending[:idx]), "\r")
		w.pending = w.pending[idx+1:]
		w.onLine(w.stream, line)
	}
	return len(p), nil
}

// Flush emits a trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) > 0 && w.onLine != nil {
		w.onLine(w.stream, string(w.pending))
	}
	w.pending = nil
}

func (w *lineWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.full.String()
}
