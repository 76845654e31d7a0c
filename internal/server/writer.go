package server

import (
	"io"
	"net/http"
	"sync"
)

// LineWriter serializes reply lines from concurrently running batches. Each
// WriteLines call is written contiguously and flushed to the client.
type LineWriter struct {
	w       io.Writer
	flusher http.Flusher
	err     error
	mu      sync.Mutex
}

// NewLineWriter wraps w, flushing through it when it supports http.Flusher
func NewLineWriter(w io.Writer) *LineWriter {
	lw := &LineWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		lw.flusher = f
	}
	return lw
}

// WriteLines writes lines and flushes. After the first write error every
// later call returns that error without writing.
func (lw *LineWriter) WriteLines(lines [][]byte) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.err != nil {
		return lw.err
	}

	for _, line := range lines {
		if _, err := lw.w.Write(line); err != nil {
			lw.err = err
			return err
		}
	}
	if lw.flusher != nil {
		lw.flusher.Flush()
	}
	return nil
}
