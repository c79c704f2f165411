package output

import (
	"encoding/json"
	"io"
	"os"
	"sync"
)

// Writer appends results to a JSONL file.
type Writer struct {
	file    *os.File
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewWriter opens path for appending, creating it if needed.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return &Writer{
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

// Write adds a result to the file immediately.
func (w *Writer) Write(res *Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.encoder.Encode(res)
}

func (w *Writer) Flush() error {
	return w.file.Sync()
}

func (w *Writer) Close() error {
	w.Flush()
	return w.file.Close()
}

// FormattedWriter serializes access to a Formatter.
type FormattedWriter struct {
	fmt Formatter
	mu  sync.Mutex
}

func NewFormattedWriter(f Formatter) *FormattedWriter {
	return &FormattedWriter{fmt: f}
}

func (w *FormattedWriter) Write(res *Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fmt.Write(res)
}

func (w *FormattedWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fmt.Flush()
}

// ResultWriter is the interface for anything that accepts results.
type ResultWriter interface {
	Write(res *Result) error
}

// OutputSink fans out results to multiple writers.
type OutputSink struct {
	writers []ResultWriter
}

func NewOutputSink() *OutputSink {
	return &OutputSink{}
}

func (s *OutputSink) Add(w ResultWriter) {
	s.writers = append(s.writers, w)
}

// Len reports how many writers are attached.
func (s *OutputSink) Len() int { return len(s.writers) }

// Write hands res to every writer and returns the first error.
func (s *OutputSink) Write(res *Result) error {
	var firstErr error
	for _, w := range s.writers {
		if err := w.Write(res); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes all writers that implement io.Closer.
func (s *OutputSink) Close() error {
	var firstErr error
	for _, w := range s.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
