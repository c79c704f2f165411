package output

import (
	"bufio"
	"io"
)

// StdoutWriter streams batched JSONL to a console stream.
type StdoutWriter struct {
	batch *batchWriter
	out   *bufio.Writer
}

// NewStdoutWriter creates a writer that batches JSON results and flushes to out.
func NewStdoutWriter(out io.Writer, batchSize int) *StdoutWriter {
	w := &StdoutWriter{
		out: bufio.NewWriterSize(out, 4096),
	}
	w.batch = newBatchWriter(batchSize, func(data []byte) error {
		_, err := w.out.Write(data)
		if err != nil {
			return err
		}
		return w.out.Flush()
	})
	return w
}

func (w *StdoutWriter) Write(res *Result) error {
	return w.batch.write(res)
}

func (w *StdoutWriter) Close() error {
	batchErr := w.batch.close()
	flushErr := w.out.Flush()
	if batchErr != nil {
		return batchErr
	}
	return flushErr
}
