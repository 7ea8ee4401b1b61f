package stream

import (
	"bufio"
	"fmt"
	"io"

	"github.com/agenthands/ftmresolve/internal/ftm"
)

// Writer appends one record per line. Output is buffered until Flush, so
// callers decide the batch boundaries tailing readers observe.
type Writer struct {
	w     *bufio.Writer
	count int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) Write(rec ftm.Record) error {
	b, err := rec.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
	}
	return w.WriteRaw(b)
}

// WriteRaw appends an already encoded line.
func (w *Writer) WriteRaw(line []byte) error {
	if _, err := w.w.Write(line); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.count++
	return nil
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Count is the number of records written so far.
func (w *Writer) Count() int {
	return w.count
}
