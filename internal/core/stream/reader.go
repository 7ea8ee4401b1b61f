package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// Reader yields the non-blank lines of an NDJSON stream. Lines may be of any
// length.
type Reader struct {
	r      *bufio.Reader
	line   []byte
	lineNo int
	err    error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next non-blank line. It returns false at the end of
// the stream or on a read error; Err distinguishes the two.
func (r *Reader) Next() bool {
	for r.err == nil {
		line, err := r.r.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.err = err
				return false
			}
			r.err = io.EOF
		}
		r.lineNo++
		line = bytes.TrimRight(line, "\r\n")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		r.line = line
		return true
	}
	return false
}

// Line returns the current line without its terminator. The slice is only
// valid until the next call to Next.
func (r *Reader) Line() []byte {
	return r.line
}

// LineNo is the 1-based physical line number of the current line.
func (r *Reader) LineNo() int {
	return r.lineNo
}

func (r *Reader) Err() error {
	if errors.Is(r.err, io.EOF) {
		return nil
	}
	return r.err
}
