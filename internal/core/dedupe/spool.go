package dedupe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Spool is the temporary file holding records that pass through a dedup run
// unmerged. It is written during the first pass, read back during the
// second, and removed by Close on every exit path.
type Spool struct {
	path   string
	file   *os.File
	w      *bufio.Writer
	reader *os.File
	count  int
	logger *slog.Logger
}

// NewSpool creates a spool file in dir whose name is scoped to the run.
func NewSpool(dir string, runID uuid.UUID, logger *slog.Logger) (*Spool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.CreateTemp(dir, "ftm-dedup-spool-"+runID.String()+"-*.ndjson")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	return &Spool{
		path:   f.Name(),
		file:   f,
		w:      bufio.NewWriter(f),
		logger: logger,
	}, nil
}

func (s *Spool) Path() string {
	return s.path
}

// Len is the number of lines appended.
func (s *Spool) Len() int {
	return s.count
}

// Append writes one line verbatim.
func (s *Spool) Append(line []byte) error {
	if s.w == nil {
		return errors.New("spool is closed for writing")
	}
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("failed to write spool: %w", err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write spool: %w", err)
	}
	s.count++
	return nil
}

// Reader ends the write phase and reopens the spool from the start.
func (s *Spool) Reader() (io.Reader, error) {
	if s.w != nil {
		if err := s.w.Flush(); err != nil {
			return nil, fmt.Errorf("failed to flush spool: %w", err)
		}
		s.w = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return nil, fmt.Errorf("failed to close spool: %w", err)
		}
		s.file = nil
	}
	if s.reader != nil {
		s.reader.Close()
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen spool: %w", err)
	}
	s.reader = f
	return f, nil
}

// Close releases the spool and deletes its file. A failed deletion is
// logged and returned; it leaves an orphaned temporary file behind.
func (s *Spool) Close() error {
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	if s.reader != nil {
		s.reader.Close()
		s.reader = nil
	}
	s.w = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove spool file", "path", s.path, "error", err)
		return err
	}
	return nil
}
