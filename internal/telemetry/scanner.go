package telemetry

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrMalformedLine wraps JSON parse failures on individual telemetry lines.
// Callers skip the line and continue; one corrupt event never halts replay.
var ErrMalformedLine = errors.New("telemetry: malformed event line")

// Scanner reads events from one telemetry file starting at a byte offset,
// tracking the exact offset after each consumed line so a caller can
// checkpoint precisely.
type Scanner struct {
	file   *os.File
	reader *bufio.Reader
	offset int64
}

// OpenScanner opens a telemetry file for replay from the given offset.
// If the file has shrunk below the offset (rotated or replaced in place),
// the scanner restarts from the beginning.
func OpenScanner(path string, offset int64) (*Scanner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry file %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat telemetry file %s: %w", path, err)
	}
	if info.Size() < offset {
		offset = 0
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek telemetry file %s: %w", path, err)
		}
	}

	return &Scanner{
		file:   f,
		reader: bufio.NewReader(f),
		offset: offset,
	}, nil
}

// Offset returns the byte offset immediately after the last consumed line.
// This is the value to checkpoint.
func (s *Scanner) Offset() int64 {
	return s.offset
}

// Next returns the next event in the file.
//
// Returns io.EOF at end of file. A trailing line without a newline is an
// in-progress append by a concurrent writer; it is left unconsumed (the
// offset does not advance past it) and io.EOF is returned, so the next
// replay pass picks it up once complete.
//
// A complete line that fails to parse advances the offset past the line and
// returns an error wrapping ErrMalformedLine.
func (s *Scanner) Next() (*Event, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if err == io.EOF {
			// Partial trailing line: do not consume.
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("read telemetry line: %w", err)
		}

		s.offset += int64(len(line))

		trimmed := trimLine(line)
		if len(trimmed) == 0 {
			continue
		}

		var ev Event
		if jsonErr := json.Unmarshal(trimmed, &ev); jsonErr != nil {
			return nil, fmt.Errorf("%w at offset %d: %v", ErrMalformedLine, s.offset, jsonErr)
		}
		return &ev, nil
	}
}

// Close releases the underlying file handle.
func (s *Scanner) Close() error {
	return s.file.Close()
}

// trimLine strips the trailing newline and any carriage return.
func trimLine(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
