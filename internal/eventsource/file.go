package eventsource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/okian/podium/internal/domain/model"
)

// FileSource replays newline-delimited JSON events.
type FileSource struct {
	dec    *json.Decoder
	closer io.Closer
	line   int
}

// NewReader returns a FileSource reading from r.
func NewReader(r io.Reader) *FileSource {
	return &FileSource{dec: json.NewDecoder(bufio.NewReader(r))}
}

// OpenFile opens path for replay. Close releases the file.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	s := NewReader(f)
	s.closer = f
	return s, nil
}

// Next implements Source.
func (s *FileSource) Next(ctx context.Context) (model.ScoreEvent, error) {
	if err := ctx.Err(); err != nil {
		return model.ScoreEvent{}, err
	}
	var e model.ScoreEvent
	if err := s.dec.Decode(&e); err != nil {
		if errors.Is(err, io.EOF) {
			return model.ScoreEvent{}, io.EOF
		}
		return model.ScoreEvent{}, fmt.Errorf("decode event %d: %w", s.line+1, err)
	}
	s.line++
	if err := e.Validate(); err != nil {
		return model.ScoreEvent{}, fmt.Errorf("event %d: %w", s.line, err)
	}
	return e, nil
}

// Close closes the underlying file, if any.
func (s *FileSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Writer encodes events as newline-delimited JSON.
type Writer struct {
	buf *bufio.Writer
	enc *json.Encoder
}

// NewWriter returns a Writer on w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	return &Writer{buf: buf, enc: json.NewEncoder(buf)}
}

// Write encodes one event.
func (w *Writer) Write(e model.ScoreEvent) error {
	if err := w.enc.Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

// Copy drains src into w and returns the number of events written.
func (w *Writer) Copy(ctx context.Context, src Source) (int, error) {
	n := 0
	for {
		e, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return n, w.Flush()
		}
		if err != nil {
			return n, err
		}
		if err := w.Write(e); err != nil {
			return n, err
		}
		n++
	}
}

// Flush writes buffered events.
func (w *Writer) Flush() error {
	return w.buf.Flush()
}
