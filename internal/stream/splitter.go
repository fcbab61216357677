// Package stream turns a chunked server-sent event body into frames and
// decodes each frame into a delta event or a control signal.
package stream

import (
	"bytes"
	"fmt"
	"io"
)

const (
	// Delimiter terminates every frame on the wire.
	Delimiter = "\n\n"

	// MaxFrameSize bounds the bytes buffered for a single unterminated frame.
	MaxFrameSize = 1 << 20

	readChunkSize = 4096
)

// ErrFrameTooLarge is returned when a frame grows past MaxFrameSize
// without a delimiter.
var ErrFrameTooLarge = fmt.Errorf("stream: frame exceeds %d bytes", MaxFrameSize)

var delimiter = []byte(Delimiter)

// Splitter buffers text chunks that arrive at arbitrary boundaries and
// releases only complete, delimiter-terminated frames.
//
// Buffering is done on raw bytes. The delimiter is ASCII, so a multi-byte
// UTF-8 sequence split across two chunks is always rejoined before the
// frame that contains it is released.
type Splitter struct {
	buf []byte
}

// Push appends chunk to the pending buffer and returns every frame that
// is now complete, in arrival order. The trailing incomplete part stays
// buffered for the next call.
func (s *Splitter) Push(chunk []byte) ([]string, error) {
	s.buf = append(s.buf, chunk...)

	var frames []string
	for {
		i := bytes.Index(s.buf, delimiter)
		if i < 0 {
			break
		}
		frames = append(frames, string(s.buf[:i]))
		s.buf = s.buf[i+len(delimiter):]
	}

	if len(s.buf) > MaxFrameSize {
		return frames, ErrFrameTooLarge
	}

	// Reclaim the consumed prefix once the buffer has drained.
	if len(s.buf) == 0 {
		s.buf = s.buf[:0:0]
	}
	return frames, nil
}

// Pending returns the number of buffered bytes not yet released as a frame.
func (s *Splitter) Pending() int {
	return len(s.buf)
}

// Reset discards any buffered partial frame. A stream that ends without a
// final delimiter loses its tail this way; servers terminate every real
// event.
func (s *Splitter) Reset() {
	s.buf = nil
}

// FrameReader pulls frames out of an io.Reader one at a time.
type FrameReader struct {
	r        io.Reader
	splitter Splitter
	queue    []string
	chunk    []byte
	err      error
}

// NewFrameReader creates a FrameReader over r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:     r,
		chunk: make([]byte, readChunkSize),
	}
}

// Next returns the next complete frame. It returns io.EOF once the
// underlying reader is exhausted; an unterminated trailing buffer is
// discarded at that point rather than returned.
func (f *FrameReader) Next() (string, error) {
	for len(f.queue) == 0 {
		if f.err != nil {
			return "", f.err
		}

		n, err := f.r.Read(f.chunk)
		if n > 0 {
			frames, perr := f.splitter.Push(f.chunk[:n])
			f.queue = append(f.queue, frames...)
			if perr != nil {
				f.err = perr
				continue
			}
		}
		if err != nil {
			if err == io.EOF {
				f.splitter.Reset()
			}
			f.err = err
		}
	}

	frame := f.queue[0]
	f.queue = f.queue[1:]
	return frame, nil
}

// Split runs a whole body through a Splitter and returns its frames.
// Mostly useful for tests and for bodies that are already fully buffered.
func Split(body string) []string {
	var s Splitter
	frames, _ := s.Push([]byte(body))
	return frames
}
