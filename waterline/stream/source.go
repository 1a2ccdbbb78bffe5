package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultChunkSize is the default read size for ReaderSource (4 KB).
const DefaultChunkSize = 4096

// MaxFramePayload limits a single frame read by FrameSource.
const MaxFramePayload = 1 << 20 // 1 MiB

var (
	ErrFrameTooLarge = errors.New("stream: frame payload too large")
)

// Source supplies ordered byte chunks to a pump.
//
// ReadChunk blocks until data is available and returns either a chunk or
// io.EOF once the underlying resource has nothing further to produce.
// A zero-length chunk with a nil error means "no data yet" and must not be
// taken as end-of-stream; only io.EOF terminates reading. Any other error
// is a read failure and is fatal to the session consuming the source.
type Source interface {
	ReadChunk() ([]byte, error)
	Close() error
}

// ReaderSource reads fixed-size chunks from an io.Reader.
// A blocking reader never returns 0 bytes except at end-of-stream, so a
// short read is passed through as-is and io.EOF is reported only once the
// reader does so.
type ReaderSource struct {
	r    io.Reader
	size int
	eof  bool
}

// NewReaderSource creates a source reading up to chunkSize bytes per call.
// chunkSize <= 0 selects DefaultChunkSize.
func NewReaderSource(r io.Reader, chunkSize int) *ReaderSource {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ReaderSource{r: r, size: chunkSize}
}

// ChunkSize returns the configured read size.
func (s *ReaderSource) ChunkSize() int { return s.size }

func (s *ReaderSource) ReadChunk() ([]byte, error) {
	if s.eof {
		return nil, io.EOF
	}
	buf := make([]byte, s.size)
	n, err := s.r.Read(buf)
	if n > 0 {
		if err == io.EOF {
			// Deliver the final bytes now, report end-of-stream next call.
			s.eof = true
			err = nil
		}
		return buf[:n:n], err
	}
	if err == nil {
		// Transient zero-length read; not end-of-stream.
		return nil, nil
	}
	return nil, err
}

// Close closes the underlying reader when it is closable.
func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// LineSource reads one newline-terminated line per chunk. The trailing
// newline is included so the destination byte stream is unchanged.
type LineSource struct {
	r   io.Reader
	br  *bufio.Reader
	eof bool
}

// NewLineSource creates a line-based source over r.
func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: r, br: bufio.NewReader(r)}
}

func (s *LineSource) ReadChunk() ([]byte, error) {
	if s.eof {
		return nil, io.EOF
	}
	line, err := s.br.ReadBytes('\n')
	if len(line) > 0 {
		if err == io.EOF {
			s.eof = true
			err = nil
		}
		return line, err
	}
	return nil, err
}

func (s *LineSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// FrameSource reads length-prefixed frames: a 4-byte big-endian payload
// length followed by the payload. End-of-stream is a clean io.EOF on the
// length prefix; a truncated frame is a read failure.
type FrameSource struct {
	r   io.Reader
	max int
	eof bool
}

// NewFrameSource creates a framed source over r. maxPayload <= 0 selects
// MaxFramePayload.
func NewFrameSource(r io.Reader, maxPayload int) *FrameSource {
	if maxPayload <= 0 {
		maxPayload = MaxFramePayload
	}
	return &FrameSource{r: r, max: maxPayload}
}

func (s *FrameSource) ReadChunk() ([]byte, error) {
	if s.eof {
		return nil, io.EOF
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(s.r, lenBuf[:]); err != nil {
		if err == io.EOF {
			s.eof = true
			return nil, io.EOF
		}
		return nil, err
	}
	payloadLen := binary.BigEndian.Uint32(lenBuf[:])
	if int(payloadLen) > s.max {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, payloadLen)
	}
	if payloadLen == 0 {
		// Empty frame: no data yet, keep the stream open.
		return nil, nil
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("stream: truncated frame: %w", err)
	}
	return payload, nil
}

func (s *FrameSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// WriteFrame writes one length-prefixed frame in the format FrameSource
// reads. It is the write-side counterpart for framed transports.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFramePayload {
		return fmt.Errorf("%w: %d", ErrFrameTooLarge, len(payload))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
