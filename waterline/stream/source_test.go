package stream

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

// eofWithDataReader returns data and io.EOF on the same call, the way
// bytes.Reader-like readers are allowed to.
type eofWithDataReader struct {
	data []byte
}

func (r *eofWithDataReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	if len(r.data) == 0 {
		return n, io.EOF
	}
	return n, nil
}

// zeroThenDataReader returns a transient zero-length read first.
type zeroThenDataReader struct {
	sent bool
	done bool
}

func (r *zeroThenDataReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return 0, nil
	}
	if r.done {
		return 0, io.EOF
	}
	r.done = true
	return copy(p, []byte("payload")), nil
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func drainSource(t *testing.T, src Source) []byte {
	t.Helper()
	var out []byte
	for {
		chunk, err := src.ReadChunk()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("ReadChunk: %v", err)
		}
		out = append(out, chunk...)
	}
}

func TestReaderSourceChunking(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 600) // 4800 bytes
	src := NewReaderSource(bytes.NewReader(data), 0)
	if src.ChunkSize() != DefaultChunkSize {
		t.Fatalf("expected default chunk size, got %d", src.ChunkSize())
	}

	first, err := src.ReadChunk()
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if len(first) != DefaultChunkSize {
		t.Fatalf("expected a full %d-byte chunk, got %d", DefaultChunkSize, len(first))
	}
	rest := drainSource(t, src)
	if got := append(first, rest...); !bytes.Equal(got, data) {
		t.Fatalf("reassembled bytes differ from input")
	}
	// End-of-stream is sticky.
	if _, err := src.ReadChunk(); err != io.EOF {
		t.Fatalf("expected io.EOF after end-of-stream, got %v", err)
	}
}

func TestReaderSourceDataWithEOF(t *testing.T) {
	src := NewReaderSource(&eofWithDataReader{data: []byte("tail")}, 16)
	chunk, err := src.ReadChunk()
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if string(chunk) != "tail" {
		t.Fatalf("expected final bytes before end-of-stream, got %q", chunk)
	}
	if _, err := src.ReadChunk(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReaderSourceTransientZeroRead(t *testing.T) {
	src := NewReaderSource(&zeroThenDataReader{}, 16)
	chunk, err := src.ReadChunk()
	if err != nil || len(chunk) != 0 {
		t.Fatalf("expected empty chunk with nil error, got %q, %v", chunk, err)
	}
	chunk, err = src.ReadChunk()
	if err != nil || string(chunk) != "payload" {
		t.Fatalf("expected payload after transient read, got %q, %v", chunk, err)
	}
}

func TestReaderSourceCloseClosesReader(t *testing.T) {
	tracked := &closeTracker{Reader: strings.NewReader("x")}
	src := NewReaderSource(tracked, 16)
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !tracked.closed {
		t.Fatalf("expected the underlying reader to be closed")
	}
}

func TestLineSource(t *testing.T) {
	src := NewLineSource(strings.NewReader("alpha\nbeta\ngamma"))

	want := []string{"alpha\n", "beta\n", "gamma"}
	for i, w := range want {
		chunk, err := src.ReadChunk()
		if err != nil {
			t.Fatalf("ReadChunk %d: %v", i, err)
		}
		if string(chunk) != w {
			t.Fatalf("line %d: expected %q, got %q", i, w, chunk)
		}
	}
	if _, err := src.ReadChunk(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestFrameSourceRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	frames := [][]byte{[]byte("one"), []byte("twotwo"), bytes.Repeat([]byte{0xAB}, 500)}
	for _, f := range frames {
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	src := NewFrameSource(&buf, 0)
	for i, want := range frames {
		got, err := src.ReadChunk()
		if err != nil {
			t.Fatalf("ReadChunk %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d mismatch", i)
		}
	}
	if _, err := src.ReadChunk(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestFrameSourceEmptyFrameKeepsStreamOpen(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := WriteFrame(&buf, []byte("after")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	src := NewFrameSource(&buf, 0)
	chunk, err := src.ReadChunk()
	if err != nil || len(chunk) != 0 {
		t.Fatalf("expected empty chunk with nil error, got %q, %v", chunk, err)
	}
	chunk, err = src.ReadChunk()
	if err != nil || string(chunk) != "after" {
		t.Fatalf("expected the following frame, got %q, %v", chunk, err)
	}
}

func TestFrameSourceTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("complete")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	full := buf.Bytes()
	src := NewFrameSource(bytes.NewReader(full[:len(full)-3]), 0)

	if _, err := src.ReadChunk(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected-EOF for a truncated frame, got %v", err)
	}
}

func TestFrameSourceRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, bytes.Repeat([]byte{1}, 64)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	src := NewFrameSource(&buf, 16)
	if _, err := src.ReadChunk(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}
