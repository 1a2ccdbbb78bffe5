package codec

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
)

var (
	ErrCompressionFailed   = errors.New("codec: compression failed")
	ErrDecompressionFailed = errors.New("codec: decompression failed")
)

// CompressionLevel controls the speed/ratio tradeoff.
type CompressionLevel int

const (
	CompressionFast    CompressionLevel = iota // Fastest, lower ratio
	CompressionDefault                         // Balanced
	CompressionBest                            // Best ratio, slower
)

// lz4WriterPool reuses LZ4 writers to reduce allocations.
var lz4WriterPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewWriter(nil)
	},
}

// lz4ReaderPool reuses LZ4 readers.
var lz4ReaderPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewReader(nil)
	},
}

// LZ4 compresses each chunk into a self-contained LZ4 frame.
// LZ4 is chosen for its exceptional speed on commodity hardware.
type LZ4 struct {
	level CompressionLevel
}

// NewLZ4 creates an LZ4 compression codec.
func NewLZ4(level CompressionLevel) *LZ4 {
	return &LZ4{level: level}
}

func (c *LZ4) Transform(chunk []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4WriterPool.Get().(*lz4.Writer)
	defer lz4WriterPool.Put(w)

	w.Reset(&buf)

	switch c.level {
	case CompressionFast:
		_ = w.Apply(lz4.CompressionLevelOption(lz4.Fast))
	case CompressionBest:
		_ = w.Apply(lz4.CompressionLevelOption(lz4.Level9))
	default:
		_ = w.Apply(lz4.CompressionLevelOption(lz4.Level4))
	}

	if _, err := w.Write(chunk); err != nil {
		return nil, ErrCompressionFailed
	}
	if err := w.Close(); err != nil {
		return nil, ErrCompressionFailed
	}
	return buf.Bytes(), nil
}

// Clone returns the codec itself: the writer pool is shared and the level
// is immutable, so no per-session state exists.
func (c *LZ4) Clone() Codec { return c }

// LZ4Inflate is the decoding counterpart of LZ4: each incoming chunk must
// be one complete LZ4 frame.
type LZ4Inflate struct{}

// NewLZ4Inflate creates an LZ4 decompression codec.
func NewLZ4Inflate() *LZ4Inflate { return &LZ4Inflate{} }

func (c *LZ4Inflate) Transform(chunk []byte) ([]byte, error) {
	r := lz4ReaderPool.Get().(*lz4.Reader)
	defer lz4ReaderPool.Put(r)

	r.Reset(bytes.NewReader(chunk))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, ErrDecompressionFailed
	}
	return buf.Bytes(), nil
}

func (c *LZ4Inflate) Clone() Codec { return c }
