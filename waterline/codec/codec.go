// Package codec provides per-chunk transforms applied by a pump between
// reading and enqueueing.
//
// A codec sees each chunk exactly once, in source order. Stateful codecs
// carry per-session state and must be cloned for every session; Clone
// returns an independent instance with fresh state. Chunk boundaries are
// significant for the decoding counterparts (LZ4Inflate, Open, Unshard):
// transports that do not preserve them need framing, see stream.FrameSource.
package codec

// Codec transforms outgoing chunks before they are queued for delivery.
type Codec interface {
	// Transform encodes one chunk. A nil or empty result drops the chunk.
	Transform(chunk []byte) ([]byte, error)
	// Clone returns an independent codec with fresh state for a new
	// session. Stateless codecs may return themselves.
	Clone() Codec
}

// Identity returns the codec that passes chunks through unchanged.
func Identity() Codec { return identity{} }

type identity struct{}

func (identity) Transform(chunk []byte) ([]byte, error) { return chunk, nil }

func (i identity) Clone() Codec { return i }
