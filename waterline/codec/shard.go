package codec

import (
	"encoding/binary"
	"errors"

	"github.com/klauspost/reedsolomon"
)

var (
	ErrInvalidShardConfig = errors.New("codec: invalid data/parity shard configuration")
	ErrShardFrameTooShort = errors.New("codec: shard frame too short")
	ErrShardConfigChanged = errors.New("codec: shard frame does not match codec configuration")
	ErrTooManyShardsLost  = errors.New("codec: too many shards lost, cannot recover")
	ErrShardVerifyFailed  = errors.New("codec: shard parity verification failed")
)

// shardHeaderSize is 1 byte data count + 1 byte parity count +
// 4 bytes original length + 4 bytes shard size.
const shardHeaderSize = 10

// Shard encodes each chunk as a Reed-Solomon shard frame so a lossy
// transport can drop up to the parity count of shards per chunk without
// losing data. Frame layout:
//
//	1 byte: data shard count
//	1 byte: parity shard count
//	4 bytes: original chunk length (big endian)
//	4 bytes: shard size (big endian)
//	For each shard: 1 present byte, then shard-size payload bytes
//
// A transport that drops a shard zeroes its present byte (keeping the
// frame length fixed); Unshard reconstructs the missing shards.
type Shard struct {
	enc    reedsolomon.Encoder
	data   int
	parity int
}

// NewShard creates a sharding codec with the given data/parity counts.
// Both must be in 1..255 per the frame header.
func NewShard(dataShards, parityShards int) (*Shard, error) {
	if dataShards <= 0 || dataShards > 255 || parityShards <= 0 || parityShards > 255 {
		return nil, ErrInvalidShardConfig
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	return &Shard{enc: enc, data: dataShards, parity: parityShards}, nil
}

// DataShards returns the data shard count.
func (c *Shard) DataShards() int { return c.data }

// ParityShards returns the parity shard count.
func (c *Shard) ParityShards() int { return c.parity }

func (c *Shard) Transform(chunk []byte) ([]byte, error) {
	shards, err := c.enc.Split(chunk)
	if err != nil {
		return nil, err
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, err
	}

	shardSize := len(shards[0])
	total := c.data + c.parity
	out := make([]byte, shardHeaderSize+total*(1+shardSize))
	out[0] = byte(c.data)
	out[1] = byte(c.parity)
	binary.BigEndian.PutUint32(out[2:6], uint32(len(chunk)))
	binary.BigEndian.PutUint32(out[6:10], uint32(shardSize))

	offset := shardHeaderSize
	for _, shard := range shards {
		out[offset] = 1
		offset++
		copy(out[offset:], shard)
		offset += shardSize
	}
	return out, nil
}

// Clone returns the codec itself: the encoder is safe for concurrent use
// and carries no per-session state.
func (c *Shard) Clone() Codec { return c }

// Unshard is the decoding counterpart of Shard. It reconstructs missing
// shards when possible and verifies parity when all shards are present.
type Unshard struct {
	enc    reedsolomon.Encoder
	data   int
	parity int
}

// NewUnshard creates the decoding codec. The configuration must match the
// sharding side.
func NewUnshard(dataShards, parityShards int) (*Unshard, error) {
	if dataShards <= 0 || dataShards > 255 || parityShards <= 0 || parityShards > 255 {
		return nil, ErrInvalidShardConfig
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	return &Unshard{enc: enc, data: dataShards, parity: parityShards}, nil
}

func (c *Unshard) Transform(chunk []byte) ([]byte, error) {
	if len(chunk) < shardHeaderSize {
		return nil, ErrShardFrameTooShort
	}
	if int(chunk[0]) != c.data || int(chunk[1]) != c.parity {
		return nil, ErrShardConfigChanged
	}
	origLen := int(binary.BigEndian.Uint32(chunk[2:6]))
	shardSize := int(binary.BigEndian.Uint32(chunk[6:10]))
	total := c.data + c.parity
	if len(chunk) != shardHeaderSize+total*(1+shardSize) {
		return nil, ErrShardFrameTooShort
	}

	shards := make([][]byte, total)
	lost := 0
	offset := shardHeaderSize
	for i := 0; i < total; i++ {
		present := chunk[offset] == 1
		offset++
		if present {
			shards[i] = chunk[offset : offset+shardSize : offset+shardSize]
		} else {
			lost++
		}
		offset += shardSize
	}

	if lost > 0 {
		if err := c.enc.ReconstructData(shards); err != nil {
			if err == reedsolomon.ErrTooFewShards {
				return nil, ErrTooManyShardsLost
			}
			return nil, err
		}
	} else {
		ok, err := c.enc.Verify(shards)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrShardVerifyFailed
		}
	}

	out := make([]byte, 0, origLen)
	for i := 0; i < c.data && len(out) < origLen; i++ {
		remaining := origLen - len(out)
		if remaining >= len(shards[i]) {
			out = append(out, shards[i]...)
		} else {
			out = append(out, shards[i][:remaining]...)
		}
	}
	return out, nil
}

func (c *Unshard) Clone() Codec { return c }
