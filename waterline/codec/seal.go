package codec

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidKeySize     = errors.New("codec: key must be 32 bytes")
	ErrCiphertextTooShort = errors.New("codec: ciphertext too short")
	ErrDecryptionFailed   = errors.New("codec: decryption failed")
)

// sealInfo binds derived keys to this codec's framing.
var sealInfo = []byte("waterline/seal/v1")

func deriveSealKey(master []byte) ([]byte, error) {
	if len(master) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKeySize
	}
	hk := hkdf.New(sha256.New, master, nil, sealInfo)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hk, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts each chunk with ChaCha20-Poly1305 under a key derived from
// the master key via HKDF-SHA256. Nonces are a 4-byte random prefix plus a
// 64-bit counter, so a session can seal ~2^64 chunks with no nonce reuse.
//
// Output per chunk: nonce (12 bytes) || ciphertext || tag (16 bytes).
// Seal is stateful; Clone returns an instance with a fresh prefix and
// counter for the new session.
type Seal struct {
	master []byte
	aead   cipher.AEAD
	prefix [4]byte
	seq    uint64
}

// NewSeal creates a sealing codec from a 32-byte master key.
func NewSeal(master []byte) (*Seal, error) {
	key, err := deriveSealKey(master)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	s := &Seal{master: append([]byte(nil), master...), aead: aead}
	if _, err := io.ReadFull(rand.Reader, s.prefix[:]); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Seal) Transform(chunk []byte) ([]byte, error) {
	s.seq++
	nonce := make([]byte, chacha20poly1305.NonceSize)
	copy(nonce[:4], s.prefix[:])
	binary.BigEndian.PutUint64(nonce[4:], s.seq)

	out := make([]byte, len(nonce), len(nonce)+len(chunk)+s.aead.Overhead())
	copy(out, nonce)
	return s.aead.Seal(out, nonce, chunk, nil), nil
}

// Clone derives a fresh sealing instance from the master key. Sessions
// never share a nonce sequence.
func (s *Seal) Clone() Codec {
	fresh, err := NewSeal(s.master)
	if err != nil {
		// The master key was validated at construction; re-derivation
		// can only fail if the entropy source does, which is fatal.
		panic(err)
	}
	return fresh
}

// Open is the decrypting counterpart of Seal. It is keyed the same way and
// reads the nonce from each chunk, so it tolerates chunk loss as long as
// chunk boundaries are preserved.
type Open struct {
	aead cipher.AEAD
}

// NewOpen creates an opening codec from the same 32-byte master key used
// by the sealing side.
func NewOpen(master []byte) (*Open, error) {
	key, err := deriveSealKey(master)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &Open{aead: aead}, nil
}

func (o *Open) Transform(chunk []byte) ([]byte, error) {
	nonceSize := chacha20poly1305.NonceSize
	if len(chunk) < nonceSize+o.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	nonce := chunk[:nonceSize]
	plaintext, err := o.aead.Open(nil, nonce, chunk[nonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func (o *Open) Clone() Codec { return o }
