package hash

// Package hash computes content digests for document authenticity checks.
// A digest depends only on the byte content of the input, never on
// filenames or metadata.

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// chunkSize bounds how much of the stream is held in memory at once.
const chunkSize = 32 * 1024

// Reader computes the SHA-256 digest of everything readable from r and
// returns it as a lowercase 64-character hex string. The stream is consumed
// in fixed-size chunks so arbitrarily large artifacts never get buffered
// whole.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes computes the SHA-256 digest of b as a lowercase hex string.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Digest is an incremental SHA-256 writer. It sits behind an io.TeeReader so
// content gets hashed in the same pass that streams it to storage.
type Digest struct {
	h hash.Hash
}

// NewDigest returns a fresh incremental digest.
func NewDigest() *Digest {
	return &Digest{h: sha256.New()}
}

func (d *Digest) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

// Hex returns the digest of everything written so far as lowercase hex.
func (d *Digest) Hex() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
