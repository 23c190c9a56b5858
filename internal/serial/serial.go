package serial

// Package serial allocates the short human-readable serial numbers stamped
// onto document records.

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// Length is the fixed serial length.
	Length = 8

	charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// defaultMaxAttempts caps collision retries. The keyspace is 36^8, so
	// anything close to this limit indicates a broken exists-check, not a
	// crowded keyspace.
	defaultMaxAttempts = 100
)

// ErrExhausted is returned when allocation keeps colliding past the attempt cap.
var ErrExhausted = errors.New("serial allocation attempts exhausted")

// ExistsFunc reports whether a candidate serial is already taken.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Allocator generates unique serial numbers from an injectable random source.
type Allocator struct {
	rand        io.Reader
	maxAttempts int
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithRand overrides the random source. Used by tests to make allocation
// deterministic.
func WithRand(r io.Reader) Option {
	return func(a *Allocator) { a.rand = r }
}

// WithMaxAttempts overrides the collision retry cap.
func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// New creates an Allocator backed by crypto/rand unless overridden.
func New(opts ...Option) *Allocator {
	a := &Allocator{rand: rand.Reader, maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate generates an 8-character uppercase alphanumeric serial that the
// provided exists-check does not currently know. Collisions regenerate and
// retry; the check is advisory only, and callers must still handle a
// duplicate at commit time if a concurrent writer wins the race.
func (a *Allocator) Allocate(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		candidate, err := a.generate()
		if err != nil {
			return "", err
		}

		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("serial exists check: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrExhausted
}

// generate draws Length characters from charset using rejection sampling so
// every character is uniformly distributed.
func (a *Allocator) generate() (string, error) {
	const max = byte(len(charset)) // 36; rejection bound below keeps sampling unbiased
	limit := byte(256 - 256%len(charset))

	out := make([]byte, 0, Length)
	buf := make([]byte, Length*2)
	for len(out) < Length {
		if _, err := io.ReadFull(a.rand, buf); err != nil {
			return "", fmt.Errorf("read random source: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, charset[b%max])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out), nil
}
