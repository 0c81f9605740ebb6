// Package tokentheory generates opaque, URL-safe identifiers for web session
// IDs, magic-link tokens, and JWT jti/nonce values.
//
// The goal is the same as UUID version 7 — globally unique, roughly
// time-ordered identifiers — with two deliberate changes. The timestamp is
// bucketed to one-hour intervals so an observer cannot infer sub-hour request
// timing, and the random payload is widened to 32 bytes, the NIST minimum to
// be considered sufficiently unique. A 16-bit rollover counter is appended so
// sequential issuance within one process is visible in logs
// (e.g. 0001, ..., FFFE, FFFF, 0000, ...).
//
// Layout (42 bytes): timestamp bucket (8) | random (32) | rollover counter (2).
// Text form (56 chars): unpadded base64url of the 42 bytes.
package tokentheory

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

const (
	// BinaryLength is the fixed size of every identifier in bytes.
	BinaryLength = 42

	// EncodedLength is the length of the text form: 42 bytes * 4 / 3,
	// exact because 42 is divisible by 3, so no padding is ever emitted.
	EncodedLength = 56

	// bucketSeconds quantizes the timestamp to 1 hour granularity.
	bucketSeconds = 3600

	bucketSize = 8
	randomSize = 32
)

// ErrClockBeforeEpoch is returned when the wall clock reads before the Unix
// epoch. There is no fallback timestamp source; a silently wrong bucket would
// corrupt the correlation property without being detectable.
var ErrClockBeforeEpoch = errors.New("tokentheory: wall clock reads before the unix epoch")

// IssueRecord describes one issued identifier for operational tracing.
//
// It carries the bucket and counter only. The random payload is a bearer
// secret and never crosses the hook boundary.
type IssueRecord struct {
	IssuedAt time.Time
	Bucket   uint64
	Counter  uint16
}

// Generator produces fresh identifiers. It is safe for unrestricted
// concurrent use; the only shared mutable state is the rollover counter,
// which is updated atomically.
//
// Each Generator owns its own counter, so independent instances (e.g. in
// tests) do not observe each other's sequence.
type Generator struct {
	clock   Clock
	entropy io.Reader
	hook    func(IssueRecord)
	counter atomic.Uint32
}

type Option func(*Generator)

// WithClock overrides the time source. A nil clock restores RealClock.
func WithClock(clock Clock) Option {
	return func(g *Generator) {
		if clock == nil {
			g.clock = RealClock{}
			return
		}
		g.clock = clock
	}
}

// WithEntropy overrides the random source. The reader must be safe for
// concurrent use and cryptographically secure in production; a nil reader
// restores crypto/rand.
func WithEntropy(r io.Reader) Option {
	return func(g *Generator) {
		if r == nil {
			g.entropy = rand.Reader
			return
		}
		g.entropy = r
	}
}

// WithIssueHook registers a callback invoked synchronously on the issuing
// goroutine after each successful generation.
func WithIssueHook(fn func(IssueRecord)) Option {
	return func(g *Generator) {
		g.hook = fn
	}
}

// New creates a Generator backed by the real clock and crypto/rand. The
// rollover counter starts so that the first issued identifier carries
// counter value 1.
func New(opts ...Option) *Generator {
	gen := &Generator{
		clock:   RealClock{},
		entropy: rand.Reader,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(gen)
	}
	return gen
}

// GenerateBytes returns a fresh 42-byte identifier:
// bucket (8, big-endian) | random (32) | counter (2, big-endian).
//
// Entropy-source failure is unrecoverable: no retry, no degraded randomness.
func (g *Generator) GenerateBytes() ([]byte, error) {
	now := g.clock.Now()
	sec := now.Unix()
	if sec < 0 {
		return nil, ErrClockBeforeEpoch
	}
	bucket := uint64(sec) / bucketSeconds

	// Low 16 bits of the 32-bit counter; wraparound past 0xFFFF is
	// expected steady-state behavior, not an error.
	count := uint16(g.counter.Add(1))

	id := make([]byte, BinaryLength)
	binary.BigEndian.PutUint64(id[:bucketSize], bucket)
	if _, err := io.ReadFull(g.entropy, id[bucketSize:bucketSize+randomSize]); err != nil {
		return nil, fmt.Errorf("tokentheory: read entropy: %w", err)
	}
	binary.BigEndian.PutUint16(id[bucketSize+randomSize:], count)

	if g.hook != nil {
		g.hook(IssueRecord{
			IssuedAt: now,
			Bucket:   bucket,
			Counter:  count,
		})
	}
	return id, nil
}

// Generate returns a fresh identifier as exactly 56 characters of unpadded
// base64url, suitable for cookie values, URL query parameters, and JWT
// jti/nonce claims.
func (g *Generator) Generate() (string, error) {
	id, err := g.GenerateBytes()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(id), nil
}

// MustGenerate is Generate for callers that treat entropy or clock failure
// as a fatal process condition (e.g. session layers exposing a no-error
// NewID surface). It panics instead of returning an error.
func (g *Generator) MustGenerate() string {
	token, err := g.Generate()
	if err != nil {
		panic(err)
	}
	return token
}
