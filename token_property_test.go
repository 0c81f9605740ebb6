package tokentheory

import (
	"encoding/base64"
	"encoding/binary"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// For any non-negative wall-clock reading, the first 8 bytes of the
// identifier SHALL be the big-endian encoding of epoch_seconds / 3600.
func TestProperty_BucketEncodesFlooredHours(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sec := rapid.Int64Range(0, 1<<40).Draw(t, "epoch_seconds")
		nanos := rapid.Int64Range(0, 999_999_999).Draw(t, "nanos")

		gen := New(WithClock(fixedClock{now: time.Unix(sec, nanos)}))

		id, err := gen.GenerateBytes()
		if err != nil {
			t.Fatalf("GenerateBytes failed: %v", err)
		}

		got := binary.BigEndian.Uint64(id[:8])
		want := uint64(sec) / 3600
		if got != want {
			t.Fatalf("bucket mismatch: got %d, want %d", got, want)
		}
	})
}

// For any entropy pattern and clock reading, decoding the text form SHALL
// yield the exact 42 bytes of the matched generation.
func TestProperty_TextFormRoundTrips(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sec := rapid.Int64Range(0, 1<<40).Draw(t, "epoch_seconds")
		pattern := rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(t, "pattern")

		clock := fixedClock{now: time.Unix(sec, 0)}
		textGen := New(WithClock(clock), WithEntropy(&patternEntropy{pattern: pattern}))
		byteGen := New(WithClock(clock), WithEntropy(&patternEntropy{pattern: pattern}))

		token, err := textGen.Generate()
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if len(token) != EncodedLength {
			t.Fatalf("token length: got %d, want %d", len(token), EncodedLength)
		}

		id, err := byteGen.GenerateBytes()
		if err != nil {
			t.Fatalf("GenerateBytes failed: %v", err)
		}

		decoded, err := base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			t.Fatalf("token is not unpadded base64url: %v", err)
		}
		if string(decoded) != string(id) {
			t.Fatalf("round-trip mismatch:\n got %x\nwant %x", decoded, id)
		}
	})
}

// For any sequence of N generations on one instance, each counter field
// SHALL be the previous counter plus one, modulo 65536.
func TestProperty_CounterIncrementsModulo65536(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 200).Draw(t, "count")
		start := rapid.Uint32().Draw(t, "start")

		gen := New(WithClock(fixedClock{now: time.Unix(1_700_000_000, 0)}))
		gen.counter.Store(start)

		prev := uint16(start)
		for range n {
			id, err := gen.GenerateBytes()
			if err != nil {
				t.Fatalf("GenerateBytes failed: %v", err)
			}
			got := binary.BigEndian.Uint16(id[40:])
			if got != prev+1 {
				t.Fatalf("counter step: got %#04x after %#04x", got, prev)
			}
			prev = got
		}
	})
}

// For any sequence of generations, no two identifiers SHALL be equal and
// every identifier SHALL be exactly 42 bytes.
func TestProperty_IdentifiersDistinctAndFixedWidth(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 50).Draw(t, "count")

		gen := New()
		seen := make(map[string]bool, n)
		for range n {
			id, err := gen.GenerateBytes()
			if err != nil {
				t.Fatalf("GenerateBytes failed: %v", err)
			}
			if len(id) != BinaryLength {
				t.Fatalf("identifier length: got %d, want %d", len(id), BinaryLength)
			}
			if seen[string(id)] {
				t.Fatalf("duplicate identifier: %x", id)
			}
			seen[string(id)] = true
		}
	})
}
