// Package hashing produces the deterministic content digests used by the
// fingerprint collectors.
//
// The primary path is SHA-256 rendered as lowercase hex. When the runtime
// has no digest primitive, or the primitive fails, a two-accumulator legacy
// hash over UTF-16 code units is used instead. The two paths are NOT
// cross-compatible: a record hashed on one path never matches a record
// hashed on the other.
package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"unicode/utf16"
)

// Digester is the runtime digest primitive. Implementations may be backed by
// a platform crypto API that can fail or be absent.
type Digester interface {
	Digest(ctx context.Context, data []byte) ([]byte, error)
}

// SHA256 is the in-process digest primitive.
type SHA256 struct{}

func (SHA256) Digest(_ context.Context, data []byte) ([]byte, error) {
	sum := sha256.Sum256(data)
	return sum[:], nil
}

// Hasher turns arbitrary values into stable hex digests.
type Hasher struct {
	digester Digester
}

// New returns a Hasher using d as the primary path. A nil d forces the
// legacy path for every call.
func New(d Digester) *Hasher {
	return &Hasher{digester: d}
}

// Default returns a Hasher backed by in-process SHA-256.
func Default() *Hasher { return New(SHA256{}) }

// Hash returns the digest of v. Strings are hashed as-is; nil and zero
// values hash like the empty string's JSON form; everything else is hashed
// through its JSON serialization.
func (h *Hasher) Hash(ctx context.Context, v any) string {
	s := Normalize(v)
	if h != nil && h.digester != nil {
		sum, err := h.digester.Digest(ctx, []byte(s))
		if err == nil && len(sum) > 0 {
			return hex.EncodeToString(sum)
		}
	}
	return Legacy(s)
}

// Normalize renders v into the exact text fed to the digest.
func Normalize(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if isZero(v) {
		return `""`
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.IsZero()
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

const (
	fnvOffset uint32 = 0x811c9dc5
	fnvPrime  uint32 = 0x01000193
)

// Legacy is the fallback digest: an FNV-style xor/multiply accumulator and
// a position-weighted additive accumulator, both 32-bit, over the UTF-16
// code units of s. The result is always 16 hex characters.
//
// The multiply is exact uint32 arithmetic. Browser scripts that compute the
// same accumulator with float64 products lose low bits once a product passes
// 2^53, so Legacy does not reproduce digests produced client-side that way;
// it only has to be stable across reports handled here.
func Legacy(s string) string {
	h1 := fnvOffset
	h2 := fnvPrime
	for i, c := range utf16.Encode([]rune(s)) {
		h1 ^= uint32(c)
		h1 *= fnvPrime
		h2 += uint32(c) * uint32(i+1)
	}
	return fmt.Sprintf("%08x%08x", h1, h2)
}
