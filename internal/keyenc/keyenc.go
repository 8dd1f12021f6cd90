// Package keyenc builds exact, comparable cache keys.
//
// Keys are little-endian byte strings. Unlike a fused hash, two keys are
// equal only when every encoded field is equal, so map lookups never
// conflate distinct requests.
package keyenc

import (
	"encoding/binary"
	"hash/fnv"
)

// Builder accumulates fields into a key. The zero value is ready to use.
type Builder struct {
	buf []byte
}

// Uint8 appends a single byte.
func (b *Builder) Uint8(v uint8) {
	b.buf = append(b.buf, v)
}

// Uint32 appends a uint32.
func (b *Builder) Uint32(v uint32) {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
}

// Uint64 appends a uint64.
func (b *Builder) Uint64(v uint64) {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, v)
}

// Bool appends a bool as one byte.
func (b *Builder) Bool(v bool) {
	if v {
		b.buf = append(b.buf, 1)
	} else {
		b.buf = append(b.buf, 0)
	}
}

// String appends a length-prefixed string so that adjacent strings cannot
// run into each other.
//
//nolint:gosec // G115: entry point names and labels are short
func (b *Builder) String(s string) {
	b.Uint32(uint32(len(s)))
	b.buf = append(b.buf, s...)
}

// Len returns the number of encoded bytes.
func (b *Builder) Len() int { return len(b.buf) }

// Key returns the encoded key. The builder may keep appending afterwards.
func (b *Builder) Key() string { return string(b.buf) }

// Clone returns an independent copy of the builder.
func (b *Builder) Clone() Builder {
	return Builder{buf: append([]byte(nil), b.buf...)}
}

// Reset empties the builder, keeping its storage.
func (b *Builder) Reset() { b.buf = b.buf[:0] }

// HashString computes an FNV-1a hash of s.
func HashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s)) // fnv.Write never returns an error
	return h.Sum64()
}
