// Package encoding holds the low-level byte codecs shared by the
// persistence layer and the learning engine: base64-wrapped Float32
// little-endian embeddings and big-endian u32 field headers.
package encoding

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
)

// ErrInvalidEmbedding is returned when decoded embedding bytes are not a
// multiple of four (one Float32 per coordinate).
var ErrInvalidEmbedding = errors.New("invalid embedding length")

// EncodeEmbedding encodes a float32 vector as base64 of little-endian
// Float32 bytes. This matches the JS Float32Array byte order so stores
// written by the TypeScript implementation stay readable.
func EncodeEmbedding(embedding []float32) string {
	buf := make([]byte, 4*len(embedding))
	for i, f := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeEmbedding decodes a base64 Float32-LE byte string back to a
// float32 slice.
func DecodeEmbedding(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, ErrInvalidEmbedding
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

// PutUint32BE appends a big-endian u32 to buf.
func PutUint32BE(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// ReadUint32BE reads a big-endian u32 from data at offset. The second
// return value is false when fewer than four bytes remain.
func ReadUint32BE(data []byte, offset int) (uint32, bool) {
	if offset < 0 || offset+4 > len(data) {
		return 0, false
	}
	return binary.BigEndian.Uint32(data[offset : offset+4]), true
}

// PutUint64Halves appends a 64-bit value as two big-endian 32-bit halves,
// high half first. The split layout is required for compatibility with the
// persisted v2 index format.
func PutUint64Halves(buf []byte, v uint64) []byte {
	buf = PutUint32BE(buf, uint32(v>>32))
	return PutUint32BE(buf, uint32(v))
}

// ReadUint64Halves reads a 64-bit value stored as two big-endian 32-bit
// halves at offset.
func ReadUint64Halves(data []byte, offset int) (uint64, bool) {
	high, ok := ReadUint32BE(data, offset)
	if !ok {
		return 0, false
	}
	low, ok := ReadUint32BE(data, offset+4)
	if !ok {
		return 0, false
	}
	return uint64(high)<<32 | uint64(low), true
}
