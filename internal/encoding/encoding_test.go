package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingRoundTrip(t *testing.T) {
	original := []float32{0.0, 1.0, -1.5, 3.14159, -0.00001}
	decoded, err := DecodeEmbedding(EncodeEmbedding(original))
	require.NoError(t, err)
	require.Len(t, decoded, len(original))
	for i := range original {
		assert.InDelta(t, float64(original[i]), float64(decoded[i]), 1e-6)
	}
}

func TestEncodeEmbeddingKnownBytes(t *testing.T) {
	// 1.0 as Float32 LE is 00 00 80 3f.
	assert.Equal(t, "AACAPw==", EncodeEmbedding([]float32{1.0}))
}

func TestDecodeEmbeddingErrors(t *testing.T) {
	_, err := DecodeEmbedding("!!!not base64!!!")
	assert.Error(t, err)

	// Valid base64 but not a multiple of four bytes.
	_, err = DecodeEmbedding("AAA=")
	assert.ErrorIs(t, err, ErrInvalidEmbedding)
}

func TestDecodeEmbeddingEmpty(t *testing.T) {
	decoded, err := DecodeEmbedding("")
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestUint32BE(t *testing.T) {
	buf := PutUint32BE(nil, 0x01020304)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf)

	v, ok := ReadUint32BE(buf, 0)
	require.True(t, ok)
	assert.Equal(t, uint32(0x01020304), v)

	_, ok = ReadUint32BE(buf, 1)
	assert.False(t, ok)
	_, ok = ReadUint32BE(buf, -1)
	assert.False(t, ok)
}

func TestUint64Halves(t *testing.T) {
	value := uint64(0x0102030405060708)
	buf := PutUint64Halves(nil, value)
	require.Len(t, buf, 8)
	// High half first, both big-endian.
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, buf)

	v, ok := ReadUint64Halves(buf, 0)
	require.True(t, ok)
	assert.Equal(t, value, v)

	_, ok = ReadUint64Halves(buf, 4)
	assert.False(t, ok)
}
