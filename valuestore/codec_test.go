package valuestore

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_Modes(t *testing.T) {
	compressible := make([]float32, 256)
	for i := range compressible {
		compressible[i] = float32(i % 4)
	}
	random := []float32{0.1, -2.5, 3.25, 1e-7, 42}

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			codec := Codec{Compression: c}
			for _, v := range [][]float32{compressible, random, {}} {
				b, err := codec.Encode(v)
				require.NoError(t, err)
				got, err := codec.Decode(b)
				require.NoError(t, err)
				assert.Equal(t, len(v), len(got))
				assert.Equal(t, v, got[:len(v)])
			}
		})
	}
}

func TestCodec_CompressesRepetitiveData(t *testing.T) {
	v := make([]float32, 1024)
	b, err := Codec{Compression: CompressionZSTD}.Encode(v)
	require.NoError(t, err)
	assert.Less(t, len(b), 4*len(v))
	assert.NotZero(t, binary.LittleEndian.Uint32(b[4:]))
}

func TestCodec_SmallPayloadStoredRaw(t *testing.T) {
	b, err := Codec{Compression: CompressionLZ4}.Encode([]float32{1.5})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(b[4:]))
	assert.Len(t, b, headerSize+4)
}

func TestCodec_Corrupt(t *testing.T) {
	codec := Codec{}
	_, err := codec.Decode([]byte{1, 2})
	assert.ErrorIs(t, err, errCorrupt)

	b := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(b, 16)
	_, err = codec.Decode(b)
	assert.ErrorIs(t, err, errCorrupt)

	binary.LittleEndian.PutUint32(b[4:], 4)
	_, err = codec.Decode(append(b, 0, 0, 0, 0))
	assert.ErrorIs(t, err, errCorrupt)
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "LZ4": CompressionLZ4, "zstd": CompressionZSTD} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}
