package valuestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the block compression of encoded vectors.
type Compression uint8

const (
	CompressionNone Compression = iota
	// CompressionLZ4 favors speed.
	CompressionLZ4
	// CompressionZSTD favors ratio.
	CompressionZSTD
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	}
	return fmt.Sprintf("Compression(%d)", uint8(c))
}

// ParseCompression accepts "", "none", "lz4" and "zstd".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	}
	return 0, fmt.Errorf("valuestore: unknown compression %q", s)
}

// Encoded block layout:
//
//	[uncompressed size uint32][compressed size uint32][payload]
//
// A compressed size of 0 means the payload is the raw little-endian float32
// vector. Payloads that do not shrink below 90% are stored raw.
const headerSize = 8

var errCorrupt = errors.New("valuestore: corrupt vector block")

var (
	zstdEncoders sync.Pool
	zstdDecoders sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoders.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoders.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Codec converts vectors to and from stored blocks.
type Codec struct {
	Compression Compression
}

// Encode serializes v.
func (c Codec) Encode(v []float32) ([]byte, error) {
	raw := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(f))
	}

	var packed []byte
	switch c.Compression {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err != nil {
			return nil, err
		}
		packed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(raw, nil)
		zstdEncoders.Put(enc)
	}

	if len(packed) == 0 || float64(len(packed)) > 0.9*float64(len(raw)) {
		out := make([]byte, headerSize+len(raw))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(raw)))
		copy(out[headerSize:], raw)
		return out, nil
	}

	out := make([]byte, headerSize+len(packed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(packed)))
	copy(out[headerSize:], packed)
	return out, nil
}

// Decode parses a block written by Encode with the same compression.
func (c Codec) Decode(b []byte) ([]float32, error) {
	if len(b) < headerSize {
		return nil, errCorrupt
	}
	rawSize := binary.LittleEndian.Uint32(b[0:])
	packedSize := binary.LittleEndian.Uint32(b[4:])
	if rawSize%4 != 0 {
		return nil, errCorrupt
	}

	var raw []byte
	if packedSize == 0 {
		if uint32(len(b)-headerSize) < rawSize {
			return nil, errCorrupt
		}
		raw = b[headerSize : headerSize+rawSize]
	} else {
		if uint32(len(b)-headerSize) < packedSize {
			return nil, errCorrupt
		}
		packed := b[headerSize : headerSize+packedSize]
		switch c.Compression {
		case CompressionLZ4:
			raw = make([]byte, rawSize)
			n, err := lz4.UncompressBlock(packed, raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", errCorrupt, err)
			}
			raw = raw[:n]
		case CompressionZSTD:
			dec := getZstdDecoder()
			out, err := dec.DecodeAll(packed, make([]byte, 0, rawSize))
			zstdDecoders.Put(dec)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", errCorrupt, err)
			}
			raw = out
		default:
			return nil, fmt.Errorf("%w: compressed block without codec", errCorrupt)
		}
		if uint32(len(raw)) != rawSize {
			return nil, errCorrupt
		}
	}

	v := make([]float32, len(raw)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return v, nil
}
