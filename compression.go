package memo

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// CompressionCodec represents a value compression algorithm.
type CompressionCodec string

const (
	CompressionNone   CompressionCodec = "none"
	CompressionGzip   CompressionCodec = "gzip"
	CompressionSnappy CompressionCodec = "snappy"
	CompressionZstd   CompressionCodec = "zstd"
)

var (
	compressMagic = []byte("CMP1")

	ErrValueTooLarge      = errors.New("memo: value exceeds max size")
	ErrUnsupportedCodec   = errors.New("memo: unsupported compression codec")
	ErrCorruptCompression = errors.New("memo: corrupt compressed payload")
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// encodeValue compresses value behind a magic header naming the codec. The
// size limit applies to the input and to the compressed output.
func encodeValue(codec CompressionCodec, max int, value []byte) ([]byte, error) {
	if max > 0 && len(value) > max {
		return nil, ErrValueTooLarge
	}
	var payload []byte
	var tag byte
	switch codec {
	case CompressionNone, "":
		return value, nil
	case CompressionGzip:
		var buf bytes.Buffer
		zw, _ := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if _, err := zw.Write(value); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		payload, tag = buf.Bytes(), 'g'
	case CompressionSnappy:
		payload, tag = s2.EncodeSnappy(nil, value), 's'
	case CompressionZstd:
		payload, tag = zstdEncoder.EncodeAll(value, nil), 'z'
	default:
		return nil, ErrUnsupportedCodec
	}
	out := make([]byte, 0, len(compressMagic)+1+len(payload))
	out = append(out, compressMagic...)
	out = append(out, tag)
	out = append(out, payload...)
	if max > 0 && len(out) > max {
		return nil, ErrValueTooLarge
	}
	return out, nil
}

// decodeValue reverses encodeValue. Values without the magic header are
// returned unchanged so uncompressed entries stay readable.
func decodeValue(in []byte) ([]byte, error) {
	if len(in) < len(compressMagic)+1 {
		return in, nil
	}
	if !bytes.Equal(in[:len(compressMagic)], compressMagic) {
		return in, nil
	}
	codec := in[len(compressMagic)]
	payload := in[len(compressMagic)+1:]
	switch codec {
	case 'g':
		gr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, ErrCorruptCompression
		}
		defer gr.Close()
		out, err := io.ReadAll(gr)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	case 's':
		out, err := s2.Decode(nil, payload)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	case 'z':
		out, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	default:
		return nil, ErrUnsupportedCodec
	}
}
