package fseq

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"fseqgen/internal/codec"
)

// blockEncoder compresses one block of whole frames.
type blockEncoder interface {
	Encode(dst, src []byte) ([]byte, error)
	Close() error
}

// blockDecoder expands one block of whole frames.
type blockDecoder interface {
	Decode(dst, src []byte) ([]byte, error)
	Close() error
}

func newBlockEncoder(c codec.Compression, level int) (blockEncoder, error) {
	switch c {
	case codec.CompressionZstd:
		opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if level != codec.DefaultLevel {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		enc, err := zstd.NewWriter(nil, opts...)
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		return zstdEncoder{enc: enc}, nil
	case codec.CompressionZlib:
		if level == codec.DefaultLevel {
			level = zlib.DefaultCompression
		}
		if level < zlib.HuffmanOnly || level > zlib.BestCompression {
			return nil, fmt.Errorf("zlib level %d outside %d..%d", level, zlib.HuffmanOnly, zlib.BestCompression)
		}
		return zlibEncoder{level: level}, nil
	default:
		return nil, fmt.Errorf("no block encoder for compression %s", c)
	}
}

func newBlockDecoder(c codec.Compression) (blockDecoder, error) {
	switch c {
	case codec.CompressionZstd:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		return zstdDecoder{dec: dec}, nil
	case codec.CompressionZlib:
		return zlibDecoder{}, nil
	default:
		return nil, fmt.Errorf("no block decoder for compression %s", c)
	}
}

type zstdEncoder struct {
	enc *zstd.Encoder
}

func (z zstdEncoder) Encode(dst, src []byte) ([]byte, error) {
	return z.enc.EncodeAll(src, dst[:0]), nil
}

func (z zstdEncoder) Close() error {
	return z.enc.Close()
}

type zstdDecoder struct {
	dec *zstd.Decoder
}

func (z zstdDecoder) Decode(dst, src []byte) ([]byte, error) {
	out, err := z.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}

func (z zstdDecoder) Close() error {
	z.dec.Close()
	return nil
}

type zlibEncoder struct {
	level int
}

func (z zlibEncoder) Encode(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst[:0])
	w, err := zlib.NewWriterLevel(buf, z.level)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("zlib encode: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (zlibEncoder) Close() error { return nil }

type zlibDecoder struct{}

func (zlibDecoder) Decode(dst, src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer r.Close()
	buf := bytes.NewBuffer(dst[:0])
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("zlib decode: %w", err)
	}
	return buf.Bytes(), nil
}

func (zlibDecoder) Close() error { return nil }
