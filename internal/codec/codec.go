// Package codec defines the capability set the export pipeline needs from a
// sequence file codec.
//
// The pipeline never touches bytes on disk directly: it opens a Reader,
// creates a Writer, copies header metadata, and streams frames. Concrete
// formats live elsewhere (see package fseq) and satisfy these interfaces.
package codec

import (
	"fmt"
	"strconv"
	"strings"

	"fseqgen/internal/channels"
)

// DefaultLevel asks the codec for its own default compression level.
const DefaultLevel = -99

// Compression selects the block compression of a destination file.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionZlib
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionZlib:
		return "zlib"
	default:
		return "unknown(" + strconv.Itoa(int(c)) + ")"
	}
}

// MarshalText renders the compression name for TOML and JSON.
func (c Compression) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a compression name.
func (c *Compression) UnmarshalText(text []byte) error {
	parsed, err := ParseCompression(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCompression maps a user supplied name onto a Compression.
func ParseCompression(value string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "zstd", "zstandard":
		return CompressionZstd, nil
	case "zlib", "deflate":
		return CompressionZlib, nil
	case "none", "", "uncompressed":
		return CompressionNone, nil
	default:
		return CompressionNone, fmt.Errorf("unsupported compression %q (want zstd, zlib, or none)", value)
	}
}

// ParseFormat splits a "major.minor" format string. A bare "5" is major 5,
// minor 0. Missing or unparseable segments are 0.
func ParseFormat(value string) (major, minor int) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, 0
	}
	if !strings.Contains(value, ".") {
		return atoiOrZero(value), 0
	}
	parts := strings.Split(value, ".")
	if len(parts) != 2 {
		return 0, 0
	}
	return atoiOrZero(parts[0]), atoiOrZero(parts[1])
}

func atoiOrZero(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Reader is an open source sequence.
type Reader interface {
	ChannelCount() uint32
	FrameCount() uint32
	StepTimeMS() uint32
	Version() (major, minor int)
	// PrepareRead hints which windows of each frame will be consumed. It is
	// an optimisation only; ReadFrame always fills the full frame width.
	PrepareRead(ranges []channels.Range)
	// ReadFrame decodes frame index into dst, which must hold at least
	// ChannelCount bytes.
	ReadFrame(index uint32, dst []byte) error
	Close() error
}

// Writer is a destination sequence under construction. Calls follow the
// order: configuration, InitializeFrom, SetChannelCount, WriteHeader,
// AppendFrame for every frame, Finalize, Close. Nothing appears at the
// destination path until Finalize succeeds; Close without it discards the
// output.
type Writer interface {
	EnableMinorVersionFeatures(minor int)
	// SetSparseRanges records the source windows the destination frames were
	// taken from. Only major version 2 supports it.
	SetSparseRanges(ranges []channels.Range) error
	InitializeFrom(src Reader)
	SetChannelCount(count uint32)
	WriteHeader() error
	AppendFrame(index uint32, frame []byte) error
	Finalize() error
	Close() error
}

// Codec opens and creates sequence files.
type Codec interface {
	OpenForRead(path string) (Reader, error)
	CreateForWrite(path string, major int, compression Compression, level int) (Writer, error)
}
