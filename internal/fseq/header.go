package fseq

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"fseqgen/internal/channels"
	"fseqgen/internal/codec"
)

const (
	v1HeaderSize    = 28
	v2HeaderSize    = 32
	blockEntrySize  = 8
	sparseEntrySize = 6
	varHeaderPrefix = 4

	maxSparseRanges  = 255
	maxSparseValue   = 0xFFFFFF
	maxBlocksLegacy  = 255
	maxBlocksCurrent = 4095
)

var magic = [4]byte{'P', 'S', 'E', 'Q'}

var (
	// ErrBadMagic reports a file that does not start with the PSEQ marker.
	ErrBadMagic = errors.New("not an fseq file")
	// ErrUnsupportedVersion reports a major version other than 1 or 2.
	ErrUnsupportedVersion = errors.New("unsupported fseq version")
	// ErrTruncated reports a header or frame region shorter than declared.
	ErrTruncated = errors.New("fseq file truncated")
	// ErrSparseRanges reports sparse metadata the format cannot store.
	ErrSparseRanges = errors.New("invalid sparse ranges")
)

// VariableHeader is one tagged metadata record, e.g. "mf" (media file) or
// "sp" (sequence producer). Data is kept verbatim.
type VariableHeader struct {
	Code string
	Data []byte
}

// Value returns Data as text with any NUL terminator removed.
func (v VariableHeader) Value() string {
	data := v.Data
	for len(data) > 0 && data[len(data)-1] == 0 {
		data = data[:len(data)-1]
	}
	return string(data)
}

// BlockEntry locates one compressed block.
type BlockEntry struct {
	FirstFrame uint32
	Length     uint32
}

// Header summarises a sequence file.
type Header struct {
	Major           int
	Minor           int
	DataOffset      uint32
	HeaderLength    uint32
	ChannelCount    uint32
	FrameCount      uint32
	StepTimeMS      uint32
	Compression     codec.Compression
	Blocks          []BlockEntry
	SparseRanges    []channels.Range
	VariableHeaders []VariableHeader
	UniqueID        uint64
}

// TotalTime is the playback length of the sequence.
func (h Header) TotalTime() time.Duration {
	return time.Duration(uint64(h.FrameCount)*uint64(h.StepTimeMS)) * time.Millisecond
}

// Lookup returns the first variable header with the given code.
func (h Header) Lookup(code string) (VariableHeader, bool) {
	for _, vh := range h.VariableHeaders {
		if vh.Code == code {
			return vh, true
		}
	}
	return VariableHeader{}, false
}

// usedBlocks returns the index entries that carry data.
func (h Header) usedBlocks() []BlockEntry {
	out := make([]BlockEntry, 0, len(h.Blocks))
	for _, b := range h.Blocks {
		if b.Length == 0 {
			continue
		}
		out = append(out, b)
	}
	return out
}

func maxBlocksForMinor(minor int) int {
	if minor >= 1 {
		return maxBlocksCurrent
	}
	return maxBlocksLegacy
}

func align4(n uint32) uint32 {
	return (n + 3) &^ 3
}

func varHeadersSize(headers []VariableHeader) uint32 {
	var size uint32
	for _, vh := range headers {
		size += varHeaderPrefix + uint32(len(vh.Data))
	}
	return size
}

func encodeVariableHeaders(dst []byte, headers []VariableHeader) int {
	pos := 0
	for _, vh := range headers {
		length := varHeaderPrefix + len(vh.Data)
		binary.LittleEndian.PutUint16(dst[pos:], uint16(length))
		code := []byte(vh.Code + "  ")[:2]
		dst[pos+2] = code[0]
		dst[pos+3] = code[1]
		copy(dst[pos+4:], vh.Data)
		pos += length
	}
	return pos
}

func parseVariableHeaders(data []byte) []VariableHeader {
	var out []VariableHeader
	pos := 0
	for pos+varHeaderPrefix <= len(data) {
		length := int(binary.LittleEndian.Uint16(data[pos:]))
		if length < varHeaderPrefix || pos+length > len(data) {
			break
		}
		payload := make([]byte, length-varHeaderPrefix)
		copy(payload, data[pos+varHeaderPrefix:pos+length])
		out = append(out, VariableHeader{Code: string(data[pos+2 : pos+4]), Data: payload})
		pos += length
	}
	return out
}

func validateVariableHeaders(headers []VariableHeader) error {
	for _, vh := range headers {
		if len(vh.Code) != 2 {
			return fmt.Errorf("variable header code %q must be two characters", vh.Code)
		}
		if varHeaderPrefix+len(vh.Data) > 0xFFFF {
			return fmt.Errorf("variable header %q too large (%d bytes)", vh.Code, len(vh.Data))
		}
	}
	return nil
}

func validateSparseRanges(ranges []channels.Range, channelCount uint32) error {
	if len(ranges) == 0 {
		return nil
	}
	if len(ranges) > maxSparseRanges {
		return fmt.Errorf("%w: %d ranges exceeds limit of %d", ErrSparseRanges, len(ranges), maxSparseRanges)
	}
	for i, r := range ranges {
		if r.Offset > maxSparseValue || r.Length > maxSparseValue {
			return fmt.Errorf("%w: range %d (%s) exceeds 24-bit field", ErrSparseRanges, i, r)
		}
	}
	if total := channels.Total(ranges); total != uint64(channelCount) {
		return fmt.Errorf("%w: ranges select %d channels but frames carry %d", ErrSparseRanges, total, channelCount)
	}
	return nil
}

// encodeV1 lays out a version 1 header including variable headers and
// padding up to the returned data offset.
func encodeV1(h Header) []byte {
	offset := align4(v1HeaderSize + varHeadersSize(h.VariableHeaders))
	buf := make([]byte, offset)
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint16(buf[4:], uint16(offset))
	buf[6] = byte(h.Minor)
	buf[7] = 1
	binary.LittleEndian.PutUint16(buf[8:], v1HeaderSize)
	binary.LittleEndian.PutUint32(buf[10:], h.ChannelCount)
	binary.LittleEndian.PutUint32(buf[14:], h.FrameCount)
	binary.LittleEndian.PutUint16(buf[18:], uint16(h.StepTimeMS))
	// universe count and size stay zero
	buf[24] = 1 // gamma
	buf[25] = 2 // color encoding
	encodeVariableHeaders(buf[v1HeaderSize:], h.VariableHeaders)
	return buf
}

// encodeV2 lays out a version 2 header. len(h.Blocks) index slots are
// reserved; unused trailing slots stay zero.
func encodeV2(h Header) []byte {
	fixed := uint32(v2HeaderSize + len(h.Blocks)*blockEntrySize + len(h.SparseRanges)*sparseEntrySize)
	offset := align4(fixed + varHeadersSize(h.VariableHeaders))
	buf := make([]byte, offset)
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint16(buf[4:], uint16(offset))
	buf[6] = byte(h.Minor)
	buf[7] = 2
	binary.LittleEndian.PutUint16(buf[8:], uint16(fixed))
	binary.LittleEndian.PutUint32(buf[10:], h.ChannelCount)
	binary.LittleEndian.PutUint32(buf[14:], h.FrameCount)
	buf[18] = byte(h.StepTimeMS)
	buf[19] = 0
	blockCount := len(h.Blocks)
	buf[20] = byte(h.Compression)&0x0F | byte((blockCount>>4)&0xF0)
	buf[21] = byte(blockCount & 0xFF)
	buf[22] = byte(len(h.SparseRanges))
	buf[23] = 0
	binary.LittleEndian.PutUint64(buf[24:], h.UniqueID)

	pos := v2HeaderSize
	for _, b := range h.Blocks {
		binary.LittleEndian.PutUint32(buf[pos:], b.FirstFrame)
		binary.LittleEndian.PutUint32(buf[pos+4:], b.Length)
		pos += blockEntrySize
	}
	for _, r := range h.SparseRanges {
		putUint24(buf[pos:], r.Offset)
		putUint24(buf[pos+3:], r.Length)
		pos += sparseEntrySize
	}
	encodeVariableHeaders(buf[pos:], h.VariableHeaders)
	return buf
}

// encodeBlockIndex renders only the block index region of a v2 header.
func encodeBlockIndex(blocks []BlockEntry) []byte {
	buf := make([]byte, len(blocks)*blockEntrySize)
	for i, b := range blocks {
		binary.LittleEndian.PutUint32(buf[i*blockEntrySize:], b.FirstFrame)
		binary.LittleEndian.PutUint32(buf[i*blockEntrySize+4:], b.Length)
	}
	return buf
}

// preamble reads the fields shared by every version from the first bytes of
// a file: version and data offset.
func preamble(data []byte) (major, minor int, offset uint32, err error) {
	if len(data) < 8 {
		return 0, 0, 0, ErrTruncated
	}
	if [4]byte(data[0:4]) != magic {
		return 0, 0, 0, ErrBadMagic
	}
	major = int(data[7])
	minor = int(data[6])
	if major != 1 && major != 2 {
		return 0, 0, 0, fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, major, minor)
	}
	offset = uint32(binary.LittleEndian.Uint16(data[4:]))
	return major, minor, offset, nil
}

// parseHeader decodes the header region [0:DataOffset] of a file.
func parseHeader(data []byte) (Header, error) {
	major, minor, offset, err := preamble(data)
	if err != nil {
		return Header{}, err
	}
	if uint32(len(data)) < offset {
		return Header{}, fmt.Errorf("%w: header region %d of %d bytes", ErrTruncated, len(data), offset)
	}
	h := Header{Major: major, Minor: minor, DataOffset: offset}
	switch major {
	case 1:
		if offset < v1HeaderSize {
			return Header{}, fmt.Errorf("%w: data offset %d inside v1 header", ErrTruncated, offset)
		}
		h.HeaderLength = uint32(binary.LittleEndian.Uint16(data[8:]))
		h.ChannelCount = binary.LittleEndian.Uint32(data[10:])
		h.FrameCount = binary.LittleEndian.Uint32(data[14:])
		h.StepTimeMS = uint32(binary.LittleEndian.Uint16(data[18:]))
		h.Compression = codec.CompressionNone
		h.VariableHeaders = parseVariableHeaders(data[v1HeaderSize:offset])
	case 2:
		if offset < v2HeaderSize {
			return Header{}, fmt.Errorf("%w: data offset %d inside v2 header", ErrTruncated, offset)
		}
		h.HeaderLength = uint32(binary.LittleEndian.Uint16(data[8:]))
		h.ChannelCount = binary.LittleEndian.Uint32(data[10:])
		h.FrameCount = binary.LittleEndian.Uint32(data[14:])
		h.StepTimeMS = uint32(data[18])
		h.Compression = codec.Compression(data[20] & 0x0F)
		if h.Compression > codec.CompressionZlib {
			return Header{}, fmt.Errorf("unknown compression type %d", data[20]&0x0F)
		}
		blockCount := int(data[21]) | int(data[20]&0xF0)<<4
		sparseCount := int(data[22])
		h.UniqueID = binary.LittleEndian.Uint64(data[24:])

		pos := v2HeaderSize
		end := pos + blockCount*blockEntrySize + sparseCount*sparseEntrySize
		if end > int(offset) {
			return Header{}, fmt.Errorf("%w: index of %d blocks and %d ranges exceeds data offset %d", ErrTruncated, blockCount, sparseCount, offset)
		}
		h.Blocks = make([]BlockEntry, blockCount)
		for i := range h.Blocks {
			h.Blocks[i] = BlockEntry{
				FirstFrame: binary.LittleEndian.Uint32(data[pos:]),
				Length:     binary.LittleEndian.Uint32(data[pos+4:]),
			}
			pos += blockEntrySize
		}
		if sparseCount > 0 {
			h.SparseRanges = make([]channels.Range, sparseCount)
			for i := range h.SparseRanges {
				h.SparseRanges[i] = channels.Range{Offset: uint24(data[pos:]), Length: uint24(data[pos+3:])}
				pos += sparseEntrySize
			}
		}
		h.VariableHeaders = parseVariableHeaders(data[pos:offset])
	}
	return h, nil
}

func putUint24(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
}

func uint24(src []byte) uint32 {
	return uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16
}
