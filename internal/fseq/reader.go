package fseq

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"fseqgen/internal/channels"
	"fseqgen/internal/codec"
)

// ErrFrameOutOfRange reports a frame index past the end of the sequence.
var ErrFrameOutOfRange = errors.New("frame index out of range")

// block is a located compressed block: it covers frames
// [first, first+count) and its bytes start at fileOffset.
type block struct {
	first      uint32
	count      uint32
	fileOffset int64
	length     uint32
}

// Reader decodes frames of an open sequence file. It is not safe for
// concurrent use.
type Reader struct {
	file   *os.File
	path   string
	header Header

	ranges []channels.Range

	blocks     []block
	decoder    blockDecoder
	cached     int
	cachedData []byte
}

var _ codec.Reader = (*Reader)(nil)

// Open parses the header of path and prepares it for frame reads.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := newReader(file, path)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func newReader(file *os.File, path string) (*Reader, error) {
	head := make([]byte, 8)
	if _, err := io.ReadFull(file, head); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrTruncated
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	_, _, offset, err := preamble(head)
	if err != nil {
		return nil, err
	}
	region := make([]byte, offset)
	if _, err := file.ReadAt(region, 0); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: header region", ErrTruncated)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	header, err := parseHeader(region)
	if err != nil {
		return nil, err
	}

	r := &Reader{file: file, path: path, header: header, cached: -1}
	if header.Compression != codec.CompressionNone {
		if err := r.locateBlocks(); err != nil {
			return nil, err
		}
		dec, err := newBlockDecoder(header.Compression)
		if err != nil {
			return nil, err
		}
		r.decoder = dec
	}
	return r, nil
}

func (r *Reader) locateBlocks() error {
	used := r.header.usedBlocks()
	if len(used) == 0 && r.header.FrameCount > 0 {
		return fmt.Errorf("%w: compressed file has no blocks", ErrTruncated)
	}
	sort.SliceStable(used, func(i, j int) bool { return used[i].FirstFrame < used[j].FirstFrame })
	offset := int64(r.header.DataOffset)
	r.blocks = make([]block, len(used))
	for i, b := range used {
		end := r.header.FrameCount
		if i+1 < len(used) {
			end = used[i+1].FirstFrame
		}
		if end < b.FirstFrame {
			return fmt.Errorf("%w: block %d starts past frame count", ErrTruncated, i)
		}
		r.blocks[i] = block{first: b.FirstFrame, count: end - b.FirstFrame, fileOffset: offset, length: b.Length}
		offset += int64(b.Length)
	}
	return nil
}

// Path returns the file the reader was opened from.
func (r *Reader) Path() string { return r.path }

// Header returns the parsed header.
func (r *Reader) Header() Header { return r.header }

func (r *Reader) ChannelCount() uint32 { return r.header.ChannelCount }

func (r *Reader) FrameCount() uint32 { return r.header.FrameCount }

func (r *Reader) StepTimeMS() uint32 { return r.header.StepTimeMS }

func (r *Reader) Version() (major, minor int) { return r.header.Major, r.header.Minor }

// UniqueID returns the v2 unique identifier (0 for v1 files).
func (r *Reader) UniqueID() uint64 { return r.header.UniqueID }

// VariableHeaders returns a copy of the file's variable headers.
func (r *Reader) VariableHeaders() []VariableHeader {
	out := make([]VariableHeader, len(r.header.VariableHeaders))
	for i, vh := range r.header.VariableHeaders {
		out[i] = VariableHeader{Code: vh.Code, Data: append([]byte(nil), vh.Data...)}
	}
	return out
}

// PrepareRead limits uncompressed reads to the given windows. Bytes outside
// the windows are returned as zero. Compressed files always decode whole
// blocks, so the hint only affects uncompressed data.
func (r *Reader) PrepareRead(ranges []channels.Range) {
	r.ranges = nil
	for _, rg := range ranges {
		if uint64(rg.Offset) >= uint64(r.header.ChannelCount) || rg.Length == 0 {
			continue
		}
		if rg.End() > uint64(r.header.ChannelCount) {
			rg.Length = r.header.ChannelCount - rg.Offset
		}
		r.ranges = append(r.ranges, rg)
	}
}

// ReadFrame decodes frame index into dst.
func (r *Reader) ReadFrame(index uint32, dst []byte) error {
	if index >= r.header.FrameCount {
		return fmt.Errorf("%w: %d of %d", ErrFrameOutOfRange, index, r.header.FrameCount)
	}
	width := r.header.ChannelCount
	if uint32(len(dst)) < width {
		return fmt.Errorf("frame buffer holds %d bytes, need %d", len(dst), width)
	}
	frame := dst[:width]
	if r.header.Compression == codec.CompressionNone {
		return r.readDense(index, frame)
	}
	return r.readCompressed(index, frame)
}

func (r *Reader) readDense(index uint32, frame []byte) error {
	base := int64(r.header.DataOffset) + int64(index)*int64(len(frame))
	if len(r.ranges) == 0 {
		return r.readAt(frame, base)
	}
	clear(frame)
	for _, rg := range r.ranges {
		if err := r.readAt(frame[rg.Offset:rg.End()], base+int64(rg.Offset)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) readAt(dst []byte, offset int64) error {
	if _, err := r.file.ReadAt(dst, offset); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: frame data at offset %d", ErrTruncated, offset)
		}
		return err
	}
	return nil
}

func (r *Reader) readCompressed(index uint32, frame []byte) error {
	i := sort.Search(len(r.blocks), func(i int) bool {
		return r.blocks[i].first+r.blocks[i].count > index
	})
	if i >= len(r.blocks) || index < r.blocks[i].first {
		return fmt.Errorf("%w: frame %d not covered by block index", ErrTruncated, index)
	}
	if r.cached != i {
		if err := r.loadBlock(i); err != nil {
			return err
		}
	}
	b := r.blocks[i]
	start := uint64(index-b.first) * uint64(len(frame))
	end := start + uint64(len(frame))
	if end > uint64(len(r.cachedData)) {
		return fmt.Errorf("%w: block %d holds %d bytes, frame %d needs %d", ErrTruncated, i, len(r.cachedData), index, end)
	}
	copy(frame, r.cachedData[start:end])
	return nil
}

func (r *Reader) loadBlock(i int) error {
	b := r.blocks[i]
	raw := make([]byte, b.length)
	if err := r.readAt(raw, b.fileOffset); err != nil {
		return err
	}
	data, err := r.decoder.Decode(r.cachedData, raw)
	if err != nil {
		r.cached = -1
		return fmt.Errorf("block %d: %w", i, err)
	}
	r.cachedData = data
	r.cached = i
	return nil
}

// Close releases the file and decoder.
func (r *Reader) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	if r.decoder != nil {
		_ = r.decoder.Close()
		r.decoder = nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Inspect returns the header of path without reading frames.
func Inspect(path string) (Header, error) {
	r, err := Open(path)
	if err != nil {
		return Header{}, err
	}
	defer r.Close()
	return r.Header(), nil
}
