package fseq

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fseqgen/internal/channels"
	"fseqgen/internal/codec"
	"fseqgen/internal/logging"
)

// targetBlockBytes is the uncompressed size a compression block aims for
// when the frame count leaves room under the block limit.
const targetBlockBytes = 64 * 1024

var (
	// ErrWriterState reports a Writer method called out of order.
	ErrWriterState = errors.New("fseq writer used out of order")
	// ErrFrameOrder reports a frame appended out of sequence.
	ErrFrameOrder = errors.New("frames must be appended in order")
)

// Writer produces a sequence file. Frames are appended in index order and
// Finalize patches the compression index once the last block is flushed.
type Writer struct {
	file   *os.File
	path   string
	staged string
	out    *bufio.Writer
	logger *slog.Logger

	major       int
	minor       int
	compression codec.Compression
	level       int
	producer    string

	channelCount uint32
	frameCount   uint32
	stepTimeMS   uint32
	uniqueID     uint64
	variables    []VariableHeader
	sparse       []channels.Range

	encoder        blockEncoder
	framesPerBlock uint32
	reserved       int
	blocks         []BlockEntry
	pending        []byte
	pendingFirst   uint32
	pendingFrames  uint32
	scratch        []byte

	headerWritten bool
	finalized     bool
	next          uint32
}

var _ codec.Writer = (*Writer)(nil)

// Create returns a writer for the given major version. Output is staged in
// a temporary file next to path and renamed over it by Finalize, so an
// existing file at path survives a failed write. Version 1 has no
// compression; a requested compression is dropped with a warning.
func Create(path string, major int, compression codec.Compression, level int, logger *slog.Logger) (*Writer, error) {
	if major != 1 && major != 2 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, major)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if major == 1 && compression != codec.CompressionNone {
		logger.Warn("version 1 sequences are never compressed; ignoring compression",
			logging.String("compression", compression.String()),
			logging.String(logging.FieldDestination, path),
		)
		compression = codec.CompressionNone
	}
	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.partial")
	if err != nil {
		return nil, err
	}
	if err := file.Chmod(0o644); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return nil, err
	}
	return &Writer{
		file:        file,
		path:        path,
		staged:      file.Name(),
		out:         bufio.NewWriterSize(file, 256*1024),
		logger:      logger,
		major:       major,
		minor:       0,
		compression: compression,
		level:       level,
	}, nil
}

// Path returns the destination path.
func (w *Writer) Path() string { return w.path }

func (w *Writer) EnableMinorVersionFeatures(minor int) {
	if minor < 0 {
		minor = 0
	}
	w.minor = minor
}

func (w *Writer) SetSparseRanges(ranges []channels.Range) error {
	if w.headerWritten {
		return fmt.Errorf("%w: sparse ranges after header", ErrWriterState)
	}
	if len(ranges) == 0 {
		w.sparse = nil
		return nil
	}
	if w.major != 2 {
		return fmt.Errorf("%w: version %d cannot store sparse ranges", ErrSparseRanges, w.major)
	}
	if len(ranges) > maxSparseRanges {
		return fmt.Errorf("%w: %d ranges exceeds limit of %d", ErrSparseRanges, len(ranges), maxSparseRanges)
	}
	w.sparse = channels.Clone(ranges)
	return nil
}

// SetProducer replaces the "sp" variable header written with the file.
func (w *Writer) SetProducer(producer string) { w.producer = producer }

// SetVariableHeaders replaces the variable headers carried into the file.
func (w *Writer) SetVariableHeaders(headers []VariableHeader) {
	w.variables = make([]VariableHeader, len(headers))
	for i, vh := range headers {
		w.variables[i] = VariableHeader{Code: vh.Code, Data: append([]byte(nil), vh.Data...)}
	}
}

// InitializeFrom copies frame count, step time, and channel count from src.
// Variable headers and the unique id follow when src exposes them.
func (w *Writer) InitializeFrom(src codec.Reader) {
	w.frameCount = src.FrameCount()
	w.stepTimeMS = src.StepTimeMS()
	w.channelCount = src.ChannelCount()
	if vh, ok := src.(interface{ VariableHeaders() []VariableHeader }); ok {
		w.SetVariableHeaders(vh.VariableHeaders())
	}
	if id, ok := src.(interface{ UniqueID() uint64 }); ok {
		w.uniqueID = id.UniqueID()
	}
}

func (w *Writer) SetChannelCount(count uint32) { w.channelCount = count }

// SetFrameCount overrides the declared frame count.
func (w *Writer) SetFrameCount(count uint32) { w.frameCount = count }

// SetStepTime overrides the frame interval.
func (w *Writer) SetStepTime(ms uint32) { w.stepTimeMS = ms }

func (w *Writer) WriteHeader() error {
	if w.file == nil || w.headerWritten {
		return fmt.Errorf("%w: header already written or writer closed", ErrWriterState)
	}
	if err := validateVariableHeaders(w.variables); err != nil {
		return err
	}
	w.stampProducer()

	var data []byte
	switch w.major {
	case 1:
		if w.stepTimeMS > 0xFFFF {
			return fmt.Errorf("step time %dms exceeds version 1 limit", w.stepTimeMS)
		}
		data = encodeV1(w.headerFields())
	case 2:
		if w.stepTimeMS > 0xFF {
			return fmt.Errorf("step time %dms exceeds version 2 limit of 255", w.stepTimeMS)
		}
		if err := validateSparseRanges(w.sparse, w.channelCount); err != nil {
			return err
		}
		if w.uniqueID == 0 {
			w.uniqueID = uint64(time.Now().UnixMicro())
		}
		if w.compression != codec.CompressionNone {
			enc, err := newBlockEncoder(w.compression, w.level)
			if err != nil {
				return err
			}
			w.encoder = enc
			w.planBlocks()
		}
		data = encodeV2(w.headerFields())
	}
	if len(data) > 0xFFFF {
		return fmt.Errorf("header of %d bytes exceeds the 16-bit data offset", len(data))
	}
	if _, err := w.out.Write(data); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	w.headerWritten = true
	return nil
}

func (w *Writer) headerFields() Header {
	return Header{
		Major:           w.major,
		Minor:           w.minor,
		ChannelCount:    w.channelCount,
		FrameCount:      w.frameCount,
		StepTimeMS:      w.stepTimeMS,
		Compression:     w.compression,
		Blocks:          make([]BlockEntry, w.reserved),
		SparseRanges:    w.sparse,
		VariableHeaders: w.variables,
		UniqueID:        w.uniqueID,
	}
}

func (w *Writer) stampProducer() {
	if w.producer == "" {
		return
	}
	data := append([]byte(w.producer), 0)
	for i, vh := range w.variables {
		if vh.Code == "sp" {
			w.variables[i].Data = data
			return
		}
	}
	w.variables = append(w.variables, VariableHeader{Code: "sp", Data: data})
}

// planBlocks sizes compression blocks so the index never exceeds the block
// limit of the minor version.
func (w *Writer) planBlocks() {
	if w.frameCount == 0 {
		w.framesPerBlock = 1
		w.reserved = 0
		return
	}
	limit := uint32(maxBlocksForMinor(w.minor))
	perBlock := ceilDiv(w.frameCount, limit)
	if w.channelCount > 0 {
		perBlock = max(perBlock, ceilDiv(targetBlockBytes, w.channelCount))
	}
	perBlock = max(min(perBlock, w.frameCount), 1)
	w.framesPerBlock = perBlock
	w.reserved = int(ceilDiv(w.frameCount, perBlock))
	w.blocks = make([]BlockEntry, 0, w.reserved)
}

func ceilDiv(a, b uint32) uint32 {
	return uint32((uint64(a) + uint64(b) - 1) / uint64(b))
}

func (w *Writer) AppendFrame(index uint32, frame []byte) error {
	if !w.headerWritten || w.finalized || w.file == nil {
		return fmt.Errorf("%w: append before header or after finalize", ErrWriterState)
	}
	if index != w.next {
		return fmt.Errorf("%w: got frame %d, expected %d", ErrFrameOrder, index, w.next)
	}
	if index >= w.frameCount {
		return fmt.Errorf("%w: frame %d beyond declared count %d", ErrFrameOutOfRange, index, w.frameCount)
	}
	if uint32(len(frame)) < w.channelCount {
		return fmt.Errorf("frame %d carries %d bytes, need %d", index, len(frame), w.channelCount)
	}
	frame = frame[:w.channelCount]
	w.next++

	if w.encoder == nil {
		if _, err := w.out.Write(frame); err != nil {
			return fmt.Errorf("write frame %d: %w", index, err)
		}
		return nil
	}
	if w.pendingFrames == 0 {
		w.pendingFirst = index
		w.pending = w.pending[:0]
	}
	w.pending = append(w.pending, frame...)
	w.pendingFrames++
	if w.pendingFrames == w.framesPerBlock {
		return w.flushBlock()
	}
	return nil
}

func (w *Writer) flushBlock() error {
	if w.pendingFrames == 0 {
		return nil
	}
	compressed, err := w.encoder.Encode(w.scratch, w.pending)
	if err != nil {
		return fmt.Errorf("compress block at frame %d: %w", w.pendingFirst, err)
	}
	w.scratch = compressed
	if _, err := w.out.Write(compressed); err != nil {
		return fmt.Errorf("write block at frame %d: %w", w.pendingFirst, err)
	}
	w.blocks = append(w.blocks, BlockEntry{FirstFrame: w.pendingFirst, Length: uint32(len(compressed))})
	w.pendingFrames = 0
	return nil
}

// Finalize flushes the last block, patches the block index and moves the
// staged file into place.
func (w *Writer) Finalize() error {
	if w.finalized {
		return nil
	}
	if !w.headerWritten || w.file == nil {
		return fmt.Errorf("%w: finalize before header", ErrWriterState)
	}
	if w.next != w.frameCount {
		return fmt.Errorf("%w: wrote %d of %d frames", ErrWriterState, w.next, w.frameCount)
	}
	if w.encoder != nil {
		if err := w.flushBlock(); err != nil {
			return err
		}
	}
	if err := w.out.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", w.path, err)
	}
	if w.encoder != nil && len(w.blocks) > 0 {
		if len(w.blocks) > w.reserved {
			return fmt.Errorf("%d blocks written but %d reserved", len(w.blocks), w.reserved)
		}
		if _, err := w.file.WriteAt(encodeBlockIndex(w.blocks), v2HeaderSize); err != nil {
			return fmt.Errorf("patch block index: %w", err)
		}
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", w.path, err)
	}
	w.closeEncoder()
	err := w.file.Close()
	w.file = nil
	if err != nil {
		w.discard()
		return fmt.Errorf("close %s: %w", w.path, err)
	}
	if err := os.Rename(w.staged, w.path); err != nil {
		w.discard()
		return fmt.Errorf("move %s into place: %w", w.path, err)
	}
	w.staged = ""
	w.finalized = true
	return nil
}

// Close releases the file. Before a successful Finalize it also removes the
// staged output and leaves path untouched. It is safe to call more than once.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.closeEncoder()
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	if rmErr := w.discard(); rmErr != nil {
		err = errors.Join(err, fmt.Errorf("remove staged %s: %w", w.staged, rmErr))
	}
	return err
}

func (w *Writer) closeEncoder() {
	if w.encoder != nil {
		_ = w.encoder.Close()
		w.encoder = nil
	}
}

func (w *Writer) discard() error {
	if w.staged == "" {
		return nil
	}
	err := os.Remove(w.staged)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		w.staged = ""
		return nil
	}
	return err
}
