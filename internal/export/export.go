// Package export copies selected channel windows of every frame of a source
// sequence into a freshly configured destination sequence.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"fseqgen/internal/channels"
	"fseqgen/internal/codec"
	"fseqgen/internal/logging"
)

// Target describes the destination of one export.
type Target struct {
	FormatVersion    int               `json:"format_version"`
	FormatMinor      int               `json:"format_minor"`
	Compression      codec.Compression `json:"compression"`
	CompressionLevel int               `json:"compression_level"`
	Sparse           bool              `json:"sparse"`
	// Ranges are applied in order and concatenated. Empty means a full copy.
	Ranges []channels.Range `json:"ranges,omitempty"`
}

// Format renders the destination version as "major.minor".
func (t Target) Format() string {
	return fmt.Sprintf("%d.%d", t.FormatVersion, t.FormatMinor)
}

// WithRanges returns a copy of t selecting ranges.
func (t Target) WithRanges(ranges []channels.Range) Target {
	t.Ranges = channels.Clone(ranges)
	return t
}

// Engine runs exports. It is not safe for concurrent use; one export
// completes before the next begins.
type Engine struct {
	Codec  codec.Codec
	Logger *slog.Logger
}

// New returns an engine backed by c.
func New(c codec.Codec, logger *slog.Logger) *Engine {
	return &Engine{Codec: c, Logger: logger}
}

// Export transcodes sourcePath into destPath. On failure no destination
// file is left behind. ctx only carries logging fields; the frame loop is
// never interrupted.
func (e *Engine) Export(ctx context.Context, sourcePath, destPath string, target Target) (err error) {
	if e == nil || e.Codec == nil {
		return errors.New("export engine has no codec")
	}
	logger := logging.WithContext(ctx, logging.NewComponentLogger(e.Logger, "export")).With(
		logging.String(logging.FieldSource, sourcePath),
		logging.String(logging.FieldDestination, destPath),
	)
	started := time.Now()

	src, err := e.Codec.OpenForRead(sourcePath)
	if err != nil {
		return &SourceOpenError{Path: sourcePath, Err: err}
	}
	defer src.Close()

	width := src.ChannelCount()
	ranges := channels.Clone(target.Ranges)
	if len(ranges) == 0 {
		ranges = channels.Full(width)
	}
	destChannels, err := checkRanges(logger, ranges, width)
	if err != nil {
		return err
	}
	if sameFile(sourcePath, destPath) {
		return &DestinationCreateError{Path: destPath, Err: errors.New("destination is the source file")}
	}

	dst, err := e.Codec.CreateForWrite(destPath, target.FormatVersion, target.Compression, target.CompressionLevel)
	if err != nil {
		return &DestinationCreateError{Path: destPath, Err: err}
	}
	// The writer stages its output; Close before Finalize discards it and
	// leaves any earlier file at destPath in place.
	defer func() {
		closeErr := dst.Close()
		switch {
		case closeErr == nil:
		case err == nil:
			err = &FrameIOError{Path: destPath, Frame: -1, Op: "close", Err: closeErr}
		default:
			logging.WarnWithContext(logger, "partial destination not removed", "partial_cleanup_failed",
				logging.Error(closeErr),
				logging.String(logging.FieldImpact, "an incomplete staging file remains next to the destination"),
				logging.String(logging.FieldErrorHint, "delete the .partial file before copying the output to a controller"),
			)
		}
	}()

	dst.EnableMinorVersionFeatures(target.FormatMinor)
	if target.FormatVersion == 2 && target.Sparse {
		if err := dst.SetSparseRanges(ranges); err != nil {
			return &DestinationCreateError{Path: destPath, Err: err}
		}
	}
	src.PrepareRead(ranges)

	dst.InitializeFrom(src)
	dst.SetChannelCount(destChannels)
	if err := dst.WriteHeader(); err != nil {
		return &FrameIOError{Path: destPath, Frame: -1, Op: "write header", Err: err}
	}

	frames := src.FrameCount()
	logger.Debug("export started",
		logging.String(logging.FieldEventType, "export_started"),
		logging.String("ranges", channels.Format(ranges)),
		logging.Int64("frames", int64(frames)),
		logging.Int64("source_channels", int64(width)),
		logging.Int64("dest_channels", int64(destChannels)),
		logging.String("format", target.Format()),
		logging.String("compression", target.Compression.String()),
	)

	readBuf := make([]byte, width)
	writeBuf := readBuf
	passthrough := len(ranges) == 1 && ranges[0].Offset == 0 && ranges[0].Length == width
	if !passthrough {
		writeBuf = make([]byte, destChannels)
	}
	sampler := logging.NewProgressSampler(25)
	for i := uint32(0); i < frames; i++ {
		if err := src.ReadFrame(i, readBuf); err != nil {
			return &FrameIOError{Path: sourcePath, Frame: int64(i), Op: "read", Err: err}
		}
		if !passthrough {
			channels.Extract(writeBuf, readBuf, ranges)
		}
		if err := dst.AppendFrame(i, writeBuf); err != nil {
			return &FrameIOError{Path: destPath, Frame: int64(i), Op: "write", Err: err}
		}
		percent := float64(i+1) * 100 / float64(frames)
		if sampler.ShouldLog(percent, destPath) {
			logger.Debug("export progress",
				logging.String(logging.FieldEventType, "export_progress"),
				logging.Float64("percent", percent),
				logging.Int64("frame", int64(i)+1),
			)
		}
	}

	if err := dst.Finalize(); err != nil {
		return &FrameIOError{Path: destPath, Frame: -1, Op: "finalize", Err: err}
	}

	logger.Info("export complete",
		logging.String(logging.FieldEventType, "export_complete"),
		logging.Int64("frames", int64(frames)),
		logging.Int64("dest_channels", int64(destChannels)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func checkRanges(logger *slog.Logger, ranges []channels.Range, width uint32) (uint32, error) {
	if err := channels.Validate(ranges, width); err != nil {
		return 0, &InvalidRangeError{Ranges: ranges, Width: width, Err: err}
	}
	total := channels.Total(ranges)
	if total > math.MaxUint32 {
		return 0, &InvalidRangeError{Ranges: ranges, Width: width, Err: fmt.Errorf("selection totals %d channels", total)}
	}
	if total == 0 && width > 0 {
		return 0, &InvalidRangeError{Ranges: ranges, Width: width, Err: errors.New("selection is empty")}
	}
	for _, o := range channels.Overlaps(ranges) {
		logging.WarnWithContext(logger, "channel ranges overlap; shared channels are copied twice", "range_overlap",
			logging.String("first", ranges[o.First].String()),
			logging.String("second", ranges[o.Second].String()),
			logging.String(logging.FieldImpact, "destination repeats the overlapping source channels"),
		)
	}
	return uint32(total), nil
}

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
