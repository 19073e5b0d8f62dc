package channels

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	// ErrRangeOverflow reports a controller window that cannot be addressed
	// with 32-bit offsets.
	ErrRangeOverflow = errors.New("channel range overflow")
	// ErrOutOfBounds reports a range that reaches past the source frame.
	ErrOutOfBounds = errors.New("channel range out of bounds")
)

// Range is a half-open byte window into a frame's channel array.
type Range struct {
	Offset uint32 `json:"offset"`
	Length uint32 `json:"length"`
}

// End returns the first offset past the window.
func (r Range) End() uint64 {
	return uint64(r.Offset) + uint64(r.Length)
}

func (r Range) String() string {
	return fmt.Sprintf("%d+%d", r.Offset, r.Length)
}

// Manual builds the selection for operator supplied values. With sparse set
// the second value is a channel count, not an absolute end offset. Without
// sparse the selection is empty, which means a full copy of the source.
func Manual(start, count uint32, sparse bool) []Range {
	if !sparse {
		return nil
	}
	return []Range{{Offset: start, Length: count}}
}

// ForController builds the selection owned by one controller. Start channels
// are 1-based; the returned offset is 0-based.
func ForController(startChannel, channelCount uint64) ([]Range, error) {
	if startChannel == 0 {
		return nil, fmt.Errorf("%w: start channel must be 1-based, got 0", ErrRangeOverflow)
	}
	offset := startChannel - 1
	if offset > math.MaxUint32 || channelCount > math.MaxUint32 || offset+channelCount > math.MaxUint32 {
		return nil, fmt.Errorf("%w: start %d count %d", ErrRangeOverflow, startChannel, channelCount)
	}
	return []Range{{Offset: uint32(offset), Length: uint32(channelCount)}}, nil
}

// Total returns the number of bytes the ranges select.
func Total(ranges []Range) uint64 {
	var total uint64
	for _, r := range ranges {
		total += uint64(r.Length)
	}
	return total
}

// Full returns the single range covering a frame of the given width.
func Full(width uint32) []Range {
	return []Range{{Offset: 0, Length: width}}
}

// Clone returns an independent copy of ranges.
func Clone(ranges []Range) []Range {
	if ranges == nil {
		return nil
	}
	out := make([]Range, len(ranges))
	copy(out, ranges)
	return out
}

// Validate checks every range against a source frame width.
func Validate(ranges []Range, width uint32) error {
	for i, r := range ranges {
		if r.End() > uint64(width) {
			return fmt.Errorf("%w: range %d (%s) ends at %d, source has %d channels", ErrOutOfBounds, i, r, r.End(), width)
		}
	}
	return nil
}

// Overlap names two ranges of one selection that share bytes.
type Overlap struct {
	First  int
	Second int
}

// Overlaps reports every pair of ranges that select the same source bytes.
// Overlap is permitted; callers log it.
func Overlaps(ranges []Range) []Overlap {
	if len(ranges) < 2 {
		return nil
	}
	idx := make([]int, len(ranges))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return ranges[idx[a]].Offset < ranges[idx[b]].Offset
	})

	var out []Overlap
	for a := 0; a < len(idx); a++ {
		ra := ranges[idx[a]]
		if ra.Length == 0 {
			continue
		}
		for b := a + 1; b < len(idx); b++ {
			rb := ranges[idx[b]]
			if uint64(rb.Offset) >= ra.End() {
				break
			}
			if rb.Length == 0 {
				continue
			}
			first, second := idx[a], idx[b]
			if first > second {
				first, second = second, first
			}
			out = append(out, Overlap{First: first, Second: second})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].First != out[j].First {
			return out[i].First < out[j].First
		}
		return out[i].Second < out[j].Second
	})
	return out
}

// Format renders ranges for logs and tables.
func Format(ranges []Range) string {
	if len(ranges) == 0 {
		return "full"
	}
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// Extract copies each range of src, in order, into dst and returns the number
// of bytes written. dst must hold at least Total(ranges) bytes and every
// range must lie within src.
func Extract(dst, src []byte, ranges []Range) int {
	pos := 0
	for _, r := range ranges {
		pos += copy(dst[pos:pos+int(r.Length)], src[r.Offset:r.End()])
	}
	return pos
}
