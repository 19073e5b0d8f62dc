package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fseqgen/internal/codec"
	"fseqgen/internal/fseq"
)

// Sequence describes a synthetic FSEQ file.
type Sequence struct {
	Major       int
	Minor       int
	Compression codec.Compression
	StepTimeMS  uint32
	Channels    int
	Frames      int
}

// FrameByte is the value WriteSequence stores for channel c of frame f.
func FrameByte(frame, channel int) byte {
	return byte((frame*31 + channel*7 + channel/256) % 251)
}

// Frames returns the frame data WriteSequence stores for seq.
func Frames(seq Sequence) [][]byte {
	frames := make([][]byte, seq.Frames)
	for f := range frames {
		frame := make([]byte, seq.Channels)
		for c := range frame {
			frame[c] = FrameByte(f, c)
		}
		frames[f] = frame
	}
	return frames
}

// WriteSequence writes a sequence whose bytes follow FrameByte. Zero fields
// default to version 2.2, no compression, 50ms steps.
func WriteSequence(t testing.TB, path string, seq Sequence) {
	t.Helper()

	if seq.Major == 0 {
		seq.Major, seq.Minor = 2, 2
	}
	if seq.StepTimeMS == 0 {
		seq.StepTimeMS = 50
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	w, err := fseq.Create(path, seq.Major, seq.Compression, codec.DefaultLevel, nil)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer w.Close()

	w.EnableMinorVersionFeatures(seq.Minor)
	w.SetChannelCount(uint32(seq.Channels))
	w.SetFrameCount(uint32(seq.Frames))
	w.SetStepTime(seq.StepTimeMS)
	if err := w.WriteHeader(); err != nil {
		t.Fatalf("write header %s: %v", path, err)
	}
	for i, frame := range Frames(seq) {
		if err := w.AppendFrame(uint32(i), frame); err != nil {
			t.Fatalf("append frame %d to %s: %v", i, path, err)
		}
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("finalize %s: %v", path, err)
	}
}

// ReadFrames decodes every frame of the sequence at path.
func ReadFrames(t testing.TB, path string) (fseq.Header, [][]byte) {
	t.Helper()

	r, err := fseq.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer r.Close()

	frames := make([][]byte, r.FrameCount())
	for i := range frames {
		buf := make([]byte, r.ChannelCount())
		if err := r.ReadFrame(uint32(i), buf); err != nil {
			t.Fatalf("read frame %d of %s: %v", i, path, err)
		}
		frames[i] = buf
	}
	return r.Header(), frames
}

// ControllerSpec is one controller of a synthetic topology document.
type ControllerSpec struct {
	Name     string
	IP       string
	Networks []int
}

// WriteTopology writes an xlights_networks.xml style document to path.
func WriteTopology(t testing.TB, path string, controllers ...ControllerSpec) {
	t.Helper()

	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<Networks>\n")
	for _, c := range controllers {
		fmt.Fprintf(&b, "  <Controller Name=%q IP=%q>\n", c.Name, c.IP)
		for _, n := range c.Networks {
			fmt.Fprintf(&b, "    <network NetworkType=\"E131\" MaxChannels=\"%d\"/>\n", n)
		}
		b.WriteString("  </Controller>\n")
	}
	b.WriteString("</Networks>\n")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
