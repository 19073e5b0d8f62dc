package batch_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"fseqgen/internal/batch"
	"fseqgen/internal/codec"
	"fseqgen/internal/export"
	"fseqgen/internal/fseq"
	"fseqgen/internal/logging"
	"fseqgen/internal/testsupport"
	"fseqgen/internal/topology"
)

type call struct {
	source, dest string
	target       export.Target
	runID        string
	controller   string
}

// fakeRunner writes a placeholder file per export and fails for sources
// listed in fail.
type fakeRunner struct {
	calls     []call
	fail      map[string]error
	afterCall func(n int)
}

func (f *fakeRunner) Export(ctx context.Context, src, dst string, target export.Target) error {
	runID, _ := logging.RunIDFromContext(ctx)
	controller, _ := logging.ControllerFromContext(ctx)
	f.calls = append(f.calls, call{source: src, dest: dst, target: target, runID: runID, controller: controller})
	defer func() {
		if f.afterCall != nil {
			f.afterCall(len(f.calls))
		}
	}()
	if err := f.fail[filepath.Base(src)]; err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("seq"), 0o644)
}

func sources(names ...string) []batch.Source {
	out := make([]batch.Source, 0, len(names))
	for _, name := range names {
		out = append(out, batch.Source{Name: name, Path: filepath.Join("/shows", name), Selected: true})
	}
	return out
}

// listEntries returns every file under root, hidden ones included.
func listEntries(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(root, path)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	sort.Strings(out)
	return out
}

func TestRunSingleWritesSelectedSources(t *testing.T) {
	dest := t.TempDir()
	runner := &fakeRunner{}
	var progress []batch.Progress
	exporter := batch.New(runner, logging.NewNop())
	exporter.Reporter = func(p batch.Progress) { progress = append(progress, p) }
	exporter.NewRunID = func() string { return "run-1" }

	srcs := sources("a.fseq", "b.fseq", "c.fseq")
	srcs[1].Selected = false
	target := export.Target{FormatVersion: 2, FormatMinor: 2}

	result, err := exporter.RunSingle(context.Background(), batch.SingleRequest{Sources: srcs, DestDir: dest, Target: target})
	if err != nil {
		t.Fatalf("RunSingle: %v", err)
	}
	if result.RunID != "run-1" || result.Total != 2 || result.Succeeded() != 2 {
		t.Fatalf("result = %+v", result)
	}
	if got := listEntries(t, dest); strings.Join(got, ",") != "a.fseq,c.fseq" {
		t.Fatalf("files = %v", got)
	}
	for _, c := range runner.calls {
		if c.runID != "run-1" || c.controller != "" {
			t.Fatalf("call context = %+v", c)
		}
	}
	if len(progress) != 3 || progress[0].Completed != 0 || progress[0].Total != 2 || progress[2].Completed != 2 {
		t.Fatalf("progress = %+v", progress)
	}
}

func TestRunFleetPathLayout(t *testing.T) {
	controllers := []topology.Controller{
		{Name: "Garage", StartChannel: 1, ChannelCount: 40},
		{Name: "Mega/Tree", StartChannel: 41, ChannelCount: 60},
	}

	t.Run("several controllers", func(t *testing.T) {
		dest := t.TempDir()
		runner := &fakeRunner{}
		result, err := batch.New(runner, nil).RunFleet(context.Background(), batch.FleetRequest{
			Sources: sources("a.fseq", "b.fseq"), DestDir: dest, Controllers: controllers,
		})
		if err != nil {
			t.Fatalf("RunFleet: %v", err)
		}
		if result.Total != 4 {
			t.Fatalf("total = %d", result.Total)
		}
		want := []string{"Garage/a.fseq", "Garage/b.fseq", "Mega-Tree/a.fseq", "Mega-Tree/b.fseq"}
		if got := listEntries(t, dest); strings.Join(got, ",") != strings.Join(want, ",") {
			t.Fatalf("files = %v, want %v", got, want)
		}
		if runner.calls[0].controller != "Garage" || runner.calls[2].controller != "Mega/Tree" {
			t.Fatalf("controllers not outer loop: %+v", runner.calls)
		}
		if r := runner.calls[2].target.Ranges; len(r) != 1 || r[0].Offset != 40 || r[0].Length != 60 {
			t.Fatalf("ranges for second controller = %v", r)
		}
	})

	t.Run("one controller", func(t *testing.T) {
		dest := t.TempDir()
		_, err := batch.New(&fakeRunner{}, nil).RunFleet(context.Background(), batch.FleetRequest{
			Sources: sources("a.fseq"), DestDir: dest, Controllers: controllers[:1],
		})
		if err != nil {
			t.Fatalf("RunFleet: %v", err)
		}
		if got := listEntries(t, dest); strings.Join(got, ",") != "a.fseq" {
			t.Fatalf("files = %v", got)
		}
	})
}

func TestRunFleetCancellationBetweenItems(t *testing.T) {
	dest := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &fakeRunner{afterCall: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	controllers := []topology.Controller{
		{Name: "A", StartChannel: 1, ChannelCount: 10},
		{Name: "B", StartChannel: 11, ChannelCount: 10},
	}

	result, err := batch.New(runner, nil).RunFleet(ctx, batch.FleetRequest{
		Sources: sources("a.fseq", "b.fseq", "c.fseq"), DestDir: dest, Controllers: controllers,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if !result.Canceled || len(result.Items) != 3 || result.Total != 6 {
		t.Fatalf("result = %+v", result)
	}
	if len(runner.calls) != 3 {
		t.Fatalf("runner called %d times after cancel", len(runner.calls))
	}
	if got := listEntries(t, dest); len(got) != 3 {
		t.Fatalf("files = %v, want 3", got)
	}
}

func TestRunContinuesPastFailures(t *testing.T) {
	dest := t.TempDir()
	cause := &export.SourceOpenError{Path: "/shows/b.fseq", Err: os.ErrNotExist}
	runner := &fakeRunner{fail: map[string]error{"b.fseq": cause}}

	result, err := batch.New(runner, nil).RunSingle(context.Background(), batch.SingleRequest{
		Sources: sources("a.fseq", "b.fseq", "c.fseq"), DestDir: dest,
	})
	var partial *batch.PartialFailureError
	if !errors.As(err, &partial) || !errors.Is(err, batch.ErrPartialFailure) {
		t.Fatalf("error = %v, want PartialFailureError", err)
	}
	if partial.Failed != 1 || partial.Total != 3 || !errors.Is(partial.First, export.ErrSourceOpen) {
		t.Fatalf("partial = %+v", partial)
	}
	if result.Succeeded() != 2 || len(result.Failures()) != 1 || result.Failures()[0].Destination != filepath.Join(dest, "b.fseq") {
		t.Fatalf("result = %+v", result)
	}
	if len(runner.calls) != 3 {
		t.Fatalf("calls = %d", len(runner.calls))
	}
}

func TestRunReportsControllerOverflowAsItemFailure(t *testing.T) {
	dest := t.TempDir()
	runner := &fakeRunner{}
	controllers := []topology.Controller{
		{Name: "Huge", StartChannel: 1 << 33, ChannelCount: 10},
		{Name: "Fine", StartChannel: 1, ChannelCount: 10},
	}
	result, err := batch.New(runner, nil).RunFleet(context.Background(), batch.FleetRequest{
		Sources: sources("a.fseq"), DestDir: dest, Controllers: controllers,
	})
	if !errors.Is(err, batch.ErrPartialFailure) {
		t.Fatalf("error = %v", err)
	}
	if len(runner.calls) != 1 || result.Failed() != 1 {
		t.Fatalf("calls = %d, result = %+v", len(runner.calls), result)
	}
}

func TestRunRejectsBusyDestination(t *testing.T) {
	dest := t.TempDir()
	other := flock.New(dest, flock.SetFlag(os.O_RDONLY))
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("pre-lock: %v %v", locked, err)
	}
	defer other.Unlock()

	runner := &fakeRunner{}
	_, err = batch.New(runner, nil).RunSingle(context.Background(), batch.SingleRequest{Sources: sources("a.fseq"), DestDir: dest})
	if !errors.Is(err, batch.ErrDestinationBusy) {
		t.Fatalf("error = %v, want ErrDestinationBusy", err)
	}
	if len(runner.calls) != 0 {
		t.Fatal("runner called while destination locked")
	}
}

func TestRunReleasesDestinationWithoutLeftovers(t *testing.T) {
	dest := t.TempDir()
	controllers := []topology.Controller{{Name: "Garage", StartChannel: 1, ChannelCount: 40}}
	exporter := batch.New(&fakeRunner{}, nil)
	for range 2 {
		_, err := exporter.RunFleet(context.Background(), batch.FleetRequest{
			Sources: sources("a.fseq"), DestDir: dest, Controllers: controllers,
		})
		if err != nil {
			t.Fatalf("RunFleet: %v", err)
		}
	}
	entries, err := os.ReadDir(dest)
	if err != nil {
		t.Fatalf("read dest: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if strings.Join(names, ",") != "a.fseq" {
		t.Fatalf("destination entries = %v, want [a.fseq]", names)
	}

	other := flock.New(dest, flock.SetFlag(os.O_RDONLY))
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("destination still locked after run: %v %v", locked, err)
	}
	_ = other.Unlock()
}

func TestRunFleetDisambiguatesControllerFolders(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	controllers := []topology.Controller{
		{Name: "Mega/Tree", StartChannel: 1, ChannelCount: 10},
		{Name: "Mega:Tree", StartChannel: 11, ChannelCount: 10},
		{Name: "mega-tree", StartChannel: 21, ChannelCount: 10},
	}
	dest := t.TempDir()
	runner := &fakeRunner{}
	_, err := batch.New(runner, logger).RunFleet(context.Background(), batch.FleetRequest{
		Sources: sources("a.fseq"), DestDir: dest, Controllers: controllers,
	})
	if err != nil {
		t.Fatalf("RunFleet: %v", err)
	}
	want := []string{"Mega-Tree-2/a.fseq", "Mega-Tree/a.fseq", "mega-tree-3/a.fseq"}
	if got := listEntries(t, dest); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("files = %v, want %v", got, want)
	}
	if got := strings.Count(logs.String(), "controller_dir_collision"); got != 2 {
		t.Fatalf("collision warnings = %d, want 2:\n%s", got, logs.String())
	}
}

func TestRunWithNothingSelected(t *testing.T) {
	srcs := sources("a.fseq")
	srcs[0].Selected = false
	result, err := batch.New(&fakeRunner{}, nil).RunSingle(context.Background(), batch.SingleRequest{Sources: srcs, DestDir: t.TempDir()})
	if err != nil || result.Total != 0 {
		t.Fatalf("result = %+v, err = %v", result, err)
	}
}

type memoryRecorder struct {
	started  []batch.RunInfo
	items    []batch.ItemResult
	finished []error
}

func (m *memoryRecorder) RunStarted(_ context.Context, run batch.RunInfo) error {
	m.started = append(m.started, run)
	return nil
}

func (m *memoryRecorder) ItemFinished(_ context.Context, _ string, item batch.ItemResult) error {
	m.items = append(m.items, item)
	return nil
}

func (m *memoryRecorder) RunFinished(_ context.Context, _ batch.Result, runErr error) error {
	m.finished = append(m.finished, runErr)
	return errors.New("ledger offline")
}

func TestRecorderReceivesRunLifecycle(t *testing.T) {
	rec := &memoryRecorder{}
	exporter := batch.New(&fakeRunner{fail: map[string]error{"b.fseq": errors.New("boom")}}, nil)
	exporter.Recorder = rec

	_, err := exporter.RunSingle(context.Background(), batch.SingleRequest{Sources: sources("a.fseq", "b.fseq"), DestDir: t.TempDir()})
	if !errors.Is(err, batch.ErrPartialFailure) {
		t.Fatalf("error = %v", err)
	}
	if len(rec.started) != 1 || rec.started[0].Total != 2 || rec.started[0].Mode != batch.ModeSingle {
		t.Fatalf("started = %+v", rec.started)
	}
	if len(rec.items) != 2 || rec.items[0].Seq != 1 || !rec.items[1].Failed() {
		t.Fatalf("items = %+v", rec.items)
	}
	if len(rec.finished) != 1 || !errors.Is(rec.finished[0], batch.ErrPartialFailure) {
		t.Fatalf("finished = %+v", rec.finished)
	}
}

func TestFleetExportPartitionsRealSequence(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "shows", "show.fseq")
	seq := testsupport.Sequence{Channels: 100, Frames: 5, Compression: codec.CompressionZstd}
	testsupport.WriteSequence(t, src, seq)
	want := testsupport.Frames(seq)

	engine := export.New(fseq.Codec{}, nil)
	dest := filepath.Join(dir, "sd")
	controllers := []topology.Controller{
		{Name: "A", StartChannel: 1, ChannelCount: 40},
		{Name: "B", StartChannel: 41, ChannelCount: 60},
	}
	template := export.Target{FormatVersion: 2, FormatMinor: 2, Compression: codec.CompressionZstd, CompressionLevel: codec.DefaultLevel}
	_, err := batch.New(engine, nil).RunFleet(context.Background(), batch.FleetRequest{
		Sources:     []batch.Source{{Name: "show.fseq", Path: src, Selected: true}},
		DestDir:     dest,
		Controllers: controllers,
		Template:    template,
	})
	if err != nil {
		t.Fatalf("RunFleet: %v", err)
	}

	for _, tc := range []struct {
		name   string
		lo, hi int
	}{{"A", 0, 40}, {"B", 40, 100}} {
		header, frames := testsupport.ReadFrames(t, filepath.Join(dest, tc.name, "show.fseq"))
		if int(header.ChannelCount) != tc.hi-tc.lo || len(frames) != 5 {
			t.Fatalf("%s header = %+v", tc.name, header)
		}
		for i, frame := range frames {
			if !bytes.Equal(frame, want[i][tc.lo:tc.hi]) {
				t.Fatalf("%s frame %d differs", tc.name, i)
			}
		}
	}
}
