package session_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"fseqgen/internal/history"
	"fseqgen/internal/logging"
	"fseqgen/internal/session"
	"fseqgen/internal/testsupport"
	"fseqgen/internal/topology"
)

func newShow(t *testing.T, opts ...testsupport.ConfigOption) (*session.Session, testsupport.Sequence) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	seq := testsupport.Sequence{Channels: 100, Frames: 5}
	testsupport.WriteSequence(t, filepath.Join(cfg.Paths.SourceDir, "show.fseq"), seq)
	testsupport.WriteSequence(t, filepath.Join(cfg.Paths.SourceDir, "encore.fseq"), seq)
	testsupport.WriteTopology(t, filepath.Join(cfg.Paths.SourceDir, topology.DefaultFileName),
		testsupport.ControllerSpec{Name: "A", IP: "10.0.0.1", Networks: []int{40}},
		testsupport.ControllerSpec{Name: "Idle", IP: "10.0.0.9"},
		testsupport.ControllerSpec{Name: "B", IP: "10.0.0.2", Networks: []int{30, 30}},
	)
	s, err := session.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, seq
}

func TestRefreshFilesSelectsAllAndLoadsTopology(t *testing.T) {
	s, _ := newShow(t)
	entries, err := s.RefreshFiles("")
	if err != nil {
		t.Fatalf("RefreshFiles: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "encore.fseq" {
		t.Fatalf("entries = %+v", entries)
	}
	for _, src := range s.Sources() {
		if !src.Selected {
			t.Fatalf("source %s not selected", src.Name)
		}
	}
	controllers := s.Controllers()
	if len(controllers) != 2 || controllers[1].StartChannel != 41 || controllers[1].ChannelCount != 60 {
		t.Fatalf("controllers = %+v", controllers)
	}
}

func TestRefreshFilesWithoutTopology(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteSequence(t, filepath.Join(cfg.Paths.SourceDir, "show.fseq"), testsupport.Sequence{Channels: 8, Frames: 1})
	s, err := session.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := s.RefreshFiles(""); err != nil {
		t.Fatalf("RefreshFiles: %v", err)
	}
	if len(s.Controllers()) != 0 {
		t.Fatalf("controllers = %+v", s.Controllers())
	}
}

func TestSelectNarrowsSources(t *testing.T) {
	s, _ := newShow(t)
	if _, err := s.RefreshFiles(""); err != nil {
		t.Fatalf("RefreshFiles: %v", err)
	}
	if err := s.Select(nil, []string{"ENCORE.fseq"}); err != nil {
		t.Fatalf("Select: %v", err)
	}
	for _, src := range s.Sources() {
		if src.Selected != (src.Name == "show.fseq") {
			t.Fatalf("selection = %+v", s.Sources())
		}
	}
	if err := s.Select([]string{"missing.fseq"}, nil); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestExportSingleWithControllerPrefill(t *testing.T) {
	s, seq := newShow(t)
	if _, err := s.RefreshFiles(""); err != nil {
		t.Fatalf("RefreshFiles: %v", err)
	}
	if err := s.Select([]string{"show.fseq"}, nil); err != nil {
		t.Fatalf("Select: %v", err)
	}
	target := s.DefaultTarget()
	target.Sparse = true
	dest := filepath.Join(t.TempDir(), "card")

	result, err := s.ExportSingle(context.Background(), session.SingleOptions{DestDir: dest, Target: target, Controller: "b"})
	if err != nil {
		t.Fatalf("ExportSingle: %v", err)
	}
	if result.Succeeded() != 1 {
		t.Fatalf("result = %+v", result)
	}
	header, frames := testsupport.ReadFrames(t, filepath.Join(dest, "show.fseq"))
	if header.ChannelCount != 60 || len(header.SparseRanges) != 1 || header.SparseRanges[0].Offset != 40 {
		t.Fatalf("header = %+v", header)
	}
	want := testsupport.Frames(seq)
	for i := range frames {
		if !bytes.Equal(frames[i], want[i][40:100]) {
			t.Fatalf("frame %d mismatch", i)
		}
	}
}

func TestExportSingleWithoutSparseCopiesWholeFrames(t *testing.T) {
	s, seq := newShow(t)
	dest := filepath.Join(t.TempDir(), "card")
	result, err := s.ExportSingle(context.Background(), session.SingleOptions{DestDir: dest, Target: s.DefaultTarget(), Start: 10, Count: 5})
	if err != nil {
		t.Fatalf("ExportSingle: %v", err)
	}
	if result.Succeeded() != 2 {
		t.Fatalf("result = %+v", result)
	}
	header, _ := testsupport.ReadFrames(t, filepath.Join(dest, "encore.fseq"))
	if header.ChannelCount != uint32(seq.Channels) {
		t.Fatalf("channels = %d", header.ChannelCount)
	}
}

func TestExportFleetRecordsHistory(t *testing.T) {
	s, seq := newShow(t, testsupport.WithHistory())
	if s.History() == nil {
		t.Fatal("history store not opened")
	}
	dest := filepath.Join(t.TempDir(), "card")

	result, err := s.ExportFleet(context.Background(), session.FleetOptions{DestDir: dest, Template: s.DefaultTarget()})
	if err != nil {
		t.Fatalf("ExportFleet: %v", err)
	}
	if result.Total != 4 || result.Succeeded() != 4 {
		t.Fatalf("result = %+v", result)
	}
	want := testsupport.Frames(seq)
	_, frames := testsupport.ReadFrames(t, filepath.Join(dest, "A", "show.fseq"))
	for i := range frames {
		if !bytes.Equal(frames[i], want[i][0:40]) {
			t.Fatalf("A frame %d mismatch", i)
		}
	}
	_, frames = testsupport.ReadFrames(t, filepath.Join(dest, "B", "encore.fseq"))
	for i := range frames {
		if !bytes.Equal(frames[i], want[i][40:100]) {
			t.Fatalf("B frame %d mismatch", i)
		}
	}

	ctx := context.Background()
	runs, err := s.History().ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %+v", runs)
	}
	run := runs[0]
	if run.ID != result.RunID || run.Status != history.RunCompleted || run.Succeeded != 4 || run.Mode != "fleet" {
		t.Fatalf("run = %+v", run)
	}
	items, err := s.History().Items(ctx, run.ID)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 4 || items[0].Controller != "A" || items[3].Controller != "B" {
		t.Fatalf("items = %+v", items)
	}
}

func TestExportFleetWithoutControllers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteSequence(t, filepath.Join(cfg.Paths.SourceDir, "show.fseq"), testsupport.Sequence{Channels: 8, Frames: 1})
	s, err := session.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := s.ExportFleet(context.Background(), session.FleetOptions{Template: s.DefaultTarget()}); err == nil {
		t.Fatal("expected error when no topology can be loaded")
	}
}
