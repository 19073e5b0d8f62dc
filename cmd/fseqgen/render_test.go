package main

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"fseqgen/internal/batch"
	"fseqgen/internal/export"
	"fseqgen/internal/topology"
)

func TestRenderTableAlignsColumns(t *testing.T) {
	got := renderTable([]string{"Name", "Channels"}, [][]string{{"Porch", "90"}, {"Tree"}}, []columnAlignment{alignLeft, alignRight})
	lines := strings.Split(got, "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d:\n%s", len(lines), got)
	}
	if !strings.Contains(strings.ToUpper(lines[1]), "CHANNELS") || !strings.Contains(lines[3], "Porch") || !strings.Contains(lines[3], "90") {
		t.Fatalf("unexpected table:\n%s", got)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty render without headers")
	}
}

func TestControllersTableShowsEndChannel(t *testing.T) {
	got := controllersTable([]topology.Controller{{Name: "Porch", StartChannel: 1321, ChannelCount: 90}})
	if !strings.Contains(got, "1321") || !strings.Contains(got, "1410") {
		t.Fatalf("unexpected table:\n%s", got)
	}
}

func TestStatusLabel(t *testing.T) {
	if got := statusLabel("partial_failure", false); got != "Partial Failure" {
		t.Fatalf("label = %q", got)
	}
	if got := statusLabel("completed", true); !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("colored label = %q", got)
	}
}

func TestIsTerminalNonFile(t *testing.T) {
	if isTerminal(io.Discard) {
		t.Fatal("expected non-file writer to be treated as non-terminal")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                       "-",
		1500 * time.Microsecond: "2ms",
		2345 * time.Millisecond: "2.3s",
	}
	for in, want := range cases {
		if got := formatDuration(in); got != want {
			t.Fatalf("formatDuration(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestFinishRunSummarisesFailures(t *testing.T) {
	var out strings.Builder
	failure := &export.FrameIOError{Path: "/sd/Tree/show.fseq", Frame: 3, Op: "write", Err: errors.New("disk full")}
	result := batch.Result{
		RunID: "0123456789abcdef",
		Total: 3,
		Items: []batch.ItemResult{
			{Seq: 1, Controller: "Garage", Source: "/shows/show.fseq"},
			{Seq: 2, Controller: "Tree", Source: "/shows/show.fseq", Err: failure},
		},
		Canceled: true,
	}
	runErr := errors.New("run failed")
	if err := finishRun(&out, result, runErr); err != runErr {
		t.Fatalf("finishRun returned %v", err)
	}
	got := out.String()
	for _, want := range []string{"frame_io", "Tree", "1 exported, 1 failed, 1 skipped (run 01234567)", "completed files were kept"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}
