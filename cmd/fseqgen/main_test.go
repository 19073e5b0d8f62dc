package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"fseqgen/internal/testsupport"
)

func TestControllersCommandRendersTable(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "controllers")
	if err != nil {
		t.Fatalf("controllers: %v", err)
	}
	for _, want := range []string{"Garage", "192.168.1.51", "41", "100", "2 controllers, 100 channels"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFilesCommandListsSequences(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "files")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if !strings.Contains(out, "show.fseq") || !strings.Contains(out, "encore.fseq") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "2 controllers loaded") {
		t.Fatalf("topology not reported:\n%s", out)
	}
}

func TestExportCommandWritesSelectedFile(t *testing.T) {
	env := setupCLITestEnv(t)
	dest := filepath.Join(t.TempDir(), "card")
	out, err := env.run(t, "export", "--dest", dest, "--file", "show.fseq", "--sparse", "--start", "10", "--count", "5", "--format", "1")
	if err != nil {
		t.Fatalf("export: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 exported, 0 failed") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	header, frames := testsupport.ReadFrames(t, filepath.Join(dest, "show.fseq"))
	if header.Major != 1 || header.ChannelCount != 5 || len(frames) != 4 {
		t.Fatalf("header = %+v", header)
	}
	if frames[2][0] != testsupport.FrameByte(2, 10) {
		t.Fatalf("frame 2 starts with %d", frames[2][0])
	}
	if _, err := os.Stat(filepath.Join(dest, "encore.fseq")); !os.IsNotExist(err) {
		t.Fatalf("unselected file written: %v", err)
	}
}

func TestExportCommandRejectsBadFormat(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.run(t, "export", "--dest", t.TempDir(), "--format", "3"); err == nil {
		t.Fatal("expected error for version 3")
	}
}

func TestFleetCommandAndHistory(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithHistory())
	dest := filepath.Join(t.TempDir(), "card")
	out, err := env.run(t, "fleet", "--dest", dest, "--exclude", "encore.fseq", "--compression", "zlib")
	if err != nil {
		t.Fatalf("fleet: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 exported, 0 failed") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	for name, width := range map[string]uint32{"Garage": 40, "Tree": 60} {
		header, _ := testsupport.ReadFrames(t, filepath.Join(dest, name, "show.fseq"))
		if header.ChannelCount != width {
			t.Fatalf("%s channels = %d", name, header.ChannelCount)
		}
	}

	out, err = env.run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "fleet") || !strings.Contains(out, "Completed") || !strings.Contains(out, "2/2") {
		t.Fatalf("unexpected history:\n%s", out)
	}
}

func TestHistoryDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, err := env.run(t, "history"); err == nil {
		t.Fatal("expected error with history disabled")
	}
}

func TestInfoCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "info", filepath.Join(env.cfg.Paths.SourceDir, "show.fseq"))
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	for _, want := range []string{"Version:      2.2", "Channels:     100", "Frames:       4", "Step time:    50 ms"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigShowRedactsToken(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("GITHUB_TOKEN", "secret-token")
	out, err := env.run(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "secret-token") || !strings.Contains(out, "source_dir") {
		t.Fatalf("unexpected config output:\n%s", out)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "fseqgen.toml")
	if _, err := env.run(t, "config", "init", "--path", target); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}
	if _, err := env.run(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when file exists")
	}
}

func TestExitCode(t *testing.T) {
	var buf bytes.Buffer
	if got := exitCode(&buf, false, context.Canceled); got != 130 {
		t.Fatalf("canceled exit = %d", got)
	}
	if got := exitCode(&buf, true, errors.New("boom")); got != 130 {
		t.Fatalf("interrupted exit = %d", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("interrupt printed %q", buf.String())
	}
	if got := exitCode(&buf, false, errors.New("boom")); got != 1 {
		t.Fatalf("error exit = %d", got)
	}
	if strings.TrimSpace(buf.String()) != "boom" {
		t.Fatalf("stderr = %q", buf.String())
	}
}

func TestExitCodeAfterStopReportsFailure(t *testing.T) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := errors.New("controller not found")
	interrupted := ctx.Err() != nil
	stop()
	if ctx.Err() == nil {
		t.Fatal("stop should cancel the signal context")
	}

	var buf bytes.Buffer
	if got := exitCode(&buf, interrupted, runErr); got != 1 {
		t.Fatalf("exit = %d, want 1", got)
	}
	if !strings.Contains(buf.String(), "controller not found") {
		t.Fatalf("error not printed: %q", buf.String())
	}
}
