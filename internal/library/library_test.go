package library_test

import (
	"os"
	"path/filepath"
	"testing"

	"fseqgen/internal/library"
	"fseqgen/internal/topology"
)

func TestScanMatchesSequencesIgnoringCase(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.fseq", "A.FSEQ", "notes.txt", "c.fseq.bak"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.fseq"), 0o755); err != nil {
		t.Fatal(err)
	}

	entries, err := library.Scan(dir, "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "A.FSEQ" || entries[1].Name != "b.fseq" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[1].Path != filepath.Join(dir, "b.fseq") || entries[1].Size != 1 {
		t.Fatalf("entry = %+v", entries[1])
	}
}

func TestScanErrors(t *testing.T) {
	if _, err := library.Scan(filepath.Join(t.TempDir(), "missing"), ""); err == nil {
		t.Fatal("expected error for missing dir")
	}
	if _, err := library.Scan(t.TempDir(), "["); err == nil {
		t.Fatal("expected error for bad pattern")
	}
}

func TestTopologyPath(t *testing.T) {
	dir := t.TempDir()
	if _, ok := library.TopologyPath(dir); ok {
		t.Fatal("topology reported without file")
	}
	if err := os.WriteFile(filepath.Join(dir, topology.DefaultFileName), []byte("<Networks/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	path, ok := library.TopologyPath(dir)
	if !ok || path != filepath.Join(dir, topology.DefaultFileName) {
		t.Fatalf("TopologyPath = %s, %v", path, ok)
	}
}
