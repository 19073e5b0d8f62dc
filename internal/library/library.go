// Package library discovers source sequences and the topology document in a
// show folder.
package library

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fseqgen/internal/topology"
)

// DefaultPattern matches rendered sequences.
const DefaultPattern = "*.fseq"

// Entry is one sequence file in the show folder.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Scan lists regular files in dir matching pattern, ignoring case, sorted
// by name. Subdirectories are not searched.
func Scan(dir, pattern string) ([]Entry, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("source pattern %q: %w", pattern, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir: %w", err)
	}

	lowered := strings.ToLower(pattern)
	var out []Entry
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(lowered, strings.ToLower(entry.Name())); !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		out = append(out, Entry{
			Name:    entry.Name(),
			Path:    filepath.Join(dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// TopologyPath returns the topology document beside the sequences in dir and
// whether it exists.
func TopologyPath(dir string) (string, bool) {
	path := filepath.Join(dir, topology.DefaultFileName)
	info, err := os.Stat(path)
	return path, err == nil && info.Mode().IsRegular()
}
