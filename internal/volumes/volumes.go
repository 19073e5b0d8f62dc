package volumes

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"fseqgen/internal/logging"
)

// Mount is one entry of the kernel mount table.
type Mount struct {
	Device     string
	MountPoint string
	FSType     string
	Options    []string
}

// ReadOnly reports whether the mount was made with the ro option.
func (m Mount) ReadOnly() bool {
	for _, opt := range m.Options {
		if opt == "ro" {
			return true
		}
	}
	return false
}

// Volume is a mounted, ready block device.
type Volume struct {
	Device     string `json:"device"`
	MountPoint string `json:"mount_point"`
	Name       string `json:"name"`
	FSType     string `json:"fs_type"`
	TotalBytes uint64 `json:"total_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
	Writable   bool   `json:"writable"`
	Removable  bool   `json:"removable"`
}

// Scanner lists volumes. The zero value reads the live system.
type Scanner struct {
	MountsPath string
	SysRoot    string
	LabelDir   string
	Statfs     func(path string) (total, free uint64, err error)
	Writable   func(path string) bool
	Logger     *slog.Logger
}

func (s Scanner) withDefaults() Scanner {
	if s.MountsPath == "" {
		s.MountsPath = "/proc/self/mounts"
	}
	if s.SysRoot == "" {
		s.SysRoot = "/sys"
	}
	if s.LabelDir == "" {
		s.LabelDir = "/dev/disk/by-label"
	}
	if s.Statfs == nil {
		s.Statfs = statfs
	}
	if s.Writable == nil {
		s.Writable = writable
	}
	s.Logger = logging.NewComponentLogger(s.Logger, "volumes")
	return s
}

// List returns the mounted block device volumes, removable ones first.
// Mounts that cannot be inspected are skipped with a debug log.
func (s Scanner) List() ([]Volume, error) {
	s = s.withDefaults()
	file, err := os.Open(s.MountsPath)
	if err != nil {
		return nil, fmt.Errorf("read mount table: %w", err)
	}
	defer file.Close()

	mounts, err := ParseMounts(file)
	if err != nil {
		return nil, err
	}
	labels := s.labels()

	seen := make(map[string]bool)
	var out []Volume
	for _, m := range mounts {
		if !strings.HasPrefix(m.Device, "/dev/") || seen[m.MountPoint] {
			continue
		}
		seen[m.MountPoint] = true
		total, free, err := s.Statfs(m.MountPoint)
		if err != nil {
			s.Logger.Debug("volume not ready", logging.String("mount_point", m.MountPoint), logging.Error(err))
			continue
		}
		name := labels[m.Device]
		if name == "" {
			name = filepath.Base(m.MountPoint)
		}
		out = append(out, Volume{
			Device:     m.Device,
			MountPoint: m.MountPoint,
			Name:       name,
			FSType:     m.FSType,
			TotalBytes: total,
			FreeBytes:  free,
			Writable:   !m.ReadOnly() && s.Writable(m.MountPoint),
			Removable:  s.removable(m.Device),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Removable != out[j].Removable {
			return out[i].Removable
		}
		return out[i].MountPoint < out[j].MountPoint
	})
	return out, nil
}

// List reads the live system.
func List(logger *slog.Logger) ([]Volume, error) {
	return Scanner{Logger: logger}.List()
}

// ParseMounts reads /proc/mounts formatted data.
func ParseMounts(r io.Reader) ([]Mount, error) {
	var mounts []Mount
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		mounts = append(mounts, Mount{
			Device:     unescapeMount(fields[0]),
			MountPoint: unescapeMount(fields[1]),
			FSType:     fields[2],
			Options:    strings.Split(fields[3], ","),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse mount table: %w", err)
	}
	return mounts, nil
}

// unescapeMount decodes the octal escapes the kernel uses for spaces, tabs,
// newlines and backslashes.
func unescapeMount(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] == '\\' && i+3 < len(value) {
			if n, err := strconv.ParseUint(value[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(value[i])
	}
	return b.String()
}

// labels maps device paths to filesystem labels via udev's by-label links.
func (s Scanner) labels() map[string]string {
	out := make(map[string]string)
	entries, err := os.ReadDir(s.LabelDir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		target, err := filepath.EvalSymlinks(filepath.Join(s.LabelDir, entry.Name()))
		if err != nil {
			continue
		}
		out[target] = unescapeLabel(entry.Name())
	}
	return out
}

// unescapeLabel decodes udev's \xNN escapes.
func unescapeLabel(value string) string {
	if !strings.Contains(value, `\x`) {
		return value
	}
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] == '\\' && i+3 < len(value) && value[i+1] == 'x' {
			if n, err := strconv.ParseUint(value[i+2:i+4], 16, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(value[i])
	}
	return b.String()
}

// removable checks the sysfs removable flag of the device or, for a
// partition, of its parent disk.
func (s Scanner) removable(device string) bool {
	resolved, err := filepath.EvalSymlinks(device)
	if err != nil {
		resolved = device
	}
	name := filepath.Base(resolved)
	blockDir := filepath.Join(s.SysRoot, "class", "block", name)
	dirs := []string{blockDir}
	if real, err := filepath.EvalSymlinks(blockDir); err == nil {
		dirs = []string{real, filepath.Dir(real)}
	}
	for _, dir := range dirs {
		data, err := os.ReadFile(filepath.Join(dir, "removable"))
		if err != nil {
			continue
		}
		return strings.TrimSpace(string(data)) == "1"
	}
	return false
}

func statfs(path string) (total, free uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize, nil
}

func writable(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}
