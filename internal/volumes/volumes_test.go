package volumes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pilebones/go-udev/netlink"
)

const mountTable = `sysfs /sys sysfs rw,nosuid,nodev,noexec,relatime 0 0
proc /proc proc rw,nosuid,nodev,noexec,relatime 0 0
/dev/nvme0n1p2 / ext4 rw,relatime 0 0
/dev/sdb1 /media/show/SHOW\040CARD vfat rw,nosuid,nodev,relatime 0 0
/dev/sdc1 /media/show/RO vfat ro,nosuid 0 0
/dev/sdd1 /media/show/gone vfat rw 0 0
tmpfs /run tmpfs rw,nosuid,nodev 0 0
/dev/nvme0n1p2 / ext4 rw,relatime 0 0
`

func TestParseMountsUnescapes(t *testing.T) {
	mounts, err := ParseMounts(strings.NewReader(mountTable))
	if err != nil {
		t.Fatalf("ParseMounts: %v", err)
	}
	if len(mounts) != 8 {
		t.Fatalf("mounts = %d", len(mounts))
	}
	if mounts[3].MountPoint != "/media/show/SHOW CARD" || mounts[3].FSType != "vfat" {
		t.Fatalf("mount = %+v", mounts[3])
	}
	if !mounts[4].ReadOnly() || mounts[3].ReadOnly() {
		t.Fatal("read-only flag not detected")
	}
}

func TestScannerList(t *testing.T) {
	root := t.TempDir()
	mountsPath := filepath.Join(root, "mounts")
	if err := os.WriteFile(mountsPath, []byte(mountTable), 0o644); err != nil {
		t.Fatal(err)
	}

	sysRoot := filepath.Join(root, "sys")
	diskDir := filepath.Join(sysRoot, "devices", "usb", "block", "sdb")
	if err := os.MkdirAll(filepath.Join(diskDir, "sdb1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(diskDir, "removable"), []byte("1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	classDir := filepath.Join(sysRoot, "class", "block")
	if err := os.MkdirAll(classDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(diskDir, "sdb1"), filepath.Join(classDir, "sdb1")); err != nil {
		t.Fatal(err)
	}

	scanner := Scanner{
		MountsPath: mountsPath,
		SysRoot:    sysRoot,
		LabelDir:   filepath.Join(root, "no-labels"),
		Statfs: func(path string) (uint64, uint64, error) {
			if strings.HasSuffix(path, "gone") {
				return 0, 0, errors.New("no medium")
			}
			return 8 << 30, 2 << 30, nil
		},
		Writable: func(string) bool { return true },
	}
	vols, err := scanner.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(vols) != 3 {
		t.Fatalf("volumes = %+v", vols)
	}
	first := vols[0]
	if first.Device != "/dev/sdb1" || !first.Removable || !first.Writable || first.Name != "SHOW CARD" {
		t.Fatalf("first volume = %+v", first)
	}
	if first.FreeBytes != 2<<30 || first.TotalBytes != 8<<30 {
		t.Fatalf("sizes = %+v", first)
	}
	for _, v := range vols[1:] {
		if v.Removable {
			t.Fatalf("unexpected removable volume %+v", v)
		}
		if v.MountPoint == "/media/show/RO" && v.Writable {
			t.Fatal("read-only mount reported writable")
		}
	}
}

func TestUnescapeLabel(t *testing.T) {
	if got := unescapeLabel(`SHOW\x20CARD`); got != "SHOW CARD" {
		t.Fatalf("unescapeLabel = %q", got)
	}
	if got := unescapeLabel("PLAIN"); got != "PLAIN" {
		t.Fatalf("unescapeLabel = %q", got)
	}
}

func TestBuildMatcher(t *testing.T) {
	matcher := buildMatcher()
	add := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "block", "DEVTYPE": "partition"}}
	if !matcher.Evaluate(add) {
		t.Error("expected matcher to accept partition add")
	}
	remove := netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"SUBSYSTEM": "block", "DEVTYPE": "partition"}}
	if !matcher.Evaluate(remove) {
		t.Error("expected matcher to accept partition remove")
	}
	disk := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "block", "DEVTYPE": "disk"}}
	if matcher.Evaluate(disk) {
		t.Error("expected matcher to reject whole-disk events")
	}
	change := netlink.UEvent{Action: netlink.CHANGE, Env: map[string]string{"SUBSYSTEM": "block", "DEVTYPE": "partition"}}
	if matcher.Evaluate(change) {
		t.Error("expected matcher to reject change events")
	}
}

func TestHandleEvent(t *testing.T) {
	var got []Event
	w := NewWatcher(nil, func(_ context.Context, e Event) { got = append(got, e) })

	w.handleEvent(context.Background(), netlink.UEvent{Action: netlink.ADD, Env: map[string]string{}})
	if len(got) != 0 {
		t.Fatal("handler called for event without device")
	}

	w.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"DEVPATH": "/devices/pci0000:00/usb1/block/sdb/sdb1", "ID_FS_LABEL": "SHOW", "ID_FS_TYPE": "vfat"},
	})
	if len(got) != 1 || got[0].Device != "/dev/sdb1" || got[0].Label != "SHOW" || got[0].Action != "add" {
		t.Fatalf("events = %+v", got)
	}

	w.handleEvent(context.Background(), netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"DEVNAME": "sdc1"}})
	if len(got) != 2 || got[1].Device != "/dev/sdc1" {
		t.Fatalf("events = %+v", got)
	}
}

func TestWatcherLifecycleIsNilSafe(t *testing.T) {
	var w *Watcher
	w.Stop()
	if w.Running() {
		t.Fatal("nil watcher running")
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil watcher: %v", err)
	}

	live := NewWatcher(nil, nil)
	live.Stop()
	live.Stop()
	if live.Running() {
		t.Fatal("unstarted watcher running")
	}
}
