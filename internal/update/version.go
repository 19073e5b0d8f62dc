package update

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Version is a major.minor.patch triple.
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Key orders versions; a larger key is newer.
func (v Version) Key() int {
	return v.Major*10000 + v.Minor*100 + v.Patch
}

// ParseVersion reads up to three dot separated numbers. Missing or
// non-numeric segments are 0, so "2.2" is 2.2.0 and "5" is 5.0.0.
func ParseVersion(value string) Version {
	value = strings.TrimPrefix(strings.TrimSpace(value), "v")
	parts := strings.Split(value, ".")
	seg := func(i int) int {
		if i >= len(parts) {
			return 0
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return 0
		}
		return n
	}
	return Version{Major: seg(0), Minor: seg(1), Patch: seg(2)}
}

// VersionFromAssetName extracts the version of a release asset named
// <base>_<version>.<ext>. Names without an underscore are version 0.0.0.
func VersionFromAssetName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return "0.0.0"
	}
	return base[idx+1:]
}
