package textutil

import (
	"strings"
	"unicode"
)

// fileNameReplacer replaces characters FAT and NTFS reject.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName makes name usable as a single path segment. Slashes,
// backslashes, colons, and asterisks become dashes; other unsafe characters
// and control characters are removed. Trailing dots and spaces, which FAT
// drops silently, are trimmed.
func SanitizeFileName(name string) string {
	name = fileNameReplacer.Replace(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimRight(strings.TrimSpace(name), ". ")
	if name == "." || name == ".." {
		return ""
	}
	return name
}

// DirName returns a directory name for a controller, falling back when the
// sanitized name is empty.
func DirName(name, fallback string) string {
	if clean := SanitizeFileName(name); clean != "" {
		return clean
	}
	return SanitizeFileName(fallback)
}
