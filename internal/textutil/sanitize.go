// Package textutil sanitizes metadata strings into filesystem-safe,
// Unicode-normalized path segments.
package textutil

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// segmentReplacer replaces filesystem-unsafe characters with safe
// alternatives. Slashes, backslashes, colons, and asterisks become dashes;
// other unsafe characters are removed.
var segmentReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizeSegment turns a metadata string into one safe path segment. The
// result is NFC-normalized so the same logical name always produces the same
// bytes regardless of how the source tagged it. Returns "" when nothing
// usable remains; callers supply their own fallback.
func SanitizeSegment(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	name = strings.TrimSpace(segmentReplacer.Replace(name))
	// A segment of only dots would escape the directory layout.
	if strings.Trim(name, ".") == "" {
		return ""
	}
	return name
}
