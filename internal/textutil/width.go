package textutil

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Truncate shortens s to at most width terminal cells, ending with "…"
// when cut. Wide (East Asian) characters count as two cells.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = SanitizeUTF8(FirstLine(s))
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// PadRight truncates s to width cells and pads it with spaces to exactly
// width cells.
func PadRight(s string, width int) string {
	s = Truncate(s, width)
	return s + strings.Repeat(" ", width-runewidth.StringWidth(s))
}

// PadLeft is PadRight with the padding before s, for numeric columns.
func PadLeft(s string, width int) string {
	s = Truncate(s, width)
	return strings.Repeat(" ", width-runewidth.StringWidth(s)) + s
}

// Width returns the display width of s in terminal cells.
func Width(s string) int { return runewidth.StringWidth(s) }

// FirstLine returns the first line of a string.
// Leading newlines are trimmed before extracting the first line.
func FirstLine(s string) string {
	s = strings.TrimLeft(s, "\r\n")
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}
