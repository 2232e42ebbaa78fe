package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/search"
	"github.com/wesm/contractlens/internal/snapshot"
	"github.com/wesm/contractlens/internal/textutil"
)

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)
)

// formatAmount renders a peso amount compactly: exact below a thousand,
// then K, M and B with two decimals.
func formatAmount(d decimal.Decimal) string {
	abs := d.Abs()
	switch {
	case abs.GreaterThanOrEqual(billion):
		return d.Div(billion).StringFixed(2) + "B"
	case abs.GreaterThanOrEqual(million):
		return d.Div(million).StringFixed(2) + "M"
	case abs.GreaterThanOrEqual(thousand):
		return d.Div(thousand).StringFixed(2) + "K"
	default:
		return d.StringFixed(2)
	}
}

// formatCount formats a count as a human-readable string (e.g., "1.5K", "2.3M").
func formatCount(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// formatShare renders part as a percentage of whole, or "-" when whole is zero.
func formatShare(part, whole decimal.Decimal) string {
	if whole.IsZero() {
		return "-"
	}
	return part.Mul(decimal.NewFromInt(100)).Div(whole).StringFixed(1) + "%"
}

// dimensionLabel returns the column header for d.
func dimensionLabel(d snapshot.Dimension) string {
	switch d {
	case snapshot.Contractor:
		return "Contractor"
	case snapshot.Organization:
		return "Organization"
	case snapshot.Area:
		return "Area"
	case snapshot.Category:
		return "Category"
	default:
		return string(d)
	}
}

// dimensionPrefix returns a short prefix for drill-down breadcrumbs.
func dimensionPrefix(d snapshot.Dimension) string {
	switch d {
	case snapshot.Contractor:
		return "C"
	case snapshot.Organization:
		return "O"
	case snapshot.Area:
		return "A"
	case snapshot.Category:
		return "K"
	default:
		return "?"
	}
}

// padRight pads a string with spaces to fill width terminal cells.
// Uses lipgloss.Width to correctly handle ANSI codes and full-width characters.
func padRight(s string, width int) string {
	if width <= 0 {
		return ""
	}
	sw := lipgloss.Width(s)
	if sw >= width {
		return ansi.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-sw)
}

// padLeft right-aligns s in width terminal cells.
func padLeft(s string, width int) string {
	sw := lipgloss.Width(s)
	if sw >= width {
		return ansi.Truncate(s, width, "")
	}
	return strings.Repeat(" ", width-sw) + s
}

// truncateRunes fits s on one line within maxWidth terminal cells.
func truncateRunes(s string, maxWidth int) string {
	s = strings.NewReplacer("\n", " ", "\r", "", "\t", " ").Replace(s)
	return textutil.Truncate(s, maxWidth)
}

// truncateToWidth returns the prefix of s that fits within maxWidth visual columns.
func truncateToWidth(s string, maxWidth int) string {
	return ansi.Truncate(s, maxWidth, "")
}

// skipToWidth returns the suffix of s starting after skipWidth visual columns.
func skipToWidth(s string, skipWidth int) string {
	return ansi.Cut(s, skipWidth, 10000)
}

// searchTerms extracts the keywords and entity terms of a search query
// for highlighting. An unparseable query highlights nothing.
func searchTerms(queryStr string) []string {
	if queryStr == "" {
		return nil
	}
	q, err := search.Parse(queryStr)
	if err != nil {
		return nil
	}
	terms := append([]string(nil), q.Keywords...)
	for _, d := range snapshot.Dimensions {
		terms = append(terms, q.Entities[d]...)
	}
	seen := make(map[string]bool, len(terms))
	out := terms[:0]
	for _, t := range terms {
		lower := strings.ToLower(t)
		if t != "" && !seen[lower] {
			seen[lower] = true
			out = append(out, t)
		}
	}
	return out
}

// highlightTerms wraps case-insensitive occurrences of terms in text with
// highlightStyle. It works on runes so that case folding that changes
// byte length cannot shift the match offsets.
func highlightTerms(text string, terms []string) string {
	if text == "" || len(terms) == 0 {
		return text
	}
	textRunes := []rune(text)
	lowerRunes := []rune(strings.ToLower(text))
	if len(lowerRunes) != len(textRunes) {
		return text
	}

	marked := make([]bool, len(textRunes))
	for _, term := range terms {
		tr := []rune(strings.ToLower(term))
		if len(tr) == 0 {
			continue
		}
		for i := 0; i+len(tr) <= len(lowerRunes); i++ {
			if string(lowerRunes[i:i+len(tr)]) == string(tr) {
				for j := i; j < i+len(tr); j++ {
					marked[j] = true
				}
			}
		}
	}

	var sb strings.Builder
	for i := 0; i < len(textRunes); {
		j := i
		for j < len(textRunes) && marked[j] == marked[i] {
			j++
		}
		seg := string(textRunes[i:j])
		if marked[i] {
			seg = highlightStyle.Render(seg)
		}
		sb.WriteString(seg)
		i = j
	}
	return sb.String()
}
