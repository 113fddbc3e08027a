// Package normalize cleans raw classified-ad text before pattern matching.
//
// Every function here is pure and never fails: any input, including the empty
// string, yields a (possibly empty) string.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// MaxInputRunes bounds how much of a listing is examined.
const MaxInputRunes = 20000

// Document is the normalized view of one listing text.
type Document struct {
	// Clean keeps the original letter case.
	Clean string
	// Text is Clean lowercased; byte offsets into Text address the same bytes in Clean.
	Text string
	// Lines are the cleaned, non-empty input lines in order.
	Lines []string
}

// Empty reports whether the document carries no text at all.
func (d Document) Empty() bool {
	return d.Text == ""
}

// LineSpans returns the [start, end) byte range of each line within Text.
func (d Document) LineSpans() [][2]int {
	spans := make([][2]int, 0, len(d.Lines))
	offset := 0
	for _, line := range d.Lines {
		spans = append(spans, [2]int{offset, offset + len(line)})
		offset += len(line) + 1
	}
	return spans
}

// Parse normalizes raw text into a Document.
func Parse(raw string) Document {
	return ParseLimit(raw, MaxInputRunes)
}

// ParseLimit is Parse with its own rune bound. A limit <= 0 means
// MaxInputRunes.
func ParseLimit(raw string, limit int) Document {
	if limit <= 0 {
		limit = MaxInputRunes
	}
	raw = truncateRunes(raw, limit)

	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if cleaned := cleanLine(line); cleaned != "" {
			lines = append(lines, cleaned)
		}
	}

	clean := strings.Join(lines, " ")
	return Document{
		Clean: clean,
		Text:  lowerSameWidth(clean),
		Lines: lines,
	}
}

// Text returns the normalized single-line lowercase form of raw.
func Text(raw string) string {
	return Parse(raw).Text
}

// Lower lowercases s without changing its byte length.
func Lower(s string) string {
	return lowerSameWidth(s)
}

// cleanLine maps glyph variants, drops control characters and collapses
// whitespace within a single line.
func cleanLine(line string) string {
	line = width.Narrow.String(line)

	var b strings.Builder
	b.Grow(len(line))
	space := false
	for _, r := range line {
		r = mapRune(r)
		if r == dropRune {
			continue
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

const dropRune = -1

// mapRune unifies digit and punctuation variants. It returns dropRune for
// characters that carry no content.
func mapRune(r rune) rune {
	switch {
	case r >= '\u0660' && r <= '\u0669':
		return '0' + (r - '\u0660')
	case r >= '\u06F0' && r <= '\u06F9':
		return '0' + (r - '\u06F0')
	case r >= '\u0591' && r <= '\u05C7' && unicode.Is(unicode.Mn, r):
		// niqqud and cantillation
		return dropRune
	}

	switch r {
	case '\u05F3', '\u2018', '\u2019', '\u201A', '\u201B', '\u2032', '`', '\u00B4':
		return '\''
	case '\u05F4', '\u201C', '\u201D', '\u201E', '\u201F', '\u2033', '\u00AB', '\u00BB':
		return '"'
	case '\u05BE', '\u2010', '\u2011', '\u2012', '\u2013', '\u2014', '\u2015', '\u2212':
		return '-'
	case '\u00A0', '\u2007', '\u202F', '\t', '\r':
		return ' '
	case '\u200B', '\u200C', '\u200D', '\u200E', '\u200F', '\uFEFF',
		'\u202A', '\u202B', '\u202C', '\u202D', '\u202E',
		'\u2066', '\u2067', '\u2068', '\u2069':
		return dropRune
	case '\u2022', '\u25CF', '\u25AA', '\u2714', '\u2713', '\u2705', '\u2611', '\u27A2', '\u25BA':
		return '\u2022'
	}

	if r == utf8.RuneError || unicode.IsControl(r) {
		return dropRune
	}
	return r
}

// lowerSameWidth lowercases rune by rune, keeping any rune whose lowercase
// form has a different UTF-8 length.
func lowerSameWidth(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		lr := unicode.ToLower(r)
		if utf8.RuneLen(lr) != utf8.RuneLen(r) {
			lr = r
		}
		b.WriteRune(lr)
	}
	return b.String()
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// Fold returns the comparison key used for dictionary lookups: diacritics
// and niqqud removed, lowercase, punctuation dropped, single spaces.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range Text(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case r == '\'' || r == '"' || r == '.' || r == '-':
			// abbreviation marks inside words: ב.מ.וו, ג'יפ
		default:
			space = true
		}
	}
	return b.String()
}
