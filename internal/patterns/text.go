package patterns

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// hebrewPrefixes are the one-letter prefixes (and, the, in, to, from, that,
// as) that attach directly to the following word.
const hebrewPrefixes = "והבלמשכ"

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// leftBoundary reports whether a token may start at byte offset start. A
// single Hebrew prefix letter directly before the token is allowed.
func leftBoundary(text string, start int) bool {
	if start <= 0 {
		return true
	}
	r, size := utf8.DecodeLastRuneInString(text[:start])
	if !isWordRune(r) {
		return true
	}
	if !strings.ContainsRune(hebrewPrefixes, r) {
		return false
	}
	before := start - size
	if before == 0 {
		return true
	}
	r, _ = utf8.DecodeLastRuneInString(text[:before])
	return !isWordRune(r)
}

// rightBoundary reports whether a token may end at byte offset end.
func rightBoundary(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[end:])
	return !isWordRune(r)
}

// FindKeyword returns every bounded occurrence of kw in text as [start, end)
// pairs.
func FindKeyword(text, kw string) [][2]int {
	if kw == "" {
		return nil
	}
	var spans [][2]int
	offset := 0
	for offset < len(text) {
		i := strings.Index(text[offset:], kw)
		if i < 0 {
			break
		}
		start := offset + i
		end := start + len(kw)
		if leftBoundary(text, start) && rightBoundary(text, end) {
			spans = append(spans, [2]int{start, end})
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return spans
}

// containsKeyword reports whether kw occurs in text as a bounded token.
func containsKeyword(text, kw string) bool {
	return len(FindKeyword(text, kw)) > 0
}

// parseAmount turns "45,000", "1.5" or "85" plus an optional thousands
// multiplier into a number.
func parseAmount(digits, multiplier string) (float64, bool) {
	digits = strings.ReplaceAll(digits, ",", "")
	if digits == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	switch multiplier {
	case "אלף", "k":
		v *= 1000
	}
	return v, true
}

// formatAmount renders whole numbers without a fraction.
func formatAmount(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
