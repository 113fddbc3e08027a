package extract

import (
	"strings"
	"unicode"
)

// MaxTitleRunes bounds the derived title.
const MaxTitleRunes = 80

// Title derives a listing title from the first line that carries letters:
// its leading clause, without bullet marks, cut at a word boundary.
func Title(lines []string) string {
	for _, line := range lines {
		clause := strings.TrimSpace(strings.TrimLeft(firstClause(line), "•-*+ "))
		if strings.IndexFunc(clause, unicode.IsLetter) < 0 {
			continue
		}
		return truncateWords(clause, MaxTitleRunes)
	}
	return ""
}

// firstClause cuts line at the first clause separator. A comma between
// digits ("45,000") and a period inside a word ("ב.מ.וו", "1.6") do not
// separate.
func firstClause(line string) string {
	runes := []rune(line)
	for i := 1; i < len(runes); i++ {
		switch runes[i] {
		case '|', '!', '?', ';':
			return string(runes[:i])
		case ',':
			if i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
				continue
			}
			return string(runes[:i])
		case '.':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				return string(runes[:i])
			}
		}
	}
	return line
}

func truncateWords(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := string(runes[:max])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
