package patterns

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxHighlightRunes bounds a single highlight phrase.
const MaxHighlightRunes = 60

// HighlightMatcher splits emphasized selling points into discrete phrases:
// lists introduced by a label such as "דגשים:" and bullet-marked items.
// It works on one line at a time.
type HighlightMatcher struct {
	label *regexp.Regexp
}

// NewHighlightMatcher compiles the label pattern.
func NewHighlightMatcher() *HighlightMatcher {
	return &HighlightMatcher{
		label: regexp.MustCompile(`(?:דגשים|יתרונות|תוספות|אבזור|כולל|highlights|features|extras|includes)\s*:`),
	}
}

// Key implements Matcher.
func (m *HighlightMatcher) Key() Key { return KeyHighlights }

// Scope implements Matcher.
func (m *HighlightMatcher) Scope() Category { return ScopeAny }

// Find implements Matcher for a single line.
func (m *HighlightMatcher) Find(line string) []Match {
	var out []Match

	for _, loc := range m.label.FindAllStringIndex(line, -1) {
		if !leftBoundary(line, loc[0]) {
			continue
		}
		end := len(line)
		if i := strings.IndexAny(line[loc[1]:], ".!?:"); i >= 0 {
			end = loc[1] + i
		}
		out = append(out, splitItems(line, loc[1], end, ",;/•|")...)
	}
	if len(out) > 0 {
		return out
	}

	if strings.Contains(line, "•") {
		first := strings.Index(line, "•") + len("•")
		return splitItems(line, first, len(line), "•")
	}

	for _, marker := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(line, marker) {
			return splitItems(line, len(marker), len(line), "")
		}
	}
	return nil
}

// splitItems cuts line[start:end] at any of seps and returns each trimmed,
// plausible piece as a highlight.
func splitItems(line string, start, end int, seps string) []Match {
	var out []Match
	pos := start
	for pos < end {
		cut := end
		if seps != "" {
			if i := strings.IndexAny(line[pos:end], seps); i >= 0 {
				cut = pos + i
			}
		}
		if m, ok := highlightAt(line, pos, cut); ok {
			out = append(out, m)
		}
		if cut == end {
			break
		}
		_, size := utf8.DecodeRuneInString(line[cut:])
		pos = cut + size
	}
	return out
}

func highlightAt(line string, start, end int) (Match, bool) {
	const trim = " \t,;.-*"
	for start < end && strings.ContainsRune(trim, rune(line[start])) {
		start++
	}
	for end > start && strings.ContainsRune(trim, rune(line[end-1])) {
		end--
	}
	item := line[start:end]
	n := utf8.RuneCountInString(item)
	if n < 2 || n > MaxHighlightRunes || strings.IndexFunc(item, unicode.IsLetter) < 0 {
		return Match{}, false
	}
	return Match{
		Key:     KeyHighlights,
		Value:   item,
		Start:   start,
		End:     end,
		Context: true,
	}, true
}
