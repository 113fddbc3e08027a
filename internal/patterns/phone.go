package patterns

import "regexp"

// PhoneMatcher finds Israeli mobile, landline and VoIP numbers and rewrites
// them to the local digits-only form ("0501234567").
type PhoneMatcher struct {
	re *regexp.Regexp
}

// NewPhoneMatcher compiles the phone pattern.
func NewPhoneMatcher() *PhoneMatcher {
	return &PhoneMatcher{
		re: regexp.MustCompile(`(?:\+?972[-\s.]?(?:\(0\)[-\s.]?)?|0)(?P<area>5\d|7\d|[2-489])[-\s.]?(?P<a>\d{3})[-\s.]?(?P<b>\d{4})`),
	}
}

// Key implements Matcher.
func (m *PhoneMatcher) Key() Key { return KeyPhone }

// Scope implements Matcher.
func (m *PhoneMatcher) Scope() Category { return ScopeAny }

// Find implements Matcher.
func (m *PhoneMatcher) Find(text string) []Match {
	area := m.re.SubexpIndex("area")
	a := m.re.SubexpIndex("a")
	b := m.re.SubexpIndex("b")

	var out []Match
	for _, loc := range m.re.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		if !leftBoundary(text, start) || !rightBoundary(text, end) {
			continue
		}
		out = append(out, Match{
			Key:   KeyPhone,
			Value: "0" + group(text, loc, area) + group(text, loc, a) + group(text, loc, b),
			Start: start,
			End:   end,
		})
	}
	return out
}
