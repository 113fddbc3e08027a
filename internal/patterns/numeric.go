package patterns

import (
	"regexp"
	"time"
)

// amount matches "45,000", "45000" and "1.5".
const amount = `(?P<num>\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)`

// multiplier matches an optional thousands word after an amount.
const multiplier = `(?:\s*(?P<mult>אלף|k))?`

// rule is one regular expression of a PatternSet. Named groups: num holds
// the number, mult an optional thousands multiplier, word a spelled-out
// number and unit a captured unit.
type rule struct {
	re      *regexp.Regexp
	context bool
	num     int
	mult    int
	word    int
	unit    int
}

func newRule(expr string, context bool) rule {
	re := regexp.MustCompile(expr)
	return rule{
		re:      re,
		context: context,
		num:     re.SubexpIndex("num"),
		mult:    re.SubexpIndex("mult"),
		word:    re.SubexpIndex("word"),
		unit:    re.SubexpIndex("unit"),
	}
}

func group(text string, loc []int, idx int) string {
	if idx < 0 || 2*idx+1 >= len(loc) || loc[2*idx] < 0 {
		return ""
	}
	return text[loc[2*idx]:loc[2*idx+1]]
}

// PatternSet is the list of rules one matcher tries, in Hebrew and
// English/transliterated forms side by side.
type PatternSet []rule

// RuleMatcher is a numeric matcher driven by a PatternSet.
type RuleMatcher struct {
	key    Key
	scope  Category
	set    PatternSet
	words  map[string]float64
	accept func(float64) bool
	unit   func(captured string) string
}

// Key implements Matcher.
func (m *RuleMatcher) Key() Key { return m.key }

// Scope implements Matcher.
func (m *RuleMatcher) Scope() Category { return m.scope }

// Find implements Matcher.
func (m *RuleMatcher) Find(text string) []Match {
	var out []Match
	for _, r := range m.set {
		for _, loc := range r.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			if !leftBoundary(text, start) || !rightBoundary(text, end) {
				continue
			}

			var (
				v  float64
				ok bool
			)
			if w := group(text, loc, r.word); w != "" {
				v, ok = m.words[w]
			} else {
				v, ok = parseAmount(group(text, loc, r.num), group(text, loc, r.mult))
			}
			if !ok || (m.accept != nil && !m.accept(v)) {
				continue
			}

			unit := ""
			if m.unit != nil {
				unit = m.unit(group(text, loc, r.unit))
			}
			out = append(out, Match{
				Key:     m.key,
				Value:   formatAmount(v),
				Unit:    unit,
				Start:   start,
				End:     end,
				Context: r.context,
			})
		}
	}
	return out
}

func between(lo, hi float64) func(float64) bool {
	return func(v float64) bool { return v >= lo && v <= hi }
}

func fixedUnit(u string) func(string) string {
	return func(string) string { return u }
}

// NewPriceMatcher finds prices. Bare numbers need at least three digits and
// must not start with zero; currency or keyword context lifts that limit.
func NewPriceMatcher() *RuleMatcher {
	const currency = `(?:₪|ש"ח|שח|שקלים|שקל|nis|ils)`
	return &RuleMatcher{
		key:   KeyPrice,
		scope: ScopeAny,
		set: PatternSet{
			newRule(`(?:מחיר|price|מבוקש|מבקשים|מבקשת|מבקש|עלות)\s*[:\-]?\s*(?:של\s*)?(?:₪\s*)?`+amount+multiplier, true),
			newRule(amount+multiplier+`\s*`+currency, true),
			newRule(currency+`\s*`+amount+multiplier, true),
			newRule(`(?P<num>[1-9]\d{0,2}(?:,\d{3})+|[1-9]\d{2,})`, false),
		},
		accept: between(1, 100_000_000),
		unit:   fixedUnit("ILS"),
	}
}

// NewYearMatcher finds model years between 1980 and next year according to
// now.
func NewYearMatcher(now func() time.Time) *RuleMatcher {
	if now == nil {
		now = time.Now
	}
	return &RuleMatcher{
		key:   KeyYear,
		scope: CategoryVehicles,
		set: PatternSet{
			newRule(`(?:שנתון|שנת|שנה|מודל|model|year)\s*[:\-]?\s*(?P<num>(?:19|20)\d{2})`, true),
			newRule(`(?P<num>(?:19|20)\d{2})`, false),
		},
		accept: func(v float64) bool {
			return v >= 1980 && v <= float64(now().Year()+1)
		},
	}
}

// NewYearContextMatcher finds only cued years ("שנת 2018", "model 2020").
// It runs in every category so a cued year is never read as a bare price.
func NewYearContextMatcher(now func() time.Time) *RuleMatcher {
	m := NewYearMatcher(now)
	m.scope = ScopeAny
	m.set = m.set[:1]
	return m
}

// NewHandMatcher finds the ownership count ("יד 2", "2nd hand").
func NewHandMatcher() *RuleMatcher {
	return &RuleMatcher{
		key:   KeyHand,
		scope: CategoryVehicles,
		set: PatternSet{
			newRule(`(?:יד|hand)\s*[:\-]?\s*(?P<num>\d{1,2})`, true),
			newRule(`(?P<num>\d{1,2})(?:st|nd|rd|th)?\s*hand`, true),
			newRule(`יד\s*(?P<word>ראשונה|שנייה|שניה|שלישית|רביעית|חמישית)`, true),
			newRule(`(?P<word>first|second|third|fourth|fifth)\s*hand`, true),
		},
		words: map[string]float64{
			"ראשונה": 1, "שנייה": 2, "שניה": 2, "שלישית": 3, "רביעית": 4, "חמישית": 5,
			"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
		},
		accept: between(0, 20),
	}
}

// NewMileageMatcher finds odometer readings; the value is always in km.
func NewMileageMatcher() *RuleMatcher {
	return &RuleMatcher{
		key:   KeyKilometrage,
		scope: CategoryVehicles,
		set: PatternSet{
			newRule(amount+multiplier+`\s*(?:ק"מ|קי"מ|קמ|קילומטרים|קילומטר|kms|km|kilometers|kilometres)`, true),
			newRule(`(?:קילומטראז'|קילומטראז|קילומטרז'|קילומטרז|mileage|odometer)\s*[:\-]?\s*`+amount+multiplier, true),
			newRule(`(?:ק"מ|km)\s*:\s*`+amount+multiplier, true),
		},
		accept: between(0, 2_000_000),
		unit:   fixedUnit("km"),
	}
}

// NewEngineVolumeMatcher finds engine displacement in cc.
func NewEngineVolumeMatcher() *RuleMatcher {
	return &RuleMatcher{
		key:   KeyEngineVolume,
		scope: CategoryVehicles,
		set: PatternSet{
			newRule(`(?P<num>\d{2,4})\s*(?:סמ"ק|סמק|סי"סי|סיסי|cc)`, true),
			newRule(`(?:נפח מנוע|נפח|engine)\s*[:\-]?\s*(?P<num>\d{3,4})`, true),
		},
		accept: between(50, 10_000),
		unit:   fixedUnit("cc"),
	}
}

// NewRoomsMatcher finds the room count of an apartment ("3.5 חדרים").
func NewRoomsMatcher() *RuleMatcher {
	return &RuleMatcher{
		key:   KeyRooms,
		scope: CategoryRealEstate,
		set: PatternSet{
			newRule(`(?P<num>\d{1,2}(?:\.5)?)\s*(?:חדרים|חדר|חד'|rooms|room)`, true),
			newRule(`(?:חדרים|rooms)\s*[:\-]\s*(?P<num>\d{1,2}(?:\.5)?)`, true),
		},
		accept: between(0.5, 20),
	}
}

// NewFloorMatcher finds the floor number; ground floor is 0.
func NewFloorMatcher() *RuleMatcher {
	return &RuleMatcher{
		key:   KeyFloor,
		scope: CategoryRealEstate,
		set: PatternSet{
			newRule(`(?:קומה|floor)\s*[:\-]?\s*(?P<num>\d{1,2})`, true),
			newRule(`(?P<num>\d{1,2})(?:st|nd|rd|th)\s*floor`, true),
			newRule(`(?P<word>קומת קרקע|ground floor)`, true),
		},
		words: map[string]float64{
			"קומת קרקע":    0,
			"ground floor": 0,
		},
		accept: between(0, 99),
	}
}

// NewSizeMatcher finds built area in square meters.
func NewSizeMatcher() *RuleMatcher {
	return &RuleMatcher{
		key:   KeySize,
		scope: CategoryRealEstate,
		set: PatternSet{
			newRule(`(?P<num>\d{2,4})\s*(?:מ"ר|מ'ר|מטרים רבועים|מטר רבוע|מטר|מר|sqm|m2)`, true),
			newRule(`(?:שטח|גודל|size)\s*[:\-]?\s*(?P<num>\d{2,4})`, true),
		},
		accept: between(10, 10_000),
		unit:   fixedUnit("sqm"),
	}
}

// NewStorageMatcher finds device storage capacity ("256gb", "1 טרה").
func NewStorageMatcher() *RuleMatcher {
	return &RuleMatcher{
		key:   KeyStorage,
		scope: CategoryElectronics,
		set: PatternSet{
			newRule(`(?P<num>\d{1,4})\s*(?P<unit>gb|tb|ג'יגה|גיגה|טרה)`, true),
		},
		accept: between(1, 100_000),
		unit: func(captured string) string {
			switch captured {
			case "tb", "טרה":
				return "tb"
			default:
				return "gb"
			}
		},
	}
}
