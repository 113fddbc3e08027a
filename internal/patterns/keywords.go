package patterns

import "strings"

// KeywordValue maps a set of keywords to one canonical value.
type KeywordValue struct {
	Value    string
	Keywords []string
}

// KeywordMatcher tags a listing with a canonical value when any keyword of
// that value occurs in the text.
type KeywordMatcher struct {
	key       Key
	scope     Category
	values    []KeywordValue
	negatable bool
}

// Key implements Matcher.
func (m *KeywordMatcher) Key() Key { return m.key }

// Scope implements Matcher.
func (m *KeywordMatcher) Scope() Category { return m.scope }

// Find implements Matcher.
func (m *KeywordMatcher) Find(text string) []Match {
	var out []Match
	for _, v := range m.values {
		for _, kw := range v.Keywords {
			for _, span := range FindKeyword(text, kw) {
				value := v.Value
				if m.negatable && negated(text, span[0]) {
					value = "no"
				}
				out = append(out, Match{
					Key:     m.key,
					Value:   value,
					Start:   span[0],
					End:     span[1],
					Context: true,
				})
			}
		}
	}
	return out
}

var negations = []string{"ללא ", "אין ", "בלי ", "no ", "without "}

func negated(text string, start int) bool {
	head := text[:start]
	for _, n := range negations {
		if strings.HasSuffix(head, n) {
			return leftBoundary(text, start-len(n))
		}
	}
	return false
}

// NewGearboxMatcher tags the transmission type.
func NewGearboxMatcher() *KeywordMatcher {
	return &KeywordMatcher{
		key:   KeyGearbox,
		scope: CategoryVehicles,
		values: []KeywordValue{
			{Value: "automatic", Keywords: []string{"גיר אוטומטי", "אוטומטית", "אוטומטי", "אוטומט", "automatic"}},
			{Value: "manual", Keywords: []string{"גיר ידני", "ידנית", "ידני", "manual"}},
		},
	}
}

// NewFuelMatcher tags the fuel type.
func NewFuelMatcher() *KeywordMatcher {
	return &KeywordMatcher{
		key:   KeyFuel,
		scope: CategoryVehicles,
		values: []KeywordValue{
			{Value: "plug_in_hybrid", Keywords: []string{"פלאג אין", "פלאג-אין", "plug-in", "plug in"}},
			{Value: "hybrid", Keywords: []string{"היברידית", "היברידי", "היבריד", "hybrid"}},
			{Value: "electric", Keywords: []string{"חשמלית", "חשמלי", "electric"}},
			{Value: "diesel", Keywords: []string{"טורבו דיזל", "דיזל", "diesel"}},
			{Value: "petrol", Keywords: []string{"בנזין", "petrol", "gasoline"}},
		},
	}
}

// NewAmenityMatcher tags a real-estate amenity as "yes", or "no" when the
// keyword follows a negation such as "ללא".
func NewAmenityMatcher(key Key, keywords ...string) *KeywordMatcher {
	return &KeywordMatcher{
		key:       key,
		scope:     CategoryRealEstate,
		values:    []KeywordValue{{Value: "yes", Keywords: keywords}},
		negatable: true,
	}
}

// CategoryKeywords lists the keywords voting for one category.
type CategoryKeywords struct {
	Category Category
	Keywords []string
}

// Synonym is an extra phrase voting for a category, typically supplied by a
// knowledge base. Phrase must already be normalized.
type Synonym struct {
	Phrase   string
	Category Category
}

// CategoryScore is the number of keyword hits for one category.
type CategoryScore struct {
	Category Category
	Hits     int
}

// CategoryScorer scores canonical categories by keyword hit count.
type CategoryScorer struct {
	tables   []CategoryKeywords
	vehicles *VehicleCatalog
}

// NewCategoryScorer builds a scorer. Table order breaks ties. Mentions of a
// known vehicle make or model count as vehicle hits.
func NewCategoryScorer(tables []CategoryKeywords, vehicles *VehicleCatalog) *CategoryScorer {
	return &CategoryScorer{tables: tables, vehicles: vehicles}
}

// Scores returns hits per category in tie-break order. Categories that only
// appear in extra are appended after the built-in ones.
func (s *CategoryScorer) Scores(text string, extra []Synonym) []CategoryScore {
	scores := make([]CategoryScore, 0, len(s.tables))
	index := make(map[Category]int, len(s.tables))
	add := func(c Category, hits int) {
		i, ok := index[c]
		if !ok {
			i = len(scores)
			index[c] = i
			scores = append(scores, CategoryScore{Category: c})
		}
		scores[i].Hits += hits
	}

	for _, t := range s.tables {
		hits := 0
		for _, kw := range t.Keywords {
			hits += len(FindKeyword(text, kw))
		}
		add(t.Category, hits)
	}
	if s.vehicles != nil {
		add(CategoryVehicles, s.vehicles.Mentions(text))
	}
	for _, syn := range extra {
		if syn.Phrase == "" || syn.Category == "" {
			continue
		}
		add(syn.Category, len(FindKeyword(text, syn.Phrase)))
	}
	return scores
}

// Best returns the highest-scoring category, or CategoryGeneral when nothing
// scored.
func (s *CategoryScorer) Best(text string, extra []Synonym) CategoryScore {
	best := CategoryScore{Category: CategoryGeneral}
	for _, sc := range s.Scores(text, extra) {
		if sc.Hits > best.Hits {
			best = sc
		}
	}
	return best
}

// ConditionKeyword is one weighted condition phrase.
type ConditionKeyword struct {
	Condition Condition
	Weight    float64
	Phrase    string
}

// ConditionMatcher picks the item condition from weighted phrases.
type ConditionMatcher struct {
	keywords []ConditionKeyword
}

// NewConditionMatcher builds a matcher over the given phrase table.
func NewConditionMatcher(keywords []ConditionKeyword) *ConditionMatcher {
	return &ConditionMatcher{keywords: keywords}
}

// Find returns the non-overlapping condition phrases in text order. Longer,
// heavier phrases such as "כמו חדש" shadow the "חדש" inside them.
func (m *ConditionMatcher) Find(text string) []Match {
	var hits []Match
	for _, kw := range m.keywords {
		for _, span := range FindKeyword(text, kw.Phrase) {
			hits = append(hits, Match{
				Key:    "condition",
				Value:  string(kw.Condition),
				Start:  span[0],
				End:    span[1],
				Weight: kw.Weight,
			})
		}
	}
	return Resolve(hits, Weights{})
}

// Best returns the heaviest condition found, earliest on ties. Phrases with
// an empty condition only shadow shorter phrases and never win.
func (m *ConditionMatcher) Best(text string) (Condition, float64, bool) {
	var (
		best  Match
		found bool
	)
	for _, h := range m.Find(text) {
		if h.Value == "" {
			continue
		}
		if !found || h.Weight > best.Weight {
			best = h
			found = true
		}
	}
	if !found {
		return "", 0, false
	}
	return Condition(best.Value), best.Weight, true
}
