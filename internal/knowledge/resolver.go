package knowledge

import (
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/normalize"
)

// Similarity tiers.
const (
	scoreExact     = 1.0
	scoreSubstring = 0.9
	minSubstring   = 3
	maxNGram       = 3
)

// Resolution is the outcome of ResolveVehicle. Resolved flags tell whether
// a value is a knowledge-base name or passed through from the text.
type Resolution struct {
	Make          string  `json:"make,omitempty"`
	Model         string  `json:"model,omitempty"`
	MakeResolved  bool    `json:"makeResolved"`
	ModelResolved bool    `json:"modelResolved"`
	MakeScore     float64 `json:"makeScore,omitempty"`
	ModelScore    float64 `json:"modelScore,omitempty"`
}

// Resolver corrects free-text vehicle names and category tags against an
// Index. A Resolver over a nil Index passes every candidate through.
type Resolver struct {
	index         *Index
	minSimilarity float64
	aliases       *CategoryAliases
}

// NewResolver creates a resolver. A non-positive minSimilarity selects
// DefaultMinSimilarity.
func NewResolver(index *Index, minSimilarity float64) *Resolver {
	if minSimilarity <= 0 || minSimilarity > 1 {
		minSimilarity = DefaultMinSimilarity
	}
	return &Resolver{index: index, minSimilarity: minSimilarity}
}

// WithAliases sets the category alias table consulted after the index. The
// built-in table is used when none is set.
func (r *Resolver) WithAliases(a *CategoryAliases) *Resolver {
	r.aliases = a
	return r
}

func (r *Resolver) aliasTable() *CategoryAliases {
	if r == nil || r.aliases == nil {
		return DefaultCategoryAliases()
	}
	return r.aliases
}

// Index returns the index the resolver reads.
func (r *Resolver) Index() *Index {
	return r.index
}

// similarity scores how well candidate matches key, both folded.
func similarity(candidate, key string) float64 {
	if candidate == "" || key == "" {
		return 0
	}
	if candidate == key {
		return scoreExact
	}
	short, long := candidate, key
	if utf8.RuneCountInString(short) > utf8.RuneCountInString(long) {
		short, long = long, short
	}
	if utf8.RuneCountInString(short) >= minSubstring && strings.Contains(long, short) {
		return scoreSubstring
	}
	d := fuzzy.LevenshteinDistance(candidate, key)
	n := utf8.RuneCountInString(long)
	return 1 - float64(d)/float64(n)
}

// best returns the position of the entry scoring highest against candidate,
// first on ties, or -1 when nothing reaches min.
func best(candidate string, entries []entry, min float64) (int, float64) {
	pos, top := -1, 0.0
	for i, e := range entries {
		if s := similarity(candidate, e.key); s >= min && s > top {
			pos, top = i, s
			if s == scoreExact {
				break
			}
		}
	}
	return pos, top
}

func (x *Index) makeEntries() []entry {
	out := make([]entry, len(x.makes))
	for i, mk := range x.makes {
		out[i] = mk.entry
	}
	return out
}

// ResolveVehicle corrects the make and model guesses. Without a make guess
// the folded listing tokens are scanned for an exact make name; with a
// resolved make and no model guess they are scanned for one of its models.
// Anything that does not clear the similarity threshold passes through
// unchanged.
func (r *Resolver) ResolveVehicle(makeText, modelText string, tokens []string) Resolution {
	res := Resolution{Make: makeText, Model: modelText}
	if r == nil || r.index == nil || len(r.index.makes) == 0 {
		return res
	}
	x := r.index

	mi := -1
	if key := normalize.Fold(makeText); key != "" {
		var score float64
		mi, score = best(key, x.makeEntries(), r.minSimilarity)
		if mi >= 0 {
			res.Make, res.MakeResolved, res.MakeScore = x.makes[mi].name, true, score
		}
	} else if i, ok := scanTokens(tokens, x.byKey); ok {
		mi = i
		res.Make, res.MakeResolved, res.MakeScore = x.makes[mi].name, true, scoreExact
	}

	if mi >= 0 {
		mk := x.makes[mi]
		if key := normalize.Fold(modelText); key != "" {
			if j, score := best(key, mk.models, r.minSimilarity); j >= 0 {
				res.Model, res.ModelResolved, res.ModelScore = mk.models[j].name, true, score
			}
		} else if j, ok := scanTokens(tokens, modelKeys(mk.models)); ok {
			res.Model, res.ModelResolved, res.ModelScore = mk.models[j].name, true, scoreExact
		}
		return res
	}

	// Unknown make: a known model still identifies its make when the text
	// named none.
	key := normalize.Fold(modelText)
	if key == "" {
		return res
	}
	top := 0.0
	for i, mk := range x.makes {
		if j, score := best(key, mk.models, r.minSimilarity); j >= 0 && score > top {
			top = score
			res.Model, res.ModelResolved, res.ModelScore = mk.models[j].name, true, score
			if makeText == "" {
				res.Make, res.MakeResolved, res.MakeScore = x.makes[i].name, true, score
			}
		}
	}
	return res
}

func modelKeys(models []entry) map[string]int {
	keys := make(map[string]int, len(models))
	for i, md := range models {
		if _, dup := keys[md.key]; !dup {
			keys[md.key] = i
		}
	}
	return keys
}

// scanTokens returns the first token n-gram, in text order, that is an exact
// key. Longer n-grams win at the same position.
func scanTokens(tokens []string, keys map[string]int) (int, bool) {
	for i := range tokens {
		for n := maxNGram; n >= 1; n-- {
			if i+n > len(tokens) {
				continue
			}
			if pos, ok := keys[strings.Join(tokens[i:i+n], " ")]; ok {
				return pos, true
			}
		}
	}
	return 0, false
}

// ResolveCategory maps a category candidate to a canonical tag: knowledge-base
// synonyms first (exact phrase, then contained phrase), then the built-in
// alias table. An unmatched candidate is returned unchanged.
func (r *Resolver) ResolveCategory(candidate string) string {
	key := normalize.Fold(candidate)
	if key == "" {
		return candidate
	}
	if r != nil && r.index != nil {
		if tag, ok := r.index.phrases[key]; ok {
			return tag
		}
		padded := " " + key + " "
		for _, syn := range r.index.synonyms {
			phrase := normalize.Fold(syn.Phrase)
			if phrase != "" && strings.Contains(padded, " "+phrase+" ") {
				return string(syn.Category)
			}
		}
	}
	if tag, ok := r.aliasTable().Lookup(key); ok {
		return tag
	}
	return candidate
}
