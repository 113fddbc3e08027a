// Package knowledge holds the optional knowledge base used to correct vehicle
// make/model spellings and map free-text phrases to category tags.
//
// A KnowledgeBase is plain data as loaded from a file, a database or a cache.
// Compile turns it into an Index with folded lookup keys; an Index is never
// mutated after construction and may be shared by any number of goroutines.
package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/normalize"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/patterns"
)

// DefaultMinSimilarity is the lowest similarity accepted as a correction.
const DefaultMinSimilarity = 0.75

// KnowledgeBase maps vehicle makes to their ordered model lists and free-text
// phrases to canonical category tags.
type KnowledgeBase struct {
	Version          string              `json:"version" yaml:"version"`
	MakeModelIndex   map[string][]string `json:"makeModelIndex" yaml:"make_model_index"`
	CategorySynonyms map[string]string   `json:"categorySynonyms" yaml:"category_synonyms"`
}

// Stats summarizes a knowledge base.
type Stats struct {
	Version  string `json:"version"`
	Makes    int    `json:"makes"`
	Models   int    `json:"models"`
	Synonyms int    `json:"synonyms"`
}

type entry struct {
	name string
	key  string
}

type makeEntry struct {
	entry
	models []entry
}

// Index is a compiled, read-only knowledge base.
type Index struct {
	version  string
	makes    []makeEntry
	byKey    map[string]int
	synonyms []patterns.Synonym
	phrases  map[string]string
	stats    Stats
}

// Compile folds every name once and returns the lookup index. A nil
// knowledge base compiles to a nil Index, which resolves nothing.
func Compile(kb *KnowledgeBase) *Index {
	if kb == nil {
		return nil
	}

	idx := &Index{
		version: kb.Version,
		byKey:   make(map[string]int, len(kb.MakeModelIndex)),
		phrases: make(map[string]string, len(kb.CategorySynonyms)),
	}
	if idx.version == "" {
		idx.version = kb.Fingerprint()
	}

	names := make([]string, 0, len(kb.MakeModelIndex))
	for name := range kb.MakeModelIndex {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := normalize.Fold(name)
		if key == "" {
			continue
		}
		if _, dup := idx.byKey[key]; dup {
			continue
		}
		mk := makeEntry{entry: entry{name: strings.TrimSpace(name), key: key}}
		seen := map[string]bool{}
		for _, model := range kb.MakeModelIndex[name] {
			mkey := normalize.Fold(model)
			if mkey == "" || seen[mkey] {
				continue
			}
			seen[mkey] = true
			mk.models = append(mk.models, entry{name: strings.TrimSpace(model), key: mkey})
		}
		idx.byKey[key] = len(idx.makes)
		idx.makes = append(idx.makes, mk)
		idx.stats.Models += len(mk.models)
	}

	phrases := make([]string, 0, len(kb.CategorySynonyms))
	for phrase := range kb.CategorySynonyms {
		phrases = append(phrases, phrase)
	}
	sort.Strings(phrases)
	aliases := DefaultCategoryAliases()
	for _, phrase := range phrases {
		tag := aliases.Canonical(kb.CategorySynonyms[phrase])
		key := normalize.Fold(phrase)
		if key == "" || tag == "" {
			continue
		}
		if _, dup := idx.phrases[key]; dup {
			continue
		}
		idx.phrases[key] = tag
		idx.synonyms = append(idx.synonyms, patterns.Synonym{
			Phrase:   normalize.Lower(normalize.Text(phrase)),
			Category: patterns.Category(tag),
		})
	}

	// Longer phrases vote first so "מכונת כביסה" is tried before "מכונה".
	sort.SliceStable(idx.synonyms, func(i, j int) bool {
		return utf8.RuneCountInString(idx.synonyms[i].Phrase) > utf8.RuneCountInString(idx.synonyms[j].Phrase)
	})

	idx.stats.Version = idx.version
	idx.stats.Makes = len(idx.makes)
	idx.stats.Synonyms = len(idx.phrases)
	return idx
}

// Fingerprint is a content hash used as the version of a knowledge base that
// does not declare one.
func (kb *KnowledgeBase) Fingerprint() string {
	// encoding/json writes map keys sorted, so equal content hashes equally.
	data, err := json.Marshal(struct {
		M map[string][]string `json:"m"`
		S map[string]string   `json:"s"`
	}{kb.MakeModelIndex, kb.CategorySynonyms})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return "sha256-" + hex.EncodeToString(sum[:6])
}

// Version returns the knowledge-base version, empty for a nil Index.
func (x *Index) Version() string {
	if x == nil {
		return ""
	}
	return x.version
}

// Stats returns counts for the compiled knowledge base.
func (x *Index) Stats() Stats {
	if x == nil {
		return Stats{}
	}
	return x.stats
}

// Synonyms returns the category synonyms with normalized phrases and
// canonical tags, longest phrase first.
func (x *Index) Synonyms() []patterns.Synonym {
	if x == nil {
		return nil
	}
	return x.synonyms
}

// Makes returns the canonical make names in sorted order.
func (x *Index) Makes() []string {
	if x == nil {
		return nil
	}
	out := make([]string, 0, len(x.makes))
	for _, mk := range x.makes {
		out = append(out, mk.name)
	}
	return out
}

// Models returns the canonical model names of make, in knowledge-base order.
func (x *Index) Models(makeName string) []string {
	if x == nil {
		return nil
	}
	i, ok := x.byKey[normalize.Fold(makeName)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(x.makes[i].models))
	for _, md := range x.makes[i].models {
		out = append(out, md.name)
	}
	return out
}
