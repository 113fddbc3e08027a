package knowledge

import (
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/normalize"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/patterns"
)

// CategoryAliases maps folded English and Hebrew category names to canonical
// tags.
type CategoryAliases struct {
	byKey map[string]string
	// keys are longest first, for partial matching.
	keys []string
}

// DefaultCategoryAliases returns a fresh copy of the built-in alias table.
func DefaultCategoryAliases() *CategoryAliases {
	byKey := builtinCategoryAliases()
	return &CategoryAliases{byKey: byKey, keys: sortedAliasKeys(byKey)}
}

func builtinCategoryAliases() map[string]string {
	vehicles := string(patterns.CategoryVehicles)
	realEstate := string(patterns.CategoryRealEstate)
	electronics := string(patterns.CategoryElectronics)
	general := string(patterns.CategoryGeneral)

	raw := map[string]string{
		"vehicles":       vehicles,
		"vehicle":        vehicles,
		"cars":           vehicles,
		"car":            vehicles,
		"automotive":     vehicles,
		"motorcycles":    vehicles,
		"רכב":            vehicles,
		"רכבים":          vehicles,
		"כלי רכב":        vehicles,
		"מכוניות":        vehicles,
		"אופנועים":       vehicles,
		"real estate":    realEstate,
		"realestate":     realEstate,
		"property":       realEstate,
		"apartments":     realEstate,
		"housing":        realEstate,
		"נדל\"ן":         realEstate,
		"נדלן":           realEstate,
		"דירות":          realEstate,
		"דירות למכירה":   realEstate,
		"דירות להשכרה":   realEstate,
		"electronics":    electronics,
		"gadgets":        electronics,
		"computers":      electronics,
		"phones":         electronics,
		"אלקטרוניקה":     electronics,
		"מחשבים":         electronics,
		"סלולר":          electronics,
		"general":        general,
		"other":          general,
		"misc":           general,
		"miscellaneous":  general,
		"unclassified":   general,
		"כללי":           general,
		"שונות":          general,
		"אחר":            general,
		"furniture":      "Furniture",
		"רהיטים":         "Furniture",
		"ריהוט":          "Furniture",
		"fashion":        "Fashion",
		"clothing":       "Fashion",
		"ביגוד":          "Fashion",
		"אופנה":          "Fashion",
		"baby":           "Baby",
		"מוצרי תינוקות":  "Baby",
		"לתינוק":         "Baby",
		"sports":         "Sports",
		"ספורט":          "Sports",
		"appliances":     "Appliances",
		"מוצרי חשמל":     "Appliances",
		"pets":           "Pets",
		"בעלי חיים":      "Pets",
		"garden":         "Garden",
		"גינה":           "Garden",
	}

	aliases := make(map[string]string, len(raw))
	for alias, tag := range raw {
		aliases[normalize.Fold(alias)] = tag
	}
	return aliases
}

func sortedAliasKeys(aliases map[string]string) []string {
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(keys[i]), utf8.RuneCountInString(keys[j])
		if li != lj {
			return li > lj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Lookup maps a folded category name to its canonical tag: direct alias
// first, then the longest alias contained as whole words.
func (a *CategoryAliases) Lookup(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	if tag, ok := a.byKey[key]; ok {
		return tag, true
	}
	padded := " " + key + " "
	for _, alias := range a.keys {
		if strings.Contains(padded, " "+alias+" ") {
			return a.byKey[alias], true
		}
	}
	return "", false
}

// Canonical maps a category name to its canonical tag. Unknown names are
// trimmed and title-cased so "pets " and "Pets" share a tag.
func (a *CategoryAliases) Canonical(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if tag, ok := a.Lookup(normalize.Fold(name)); ok {
		return tag
	}
	return cases.Title(language.English, cases.NoLower).String(name)
}

// CanonicalCategory is Canonical over the built-in aliases.
func CanonicalCategory(name string) string {
	return DefaultCategoryAliases().Canonical(name)
}
