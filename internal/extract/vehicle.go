package extract

import (
	"sort"
	"strings"
	"unicode"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/normalize"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/patterns"
)

type vehicleGuess struct {
	make        string
	makeSource  VehicleSource
	model       string
	modelSource VehicleSource
}

// makeCues precede a make name: vehicle nouns and make labels.
func makeCues() []string {
	return []string{"רכב", "מכונית", "יצרן", "תוצרת", "car", "make", "manufacturer"}
}

// modelCues precede a model name.
func modelCues() []string {
	return []string{"דגם", "model"}
}

// isFiller reports whether a folded word may sit between a cue and the make
// without being the make.
func isFiller(word string) bool {
	switch word {
	case "למכירה", "מכירה", "מוכר", "מוכרת", "במצב", "מצב",
		"מעולה", "מצוין", "מצויין", "שמור", "שמורה", "משפחתי",
		"משפחתית", "פרטי", "פרטית", "מיידית", "דחוף", "של",
		"עם", "חדש", "חדשה", "יפה", "מהמם", "מהממת",
		"for", "sale", "the", "a", "my", "nice", "great":
		return true
	}
	return false
}

// isStop reports whether a folded word ends a make or model guess.
func isStop(word string) bool {
	switch word {
	case "שנת", "שנה", "משנת", "יד", "מודל", "דגם", "מחיר",
		"year", "model", "hand", "price", "km", "קמ":
		return true
	}
	return false
}

type token struct {
	raw   string
	lower string
}

// guessVehicle finds make and model. Known names come from the catalog;
// otherwise the words after a cue such as "רכב" are taken as raw text.
// Catalog model mentions inside claimed numeric spans are ignored.
func guessVehicle(cat *patterns.VehicleCatalog, doc normalize.Document, claimed patterns.Claims) vehicleGuess {
	text := doc.Text

	if hit, ok := cat.FindMake(text); ok {
		g := vehicleGuess{make: hit.Make, makeSource: SourceCatalog}
		if md, ok := cat.FindModel(text, hit.Make, claimed); ok {
			g.model, g.modelSource = md.Model, SourceCatalog
		} else if toks := tokensAfterCue(doc, modelCues(), 1); len(toks) > 0 {
			g.model, g.modelSource = toks[0].raw, SourceText
		} else if toks := tokensFrom(doc, hit.End, 1); len(toks) > 0 {
			g.model, g.modelSource = toks[0].raw, SourceText
		}
		return g
	}

	if toks := tokensAfterCue(doc, makeCues(), 2); len(toks) > 0 {
		if md, ok := cat.FindAnyModel(toks[0].lower, nil); ok {
			return vehicleGuess{make: md.Make, makeSource: SourceCatalog, model: md.Model, modelSource: SourceCatalog}
		}
		g := vehicleGuess{make: toks[0].raw, makeSource: SourceText}
		if len(toks) > 1 {
			if md, ok := cat.FindAnyModel(toks[1].lower, nil); ok {
				g.model, g.modelSource = md.Model, SourceCatalog
			} else {
				g.model, g.modelSource = toks[1].raw, SourceText
			}
		}
		return g
	}

	if md, ok := cat.FindAnyModel(text, claimed); ok {
		return vehicleGuess{make: md.Make, makeSource: SourceCatalog, model: md.Model, modelSource: SourceCatalog}
	}
	return vehicleGuess{}
}

// tokensAfterCue returns up to n name tokens following the earliest cue
// that is followed by any.
func tokensAfterCue(doc normalize.Document, cues []string, n int) []token {
	var ends []int
	for _, cue := range cues {
		for _, span := range patterns.FindKeyword(doc.Text, cue) {
			ends = append(ends, span[1])
		}
	}
	sort.Ints(ends)
	for _, end := range ends {
		if toks := tokensFrom(doc, end, n); len(toks) > 0 {
			return toks
		}
	}
	return nil
}

// tokensFrom reads up to n name tokens from byte offset start of doc.Clean,
// skipping filler words and stopping at a clause boundary, a number or a
// stop word.
func tokensFrom(doc normalize.Document, start, n int) []token {
	if start >= len(doc.Clean) {
		return nil
	}
	var out []token
	skipped := 0
	for _, field := range strings.Fields(doc.Clean[start:]) {
		raw := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		last := strings.ContainsAny(field[len(field)-1:], ",.;!?")
		if raw == "" {
			if last {
				break
			}
			continue
		}
		folded := normalize.Fold(raw)
		if isStop(folded) || strings.IndexFunc(raw, unicode.IsLetter) < 0 {
			break
		}
		if len(out) == 0 && isFiller(folded) && skipped < 3 {
			skipped++
			if last {
				break
			}
			continue
		}
		out = append(out, token{raw: raw, lower: normalize.Lower(raw)})
		if len(out) == n || last {
			break
		}
	}
	return out
}
