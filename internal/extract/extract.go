// Package extract applies the pattern library to a normalized listing and
// produces scalar fields plus a flat list of attribute candidates.
package extract

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/normalize"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/patterns"
)

// MaxHighlights bounds the number of highlights kept per listing.
const MaxHighlights = 12

// Candidate is one detected fact.
type Candidate struct {
	Key   patterns.Key `json:"key"`
	Value string       `json:"value"`
	Unit  string       `json:"unit,omitempty"`
}

// VehicleSource tells where a make or model guess came from.
type VehicleSource string

const (
	// SourceCatalog means the value is a canonical name from the built-in table.
	SourceCatalog VehicleSource = "catalog"
	// SourceText means the value is raw listing text.
	SourceText VehicleSource = "text"
)

// Scalars are the promoted single-valued fields. Nil pointers and empty
// strings mean "not found".
type Scalars struct {
	Title        string
	Price        *float64
	Category     patterns.Category
	CategoryHits int
	Condition    patterns.Condition
	Make         string
	MakeSource   VehicleSource
	Model        string
	ModelSource  VehicleSource
	Year         *int
	Hand         *int
	Kilometrage  *int
	Phones       []string
	Highlights   []string
}

// Extraction is the output of one Extract call.
type Extraction struct {
	Scalars    Scalars
	Candidates []Candidate
	// Tokens are the folded words of the text, for knowledge-base scans.
	Tokens []string
	// Misses names matchers that failed and were skipped.
	Misses []string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used for soft misses.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// Extractor runs a pattern library over normalized documents. It holds no
// mutable state and is safe for concurrent use.
type Extractor struct {
	lib    *patterns.Library
	logger zerolog.Logger
}

// New creates an Extractor over lib.
func New(lib *patterns.Library, opts ...Option) *Extractor {
	e := &Extractor{
		lib:    lib,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Library returns the pattern library in use.
func (e *Extractor) Library() *patterns.Library {
	return e.lib
}

// Extract pulls facts out of doc. Extra category synonyms, typically from a
// knowledge base, vote alongside the built-in keywords. Extract never fails:
// a matcher that panics is logged and skipped.
func (e *Extractor) Extract(doc normalize.Document, synonyms []patterns.Synonym) Extraction {
	out := Extraction{Candidates: []Candidate{}}
	if doc.Empty() {
		return out
	}
	text := doc.Text
	out.Tokens = strings.Fields(normalize.Fold(text))

	score := guard(e, &out, "category", patterns.CategoryScore{Category: patterns.CategoryGeneral}, func() patterns.CategoryScore {
		return e.lib.Categories.Best(text, synonyms)
	})
	out.Scalars.Category = score.Category
	out.Scalars.CategoryHits = score.Hits

	var exclusive, tags []patterns.Match
	for _, entry := range e.lib.Active(score.Category) {
		m := entry.Matcher
		found := guard(e, &out, string(m.Key()), []patterns.Match(nil), func() []patterns.Match {
			return m.Find(text)
		})
		if entry.Exclusive {
			exclusive = append(exclusive, found...)
		} else {
			tags = append(tags, found...)
		}
	}
	resolved := patterns.Resolve(exclusive, e.lib.Weights)

	e.promote(&out, resolved)
	out.Candidates = append(out.Candidates, toCandidates(resolved)...)
	out.Candidates = append(out.Candidates, firstPerKey(tags)...)

	out.Scalars.Title = guard(e, &out, "title", "", func() string {
		return Title(doc.Lines)
	})
	out.Scalars.Highlights = guard(e, &out, string(patterns.KeyHighlights), []string(nil), func() []string {
		return e.highlights(doc)
	})
	for _, h := range out.Scalars.Highlights {
		out.Candidates = append(out.Candidates, Candidate{Key: patterns.KeyHighlights, Value: h})
	}

	if score.Category == patterns.CategoryVehicles {
		guess := guard(e, &out, "vehicle", vehicleGuess{}, func() vehicleGuess {
			return guessVehicle(e.lib.Vehicles, doc, claims(resolved))
		})
		out.Scalars.Make, out.Scalars.MakeSource = guess.make, guess.makeSource
		out.Scalars.Model, out.Scalars.ModelSource = guess.model, guess.modelSource
		if guess.make != "" {
			out.Candidates = append(out.Candidates, Candidate{Key: patterns.KeyMake, Value: guess.make})
		}
		if guess.model != "" {
			out.Candidates = append(out.Candidates, Candidate{Key: patterns.KeyModel, Value: guess.model})
		}
	}

	out.Scalars.Condition = guard(e, &out, "condition", patterns.Condition(""), func() patterns.Condition {
		return e.condition(text, out.Scalars)
	})
	return out
}

// guard runs fn and turns a panic into a logged soft miss returning zero.
func guard[T any](e *Extractor, out *Extraction, name string, zero T, fn func() T) (result T) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug().
				Str("matcher", name).
				Interface("panic", r).
				Msg("Matcher failed, treating as no match")
			out.Misses = append(out.Misses, name)
			result = zero
		}
	}()
	return fn()
}

// promote fills the scalar fields from resolved matches. For single-valued
// slots the heaviest match wins, earliest on ties.
func (e *Extractor) promote(out *Extraction, resolved []patterns.Match) {
	best := map[patterns.Key]patterns.Match{}
	seenPhone := map[string]bool{}
	for _, m := range resolved {
		if m.Key == patterns.KeyPhone {
			if !seenPhone[m.Value] {
				seenPhone[m.Value] = true
				out.Scalars.Phones = append(out.Scalars.Phones, m.Value)
			}
			continue
		}
		cur, ok := best[m.Key]
		if !ok || e.lib.Weights.Of(m) > e.lib.Weights.Of(cur) {
			best[m.Key] = m
		}
	}

	if m, ok := best[patterns.KeyPrice]; ok {
		if v, err := strconv.ParseFloat(m.Value, 64); err == nil {
			out.Scalars.Price = &v
		}
	}
	out.Scalars.Year = intOf(best, patterns.KeyYear)
	out.Scalars.Hand = intOf(best, patterns.KeyHand)
	out.Scalars.Kilometrage = intOf(best, patterns.KeyKilometrage)
}

func intOf(best map[patterns.Key]patterns.Match, key patterns.Key) *int {
	m, ok := best[key]
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(m.Value)
	if err != nil {
		return nil
	}
	return &v
}

// claims returns the spans taken by resolved numeric matches, so a model
// name that is only digits inside "יד 3" or "308 אלף קמ" is not read as a
// vehicle.
func claims(resolved []patterns.Match) patterns.Claims {
	out := make(patterns.Claims, 0, len(resolved))
	for _, m := range resolved {
		if m.End > m.Start {
			out = append(out, [2]int{m.Start, m.End})
		}
	}
	return out
}

func toCandidates(matches []patterns.Match) []Candidate {
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, Candidate{Key: m.Key, Value: m.Value, Unit: m.Unit})
	}
	return out
}

// firstPerKey keeps the earliest tag per key.
func firstPerKey(tags []patterns.Match) []Candidate {
	tags = patterns.Resolve(tags, patterns.Weights{})
	seen := map[patterns.Key]bool{}
	var out []Candidate
	for _, m := range tags {
		if seen[m.Key] {
			continue
		}
		seen[m.Key] = true
		out = append(out, Candidate{Key: m.Key, Value: m.Value, Unit: m.Unit})
	}
	return out
}

// highlights runs the highlight matcher line by line and returns the phrases
// in their original letter case.
func (e *Extractor) highlights(doc normalize.Document) []string {
	var out []string
	seen := map[string]bool{}
	for _, span := range doc.LineSpans() {
		for _, h := range e.lib.Highlights.Find(doc.Text[span[0]:span[1]]) {
			key := normalize.Fold(h.Value)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, doc.Clean[span[0]+h.Start:span[0]+h.End])
			if len(out) == MaxHighlights {
				return out
			}
		}
	}
	return out
}

// condition picks the condition tag. A plain "new" in a vehicle ad that also
// reports an owner count or real mileage refers to a part ("טסט חדש"), not
// the vehicle.
func (e *Extractor) condition(text string, s Scalars) patterns.Condition {
	cond, weight, ok := e.lib.Conditions.Best(text)
	if !ok {
		return ""
	}
	if cond == patterns.ConditionNew && weight < 3 && s.Category == patterns.CategoryVehicles {
		if (s.Hand != nil && *s.Hand >= 1) || (s.Kilometrage != nil && *s.Kilometrage > 1000) {
			return patterns.ConditionUsed
		}
	}
	return cond
}
