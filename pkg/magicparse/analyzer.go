// Package magicparse turns free-text classified ads, mostly Hebrew, into a
// structured listing draft: title, price, category, condition, vehicle
// details, contact phone, highlights and a list of fields still missing.
//
// Analysis is a pure, synchronous computation. It never returns an error and
// never panics; whatever cannot be recognized is simply left empty.
//
//	result := magicparse.AnalyzeListingText("רכב טויוטה קורולה שנת 2018 יד 2, 050-1234567")
package magicparse

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/advisor"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/extract"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/knowledge"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/normalize"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/patterns"
)

// KnowledgeBase is the optional make/model index and category synonym table.
type KnowledgeBase = knowledge.KnowledgeBase

// KnowledgeIndex is a compiled KnowledgeBase.
type KnowledgeIndex = knowledge.Index

// Weights are the tie-break weights between competing matchers.
type Weights = patterns.Weights

// Rules are the completeness checklists and price bands.
type Rules = advisor.Rules

type settings struct {
	index         *knowledge.Index
	logger        zerolog.Logger
	clock         func() time.Time
	weights       *patterns.Weights
	minSimilarity float64
	vocabulary    *Vocabulary
	rules         *advisor.Rules
	maxInputRunes int
}

// Option configures an Analyzer.
type Option func(*settings)

// WithKnowledgeBase enables knowledge-base corrections. The knowledge base is
// compiled once and must not be modified afterwards.
func WithKnowledgeBase(kb *KnowledgeBase) Option {
	return func(s *settings) {
		s.index = knowledge.Compile(kb)
	}
}

// WithKnowledgeIndex uses an already compiled knowledge base.
func WithKnowledgeIndex(idx *KnowledgeIndex) Option {
	return func(s *settings) {
		s.index = idx
	}
}

// WithLogger sets the logger for soft misses and per-call debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithClock sets the clock that bounds plausible model years.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.clock = now
	}
}

// WithWeights overrides tie-break weights; unset fields keep their defaults.
func WithWeights(w Weights) Option {
	return func(s *settings) {
		s.weights = &w
	}
}

// WithMinSimilarity sets the lowest similarity, in (0, 1], accepted as a
// knowledge-base correction.
func WithMinSimilarity(min float64) Option {
	return func(s *settings) {
		s.minSimilarity = min
	}
}

// WithVocabulary sets the display labels.
func WithVocabulary(v Vocabulary) Option {
	return func(s *settings) {
		s.vocabulary = &v
	}
}

// WithRules overrides checklists and price bands on top of the defaults.
func WithRules(r Rules) Option {
	return func(s *settings) {
		s.rules = &r
	}
}

// WithMaxInputRunes bounds how many runes of a listing are examined. Zero or
// less keeps the default.
func WithMaxInputRunes(n int) Option {
	return func(s *settings) {
		s.maxInputRunes = n
	}
}

// Analyzer extracts listings. It is immutable after New and safe for
// concurrent use.
type Analyzer struct {
	extractor     *extract.Extractor
	advisor       *advisor.Advisor
	index         *knowledge.Index
	minSimilarity float64
	vocabulary    Vocabulary
	maxInputRunes int
	aliases       *knowledge.CategoryAliases
	logger        zerolog.Logger
}

// New builds an Analyzer.
func New(opts ...Option) *Analyzer {
	s := settings{
		logger:        zerolog.Nop(),
		clock:         time.Now,
		minSimilarity: knowledge.DefaultMinSimilarity,
	}
	for _, opt := range opts {
		opt(&s)
	}

	weights := patterns.DefaultWeights()
	if s.weights != nil {
		weights = weights.Merge(*s.weights)
	}
	rules := advisor.DefaultRules()
	if s.rules != nil {
		rules = rules.Merge(*s.rules)
	}
	vocab := DefaultVocabulary()
	if s.vocabulary != nil {
		vocab = *s.vocabulary
	}

	lib := patterns.DefaultLibrary(patterns.WithClock(s.clock), patterns.WithWeights(weights))
	return &Analyzer{
		extractor:     extract.New(lib, extract.WithLogger(s.logger)),
		advisor:       advisor.New(rules),
		index:         s.index,
		minSimilarity: s.minSimilarity,
		vocabulary:    vocab,
		maxInputRunes: s.maxInputRunes,
		aliases:       knowledge.DefaultCategoryAliases(),
		logger:        s.logger,
	}
}

// KnowledgeVersion returns the version of the analyzer's own knowledge base.
func (a *Analyzer) KnowledgeVersion() string {
	return a.index.Version()
}

// KnowledgeIndex returns the analyzer's own compiled knowledge base, if any.
func (a *Analyzer) KnowledgeIndex() *KnowledgeIndex {
	return a.index
}

// Analyze extracts a listing using the analyzer's knowledge base, if any.
func (a *Analyzer) Analyze(text string) ExtractionResult {
	return a.AnalyzeWithKnowledge(text, a.index)
}

// AnalyzeWithKnowledge extracts a listing against the given knowledge-base
// snapshot, overriding the analyzer's own. A nil snapshot disables
// corrections for this call.
func (a *Analyzer) AnalyzeWithKnowledge(text string, idx *KnowledgeIndex) (result ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().
				Str("panic", fmt.Sprint(r)).
				Int("text_len", len(text)).
				Msg("Listing analysis failed, returning empty draft")
			result = emptyResult(a.vocabulary)
			result.MissingFields = append(result.MissingFields, a.advisor.Rules().Common...)
		}
	}()
	return a.analyze(text, idx)
}

func (a *Analyzer) analyze(text string, idx *knowledge.Index) ExtractionResult {
	start := time.Now()
	doc := normalize.ParseLimit(text, a.maxInputRunes)
	ex := a.extractor.Extract(doc, idx.Synonyms())
	s := ex.Scalars
	resolver := knowledge.NewResolver(idx, a.minSimilarity).WithAliases(a.aliases)

	result := emptyResult(a.vocabulary)
	result.KnowledgeVersion = idx.Version()
	result.Title = s.Title
	result.Price = s.Price
	result.Year = s.Year
	result.Hand = s.Hand
	result.Kilometrage = s.Kilometrage
	result.Highlights = s.Highlights
	result.Phones = s.Phones
	if len(s.Phones) > 0 {
		result.ContactInfo = s.Phones[0]
	}

	if s.Category != "" {
		result.Category = resolver.ResolveCategory(string(s.Category))
	}
	if s.Condition != "" {
		result.Condition = string(s.Condition)
	}
	result.CategoryLabel = a.vocabulary.CategoryLabel(result.Category)
	result.ConditionLabel = a.vocabulary.ConditionLabel(result.Condition)

	result.Make, result.Model = s.Make, s.Model
	if s.Category == patterns.CategoryVehicles {
		res := resolver.ResolveVehicle(s.Make, s.Model, ex.Tokens)
		result.Make, result.Model = res.Make, res.Model
	}

	result.Attributes = attributes(ex.Candidates)
	report := a.advisor.Check(result.listing())
	result.MissingFields = report.MissingFields
	result.Warning = report.Warning
	result.Warnings = report.Warnings

	a.logger.Debug().
		Str("category", result.Category).
		Str("condition", result.Condition).
		Int("attributes", len(result.Attributes)).
		Int("missing", len(result.MissingFields)).
		Strs("misses", ex.Misses).
		Str("knowledge_version", result.KnowledgeVersion).
		Dur("duration", time.Since(start)).
		Msg("Listing analyzed")
	return result
}

var (
	defaultOnce     sync.Once
	defaultAnalyzer *Analyzer
)

// AnalyzeListingText is the one-shot form of New(opts...).Analyze(text).
// Without options a shared default analyzer is reused.
func AnalyzeListingText(text string, opts ...Option) ExtractionResult {
	if len(opts) == 0 {
		defaultOnce.Do(func() {
			defaultAnalyzer = New()
		})
		return defaultAnalyzer.Analyze(text)
	}
	return New(opts...).Analyze(text)
}
