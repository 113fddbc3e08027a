package magicparse

import (
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/advisor"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/extract"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/patterns"
)

// Default tags applied when nothing better was detected.
const (
	DefaultCategory  = string(patterns.CategoryGeneral)
	DefaultCondition = string(patterns.ConditionUsed)
)

// Attribute is one generic fact about the listing, such as
// {key: "engine_volume", value: "1600", unit: "cc"}.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// ExtractionResult is the structured draft built from one listing text. It
// is created fresh by every call and never modified afterwards.
type ExtractionResult struct {
	Title          string      `json:"title,omitempty"`
	Price          *float64    `json:"price,omitempty"`
	Category       string      `json:"category"`
	CategoryLabel  string      `json:"categoryLabel"`
	Condition      string      `json:"condition"`
	ConditionLabel string      `json:"conditionLabel"`
	Make           string      `json:"make,omitempty"`
	Model          string      `json:"model,omitempty"`
	Year           *int        `json:"year,omitempty"`
	Hand           *int        `json:"hand,omitempty"`
	Kilometrage    *int        `json:"kilometrage,omitempty"`
	Highlights     []string    `json:"highlights,omitempty"`
	Attributes     []Attribute `json:"attributes"`
	ContactInfo    string      `json:"contactInfo,omitempty"`
	// Phones lists every distinct number found; ContactInfo is the first.
	Phones           []string `json:"phones,omitempty"`
	MissingFields    []string `json:"missingFields"`
	Warning          string   `json:"warning,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	KnowledgeVersion string   `json:"knowledgeVersion,omitempty"`
}

// IsPromoted reports whether key has a dedicated result field. Promoted keys
// never appear among the generic attributes.
func IsPromoted(key string) bool {
	return promoted(patterns.Key(key))
}

func promoted(key patterns.Key) bool {
	switch key {
	case patterns.KeyYear, patterns.KeyHand, patterns.KeyKilometrage,
		patterns.KeyMake, patterns.KeyModel, patterns.KeyHighlights,
		patterns.KeyPrice, patterns.KeyPhone:
		return true
	}
	return false
}

// attributes drops promoted keys and collapses repeated key/value pairs,
// keeping text order.
func attributes(candidates []extract.Candidate) []Attribute {
	out := make([]Attribute, 0, len(candidates))
	seen := map[[2]string]bool{}
	for _, c := range candidates {
		if promoted(c.Key) {
			continue
		}
		id := [2]string{string(c.Key), c.Value}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Attribute{Key: string(c.Key), Value: c.Value, Unit: c.Unit})
	}
	return out
}

func attributeKeys(attrs []Attribute) []patterns.Key {
	keys := make([]patterns.Key, 0, len(attrs))
	for _, a := range attrs {
		keys = append(keys, patterns.Key(a.Key))
	}
	return keys
}

func (r *ExtractionResult) listing() advisor.Listing {
	return advisor.Listing{
		Category:    patterns.Category(r.Category),
		Title:       r.Title,
		Price:       r.Price,
		Make:        r.Make,
		Model:       r.Model,
		Year:        r.Year,
		Hand:        r.Hand,
		Kilometrage: r.Kilometrage,
		ContactInfo: r.ContactInfo,
		Attributes:  attributeKeys(r.Attributes),
	}
}

// emptyResult is the well-formed result for text that yields nothing.
func emptyResult(vocab Vocabulary) ExtractionResult {
	return ExtractionResult{
		Category:       DefaultCategory,
		CategoryLabel:  vocab.CategoryLabel(DefaultCategory),
		Condition:      DefaultCondition,
		ConditionLabel: vocab.ConditionLabel(DefaultCondition),
		Attributes:     []Attribute{},
		MissingFields:  []string{},
	}
}
