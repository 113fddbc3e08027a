// Package advisor checks an extracted listing against per-category
// checklists and plausibility bands. Its findings are suggestions for the
// person filling the form, never errors.
package advisor

import (
	"fmt"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/patterns"
)

// Field names reported in Report.MissingFields.
const (
	FieldTitle = "title"
	FieldPrice = "price"
)

// WarningNoContact is reported when the text carries no phone number.
const WarningNoContact = "no contact info found"

// Band is an inclusive plausible price range.
type Band struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Rules are the checklists and price bands per category. Categories without
// an entry use only the common fields and the General band.
type Rules struct {
	Common     []string                       `yaml:"common" json:"common"`
	Checklists map[patterns.Category][]string `yaml:"checklists" json:"checklists"`
	PriceBands map[patterns.Category]Band     `yaml:"price_bands" json:"priceBands"`
}

// DefaultRules returns the built-in checklists and ILS price bands.
func DefaultRules() Rules {
	return Rules{
		Common: []string{FieldTitle, FieldPrice},
		Checklists: map[patterns.Category][]string{
			patterns.CategoryVehicles: {
				string(patterns.KeyMake),
				string(patterns.KeyModel),
				string(patterns.KeyYear),
				string(patterns.KeyHand),
				string(patterns.KeyKilometrage),
			},
			patterns.CategoryRealEstate: {
				string(patterns.KeyRooms),
				string(patterns.KeyFloor),
				string(patterns.KeySize),
			},
		},
		PriceBands: map[patterns.Category]Band{
			patterns.CategoryVehicles:    {Min: 1000, Max: 3000000},
			patterns.CategoryRealEstate:  {Min: 500, Max: 50000000},
			patterns.CategoryElectronics: {Min: 20, Max: 100000},
			patterns.CategoryGeneral:     {Min: 1, Max: 1000000},
		},
	}
}

// Merge returns r with the checklists and bands of o applied on top.
func (r Rules) Merge(o Rules) Rules {
	merged := Rules{
		Common:     r.Common,
		Checklists: make(map[patterns.Category][]string, len(r.Checklists)+len(o.Checklists)),
		PriceBands: make(map[patterns.Category]Band, len(r.PriceBands)+len(o.PriceBands)),
	}
	if len(o.Common) > 0 {
		merged.Common = o.Common
	}
	for c, l := range r.Checklists {
		merged.Checklists[c] = l
	}
	for c, l := range o.Checklists {
		merged.Checklists[c] = l
	}
	for c, b := range r.PriceBands {
		merged.PriceBands[c] = b
	}
	for c, b := range o.PriceBands {
		merged.PriceBands[c] = b
	}
	return merged
}

// Listing is the view of an extracted listing the advisor inspects.
type Listing struct {
	Category    patterns.Category
	Title       string
	Price       *float64
	Make        string
	Model       string
	Year        *int
	Hand        *int
	Kilometrage *int
	ContactInfo string
	// Attributes are the keys present among the generic attributes.
	Attributes []patterns.Key
}

// has reports whether field is populated.
func (l Listing) has(field string) bool {
	switch field {
	case FieldTitle:
		return l.Title != ""
	case FieldPrice:
		return l.Price != nil
	case string(patterns.KeyMake):
		return l.Make != ""
	case string(patterns.KeyModel):
		return l.Model != ""
	case string(patterns.KeyYear):
		return l.Year != nil
	case string(patterns.KeyHand):
		return l.Hand != nil
	case string(patterns.KeyKilometrage):
		return l.Kilometrage != nil
	case string(patterns.KeyPhone):
		return l.ContactInfo != ""
	}
	for _, k := range l.Attributes {
		if string(k) == field {
			return true
		}
	}
	return false
}

// Report is the completeness and plausibility outcome.
type Report struct {
	// MissingFields is never nil.
	MissingFields []string `json:"missingFields"`
	// Warning is the first of Warnings.
	Warning  string   `json:"warning,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Advisor evaluates listings against Rules. It is read-only after
// construction and safe for concurrent use.
type Advisor struct {
	rules Rules
}

// New creates an advisor.
func New(rules Rules) *Advisor {
	return &Advisor{rules: rules}
}

// Rules returns the rules in effect.
func (a *Advisor) Rules() Rules {
	return a.rules
}

// Check lists the checklist fields l lacks and any data-quality warnings.
func (a *Advisor) Check(l Listing) Report {
	report := Report{MissingFields: []string{}}

	seen := map[string]bool{}
	for _, list := range [][]string{a.rules.Common, a.rules.Checklists[l.Category]} {
		for _, field := range list {
			if seen[field] {
				continue
			}
			seen[field] = true
			if !l.has(field) {
				report.MissingFields = append(report.MissingFields, field)
			}
		}
	}

	if w := a.priceWarning(l); w != "" {
		report.Warnings = append(report.Warnings, w)
	}
	if l.ContactInfo == "" {
		report.Warnings = append(report.Warnings, WarningNoContact)
	}
	if len(report.Warnings) > 0 {
		report.Warning = report.Warnings[0]
	}
	return report
}

func (a *Advisor) priceWarning(l Listing) string {
	if l.Price == nil {
		return ""
	}
	band, ok := a.rules.PriceBands[l.Category]
	if !ok {
		band, ok = a.rules.PriceBands[patterns.CategoryGeneral]
		if !ok {
			return ""
		}
	}
	switch {
	case *l.Price < band.Min:
		return fmt.Sprintf("price looks too low for %s", l.Category)
	case band.Max > 0 && *l.Price > band.Max:
		return fmt.Sprintf("price looks too high for %s", l.Category)
	}
	return ""
}
