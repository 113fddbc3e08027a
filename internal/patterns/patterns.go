// Package patterns holds the versioned matcher library used to pull listing
// facts out of normalized classified-ad text.
//
// Each concept (price, phone, year, hand, mileage, ...) is a named Matcher so
// that alternate-language pattern sets can be swapped without touching the
// extraction pipeline. Matchers run against the lowercase text produced by
// the normalize package and report byte spans into it.
package patterns

import (
	"sort"
	"time"
)

// Version identifies the built-in pattern tables.
const Version = "2024.1"

// Key names one semantic slot of a listing.
type Key string

// Fixed key vocabulary. Category-specific matchers may use other keys.
const (
	KeyPrice        Key = "price"
	KeyPhone        Key = "phone"
	KeyYear         Key = "year"
	KeyHand         Key = "hand"
	KeyKilometrage  Key = "kilometrage"
	KeyHighlights   Key = "highlights"
	KeyMake         Key = "make"
	KeyModel        Key = "model"
	KeyEngineVolume Key = "engine_volume"
	KeyGearbox      Key = "gearbox"
	KeyFuel         Key = "fuel"
	KeyRooms        Key = "rooms"
	KeyFloor        Key = "floor"
	KeySize         Key = "size_sqm"
	KeyParking      Key = "parking"
	KeyElevator     Key = "elevator"
	KeyBalcony      Key = "balcony"
	KeyStorage      Key = "storage"
)

// Category is a canonical listing category tag.
type Category string

const (
	CategoryVehicles    Category = "Vehicles"
	CategoryRealEstate  Category = "RealEstate"
	CategoryElectronics Category = "Electronics"
	CategoryGeneral     Category = "General"
)

// ScopeAny marks a matcher that applies to every category.
const ScopeAny Category = ""

// Condition is a canonical item-condition tag.
type Condition string

const (
	ConditionNew         Condition = "new"
	ConditionLikeNew     Condition = "like_new"
	ConditionUsed        Condition = "used"
	ConditionRefurbished Condition = "refurbished"
	ConditionForParts    Condition = "for_parts"
)

// Match is one fact found in the text. Start and End are byte offsets into
// the matched text; Start is -1 for facts without a span.
type Match struct {
	Key     Key
	Value   string
	Unit    string
	Start   int
	End     int
	Weight  float64
	Context bool
}

// Overlaps reports whether two spanned matches claim common bytes.
func (m Match) Overlaps(o Match) bool {
	if m.Start < 0 || o.Start < 0 {
		return false
	}
	return m.Start < o.End && o.Start < m.End
}

// Matcher finds facts for one key.
type Matcher interface {
	Key() Key
	// Scope returns the category the matcher is restricted to, or ScopeAny.
	Scope() Category
	Find(text string) []Match
}

// Entry registers a matcher in a Library. Exclusive matchers compete for
// text spans during overlap resolution; the others only tag the listing.
type Entry struct {
	Matcher   Matcher
	Exclusive bool
}

// Library is the full, immutable set of matchers plus tie-break weights.
type Library struct {
	Version    string
	Entries    []Entry
	Weights    Weights
	Categories *CategoryScorer
	Conditions *ConditionMatcher
	Highlights *HighlightMatcher
	Vehicles   *VehicleCatalog
}

// LibraryOption customizes DefaultLibrary.
type LibraryOption func(*libraryConfig)

type libraryConfig struct {
	now     func() time.Time
	weights Weights
}

// WithClock sets the clock used for the plausible model-year range.
func WithClock(now func() time.Time) LibraryOption {
	return func(c *libraryConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithWeights overrides the tie-break weights.
func WithWeights(w Weights) LibraryOption {
	return func(c *libraryConfig) {
		c.weights = w
	}
}

// DefaultLibrary builds the built-in Hebrew + English matcher set.
func DefaultLibrary(opts ...LibraryOption) *Library {
	cfg := libraryConfig{
		now:     time.Now,
		weights: DefaultWeights(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	vehicles := NewVehicleCatalog(builtinMakes())

	return &Library{
		Version: Version,
		Entries: []Entry{
			{Matcher: NewPhoneMatcher(), Exclusive: true},
			{Matcher: NewPriceMatcher(), Exclusive: true},
			{Matcher: NewYearMatcher(cfg.now), Exclusive: true},
			{Matcher: NewYearContextMatcher(cfg.now), Exclusive: true},
			{Matcher: NewHandMatcher(), Exclusive: true},
			{Matcher: NewMileageMatcher(), Exclusive: true},
			{Matcher: NewEngineVolumeMatcher(), Exclusive: true},
			{Matcher: NewRoomsMatcher(), Exclusive: true},
			{Matcher: NewFloorMatcher(), Exclusive: true},
			{Matcher: NewSizeMatcher(), Exclusive: true},
			{Matcher: NewStorageMatcher(), Exclusive: true},
			{Matcher: NewGearboxMatcher()},
			{Matcher: NewFuelMatcher()},
			{Matcher: NewAmenityMatcher(KeyParking, "חניה", "חנייה", "חניות", "parking")},
			{Matcher: NewAmenityMatcher(KeyElevator, "מעלית", "elevator", "lift")},
			{Matcher: NewAmenityMatcher(KeyBalcony, "מרפסת", "מרפסות", "מרפסת שמש", "balcony")},
		},
		Weights:    cfg.weights,
		Categories: NewCategoryScorer(builtinCategoryKeywords(), vehicles),
		Conditions: NewConditionMatcher(builtinConditionKeywords()),
		Highlights: NewHighlightMatcher(),
		Vehicles:   vehicles,
	}
}

// Active returns the entries that apply to the given category.
func (l *Library) Active(category Category) []Entry {
	active := make([]Entry, 0, len(l.Entries))
	for _, e := range l.Entries {
		scope := e.Matcher.Scope()
		if scope == ScopeAny || scope == category {
			active = append(active, e)
		}
	}
	return active
}

// Weights are the configurable tie-break weights applied when matches of
// different keys claim overlapping spans.
type Weights struct {
	Base    map[Key]float64 `yaml:"base" json:"base"`
	Default float64         `yaml:"default" json:"default"`
	Context float64         `yaml:"context" json:"context"`
}

// DefaultWeights prefers phone over year over bare price, and any match with
// adjacent keyword context over one without.
func DefaultWeights() Weights {
	return Weights{
		Base: map[Key]float64{
			KeyPhone:        3.0,
			KeyKilometrage:  2.6,
			KeyHand:         2.6,
			KeyEngineVolume: 2.4,
			KeyRooms:        2.4,
			KeyFloor:        2.4,
			KeySize:         2.4,
			KeyStorage:      2.2,
			KeyYear:         2.0,
			KeyPrice:        1.0,
		},
		Default: 1.0,
		Context: 2.0,
	}
}

// Of returns the effective weight of m.
func (w Weights) Of(m Match) float64 {
	base, ok := w.Base[m.Key]
	if !ok {
		base = w.Default
	}
	if m.Context {
		base += w.Context
	}
	return base + m.Weight
}

// Merge returns w with every non-zero field of o applied on top.
func (w Weights) Merge(o Weights) Weights {
	merged := Weights{
		Base:    make(map[Key]float64, len(w.Base)+len(o.Base)),
		Default: w.Default,
		Context: w.Context,
	}
	for k, v := range w.Base {
		merged.Base[k] = v
	}
	for k, v := range o.Base {
		merged.Base[k] = v
	}
	if o.Default != 0 {
		merged.Default = o.Default
	}
	if o.Context != 0 {
		merged.Context = o.Context
	}
	return merged
}

// Resolve keeps the strongest non-overlapping matches and returns them in
// text order. Spanless matches are always kept.
func Resolve(matches []Match, w Weights) []Match {
	ranked := make([]Match, len(matches))
	copy(ranked, matches)
	sort.SliceStable(ranked, func(i, j int) bool {
		wi, wj := w.Of(ranked[i]), w.Of(ranked[j])
		if wi != wj {
			return wi > wj
		}
		if ranked[i].Start != ranked[j].Start {
			return ranked[i].Start < ranked[j].Start
		}
		return ranked[i].End-ranked[i].Start > ranked[j].End-ranked[j].Start
	})

	accepted := make([]Match, 0, len(ranked))
	for _, m := range ranked {
		clash := false
		for _, a := range accepted {
			if m.Overlaps(a) {
				clash = true
				break
			}
		}
		if !clash {
			accepted = append(accepted, m)
		}
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].Start < accepted[j].Start
	})
	return accepted
}
