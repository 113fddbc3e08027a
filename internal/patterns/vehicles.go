package patterns

import (
	"regexp"
	"strings"
	"unicode"
)

// ModelEntry is a canonical model name and its spellings in listing text.
type ModelEntry struct {
	Name    string
	Aliases []string
}

// MakeEntry is a canonical vehicle make with its spellings and models.
type MakeEntry struct {
	Name    string
	Aliases []string
	Models  []ModelEntry
}

// VehicleHit is one make or model mention found in text.
type VehicleHit struct {
	Make  string
	Model string
	Start int
	End   int
}

// VehicleCatalog is the built-in bilingual make/model table. Lookups are
// exact on normalized text; spelling correction is the job of a knowledge
// base.
type VehicleCatalog struct {
	makes []MakeEntry
}

// Claims are text spans already taken by numeric matchers such as hand,
// mileage, year or price.
type Claims [][2]int

// Covers reports whether [start, end) lies inside one claim.
func (c Claims) Covers(start, end int) bool {
	for _, cl := range c {
		if start >= cl[0] && end <= cl[1] {
			return true
		}
	}
	return false
}

// NewVehicleCatalog lowercases every alias and adds the canonical names as
// aliases. A purely numeric name ("3", "208") is left out: it only matches
// through an alias that carries the make, such as "mazda 3".
func NewVehicleCatalog(makes []MakeEntry) *VehicleCatalog {
	out := make([]MakeEntry, 0, len(makes))
	for _, mk := range makes {
		entry := MakeEntry{
			Name:    mk.Name,
			Aliases: withName(mk.Name, mk.Aliases),
			Models:  make([]ModelEntry, 0, len(mk.Models)),
		}
		for _, md := range mk.Models {
			entry.Models = append(entry.Models, ModelEntry{
				Name:    md.Name,
				Aliases: withName(md.Name, md.Aliases),
			})
		}
		out = append(out, entry)
	}
	return &VehicleCatalog{makes: out}
}

func withName(name string, aliases []string) []string {
	var out []string
	lower := strings.ToLower(name)
	if strings.IndexFunc(lower, unicode.IsLetter) >= 0 {
		out = append(out, lower)
	}
	for _, a := range aliases {
		a = strings.ToLower(a)
		if a != lower {
			out = append(out, a)
		}
	}
	return out
}

// Makes returns the catalog entries.
func (c *VehicleCatalog) Makes() []MakeEntry {
	return c.makes
}

// FindMake returns the earliest make mention in text.
func (c *VehicleCatalog) FindMake(text string) (VehicleHit, bool) {
	var (
		best  VehicleHit
		found bool
	)
	for _, mk := range c.makes {
		if span, ok := earliest(text, mk.Aliases, nil); ok {
			hit := VehicleHit{Make: mk.Name, Start: span[0], End: span[1]}
			if !found || better(hit, best) {
				best, found = hit, true
			}
		}
	}
	return best, found
}

// FindModel returns the earliest mention of a model of the given make.
// Mentions inside claimed spans are skipped.
func (c *VehicleCatalog) FindModel(text, makeName string, claimed Claims) (VehicleHit, bool) {
	for _, mk := range c.makes {
		if !strings.EqualFold(mk.Name, makeName) {
			continue
		}
		return c.findModel(text, mk, claimed)
	}
	return VehicleHit{}, false
}

// FindAnyModel returns the earliest model mention of any make, for text that
// names a model without its make. Mentions inside claimed spans are skipped.
func (c *VehicleCatalog) FindAnyModel(text string, claimed Claims) (VehicleHit, bool) {
	var (
		best  VehicleHit
		found bool
	)
	for _, mk := range c.makes {
		if hit, ok := c.findModel(text, mk, claimed); ok && (!found || better(hit, best)) {
			best, found = hit, true
		}
	}
	return best, found
}

func (c *VehicleCatalog) findModel(text string, mk MakeEntry, claimed Claims) (VehicleHit, bool) {
	var (
		best  VehicleHit
		found bool
	)
	for _, md := range mk.Models {
		if span, ok := earliest(text, md.Aliases, claimed); ok {
			hit := VehicleHit{Make: mk.Name, Model: md.Name, Start: span[0], End: span[1]}
			if !found || better(hit, best) {
				best, found = hit, true
			}
		}
	}
	return best, found
}

// vehicleCue matches a model year or an ownership count right after a model
// name, as in "קורולה 2018" or "גולף יד 2".
var vehicleCue = regexp.MustCompile(`^\s*[,\-]?\s*(?:(?:(?:שנת|משנת|שנה|מודל|model|year)\s*[:\-]?\s*)?(?:19|20)\d{2}(?:\D|$)|(?:יד|hand)\s*[:\-]?\s*(?:\d|ראשונה|שנייה|שניה|שלישית|רביעית|חמישית)|\d{1,2}(?:st|nd|rd|th)?\s*hand)`)

// Mentions counts vehicle votes in text: every make mention, plus every model
// mention followed by a year or hand cue. A bare model name ("פולו",
// "גולף") is too ambiguous to vote.
func (c *VehicleCatalog) Mentions(text string) int {
	n := 0
	for _, mk := range c.makes {
		for _, a := range mk.Aliases {
			n += len(FindKeyword(text, a))
		}
		for _, md := range mk.Models {
			for _, a := range md.Aliases {
				for _, span := range FindKeyword(text, a) {
					if vehicleCue.MatchString(text[span[1]:]) {
						n++
					}
				}
			}
		}
	}
	return n
}

// earliest returns the first bounded, unclaimed occurrence of any alias,
// preferring the longer alias at equal offsets.
func earliest(text string, aliases []string, claimed Claims) ([2]int, bool) {
	var (
		best  [2]int
		found bool
	)
	for _, a := range aliases {
		for _, s := range FindKeyword(text, a) {
			if claimed.Covers(s[0], s[1]) {
				continue
			}
			if !found || s[0] < best[0] || (s[0] == best[0] && s[1] > best[1]) {
				best, found = s, true
			}
			break
		}
	}
	return best, found
}

func better(a, b VehicleHit) bool {
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.End > b.End
}

func builtinMakes() []MakeEntry {
	return []MakeEntry{
		{Name: "Toyota", Aliases: []string{"טויוטה", "טיוטה"}, Models: []ModelEntry{
			{Name: "Corolla", Aliases: []string{"קורולה"}},
			{Name: "Yaris", Aliases: []string{"יאריס"}},
			{Name: "Camry", Aliases: []string{"קאמרי"}},
			{Name: "RAV4", Aliases: []string{"rav 4", "ראב 4", "ראב4", "ראב-4"}},
			{Name: "Prius", Aliases: []string{"פריוס"}},
			{Name: "C-HR", Aliases: []string{"chr", "סי אייץ' אר"}},
			{Name: "Auris", Aliases: []string{"אוריס"}},
			{Name: "Land Cruiser", Aliases: []string{"לנד קרוזר"}},
		}},
		{Name: "Hyundai", Aliases: []string{"יונדאי", "יונדיי"}, Models: []ModelEntry{
			{Name: "i10"}, {Name: "i20"}, {Name: "i25"}, {Name: "i30"}, {Name: "i35"},
			{Name: "Tucson", Aliases: []string{"טוסון"}},
			{Name: "Elantra", Aliases: []string{"אלנטרה"}},
			{Name: "Ioniq", Aliases: []string{"איוניק"}},
			{Name: "Kona"},
		}},
		{Name: "Kia", Aliases: []string{"קיה"}, Models: []ModelEntry{
			{Name: "Picanto", Aliases: []string{"פיקנטו"}},
			{Name: "Rio", Aliases: []string{"ריו"}},
			{Name: "Sportage", Aliases: []string{"ספורטז'", "ספורטאז'"}},
			{Name: "Niro", Aliases: []string{"נירו"}},
			{Name: "Sorento", Aliases: []string{"סורנטו"}},
			{Name: "Stonic", Aliases: []string{"סטוניק"}},
		}},
		{Name: "Mazda", Aliases: []string{"מאזדה", "מזדה"}, Models: []ModelEntry{
			{Name: "CX-5", Aliases: []string{"cx5", "cx 5"}},
			{Name: "CX-30", Aliases: []string{"cx30", "cx 30"}},
			{Name: "3", Aliases: []string{"מאזדה 3", "מזדה 3", "mazda 3", "mazda3"}},
		}},
		{Name: "Skoda", Aliases: []string{"סקודה"}, Models: []ModelEntry{
			{Name: "Octavia", Aliases: []string{"אוקטביה", "אוקטבייה"}},
			{Name: "Fabia", Aliases: []string{"פאביה"}},
			{Name: "Superb", Aliases: []string{"סופרב"}},
			{Name: "Kodiaq", Aliases: []string{"קודיאק"}},
			{Name: "Karoq", Aliases: []string{"קארוק"}},
		}},
		{Name: "Volkswagen", Aliases: []string{"פולקסווגן", "פולקסוואגן", "vw"}, Models: []ModelEntry{
			{Name: "Golf", Aliases: []string{"גולף"}},
			{Name: "Polo", Aliases: []string{"פולו"}},
			{Name: "Passat", Aliases: []string{"פאסאט"}},
			{Name: "Tiguan", Aliases: []string{"טיגואן"}},
			{Name: "Jetta", Aliases: []string{"ג'טה"}},
		}},
		{Name: "Mitsubishi", Aliases: []string{"מיצובישי"}, Models: []ModelEntry{
			{Name: "Lancer", Aliases: []string{"לנסר"}},
			{Name: "Outlander", Aliases: []string{"אאוטלנדר", "אווטלנדר"}},
			{Name: "ASX"},
			{Name: "Attrage", Aliases: []string{"אטראז'"}},
		}},
		{Name: "Nissan", Aliases: []string{"ניסאן"}, Models: []ModelEntry{
			{Name: "Qashqai", Aliases: []string{"קשקאי"}},
			{Name: "Micra", Aliases: []string{"מיקרה"}},
			{Name: "Juke", Aliases: []string{"ג'וק"}},
			{Name: "X-Trail", Aliases: []string{"xtrail", "אקס טרייל"}},
		}},
		{Name: "Honda", Aliases: []string{"הונדה"}, Models: []ModelEntry{
			{Name: "Civic", Aliases: []string{"סיוויק", "סיויק"}},
			{Name: "Jazz", Aliases: []string{"ג'אז"}},
			{Name: "CR-V", Aliases: []string{"crv"}},
			{Name: "Accord"},
		}},
		{Name: "Suzuki", Aliases: []string{"סוזוקי"}, Models: []ModelEntry{
			{Name: "Swift", Aliases: []string{"סוויפט", "סויפט"}},
			{Name: "Vitara", Aliases: []string{"ויטרה"}},
			{Name: "Baleno", Aliases: []string{"בלנו"}},
			{Name: "Jimny", Aliases: []string{"ג'ימני"}},
		}},
		{Name: "Subaru", Aliases: []string{"סובארו"}, Models: []ModelEntry{
			{Name: "Impreza", Aliases: []string{"אימפרזה"}},
			{Name: "Forester", Aliases: []string{"פורסטר"}},
			{Name: "XV"},
		}},
		{Name: "Ford", Aliases: []string{"פורד"}, Models: []ModelEntry{
			{Name: "Focus", Aliases: []string{"פוקוס"}},
			{Name: "Fiesta", Aliases: []string{"פיאסטה"}},
			{Name: "Kuga", Aliases: []string{"קוגה"}},
			{Name: "Mustang", Aliases: []string{"מוסטנג"}},
		}},
		{Name: "Chevrolet", Aliases: []string{"שברולט"}, Models: []ModelEntry{
			{Name: "Spark", Aliases: []string{"ספארק"}},
			{Name: "Cruze"},
			{Name: "Malibu", Aliases: []string{"מאליבו"}},
		}},
		{Name: "Renault", Aliases: []string{"רנו"}, Models: []ModelEntry{
			{Name: "Clio", Aliases: []string{"קליאו"}},
			{Name: "Megane", Aliases: []string{"מגאן"}},
			{Name: "Captur", Aliases: []string{"קפצ'ור"}},
		}},
		{Name: "Peugeot", Aliases: []string{"פיג'ו", "פז'ו"}, Models: []ModelEntry{
			{Name: "208", Aliases: []string{"פיג'ו 208", "peugeot 208"}},
			{Name: "308", Aliases: []string{"פיג'ו 308", "peugeot 308"}},
			{Name: "3008", Aliases: []string{"פיג'ו 3008", "peugeot 3008"}},
		}},
		{Name: "Citroen", Aliases: []string{"סיטרואן", "citroën"}, Models: []ModelEntry{
			{Name: "C3", Aliases: []string{"סי 3"}},
			{Name: "C4", Aliases: []string{"סי 4"}},
			{Name: "Berlingo", Aliases: []string{"ברלינגו"}},
		}},
		{Name: "Seat", Aliases: []string{"סיאט"}, Models: []ModelEntry{
			{Name: "Ibiza", Aliases: []string{"איביזה"}},
			{Name: "Leon", Aliases: []string{"לאון"}},
		}},
		{Name: "BMW", Aliases: []string{"ב.מ.וו", "במוו", "ב מ וו"}, Models: []ModelEntry{
			{Name: "X1"}, {Name: "X3"}, {Name: "X5"},
		}},
		{Name: "Mercedes-Benz", Aliases: []string{"מרצדס", "מרצדס בנץ", "mercedes", "בנץ", "benz"}, Models: []ModelEntry{
			{Name: "C-Class", Aliases: []string{"c class", "c200", "c180"}},
			{Name: "E-Class", Aliases: []string{"e class", "e200", "e300"}},
			{Name: "A-Class", Aliases: []string{"a class", "a180", "a200"}},
		}},
		{Name: "Audi", Aliases: []string{"אאודי", "אודי"}, Models: []ModelEntry{
			{Name: "A3"}, {Name: "A4"}, {Name: "Q5"},
		}},
		{Name: "Tesla", Aliases: []string{"טסלה"}, Models: []ModelEntry{
			{Name: "Model 3", Aliases: []string{"מודל 3"}},
			{Name: "Model Y", Aliases: []string{"מודל y", "מודל וואי"}},
		}},
		{Name: "Jeep", Aliases: []string{"ג'יפ"}, Models: []ModelEntry{
			{Name: "Grand Cherokee", Aliases: []string{"גרנד צ'ירוקי"}},
			{Name: "Wrangler", Aliases: []string{"רנגלר"}},
			{Name: "Compass", Aliases: []string{"קומפס"}},
		}},
		{Name: "Volvo", Aliases: []string{"וולוו"}, Models: []ModelEntry{
			{Name: "XC40"}, {Name: "XC60"}, {Name: "XC90"},
		}},
		{Name: "Dacia", Aliases: []string{"דאצ'יה"}, Models: []ModelEntry{
			{Name: "Duster", Aliases: []string{"דאסטר"}},
			{Name: "Sandero", Aliases: []string{"סנדרו"}},
		}},
		{Name: "Lexus", Aliases: []string{"לקסוס"}},
	}
}
