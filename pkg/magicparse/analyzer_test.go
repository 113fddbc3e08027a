package magicparse

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/patterns"
)

const vehicleAd = "רכב טויוטה קורולה שנת 2018 יד 2, 85000 קמ, מחיר 45000 ש״ח, 050-1234567"

func fixedClock() time.Time {
	return time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
}

func scenarioKB() *KnowledgeBase {
	return &KnowledgeBase{
		Version: "kb-2024-06",
		MakeModelIndex: map[string][]string{
			"Toyota": {"Corolla", "Yaris", "C-HR"},
			"Mazda":  {"3", "CX-5"},
		},
		CategorySynonyms: map[string]string{
			"ספה":  "Furniture",
			"כורסה": "Furniture",
		},
	}
}

func assertWellFormed(t *testing.T, r ExtractionResult) {
	t.Helper()
	assert.NotEmpty(t, r.Category)
	assert.NotEmpty(t, r.Condition)
	assert.NotNil(t, r.Attributes)
	assert.NotNil(t, r.MissingFields)
	for _, a := range r.Attributes {
		assert.False(t, IsPromoted(a.Key), "attribute %q duplicates a dedicated field", a.Key)
	}
}

func TestAnalyze_VehicleAd(t *testing.T) {
	r := AnalyzeListingText(vehicleAd)
	assertWellFormed(t, r)

	assert.Equal(t, "Vehicles", r.Category)
	assert.Equal(t, "רכב", r.CategoryLabel)
	require.NotNil(t, r.Price)
	assert.Equal(t, 45000.0, *r.Price)
	assert.Equal(t, "Toyota", r.Make)
	assert.Equal(t, "Corolla", r.Model)
	require.NotNil(t, r.Year)
	assert.Equal(t, 2018, *r.Year)
	require.NotNil(t, r.Hand)
	assert.Equal(t, 2, *r.Hand)
	require.NotNil(t, r.Kilometrage)
	assert.Equal(t, 85000, *r.Kilometrage)
	assert.Equal(t, "0501234567", r.ContactInfo)
	assert.Equal(t, "used", r.Condition)
	assert.Equal(t, "משומש", r.ConditionLabel)
	assert.Empty(t, r.MissingFields)
	assert.Empty(t, r.Warning)
	assert.Empty(t, r.KnowledgeVersion)
}

func TestAnalyze_EmptyText(t *testing.T) {
	for _, text := range []string{"", "  \n\t  "} {
		r := AnalyzeListingText(text)
		assertWellFormed(t, r)

		assert.Empty(t, r.Title)
		assert.Nil(t, r.Price)
		assert.Nil(t, r.Year)
		assert.Nil(t, r.Hand)
		assert.Nil(t, r.Kilometrage)
		assert.Empty(t, r.Make)
		assert.Empty(t, r.Model)
		assert.Empty(t, r.ContactInfo)
		assert.Equal(t, []Attribute{}, r.Attributes)
		assert.Equal(t, DefaultCategory, r.Category)
		assert.Equal(t, DefaultCondition, r.Condition)
		assert.Equal(t, []string{"title", "price"}, r.MissingFields)
		assert.Equal(t, "no contact info found", r.Warning)
	}
}

func TestAnalyze_FirstPhoneWins(t *testing.T) {
	r := AnalyzeListingText("050-1111111, 052-2222222")
	assertWellFormed(t, r)

	assert.Equal(t, "0501111111", r.ContactInfo)
	assert.Equal(t, []string{"0501111111", "0522222222"}, r.Phones)
	assert.Nil(t, r.Price)
}

func TestAnalyze_GeneralItem(t *testing.T) {
	r := AnalyzeListingText("ספה אפורה, כמו חדשה, 500 ש״ח")
	assertWellFormed(t, r)

	assert.Equal(t, "General", r.Category)
	assert.Equal(t, "like_new", r.Condition)
	assert.Equal(t, "כמו חדש", r.ConditionLabel)
	require.NotNil(t, r.Price)
	assert.Equal(t, 500.0, *r.Price)
	assert.Equal(t, "ספה אפורה", r.Title)
	assert.Empty(t, r.Make)
	assert.Empty(t, r.Model)
	assert.Nil(t, r.Year)
	assert.Nil(t, r.Hand)
	assert.Nil(t, r.Kilometrage)
}

func TestAnalyze_MisspelledMake(t *testing.T) {
	const text = "רכב Toyotta Corolla שנת 2017, יד 1, 90000 קמ"

	raw := AnalyzeListingText(text, WithClock(fixedClock))
	assert.Equal(t, "Vehicles", raw.Category)
	assert.Equal(t, "Toyotta", raw.Make)
	assert.Equal(t, "Corolla", raw.Model)
	assert.Empty(t, raw.KnowledgeVersion)

	corrected := AnalyzeListingText(text, WithClock(fixedClock), WithKnowledgeBase(scenarioKB()))
	assert.Equal(t, "Toyota", corrected.Make)
	assert.Equal(t, "Corolla", corrected.Model)
	assert.Equal(t, "kb-2024-06", corrected.KnowledgeVersion)

	strict := AnalyzeListingText(text, WithKnowledgeBase(scenarioKB()), WithMinSimilarity(0.95))
	assert.Equal(t, "Toyotta", strict.Make)
}

func TestAnalyze_KnowledgeSynonymCategory(t *testing.T) {
	a := New(WithKnowledgeBase(scenarioKB()))

	r := a.Analyze("ספה תלת מושבית, 800 ש\"ח, 052-2222222")
	assertWellFormed(t, r)
	assert.Equal(t, "Furniture", r.Category)
	assert.Equal(t, "ריהוט", r.CategoryLabel)

	r = a.AnalyzeWithKnowledge("ספה תלת מושבית, 800 ש\"ח", nil)
	assert.Equal(t, "General", r.Category)
	assert.Empty(t, r.KnowledgeVersion)
}

func TestAnalyze_AttributesDeduplicated(t *testing.T) {
	texts := []string{
		vehicleAd,
		"טויוטה קורולה 2019 יד 1, 40000 קמ, גיר אוטומטי, 1600 סמ\"ק\nדגשים: מזגן, גג נפתח\nגיר אוטומטי",
		`דירת 4 חדרים בקומה 3, 95 מ"ר, חניה, מעלית, מחיר 2,150,000`,
		"iPhone 13 128GB כמו חדש 2500 ש\"ח 054-7654321",
	}
	for _, text := range texts {
		r := AnalyzeListingText(text)
		assertWellFormed(t, r)

		seen := map[Attribute]bool{}
		for _, a := range r.Attributes {
			assert.False(t, seen[a], "duplicate attribute %+v", a)
			seen[a] = true
		}
	}
}

func TestAnalyze_RealEstateChecklist(t *testing.T) {
	r := AnalyzeListingText(`דירת 4 חדרים, 95 מ"ר, מחיר 2,150,000, 03-7654321`)

	assert.Equal(t, "RealEstate", r.Category)
	assert.Equal(t, []string{"floor"}, r.MissingFields)
	assert.Contains(t, r.Attributes, Attribute{Key: "rooms", Value: "4"})
	assert.Contains(t, r.Attributes, Attribute{Key: "size_sqm", Value: "95", Unit: "sqm"})
	assert.Equal(t, "037654321", r.ContactInfo)
}

func TestAnalyze_PriceWarning(t *testing.T) {
	r := AnalyzeListingText("רכב מאזדה 3 שנת 2015 יד 2, 100000 קמ, מחיר 5 ש\"ח, 050-1234567")

	assert.Equal(t, "Vehicles", r.Category)
	assert.Equal(t, "price looks too low for Vehicles", r.Warning)
}

func TestAnalyze_CuedYearIsNotPrice(t *testing.T) {
	tests := []struct {
		input    string
		category string
		year     int
	}{
		{"מקרר סמסונג שנת 2018 במצב מעולה", "Electronics", 2018},
		{"אופניים חשמליים משנת 2019, 050-1234567", "General", 2019},
		{"קורולה 2018 יד ראשונה", "Vehicles", 2018},
		{"MacBook Pro model 2020", "Electronics", 2020},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			r := AnalyzeListingText(tc.input, WithClock(fixedClock))
			assertWellFormed(t, r)

			assert.Equal(t, tc.category, r.Category)
			assert.Nil(t, r.Price)
			require.NotNil(t, r.Year)
			assert.Equal(t, tc.year, *r.Year)
		})
	}
}

func TestAnalyze_NumbersAreNotModels(t *testing.T) {
	for _, text := range []string{
		"רכב 2015 יד 3, 120000 קמ",
		"רכב משפחתי 7 מקומות, 308 אלף קמ",
		"אופנוע 2019 יד 1, 3 כסאות",
	} {
		t.Run(text, func(t *testing.T) {
			r := AnalyzeListingText(text, WithClock(fixedClock))
			assertWellFormed(t, r)

			assert.Equal(t, "Vehicles", r.Category)
			assert.Empty(t, r.Make)
			assert.Empty(t, r.Model)
		})
	}

	r := AnalyzeListingText("קורולה 2018 יד ראשונה", WithClock(fixedClock))
	assert.Equal(t, "Toyota", r.Make)
	assert.Equal(t, "Corolla", r.Model)
	require.NotNil(t, r.Hand)
	assert.Equal(t, 1, *r.Hand)
}

func TestAnalyze_Idempotent(t *testing.T) {
	a := New(WithKnowledgeBase(scenarioKB()))
	text := vehicleAd + "\nדגשים: מזגן, גג נפתח, חיישני רוורס"

	first := a.Analyze(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, a.Analyze(text))
	}
}

func TestAnalyze_NeverFails(t *testing.T) {
	inputs := map[string]string{
		"long":           strings.Repeat("רכב טויוטה 2018 יד 2 050-1234567 ", 1000),
		"emoji only":     "🚗🚗🔥💯✨",
		"control chars":  "\x00\x01\x02\x1b[31m\x7f",
		"invalid utf8":   string([]byte{0xff, 0xfe, 0xfd}),
		"digits only":    strings.Repeat("9", 20000),
		"punctuation":    strings.Repeat(",.;:!?-", 500),
		"mixed scripts":  "سيارة 汽车 רכב car 2020",
		"huge number":    "מחיר 99999999999999999999999 ש\"ח",
		"nested bullets": "• • • - - * + דגשים: , , ,",
	}
	for name, text := range inputs {
		t.Run(name, func(t *testing.T) {
			var r ExtractionResult
			assert.NotPanics(t, func() { r = AnalyzeListingText(text) })
			assertWellFormed(t, r)
		})
	}
}

func TestAnalyze_ConcurrentUse(t *testing.T) {
	a := New(WithKnowledgeBase(scenarioKB()))
	want := a.Analyze(vehicleAd)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, a.Analyze(vehicleAd))
		}()
	}
	wg.Wait()
}

func TestAnalyze_Weights(t *testing.T) {
	const text = "רכב שנת 2018"

	r := AnalyzeListingText(text, WithClock(fixedClock))
	require.NotNil(t, r.Year)
	assert.Nil(t, r.Price)

	r = AnalyzeListingText(text, WithClock(fixedClock), WithWeights(Weights{Base: map[patterns.Key]float64{patterns.KeyPrice: 10}}))
	assert.Nil(t, r.Year)
	require.NotNil(t, r.Price)
	assert.Equal(t, 2018.0, *r.Price)
}

func TestAnalyze_MaxInputRunes(t *testing.T) {
	const text = "ספה אפורה 500 ש\"ח 050-1234567"

	r := AnalyzeListingText(text, WithMaxInputRunes(9))
	assert.Equal(t, "ספה אפורה", r.Title)
	assert.Nil(t, r.Price)
	assert.Empty(t, r.ContactInfo)

	r = AnalyzeListingText(text, WithMaxInputRunes(0))
	require.NotNil(t, r.Price)
	assert.Equal(t, "0501234567", r.ContactInfo)
}

func TestAnalyze_Vocabulary(t *testing.T) {
	vocab := DefaultVocabulary().With(map[string]string{"Vehicles": "Cars"}, map[string]string{"used": "Pre-owned"})
	r := AnalyzeListingText(vehicleAd, WithVocabulary(vocab))

	assert.Equal(t, "Cars", r.CategoryLabel)
	assert.Equal(t, "Pre-owned", r.ConditionLabel)
	assert.Equal(t, "רכב", DefaultVocabulary().CategoryLabel("Vehicles"))
	assert.Equal(t, "Unknown", vocab.CategoryLabel("Unknown"))
}

func TestAnalyze_Rules(t *testing.T) {
	r := AnalyzeListingText("ספה אפורה 500 ש\"ח 050-1234567", WithRules(Rules{
		Checklists: map[patterns.Category][]string{patterns.CategoryGeneral: {"material"}},
	}))
	assert.Equal(t, []string{"material"}, r.MissingFields)
}

func TestIsPromoted(t *testing.T) {
	for _, key := range []string{"year", "hand", "kilometrage", "make", "model", "highlights", "price", "phone"} {
		assert.True(t, IsPromoted(key), key)
	}
	for _, key := range []string{"rooms", "storage", "color", ""} {
		assert.False(t, IsPromoted(key), key)
	}
}

func TestExtractionResult_JSON(t *testing.T) {
	data, err := json.Marshal(AnalyzeListingText(""))
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"category", "categoryLabel", "condition", "conditionLabel", "attributes", "missingFields", "warning"} {
		assert.Contains(t, fields, key)
	}
	assert.NotContains(t, fields, "price")
	assert.JSONEq(t, `[]`, string(fields["attributes"]))
}
