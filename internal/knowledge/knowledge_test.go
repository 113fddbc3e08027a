package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/cache"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/patterns"
)

func testKB() *KnowledgeBase {
	return &KnowledgeBase{
		Version: "test-1",
		MakeModelIndex: map[string][]string{
			"Toyota":  {"Corolla", "Yaris", "RAV4", "Corolla Cross"},
			"Mazda":   {"3", "CX-5", "6"},
			"Hyundai": {"i20", "i30", "Tucson", "Ioniq"},
			"Škoda":   {"Octavia", "Fabia"},
		},
		CategorySynonyms: map[string]string{
			"ספה":          "furniture",
			"ארון":         "Furniture",
			"מכונת כביסה": "appliances",
			"קורקינט":      "Sports",
		},
	}
}

func TestCompile(t *testing.T) {
	idx := Compile(testKB())

	assert.Equal(t, "test-1", idx.Version())
	assert.Equal(t, Stats{Version: "test-1", Makes: 4, Models: 13, Synonyms: 4}, idx.Stats())
	assert.Equal(t, []string{"Hyundai", "Mazda", "Toyota", "Škoda"}, idx.Makes())
	assert.Equal(t, []string{"Corolla", "Yaris", "RAV4", "Corolla Cross"}, idx.Models("toyota"))
	assert.Nil(t, idx.Models("Lada"))

	syns := idx.Synonyms()
	require.Len(t, syns, 4)
	assert.Equal(t, patterns.Synonym{Phrase: "מכונת כביסה", Category: "Appliances"}, syns[0])
	for _, s := range syns {
		assert.NotEqual(t, patterns.Category("furniture"), s.Category)
	}
}

func TestCompile_NilAndFingerprint(t *testing.T) {
	idx := Compile(nil)
	assert.Nil(t, idx)
	assert.Equal(t, "", idx.Version())
	assert.Equal(t, Stats{}, idx.Stats())
	assert.Nil(t, idx.Synonyms())

	kb := testKB()
	kb.Version = ""
	first := Compile(kb).Version()
	assert.Regexp(t, `^sha256-[0-9a-f]{12}$`, first)
	assert.Equal(t, first, Compile(kb).Version())

	kb.MakeModelIndex["Kia"] = []string{"Picanto"}
	assert.NotEqual(t, first, Compile(kb).Version())
}

func TestResolveVehicle(t *testing.T) {
	r := NewResolver(Compile(testKB()), 0)

	tests := []struct {
		name     string
		make     string
		model    string
		tokens   []string
		expected Resolution
	}{
		{
			name:     "misspelled make corrected",
			make:     "Toyotta",
			model:    "Corolla",
			expected: Resolution{Make: "Toyota", Model: "Corolla", MakeResolved: true, ModelResolved: true, MakeScore: 1 - 1.0/7, ModelScore: 1},
		},
		{
			name:     "case and diacritics ignored",
			make:     "SKODA",
			model:    "octavia",
			expected: Resolution{Make: "Škoda", Model: "Octavia", MakeResolved: true, ModelResolved: true, MakeScore: 1, ModelScore: 1},
		},
		{
			name:     "punctuation folded",
			make:     "mazda",
			model:    "CX5",
			expected: Resolution{Make: "Mazda", Model: "CX-5", MakeResolved: true, ModelResolved: true, MakeScore: 1, ModelScore: 1},
		},
		{
			name:     "substring match",
			make:     "Hyundai Motors",
			model:    "Tucson",
			expected: Resolution{Make: "Hyundai", Model: "Tucson", MakeResolved: true, ModelResolved: true, MakeScore: 0.9, ModelScore: 1},
		},
		{
			name:     "unknown make passes through",
			make:     "Lada",
			model:    "Niva",
			expected: Resolution{Make: "Lada", Model: "Niva"},
		},
		{
			name:     "make found in tokens",
			tokens:   []string{"רכב", "mazda", "cx5", "2019"},
			expected: Resolution{Make: "Mazda", Model: "CX-5", MakeResolved: true, ModelResolved: true, MakeScore: 1, ModelScore: 1},
		},
		{
			name:     "multi-word model in tokens",
			make:     "Toyota",
			tokens:   []string{"toyota", "corolla", "cross", "2022"},
			expected: Resolution{Make: "Toyota", Model: "Corolla Cross", MakeResolved: true, ModelResolved: true, MakeScore: 1, ModelScore: 1},
		},
		{
			name:     "model identifies make",
			model:    "Yaris",
			expected: Resolution{Make: "Toyota", Model: "Yaris", MakeResolved: true, ModelResolved: true, MakeScore: 1, ModelScore: 1},
		},
		{
			name:     "unresolved model kept",
			make:     "Toyota",
			model:    "Hilux",
			expected: Resolution{Make: "Toyota", Model: "Hilux", MakeResolved: true, MakeScore: 1},
		},
		{
			name:     "nothing to resolve",
			expected: Resolution{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := r.ResolveVehicle(tc.make, tc.model, tc.tokens)
			assert.Equal(t, tc.expected.Make, got.Make)
			assert.Equal(t, tc.expected.Model, got.Model)
			assert.Equal(t, tc.expected.MakeResolved, got.MakeResolved)
			assert.Equal(t, tc.expected.ModelResolved, got.ModelResolved)
			assert.InDelta(t, tc.expected.MakeScore, got.MakeScore, 1e-9)
			assert.InDelta(t, tc.expected.ModelScore, got.ModelScore, 1e-9)
		})
	}
}

func TestResolveVehicle_NoKnowledgeBase(t *testing.T) {
	for _, r := range []*Resolver{nil, NewResolver(nil, 0), NewResolver(Compile(&KnowledgeBase{}), 0)} {
		got := r.ResolveVehicle("Toyotta", "Corola", []string{"toyota"})
		assert.Equal(t, Resolution{Make: "Toyotta", Model: "Corola"}, got)
	}
}

func TestResolveVehicle_Threshold(t *testing.T) {
	idx := Compile(testKB())

	// "Toyta" is one edit from "Toyota": similarity 1 - 1/6.
	assert.True(t, NewResolver(idx, 0.8).ResolveVehicle("Toyta", "", nil).MakeResolved)
	assert.False(t, NewResolver(idx, 0.9).ResolveVehicle("Toyta", "", nil).MakeResolved)
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b     string
		expected float64
	}{
		{"toyota", "toyota", 1},
		{"corolla", "corolla cross", 0.9},
		{"cx", "cx5", 1 - 1.0/3},
		{"טויוטה", "טויטה", 1 - 1.0/6},
		{"", "toyota", 0},
		{"bmw", "byd", 1 - 2.0/3},
	}

	for _, tc := range tests {
		t.Run(tc.a+"/"+tc.b, func(t *testing.T) {
			assert.InDelta(t, tc.expected, similarity(tc.a, tc.b), 1e-9)
		})
	}
}

func TestResolveCategory(t *testing.T) {
	r := NewResolver(Compile(testKB()), 0)

	tests := []struct {
		candidate string
		expected  string
	}{
		{"ספה", "Furniture"},
		{"ספה תלת מושבית", "Furniture"},
		{"cars", "Vehicles"},
		{"Real Estate", "RealEstate"},
		{`נדל"ן`, "RealEstate"},
		{"used cars", "Vehicles"},
		{"Vehicles", "Vehicles"},
		{"Collectibles", "Collectibles"},
		{"", ""},
	}

	for _, tc := range tests {
		t.Run(tc.candidate, func(t *testing.T) {
			assert.Equal(t, tc.expected, r.ResolveCategory(tc.candidate))
		})
	}

	assert.Equal(t, "Furniture", NewResolver(nil, 0).ResolveCategory("רהיטים"))
	assert.Equal(t, "ספה", NewResolver(nil, 0).ResolveCategory("ספה"))
}

func TestCanonicalCategory(t *testing.T) {
	assert.Equal(t, "Vehicles", CanonicalCategory(" רכבים "))
	assert.Equal(t, "Pets", CanonicalCategory("pets"))
	assert.Equal(t, "Board Games", CanonicalCategory("board games"))
	assert.Equal(t, "", CanonicalCategory("  "))
}

func TestCategoryAliases(t *testing.T) {
	a := DefaultCategoryAliases()

	tag, ok := a.Lookup("דירות למכירה בתל אביב")
	assert.True(t, ok)
	assert.Equal(t, "RealEstate", tag)
	_, ok = a.Lookup("")
	assert.False(t, ok)

	a.byKey["רכב"] = "Trucks"
	assert.Equal(t, "Trucks", NewResolver(nil, 0).WithAliases(a).ResolveCategory("רכב"))
	assert.Equal(t, "Vehicles", DefaultCategoryAliases().Canonical("רכב"))
	assert.Equal(t, "Vehicles", NewResolver(nil, 0).ResolveCategory("רכב"))
}

func TestDecodeEncode(t *testing.T) {
	yamlDoc := []byte(`
version: "2024-06"
make_model_index:
  Toyota: [Corolla, Yaris]
category_synonyms:
  ספה: Furniture
`)
	kb, err := Decode(yamlDoc, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "2024-06", kb.Version)
	assert.Equal(t, []string{"Corolla", "Yaris"}, kb.MakeModelIndex["Toyota"])

	data, err := Encode(kb, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"makeModelIndex"`)

	back, err := Decode(data, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, kb, back)

	_, err = Decode([]byte(`{"categorySynonyms": {"ספה": ""}}`), FormatJSON)
	assert.Error(t, err)
	_, err = Decode([]byte(`{not json`), FormatJSON)
	assert.Error(t, err)
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFor("kb.JSON"))
	assert.Equal(t, FormatYAML, FormatFor("kb.yaml"))
	assert.Equal(t, FormatYAML, FormatFor("kb"))
}

func writeKB(t *testing.T, path string, kb *KnowledgeBase) {
	t.Helper()
	data, err := Encode(kb, FormatFor(path))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	writeKB(t, path, testKB())

	kb, err := NewFileSource(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testKB(), kb)

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background())
	assert.Error(t, err)
}

type countingSource struct {
	kb    *KnowledgeBase
	err   error
	calls int
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Load(ctx context.Context) (*KnowledgeBase, error) {
	s.calls++
	return s.kb, s.err
}

func TestSQLSource(t *testing.T) {
	src := NewSQLSource(loaderFunc(func(ctx context.Context) (*KnowledgeBase, error) {
		return testKB(), nil
	}))
	kb, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-1", kb.Version)
	assert.Equal(t, "database", src.Name())
}

type loaderFunc func(ctx context.Context) (*KnowledgeBase, error)

func (f loaderFunc) LoadSnapshot(ctx context.Context) (*KnowledgeBase, error) { return f(ctx) }

func TestCachedSource(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemoryClient(10)
	defer mem.Close()

	inner := &countingSource{kb: testKB()}
	src := NewCachedSource(inner, mem, time.Minute, nil)

	first, err := src.Load(ctx)
	require.NoError(t, err)
	second, err := src.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first, second)

	require.NoError(t, src.Invalidate(ctx))
	_, err = src.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestHolder_Reload(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{kb: testKB()}
	h := NewHolder(src)
	assert.Nil(t, h.Current())
	assert.True(t, h.LoadedAt().IsZero())

	idx, err := h.Reload(ctx)
	require.NoError(t, err)
	assert.Same(t, idx, h.Current())
	assert.False(t, h.LoadedAt().IsZero())

	held := h.Current()
	src.err = errors.New("store down")
	src.kb = nil
	_, err = h.Reload(ctx)
	assert.Error(t, err)
	assert.Same(t, held, h.Current())
	assert.Equal(t, "test-1", held.Version())
}

func TestHolder_NoSource(t *testing.T) {
	h := NewHolder(nil)
	_, err := h.Reload(context.Background())
	assert.ErrorIs(t, err, ErrNoSource)

	h.Set(testKB())
	assert.Equal(t, "test-1", h.Current().Version())
}

func TestHolder_PublishAndFollow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := cache.NewMemoryClient(10)
	defer bus.Close()

	v2 := testKB()
	v2.Version = "test-2"
	follower := NewHolder(&countingSource{kb: v2})
	follower.Set(testKB())
	require.NoError(t, follower.Follow(ctx, bus))

	leader := NewHolder(&countingSource{kb: v2}, WithNotifier(bus))
	_, err := leader.Reload(ctx)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return follower.Current().Version() == "test-2"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "kb.yaml")
	writeKB(t, path, testKB())

	h := NewHolder(NewFileSource(path))
	_, err := h.Reload(ctx)
	require.NoError(t, err)

	w, err := NewWatcher(h, path, 20*time.Millisecond, nil)
	require.NoError(t, err)
	w.Start(ctx)
	defer w.Close()

	updated := testKB()
	updated.Version = "test-2"
	writeKB(t, path, updated)

	assert.Eventually(t, func() bool {
		return h.Current().Version() == "test-2"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRefresher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &countingSource{kb: testKB()}
	h := NewHolder(src)

	done := make(chan struct{})
	go func() {
		NewRefresher(h, 10*time.Millisecond, nil).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return h.Current() != nil }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
