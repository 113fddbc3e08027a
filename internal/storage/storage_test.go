package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/knowledge"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, DriverSQLite, ":memory:", Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = NewMigrator(db, DriverSQLite).Up(ctx)
	require.NoError(t, err)
	return db
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "x", Options{})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestMigrator(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, ":memory:", Options{})
	require.NoError(t, err)
	defer db.Close()

	m := NewMigrator(db, DriverSQLite)

	status, err := m.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.UpToDate)
	assert.Equal(t, []string{"0001_init"}, status.Pending)

	ran, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init"}, ran)

	ran, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Empty(t, ran)

	status, err = m.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.UpToDate)
	assert.Equal(t, 1, status.Total)
}

func TestMigrator_FileFor(t *testing.T) {
	assert.Equal(t, "migrations/0001_init_sqlite.sql", NewMigrator(nil, DriverSQLite).fileFor("0001_init"))
	assert.Equal(t, "migrations/0001_init.sql", NewMigrator(nil, DriverPostgres).fileFor("0001_init"))
}

func TestKnowledgeRepository_ImportAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewKnowledgeRepository(openTestDB(t))

	kb := &knowledge.KnowledgeBase{
		Version: "kb-1",
		MakeModelIndex: map[string][]string{
			"Toyota": {"Corolla", "Yaris"},
			"Tesla":  {},
		},
		CategorySynonyms: map[string]string{"ספה": "Furniture"},
	}
	require.NoError(t, repo.ImportSnapshot(ctx, kb, false))

	got, err := repo.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kb-1", got.Version)
	assert.Equal(t, []string{"Corolla", "Yaris"}, got.MakeModelIndex["Toyota"])
	assert.Equal(t, []string{}, got.MakeModelIndex["Tesla"])
	assert.Equal(t, "Furniture", got.CategorySynonyms["ספה"])

	// Importing the same snapshot again is a no-op.
	require.NoError(t, repo.ImportSnapshot(ctx, kb, false))
	again, err := repo.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	require.NoError(t, repo.ImportSnapshot(ctx, &knowledge.KnowledgeBase{
		MakeModelIndex: map[string][]string{"Mazda": {"3"}},
	}, true))
	replaced, err := repo.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"Mazda": {"3"}}, replaced.MakeModelIndex)
	assert.Empty(t, replaced.CategorySynonyms)
	assert.Equal(t, "kb-1", replaced.Version)
}

func TestKnowledgeRepository_Upserts(t *testing.T) {
	ctx := context.Background()
	repo := NewKnowledgeRepository(openTestDB(t))

	id1, err := repo.UpsertMake(ctx, "Kia")
	require.NoError(t, err)
	id2, err := repo.UpsertMake(ctx, " Kia ")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	require.NoError(t, repo.UpsertModel(ctx, "Kia", "Picanto"))
	require.NoError(t, repo.UpsertModel(ctx, "Kia", "Picanto"))
	require.NoError(t, repo.UpsertModel(ctx, "Hyundai", "i20"))

	require.NoError(t, repo.UpsertSynonym(ctx, "ספה", "General"))
	require.NoError(t, repo.UpsertSynonym(ctx, "ספה", "Furniture"))
	assert.Error(t, repo.UpsertSynonym(ctx, "", "Furniture"))

	_, err = repo.UpsertMake(ctx, "  ")
	assert.Error(t, err)

	makes, err := repo.ListMakes(ctx)
	require.NoError(t, err)
	require.Len(t, makes, 2)
	assert.Equal(t, "Hyundai", makes[0].Name)

	kb, err := repo.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Picanto"}, kb.MakeModelIndex["Kia"])
	assert.Equal(t, "Furniture", kb.CategorySynonyms["ספה"])
	assert.Empty(t, kb.Version)

	require.NoError(t, repo.DeleteMake(ctx, "Kia"))
	assert.ErrorIs(t, repo.DeleteMake(ctx, "Kia"), ErrNotFound)

	kb, err = repo.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.NotContains(t, kb.MakeModelIndex, "Kia")
}

func TestKnowledgeRepository_FeedsSQLSource(t *testing.T) {
	ctx := context.Background()
	repo := NewKnowledgeRepository(openTestDB(t))
	require.NoError(t, repo.UpsertModel(ctx, "Toyota", "Corolla"))
	require.NoError(t, repo.SetVersion(ctx, "db-7"))

	kb, err := knowledge.NewSQLSource(repo).Load(ctx)
	require.NoError(t, err)

	idx := knowledge.Compile(kb)
	assert.Equal(t, "db-7", idx.Version())
	assert.Equal(t, []string{"Corolla"}, idx.Models("toyota"))
}

func TestAnalysisRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAnalysisRepository(openTestDB(t))

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	price := 45000.0
	records := []*AnalysisRecord{
		{TextHash: "a", Category: "Vehicles", Condition: "used", Make: "Toyota", Price: &price, CreatedAt: base},
		{TextHash: "b", Category: "General", Condition: "used", MissingCount: 2, Warning: "no contact info found", CreatedAt: base.Add(time.Minute)},
		{TextHash: "c", Category: "Vehicles", Condition: "new", Cached: true, LatencyMs: 3, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, rec := range records {
		require.NoError(t, repo.Record(ctx, rec))
		assert.NotEqual(t, uuid.Nil, rec.ID)
	}

	got, err := repo.GetByID(ctx, records[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Toyota", got.Make)
	require.NotNil(t, got.Price)
	assert.Equal(t, 45000.0, *got.Price)
	assert.True(t, got.CreatedAt.Equal(base))

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].TextHash)
	assert.True(t, recent[0].Cached)
	assert.Nil(t, recent[0].Price)
	assert.Equal(t, "b", recent[1].TextHash)
	assert.Equal(t, "no contact info found", recent[1].Warning)

	counts, err := repo.CategoryCounts(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []CategoryCount{{Category: "Vehicles", Count: 2}, {Category: "General", Count: 1}}, counts)
}
