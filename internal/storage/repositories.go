package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/knowledge"
)

const metaVersionKey = "version"

// KnowledgeRepository stores the make/model index and category synonyms.
type KnowledgeRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewKnowledgeRepository creates a new knowledge repository.
func NewKnowledgeRepository(db *sql.DB) *KnowledgeRepository {
	return &KnowledgeRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// UpsertMake inserts a make if it is not stored yet and returns its ID.
func (r *KnowledgeRepository) UpsertMake(ctx context.Context, name string) (uuid.UUID, error) {
	return upsertMake(ctx, r.db, name, r.now())
}

// UpsertModel adds a model under a make, creating the make when needed.
func (r *KnowledgeRepository) UpsertModel(ctx context.Context, makeName, model string) error {
	makeID, err := upsertMake(ctx, r.db, makeName, r.now())
	if err != nil {
		return err
	}
	return upsertModel(ctx, r.db, makeID, model, r.now())
}

// UpsertSynonym maps a phrase to a category, replacing any previous mapping.
func (r *KnowledgeRepository) UpsertSynonym(ctx context.Context, phrase, category string) error {
	return upsertSynonym(ctx, r.db, phrase, category, r.now())
}

// DeleteMake removes a make and its models.
func (r *KnowledgeRepository) DeleteMake(ctx context.Context, name string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var id uuid.UUID
	err = tx.QueryRowContext(ctx, `SELECT id FROM vehicle_makes WHERE name = $1`, strings.TrimSpace(name)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vehicle_models WHERE make_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vehicle_makes WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SetVersion records the knowledge-base version label.
func (r *KnowledgeRepository) SetVersion(ctx context.Context, version string) error {
	return setVersion(ctx, r.db, version)
}

// ListMakes returns all makes ordered by name.
func (r *KnowledgeRepository) ListMakes(ctx context.Context) ([]*VehicleMake, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM vehicle_makes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var makes []*VehicleMake
	for rows.Next() {
		m := &VehicleMake{}
		if err := rows.Scan(&m.ID, &m.Name, &m.CreatedAt); err != nil {
			return nil, err
		}
		makes = append(makes, m)
	}
	return makes, rows.Err()
}

// LoadSnapshot reads the whole knowledge base. An empty database yields an
// empty, non-nil knowledge base.
func (r *KnowledgeRepository) LoadSnapshot(ctx context.Context) (*knowledge.KnowledgeBase, error) {
	kb := &knowledge.KnowledgeBase{
		MakeModelIndex:   map[string][]string{},
		CategorySynonyms: map[string]string{},
	}

	err := r.db.QueryRowContext(ctx, `SELECT value FROM knowledge_meta WHERE key = $1`, metaVersionKey).Scan(&kb.Version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read version: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT mk.name, COALESCE(md.name, '')
		FROM vehicle_makes mk
		LEFT JOIN vehicle_models md ON md.make_id = mk.id
		ORDER BY mk.name, md.name
	`)
	if err != nil {
		return nil, fmt.Errorf("read makes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var makeName, model string
		if err := rows.Scan(&makeName, &model); err != nil {
			return nil, err
		}
		models := kb.MakeModelIndex[makeName]
		if model != "" {
			models = append(models, model)
		}
		if models == nil {
			models = []string{}
		}
		kb.MakeModelIndex[makeName] = models
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	synRows, err := r.db.QueryContext(ctx, `SELECT phrase, category FROM category_synonyms`)
	if err != nil {
		return nil, fmt.Errorf("read synonyms: %w", err)
	}
	defer synRows.Close()
	for synRows.Next() {
		var phrase, category string
		if err := synRows.Scan(&phrase, &category); err != nil {
			return nil, err
		}
		kb.CategorySynonyms[phrase] = category
	}
	return kb, synRows.Err()
}

// ImportSnapshot writes a knowledge base in one transaction. With replace,
// existing makes, models and synonyms are removed first.
func (r *KnowledgeRepository) ImportSnapshot(ctx context.Context, kb *knowledge.KnowledgeBase, replace bool) error {
	if kb == nil {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if replace {
		for _, table := range []string{"vehicle_models", "vehicle_makes", "category_synonyms"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
	}

	now := r.now()
	makes := make([]string, 0, len(kb.MakeModelIndex))
	for name := range kb.MakeModelIndex {
		makes = append(makes, name)
	}
	sort.Strings(makes)
	for _, name := range makes {
		makeID, err := upsertMake(ctx, tx, name, now)
		if err != nil {
			return fmt.Errorf("import make %q: %w", name, err)
		}
		for _, model := range kb.MakeModelIndex[name] {
			if err := upsertModel(ctx, tx, makeID, model, now); err != nil {
				return fmt.Errorf("import model %q: %w", model, err)
			}
		}
	}
	for phrase, category := range kb.CategorySynonyms {
		if err := upsertSynonym(ctx, tx, phrase, category, now); err != nil {
			return fmt.Errorf("import synonym %q: %w", phrase, err)
		}
	}
	if kb.Version != "" {
		if err := setVersion(ctx, tx, kb.Version); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertMake(ctx context.Context, db DB, name string, now time.Time) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return uuid.Nil, errors.New("make name is empty")
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO vehicle_makes (id, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
	`, uuid.New(), name, now)
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = db.QueryRowContext(ctx, `SELECT id FROM vehicle_makes WHERE name = $1`, name).Scan(&id)
	return id, err
}

func upsertModel(ctx context.Context, db DB, makeID uuid.UUID, name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO vehicle_models (id, make_id, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (make_id, name) DO NOTHING
	`, uuid.New(), makeID, name, now)
	return err
}

func upsertSynonym(ctx context.Context, db DB, phrase, category string, now time.Time) error {
	phrase, category = strings.TrimSpace(phrase), strings.TrimSpace(category)
	if phrase == "" || category == "" {
		return errors.New("synonym phrase and category are required")
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO category_synonyms (phrase, category, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (phrase) DO UPDATE SET category = excluded.category, updated_at = excluded.updated_at
	`, phrase, category, now)
	return err
}

func setVersion(ctx context.Context, db DB, version string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO knowledge_meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, metaVersionKey, version)
	return err
}

// AnalysisRepository stores the analysis audit log.
type AnalysisRepository struct {
	db DB
}

// NewAnalysisRepository creates a new analysis repository.
func NewAnalysisRepository(db DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Record inserts an analysis record, assigning ID and CreatedAt when unset.
func (r *AnalysisRepository) Record(ctx context.Context, rec *AnalysisRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var price sql.NullFloat64
	if rec.Price != nil {
		price = sql.NullFloat64{Float64: *rec.Price, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analysis_records (
			id, text_hash, category, item_condition, make, model, price,
			missing_count, warning, knowledge_version, cached, latency_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		rec.ID, rec.TextHash, rec.Category, rec.Condition, rec.Make, rec.Model, price,
		rec.MissingCount, rec.Warning, rec.KnowledgeVersion, rec.Cached, rec.LatencyMs, rec.CreatedAt,
	)
	return err
}

const analysisColumns = `
	id, text_hash, category, item_condition, make, model, price,
	missing_count, warning, knowledge_version, cached, latency_ms, created_at
`

// GetByID retrieves one analysis record.
func (r *AnalysisRepository) GetByID(ctx context.Context, id uuid.UUID) (*AnalysisRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analysis_records WHERE id = $1`, id)
	rec, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListRecent returns the newest records first.
func (r *AnalysisRepository) ListRecent(ctx context.Context, limit int) ([]*AnalysisRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM analysis_records ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*AnalysisRecord
	for rows.Next() {
		rec, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CategoryCounts counts records per category created at or after since,
// most frequent first.
func (r *AnalysisRepository) CategoryCounts(ctx context.Context, since time.Time) ([]CategoryCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category, COUNT(*) AS n
		FROM analysis_records
		WHERE created_at >= $1
		GROUP BY category
		ORDER BY n DESC, category
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row rowScanner) (*AnalysisRecord, error) {
	rec := &AnalysisRecord{}
	var price sql.NullFloat64
	err := row.Scan(
		&rec.ID, &rec.TextHash, &rec.Category, &rec.Condition, &rec.Make, &rec.Model, &price,
		&rec.MissingCount, &rec.Warning, &rec.KnowledgeVersion, &rec.Cached, &rec.LatencyMs, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		p := price.Float64
		rec.Price = &p
	}
	return rec, nil
}
