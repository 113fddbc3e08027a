package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/cache"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/observability"
)

// ErrNoSource is returned when no knowledge source is configured.
var ErrNoSource = errors.New("no knowledge source configured")

// Source loads knowledge-base snapshots.
type Source interface {
	// Name identifies the source in logs and cache keys.
	Name() string
	Load(ctx context.Context) (*KnowledgeBase, error)
}

// Format is a serialization format for knowledge-base files.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor picks the format from a file extension; YAML unless ".json".
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Decode parses a knowledge base.
func Decode(data []byte, format Format) (*KnowledgeBase, error) {
	var kb KnowledgeBase
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &kb)
	default:
		err = yaml.Unmarshal(data, &kb)
	}
	if err != nil {
		return nil, fmt.Errorf("decode knowledge base (%s): %w", format, err)
	}
	if err := kb.Validate(); err != nil {
		return nil, err
	}
	return &kb, nil
}

// Encode serializes a knowledge base.
func Encode(kb *KnowledgeBase, format Format) ([]byte, error) {
	if format == FormatJSON {
		return json.MarshalIndent(kb, "", "  ")
	}
	return yaml.Marshal(kb)
}

// Validate rejects knowledge bases that cannot resolve anything useful.
func (kb *KnowledgeBase) Validate() error {
	for name := range kb.MakeModelIndex {
		if strings.TrimSpace(name) == "" {
			return errors.New("knowledge base: empty make name")
		}
	}
	for phrase, tag := range kb.CategorySynonyms {
		if strings.TrimSpace(phrase) == "" || strings.TrimSpace(tag) == "" {
			return fmt.Errorf("knowledge base: empty category synonym %q -> %q", phrase, tag)
		}
	}
	return nil
}

// FileSource reads a YAML or JSON knowledge-base file.
type FileSource struct {
	path string
}

// NewFileSource creates a file source.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name returns the file path.
func (s *FileSource) Name() string {
	return "file:" + s.path
}

// Path returns the file path.
func (s *FileSource) Path() string {
	return s.path
}

// Load reads and decodes the file.
func (s *FileSource) Load(ctx context.Context) (*KnowledgeBase, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}
	return Decode(data, FormatFor(s.path))
}

// SnapshotLoader loads a full knowledge base from persistent storage.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context) (*KnowledgeBase, error)
}

// SQLSource reads the knowledge base from the database.
type SQLSource struct {
	repo SnapshotLoader
}

// NewSQLSource creates a database-backed source.
func NewSQLSource(repo SnapshotLoader) *SQLSource {
	return &SQLSource{repo: repo}
}

// Name identifies the source.
func (s *SQLSource) Name() string {
	return "database"
}

// Load reads the snapshot.
func (s *SQLSource) Load(ctx context.Context) (*KnowledgeBase, error) {
	kb, err := s.repo.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load knowledge snapshot: %w", err)
	}
	return kb, nil
}

// CachedSource keeps the last snapshot of another source in a cache so
// replicas and restarts skip the slower load.
type CachedSource struct {
	inner  Source
	cache  cache.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewCachedSource wraps inner.
func NewCachedSource(inner Source, c cache.Client, ttl time.Duration, logger *observability.Logger) *CachedSource {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &CachedSource{inner: inner, cache: c, ttl: ttl, logger: logger}
}

// Name returns the wrapped source name.
func (s *CachedSource) Name() string {
	return s.inner.Name()
}

// Load returns the cached snapshot, loading and caching it on a miss. Cache
// failures fall through to the wrapped source.
func (s *CachedSource) Load(ctx context.Context) (*KnowledgeBase, error) {
	key := cache.KnowledgeKey(s.inner.Name())

	var kb KnowledgeBase
	err := cache.GetJSON(ctx, s.cache, key, &kb)
	if err == nil {
		return &kb, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn().Err(err).Str("key", key).Msg("Knowledge cache read failed")
	}

	loaded, err := s.inner.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, s.cache, key, loaded, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Knowledge cache write failed")
	}
	return loaded, nil
}

// Invalidate drops the cached snapshot so the next Load reads the source.
func (s *CachedSource) Invalidate(ctx context.Context) error {
	return s.cache.Delete(ctx, cache.KnowledgeKey(s.inner.Name()))
}
