// Package listing serves listing analysis on top of the magicparse engine:
// knowledge-base snapshots, a result cache, the analysis audit log and
// batch processing.
package listing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/cache"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/knowledge"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/linktext"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/observability"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/storage"
	"github.com/spherical-ai/spherical/libs/listing-parser/pkg/magicparse"
)

// ErrEmptyRequest is returned when a request carries neither text nor HTML.
var ErrEmptyRequest = errors.New("text or html is required")

// Recorder persists analysis audit records.
type Recorder interface {
	Record(ctx context.Context, rec *storage.AnalysisRecord) error
}

// Service analyzes listings. It is safe for concurrent use.
type Service struct {
	analyzer *magicparse.Analyzer
	holder   *knowledge.Holder
	cache    cache.Client
	cacheTTL time.Duration
	recorder Recorder
	workers  int
	logger   *observability.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHolder serves knowledge-base snapshots from holder instead of the
// analyzer's own knowledge base.
func WithHolder(h *knowledge.Holder) Option {
	return func(s *Service) {
		s.holder = h
	}
}

// WithCache caches results per text and knowledge-base version.
func WithCache(c cache.Client, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithRecorder writes an audit record per analysis.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithWorkers bounds batch concurrency.
func WithWorkers(n int) Option {
	return func(s *Service) {
		s.workers = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a listing service around analyzer.
func NewService(analyzer *magicparse.Analyzer, opts ...Option) *Service {
	s := &Service{
		analyzer: analyzer,
		workers:  4,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers <= 0 {
		s.workers = 1
	}
	return s
}

// Holder returns the knowledge holder, nil when the service has none.
func (s *Service) Holder() *knowledge.Holder {
	return s.holder
}

// Knowledge returns the snapshot new requests are analyzed against.
func (s *Service) Knowledge() *knowledge.Index {
	if s.holder != nil {
		return s.holder.Current()
	}
	return s.analyzer.KnowledgeIndex()
}

// KnowledgeInfo describes the knowledge base in effect.
func (s *Service) KnowledgeInfo() magicparse.KnowledgeInfo {
	idx := s.Knowledge()
	stats := idx.Stats()
	info := magicparse.KnowledgeInfo{
		Version:  stats.Version,
		Makes:    stats.Makes,
		Models:   stats.Models,
		Synonyms: stats.Synonyms,
	}
	if s.holder != nil {
		if src := s.holder.Source(); src != nil {
			info.Source = src.Name()
		}
		if at := s.holder.LoadedAt(); !at.IsZero() {
			info.LoadedAt = &at
		}
	} else if idx != nil {
		info.Source = "static"
	}
	return info
}

type invalidator interface {
	Invalidate(ctx context.Context) error
}

// ReloadKnowledge reloads the knowledge base from its source, bypassing any
// cached snapshot.
func (s *Service) ReloadKnowledge(ctx context.Context) (magicparse.KnowledgeInfo, error) {
	if s.holder == nil {
		return s.KnowledgeInfo(), knowledge.ErrNoSource
	}
	if inv, ok := s.holder.Source().(invalidator); ok {
		if err := inv.Invalidate(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to invalidate cached knowledge snapshot")
		}
	}
	_, err := s.holder.Reload(ctx)
	return s.KnowledgeInfo(), err
}

// Analyze analyzes one listing.
func (s *Service) Analyze(ctx context.Context, req magicparse.AnalyzeRequest) (*magicparse.AnalyzeResponse, error) {
	return s.analyze(ctx, req, s.snapshotFor(req))
}

func (s *Service) snapshotFor(req magicparse.AnalyzeRequest) *knowledge.Index {
	if req.UseKnowledgeBase != nil && !*req.UseKnowledgeBase {
		return nil
	}
	return s.Knowledge()
}

func (s *Service) analyze(ctx context.Context, req magicparse.AnalyzeRequest, idx *knowledge.Index) (*magicparse.AnalyzeResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	text, err := ComposeText(req)
	if err != nil {
		return nil, err
	}

	hash := HashText(text)
	key := cache.AnalysisKey(idx.Version(), hash)
	resp := &magicparse.AnalyzeResponse{ID: uuid.New().String()}

	if s.cache != nil {
		err := cache.GetJSON(ctx, s.cache, key, &resp.Result)
		switch {
		case err == nil:
			resp.Cached = true
		case !errors.Is(err, cache.ErrCacheMiss):
			s.logger.Warn().Err(err).Str("key", key).Msg("Analysis cache read failed")
		}
	}

	if !resp.Cached {
		resp.Result = s.analyzer.AnalyzeWithKnowledge(text, idx)
		if s.cache != nil {
			if err := cache.SetJSON(ctx, s.cache, key, resp.Result, s.cacheTTL); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("Analysis cache write failed")
			}
		}
	}
	resp.LatencyMs = time.Since(start).Milliseconds()

	s.record(ctx, resp, hash)
	return resp, nil
}

func (s *Service) record(ctx context.Context, resp *magicparse.AnalyzeResponse, hash string) {
	if s.recorder == nil {
		return
	}
	id, _ := uuid.Parse(resp.ID)
	r := resp.Result
	rec := &storage.AnalysisRecord{
		ID:               id,
		TextHash:         hash,
		Category:         r.Category,
		Condition:        r.Condition,
		Make:             r.Make,
		Model:            r.Model,
		Price:            r.Price,
		MissingCount:     len(r.MissingFields),
		Warning:          r.Warning,
		KnowledgeVersion: r.KnowledgeVersion,
		Cached:           resp.Cached,
		LatencyMs:        resp.LatencyMs,
	}
	if err := s.recorder.Record(ctx, rec); err != nil {
		s.logger.Warn().Err(err).Str("analysis_id", resp.ID).Msg("Failed to record analysis")
	}
}

// ComposeText turns a request into the text handed to the analyzer. HTML is
// converted to plain text and the title, if any, becomes the first line.
func ComposeText(req magicparse.AnalyzeRequest) (string, error) {
	if strings.TrimSpace(req.Text) == "" && strings.TrimSpace(req.HTML) == "" && strings.TrimSpace(req.Title) == "" {
		return "", ErrEmptyRequest
	}

	if req.HTML != "" {
		text, err := linktext.Compose(req.Title, req.HTML)
		if err != nil {
			return "", fmt.Errorf("convert html: %w", err)
		}
		if req.Text != "" {
			text += "\n" + req.Text
		}
		return text, nil
	}

	title := strings.TrimSpace(req.Title)
	if title == "" || strings.HasPrefix(strings.TrimSpace(req.Text), title) {
		return req.Text, nil
	}
	if req.Text == "" {
		return title, nil
	}
	return title + "\n" + req.Text, nil
}

// HashText returns the hex SHA-256 of text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
