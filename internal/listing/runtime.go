package listing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/advisor"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/cache"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/config"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/knowledge"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/observability"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/patterns"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/storage"
	"github.com/spherical-ai/spherical/libs/listing-parser/pkg/magicparse"
)

// Runtime is a fully wired service with its backing stores.
type Runtime struct {
	Config    *config.Config
	Logger    *observability.Logger
	DB        *sql.DB
	Cache     cache.Client
	Knowledge *storage.KnowledgeRepository
	Analyses  *storage.AnalysisRepository
	Holder    *knowledge.Holder
	Service   *Service

	notifier cache.Notifier
	watcher  *knowledge.Watcher
	closers  []func() error
}

// Build opens the database and cache named by cfg, loads the knowledge base
// and assembles the service. Close releases everything Build opened.
func Build(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Runtime, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	rt := &Runtime{Config: cfg, Logger: logger}

	if err := rt.openDatabase(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.openCache(); err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.loadKnowledge(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	analyzer := magicparse.New(AnalyzerOptions(cfg.Extraction, logger)...)
	opts := []Option{
		WithWorkers(cfg.Server.BatchWorkers),
		WithLogger(logger.WithOperation("listing")),
	}
	if rt.Holder != nil {
		opts = append(opts, WithHolder(rt.Holder))
	}
	if rt.Cache != nil && cfg.Cache.TTL > 0 {
		opts = append(opts, WithCache(rt.Cache, cfg.Cache.TTL))
	}
	if rt.Analyses != nil && cfg.Database.RecordAnalyses {
		opts = append(opts, WithRecorder(rt.Analyses))
	}
	rt.Service = NewService(analyzer, opts...)
	return rt, nil
}

func (rt *Runtime) openDatabase(ctx context.Context) error {
	cfg := rt.Config.Database
	if cfg.Driver == "none" {
		return nil
	}

	db, err := storage.Open(ctx, cfg.Driver, rt.Config.DatabaseDSN(), storage.Options{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	rt.DB = db
	rt.closers = append(rt.closers, db.Close)

	if cfg.AutoMigrate {
		ran, err := storage.NewMigrator(db, cfg.Driver).Up(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if len(ran) > 0 {
			rt.Logger.Info().Strs("migrations", ran).Msg("Applied database migrations")
		}
	}

	rt.Knowledge = storage.NewKnowledgeRepository(db)
	rt.Analyses = storage.NewAnalysisRepository(db)
	return nil
}

func (rt *Runtime) openCache() error {
	cfg := rt.Config.Cache
	switch cfg.Driver {
	case "redis":
		var (
			rc  *cache.RedisClient
			err error
		)
		if cfg.Redis.URL != "" {
			rc, err = cache.NewRedisClientFromURL(cfg.Redis.URL, cfg.Redis.Prefix)
		} else {
			rc, err = cache.NewRedisClient(cache.RedisConfig{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				PoolSize: cfg.Redis.PoolSize,
				Prefix:   cfg.Redis.Prefix,
			})
		}
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		rt.Cache, rt.notifier = rc, rc
		rt.closers = append(rt.closers, rc.Close)
	case "memory":
		mc := cache.NewMemoryClient(cfg.MaxEntries)
		rt.Cache, rt.notifier = mc, mc
		rt.closers = append(rt.closers, mc.Close)
	}
	return nil
}

func (rt *Runtime) loadKnowledge(ctx context.Context) error {
	cfg := rt.Config.Knowledge

	var source knowledge.Source
	switch cfg.Source {
	case "file":
		source = knowledge.NewFileSource(cfg.Path)
	case "database":
		if rt.Knowledge == nil {
			return errors.New("knowledge source database requires a database")
		}
		source = knowledge.NewSQLSource(rt.Knowledge)
		if rt.Cache != nil && cfg.CacheTTL > 0 {
			source = knowledge.NewCachedSource(source, rt.Cache, cfg.CacheTTL, rt.Logger)
		}
	default:
		return nil
	}

	opts := []knowledge.HolderOption{knowledge.WithHolderLogger(rt.Logger.WithOperation("knowledge"))}
	if rt.notifier != nil {
		opts = append(opts, knowledge.WithNotifier(rt.notifier))
	}
	rt.Holder = knowledge.NewHolder(source, opts...)

	if _, err := rt.Holder.Reload(ctx); err != nil {
		return fmt.Errorf("load knowledge base: %w", err)
	}
	return nil
}

// Start launches knowledge-base reloading: file watching, periodic refresh
// and following reloads announced by other processes, as configured. It
// returns immediately; everything stops when ctx is done.
func (rt *Runtime) Start(ctx context.Context) error {
	if rt.Holder == nil {
		return nil
	}
	cfg := rt.Config.Knowledge

	if cfg.Watch {
		w, err := knowledge.NewWatcher(rt.Holder, cfg.Path, cfg.WatchDebounce, rt.Logger)
		if err != nil {
			return err
		}
		w.Start(ctx)
		rt.watcher = w
		rt.closers = append([]func() error{w.Close}, rt.closers...)
	}
	if cfg.RefreshInterval > 0 {
		go knowledge.NewRefresher(rt.Holder, cfg.RefreshInterval, rt.Logger).Run(ctx)
	}
	if cfg.Follow && rt.notifier != nil {
		if err := rt.Holder.Follow(ctx, rt.notifier); err != nil {
			return err
		}
	}
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports the state of each backing component.
func (rt *Runtime) Health(ctx context.Context) magicparse.HealthResponse {
	h := magicparse.HealthResponse{Status: "healthy", Database: "disabled", Cache: "disabled", Knowledge: "none"}

	if rt.DB != nil {
		h.Database = "healthy"
		if err := rt.DB.PingContext(ctx); err != nil {
			h.Database = "unhealthy"
			h.Status = "degraded"
		}
	}
	if rt.Cache != nil {
		h.Cache = "healthy"
		if p, ok := rt.Cache.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				h.Cache = "unhealthy"
				h.Status = "degraded"
			}
		}
	}
	if v := rt.Service.Knowledge().Version(); v != "" {
		h.Knowledge = v
	}
	return h
}

// Close releases the stores in reverse order of opening.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// AnalyzerOptions translates the extraction config into analyzer options.
func AnalyzerOptions(cfg config.ExtractionConfig, logger *observability.Logger) []magicparse.Option {
	opts := []magicparse.Option{
		magicparse.WithMinSimilarity(cfg.MinSimilarity),
		magicparse.WithMaxInputRunes(cfg.MaxInputRunes),
	}
	if logger != nil {
		opts = append(opts, magicparse.WithLogger(logger.Zerolog()))
	}

	if len(cfg.Weights) > 0 || cfg.ContextBonus > 0 {
		w := patterns.Weights{Base: map[patterns.Key]float64{}, Context: cfg.ContextBonus}
		for key, v := range cfg.Weights {
			w.Base[patterns.Key(key)] = v
		}
		opts = append(opts, magicparse.WithWeights(w))
	}

	if len(cfg.Checklists) > 0 || len(cfg.PriceBands) > 0 {
		rules := advisor.Rules{
			Checklists: map[patterns.Category][]string{},
			PriceBands: map[patterns.Category]advisor.Band{},
		}
		for cat, fields := range cfg.Checklists {
			rules.Checklists[patterns.Category(cat)] = fields
		}
		for cat, band := range cfg.PriceBands {
			rules.PriceBands[patterns.Category(cat)] = advisor.Band{Min: band.Min, Max: band.Max}
		}
		opts = append(opts, magicparse.WithRules(rules))
	}

	if len(cfg.CategoryLabels) > 0 || len(cfg.ConditionLabels) > 0 {
		opts = append(opts, magicparse.WithVocabulary(
			magicparse.DefaultVocabulary().With(cfg.CategoryLabels, cfg.ConditionLabels)))
	}
	return opts
}
