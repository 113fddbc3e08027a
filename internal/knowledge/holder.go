package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/cache"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/observability"
)

// ReloadEvent is published after a holder swaps in a new snapshot.
type ReloadEvent struct {
	Source  string    `json:"source"`
	Version string    `json:"version"`
	At      time.Time `json:"at"`
}

// Holder publishes immutable knowledge-base snapshots. Readers call Current
// once per request and keep that pointer; Reload swaps the pointer and never
// touches a snapshot already handed out.
type Holder struct {
	source   Source
	logger   *observability.Logger
	notifier cache.Notifier
	current  atomic.Pointer[Index]
	mu       sync.Mutex
	loadedAt atomic.Int64
}

// HolderOption configures a Holder.
type HolderOption func(*Holder)

// WithNotifier publishes a ReloadEvent on every successful reload.
func WithNotifier(n cache.Notifier) HolderOption {
	return func(h *Holder) {
		h.notifier = n
	}
}

// WithHolderLogger sets the logger.
func WithHolderLogger(logger *observability.Logger) HolderOption {
	return func(h *Holder) {
		h.logger = logger
	}
}

// NewHolder creates a holder over source. A nil source is valid: the holder
// then serves whatever Set stores, initially nothing.
func NewHolder(source Source, opts ...HolderOption) *Holder {
	h := &Holder{
		source: source,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Source returns the source the holder reloads from, nil if none.
func (h *Holder) Source() Source {
	return h.source
}

// Current returns the snapshot in effect, nil when none is loaded.
func (h *Holder) Current() *Index {
	return h.current.Load()
}

// LoadedAt returns when the current snapshot was stored.
func (h *Holder) LoadedAt() time.Time {
	ns := h.loadedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Set compiles kb and makes it current.
func (h *Holder) Set(kb *KnowledgeBase) *Index {
	idx := Compile(kb)
	h.current.Store(idx)
	h.loadedAt.Store(time.Now().UnixNano())
	return idx
}

// Reload loads the source and swaps the snapshot in. On failure the previous
// snapshot stays in effect.
func (h *Holder) Reload(ctx context.Context) (*Index, error) {
	if h.source == nil {
		return h.Current(), ErrNoSource
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	kb, err := h.source.Load(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Str("source", h.source.Name()).Msg("Knowledge reload failed, keeping previous snapshot")
		return h.Current(), fmt.Errorf("reload %s: %w", h.source.Name(), err)
	}

	prev := h.Current().Version()
	idx := h.Set(kb)
	stats := idx.Stats()
	h.logger.Info().
		Str("source", h.source.Name()).
		Str("version", stats.Version).
		Str("previous_version", prev).
		Int("makes", stats.Makes).
		Int("models", stats.Models).
		Int("synonyms", stats.Synonyms).
		Dur("duration", time.Since(start)).
		Msg("Knowledge base loaded")

	if h.notifier != nil && stats.Version != prev {
		event := ReloadEvent{Source: h.source.Name(), Version: stats.Version, At: time.Now().UTC()}
		if err := h.notifier.Publish(ctx, cache.KnowledgeReloadChannel, event); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to publish knowledge reload")
		}
	}
	return idx, nil
}

// Follow reloads whenever another process announces a newer version on the
// notifier, until ctx is done.
func (h *Holder) Follow(ctx context.Context, n cache.Notifier) error {
	msgs, unsubscribe, err := n.Subscribe(ctx, cache.KnowledgeReloadChannel)
	if err != nil {
		return fmt.Errorf("subscribe to knowledge reloads: %w", err)
	}
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-msgs:
				if !ok {
					return
				}
				var event ReloadEvent
				if err := json.Unmarshal(data, &event); err != nil {
					h.logger.Warn().Err(err).Msg("Ignoring malformed knowledge reload event")
					continue
				}
				if event.Version == h.Current().Version() {
					continue
				}
				if _, err := h.Reload(ctx); err != nil && !errors.Is(err, ErrNoSource) {
					h.logger.Warn().Err(err).Msg("Follow-up knowledge reload failed")
				}
			}
		}
	}()
	return nil
}

// Refresher reloads a holder on a fixed interval.
type Refresher struct {
	holder   *Holder
	interval time.Duration
	logger   *observability.Logger
}

// NewRefresher creates a refresher.
func NewRefresher(holder *Holder, interval time.Duration, logger *observability.Logger) *Refresher {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Refresher{holder: holder, interval: interval, logger: logger}
}

// Run reloads every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.holder.Reload(ctx); err != nil {
				r.logger.Debug().Err(err).Msg("Scheduled knowledge reload failed")
			}
		}
	}
}

// Watcher reloads a holder when its knowledge file changes on disk.
type Watcher struct {
	holder   *Holder
	path     string
	debounce time.Duration
	logger   *observability.Logger
	watcher  *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
	wg    sync.WaitGroup
}

// NewWatcher watches path. The parent directory is watched as well so
// editors that replace the file by rename are noticed.
func NewWatcher(holder *Holder, path string, debounce time.Duration, logger *observability.Logger) (*Watcher, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		holder:   holder,
		path:     filepath.Clean(path),
		debounce: debounce,
		logger:   logger,
		watcher:  fw,
	}, nil
}

// Start processes file events in the background until ctx is done or Close
// is called.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					w.trigger(ctx)
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn().Err(err).Str("path", w.path).Msg("Knowledge file watcher error")
			}
		}
	}()
}

// trigger schedules a reload after the debounce window, restarting the
// window on every event.
func (w *Watcher) trigger(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.logger.Info().Str("path", w.path).Msg("Knowledge file changed, reloading")
		if _, err := w.holder.Reload(ctx); err != nil {
			w.logger.Warn().Err(err).Str("path", w.path).Msg("Knowledge reload after file change failed")
		}
	})
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
