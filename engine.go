package modelsync

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jward/modelsync/internal/cache"
	"github.com/jward/modelsync/internal/filestore"
	"github.com/jward/modelsync/internal/graph"
	"github.com/jward/modelsync/internal/provenance"
	"github.com/jward/modelsync/internal/reconcile"
	"github.com/jward/modelsync/internal/rules"
	"github.com/jward/modelsync/internal/scheduler"
	"github.com/jward/modelsync/internal/serializer"
	"github.com/jward/modelsync/internal/watch"
)

// ErrNotLoaded is returned by operations that need a loaded scope.
var ErrNotLoaded = errors.New("modelsync: scope not loaded")

// Engine keeps the entity partitions of one scope in step with its
// configuration files. It is safe for concurrent use: writers are
// serialized and readers get immutable snapshots.
type Engine struct {
	root   string
	fs     filestore.FS
	layout serializer.Layout
	global bool

	logger    *slog.Logger
	reporter  serializer.ErrorReporter
	unloaded  *rules.Predicate
	cachePath string
	scheduler *scheduler.Scheduler
	workers   int
	tracer    trace.Tracer
	meter     metric.Meter
	metrics   *instruments

	mu     sync.Mutex
	store  *filestore.Store
	cache  *cache.Cache
	rec    *reconcile.Reconciler
	state  reconcile.State
	dirty  map[graph.EntitySource]bool
	loaded bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer sets the tracer for load, reload and save spans. The default
// is a no-op tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithMeter sets the meter the engine's counters are created from. The
// default is a no-op meter.
func WithMeter(m metric.Meter) Option {
	return func(e *Engine) { e.meter = m }
}

// WithErrorReporter sets the collaborator malformed file content is
// reported to. Reports never stop a load.
func WithErrorReporter(r serializer.ErrorReporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithUnloaded sets the predicate that keeps modules in the unloaded
// partition.
func WithUnloaded(p *rules.Predicate) Option {
	return func(e *Engine) { e.unloaded = p }
}

// WithCache enables the SQLite snapshot cache at path.
func WithCache(path string) Option {
	return func(e *Engine) { e.cachePath = path }
}

// WithScheduler shares a scheduler between a project engine and a global
// engine. Project loads register with it; LoadDeferred waits on it.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

// WithExternalStorage enables the external/ subtree of the configuration
// directory.
func WithExternalStorage(enabled bool) Option {
	return func(e *Engine) { e.layout.ExternalStorage = enabled }
}

// WithConfigDir sets the configuration directory relative to the root.
func WithConfigDir(dir string) Option {
	return func(e *Engine) { e.layout.ConfigDir = filepath.ToSlash(dir) }
}

// WithFS replaces the file system rooted at the engine root, for example
// with filestore.NewMemFS in tests.
func WithFS(fsys filestore.FS) Option {
	return func(e *Engine) { e.fs = fsys }
}

// WithWorkers bounds the number of files parsed concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// New returns the engine of the project rooted at root. Nothing is read
// until Load.
func New(root string, opts ...Option) (*Engine, error) {
	return newEngine(root, false, ".idea", opts)
}

// NewGlobal returns the engine of the shared SDK and application library
// tables stored directly in dir.
func NewGlobal(dir string, opts ...Option) (*Engine, error) {
	return newEngine(dir, true, "", opts)
}

func newEngine(root string, global bool, configDir string, opts []Option) (*Engine, error) {
	e := &Engine{
		root:     root,
		layout:   serializer.Layout{ConfigDir: configDir},
		global:   global,
		logger:   slog.Default(),
		reporter: serializer.NoopReporter(),
		unloaded: rules.Static(),
		tracer:   defaultTracer(),
		meter:    defaultMeter(),
		dirty:    make(map[graph.EntitySource]bool),
		state:    reconcile.EmptyState(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fs == nil {
		e.fs = filestore.NewOSFS(root)
	}
	e.store = filestore.NewStore(e.fs, e.logger)

	m, err := newInstruments(e.meter)
	if err != nil {
		return nil, fmt.Errorf("modelsync: %w", err)
	}
	e.metrics = m

	if e.cachePath != "" {
		if err := os.MkdirAll(filepath.Dir(e.cachePath), 0o755); err != nil {
			return nil, fmt.Errorf("modelsync: create cache dir: %w", err)
		}
		c, err := cache.Open(e.cachePath)
		if err != nil {
			return nil, fmt.Errorf("modelsync: %w", err)
		}
		e.cache = c
	}
	e.rec = e.newReconciler(provenance.New())
	return e, nil
}

// Close releases the cache database.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cache == nil {
		return nil
	}
	err := e.cache.Close()
	e.cache = nil
	return err
}

func (e *Engine) newReconciler(index *provenance.Index) *reconcile.Reconciler {
	var reg *serializer.Registry
	if e.global {
		reg = serializer.NewGlobalRegistry(e.layout, index)
	} else {
		reg = serializer.NewRegistry(e.layout, index)
	}
	opts := []reconcile.Option{
		reconcile.WithLogger(e.logger),
		reconcile.WithReporter(e.reporter),
		reconcile.WithUnloaded(e.isUnloaded),
	}
	if e.workers > 0 {
		opts = append(opts, reconcile.WithWorkers(e.workers))
	}
	return reconcile.New(reg, e.store, opts...)
}

// isUnloaded is consulted by the reconciler while e.mu is held.
func (e *Engine) isUnloaded(name string) bool {
	v, err := e.unloaded.Unloaded(context.Background(), name)
	if err != nil {
		e.logger.Warn("unloaded rule failed", "component", "engine", "module", name, "error", err)
		return false
	}
	return v
}

// Root returns the directory the engine's files are relative to.
func (e *Engine) Root() string { return e.root }

// State returns the current partitions.
func (e *Engine) State() reconcile.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Files returns the files of the live serializers.
func (e *Engine) Files() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Registry().Files()
}

// Pending returns the entity sources changed by Update since the last save,
// sorted.
func (e *Engine) Pending() []graph.EntitySource {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending()
}

func (e *Engine) pending() []graph.EntitySource {
	out := make([]graph.EntitySource, 0, len(e.dirty))
	for src := range e.dirty {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Load reads the whole scope. With a cache whose fingerprint matches the
// files on disk, the partitions are restored without parsing.
func (e *Engine) Load(ctx context.Context) (err error) {
	ctx, span := e.startSpan(ctx, "modelsync.load")
	defer func() { endSpan(span, err) }()

	if e.scheduler != nil && !e.global {
		done := make(chan struct{})
		e.scheduler.RegisterInFlightJob(done)
		defer close(done)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	batch := uuid.New()
	logger := e.logger.With("component", "engine", "batch", batch.String())
	start := time.Now()

	rec := e.newReconciler(provenance.New())
	var key string
	if e.cache != nil {
		key, err = e.cacheKey(rec)
		if err != nil {
			return fmt.Errorf("modelsync: load: %w", err)
		}
		entry, ok, cerr := e.cache.Load(key)
		switch {
		case cerr != nil:
			logger.Warn("cache unreadable, parsing", "error", cerr)
		case ok:
			rec = e.newReconciler(entry.Index())
			rec.Attach()
			rec.RestoreShadowed(entry.Shadowed)
			e.install(rec, entry.State)
			span.SetAttributes(attribute.Bool("modelsync.cache_hit", true))
			logger.Info("restored project model from cache", "count", entry.State.Main.Len(), "duration", time.Since(start))
			return nil
		}
	}

	st, stats, err := rec.Load(ctx)
	if err != nil {
		return fmt.Errorf("modelsync: load: %w", err)
	}
	e.install(rec, st)
	span.SetAttributes(
		attribute.Bool("modelsync.cache_hit", false),
		attribute.Int("modelsync.files_parsed", stats.Parsed),
		attribute.Int("modelsync.entities", st.Main.Len()),
	)
	logger.Debug("load finished", "count", stats.Parsed, "duration", time.Since(start))
	if e.cache != nil {
		e.saveCache(key)
	}
	return nil
}

// LoadDeferred runs Load once delay has elapsed and every project load
// registered with the scheduler by then has finished.
func (e *Engine) LoadDeferred(ctx context.Context, delay time.Duration) error {
	s := e.scheduler
	if s == nil {
		s = scheduler.New(scheduler.WithLogger(e.logger))
	}
	return s.ScheduleDeferredLoad(ctx, delay, e.Load)
}

func (e *Engine) install(rec *reconcile.Reconciler, st reconcile.State) {
	e.rec = rec
	e.state = st
	clear(e.dirty)
	e.loaded = true
}

// cacheKey combines the fingerprint of the files with everything else a
// load depends on.
func (e *Engine) cacheKey(rec *reconcile.Reconciler) (string, error) {
	fp, err := rec.Fingerprint()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	fmt.Fprintf(h, "files:%s\n", fp)
	fmt.Fprintf(h, "global:%t external:%t dir:%s\n", e.global, e.layout.ExternalStorage, e.layout.ConfigDir)
	fmt.Fprintf(h, "unloaded:%s\n", strings.Join(e.unloaded.Names(), ","))
	fmt.Fprintf(h, "rule:%s\n", e.unloaded.Expression())
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// refreshCache stores the partitions when they match the disk.
func (e *Engine) refreshCache() {
	if e.cache == nil || len(e.dirty) > 0 {
		return
	}
	key, err := e.cacheKey(e.rec)
	if err != nil {
		e.logger.Warn("cache fingerprint failed", "component", "engine", "error", err)
		return
	}
	e.saveCache(key)
}

func (e *Engine) saveCache(key string) {
	entry := cache.Entry{
		State:    e.state,
		Files:    e.rec.Registry().Index().Entries(),
		Shadowed: e.rec.Shadowed(),
	}
	if err := e.cache.Save(key, entry); err != nil {
		e.logger.Warn("cache write failed", "component", "engine", "error", err)
	}
}

// Reload applies a change made to the files outside the process and
// returns the entity sources whose content changed. Pending edits of those
// sources are dropped in favour of the disk.
func (e *Engine) Reload(ctx context.Context, change reconcile.Change) (affected []graph.EntitySource, err error) {
	ctx, span := e.startSpan(ctx, "modelsync.reload")
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return nil, ErrNotLoaded
	}
	if change.Empty() {
		return nil, nil
	}
	span.SetAttributes(attribute.Int("modelsync.files_changed", len(change.Files())))

	res, err := e.rec.ReloadFromChangedFiles(ctx, e.state, change)
	if err != nil {
		return nil, fmt.Errorf("modelsync: reload: %w", err)
	}
	e.state = res.Freeze()
	for _, src := range res.Affected {
		delete(e.dirty, src)
	}
	e.metrics.reloads.Add(ctx, 1)
	e.metrics.replaced.Add(ctx, int64(res.Stats.Replaced))
	span.SetAttributes(attribute.Int("modelsync.sources_affected", len(res.Affected)))
	e.logger.Info("reloaded", "component", "engine", "count", len(change.Files()), "affected", len(res.Affected))
	e.refreshCache()
	return res.Affected, nil
}

// Watch reloads the scope on every quiet period of file events under the
// root until ctx ends. The root must be a directory on the local disk.
func (e *Engine) Watch(ctx context.Context, opts ...watch.Option) error {
	opts = append([]watch.Option{
		watch.WithLogger(e.logger),
		watch.WithFilter(e.relevant),
	}, opts...)
	w, err := watch.New(e.root, opts...)
	if err != nil {
		return fmt.Errorf("modelsync: watch: %w", err)
	}
	defer w.Close()
	return w.Run(ctx, func(ctx context.Context, c reconcile.Change) error {
		_, err := e.Reload(ctx, c)
		return err
	})
}

func (e *Engine) relevant(rel string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Registry().Relevant(rel)
}
