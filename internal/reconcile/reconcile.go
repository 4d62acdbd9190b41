// Package reconcile keeps the entity partitions and the configuration files
// in step. A load parses every serializer of a registry; a reload parses only
// the serializers a file change affects and merges their output into the
// live builders by source; a save renders the serializers owning a set of
// entity sources.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sort"
	"sync"

	"github.com/jward/modelsync/internal/filestore"
	"github.com/jward/modelsync/internal/graph"
	"github.com/jward/modelsync/internal/serializer"
)

// State is one consistent version of the three partitions.
type State struct {
	Main     *graph.Snapshot
	Unloaded *graph.Snapshot
	Orphan   *graph.Snapshot
}

// EmptyState returns a state with three empty partitions.
func EmptyState() State {
	return State{Main: graph.Empty(), Unloaded: graph.Empty(), Orphan: graph.Empty()}
}

// Readers returns the partitions in save lookup order.
func (s State) Readers() []graph.Reader {
	return []graph.Reader{s.Main, s.Unloaded, s.Orphan}
}

// Change lists the files touched outside the process since the last load or
// reload. Paths are relative to the file system root.
type Change struct {
	Added   []string
	Changed []string
	Removed []string
}

// Files returns every path of the change, sorted and deduplicated.
func (c Change) Files() []string {
	files := slices.Concat(c.Added, c.Changed, c.Removed)
	sort.Strings(files)
	return slices.Compact(files)
}

// Empty reports whether the change names no file.
func (c Change) Empty() bool { return len(c.Added)+len(c.Changed)+len(c.Removed) == 0 }

// Stats counts what a merge did across partitions.
type Stats struct {
	Parsed   int
	Added    int
	Removed  int
	Replaced int
}

func (s *Stats) add(res graph.ReplaceResult) {
	s.Added += len(res.Added)
	s.Removed += len(res.Removed)
	s.Replaced += len(res.Replaced)
}

// Reconciler drives the serializers of one registry.
type Reconciler struct {
	registry   *serializer.Registry
	env        *serializer.Env
	logger     *slog.Logger
	reporter   serializer.ErrorReporter
	isUnloaded func(name string) bool
	workers    int
	// shadowed maps a symbolic ID to the files that lost it to another file.
	shadowed   map[graph.SymbolicID][]string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithReporter sets the collaborator malformed fragments are reported to.
func WithReporter(rep serializer.ErrorReporter) Option {
	return func(r *Reconciler) { r.reporter = rep }
}

// WithUnloaded sets the predicate that sends a module to the unloaded
// partition. It is consulted on every parse.
func WithUnloaded(fn func(name string) bool) Option {
	return func(r *Reconciler) { r.isUnloaded = fn }
}

// WithWorkers bounds the number of serializers parsed concurrently.
func WithWorkers(n int) Option {
	return func(r *Reconciler) { r.workers = n }
}

// New returns a reconciler over registry reading and writing through store.
func New(registry *serializer.Registry, store *filestore.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		registry:   registry,
		logger:     slog.Default(),
		reporter:   serializer.NoopReporter(),
		isUnloaded: func(string) bool { return false },
		workers:    runtime.NumCPU(),
		shadowed:   make(map[graph.SymbolicID][]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = 1
	}
	r.env = serializer.NewEnv(store, registry.Index(), &lockedReporter{r: r.reporter}, r.logger)
	return r
}

// Registry returns the serializer registry.
func (r *Reconciler) Registry() *serializer.Registry { return r.registry }

// Env returns the environment serializers run in.
func (r *Reconciler) Env() *serializer.Env { return r.env }

// Load parses every file of the registry's scope from scratch.
func (r *Reconciler) Load(ctx context.Context) (State, Stats, error) {
	r.env.Store.Reset()
	defer r.env.Store.Reset()
	clear(r.shadowed)

	delta := r.registry.Reconcile(r.env, nil)
	r.logger.Debug("registry reconciled", "component", "reconcile", "count", len(delta.Added))

	results, err := r.parse(ctx, r.registry.All())
	if err != nil {
		return State{}, Stats{}, err
	}
	m := newMerger(r, EmptyState())
	for _, res := range results {
		if err := m.merge(res.s, res.b); err != nil {
			return State{}, m.stats, err
		}
	}
	m.pruneOrphans()
	m.stats.Parsed = len(results)
	st := m.freeze()
	r.logger.Info("loaded project model", "component", "reconcile",
		"count", st.Main.Len(), "unloaded", st.Unloaded.Len(), "orphans", st.Orphan.Len())
	return st, m.stats, nil
}

// Attach aligns the registry with the files on disk without parsing. It is
// used when the partitions come from a cache that matches the disk.
func (r *Reconciler) Attach() {
	r.env.Store.Reset()
	r.registry.Reconcile(r.env, nil)
}

type parsed struct {
	s serializer.Serializer
	b graph.Reader
}

// parse loads serializers with a worker pool and returns the results in
// merge order: module descriptors, then project files, then files that
// attach to modules. Serializers that fail with an I/O error are logged,
// reported and left out.
func (r *Reconciler) parse(ctx context.Context, list []serializer.Serializer) ([]parsed, error) {
	list = slices.DeleteFunc(slices.Clone(list), func(s serializer.Serializer) bool { return len(s.Kinds()) == 0 })
	sortForMerge(list)
	if len(list) == 0 {
		return nil, nil
	}

	type result struct {
		b   *graph.Builder
		err error
	}
	results := make([]result, len(list))
	workCh := make(chan int, len(list))
	for i := range list {
		workCh <- i
	}
	close(workCh)

	var wg sync.WaitGroup
	for range min(r.workers, len(list)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workCh {
				if err := ctx.Err(); err != nil {
					results[i].err = err
					continue
				}
				b, err := list[i].Load(r.env)
				results[i] = result{b: b, err: err}
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]parsed, 0, len(list))
	for i, res := range results {
		if res.err != nil {
			file := list[i].File()
			r.logger.Error("parse failed", "component", "reconcile", "file", file, "error", res.err)
			r.env.Reporter.ReportError(fmt.Sprintf("%s: %v", file, res.err), file)
			continue
		}
		out = append(out, parsed{s: list[i], b: res.b})
	}
	return out, nil
}

// mergeRank orders serializers so parents exist before the files that
// attach children to them.
func mergeRank(s serializer.Serializer) int {
	_, perModule := s.Module()
	switch {
	case slices.Contains(s.Kinds(), graph.KindModule):
		return 0
	case !perModule:
		return 1
	}
	return 2
}

func sortForMerge(list []serializer.Serializer) {
	sort.SliceStable(list, func(i, j int) bool {
		ri, rj := mergeRank(list[i]), mergeRank(list[j])
		if ri != rj {
			return ri < rj
		}
		return list[i].File() < list[j].File()
	})
}

// lockedReporter serializes reports from concurrent parses.
type lockedReporter struct {
	mu sync.Mutex
	r  serializer.ErrorReporter
}

func (l *lockedReporter) ReportError(message, file string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.ReportError(message, file)
}
