package reconcile

import (
	"context"
	"slices"

	"github.com/jward/modelsync/internal/graph"
	"github.com/jward/modelsync/internal/serializer"
)

// ReloadResult is the outcome of ReloadFromChangedFiles. The builders are
// opened from the input state; nothing outside the affected sources has
// been touched, so untouched entities keep their IDs.
type ReloadResult struct {
	Main     *graph.Builder
	Unloaded *graph.Builder
	Orphan   *graph.Builder
	// Affected lists the entity sources whose entities changed.
	Affected []graph.EntitySource
	Delta    serializer.Delta
	Stats    Stats
}

// Freeze returns the new state.
func (r ReloadResult) Freeze() State {
	return State{Main: r.Main.Freeze(), Unloaded: r.Unloaded.Freeze(), Orphan: r.Orphan.Freeze()}
}

// ReloadFromChangedFiles reparses the serializers affected by change and
// merges their output into builders opened from cur.
//
// Impact analysis runs in three steps. The registry is reconciled first, so
// module list edits and directory membership changes instantiate or retire
// serializers before any content is read. Changed files then map to their
// serializers. Finally, when a module file is added or retired, the files
// attaching content to that module are reparsed so their entities follow it
// in or out of the orphan partition. After the merge, files that lost a
// symbolic ID to an entity that is now gone are reparsed.
func (r *Reconciler) ReloadFromChangedFiles(ctx context.Context, cur State, change Change) (ReloadResult, error) {
	files := change.Files()
	r.env.Store.Invalidate(files...)
	defer r.env.Store.Reset()

	removed := make(map[string]bool, len(change.Removed))
	for _, f := range change.Removed {
		removed[f] = true
	}
	sources := slices.Concat(cur.Main.Sources(), cur.Unloaded.Sources(), cur.Orphan.Sources())
	ownsLive := func(s serializer.Serializer) bool {
		return slices.ContainsFunc(sources, s.Owns)
	}
	// A directory file missing from disk whose deletion has not been
	// reported yet keeps its entities until the event arrives.
	keep := func(s serializer.Serializer) bool {
		return !slices.Contains(s.Kinds(), graph.KindModule) && !removed[s.File()] && ownsLive(s)
	}
	delta := r.registry.Reconcile(r.env, keep)

	affected := make(map[serializer.Serializer]bool)
	for _, f := range files {
		if s, ok := r.registry.Lookup(f); ok {
			affected[s] = true
		}
	}
	for _, s := range delta.Added {
		affected[s] = true
	}
	modules := make(map[string]bool)
	for s := range affected {
		if name, ok := s.Module(); ok && slices.Contains(s.Kinds(), graph.KindModule) {
			modules[name] = true
		}
	}
	for _, s := range delta.Retired {
		if name, ok := s.Module(); ok && slices.Contains(s.Kinds(), graph.KindModule) {
			modules[name] = true
		}
	}
	for _, s := range r.registry.All() {
		name, ok := s.Module()
		if ok && modules[name] && !slices.Contains(s.Kinds(), graph.KindModule) {
			affected[s] = true
		}
	}

	var list []serializer.Serializer
	for s := range affected {
		list = append(list, s)
	}
	results, err := r.parse(ctx, list)
	if err != nil {
		return ReloadResult{}, err
	}
	// Retired serializers parse to nothing: their entities are removed.
	for _, s := range delta.Retired {
		results = append(results, parsed{s: s, b: graph.Empty()})
	}
	retiredFirst(results, len(results)-len(delta.Retired))

	m := newMerger(r, cur)
	for _, res := range results {
		if err := m.merge(res.s, res.b); err != nil {
			return ReloadResult{}, err
		}
	}
	revived, err := r.revive(ctx, m)
	if err != nil {
		return ReloadResult{}, err
	}
	m.pruneOrphans()
	m.stats.Parsed = len(results) - len(delta.Retired) + revived

	var affectedSources []graph.EntitySource
	for _, pair := range []struct {
		from graph.Reader
		to   *graph.Builder
	}{{cur.Main, m.main}, {cur.Unloaded, m.unloaded}, {cur.Orphan, m.orphan}} {
		affectedSources = append(affectedSources, graph.AffectedSources(graph.Diff(pair.from, pair.to))...)
	}
	slices.SortFunc(affectedSources, compareSources)
	affectedSources = slices.Compact(affectedSources)

	r.logger.Info("reloaded changed files", "component", "reconcile",
		"count", len(files), "parsed", m.stats.Parsed, "retired", len(delta.Retired),
		"added", m.stats.Added, "removed", m.stats.Removed, "replaced", m.stats.Replaced)
	return ReloadResult{
		Main:     m.main,
		Unloaded: m.unloaded,
		Orphan:   m.orphan,
		Affected: affectedSources,
		Delta:    delta,
		Stats:    m.stats,
	}, nil
}

// retiredFirst moves the retired tail of results (starting at split) to the
// front, so a module file leaving the list is removed before files
// attaching to it are merged.
func retiredFirst(results []parsed, split int) {
	retired := slices.Clone(results[split:])
	copy(results[len(retired):], results[:split])
	copy(results, retired)
}

func compareSources(a, b graph.EntitySource) int {
	switch {
	case a.String() < b.String():
		return -1
	case a.String() > b.String():
		return 1
	}
	return 0
}
