package reconcile

import (
	"context"
	"slices"

	"github.com/jward/modelsync/internal/graph"
	"github.com/jward/modelsync/internal/serializer"
)

// Shadow is a file whose entity was skipped because another file already
// holds its symbolic ID. The file is reparsed once that ID is free again.
type Shadow struct {
	ID   graph.SymbolicID `json:"id"`
	File string           `json:"file"`
}

// Shadowed returns the recorded shadows sorted by file, then by ID.
func (r *Reconciler) Shadowed() []Shadow {
	var out []Shadow
	for sid, files := range r.shadowed {
		for _, f := range files {
			out = append(out, Shadow{ID: sid, File: f})
		}
	}
	slices.SortFunc(out, func(a, b Shadow) int {
		if a.File != b.File {
			if a.File < b.File {
				return -1
			}
			return 1
		}
		if a.ID.String() < b.ID.String() {
			return -1
		}
		if a.ID.String() > b.ID.String() {
			return 1
		}
		return 0
	})
	return out
}

// RestoreShadowed replaces the recorded shadows, for partitions restored
// from a cache.
func (r *Reconciler) RestoreShadowed(shadows []Shadow) {
	clear(r.shadowed)
	for _, s := range shadows {
		r.shadow(s.ID, s.File)
	}
}

func (r *Reconciler) shadow(sid graph.SymbolicID, file string) {
	files := r.shadowed[sid]
	if !slices.Contains(files, file) {
		files = append(files, file)
		slices.Sort(files)
	}
	r.shadowed[sid] = files
}

// unshadow forgets every shadow of file. It runs before file is merged,
// which records its shadows afresh.
func (r *Reconciler) unshadow(file string) {
	for sid, files := range r.shadowed {
		files = slices.DeleteFunc(files, func(f string) bool { return f == file })
		if len(files) == 0 {
			delete(r.shadowed, sid)
		} else {
			r.shadowed[sid] = files
		}
	}
}

// revive reparses the shadowed files whose symbolic ID no longer resolves
// in any partition, until none is left. Every file is revived at most once
// per reload; files competing for the same ID merge in load order so the
// same one wins as in a fresh load.
func (r *Reconciler) revive(ctx context.Context, m *merger) (int, error) {
	tried := make(map[string]bool)
	parsedCount := 0
	for {
		var list []serializer.Serializer
		for sid, files := range r.shadowed {
			if m.resolves(sid) {
				continue
			}
			for _, f := range files {
				if tried[f] {
					continue
				}
				tried[f] = true
				if s, ok := r.registry.Lookup(f); ok {
					list = append(list, s)
				}
			}
		}
		if len(list) == 0 {
			return parsedCount, nil
		}
		r.logger.Debug("reparsing shadowed files", "component", "reconcile", "count", len(list))
		results, err := r.parse(ctx, list)
		if err != nil {
			return parsedCount, err
		}
		for _, res := range results {
			if err := m.merge(res.s, res.b); err != nil {
				return parsedCount, err
			}
		}
		parsedCount += len(results)
	}
}
