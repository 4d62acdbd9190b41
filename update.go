package modelsync

import (
	"context"
	"fmt"
	"sort"

	"github.com/jward/modelsync/internal/graph"
	"github.com/jward/modelsync/internal/reconcile"
)

// Update runs fn as one write transaction over builders opened from the
// main and unloaded partitions. If fn returns an error nothing changes.
// Otherwise the new partitions are installed and the entity sources they
// touch are returned and recorded as pending for SaveChanged.
func (e *Engine) Update(ctx context.Context, fn func(main, unloaded *graph.Builder) error) ([]graph.EntitySource, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return nil, ErrNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.update(fn)
}

func (e *Engine) update(fn func(main, unloaded *graph.Builder) error) ([]graph.EntitySource, error) {
	main := e.state.Main.Open()
	unloaded := e.state.Unloaded.Open()
	if err := fn(main, unloaded); err != nil {
		return nil, err
	}
	next := reconcile.State{Main: main.Freeze(), Unloaded: unloaded.Freeze(), Orphan: e.state.Orphan}
	changes := append(graph.Diff(e.state.Main, next.Main), graph.Diff(e.state.Unloaded, next.Unloaded)...)
	sources := graph.AffectedSources(changes)
	for _, src := range sources {
		if !src.IsStub() {
			e.dirty[src] = true
		}
	}
	e.state = next
	return sources, nil
}

// Rename applies fn to the entity known as old, wherever it lives, and
// rewrites the soft links to it in both partitions. It returns the new
// symbolic ID.
func (e *Engine) Rename(ctx context.Context, old graph.SymbolicID, fn func(graph.Data) graph.Data) (graph.SymbolicID, error) {
	var renamed graph.SymbolicID
	_, err := e.Update(ctx, func(main, unloaded *graph.Builder) error {
		b, other := main, unloaded
		if _, ok := main.Resolve(old); !ok {
			b, other = unloaded, main
		}
		id, err := b.Rename(old, fn)
		if err != nil {
			return fmt.Errorf("modelsync: rename: %w", err)
		}
		ent, _ := b.Get(id)
		renamed, _ = ent.Data.SymbolicID()
		other.UpdateSoftLinks(old, renamed)
		return nil
	})
	if err != nil {
		return graph.SymbolicID{}, err
	}
	return renamed, nil
}

// SetUnloaded replaces the static list of unloaded modules and moves module
// subtrees between the main and unloaded partitions to match, without
// reparsing. It returns the names of the modules that moved.
func (e *Engine) SetUnloaded(ctx context.Context, names []string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return nil, ErrNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.unloaded = e.unloaded.With(names)

	var moved []string
	main := e.state.Main.Open()
	unloaded := e.state.Unloaded.Open()
	move := func(from, to *graph.Builder, want bool) error {
		var picked []string
		for _, mod := range graph.EntitiesOf[graph.ModuleData](from) {
			if e.isUnloaded(mod.Name) == want {
				picked = append(picked, mod.Name)
			}
		}
		for _, name := range picked {
			ok, err := reconcile.MoveModule(from, to, name)
			if err != nil {
				return err
			}
			if ok {
				moved = append(moved, name)
			}
		}
		return nil
	}
	if err := move(main, unloaded, true); err != nil {
		return nil, fmt.Errorf("modelsync: unload: %w", err)
	}
	if err := move(unloaded, main, false); err != nil {
		return nil, fmt.Errorf("modelsync: load module: %w", err)
	}
	e.state = reconcile.State{Main: main.Freeze(), Unloaded: unloaded.Freeze(), Orphan: e.state.Orphan}
	sort.Strings(moved)
	e.logger.Info("unloaded modules changed", "component", "engine", "count", len(moved))
	e.refreshCache()
	return moved, nil
}
