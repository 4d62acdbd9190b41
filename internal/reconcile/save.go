package reconcile

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/jward/modelsync/internal/filestore"
	"github.com/jward/modelsync/internal/graph"
	"github.com/jward/modelsync/internal/serializer"
)

// SaveResult lists the files a save touched.
type SaveResult struct {
	Written   []string
	Deleted   []string
	Unchanged int
}

func (r *SaveResult) record(file string, res filestore.WriteResult) {
	switch res {
	case filestore.Written:
		r.Written = append(r.Written, file)
	case filestore.Deleted:
		r.Deleted = append(r.Deleted, file)
	default:
		r.Unchanged++
	}
}

// SaveAll renders every serializer of the scope, instantiating serializers
// for entity sources that have none yet.
func (r *Reconciler) SaveAll(ctx context.Context, st State) (SaveResult, error) {
	r.env.Store.Reset()
	var sources []graph.EntitySource
	for _, rd := range st.Readers() {
		sources = append(sources, rd.Sources()...)
	}
	targets := r.ensure(sources)
	for _, s := range r.registry.All() {
		targets[s] = true
	}
	return r.save(ctx, st, targets)
}

// SaveAffected renders the serializers owning sources. The module list is
// always rendered so added and removed modules show up in it.
func (r *Reconciler) SaveAffected(ctx context.Context, st State, sources []graph.EntitySource) (SaveResult, error) {
	targets := r.ensure(sources)
	if list, ok := r.registry.ModuleList(); ok {
		targets[list] = true
	}
	return r.save(ctx, st, targets)
}

func (r *Reconciler) ensure(sources []graph.EntitySource) map[serializer.Serializer]bool {
	targets := make(map[serializer.Serializer]bool)
	for _, src := range sources {
		if src.IsStub() {
			continue
		}
		s, ok := r.registry.Ensure(src)
		if !ok {
			r.logger.Debug("no serializer for source", "component", "reconcile", "source", src.String())
			continue
		}
		targets[s] = true
	}
	return targets
}

func (r *Reconciler) save(ctx context.Context, st State, targets map[serializer.Serializer]bool) (SaveResult, error) {
	list := make([]serializer.Serializer, 0, len(targets))
	for s := range targets {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].File() < list[j].File() })

	var out SaveResult
	readers := st.Readers()
	for _, s := range list {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		before := s.File()
		res, err := s.Save(r.env, readers)
		if err != nil {
			return out, fmt.Errorf("save %s: %w", before, err)
		}
		if after := s.File(); after != before && before != "" {
			out.Deleted = append(out.Deleted, before)
		}
		out.record(s.File(), res)
		if res == filestore.Deleted && retireOnDelete(s) {
			r.registry.Retire(s)
		}
	}
	r.logger.Info("saved project model", "component", "reconcile",
		"count", len(list), "written", len(out.Written), "deleted", len(out.Deleted))
	return out, nil
}

// retireOnDelete reports whether a serializer whose file was deleted should
// leave the registry. Fixed files of a scope stay registered.
func retireOnDelete(s serializer.Serializer) bool {
	if s.Shape() == serializer.DirectoryFile {
		return true
	}
	_, perModule := s.Module()
	return perModule
}

// AllocateSource registers a new file in directory dir for an entity called
// name and returns its source. Entities added with that source are saved to
// the new file.
func (r *Reconciler) AllocateSource(dir, name string) (graph.EntitySource, error) {
	f, ok := r.registry.Factory(dir)
	if !ok {
		return graph.EntitySource{}, fmt.Errorf("%s is not a scanned directory", dir)
	}
	file := f.FileName(r.registry.Index(), name, graph.EntitySource{})
	return r.registry.Index().SourceFor(path.Join(f.Dir, file)), nil
}
