package serializer

import (
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/jward/modelsync/internal/graph"
	"github.com/jward/modelsync/internal/provenance"
)

// Handle is a stable reference to a registered serializer.
type Handle uint32

// Delta reports the serializers a Reconcile call instantiated and retired.
type Delta struct {
	Added   []Serializer
	Retired []Serializer
}

// Empty reports whether nothing changed.
func (d Delta) Empty() bool { return len(d.Added)+len(d.Retired) == 0 }

// Registry is the arena of live serializers. Serializers are addressed by
// handle and only instantiated or retired by Reconcile, Ensure and Retire.
type Registry struct {
	layout Layout
	index  *provenance.Index
	global bool

	slots map[Handle]Serializer
	next  Handle

	list      *moduleListSerializer
	factories []DirectoryFactory
}

// NewRegistry returns the registry of a project configured by layout.
func NewRegistry(layout Layout, index *provenance.Index) *Registry {
	r := &Registry{layout: layout, index: index, slots: make(map[Handle]Serializer), next: 1}
	r.list = NewModuleListSerializer(layout.ModulesFile()).(*moduleListSerializer)
	r.add(r.list)
	r.factories = []DirectoryFactory{
		LibrariesDirectory(layout.LibrariesDir()),
		ArtifactsDirectory(layout.ArtifactsDir()),
	}
	if layout.ExternalStorage {
		r.factories = append(r.factories, LibrariesDirectory(layout.ExternalLibrariesDir()))
	}
	return r
}

// NewGlobalRegistry returns the registry of the global scope: the SDK table
// and the application library table.
func NewGlobalRegistry(layout Layout, index *provenance.Index) *Registry {
	r := &Registry{layout: layout, index: index, global: true, slots: make(map[Handle]Serializer), next: 1}
	r.add(&tableFileSerializer{file: layout.SDKFile(), rootTag: "application", codec: sdkCodec{}})
	r.add(&tableFileSerializer{file: layout.AppLibrariesFile(), rootTag: "application", codec: libraryCodec{table: graph.ApplicationTable}})
	return r
}

// Fresh returns an empty registry of the same scope resolving directory
// files through index. Nothing is instantiated until Reconcile.
func (r *Registry) Fresh(index *provenance.Index) *Registry {
	if r.global {
		return NewGlobalRegistry(r.layout, index)
	}
	return NewRegistry(r.layout, index)
}

// Global reports whether the registry serves the global scope.
func (r *Registry) Global() bool { return r.global }

// Layout returns the layout the registry was created for.
func (r *Registry) Layout() Layout { return r.layout }

// Index returns the provenance index serializers resolve files through.
func (r *Registry) Index() *provenance.Index { return r.index }

func (r *Registry) add(s Serializer) Handle {
	h := r.next
	r.next++
	r.slots[h] = s
	return h
}

// Get returns the serializer behind h.
func (r *Registry) Get(h Handle) (Serializer, bool) {
	s, ok := r.slots[h]
	return s, ok
}

// All returns the live serializers sorted by file.
func (r *Registry) All() []Serializer {
	out := make([]Serializer, 0, len(r.slots))
	for _, s := range r.slots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File() < out[j].File() })
	return out
}

// Files returns the files of the live serializers, sorted.
func (r *Registry) Files() []string {
	var files []string
	for _, s := range r.All() {
		files = append(files, s.File())
	}
	return files
}

// Lookup returns the serializer owning file.
func (r *Registry) Lookup(file string) (Serializer, bool) {
	file = path.Clean(file)
	for _, s := range r.slots {
		if s.File() == file {
			return s, true
		}
	}
	return nil, false
}

// Owner returns the serializer that reads and writes entities with src.
func (r *Registry) Owner(src graph.EntitySource) (Serializer, bool) {
	for _, s := range r.slots {
		if s.Owns(src) {
			return s, true
		}
	}
	return nil, false
}

// ModuleList returns the module list serializer, if the scope has one.
func (r *Registry) ModuleList() (Serializer, bool) {
	if r.list == nil {
		return nil, false
	}
	return r.list, true
}

// Retire removes s from the registry, forgetting the provenance of
// directory files.
func (r *Registry) Retire(s Serializer) {
	for h, cur := range r.slots {
		if cur == s {
			delete(r.slots, h)
		}
	}
	if d, ok := s.(*dirFileSerializer); ok {
		r.index.Unregister(d.src)
	}
}

// Ensure returns the serializer for a live entity source, instantiating it
// when the source belongs to a known directory or names a module file.
func (r *Registry) Ensure(src graph.EntitySource) (Serializer, bool) {
	if s, ok := r.Owner(src); ok {
		return s, true
	}
	if r.global {
		return nil, false
	}
	src = src.FileSource()
	switch src.Kind {
	case graph.SourceDirectoryFile:
		for _, f := range r.factories {
			if f.Matches(src) {
				if _, err := r.index.ActualURL(src); err != nil {
					return nil, false
				}
				s := f.New(r.index, src)
				r.add(s)
				return s, true
			}
		}
	case graph.SourceFile:
		var s Serializer
		switch {
		case IsExternalModuleFile(r.layout, src.File):
			s = NewExternalModuleSerializer(src.File)
		case strings.HasSuffix(src.File, ".iml"):
			s = NewModuleSerializer(src.File)
		default:
			return nil, false
		}
		r.add(s)
		return s, true
	}
	return nil, false
}

// Factory returns the directory factory for dir.
func (r *Registry) Factory(dir string) (DirectoryFactory, bool) {
	for _, f := range r.factories {
		if path.Clean(f.Dir) == path.Clean(dir) {
			return f, true
		}
	}
	return DirectoryFactory{}, false
}

// Relevant reports whether a change to file can affect the registry: the
// file is registered, is the module list, or lies in a scanned directory.
func (r *Registry) Relevant(file string) bool {
	file = path.Clean(file)
	if _, ok := r.Lookup(file); ok {
		return true
	}
	if r.global {
		return false
	}
	dir := path.Dir(file)
	if _, ok := r.Factory(dir); ok && strings.HasSuffix(file, ".xml") {
		return true
	}
	return IsExternalModuleFile(r.layout, file)
}

// Reconcile brings the registry in line with the files on disk: module
// descriptors named by the module list, member files of the scanned
// directories and external module files. Serializers for which keep
// returns true are not retired even if their file is gone.
func (r *Registry) Reconcile(env *Env, keep func(Serializer) bool) Delta {
	var delta Delta
	if r.global {
		return delta
	}
	if keep == nil {
		keep = func(Serializer) bool { return false }
	}

	wantModules := r.list.ModuleFiles(env)
	r.reconcileKind(&delta, keep, wantModules,
		func(s Serializer) bool { _, ok := s.(*moduleSerializer); return ok },
		NewModuleSerializer)

	if r.layout.ExternalStorage {
		files, err := env.Store.List(r.layout.ExternalModulesDir(), ".xml")
		if err != nil {
			env.Logger.Warn("listing external modules failed", "component", "serializer", "error", err)
		}
		r.reconcileKind(&delta, keep, files,
			func(s Serializer) bool { _, ok := s.(*externalModuleSerializer); return ok },
			NewExternalModuleSerializer)
	}

	for _, f := range r.factories {
		files, err := env.Store.List(f.Dir, ".xml")
		if err != nil {
			env.Logger.Warn("listing directory failed", "component", "serializer", "file", f.Dir, "error", err)
			continue
		}
		r.reconcileKind(&delta, keep, files,
			func(s Serializer) bool {
				d, ok := s.(*dirFileSerializer)
				return ok && f.Matches(d.src)
			},
			func(file string) Serializer { return f.New(r.index, r.index.SourceFor(file)) })
	}
	return delta
}

func (r *Registry) reconcileKind(delta *Delta, keep func(Serializer) bool, want []string, match func(Serializer) bool, create func(string) Serializer) {
	for _, s := range r.All() {
		if match(s) && !slices.Contains(want, s.File()) && !keep(s) {
			r.Retire(s)
			delta.Retired = append(delta.Retired, s)
		}
	}
	for _, file := range want {
		if _, ok := r.Lookup(file); ok {
			continue
		}
		s := create(file)
		r.add(s)
		delta.Added = append(delta.Added, s)
	}
}
