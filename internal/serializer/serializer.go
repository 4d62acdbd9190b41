package serializer

import (
	"github.com/jward/modelsync/internal/filestore"
	"github.com/jward/modelsync/internal/graph"
)

// Shape classifies serializers.
type Shape uint8

const (
	// SingleFile serializers own one file holding any number of entities.
	SingleFile Shape = iota + 1
	// DirectoryFile serializers own one file of a directory scanned for
	// members.
	DirectoryFile
	// ListFile serializers own a file naming other files.
	ListFile
)

func (s Shape) String() string {
	switch s {
	case SingleFile:
		return "single-file"
	case DirectoryFile:
		return "directory-file"
	case ListFile:
		return "list-file"
	}
	return "unknown"
}

// Serializer translates one file.
type Serializer interface {
	// File returns the current path of the backing file.
	File() string
	Shape() Shape
	// Kinds lists the entity kinds the serializer produces.
	Kinds() []graph.Kind
	// Owns reports whether entities with source src are read from and
	// written to this serializer's file.
	Owns(src graph.EntitySource) bool
	// Module names the module whose partition the entities belong to.
	// Serializers of project-wide files return false.
	Module() (string, bool)
	// Load parses the file. Malformed fragments are reported through env
	// and skipped; only I/O failures are returned. The result may contain
	// stub parents that locate owned entities in the live store.
	Load(env *Env) (*graph.Builder, error)
	// Save renders the owned entities found in readers to the file.
	Save(env *Env, readers []graph.Reader) (filestore.WriteResult, error)
}

// located is an entity together with the reader it was found in.
type located struct {
	r graph.Reader
	graph.Entity
}

// owned collects the entities of kind across readers whose source is owned
// by s, in reader order then ID order.
func owned(s Serializer, kind graph.Kind, readers []graph.Reader) []located {
	var out []located
	for _, r := range readers {
		for e := range r.Entities(kind) {
			if s.Owns(e.Source) {
				out = append(out, located{r: r, Entity: e})
			}
		}
	}
	return out
}

// ownedChildren returns the children of parent (in r) owned by s with the
// given kind.
func ownedChildren(s Serializer, r graph.Reader, parent graph.EntityID, kind graph.Kind) []graph.Entity {
	var out []graph.Entity
	for _, c := range r.Children(parent) {
		e, ok := r.Get(c)
		if ok && e.Kind() == kind && s.Owns(e.Source) {
			out = append(out, e)
		}
	}
	return out
}

// resolve finds id in the first reader that has it.
func resolve(readers []graph.Reader, id graph.SymbolicID) (located, bool) {
	for _, r := range readers {
		if e, ok := r.Resolve(id); ok {
			return located{r: r, Entity: e}, true
		}
	}
	return located{}, false
}

func sameFile(file string) func(graph.EntitySource) bool {
	return func(src graph.EntitySource) bool {
		return src.Kind == graph.SourceFile && src.File == file
	}
}
