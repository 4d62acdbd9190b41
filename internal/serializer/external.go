package serializer

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/jward/modelsync/internal/filestore"
	"github.com/jward/modelsync/internal/graph"
)

// externalModuleSerializer owns the file in external storage holding the
// content roots and facets an external build system contributed to one
// module. The module itself is declared elsewhere, so loading yields a stub
// module parent.
type externalModuleSerializer struct {
	file string
	name string
}

// NewExternalModuleSerializer returns the serializer of the external module
// file at file.
func NewExternalModuleSerializer(file string) Serializer {
	return &externalModuleSerializer{file: path.Clean(file), name: ModuleName(file)}
}

func (s *externalModuleSerializer) File() string           { return s.file }
func (s *externalModuleSerializer) Shape() Shape           { return SingleFile }
func (s *externalModuleSerializer) Module() (string, bool) { return s.name, true }

func (s *externalModuleSerializer) Kinds() []graph.Kind {
	return []graph.Kind{graph.KindContentRoot, graph.KindSourceRoot, graph.KindFacet}
}

func (s *externalModuleSerializer) Owns(src graph.EntitySource) bool {
	return sameFile(s.file)(src.FileSource())
}

func (s *externalModuleSerializer) Load(env *Env) (*graph.Builder, error) {
	b := graph.New()
	doc, err := env.Store.Read(s.file)
	if errors.Is(err, fs.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		env.malformed(s.file, "file", fmt.Errorf("%w: %w", ErrMalformedFile, err))
		return b, nil
	}
	src := graph.ExactFile(s.file)
	if sys := doc.Root.Attr(externalModuleAttr); sys != "" {
		src = graph.Imported(sys, src)
	}
	stub, err := b.Add(0, graph.Stub(), graph.ModuleData{Name: s.name})
	if err != nil {
		return nil, err
	}
	if mgr := doc.Component(rootManagerComponent); mgr != nil {
		parseContentRoots(env, s.file, mgr, stub, src, b)
	}
	if fm := doc.Component(facetComponent); fm != nil {
		parseFacets(env, s.file, fm, stub, src, b)
	}
	return b, nil
}

// Save renders what this file contributes to its module. When nothing is
// left the file is deleted.
func (s *externalModuleSerializer) Save(env *Env, readers []graph.Reader) (filestore.WriteResult, error) {
	mod, ok := resolve(readers, graph.ModuleID(s.name))
	if !ok {
		return env.Store.Write(s.file, nil)
	}
	roots := ownedChildren(s, mod.r, mod.ID, graph.KindContentRoot)
	facets := ownedChildren(s, mod.r, mod.ID, graph.KindFacet)
	if len(roots)+len(facets) == 0 {
		return env.Store.Write(s.file, nil)
	}

	doc := filestore.NewDocument("module")
	var sys string
	for _, e := range append(roots, facets...) {
		if sys = e.Source.ExternalSystem; sys != "" {
			break
		}
	}
	if sys != "" {
		doc.Root.Attrs = append([]filestore.Attr{{Name: externalModuleAttr, Value: sys}}, doc.Root.Attrs...)
	}
	if len(roots) > 0 {
		comp := filestore.NewElement("component", "name", rootManagerComponent)
		for _, cr := range roots {
			comp.Add(renderContentRoot(s, mod.r, cr))
		}
		doc.SetComponent(rootManagerComponent, comp)
	}
	doc.SetComponent(facetComponent, renderFacets(facets))
	return env.Store.Write(s.file, doc)
}

// IsExternalModuleFile reports whether file lies in the external modules
// directory of layout.
func IsExternalModuleFile(layout Layout, file string) bool {
	return layout.ExternalStorage && path.Dir(path.Clean(file)) == layout.ExternalModulesDir() && strings.HasSuffix(file, ".xml")
}
