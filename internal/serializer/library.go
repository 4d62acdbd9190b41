package serializer

import (
	"fmt"
	"slices"
	"sort"

	"github.com/jward/modelsync/internal/filestore"
	"github.com/jward/modelsync/internal/graph"
)

const externalSystemAttr = "external-system-id"

var standardRootTypes = []string{graph.RootClasses, graph.RootJavadoc, graph.RootSources}

// parseLibrary reads a <library> element into table.
func parseLibrary(el *filestore.Element, table graph.LibraryTable) (graph.LibraryData, error) {
	name, ok := el.LookupAttr("name")
	if !ok || name == "" {
		return graph.LibraryData{}, fmt.Errorf("library: name: %w", ErrMissingAttribute)
	}
	lib := graph.LibraryData{Name: name, Table: table, Type: el.Attr("type")}
	for _, group := range el.Children {
		if group.Name == "excluded" {
			for _, root := range group.ChildrenNamed("root") {
				lib.ExcludedRoots = append(lib.ExcludedRoots, root.Attr("url"))
			}
			continue
		}
		if group.Name == "properties" {
			continue
		}
		for _, root := range group.ChildrenNamed("root") {
			url, ok := root.LookupAttr("url")
			if !ok {
				return graph.LibraryData{}, fmt.Errorf("library %s: root url: %w", name, ErrMissingAttribute)
			}
			lib.Roots = append(lib.Roots, graph.LibraryRoot{URL: url, Type: group.Name})
		}
	}
	return lib, nil
}

// renderLibrary is the inverse of parseLibrary. The three standard root
// groups are always written; other groups follow in name order.
func renderLibrary(lib graph.LibraryData, externalSystem string) *filestore.Element {
	el := filestore.NewElement("library", "name", lib.Name)
	if lib.Type != "" {
		el.SetAttr("type", lib.Type)
	}
	if externalSystem != "" {
		el.SetAttr(externalSystemAttr, externalSystem)
	}

	groups := slices.Clone(standardRootTypes)
	var extra []string
	for _, r := range lib.Roots {
		if !slices.Contains(groups, r.Type) && !slices.Contains(extra, r.Type) {
			extra = append(extra, r.Type)
		}
	}
	sort.Strings(extra)
	for _, g := range append(groups, extra...) {
		group := el.Add(filestore.NewElement(g))
		for _, r := range lib.Roots {
			if r.Type == g {
				group.Add(filestore.NewElement("root", "url", r.URL))
			}
		}
	}
	if len(lib.ExcludedRoots) > 0 {
		ex := el.Add(filestore.NewElement("excluded"))
		for _, u := range lib.ExcludedRoots {
			ex.Add(filestore.NewElement("root", "url", u))
		}
	}
	return el
}

// libraryCodec handles <library> entries of a library table file.
type libraryCodec struct {
	table graph.LibraryTable
}

func (libraryCodec) component() string { return "libraryTable" }
func (libraryCodec) entityTag() string { return "library" }
func (libraryCodec) kind() graph.Kind  { return graph.KindLibrary }

func (c libraryCodec) name(d graph.Data) string {
	return d.(graph.LibraryData).Name
}

func (c libraryCodec) parse(env *Env, file string, el *filestore.Element, src graph.EntitySource, b *graph.Builder) {
	lib, err := parseLibrary(el, c.table)
	if err != nil {
		env.malformed(file, "library", err)
		return
	}
	if sys := el.Attr(externalSystemAttr); sys != "" {
		src = graph.Imported(sys, src)
	}
	if _, err := b.Add(0, src, lib); err != nil {
		env.malformed(file, "library "+lib.Name, fmt.Errorf("%w: %w", ErrDuplicateEntity, err))
	}
}

func (c libraryCodec) render(_ graph.Reader, e graph.Entity) *filestore.Element {
	return renderLibrary(e.Data.(graph.LibraryData), e.Source.ExternalSystem)
}
