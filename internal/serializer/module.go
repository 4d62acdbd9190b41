package serializer

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jward/modelsync/internal/filestore"
	"github.com/jward/modelsync/internal/graph"
)

const (
	rootManagerComponent = "NewModuleRootManager"
	facetComponent       = "FacetManager"
	customDataComponent  = "ModuleCustomData"
	externalModuleAttr   = "external.system.id"
)

// moduleSerializer owns one module descriptor (.iml). The module is named
// after the file.
type moduleSerializer struct {
	file string
	name string
}

// NewModuleSerializer returns the serializer of the descriptor at file.
func NewModuleSerializer(file string) Serializer {
	return &moduleSerializer{file: path.Clean(file), name: ModuleName(file)}
}

// ModuleName derives a module name from its descriptor path.
func ModuleName(file string) string {
	return strings.TrimSuffix(path.Base(file), path.Ext(file))
}

func (s *moduleSerializer) File() string           { return s.file }
func (s *moduleSerializer) Shape() Shape           { return SingleFile }
func (s *moduleSerializer) Module() (string, bool) { return s.name, true }

func (s *moduleSerializer) Kinds() []graph.Kind {
	return []graph.Kind{
		graph.KindModule, graph.KindModuleCustomData, graph.KindContentRoot,
		graph.KindSourceRoot, graph.KindFacet, graph.KindLibrary,
	}
}

func (s *moduleSerializer) Owns(src graph.EntitySource) bool {
	return sameFile(s.file)(src.FileSource())
}

// Load parses the descriptor. A missing or unreadable descriptor still
// yields the bare module so the module list and the graph stay aligned.
func (s *moduleSerializer) Load(env *Env) (*graph.Builder, error) {
	b := graph.New()
	src := graph.ExactFile(s.file)
	doc, err := env.Store.Read(s.file)
	if errors.Is(err, fs.ErrNotExist) {
		env.Logger.Debug("module file is missing", "component", "serializer", "file", s.file)
		_, err := b.Add(0, src, graph.ModuleData{Name: s.name})
		return b, err
	}
	if err != nil {
		env.malformed(s.file, "file", fmt.Errorf("%w: %w", ErrMalformedFile, err))
		_, err := b.Add(0, src, graph.ModuleData{Name: s.name})
		return b, err
	}
	if sys := doc.Root.Attr(externalModuleAttr); sys != "" {
		src = graph.Imported(sys, src)
	}

	mod := graph.ModuleData{Name: s.name, Type: doc.Root.Attr("type")}
	mgr := doc.Component(rootManagerComponent)
	var libs []graph.LibraryData
	if mgr != nil {
		mod.Dependencies, libs = s.parseOrderEntries(env, mgr)
	}
	modID, err := b.Add(0, src, mod)
	if err != nil {
		return nil, err
	}
	if mgr != nil {
		parseContentRoots(env, s.file, mgr, modID, src, b)
	}
	for _, lib := range libs {
		if _, err := b.Add(0, src, lib); err != nil {
			env.malformed(s.file, "module library "+lib.Name, fmt.Errorf("%w: %w", ErrDuplicateEntity, err))
		}
	}
	if fm := doc.Component(facetComponent); fm != nil {
		parseFacets(env, s.file, fm, modID, src, b)
	}
	if cd := doc.Component(customDataComponent); cd != nil {
		parseCustomData(cd, modID, src, b)
	}
	return b, nil
}

func (s *moduleSerializer) parseOrderEntries(env *Env, mgr *filestore.Element) ([]graph.Dependency, []graph.LibraryData) {
	var deps []graph.Dependency
	var libs []graph.LibraryData
	for _, oe := range mgr.ChildrenNamed("orderEntry") {
		dep := graph.Dependency{Scope: oe.Attr("scope")}
		_, dep.Exported = oe.LookupAttr("exported")
		typ := oe.Attr("type")
		switch typ {
		case "sourceFolder":
			dep.Kind = graph.DependencyModuleSource
		case "inheritedJdk":
			dep.Kind = graph.DependencyInheritedSDK
		case "jdk":
			dep.Kind = graph.DependencySDK
			dep.Name = oe.Attr("jdkName")
			dep.SDKType = oe.Attr("jdkType")
		case "module":
			dep.Kind = graph.DependencyModule
			dep.Name = oe.Attr("module-name")
			if dep.Name == "" {
				env.malformed(s.file, "orderEntry module", fmt.Errorf("module-name: %w", ErrMissingAttribute))
				continue
			}
		case "library":
			dep.Kind = graph.DependencyLibrary
			dep.Name = oe.Attr("name")
			dep.Level = oe.Attr("level")
			if _, ok := graph.TableForLevel(dep.Level, s.name); !ok || dep.Level == "module" {
				env.malformed(s.file, "orderEntry library "+dep.Name, fmt.Errorf("level %q: %w", dep.Level, ErrUnknownLevel))
				continue
			}
		case "module-library":
			el := oe.Child("library")
			if el == nil {
				env.malformed(s.file, "orderEntry module-library", fmt.Errorf("library: %w", ErrMissingAttribute))
				continue
			}
			lib, err := parseLibrary(el, graph.ModuleTable(s.name))
			if err != nil {
				env.malformed(s.file, "orderEntry module-library", err)
				continue
			}
			dep.Kind = graph.DependencyLibrary
			dep.Name = lib.Name
			dep.Level = "module"
			libs = append(libs, lib)
		default:
			env.malformed(s.file, "orderEntry", fmt.Errorf("type %q: %w", typ, ErrUnknownEntry))
			continue
		}
		deps = append(deps, dep)
	}
	return deps, libs
}

func parseContentRoots(env *Env, file string, mgr *filestore.Element, modID graph.EntityID, src graph.EntitySource, b *graph.Builder) {
	for _, content := range mgr.ChildrenNamed("content") {
		url, ok := content.LookupAttr("url")
		if !ok {
			env.malformed(file, "content", fmt.Errorf("url: %w", ErrMissingAttribute))
			continue
		}
		cr := graph.ContentRootData{URL: url}
		for _, ex := range content.ChildrenNamed("excludeFolder") {
			cr.ExcludedURLs = append(cr.ExcludedURLs, ex.Attr("url"))
		}
		for _, p := range content.ChildrenNamed("excludePattern") {
			cr.ExcludePatterns = append(cr.ExcludePatterns, p.Attr("pattern"))
		}
		rootID, err := b.Add(modID, src, cr)
		if err != nil {
			env.malformed(file, "content "+url, err)
			continue
		}
		for _, sf := range content.ChildrenNamed("sourceFolder") {
			sr, err := parseSourceFolder(sf)
			if err != nil {
				env.malformed(file, "sourceFolder", err)
				continue
			}
			if _, err := b.Add(rootID, src, sr); err != nil {
				env.malformed(file, "sourceFolder "+sr.URL, err)
			}
		}
	}
}

func parseSourceFolder(el *filestore.Element) (graph.SourceRootData, error) {
	url, ok := el.LookupAttr("url")
	if !ok {
		return graph.SourceRootData{}, fmt.Errorf("url: %w", ErrMissingAttribute)
	}
	sr := graph.SourceRootData{URL: url, PackagePrefix: el.Attr("packagePrefix")}
	if v, ok := el.LookupAttr("generated"); ok {
		if v != "true" && v != "false" {
			return sr, fmt.Errorf("generated=%q: %w", v, ErrBadAttribute)
		}
		sr.Generated = v == "true"
	}
	if typ, ok := el.LookupAttr("type"); ok {
		sr.RootType = typ
		return sr, nil
	}
	switch v := el.Attr("isTestSource"); v {
	case "false", "":
		sr.RootType = graph.RootJavaSource
	case "true":
		sr.RootType = graph.RootJavaTest
	default:
		return sr, fmt.Errorf("isTestSource=%q: %w", v, ErrBadAttribute)
	}
	return sr, nil
}

func parseFacets(env *Env, file string, fm *filestore.Element, modID graph.EntityID, src graph.EntitySource, b *graph.Builder) {
	for _, f := range fm.ChildrenNamed("facet") {
		typ, ok := f.LookupAttr("type")
		if !ok {
			env.malformed(file, "facet", fmt.Errorf("type: %w", ErrMissingAttribute))
			continue
		}
		facet := graph.FacetData{Type: typ, Name: f.Attr("name")}
		if cfg := f.Child("configuration"); cfg != nil {
			facet.Configuration = renderFragment(cfg)
		}
		if _, err := b.Add(modID, src, facet); err != nil {
			env.malformed(file, "facet "+facet.Name, err)
		}
	}
}

func parseCustomData(cd *filestore.Element, modID graph.EntityID, src graph.EntitySource, b *graph.Builder) {
	data := graph.ModuleCustomData{Key: cd.Attr("key"), Attributes: make(map[string]string)}
	for _, opt := range cd.ChildrenNamed("option") {
		data.Attributes[opt.Attr("name")] = opt.Attr("value")
	}
	_, _ = b.Add(modID, src, data)
}

// Save renders the module owned by this file. When the module is gone the
// descriptor is deleted.
func (s *moduleSerializer) Save(env *Env, readers []graph.Reader) (filestore.WriteResult, error) {
	mods := owned(s, graph.KindModule, readers)
	if len(mods) == 0 {
		return env.Store.Write(s.file, nil)
	}
	mod := mods[0]
	data := mod.Data.(graph.ModuleData)

	doc, err := env.Store.Read(s.file)
	if err != nil {
		doc = filestore.NewDocument("module")
	}
	// Root attributes that are not modelled are kept as found.
	if sys := mod.Source.ExternalSystem; sys != "" {
		doc.Root.SetAttr(externalModuleAttr, sys)
	} else {
		doc.Root.RemoveAttr(externalModuleAttr)
	}
	if data.Type != "" {
		doc.Root.SetAttr("type", data.Type)
	} else {
		doc.Root.RemoveAttr("type")
	}
	doc.Root.SetAttr("version", "4")

	doc.SetComponent(rootManagerComponent, s.renderRootManager(doc.Component(rootManagerComponent), mod, data, readers))
	doc.SetComponent(facetComponent, renderFacets(ownedChildren(s, mod.r, mod.ID, graph.KindFacet)))
	var custom *filestore.Element
	if cds := ownedChildren(s, mod.r, mod.ID, graph.KindModuleCustomData); len(cds) > 0 {
		custom = renderCustomData(cds[0].Data.(graph.ModuleCustomData))
	}
	doc.SetComponent(customDataComponent, custom)
	return env.Store.Write(s.file, doc)
}

// renderRootManager rebuilds the root manager component, keeping attributes
// and children of prev that are not modelled.
func (s *moduleSerializer) renderRootManager(prev *filestore.Element, mod located, data graph.ModuleData, readers []graph.Reader) *filestore.Element {
	comp := filestore.NewElement("component", "name", rootManagerComponent)
	if prev != nil {
		comp.Attrs = prev.Attrs
		for _, c := range prev.Children {
			if c.Name != "content" && c.Name != "orderEntry" {
				comp.Add(c)
			}
		}
	}
	for _, cr := range ownedChildren(s, mod.r, mod.ID, graph.KindContentRoot) {
		comp.Add(renderContentRoot(s, mod.r, cr))
	}
	for _, dep := range data.Dependencies {
		comp.Add(renderOrderEntry(dep, data.Name, readers))
	}
	return comp
}

func renderContentRoot(s Serializer, r graph.Reader, e graph.Entity) *filestore.Element {
	cr := e.Data.(graph.ContentRootData)
	el := filestore.NewElement("content", "url", cr.URL)
	for _, sr := range ownedChildren(s, r, e.ID, graph.KindSourceRoot) {
		el.Add(renderSourceFolder(sr.Data.(graph.SourceRootData)))
	}
	for _, u := range cr.ExcludedURLs {
		el.Add(filestore.NewElement("excludeFolder", "url", u))
	}
	for _, p := range cr.ExcludePatterns {
		el.Add(filestore.NewElement("excludePattern", "pattern", p))
	}
	return el
}

func renderSourceFolder(sr graph.SourceRootData) *filestore.Element {
	el := filestore.NewElement("sourceFolder", "url", sr.URL)
	switch sr.RootType {
	case graph.RootJavaSource:
		el.SetAttr("isTestSource", "false")
	case graph.RootJavaTest:
		el.SetAttr("isTestSource", "true")
	default:
		el.SetAttr("type", sr.RootType)
	}
	if sr.PackagePrefix != "" {
		el.SetAttr("packagePrefix", sr.PackagePrefix)
	}
	if sr.Generated {
		el.SetAttr("generated", "true")
	}
	return el
}

func renderOrderEntry(dep graph.Dependency, owner string, readers []graph.Reader) *filestore.Element {
	var el *filestore.Element
	switch dep.Kind {
	case graph.DependencyModuleSource:
		return filestore.NewElement("orderEntry", "type", "sourceFolder", "forTests", "false")
	case graph.DependencyInheritedSDK:
		return filestore.NewElement("orderEntry", "type", "inheritedJdk")
	case graph.DependencySDK:
		return filestore.NewElement("orderEntry", "type", "jdk", "jdkName", dep.Name, "jdkType", dep.SDKType)
	case graph.DependencyModule:
		el = filestore.NewElement("orderEntry", "type", "module", "module-name", dep.Name)
		addScope(el, dep)
		return el
	}
	if dep.Level == "module" {
		el = filestore.NewElement("orderEntry", "type", "module-library")
		addScope(el, dep)
		lib := graph.LibraryData{Name: dep.Name, Table: graph.ModuleTable(owner)}
		if e, ok := resolve(readers, graph.LibraryID(lib.Table, dep.Name)); ok {
			lib = e.Data.(graph.LibraryData)
		}
		el.Add(renderLibrary(lib, ""))
		return el
	}
	el = filestore.NewElement("orderEntry", "type", "library")
	addScope(el, dep)
	el.SetAttr("name", dep.Name)
	el.SetAttr("level", dep.Level)
	return el
}

func addScope(el *filestore.Element, dep graph.Dependency) {
	if dep.Exported {
		el.SetAttr("exported", "")
	}
	if dep.Scope != "" {
		el.SetAttr("scope", dep.Scope)
	}
}

func renderFacets(facets []graph.Entity) *filestore.Element {
	if len(facets) == 0 {
		return nil
	}
	comp := filestore.NewElement("component", "name", facetComponent)
	for _, e := range facets {
		f := e.Data.(graph.FacetData)
		el := comp.Add(filestore.NewElement("facet", "type", f.Type, "name", f.Name))
		if f.Configuration != "" {
			if cfg, err := filestore.Parse([]byte(f.Configuration)); err == nil {
				el.Add(cfg)
			}
		}
	}
	return comp
}

func renderCustomData(cd graph.ModuleCustomData) *filestore.Element {
	comp := filestore.NewElement("component", "name", customDataComponent)
	if cd.Key != "" {
		comp.SetAttr("key", cd.Key)
	}
	keys := make([]string, 0, len(cd.Attributes))
	for k := range cd.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		comp.Add(filestore.NewElement("option", "name", k, "value", cd.Attributes[k]))
	}
	return comp
}

// renderFragment renders el without the document header.
func renderFragment(el *filestore.Element) string {
	out := string(filestore.Render(el))
	_, body, _ := strings.Cut(out, "\n")
	return strings.TrimSpace(body)
}
