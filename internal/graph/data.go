package graph

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// Data is the typed payload of an entity. The set of implementations is
// closed: every kind has one concrete struct, packaging elements have one
// struct per variant.
type Data interface {
	Kind() Kind
	// SymbolicID returns the persistent identifier, if the kind has one.
	SymbolicID() (SymbolicID, bool)
	// Links returns the symbolic IDs this entity refers to by soft link.
	Links() []SymbolicID

	replaceLink(old, repl SymbolicID) Data
}

// Equal reports whether a and b carry the same content. Nil and empty
// slices compare equal.
func Equal(a, b Data) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ja, jb)
}

// DependencyKind is the type of a module dependency entry.
type DependencyKind string

const (
	DependencyModuleSource DependencyKind = "sourceFolder"
	DependencyInheritedSDK DependencyKind = "inheritedJdk"
	DependencySDK          DependencyKind = "jdk"
	DependencyLibrary      DependencyKind = "library"
	DependencyModule       DependencyKind = "module"
)

// Dependency is one ordered entry of a module's dependency list. Library,
// module and SDK entries are soft links.
type Dependency struct {
	Kind DependencyKind `json:"kind"`
	Name string         `json:"name,omitempty"`
	// Level is the library table level: project, application or module.
	Level    string `json:"level,omitempty"`
	SDKType  string `json:"sdk_type,omitempty"`
	Scope    string `json:"scope,omitempty"`
	Exported bool   `json:"exported,omitempty"`
}

// Target returns the symbolic ID the entry links to. owner is the name of
// the declaring module, needed for module-level libraries.
func (d Dependency) Target(owner string) (SymbolicID, bool) {
	switch d.Kind {
	case DependencyModule:
		return ModuleID(d.Name), true
	case DependencySDK:
		return SDKID(d.Name, d.SDKType), true
	case DependencyLibrary:
		table, ok := TableForLevel(d.Level, owner)
		if !ok {
			return SymbolicID{}, false
		}
		return LibraryID(table, d.Name), true
	}
	return SymbolicID{}, false
}

// ModuleData describes a module.
type ModuleData struct {
	Name         string       `json:"name"`
	Type         string       `json:"type,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

func (ModuleData) Kind() Kind { return KindModule }

func (m ModuleData) SymbolicID() (SymbolicID, bool) { return ModuleID(m.Name), true }

func (m ModuleData) Links() []SymbolicID {
	var links []SymbolicID
	for _, d := range m.Dependencies {
		if target, ok := d.Target(m.Name); ok {
			links = append(links, target)
		}
	}
	return links
}

func (m ModuleData) replaceLink(old, repl SymbolicID) Data {
	deps := make([]Dependency, len(m.Dependencies))
	copy(deps, m.Dependencies)
	for i, d := range deps {
		target, ok := d.Target(m.Name)
		if !ok || target != old || repl.Kind != old.Kind {
			continue
		}
		switch d.Kind {
		case DependencyModule:
			deps[i].Name = repl.Name
		case DependencySDK:
			deps[i].Name = repl.Name
			deps[i].SDKType = repl.Scope
		case DependencyLibrary:
			deps[i].Name = repl.Name
			deps[i].Level = LibraryTable(repl.Scope).Level()
		}
	}
	m.Dependencies = deps
	return m
}

// ModuleCustomData is free-form per-module data; at most one per module.
type ModuleCustomData struct {
	Key        string            `json:"key"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (ModuleCustomData) Kind() Kind                       { return KindModuleCustomData }
func (ModuleCustomData) SymbolicID() (SymbolicID, bool)   { return SymbolicID{}, false }
func (ModuleCustomData) Links() []SymbolicID              { return nil }
func (d ModuleCustomData) replaceLink(_, _ SymbolicID) Data { return d }

// ContentRootData is a directory tree belonging to a module.
type ContentRootData struct {
	URL             string   `json:"url"`
	ExcludedURLs    []string `json:"excluded_urls,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
}

func (ContentRootData) Kind() Kind                       { return KindContentRoot }
func (ContentRootData) SymbolicID() (SymbolicID, bool)   { return SymbolicID{}, false }
func (ContentRootData) Links() []SymbolicID              { return nil }
func (d ContentRootData) replaceLink(_, _ SymbolicID) Data { return d }

// Source root types.
const (
	RootJavaSource       = "java-source"
	RootJavaTest         = "java-test"
	RootJavaResource     = "java-resource"
	RootJavaTestResource = "java-test-resource"
)

// SourceRootData is a source directory inside a content root.
type SourceRootData struct {
	URL           string `json:"url"`
	RootType      string `json:"root_type"`
	PackagePrefix string `json:"package_prefix,omitempty"`
	Generated     bool   `json:"generated,omitempty"`
}

func (SourceRootData) Kind() Kind                       { return KindSourceRoot }
func (SourceRootData) SymbolicID() (SymbolicID, bool)   { return SymbolicID{}, false }
func (SourceRootData) Links() []SymbolicID              { return nil }
func (d SourceRootData) replaceLink(_, _ SymbolicID) Data { return d }

// FacetData is a framework configuration attached to a module.
// Configuration holds the facet's configuration element as raw XML.
type FacetData struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	Configuration string `json:"configuration,omitempty"`
}

func (FacetData) Kind() Kind                       { return KindFacet }
func (FacetData) SymbolicID() (SymbolicID, bool)   { return SymbolicID{}, false }
func (FacetData) Links() []SymbolicID              { return nil }
func (d FacetData) replaceLink(_, _ SymbolicID) Data { return d }

// Library root types.
const (
	RootClasses = "CLASSES"
	RootSources = "SOURCES"
	RootJavadoc = "JAVADOC"
)

// LibraryRoot is one root URL of a library or SDK.
type LibraryRoot struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// LibraryData describes a library in one of the library tables.
type LibraryData struct {
	Name          string        `json:"name"`
	Table         LibraryTable  `json:"table"`
	Type          string        `json:"type,omitempty"`
	Roots         []LibraryRoot `json:"roots,omitempty"`
	ExcludedRoots []string      `json:"excluded_roots,omitempty"`
}

func (LibraryData) Kind() Kind { return KindLibrary }

func (l LibraryData) SymbolicID() (SymbolicID, bool) { return LibraryID(l.Table, l.Name), true }

// Links of a module-level library point at the owning module, so renaming
// the module renames the library.
func (l LibraryData) Links() []SymbolicID {
	if mod, ok := l.Table.Module(); ok {
		return []SymbolicID{ModuleID(mod)}
	}
	return nil
}

func (l LibraryData) replaceLink(old, repl SymbolicID) Data {
	if mod, ok := l.Table.Module(); ok && old == ModuleID(mod) && repl.Kind == KindModule {
		l.Table = ModuleTable(repl.Name)
	}
	return l
}

// SDKData describes a development kit registered in the global scope.
type SDKData struct {
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Version  string        `json:"version,omitempty"`
	HomePath string        `json:"home_path,omitempty"`
	Roots    []LibraryRoot `json:"roots,omitempty"`
}

func (SDKData) Kind() Kind                         { return KindSDK }
func (s SDKData) SymbolicID() (SymbolicID, bool)   { return SDKID(s.Name, s.Type), true }
func (SDKData) Links() []SymbolicID                { return nil }
func (s SDKData) replaceLink(_, _ SymbolicID) Data { return s }

// ArtifactData describes a build artifact. Its layout is the packaging
// element tree below it.
type ArtifactData struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	OutputURL   string `json:"output_url,omitempty"`
	BuildOnMake bool   `json:"build_on_make,omitempty"`
}

func (ArtifactData) Kind() Kind                         { return KindArtifact }
func (a ArtifactData) SymbolicID() (SymbolicID, bool)   { return ArtifactID(a.Name), true }
func (ArtifactData) Links() []SymbolicID                { return nil }
func (a ArtifactData) replaceLink(_, _ SymbolicID) Data { return a }
