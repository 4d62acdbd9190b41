package graph

import "strings"

// SymbolicID is a content-derived identifier that survives reloads and
// reorderings. Unlike EntityID it means the same thing in every snapshot.
type SymbolicID struct {
	Kind Kind `json:"kind"`
	// Scope is the table the name is unique in: the library table for
	// libraries, the SDK type for SDKs, empty otherwise.
	Scope string `json:"scope,omitempty"`
	Name  string `json:"name"`
}

// IsZero reports whether id is unset.
func (id SymbolicID) IsZero() bool { return id == SymbolicID{} }

func (id SymbolicID) String() string {
	if id.Scope == "" {
		return id.Kind.String() + ":" + id.Name
	}
	return id.Kind.String() + ":" + id.Scope + "/" + id.Name
}

// ModuleID identifies the module called name.
func ModuleID(name string) SymbolicID {
	return SymbolicID{Kind: KindModule, Name: name}
}

// LibraryID identifies library name in table.
func LibraryID(table LibraryTable, name string) SymbolicID {
	return SymbolicID{Kind: KindLibrary, Scope: string(table), Name: name}
}

// SDKID identifies an SDK by name and type.
func SDKID(name, sdkType string) SymbolicID {
	return SymbolicID{Kind: KindSDK, Scope: sdkType, Name: name}
}

// ArtifactID identifies the artifact called name.
func ArtifactID(name string) SymbolicID {
	return SymbolicID{Kind: KindArtifact, Name: name}
}

// LibraryTable names the table a library belongs to.
type LibraryTable string

const (
	ProjectTable     LibraryTable = "project"
	ApplicationTable LibraryTable = "application"

	moduleTablePrefix = "module:"
)

// ModuleTable is the library table private to module name.
func ModuleTable(name string) LibraryTable {
	return LibraryTable(moduleTablePrefix + name)
}

// Module returns the owning module of a module-level table.
func (t LibraryTable) Module() (string, bool) {
	if rest, ok := strings.CutPrefix(string(t), moduleTablePrefix); ok {
		return rest, true
	}
	return "", false
}

// Level is the table level as written in configuration files:
// "project", "application" or "module".
func (t LibraryTable) Level() string {
	if _, ok := t.Module(); ok {
		return "module"
	}
	return string(t)
}

// TableForLevel maps a configuration level back to a table. owner is the
// declaring module, used for the "module" level.
func TableForLevel(level, owner string) (LibraryTable, bool) {
	switch level {
	case "project":
		return ProjectTable, true
	case "application":
		return ApplicationTable, true
	case "module":
		if owner == "" {
			return "", false
		}
		return ModuleTable(owner), true
	}
	return "", false
}
