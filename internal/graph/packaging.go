package graph

import "fmt"

// PackagingElement is the closed union of packaging element variants.
// Composite variants may own further packaging elements.
type PackagingElement interface {
	Data
	// ElementType is the variant tag used in artifact files.
	ElementType() string
	Composite() bool
}

// Packaging element type tags.
const (
	ElementDirectory      = "directory"
	ElementArchive        = "archive"
	ElementModuleOutput   = "module-output"
	ElementLibraryFiles   = "library"
	ElementArtifactOutput = "artifact"
	ElementFileCopy       = "file-copy"
	ElementDirectoryCopy  = "dir-copy"
	ElementCustom         = "custom"
)

// DirectoryElement is a named directory in the artifact layout.
type DirectoryElement struct {
	Name string `json:"name"`
}

// ArchiveElement is a named archive in the artifact layout.
type ArchiveElement struct {
	Name string `json:"name"`
}

// ModuleOutputElement copies the compiled output of a module.
type ModuleOutputElement struct {
	Module string `json:"module"`
}

// LibraryFilesElement copies the class roots of a library.
type LibraryFilesElement struct {
	Table LibraryTable `json:"table"`
	Name  string       `json:"name"`
}

// ArtifactOutputElement includes the output of another artifact.
type ArtifactOutputElement struct {
	Artifact string `json:"artifact"`
}

// FileCopyElement copies one file, optionally renamed.
type FileCopyElement struct {
	Path       string `json:"path"`
	OutputName string `json:"output_name,omitempty"`
}

// DirectoryCopyElement copies a directory tree.
type DirectoryCopyElement struct {
	Path string `json:"path"`
}

// CustomElement is a packaging element contributed by a plugin.
type CustomElement struct {
	TypeID     string            `json:"type_id"`
	Properties map[string]string `json:"properties,omitempty"`
}

var (
	_ PackagingElement = DirectoryElement{}
	_ PackagingElement = ArchiveElement{}
	_ PackagingElement = ModuleOutputElement{}
	_ PackagingElement = LibraryFilesElement{}
	_ PackagingElement = ArtifactOutputElement{}
	_ PackagingElement = FileCopyElement{}
	_ PackagingElement = DirectoryCopyElement{}
	_ PackagingElement = CustomElement{}
)

func (DirectoryElement) Kind() Kind                       { return KindPackagingElement }
func (DirectoryElement) SymbolicID() (SymbolicID, bool)   { return SymbolicID{}, false }
func (DirectoryElement) Links() []SymbolicID              { return nil }
func (e DirectoryElement) replaceLink(_, _ SymbolicID) Data { return e }
func (DirectoryElement) ElementType() string              { return ElementDirectory }
func (DirectoryElement) Composite() bool                  { return true }

func (ArchiveElement) Kind() Kind                       { return KindPackagingElement }
func (ArchiveElement) SymbolicID() (SymbolicID, bool)   { return SymbolicID{}, false }
func (ArchiveElement) Links() []SymbolicID              { return nil }
func (e ArchiveElement) replaceLink(_, _ SymbolicID) Data { return e }
func (ArchiveElement) ElementType() string              { return ElementArchive }
func (ArchiveElement) Composite() bool                  { return true }

func (ModuleOutputElement) Kind() Kind                     { return KindPackagingElement }
func (ModuleOutputElement) SymbolicID() (SymbolicID, bool) { return SymbolicID{}, false }
func (e ModuleOutputElement) Links() []SymbolicID          { return []SymbolicID{ModuleID(e.Module)} }
func (e ModuleOutputElement) replaceLink(old, repl SymbolicID) Data {
	if old == ModuleID(e.Module) && repl.Kind == KindModule {
		e.Module = repl.Name
	}
	return e
}
func (ModuleOutputElement) ElementType() string { return ElementModuleOutput }
func (ModuleOutputElement) Composite() bool     { return false }

func (LibraryFilesElement) Kind() Kind                     { return KindPackagingElement }
func (LibraryFilesElement) SymbolicID() (SymbolicID, bool) { return SymbolicID{}, false }
func (e LibraryFilesElement) Links() []SymbolicID          { return []SymbolicID{LibraryID(e.Table, e.Name)} }
func (e LibraryFilesElement) replaceLink(old, repl SymbolicID) Data {
	if old == LibraryID(e.Table, e.Name) && repl.Kind == KindLibrary {
		e.Table = LibraryTable(repl.Scope)
		e.Name = repl.Name
	}
	return e
}
func (LibraryFilesElement) ElementType() string { return ElementLibraryFiles }
func (LibraryFilesElement) Composite() bool     { return false }

func (ArtifactOutputElement) Kind() Kind                     { return KindPackagingElement }
func (ArtifactOutputElement) SymbolicID() (SymbolicID, bool) { return SymbolicID{}, false }
func (e ArtifactOutputElement) Links() []SymbolicID          { return []SymbolicID{ArtifactID(e.Artifact)} }
func (e ArtifactOutputElement) replaceLink(old, repl SymbolicID) Data {
	if old == ArtifactID(e.Artifact) && repl.Kind == KindArtifact {
		e.Artifact = repl.Name
	}
	return e
}
func (ArtifactOutputElement) ElementType() string { return ElementArtifactOutput }
func (ArtifactOutputElement) Composite() bool     { return false }

func (FileCopyElement) Kind() Kind                       { return KindPackagingElement }
func (FileCopyElement) SymbolicID() (SymbolicID, bool)   { return SymbolicID{}, false }
func (FileCopyElement) Links() []SymbolicID              { return nil }
func (e FileCopyElement) replaceLink(_, _ SymbolicID) Data { return e }
func (FileCopyElement) ElementType() string              { return ElementFileCopy }
func (FileCopyElement) Composite() bool                  { return false }

func (DirectoryCopyElement) Kind() Kind                       { return KindPackagingElement }
func (DirectoryCopyElement) SymbolicID() (SymbolicID, bool)   { return SymbolicID{}, false }
func (DirectoryCopyElement) Links() []SymbolicID              { return nil }
func (e DirectoryCopyElement) replaceLink(_, _ SymbolicID) Data { return e }
func (DirectoryCopyElement) ElementType() string              { return ElementDirectoryCopy }
func (DirectoryCopyElement) Composite() bool                  { return false }

func (CustomElement) Kind() Kind                       { return KindPackagingElement }
func (CustomElement) SymbolicID() (SymbolicID, bool)   { return SymbolicID{}, false }
func (CustomElement) Links() []SymbolicID              { return nil }
func (e CustomElement) replaceLink(_, _ SymbolicID) Data { return e }
func (CustomElement) ElementType() string              { return ElementCustom }
func (CustomElement) Composite() bool                  { return false }

// NewPackagingElement returns the zero value of the variant tagged
// elementType.
func NewPackagingElement(elementType string) (PackagingElement, error) {
	switch elementType {
	case ElementDirectory:
		return DirectoryElement{}, nil
	case ElementArchive:
		return ArchiveElement{}, nil
	case ElementModuleOutput:
		return ModuleOutputElement{}, nil
	case ElementLibraryFiles:
		return LibraryFilesElement{}, nil
	case ElementArtifactOutput:
		return ArtifactOutputElement{}, nil
	case ElementFileCopy:
		return FileCopyElement{}, nil
	case ElementDirectoryCopy:
		return DirectoryCopyElement{}, nil
	case ElementCustom:
		return CustomElement{}, nil
	}
	return nil, fmt.Errorf("unknown packaging element type %q", elementType)
}
