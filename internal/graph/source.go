package graph

import "fmt"

// SourceKind discriminates entity sources.
type SourceKind uint8

const (
	// SourceFile marks an entity declared in one exactly named file.
	SourceFile SourceKind = iota + 1
	// SourceDirectoryFile marks an entity declared in a file of a directory;
	// the file is identified by a per-directory integer ID whose file name
	// is tracked by the provenance index.
	SourceDirectoryFile
	// SourceStub marks a placeholder parent created by a partial parse. Stub
	// entities are never saved and are matched by symbolic ID on merge.
	SourceStub
)

// EntitySource records where an entity came from. It is a comparable value
// so it can key maps and be persisted.
type EntitySource struct {
	Kind   SourceKind `json:"kind"`
	File   string     `json:"file,omitempty"`
	Dir    string     `json:"dir,omitempty"`
	FileID int        `json:"file_id,omitempty"`
	// ExternalSystem is set for entities imported from an external build
	// system. The backing file is described by the other fields.
	ExternalSystem string `json:"external_system,omitempty"`
}

// ExactFile is the source of entities declared in path.
func ExactFile(path string) EntitySource {
	return EntitySource{Kind: SourceFile, File: path}
}

// FileInDirectory is the source of entities declared in the file with
// per-directory ID id inside dir.
func FileInDirectory(dir string, id int) EntitySource {
	return EntitySource{Kind: SourceDirectoryFile, Dir: dir, FileID: id}
}

// Imported marks inner as produced by an external build system.
func Imported(system string, inner EntitySource) EntitySource {
	inner.ExternalSystem = system
	return inner
}

// Stub is the source of placeholder parents.
func Stub() EntitySource {
	return EntitySource{Kind: SourceStub}
}

// IsStub reports whether s is a placeholder source.
func (s EntitySource) IsStub() bool { return s.Kind == SourceStub }

// IsZero reports whether s is unset.
func (s EntitySource) IsZero() bool { return s == EntitySource{} }

// FileSource returns s without its external system marker, identifying only the
// backing file.
func (s EntitySource) FileSource() EntitySource {
	s.ExternalSystem = ""
	return s
}

func (s EntitySource) String() string {
	var base string
	switch s.Kind {
	case SourceFile:
		base = s.File
	case SourceDirectoryFile:
		base = fmt.Sprintf("%s#%d", s.Dir, s.FileID)
	case SourceStub:
		base = "<stub>"
	default:
		base = "<none>"
	}
	if s.ExternalSystem != "" {
		return base + " [" + s.ExternalSystem + "]"
	}
	return base
}
