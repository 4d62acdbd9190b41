package serializer

import (
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/jward/modelsync/internal/filestore"
	"github.com/jward/modelsync/internal/graph"
	"github.com/jward/modelsync/internal/provenance"
)

// entityCodec translates the root entities of one component.
type entityCodec interface {
	component() string
	entityTag() string
	kind() graph.Kind
	// name is the entity name files are named after.
	name(d graph.Data) string
	parse(env *Env, file string, el *filestore.Element, src graph.EntitySource, b *graph.Builder)
	render(r graph.Reader, e graph.Entity) *filestore.Element
}

// DirectoryFactory describes a directory whose member files each hold
// entities of one component.
type DirectoryFactory struct {
	Dir   string
	codec entityCodec
}

// LibrariesDirectory is the factory for project library files.
func LibrariesDirectory(dir string) DirectoryFactory {
	return DirectoryFactory{Dir: dir, codec: libraryCodec{table: graph.ProjectTable}}
}

// ArtifactsDirectory is the factory for artifact files.
func ArtifactsDirectory(dir string) DirectoryFactory {
	return DirectoryFactory{Dir: dir, codec: artifactCodec{}}
}

// New returns the serializer of the member file with source src.
func (f DirectoryFactory) New(index *provenance.Index, src graph.EntitySource) Serializer {
	return &dirFileSerializer{dir: f.Dir, src: src.FileSource(), index: index, codec: f.codec}
}

// Matches reports whether src names a file of this directory.
func (f DirectoryFactory) Matches(src graph.EntitySource) bool {
	return src.Kind == graph.SourceDirectoryFile && src.Dir == path.Clean(f.Dir)
}

// FileName returns the name a member file for an entity called name gets.
func (f DirectoryFactory) FileName(index *provenance.Index, name string, owner graph.EntitySource) string {
	return index.AllocateName(f.Dir, name, ".xml", owner)
}

type dirFileSerializer struct {
	dir   string
	src   graph.EntitySource
	index *provenance.Index
	codec entityCodec
}

func (s *dirFileSerializer) File() string {
	file, err := s.index.ActualURL(s.src)
	if err != nil {
		return ""
	}
	return file
}

func (s *dirFileSerializer) Shape() Shape           { return DirectoryFile }
func (s *dirFileSerializer) Kinds() []graph.Kind    { return []graph.Kind{s.codec.kind()} }
func (s *dirFileSerializer) Module() (string, bool) { return "", false }

// Source returns the provenance source of the member file.
func (s *dirFileSerializer) Source() graph.EntitySource { return s.src }

func (s *dirFileSerializer) Owns(src graph.EntitySource) bool {
	return src.FileSource() == s.src
}

func (s *dirFileSerializer) Load(env *Env) (*graph.Builder, error) {
	b := graph.New()
	file, err := s.index.ActualURL(s.src)
	if err != nil {
		return nil, err
	}
	doc, err := env.Store.Read(file)
	if errors.Is(err, fs.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		env.malformed(file, "file", fmt.Errorf("%w: %w", ErrMalformedFile, err))
		return b, nil
	}
	comp := doc.Root
	if comp.Name != "component" {
		comp = doc.Component(s.codec.component())
	}
	if comp == nil || comp.Attr("name") != s.codec.component() {
		env.malformed(file, "component "+s.codec.component(), ErrMissingAttribute)
		return b, nil
	}
	for _, el := range comp.ChildrenNamed(s.codec.entityTag()) {
		s.codec.parse(env, file, el, s.src, b)
	}
	return b, nil
}

// Save writes the owned entities, renaming the file when the first entity's
// name no longer matches it. A file with no entities left is deleted.
func (s *dirFileSerializer) Save(env *Env, readers []graph.Reader) (filestore.WriteResult, error) {
	file, err := s.index.ActualURL(s.src)
	if err != nil {
		return filestore.Unchanged, err
	}
	entities := owned(s, s.codec.kind(), readers)
	if len(entities) == 0 {
		return env.Store.Write(file, nil)
	}

	comp := filestore.NewElement("component", "name", s.codec.component())
	for _, e := range entities {
		comp.Add(s.codec.render(e.r, e.Entity))
	}
	doc := &filestore.Document{Root: comp}

	want := s.index.AllocateName(s.dir, s.codec.name(entities[0].Data), ".xml", s.src)
	if want == path.Base(file) {
		return env.Store.Write(file, doc)
	}

	// The old file goes only once the new one is on disk.
	target := path.Join(s.dir, want)
	if _, err := env.Store.Write(target, doc); err != nil {
		return filestore.Unchanged, fmt.Errorf("rename %s: %w", file, err)
	}
	if err := env.Store.Delete(file); err != nil {
		return filestore.Written, fmt.Errorf("rename %s: %w", file, err)
	}
	if err := s.index.Move(s.src, want); err != nil {
		return filestore.Written, err
	}
	env.Logger.Debug("renamed file", "component", "serializer", "file", file, "to", want)
	return filestore.Written, nil
}

// tableFileSerializer owns a single file with one component listing root
// entities, such as the global SDK table.
type tableFileSerializer struct {
	file    string
	rootTag string
	codec   entityCodec
}

func (s *tableFileSerializer) File() string           { return s.file }
func (s *tableFileSerializer) Shape() Shape           { return SingleFile }
func (s *tableFileSerializer) Kinds() []graph.Kind    { return []graph.Kind{s.codec.kind()} }
func (s *tableFileSerializer) Module() (string, bool) { return "", false }

func (s *tableFileSerializer) Owns(src graph.EntitySource) bool {
	return sameFile(s.file)(src.FileSource())
}

func (s *tableFileSerializer) Load(env *Env) (*graph.Builder, error) {
	b := graph.New()
	comp, err := env.Store.ReadComponent(s.file, s.codec.component())
	if err != nil {
		env.malformed(s.file, "file", fmt.Errorf("%w: %w", ErrMalformedFile, err))
		return b, nil
	}
	if comp == nil {
		return b, nil
	}
	for _, el := range comp.ChildrenNamed(s.codec.entityTag()) {
		s.codec.parse(env, s.file, el, graph.ExactFile(s.file), b)
	}
	return b, nil
}

func (s *tableFileSerializer) Save(env *Env, readers []graph.Reader) (filestore.WriteResult, error) {
	doc, err := env.Store.Read(s.file)
	if err != nil {
		doc = &filestore.Document{Root: filestore.NewElement(s.rootTag)}
	}
	entities := owned(s, s.codec.kind(), readers)
	if len(entities) == 0 {
		doc.SetComponent(s.codec.component(), nil)
		return env.Store.Write(s.file, doc)
	}
	comp := filestore.NewElement("component", "name", s.codec.component())
	for _, e := range entities {
		comp.Add(s.codec.render(e.r, e.Entity))
	}
	doc.SetComponent(s.codec.component(), comp)
	return env.Store.Write(s.file, doc)
}
