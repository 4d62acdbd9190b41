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

const moduleManagerComponent = "ProjectModuleManager"

// moduleListSerializer owns the module list file. It produces no entities
// itself; it names the module descriptors the registry instantiates
// serializers for.
type moduleListSerializer struct {
	file string
}

// NewModuleListSerializer returns the serializer of the module list at file.
func NewModuleListSerializer(file string) Serializer {
	return &moduleListSerializer{file: path.Clean(file)}
}

func (s *moduleListSerializer) File() string                   { return s.file }
func (s *moduleListSerializer) Shape() Shape                   { return ListFile }
func (s *moduleListSerializer) Kinds() []graph.Kind            { return nil }
func (s *moduleListSerializer) Module() (string, bool)         { return "", false }
func (s *moduleListSerializer) Owns(graph.EntitySource) bool   { return false }
func (s *moduleListSerializer) Load(*Env) (*graph.Builder, error) { return graph.New(), nil }

// ModuleFiles returns the descriptor paths the list names, in file order.
func (s *moduleListSerializer) ModuleFiles(env *Env) []string {
	doc, err := env.Store.Read(s.file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		env.malformed(s.file, "file", fmt.Errorf("%w: %w", ErrMalformedFile, err))
		return nil
	}
	comp := doc.Component(moduleManagerComponent)
	if comp == nil {
		return nil
	}
	modules := comp.Child("modules")
	if modules == nil {
		return nil
	}
	var files []string
	seen := make(map[string]bool)
	for _, m := range modules.ChildrenNamed("module") {
		fp, ok := m.LookupAttr("filepath")
		if !ok {
			env.malformed(s.file, "module", fmt.Errorf("filepath: %w", ErrMissingAttribute))
			continue
		}
		file := path.Clean(strings.TrimPrefix(fp, projectDirMacro))
		if seen[file] {
			env.malformed(s.file, "module "+file, ErrDuplicateEntity)
			continue
		}
		seen[file] = true
		files = append(files, file)
	}
	return files
}

// Save lists the descriptor of every module found in readers, sorted by
// path. Unloaded modules stay listed.
func (s *moduleListSerializer) Save(env *Env, readers []graph.Reader) (filestore.WriteResult, error) {
	var files []string
	for _, r := range readers {
		for e := range r.Entities(graph.KindModule) {
			if src := e.Source.FileSource(); src.Kind == graph.SourceFile {
				files = append(files, src.File)
			}
		}
	}
	sort.Strings(files)

	doc, err := env.Store.Read(s.file)
	if err != nil {
		doc = filestore.NewDocument("project")
	}
	if len(files) == 0 {
		doc.SetComponent(moduleManagerComponent, nil)
		return env.Store.Write(s.file, doc)
	}
	comp := filestore.NewElement("component", "name", moduleManagerComponent)
	list := comp.Add(filestore.NewElement("modules"))
	for _, f := range files {
		url := projectDirMacro + f
		list.Add(filestore.NewElement("module", "fileurl", "file://"+url, "filepath", url))
	}
	doc.SetComponent(moduleManagerComponent, comp)
	return env.Store.Write(s.file, doc)
}
