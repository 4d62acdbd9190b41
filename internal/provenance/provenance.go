// Package provenance maps entity sources to the files that back them.
//
// Files inside directory-backed serializers are identified by a small
// per-directory integer so that an entity source stays the same value when
// the file is renamed on save. The index is the only place that knows the
// current file name for such an ID.
package provenance

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"sort"

	"github.com/jward/modelsync/internal/graph"
)

// ErrUnregisteredSource is returned when a directory source has no file
// registered for it. Outside the consistency checker this indicates a bug.
var ErrUnregisteredSource = errors.New("unregistered entity source")

// Entry is one registered (directory, file ID) -> file name mapping.
type Entry struct {
	Dir  string `json:"dir"`
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Index is the provenance index. It is not safe for concurrent mutation;
// the reconciler owns it during load, reload and save.
type Index struct {
	dirs map[string]*dirTable
}

type dirTable struct {
	names map[int]string
	ids   map[string]int
	next  int
}

func newDirTable() *dirTable {
	return &dirTable{names: make(map[int]string), ids: make(map[string]int), next: 1}
}

// New returns an empty index.
func New() *Index {
	return &Index{dirs: make(map[string]*dirTable)}
}

func (x *Index) table(dir string) *dirTable {
	t, ok := x.dirs[dir]
	if !ok {
		t = newDirTable()
		x.dirs[dir] = t
	}
	return t
}

// RegisterSource records that file fileURL carries ID id in its directory,
// replacing any previous registration of either.
func (x *Index) RegisterSource(fileURL string, id int) {
	dir, name := path.Split(fileURL)
	dir = path.Clean(dir)
	t := x.table(dir)
	if prev, ok := t.ids[name]; ok {
		delete(t.names, prev)
	}
	if prevName, ok := t.names[id]; ok {
		delete(t.ids, prevName)
	}
	t.names[id] = name
	t.ids[name] = id
	if id >= t.next {
		t.next = id + 1
	}
}

// SourceFor returns the directory source for fileURL, assigning a fresh ID
// when the file has not been seen before.
func (x *Index) SourceFor(fileURL string) graph.EntitySource {
	if src, ok := x.Lookup(fileURL); ok {
		return src
	}
	dir := path.Dir(fileURL)
	id := x.table(dir).next
	x.RegisterSource(fileURL, id)
	return graph.FileInDirectory(dir, id)
}

// Lookup returns the directory source registered for fileURL.
func (x *Index) Lookup(fileURL string) (graph.EntitySource, bool) {
	dir, name := path.Dir(fileURL), path.Base(fileURL)
	t, ok := x.dirs[dir]
	if !ok {
		return graph.EntitySource{}, false
	}
	id, ok := t.ids[name]
	if !ok {
		return graph.EntitySource{}, false
	}
	return graph.FileInDirectory(dir, id), true
}

// ActualURL returns the file backing src.
func (x *Index) ActualURL(src graph.EntitySource) (string, error) {
	switch src.Kind {
	case graph.SourceFile:
		return src.File, nil
	case graph.SourceDirectoryFile:
		if t, ok := x.dirs[src.Dir]; ok {
			if name, ok := t.names[src.FileID]; ok {
				return path.Join(src.Dir, name), nil
			}
		}
		return "", fmt.Errorf("%s: %w", src, ErrUnregisteredSource)
	}
	return "", fmt.Errorf("%s has no backing file: %w", src, ErrUnregisteredSource)
}

// SourcesUnderDirectory returns the registered sources of dir ordered by ID.
func (x *Index) SourcesUnderDirectory(dir string) []graph.EntitySource {
	t, ok := x.dirs[path.Clean(dir)]
	if !ok {
		return nil
	}
	ids := make([]int, 0, len(t.names))
	for id := range t.names {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]graph.EntitySource, len(ids))
	for i, id := range ids {
		out[i] = graph.FileInDirectory(path.Clean(dir), id)
	}
	return out
}

// Unregister forgets src. Unknown sources are ignored.
func (x *Index) Unregister(src graph.EntitySource) {
	if src.Kind != graph.SourceDirectoryFile {
		return
	}
	t, ok := x.dirs[src.Dir]
	if !ok {
		return
	}
	if name, ok := t.names[src.FileID]; ok {
		delete(t.ids, name)
		delete(t.names, src.FileID)
	}
}

// Move points src at a new file name inside its directory.
func (x *Index) Move(src graph.EntitySource, name string) error {
	if _, err := x.ActualURL(src); err != nil {
		return err
	}
	x.RegisterSource(path.Join(src.Dir, name), src.FileID)
	return nil
}

// Clone returns an independent copy of the index.
func (x *Index) Clone() *Index {
	c := New()
	for _, e := range x.Entries() {
		c.RegisterSource(path.Join(e.Dir, e.Name), e.ID)
	}
	for dir, t := range x.dirs {
		c.table(dir).next = t.next
	}
	return c
}

// Entries lists every registration, sorted by directory then ID.
func (x *Index) Entries() []Entry {
	var out []Entry
	for dir, t := range x.dirs {
		for id, name := range t.names {
			out = append(out, Entry{Dir: dir, ID: id, Name: name})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dir != out[j].Dir {
			return out[i].Dir < out[j].Dir
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Restore rebuilds an index from persisted entries.
func Restore(entries []Entry) *Index {
	x := New()
	for _, e := range entries {
		x.RegisterSource(path.Join(e.Dir, e.Name), e.ID)
	}
	return x
}
