package filestore

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
)

// Document is a parsed configuration file.
type Document struct {
	Root *Element
}

// NewDocument returns an empty document with the given root tag.
func NewDocument(rootTag string) *Document {
	return &Document{Root: NewElement(rootTag, "version", "4")}
}

// Component returns the component called name, or nil.
func (d *Document) Component(name string) *Element {
	for _, c := range d.Root.ChildrenNamed("component") {
		if c.Attr("name") == name {
			return c
		}
	}
	return nil
}

// ComponentNames lists the components of d in document order.
func (d *Document) ComponentNames() []string {
	var names []string
	for _, c := range d.Root.ChildrenNamed("component") {
		names = append(names, c.Attr("name"))
	}
	return names
}

// SetComponent replaces component name with c. A nil c removes it. New
// components are inserted in name order.
func (d *Document) SetComponent(name string, c *Element) {
	kept := d.Root.Children[:0:0]
	for _, ch := range d.Root.Children {
		if ch.Name == "component" && ch.Attr("name") == name {
			continue
		}
		kept = append(kept, ch)
	}
	d.Root.Children = kept
	if c == nil {
		return
	}
	c.Name = "component"
	if _, ok := c.LookupAttr("name"); !ok {
		c.Attrs = append([]Attr{{Name: "name", Value: name}}, c.Attrs...)
	}
	i := sort.Search(len(d.Root.Children), func(i int) bool {
		ch := d.Root.Children[i]
		return ch.Name == "component" && ch.Attr("name") > name
	})
	d.Root.Children = append(d.Root.Children, nil)
	copy(d.Root.Children[i+1:], d.Root.Children[i:])
	d.Root.Children[i] = c
}

// Empty reports whether d has no content worth keeping on disk.
func (d *Document) Empty() bool {
	return len(d.Root.Children) == 0
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	return &Document{Root: d.Root.Clone()}
}

// WriteResult tells what Write did to a file.
type WriteResult uint8

const (
	Unchanged WriteResult = iota
	Written
	Deleted
)

func (r WriteResult) String() string {
	switch r {
	case Written:
		return "written"
	case Deleted:
		return "deleted"
	}
	return "unchanged"
}

// Store reads and writes documents, caching parsed files for the duration
// of one load batch. It is safe for concurrent use.
type Store struct {
	fs     FS
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*Document
}

// NewStore returns a store over fsys.
func NewStore(fsys FS, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{fs: fsys, logger: logger, cache: make(map[string]*Document)}
}

// FS returns the underlying file system.
func (s *Store) FS() FS { return s.fs }

// Read returns a private copy of the parsed file. A missing file yields an
// error matching fs.ErrNotExist.
func (s *Store) Read(file string) (*Document, error) {
	file = path.Clean(file)
	s.mu.Lock()
	cached, ok := s.cache[file]
	s.mu.Unlock()
	if ok {
		return cached.Clone(), nil
	}

	data, err := s.fs.ReadFile(file)
	if err != nil {
		return nil, err
	}
	root, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	doc := &Document{Root: root}
	s.mu.Lock()
	s.cache[file] = doc
	s.mu.Unlock()
	return doc.Clone(), nil
}

// ReadComponent returns component name of file, or nil when either is
// missing.
func (s *Store) ReadComponent(file, name string) (*Element, error) {
	doc, err := s.Read(file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.Component(name), nil
}

// Write stores doc at file. An empty document deletes the file; identical
// bytes are not rewritten.
func (s *Store) Write(file string, doc *Document) (WriteResult, error) {
	file = path.Clean(file)
	if doc == nil || doc.Empty() {
		if !s.fs.Exists(file) {
			s.forget(file)
			return Unchanged, nil
		}
		if err := s.fs.Remove(file); err != nil {
			return Unchanged, fmt.Errorf("remove %s: %w", file, err)
		}
		s.forget(file)
		s.logger.Debug("deleted empty file", "component", "filestore", "file", file)
		return Deleted, nil
	}

	data := Render(doc.Root)
	if existing, err := s.fs.ReadFile(file); err == nil && bytes.Equal(existing, data) {
		return Unchanged, nil
	}
	if err := s.fs.WriteFile(file, data); err != nil {
		return Unchanged, fmt.Errorf("write %s: %w", file, err)
	}
	s.mu.Lock()
	s.cache[file] = doc.Clone()
	s.mu.Unlock()
	s.logger.Debug("wrote file", "component", "filestore", "file", file)
	return Written, nil
}

// Delete removes file.
func (s *Store) Delete(file string) error {
	s.forget(path.Clean(file))
	return s.fs.Remove(file)
}

// Exists reports whether file is on disk.
func (s *Store) Exists(file string) bool { return s.fs.Exists(file) }

// List returns the paths of the files in dir with extension ext.
func (s *Store) List(dir, ext string) ([]string, error) {
	names, err := s.fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []string
	for _, n := range names {
		if strings.HasSuffix(n, ext) {
			out = append(out, path.Join(dir, n))
		}
	}
	return out, nil
}

// Invalidate drops cached content of files.
func (s *Store) Invalidate(files ...string) {
	for _, f := range files {
		s.forget(path.Clean(f))
	}
}

// Reset ends a load batch, dropping all cached content.
func (s *Store) Reset() {
	s.mu.Lock()
	s.cache = make(map[string]*Document)
	s.mu.Unlock()
}

func (s *Store) forget(file string) {
	s.mu.Lock()
	delete(s.cache, file)
	s.mu.Unlock()
}
