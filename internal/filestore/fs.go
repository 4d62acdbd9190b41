package filestore

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FS is the file system the configuration lives on. Paths are slash
// separated and relative to the project root.
type FS interface {
	ReadFile(name string) ([]byte, error)
	// WriteFile creates missing parent directories.
	WriteFile(name string, data []byte) error
	// Remove deletes a file. Removing a missing file is not an error.
	Remove(name string) error
	// ReadDir returns the names of the regular files in dir, sorted. A
	// missing directory yields no names.
	ReadDir(dir string) ([]string, error)
	Exists(name string) bool
}

// OSFS is an FS rooted at a directory on disk.
type OSFS struct {
	root string
}

var _ FS = (*OSFS)(nil)

// NewOSFS returns an FS for the project at root.
func NewOSFS(root string) *OSFS {
	return &OSFS{root: root}
}

// Root returns the directory the FS is rooted at.
func (f *OSFS) Root() string { return f.root }

func (f *OSFS) abs(name string) string {
	return filepath.Join(f.root, filepath.FromSlash(name))
}

func (f *OSFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(f.abs(name))
}

func (f *OSFS) WriteFile(name string, data []byte) error {
	p := f.abs(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (f *OSFS) Remove(name string) error {
	err := os.Remove(f.abs(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (f *OSFS) ReadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(f.abs(dir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (f *OSFS) Exists(name string) bool {
	_, err := os.Stat(f.abs(name))
	return err == nil
}

// MemFS is an in-memory FS. It is safe for concurrent use.
type MemFS struct {
	mu    sync.RWMutex
	files map[string][]byte
}

var _ FS = (*MemFS)(nil)

// NewMemFS returns an empty in-memory file system.
func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

func (m *MemFS) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path.Clean(name)]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *MemFS) WriteFile(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path.Clean(name)] = append([]byte(nil), data...)
	return nil
}

func (m *MemFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path.Clean(name))
	return nil
}

func (m *MemFS) ReadDir(dir string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := path.Clean(dir) + "/"
	var names []string
	for name := range m.files {
		if rest, ok := strings.CutPrefix(name, prefix); ok && !strings.Contains(rest, "/") {
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemFS) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[path.Clean(name)]
	return ok
}

// Files returns every file path, sorted.
func (m *MemFS) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddFile is a test helper that stores content at name.
func (m *MemFS) AddFile(name, content string) {
	_ = m.WriteFile(name, []byte(content))
}
