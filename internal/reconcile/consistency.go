package reconcile

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"sort"
	"strings"

	"github.com/jward/modelsync/internal/filestore"
	"github.com/jward/modelsync/internal/graph"
	"github.com/jward/modelsync/internal/provenance"
	"github.com/jward/modelsync/internal/serializer"
)

// ProblemKind classifies a consistency problem.
type ProblemKind string

const (
	// UnregisteredSource: an entity source has no registered file.
	UnregisteredSource ProblemKind = "unregistered-source"
	// UnownedSource: no live serializer reads or writes an entity source.
	UnownedSource ProblemKind = "unowned-source"
	// StaleFileID: a directory file ID is registered but nothing owns it.
	StaleFileID ProblemKind = "stale-file-id"
	// UnknownFile: a file on disk has no live serializer.
	UnknownFile ProblemKind = "unknown-file"
	// MissingFile: a live serializer's file is not on disk although a
	// fresh scan would not create it.
	MissingFile ProblemKind = "missing-file"
)

// ConsistencyError is one desynchronization between the registry, the
// provenance index, the partitions and the disk.
type ConsistencyError struct {
	Kind   ProblemKind
	File   string
	Source graph.EntitySource
	Detail string
}

func (e ConsistencyError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.File != "" {
		b.WriteString(" " + e.File)
	}
	if !e.Source.IsZero() {
		b.WriteString(" (" + e.Source.String() + ")")
	}
	if e.Detail != "" {
		b.WriteString(": " + e.Detail)
	}
	return b.String()
}

// ConsistencyReport collects the problems found by CheckConsistency.
type ConsistencyReport struct {
	Problems []ConsistencyError
}

// OK reports whether no problem was found.
func (r ConsistencyReport) OK() bool { return len(r.Problems) == 0 }

// Err returns the problems joined into one error, or nil.
func (r ConsistencyReport) Err() error {
	errs := make([]error, len(r.Problems))
	for i, p := range r.Problems {
		errs[i] = p
	}
	return errors.Join(errs...)
}

func (r *ConsistencyReport) add(kind ProblemKind, file string, src graph.EntitySource, detail string) {
	r.Problems = append(r.Problems, ConsistencyError{Kind: kind, File: file, Source: src, Detail: detail})
}

// CheckConsistency re-derives the serializer set from the files on disk and
// compares it, the provenance index and the entity sources of st with the
// live registry. It changes nothing, so repeated calls agree.
//
// Two divergences are tolerated: a directory file whose serializer yields
// no entities, and a module file named by the module list but missing from
// disk.
func (r *Reconciler) CheckConsistency(st State) ConsistencyReport {
	var report ConsistencyReport
	live := r.registry
	index := live.Index()

	scratchIndex := index.Clone()
	fresh := live.Fresh(scratchIndex)
	scratchEnv := serializer.NewEnv(filestore.NewStore(r.env.Store.FS(), r.logger), scratchIndex, nil, r.logger)
	fresh.Reconcile(scratchEnv, nil)

	liveFiles := live.Files()
	freshFiles := fresh.Files()
	for _, f := range freshFiles {
		if !slices.Contains(liveFiles, f) {
			report.add(UnknownFile, f, graph.EntitySource{}, "file exists but has no live serializer")
		}
	}

	var sources []graph.EntitySource
	for _, rd := range st.Readers() {
		sources = append(sources, rd.Sources()...)
	}
	slices.SortFunc(sources, compareSources)
	sources = slices.Compact(sources)
	for _, src := range sources {
		if src.IsStub() {
			continue
		}
		file, err := index.ActualURL(src.FileSource())
		if err != nil {
			report.add(UnregisteredSource, "", src, err.Error())
			continue
		}
		if _, ok := live.Owner(src); !ok {
			report.add(UnownedSource, file, src, "no live serializer owns the source")
		}
	}

	for _, e := range index.Entries() {
		src := graph.FileInDirectory(e.Dir, e.ID)
		if _, ok := live.Owner(src); !ok {
			report.add(StaleFileID, e.Dir+"/"+e.Name, src, "registered file ID has no serializer")
		}
	}

	for _, s := range live.All() {
		f := s.File()
		if slices.Contains(freshFiles, f) || r.env.Store.Exists(f) {
			continue
		}
		if owned := slices.ContainsFunc(sources, s.Owns); owned {
			// Unsaved entities; the file appears on the next save.
			continue
		}
		report.add(MissingFile, f, graph.EntitySource{}, fmt.Sprintf("%s serializer has no file and no entities", s.Shape()))
	}

	sort.SliceStable(report.Problems, func(i, j int) bool {
		return report.Problems[i].Error() < report.Problems[j].Error()
	})
	return report
}

// Mismatch is a file whose saved form differs from the disk.
type Mismatch struct {
	File string
	// Kind is "changed", "created" or "deleted".
	Kind string
}

// Verify renders the partitions into memory and compares the result with
// the files on disk. Components named in volatile are ignored in both. The
// disk, the registry and the provenance index are left untouched.
func (r *Reconciler) Verify(st State, volatile []string) ([]Mismatch, error) {
	disk := r.env.Store.FS()
	mem := filestore.NewMemFS()
	scratchIndex := r.registry.Index().Clone()
	fresh := r.registry.Fresh(scratchIndex)

	// Copy every file a fresh scan knows about, then scan the copy.
	scanEnv := serializer.NewEnv(filestore.NewStore(disk, r.logger), scratchIndex.Clone(), nil, r.logger)
	scan := r.registry.Fresh(scanEnv.Index)
	scan.Reconcile(scanEnv, nil)
	original := make(map[string][]byte)
	for _, f := range scan.Files() {
		data, err := disk.ReadFile(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("verify: read %s: %w", f, err)
		}
		original[f] = data
		if err := mem.WriteFile(f, data); err != nil {
			return nil, err
		}
	}

	env := serializer.NewEnv(filestore.NewStore(mem, r.logger), scratchIndex, nil, r.logger)
	fresh.Reconcile(env, nil)
	for _, rd := range st.Readers() {
		for _, src := range rd.Sources() {
			if !src.IsStub() {
				fresh.Ensure(src)
			}
		}
	}
	for _, s := range fresh.All() {
		if _, err := s.Save(env, st.Readers()); err != nil {
			return nil, fmt.Errorf("verify: render %s: %w", s.File(), err)
		}
	}

	var out []Mismatch
	rendered := mem.Files()
	for _, f := range rendered {
		got, _ := mem.ReadFile(f)
		want, ok := original[f]
		if !ok {
			out = append(out, Mismatch{File: f, Kind: "created"})
			continue
		}
		if !equalIgnoring(want, got, volatile) {
			out = append(out, Mismatch{File: f, Kind: "changed"})
		}
	}
	for f := range original {
		if !slices.Contains(rendered, f) {
			out = append(out, Mismatch{File: f, Kind: "deleted"})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}

// equalIgnoring compares two files after dropping the volatile components
// and normalizing the layout.
func equalIgnoring(a, b []byte, volatile []string) bool {
	if bytes.Equal(a, b) {
		return true
	}
	na, errA := normalize(a, volatile)
	nb, errB := normalize(b, volatile)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(na, nb)
}

func normalize(data []byte, volatile []string) ([]byte, error) {
	root, err := filestore.Parse(data)
	if err != nil {
		return nil, err
	}
	doc := &filestore.Document{Root: root}
	for _, name := range volatile {
		if doc.Component(name) != nil {
			doc.SetComponent(name, nil)
		}
	}
	return filestore.Render(doc.Root), nil
}

// Fingerprint hashes the names and contents of every file a fresh scan of
// the scope would read. Equal fingerprints mean a load would produce the
// same partitions.
func (r *Reconciler) Fingerprint() (string, error) {
	disk := r.env.Store.FS()
	scanEnv := serializer.NewEnv(filestore.NewStore(disk, r.logger), provenance.New(), nil, r.logger)
	scan := r.registry.Fresh(scanEnv.Index)
	scan.Reconcile(scanEnv, nil)

	h := sha256.New()
	for _, f := range scan.Files() {
		h.Write([]byte(f))
		h.Write([]byte{0})
		data, err := disk.ReadFile(f)
		if errors.Is(err, fs.ErrNotExist) {
			h.Write([]byte("<missing>"))
			continue
		}
		if err != nil {
			return "", fmt.Errorf("fingerprint %s: %w", f, err)
		}
		h.Write(data)
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
