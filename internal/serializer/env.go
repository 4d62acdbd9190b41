// Package serializer translates between configuration files and entities.
//
// Every serializer owns one file. Directory-backed files (one library per
// file, one artifact per file) are identified by provenance sources that
// survive renames; single files and module descriptors by their path. The
// module list file names further module descriptors, and the [Registry]
// instantiates and retires their serializers as the list changes.
package serializer

import (
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/jward/modelsync/internal/filestore"
	"github.com/jward/modelsync/internal/provenance"
)

// ErrorReporter receives problems found in individual fragments of a file.
// Loading continues after every report.
type ErrorReporter interface {
	ReportError(message, file string)
}

// ReporterFunc adapts a function to ErrorReporter.
type ReporterFunc func(message, file string)

func (f ReporterFunc) ReportError(message, file string) { f(message, file) }

type noopReporter struct{}

func (noopReporter) ReportError(string, string) {}

// NoopReporter discards reports.
func NoopReporter() ErrorReporter { return noopReporter{} }

var (
	ErrMissingAttribute = errors.New("missing attribute")
	ErrBadAttribute     = errors.New("unparseable attribute")
	ErrUnknownLevel     = errors.New("unknown library table level")
	ErrUnknownEntry     = errors.New("unknown entry type")
	ErrDuplicateEntity  = errors.New("duplicate entity")
	ErrMalformedFile    = errors.New("malformed file")
)

// MalformedContentError describes a fragment that was skipped.
type MalformedContentError struct {
	File     string
	Fragment string
	Err      error
}

func (e *MalformedContentError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.File, e.Fragment, e.Err)
}

func (e *MalformedContentError) Unwrap() error { return e.Err }

// Layout locates the configuration files of a project or of the global
// scope. Paths are relative to the file system root.
type Layout struct {
	ConfigDir       string
	ExternalStorage bool
}

func (l Layout) ModulesFile() string          { return path.Join(l.ConfigDir, "modules.xml") }
func (l Layout) LibrariesDir() string         { return path.Join(l.ConfigDir, "libraries") }
func (l Layout) ArtifactsDir() string         { return path.Join(l.ConfigDir, "artifacts") }
func (l Layout) ExternalModulesDir() string   { return path.Join(l.ConfigDir, "external", "modules") }
func (l Layout) ExternalLibrariesDir() string { return path.Join(l.ConfigDir, "external", "libraries") }

// Global scope files.
func (l Layout) SDKFile() string          { return path.Join(l.ConfigDir, "jdk.table.xml") }
func (l Layout) AppLibrariesFile() string { return path.Join(l.ConfigDir, "applicationLibraries.xml") }

// Env carries the collaborators serializers read and write through.
type Env struct {
	Store    *filestore.Store
	Index    *provenance.Index
	Reporter ErrorReporter
	Logger   *slog.Logger
}

// NewEnv returns an Env with defaults for nil collaborators.
func NewEnv(store *filestore.Store, index *provenance.Index, reporter ErrorReporter, logger *slog.Logger) *Env {
	if reporter == nil {
		reporter = NoopReporter()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Env{Store: store, Index: index, Reporter: reporter, Logger: logger}
}

func (e *Env) malformed(file, fragment string, err error) {
	me := &MalformedContentError{File: file, Fragment: fragment, Err: err}
	e.Logger.Warn("skipping malformed fragment", "component", "serializer", "file", file, "error", me)
	e.Reporter.ReportError(me.Error(), file)
}

// projectDirMacro prefixes project-relative paths in module lists.
const projectDirMacro = "$PROJECT_DIR$/"
