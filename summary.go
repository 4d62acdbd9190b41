package modelsync

import (
	"fmt"
	"sort"

	"github.com/jward/modelsync/internal/graph"
)

// Summary describes a loaded scope.
type Summary struct {
	Root            string         `json:"root"`
	Global          bool           `json:"global"`
	Files           int            `json:"files"`
	Modules         []string       `json:"modules"`
	UnloadedModules []string       `json:"unloaded_modules,omitempty"`
	Orphans         int            `json:"orphans"`
	Counts          map[string]int `json:"counts"`
	Pending         int            `json:"pending"`
}

// Summary returns counts of the current partitions.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Summary{
		Root:            e.root,
		Global:          e.global,
		Files:           len(e.rec.Registry().Files()),
		Modules:         moduleNames(e.state.Main),
		UnloadedModules: moduleNames(e.state.Unloaded),
		Orphans:         e.state.Orphan.Len(),
		Counts:          make(map[string]int),
		Pending:         len(e.dirty),
	}
	for _, k := range graph.Kinds() {
		n := 0
		for range e.state.Main.Entities(k) {
			n++
		}
		if n > 0 {
			s.Counts[k.String()] = n
		}
	}
	return s
}

func moduleNames(r graph.Reader) []string {
	var names []string
	for _, m := range graph.EntitiesOf[graph.ModuleData](r) {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}

// Partition names accepted by Dump.
const (
	PartitionMain     = "main"
	PartitionUnloaded = "unloaded"
	PartitionOrphan   = "orphan"
)

// Dump renders a partition as an indented tree that does not depend on
// internal IDs. Directory file sources are shown by their current file
// name.
func (e *Engine) Dump(partition string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var r graph.Reader
	switch partition {
	case PartitionMain, "":
		r = e.state.Main
	case PartitionUnloaded:
		r = e.state.Unloaded
	case PartitionOrphan:
		r = e.state.Orphan
	default:
		return "", fmt.Errorf("modelsync: unknown partition %q", partition)
	}
	index := e.rec.Registry().Index()
	return graph.Dump(r, func(src graph.EntitySource) string {
		if src.Kind != graph.SourceDirectoryFile {
			return src.String()
		}
		file, err := index.ActualURL(src.FileSource())
		if err != nil {
			return src.String()
		}
		if src.ExternalSystem != "" {
			return file + " [" + src.ExternalSystem + "]"
		}
		return file
	}), nil
}
