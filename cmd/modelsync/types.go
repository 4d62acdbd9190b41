package main

import (
	"github.com/jward/modelsync"
	"github.com/jward/modelsync/internal/graph"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLISummary is the result of load.
type CLISummary struct {
	Project modelsync.Summary  `json:"project"`
	Global  *modelsync.Summary `json:"global,omitempty"`
}

// CLIDump is the result of dump.
type CLIDump struct {
	Partition string `json:"partition"`
	Tree      string `json:"tree"`
}

// CLIProblem is one consistency problem.
type CLIProblem struct {
	Kind   string `json:"kind"`
	File   string `json:"file,omitempty"`
	Source string `json:"source,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// CLIMismatch is one file verify would change.
type CLIMismatch struct {
	File string `json:"file"`
	Kind string `json:"kind"`
}

// CLISave is the result of save.
type CLISave struct {
	Written   []string `json:"written"`
	Deleted   []string `json:"deleted"`
	Unchanged int      `json:"unchanged"`
}

func sourceString(src graph.EntitySource) string {
	if src.IsZero() {
		return ""
	}
	return src.String()
}
