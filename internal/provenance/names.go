package provenance

import (
	"path"
	"strconv"
	"strings"

	"github.com/jward/modelsync/internal/graph"
)

// EscapeFileName maps every rune outside [A-Za-z0-9_] to an underscore.
func EscapeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}

// AllocateName returns the file name that an entity called name should be
// saved to inside dir. A name already registered to another source gets a
// numeric suffix; owner keeps its current name if it already matches.
func (x *Index) AllocateName(dir, name, ext string, owner graph.EntitySource) string {
	base := EscapeFileName(name)
	t := x.dirs[path.Clean(dir)]
	for i := 1; ; i++ {
		candidate := base + ext
		if i > 1 {
			candidate = base + "_" + strconv.Itoa(i) + ext
		}
		if t == nil {
			return candidate
		}
		id, taken := t.ids[candidate]
		if !taken || (owner.Kind == graph.SourceDirectoryFile && owner.Dir == path.Clean(dir) && owner.FileID == id) {
			return candidate
		}
	}
}
