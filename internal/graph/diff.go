package graph

import (
	"slices"
	"sort"
)

// ChangeKind classifies one entry of a diff.
type ChangeKind uint8

const (
	Added ChangeKind = iota + 1
	Removed
	Replaced
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Replaced:
		return "replaced"
	}
	return "unknown"
}

// Change is one entity-level difference between two versions. Old is zero
// for Added, New is zero for Removed.
type Change struct {
	Kind ChangeKind
	Old  Entity
	New  Entity
}

// ID returns the entity the change is about.
func (c Change) ID() EntityID {
	if c.Kind == Removed {
		return c.Old.ID
	}
	return c.New.ID
}

// Sources returns the entity sources touched by the change. An entity that
// moved between files touches both.
func (c Change) Sources() []EntitySource {
	switch c.Kind {
	case Added:
		return []EntitySource{c.New.Source}
	case Removed:
		return []EntitySource{c.Old.Source}
	}
	if c.Old.Source == c.New.Source {
		return []EntitySource{c.New.Source}
	}
	return []EntitySource{c.Old.Source, c.New.Source}
}

// Diff compares two versions of the same store lineage. An entity is
// replaced when its data, source or parent differ. Changes are ordered by
// structural depth, so parents come before the entities they own, then by
// ID.
func Diff(from, to Reader) []Change {
	type entry struct {
		change Change
		depth  int
	}
	var entries []entry

	for e := range from.All() {
		n, ok := to.Get(e.ID)
		if !ok {
			entries = append(entries, entry{Change{Kind: Removed, Old: e}, depth(from, e.ID)})
			continue
		}
		op, _ := from.Parent(e.ID)
		np, _ := to.Parent(e.ID)
		if e.Source != n.Source || op != np || !Equal(e.Data, n.Data) {
			entries = append(entries, entry{Change{Kind: Replaced, Old: e, New: n}, depth(to, e.ID)})
		}
	}
	for e := range to.All() {
		if _, ok := from.Get(e.ID); !ok {
			entries = append(entries, entry{Change{Kind: Added, New: e}, depth(to, e.ID)})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].depth != entries[j].depth {
			return entries[i].depth < entries[j].depth
		}
		return entries[i].change.ID() < entries[j].change.ID()
	})
	changes := make([]Change, len(entries))
	for i, e := range entries {
		changes[i] = e.change
	}
	return changes
}

func depth(r Reader, id EntityID) int {
	d := 0
	for p, ok := r.Parent(id); ok; p, ok = r.Parent(p) {
		d++
	}
	return d
}

// AffectedSources returns the distinct sources touched by changes, in
// first-seen order.
func AffectedSources(changes []Change) []EntitySource {
	var out []EntitySource
	for _, c := range changes {
		for _, s := range c.Sources() {
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out
}
