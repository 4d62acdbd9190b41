package graph

import (
	"fmt"
	"slices"
)

// ReplaceResult describes what ReplaceBySource did to the target builder.
type ReplaceResult struct {
	// Added, Removed and Replaced hold IDs in the target builder.
	Added    []EntityID
	Removed  []EntityID
	Replaced []EntityID
	// Unparented holds entities of the replacement whose parent could not
	// be located in the target. Each is the root of a skipped subtree.
	Unparented []Entity
	// Conflicts holds symbolic IDs already owned by an entity outside the
	// replaced sources. The replacement entity was skipped.
	Conflicts []SymbolicID
}

// Changed reports whether the target was modified.
func (r ReplaceResult) Changed() bool {
	return len(r.Added)+len(r.Removed)+len(r.Replaced) > 0
}

// ReplaceBySource makes the entities of b whose source satisfies pred equal
// to the entities of from whose source satisfies pred. Everything else in b
// is left alone.
//
// Entities of from that fail pred are context: they locate the parents of
// replacement entities and are matched to b by symbolic ID, or by equal
// content under an already matched parent. Replacement entities are matched
// to existing ones by symbolic ID, or by equal content among same-kind
// siblings; matched entities keep their IDs. Unmatched existing entities
// satisfying pred are removed with their subtrees.
func (b *Builder) ReplaceBySource(pred func(EntitySource) bool, from Reader) (ReplaceResult, error) {
	rp := &replacer{
		b:       b,
		from:    from,
		pred:    pred,
		mapping: make(map[EntityID]EntityID),
		matched: make(map[EntityID]bool),
	}
	for _, root := range Roots(from) {
		if err := rp.visit(root, 0, true); err != nil {
			return rp.res, err
		}
	}

	for _, id := range b.sortedIDs() {
		r, ok := b.records[id]
		if !ok || rp.matched[id] || !pred(r.source) {
			continue
		}
		removed, err := b.Remove(id)
		if err != nil {
			return rp.res, err
		}
		rp.res.Removed = append(rp.res.Removed, removed...)
	}

	for fromParent, target := range rp.mapping {
		if _, ok := b.records[target]; ok {
			rp.reorder(fromParent, target)
		}
	}
	return rp.res, nil
}

type replacer struct {
	b       *Builder
	from    Reader
	pred    func(EntitySource) bool
	mapping map[EntityID]EntityID // from ID -> target ID
	matched map[EntityID]bool     // target entities kept by the replacement
	res     ReplaceResult
}

// visit places e (a from entity) whose target parent is parent. placed is
// false when e's parent could not be located.
func (rp *replacer) visit(e Entity, parent EntityID, placed bool) error {
	replacing := rp.pred(e.Source)
	switch {
	case !placed:
		if replacing {
			rp.res.Unparented = append(rp.res.Unparented, e)
			return nil
		}
	case replacing:
		ok, err := rp.place(e, parent)
		if err != nil {
			return err
		}
		placed = ok
	default:
		target, ok := rp.locate(e, parent)
		if ok {
			rp.mapping[e.ID] = target
		}
		placed = ok
	}

	next := rp.mapping[e.ID]
	for _, c := range rp.from.Children(e.ID) {
		child, ok := rp.from.Get(c)
		if !ok {
			continue
		}
		if err := rp.visit(child, next, placed); err != nil {
			return err
		}
	}
	return nil
}

// locate finds the target entity a context entity stands for.
func (rp *replacer) locate(e Entity, parent EntityID) (EntityID, bool) {
	if sid, ok := e.Data.SymbolicID(); ok {
		t, ok := rp.b.symbols[sid]
		return t, ok
	}
	if parent == 0 {
		return 0, false
	}
	for _, c := range rp.b.records[parent].children {
		if Equal(rp.b.records[c].data, e.Data) {
			return c, true
		}
	}
	return 0, false
}

func (rp *replacer) place(e Entity, parent EntityID) (bool, error) {
	b := rp.b
	target, found := rp.match(e, parent)
	if !found {
		if sid, ok := e.Data.SymbolicID(); ok {
			if _, taken := b.symbols[sid]; taken {
				rp.res.Conflicts = append(rp.res.Conflicts, sid)
				return false, nil
			}
		}
		id, err := b.Add(parent, e.Source, e.Data)
		if err != nil {
			return false, fmt.Errorf("replace %s: %w", e.Kind(), err)
		}
		rp.mapping[e.ID] = id
		rp.matched[id] = true
		rp.res.Added = append(rp.res.Added, id)
		return true, nil
	}

	rp.mapping[e.ID] = target
	rp.matched[target] = true
	cur := b.records[target]
	if cur.source == e.Source && Equal(cur.data, e.Data) {
		return true, nil
	}
	if pe, ok := e.Data.(PackagingElement); ok && !pe.Composite() {
		// The previous content may own children the new leaf cannot hold.
		for _, c := range slices.Clone(cur.children) {
			removed, err := b.Remove(c)
			if err != nil {
				return false, err
			}
			rp.res.Removed = append(rp.res.Removed, removed...)
		}
	}
	m := b.mutable(target)
	m.source = e.Source
	m.data = e.Data
	rp.res.Replaced = append(rp.res.Replaced, target)
	return true, nil
}

// match finds an existing, not yet matched entity satisfying pred that e
// replaces.
func (rp *replacer) match(e Entity, parent EntityID) (EntityID, bool) {
	b := rp.b
	if sid, ok := e.Data.SymbolicID(); ok {
		t, ok := b.symbols[sid]
		if !ok || rp.matched[t] || !rp.pred(b.records[t].source) {
			return 0, false
		}
		if b.parents[t] != parent {
			return 0, false
		}
		return t, true
	}
	if parent == 0 {
		return 0, false
	}
	for _, c := range b.records[parent].children {
		r := b.records[c]
		if !rp.matched[c] && rp.pred(r.source) && Equal(r.data, e.Data) {
			return c, true
		}
	}
	return 0, false
}

// reorder puts the replaced children of target in the order they have in
// from, starting at the slot of the first replaced child.
func (rp *replacer) reorder(fromParent, target EntityID) {
	b := rp.b
	var desired []EntityID
	for _, c := range rp.from.Children(fromParent) {
		e, ok := rp.from.Get(c)
		if !ok || !rp.pred(e.Source) {
			continue
		}
		if t, ok := rp.mapping[c]; ok {
			desired = append(desired, t)
		}
	}
	if len(desired) == 0 {
		return
	}

	cur := b.records[target].children
	out := make([]EntityID, 0, len(cur))
	inserted := false
	replaced := 0
	for _, c := range cur {
		if !rp.pred(b.records[c].source) {
			out = append(out, c)
			continue
		}
		replaced++
		if !inserted {
			out = append(out, desired...)
			inserted = true
		}
	}
	if replaced != len(desired) || slices.Equal(out, cur) {
		return
	}
	b.mutable(target).children = out
}

// CopySubtree copies id and its descendants from another reader into b under
// parent, keeping data and sources. It returns the ID of the copied root.
func (b *Builder) CopySubtree(from Reader, id, parent EntityID) (EntityID, error) {
	e, ok := from.Get(id)
	if !ok {
		return 0, fmt.Errorf("copy %d: %w", id, ErrEntityNotFound)
	}
	root, err := b.Add(parent, e.Source, e.Data)
	if err != nil {
		return 0, err
	}
	for _, c := range from.Children(id) {
		if _, err := b.CopySubtree(from, c, root); err != nil {
			return root, err
		}
	}
	return root, nil
}
