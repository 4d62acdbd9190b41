package graph

import (
	"fmt"
	"iter"
	"maps"
	"slices"
)

// Builder is a mutable working copy of the store. A builder must only be
// used by one goroutine at a time.
type Builder struct {
	records map[EntityID]*record
	parents map[EntityID]EntityID
	symbols map[SymbolicID]EntityID
	// owned marks records allocated by this builder since the last freeze;
	// all other records are shared with a snapshot and copied on write.
	owned  map[EntityID]bool
	nextID EntityID
}

// New returns an empty builder.
func New() *Builder {
	return Empty().Open()
}

// Freeze returns an immutable snapshot of the builder's current content.
// The builder stays usable; later writes do not affect the snapshot.
func (b *Builder) Freeze() *Snapshot {
	b.owned = make(map[EntityID]bool)
	return newSnapshot(maps.Clone(b.records), b.nextID)
}

func (b *Builder) mutable(id EntityID) *record {
	r := b.records[id]
	if b.owned[id] {
		return r
	}
	cp := *r
	cp.children = slices.Clone(r.children)
	b.records[id] = &cp
	b.owned[id] = true
	return &cp
}

// Add inserts a new entity under parent (0 for root kinds) and returns its
// ID. Adding a one-to-one child replaces the parent's existing child of
// that kind.
func (b *Builder) Add(parent EntityID, source EntitySource, data Data) (EntityID, error) {
	if data == nil {
		return 0, ErrNilData
	}
	kind := data.Kind()
	if err := b.checkParent(parent, kind); err != nil {
		return 0, fmt.Errorf("add %s: %w", kind, err)
	}
	sid, hasSid := data.SymbolicID()
	if hasSid {
		if _, taken := b.symbols[sid]; taken {
			return 0, fmt.Errorf("add %s: %w", sid, ErrDuplicateIdentity)
		}
	}
	if parent != 0 {
		b.displaceOneToOne(parent, kind, 0)
	}

	id := b.nextID
	b.nextID++
	b.records[id] = &record{id: id, source: source, data: data}
	b.owned[id] = true
	if hasSid {
		b.symbols[sid] = id
	}
	if parent != 0 {
		p := b.mutable(parent)
		p.children = append(p.children, id)
		b.parents[id] = parent
	}
	return id, nil
}

func (b *Builder) checkParent(parent EntityID, kind Kind) error {
	if kind.IsRoot() {
		if parent != 0 {
			return fmt.Errorf("%s is a root kind: %w", kind, ErrInvalidParent)
		}
		return nil
	}
	if parent == 0 {
		return fmt.Errorf("%s requires a parent: %w", kind, ErrInvalidParent)
	}
	p, ok := b.records[parent]
	if !ok {
		return fmt.Errorf("parent %d: %w", parent, ErrEntityNotFound)
	}
	if _, ok := Relation(p.data, kind); !ok {
		return fmt.Errorf("%s cannot own %s: %w", p.data.Kind(), kind, ErrInvalidParent)
	}
	return nil
}

// displaceOneToOne removes parent's existing child of kind when the relation
// is one-to-one. keep is never removed.
func (b *Builder) displaceOneToOne(parent EntityID, kind Kind, keep EntityID) {
	p := b.records[parent]
	if card, _ := Relation(p.data, kind); card != OneToOne {
		return
	}
	for _, c := range p.children {
		if c != keep && b.records[c].data.Kind() == kind {
			_, _ = b.Remove(c)
			return
		}
	}
}

// Remove deletes id and everything it structurally owns. The removed IDs are
// returned parents first.
func (b *Builder) Remove(id EntityID) ([]EntityID, error) {
	if _, ok := b.records[id]; !ok {
		return nil, fmt.Errorf("remove %d: %w", id, ErrEntityNotFound)
	}
	if parent, ok := b.parents[id]; ok {
		p := b.mutable(parent)
		p.children = slices.DeleteFunc(p.children, func(c EntityID) bool { return c == id })
	}

	var removed []EntityID
	stack := []EntityID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		r := b.records[cur]
		removed = append(removed, cur)
		for i := len(r.children) - 1; i >= 0; i-- {
			stack = append(stack, r.children[i])
		}
		if sid, ok := r.data.SymbolicID(); ok && b.symbols[sid] == cur {
			delete(b.symbols, sid)
		}
		delete(b.records, cur)
		delete(b.parents, cur)
		delete(b.owned, cur)
	}
	return removed, nil
}

// Modify replaces the data of id with fn's result. The kind cannot change.
// When the symbolic ID changes, every soft link to the old ID is rewritten
// in the same builder.
func (b *Builder) Modify(id EntityID, fn func(Data) Data) error {
	r, ok := b.records[id]
	if !ok {
		return fmt.Errorf("modify %d: %w", id, ErrEntityNotFound)
	}
	next := fn(r.data)
	if next == nil {
		return fmt.Errorf("modify %d: %w", id, ErrNilData)
	}
	if next.Kind() != r.data.Kind() {
		return fmt.Errorf("modify %d: %s -> %s: %w", id, r.data.Kind(), next.Kind(), ErrKindChanged)
	}
	if pe, ok := next.(PackagingElement); ok && !pe.Composite() && len(r.children) > 0 {
		return fmt.Errorf("modify %d: %s cannot own children: %w", id, pe.ElementType(), ErrInvalidParent)
	}
	oldSid, _ := r.data.SymbolicID()
	newSid, _ := next.SymbolicID()
	renamed := oldSid != newSid
	if renamed {
		if owner, taken := b.symbols[newSid]; taken && owner != id {
			return fmt.Errorf("modify %d: %s: %w", id, newSid, ErrDuplicateIdentity)
		}
	}

	b.mutable(id).data = next
	if renamed {
		delete(b.symbols, oldSid)
		b.symbols[newSid] = id
		b.UpdateSoftLinks(oldSid, newSid)
	}
	return nil
}

// SetParent moves id under parent, keeping the parent's child list and the
// child's parent pointer in step.
func (b *Builder) SetParent(id, parent EntityID) error {
	r, ok := b.records[id]
	if !ok {
		return fmt.Errorf("set parent of %d: %w", id, ErrEntityNotFound)
	}
	kind := r.data.Kind()
	if err := b.checkParent(parent, kind); err != nil {
		return fmt.Errorf("set parent of %d: %w", id, err)
	}
	if kind.IsRoot() {
		return nil
	}
	if cur, ok := b.parents[id]; ok && cur == parent {
		return nil
	}
	for p, ok := parent, true; ok; p, ok = b.parents[p] {
		if p == id {
			return fmt.Errorf("set parent of %d: cycle through %d: %w", id, parent, ErrInvalidParent)
		}
	}

	b.displaceOneToOne(parent, kind, id)
	if cur, ok := b.parents[id]; ok {
		old := b.mutable(cur)
		old.children = slices.DeleteFunc(old.children, func(c EntityID) bool { return c == id })
	}
	p := b.mutable(parent)
	p.children = append(p.children, id)
	b.parents[id] = parent
	return nil
}

// SetSource changes the provenance of id, for example when an entity moves
// to another file.
func (b *Builder) SetSource(id EntityID, source EntitySource) error {
	if _, ok := b.records[id]; !ok {
		return fmt.Errorf("set source of %d: %w", id, ErrEntityNotFound)
	}
	b.mutable(id).source = source
	return nil
}

func (b *Builder) sortedIDs() []EntityID { return sortedIDs(b.records) }

func (b *Builder) Get(id EntityID) (Entity, bool) {
	r, ok := b.records[id]
	if !ok {
		return Entity{}, false
	}
	return r.entity(), true
}

func (b *Builder) Entities(kind Kind) iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for _, id := range b.sortedIDs() {
			r, ok := b.records[id]
			if !ok || r.data.Kind() != kind {
				continue
			}
			if !yield(r.entity()) {
				return
			}
		}
	}
}

func (b *Builder) All() iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for _, id := range b.sortedIDs() {
			r, ok := b.records[id]
			if !ok {
				continue
			}
			if !yield(r.entity()) {
				return
			}
		}
	}
}

func (b *Builder) Resolve(id SymbolicID) (Entity, bool) {
	eid, ok := b.symbols[id]
	if !ok {
		return Entity{}, false
	}
	return b.records[eid].entity(), true
}

func (b *Builder) Parent(id EntityID) (EntityID, bool) {
	p, ok := b.parents[id]
	return p, ok
}

func (b *Builder) Children(id EntityID) []EntityID {
	r, ok := b.records[id]
	if !ok {
		return nil
	}
	return slices.Clone(r.children)
}

func (b *Builder) BySource(src EntitySource) []EntityID {
	var ids []EntityID
	for _, id := range b.sortedIDs() {
		if b.records[id].source == src {
			ids = append(ids, id)
		}
	}
	return ids
}

func (b *Builder) Sources() []EntitySource {
	seen := make(map[EntitySource]bool)
	for _, r := range b.records {
		seen[r.source] = true
	}
	return sortSources(slices.Collect(maps.Keys(seen)))
}

func (b *Builder) Len() int { return len(b.records) }
