package graph

import (
	"iter"
	"slices"
)

// UpdateSoftLinks rewrites every soft link to old so it points to repl and
// returns the number of entities rewritten. Holders whose own symbolic ID
// changes as a result are renamed too, and links to them are followed in
// the same call.
func (b *Builder) UpdateSoftLinks(old, repl SymbolicID) int {
	type rename struct{ from, to SymbolicID }

	if old == repl {
		return 0
	}
	updated := 0
	pending := []rename{{old, repl}}
	for len(pending) > 0 {
		r := pending[0]
		pending = pending[1:]
		for _, id := range b.sortedIDs() {
			rec := b.records[id]
			if !slices.Contains(rec.data.Links(), r.from) {
				continue
			}
			prevSid, hasSid := rec.data.SymbolicID()
			next := rec.data.replaceLink(r.from, r.to)
			b.mutable(id).data = next
			updated++
			if !hasSid {
				continue
			}
			if sid, _ := next.SymbolicID(); sid != prevSid {
				if b.symbols[prevSid] == id {
					delete(b.symbols, prevSid)
				}
				b.symbols[sid] = id
				pending = append(pending, rename{prevSid, sid})
			}
		}
	}
	return updated
}

// Referrers returns the entities holding a soft link to id.
func (b *Builder) Referrers(id SymbolicID) []EntityID {
	var ids []EntityID
	for _, eid := range b.sortedIDs() {
		if slices.Contains(b.records[eid].data.Links(), id) {
			ids = append(ids, eid)
		}
	}
	return ids
}

// Rename changes the symbolic ID of the entity currently known as old by
// applying fn to its data. It is Modify addressed by symbolic ID.
func (b *Builder) Rename(old SymbolicID, fn func(Data) Data) (EntityID, error) {
	e, ok := b.Resolve(old)
	if !ok {
		return 0, &UnresolvedError{ID: old}
	}
	return e.ID, b.Modify(e.ID, fn)
}

// UnresolvedError reports a symbolic ID with no live entity. It only comes
// from operations that need a target; queries report absence with false.
type UnresolvedError struct {
	ID SymbolicID
}

func (e *UnresolvedError) Error() string { return "unresolved " + e.ID.String() }

func (e *UnresolvedError) Unwrap() error { return ErrEntityNotFound }

// Typed accessors over the generic record.

// Lookup returns the data of id if it is of type T.
func Lookup[T Data](r Reader, id EntityID) (T, bool) {
	var zero T
	e, ok := r.Get(id)
	if !ok {
		return zero, false
	}
	d, ok := e.Data.(T)
	return d, ok
}

// EntitiesOf yields the entities whose data is of type T together with the
// typed data. T must be a concrete data type.
func EntitiesOf[T Data](r Reader) iter.Seq2[EntityID, T] {
	return func(yield func(EntityID, T) bool) {
		var zero T
		for e := range r.Entities(zero.Kind()) {
			d, ok := e.Data.(T)
			if !ok {
				continue
			}
			if !yield(e.ID, d) {
				return
			}
		}
	}
}

// ChildrenOf yields parent's children whose data is of type T, in order.
func ChildrenOf[T Data](r Reader, parent EntityID) iter.Seq2[EntityID, T] {
	return func(yield func(EntityID, T) bool) {
		for _, c := range r.Children(parent) {
			d, ok := Lookup[T](r, c)
			if !ok {
				continue
			}
			if !yield(c, d) {
				return
			}
		}
	}
}

// Roots returns the parentless entities of r in ascending ID order.
func Roots(r Reader) []Entity {
	var roots []Entity
	for e := range r.All() {
		if _, ok := r.Parent(e.ID); !ok {
			roots = append(roots, e)
		}
	}
	return roots
}
