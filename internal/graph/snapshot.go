package graph

import (
	"iter"
	"maps"
	"slices"
	"sort"
)

// EntityID is a handle to an entity inside one store lineage. IDs are kept
// for entities that are not touched between versions, but they carry no
// meaning across unrelated stores; use SymbolicID for that.
type EntityID int64

// Entity is a read-only view of one stored entity.
type Entity struct {
	ID     EntityID
	Source EntitySource
	Data   Data
}

// Kind returns the entity's table.
func (e Entity) Kind() Kind { return e.Data.Kind() }

type record struct {
	id       EntityID
	source   EntitySource
	data     Data
	children []EntityID
}

func (r *record) entity() Entity {
	return Entity{ID: r.id, Source: r.source, Data: r.data}
}

// Reader is the query surface shared by snapshots and builders.
type Reader interface {
	Get(id EntityID) (Entity, bool)
	// Entities yields the live entities of kind in ascending ID order.
	// The sequence can be ranged over any number of times.
	Entities(kind Kind) iter.Seq[Entity]
	All() iter.Seq[Entity]
	// Resolve looks up a symbolic ID. A missing entity is not an error: soft
	// links may name entities that are not loaded.
	Resolve(id SymbolicID) (Entity, bool)
	Parent(id EntityID) (EntityID, bool)
	Children(id EntityID) []EntityID
	// BySource returns the entities produced by src in ascending ID order.
	BySource(src EntitySource) []EntityID
	// Sources returns every distinct entity source in the store.
	Sources() []EntitySource
	Len() int
}

var (
	_ Reader = (*Snapshot)(nil)
	_ Reader = (*Builder)(nil)
)

// Snapshot is an immutable version of the store. It is safe for concurrent
// use and is never modified after Freeze returns it.
type Snapshot struct {
	records map[EntityID]*record
	nextID  EntityID

	// Derived indexes, rebuilt from the records on freeze.
	parents   map[EntityID]EntityID
	byKind    map[Kind][]EntityID
	symbols   map[SymbolicID]EntityID
	bySource  map[EntitySource][]EntityID
	referrers map[SymbolicID][]EntityID
}

// Empty returns a snapshot with no entities.
func Empty() *Snapshot {
	return newSnapshot(map[EntityID]*record{}, 1)
}

func newSnapshot(records map[EntityID]*record, nextID EntityID) *Snapshot {
	s := &Snapshot{
		records:   records,
		nextID:    nextID,
		parents:   make(map[EntityID]EntityID),
		byKind:    make(map[Kind][]EntityID),
		symbols:   make(map[SymbolicID]EntityID),
		bySource:  make(map[EntitySource][]EntityID),
		referrers: make(map[SymbolicID][]EntityID),
	}
	for _, id := range sortedIDs(records) {
		r := records[id]
		for _, c := range r.children {
			s.parents[c] = id
		}
		k := r.data.Kind()
		s.byKind[k] = append(s.byKind[k], id)
		if sid, ok := r.data.SymbolicID(); ok {
			s.symbols[sid] = id
		}
		s.bySource[r.source] = append(s.bySource[r.source], id)
		for _, l := range r.data.Links() {
			refs := s.referrers[l]
			if len(refs) == 0 || refs[len(refs)-1] != id {
				s.referrers[l] = append(refs, id)
			}
		}
	}
	return s
}

func sortedIDs(records map[EntityID]*record) []EntityID {
	ids := make([]EntityID, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Open returns a builder whose initial content is s. The snapshot itself is
// not affected by anything done through the builder.
func (s *Snapshot) Open() *Builder {
	return &Builder{
		records: maps.Clone(s.records),
		parents: maps.Clone(s.parents),
		symbols: maps.Clone(s.symbols),
		owned:   make(map[EntityID]bool),
		nextID:  s.nextID,
	}
}

func (s *Snapshot) Get(id EntityID) (Entity, bool) {
	r, ok := s.records[id]
	if !ok {
		return Entity{}, false
	}
	return r.entity(), true
}

func (s *Snapshot) Entities(kind Kind) iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for _, id := range s.byKind[kind] {
			if !yield(s.records[id].entity()) {
				return
			}
		}
	}
}

func (s *Snapshot) All() iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for _, id := range sortedIDs(s.records) {
			if !yield(s.records[id].entity()) {
				return
			}
		}
	}
}

func (s *Snapshot) Resolve(id SymbolicID) (Entity, bool) {
	eid, ok := s.symbols[id]
	if !ok {
		return Entity{}, false
	}
	return s.records[eid].entity(), true
}

func (s *Snapshot) Parent(id EntityID) (EntityID, bool) {
	p, ok := s.parents[id]
	return p, ok
}

func (s *Snapshot) Children(id EntityID) []EntityID {
	r, ok := s.records[id]
	if !ok {
		return nil
	}
	return slices.Clone(r.children)
}

func (s *Snapshot) BySource(src EntitySource) []EntityID {
	return slices.Clone(s.bySource[src])
}

func (s *Snapshot) Sources() []EntitySource {
	return sortSources(slices.Collect(maps.Keys(s.bySource)))
}

// Referrers returns the entities holding a soft link to id.
func (s *Snapshot) Referrers(id SymbolicID) []EntityID {
	return slices.Clone(s.referrers[id])
}

func (s *Snapshot) Len() int { return len(s.records) }

func sortSources(sources []EntitySource) []EntitySource {
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].String() < sources[j].String()
	})
	return sources
}
