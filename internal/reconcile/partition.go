package reconcile

import (
	"fmt"
	"slices"

	"github.com/jward/modelsync/internal/graph"
	"github.com/jward/modelsync/internal/serializer"
)

// merger folds parse results into the builders of the three partitions.
type merger struct {
	r        *Reconciler
	main     *graph.Builder
	unloaded *graph.Builder
	orphan   *graph.Builder
	stats    Stats
}

func newMerger(r *Reconciler, st State) *merger {
	return &merger{
		r:        r,
		main:     st.Main.Open(),
		unloaded: st.Unloaded.Open(),
		orphan:   st.Orphan.Open(),
	}
}

func (m *merger) partitions() []*graph.Builder {
	return []*graph.Builder{m.main, m.unloaded, m.orphan}
}

func (m *merger) freeze() State {
	return State{Main: m.main.Freeze(), Unloaded: m.unloaded.Freeze(), Orphan: m.orphan.Freeze()}
}

// target picks the partition the entities of s belong to. Module files go
// to the unloaded partition when the predicate says so; files attaching to
// a module follow the module, or wait in the orphan partition under a stub
// until it appears.
func (m *merger) target(s serializer.Serializer) (*graph.Builder, error) {
	name, perModule := s.Module()
	if !perModule {
		return m.main, nil
	}
	if slices.Contains(s.Kinds(), graph.KindModule) {
		if m.r.isUnloaded(name) {
			return m.unloaded, nil
		}
		return m.main, nil
	}
	id := graph.ModuleID(name)
	if _, ok := m.main.Resolve(id); ok {
		return m.main, nil
	}
	if _, ok := m.unloaded.Resolve(id); ok {
		return m.unloaded, nil
	}
	if _, ok := m.orphan.Resolve(id); !ok {
		if _, err := m.orphan.Add(0, graph.Stub(), graph.ModuleData{Name: name}); err != nil {
			return nil, fmt.Errorf("orphan stub %s: %w", name, err)
		}
	}
	return m.orphan, nil
}

// merge makes the entities owned by s equal to parsed in its target
// partition and removes them from the other two.
func (m *merger) merge(s serializer.Serializer, parsed graph.Reader) error {
	target, err := m.target(s)
	if err != nil {
		return err
	}
	m.r.unshadow(s.File())
	for _, p := range m.partitions() {
		from := graph.Reader(graph.Empty())
		if p == target {
			from = parsed
		}
		res, err := p.ReplaceBySource(s.Owns, from)
		if err != nil {
			return fmt.Errorf("merge %s: %w", s.File(), err)
		}
		m.stats.add(res)
		for _, sid := range res.Conflicts {
			m.r.shadow(sid, s.File())
			err := fmt.Errorf("%s: %w", sid, serializer.ErrDuplicateEntity)
			m.r.logger.Warn("skipping duplicate entity", "component", "reconcile", "file", s.File(), "error", err)
			m.r.env.Reporter.ReportError(err.Error(), s.File())
		}
		for _, e := range res.Unparented {
			m.r.logger.Warn("entity has no parent", "component", "reconcile", "file", s.File(), "source", e.Source.String())
		}
	}
	return nil
}

// resolves reports whether sid names an entity in any partition.
func (m *merger) resolves(sid graph.SymbolicID) bool {
	for _, p := range m.partitions() {
		if _, ok := p.Resolve(sid); ok {
			return true
		}
	}
	return false
}

// pruneOrphans drops stub modules of the orphan partition that hold nothing.
func (m *merger) pruneOrphans() {
	for _, e := range graph.Roots(m.orphan) {
		if e.Source.IsStub() && len(m.orphan.Children(e.ID)) == 0 {
			_, _ = m.orphan.Remove(e.ID)
		}
	}
}

// MoveModule moves module name from one partition to another together with
// its subtree and its module-level libraries. It reports whether the module
// was found.
func MoveModule(from, to *graph.Builder, name string) (bool, error) {
	mod, ok := from.Resolve(graph.ModuleID(name))
	if !ok {
		return false, nil
	}
	roots := []graph.EntityID{mod.ID}
	table := graph.ModuleTable(name)
	for id, lib := range graph.EntitiesOf[graph.LibraryData](from) {
		if lib.Table == table {
			if _, hasParent := from.Parent(id); !hasParent {
				roots = append(roots, id)
			}
		}
	}
	for _, id := range roots {
		if _, err := to.CopySubtree(from, id, 0); err != nil {
			return false, fmt.Errorf("move module %s: %w", name, err)
		}
	}
	for _, id := range roots {
		if _, err := from.Remove(id); err != nil {
			return false, fmt.Errorf("move module %s: %w", name, err)
		}
	}
	return true, nil
}
