package graph

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appIml = ExactFile("app/app.iml")

func addModule(t *testing.T, b *Builder, name string, deps ...Dependency) EntityID {
	t.Helper()
	id, err := b.Add(0, ExactFile(name+"/"+name+".iml"), ModuleData{Name: name, Dependencies: deps})
	require.NoError(t, err)
	return id
}

func mustAdd(t *testing.T, b *Builder, parent EntityID, src EntitySource, d Data) EntityID {
	t.Helper()
	id, err := b.Add(parent, src, d)
	require.NoError(t, err)
	return id
}

func libDep(name string) Dependency {
	return Dependency{Kind: DependencyLibrary, Name: name, Level: "project"}
}

// =============================================================================
// Add / Get / Query
// =============================================================================

func TestAdd_RootAndChildren(t *testing.T) {
	t.Parallel()
	b := New()
	mod := addModule(t, b, "app")
	root := mustAdd(t, b, mod, appIml, ContentRootData{URL: "file://$MODULE_DIR$"})
	src := mustAdd(t, b, root, appIml, SourceRootData{URL: "file://$MODULE_DIR$/src", RootType: RootJavaSource})

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []EntityID{root}, b.Children(mod))
	p, ok := b.Parent(src)
	require.True(t, ok)
	assert.Equal(t, root, p)

	e, ok := b.Resolve(ModuleID("app"))
	require.True(t, ok)
	assert.Equal(t, mod, e.ID)
}

func TestAdd_DuplicateIdentity(t *testing.T) {
	t.Parallel()
	b := New()
	addModule(t, b, "app")

	_, err := b.Add(0, ExactFile("other.iml"), ModuleData{Name: "app"})
	require.ErrorIs(t, err, ErrDuplicateIdentity)
	assert.Equal(t, 1, b.Len())
}

func TestAdd_SameLibraryNameInDifferentTables(t *testing.T) {
	t.Parallel()
	b := New()
	addModule(t, b, "app")
	mustAdd(t, b, 0, ExactFile("libraries/gson.xml"), LibraryData{Name: "gson", Table: ProjectTable})
	mustAdd(t, b, 0, appIml, LibraryData{Name: "gson", Table: ModuleTable("app")})

	_, err := b.Add(0, ExactFile("x.xml"), LibraryData{Name: "gson", Table: ProjectTable})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
}

func TestAdd_InvalidParent(t *testing.T) {
	t.Parallel()
	b := New()
	mod := addModule(t, b, "app")

	_, err := b.Add(0, appIml, ContentRootData{URL: "file://x"})
	assert.ErrorIs(t, err, ErrInvalidParent, "non-root kind needs a parent")

	_, err = b.Add(mod, appIml, SourceRootData{URL: "file://x"})
	assert.ErrorIs(t, err, ErrInvalidParent, "modules do not own source roots")

	_, err = b.Add(mod, appIml, ModuleData{Name: "nested"})
	assert.ErrorIs(t, err, ErrInvalidParent, "root kinds take no parent")

	_, err = b.Add(99, appIml, ContentRootData{URL: "file://x"})
	assert.ErrorIs(t, err, ErrEntityNotFound)

	_, err = b.Add(0, appIml, nil)
	assert.ErrorIs(t, err, ErrNilData)
}

func TestAdd_OneToOneReplacesExisting(t *testing.T) {
	t.Parallel()
	b := New()
	mod := addModule(t, b, "app")
	first := mustAdd(t, b, mod, appIml, ModuleCustomData{Key: "a"})
	second := mustAdd(t, b, mod, appIml, ModuleCustomData{Key: "b"})

	_, ok := b.Get(first)
	assert.False(t, ok)
	assert.Equal(t, []EntityID{second}, b.Children(mod))
}

func TestAdd_PackagingElementsOnlyUnderComposites(t *testing.T) {
	t.Parallel()
	b := New()
	art := mustAdd(t, b, 0, ExactFile("artifacts/web.xml"), ArtifactData{Name: "web"})
	root := mustAdd(t, b, art, ExactFile("artifacts/web.xml"), ArchiveElement{Name: "web.war"})
	leaf := mustAdd(t, b, root, ExactFile("artifacts/web.xml"), ModuleOutputElement{Module: "app"})
	mustAdd(t, b, root, ExactFile("artifacts/web.xml"), DirectoryElement{Name: "WEB-INF"})

	_, err := b.Add(leaf, ExactFile("artifacts/web.xml"), FileCopyElement{Path: "a.txt"})
	assert.ErrorIs(t, err, ErrInvalidParent)
	assert.Len(t, b.Children(root), 2)
}

func TestEntities_RestartableAndOrdered(t *testing.T) {
	t.Parallel()
	b := New()
	a := addModule(t, b, "a")
	c := addModule(t, b, "c")
	mustAdd(t, b, 0, ExactFile("libraries/l.xml"), LibraryData{Name: "l", Table: ProjectTable})
	s := b.Freeze()

	seq := s.Entities(KindModule)
	var first, second []EntityID
	for e := range seq {
		first = append(first, e.ID)
	}
	for e := range seq {
		second = append(second, e.ID)
	}
	assert.Equal(t, []EntityID{a, c}, first)
	assert.Equal(t, first, second)

	var names []string
	for _, m := range EntitiesOf[ModuleData](s) {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"a", "c"}, names)
}

// =============================================================================
// Snapshot isolation
// =============================================================================

func TestFreeze_SnapshotIsNeverMutated(t *testing.T) {
	t.Parallel()
	b := New()
	mod := addModule(t, b, "app")
	root := mustAdd(t, b, mod, appIml, ContentRootData{URL: "file://a"})
	s1 := b.Freeze()

	b2 := s1.Open()
	require.NoError(t, b2.Modify(root, func(d Data) Data {
		cr := d.(ContentRootData)
		cr.URL = "file://b"
		return cr
	}))
	mustAdd(t, b2, mod, appIml, FacetData{Type: "web", Name: "Web"})
	_, err := b2.Remove(root)
	require.NoError(t, err)
	s2 := b2.Freeze()

	cr, ok := Lookup[ContentRootData](s1, root)
	require.True(t, ok)
	assert.Equal(t, "file://a", cr.URL)
	assert.Equal(t, []EntityID{root}, s1.Children(mod))
	assert.Equal(t, 2, s1.Len())

	_, ok = s2.Get(root)
	assert.False(t, ok)
	assert.Equal(t, 2, s2.Len())
}

func TestFreeze_BuilderStaysUsable(t *testing.T) {
	t.Parallel()
	b := New()
	mod := addModule(t, b, "app")
	s1 := b.Freeze()

	mustAdd(t, b, mod, appIml, ContentRootData{URL: "file://a"})
	s2 := b.Freeze()

	assert.Empty(t, s1.Children(mod))
	assert.Len(t, s2.Children(mod), 1)
}

func TestOpen_SharesUntouchedRecords(t *testing.T) {
	t.Parallel()
	b := New()
	a := addModule(t, b, "a")
	c := addModule(t, b, "c")
	s1 := b.Freeze()

	b2 := s1.Open()
	require.NoError(t, b2.Modify(c, func(d Data) Data {
		m := d.(ModuleData)
		m.Type = "JAVA_MODULE"
		return m
	}))
	s2 := b2.Freeze()

	assert.Same(t, s1.records[a], s2.records[a])
	assert.NotSame(t, s1.records[c], s2.records[c])
}

// =============================================================================
// Remove (cascade)
// =============================================================================

func TestRemove_CascadesThroughOwnedSubtree(t *testing.T) {
	t.Parallel()
	b := New()
	mod := addModule(t, b, "app")
	root := mustAdd(t, b, mod, appIml, ContentRootData{URL: "file://a"})
	src := mustAdd(t, b, root, appIml, SourceRootData{URL: "file://a/src"})
	facet := mustAdd(t, b, mod, appIml, FacetData{Type: "web", Name: "Web"})
	other := addModule(t, b, "other")

	removed, err := b.Remove(mod)
	require.NoError(t, err)
	assert.Equal(t, []EntityID{mod, root, src, facet}, removed)
	assert.Equal(t, 1, b.Len())

	s := b.Freeze()
	_, ok := s.Resolve(ModuleID("app"))
	assert.False(t, ok)
	for _, id := range removed {
		_, ok := s.Parent(id)
		assert.False(t, ok, "dangling parent entry for %d", id)
	}
	_, ok = s.Get(other)
	assert.True(t, ok)
}

func TestRemove_DetachesFromParent(t *testing.T) {
	t.Parallel()
	b := New()
	mod := addModule(t, b, "app")
	r1 := mustAdd(t, b, mod, appIml, ContentRootData{URL: "file://a"})
	r2 := mustAdd(t, b, mod, appIml, ContentRootData{URL: "file://b"})

	_, err := b.Remove(r1)
	require.NoError(t, err)
	assert.Equal(t, []EntityID{r2}, b.Children(mod))

	_, err = b.Remove(r1)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

// =============================================================================
// Modify / SetParent
// =============================================================================

func TestModify_RejectsKindChange(t *testing.T) {
	t.Parallel()
	b := New()
	mod := addModule(t, b, "app")

	err := b.Modify(mod, func(Data) Data { return LibraryData{Name: "x", Table: ProjectTable} })
	assert.ErrorIs(t, err, ErrKindChanged)
	err = b.Modify(mod, func(Data) Data { return nil })
	assert.ErrorIs(t, err, ErrNilData)
}

func TestModify_RenameCollision(t *testing.T) {
	t.Parallel()
	b := New()
	a := addModule(t, b, "a")
	addModule(t, b, "b")

	err := b.Modify(a, func(d Data) Data {
		m := d.(ModuleData)
		m.Name = "b"
		return m
	})
	require.ErrorIs(t, err, ErrDuplicateIdentity)
	m, _ := Lookup[ModuleData](b, a)
	assert.Equal(t, "a", m.Name)
}

func TestModify_CompositeToLeafWithChildren(t *testing.T) {
	t.Parallel()
	b := New()
	art := mustAdd(t, b, 0, ExactFile("artifacts/a.xml"), ArtifactData{Name: "a"})
	root := mustAdd(t, b, art, ExactFile("artifacts/a.xml"), DirectoryElement{Name: "out"})
	mustAdd(t, b, root, ExactFile("artifacts/a.xml"), FileCopyElement{Path: "x"})

	err := b.Modify(root, func(Data) Data { return FileCopyElement{Path: "y"} })
	assert.ErrorIs(t, err, ErrInvalidParent)
	err = b.Modify(root, func(Data) Data { return ArchiveElement{Name: "a.jar"} })
	assert.NoError(t, err)
}

func TestSetParent_MaintainsBothSides(t *testing.T) {
	t.Parallel()
	b := New()
	mod := addModule(t, b, "app")
	r1 := mustAdd(t, b, mod, appIml, ContentRootData{URL: "file://a"})
	r2 := mustAdd(t, b, mod, appIml, ContentRootData{URL: "file://b"})
	src := mustAdd(t, b, r1, appIml, SourceRootData{URL: "file://a/src"})

	require.NoError(t, b.SetParent(src, r2))
	assert.Empty(t, b.Children(r1))
	assert.Equal(t, []EntityID{src}, b.Children(r2))

	s := b.Freeze()
	p, ok := s.Parent(src)
	require.True(t, ok)
	assert.Equal(t, r2, p)
}

func TestSetParent_RejectsCycles(t *testing.T) {
	t.Parallel()
	b := New()
	art := mustAdd(t, b, 0, ExactFile("artifacts/a.xml"), ArtifactData{Name: "a"})
	outer := mustAdd(t, b, art, ExactFile("artifacts/a.xml"), DirectoryElement{Name: "outer"})
	inner := mustAdd(t, b, outer, ExactFile("artifacts/a.xml"), DirectoryElement{Name: "inner"})

	err := b.SetParent(outer, inner)
	assert.ErrorIs(t, err, ErrInvalidParent)
	err = b.SetParent(outer, outer)
	assert.ErrorIs(t, err, ErrInvalidParent)
}

func TestSetSource(t *testing.T) {
	t.Parallel()
	b := New()
	mod := addModule(t, b, "app")
	root := mustAdd(t, b, mod, appIml, ContentRootData{URL: "file://a"})

	ext := Imported("Gradle", ExactFile("external/modules/app.xml"))
	require.NoError(t, b.SetSource(root, ext))
	s := b.Freeze()
	assert.Equal(t, []EntityID{root}, s.BySource(ext))
	assert.True(t, slices.Contains(s.Sources(), ext))
}
