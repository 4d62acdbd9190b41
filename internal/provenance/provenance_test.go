package provenance

import (
	"testing"

	"github.com/jward/modelsync/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libDir = ".idea/libraries"

func TestSourceFor_AssignsStableIDs(t *testing.T) {
	t.Parallel()
	x := New()
	a := x.SourceFor(libDir + "/gson.xml")
	b := x.SourceFor(libDir + "/junit.xml")

	assert.Equal(t, graph.FileInDirectory(libDir, 1), a)
	assert.Equal(t, graph.FileInDirectory(libDir, 2), b)
	assert.Equal(t, a, x.SourceFor(libDir+"/gson.xml"))

	url, err := x.ActualURL(b)
	require.NoError(t, err)
	assert.Equal(t, libDir+"/junit.xml", url)
}

func TestActualURL_Unregistered(t *testing.T) {
	t.Parallel()
	x := New()
	_, err := x.ActualURL(graph.FileInDirectory(libDir, 7))
	assert.ErrorIs(t, err, ErrUnregisteredSource)
	_, err = x.ActualURL(graph.Stub())
	assert.ErrorIs(t, err, ErrUnregisteredSource)

	url, err := x.ActualURL(graph.Imported("Maven", graph.ExactFile(".idea/modules.xml")))
	require.NoError(t, err)
	assert.Equal(t, ".idea/modules.xml", url)
}

func TestSourcesUnderDirectory(t *testing.T) {
	t.Parallel()
	x := New()
	x.RegisterSource(libDir+"/b.xml", 5)
	x.RegisterSource(libDir+"/a.xml", 2)
	x.RegisterSource(".idea/artifacts/w.xml", 1)

	assert.Equal(t, []graph.EntitySource{
		graph.FileInDirectory(libDir, 2),
		graph.FileInDirectory(libDir, 5),
	}, x.SourcesUnderDirectory(libDir+"/"))
	assert.Equal(t, graph.FileInDirectory(libDir, 6), x.SourceFor(libDir+"/c.xml"))
}

func TestMoveAndUnregister(t *testing.T) {
	t.Parallel()
	x := New()
	src := x.SourceFor(libDir + "/gson.xml")

	require.NoError(t, x.Move(src, "gson_2.xml"))
	url, err := x.ActualURL(src)
	require.NoError(t, err)
	assert.Equal(t, libDir+"/gson_2.xml", url)
	_, ok := x.Lookup(libDir + "/gson.xml")
	assert.False(t, ok)

	x.Unregister(src)
	_, err = x.ActualURL(src)
	assert.ErrorIs(t, err, ErrUnregisteredSource)
	assert.Error(t, x.Move(src, "x.xml"))
}

func TestClone_IsIndependent(t *testing.T) {
	t.Parallel()
	x := New()
	src := x.SourceFor(libDir + "/gson.xml")
	c := x.Clone()

	c.Unregister(src)
	c.SourceFor(libDir + "/new.xml")

	_, err := x.ActualURL(src)
	assert.NoError(t, err)
	assert.Len(t, x.Entries(), 1)
	assert.Equal(t, x.Entries(), Restore(x.Entries()).Entries())
}

func TestEscapeFileName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Maven__com_google_gson_gson_2_10", EscapeFileName("Maven: com.google.gson:gson:2.10"))
	assert.Equal(t, "plain_Name1", EscapeFileName("plain_Name1"))
	assert.Equal(t, "__b", EscapeFileName("Ä b"))
}

func TestAllocateName_Collisions(t *testing.T) {
	t.Parallel()
	x := New()
	assert.Equal(t, "a_b.xml", x.AllocateName(libDir, "a b", ".xml", graph.EntitySource{}))

	first := x.SourceFor(libDir + "/a_b.xml")
	assert.Equal(t, "a_b.xml", x.AllocateName(libDir, "a b", ".xml", first), "owner keeps its name")
	assert.Equal(t, "a_b_2.xml", x.AllocateName(libDir, "a.b", ".xml", graph.EntitySource{}))

	x.SourceFor(libDir + "/a_b_2.xml")
	assert.Equal(t, "a_b_3.xml", x.AllocateName(libDir, "a-b", ".xml", graph.EntitySource{}))
}
